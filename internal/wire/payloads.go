package wire

import (
	"fmt"

	"github.com/hydro-project/anna/internal/lattice"
)

// LWWValue is the payload form of the last-writer-wins register.
type LWWValue struct {
	Timestamp uint64 `codec:"timestamp"`
	Value     string `codec:"value"`
}

// SetValue is the payload form of the set and ordered-set lattices.
type SetValue struct {
	Values []string `codec:"values"`
}

// SingleKeyCausalValue is the payload form of the single-key causal lattice.
type SingleKeyCausalValue struct {
	VectorClock map[string]uint64 `codec:"vector_clock"`
	Values      []string          `codec:"values"`
}

// KeyVersion names a dependency key and the vector clock it was read at.
type KeyVersion struct {
	Key         string            `codec:"key"`
	VectorClock map[string]uint64 `codec:"vector_clock"`
}

// MultiKeyCausalValue is the payload form of the multi-key causal lattice.
type MultiKeyCausalValue struct {
	VectorClock  map[string]uint64 `codec:"vector_clock"`
	Dependencies []KeyVersion      `codec:"dependencies"`
	Values       []string          `codec:"values"`
}

// PriorityValue is the payload form of the priority lattice.
type PriorityValue struct {
	Priority float64 `codec:"priority"`
	Value    string  `codec:"value"`
}

// SerializeLWW encodes a register for the wire or disk.
func SerializeLWW(l lattice.LWW) ([]byte, error) {
	return Marshal(LWWValue{Timestamp: l.Timestamp, Value: l.Value})
}

// DeserializeLWW decodes a register payload.
func DeserializeLWW(data []byte) (lattice.LWW, error) {
	var v LWWValue
	if err := Unmarshal(data, &v); err != nil {
		return lattice.LWW{}, err
	}
	return lattice.NewLWW(v.Timestamp, v.Value), nil
}

// SerializeSet encodes a set lattice.
func SerializeSet(s lattice.Set) ([]byte, error) {
	return Marshal(SetValue{Values: s.Reveal()})
}

// DeserializeSet decodes a set payload.
func DeserializeSet(data []byte) (lattice.Set, error) {
	var v SetValue
	if err := Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return lattice.NewSet(v.Values...), nil
}

// SerializeOrderedSet encodes an ordered-set lattice; elements are already
// sorted by the carrier.
func SerializeOrderedSet(s lattice.OrderedSet) ([]byte, error) {
	return Marshal(SetValue{Values: s.Reveal()})
}

// DeserializeOrderedSet decodes an ordered-set payload.
func DeserializeOrderedSet(data []byte) (lattice.OrderedSet, error) {
	var v SetValue
	if err := Unmarshal(data, &v); err != nil {
		return lattice.OrderedSet{}, err
	}
	return lattice.NewOrderedSet(v.Values...), nil
}

// SerializeSingleCausal encodes a single-key causal lattice.
func SerializeSingleCausal(c lattice.SingleCausal) ([]byte, error) {
	return Marshal(SingleKeyCausalValue{
		VectorClock: c.Clock.Reveal(),
		Values:      c.Values.Reveal(),
	})
}

// DeserializeSingleCausal decodes a single-key causal payload.
func DeserializeSingleCausal(data []byte) (lattice.SingleCausal, error) {
	var v SingleKeyCausalValue
	if err := Unmarshal(data, &v); err != nil {
		return lattice.SingleCausal{}, err
	}
	return lattice.NewSingleCausal(
		lattice.NewVectorClock(v.VectorClock),
		lattice.NewSet(v.Values...),
	), nil
}

// SerializeMultiCausal encodes a multi-key causal lattice.
func SerializeMultiCausal(c lattice.MultiCausal) ([]byte, error) {
	deps := make([]KeyVersion, 0, len(c.Dependencies))
	for key, vc := range c.Dependencies {
		deps = append(deps, KeyVersion{Key: key, VectorClock: vc.Reveal()})
	}
	return Marshal(MultiKeyCausalValue{
		VectorClock:  c.Clock.Reveal(),
		Dependencies: deps,
		Values:       c.Values.Reveal(),
	})
}

// DeserializeMultiCausal decodes a multi-key causal payload.
func DeserializeMultiCausal(data []byte) (lattice.MultiCausal, error) {
	var v MultiKeyCausalValue
	if err := Unmarshal(data, &v); err != nil {
		return lattice.MultiCausal{}, err
	}
	deps := make(map[string]lattice.VectorClock, len(v.Dependencies))
	for _, dep := range v.Dependencies {
		vc := lattice.NewVectorClock(dep.VectorClock)
		if cur, ok := deps[dep.Key]; ok {
			vc = cur.Merge(vc)
		}
		deps[dep.Key] = vc
	}
	return lattice.NewMultiCausal(
		lattice.NewVectorClock(v.VectorClock),
		deps,
		lattice.NewSet(v.Values...),
	), nil
}

// SerializePriority encodes a priority lattice.
func SerializePriority(p lattice.Priority) ([]byte, error) {
	return Marshal(PriorityValue{Priority: p.Priority, Value: p.Value})
}

// DeserializePriority decodes a priority payload.
func DeserializePriority(data []byte) (lattice.Priority, error) {
	var v PriorityValue
	if err := Unmarshal(data, &v); err != nil {
		return lattice.Priority{}, err
	}
	return lattice.NewPriority(v.Priority, v.Value), nil
}

// WrapReplicationFactor encodes a replication record as the LWW payload the
// metadata key-space stores it under.
func WrapReplicationFactor(rf ReplicationFactor, ts uint64) ([]byte, error) {
	inner, err := Marshal(rf)
	if err != nil {
		return nil, err
	}
	return SerializeLWW(lattice.NewLWW(ts, string(inner)))
}

// UnwrapReplicationFactor decodes the LWW-wrapped replication record.
func UnwrapReplicationFactor(payload []byte) (ReplicationFactor, error) {
	lww, err := DeserializeLWW(payload)
	if err != nil {
		return ReplicationFactor{}, err
	}
	var rf ReplicationFactor
	if err := Unmarshal([]byte(lww.Value), &rf); err != nil {
		return ReplicationFactor{}, fmt.Errorf("replication factor payload: %w", err)
	}
	return rf, nil
}
