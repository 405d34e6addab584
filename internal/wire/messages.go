// Package wire defines the messages exchanged between clients, storage
// threads and replica peers, together with their msgpack codec and the
// payload forms of every lattice type.
package wire

import (
	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/metadata"
)

// RequestType distinguishes reads from writes.
type RequestType uint8

const (
	RequestUnspecified RequestType = iota
	RequestGet
	RequestPut
)

// String returns the request type's wire name.
func (t RequestType) String() string {
	switch t {
	case RequestGet:
		return "GET"
	case RequestPut:
		return "PUT"
	default:
		return "UNSPECIFIED"
	}
}

// ErrorCode is the error taxonomy carried in response tuples.
type ErrorCode uint8

const (
	NoError ErrorCode = iota
	KeyDNE
	WrongThread
	LatticeMismatch
	// FailedSerialization marks payloads the serializer could not parse and
	// tuples the validator rejected; it is returned in response tuples like
	// the other codes.
	FailedSerialization
)

// String returns the error code's wire name.
func (e ErrorCode) String() string {
	switch e {
	case NoError:
		return "NO_ERROR"
	case KeyDNE:
		return "KEY_DNE"
	case WrongThread:
		return "WRONG_THREAD"
	case LatticeMismatch:
		return "LATTICE_MISMATCH"
	case FailedSerialization:
		return "FAILED_SERIALIZATION"
	default:
		return "UNKNOWN"
	}
}

// KeyTuple is one key's worth of a request or response.
type KeyTuple struct {
	Key         string       `codec:"key"`
	LatticeType lattice.Type `codec:"lattice_type"`
	Payload     []byte       `codec:"payload"`
	Error       ErrorCode    `codec:"error"`
}

// KeyRequest is a batch of GET or PUT tuples. A request with an empty
// ResponseAddress (gossip, or a thread's own stats PUTs) expects no reply.
type KeyRequest struct {
	Type            RequestType `codec:"type"`
	ResponseAddress string      `codec:"response_address"`
	ResponseID      string      `codec:"response_id"`
	Tuples          []KeyTuple  `codec:"tuples"`
}

// KeyResponse answers a KeyRequest tuple-for-tuple.
type KeyResponse struct {
	Type       RequestType `codec:"type"`
	ResponseID string      `codec:"response_id"`
	Tuples     []KeyTuple  `codec:"tuples"`
}

// AddGetTuple appends a GET tuple to the request.
func (r *KeyRequest) AddGetTuple(key string, lt lattice.Type) {
	r.Tuples = append(r.Tuples, KeyTuple{Key: key, LatticeType: lt})
}

// AddPutTuple appends a PUT tuple carrying a payload to the request.
func (r *KeyRequest) AddPutTuple(key string, lt lattice.Type, payload []byte) {
	r.Tuples = append(r.Tuples, KeyTuple{Key: key, LatticeType: lt, Payload: payload})
}

// ReplicationValue is one (tier, factor) pair of a replication record.
type ReplicationValue struct {
	Tier  metadata.Tier `codec:"tier"`
	Value uint32        `codec:"value"`
}

// ReplicationFactor is the wire form of a key's replication record.
type ReplicationFactor struct {
	Key    string             `codec:"key"`
	Global []ReplicationValue `codec:"global"`
	Local  []ReplicationValue `codec:"local"`
}

// ReplicationFactorUpdate carries replication changes fanned out to peers.
type ReplicationFactorUpdate struct {
	Updates []ReplicationFactor `codec:"updates"`
}

// ToKeyReplication converts the wire record into the cache form.
func (rf ReplicationFactor) ToKeyReplication() metadata.KeyReplication {
	rec := metadata.NewKeyReplication()
	for _, g := range rf.Global {
		rec.Global[g.Tier] = g.Value
	}
	for _, l := range rf.Local {
		rec.Local[l.Tier] = l.Value
	}
	return rec
}

// FromKeyReplication converts a cache record into its wire form.
func FromKeyReplication(key string, rec metadata.KeyReplication) ReplicationFactor {
	rf := ReplicationFactor{Key: key}
	for _, tier := range metadata.AllTiers {
		if n, ok := rec.Global[tier]; ok {
			rf.Global = append(rf.Global, ReplicationValue{Tier: tier, Value: n})
		}
		if n, ok := rec.Local[tier]; ok {
			rf.Local = append(rf.Local, ReplicationValue{Tier: tier, Value: n})
		}
	}
	return rf
}

// Kind routes an envelope to the right handler channel on the receiving
// thread.
type Kind uint8

const (
	KindRequest Kind = iota + 1
	KindResponse
	KindGossip
	KindReplicationResponse
	KindReplicationUpdate
)

// Envelope is the unit the transport moves: a kind tag and an encoded
// message.
type Envelope struct {
	Kind    Kind   `codec:"kind"`
	Payload []byte `codec:"payload"`
}
