package serializer

import (
	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/store"
	"github.com/hydro-project/anna/internal/wire"
	"go.uber.org/zap"
)

// memorySerializer adapts one typed in-memory store. The type parameter
// carries the merge law; the codec funcs carry the payload form.
type memorySerializer[V lattice.Lattice[V]] struct {
	kvs         *store.Store[V]
	serialize   func(V) ([]byte, error)
	deserialize func([]byte) (V, error)
	empty       func(V) bool
	logger      *zap.Logger
}

func (s *memorySerializer[V]) Get(key string) ([]byte, wire.ErrorCode) {
	val, ok := s.kvs.Get(key)
	if !ok || s.empty(val) {
		return nil, wire.KeyDNE
	}
	payload, err := s.serialize(val)
	if err != nil {
		s.logger.Error("failed to serialize stored value",
			zap.String("key", key), zap.Error(err))
		return nil, wire.FailedSerialization
	}
	return payload, wire.NoError
}

func (s *memorySerializer[V]) Put(key string, payload []byte) (int, wire.ErrorCode) {
	val, err := s.deserialize(payload)
	if err != nil {
		s.logger.Error("failed to parse payload",
			zap.String("key", key), zap.Error(err))
		return 0, wire.FailedSerialization
	}
	s.kvs.Put(key, val)
	return s.kvs.Size(key), wire.NoError
}

func (s *memorySerializer[V]) Remove(key string) {
	s.kvs.Remove(key)
}

// NewMemoryMap builds the full adapter set over fresh typed stores.
func NewMemoryMap(logger *zap.Logger) Map {
	return Map{
		lattice.TypeLWW: &memorySerializer[lattice.LWW]{
			kvs:         store.New[lattice.LWW](),
			serialize:   wire.SerializeLWW,
			deserialize: wire.DeserializeLWW,
			empty:       func(v lattice.LWW) bool { return v.Value == "" },
			logger:      logger,
		},
		lattice.TypeSet: &memorySerializer[lattice.Set]{
			kvs:         store.New[lattice.Set](),
			serialize:   wire.SerializeSet,
			deserialize: wire.DeserializeSet,
			empty:       func(v lattice.Set) bool { return v.Len() == 0 },
			logger:      logger,
		},
		lattice.TypeOrderedSet: &memorySerializer[lattice.OrderedSet]{
			kvs:         store.New[lattice.OrderedSet](),
			serialize:   wire.SerializeOrderedSet,
			deserialize: wire.DeserializeOrderedSet,
			empty:       func(v lattice.OrderedSet) bool { return v.Len() == 0 },
			logger:      logger,
		},
		lattice.TypeSingleCausal: &memorySerializer[lattice.SingleCausal]{
			kvs:         store.New[lattice.SingleCausal](),
			serialize:   wire.SerializeSingleCausal,
			deserialize: wire.DeserializeSingleCausal,
			empty:       func(v lattice.SingleCausal) bool { return v.Values.Len() == 0 },
			logger:      logger,
		},
		lattice.TypeMultiCausal: &memorySerializer[lattice.MultiCausal]{
			kvs:         store.New[lattice.MultiCausal](),
			serialize:   wire.SerializeMultiCausal,
			deserialize: wire.DeserializeMultiCausal,
			empty:       func(v lattice.MultiCausal) bool { return v.Values.Len() == 0 },
			logger:      logger,
		},
		lattice.TypePriority: &memorySerializer[lattice.Priority]{
			kvs:         store.New[lattice.Priority](),
			serialize:   wire.SerializePriority,
			deserialize: wire.DeserializePriority,
			empty:       func(v lattice.Priority) bool { return v.Value == "" },
			logger:      logger,
		},
	}
}
