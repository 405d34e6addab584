package serializer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/storage/diskmanager"
	"github.com/hydro-project/anna/internal/wire"
	"go.uber.org/zap"
)

// diskSerializer adapts one lattice type to file-per-key storage under
// <ebs_root>/ebs_<tid>/<key>. Put parses the existing file, applies the
// type's rewrite rule and replaces the whole file via write-then-rename.
type diskSerializer[V lattice.Lattice[V]] struct {
	dir         string
	serialize   func(V) ([]byte, error)
	deserialize func([]byte) (V, error)
	empty       func(V) bool
	// rewrite decides what a put stores given the original and incoming
	// values, and whether the file changes at all. LWW and PRIORITY take
	// their merge shortcuts here; every other type does a full merge.
	rewrite func(original, incoming V) (V, bool)
	dm      *diskmanager.DiskManager
	logger  *zap.Logger
}

func (s *diskSerializer[V]) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *diskSerializer[V]) Get(key string) ([]byte, wire.ErrorCode) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read value file",
				zap.String("key", key), zap.Error(err))
		}
		return nil, wire.KeyDNE
	}
	val, err := s.deserialize(data)
	if err != nil {
		s.logger.Error("failed to parse payload",
			zap.String("key", key), zap.Error(err))
		return nil, wire.KeyDNE
	}
	if s.empty(val) {
		return nil, wire.KeyDNE
	}
	payload, err := s.serialize(val)
	if err != nil {
		s.logger.Error("failed to serialize stored value",
			zap.String("key", key), zap.Error(err))
		return nil, wire.KeyDNE
	}
	return payload, wire.NoError
}

func (s *diskSerializer[V]) Put(key string, payload []byte) (int, wire.ErrorCode) {
	incoming, err := s.deserialize(payload)
	if err != nil {
		s.logger.Error("failed to parse payload",
			zap.String("key", key), zap.Error(err))
		return 0, wire.FailedSerialization
	}

	existing, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Error("failed to read value file",
				zap.String("key", key), zap.Error(err))
			return 0, wire.NoError
		}
		return s.write(key, payload, 0), wire.NoError
	}

	original, err := s.deserialize(existing)
	if err != nil {
		s.logger.Error("failed to parse existing value file",
			zap.String("key", key), zap.Error(err))
		return 0, wire.FailedSerialization
	}

	merged, changed := s.rewrite(original, incoming)
	if !changed {
		return len(existing), wire.NoError
	}

	out, err := s.serialize(merged)
	if err != nil {
		s.logger.Error("failed to serialize merged value",
			zap.String("key", key), zap.Error(err))
		return len(existing), wire.NoError
	}
	return s.write(key, out, len(existing)), wire.NoError
}

// write replaces the key's file atomically and returns the stored byte
// count; on failure the previous contents stay in place and their size is
// returned.
func (s *diskSerializer[V]) write(key string, data []byte, previous int) int {
	if s.dm != nil {
		if err := s.dm.CheckBeforeWrite(uint64(len(data))); err != nil {
			s.logger.Warn("rejecting disk write",
				zap.String("key", key), zap.Error(err))
			return previous
		}
	}
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("failed to write payload",
			zap.String("key", key), zap.Error(err))
		return previous
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		s.logger.Error("failed to replace value file",
			zap.String("key", key), zap.Error(err))
		os.Remove(tmp)
		return previous
	}
	if s.dm != nil {
		s.dm.Account(previous, len(data))
	}
	return len(data)
}

func (s *diskSerializer[V]) Remove(key string) {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		s.logger.Error("error deleting value file",
			zap.String("key", key), zap.Error(err))
	}
}

// fullMerge is the rewrite rule for types without a disk shortcut.
func fullMerge[V lattice.Lattice[V]](original, incoming V) (V, bool) {
	return original.Merge(incoming), true
}

// NewDiskMap builds the full adapter set rooted at <ebsRoot>/ebs_<tid>,
// creating the directory if needed.
func NewDiskMap(ebsRoot string, tid uint32, dm *diskmanager.DiskManager, logger *zap.Logger) (Map, error) {
	dir := filepath.Join(ebsRoot, fmt.Sprintf("ebs_%d", tid))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ebs directory: %w", err)
	}
	return Map{
		lattice.TypeLWW: &diskSerializer[lattice.LWW]{
			dir:         dir,
			serialize:   wire.SerializeLWW,
			deserialize: wire.DeserializeLWW,
			empty:       func(v lattice.LWW) bool { return v.Value == "" },
			rewrite: func(original, incoming lattice.LWW) (lattice.LWW, bool) {
				// rewrite only when the incoming timestamp is at
				// least as new as the stored one
				if incoming.Timestamp >= original.Timestamp {
					return incoming, true
				}
				return original, false
			},
			dm:     dm,
			logger: logger,
		},
		lattice.TypeSet: &diskSerializer[lattice.Set]{
			dir:         dir,
			serialize:   wire.SerializeSet,
			deserialize: wire.DeserializeSet,
			empty:       func(v lattice.Set) bool { return v.Len() == 0 },
			rewrite:     fullMerge[lattice.Set],
			dm:          dm,
			logger:      logger,
		},
		lattice.TypeOrderedSet: &diskSerializer[lattice.OrderedSet]{
			dir:         dir,
			serialize:   wire.SerializeOrderedSet,
			deserialize: wire.DeserializeOrderedSet,
			empty:       func(v lattice.OrderedSet) bool { return v.Len() == 0 },
			rewrite:     fullMerge[lattice.OrderedSet],
			dm:          dm,
			logger:      logger,
		},
		lattice.TypeSingleCausal: &diskSerializer[lattice.SingleCausal]{
			dir:         dir,
			serialize:   wire.SerializeSingleCausal,
			deserialize: wire.DeserializeSingleCausal,
			empty:       func(v lattice.SingleCausal) bool { return v.Values.Len() == 0 },
			rewrite:     fullMerge[lattice.SingleCausal],
			dm:          dm,
			logger:      logger,
		},
		lattice.TypeMultiCausal: &diskSerializer[lattice.MultiCausal]{
			dir:         dir,
			serialize:   wire.SerializeMultiCausal,
			deserialize: wire.DeserializeMultiCausal,
			empty:       func(v lattice.MultiCausal) bool { return v.Values.Len() == 0 },
			rewrite:     fullMerge[lattice.MultiCausal],
			dm:          dm,
			logger:      logger,
		},
		lattice.TypePriority: &diskSerializer[lattice.Priority]{
			dir:         dir,
			serialize:   wire.SerializePriority,
			deserialize: wire.DeserializePriority,
			empty:       func(v lattice.Priority) bool { return v.Value == "" },
			rewrite: func(original, incoming lattice.Priority) (lattice.Priority, bool) {
				// rewrite only on a strictly smaller priority; equal
				// priorities with a new value are dropped
				if incoming.Priority < original.Priority {
					return incoming, true
				}
				return original, false
			},
			dm:     dm,
			logger: logger,
		},
	}, nil
}
