// Package serializer adapts the typed stores to wire payloads: one adapter
// per (lattice type, backend) pair with a uniform get/put/remove surface.
// Put deserializes, merges with whatever is already stored and reserializes.
package serializer

import (
	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/wire"
)

// Serializer converts between wire payloads and one lattice type on one
// backend. Get reports KEY_DNE for absent or empty carriers; Put returns the
// stored byte size after the merge.
type Serializer interface {
	Get(key string) ([]byte, wire.ErrorCode)
	Put(key string, payload []byte) (int, wire.ErrorCode)
	Remove(key string)
}

// Map holds exactly one adapter per lattice type for one storage thread.
type Map map[lattice.Type]Serializer
