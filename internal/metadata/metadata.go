// Package metadata defines the reserved metadata key-space and the per-key
// replication records the storage threads maintain.
package metadata

import (
	"fmt"
	"strings"

	"github.com/hydro-project/anna/internal/lattice"
)

// Identifier marks a key as belonging to the metadata key-space.
const (
	Identifier = "ANNA_METADATA"
	Delimiter  = "|"
)

// Metadata keys come in four kinds.
const (
	KindReplication = "replication"
	KindStats       = "stats"
	KindAccess      = "access"
	KindSize        = "size"
)

// Replication factors used for the metadata key-space itself.
const (
	MetadataReplicationFactor      = 1
	MetadataLocalReplicationFactor = 1
)

// Tier is a storage class with its own replication factor and capacity.
type Tier uint8

const (
	TierMemory Tier = iota
	TierDisk
	TierRouting
)

// AllTiers lists the storage tiers in placement order.
var AllTiers = []Tier{TierMemory, TierDisk}

// String returns the tier's wire name.
func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "MEMORY"
	case TierDisk:
		return "DISK"
	case TierRouting:
		return "ROUTING"
	default:
		return fmt.Sprintf("TIER(%d)", uint8(t))
	}
}

// ParseTier maps a config string to a tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(s) {
	case "MEMORY", "MEM":
		return TierMemory, nil
	case "DISK", "EBS":
		return TierDisk, nil
	case "ROUTING":
		return TierRouting, nil
	default:
		return TierMemory, fmt.Errorf("unknown tier %q", s)
	}
}

// KeyReplication records how many replicas a key has across nodes (global)
// and across threads within a node (local), per tier.
type KeyReplication struct {
	Global map[Tier]uint32
	Local  map[Tier]uint32
}

// NewKeyReplication returns a record with empty factor maps.
func NewKeyReplication() KeyReplication {
	return KeyReplication{
		Global: make(map[Tier]uint32),
		Local:  make(map[Tier]uint32),
	}
}

// Equal compares two records structurally on both factor maps.
func (r KeyReplication) Equal(other KeyReplication) bool {
	if len(r.Global) != len(other.Global) || len(r.Local) != len(other.Local) {
		return false
	}
	for tier, n := range r.Global {
		if other.Global[tier] != n {
			return false
		}
	}
	for tier, n := range r.Local {
		if other.Local[tier] != n {
			return false
		}
	}
	return true
}

// KeyProperty tracks the serialized size and declared lattice type of a
// stored key.
type KeyProperty struct {
	Size int
	Type lattice.Type
}

// TierMetadata carries the per-tier deployment constants.
type TierMetadata struct {
	ID                 Tier
	ThreadNumber       uint32
	DefaultReplication uint32
	NodeCapacity       uint64
}

// IsMetadata reports whether key lives in the reserved metadata key-space.
func IsMetadata(key string) bool {
	return strings.HasPrefix(key, Identifier+Delimiter)
}

// ReplicationKey returns the metadata key holding the replication factors of
// a data key.
func ReplicationKey(key string) string {
	return Identifier + Delimiter + KindReplication + Delimiter + key
}

// ThreadKey returns the metadata key owned by a server thread for the given
// kind (stats, access or size).
func ThreadKey(kind, publicIP, privateIP string, tid uint32, tier Tier) string {
	return Identifier + Delimiter + kind + Delimiter + publicIP + Delimiter +
		privateIP + Delimiter + fmt.Sprint(tid) + Delimiter + tier.String()
}

// KeyFromMetadata inverts ReplicationKey, returning the data key. It returns
// the empty string for any other metadata kind.
func KeyFromMetadata(metadataKey string) string {
	rest, ok := strings.CutPrefix(metadataKey, Identifier+Delimiter)
	if !ok {
		return ""
	}
	kind, key, ok := strings.Cut(rest, Delimiter)
	if !ok || kind != KindReplication {
		return ""
	}
	return key
}

// SplitMetadataKey tokenizes a thread-owned metadata key.
func SplitMetadataKey(key string) []string {
	return strings.Split(key, Delimiter)
}

// InitReplication installs the per-tier defaults for a key that has no
// fetched replication record.
func InitReplication(replication map[string]KeyReplication, key string,
	tiers map[Tier]TierMetadata, defaultLocal uint32) {
	rec := NewKeyReplication()
	for _, tier := range AllTiers {
		rec.Global[tier] = tiers[tier].DefaultReplication
		rec.Local[tier] = defaultLocal
	}
	replication[key] = rec
}

// WarmupReplicationToDefaults pre-populates one million synthetic 8-digit
// keys with the default factors, matching the deployment's benchmark warmup.
func WarmupReplicationToDefaults(replication map[string]KeyReplication,
	defaultGlobalMemory, defaultGlobalDisk, defaultLocal uint32) {
	for i := 1; i <= 1000000; i++ {
		key := fmt.Sprintf("%08d", i)
		rec := NewKeyReplication()
		rec.Global[TierMemory] = defaultGlobalMemory
		rec.Global[TierDisk] = defaultGlobalDisk
		rec.Local[TierMemory] = defaultLocal
		rec.Local[TierDisk] = defaultLocal
		replication[key] = rec
	}
}
