// Package placement names the threads responsible for a key. The hash-ring
// implementation lives in internal/hashring; the pipeline depends only on the
// Oracle interface so tests can pin placement.
package placement

import (
	"fmt"

	"github.com/hydro-project/anna/internal/metadata"
)

// BaseStoragePort is the first port of the per-thread listener range; thread
// t listens on BaseStoragePort+t.
const BaseStoragePort = 6200

// ServerThread identifies one storage thread of one node.
type ServerThread struct {
	PublicIP  string
	PrivateIP string
	TID       uint32
	Tier      metadata.Tier
}

// ID returns a stable identifier for logs and ring placement.
func (t ServerThread) ID() string {
	return fmt.Sprintf("%s:%s:%d:%s", t.PublicIP, t.PrivateIP, t.TID, t.Tier)
}

// RequestAddress is where clients send KeyRequests.
func (t ServerThread) RequestAddress() string {
	return fmt.Sprintf("%s:%d", t.PublicIP, BaseStoragePort+t.TID)
}

// GossipAddress is where replica peers send gossip batches.
func (t ServerThread) GossipAddress() string {
	return fmt.Sprintf("%s:%d", t.PrivateIP, BaseStoragePort+t.TID)
}

// ReplicationResponseAddress is where replication-factor responses return.
func (t ServerThread) ReplicationResponseAddress() string {
	return fmt.Sprintf("%s:%d", t.PrivateIP, BaseStoragePort+t.TID)
}

// ReplicationChangeAddress is where replication updates fan in.
func (t ServerThread) ReplicationChangeAddress() string {
	return fmt.Sprintf("%s:%d", t.PrivateIP, BaseStoragePort+t.TID)
}

// Oracle resolves the ordered list of threads responsible for a key. ok is
// false when the caller holds no replication record for the key; the caller
// must then fetch the record and defer the work.
type Oracle interface {
	GetResponsibleThreads(key string, isMetadata bool,
		replication map[string]metadata.KeyReplication,
		tiers []metadata.Tier) (threads []ServerThread, ok bool)
}

// Contains reports whether self appears in threads.
func Contains(threads []ServerThread, self ServerThread) bool {
	for _, t := range threads {
		if t == self {
			return true
		}
	}
	return false
}
