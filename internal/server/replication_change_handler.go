package server

import (
	"github.com/hydro-project/anna/internal/metadata"
	"github.com/hydro-project/anna/internal/placement"
	"github.com/hydro-project/anna/internal/wire"
)

// HandleReplicationUpdate overwrites the cached replication records for
// every listed key. The head thread of the node additionally fans the update
// out to its sibling threads, so the routing tier only has to address one
// thread per node.
func (t *StorageThread) HandleReplicationUpdate(upd *wire.ReplicationFactorUpdate) {
	for _, rf := range upd.Updates {
		key := rf.Key
		if _, ok := t.keyReplication[key]; !ok {
			// unlisted tiers keep their defaults
			metadata.InitReplication(t.keyReplication, key,
				t.cfg.TierMetadata, t.cfg.DefaultLocalReplication)
		}
		rec := t.keyReplication[key]
		for _, g := range rf.Global {
			rec.Global[g.Tier] = g.Value
		}
		for _, l := range rf.Local {
			rec.Local[l.Tier] = l.Value
		}
		t.keyReplication[key] = rec
	}

	if t.cfg.Self.TID == 0 {
		threadCount := t.cfg.TierMetadata[t.cfg.Self.Tier].ThreadNumber
		for tid := uint32(1); tid < threadCount; tid++ {
			peer := placement.ServerThread{
				PublicIP:  t.cfg.Self.PublicIP,
				PrivateIP: t.cfg.Self.PrivateIP,
				TID:       tid,
				Tier:      t.cfg.Self.Tier,
			}
			t.sender.Send(peer.ReplicationChangeAddress(),
				wire.KindReplicationUpdate, upd)
		}
	}
}
