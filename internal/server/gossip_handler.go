package server

import (
	"github.com/hydro-project/anna/internal/placement"
	"github.com/hydro-project/anna/internal/wire"
)

// HandleGossip merges an inbound gossip batch. Gossip is PUT-shaped with no
// reply address: tuples for keys this thread owns merge into the store,
// tuples with an unknown replication record park on the pending-gossip map,
// and tuples this thread is not responsible for are re-forwarded to the
// owners, batched into one message per peer.
func (t *StorageThread) HandleGossip(req *wire.KeyRequest) {
	forwards := make(map[string]*wire.KeyRequest)

	for _, tuple := range req.Tuples {
		key := tuple.Key

		threads, ok := t.responsibleThreads(key)
		if !ok {
			t.pendingGossip[key] = append(t.pendingGossip[key], PendingGossip{
				LatticeType: tuple.LatticeType,
				Payload:     tuple.Payload,
			})
			t.issueReplicationRequest(key)
			continue
		}

		if placement.Contains(threads, t.cfg.Self) {
			t.processPut(key, tuple.LatticeType, tuple.Payload)
			t.met.GossipInboundTotal.Inc()
			continue
		}

		for _, thread := range threads {
			addr := thread.GossipAddress()
			fwd, ok := forwards[addr]
			if !ok {
				fwd = &wire.KeyRequest{Type: wire.RequestPut}
				forwards[addr] = fwd
			}
			fwd.AddPutTuple(key, tuple.LatticeType, tuple.Payload)
		}
	}

	for addr, fwd := range forwards {
		t.sender.Send(addr, wire.KindGossip, fwd)
	}
	t.updateGauges()
}
