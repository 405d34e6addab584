package server

import (
	"github.com/hydro-project/anna/internal/metadata"
	"github.com/hydro-project/anna/internal/placement"
	"github.com/hydro-project/anna/internal/wire"
	"go.uber.org/zap"
)

// HandleReplicationResponse applies a replication-factor response to the
// cache and drains the work parked on the key. There is only ever one tuple
// in a replication-factor response.
func (t *StorageThread) HandleReplicationResponse(resp *wire.KeyResponse) {
	if len(resp.Tuples) == 0 {
		t.logger.Error("empty replication factor response")
		return
	}
	tuple := resp.Tuples[0]
	key := metadata.KeyFromMetadata(tuple.Key)
	if key == "" {
		t.logger.Error("replication factor response for malformed metadata key",
			zap.String("metadata_key", tuple.Key))
		return
	}

	switch tuple.Error {
	case wire.NoError:
		rf, err := wire.UnwrapReplicationFactor(tuple.Payload)
		if err != nil {
			t.logger.Error("failed to parse replication factor payload",
				zap.String("key", key), zap.Error(err))
			return
		}
		rec, ok := t.keyReplication[key]
		if !ok {
			rec = metadata.NewKeyReplication()
		}
		for _, g := range rf.Global {
			rec.Global[g.Tier] = g.Value
		}
		for _, l := range rf.Local {
			rec.Local[l.Tier] = l.Value
		}
		t.keyReplication[key] = rec
	case wire.KeyDNE:
		// the responsible thread had nothing stored; fall back to the
		// per-tier defaults
		metadata.InitReplication(t.keyReplication, key,
			t.cfg.TierMetadata, t.cfg.DefaultLocalReplication)
	case wire.WrongThread:
		// the receiving thread was not responsible for the metadata key;
		// fetch again from a responsible thread drawn at random
		t.met.ReplicationRefetches.Inc()
		t.issueReplicationRequest(key)
		return
	default:
		t.logger.Error("unexpected error type in replication factor response",
			zap.String("key", key), zap.String("error", tuple.Error.String()))
		return
	}

	t.drainPendingRequests(key)
	t.drainPendingGossip(key)
	t.updateGauges()
}

// drainPendingRequests replays the requests parked on key now that its
// replication record is resolved.
func (t *StorageThread) drainPendingRequests(key string) {
	pending, ok := t.pendingRequests[key]
	if !ok {
		return
	}
	defer delete(t.pendingRequests, key)

	threads, ok := t.responsibleThreads(key)
	if !ok {
		t.logger.Error("missing key replication factor in process pending request routine",
			zap.String("key", key))
		return
	}
	responsible := placement.Contains(threads, t.cfg.Self)

	for _, request := range pending {
		switch {
		case !responsible && request.Addr != "":
			response := wire.KeyResponse{
				Type:       request.Type,
				ResponseID: request.ResponseID,
				Tuples: []wire.KeyTuple{
					{Key: key, Error: wire.WrongThread},
				},
			}
			t.met.WrongThreadTotal.Inc()
			t.sender.Send(request.Addr, wire.KindResponse, response)

		case responsible && request.Addr == "":
			// only self-issued puts fall into this category
			if request.Type != wire.RequestPut {
				t.logger.Error("received a GET request with no response address",
					zap.String("key", key))
				continue
			}
			if t.processPut(key, request.LatticeType, request.Payload) == wire.NoError {
				t.localChangeset[key] = struct{}{}
			}
			t.trackAccess(key)

		case responsible && request.Addr != "":
			response := wire.KeyResponse{Type: request.Type, ResponseID: request.ResponseID}
			if request.Type == wire.RequestGet {
				response.Tuples = append(response.Tuples, t.processGet(key))
			} else {
				errc := t.processPut(key, request.LatticeType, request.Payload)
				if errc == wire.NoError {
					t.localChangeset[key] = struct{}{}
				}
				response.Tuples = append(response.Tuples, wire.KeyTuple{
					Key:         key,
					LatticeType: request.LatticeType,
					Error:       errc,
				})
			}
			t.trackAccess(key)
			t.sender.Send(request.Addr, wire.KindResponse, response)

		default:
			// not responsible, no reply address: drop
		}
	}
}

// drainPendingGossip replays or re-forwards the gossip parked on key.
func (t *StorageThread) drainPendingGossip(key string) {
	pending, ok := t.pendingGossip[key]
	if !ok {
		return
	}
	defer delete(t.pendingGossip, key)

	threads, ok := t.responsibleThreads(key)
	if !ok {
		t.logger.Error("missing key replication factor in process pending gossip routine",
			zap.String("key", key))
		return
	}

	if placement.Contains(threads, t.cfg.Self) {
		for _, gossip := range pending {
			t.processPut(key, gossip.LatticeType, gossip.Payload)
		}
		return
	}

	// redirect the gossip to the owners, one batch per peer
	forwards := make(map[string]*wire.KeyRequest)
	for _, thread := range threads {
		addr := thread.GossipAddress()
		fwd, ok := forwards[addr]
		if !ok {
			fwd = &wire.KeyRequest{Type: wire.RequestPut}
			forwards[addr] = fwd
		}
		for _, gossip := range pending {
			fwd.AddPutTuple(key, gossip.LatticeType, gossip.Payload)
		}
	}
	for addr, fwd := range forwards {
		t.sender.Send(addr, wire.KindGossip, fwd)
	}
}
