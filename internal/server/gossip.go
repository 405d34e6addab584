package server

import (
	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/metadata"
	"github.com/hydro-project/anna/internal/placement"
	"github.com/hydro-project/anna/internal/wire"
	"go.uber.org/zap"
)

// addressKeyset maps a peer gossip address to the keys bound for it.
type addressKeyset map[string]map[string]struct{}

func (m addressKeyset) add(addr, key string) {
	keys, ok := m[addr]
	if !ok {
		keys = make(map[string]struct{})
		m[addr] = keys
	}
	keys[key] = struct{}{}
}

// RunPeriodicTasks is the gossip-period tick: redistribute or flush the
// changeset, collect garbage past the storage threshold, and report stats
// every few epochs.
func (t *StorageThread) RunPeriodicTasks() {
	handoffs, victims := t.collectHandoffs()

	// a deep handoff backlog ships before new gossip does
	if len(victims) >= t.cfg.RedistributeThreshold {
		t.sendGossip(handoffs)
		t.FlushGossip()
	} else {
		t.FlushGossip()
		if len(victims) > 0 {
			t.sendGossip(handoffs)
		}
	}

	for _, key := range victims {
		t.removeKey(key)
		t.met.GarbageCollected.Inc()
	}

	t.epoch++
	if t.epoch%uint64(t.cfg.StatsReportPeriods) == 0 {
		t.reportStats()
	}
	t.updateGauges()
}

// FlushGossip drains the local changeset into one batched PUT per replica
// peer.
func (t *StorageThread) FlushGossip() {
	if len(t.localChangeset) == 0 {
		return
	}

	keyset := make(addressKeyset)
	for key := range t.localChangeset {
		threads, ok := t.responsibleThreads(key)
		if !ok {
			t.logger.Error("missing key replication factor during gossip",
				zap.String("key", key))
			continue
		}
		for _, thread := range threads {
			if thread != t.cfg.Self {
				keyset.add(thread.GossipAddress(), key)
			}
		}
	}

	t.sendGossip(keyset)
	t.localChangeset = make(map[string]struct{})
	t.met.GossipRoundsTotal.Inc()
}

// sendGossip serializes the selected keys and ships one batch per peer.
func (t *StorageThread) sendGossip(keyset addressKeyset) {
	for addr, keys := range keyset {
		req := &wire.KeyRequest{Type: wire.RequestPut}
		for key := range keys {
			prop, ok := t.storedKeys[key]
			if !ok || prop.Type == lattice.TypeNone {
				continue
			}
			payload, errc := t.serializers[prop.Type].Get(key)
			if errc != wire.NoError {
				// an empty carrier has nothing worth shipping
				continue
			}
			req.AddPutTuple(key, prop.Type, payload)
		}
		if len(req.Tuples) == 0 {
			continue
		}
		t.sender.Send(addr, wire.KindGossip, req)
		t.met.GossipBatchesTotal.Inc()
		t.met.GossipKeysTotal.Add(float64(len(req.Tuples)))
	}
}

// collectHandoffs finds stored keys this thread no longer owns. The scan
// only runs once storage consumption crosses the garbage-collect threshold.
func (t *StorageThread) collectHandoffs() (addressKeyset, []string) {
	if t.storageConsumption <= t.cfg.GarbageCollectThreshold {
		return nil, nil
	}

	handoffs := make(addressKeyset)
	var victims []string
	for key := range t.storedKeys {
		if metadata.IsMetadata(key) {
			continue
		}
		threads, ok := t.responsibleThreads(key)
		if !ok {
			continue
		}
		if placement.Contains(threads, t.cfg.Self) {
			continue
		}
		for _, thread := range threads {
			handoffs.add(thread.GossipAddress(), key)
		}
		victims = append(victims, key)
	}
	return handoffs, victims
}
