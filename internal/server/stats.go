package server

import (
	"time"

	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/metadata"
	"github.com/hydro-project/anna/internal/wire"
	"go.uber.org/zap"
)

// reportStats publishes this thread's utilization, key access counts and key
// sizes into the metadata key-space, as LWW puts through the ordinary
// request pipeline. The access tracker is pruned to the monitoring window on
// the way.
func (t *StorageThread) reportStats() {
	now := time.Now()
	t.pruneAccessTracker(now)

	var capacity uint64
	if tm, ok := t.cfg.TierMetadata[t.cfg.Self.Tier]; ok {
		capacity = tm.NodeCapacity
	}
	occupancy := 0.0
	if capacity > 0 {
		occupancy = float64(t.storageConsumption) / float64(capacity)
	}

	stats := wire.ServerThreadStatistics{
		StorageConsumption: t.storageConsumption,
		Occupancy:          occupancy,
		Epoch:              t.epoch,
		AccessCount:        t.accessCount,
	}

	access := wire.KeyAccessData{}
	for key, touches := range t.accessTracker {
		access.Keys = append(access.Keys, wire.KeyCount{
			Key:   key,
			Count: uint64(len(touches)),
		})
	}

	sizes := wire.KeySizeData{}
	for key, prop := range t.storedKeys {
		if metadata.IsMetadata(key) {
			continue
		}
		sizes.Sizes = append(sizes.Sizes, wire.KeySizeEntry{
			Key:  key,
			Size: uint64(prop.Size),
		})
	}

	ts := uint64(now.UnixMilli())
	t.putMetadata(metadata.KindStats, stats, ts)
	t.putMetadata(metadata.KindAccess, access, ts)
	t.putMetadata(metadata.KindSize, sizes, ts)

	t.accessCount = 0
}

// putMetadata wraps a report as an LWW payload and PUTs it at the
// responsible metadata thread with no reply address.
func (t *StorageThread) putMetadata(kind string, report interface{}, ts uint64) {
	key := metadata.ThreadKey(kind, t.cfg.Self.PublicIP, t.cfg.Self.PrivateIP,
		t.cfg.Self.TID, t.cfg.Self.Tier)

	inner, err := wire.Marshal(report)
	if err != nil {
		t.logger.Error("failed to encode stats report",
			zap.String("kind", kind), zap.Error(err))
		return
	}
	payload, err := wire.SerializeLWW(lattice.NewLWW(ts, string(inner)))
	if err != nil {
		t.logger.Error("failed to encode stats payload",
			zap.String("kind", kind), zap.Error(err))
		return
	}

	threads, ok := t.oracle.GetResponsibleThreads(key, true,
		t.keyReplication, t.cfg.Tiers)
	if !ok || len(threads) == 0 {
		t.logger.Error("no threads responsible for stats key",
			zap.String("key", key))
		return
	}

	req := wire.KeyRequest{Type: wire.RequestPut}
	req.AddPutTuple(key, lattice.TypeLWW, payload)
	target := threads[t.rng.Intn(len(threads))]
	t.sender.Send(target.RequestAddress(), wire.KindRequest, req)
}

// pruneAccessTracker drops touches older than the monitoring window.
func (t *StorageThread) pruneAccessTracker(now time.Time) {
	cutoff := now.Add(-KeyMonitoringWindow)
	for key, touches := range t.accessTracker {
		kept := touches[:0]
		for _, at := range touches {
			if at.After(cutoff) {
				kept = append(kept, at)
			}
		}
		if len(kept) == 0 {
			delete(t.accessTracker, key)
			continue
		}
		t.accessTracker[key] = kept
	}
}
