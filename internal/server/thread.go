// Package server runs the storage-thread pipeline: a single-threaded event
// loop per thread that dispatches client requests and replica gossip against
// the lattice store. Threads share nothing; every map below is owned by
// exactly one loop.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"time"

	kverrors "github.com/hydro-project/anna/internal/errors"
	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/metadata"
	"github.com/hydro-project/anna/internal/metrics"
	"github.com/hydro-project/anna/internal/placement"
	"github.com/hydro-project/anna/internal/serializer"
	"github.com/hydro-project/anna/internal/transport"
	"github.com/hydro-project/anna/internal/validation"
	"github.com/hydro-project/anna/internal/wire"
	"go.uber.org/zap"
)

const (
	// GossipPeriod is the interval between changeset flushes.
	GossipPeriod = 10 * time.Second
	// GarbageCollectThreshold is the stored-byte count past which keys this
	// thread no longer owns are dropped.
	GarbageCollectThreshold = 10000000
	// DataRedistributeThreshold is the handoff backlog at which
	// redistribution takes priority over new gossip.
	DataRedistributeThreshold = 50
	// StatsReportPeriods is how many gossip periods pass between stats
	// reports.
	StatsReportPeriods = 3
	// KeyMonitoringWindow bounds how long key accesses are remembered.
	KeyMonitoringWindow = time.Minute

	inboxDepth = 1024
)

// PendingRequest is inbound client work deferred until the key's replication
// record resolves.
type PendingRequest struct {
	Type        wire.RequestType
	LatticeType lattice.Type
	Payload     []byte
	Addr        string
	ResponseID  string
}

// PendingGossip is inbound replica gossip deferred the same way.
type PendingGossip struct {
	LatticeType lattice.Type
	Payload     []byte
}

// Config fixes a storage thread's identity and tunables.
type Config struct {
	Self                    placement.ServerThread
	Tiers                   []metadata.Tier
	TierMetadata            map[metadata.Tier]metadata.TierMetadata
	DefaultLocalReplication uint32
	GossipPeriod            time.Duration
	GarbageCollectThreshold uint64
	RedistributeThreshold   int
	StatsReportPeriods      int
	WarmupReplication       bool
	Seed                    int64
}

// StorageThread owns one shard of the node's state and processes its inbox
// to completion, one message at a time.
type StorageThread struct {
	cfg         Config
	oracle      placement.Oracle
	sender      transport.Sender
	serializers serializer.Map
	validator   *validation.Validator
	met         *metrics.Metrics
	logger      *zap.Logger

	storedKeys         map[string]metadata.KeyProperty
	keyReplication     map[string]metadata.KeyReplication
	pendingRequests    map[string][]PendingRequest
	pendingGossip      map[string][]PendingGossip
	localChangeset     map[string]struct{}
	accessTracker      map[string][]time.Time
	accessCount        uint64
	storageConsumption uint64
	epoch              uint64
	rid                uint64
	rng                *rand.Rand

	// Inboxes, one per message kind, drained by Run.
	Requests             chan *wire.KeyRequest
	Gossip               chan *wire.KeyRequest
	ReplicationResponses chan *wire.KeyResponse
	ReplicationUpdates   chan *wire.ReplicationFactorUpdate
}

// New builds a storage thread around its owned serializer map.
func New(cfg Config, oracle placement.Oracle, sender transport.Sender,
	serializers serializer.Map, met *metrics.Metrics, logger *zap.Logger) *StorageThread {

	if cfg.GossipPeriod == 0 {
		cfg.GossipPeriod = GossipPeriod
	}
	if cfg.GarbageCollectThreshold == 0 {
		cfg.GarbageCollectThreshold = GarbageCollectThreshold
	}
	if cfg.RedistributeThreshold == 0 {
		cfg.RedistributeThreshold = DataRedistributeThreshold
	}
	if cfg.StatsReportPeriods == 0 {
		cfg.StatsReportPeriods = StatsReportPeriods
	}

	t := &StorageThread{
		cfg:         cfg,
		oracle:      oracle,
		sender:      sender,
		serializers: serializers,
		validator:   validation.NewValidator(),
		met:         met,
		logger: logger.With(
			zap.String("node", cfg.Self.PublicIP),
			zap.Uint32("thread", cfg.Self.TID),
			zap.String("tier", cfg.Self.Tier.String())),
		storedKeys:      make(map[string]metadata.KeyProperty),
		keyReplication:  make(map[string]metadata.KeyReplication),
		pendingRequests: make(map[string][]PendingRequest),
		pendingGossip:   make(map[string][]PendingGossip),
		localChangeset:  make(map[string]struct{}),
		accessTracker:   make(map[string][]time.Time),
		rng:             rand.New(rand.NewSource(cfg.Seed)),

		Requests:             make(chan *wire.KeyRequest, inboxDepth),
		Gossip:               make(chan *wire.KeyRequest, inboxDepth),
		ReplicationResponses: make(chan *wire.KeyResponse, inboxDepth),
		ReplicationUpdates:   make(chan *wire.ReplicationFactorUpdate, inboxDepth),
	}

	if cfg.WarmupReplication {
		metadata.WarmupReplicationToDefaults(t.keyReplication,
			cfg.TierMetadata[metadata.TierMemory].DefaultReplication,
			cfg.TierMetadata[metadata.TierDisk].DefaultReplication,
			cfg.DefaultLocalReplication)
	}
	return t
}

// Run drains the inboxes until the context is cancelled. All handlers run to
// completion on this goroutine; nothing else touches the thread's state.
func (t *StorageThread) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.GossipPeriod)
	defer ticker.Stop()

	t.logger.Info("storage thread running",
		zap.Duration("gossip_period", t.cfg.GossipPeriod))

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("storage thread stopping")
			return
		case req := <-t.Requests:
			t.HandleUserRequest(req)
		case g := <-t.Gossip:
			t.HandleGossip(g)
		case resp := <-t.ReplicationResponses:
			t.HandleReplicationResponse(resp)
		case upd := <-t.ReplicationUpdates:
			t.HandleReplicationUpdate(upd)
		case <-ticker.C:
			t.RunPeriodicTasks()
		}
	}
}

// Deliver decodes an inbound envelope and enqueues it on the matching inbox.
// It is the transport handler and runs off-loop; it only touches channels.
func (t *StorageThread) Deliver(env wire.Envelope) {
	switch env.Kind {
	case wire.KindRequest:
		var req wire.KeyRequest
		if err := wire.Unmarshal(env.Payload, &req); err != nil {
			t.logger.Error("failed to decode key request", zap.Error(err))
			return
		}
		t.Requests <- &req
	case wire.KindGossip:
		var req wire.KeyRequest
		if err := wire.Unmarshal(env.Payload, &req); err != nil {
			t.logger.Error("failed to decode gossip", zap.Error(err))
			return
		}
		t.Gossip <- &req
	case wire.KindResponse, wire.KindReplicationResponse:
		// the only responses a storage thread receives are
		// replication-factor responses
		var resp wire.KeyResponse
		if err := wire.Unmarshal(env.Payload, &resp); err != nil {
			t.logger.Error("failed to decode key response", zap.Error(err))
			return
		}
		t.ReplicationResponses <- &resp
	case wire.KindReplicationUpdate:
		var upd wire.ReplicationFactorUpdate
		if err := wire.Unmarshal(env.Payload, &upd); err != nil {
			t.logger.Error("failed to decode replication update", zap.Error(err))
			return
		}
		t.ReplicationUpdates <- &upd
	default:
		t.logger.Error("unknown envelope kind", zap.Uint8("kind", uint8(env.Kind)))
	}
}

// responsibleThreads resolves placement for a key against this thread's
// replication cache.
func (t *StorageThread) responsibleThreads(key string) ([]placement.ServerThread, bool) {
	return t.oracle.GetResponsibleThreads(key, metadata.IsMetadata(key),
		t.keyReplication, t.cfg.Tiers)
}

// processGet serves a GET against the stored key map and serializers.
func (t *StorageThread) processGet(key string) wire.KeyTuple {
	prop, ok := t.storedKeys[key]
	if !ok || prop.Type == lattice.TypeNone {
		t.met.KeyDNETotal.Inc()
		return wire.KeyTuple{Key: key, Error: wire.KeyDNE}
	}
	payload, errc := t.serializers[prop.Type].Get(key)
	t.met.GetRequestsTotal.Inc()
	return wire.KeyTuple{Key: key, LatticeType: prop.Type, Payload: payload, Error: errc}
}

// processPut merges a payload into the store, enforcing the per-key lattice
// type. It updates the key property book-keeping but leaves access tracking
// and changeset handling to the caller.
func (t *StorageThread) processPut(key string, lt lattice.Type, payload []byte) wire.ErrorCode {
	if lt == lattice.TypeNone {
		t.logger.Error("PUT request missing lattice type", zap.String("key", key))
		t.met.LatticeMismatches.Inc()
		return wire.LatticeMismatch
	}
	if prop, ok := t.storedKeys[key]; ok && prop.Type != lattice.TypeNone && prop.Type != lt {
		t.logger.Error("lattice type mismatch",
			zap.String("key", key),
			zap.String("query", lt.String()),
			zap.String("expected", prop.Type.String()))
		t.met.LatticeMismatches.Inc()
		return wire.LatticeMismatch
	}
	ser, ok := t.serializers[lt]
	if !ok {
		t.logger.Error("no serializer for lattice type",
			zap.String("key", key), zap.String("lattice_type", lt.String()))
		return wire.FailedSerialization
	}
	size, errc := ser.Put(key, payload)
	if errc != wire.NoError {
		return errc
	}
	previous := t.storedKeys[key].Size
	t.storedKeys[key] = metadata.KeyProperty{Size: size, Type: lt}
	t.storageConsumption += uint64(size)
	if prev := uint64(previous); prev > t.storageConsumption {
		t.storageConsumption = 0
	} else {
		t.storageConsumption -= prev
	}
	t.met.PutRequestsTotal.Inc()
	return wire.NoError
}

// trackAccess records a key touch for the stats epoch.
func (t *StorageThread) trackAccess(key string) {
	t.accessTracker[key] = append(t.accessTracker[key], time.Now())
	t.accessCount++
}

// removeKey drops a key from its serializer and the book-keeping maps.
func (t *StorageThread) removeKey(key string) {
	prop, ok := t.storedKeys[key]
	if !ok {
		return
	}
	if prop.Type != lattice.TypeNone {
		t.serializers[prop.Type].Remove(key)
	}
	if size := uint64(prop.Size); size > t.storageConsumption {
		t.storageConsumption = 0
	} else {
		t.storageConsumption -= uint64(prop.Size)
	}
	delete(t.storedKeys, key)
	delete(t.accessTracker, key)
	delete(t.localChangeset, key)
}

// wireCodeOf maps an internal error onto the response taxonomy.
func wireCodeOf(err error) wire.ErrorCode {
	var se *kverrors.StorageError
	if stderrors.As(err, &se) {
		return se.WireCode()
	}
	return wire.FailedSerialization
}

// nextResponseID labels a self-issued request.
func (t *StorageThread) nextResponseID() string {
	t.rid++
	return fmt.Sprintf("%s:%d", t.cfg.Self.ID(), t.rid)
}

// issueReplicationRequest fetches the replication record for key from the
// metadata key-space. The target thread among those responsible for the
// metadata key is drawn by the seeded RNG. A WRONG_THREAD retry draws again
// from the same list, so it can land on the thread that answered before.
func (t *StorageThread) issueReplicationRequest(key string) {
	metaKey := metadata.ReplicationKey(key)
	req := wire.KeyRequest{
		Type:            wire.RequestGet,
		ResponseAddress: t.cfg.Self.ReplicationResponseAddress(),
		ResponseID:      t.nextResponseID(),
	}
	req.AddGetTuple(metaKey, lattice.TypeLWW)

	threads, ok := t.oracle.GetResponsibleThreads(metaKey, true,
		t.keyReplication, t.cfg.Tiers)
	if !ok || len(threads) == 0 {
		t.logger.Error("no threads responsible for metadata key",
			zap.String("key", metaKey))
		return
	}
	target := threads[t.rng.Intn(len(threads))]
	t.sender.Send(target.RequestAddress(), wire.KindRequest, req)
	t.met.ReplicationFetches.Inc()
}

// updateGauges refreshes the state-size metrics after a handler runs.
func (t *StorageThread) updateGauges() {
	pendingReq := 0
	for _, reqs := range t.pendingRequests {
		pendingReq += len(reqs)
	}
	pendingGos := 0
	for _, gs := range t.pendingGossip {
		pendingGos += len(gs)
	}
	t.met.PendingRequests.Set(float64(pendingReq))
	t.met.PendingGossip.Set(float64(pendingGos))
	t.met.StoredKeys.Set(float64(len(t.storedKeys)))
	t.met.StorageConsumption.Set(float64(t.storageConsumption))
}
