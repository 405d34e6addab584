// Package hashring provides the consistent-hash placement oracle: a global
// ring of nodes per tier and a local ring of thread slots within a node, both
// with virtual nodes for balance.
package hashring

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/hydro-project/anna/internal/metadata"
	"github.com/hydro-project/anna/internal/placement"
)

// DefaultVirtualNodes is the vnode count per ring member.
const DefaultVirtualNodes = 150

// hashBytes maps arbitrary bytes onto the ring space.
func hashBytes(b []byte) uint64 {
	sum := sha256.Sum256(b)
	return binary.BigEndian.Uint64(sum[:8])
}

// ring is a sorted consistent-hash ring over opaque member names.
type ring struct {
	points    []uint64
	pointMap  map[uint64]string // point -> vnode id
	memberVNs map[string][]uint64
}

func newRing() *ring {
	return &ring{
		pointMap:  make(map[uint64]string),
		memberVNs: make(map[string][]uint64),
	}
}

func (r *ring) add(member string, virtualNodes int) {
	if _, ok := r.memberVNs[member]; ok {
		return
	}
	vns := make([]uint64, 0, virtualNodes)
	for i := 0; i < virtualNodes; i++ {
		vnodeID := fmt.Sprintf("%s-vnode-%d", member, i)
		point := hashBytes([]byte(vnodeID))
		r.points = append(r.points, point)
		r.pointMap[point] = member
		vns = append(vns, point)
	}
	r.memberVNs[member] = vns
	sort.Slice(r.points, func(i, j int) bool { return r.points[i] < r.points[j] })
}

func (r *ring) remove(member string) {
	vns, ok := r.memberVNs[member]
	if !ok {
		return
	}
	drop := make(map[uint64]bool, len(vns))
	for _, point := range vns {
		drop[point] = true
		delete(r.pointMap, point)
	}
	kept := r.points[:0]
	for _, point := range r.points {
		if !drop[point] {
			kept = append(kept, point)
		}
	}
	r.points = kept
	delete(r.memberVNs, member)
}

// walk returns up to count distinct members clockwise from keyHash.
func (r *ring) walk(keyHash uint64, count int) []string {
	if len(r.points) == 0 || count == 0 {
		return nil
	}
	idx := sort.Search(len(r.points), func(i int) bool {
		return r.points[i] >= keyHash
	})
	if idx >= len(r.points) {
		idx = 0
	}
	members := make([]string, 0, count)
	seen := make(map[string]bool, count)
	for i := 0; i < len(r.points) && len(members) < count; i++ {
		member := r.pointMap[r.points[(idx+i)%len(r.points)]]
		if !seen[member] {
			members = append(members, member)
			seen[member] = true
		}
	}
	return members
}

// Node is one storage node on the global ring.
type Node struct {
	PublicIP  string
	PrivateIP string
}

// RingOracle implements placement.Oracle over per-tier global rings and a
// local ring of thread slots. Membership events mutate the rings; lookups
// take the read lock.
type RingOracle struct {
	mu           sync.RWMutex
	global       map[metadata.Tier]*ring
	local        map[metadata.Tier]*ring
	nodes        map[string]Node // keyed by public IP
	tiers        map[metadata.Tier]metadata.TierMetadata
	virtualNodes int
}

// New builds an oracle for the given tier topology.
func New(tiers map[metadata.Tier]metadata.TierMetadata, virtualNodes int) *RingOracle {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	o := &RingOracle{
		global:       make(map[metadata.Tier]*ring),
		local:        make(map[metadata.Tier]*ring),
		nodes:        make(map[string]Node),
		tiers:        tiers,
		virtualNodes: virtualNodes,
	}
	for _, tier := range metadata.AllTiers {
		o.global[tier] = newRing()
		local := newRing()
		for tid := uint32(0); tid < tiers[tier].ThreadNumber; tid++ {
			local.add(fmt.Sprint(tid), virtualNodes)
		}
		o.local[tier] = local
	}
	return o
}

// AddNode joins a node to a tier's global ring.
func (o *RingOracle) AddNode(tier metadata.Tier, node Node) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodes[node.PublicIP] = node
	if r, ok := o.global[tier]; ok {
		r.add(node.PublicIP, o.virtualNodes)
	}
}

// RemoveNode drops a node from every global ring.
func (o *RingOracle) RemoveNode(publicIP string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.nodes, publicIP)
	for _, r := range o.global {
		r.remove(publicIP)
	}
}

// GetResponsibleThreads resolves placement for a key. Metadata keys use the
// fixed metadata replication factors on the memory tier; data keys use the
// caller's replication record and return ok=false when it is missing.
func (o *RingOracle) GetResponsibleThreads(key string, isMetadata bool,
	replication map[string]metadata.KeyReplication,
	tiers []metadata.Tier) ([]placement.ServerThread, bool) {

	o.mu.RLock()
	defer o.mu.RUnlock()

	keyHash := hashBytes([]byte(key))

	if isMetadata {
		return o.threadsFor(keyHash, metadata.TierMemory,
			metadata.MetadataReplicationFactor,
			metadata.MetadataLocalReplicationFactor), true
	}

	rec, ok := replication[key]
	if !ok {
		return nil, false
	}

	var threads []placement.ServerThread
	for _, tier := range tiers {
		threads = append(threads,
			o.threadsFor(keyHash, tier, rec.Global[tier], rec.Local[tier])...)
	}
	return threads, true
}

func (o *RingOracle) threadsFor(keyHash uint64, tier metadata.Tier,
	globalRep, localRep uint32) []placement.ServerThread {

	members := o.global[tier].walk(keyHash, int(globalRep))
	tids := o.local[tier].walk(keyHash, int(localRep))

	threads := make([]placement.ServerThread, 0, len(members)*len(tids))
	for _, member := range members {
		node := o.nodes[member]
		for _, tidName := range tids {
			tid, err := strconv.ParseUint(tidName, 10, 32)
			if err != nil {
				continue
			}
			threads = append(threads, placement.ServerThread{
				PublicIP:  node.PublicIP,
				PrivateIP: node.PrivateIP,
				TID:       uint32(tid),
				Tier:      tier,
			})
		}
	}
	return threads
}
