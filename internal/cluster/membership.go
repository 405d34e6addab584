// Package cluster manages node membership. Join and leave events feed the
// placement rings; key gossip itself flows through the storage pipeline, not
// through memberlist.
package cluster

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/memberlist"
	"github.com/hydro-project/anna/internal/hashring"
	"github.com/hydro-project/anna/internal/metadata"
	"go.uber.org/zap"
)

// NodeMeta is the metadata a node advertises to its peers.
type NodeMeta struct {
	PublicIP  string `json:"public_ip"`
	PrivateIP string `json:"private_ip"`
	Tier      string `json:"tier"`
}

// Events receives membership changes.
type Events interface {
	NodeJoined(tier metadata.Tier, node hashring.Node)
	NodeLeft(publicIP string)
}

// Config holds membership configuration.
type Config struct {
	Enabled        bool
	BindPort       int
	SeedNodes      []string
	GossipInterval time.Duration
	ProbeTimeout   time.Duration
	ProbeInterval  time.Duration
}

// Membership wraps the memberlist cluster.
type Membership struct {
	memberlist *memberlist.Memberlist
	meta       NodeMeta
	logger     *zap.Logger
}

// New creates the membership layer and joins the seed nodes.
func New(cfg *Config, meta NodeMeta, events Events, logger *zap.Logger) (*Membership, error) {
	m := &Membership{meta: meta, logger: logger}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = meta.PublicIP
	if cfg.BindPort != 0 {
		mlConfig.BindPort = cfg.BindPort
		mlConfig.AdvertisePort = cfg.BindPort
	}
	if cfg.GossipInterval != 0 {
		mlConfig.GossipInterval = cfg.GossipInterval
	}
	if cfg.ProbeTimeout != 0 {
		mlConfig.ProbeTimeout = cfg.ProbeTimeout
	}
	if cfg.ProbeInterval != 0 {
		mlConfig.ProbeInterval = cfg.ProbeInterval
	}
	mlConfig.Delegate = m
	mlConfig.Events = &eventDelegate{events: events, logger: logger}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}
	m.memberlist = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("failed to join some seed nodes", zap.Error(err))
		}
	}
	return m, nil
}

// NodeMeta implements memberlist.Delegate.
func (m *Membership) NodeMeta(limit int) []byte {
	data, _ := json.Marshal(m.meta)
	if len(data) > limit {
		return data[:limit]
	}
	return data
}

// NotifyMsg implements memberlist.Delegate.
func (m *Membership) NotifyMsg(data []byte) {}

// GetBroadcasts implements memberlist.Delegate.
func (m *Membership) GetBroadcasts(overhead, limit int) [][]byte { return nil }

// LocalState implements memberlist.Delegate.
func (m *Membership) LocalState(join bool) []byte { return nil }

// MergeRemoteState implements memberlist.Delegate.
func (m *Membership) MergeRemoteState(buf []byte, join bool) {}

// Shutdown leaves the cluster.
func (m *Membership) Shutdown() error {
	return m.memberlist.Shutdown()
}

// eventDelegate translates memberlist events into ring updates.
type eventDelegate struct {
	events Events
	logger *zap.Logger
}

// NotifyJoin is called when a node joins.
func (d *eventDelegate) NotifyJoin(node *memberlist.Node) {
	meta, err := parseMeta(node)
	if err != nil {
		d.logger.Warn("joined node carries unparsable metadata",
			zap.String("node", node.Name), zap.Error(err))
		return
	}
	tier, err := metadata.ParseTier(meta.Tier)
	if err != nil {
		d.logger.Warn("joined node advertises unknown tier",
			zap.String("node", node.Name), zap.String("tier", meta.Tier))
		return
	}
	d.logger.Info("node joined",
		zap.String("node", node.Name),
		zap.String("tier", meta.Tier))
	d.events.NodeJoined(tier, hashring.Node{
		PublicIP:  meta.PublicIP,
		PrivateIP: meta.PrivateIP,
	})
}

// NotifyLeave is called when a node leaves.
func (d *eventDelegate) NotifyLeave(node *memberlist.Node) {
	d.logger.Info("node left", zap.String("node", node.Name))
	d.events.NodeLeft(node.Name)
}

// NotifyUpdate is called when a node's metadata changes.
func (d *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	d.logger.Debug("node updated", zap.String("node", node.Name))
}

func parseMeta(node *memberlist.Node) (NodeMeta, error) {
	var meta NodeMeta
	if err := json.Unmarshal(node.Meta, &meta); err != nil {
		return NodeMeta{}, err
	}
	return meta, nil
}
