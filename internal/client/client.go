// Package client is the node-facing KVS client used by the CLI: it sends
// KeyRequests at storage threads and listens for the matching KeyResponses.
package client

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/hydro-project/anna/internal/lattice"
	"github.com/hydro-project/anna/internal/transport"
	"github.com/hydro-project/anna/internal/wire"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

// Client issues requests against a set of storage addresses and collects the
// responses on its own listener.
type Client struct {
	targets      []string
	sender       *transport.TCPSender
	server       *transport.Server
	responseAddr string
	inbox        chan *wire.KeyResponse
	rid          uint64
	timeout      time.Duration
	rng          *rand.Rand
	logger       *zap.Logger
}

// New creates a client advertising advertiseIP for responses. The response
// listener binds an ephemeral port.
func New(targets []string, advertiseIP string, logger *zap.Logger) (*Client, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("no target addresses configured")
	}
	c := &Client{
		targets: targets,
		sender:  transport.NewTCPSender(logger),
		inbox:   make(chan *wire.KeyResponse, 64),
		timeout: defaultTimeout,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger,
	}

	c.server = transport.NewServer(":0", c.deliver, logger)
	if err := c.server.Start(); err != nil {
		return nil, err
	}
	_, port, err := net.SplitHostPort(c.server.Addr())
	if err != nil {
		c.server.Close()
		return nil, fmt.Errorf("failed to resolve response port: %w", err)
	}
	c.responseAddr = net.JoinHostPort(advertiseIP, port)
	return c, nil
}

func (c *Client) deliver(env wire.Envelope) {
	if env.Kind != wire.KindResponse {
		return
	}
	var resp wire.KeyResponse
	if err := wire.Unmarshal(env.Payload, &resp); err != nil {
		c.logger.Error("failed to decode response", zap.Error(err))
		return
	}
	select {
	case c.inbox <- &resp:
	default:
		c.logger.Warn("response inbox full, dropping response",
			zap.String("response_id", resp.ResponseID))
	}
}

// Get fetches one key. The returned tuple carries the lattice type, payload
// and error code.
func (c *Client) Get(key string) (wire.KeyTuple, error) {
	req := wire.KeyRequest{Type: wire.RequestGet}
	req.AddGetTuple(key, lattice.TypeNone)
	return c.do(req, key)
}

// Put merges one payload into a key.
func (c *Client) Put(key string, lt lattice.Type, payload []byte) (wire.KeyTuple, error) {
	req := wire.KeyRequest{Type: wire.RequestPut}
	req.AddPutTuple(key, lt, payload)
	return c.do(req, key)
}

// do sends the request at a random target and waits for the matching
// response, retrying against another thread on WRONG_THREAD.
func (c *Client) do(req wire.KeyRequest, key string) (wire.KeyTuple, error) {
	const maxAttempts = 5
	excluded := ""

	for attempt := 0; attempt < maxAttempts; attempt++ {
		target := c.pickTarget(excluded)
		c.rid++
		req.ResponseAddress = c.responseAddr
		req.ResponseID = fmt.Sprintf("cli:%d", c.rid)

		c.sender.Send(target, wire.KindRequest, req)

		resp, err := c.await(req.ResponseID)
		if err != nil {
			return wire.KeyTuple{}, err
		}
		for _, tuple := range resp.Tuples {
			if tuple.Key != key {
				continue
			}
			if tuple.Error == wire.WrongThread {
				excluded = target
				break
			}
			return tuple, nil
		}
	}
	return wire.KeyTuple{}, fmt.Errorf("no thread accepted the request for %s", key)
}

func (c *Client) pickTarget(excluded string) string {
	target := c.targets[c.rng.Intn(len(c.targets))]
	if target == excluded && len(c.targets) > 1 {
		for target == excluded {
			target = c.targets[c.rng.Intn(len(c.targets))]
		}
	}
	return target
}

func (c *Client) await(responseID string) (*wire.KeyResponse, error) {
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	for {
		select {
		case resp := <-c.inbox:
			if resp.ResponseID == responseID {
				return resp, nil
			}
			// stale response from an earlier attempt
		case <-deadline.C:
			return nil, fmt.Errorf("timed out waiting for response %s", responseID)
		}
	}
}

// Close tears down the listener and cached connections.
func (c *Client) Close() {
	c.server.Close()
	c.sender.Close()
}
