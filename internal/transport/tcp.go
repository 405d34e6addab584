package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hydro-project/anna/internal/util/workerpool"
	"github.com/hydro-project/anna/internal/wire"
	"go.uber.org/zap"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	maxFrameSize = 64 * 1024 * 1024
)

// conn is a cached connection with its own write lock, so pool workers
// cannot interleave frames bound for the same peer.
type conn struct {
	mu  sync.Mutex
	raw net.Conn
}

// TCPSender sends length-prefixed msgpack envelopes over cached
// connections. Sends run on a bounded worker pool; a failed send drops the
// cached connection and retries once on a fresh dial.
type TCPSender struct {
	mu     sync.Mutex
	conns  map[string]*conn
	pool   *workerpool.WorkerPool
	logger *zap.Logger
}

// NewTCPSender creates a sender with its own send pool.
func NewTCPSender(logger *zap.Logger) *TCPSender {
	return &TCPSender{
		conns: make(map[string]*conn),
		pool: workerpool.New(&workerpool.Config{
			Name:       "transport-send",
			MaxWorkers: 8,
			QueueSize:  1024,
			Logger:     logger,
		}),
		logger: logger,
	}
}

// Send implements Sender.
func (s *TCPSender) Send(addr string, kind wire.Kind, message interface{}) {
	payload, err := wire.Marshal(message)
	if err != nil {
		s.logger.Error("failed to encode outbound message",
			zap.String("addr", addr), zap.Error(err))
		return
	}
	frame, err := wire.Marshal(wire.Envelope{Kind: kind, Payload: payload})
	if err != nil {
		s.logger.Error("failed to encode envelope",
			zap.String("addr", addr), zap.Error(err))
		return
	}

	submitted := s.pool.TrySubmit(workerpool.Task{
		ID: fmt.Sprintf("send-%s", addr),
		Fn: func(context.Context) error {
			return s.deliver(addr, frame)
		},
	})
	if !submitted {
		s.logger.Warn("send queue full, delivering inline",
			zap.String("addr", addr))
		if err := s.deliver(addr, frame); err != nil {
			s.logger.Error("failed to deliver message",
				zap.String("addr", addr), zap.Error(err))
		}
	}
}

func (s *TCPSender) deliver(addr string, frame []byte) error {
	if err := s.writeFrame(addr, frame); err == nil {
		return nil
	}
	// stale cached connection; retry once on a fresh dial
	s.dropConn(addr)
	return s.writeFrame(addr, frame)
}

func (s *TCPSender) writeFrame(addr string, frame []byte) error {
	c, err := s.getConn(addr)
	if err != nil {
		return err
	}
	buf := make([]byte, 4+len(frame))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(frame)))
	copy(buf[4:], frame)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.raw.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = c.raw.Write(buf)
	return err
}

func (s *TCPSender) getConn(addr string) (*conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[addr]; ok {
		return c, nil
	}
	raw, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	c := &conn{raw: raw}
	s.conns[addr] = c
	return c, nil
}

func (s *TCPSender) dropConn(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conns[addr]; ok {
		c.raw.Close()
		delete(s.conns, addr)
	}
}

// Close stops the send pool and closes every cached connection.
func (s *TCPSender) Close() {
	s.pool.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, c := range s.conns {
		c.raw.Close()
		delete(s.conns, addr)
	}
}

// Server accepts envelope frames on one address and hands them to a
// handler. Each storage thread runs one server on its own port.
type Server struct {
	addr     string
	handler  Handler
	logger   *zap.Logger
	listener net.Listener
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewServer creates a server for the given listen address.
func NewServer(addr string, handler Handler, logger *zap.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

// Start begins listening and accepting in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.logger.Info("transport listening", zap.String("addr", s.addr))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopped:
				return
			default:
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go s.readLoop(conn)
	}
}

func (s *Server) readLoop(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	var header [4]byte
	for {
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			if err != io.EOF {
				select {
				case <-s.stopped:
				default:
					s.logger.Debug("connection read failed", zap.Error(err))
				}
			}
			return
		}
		size := binary.BigEndian.Uint32(header[:])
		if size > maxFrameSize {
			s.logger.Error("oversized frame dropped, closing connection",
				zap.Uint32("size", size))
			return
		}
		frame := make([]byte, size)
		if _, err := io.ReadFull(conn, frame); err != nil {
			return
		}
		var env wire.Envelope
		if err := wire.Unmarshal(frame, &env); err != nil {
			s.logger.Error("failed to decode envelope", zap.Error(err))
			continue
		}
		s.handler(env)
	}
}

// Close stops accepting and waits for connection readers to finish.
func (s *Server) Close() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		if s.listener != nil {
			s.listener.Close()
		}
	})
	s.wg.Wait()
}
