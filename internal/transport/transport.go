// Package transport moves envelopes between threads and nodes. The pipeline
// depends only on the Sender interface; the TCP implementation carries the
// frames and tests substitute an in-memory recorder.
package transport

import "github.com/hydro-project/anna/internal/wire"

// Sender delivers a message to a peer address. Delivery is asynchronous and
// best-effort; failures are logged, never surfaced to handlers.
type Sender interface {
	Send(addr string, kind wire.Kind, message interface{})
}

// Handler consumes inbound envelopes on the receiving side.
type Handler func(env wire.Envelope)
