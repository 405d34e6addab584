package transport_test

import (
	"testing"
	"time"

	"github.com/hydro-project/anna/internal/transport"
	"github.com/hydro-project/anna/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendDeliversEnvelope(t *testing.T) {
	received := make(chan wire.Envelope, 8)
	srv := transport.NewServer("127.0.0.1:0", func(env wire.Envelope) {
		received <- env
	}, zap.NewNop())
	require.NoError(t, srv.Start())
	defer srv.Close()

	sender := transport.NewTCPSender(zap.NewNop())
	defer sender.Close()

	req := wire.KeyRequest{Type: wire.RequestGet, ResponseID: "rt"}
	req.AddGetTuple("k", 0)
	sender.Send(srv.Addr(), wire.KindRequest, req)

	select {
	case env := <-received:
		assert.Equal(t, wire.KindRequest, env.Kind)
		var decoded wire.KeyRequest
		require.NoError(t, wire.Unmarshal(env.Payload, &decoded))
		assert.Equal(t, "rt", decoded.ResponseID)
		require.Len(t, decoded.Tuples, 1)
		assert.Equal(t, "k", decoded.Tuples[0].Key)
	case <-time.After(5 * time.Second):
		t.Fatal("envelope never arrived")
	}
}

func TestSendReusesConnection(t *testing.T) {
	received := make(chan wire.Envelope, 8)
	srv := transport.NewServer("127.0.0.1:0", func(env wire.Envelope) {
		received <- env
	}, zap.NewNop())
	require.NoError(t, srv.Start())
	defer srv.Close()

	sender := transport.NewTCPSender(zap.NewNop())
	defer sender.Close()

	for i := 0; i < 5; i++ {
		sender.Send(srv.Addr(), wire.KindGossip, wire.KeyRequest{Type: wire.RequestPut})
	}
	for i := 0; i < 5; i++ {
		select {
		case env := <-received:
			assert.Equal(t, wire.KindGossip, env.Kind)
		case <-time.After(5 * time.Second):
			t.Fatalf("envelope %d never arrived", i)
		}
	}
}

func TestSendToDeadPeerIsSwallowed(t *testing.T) {
	sender := transport.NewTCPSender(zap.NewNop())
	defer sender.Close()

	// nothing listens here; the send must not panic or block forever
	sender.Send("127.0.0.1:1", wire.KindRequest, wire.KeyRequest{})
	time.Sleep(50 * time.Millisecond)
}
