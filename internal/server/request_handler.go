package server

import (
	"time"

	"github.com/hydro-project/anna/internal/placement"
	"github.com/hydro-project/anna/internal/wire"
	"go.uber.org/zap"
)

// HandleUserRequest dispatches one client KeyRequest. Tuples whose
// replication record is unknown are parked on the pending-request map and a
// metadata fetch is issued; everything else is answered immediately.
func (t *StorageThread) HandleUserRequest(req *wire.KeyRequest) {
	start := time.Now()
	response := wire.KeyResponse{Type: req.Type, ResponseID: req.ResponseID}

	for _, tuple := range req.Tuples {
		key := tuple.Key

		if err := t.validator.ValidateKey(key); err != nil {
			t.logger.Error("rejecting request tuple", zap.Error(err))
			response.Tuples = append(response.Tuples,
				wire.KeyTuple{Key: key, Error: wireCodeOf(err)})
			continue
		}
		if req.Type == wire.RequestPut {
			if err := t.validator.ValidatePut(key, tuple.LatticeType, tuple.Payload); err != nil {
				t.logger.Error("rejecting put tuple", zap.Error(err))
				response.Tuples = append(response.Tuples,
					wire.KeyTuple{Key: key, Error: wireCodeOf(err)})
				continue
			}
		}

		threads, ok := t.responsibleThreads(key)
		if !ok {
			t.pendingRequests[key] = append(t.pendingRequests[key], PendingRequest{
				Type:        req.Type,
				LatticeType: tuple.LatticeType,
				Payload:     tuple.Payload,
				Addr:        req.ResponseAddress,
				ResponseID:  req.ResponseID,
			})
			t.issueReplicationRequest(key)
			continue
		}

		if !placement.Contains(threads, t.cfg.Self) {
			t.met.WrongThreadTotal.Inc()
			response.Tuples = append(response.Tuples,
				wire.KeyTuple{Key: key, Error: wire.WrongThread})
			continue
		}

		switch req.Type {
		case wire.RequestGet:
			response.Tuples = append(response.Tuples, t.processGet(key))
			t.trackAccess(key)
		case wire.RequestPut:
			errc := t.processPut(key, tuple.LatticeType, tuple.Payload)
			if errc == wire.NoError {
				t.localChangeset[key] = struct{}{}
			}
			t.trackAccess(key)
			response.Tuples = append(response.Tuples, wire.KeyTuple{
				Key:         key,
				LatticeType: tuple.LatticeType,
				Error:       errc,
			})
		default:
			t.logger.Error("unknown request type",
				zap.Uint8("type", uint8(req.Type)))
		}
	}

	if req.ResponseAddress != "" && len(response.Tuples) > 0 {
		t.sender.Send(req.ResponseAddress, wire.KindResponse, response)
	}
	t.met.RequestDuration.Observe(time.Since(start).Seconds())
	t.updateGauges()
}
