package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/couponrelay/internal/store"
)

type connectedEvent struct {
	RequestID    string `json:"requestId"`
	ConnectionID string `json:"connectionId"`
	Destination  string `json:"destination"`
}

// handleStream is the client side of the relay: a Server-Sent Events stream
// for one request id.
//
// The handler subscribes to the result destination before registering the
// connection, so a result flushed by the registration itself is not missed.
// The stream ends after the result event.
//
// Writes use deadlines so a slow or vanished client cannot pin the handler.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}
	requestID := strings.TrimSpace(r.PathValue("requestId"))
	if requestID == "" {
		writeError(w, s.logger, http.StatusBadRequest, store.ErrEmptyRequestID.Error())
		return
	}

	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	write := func(frame string) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}
		if _, err := fmt.Fprint(w, frame); err != nil {
			return err
		}
		return rc.Flush()
	}

	writeEvent := func(event string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return write(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
	}

	destination := s.relay.Destination(kind, requestID)
	ch := s.streams.Subscribe(destination)
	defer s.streams.Unsubscribe(destination, ch)

	marker, err := s.relay.RegisterConnection(r.Context(), requestID)
	if err != nil {
		writeError(w, s.logger, statusFor(err), err.Error())
		return
	}
	if s.releaseOnDisconnect {
		defer s.relay.Release(marker)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if err := writeEvent("connected", connectedEvent{
		RequestID:    requestID,
		ConnectionID: marker.ConnectionID,
		Destination:  destination,
	}); err != nil {
		return
	}

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case result, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent("result", result); err != nil {
				s.logger.Warn("failed to write result to stream",
					"request_id", requestID,
					"error", err,
				)
			}
			return

		case <-keepAlive.C:
			if err := write(": keep-alive\n\n"); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
