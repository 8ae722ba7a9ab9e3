package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/bioplatforms/bpaworkflow/internal/events"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
)

const (
	streamWriteWait = 10 * time.Second
	// streamRefresh re-reads the job in case the hub dropped an event for a
	// slow subscriber.
	streamRefresh = 5 * time.Second
)

// handleStream handles GET /private/api/v1/status/{id}/stream. It sends the
// current status, then a fresh status after every change, and closes the
// socket once the job is complete or has failed.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.lookupStatus(w, r, id); !ok {
		return
	}

	ch, cancel := s.events.Subscribe(id)
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "submission_id", id, "error", err)
		return
	}
	defer conn.Close()

	// Control frames are only processed while reading.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	var (
		last        []byte
		closeReason string
	)
	push := func() (done bool, err error) {
		st, err := s.jobs.Status(ctx, id)
		if err != nil {
			return false, err
		}
		payload, err := json.Marshal(st)
		if err != nil {
			return false, err
		}
		if !bytes.Equal(payload, last) {
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return false, err
			}
			last = payload
		}
		reason, done := streamEnd(st)
		if done {
			closeReason = reason
		}
		return done, nil
	}

	refresh := time.NewTicker(streamRefresh)
	defer refresh.Stop()

	for {
		done, err := push()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("status stream ended", "submission_id", id, "error", err)
			}
			return
		}
		if done {
			closeStream(conn, closeReason)
			return
		}
		if !waitForChange(ctx, ch, gone, refresh.C) {
			return
		}
	}
}

// waitForChange blocks until an event arrives on the job's subscription or
// the refresh ticker fires. It returns false when the stream should end.
func waitForChange(ctx context.Context, ch <-chan events.Event, gone <-chan struct{}, tick <-chan time.Time) bool {
	select {
	case <-ctx.Done():
		return false
	case <-gone:
		return false
	case _, ok := <-ch:
		return ok
	case <-tick:
		return true
	}
}

// streamEnd reports whether st is terminal. A staging failure never reaches
// the complete stage, so it ends the stream too.
func streamEnd(st jobstate.Status) (string, bool) {
	switch {
	case st.Complete:
		return "submission complete", true
	case st.Error != "":
		return "submission failed", true
	}
	return "", false
}

func closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(streamWriteWait))
}
