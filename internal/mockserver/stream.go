package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// frame is one streamed event. Only the fields relevant to the frame's type
// are populated; the wire shape matches what the live service emits.
type frame struct {
	Type           string `json:"type"`
	Stage          string `json:"stage,omitempty"`
	Label          string `json:"label,omitempty"`
	Content        string `json:"content,omitempty"`
	Query          string `json:"query,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Answer         string `json:"answer,omitempty"`
	SQLQuery       string `json:"sql_query,omitempty"`
	Message        string `json:"message,omitempty"`
	Code           string `json:"code,omitempty"`
}

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, fmt.Errorf("streaming not supported")
	}
	return &sseWriter{w: w, rc: http.NewResponseController(w)}, nil
}

// writeFrame writes one data-only SSE frame and flushes it.
func (s *sseWriter) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return s.rc.Flush()
}

// handleQueryStream plays a scripted scenario back as an SSE stream,
// recording the exchange when it completes.
func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	// Probe for streaming support before committing to SSE headers so a
	// failure still goes out as a plain JSON error.
	sse, err := newSSEWriter(w)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	scenario := pick(s.config.Scenarios, req.Question)
	ctx := r.Context()

	for _, stage := range scenario.Stages {
		if ctx.Err() != nil {
			return
		}
		if err := sse.writeFrame(frame{Type: "stage", Stage: stage.Stage, Label: stage.Label}); err != nil {
			return
		}
	}

	if scenario.Error != nil {
		sse.writeFrame(frame{Type: "error", Message: scenario.Error.Message, Code: scenario.Error.Code})
		return
	}

	if scenario.SQL != "" {
		if err := sse.writeFrame(frame{Type: "sql", Query: scenario.SQL}); err != nil {
			return
		}
	}

	for _, token := range scenario.Tokens {
		if scenario.TokenDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(scenario.TokenDelay)):
			}
		}
		if ctx.Err() != nil {
			return
		}
		if err := sse.writeFrame(frame{Type: "token", Content: token}); err != nil {
			return
		}
	}

	convID := s.store.appendExchange(clientID(ctx), req.ConversationID,
		req.Question, scenario.FinalAnswer(), scenario.SQL)

	sse.writeFrame(frame{
		Type:           "done",
		ConversationID: convID,
		Answer:         scenario.FinalAnswer(),
		SQLQuery:       scenario.SQL,
	})
}
