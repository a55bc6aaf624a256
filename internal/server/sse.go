// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Agent OS Contributors

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/autonomous-tech/autonomous-agent-os-sub000/internal/agent"
	"github.com/autonomous-tech/autonomous-agent-os-sub000/pkg/types"
)

// Stream event names.
const (
	EventToolExecution = "tool_execution"
	EventResponse      = "response"
	EventError         = "error"
)

// SSEEvent represents a single server-sent event.
type SSEEvent struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// StreamError is the payload of an error event.
type StreamError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func newEvent(name string, payload any) SSEEvent {
	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal(StreamError{Error: "encoding event", Status: http.StatusInternalServerError})
		name = EventError
	}
	return SSEEvent{Event: name, Data: string(data)}
}

func (s *Server) registerSSERoute() {
	const path = "/api/v1/runtime/messages/stream"
	s.router.Post(path, s.handleMessageStream)

	// The stream needs the raw ResponseWriter, so the route is plain chi
	// and only documented in the OpenAPI spec.
	schema := s.api.OpenAPI().Components.Schemas.Schema(reflect.TypeOf(MessageRequest{}), true, "MessageRequest")
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "process-message-stream",
		Method:      http.MethodPost,
		Path:        path,
		Summary:     "Process one user turn as a stream",
		Description: "Emits a tool_execution event per tool call as each round completes, then a single response or error event. Set Accept: text/event-stream for SSE, otherwise receives a JSON array of events.",
		Tags:        []string{"runtime"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {Schema: schema},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Event stream (SSE or JSON depending on Accept header)",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{Type: "string", Description: "Server-sent event stream"},
					},
					"application/json": {
						Schema: &huma.Schema{
							Type: "object",
							Properties: map[string]*huma.Schema{
								"events": {
									Type:        "array",
									Description: "Collected events",
									Items:       &huma.Schema{Type: "object"},
								},
							},
						},
					},
				},
			},
			"400": {Description: "Malformed request body"},
			"413": {Description: "Request body too large"},
			"422": {Description: "Validation error (missing user_message)"},
			"429": {Description: "Too many open streams or rate limited"},
		},
	})
}

// maxRequestBodyBytes matches huma's default cap for the JSON routes.
const maxRequestBodyBytes = 1 << 20

func (s *Server) handleMessageStream(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(body.UserMessage) == "" {
		writeJSONError(w, http.StatusUnprocessableEntity, "user_message is required")
		return
	}

	if s.streams != nil {
		select {
		case s.streams <- struct{}{}:
			defer func() { <-s.streams }()
		default:
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusTooManyRequests, "too many concurrent streams")
			return
		}
	}

	ch := make(chan SSEEvent, s.cfg.StreamBuffer)
	go s.streamTurn(r.Context(), body.ProcessRequest(), ch)

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		writeSSE(w, ch)
		return
	}
	writeEventsJSON(w, ch)
}

// streamTurn runs a turn and reports it on events, which it closes.
func (s *Server) streamTurn(ctx context.Context, req agent.ProcessRequest, events chan<- SSEEvent) {
	defer close(events)

	send := func(ev SSEEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	req.Hooks = &agent.Hooks{
		OnToolExecution: func(rec types.ToolUseRecord) {
			send(newEvent(EventToolExecution, rec))
		},
	}

	resp, err := s.process(ctx, req)
	if err != nil {
		status := s.logFailure(ctx, "streaming message", err)
		send(newEvent(EventError, StreamError{Error: publicMessage(status, err), Status: status}))
		return
	}
	send(newEvent(EventResponse, resp))
}

func writeSSE(w http.ResponseWriter, ch <-chan SSEEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	for event := range ch {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, event.Data); err != nil {
			// Client went away; the turn's context is cancelled with the request.
			for range ch {
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeEventsJSON(w http.ResponseWriter, ch <-chan SSEEvent) {
	type event struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	events := []event{}
	for ev := range ch {
		events = append(events, event{Event: ev.Event, Data: json.RawMessage(ev.Data)})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Events []event `json:"events"`
	}{Events: events}); err != nil {
		http.Error(w, `{"error":"encoding response"}`, http.StatusInternalServerError)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
