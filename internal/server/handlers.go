package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/yousuf/tracemap/internal/logging"
	"github.com/yousuf/tracemap/internal/sourcemap"
)

// ErrorReport is the body of a browser error report.
type ErrorReport struct {
	Message string `json:"message"`
	URL     string `json:"url"`
	Stack   string `json:"stack"`
}

// LogReport is the body of a batch of browser log messages.
type LogReport struct {
	Level struct {
		Name string `json:"name"`
	} `json:"level"`
	// Message is an array or object of messages; a single value is also accepted
	Message json.RawMessage `json:"message"`
}

// Ack acknowledges a report.
type Ack struct {
	Logged bool   `json:"logged"`
	ID     string `json:"id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	var report ErrorReport
	if err := decodeBody(w, r, &report); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	trace := sourcemap.FormatStackTrace(s.resolver.Resolve(report.Stack))
	id := uuid.NewString()

	logging.WithRequest(r.Context(), s.log).Error(
		fmt.Sprintf("%s [%s]\n%s", report.Message, report.URL, trace),
		"report_id", id,
	)

	respondJSON(w, http.StatusOK, Ack{Logged: true, ID: id})
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	if s.hideLogs {
		respondJSON(w, http.StatusOK, Ack{Logged: false})
		return
	}

	var report LogReport
	if err := decodeBody(w, r, &report); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	messages, err := splitMessages(report.Message)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	respondJSON(w, http.StatusOK, Ack{Logged: true})

	level := logging.ParseLevel(report.Level.Name)
	logger := logging.WithRequest(r.Context(), s.log).With("source", "client")
	for _, msg := range messages {
		logger.Log(r.Context(), level, msg)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"maps":   len(s.resolver.Keys()),
	})
}

func (s *Server) handleListMaps(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"maps": s.resolver.Keys()})
}

// splitMessages flattens a message array or object into log lines. String
// values are logged as-is; anything else as its JSON text.
func splitMessages(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, messageText(item))
		}
		return out, nil
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err == nil {
		keys := make([]string, 0, len(object))
		for key := range object {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		out := make([]string, 0, len(keys))
		for _, key := range keys {
			out = append(out, messageText(object[key]))
		}
		return out, nil
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid message payload")
	}
	return []string{messageText(raw)}, nil
}

func messageText(raw json.RawMessage) string {
	if len(raw) > 0 && raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			return text
		}
	}
	return string(raw)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// respondError logs err with request context and writes it as JSON.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	logging.WithRequest(r.Context(), s.log).Warn("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
	)
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
