package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/conversation"
	"github.com/askdb/askdb/internal/database"
	"github.com/askdb/askdb/internal/pipeline"
	"github.com/askdb/askdb/internal/session"
)

const maxRequestBodyBytes = 1 << 20

type sessionView struct {
	SessionID  string               `json:"session_id"`
	CreatedAt  time.Time            `json:"created_at"`
	Connected  bool                 `json:"connected"`
	Database   *database.Descriptor `json:"database,omitempty"`
	Transcript []conversation.Turn  `json:"transcript"`
}

type connectRequest struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

type messageRequest struct {
	Question string `json:"question"`
}

type messageResponse struct {
	Answer     string              `json:"answer"`
	SQL        string              `json:"sql,omitempty"`
	Error      string              `json:"error,omitempty"`
	Transcript []conversation.Turn `json:"transcript"`
}

func handleCreateSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return
	}
	entry := deps.Sessions.Create(auth.PrincipalFromContext(r.Context()))
	writeJSON(w, http.StatusCreated, viewOf(entry))
}

func handleGetSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	entry, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(entry))
}

func handleDeleteSession(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return
	}
	id := r.PathValue("id")
	if err := deps.Sessions.Delete(id, auth.PrincipalFromContext(r.Context())); err != nil {
		writeSessionNotFound(w, r, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleConnect(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Connector == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CONNECT_NOT_CONFIGURED", "database connector is not configured", false, nil)
		return
	}
	entry, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}

	var req connectRequest
	if !decodeBody(w, r, &req, "invalid connect request body") {
		return
	}
	descriptor := req.descriptor(deps.DefaultDatabase)

	if err := entry.Session.Connect(r.Context(), deps.Connector, descriptor); err != nil {
		if errors.Is(err, pipeline.ErrSessionClosed) {
			writeSessionNotFound(w, r, entry.ID)
			return
		}
		if deps.Logger != nil {
			deps.Logger.WarnContext(r.Context(), "database connect failed",
				"session_id", entry.ID,
				"driver", descriptor.Driver,
				"target", descriptor.Target(),
				"error", err,
			)
		}
		writeError(r.Context(), w, http.StatusBadGateway, "CONNECT_FAILED", "failed to connect to database", true, map[string]any{
			"details":  err.Error(),
			"database": descriptor.Redacted(),
		})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(entry))
}

func handleMessage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	entry, ok := lookupSession(deps, w, r)
	if !ok {
		return
	}

	var req messageRequest
	if !decodeBody(w, r, &req, "invalid message request body") {
		return
	}

	ctx := r.Context()
	if deps.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deps.TurnTimeout)
		defer cancel()
	}
	reply, err := entry.Session.Ask(ctx, req.Question)
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	case errors.Is(err, pipeline.ErrSessionClosed):
		writeSessionNotFound(w, r, entry.ID)
		return
	case err != nil:
		writeError(r.Context(), w, http.StatusInternalServerError, "ASK_FAILED", err.Error(), true, nil)
		return
	}

	response := messageResponse{
		Answer:     reply.Answer,
		SQL:        reply.SQL,
		Transcript: entry.Session.Transcript(),
	}
	if reply.Err != nil {
		response.Error = reply.Err.Error()
	}
	writeJSON(w, http.StatusOK, response)
}

func lookupSession(deps Dependencies, w http.ResponseWriter, r *http.Request) (*session.Entry, bool) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SESSIONS_NOT_CONFIGURED", "session store is not configured", false, nil)
		return nil, false
	}
	id := r.PathValue("id")
	entry, err := deps.Sessions.Get(id, auth.PrincipalFromContext(r.Context()))
	if err != nil {
		writeSessionNotFound(w, r, id)
		return nil, false
	}
	return entry, true
}

func writeSessionNotFound(w http.ResponseWriter, r *http.Request, id string) {
	writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": id})
}

// decodeBody accepts an empty body as the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, message string) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", message, false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

// descriptor falls back to the server default when the request names no
// database at all; otherwise only the driver is defaulted.
func (req connectRequest) descriptor(fallback database.Descriptor) database.Descriptor {
	if strings.TrimSpace(req.Host) == "" && strings.TrimSpace(req.Database) == "" && strings.TrimSpace(req.Driver) == "" {
		return fallback
	}
	descriptor := database.Descriptor{
		Driver:   strings.TrimSpace(req.Driver),
		Host:     strings.TrimSpace(req.Host),
		Port:     req.Port,
		User:     strings.TrimSpace(req.User),
		Password: req.Password,
		Name:     strings.TrimSpace(req.Database),
		SSLMode:  strings.TrimSpace(req.SSLMode),
	}
	if descriptor.Driver == "" {
		descriptor.Driver = fallback.Driver
	}
	if descriptor.SSLMode == "" && strings.EqualFold(descriptor.Driver, fallback.Driver) {
		descriptor.SSLMode = fallback.SSLMode
	}
	return descriptor
}

func viewOf(entry *session.Entry) sessionView {
	view := sessionView{
		SessionID:  entry.ID,
		CreatedAt:  entry.CreatedAt,
		Transcript: entry.Session.Transcript(),
	}
	if descriptor, ok := entry.Session.Descriptor(); ok {
		view.Connected = true
		view.Database = &descriptor
	}
	return view
}
