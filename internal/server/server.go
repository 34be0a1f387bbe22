// Package server exposes the conversational enrollment service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "enrollment-chat/internal/common/errors"
	"enrollment-chat/internal/common/logger"
	"enrollment-chat/internal/enrollment/conversation"
)

// ConversationService is the surface the HTTP layer needs from the
// conversation service.
type ConversationService interface {
	HandleTurn(ctx context.Context, conversationID, message string) (*conversation.TurnResult, error)
	State(ctx context.Context, conversationID string) (*conversation.StateSnapshot, error)
	Clear(ctx context.Context, conversationID string) (bool, error)
}

type Server struct {
	svc    ConversationService
	logger logger.Logger
}

// New builds the HTTP handler with all routes and middleware attached.
func New(svc ConversationService, log logger.Logger) http.Handler {
	s := &Server{
		svc:    svc,
		logger: log.With(map[string]interface{}{"component": "http-server"}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /chat/{id}/state", s.handleState)
	mux.HandleFunc("DELETE /chat/{id}", s.handleClear)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return chainMiddlewares(mux,
		withCORS,
		s.withLogging,
		s.withRecovery,
	)
}

type chatRequest struct {
	ConversationID string `json:"conversationId,omitempty"`
	Message        string `json:"message"`
}

type clearResponse struct {
	ConversationID string `json:"conversationId"`
	Cleared        bool   `json:"cleared"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.NewInvalidRequestError("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, apperrors.NewInvalidRequestError("message is required"))
		return
	}

	result, err := s.svc.HandleTurn(r.Context(), req.ConversationID, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.svc.State(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existed, err := s.svc.Clear(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !existed {
		s.writeError(w, apperrors.NewConversationNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{ConversationID: id, Cleared: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "enrollment-chat",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError normalizes any error to the standard error envelope and logs it
// at a severity matching its HTTP class.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)

	stdErr, ok := apperrors.AsStandard(err)
	if !ok {
		stdErr = &apperrors.StandardError{
			Code:      "INTERNAL_ERROR",
			Message:   "Internal server error",
			Details:   err.Error(),
			Timestamp: time.Now().UTC(),
		}
	}

	fields := map[string]interface{}{
		"code":   string(stdErr.Code),
		"status": status,
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(stdErr.Message, fields)
	} else {
		s.logger.Warn(stdErr.Message, fields)
	}

	writeJSON(w, status, map[string]interface{}{"error": stdErr})
}
