// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the HTTP API for the question/answer service.
//
// Endpoints:
//   - POST   /ask                         - Ask a question
//   - POST   /conversations               - Start an empty conversation
//   - GET    /conversations/recent        - Recently active conversations
//   - GET    /conversations/{id}          - Full conversation with messages
//   - DELETE /conversations/{id}          - Delete a conversation
//   - GET    /conversations/{id}/history  - Messages in chronological order
//   - GET    /users/{id}/conversations    - A user's conversations
//   - GET    /health                      - Health check
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/jeranaias/answerd/internal/assistant"
	"github.com/jeranaias/answerd/internal/model"
	"github.com/jeranaias/answerd/internal/provider"
	"github.com/jeranaias/answerd/internal/store"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultPort is the default port for the HTTP server.
	DefaultPort = 8000

	// DefaultMaxBodySize caps request bodies when no limit is configured.
	DefaultMaxBodySize = 1 * 1024 * 1024

	// DefaultRecentLimit is the page size for /conversations/recent.
	DefaultRecentLimit = 20

	// MaxRecentLimit caps the page size for /conversations/recent.
	MaxRecentLimit = 100

	// Version is the server version.
	Version = "1.0.0"
)

// ============================================================================
// SERVER
// ============================================================================

// Options configures the HTTP server.
type Options struct {
	Host        string
	Port        int
	MaxBodySize int64
	// RequestsPerSecond and Burst configure per-client rate limiting.
	// RequestsPerSecond <= 0 disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// Server is the HTTP boundary over the assistant service.
type Server struct {
	opts    Options
	service *assistant.Service
	router  *http.ServeMux
	server  *http.Server
}

// NewServer creates a server over the given service.
func NewServer(service *assistant.Service, opts Options) *Server {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}

	s := &Server{
		opts:    opts,
		service: service,
		router:  http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /ask", s.handleAsk)

	s.router.HandleFunc("POST /conversations", s.handleCreateConversation)
	s.router.HandleFunc("GET /conversations/recent", s.handleRecentConversations)
	s.router.HandleFunc("GET /conversations/{id}", s.handleGetConversation)
	s.router.HandleFunc("DELETE /conversations/{id}", s.handleDeleteConversation)
	s.router.HandleFunc("GET /conversations/{id}/history", s.handleHistory)
	s.router.HandleFunc("GET /users/{id}/conversations", s.handleUserConversations)

	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the full handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
		BodyLimitMiddleware(s.opts.MaxBodySize),
	}
	if s.opts.RequestsPerSecond > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(NewClientLimiter(s.opts.RequestsPerSecond, s.opts.Burst)))
	}
	return Chain(middlewares...)(s.router)
}

// ============================================================================
// ASK HANDLER
// ============================================================================

// AskRequest is the question submission payload.
type AskRequest struct {
	Question       string `json:"question"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Context        string `json:"context,omitempty"`
}

// AskResponse is the completed exchange payload.
type AskResponse struct {
	Answer         string               `json:"answer"`
	ContentBlocks  []model.ContentBlock `json:"content_blocks"`
	HasCode        bool                 `json:"has_code"`
	ConversationID string               `json:"conversation_id"`
	TokensUsed     int                  `json:"tokens_used"`
	ModelUsed      string               `json:"model_used"`
	ResponseTime   float64              `json:"response_time"`
	Cached         bool                 `json:"cached,omitempty"`
}

// handleAsk handles POST /ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeDecodeError(w, err)
		return
	}

	result, err := s.service.Ask(r.Context(), assistant.AskRequest{
		Question:       req.Question,
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Context:        req.Context,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	blocks := result.Blocks
	if blocks == nil {
		blocks = []model.ContentBlock{}
	}
	s.writeJSON(w, http.StatusOK, AskResponse{
		Answer:         result.Answer,
		ContentBlocks:  blocks,
		HasCode:        result.HasCode,
		ConversationID: result.ConversationID,
		TokensUsed:     result.TokensUsed,
		ModelUsed:      result.ModelUsed,
		ResponseTime:   result.ResponseTime,
		Cached:         result.Cached,
	})
}

// ============================================================================
// CONVERSATION HANDLERS
// ============================================================================

// CreateConversationRequest is the new-conversation payload.
type CreateConversationRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// handleCreateConversation handles POST /conversations.
func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	// An empty body starts an ownerless conversation.
	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeDecodeError(w, err)
		return
	}

	id, err := s.service.CreateConversation(req.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]string{"conversation_id": id})
}

// handleGetConversation handles GET /conversations/{id}.
func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.service.GetConversation(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

// handleDeleteConversation handles DELETE /conversations/{id}.
func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := s.service.DeleteConversation(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, "conversation not found")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"deleted":         true,
	})
}

// HistoryResponse lists a conversation's messages.
type HistoryResponse struct {
	ConversationID string          `json:"conversation_id"`
	Messages       []model.Message `json:"messages"`
}

// handleHistory handles GET /conversations/{id}/history.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	messages, err := s.service.GetHistory(id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	s.writeJSON(w, http.StatusOK, HistoryResponse{
		ConversationID: id,
		Messages:       messages,
	})
}

// ConversationListResponse lists conversation metadata.
type ConversationListResponse struct {
	UserID        string                   `json:"user_id,omitempty"`
	Conversations []store.ConversationMeta `json:"conversations"`
}

// handleRecentConversations handles GET /conversations/recent.
func (s *Server) handleRecentConversations(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	metas, err := s.service.ListRecent(limit, offset)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if metas == nil {
		metas = []store.ConversationMeta{}
	}

	s.writeJSON(w, http.StatusOK, ConversationListResponse{Conversations: metas})
}

// handleUserConversations handles GET /users/{id}/conversations.
func (s *Server) handleUserConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("id")

	metas, err := s.service.ListByOwner(userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if metas == nil {
		metas = []store.ConversationMeta{}
	}

	s.writeJSON(w, http.StatusOK, ConversationListResponse{
		UserID:        userID,
		Conversations: metas,
	})
}

// ============================================================================
// HEALTH HANDLER
// ============================================================================

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status       string  `json:"status"`
	Version      string  `json:"version"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	CacheEntries int     `json:"cache_entries"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend := s.service.Backend()
	stats := s.service.CacheStats()

	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		Version:      Version,
		Provider:     backend.Name(),
		Model:        backend.Model(),
		CacheEntries: stats.EntryCount,
		CacheHitRate: stats.HitRate,
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", addr, Version)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | starting graceful shutdown")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}

// writeDecodeError maps request body decode failures to client errors.
func (s *Server) writeDecodeError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		s.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
		return
	}
	log.Printf("REQUEST_DECODE_FAILED | error=%v", err)
	s.writeError(w, http.StatusBadRequest, "invalid request format")
}

// writeServiceError maps service errors to HTTP status codes. Internal
// details are logged, not returned to the client.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *assistant.ValidationError
	var providerErr *provider.Error

	switch {
	case errors.As(err, &validationErr):
		s.writeError(w, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, store.ErrConversationNotFound):
		s.writeError(w, http.StatusNotFound, "conversation not found")
	case errors.As(err, &providerErr):
		log.Printf("PROVIDER_ERROR | provider=%s status=%d message=%s",
			providerErr.Provider, providerErr.Status, providerErr.Message)
		s.writeError(w, http.StatusBadGateway, "model backend unavailable")
	case errors.Is(err, context.Canceled):
		// Client went away; status code is moot but 499-style close is
		// not expressible with net/http, so 502 stands in.
		s.writeError(w, http.StatusBadGateway, "request canceled")
	default:
		log.Printf("INTERNAL_ERROR | error=%v", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
