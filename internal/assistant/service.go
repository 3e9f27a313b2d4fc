// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assistant orchestrates the question/answer exchange: it
// validates the question, assembles the prompt from stored history,
// calls the model backend, segments the raw answer into renderable
// blocks, and persists the completed exchange.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/answerd/internal/cache"
	"github.com/jeranaias/answerd/internal/model"
	"github.com/jeranaias/answerd/internal/prompt"
	"github.com/jeranaias/answerd/internal/provider"
	"github.com/jeranaias/answerd/internal/segment"
	"github.com/jeranaias/answerd/internal/store"
)

// =============================================================================
// CONSTANTS & ERRORS
// =============================================================================

// MaxQuestionRunes caps the length of an accepted question.
const MaxQuestionRunes = 2000

// ValidationError reports a request rejected before any backend call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// =============================================================================
// SERVICE
// =============================================================================

// AskRequest is one question submitted to the service.
type AskRequest struct {
	Question       string
	UserID         string
	ConversationID string // empty starts a fresh conversation
	Context        string // optional extra context folded into the system prompt
}

// AskResult is the completed exchange as reported to callers.
type AskResult struct {
	Answer         string
	Blocks         []model.ContentBlock
	HasCode        bool
	ConversationID string
	TokensUsed     int
	ModelUsed      string
	ResponseTime   float64 // seconds
	Cached         bool
}

// Service wires the store, prompt builder, backend, and answer cache
// into the ask pipeline.
type Service struct {
	store    *store.Store
	backend  provider.Provider
	builder  *prompt.Builder
	answers  *cache.AnswerCache
	exchange *store.KeyedMutex
}

// New creates the service. answers may be nil to disable caching.
func New(st *store.Store, backend provider.Provider, answers *cache.AnswerCache) *Service {
	return &Service{
		store:    st,
		backend:  backend,
		builder:  prompt.NewBuilder(st),
		answers:  answers,
		exchange: store.NewKeyedMutex(),
	}
}

// Ask runs one full exchange. The question is validated, answered by the
// backend, segmented, and both sides of the exchange are persisted. When
// the backend fails nothing is written, so a retry sees the conversation
// exactly as it was.
func (s *Service) Ask(ctx context.Context, req AskRequest) (*AskResult, error) {
	question, err := validateQuestion(req.Question)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	// Context-free questions are answerable from cache; anything tied to
	// a conversation depends on its history and must go to the backend.
	standalone := req.ConversationID == "" && req.Context == ""
	if standalone && s.answers != nil {
		if entry, ok := s.answers.Get(question); ok {
			return s.deliverCached(req.UserID, question, entry, start)
		}
	}

	conversationID, err := s.resolveConversation(req.ConversationID, req.UserID)
	if err != nil {
		return nil, err
	}

	messages, err := s.builder.Build(question, conversationID, req.Context)
	if err != nil {
		return nil, err
	}

	raw, tokens, err := s.backend.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	plain, blocks := segment.Segment(raw)

	if err := s.persistExchange(conversationID, question, plain, blocks); err != nil {
		return nil, err
	}

	if standalone && s.answers != nil {
		// The raw answer is cached so a later hit re-segments into the
		// same blocks.
		s.answers.Put(question, cache.Entry{
			Answer:     raw,
			TokensUsed: tokens,
			ModelUsed:  s.backend.Model(),
		})
	}

	return &AskResult{
		Answer:         plain,
		Blocks:         blocks,
		HasCode:        model.HasCode(blocks),
		ConversationID: conversationID,
		TokensUsed:     tokens,
		ModelUsed:      s.backend.Model(),
		ResponseTime:   time.Since(start).Seconds(),
	}, nil
}

// deliverCached persists a cache hit as a fresh exchange so the
// conversation record stays complete, then reports it.
func (s *Service) deliverCached(userID, question string, entry *cache.Entry, start time.Time) (*AskResult, error) {
	plain, blocks := segment.Segment(entry.Answer)

	conversationID, err := s.store.Create(userID)
	if err != nil {
		return nil, err
	}
	if err := s.persistExchange(conversationID, question, plain, blocks); err != nil {
		return nil, err
	}

	return &AskResult{
		Answer:         plain,
		Blocks:         blocks,
		HasCode:        model.HasCode(blocks),
		ConversationID: conversationID,
		TokensUsed:     entry.TokensUsed,
		ModelUsed:      entry.ModelUsed,
		ResponseTime:   time.Since(start).Seconds(),
		Cached:         true,
	}, nil
}

// resolveConversation returns the conversation to append to, creating a
// fresh one when the id is empty or no longer exists.
func (s *Service) resolveConversation(conversationID, userID string) (string, error) {
	if conversationID != "" {
		_, err := s.store.GetMessages(conversationID)
		switch {
		case err == nil:
			return conversationID, nil
		case errors.Is(err, store.ErrConversationNotFound):
			// Stale id, fall through and start over.
		default:
			return "", err
		}
	}
	return s.store.Create(userID)
}

// persistExchange appends the user question and assistant answer as one
// unit. The per-conversation lock keeps concurrent asks against the same
// conversation from interleaving their message pairs.
func (s *Service) persistExchange(conversationID, question, answer string, blocks []model.ContentBlock) error {
	s.exchange.Lock(conversationID)
	defer s.exchange.Unlock(conversationID)

	if _, err := s.store.Append(conversationID, model.RoleUser, question, nil); err != nil {
		return err
	}
	if _, err := s.store.Append(conversationID, model.RoleAssistant, answer, blocks); err != nil {
		return err
	}
	return nil
}

func validateQuestion(question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", &ValidationError{Field: "question", Message: "must not be empty"}
	}
	if utf8.RuneCountInString(question) > MaxQuestionRunes {
		return "", &ValidationError{
			Field:   "question",
			Message: fmt.Sprintf("must be at most %d characters", MaxQuestionRunes),
		}
	}
	return question, nil
}

// =============================================================================
// CONVERSATION PASSTHROUGHS
// =============================================================================

// CreateConversation starts an empty conversation for a user.
func (s *Service) CreateConversation(userID string) (string, error) {
	return s.store.Create(userID)
}

// GetConversation returns a full conversation with its messages.
func (s *Service) GetConversation(conversationID string) (*model.Conversation, error) {
	return s.store.Get(conversationID)
}

// GetHistory returns a conversation's messages in chronological order.
func (s *Service) GetHistory(conversationID string) ([]model.Message, error) {
	return s.store.GetMessages(conversationID)
}

// DeleteConversation removes a conversation and its messages, reporting
// whether anything existed.
func (s *Service) DeleteConversation(conversationID string) (bool, error) {
	return s.store.Delete(conversationID)
}

// ListByOwner returns metadata for a user's conversations.
func (s *Service) ListByOwner(userID string) ([]store.ConversationMeta, error) {
	return s.store.ListByOwner(userID)
}

// ListRecent returns metadata for the most recently active conversations.
func (s *Service) ListRecent(limit, offset int) ([]store.ConversationMeta, error) {
	return s.store.ListRecent(limit, offset)
}

// CacheStats exposes answer-cache effectiveness for the health endpoint.
func (s *Service) CacheStats() cache.Stats {
	if s.answers == nil {
		return cache.Stats{}
	}
	return s.answers.GetStats()
}

// Backend reports the active model backend.
func (s *Service) Backend() provider.Provider {
	return s.backend
}
