// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider sends prompt sequences to a completion backend.
//
// Two hosted backends (DeepSeek and OpenAI, both speaking the
// chat-completions wire format) sit behind the same Provider interface,
// alongside a deterministic mock used when no API key is configured.
// Callers never branch on which backend is active.
package provider

import (
	"context"
	"fmt"

	"github.com/jeranaias/answerd/internal/prompt"
)

// =============================================================================
// PROVIDER INTERFACE
// =============================================================================

// Provider is the single capability the rest of the system depends on:
// send messages, get back raw text and a token count.
type Provider interface {
	// Complete sends the prompt sequence and returns the raw answer text
	// and the backend-reported token usage (0 when unavailable).
	Complete(ctx context.Context, messages []prompt.Message) (string, int, error)

	// Name identifies the backend ("deepseek", "openai", "mock").
	Name() string

	// Model is the model identifier reported in responses.
	Model() string
}

// =============================================================================
// ERRORS
// =============================================================================

// Error is a failure reported by a completion backend: a transport
// error, a non-success HTTP status, or a malformed response. The core
// never retries; retry policy belongs to the boundary layer.
type Error struct {
	Provider string
	Status   int
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying transport error, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}
