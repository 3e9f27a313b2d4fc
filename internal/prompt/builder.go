// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt assembles the message sequence sent to a completion
// provider: one system instruction, a bounded slice of conversation
// history, and the new question.
package prompt

import (
	"errors"
	"fmt"

	"github.com/jeranaias/answerd/internal/model"
	"github.com/jeranaias/answerd/internal/store"
)

// =============================================================================
// PROMPT MESSAGES
// =============================================================================

// Message is one entry in the prompt sequence sent to a provider.
type Message struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

// HistoryWindow is the number of trailing history messages included in a
// prompt. Older turns are dropped, not summarized.
const HistoryWindow = 10

// SystemInstruction is the fixed formatting contract sent ahead of every
// exchange. The segmenter depends on answers following the fenced-code
// convention described here.
const SystemInstruction = `You are a helpful assistant. Answer the user's questions accurately and helpfully.

Formatting requirements:
1. Separate distinct topics into paragraphs with one blank line between them
2. Use clear line breaks to keep answers readable
3. Wrap code samples in fences with a language tag, for example:
   ` + "```python" + `
   def hello_world():
       print("Hello, World!")
   ` + "```" + `
4. Keep the original formatting and indentation of code; never collapse it onto one line
5. Indent and line-break list items consistently

Make sure replies are well formatted and easy to read, especially code blocks.`

// =============================================================================
// HISTORY SOURCE
// =============================================================================

// HistorySource supplies stored messages for a conversation. The store
// satisfies this; tests substitute a fixture.
type HistorySource interface {
	GetMessages(conversationID string) ([]model.Message, error)
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder turns a question plus optional conversation history and
// context into an ordered prompt sequence.
type Builder struct {
	history HistorySource
}

// NewBuilder creates a Builder reading history from the given source.
func NewBuilder(history HistorySource) *Builder {
	return &Builder{history: history}
}

// Build assembles the prompt for one exchange:
//
//  1. the system instruction, with the optional context string appended
//     to it (never emitted as a separate message)
//  2. the most recent HistoryWindow stored messages, oldest first, each
//     with its stored role and raw text
//  3. the question, as the final user message
//
// An unknown conversation id yields an empty history, never an error;
// any other history failure propagates.
func (b *Builder) Build(question, conversationID, context string) ([]Message, error) {
	system := SystemInstruction
	if context != "" {
		system += "\n\nContext: " + context
	}

	messages := []Message{{Role: model.RoleSystem, Content: system}}

	if conversationID != "" && b.history != nil {
		history, err := b.history.GetMessages(conversationID)
		if err != nil && !errors.Is(err, store.ErrConversationNotFound) {
			return nil, fmt.Errorf("load history: %w", err)
		}
		if len(history) > HistoryWindow {
			history = history[len(history)-HistoryWindow:]
		}
		for _, msg := range history {
			messages = append(messages, Message{Role: msg.Role, Content: msg.Content})
		}
	}

	return append(messages, Message{Role: model.RoleUser, Content: question}), nil
}
