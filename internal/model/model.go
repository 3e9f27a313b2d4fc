// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one of the known message roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single immutable turn in a conversation.
// Timestamps are assigned by the store, never by callers.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`

	// Blocks is the segmented form of an assistant answer. It is nil for
	// user and system messages and for answers with no structured content.
	Blocks []ContentBlock `json:"content_blocks,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is an append-only message log. Messages are kept in
// insertion order, which is also chronological order: UpdatedAt is bumped
// on every append and is always >= CreatedAt.
type Conversation struct {
	ID        string    `json:"conversation_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []Message `json:"messages"`
}

// MessageCount returns the number of messages in the conversation.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// FirstUserMessage returns the content of the earliest user message,
// or the empty string if the conversation has none.
func (c *Conversation) FirstUserMessage() string {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser && msg.Content != "" {
			return msg.Content
		}
	}
	return ""
}
