// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations, messages,
// and the typed content blocks a segmented answer is made of.
//
// # Key Types
//
//   - Conversation: an ordered, append-only message log with timestamps
//   - Message: a single turn with role, raw text, and optional blocks
//   - ContentBlock: a tagged union over text, code, and table payloads
//
// Content blocks serialize as {"type": ..., "content": ...} documents.
// Decoding validates the type tag before interpreting the payload shape,
// so a corrupted or hand-edited record fails loudly instead of producing
// a half-populated block.
package model
