// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store persists conversations and their messages in SQLite.
//
// The store is the sole writer of conversation state. It assigns every
// timestamp itself, which keeps message timestamps non-decreasing in
// insertion order, and it deletes a conversation and its messages in one
// transaction so readers never observe orphaned messages.
//
// If the database file cannot be opened the store degrades to an
// in-memory database and logs the degradation; the service keeps
// serving, but state does not survive a restart.
package store
