// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package segment parses a raw model answer into typed content blocks.
//
// A raw answer is scanned left to right for triple-backtick code fences.
// Each fence becomes a code block, and the surrounding prose is run
// through a normalization pass (newline normalization, paragraph
// spacing, sentence-boundary repair). The plain-text rendering keeps the
// original ordering by substituting each fence with a [CODE_BLOCK_i]
// placeholder.
//
// Segmentation never fails: malformed input (such as an unterminated
// fence) degrades to plain text rather than producing an error.
package segment
