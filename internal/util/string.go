// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the answerd service.
package util

import "strings"

// Rune-aware truncation. Counting runes instead of bytes prevents
// mid-character truncation that would corrupt UTF-8 strings.

// TruncateRunes truncates a string to at most maxRunes characters and
// appends "..." when anything was cut. The ellipsis is not counted
// against the limit.
func TruncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// TruncateRunesNoEllipsis truncates a string to at most maxRunes
// characters without appending an ellipsis.
func TruncateRunesNoEllipsis(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes])
}

// CollapseNewlines replaces newline characters with single spaces,
// producing a one-line form suitable for previews and logs.
func CollapseNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.ReplaceAll(s, "\n", " ")
}
