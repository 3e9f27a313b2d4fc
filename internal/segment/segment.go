// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package segment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jeranaias/answerd/internal/model"
)

// =============================================================================
// FENCE SCANNING
// =============================================================================

// fenceRE matches one fenced code region: an opening triple backtick,
// an optional language tag attached directly to it, an optional line
// break, then the shortest body that reaches a closing triple backtick.
// FindAll* gives left-to-right, non-overlapping matches, so fences are
// never treated as nested.
var fenceRE = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)[^\\S\n]*\r?\n?(.*?)```")

// Placeholder returns the plain-text stand-in for the i-th code block.
func Placeholder(i int) string {
	return fmt.Sprintf("[CODE_BLOCK_%d]", i)
}

// Segment splits a raw answer into a plain-text rendering and an ordered
// list of content blocks. It never returns an error: unterminated fences
// stay in the text untouched, and the empty string yields an empty
// answer with no blocks.
func Segment(raw string) (string, []model.ContentBlock) {
	matches := fenceRE.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return FormatText(raw), nil
	}

	var blocks []model.ContentBlock
	var parts []string
	last := 0

	for i, m := range matches {
		start, end := m[0], m[1]
		tag := raw[m[2]:m[3]]
		body := raw[m[4]:m[5]]

		blocks = append(blocks, model.NewCodeBlock(NormalizeLanguage(tag), body))

		if start > last {
			span := raw[last:start]
			if strings.TrimSpace(span) != "" {
				parts = append(parts, FormatText(span))
			}
		}
		parts = append(parts, Placeholder(i))
		last = end
	}

	if last < len(raw) {
		span := raw[last:]
		if strings.TrimSpace(span) != "" {
			parts = append(parts, FormatText(span))
		}
	}

	return strings.Join(parts, ""), blocks
}

// =============================================================================
// TEXT FORMATTING
// =============================================================================

var (
	// Three or more consecutive newlines collapse to one blank line.
	multiNewlineRE = regexp.MustCompile(`\n{3,}`)

	// A sentence boundary with the space missing: ".Next" -> ". Next".
	periodUpperRE = regexp.MustCompile(`\.([A-Z])`)

	// Same repair after "?" and "!".
	punctUpperRE = regexp.MustCompile(`([?!])([A-Z])`)
)

// FormatText normalizes a prose span: CRLF to LF, a guaranteed trailing
// newline, paragraph breaks collapsed to exactly one blank line, and a
// space restored after sentence-ending punctuation that runs directly
// into an uppercase letter. Paragraphs that are empty after trimming
// are dropped.
func FormatText(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	text = multiNewlineRE.ReplaceAllString(text, "\n\n")
	text = periodUpperRE.ReplaceAllString(text, ". $1")
	text = punctUpperRE.ReplaceAllString(text, "$1 $2")

	paragraphs := strings.Split(text, "\n\n")
	kept := paragraphs[:0]
	for _, p := range paragraphs {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}

	return strings.Join(kept, "\n\n")
}
