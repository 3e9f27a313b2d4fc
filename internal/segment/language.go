// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package segment

import (
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// NormalizeLanguage maps a fence language tag to its canonical lowercase
// form using the chroma lexer registry, so "py" and "python" label a
// block the same way. An empty tag defaults to "text"; a tag with no
// registered lexer passes through trimmed.
func NormalizeLanguage(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "text"
	}

	if lex := lexers.Get(tag); lex != nil {
		name := strings.ToLower(lex.Config().Name)
		// chroma calls its fallback lexer "plaintext"; keep the shorter
		// label stored blocks have always used.
		if name == "plaintext" {
			return "text"
		}
		return name
	}

	return tag
}
