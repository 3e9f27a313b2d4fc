// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// BLOCK TYPE TAG
// =============================================================================

// BlockType tags a ContentBlock payload.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockCode  BlockType = "code"
	BlockTable BlockType = "table"
)

// =============================================================================
// PAYLOAD VARIANTS
// =============================================================================

// CodeContent is the payload of a code block. Code holds the fence body
// verbatim, with original indentation and line breaks.
type CodeContent struct {
	Language      string `json:"language"`
	Code          string `json:"code"`
	ExecuteResult string `json:"execute_result,omitempty"`
}

// TableContent is the payload of a table block.
type TableContent struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
	Caption string   `json:"caption,omitempty"`
}

// =============================================================================
// CONTENT BLOCK UNION
// =============================================================================

// ContentBlock is a tagged union: exactly one payload field is set, and
// Type determines which. Blocks have no identity of their own; they are
// serialized as part of the message that owns them.
type ContentBlock struct {
	Type  BlockType
	Text  string
	Code  *CodeContent
	Table *TableContent
}

// NewTextBlock returns a text block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// NewCodeBlock returns a code block.
func NewCodeBlock(language, code string) ContentBlock {
	return ContentBlock{Type: BlockCode, Code: &CodeContent{Language: language, Code: code}}
}

// NewTableBlock returns a table block.
func NewTableBlock(headers []string, rows [][]any, caption string) ContentBlock {
	return ContentBlock{Type: BlockTable, Table: &TableContent{Headers: headers, Rows: rows, Caption: caption}}
}

// HasCode reports whether any block in the slice is a code block.
func HasCode(blocks []ContentBlock) bool {
	for _, b := range blocks {
		if b.Type == BlockCode {
			return true
		}
	}
	return false
}

// =============================================================================
// JSON CODEC
// =============================================================================

// blockEnvelope is the wire form: {"type": ..., "content": ...}.
type blockEnvelope struct {
	Type    BlockType       `json:"type"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON encodes the block as a typed envelope.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	var content any
	switch b.Type {
	case BlockText:
		content = b.Text
	case BlockCode:
		if b.Code == nil {
			return nil, fmt.Errorf("code block has nil payload")
		}
		content = b.Code
	case BlockTable:
		if b.Table == nil {
			return nil, fmt.Errorf("table block has nil payload")
		}
		content = b.Table
	default:
		return nil, fmt.Errorf("unknown block type %q", b.Type)
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(blockEnvelope{Type: b.Type, Content: raw})
}

// UnmarshalJSON decodes a typed envelope, validating the tag before
// touching the payload.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	var env blockEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	switch env.Type {
	case BlockText:
		var text string
		if err := json.Unmarshal(env.Content, &text); err != nil {
			return fmt.Errorf("text block payload: %w", err)
		}
		*b = ContentBlock{Type: BlockText, Text: text}
	case BlockCode:
		var code CodeContent
		if err := json.Unmarshal(env.Content, &code); err != nil {
			return fmt.Errorf("code block payload: %w", err)
		}
		*b = ContentBlock{Type: BlockCode, Code: &code}
	case BlockTable:
		var table TableContent
		if err := json.Unmarshal(env.Content, &table); err != nil {
			return fmt.Errorf("table block payload: %w", err)
		}
		*b = ContentBlock{Type: BlockTable, Table: &table}
	default:
		return fmt.Errorf("unknown block type %q", env.Type)
	}
	return nil
}

// MarshalBlocks serializes a block slice for storage. A nil or empty
// slice serializes to nil, which the store persists as NULL.
func MarshalBlocks(blocks []ContentBlock) ([]byte, error) {
	if len(blocks) == 0 {
		return nil, nil
	}
	return json.Marshal(blocks)
}

// UnmarshalBlocks parses a stored block document. Nil input yields nil.
func UnmarshalBlocks(data []byte) ([]ContentBlock, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}
