// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jeranaias/answerd/internal/model"
	"github.com/jeranaias/answerd/internal/store"
)

// fixtureHistory is a canned HistorySource for builder tests.
type fixtureHistory struct {
	messages map[string][]model.Message
	err      error
}

func (f *fixtureHistory) GetMessages(conversationID string) ([]model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	msgs, ok := f.messages[conversationID]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	return msgs, nil
}

func mustBuild(t *testing.T, b *Builder, question, conversationID, context string) []Message {
	t.Helper()
	messages, err := b.Build(question, conversationID, context)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return messages
}

func TestBuildMinimal(t *testing.T) {
	b := NewBuilder(&fixtureHistory{})

	messages := mustBuild(t, b, "what is a goroutine?", "", "")

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != model.RoleSystem {
		t.Errorf("first role = %q, want system", messages[0].Role)
	}
	if messages[1].Role != model.RoleUser || messages[1].Content != "what is a goroutine?" {
		t.Errorf("last message = %+v", messages[1])
	}
}

func TestBuildAppendsContextToSystemMessage(t *testing.T) {
	b := NewBuilder(&fixtureHistory{})

	messages := mustBuild(t, b, "q", "", "user is reading chapter 3")

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if !strings.Contains(messages[0].Content, "user is reading chapter 3") {
		t.Error("context missing from system message")
	}
	for _, m := range messages[1:] {
		if strings.Contains(m.Content, "chapter 3") {
			t.Error("context must not appear outside the system message")
		}
	}
}

func TestBuildRecencyWindow(t *testing.T) {
	var history []model.Message
	for i := 0; i < 15; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		history = append(history, model.Message{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	b := NewBuilder(&fixtureHistory{messages: map[string][]model.Message{"c1": history}})

	messages := mustBuild(t, b, "new question", "c1", "")

	// 1 system + 10 history + 1 question.
	if len(messages) != 12 {
		t.Fatalf("expected 12 messages, got %d", len(messages))
	}
	if messages[1].Content != "turn 5" {
		t.Errorf("oldest surviving turn = %q, want %q", messages[1].Content, "turn 5")
	}
	if messages[10].Content != "turn 14" {
		t.Errorf("newest history turn = %q, want %q", messages[10].Content, "turn 14")
	}
	if messages[11].Content != "new question" {
		t.Errorf("final message = %q", messages[11].Content)
	}
}

func TestBuildPreservesChronologicalOrder(t *testing.T) {
	history := []model.Message{
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "second"},
		{Role: model.RoleUser, Content: "third"},
	}
	b := NewBuilder(&fixtureHistory{messages: map[string][]model.Message{"c1": history}})

	messages := mustBuild(t, b, "fourth", "c1", "")

	want := []string{"first", "second", "third", "fourth"}
	for i, content := range want {
		if messages[i+1].Content != content {
			t.Errorf("messages[%d] = %q, want %q", i+1, messages[i+1].Content, content)
		}
	}
	if messages[2].Role != model.RoleAssistant {
		t.Errorf("history roles not preserved: %+v", messages[2])
	}
}

func TestBuildUnknownConversationYieldsEmptyHistory(t *testing.T) {
	b := NewBuilder(&fixtureHistory{})

	messages := mustBuild(t, b, "q", "no-such-conversation", "")

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages for unknown conversation, got %d", len(messages))
	}
}

func TestBuildPropagatesHistoryFailure(t *testing.T) {
	storeErr := errors.New("database is locked")
	b := NewBuilder(&fixtureHistory{err: storeErr})

	_, err := b.Build("q", "c1", "")
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped store failure", err)
	}

	// Only a failing history lookup errors; without a conversation the
	// source is never consulted.
	if _, err := b.Build("q", "", ""); err != nil {
		t.Errorf("Build without conversation failed: %v", err)
	}
}

func TestBuildNilHistorySource(t *testing.T) {
	b := NewBuilder(nil)

	messages := mustBuild(t, b, "q", "c1", "")
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages with nil source, got %d", len(messages))
	}
}
