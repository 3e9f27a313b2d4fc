// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jeranaias/answerd/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// CREATE / GET
// =============================================================================

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("user-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty id")
	}

	conv, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if conv.UserID != "user-1" {
		t.Errorf("UserID = %q", conv.UserID)
	}
	if conv.UpdatedAt.Before(conv.CreatedAt) {
		t.Error("UpdatedAt must not precede CreatedAt")
	}
	if len(conv.Messages) != 0 {
		t.Errorf("new conversation has %d messages", len(conv.Messages))
	}
}

func TestCreateWithoutOwner(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create("")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	conv, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if conv.UserID != "" {
		t.Errorf("UserID = %q, want empty", conv.UserID)
	}
}

func TestGetUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("no-such-id")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("err = %v, want ErrConversationNotFound", err)
	}
}

// =============================================================================
// APPEND
// =============================================================================

func TestAppendOrdering(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.Create("")

	contents := []string{"first", "second", "third", "fourth"}
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		if _, err := s.Append(id, role, c, nil); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	messages, err := s.GetMessages(id)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 4 {
		t.Fatalf("got %d messages, want 4", len(messages))
	}
	for i, want := range contents {
		if messages[i].Content != want {
			t.Errorf("messages[%d] = %q, want %q", i, messages[i].Content, want)
		}
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].Timestamp.Before(messages[i-1].Timestamp) {
			t.Errorf("timestamps decrease between %d and %d", i-1, i)
		}
	}
}

func TestAppendBumpsUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.Create("")

	before, _ := s.Get(id)
	if _, err := s.Append(id, model.RoleUser, "q", nil); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	after, _ := s.Get(id)

	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Error("UpdatedAt went backward after append")
	}
	if after.CreatedAt != before.CreatedAt {
		t.Error("CreatedAt changed on append")
	}
}

func TestAppendUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Append("missing", model.RoleUser, "q", nil)
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestAppendPersistsBlocks(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.Create("")

	blocks := []model.ContentBlock{
		model.NewCodeBlock("python", "print(1)\n"),
		model.NewTextBlock("explanation"),
	}
	if _, err := s.Append(id, model.RoleAssistant, "answer", blocks); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	messages, _ := s.GetMessages(id)
	if len(messages) != 1 {
		t.Fatalf("got %d messages", len(messages))
	}
	got := messages[0].Blocks
	if len(got) != 2 {
		t.Fatalf("got %d blocks, want 2", len(got))
	}
	if got[0].Type != model.BlockCode || got[0].Code.Language != "python" {
		t.Errorf("block 0 = %+v", got[0])
	}
	if got[1].Type != model.BlockText || got[1].Text != "explanation" {
		t.Errorf("block 1 = %+v", got[1])
	}
}

func TestGetMessagesEmptyConversation(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.Create("")

	messages, err := s.GetMessages(id)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("got %d messages, want 0", len(messages))
	}
}

func TestGetMessagesUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetMessages("missing")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("err = %v, want ErrConversationNotFound", err)
	}
}

// =============================================================================
// DELETE
// =============================================================================

func TestDeleteRemovesConversationAndMessages(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.Create("")
	s.Append(id, model.RoleUser, "q", nil)
	s.Append(id, model.RoleAssistant, "a", nil)

	existed, err := s.Delete(id)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !existed {
		t.Error("Delete should report the conversation existed")
	}

	if _, err := s.Get(id); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("Get after delete: err = %v", err)
	}
	if _, err := s.GetMessages(id); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("GetMessages after delete: err = %v", err)
	}
}

func TestDeleteUnknownConversation(t *testing.T) {
	s := newTestStore(t)

	existed, err := s.Delete("missing")
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if existed {
		t.Error("Delete of unknown id should report false")
	}
}

// =============================================================================
// LISTINGS
// =============================================================================

func TestListByOwner(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Create("alice")
	s.Create("bob")
	b, _ := s.Create("alice")

	metas, err := s.ListByOwner("alice")
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("got %d conversations, want 2", len(metas))
	}
	ids := map[string]bool{metas[0].ID: true, metas[1].ID: true}
	if !ids[a] || !ids[b] {
		t.Errorf("wrong conversations returned: %+v", metas)
	}
}

func TestListRecentPreviewAndCount(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.Create("")
	s.Append(id, model.RoleUser, "short question", nil)
	s.Append(id, model.RoleAssistant, "short answer", nil)

	metas, err := s.ListRecent(10, 0)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("got %d conversations", len(metas))
	}
	if metas[0].Preview != "short question" {
		t.Errorf("Preview = %q", metas[0].Preview)
	}
	if metas[0].MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", metas[0].MessageCount)
	}
}

func TestListRecentPreviewTruncation(t *testing.T) {
	s := newTestStore(t)
	id, _ := s.Create("")
	long := strings.Repeat("x", 60)
	s.Append(id, model.RoleUser, long, nil)

	metas, err := s.ListRecent(10, 0)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	want := strings.Repeat("x", 50) + "..."
	if metas[0].Preview != want {
		t.Errorf("Preview = %q (len %d), want 50 chars plus ellipsis", metas[0].Preview, len(metas[0].Preview))
	}
}

func TestListRecentPagination(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		s.Create("")
	}

	page1, err := s.ListRecent(2, 0)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	page2, err := s.ListRecent(2, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(page1) != 2 || len(page2) != 2 {
		t.Errorf("page sizes = %d, %d, want 2, 2", len(page1), len(page2))
	}
	if page1[0].ID == page2[0].ID {
		t.Error("pages overlap")
	}
}

// =============================================================================
// DEGRADATION
// =============================================================================

func TestOpenFallsBackToMemory(t *testing.T) {
	// A directory path is not a valid database file.
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open should degrade, not fail: %v", err)
	}
	defer s.Close()

	if !s.InMemory() {
		t.Error("store should report in-memory degradation")
	}
	if _, err := s.Create(""); err != nil {
		t.Errorf("degraded store should keep serving: %v", err)
	}
}

// =============================================================================
// KEYED MUTEX
// =============================================================================

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var order []int
	var mu sync.Mutex

	km.Lock("conv-1")
	done := make(chan struct{})
	go func() {
		km.Lock("conv-1")
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		km.Unlock("conv-1")
		close(done)
	}()

	mu.Lock()
	order = append(order, 1)
	mu.Unlock()
	km.Unlock("conv-1")
	<-done

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("a")
	defer km.Unlock("a")

	acquired := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(acquired)
	}()

	<-acquired // must not deadlock while "a" is held
}
