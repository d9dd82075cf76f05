package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"contextd/internal/models"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Path:              filepath.Join(t.TempDir(), "conversations.json"),
		FlushInterval:     time.Minute, // keep the background loop quiet during tests
		DefaultWindowSize: 20,
		ExportFormat:      "json",
	}
}

func mustOpen(t *testing.T, opts Options) *Store {
	t.Helper()
	st, err := Open(opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCreateAndGetConversation(t *testing.T) {
	st := mustOpen(t, testOptions(t))

	id, err := st.CreateConversation("My chat", "gpt-test")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if id == "" {
		t.Fatal("empty conversation id")
	}

	conv, ok := st.GetConversation(id)
	if !ok {
		t.Fatal("conversation not found after create")
	}
	if conv.Title != "My chat" || conv.ModelID != "gpt-test" {
		t.Errorf("conv = %q/%q, want My chat/gpt-test", conv.Title, conv.ModelID)
	}
	if !conv.Settings.RetainContext || conv.Settings.ContextWindowSize != 20 {
		t.Errorf("settings = %+v, want defaults applied", conv.Settings)
	}

	if _, ok := st.GetConversation("missing"); ok {
		t.Error("unknown id should not resolve")
	}
}

func TestAddMessageFillsFields(t *testing.T) {
	st := mustOpen(t, testOptions(t))
	id, _ := st.CreateConversation("", "")

	if err := st.AddMessage(id, models.Message{Role: models.RoleUser, Content: "hello world, how are you"}); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	conv, _ := st.GetConversation(id)
	if conv.MessageCount != 1 {
		t.Fatalf("MessageCount = %d, want 1", conv.MessageCount)
	}
	msg := conv.Messages[0]
	if msg.ID == "" {
		t.Error("message id not generated")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("message timestamp not set")
	}
	// untitled conversations take their title from the first user message
	if conv.Title != "hello world, how are you" {
		t.Errorf("derived title = %q", conv.Title)
	}

	if err := st.AddMessage("missing", models.Message{Role: models.RoleUser, Content: "x"}); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("AddMessage to unknown conversation = %v, want ErrConversationNotFound", err)
	}
}

func TestAddMessageMonotonicTimestamps(t *testing.T) {
	st := mustOpen(t, testOptions(t))
	id, _ := st.CreateConversation("t", "")

	stamp := time.Now()
	for i := 0; i < 3; i++ {
		err := st.AddMessage(id, models.Message{Role: models.RoleUser, Content: "same stamp", CreatedAt: stamp})
		if err != nil {
			t.Fatalf("AddMessage %d failed: %v", i, err)
		}
	}

	conv, _ := st.GetConversation(id)
	for i := 1; i < len(conv.Messages); i++ {
		if !conv.Messages[i].CreatedAt.After(conv.Messages[i-1].CreatedAt) {
			t.Errorf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	opts := testOptions(t)

	st, err := Open(opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	id, _ := st.CreateConversation("Round trip", "")
	st.AddMessage(id, models.Message{Role: models.RoleUser, Content: "first"})
	st.AddMessage(id, models.Message{Role: models.RoleAssistant, Content: "second"})
	if err := st.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := mustOpen(t, opts)
	conv, ok := reopened.GetConversation(id)
	if !ok {
		t.Fatal("conversation lost across restart")
	}
	if len(conv.Messages) != 2 {
		t.Fatalf("got %d messages after reopen, want 2", len(conv.Messages))
	}
	if conv.Messages[0].Content != "first" || conv.Messages[1].Content != "second" {
		t.Error("message order or content corrupted across restart")
	}
}

func TestOpenCorruptDocumentStartsFresh(t *testing.T) {
	opts := testOptions(t)
	if err := os.WriteFile(opts.Path, []byte("{not json at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := mustOpen(t, opts)
	if len(st.ListConversations()) != 0 {
		t.Error("corrupt document should yield an empty store")
	}

	// the store stays usable
	if _, err := st.CreateConversation("after recovery", ""); err != nil {
		t.Errorf("store unusable after corrupt recovery: %v", err)
	}
}

func TestOpenNewerVersionStartsFresh(t *testing.T) {
	opts := testOptions(t)
	if err := os.WriteFile(opts.Path, []byte(`{"version": 99}`), 0o644); err != nil {
		t.Fatal(err)
	}

	st := mustOpen(t, opts)
	if len(st.ListConversations()) != 0 {
		t.Error("unsupported future version should yield an empty store")
	}
}

func TestOpenMigratesLegacyDocument(t *testing.T) {
	opts := testOptions(t)

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	legacy := fmt.Sprintf(`{
		"version": 1,
		"conversations": {
			"conv-1": {
				"id": "conv-1",
				"title": "Legacy chat",
				"messages": [
					{"id": "msg-1", "role": "user", "content": "old message", "created_at": %d}
				],
				"created_at": %d,
				"updated_at": %d
			}
		}
	}`, created.UnixMilli(), created.UnixMilli(), created.UnixMilli())
	if err := os.WriteFile(opts.Path, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	st := mustOpen(t, opts)
	conv, ok := st.GetConversation("conv-1")
	if !ok {
		t.Fatal("legacy conversation not migrated")
	}
	if conv.Title != "Legacy chat" || len(conv.Messages) != 1 {
		t.Errorf("migrated conv = %q with %d messages", conv.Title, len(conv.Messages))
	}
	if !conv.Messages[0].CreatedAt.Equal(created) {
		t.Errorf("timestamp = %v, want %v", conv.Messages[0].CreatedAt, created)
	}
	if conv.Settings.ContextWindowSize != 20 {
		t.Errorf("migrated settings missing defaults: %+v", conv.Settings)
	}

	stats := st.Stats()
	if stats.TotalConversations != 1 || stats.TotalMessages != 1 {
		t.Errorf("stats = %+v after migration", stats)
	}
}

func TestFlushWritesCurrentSchema(t *testing.T) {
	opts := testOptions(t)
	st := mustOpen(t, opts)

	id, _ := st.CreateConversation("Flushed", "")
	st.AddMessage(id, models.Message{Role: models.RoleUser, Content: "persist me"})
	if err := st.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	data, err := os.ReadFile(opts.Path)
	if err != nil {
		t.Fatalf("document not written: %v", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("document unreadable: %v", err)
	}
	if doc.Version != schemaVersion {
		t.Errorf("version = %d, want %d", doc.Version, schemaVersion)
	}
	if _, ok := doc.Conversations[id]; !ok {
		t.Error("flushed document missing the conversation")
	}
}

func TestQuotaRejectsOversizedMessage(t *testing.T) {
	opts := testOptions(t)
	opts.QuotaBytes = 2000
	st := mustOpen(t, opts)

	id, err := st.CreateConversation("Quota", "")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	err = st.AddMessage(id, models.Message{Role: models.RoleUser, Content: strings.Repeat("x", 5000)})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("oversized message error = %v, want ErrQuotaExceeded", err)
	}

	// a rejected write is never applied
	conv, _ := st.GetConversation(id)
	if len(conv.Messages) != 0 {
		t.Errorf("rejected message was kept: %d messages", len(conv.Messages))
	}
	if st.Stats().TotalMessages != 0 {
		t.Errorf("TotalMessages = %d after rejection, want 0", st.Stats().TotalMessages)
	}
}

func TestQuotaRejectionLeavesConversationUntouched(t *testing.T) {
	opts := testOptions(t)
	opts.QuotaBytes = 2000
	st := mustOpen(t, opts)

	id, err := st.CreateConversation("", "")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	before, _ := st.GetConversation(id)

	err = st.AddMessage(id, models.Message{
		Role:     models.RoleUser,
		Content:  strings.Repeat("x", 5000),
		Metadata: &models.GenerationMetadata{TokensUsed: 1234},
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("oversized message error = %v, want ErrQuotaExceeded", err)
	}

	after, _ := st.GetConversation(id)
	if after.TotalTokens != 0 {
		t.Errorf("TotalTokens = %d after rejection, want 0", after.TotalTokens)
	}
	if after.Title != "" {
		t.Errorf("title %q derived from a rejected message", after.Title)
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("UpdatedAt moved from %v to %v on a rejected write", before.UpdatedAt, after.UpdatedAt)
	}

	// the conversation still accepts writes that fit
	if err := st.AddMessage(id, models.Message{Role: models.RoleUser, Content: "small"}); err != nil {
		t.Fatalf("in-quota message rejected: %v", err)
	}
}

func TestConcurrentMutationAcrossConversations(t *testing.T) {
	st := mustOpen(t, testOptions(t))

	const convCount = 8
	const perConv = 25

	ids := make([]string, convCount)
	for i := range ids {
		id, err := st.CreateConversation(fmt.Sprintf("conv %d", i), "")
		if err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
		ids[i] = id
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < perConv; i++ {
				st.AddMessage(id, models.Message{Role: models.RoleUser, Content: fmt.Sprintf("msg %d", i)})
				st.GetConversation(id)
			}
		}(id)
	}
	wg.Wait()

	for _, id := range ids {
		conv, ok := st.GetConversation(id)
		if !ok || conv.MessageCount != perConv {
			t.Fatalf("conversation %s has %d messages, want %d", id, conv.MessageCount, perConv)
		}
	}
	if got := st.Stats().TotalMessages; got != convCount*perConv {
		t.Errorf("TotalMessages = %d, want %d", got, convCount*perConv)
	}
}

func TestConversationLimits(t *testing.T) {
	opts := testOptions(t)
	opts.MaxConversations = 1
	opts.MaxMessagesPerConversation = 2
	st := mustOpen(t, opts)

	id, err := st.CreateConversation("only one", "")
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := st.CreateConversation("second", ""); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("second create = %v, want ErrQuotaExceeded", err)
	}

	st.AddMessage(id, models.Message{Role: models.RoleUser, Content: "one"})
	st.AddMessage(id, models.Message{Role: models.RoleAssistant, Content: "two"})
	if err := st.AddMessage(id, models.Message{Role: models.RoleUser, Content: "three"}); !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("over-limit message = %v, want ErrQuotaExceeded", err)
	}
}

func TestListConversationsOrdering(t *testing.T) {
	st := mustOpen(t, testOptions(t))

	first, _ := st.CreateConversation("older", "")
	time.Sleep(2 * time.Millisecond)
	second, _ := st.CreateConversation("newer", "")

	list := st.ListConversations()
	if len(list) != 2 || list[0].ID != second {
		t.Fatalf("expected newest first, got %+v", list)
	}

	// pinned conversations jump the recency ordering
	if err := st.SetPinned(first, true); err != nil {
		t.Fatalf("SetPinned failed: %v", err)
	}
	list = st.ListConversations()
	if list[0].ID != first || !list[0].Pinned {
		t.Errorf("pinned conversation not listed first: %+v", list)
	}
}

func TestClearAndDelete(t *testing.T) {
	st := mustOpen(t, testOptions(t))
	id, _ := st.CreateConversation("to clear", "")
	st.AddMessage(id, models.Message{Role: models.RoleUser, Content: "x"})

	if err := st.ClearConversation(id); err != nil {
		t.Fatalf("ClearConversation failed: %v", err)
	}
	conv, _ := st.GetConversation(id)
	if conv.MessageCount != 0 || len(conv.Messages) != 0 {
		t.Error("clear left messages behind")
	}
	if conv.Title != "to clear" {
		t.Error("clear should keep the conversation shell")
	}

	if err := st.DeleteConversation(id); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if _, ok := st.GetConversation(id); ok {
		t.Error("conversation still present after delete")
	}
	if err := st.DeleteConversation(id); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("double delete = %v, want ErrConversationNotFound", err)
	}
}

func TestEditMessage(t *testing.T) {
	st := mustOpen(t, testOptions(t))
	id, _ := st.CreateConversation("edits", "")
	st.AddMessage(id, models.Message{ID: "msg-1", Role: models.RoleUser, Content: "tyop"})

	if err := st.EditMessage(id, "msg-1", "typo"); err != nil {
		t.Fatalf("EditMessage failed: %v", err)
	}
	conv, _ := st.GetConversation(id)
	if conv.Messages[0].Content != "typo" {
		t.Errorf("content = %q after edit", conv.Messages[0].Content)
	}

	if err := st.EditMessage(id, "missing", "x"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("edit of unknown message = %v, want ErrMessageNotFound", err)
	}
}

func TestUpdateSettings(t *testing.T) {
	st := mustOpen(t, testOptions(t))
	id, _ := st.CreateConversation("tuned", "")

	settings := models.ConversationSettings{ContextWindowSize: 5, RetainContext: false}
	if err := st.UpdateSettings(id, settings); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	conv, _ := st.GetConversation(id)
	if conv.Settings != settings {
		t.Errorf("settings = %+v, want %+v", conv.Settings, settings)
	}

	if err := st.UpdateSettings("missing", settings); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("update of unknown conversation = %v, want ErrConversationNotFound", err)
	}
}

func TestBuildContextWindow(t *testing.T) {
	opts := testOptions(t)
	opts.DefaultWindowSize = 2
	st := mustOpen(t, opts)

	id, _ := st.CreateConversation("window", "")
	for i := 0; i < 3; i++ {
		st.AddMessage(id, models.Message{Role: models.RoleUser, Content: fmt.Sprintf("message %d", i)})
	}

	window, err := st.BuildContextWindow(id)
	if err != nil {
		t.Fatalf("BuildContextWindow failed: %v", err)
	}
	if len(window.Messages) != 2 {
		t.Fatalf("window has %d messages, want 2", len(window.Messages))
	}
	if window.Messages[0].Content != "message 1" || window.Messages[1].Content != "message 2" {
		t.Error("window did not keep the trailing messages")
	}
	if !window.Truncated {
		t.Error("dropping a message should flag truncation")
	}
	if window.EstimatedTokens <= 0 {
		t.Error("window estimate missing")
	}

	if _, err := st.BuildContextWindow("missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("window for unknown conversation = %v, want ErrConversationNotFound", err)
	}
}

func TestArchiveIdle(t *testing.T) {
	st := mustOpen(t, testOptions(t))

	idle, _ := st.CreateConversation("idle", "")
	pinned, _ := st.CreateConversation("pinned", "")
	st.SetPinned(pinned, true)

	time.Sleep(2 * time.Millisecond)
	archived := st.ArchiveIdle(time.Millisecond)
	if archived != 1 {
		t.Fatalf("archived %d conversations, want 1", archived)
	}

	conv, _ := st.GetConversation(idle)
	if !conv.Archived {
		t.Error("idle conversation not archived")
	}
	conv, _ = st.GetConversation(pinned)
	if conv.Archived {
		t.Error("pinned conversation must not be auto-archived")
	}
}

func TestExportAndBackup(t *testing.T) {
	opts := testOptions(t)
	st := mustOpen(t, opts)
	id, _ := st.CreateConversation("exported", "")

	data, err := st.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if !strings.Contains(string(data), id) {
		t.Error("export missing the conversation")
	}

	backupDir := filepath.Join(filepath.Dir(opts.Path), "backups")
	if err := st.Backup(backupDir); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	entries, err := os.ReadDir(backupDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("backup dir has %d entries (err %v), want 1", len(entries), err)
	}
	if st.Stats().LastBackup == nil {
		t.Error("LastBackup not recorded")
	}
}

func TestCloseRejectsFurtherWrites(t *testing.T) {
	st := mustOpen(t, testOptions(t))
	st.Close()

	if _, err := st.CreateConversation("late", ""); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("create after close = %v, want ErrStoreClosed", err)
	}
}
