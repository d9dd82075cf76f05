package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"contextd/internal/models"
	"contextd/internal/tokens"

	"github.com/google/uuid"
)

// flushState models the persistence lifecycle of the in-memory document:
// clean → dirty (mutation) → flushing (write in progress) → clean.
// A mutation arriving mid-flush bumps the generation counter so the flush
// result cannot mask it; the document goes back to dirty.
type flushState int

const (
	stateClean flushState = iota
	stateDirty
	stateFlushing
)

// messageOverheadBytes pads the compact size of one message for the
// indentation and separators it gains inside the written document.
const messageOverheadBytes = 64

// Options configures a Store instance
type Options struct {
	Path                       string
	QuotaBytes                 int64
	FlushInterval              time.Duration
	MaxConversations           int
	MaxMessagesPerConversation int
	DefaultWindowSize          int
	ExportFormat               string

	// OnFlush is invoked after every successful disk flush (metrics hook)
	OnFlush func()
}

// ContextWindow is the naive trailing-N context fallback
type ContextWindow struct {
	Messages        []models.Message `json:"messages"`
	EstimatedTokens int              `json:"estimated_tokens"`
	Truncated       bool             `json:"truncated"`
}

// Store is the durable conversation store. It keeps an authoritative
// in-memory document and debounces disk writes behind a dirty flag, so
// bursts of rapid message additions collapse into few flushes.
//
// Locking is two-tier. Work on a single conversation holds that
// conversation's mutex plus the read side of mu, so unrelated conversations
// mutate in parallel while same-id operations serialize. Whole-document work
// (map changes, marshaling, iteration) holds mu exclusively, which quiesces
// every per-conversation writer. Document-global counters written under the
// read side (state, gen, size, metadata) are guarded by stateMu.
// Lock order: conversation mutex, then mu, then stateMu.
type Store struct {
	opts Options

	mu     sync.RWMutex
	doc    *document
	closed bool // written only under mu held exclusively

	convLocks sync.Map // conversation id -> *sync.Mutex, taken before mu

	stateMu sync.Mutex
	state   flushState
	gen     uint64 // bumped on every mutation
	docSize int64  // running estimate of the serialized size, resynced on flush

	flushMu sync.Mutex // serializes disk writes
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Open loads (or creates) the persisted document and starts the background
// flush loop. A corrupt or unmigratable document is replaced by a fresh
// default one. The chat must keep working even if history is lost.
func Open(opts Options) (*Store, error) {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 2 * time.Second
	}
	if opts.DefaultWindowSize <= 0 {
		opts.DefaultWindowSize = 20
	}

	defaults := GlobalSettings{
		MaxConversations:           opts.MaxConversations,
		MaxMessagesPerConversation: opts.MaxMessagesPerConversation,
		DefaultWindowSize:          opts.DefaultWindowSize,
		StorageQuotaBytes:          opts.QuotaBytes,
		ExportFormat:               opts.ExportFormat,
	}

	s := &Store{
		opts:   opts,
		stopCh: make(chan struct{}),
	}

	data, err := os.ReadFile(opts.Path)
	switch {
	case os.IsNotExist(err):
		log.Printf("📦 [STORE] No document at %s, starting fresh", opts.Path)
		s.doc = newDocument(defaults)
	case err != nil:
		return nil, fmt.Errorf("failed to read store document: %w", err)
	default:
		doc, merr := migrateDocument(data, defaults)
		if merr != nil {
			log.Printf("⚠️  [STORE] Document at %s is unreadable (%v), starting fresh", opts.Path, merr)
			s.doc = newDocument(defaults)
		} else {
			if doc.Version != schemaVersion {
				log.Printf("📦 [STORE] Migrated document from v%d to v%d", doc.Version, schemaVersion)
			}
			doc.Version = schemaVersion
			doc.Metadata.SchemaVersion = schemaVersion
			s.doc = doc
			log.Printf("✅ [STORE] Loaded %d conversations from %s", len(doc.Conversations), opts.Path)
		}
	}

	if serialized, err := json.MarshalIndent(s.doc, "", "  "); err == nil {
		s.docSize = int64(len(serialized))
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s, nil
}

// flushLoop periodically writes the document to disk when dirty
func (s *Store) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				log.Printf("⚠️  [STORE] Background flush failed: %v", err)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Flush writes the document to disk if it is dirty. Safe to call directly.
func (s *Store) Flush() error {
	s.mu.Lock()
	s.stateMu.Lock()
	if s.state == stateClean {
		s.stateMu.Unlock()
		s.mu.Unlock()
		return nil
	}
	s.state = stateFlushing
	gen := s.gen
	s.stateMu.Unlock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to serialize store document: %w", err)
	}

	s.flushMu.Lock()
	werr := writeAtomic(s.opts.Path, data)
	s.flushMu.Unlock()

	s.stateMu.Lock()
	if werr != nil || s.gen != gen {
		// write failed, or a mutation landed mid-flush
		s.state = stateDirty
	} else {
		s.state = stateClean
		s.docSize = int64(len(data))
	}
	s.stateMu.Unlock()

	if werr != nil {
		return fmt.Errorf("failed to write store document: %w", werr)
	}
	if s.opts.OnFlush != nil {
		s.opts.OnFlush()
	}
	return nil
}

// writeAtomic writes via a temp file + rename so a crash mid-flush leaves
// the previous document intact.
func writeAtomic(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// SetOnFlush installs the post-flush hook. Call before concurrent use.
func (s *Store) SetOnFlush(fn func()) {
	s.opts.OnFlush = fn
}

// Close stops the flush loop and performs a final synchronous flush
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	return s.Flush()
}

// lockConversation serializes operations on a single conversation id
func (s *Store) lockConversation(id string) func() {
	v, _ := s.convLocks.LoadOrStore(id, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// commitDelta admits a mutation of the given size, marking the document
// dirty. An addition that would push the document over quota is rejected,
// so callers check before touching any conversation state. Negative and
// zero deltas always succeed.
func (s *Store) commitDelta(delta int64) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if quota := s.doc.Settings.StorageQuotaBytes; quota > 0 && delta > 0 && s.docSize+delta > quota {
		return fmt.Errorf("%w: %d bytes over %d limit",
			ErrQuotaExceeded, s.docSize+delta, quota)
	}
	s.docSize += delta
	s.gen++
	if s.state != stateFlushing {
		s.state = stateDirty
	}
	return nil
}

// markDirty records a size-neutral mutation
func (s *Store) markDirty() {
	s.commitDelta(0)
}

// estimateSize approximates the serialized footprint of a message inside
// the indented on-disk document. Drift is corrected on the next flush.
func estimateSize(msg models.Message) int64 {
	data, err := json.Marshal(&msg)
	if err != nil {
		return int64(len(msg.Content))
	}
	return int64(len(data)) + messageOverheadBytes
}

// contentDelta is the serialized size change of replacing one content
// string with another.
func contentDelta(previous, next string) int64 {
	pb, _ := json.Marshal(previous)
	nb, _ := json.Marshal(next)
	return int64(len(nb) - len(pb))
}

// CreateConversation creates a conversation shell and returns its id
func (s *Store) CreateConversation(title, modelID string) (string, error) {
	id := uuid.NewString()
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrStoreClosed
	}

	if s.doc.Settings.MaxConversations > 0 && len(s.doc.Conversations) >= s.doc.Settings.MaxConversations {
		return "", fmt.Errorf("%w: conversation limit %d reached",
			ErrQuotaExceeded, s.doc.Settings.MaxConversations)
	}

	conv := &models.Conversation{
		ID:      id,
		Title:   title,
		ModelID: modelID,
		Settings: models.ConversationSettings{
			ContextWindowSize: s.doc.Settings.DefaultWindowSize,
			RetainContext:     true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	shell := int64(0)
	if data, err := json.Marshal(conv); err == nil {
		shell = int64(len(data)) + messageOverheadBytes
	}
	if err := s.commitDelta(shell); err != nil {
		return "", err
	}

	s.doc.Conversations[id] = conv
	s.stateMu.Lock()
	s.doc.Metadata.TotalConversations = len(s.doc.Conversations)
	s.stateMu.Unlock()

	log.Printf("💬 [STORE] Created conversation %s", id)
	return id, nil
}

// AddMessage appends a message to a conversation. Missing id and timestamp
// are filled in; timestamps are kept monotonically increasing. Every check,
// the quota included, runs before the first write, so a rejected message
// leaves the conversation untouched.
func (s *Store) AddMessage(conversationID string, msg models.Message) error {
	unlock := s.lockConversation(conversationID)
	defer unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	conv, ok := s.doc.Conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}

	if s.doc.Settings.MaxMessagesPerConversation > 0 &&
		len(conv.Messages) >= s.doc.Settings.MaxMessagesPerConversation {
		return fmt.Errorf("%w: message limit %d reached for conversation %s",
			ErrQuotaExceeded, s.doc.Settings.MaxMessagesPerConversation, conversationID)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if n := len(conv.Messages); n > 0 {
		if last := conv.Messages[n-1].CreatedAt; !msg.CreatedAt.After(last) {
			msg.CreatedAt = last.Add(time.Millisecond)
		}
	}

	if err := s.commitDelta(estimateSize(msg)); err != nil {
		return err
	}

	conv.Messages = append(conv.Messages, msg)
	conv.MessageCount = len(conv.Messages)
	conv.UpdatedAt = time.Now()
	if msg.Metadata != nil {
		conv.TotalTokens += msg.Metadata.TokensUsed
	}
	if conv.Title == "" && msg.Role == models.RoleUser {
		conv.Title = titleFromContent(msg.Content)
	}

	s.stateMu.Lock()
	s.doc.Metadata.TotalMessages++
	s.stateMu.Unlock()
	return nil
}

// titleFromContent derives a conversation title from the first user message
func titleFromContent(content string) string {
	title := strings.TrimSpace(content)
	if idx := strings.IndexAny(title, "\n"); idx > 0 {
		title = title[:idx]
	}
	if len(title) > 50 {
		title = strings.TrimSpace(title[:50]) + "…"
	}
	if title == "" {
		title = "New conversation"
	}
	return title
}

// GetConversation returns a deep copy of the conversation, or false
func (s *Store) GetConversation(id string) (*models.Conversation, bool) {
	unlock := s.lockConversation(id)
	defer unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.doc.Conversations[id]
	if !ok {
		return nil, false
	}

	cp := *conv
	cp.Messages = make([]models.Message, len(conv.Messages))
	copy(cp.Messages, conv.Messages)
	return &cp, true
}

// ListConversations returns summaries ordered by recency, pinned first.
// Held exclusively so per-conversation writers are quiesced while every
// conversation's fields are read.
func (s *Store) ListConversations() []models.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries := make([]models.ConversationSummary, 0, len(s.doc.Conversations))
	for _, conv := range s.doc.Conversations {
		summaries = append(summaries, models.ConversationSummary{
			ID:           conv.ID,
			Title:        conv.Title,
			ModelID:      conv.ModelID,
			MessageCount: conv.MessageCount,
			Archived:     conv.Archived,
			Pinned:       conv.Pinned,
			UpdatedAt:    conv.UpdatedAt,
		})
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		if summaries[i].Pinned != summaries[j].Pinned {
			return summaries[i].Pinned
		}
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries
}

// DeleteConversation removes a conversation entirely
func (s *Store) DeleteConversation(id string) error {
	unlock := s.lockConversation(id)
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.doc.Conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	removed := int64(0)
	if data, err := json.Marshal(conv); err == nil {
		removed = int64(len(data))
	}
	delete(s.doc.Conversations, id)
	s.convLocks.Delete(id)

	s.stateMu.Lock()
	s.doc.Metadata.TotalMessages -= len(conv.Messages)
	s.doc.Metadata.TotalConversations = len(s.doc.Conversations)
	s.stateMu.Unlock()
	s.commitDelta(-removed)

	log.Printf("🗑️  [STORE] Deleted conversation %s", id)
	return nil
}

// ClearConversation removes all messages but keeps the conversation shell
func (s *Store) ClearConversation(id string) error {
	unlock := s.lockConversation(id)
	defer unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.doc.Conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	removed := int64(0)
	if data, err := json.Marshal(conv.Messages); err == nil {
		removed = int64(len(data))
	}

	s.stateMu.Lock()
	s.doc.Metadata.TotalMessages -= len(conv.Messages)
	s.stateMu.Unlock()
	conv.Messages = nil
	conv.MessageCount = 0
	conv.UpdatedAt = time.Now()
	s.commitDelta(-removed)
	return nil
}

// RenameConversation sets a user-provided title
func (s *Store) RenameConversation(id, title string) error {
	return s.updateConversation(id, func(conv *models.Conversation) {
		conv.Title = title
	})
}

// SetPinned toggles the pinned flag
func (s *Store) SetPinned(id string, pinned bool) error {
	return s.updateConversation(id, func(conv *models.Conversation) {
		conv.Pinned = pinned
	})
}

// SetArchived toggles the archived flag
func (s *Store) SetArchived(id string, archived bool) error {
	return s.updateConversation(id, func(conv *models.Conversation) {
		conv.Archived = archived
	})
}

func (s *Store) updateConversation(id string, update func(*models.Conversation)) error {
	unlock := s.lockConversation(id)
	defer unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.doc.Conversations[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	update(conv)
	conv.UpdatedAt = time.Now()
	s.markDirty()
	return nil
}

// EditMessage replaces a message's content. Derived annotations are never
// persisted, so downstream consumers recompute them automatically. The
// quota check precedes the write; a rejected edit changes nothing.
func (s *Store) EditMessage(conversationID, messageID, content string) error {
	unlock := s.lockConversation(conversationID)
	defer unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.doc.Conversations[conversationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			if err := s.commitDelta(contentDelta(conv.Messages[i].Content, content)); err != nil {
				return err
			}
			conv.Messages[i].Content = content
			conv.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s in conversation %s", ErrMessageNotFound, messageID, conversationID)
}

// UpdateSettings replaces a conversation's tuning block
func (s *Store) UpdateSettings(id string, settings models.ConversationSettings) error {
	return s.updateConversation(id, func(conv *models.Conversation) {
		conv.Settings = settings
	})
}

// BuildContextWindow returns the trailing-N fallback window. Used when the
// richer context selector is unavailable or fails.
func (s *Store) BuildContextWindow(id string) (*ContextWindow, error) {
	unlock := s.lockConversation(id)
	defer unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.doc.Conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}

	n := conv.Settings.ContextWindowSize
	if n <= 0 {
		n = s.doc.Settings.DefaultWindowSize
	}

	start := len(conv.Messages) - n
	truncated := start > 0
	if start < 0 {
		start = 0
	}

	window := make([]models.Message, len(conv.Messages)-start)
	copy(window, conv.Messages[start:])

	return &ContextWindow{
		Messages:        window,
		EstimatedTokens: tokens.EstimateMessagesTokens(window),
		Truncated:       truncated,
	}, nil
}

// ArchiveIdle flags unpinned conversations idle beyond maxAge as archived.
// Returns the number of conversations archived.
func (s *Store) ArchiveIdle(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	archived := 0
	for _, conv := range s.doc.Conversations {
		if conv.Archived || conv.Pinned {
			continue
		}
		if conv.UpdatedAt.Before(cutoff) {
			conv.Archived = true
			archived++
		}
	}
	if archived > 0 {
		s.markDirty()
		log.Printf("🗄️  [STORE] Auto-archived %d idle conversations", archived)
	}
	return archived
}

// Export returns the serialized document (the configured export format is
// JSON, the only format supported today).
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.MarshalIndent(s.doc, "", "  ")
}

// Backup writes a timestamped document copy into dir and records it
func (s *Store) Backup(dir string) error {
	data, err := s.Export()
	if err != nil {
		return fmt.Errorf("failed to serialize backup: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup dir: %w", err)
	}

	name := fmt.Sprintf("conversations-%s.json", time.Now().Format("20060102-150405"))
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}

	s.mu.RLock()
	now := time.Now()
	s.stateMu.Lock()
	s.doc.Metadata.LastBackup = &now
	s.stateMu.Unlock()
	s.markDirty()
	s.mu.RUnlock()

	log.Printf("💾 [STORE] Backup written: %s", name)
	return nil
}

// Settings returns a copy of the global settings block
func (s *Store) Settings() GlobalSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Settings
}

// Stats returns document-level counters for health/status endpoints
func (s *Store) Stats() StorageMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.doc.Metadata
}
