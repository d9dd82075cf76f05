package store

import (
	"encoding/json"
	"fmt"
	"time"

	"contextd/internal/models"
)

// schemaVersion is the current persisted document version. Bump it whenever
// the on-disk layout changes and add a migration path in migrateDocument.
const schemaVersion = 2

// GlobalSettings is the settings block of the persisted document
type GlobalSettings struct {
	MaxConversations           int    `json:"max_conversations"`
	MaxMessagesPerConversation int    `json:"max_messages_per_conversation"`
	AutoArchiveDays            int    `json:"auto_archive_days"`
	DefaultWindowSize          int    `json:"default_window_size"`
	StorageQuotaBytes          int64  `json:"storage_quota_bytes"`
	ExportFormat               string `json:"export_format"`
}

// StorageMetadata tracks document-level bookkeeping
type StorageMetadata struct {
	SchemaVersion      int        `json:"schema_version"`
	CreatedAt          time.Time  `json:"created_at"`
	LastBackup         *time.Time `json:"last_backup,omitempty"`
	TotalConversations int        `json:"total_conversations"`
	TotalMessages      int        `json:"total_messages"`
}

// document is the single versioned JSON document holding all conversations
type document struct {
	Version       int                             `json:"version"`
	Conversations map[string]*models.Conversation `json:"conversations"`
	Settings      GlobalSettings                  `json:"settings"`
	Metadata      StorageMetadata                 `json:"metadata"`
}

func newDocument(settings GlobalSettings) *document {
	return &document{
		Version:       schemaVersion,
		Conversations: make(map[string]*models.Conversation),
		Settings:      settings,
		Metadata: StorageMetadata{
			SchemaVersion: schemaVersion,
			CreatedAt:     time.Now(),
		},
	}
}

// legacy v1 layout: timestamps were persisted as unix milliseconds
type legacyMessage struct {
	ID        string                     `json:"id"`
	Role      string                     `json:"role"`
	Content   string                     `json:"content"`
	Metadata  *models.GenerationMetadata `json:"metadata,omitempty"`
	CreatedAt int64                      `json:"created_at"`
}

type legacyConversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	ModelID   string          `json:"model_id,omitempty"`
	Messages  []legacyMessage `json:"messages"`
	Archived  bool            `json:"archived"`
	Pinned    bool            `json:"pinned"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

type legacyDocument struct {
	Version       int                           `json:"version"`
	Conversations map[string]legacyConversation `json:"conversations"`
	Settings      GlobalSettings                `json:"settings"`
	Metadata      StorageMetadata               `json:"metadata"`
}

// migrateDocument parses raw document bytes, migrating older schema versions
// forward. Returns ErrInvalidData when the payload cannot be understood.
func migrateDocument(data []byte, defaults GlobalSettings) (*document, error) {
	var probe struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}

	switch {
	case probe.Version == schemaVersion:
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		if doc.Conversations == nil {
			doc.Conversations = make(map[string]*models.Conversation)
		}
		applySettingsDefaults(&doc.Settings, defaults)
		return &doc, nil

	case probe.Version <= 1:
		var legacy legacyDocument
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("%w: v1 document unreadable: %v", ErrInvalidData, err)
		}
		doc := newDocument(defaults)
		applySettingsDefaults(&legacy.Settings, defaults)
		doc.Settings = legacy.Settings
		if !legacy.Metadata.CreatedAt.IsZero() {
			doc.Metadata.CreatedAt = legacy.Metadata.CreatedAt
		}
		for id, lc := range legacy.Conversations {
			conv := &models.Conversation{
				ID:        lc.ID,
				Title:     lc.Title,
				ModelID:   lc.ModelID,
				Archived:  lc.Archived,
				Pinned:    lc.Pinned,
				CreatedAt: time.UnixMilli(lc.CreatedAt),
				UpdatedAt: time.UnixMilli(lc.UpdatedAt),
				Settings: models.ConversationSettings{
					ContextWindowSize: defaults.DefaultWindowSize,
					RetainContext:     true,
				},
			}
			for _, lm := range lc.Messages {
				conv.Messages = append(conv.Messages, models.Message{
					ID:        lm.ID,
					Role:      lm.Role,
					Content:   lm.Content,
					Metadata:  lm.Metadata,
					CreatedAt: time.UnixMilli(lm.CreatedAt),
				})
			}
			conv.MessageCount = len(conv.Messages)
			doc.Conversations[id] = conv
			doc.Metadata.TotalMessages += conv.MessageCount
		}
		doc.Metadata.TotalConversations = len(doc.Conversations)
		return doc, nil

	default:
		return nil, fmt.Errorf("%w: document version %d is newer than supported version %d",
			ErrInvalidData, probe.Version, schemaVersion)
	}
}

func applySettingsDefaults(s *GlobalSettings, defaults GlobalSettings) {
	if s.MaxConversations == 0 {
		s.MaxConversations = defaults.MaxConversations
	}
	if s.MaxMessagesPerConversation == 0 {
		s.MaxMessagesPerConversation = defaults.MaxMessagesPerConversation
	}
	if s.AutoArchiveDays == 0 {
		s.AutoArchiveDays = defaults.AutoArchiveDays
	}
	if s.DefaultWindowSize == 0 {
		s.DefaultWindowSize = defaults.DefaultWindowSize
	}
	if s.StorageQuotaBytes == 0 {
		s.StorageQuotaBytes = defaults.StorageQuotaBytes
	}
	if s.ExportFormat == "" {
		s.ExportFormat = defaults.ExportFormat
	}
}
