package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Port string

	// Store
	StorePath                  string        // path of the persisted JSON document
	BackupDir                  string        // where periodic backups land
	StorageQuotaBytes          int64         // serialized document size limit
	FlushInterval              time.Duration // debounce window for dirty-document flushes
	MaxConversations           int
	MaxMessagesPerConversation int
	AutoArchiveAfter           time.Duration // idle age before a conversation is archived
	DefaultWindowSize          int           // trailing-N fallback window
	ExportFormat               string        // "json" (the only supported format today)

	// Selector
	TokenBudget      int     // default context token budget
	RecentCount      int     // messages always included for local continuity
	TopMatches       int     // lexical relevance matches kept
	MaxClusters      int     // topic clusters kept per conversation
	RecencyWeight    float64
	ImportanceWeight float64
	RelevanceWeight  float64

	// Quick-reply cache
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Per-conversation rate limiting on the context endpoints
	ConversationRate  float64 // requests per second
	ConversationBurst int
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "3001"),

		StorePath:                  getEnv("STORE_PATH", "data/conversations.json"),
		BackupDir:                  getEnv("BACKUP_DIR", "data/backups"),
		StorageQuotaBytes:          getInt64Env("STORAGE_QUOTA_BYTES", 50*1024*1024),
		FlushInterval:              getDurationEnv("FLUSH_INTERVAL", 2*time.Second),
		MaxConversations:           getIntEnv("MAX_CONVERSATIONS", 200),
		MaxMessagesPerConversation: getIntEnv("MAX_MESSAGES_PER_CONVERSATION", 2000),
		AutoArchiveAfter:           getDurationEnv("AUTO_ARCHIVE_AFTER", 30*24*time.Hour),
		DefaultWindowSize:          getIntEnv("DEFAULT_WINDOW_SIZE", 20),
		ExportFormat:               getEnv("EXPORT_FORMAT", "json"),

		TokenBudget:      getIntEnv("TOKEN_BUDGET", 4000),
		RecentCount:      getIntEnv("RECENT_COUNT", 5),
		TopMatches:       getIntEnv("TOP_MATCHES", 10),
		MaxClusters:      getIntEnv("MAX_CLUSTERS", 8),
		RecencyWeight:    getFloatEnv("RECENCY_WEIGHT", 0.35),
		ImportanceWeight: getFloatEnv("IMPORTANCE_WEIGHT", 0.2),
		RelevanceWeight:  getFloatEnv("RELEVANCE_WEIGHT", 0.45),

		CacheTTL:        getDurationEnv("CACHE_TTL", 30*time.Minute),
		CacheMaxEntries: getIntEnv("CACHE_MAX_ENTRIES", 500),

		ConversationRate:  getFloatEnv("CONVERSATION_RATE", 5),
		ConversationBurst: getIntEnv("CONVERSATION_BURST", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
