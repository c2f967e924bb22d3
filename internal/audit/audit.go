// Package audit logs CLI command invocations together with the operational
// configuration they ran with, so operators can trace what an ingestion or
// search used. Secrets are logged as presence/absence only.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// auditEntry defines an env var to include in the audit log.
type auditEntry struct {
	key string
	// secret redacts the value to "set"/"unset".
	secret bool
}

// auditKeys is the ordered list of env vars included in every audit log entry.
var auditKeys = []auditEntry{
	{"DOCUMENTS_DIR", false},
	{"CHUNK_SIZE", false},
	{"CHUNK_OVERLAP", false},
	{"MARKDOWN_STRIP", false},
	{"VECTOR_STORE", false},
	{"STORE_DIR", false},
	{"COLLECTION_NAME", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_API_KEY", true},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_DIMENSIONS", false},
	{"EMBEDDING_DEVICE", false},
	{"EMBEDDING_BATCH_SIZE", false},
	{"EMBEDDING_API_KEY", true},
	{"EMBEDDING_ENDPOINT", false},
	{"OLLAMA_HOST", false},
	{"OPENAI_API_KEY", true},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"TOP_K", false},
	{"DOCRAG_RUNS_DB", false},
	{"DOCRAG_API_KEY", true},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
}

// secretEnvKeys is derived from auditKeys so the two never drift apart.
var secretEnvKeys = func() map[string]bool {
	m := make(map[string]bool)
	for _, e := range auditKeys {
		if e.secret {
			m[e.key] = true
		}
	}
	return m
}()

// LogCommandStart emits a structured audit log entry when a CLI command begins.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}
	for _, entry := range auditKeys {
		attrs = append(attrs, slog.String(entry.key, SanitiseKey(entry.key, os.Getenv(entry.key))))
	}

	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for known secret keys, or the actual
// value for non-secret keys.
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path with the home directory
// replaced by "~", or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
