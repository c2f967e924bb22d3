package audit

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey_Secret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("OPENAI_API_KEY", "sk-abc123"); got != "set" {
		t.Errorf("expected 'set', got %q", got)
	}
	if got := SanitiseKey("DOCRAG_API_KEY", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseKey_NonSecret(t *testing.T) {
	t.Parallel()
	if got := SanitiseKey("VECTOR_STORE", "qdrant"); got != "qdrant" {
		t.Errorf("expected 'qdrant', got %q", got)
	}
	if got := SanitiseKey("VECTOR_STORE", ""); got != "unset" {
		t.Errorf("expected 'unset', got %q", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.docrag/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.docrag/config.yaml" {
			t.Errorf("expected '~/.docrag/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "super-secret-value")
	t.Setenv("COLLECTION_NAME", "handbook")

	var buf bytes.Buffer
	LogCommandStart(slog.New(slog.NewTextHandler(&buf, nil)), "ingest", "")

	out := buf.String()
	if strings.Contains(out, "super-secret-value") {
		t.Fatalf("secret leaked into audit log: %s", out)
	}
	for _, want := range []string{"command=ingest", "EMBEDDING_API_KEY=set", "COLLECTION_NAME=handbook", "config_file=none"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}
