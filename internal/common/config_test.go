package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, 8000, cfg.Sentiment.MaxTextLength)
	assert.Equal(t, 384, cfg.Embeddings.Dimension)
	assert.Equal(t, 10, cfg.Batch.HardCap)
	assert.Equal(t, LLMProviderOpenAI, cfg.LLM.DefaultProvider)
	assert.InDelta(t, 0.1, cfg.LLM.Temperature, 1e-6)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFiles_TOMLThenYAML(t *testing.T) {
	base := writeConfigFile(t, "base.toml", `
[server]
port = 9000

[batch]
hard_cap = 8

[llm]
default_provider = "gemini"
`)
	override := writeConfigFile(t, "override.yaml", `
server:
  host: 0.0.0.0
sentiment:
  max_text_length: 4000
`)

	cfg, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8, cfg.Batch.HardCap)
	assert.Equal(t, 4000, cfg.Sentiment.MaxTextLength)
	assert.Equal(t, LLMProviderGemini, cfg.LLM.DefaultProvider)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "tenor.toml", "[server]\nport = 9000\n")
	t.Setenv("TENOR_SERVER_PORT", "9100")
	t.Setenv("TENOR_STORAGE_BACKEND", "postgres")

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
}

func TestLoadFromFiles_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad backend", "[storage]\nbackend = \"sqlite\"\n"},
		{"bad duration", "[queue]\ntask_timeout = \"soon\"\n"},
		{"bad schedule", "[sweep]\nenabled = true\nschedule = \"every minute\"\n"},
		{"zero hard cap", "[batch]\nhard_cap = 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, "tenor.toml", tt.content)
			_, err := LoadFromFiles(path)
			assert.Error(t, err)
		})
	}
}

func TestBatchConfig_TierCap(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 3, cfg.Batch.TierCap("basic"))
	assert.Equal(t, 7, cfg.Batch.TierCap("Pro"))
	assert.Equal(t, 10, cfg.Batch.TierCap("enterprise"))
	assert.Equal(t, 3, cfg.Batch.TierCap("unknown"))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, ParseDuration("5m", time.Second))
	assert.Equal(t, time.Second, ParseDuration("", time.Second))
	assert.Equal(t, time.Second, ParseDuration("nope", time.Second))
}
