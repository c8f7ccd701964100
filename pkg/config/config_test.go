package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 3, c.Engine.Sweep.MinLegs)
	assert.Equal(t, 2*time.Second, c.Engine.Sweep.MaxTimeWindow)
	assert.Equal(t, int64(100), c.Engine.Block.MinContracts)
	assert.Equal(t, []string{"EDGX", "DARK", "TRF", "ADF", "OTC"}, c.Engine.DarkPool.Venues)
	assert.Equal(t, 60*time.Minute, c.Engine.Aggregator.Window)
	assert.Equal(t, 15*time.Minute, c.Engine.Flow.Window)
	assert.Equal(t, []string{"console"}, c.Engine.Dispatch.DefaultChannels)
	assert.Equal(t, "options.trades", c.Kafka.TradesTopic)
}

func TestParse_OverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
server:
  port: 9090
engine:
  sweep:
    min_legs: 4
  flow:
    window: 5m
`))
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 4, c.Engine.Sweep.MinLegs)
	assert.Equal(t, 5*time.Minute, c.Engine.Flow.Window)
	assert.Equal(t, int64(100), c.Engine.Block.MinContracts)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad yaml":          "server: [",
		"bad level":         "logging:\n  level: loud\n",
		"kafka no brokers":  "kafka:\n  enabled: true\n  brokers: []\n",
		"kafka channel":     "engine:\n  dispatch:\n    default_channels: [kafka]\n",
		"buffer below legs": "engine:\n  sweep:\n    min_legs: 5\n    max_buffer_legs: 4\n",
		"bad webhook":       "engine:\n  dispatch:\n    webhook_urls: [not-a-url]\n",
		"telegram no token": "telegram:\n  enabled: true\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o600))

	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("TELEGRAM_TOKEN", "token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")
	t.Setenv("WEBHOOK_URLS", "https://hooks.example.com/a")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Telegram.Enabled)
	assert.Equal(t, int64(42), c.Telegram.ChatID)
	assert.Equal(t, []string{"https://hooks.example.com/a"}, c.Engine.Dispatch.WebhookURLs)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
