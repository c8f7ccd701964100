package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OptionsFlow/pkg/config"
)

func TestInitializeApp_AdaptersDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "error"

	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	assert.NotNil(t, app)
}

func TestOptionalProvidersReturnNil(t *testing.T) {
	cfg := config.Default()

	ch, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)

	archive, err := ProvideAlertArchive(ch, cfg)
	require.NoError(t, err)
	assert.Nil(t, archive)

	rc, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)
	assert.NotNil(t, ProvideAlertStore(rc, cfg))

	producer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, producer)
}
