package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

const testYAML = `app:
  env: test
  port: 9999

mongo:
  uri: mongodb://localhost:27017
  db: chatterly_test

redis:
  addr: localhost:6379

kafka:
  brokers:
    - localhost:9092

jwt:
  secret: test-secret

rate:
  per_minute: 30
`

func TestLoadReadsShippedKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("config.yaml", []byte(testYAML), 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 9999, cfg.App.Port)
	// the rate key must not silently fall back to the default
	require.Equal(t, 30, cfg.Rate.PerMinute)
	// unset keys still get defaults
	require.Equal(t, "chatterly", cfg.Redis.Prefix)
	require.Equal(t, 60, cfg.JWT.AccessTTLMinutes)
}
