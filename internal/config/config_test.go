package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onereply/api/internal/consolidate"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, "", cfg.DatabaseURL)
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.Equal(t, consolidate.DefaultPolicy(), cfg.Policy)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadParsesListsAndMaps(t *testing.T) {
	t.Setenv("ONEREPLY_NOTIFY_TO", "clerk@example.gov, ,mayor@example.gov")
	t.Setenv("ONEREPLY_TEAMS_WEBHOOKS", "dpw=https://a.webhook.office.com/x,broken,health=")
	t.Setenv("ONEREPLY_ALLOWED_SENDER_DOMAINS", "example.gov")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"clerk@example.gov", "mayor@example.gov"}, cfg.NotifyTo)
	assert.Equal(t, map[string]string{"dpw": "https://a.webhook.office.com/x"}, cfg.TeamsWebhooks)
	assert.Equal(t, []string{"example.gov"}, cfg.AllowedSenderDomains)
	assert.True(t, cfg.MinioUseSSL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loglevel must be one of")

	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("ONEREPLY_NOTIFY_TO", "not-an-email")
	_, err = Load()
	require.Error(t, err)
}

func TestLoadPolicyOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("understanding:\n  strategy: join\n  threshold: 0.8\n  limit: 2\n"), 0o644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, consolidate.StrategyJoin, policy.Understanding.Strategy)
	assert.Equal(t, 0.8, policy.Understanding.Threshold)
	assert.Equal(t, consolidate.DefaultPolicy().Recommendations, policy.Recommendations)

	require.NoError(t, os.WriteFile(path, []byte("actions:\n  strategy: shuffle\n"), 0o644))
	_, err = LoadPolicy(path)
	assert.Error(t, err)
}
