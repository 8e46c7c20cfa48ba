package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "habit-hub", cfg.App.Name)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, "none", cfg.Scoring.PartialPolicy)
	assert.Equal(t, LockBackendMemory, cfg.Scoring.LockBackend)
	assert.Equal(t, 2, cfg.Scoring.MaxAchievementPasses)
	assert.Equal(t, "15 0 * * *", cfg.Scheduler.BackfillCron)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.True(t, cfg.Features.PeerRankingFor("user-1"))
	assert.False(t, cfg.Features.EventFanoutEnabled())
}

func TestLoad_EnvironmentAndDotenv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SCORING_PARTIAL_POLICY=proportional\nHTTP_PORT=9000\n"), 0o600))

	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("HTTP_API_KEYS", "a, b,,")
	t.Setenv("SCHEDULER_BACKFILL_LOOKBACK_DAYS", "7")
	t.Setenv("FEATURE_SCORING_PEER_RANKING", "false")
	t.Cleanup(func() { os.Unsetenv("SCORING_PARTIAL_POLICY") })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "proportional", cfg.Scoring.PartialPolicy)
	assert.Equal(t, 9100, cfg.HTTP.Port, "variables already set win over .env")
	assert.Equal(t, []string{"a", "b"}, cfg.HTTP.APIKeys)
	assert.Equal(t, 7, cfg.Scheduler.BackfillLookbackDays)
	assert.False(t, cfg.Features.PeerRankingFor("user-1"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"partial policy", func(c *Config) { c.Scoring.PartialPolicy = "half" }},
		{"lock backend", func(c *Config) { c.Scoring.LockBackend = "etcd" }},
		{"redis lock without redis", func(c *Config) {
			c.Scoring.LockBackend = LockBackendRedis
			c.Redis.Disabled = true
		}},
		{"passes", func(c *Config) { c.Scoring.MaxAchievementPasses = 0 }},
		{"lookback", func(c *Config) { c.Scheduler.BackfillLookbackDays = 0 }},
		{"port", func(c *Config) { c.HTTP.Port = 0 }},
		{"production without database", func(c *Config) { c.App.Environment = EnvProduction }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				App:       loadAppConfig(),
				Redis:     loadRedisConfig(),
				Scoring:   loadScoringConfig(),
				Scheduler: loadSchedulerConfig(),
				HTTP:      loadHTTPConfig(),
			}
			require.NoError(t, cfg.Validate())

			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFeatureFlags(t *testing.T) {
	ff := NewFeatureFlags()

	assert.True(t, ff.StreakCacheEnabled())
	assert.False(t, ff.IsEnabled("unknown", nil))

	ff.SetUserOverride("user-1", FeatureStreakCache, false)
	assert.False(t, ff.IsEnabled(FeatureStreakCache, &FeatureContext{UserID: "user-1"}))
	assert.True(t, ff.IsEnabled(FeatureStreakCache, &FeatureContext{UserID: "user-2"}))
	ff.ClearUserOverrides("user-1")
	assert.True(t, ff.IsEnabled(FeatureStreakCache, &FeatureContext{UserID: "user-1"}))

	require.NoError(t, ff.DisableFeature(FeatureAchievementBonuses))
	assert.False(t, ff.AchievementBonusesFor("user-1"))
	assert.True(t, ff.IsEnabled(FeatureAchievementBonuses, &FeatureContext{UserID: "admin", IsAdmin: true}))

	assert.ErrorIs(t, ff.SetRolloutPercent(FeaturePeerRanking, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.EnableFeature("unknown"), ErrFeatureNotFound)
}

func TestFeatureFlags_RolloutIsStable(t *testing.T) {
	ff := NewFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureEventFanout, 50))

	ctx := &FeatureContext{UserID: "user-42"}
	first := ff.IsEnabled(FeatureEventFanout, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureEventFanout, ctx))
	}
	assert.False(t, ff.EventFanoutEnabled(), "a partial rollout is not a process-wide switch")
}

func TestFeatureFlags_PartialRolloutIsPerUser(t *testing.T) {
	t.Setenv("FEATURE_SCORING_PEER_RANKING", "10")
	t.Setenv("FEATURE_SCORING_ACHIEVEMENT_BONUSES", "50")
	ff := LoadFeatureFlags()

	enabled := 0
	for i := 0; i < 1000; i++ {
		if ff.PeerRankingFor(fmt.Sprintf("user-%d", i)) {
			enabled++
		}
	}
	assert.InDelta(t, 100, enabled, 50)
	assert.False(t, ff.IsEnabled(FeaturePeerRanking, nil))
	assert.False(t, ff.PeerRankingFor(""))

	assert.True(t, ff.AchievementBonusesFor("user-0"))
	assert.False(t, ff.AchievementBonusesFor("user-2"))
}

// chdir changes the working directory for the duration of the test
// (stand-in for testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
