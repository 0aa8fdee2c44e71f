package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	require.NoError(t, BindEnv(v))
	return v
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 3600*time.Second, c.CacheTTL)
	assert.Equal(t, []string{"evo2_1b", "evo2_7b", "evo2_40b"}, c.Models)
	assert.Equal(t, "evo2_1b", c.DefaultModel)
	assert.Equal(t, []int{4096, 8192, 16384, 25000}, c.Windows)
	assert.Equal(t, 8, c.MaxBackendCalls)
	assert.Equal(t, "real_context", c.OracleMode)
	assert.True(t, c.OracleEnabled)
	assert.Equal(t, 0.02, c.AmbiguityMargin)
	assert.Equal(t, 30*time.Second, c.FusionTimeout)
	assert.False(t, c.DisableFusion)
	assert.Empty(t, c.CacheURL)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FORCE_MODEL", "evo2_40b")
	t.Setenv("USE_DELTA_ONLY", "true")
	t.Setenv("DISABLE_FUSION", "1")
	t.Setenv("SPAM_SAFE", "true")
	t.Setenv("MAX_BACKEND_CALLS", "4")
	t.Setenv("CACHE_URL", "redis://localhost:6379/0")
	t.Setenv("CACHE_TTL_SECONDS", "60")
	t.Setenv("FORCE_PATH", "Oracle")
	t.Setenv("EVO_URL", "http://evo:8000")

	c, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "evo2_40b", c.ForceModel)
	assert.True(t, c.DeltaOnly)
	assert.True(t, c.DisableFusion)
	assert.True(t, c.SpamSafe)
	assert.Equal(t, 4, c.MaxBackendCalls)
	assert.Equal(t, "redis://localhost:6379/0", c.CacheURL)
	assert.Equal(t, time.Minute, c.CacheTTL)
	assert.Equal(t, "oracle", c.ForcePath)
	assert.Equal(t, "http://evo:8000", c.FoundationURL)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seqscore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
foundation:
  models: [evo2_7b]
  windows: [8192, 16384]
  asymmetry_threshold: 0.8
oracle:
  mode: synthetic
scoring:
  delta_scale: 2.5
calibration:
  reference_path: /data/ref.csv
`), 0644))

	v := newViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"evo2_7b"}, c.Models)
	assert.Equal(t, []int{8192, 16384}, c.Windows)
	assert.Equal(t, 0.8, c.AsymmetryLimit)
	assert.Equal(t, "synthetic", c.OracleMode)
	assert.Equal(t, 2.5, c.DeltaScale)
	assert.Equal(t, "/data/ref.csv", c.ReferencePath)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"zero ttl", KeyCacheTTLSeconds, 0},
		{"unknown path", KeyForcePath, "guess"},
		{"unknown oracle mode", KeyOracleMode, "fast"},
		{"negative window", KeyWindows, []int{4096, -1}},
		{"no windows", KeyWindows, []int{}},
		{"zero delta scale", KeyDeltaScale, 0.0},
		{"negative margin", KeyAmbiguityMargin, -0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			v.Set(tt.key, tt.val)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestLoad_SpamSafeNeedsBudget(t *testing.T) {
	v := newViper(t)
	v.Set(KeySpamSafe, true)
	v.Set(KeyMaxBackendCalls, 0)
	_, err := Load(v)
	assert.ErrorContains(t, err, KeyMaxBackendCalls)
}
