// Package config loads vibe-seqscore settings from the config file
// (~/.vibe-seqscore.yaml), environment variables and command-line flags
// through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file name looked up in the home directory.
const FileName = ".vibe-seqscore"

// Config keys.
const (
	KeyForceModel      = "force_model"
	KeyDeltaOnly       = "use_delta_only"
	KeyDisableFusion   = "disable_fusion"
	KeySpamSafe        = "spam_safe"
	KeyMaxBackendCalls = "max_backend_calls"
	KeyForcePath       = "force_path"
	KeyCacheURL        = "cache_url"
	KeyCacheTTLSeconds = "cache_ttl_seconds"

	KeyFusionURL       = "fusion.url"
	KeyFusionAMDB      = "fusion.alphamissense_db"
	KeyFusionTimeout   = "fusion.timeout"
	KeyFoundationURL   = "foundation.url"
	KeyModels          = "foundation.models"
	KeyDefaultModel    = "foundation.default_model"
	KeyWindows         = "foundation.windows"
	KeyFoundationTO    = "foundation.timeout"
	KeyAsymmetry       = "foundation.asymmetry_threshold"
	KeyMaxParallel     = "foundation.max_parallel"
	KeyOracleEnabled   = "oracle.enabled"
	KeyOracleMode      = "oracle.mode"
	KeyOracleTimeout   = "oracle.timeout"
	KeyOracleModel     = "oracle.model"
	KeyEnsemblURL      = "ensembl.url"
	KeyEnsemblTimeout  = "ensembl.timeout"
	KeyDeltaScale      = "scoring.delta_scale"
	KeyAmbiguityMargin = "scoring.ambiguity_margin"
	KeyReferencePath   = "calibration.reference_path"
)

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	KeyForceModel:      "FORCE_MODEL",
	KeyDeltaOnly:       "USE_DELTA_ONLY",
	KeyDisableFusion:   "DISABLE_FUSION",
	KeySpamSafe:        "SPAM_SAFE",
	KeyMaxBackendCalls: "MAX_BACKEND_CALLS",
	KeyForcePath:       "FORCE_PATH",
	KeyCacheURL:        "CACHE_URL",
	KeyCacheTTLSeconds: "CACHE_TTL_SECONDS",
	KeyFusionURL:       "FUSION_URL",
	KeyFoundationURL:   "EVO_URL",
	KeyEnsemblURL:      "ENSEMBL_URL",
}

// Known scoring path names accepted by FORCE_PATH.
var knownPaths = []string{"fusion", "foundation_model", "oracle"}

// Config is the resolved service configuration.
type Config struct {
	ForceModel      string
	DeltaOnly       bool
	DisableFusion   bool
	SpamSafe        bool
	MaxBackendCalls int
	ForcePath       string

	CacheURL string
	CacheTTL time.Duration

	FusionURL      string
	AlphaMissense  string // path to a DuckDB AlphaMissense database
	FusionTimeout  time.Duration
	FoundationURL  string
	Models         []string
	DefaultModel   string
	Windows        []int
	FoundationTO   time.Duration
	AsymmetryLimit float64
	MaxParallel    int

	OracleEnabled bool
	OracleMode    string
	OracleTimeout time.Duration
	OracleModel   string

	EnsemblURL     string
	EnsemblTimeout time.Duration

	DeltaScale      float64
	AmbiguityMargin float64
	ReferencePath   string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyMaxBackendCalls, 8)
	v.SetDefault(KeyCacheTTLSeconds, 3600)
	v.SetDefault(KeyFusionTimeout, "30s")
	v.SetDefault(KeyModels, []string{"evo2_1b", "evo2_7b", "evo2_40b"})
	v.SetDefault(KeyDefaultModel, "evo2_1b")
	v.SetDefault(KeyWindows, []int{4096, 8192, 16384, 25000})
	v.SetDefault(KeyFoundationTO, "60s")
	v.SetDefault(KeyAsymmetry, 0.5)
	v.SetDefault(KeyMaxParallel, 8)
	v.SetDefault(KeyOracleEnabled, true)
	v.SetDefault(KeyOracleMode, "real_context")
	v.SetDefault(KeyOracleTimeout, "90s")
	v.SetDefault(KeyEnsemblTimeout, "30s")
	v.SetDefault(KeyDeltaScale, 1.0)
	v.SetDefault(KeyAmbiguityMargin, 0.02)
}

// BindEnv binds the recognized environment variables on v.
func BindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// Init prepares v: defaults, environment bindings and the config file in
// the home directory, if present.
func Init(v *viper.Viper) error {
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return err
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

// DefaultPath returns the config file written by `config set` when none was
// loaded.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, FileName+".yaml"), nil
}

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	c := Config{
		ForceModel:      strings.TrimSpace(v.GetString(KeyForceModel)),
		DeltaOnly:       v.GetBool(KeyDeltaOnly),
		DisableFusion:   v.GetBool(KeyDisableFusion),
		SpamSafe:        v.GetBool(KeySpamSafe),
		MaxBackendCalls: v.GetInt(KeyMaxBackendCalls),
		ForcePath:       strings.ToLower(strings.TrimSpace(v.GetString(KeyForcePath))),
		CacheURL:        strings.TrimSpace(v.GetString(KeyCacheURL)),
		CacheTTL:        time.Duration(v.GetInt(KeyCacheTTLSeconds)) * time.Second,
		FusionURL:       v.GetString(KeyFusionURL),
		AlphaMissense:   v.GetString(KeyFusionAMDB),
		FusionTimeout:   v.GetDuration(KeyFusionTimeout),
		FoundationURL:   v.GetString(KeyFoundationURL),
		Models:          v.GetStringSlice(KeyModels),
		DefaultModel:    v.GetString(KeyDefaultModel),
		Windows:         v.GetIntSlice(KeyWindows),
		FoundationTO:    v.GetDuration(KeyFoundationTO),
		AsymmetryLimit:  v.GetFloat64(KeyAsymmetry),
		MaxParallel:     v.GetInt(KeyMaxParallel),
		OracleEnabled:   v.GetBool(KeyOracleEnabled),
		OracleMode:      strings.ToLower(v.GetString(KeyOracleMode)),
		OracleTimeout:   v.GetDuration(KeyOracleTimeout),
		OracleModel:     v.GetString(KeyOracleModel),
		EnsemblURL:      v.GetString(KeyEnsemblURL),
		EnsemblTimeout:  v.GetDuration(KeyEnsemblTimeout),
		DeltaScale:      v.GetFloat64(KeyDeltaScale),
		AmbiguityMargin: v.GetFloat64(KeyAmbiguityMargin),
		ReferencePath:   v.GetString(KeyReferencePath),
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%s must be positive, got %v", KeyCacheTTLSeconds, c.CacheTTL)
	}
	if c.SpamSafe && c.MaxBackendCalls <= 0 {
		return fmt.Errorf("%s must be positive when spam_safe is set", KeyMaxBackendCalls)
	}
	if c.ForcePath != "" && !slices.Contains(knownPaths, c.ForcePath) {
		return fmt.Errorf("%s: unknown path %q (want %s)", KeyForcePath, c.ForcePath, strings.Join(knownPaths, ", "))
	}
	switch c.OracleMode {
	case "", "real_context", "synthetic", "auto":
	default:
		return fmt.Errorf("%s: unknown mode %q", KeyOracleMode, c.OracleMode)
	}
	if len(c.Windows) == 0 {
		return fmt.Errorf("%s must list at least one window", KeyWindows)
	}
	for _, w := range c.Windows {
		if w <= 0 {
			return fmt.Errorf("%s: window sizes must be positive, got %d", KeyWindows, w)
		}
	}
	if c.DeltaScale <= 0 {
		return fmt.Errorf("%s must be positive", KeyDeltaScale)
	}
	if c.AmbiguityMargin < 0 {
		return fmt.Errorf("%s must not be negative", KeyAmbiguityMargin)
	}
	return nil
}
