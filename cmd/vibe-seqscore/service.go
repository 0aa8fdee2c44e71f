package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/backend"
	"github.com/inodb/vibe-seqscore/internal/cachestore"
	"github.com/inodb/vibe-seqscore/internal/config"
	"github.com/inodb/vibe-seqscore/internal/datasource/alphamissense"
	"github.com/inodb/vibe-seqscore/internal/score"
	"github.com/inodb/vibe-seqscore/internal/scorer"
)

// app holds the constructed service and the resources it owns.
type app struct {
	svc     *scorer.Service
	closers []func() error
}

// Close releases the cache store and data sources.
func (r *app) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildService wires configuration into a ready ScoringService: cache store,
// backend clients, the three scoring paths and the fallback strategy.
func buildService(cfg config.Config, logger *zap.Logger) (*app, error) {
	rt := &app{}

	store, err := cachestore.Open(cfg.CacheURL)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	if store != nil {
		rt.closers = append(rt.closers, store.Close)
		logger.Info("score cache enabled", zap.Duration("ttl", cfg.CacheTTL))
	}
	cache := cachestore.New(store, cfg.CacheTTL)
	cache.SetLogger(logger)

	var fusionBackends []scorer.FusionBackend
	if cfg.FusionURL != "" {
		fc := backend.NewFusionClient(cfg.FusionURL, cfg.FusionTimeout)
		fc.SetLogger(logger)
		fusionBackends = append(fusionBackends, fc)
	}
	if cfg.AlphaMissense != "" {
		am, err := alphamissense.Open(cfg.AlphaMissense)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("opening AlphaMissense database: %w", err)
		}
		rt.closers = append(rt.closers, am.Close)
		if am.Loaded() {
			fusionBackends = append(fusionBackends, alphamissense.NewBackend(am))
		} else {
			logger.Warn("AlphaMissense database is empty, local fusion fallback disabled",
				zap.String("path", cfg.AlphaMissense))
		}
	}

	var (
		windows scorer.WindowScorer
		deltas  scorer.DeltaScorer
	)
	if cfg.FoundationURL != "" {
		evo := backend.NewEvoClient(cfg.FoundationURL, cfg.FoundationTO)
		evo.SetLogger(logger)
		windows = evo
		if cfg.OracleEnabled {
			oracleClient := backend.NewEvoClient(cfg.FoundationURL, cfg.OracleTimeout)
			oracleClient.SetLogger(logger)
			deltas = oracleClient
		}
	}

	paths := []scorer.Path{
		scorer.NewFusionPath(fusionBackends...),
		scorer.NewFoundationPath(windows, scorer.FoundationOptions{
			AsymmetryThreshold: cfg.AsymmetryLimit,
			DeltaScale:         cfg.DeltaScale,
			MaxParallel:        cfg.MaxParallel,
		}),
	}
	if cfg.OracleEnabled {
		mode, err := scorer.ParseOracleMode(cfg.OracleMode)
		if err != nil {
			rt.Close()
			return nil, err
		}
		var fetcher scorer.RegionFetcher
		if mode != scorer.OracleSynthetic {
			ens := backend.NewEnsemblClient(cfg.EnsemblURL, cfg.EnsemblTimeout)
			ens.SetLogger(logger)
			fetcher = ens
		}
		paths = append(paths, scorer.NewOraclePath(deltas, fetcher, mode, cfg.OracleModel, cfg.DeltaScale))
	}

	var ref *score.Reference
	if cfg.ReferencePath != "" {
		ref, err = score.LoadReference(cfg.ReferencePath)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("loading calibration reference: %w", err)
		}
		logger.Info("calibration reference loaded", zap.Int("samples", ref.Len()))
	}

	strategy := scorer.NewStrategy(paths, scorer.StrategyOptions{
		ForcePath:       cfg.ForcePath,
		DisableFusion:   cfg.DisableFusion,
		AmbiguityMargin: cfg.AmbiguityMargin,
		Reference:       ref,
	})

	rt.svc = scorer.NewService(cache, strategy, scorer.Options{
		DefaultModel:    cfg.DefaultModel,
		Models:          cfg.Models,
		ForceModel:      cfg.ForceModel,
		Windows:         cfg.Windows,
		DeltaOnly:       cfg.DeltaOnly,
		SpamSafe:        cfg.SpamSafe,
		MaxBackendCalls: cfg.MaxBackendCalls,
		ProfileTag:      profileTag(cfg),
	})
	rt.svc.SetLogger(logger)
	return rt, nil
}

// profileTag captures settings that change scores but are not part of the
// request, so cached results never cross configurations.
func profileTag(cfg config.Config) string {
	tag := fmt.Sprintf("asym=%g,scale=%g,margin=%g", cfg.AsymmetryLimit, cfg.DeltaScale, cfg.AmbiguityMargin)
	if cfg.OracleEnabled {
		tag += ",oracle=" + cfg.OracleMode
	} else {
		tag += ",oracle=off"
	}
	if cfg.ReferencePath != "" {
		tag += ",ref=" + cfg.ReferencePath
	}
	return tag
}
