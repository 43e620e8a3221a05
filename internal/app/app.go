// Package app assembles the analysis pipeline and its collaborators from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lexplain/backend/internal/ai"
	"lexplain/backend/internal/analysis"
	"lexplain/backend/internal/cache"
	"lexplain/backend/internal/config"
	"lexplain/backend/internal/explain"
	"lexplain/backend/internal/extract"
	"lexplain/backend/internal/lang"
	"lexplain/backend/internal/retry"
	"lexplain/backend/internal/scoring"
	"lexplain/backend/internal/store"
	"lexplain/backend/internal/summary"
)

const janitorInterval = 10 * time.Minute

// Options adjusts how much infrastructure New brings up.
type Options struct {
	// Ephemeral skips the database and Redis and keeps the cache in memory.
	Ephemeral bool
}

// App holds the wired services. Close releases them.
type App struct {
	Config    *config.Config
	DB        *store.Database
	Pipeline  *analysis.Pipeline
	Extractor *extract.Service
	Cache     *cache.TranslationCache
	Guard     *ai.Guard
	AIEnabled bool
	CacheKind string

	cancel  context.CancelFunc
	closers []func() error
}

// New builds every service described by cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	classifier, riskScorer, err := loadTables(cfg.Keywords)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{Config: cfg, cancel: cancel}

	if !opts.Ephemeral {
		db, err := openDatabase(cfg.Database)
		if err != nil {
			cancel()
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
		if n, err := db.MarkInterruptedJobs(); err != nil {
			logrus.WithError(err).Warn("mark interrupted jobs")
		} else if n > 0 {
			logrus.WithField("jobs", n).Info("marked jobs interrupted by restart as failed")
		}
	}

	generator := a.buildGenerator(cfg)
	translator := buildTranslator(cfg, generator)

	a.Cache = cache.NewTranslationCache(a.buildStore(ctx, cfg, opts.Ephemeral), translator, cache.Options{
		TTL:         cfg.Translation.CacheTTL,
		DegradedTTL: cfg.Translation.DegradedTTL,
		// pieces retry inside the translator; a field gets one bounded attempt
		Policy:      retry.Policy{Op: "translate_field", Timeout: cfg.Pipeline.Deadline},
		Budget:      cfg.Pipeline.Deadline,
		Concurrency: cfg.Translation.Concurrency,
	})

	var recorder analysis.Recorder
	if a.DB != nil {
		recorder = a.DB
	}
	a.Pipeline = analysis.New(analysis.Options{
		Deadline:   cfg.Pipeline.Deadline,
		Detector:   lang.NewStopwordDetector(),
		Classifier: classifier,
		RiskScorer: riskScorer,
		Explainer: explain.New(generator, explain.Options{
			Concurrency: cfg.Pipeline.ExplainConcurrency,
			Policy:      policy("explain", cfg.AI.Timeout, cfg.AI),
			Types:       classifier,
		}),
		Summarizer: summary.New(generator, summary.Options{Policy: policy("summary", cfg.AI.Timeout, cfg.AI)}),
		Cache:      a.Cache,
		Recorder:   recorder,
	})
	a.Extractor = extract.NewService(cfg.Server.MaxUploadBytes)

	logrus.WithFields(logrus.Fields{
		"ai_enabled":           a.AIEnabled,
		"model":                cfg.AI.Model,
		"translation_provider": cfg.Translation.Provider,
		"cache":                a.CacheKind,
		"deadline":             cfg.Pipeline.Deadline,
		"explain_concurrency":  cfg.Pipeline.ExplainConcurrency,
	}).Info("analysis services ready")
	return a, nil
}

// Close stops background work and releases connections.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	a.cancel()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) buildGenerator(cfg *config.Config) ai.TextGenerator {
	if cfg.AI.Disabled {
		logrus.Info("AI explanations disabled via configuration")
		return nil
	}
	client, err := ai.NewClient(ai.Config{
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		BaseURL:     cfg.AI.BaseURL,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		if errors.Is(err, ai.ErrDisabled) {
			logrus.Info("AI explanations disabled - no API key configured")
		} else {
			logrus.WithError(err).Warn("ai client unavailable; using static explanations")
		}
		return nil
	}
	a.Guard = ai.NewGuard(ai.GuardConfig{
		Name:              "ai",
		RequestsPerSecond: cfg.AI.RequestsPerSecond,
		Burst:             cfg.AI.Burst,
		FailureThreshold:  cfg.AI.FailureThreshold,
		OpenTimeout:       cfg.AI.OpenTimeout,
	})
	a.AIEnabled = true
	return ai.GuardGenerator(client, a.Guard)
}

// buildTranslator returns nil when nothing can translate; the cache then serves
// source-language text with a short TTL.
func buildTranslator(cfg *config.Config, generator ai.TextGenerator) ai.Translator {
	chunkPolicy := policy("translate", cfg.Translation.Timeout, cfg.AI)
	var generative ai.Translator
	if generator != nil {
		generative = ai.ChunkedWithRetry(ai.NewGenerativeTranslator(generator), cfg.Translation.ChunkSize, chunkPolicy)
	}

	switch cfg.Translation.Provider {
	case config.ProviderNone:
		return nil
	case config.ProviderHTTP:
		client, err := ai.NewHTTPTranslator(ai.TranslatorConfig{
			APIKey:  cfg.Translation.APIKey,
			BaseURL: cfg.Translation.BaseURL,
			Timeout: cfg.Translation.Timeout,
		})
		if err != nil {
			logrus.WithError(err).Warn("translation api unavailable")
			return generative
		}
		guard := ai.NewGuard(ai.GuardConfig{
			Name:              "translate",
			RequestsPerSecond: cfg.AI.RequestsPerSecond,
			Burst:             cfg.AI.Burst,
			FailureThreshold:  cfg.AI.FailureThreshold,
			OpenTimeout:       cfg.AI.OpenTimeout,
		})
		primary := ai.ChunkedWithRetry(ai.GuardTranslator(client, guard), cfg.Translation.ChunkSize, chunkPolicy)
		return ai.TranslatorWithFallback(primary, generative)
	default:
		return generative
	}
}

// buildStore picks Redis, then the database, then memory, always behind an in-process
// fallback map.
func (a *App) buildStore(ctx context.Context, cfg *config.Config, ephemeral bool) cache.Store {
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" && !ephemeral {
		client := cache.NewRedisClient(cache.RedisConfig{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		redisStore := cache.NewRedisStore(client, cfg.Redis.Prefix)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := redisStore.Ping(pingCtx); err != nil {
			logrus.WithError(err).WithField("addr", addr).Warn("redis unreachable; cache writes fall back to memory until it recovers")
		}
		a.closers = append(a.closers, redisStore.Close)
		a.CacheKind = "redis"
		return cache.NewFallbackStore(redisStore, nil)
	}
	if a.DB != nil {
		sqlStore := cache.NewSQLStore(a.DB)
		go sqlStore.RunJanitor(ctx, janitorInterval)
		a.CacheKind = "sqlite"
		return cache.NewFallbackStore(sqlStore, nil)
	}
	a.CacheKind = "memory"
	return cache.NewMemoryStore()
}

func openDatabase(cfg config.DatabaseConfig) (*store.Database, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := store.Open(cfg.Path, cfg.Silent)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func loadTables(cfg config.KeywordsConfig) (*scoring.Classifier, *scoring.RiskScorer, error) {
	classifier := scoring.DefaultClassifier()
	if path := strings.TrimSpace(cfg.TypesPath); path != "" {
		loaded, err := scoring.LoadClassifier(path)
		if err != nil {
			return nil, nil, fmt.Errorf("keyword types: %w", err)
		}
		classifier = loaded
	}
	riskScorer := scoring.DefaultRiskScorer()
	if path := strings.TrimSpace(cfg.RiskPath); path != "" {
		loaded, err := scoring.LoadRiskScorer(path)
		if err != nil {
			return nil, nil, fmt.Errorf("keyword risk tiers: %w", err)
		}
		riskScorer = loaded
	}
	return classifier, riskScorer, nil
}

func policy(op string, timeout time.Duration, cfg config.AIConfig) retry.Policy {
	return retry.Policy{
		Op:         op,
		Timeout:    timeout,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.BaseDelay,
		MaxDelay:   cfg.MaxDelay,
	}
}
