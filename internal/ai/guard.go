package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"lexplain/backend/internal/retry"
)

// GuardConfig tunes the limiter and breaker placed in front of an upstream service.
type GuardConfig struct {
	Name              string
	RequestsPerSecond float64
	Burst             int
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// ErrUnavailable is returned while the breaker is open.
var ErrUnavailable = errors.New("ai service temporarily unavailable")

// Guard rate limits calls and stops sending them after repeated failures.
type Guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuard builds a guard; zero values fall back to 5 rps, burst 5, 5 failures, 30s.
func NewGuard(cfg GuardConfig) *Guard {
	if cfg.Name == "" {
		cfg.Name = "ai"
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Limit(5)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// caller cancellation says nothing about upstream health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state change")
		},
	}
	return &Guard{
		limiter: rate.NewLimiter(limit, burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// State exposes the breaker state name for health reporting.
func (g *Guard) State() string {
	if g == nil {
		return "none"
	}
	return g.breaker.State().String()
}

// Do waits for a limiter slot and runs fn through the breaker. An open breaker or a
// limiter wait that cannot complete is reported as a permanent error so retries stop
// immediately.
func (g *Guard) Do(ctx context.Context, fn func() (string, error)) (string, error) {
	if g == nil {
		return fn()
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", retry.Permanent(fmt.Errorf("rate limit wait: %w", err))
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", retry.Permanent(fmt.Errorf("%w: %v", ErrUnavailable, err))
		}
		return "", err
	}
	text, _ := out.(string)
	return text, nil
}

// GuardGenerator wraps a generator with g.
func GuardGenerator(next TextGenerator, g *Guard) TextGenerator {
	if next == nil {
		return nil
	}
	return GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		return g.Do(ctx, func() (string, error) { return next.Generate(ctx, prompt) })
	})
}

// GuardTranslator wraps a translator with g.
func GuardTranslator(next Translator, g *Guard) Translator {
	if next == nil {
		return nil
	}
	return TranslatorFunc(func(ctx context.Context, text, source, target string) (string, error) {
		return g.Do(ctx, func() (string, error) { return next.Translate(ctx, text, source, target) })
	})
}
