package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"lexplain/backend/internal/ai"
	"lexplain/backend/internal/document"
	"lexplain/backend/internal/lang"
	"lexplain/backend/internal/metrics"
	"lexplain/backend/internal/retry"
)

const (
	bundleKeyPrefix = "bundle:"
	sourceKeyPrefix = "source:"
)

// Defaults for Options.
const (
	DefaultTTL                  = 24 * time.Hour
	DefaultDegradedTTL          = 5 * time.Minute
	DefaultTranslateConcurrency = 4
	DefaultTranslateBudget      = 2 * time.Minute
	writeTimeout                = 5 * time.Second
)

// BundleKey is the store key of the (document, language) bundle.
func BundleKey(docID, language string) string {
	return bundleKeyPrefix + docID + ":" + language
}

func sourceKey(docID string) string {
	return sourceKeyPrefix + docID
}

// Options tunes a TranslationCache.
type Options struct {
	// TTL applies to complete bundles; zero means DefaultTTL, negative never expires.
	TTL time.Duration
	// DegradedTTL applies to bundles where at least one field kept its original text.
	DegradedTTL time.Duration
	Policy      retry.Policy
	Concurrency int
	// Budget bounds a shared translation, which runs detached from the callers
	// waiting on it. Zero means DefaultTranslateBudget.
	Budget time.Duration
}

// TranslationCache serves per-language variants of analyzed documents. Writes
// replace whole bundles; concurrent misses for the same key share one translation.
type TranslationCache struct {
	store       Store
	translator  ai.Translator
	policy      retry.Policy
	ttl         time.Duration
	degradedTTL time.Duration
	concurrency int
	budget      time.Duration
	group       singleflight.Group
}

// NewTranslationCache builds a cache over store. A nil translator is allowed: missing
// languages are then served in the source language.
func NewTranslationCache(store Store, translator ai.Translator, opts Options) *TranslationCache {
	if store == nil {
		store = NewMemoryStore()
	}
	policy := opts.Policy
	if policy.Op == "" {
		policy.Op = "translate"
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	degraded := opts.DegradedTTL
	if degraded <= 0 {
		degraded = DefaultDegradedTTL
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultTranslateConcurrency
	}
	budget := opts.Budget
	if budget <= 0 {
		budget = DefaultTranslateBudget
	}
	return &TranslationCache{
		store:       store,
		translator:  translator,
		policy:      policy,
		ttl:         ttl,
		degradedTTL: degraded,
		concurrency: concurrency,
		budget:      budget,
	}
}

// Get returns the cached bundle or ErrMiss. Store failures and undecodable
// payloads are reported as misses.
func (c *TranslationCache) Get(ctx context.Context, docID, language string) (document.Bundle, error) {
	language = lang.NormalizeOrDefault(language)
	data, err := c.store.Get(ctx, BundleKey(docID, language))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			logrus.WithFields(logrus.Fields{"document_id": docID, "language": language}).
				WithError(err).Warn("cache read failed; treating as miss")
		} else {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
		return document.Bundle{}, ErrMiss
	}
	var bundle document.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		logrus.WithFields(logrus.Fields{"document_id": docID, "language": language}).
			WithError(err).Warn("cached bundle is corrupt; treating as miss")
		return document.Bundle{}, ErrMiss
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return bundle, nil
}

// Put stores bundle under (docID, language), replacing any previous value.
func (c *TranslationCache) Put(ctx context.Context, docID, language string, bundle document.Bundle) error {
	return c.put(ctx, docID, language, bundle, c.ttl)
}

func (c *TranslationCache) put(ctx context.Context, docID, language string, bundle document.Bundle, ttl time.Duration) error {
	language = lang.NormalizeOrDefault(language)
	data, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := c.store.Set(ctx, BundleKey(docID, language), data, ttl); err != nil {
		return fmt.Errorf("store bundle %s/%s: %w", docID, language, err)
	}
	return nil
}

// PutSource stores the original-language bundle and remembers its language so a
// later request in any language can find the translation source.
func (c *TranslationCache) PutSource(ctx context.Context, bundle document.Bundle) error {
	language := lang.NormalizeOrDefault(bundle.Language)
	if err := c.Put(ctx, bundle.DocumentID, language, bundle); err != nil {
		return err
	}
	if err := c.store.Set(ctx, sourceKey(bundle.DocumentID), []byte(language), c.ttl); err != nil {
		return fmt.Errorf("store source pointer %s: %w", bundle.DocumentID, err)
	}
	return nil
}

// Source returns the original-language bundle of a document, or ErrMiss.
func (c *TranslationCache) Source(ctx context.Context, docID string) (document.Bundle, error) {
	data, err := c.store.Get(ctx, sourceKey(docID))
	if err != nil || len(data) == 0 {
		return document.Bundle{}, ErrMiss
	}
	return c.Get(ctx, docID, string(data))
}

// TranslateIfMissing returns the bundle for (docID, language), translating source
// on a miss and writing the result. It never fails: fields whose translation fails
// keep their original text, and clause source text is never translated.
//
// Concurrent misses share one translation that runs detached from every caller,
// bounded by the cache budget. A caller whose ctx ends first gets the untranslated
// copy while the shared work continues for the others and is still cached.
func (c *TranslationCache) TranslateIfMissing(ctx context.Context, docID, language string, source document.Bundle) document.Bundle {
	language = lang.NormalizeOrDefault(language)
	if cached, err := c.Get(ctx, docID, language); err == nil {
		return cached
	}

	detached := context.WithoutCancel(ctx)
	results := c.group.DoChan(BundleKey(docID, language), func() (any, error) {
		workCtx, cancel := context.WithTimeout(detached, c.budget)
		defer cancel()
		if cached, err := c.Get(workCtx, docID, language); err == nil {
			return cached, nil
		}
		bundle, failed := c.translate(workCtx, docID, language, source)
		ttl := c.ttl
		if failed > 0 {
			ttl = c.degradedTTL
			metrics.Fallbacks.WithLabelValues("translation").Inc()
			logrus.WithFields(logrus.Fields{
				"component":   "translation",
				"document_id": docID,
				"language":    language,
				"fields":      failed,
			}).Warn("translation degraded; keeping original text for failed fields")
		}
		writeCtx, cancelWrite := context.WithTimeout(detached, writeTimeout)
		defer cancelWrite()
		if err := c.put(writeCtx, docID, language, bundle, ttl); err != nil {
			logrus.WithFields(logrus.Fields{"document_id": docID, "language": language}).
				WithError(err).Warn("cache write failed")
		}
		return bundle, nil
	})

	select {
	case res := <-results:
		return res.Val.(document.Bundle).Clone()
	case <-ctx.Done():
		metrics.Fallbacks.WithLabelValues("translation").Inc()
		logrus.WithFields(logrus.Fields{
			"component":   "translation",
			"document_id": docID,
			"language":    language,
		}).WithError(ctx.Err()).Debug("caller left before translation finished; serving original text")
		return untranslated(docID, language, source)
	}
}

// untranslated is source relabelled for language with every field left as is.
func untranslated(docID, language string, source document.Bundle) document.Bundle {
	out := source.Clone()
	out.DocumentID = docID
	out.Language = language
	out.SourceLanguage = lang.NormalizeOrDefault(firstNonEmpty(source.Language, source.SourceLanguage))
	return out
}

// translate returns a copy of source with every translatable field in language and
// the number of fields that kept their original text.
func (c *TranslationCache) translate(ctx context.Context, docID, language string, source document.Bundle) (document.Bundle, int) {
	out := untranslated(docID, language, source)
	sourceLanguage := out.SourceLanguage
	if language == sourceLanguage {
		return out, 0
	}

	fields := translatableFields(&out)
	if c.translator == nil {
		return out, len(fields)
	}

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for _, field := range fields {
		field := field
		g.Go(func() error {
			original := *field
			translated, err := retry.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
				return c.translator.Translate(ctx, original, sourceLanguage, language)
			})
			if err != nil || strings.TrimSpace(translated) == "" {
				failed.Add(1)
				if err != nil {
					logrus.WithFields(logrus.Fields{"document_id": docID, "language": language}).
						WithError(err).Debug("field translation failed")
				}
				return nil
			}
			*field = translated
			return nil
		})
	}
	_ = g.Wait()
	return out, int(failed.Load())
}

// translatableFields points at the summary, every clause explanation and every
// suggested question. Clause text stays in the original language.
func translatableFields(b *document.Bundle) []*string {
	var fields []*string
	add := func(s *string) {
		if strings.TrimSpace(*s) != "" {
			fields = append(fields, s)
		}
	}
	add(&b.Summary)
	for i := range b.Clauses {
		add(&b.Clauses[i].Explanation)
		for j := range b.Clauses[i].SuggestedQuestions {
			add(&b.Clauses[i].SuggestedQuestions[j])
		}
	}
	for i := range b.SuggestedQuestions {
		add(&b.SuggestedQuestions[i])
	}
	return fields
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
