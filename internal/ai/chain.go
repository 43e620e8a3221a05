package ai

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

type translatorChain struct {
	primary  Translator
	fallback Translator
}

// TranslatorWithFallback returns a translator that first tries the primary
// implementation and falls back to the second when the primary fails or returns
// nothing usable.
func TranslatorWithFallback(primary, fallback Translator) Translator {
	if primary == nil {
		return fallback
	}
	if fallback == nil {
		return primary
	}
	return &translatorChain{primary: primary, fallback: fallback}
}

func (c *translatorChain) Translate(ctx context.Context, text, source, target string) (string, error) {
	out, err := c.primary.Translate(ctx, text, source, target)
	if err == nil && strings.TrimSpace(out) != "" {
		return out, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		logrus.WithError(err).WithField("target", target).Debug("primary translator failed; trying fallback")
	}
	return c.fallback.Translate(ctx, text, source, target)
}
