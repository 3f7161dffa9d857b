package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/aretw0/gamestate/pkg/history"
	"github.com/aretw0/gamestate/pkg/ports"
)

// Masked replaces redacted history values.
const Masked = "***"

type piiMiddleware struct {
	next     ports.CriticalDataStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks, in recorded history steps, every
// data bag service whose name matches one of the patterns. Replays then never show
// player identifiers. Other keys pass through untouched.
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.CriticalDataStore) ports.CriticalDataStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Begin(ctx context.Context, name string) (ports.Transaction, error) {
	tx, err := m.next.Begin(ctx, name)
	if err != nil {
		return nil, err
	}
	return &piiTx{Transaction: tx, patterns: m.patterns}, nil
}

type piiTx struct {
	ports.Transaction
	patterns []*regexp.Regexp
}

func (t *piiTx) Write(scope domain.Scope, path string, data []byte) error {
	if scope != domain.ScopeHistory || !history.IsStepKey(path) {
		return t.Transaction.Write(scope, path, data)
	}

	block, err := history.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode history block for masking: %w", err)
	}
	if !maskBag(block.Data, t.patterns) {
		return t.Transaction.Write(scope, path, data)
	}
	masked, err := history.Encode(block)
	if err != nil {
		return err
	}
	return t.Transaction.Write(scope, path, masked)
}

// Helpers

// maskBag masks matching services in place and reports whether anything changed.
// Decoded blocks are private copies, so the caller's data is never touched.
func maskBag(bag domain.DataBag, patterns []*regexp.Regexp) bool {
	changed := false
	for _, services := range bag {
		for name := range services {
			for _, p := range patterns {
				if p.MatchString(name) {
					services[name] = Masked
					changed = true
					break
				}
			}
		}
	}
	return changed
}
