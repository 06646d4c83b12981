package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/sqlgraph/pkg/domain"
	"github.com/aretw0/sqlgraph/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

// DefaultValuePatterns match e-mail addresses, mainland China mobile numbers
// and 18-digit resident ID numbers inside string values.
var DefaultValuePatterns = []string{
	`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`,
	`\b1[3-9]\d{9}\b`,
	`\b\d{17}[\dXx]\b`,
}

type piiMiddleware struct {
	next   ports.CheckpointStore
	keys   []*regexp.Regexp
	values []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that redacts checkpoint state before it
// is persisted. Values under keys matching keyPatterns are replaced whole;
// substrings of string values matching valuePatterns are masked in place.
//
// Redaction is lossy: a resumed session sees the masked values.
func NewPIIMiddleware(keyPatterns []string, valuePatterns ...string) Middleware {
	compile := func(ps []string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, len(ps))
		for i, p := range ps {
			out[i] = regexp.MustCompile(p)
		}
		return out
	}
	keys, values := compile(keyPatterns), compile(valuePatterns)
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, keys: keys, values: values}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, cp *domain.Checkpoint) error {
	// Decoding yields a fresh tree, so the caller's checkpoint is untouched.
	var state map[string]any
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return fmt.Errorf("failed to decode state for redaction: %w", err)
	}
	masked, err := json.Marshal(m.mask(state))
	if err != nil {
		return err
	}

	out := *cp
	out.State = masked
	return m.next.Save(ctx, sessionID, &out)
}

func (m *piiMiddleware) Load(ctx context.Context, sessionID string) (*domain.Checkpoint, error) {
	return m.next.Load(ctx, sessionID)
}

func (m *piiMiddleware) Delete(ctx context.Context, sessionID string) error {
	return m.next.Delete(ctx, sessionID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) mask(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, sub := range x {
			if m.sensitiveKey(k) {
				x[k] = Mask
				continue
			}
			x[k] = m.mask(sub)
		}
		return x
	case []any:
		for i := range x {
			x[i] = m.mask(x[i])
		}
		return x
	case string:
		for _, p := range m.values {
			x = p.ReplaceAllString(x, Mask)
		}
		return x
	}
	return v
}

func (m *piiMiddleware) sensitiveKey(k string) bool {
	for _, p := range m.keys {
		if p.MatchString(k) {
			return true
		}
	}
	return false
}
