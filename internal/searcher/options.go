package searcher

import (
	"maps"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// Options are per-call search settings.
type Options struct {
	MinScore    float64
	HasMinScore bool
	// Extra carries adapter-specific per-call settings; adapters ignore keys
	// they do not recognise.
	Extra map[string]any
}

// Option mutates Options.
type Option func(*Options)

// WithMinScore drops hits scoring below s.
func WithMinScore(s float64) Option {
	return func(o *Options) {
		o.MinScore = s
		o.HasMinScore = true
	}
}

// WithExtra sets an adapter-specific per-call setting.
func WithExtra(key string, value any) Option {
	return func(o *Options) {
		if o.Extra == nil {
			o.Extra = make(map[string]any)
		}
		o.Extra[key] = value
	}
}

// WithExtras merges several adapter-specific settings.
func WithExtras(extra map[string]any) Option {
	return func(o *Options) {
		if len(extra) == 0 {
			return
		}
		if o.Extra == nil {
			o.Extra = make(map[string]any, len(extra))
		}
		maps.Copy(o.Extra, extra)
	}
}

// Apply folds opts into an Options value.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// Filter drops hits below the configured minimum score.
func (o Options) Filter(hits []domain.SearchHit) []domain.SearchHit {
	if !o.HasMinScore {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		if h.Score >= o.MinScore {
			out = append(out, h)
		}
	}
	return out
}

// Bool reads a boolean extra.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o.Extra[key].(bool); ok {
		return v
	}
	return def
}

// String reads a string extra.
func (o Options) String(key, def string) string {
	if v, ok := o.Extra[key].(string); ok {
		return v
	}
	return def
}
