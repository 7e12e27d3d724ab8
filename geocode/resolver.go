// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// maxNetworkFailures consecutive network errors put the resolver in degraded
// mode.
const maxNetworkFailures = 3

var (
	parenthesized = regexp.MustCompile(`\([^)]*\)`)
	bracketed     = regexp.MustCompile(`\[[^\]]*\]`)
	zeroWidth     = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}]`)
	// A building number followed by more text: "테헤란로 152 강남파이낸스센터".
	trailingSuffix = regexp.MustCompile(`(\s\d+(?:-\d+)?)\s+.+$`)
)

// CleanAddress removes parenthesized and bracketed notes and invisible
// characters, and collapses whitespace.
func CleanAddress(addr string) string {
	addr = parenthesized.ReplaceAllString(addr, "")
	addr = bracketed.ReplaceAllString(addr, "")
	addr = zeroWidth.ReplaceAllString(addr, "")

	return strings.Join(strings.Fields(addr), " ")
}

// SimplifyAddress drops whatever follows the first building number, which is
// usually a facility name the provider cannot match.
func SimplifyAddress(addr string) string {
	return trailingSuffix.ReplaceAllString(addr, "$1")
}

// Stats counts resolver activity for the run summary.
type Stats struct {
	ProviderCalls int  `json:"provider_calls"`
	CacheHits     int  `json:"cache_hits"`
	Failures      int  `json:"failures"`
	Unavailable   bool `json:"unavailable"`
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	// CacheSize bounds each of the three caches. Callers size it to the
	// number of rows so that nothing is evicted during a run.
	CacheSize int
	Logger    *zap.Logger
}

// Resolver is the geocoding adapter used by one batch run. It is not safe for
// concurrent use; a run processes rows sequentially.
type Resolver struct {
	provider Provider
	logger   *zap.Logger

	addresses *lru.Cache[string, *Result]
	keywords  *lru.Cache[string, *Result]
	reverse   *lru.Cache[string, string]

	stats       Stats
	netFailures int
}

// NewResolver wraps p.
func NewResolver(p Provider, opts ResolverOptions) (*Resolver, error) {
	size := opts.CacheSize
	if size < 64 {
		size = 64
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Resolver{provider: p, logger: logger}

	var err error
	if r.addresses, err = lru.New[string, *Result](size); err != nil {
		return nil, fmt.Errorf("creating address cache: %w", err)
	}

	if r.keywords, err = lru.New[string, *Result](size); err != nil {
		return nil, fmt.Errorf("creating keyword cache: %w", err)
	}

	if r.reverse, err = lru.New[string, string](size); err != nil {
		return nil, fmt.Errorf("creating reverse cache: %w", err)
	}

	return r, nil
}

// Stats returns a snapshot of the counters.
func (r *Resolver) Stats() Stats {
	return r.stats
}

// Available reports whether the provider is still being consulted.
func (r *Resolver) Available() bool {
	return !r.stats.Unavailable
}

// GeocodeAddress resolves address, escalating from an exact search on the
// cleaned address to a search on the simplified address and finally to a
// keyword search. A coarse REGION match is only returned when no strategy
// found anything better. The result (nil included) is memoized by the
// verbatim input.
func (r *Resolver) GeocodeAddress(ctx context.Context, address string) *Result {
	if res, ok := r.addresses.Get(address); ok {
		r.stats.CacheHits++

		return res
	}

	res := r.resolveAddress(ctx, address)
	if ctx.Err() == nil {
		r.addresses.Add(address, res)
	}

	return res
}

func (r *Resolver) resolveAddress(ctx context.Context, address string) *Result {
	cleaned := CleanAddress(address)
	if cleaned == "" {
		return nil
	}

	var coarse *Result

	pick := func(res *Result) bool {
		if res.Precise() {
			return true
		}

		if res != nil && coarse == nil {
			coarse = res
		}

		return false
	}

	if res := r.searchAddress(ctx, cleaned); pick(res) {
		return res
	}

	if simplified := SimplifyAddress(cleaned); simplified != cleaned {
		if res := r.searchAddress(ctx, simplified); pick(res) {
			return res
		}
	}

	if res := r.KeywordSearch(ctx, cleaned); pick(res) {
		return res
	}

	return coarse
}

func (r *Resolver) searchAddress(ctx context.Context, query string) *Result {
	var res *Result

	r.call(ctx, "address", query, func() error {
		var err error
		res, err = r.provider.SearchAddress(ctx, query)

		return err
	})

	return res
}

// KeywordSearch looks up a place by name. Memoized by query.
func (r *Resolver) KeywordSearch(ctx context.Context, query string) *Result {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	if res, ok := r.keywords.Get(query); ok {
		r.stats.CacheHits++

		return res
	}

	var res *Result

	r.call(ctx, "keyword", query, func() error {
		var err error
		res, err = r.provider.SearchKeyword(ctx, query)

		return err
	})

	if ctx.Err() == nil {
		r.keywords.Add(query, res)
	}

	return res
}

// ReverseGeocode returns the address of a coordinate, or "" when unknown.
// Memoized by the coordinate rounded to six decimals.
func (r *Resolver) ReverseGeocode(ctx context.Context, lat, lng float64) string {
	key := fmt.Sprintf("%.6f,%.6f", lat, lng)
	if addr, ok := r.reverse.Get(key); ok {
		r.stats.CacheHits++

		return addr
	}

	var addr string

	r.call(ctx, "reverse", key, func() error {
		var err error
		addr, err = r.provider.ReverseGeocode(ctx, lat, lng)

		return err
	})

	if ctx.Err() == nil {
		r.reverse.Add(key, addr)
	}

	return addr
}

// call runs one provider lookup unless the provider has been given up on,
// and tracks failures. Errors are logged and swallowed: to the pipeline a
// failed lookup is a miss.
func (r *Resolver) call(ctx context.Context, op, query string, fn func() error) {
	if r.stats.Unavailable || ctx.Err() != nil {
		return
	}

	r.stats.ProviderCalls++

	err := fn()
	if err == nil {
		r.netFailures = 0

		return
	}

	if ctx.Err() != nil {
		return
	}

	r.stats.Failures++
	r.logger.Warn("geocoding lookup failed",
		zap.String("op", op),
		zap.String("query", query),
		zap.Stringer("type", TypeOf(err)),
		zap.Error(err))

	switch TypeOf(err) {
	case ErrorTypeQuotaExceeded, ErrorTypeUnauthorized:
		r.giveUp(err)
	case ErrorTypeNetworkError, ErrorTypeTimeout:
		r.netFailures++
		if r.netFailures >= maxNetworkFailures {
			r.giveUp(err)
		}
	default:
		r.netFailures = 0
	}
}

func (r *Resolver) giveUp(err error) {
	r.stats.Unavailable = true
	r.logger.Error("geocoding provider unavailable, remaining rows are processed without geocoding",
		zap.Error(err))
}
