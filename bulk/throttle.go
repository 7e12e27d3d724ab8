// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"context"
	"time"

	"github.com/Qseek-Jung/ToiletShare-sub001/geocode"
	"golang.org/x/time/rate"
)

// DefaultDelay is the minimum spacing between two provider calls.
const DefaultDelay = 100 * time.Millisecond

// throttledProvider spaces out calls to the wrapped provider. It sits below
// the resolver so cached lookups do not wait.
type throttledProvider struct {
	provider geocode.Provider
	limiter  *rate.Limiter
}

func newThrottledProvider(p geocode.Provider, delay time.Duration) *throttledProvider {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}

	return &throttledProvider{provider: p, limiter: rate.NewLimiter(limit, 1)}
}

func (t *throttledProvider) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return &geocode.GeocodingError{Type: geocode.ErrorTypeTimeout, Message: "rate limiter wait aborted", Err: err}
	}

	return nil
}

func (t *throttledProvider) SearchAddress(ctx context.Context, query string) (*geocode.Result, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}

	return t.provider.SearchAddress(ctx, query)
}

func (t *throttledProvider) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}

	return t.provider.ReverseGeocode(ctx, lat, lng)
}

func (t *throttledProvider) SearchKeyword(ctx context.Context, query string) (*geocode.Result, error) {
	if err := t.wait(ctx); err != nil {
		return nil, err
	}

	return t.provider.SearchKeyword(ctx, query)
}
