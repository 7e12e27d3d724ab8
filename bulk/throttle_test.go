// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"context"
	"testing"
	"time"

	"github.com/Qseek-Jung/ToiletShare-sub001/geocode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottledProviderSpacesCalls(t *testing.T) {
	static := &geocode.StaticProvider{}
	p := newThrottledProvider(static, 20*time.Millisecond)
	ctx := context.Background()

	start := time.Now()

	for range 3 {
		_, err := p.SearchAddress(ctx, "서울 중구 세종대로 110")
		require.NoError(t, err)
	}

	// The first call goes through at once.
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	assert.Equal(t, 3, static.Calls["address"])
}

func TestThrottledProviderWithoutDelay(t *testing.T) {
	static := &geocode.StaticProvider{}
	p := newThrottledProvider(static, 0)
	ctx := context.Background()

	start := time.Now()

	for range 50 {
		_, _ = p.SearchKeyword(ctx, "시청")
		_, _ = p.ReverseGeocode(ctx, 37.5, 127)
	}

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 100, static.TotalCalls())
}

func TestThrottledProviderCanceled(t *testing.T) {
	static := &geocode.StaticProvider{}
	p := newThrottledProvider(static, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())

	_, err := p.SearchAddress(ctx, "first")
	require.NoError(t, err)

	cancel()

	_, err = p.SearchAddress(ctx, "second")
	require.Error(t, err)
	assert.Equal(t, geocode.ErrorTypeTimeout, geocode.TypeOf(err))
	assert.Equal(t, 1, static.Calls["address"])
}
