// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKakaoTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/local/search/address.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "KakaoAK test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errorType":"AccessDeniedError","message":"cannot find appkey"}`))

			return
		}

		switch r.URL.Query().Get("query") {
		case "서울특별시 강남구 테헤란로 152":
			_, _ = w.Write([]byte(`{"documents":[{
				"address_name":"서울 강남구 테헤란로 152",
				"address_type":"ROAD_ADDR",
				"x":"127.036508620542","y":"37.5000242405515",
				"road_address":{"address_name":"서울 강남구 테헤란로 152","building_name":"강남파이낸스센터"}
			}]}`))
		case "서울특별시 강남구":
			_, _ = w.Write([]byte(`{"documents":[{"address_name":"서울 강남구","address_type":"REGION","x":"127.0473","y":"37.5172","road_address":null}]}`))
		case "quota":
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			_, _ = w.Write([]byte(`{"documents":[]}`))
		}
	})
	mux.HandleFunc("/v2/local/geo/coord2address.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("x") == "127.0365" {
			_, _ = w.Write([]byte(`{"documents":[{"road_address":{"address_name":"서울특별시 강남구 테헤란로 152"},"address":{"address_name":"서울 강남구 역삼동 737"}}]}`))

			return
		}

		_, _ = w.Write([]byte(`{"documents":[{"road_address":null,"address":{"address_name":"전남 신안군 흑산면 예리 1"}}]}`))
	})
	mux.HandleFunc("/v2/local/search/keyword.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") != "보라매공원" {
			_, _ = w.Write([]byte(`{"documents":[]}`))

			return
		}

		_, _ = w.Write([]byte(`{"documents":[{"place_name":"보라매공원","address_name":"서울 동작구 신대방동 395","road_address_name":"서울 동작구 여의대방로20길 33","x":"126.9198","y":"37.4925"}]}`))
	})

	return httptest.NewServer(mux)
}

func TestKakaoProvider(t *testing.T) {
	srv := newKakaoTestServer(t)
	defer srv.Close()

	ctx := context.Background()
	k := NewKakaoProvider(KakaoOptions{APIKey: "test-key", BaseURL: srv.URL})

	t.Run("road address", func(t *testing.T) {
		res, err := k.SearchAddress(ctx, "서울특별시 강남구 테헤란로 152")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.InDelta(t, 37.5000242, res.Lat, 1e-6)
		assert.InDelta(t, 127.0365086, res.Lng, 1e-6)
		assert.Equal(t, AddressRoad, res.AddressType)
		assert.Equal(t, "강남파이낸스센터", res.BuildingName)
		assert.Equal(t, "kakao", res.Provider)
	})

	t.Run("region match is coarse", func(t *testing.T) {
		res, err := k.SearchAddress(ctx, "서울특별시 강남구")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, AddressRegion, res.AddressType)
		assert.False(t, res.Precise())
	})

	t.Run("no documents", func(t *testing.T) {
		res, err := k.SearchAddress(ctx, "없는 주소")
		require.NoError(t, err)
		assert.Nil(t, res)
	})

	t.Run("http error is classified", func(t *testing.T) {
		_, err := k.SearchAddress(ctx, "quota")
		require.Error(t, err)
		assert.True(t, IsRateLimitError(err))
	})

	t.Run("reverse prefers road address", func(t *testing.T) {
		addr, err := k.ReverseGeocode(ctx, 37.5, 127.0365)
		require.NoError(t, err)
		assert.Equal(t, "서울특별시 강남구 테헤란로 152", addr)

		addr, err = k.ReverseGeocode(ctx, 34.68, 125.43)
		require.NoError(t, err)
		assert.Equal(t, "전남 신안군 흑산면 예리 1", addr)
	})

	t.Run("keyword", func(t *testing.T) {
		res, err := k.SearchKeyword(ctx, "보라매공원")
		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Equal(t, AddressKeyword, res.AddressType)
		assert.Equal(t, "보라매공원", res.PlaceName)
		assert.Equal(t, "서울 동작구 여의대방로20길 33", res.FormattedAddress)
	})
}

func TestKakaoProviderBadKey(t *testing.T) {
	srv := newKakaoTestServer(t)
	defer srv.Close()

	k := NewKakaoProvider(KakaoOptions{APIKey: "wrong", BaseURL: srv.URL})

	_, err := k.SearchAddress(context.Background(), "서울특별시 강남구 테헤란로 152")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeUnauthorized, TypeOf(err))
}

func TestKakaoProviderUnreachable(t *testing.T) {
	srv := newKakaoTestServer(t)
	srv.Close()

	k := NewKakaoProvider(KakaoOptions{APIKey: "test-key", BaseURL: srv.URL})

	_, err := k.SearchKeyword(context.Background(), "보라매공원")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeNetworkError, TypeOf(err))
}
