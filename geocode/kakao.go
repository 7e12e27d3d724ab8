// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Qseek-Jung/ToiletShare-sub001/utils/httputils"
)

// KakaoBaseURL is the Kakao Local REST API endpoint.
const KakaoBaseURL = "https://dapi.kakao.com"

// KakaoOptions configures a KakaoProvider.
type KakaoOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// Trace receives a dump of every HTTP exchange when set.
	Trace io.Writer
}

// KakaoProvider uses the Kakao Local API, the reference geocoder for Korean
// road and lot addresses.
type KakaoProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewKakaoProvider creates a Kakao provider.
func NewKakaoProvider(opts KakaoOptions) *KakaoProvider {
	base := opts.BaseURL
	if base == "" {
		base = KakaoBaseURL
	}

	return &KakaoProvider{
		baseURL: strings.TrimRight(base, "/"),
		httpClient: httputils.NewClient(httputils.ClientOptions{
			Timeout: opts.Timeout,
			Headers: map[string]string{"Authorization": "KakaoAK " + opts.APIKey},
			Trace:   opts.Trace,
		}),
	}
}

type kakaoAddressResponse struct {
	Documents []struct {
		AddressName string `json:"address_name"`
		AddressType string `json:"address_type"` // REGION, ROAD, REGION_ADDR, ROAD_ADDR
		X           string `json:"x"`
		Y           string `json:"y"`
		RoadAddress *struct {
			AddressName  string `json:"address_name"`
			BuildingName string `json:"building_name"`
		} `json:"road_address"`
	} `json:"documents"`
}

type kakaoCoordResponse struct {
	Documents []struct {
		RoadAddress *struct {
			AddressName string `json:"address_name"`
		} `json:"road_address"`
		Address *struct {
			AddressName string `json:"address_name"`
		} `json:"address"`
	} `json:"documents"`
}

type kakaoKeywordResponse struct {
	Documents []struct {
		PlaceName       string `json:"place_name"`
		AddressName     string `json:"address_name"`
		RoadAddressName string `json:"road_address_name"`
		X               string `json:"x"`
		Y               string `json:"y"`
	} `json:"documents"`
}

func kakaoAddressType(t string) AddressType {
	switch t {
	case "ROAD_ADDR":
		return AddressRoad
	case "REGION_ADDR":
		return AddressJibun
	default:
		// REGION and ROAD (a road without a building number) are areas.
		return AddressRegion
	}
}

// SearchAddress implements Provider.
func (k *KakaoProvider) SearchAddress(ctx context.Context, query string) (*Result, error) {
	var resp kakaoAddressResponse
	if err := k.get(ctx, "/v2/local/search/address.json", url.Values{"query": {query}}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Documents) == 0 {
		return nil, nil
	}

	doc := resp.Documents[0]

	lat, lng, err := parseXY(doc.X, doc.Y)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Lat:              lat,
		Lng:              lng,
		FormattedAddress: doc.AddressName,
		AddressType:      kakaoAddressType(doc.AddressType),
		Provider:         "kakao",
	}

	if doc.RoadAddress != nil {
		res.BuildingName = strings.TrimSpace(doc.RoadAddress.BuildingName)
	}

	return res, nil
}

// ReverseGeocode implements Provider.
func (k *KakaoProvider) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	params := url.Values{
		"x": {strconv.FormatFloat(lng, 'f', -1, 64)},
		"y": {strconv.FormatFloat(lat, 'f', -1, 64)},
	}

	var resp kakaoCoordResponse
	if err := k.get(ctx, "/v2/local/geo/coord2address.json", params, &resp); err != nil {
		return "", err
	}

	if len(resp.Documents) == 0 {
		return "", nil
	}

	doc := resp.Documents[0]
	if doc.RoadAddress != nil && doc.RoadAddress.AddressName != "" {
		return doc.RoadAddress.AddressName, nil
	}

	if doc.Address != nil {
		return doc.Address.AddressName, nil
	}

	return "", nil
}

// SearchKeyword implements Provider.
func (k *KakaoProvider) SearchKeyword(ctx context.Context, query string) (*Result, error) {
	var resp kakaoKeywordResponse
	if err := k.get(ctx, "/v2/local/search/keyword.json", url.Values{"query": {query}}, &resp); err != nil {
		return nil, err
	}

	if len(resp.Documents) == 0 {
		return nil, nil
	}

	doc := resp.Documents[0]

	lat, lng, err := parseXY(doc.X, doc.Y)
	if err != nil {
		return nil, err
	}

	addr := doc.RoadAddressName
	if addr == "" {
		addr = doc.AddressName
	}

	return &Result{
		Lat:              lat,
		Lng:              lng,
		FormattedAddress: addr,
		AddressType:      AddressKeyword,
		PlaceName:        doc.PlaceName,
		Provider:         "kakao",
	}, nil
}

func (k *KakaoProvider) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building request", Err: err}
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return ClassifyHTTPError(resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &GeocodingError{Type: ErrorTypeUnknown, Message: "decoding response", Err: err}
	}

	return nil
}

func parseXY(x, y string) (lat, lng float64, err error) {
	lng, err = strconv.ParseFloat(x, 64)
	if err != nil {
		return 0, 0, &GeocodingError{Type: ErrorTypeUnknown, Message: fmt.Sprintf("invalid x %q", x), Err: err}
	}

	lat, err = strconv.ParseFloat(y, 64)
	if err != nil {
		return 0, 0, &GeocodingError{Type: ErrorTypeUnknown, Message: fmt.Sprintf("invalid y %q", y), Err: err}
	}

	return lat, lng, nil
}
