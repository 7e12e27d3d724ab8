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
	"slices"
	"strings"
	"time"

	"github.com/Qseek-Jung/ToiletShare-sub001/utils/httputils"
)

// GoogleBaseURL is the Google Maps Platform endpoint.
const GoogleBaseURL = "https://maps.googleapis.com"

// GoogleOptions configures a GoogleProvider.
type GoogleOptions struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Trace   io.Writer
}

// GoogleProvider uses the Google Maps Geocoding API and Places text search.
// It is the fallback when no Kakao key is configured; its Korean lot-address
// coverage is weaker, so results are graded conservatively.
type GoogleProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewGoogleProvider creates a new Google Maps provider.
func NewGoogleProvider(opts GoogleOptions) *GoogleProvider {
	base := opts.BaseURL
	if base == "" {
		base = GoogleBaseURL
	}

	return &GoogleProvider{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimRight(base, "/"),
		httpClient: httputils.NewClient(httputils.ClientOptions{
			Timeout: opts.Timeout,
			Trace:   opts.Trace,
		}),
	}
}

type googleGeometry struct {
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	LocationType string `json:"location_type"` // ROOFTOP, RANGE_INTERPOLATED, GEOMETRIC_CENTER, APPROXIMATE
}

type googleGeocodeResponse struct {
	Results []struct {
		Geometry          googleGeometry `json:"geometry"`
		FormattedAddress  string         `json:"formatted_address"`
		Types             []string       `json:"types"`
		AddressComponents []struct {
			LongName string   `json:"long_name"`
			Types    []string `json:"types"`
		} `json:"address_components"`
	} `json:"results"`
	Status       string `json:"status"` // OK, ZERO_RESULTS, etc.
	ErrorMessage string `json:"error_message"`
}

type googlePlacesResponse struct {
	Results []struct {
		Name             string         `json:"name"`
		FormattedAddress string         `json:"formatted_address"`
		Geometry         googleGeometry `json:"geometry"`
	} `json:"results"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

func googleAddressType(locationType string) AddressType {
	switch locationType {
	case "ROOFTOP", "RANGE_INTERPOLATED":
		return AddressRoad
	case "GEOMETRIC_CENTER":
		return AddressJibun
	default:
		return AddressRegion
	}
}

// trimCountry drops the "대한민국" prefix Google puts on Korean addresses.
func trimCountry(addr string) string {
	return strings.TrimSpace(strings.TrimPrefix(addr, "대한민국"))
}

// SearchAddress implements Provider.
func (g *GoogleProvider) SearchAddress(ctx context.Context, query string) (*Result, error) {
	params := url.Values{}
	params.Set("address", query)
	params.Set("region", "kr")
	params.Set("language", "ko")

	var resp googleGeocodeResponse
	if err := g.get(ctx, "/maps/api/geocode/json", params, &resp); err != nil {
		return nil, err
	}

	if err := googleStatusError(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}

	if len(resp.Results) == 0 {
		return nil, nil
	}

	result := resp.Results[0]

	res := &Result{
		Lat:              result.Geometry.Location.Lat,
		Lng:              result.Geometry.Location.Lng,
		FormattedAddress: trimCountry(result.FormattedAddress),
		AddressType:      googleAddressType(result.Geometry.LocationType),
		Provider:         "google_maps",
	}

	for _, c := range result.AddressComponents {
		if slices.Contains(c.Types, "premise") {
			res.BuildingName = c.LongName

			break
		}
	}

	return res, nil
}

// ReverseGeocode implements Provider. Street-level results are preferred.
func (g *GoogleProvider) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	params := url.Values{}
	params.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	params.Set("language", "ko")

	var resp googleGeocodeResponse
	if err := g.get(ctx, "/maps/api/geocode/json", params, &resp); err != nil {
		return "", err
	}

	if err := googleStatusError(resp.Status, resp.ErrorMessage); err != nil {
		return "", err
	}

	for _, r := range resp.Results {
		if slices.Contains(r.Types, "street_address") || slices.Contains(r.Types, "premise") {
			return trimCountry(r.FormattedAddress), nil
		}
	}

	if len(resp.Results) > 0 {
		return trimCountry(resp.Results[0].FormattedAddress), nil
	}

	return "", nil
}

// SearchKeyword implements Provider using Places text search.
func (g *GoogleProvider) SearchKeyword(ctx context.Context, query string) (*Result, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("region", "kr")
	params.Set("language", "ko")

	var resp googlePlacesResponse
	if err := g.get(ctx, "/maps/api/place/textsearch/json", params, &resp); err != nil {
		return nil, err
	}

	if err := googleStatusError(resp.Status, resp.ErrorMessage); err != nil {
		return nil, err
	}

	if len(resp.Results) == 0 {
		return nil, nil
	}

	p := resp.Results[0]

	return &Result{
		Lat:              p.Geometry.Location.Lat,
		Lng:              p.Geometry.Location.Lng,
		FormattedAddress: trimCountry(p.FormattedAddress),
		AddressType:      AddressKeyword,
		PlaceName:        p.Name,
		Provider:         "google_places",
	}, nil
}

// googleStatusError maps the body-level status Google reports with HTTP 200.
func googleStatusError(status, message string) error {
	switch status {
	case "OK", "ZERO_RESULTS":
		return nil
	case "OVER_QUERY_LIMIT":
		return &GeocodingError{Type: ErrorTypeQuotaExceeded, Message: "google maps status: OVER_QUERY_LIMIT"}
	case "REQUEST_DENIED":
		return &GeocodingError{Type: ErrorTypeUnauthorized, Message: "google maps status: REQUEST_DENIED " + message}
	case "INVALID_REQUEST":
		return &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "google maps status: INVALID_REQUEST"}
	default:
		return &GeocodingError{Type: ErrorTypeUnknown, Message: "google maps status: " + status}
	}
}

func (g *GoogleProvider) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &GeocodingError{Type: ErrorTypeInvalidRequest, Message: "building request", Err: err}
	}

	resp, err := g.httpClient.Do(req)
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
