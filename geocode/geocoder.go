// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocode resolves Korean addresses and place names to coordinates.
//
// A Provider wraps one external service with three primitive lookups. The
// Resolver sits on top of a Provider and adds what the bulk pipeline needs:
// input cleaning, the escalation from exact address search to keyword search,
// per-run memoization and degraded mode when the service goes away.
package geocode

import (
	"context"

	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
)

// AddressType tells how precise a result is.
type AddressType string

const (
	// AddressRoad is a road-name address with a building number.
	AddressRoad AddressType = "ROAD"
	// AddressJibun is a lot-number address.
	AddressJibun AddressType = "JIBUN"
	// AddressRegion is an administrative area centroid, too coarse to place
	// a facility.
	AddressRegion AddressType = "REGION"
	// AddressKeyword comes from a place/POI search.
	AddressKeyword AddressType = "KEYWORD"
)

// Result is a geocoding result from any provider.
type Result struct {
	Lat              float64     `json:"lat"`
	Lng              float64     `json:"lng"`
	FormattedAddress string      `json:"formatted_address"`
	AddressType      AddressType `json:"address_type"`
	BuildingName     string      `json:"building_name,omitempty"`
	PlaceName        string      `json:"place_name,omitempty"`
	Provider         string      `json:"provider,omitempty"`
}

// Point returns the result's coordinates.
func (r *Result) Point() spatial.Point {
	return spatial.Point{Lat: r.Lat, Lng: r.Lng}
}

// Precise reports whether r pins a point rather than an area. A nil result is
// not precise.
func (r *Result) Precise() bool {
	return r != nil && r.AddressType != AddressRegion && (r.Lat != 0 || r.Lng != 0)
}

// Provider is an external geocoding service. A lookup that finds nothing
// returns a nil result (or empty string) and a nil error; errors are reserved
// for failures to talk to the service and are *GeocodingError values.
type Provider interface {
	// SearchAddress geocodes an address as given, without rewriting it.
	SearchAddress(ctx context.Context, query string) (*Result, error)
	// ReverseGeocode returns the best address for a coordinate, preferring
	// the road address over the lot address.
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
	// SearchKeyword searches places by free text.
	SearchKeyword(ctx context.Context, query string) (*Result, error)
}
