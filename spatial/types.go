// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	"fmt"
	"math"
)

const earthRadius = 6371e3 // meters

// Point represents a geographical point with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String returns the point as "lat,lng" with six decimals, which is also the
// precision used to key reverse geocoding lookups.
func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// Valid reports whether both coordinates are set. Public datasets use 0 for
// "unknown", so a zero on either axis means the point is absent.
func (p Point) Valid() bool {
	return p.Lat != 0 && p.Lng != 0
}

// HaversineDistance calculates the distance between two points on Earth in meters.
func (p *Point) HaversineDistance(other *Point) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLng := (other.Lng - p.Lng) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadius * c
}

// Bounds is a latitude/longitude bounding box. Edges are inclusive.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// KoreaBounds is the coarse national box used to decide whether a land/sea
// lookup is worth doing at all.
var KoreaBounds = Bounds{MinLat: 33, MaxLat: 43, MinLng: 124, MaxLng: 132}

// Contains reports whether p falls inside the box.
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Validate checks that p is a usable WGS84 coordinate inside the box.
func (b Bounds) Validate(p Point) error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90 (got %f)", p.Lat)
	}

	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180 (got %f)", p.Lng)
	}

	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return fmt.Errorf("latitude outside bounds (%f to %f): %f", b.MinLat, b.MaxLat, p.Lat)
	}

	if p.Lng < b.MinLng || p.Lng > b.MaxLng {
		return fmt.Errorf("longitude outside bounds (%f to %f): %f", b.MinLng, b.MaxLng, p.Lng)
	}

	return nil
}
