// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
	"github.com/Qseek-Jung/ToiletShare-sub001/utils/httputils"
	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"
)

// LandChecker tells whether a coordinate is on land. Errors are treated as
// "not on land" by the pipeline.
type LandChecker interface {
	IsOnLand(ctx context.Context, p spatial.Point) (bool, error)
}

// LandCheckFunc adapts a function to LandChecker.
type LandCheckFunc func(ctx context.Context, p spatial.Point) (bool, error)

func (f LandCheckFunc) IsOnLand(ctx context.Context, p spatial.Point) (bool, error) {
	return f(ctx, p)
}

// BoundsLandChecker accepts everything inside a box. It is the fallback when
// neither a land service nor a mask is configured.
type BoundsLandChecker struct {
	Bounds spatial.Bounds
}

func (b BoundsLandChecker) IsOnLand(_ context.Context, p spatial.Point) (bool, error) {
	return b.Bounds.Contains(p), nil
}

// RPCLandCheckPath is the database function that answers land checks.
const RPCLandCheckPath = "/rest/v1/rpc/check_is_on_land"

// RPCOptions configures an RPCLandChecker.
type RPCOptions struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Trace   io.Writer
}

// RPCLandChecker calls a PostgREST function taking {lat, lng} and returning
// a JSON boolean.
type RPCLandChecker struct {
	endpoint   string
	httpClient *http.Client
}

// NewRPCLandChecker creates a checker against opts.BaseURL.
func NewRPCLandChecker(opts RPCOptions) *RPCLandChecker {
	headers := map[string]string{"Content-Type": "application/json"}
	if opts.APIKey != "" {
		headers["apikey"] = opts.APIKey
		headers["Authorization"] = "Bearer " + opts.APIKey
	}

	return &RPCLandChecker{
		endpoint: strings.TrimRight(opts.BaseURL, "/") + RPCLandCheckPath,
		httpClient: httputils.NewClient(httputils.ClientOptions{
			Timeout: opts.Timeout,
			Headers: headers,
			Trace:   opts.Trace,
		}),
	}
}

func (c *RPCLandChecker) IsOnLand(ctx context.Context, p spatial.Point) (bool, error) {
	body, err := json.Marshal(map[string]float64{"lat": p.Lat, "lng": p.Lng})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("error creating land check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("land check for %s: %w", p, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 200))

		return false, fmt.Errorf("land check for %s: status %d: %s", p, resp.StatusCode, msg)
	}

	var onLand bool
	if err := json.NewDecoder(resp.Body).Decode(&onLand); err != nil {
		return false, fmt.Errorf("error decoding land check response: %w", err)
	}

	return onLand, nil
}

// landPolygon is an outer shell with optional holes.
type landPolygon struct {
	shell *s2.Loop
	holes []*s2.Loop
}

func (p landPolygon) contains(pt s2.Point) bool {
	if !p.shell.ContainsPoint(pt) {
		return false
	}

	for _, h := range p.holes {
		if h.ContainsPoint(pt) {
			return false
		}
	}

	return true
}

// MaskLandChecker tests points against land polygons read from GeoJSON.
type MaskLandChecker struct {
	polygons []landPolygon
}

// LoadMaskLandChecker reads a GeoJSON FeatureCollection of Polygon and
// MultiPolygon features.
func LoadMaskLandChecker(path string) (*MaskLandChecker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading land mask: %w", err)
	}

	return ParseMaskLandChecker(data)
}

// ParseMaskLandChecker builds a checker from GeoJSON data.
func ParseMaskLandChecker(data []byte) (*MaskLandChecker, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing land mask: %w", err)
	}

	m := &MaskLandChecker{}

	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}

		switch {
		case f.Geometry.IsPolygon():
			m.addPolygon(f.Geometry.Polygon)
		case f.Geometry.IsMultiPolygon():
			for _, poly := range f.Geometry.MultiPolygon {
				m.addPolygon(poly)
			}
		default:
			return nil, fmt.Errorf("land mask feature %d: unsupported geometry %s", i, f.Geometry.Type)
		}
	}

	if len(m.polygons) == 0 {
		return nil, fmt.Errorf("land mask has no polygons")
	}

	return m, nil
}

func (m *MaskLandChecker) addPolygon(rings [][][]float64) {
	if len(rings) == 0 {
		return
	}

	p := landPolygon{shell: ringLoop(rings[0])}
	for _, ring := range rings[1:] {
		p.holes = append(p.holes, ringLoop(ring))
	}

	m.polygons = append(m.polygons, p)
}

// ringLoop converts a GeoJSON ring ([lng, lat] pairs, closed) to a loop
// enclosing the smaller area, whatever the ring's winding.
func ringLoop(ring [][]float64) *s2.Loop {
	if n := len(ring); n > 1 && ring[0][0] == ring[n-1][0] && ring[0][1] == ring[n-1][1] {
		ring = ring[:n-1]
	}

	pts := make([]s2.Point, 0, len(ring))
	for _, c := range ring {
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(c[1], c[0])))
	}

	loop := s2.LoopFromPoints(pts)
	loop.Normalize()

	return loop
}

func (m *MaskLandChecker) IsOnLand(_ context.Context, p spatial.Point) (bool, error) {
	pt := s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lng))

	for _, poly := range m.polygons {
		if poly.contains(pt) {
			return true, nil
		}
	}

	return false, nil
}
