// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// StaticProvider answers from fixed tables. It replays recorded answers for
// offline re-runs and serves as the deterministic provider in tests.
type StaticProvider struct {
	Addresses map[string]*Result `json:"addresses"`
	Keywords  map[string]*Result `json:"keywords"`
	// Reverse is keyed by "lat,lng" with six decimals.
	Reverse map[string]string `json:"reverse"`
	// Err, when set, is returned by every lookup.
	Err error `json:"-"`

	// Calls counts lookups per method, for assertions.
	Calls map[string]int `json:"-"`
}

// LoadStaticProvider reads a provider table from a JSON file.
func LoadStaticProvider(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading replay file: %w", err)
	}

	var p StaticProvider
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding replay file: %w", err)
	}

	return &p, nil
}

func (s *StaticProvider) count(method string) {
	if s.Calls == nil {
		s.Calls = map[string]int{}
	}

	s.Calls[method]++
}

// TotalCalls returns the number of lookups made.
func (s *StaticProvider) TotalCalls() int {
	n := 0
	for _, c := range s.Calls {
		n += c
	}

	return n
}

// SearchAddress implements Provider.
func (s *StaticProvider) SearchAddress(_ context.Context, query string) (*Result, error) {
	s.count("address")
	if s.Err != nil {
		return nil, s.Err
	}

	return s.Addresses[query], nil
}

// ReverseGeocode implements Provider.
func (s *StaticProvider) ReverseGeocode(_ context.Context, lat, lng float64) (string, error) {
	s.count("reverse")
	if s.Err != nil {
		return "", s.Err
	}

	return s.Reverse[fmt.Sprintf("%.6f,%.6f", lat, lng)], nil
}

// SearchKeyword implements Provider.
func (s *StaticProvider) SearchKeyword(_ context.Context, query string) (*Result, error) {
	s.count("keyword")
	if s.Err != nil {
		return nil, s.Err
	}

	return s.Keywords[query], nil
}
