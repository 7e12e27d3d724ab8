// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package spatial

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// NationalKey is the region key that disables region-specific checks.
const NationalKey = "National"

//go:embed regions.yaml
var defaultRegions []byte

// Region is one entry of the region table: a display name, the aliases used
// to recognise it in free text, and its bounding box.
type Region struct {
	Key      string   `json:"key" yaml:"-"`
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	MinLat   float64  `json:"min_lat" yaml:"min_lat"`
	MaxLat   float64  `json:"max_lat" yaml:"max_lat"`
	MinLng   float64  `json:"min_lng" yaml:"min_lng"`
	MaxLng   float64  `json:"max_lng" yaml:"max_lng"`
}

// Bounds returns the region's bounding box.
func (r Region) Bounds() Bounds {
	return Bounds{MinLat: r.MinLat, MaxLat: r.MaxLat, MinLng: r.MinLng, MaxLng: r.MaxLng}
}

// IsNational reports whether r is the whole-country pseudo region.
func (r Region) IsNational() bool {
	return strings.EqualFold(r.Key, NationalKey)
}

// Prefix prepends the region name to addr unless addr already mentions it.
func (r Region) Prefix(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" || r.IsNational() || strings.Contains(addr, r.Name) {
		return addr
	}

	return r.Name + " " + addr
}

// RegionTable maps region keys to regions.
type RegionTable map[string]Region

// DefaultRegions returns the built-in table covering the 17 first-level
// administrative divisions plus the national box.
func DefaultRegions() RegionTable {
	table, err := ParseRegions(defaultRegions)
	if err != nil {
		panic(fmt.Sprintf("spatial: embedded regions are invalid: %v", err))
	}

	return table
}

// LoadRegions reads a region table from a YAML file.
func LoadRegions(path string) (RegionTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading regions file: %w", err)
	}

	return ParseRegions(data)
}

// ParseRegions decodes a YAML region table and checks every box.
func ParseRegions(data []byte) (RegionTable, error) {
	var table RegionTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("decoding regions: %w", err)
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("region table is empty")
	}

	for key, r := range table {
		if r.Name == "" {
			return nil, fmt.Errorf("region %q has no name", key)
		}

		if r.MinLat >= r.MaxLat || r.MinLng >= r.MaxLng {
			return nil, fmt.Errorf("region %q has an empty bounding box", key)
		}

		r.Key = key
		table[key] = r
	}

	return table, nil
}

// Keys returns the region keys sorted, with the national entry first.
func (t RegionTable) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		ni, nj := strings.EqualFold(keys[i], NationalKey), strings.EqualFold(keys[j], NationalKey)
		if ni != nj {
			return ni
		}

		return keys[i] < keys[j]
	})

	return keys
}

// Lookup finds a region by key (case-insensitive) or by one of its keywords.
func (t RegionTable) Lookup(key string) (Region, error) {
	if r, ok := t[key]; ok {
		return r, nil
	}

	for k, r := range t {
		if strings.EqualFold(k, key) {
			return r, nil
		}
	}

	if k, ok := t.FindByKeyword(key); ok {
		return t[k], nil
	}

	return Region{}, fmt.Errorf("unknown region %q", key)
}

// FindByKeyword returns the key of the first region whose keywords appear in
// input (whitespace ignored). Specific regions win over the national entry.
func (t RegionTable) FindByKeyword(input string) (string, bool) {
	normalized := strings.Join(strings.Fields(input), "")
	if normalized == "" {
		return "", false
	}

	var ordered, national []string

	for _, k := range t.Keys() {
		if strings.EqualFold(k, NationalKey) {
			national = append(national, k)
		} else {
			ordered = append(ordered, k)
		}
	}

	for _, k := range append(ordered, national...) {
		for _, kw := range t[k].Keywords {
			if kw != "" && strings.Contains(normalized, kw) {
				return k, true
			}
		}
	}

	return "", false
}
