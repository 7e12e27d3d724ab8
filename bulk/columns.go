// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Qseek-Jung/ToiletShare-sub001/utils/textutils"
)

// AcceptedHeader is the header of the accepted-records export. A file that
// starts with it has already been through the pipeline.
var AcceptedHeader = []string{
	"구분", "화장실명", "주소", "층수", "남성변기수", "여성변기수", "개방시간상세", "WGS84위도", "WGS84경도",
}

// Columns maps logical fields to cell indexes. -1 means absent.
type Columns struct {
	Type   int `json:"type"`
	Name   int `json:"name"`
	Road   int `json:"road"`
	Jibun  int `json:"jibun"`
	Lat    int `json:"lat"`
	Lng    int `json:"lng"`
	Male   int `json:"male"`
	Female int `json:"female"`
	Hours  int `json:"hours"`
	Memo   int `json:"memo"`
	Floor  int `json:"floor"`
}

type columnSpec struct {
	field      func(*Columns) *int
	candidates []string
	// exact candidates must equal the header cell instead of being contained
	// in it.
	exact    []string
	fallback int
}

// Fields are matched in this order; a header cell is claimed by the first
// field that matches it.
var columnSpecs = []columnSpec{
	{func(c *Columns) *int { return &c.Name }, []string{"화장실명", "건물명", "시설명", "명칭"}, []string{"name"}, 1},
	{func(c *Columns) *int { return &c.Lat }, []string{"위도"}, []string{"lat", "latitude", "y"}, 7},
	{func(c *Columns) *int { return &c.Lng }, []string{"경도"}, []string{"lng", "lon", "longitude", "x"}, 8},
	{func(c *Columns) *int { return &c.Jibun }, []string{"지번"}, nil, 3},
	{func(c *Columns) *int { return &c.Road }, []string{"도로명", "소재지", "주소"}, []string{"address"}, 2},
	{func(c *Columns) *int { return &c.Type }, []string{"구분", "유형", "종류"}, []string{"type"}, 0},
	{func(c *Columns) *int { return &c.Male }, []string{"남성대변기", "남성용", "남성변기"}, nil, -1},
	{func(c *Columns) *int { return &c.Female }, []string{"여성대변기", "여성용", "여성변기"}, nil, -1},
	{func(c *Columns) *int { return &c.Hours }, []string{"개방시간"}, nil, -1},
	{func(c *Columns) *int { return &c.Memo }, []string{"비고", "메모"}, []string{"memo"}, -1},
	{func(c *Columns) *int { return &c.Floor }, []string{"층수"}, []string{"floor"}, -1},
}

// DetectColumns finds the logical columns of header by substring matching.
// Fields without a match fall back to a fixed position when that position is
// within the header and not claimed by another field.
func DetectColumns(header []string) Columns {
	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = strings.ToLower(textutils.CollapseSpaces(strings.Trim(textutils.NFC(h), "\"\ufeff")))
	}

	c := Columns{Type: -1, Name: -1, Road: -1, Jibun: -1, Lat: -1, Lng: -1, Male: -1, Female: -1, Hours: -1, Memo: -1, Floor: -1}
	used := make(map[int]bool)

	for _, spec := range columnSpecs {
		idx := spec.field(&c)
		*idx = matchColumn(cells, used, spec)

		if *idx >= 0 {
			used[*idx] = true
		}
	}

	for _, spec := range columnSpecs {
		idx := spec.field(&c)
		if *idx < 0 && spec.fallback >= 0 && spec.fallback < len(header) && !used[spec.fallback] {
			*idx = spec.fallback
			used[spec.fallback] = true
		}
	}

	return c
}

func matchColumn(cells []string, used map[int]bool, spec columnSpec) int {
	for _, cand := range spec.candidates {
		for i, cell := range cells {
			if !used[i] && strings.Contains(cell, cand) {
				return i
			}
		}
	}

	for i, cell := range cells {
		if !used[i] && slices.Contains(spec.exact, cell) {
			return i
		}
	}

	return -1
}

// String renders the mapping for the run log.
func (c Columns) String() string {
	return fmt.Sprintf("이름(%d), 도로명(%d), 지번(%d), 좌표(%d, %d), 구분(%d)", c.Name, c.Road, c.Jibun, c.Lat, c.Lng, c.Type)
}

// IsExportHeader reports whether header is the accepted-records export
// header.
func IsExportHeader(header []string) bool {
	if len(header) != len(AcceptedHeader) {
		return false
	}

	for i, h := range header {
		if strings.TrimSpace(strings.Trim(h, "\ufeff")) != AcceptedHeader[i] {
			return false
		}
	}

	return true
}

// cell returns the trimmed cell at idx, or "" when idx is absent or out of
// range.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}

	return strings.TrimSpace(row[idx])
}
