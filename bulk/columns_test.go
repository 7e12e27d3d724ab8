// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestDetectColumns(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		want   Columns
	}{
		{
			name: "public data portal",
			header: []string{
				"구분", "화장실명", "소재지도로명주소", "소재지지번주소",
				"남성용-대변기수", "여성용-대변기수", "개방시간", "위도", "경도",
			},
			want: Columns{Type: 0, Name: 1, Road: 2, Jibun: 3, Male: 4, Female: 5, Hours: 6, Lat: 7, Lng: 8, Memo: -1, Floor: -1},
		},
		{
			name:   "accepted export",
			header: AcceptedHeader,
			want:   Columns{Type: 0, Name: 1, Road: 2, Floor: 3, Male: 4, Female: 5, Hours: 6, Lat: 7, Lng: 8, Jibun: -1, Memo: -1},
		},
		{
			name:   "english",
			header: []string{"Name", "Address", "LAT", "lng", "memo"},
			want:   Columns{Name: 0, Road: 1, Lat: 2, Lng: 3, Memo: 4, Type: -1, Jibun: -1, Male: -1, Female: -1, Hours: -1, Floor: -1},
		},
		{
			name:   "positional fallbacks",
			header: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"},
			want:   Columns{Type: 0, Name: 1, Road: 2, Jibun: 3, Lat: 7, Lng: 8, Male: -1, Female: -1, Hours: -1, Memo: -1, Floor: -1},
		},
		{
			name:   "fallback out of range",
			header: []string{"건물명", "주소"},
			want:   Columns{Name: 0, Road: 1, Type: -1, Jibun: -1, Lat: -1, Lng: -1, Male: -1, Female: -1, Hours: -1, Memo: -1, Floor: -1},
		},
		{
			name:   "quoted header with bom",
			header: []string{"\ufeff\"구분\"", "\"화장실명\"", "도로명주소"},
			want:   Columns{Type: 0, Name: 1, Road: 2, Jibun: -1, Lat: -1, Lng: -1, Male: -1, Female: -1, Hours: -1, Memo: -1, Floor: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectColumns(tt.header)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DetectColumns() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsExportHeader(t *testing.T) {
	assert.True(t, IsExportHeader(AcceptedHeader))

	withBOM := append([]string{"\ufeff구분"}, AcceptedHeader[1:]...)
	assert.True(t, IsExportHeader(withBOM))

	assert.False(t, IsExportHeader(AcceptedHeader[:8]))
	assert.False(t, IsExportHeader([]string{"구분", "화장실명", "소재지도로명주소", "층수", "남성변기수", "여성변기수", "개방시간상세", "WGS84위도", "WGS84경도"}))
}

func TestCell(t *testing.T) {
	row := []string{" a ", "b"}

	assert.Equal(t, "a", cell(row, 0))
	assert.Equal(t, "", cell(row, -1))
	assert.Equal(t, "", cell(row, 5))
}
