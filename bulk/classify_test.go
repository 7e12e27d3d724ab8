// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"math"
	"strings"
	"testing"

	"github.com/Qseek-Jung/ToiletShare-sub001/geocode"
	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cityHall = spatial.Point{Lat: 37.566295, Lng: 126.977945}

// offsetNorth moves p north by meters along its meridian.
func offsetNorth(p spatial.Point, meters float64) spatial.Point {
	return spatial.Point{Lat: p.Lat + meters/(6371e3*math.Pi/180), Lng: p.Lng}
}

func roadResult(p spatial.Point) *geocode.Result {
	return &geocode.Result{Lat: p.Lat, Lng: p.Lng, FormattedAddress: "서울 중구 세종대로 110", AddressType: geocode.AddressRoad}
}

func TestClassifyWithoutGeocode(t *testing.T) {
	parsed := ParseRow("시청 화장실", "서울 중구 세종대로 110")
	regionOnly := &geocode.Result{Lat: 37.5, Lng: 127, AddressType: geocode.AddressRegion}

	tests := []struct {
		name       string
		raw        spatial.Point
		geo        *geocode.Result
		onLand     bool
		wantAction Action
		wantReason string
		wantLevel  store.Severity
		wantPoint  spatial.Point
	}{
		{"raw on land", cityHall, nil, true, ActionImmediate, "지오코딩 실패했으나 원본 좌표가 유효(육지)하여 즉시 등록", store.SeverityWarning, cityHall},
		{"raw off land", cityHall, nil, false, ActionReject, "지오코딩 실패 및 원본 좌표 오류(바다/해외)", store.SeverityError, cityHall},
		{"no raw", spatial.Point{}, nil, true, ActionReject, "주소 불명 및 좌표 없음", store.SeverityError, spatial.Point{}},
		{"region result is no result", cityHall, regionOnly, false, ActionReject, "지오코딩 실패 및 원본 좌표 오류(바다/해외)", store.SeverityError, cityHall},
		{"region result with land", cityHall, regionOnly, true, ActionImmediate, "지오코딩 실패했으나 원본 좌표가 유효(육지)하여 즉시 등록", store.SeverityWarning, cityHall},
		{"only one axis", spatial.Point{Lat: 37.5}, nil, true, ActionReject, "주소 불명 및 좌표 없음", store.SeverityError, spatial.Point{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(parsed, tt.raw.Lat, tt.raw.Lng, tt.geo, tt.onLand, DefaultThresholds())
			assert.Equal(t, tt.wantAction, got.Action)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, tt.wantPoint, got.Point())
			assert.Nil(t, got.Distance)
			require.NotEmpty(t, got.Logs)
			assert.Equal(t, tt.wantReason, got.Logs[len(got.Logs)-1].Message)
			assert.Equal(t, tt.wantLevel, got.Logs[len(got.Logs)-1].Severity)
		})
	}
}

func TestClassifyNoGeocodeOffLandAlwaysRejects(t *testing.T) {
	parsed := ParseRow("해변 화장실", "")
	points := []spatial.Point{
		{Lat: 33.1, Lng: 124.2},
		{Lat: 37.5, Lng: 131.9},
		{Lat: 35.0, Lng: 129.5},
		{Lat: 48.8, Lng: 2.35},
	}

	for _, p := range points {
		for _, geo := range []*geocode.Result{nil, {Lat: p.Lat, Lng: p.Lng, AddressType: geocode.AddressRegion}} {
			got := Classify(parsed, p.Lat, p.Lng, geo, false, DefaultThresholds())
			assert.Equal(t, ActionReject, got.Action, "point %s", p)
		}
	}
}

func TestClassifyGeocodeWithoutRaw(t *testing.T) {
	parsed := ParseRow("시청 화장실", "서울 중구 세종대로 110")

	got := Classify(parsed, 0, 0, roadResult(cityHall), false, DefaultThresholds())
	assert.Equal(t, ActionImmediate, got.Action)
	assert.Equal(t, "원본 좌표 없어 주소 기반 좌표로 즉시 등록", got.Reason)
	assert.Equal(t, cityHall, got.Point())
	assert.Equal(t, parsed.Address, got.Address)
	assert.Equal(t, parsed.Floor, got.Floor)
}

// rank orders the building-like outcomes by how far they are from auto
// acceptance.
func rank(t *testing.T, raw spatial.Point, v ValidationResult) int {
	t.Helper()

	switch {
	case v.Action == ActionImmediate:
		return 0
	case v.Action == ActionReview && v.Point() == raw:
		return 1
	case v.Action == ActionReview:
		return 2
	default:
		t.Fatalf("unexpected action %s", v.Action)

		return -1
	}
}

func TestClassifyDistanceMonotonicity(t *testing.T) {
	parsed := ParseRow("시청 화장실", "서울 중구 세종대로 110")
	th := DefaultThresholds()

	prev := 0
	seen := map[int]bool{}

	for d := 5.0; d <= 400; d += 5 {
		geo := roadResult(offsetNorth(cityHall, d))
		got := Classify(parsed, cityHall.Lat, cityHall.Lng, geo, true, th)

		r := rank(t, cityHall, got)
		assert.GreaterOrEqual(t, r, prev, "distance %.0fm went back from %d to %d", d, prev, r)

		prev = r
		seen[r] = true
	}

	assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, seen)
}

func TestClassifyBuildingBands(t *testing.T) {
	parsed := ParseRow("시청 화장실", "서울 중구 세종대로 110")

	tests := []struct {
		meters     float64
		wantAction Action
		wantRaw    bool
		wantReason string
	}{
		{30, ActionImmediate, true, "거리(30m) 양호 -> 즉시 등록"},
		{120, ActionReview, true, "거리 차이(120m) 발생 (50~150m) -> 검수 필요"},
		{400, ActionReview, false, "거리 차이(400m) 과다 -> 검수 필요"},
	}

	for _, tt := range tests {
		t.Run(tt.wantReason, func(t *testing.T) {
			found := offsetNorth(cityHall, tt.meters)
			got := Classify(parsed, cityHall.Lat, cityHall.Lng, roadResult(found), true, DefaultThresholds())

			assert.Equal(t, tt.wantAction, got.Action)
			assert.Equal(t, tt.wantReason, got.Reason)
			require.NotNil(t, got.Distance)
			assert.InDelta(t, tt.meters, *got.Distance, 0.01)

			if tt.wantRaw {
				assert.Equal(t, cityHall, got.Point())
			} else {
				assert.Equal(t, found, got.Point())
			}
		})
	}
}

func TestClassifyWideAreaVersusBuilding(t *testing.T) {
	found := offsetNorth(cityHall, 120)

	park := Classify(ParseRow("중앙공원 화장실", "서울 중구 세종대로 110"), cityHall.Lat, cityHall.Lng, roadResult(found), true, DefaultThresholds())
	assert.Equal(t, ActionImmediate, park.Action)
	assert.Equal(t, "넓은 구역, 거리(120m) 양호 -> 즉시 등록", park.Reason)
	assert.Equal(t, cityHall, park.Point())

	building := Classify(ParseRow("시청 화장실", "서울 중구 세종대로 110"), cityHall.Lat, cityHall.Lng, roadResult(found), true, DefaultThresholds())
	assert.Equal(t, ActionReview, building.Action)
	assert.Contains(t, building.Reason, "120m")

	farPark := Classify(ParseRow("중앙공원 화장실", "서울 중구 세종대로 110"), cityHall.Lat, cityHall.Lng,
		roadResult(offsetNorth(cityHall, 350)), true, DefaultThresholds())
	assert.Equal(t, ActionReview, farPark.Action)
	assert.Equal(t, "넓은 구역, 거리 차이(350m) 과다 -> 검수 필요", farPark.Reason)
	assert.Equal(t, cityHall, farPark.Point(), "wide-area review keeps the input coordinate")
}

func TestClassifyBuildingNameMatch(t *testing.T) {
	parsed := ParseRow("강남파이낸스센터 화장실", "서울 강남구 테헤란로 152")
	geo := roadResult(offsetNorth(cityHall, 400))
	geo.BuildingName = "강남파이낸스센터"

	got := Classify(parsed, cityHall.Lat, cityHall.Lng, geo, true, DefaultThresholds())
	assert.Equal(t, ActionImmediate, got.Action)
	assert.Equal(t, "거리(400m)는 멀지만 건물명 일치(강남파이낸스센터) -> 즉시 등록", got.Reason)
	assert.Equal(t, cityHall, got.Point())

	capped := DefaultThresholds()
	capped.NameMatchMaxMeters = 300

	got = Classify(parsed, cityHall.Lat, cityHall.Lng, geo, true, capped)
	assert.Equal(t, ActionReview, got.Action)

	var similarity bool
	for _, l := range got.Logs {
		similarity = similarity || strings.HasPrefix(l.Message, "시설명 유사도")
	}

	assert.True(t, similarity, "similarity hint is logged")
}

func TestClassifyLogsAreAppendOnly(t *testing.T) {
	parsed := ParseRow("강남역 2층 화장실", "서울시 강남구 강남대로 396")
	before := len(parsed.Logs)

	got := Classify(parsed, cityHall.Lat, cityHall.Lng, roadResult(offsetNorth(cityHall, 10)), true, DefaultThresholds())

	assert.Len(t, parsed.Logs, before, "input logs untouched")
	assert.Equal(t, parsed.Logs, got.Logs[:before])
	assert.Greater(t, len(got.Logs), before)
	assert.Equal(t, "타입 분류: 일반", got.Logs[before].Message)
}

func TestThresholdsKind(t *testing.T) {
	th := DefaultThresholds()

	assert.Equal(t, KindWideArea, th.Kind("올림픽공원 화장실"))
	assert.Equal(t, KindWideArea, th.Kind("서울대학교 캠퍼스"))
	assert.Equal(t, KindBuilding, th.Kind("국립중앙박물관"))
	assert.Equal(t, KindGeneral, th.Kind("시청역"))
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.BuildingAcceptMeters = 200
	assert.Error(t, bad.Validate())

	bad = DefaultThresholds()
	bad.NameMatchMaxMeters = -1
	assert.Error(t, bad.Validate())

	zero := Thresholds{}.withDefaults()
	assert.Equal(t, DefaultThresholds(), zero)
}

func TestNameSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, NameSimilarity("강남파이낸스센터", "강남 파이낸스 센터"), 1e-9)
	assert.Zero(t, NameSimilarity("", "시청"))
	assert.Greater(t, NameSimilarity("서울시청", "서울시청 본관"), NameSimilarity("서울시청", "부산역"))
	assert.Greater(t, NameSimilarity("서울시청", "서울시청 본관"), 0.9)
}
