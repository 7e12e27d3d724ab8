// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Qseek-Jung/ToiletShare-sub001/geocode"
	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"
)

// Thresholds tunes the classification. Distances are in meters.
type Thresholds struct {
	// WideAreaMeters is the largest accepted distance for parks, campuses
	// and similar venues.
	WideAreaMeters float64 `mapstructure:"wide_area_meters" json:"wide_area_meters"`
	// BuildingAcceptMeters is the largest accepted distance for everything
	// else.
	BuildingAcceptMeters float64 `mapstructure:"building_accept_meters" json:"building_accept_meters"`
	// BuildingReviewMeters is the largest distance at which the input
	// coordinate is kept for review; beyond it the geocoded one is suggested.
	BuildingReviewMeters float64 `mapstructure:"building_review_meters" json:"building_review_meters"`
	// NameMatchMaxMeters caps the building name corroboration rule. 0 means
	// no cap.
	NameMatchMaxMeters float64  `mapstructure:"name_match_max_meters" json:"name_match_max_meters"`
	WideAreaKeywords   []string `mapstructure:"wide_area_keywords" json:"wide_area_keywords"`
	BuildingKeywords   []string `mapstructure:"building_keywords" json:"building_keywords"`
}

// DefaultThresholds returns the production values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WideAreaMeters:       200,
		BuildingAcceptMeters: 50,
		BuildingReviewMeters: 150,
		WideAreaKeywords: []string{
			"공원", "운동장", "학교", "캠퍼스", "대학교", "초등학교", "중학교", "고등학교",
			"체육관", "경기장", "수변", "광장", "유원지",
		},
		BuildingKeywords: []string{
			"빌딩", "타워", "센터", "병원", "장례식장", "청사", "주민센터", "도서관", "박물관", "미술관",
		},
	}
}

// withDefaults fills zero fields from DefaultThresholds.
func (th Thresholds) withDefaults() Thresholds {
	def := DefaultThresholds()

	if th.WideAreaMeters <= 0 {
		th.WideAreaMeters = def.WideAreaMeters
	}

	if th.BuildingAcceptMeters <= 0 {
		th.BuildingAcceptMeters = def.BuildingAcceptMeters
	}

	if th.BuildingReviewMeters <= 0 {
		th.BuildingReviewMeters = def.BuildingReviewMeters
	}

	if len(th.WideAreaKeywords) == 0 {
		th.WideAreaKeywords = def.WideAreaKeywords
	}

	if len(th.BuildingKeywords) == 0 {
		th.BuildingKeywords = def.BuildingKeywords
	}

	return th
}

// Validate rejects inconsistent bands.
func (th Thresholds) Validate() error {
	if th.BuildingAcceptMeters > th.BuildingReviewMeters {
		return fmt.Errorf("building_accept_meters (%.0f) exceeds building_review_meters (%.0f)",
			th.BuildingAcceptMeters, th.BuildingReviewMeters)
	}

	if th.NameMatchMaxMeters < 0 {
		return fmt.Errorf("name_match_max_meters must not be negative (got %.0f)", th.NameMatchMaxMeters)
	}

	return nil
}

// FacilityKind groups names by how far a toilet may sit from the geocoded
// point of the venue.
type FacilityKind string

const (
	KindWideArea FacilityKind = "넓은 구역"
	KindBuilding FacilityKind = "건물/기관"
	KindGeneral  FacilityKind = "일반"
)

// Kind classifies a facility name by keyword.
func (th Thresholds) Kind(name string) FacilityKind {
	if containsAny(name, th.WideAreaKeywords) {
		return KindWideArea
	}

	if containsAny(name, th.BuildingKeywords) {
		return KindBuilding
	}

	return KindGeneral
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}

	return false
}

// NameSimilarity scores two names between 0 and 1 as the better of
// Jaro-Winkler and normalized Levenshtein similarity.
func NameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.Join(strings.Fields(a), ""))
	b = strings.ToLower(strings.Join(strings.Fields(b), ""))

	if a == "" || b == "" {
		return 0
	}

	jw := smetrics.JaroWinkler(a, b, 0.7, 4)

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	lev := 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)

	return max(jw, lev)
}

// Classify decides what happens to a row given its input coordinate, the
// geocoding result (nil when nothing usable was found) and whether the input
// coordinate is on land. A REGION level result counts as nothing found.
func Classify(parsed ParsedRow, rawLat, rawLng float64, geo *geocode.Result, isOnLand bool, th Thresholds) ValidationResult {
	th = th.withDefaults()

	res := ValidationResult{
		Name:    parsed.Name,
		Address: parsed.Address,
		Floor:   parsed.Floor,
		Logs:    append([]store.LogEntry(nil), parsed.Logs...),
	}

	raw := spatial.Point{Lat: rawLat, Lng: rawLng}
	hasRaw := raw.Valid()

	if !geo.Precise() {
		if geo != nil {
			res.log(store.SeverityWarning, "행정구역 단위 결과(%s)는 좌표로 사용하지 않음", geo.FormattedAddress)
		}

		switch {
		case hasRaw && isOnLand:
			res.decide(ActionImmediate, raw, store.SeverityWarning, "지오코딩 실패했으나 원본 좌표가 유효(육지)하여 즉시 등록")
		case hasRaw:
			res.decide(ActionReject, raw, store.SeverityError, "지오코딩 실패 및 원본 좌표 오류(바다/해외)")
		default:
			res.decide(ActionReject, spatial.Point{}, store.SeverityError, "주소 불명 및 좌표 없음")
		}

		return res
	}

	found := geo.Point()

	if !hasRaw {
		res.decide(ActionImmediate, found, store.SeveritySuccess, "원본 좌표 없어 주소 기반 좌표로 즉시 등록")

		return res
	}

	d := raw.HaversineDistance(&found)
	meters := int(math.Round(d))
	res.Distance = &d

	kind := th.Kind(parsed.Name)
	res.log(store.SeverityInfo, "타입 분류: %s", kind)
	res.log(store.SeverityInfo, "좌표 거리 차이: %.1fm", d)

	if venue := firstNonEmpty(geo.BuildingName, geo.PlaceName); venue != "" {
		res.log(store.SeverityInfo, "시설명 유사도: %.2f (%s)", NameSimilarity(parsed.Name, venue), venue)
	}

	if kind == KindWideArea {
		if d <= th.WideAreaMeters {
			res.decide(ActionImmediate, raw, store.SeveritySuccess, fmt.Sprintf("넓은 구역, 거리(%dm) 양호 -> 즉시 등록", meters))
		} else {
			res.decide(ActionReview, raw, store.SeverityWarning, fmt.Sprintf("넓은 구역, 거리 차이(%dm) 과다 -> 검수 필요", meters))
		}

		return res
	}

	switch {
	case d <= th.BuildingAcceptMeters:
		res.decide(ActionImmediate, raw, store.SeveritySuccess, fmt.Sprintf("거리(%dm) 양호 -> 즉시 등록", meters))
	case buildingNameMatches(parsed.Name, geo.BuildingName) && (th.NameMatchMaxMeters == 0 || d <= th.NameMatchMaxMeters):
		res.decide(ActionImmediate, raw, store.SeveritySuccess,
			fmt.Sprintf("거리(%dm)는 멀지만 건물명 일치(%s) -> 즉시 등록", meters, geo.BuildingName))
	case d <= th.BuildingReviewMeters:
		res.decide(ActionReview, raw, store.SeverityWarning,
			fmt.Sprintf("거리 차이(%dm) 발생 (%.0f~%.0fm) -> 검수 필요", meters, th.BuildingAcceptMeters, th.BuildingReviewMeters))
	default:
		res.decide(ActionReview, found, store.SeverityWarning, fmt.Sprintf("거리 차이(%dm) 과다 -> 검수 필요", meters))
		res.log(store.SeverityInfo, "검색 좌표로 보정 제안: %s", found)
	}

	return res
}

func (v *ValidationResult) decide(action Action, p spatial.Point, severity store.Severity, reason string) {
	v.Action = action
	v.Lat, v.Lng = p.Lat, p.Lng
	v.Reason = reason
	v.log(severity, "%s", reason)
}

func buildingNameMatches(name, building string) bool {
	building = strings.TrimSpace(building)

	return building != "" && strings.Contains(name, building)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
