// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package bulk turns a raw CSV of public toilets into directory records.
//
// Every data row is normalized (ParseRow), geocoded through a
// geocode.Resolver, classified against its own coordinates (Classify) and
// routed to one of three destinations: accepted records, staging items for
// human review, or rejected rows. A BatchRun drives one file through that
// pipeline and persists the outcome.
package bulk

import (
	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
)

// Action is the disposition of a row.
type Action string

const (
	// ActionImmediate rows are accepted into the directory as is.
	ActionImmediate Action = "immediate"
	// ActionReview rows wait for a reviewer.
	ActionReview Action = "review"
	// ActionReject rows cannot be placed.
	ActionReject Action = "reject"
)

// ParsedRow is the normalized name and address of one input row.
type ParsedRow struct {
	// Name is the raw name without its floor token.
	Name string `json:"name"`
	// Address is the raw address, with the cleaned name appended unless it
	// already contains it.
	Address    string           `json:"address"`
	Floor      int              `json:"floor"`
	NameRaw    string           `json:"name_raw"`
	AddressRaw string           `json:"address_raw"`
	Logs       []store.LogEntry `json:"logs,omitempty"`
}

// ValidationResult is the classification decision for one row.
type ValidationResult struct {
	Name    string           `json:"name"`
	Address string           `json:"address"`
	Floor   int              `json:"floor"`
	Lat     float64          `json:"lat"`
	Lng     float64          `json:"lng"`
	Action  Action           `json:"action"`
	Reason  string           `json:"reason"`
	Logs    []store.LogEntry `json:"logs"`
	// Distance between the input and the geocoded coordinate, when both
	// existed.
	Distance *float64 `json:"distance,omitempty"`
	// Fixed is set when the coordinate was corrected by the region check.
	Fixed bool `json:"fixed,omitempty"`
}

// Point returns the decided coordinate.
func (v *ValidationResult) Point() spatial.Point {
	return spatial.Point{Lat: v.Lat, Lng: v.Lng}
}

func (v *ValidationResult) log(severity store.Severity, format string, args ...any) {
	v.Logs = appendLog(v.Logs, severity, format, args...)
}
