// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the directory records, the staging queue and the
// upload history in DuckDB.
package store

import (
	"errors"
	"time"

	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Severity grades a log line.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// LogEntry is one step of a record's decision trace.
type LogEntry struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// OpLog is one line of a batch's operation log. Row is -1 for batch-level
// messages.
type OpLog struct {
	Time     time.Time `json:"time"`
	Severity Severity  `json:"severity"`
	Row      int       `json:"row"`
	Message  string    `json:"message"`
}

// Record is a live directory entry.
type Record struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	Floor        int       `json:"floor"`
	MaleStalls   int       `json:"male_stalls"`
	FemaleStalls int       `json:"female_stalls"`
	OpeningHours string    `json:"opening_hours"`
	Memo         string    `json:"memo,omitempty"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Region       string    `json:"region,omitempty"`
	UploadID     string    `json:"upload_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	H3Res7       int64     `json:"-"`
	H3Res8       int64     `json:"-"`
	H3Res9       int64     `json:"-"`
}

// Point returns the record's location.
func (r *Record) Point() spatial.Point {
	return spatial.Point{Lat: r.Lat, Lng: r.Lng}
}

// StagingStatus is the review state of a staging item.
type StagingStatus string

const (
	StatusReviewNeeded StagingStatus = "review_needed"
	StatusRejected     StagingStatus = "rejected"
	StatusDone         StagingStatus = "done"
)

// Valid reports whether s is a known status.
func (s StagingStatus) Valid() bool {
	switch s {
	case StatusReviewNeeded, StatusRejected, StatusDone:
		return true
	default:
		return false
	}
}

// StagingItem is a row the pipeline did not accept on its own, parked for a
// reviewer.
type StagingItem struct {
	ID           string        `json:"id"`
	UploadID     string        `json:"upload_id"`
	RowIndex     int           `json:"row_index"`
	Name         string        `json:"name"`
	Address      string        `json:"address"`
	Floor        int           `json:"floor"`
	Lat          float64       `json:"lat"`
	Lng          float64       `json:"lng"`
	Type         string        `json:"type"`
	MaleStalls   int           `json:"male_stalls"`
	FemaleStalls int           `json:"female_stalls"`
	OpeningHours string        `json:"opening_hours"`
	Memo         string        `json:"memo,omitempty"`
	NameRaw      string        `json:"name_raw"`
	AddressRaw   string        `json:"address_raw"`
	LatRaw       float64       `json:"lat_raw"`
	LngRaw       float64       `json:"lng_raw"`
	Action       string        `json:"action"`
	Reason       string        `json:"reason"`
	Logs         []LogEntry    `json:"logs"`
	Status       StagingStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// BatchStatus is the final state of an upload.
type BatchStatus string

const (
	BatchCompleted  BatchStatus = "completed"
	BatchAborted    BatchStatus = "aborted"
	BatchSaveFailed BatchStatus = "save_failed"
	BatchVoided     BatchStatus = "voided"
)

// UploadBatch is the history entry of one processed file.
type UploadBatch struct {
	ID                string      `json:"id"`
	FileName          string      `json:"file_name"`
	Region            string      `json:"region"`
	UploadedAt        time.Time   `json:"uploaded_at"`
	TotalCount        int         `json:"total_count"`
	SuccessCount      int         `json:"success_count"`
	ReviewCount       int         `json:"review_count"`
	RejectCount       int         `json:"reject_count"`
	DuplicateCount    int         `json:"duplicate_count"`
	FixedCount        int         `json:"fixed_count"`
	UploadedRecordIDs []string    `json:"uploaded_record_ids"`
	Logs              []OpLog     `json:"logs,omitempty"`
	Status            BatchStatus `json:"status"`
	Outcome           string      `json:"outcome"`
}
