// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"github.com/Qseek-Jung/ToiletShare-sub001/geocode"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
)

// RowStatus is where a processed row ended up.
type RowStatus string

const (
	RowAccepted  RowStatus = "accepted"
	RowReview    RowStatus = "review"
	RowRejected  RowStatus = "rejected"
	RowDuplicate RowStatus = "duplicate"
	RowSkipped   RowStatus = "skipped"
)

// Stats are the running counters of a batch.
type Stats struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Success   int `json:"success"`
	Review    int `json:"review"`
	Reject    int `json:"reject"`
	Duplicate int `json:"duplicate"`
	Fixed     int `json:"fixed"`
	Skipped   int `json:"skipped"`
}

func (s *Stats) add(out *RowOutcome) {
	s.Processed++

	switch out.Status {
	case RowAccepted:
		s.Success++
	case RowReview:
		s.Review++
	case RowRejected:
		s.Reject++
	case RowDuplicate:
		s.Duplicate++
	case RowSkipped:
		s.Skipped++
	}

	if out.Result != nil && out.Result.Fixed {
		s.Fixed++
	}
}

// RowOutcome reports one processed row.
type RowOutcome struct {
	Index  int               `json:"index"`
	Status RowStatus         `json:"status"`
	Result *ValidationResult `json:"result,omitempty"`
	// DuplicateOf is the index of the first occurrence, or -1.
	DuplicateOf int `json:"duplicate_of"`
	// Stats are the counters after this row.
	Stats Stats `json:"stats"`
}

// ProgressSink receives every row as soon as it is processed, from the
// goroutine running the batch.
type ProgressSink interface {
	OnRowProcessed(index int, out RowOutcome)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(index int, out RowOutcome)

func (f ProgressFunc) OnRowProcessed(index int, out RowOutcome) {
	f(index, out)
}

type nopSink struct{}

func (nopSink) OnRowProcessed(int, RowOutcome) {}

// FailedRow is a rejected input row kept for the error export.
type FailedRow struct {
	Index  int      `json:"index"`
	Cells  []string `json:"cells"`
	Reason string   `json:"reason"`
}

// Outcome is the batch-level completion code.
type Outcome string

const (
	OutcomeAllAccepted    Outcome = "all_accepted"
	OutcomePartialReview  Outcome = "partial_review"
	OutcomeWithRejections Outcome = "with_rejections"
	OutcomeAborted        Outcome = "aborted"
	OutcomeSaveFailed     Outcome = "save_failed"
)

// ExitCode maps the outcome to a process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeAllAccepted:
		return 0
	case OutcomePartialReview:
		return 10
	case OutcomeWithRejections:
		return 11
	case OutcomeAborted:
		return 20
	case OutcomeSaveFailed:
		return 30
	default:
		return 1
	}
}

func decideOutcome(aborted, saveFailed bool, s Stats) Outcome {
	switch {
	case saveFailed:
		return OutcomeSaveFailed
	case aborted:
		return OutcomeAborted
	case s.Reject > 0:
		return OutcomeWithRejections
	case s.Review > 0:
		return OutcomePartialReview
	default:
		return OutcomeAllAccepted
	}
}

// SaveError reports a persistence failure at the end of a run. Whatever was
// written before the failure stays written; the batch's uploaded record ids
// list exactly the records that were committed.
type SaveError struct {
	// Stage is "records", "staging" or "metadata".
	Stage string
	Err   error
}

func (e *SaveError) Error() string {
	return "saving " + e.Stage + ": " + e.Err.Error()
}

func (e *SaveError) Unwrap() error {
	return e.Err
}

// Summary is the result of a batch run.
type Summary struct {
	Batch        *store.UploadBatch  `json:"batch"`
	Columns      Columns             `json:"columns"`
	FastPath     bool                `json:"fast_path"`
	Accepted     []store.Record      `json:"accepted"`
	Staged       []store.StagingItem `json:"staged"`
	Failed       []FailedRow         `json:"failed"`
	Results      []RowOutcome        `json:"results"`
	Logs         []store.OpLog       `json:"logs"`
	Stats        Stats               `json:"stats"`
	Outcome      Outcome             `json:"outcome"`
	GeocodeStats geocode.Stats       `json:"geocode_stats"`
}
