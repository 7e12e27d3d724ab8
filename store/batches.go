// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const batchColumns = `id, file_name, region, uploaded_at, total_count, success_count, review_count,
	reject_count, duplicate_count, fixed_count, uploaded_ids, logs, status, outcome`

// PersistBatchMetadata writes the batch, replacing a previous version with the
// same id.
func (r *sqlRepository) PersistBatchMetadata(ctx context.Context, b *UploadBatch) error {
	if b.ID == "" {
		return errors.New("batch has no id")
	}

	ids, err := json.Marshal(nonNil(b.UploadedRecordIDs))
	if err != nil {
		return err
	}

	logs, err := json.Marshal(nonNil(b.Logs))
	if err != nil {
		return err
	}

	if b.UploadedAt.IsZero() {
		b.UploadedAt = r.now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO upload_history(`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.FileName, b.Region, b.UploadedAt, b.TotalCount, b.SuccessCount, b.ReviewCount,
		b.RejectCount, b.DuplicateCount, b.FixedCount, string(ids), string(logs),
		string(b.Status), b.Outcome,
	)
	if err != nil {
		return fmt.Errorf("saving batch %s: %w", b.ID, err)
	}

	return nil
}

func scanBatch(row interface{ Scan(...any) error }) (*UploadBatch, error) {
	var (
		b         UploadBatch
		ids, logs string
		status    string
	)

	err := row.Scan(
		&b.ID, &b.FileName, &b.Region, &b.UploadedAt, &b.TotalCount, &b.SuccessCount, &b.ReviewCount,
		&b.RejectCount, &b.DuplicateCount, &b.FixedCount, &ids, &logs, &status, &b.Outcome,
	)
	if err != nil {
		return nil, err
	}

	b.Status = BatchStatus(status)

	if err := json.Unmarshal([]byte(ids), &b.UploadedRecordIDs); err != nil {
		return nil, fmt.Errorf("decoding record ids of batch %s: %w", b.ID, err)
	}

	if err := json.Unmarshal([]byte(logs), &b.Logs); err != nil {
		return nil, fmt.Errorf("decoding logs of batch %s: %w", b.ID, err)
	}

	return &b, nil
}

func (r *sqlRepository) GetBatch(ctx context.Context, id string) (*UploadBatch, error) {
	b, err := scanBatch(r.db.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM upload_history WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", id, ErrNotFound)
	}

	return b, err
}

// ListBatches returns the most recent batches first. A non-positive limit
// returns all of them.
func (r *sqlRepository) ListBatches(ctx context.Context, limit int) ([]UploadBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM upload_history ORDER BY uploaded_at DESC, id`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []UploadBatch

	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}

		batches = append(batches, *b)
	}

	return batches, rows.Err()
}

func (r *sqlRepository) MarkBatchVoided(ctx context.Context, id string) error {
	return r.execOne(ctx, "batch "+id,
		`UPDATE upload_history SET status = ? WHERE id = ?`, string(BatchVoided), id)
}
