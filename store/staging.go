// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const stagingColumns = `id, upload_id, row_index, name, address, floor, lat, lng, type,
	male_stalls, female_stalls, opening_hours, memo, name_raw, address_raw, lat_raw, lng_raw,
	action, reason, logs, status, created_at, updated_at`

func (r *sqlRepository) PersistStagingItems(ctx context.Context, items []StagingItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO toilets_bulk(`+stagingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return rollback(tx, err)
	}
	defer stmt.Close()

	now := r.now()

	for i := range items {
		item := &items[i]
		if item.ID == "" {
			return rollback(tx, fmt.Errorf("staging item %d has no id", i))
		}

		if item.Status == "" {
			item.Status = StatusReviewNeeded
		}

		if item.CreatedAt.IsZero() {
			item.CreatedAt = now
		}

		item.UpdatedAt = now

		logs, err := json.Marshal(nonNil(item.Logs))
		if err != nil {
			return rollback(tx, err)
		}

		_, err = stmt.ExecContext(ctx,
			item.ID, item.UploadID, item.RowIndex, item.Name, item.Address, item.Floor,
			item.Lat, item.Lng, item.Type, item.MaleStalls, item.FemaleStalls, item.OpeningHours,
			item.Memo, item.NameRaw, item.AddressRaw, item.LatRaw, item.LngRaw,
			item.Action, item.Reason, string(logs), string(item.Status), item.CreatedAt, item.UpdatedAt,
		)
		if err != nil {
			return rollback(tx, fmt.Errorf("saving staging item %s: %w", item.ID, err))
		}
	}

	return tx.Commit()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}

func scanStagingItem(row interface{ Scan(...any) error }) (*StagingItem, error) {
	var (
		item   StagingItem
		logs   string
		status string
	)

	err := row.Scan(
		&item.ID, &item.UploadID, &item.RowIndex, &item.Name, &item.Address, &item.Floor,
		&item.Lat, &item.Lng, &item.Type, &item.MaleStalls, &item.FemaleStalls, &item.OpeningHours,
		&item.Memo, &item.NameRaw, &item.AddressRaw, &item.LatRaw, &item.LngRaw,
		&item.Action, &item.Reason, &logs, &status, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = StagingStatus(status)
	if err := json.Unmarshal([]byte(logs), &item.Logs); err != nil {
		return nil, fmt.Errorf("decoding logs of staging item %s: %w", item.ID, err)
	}

	return &item, nil
}

func (r *sqlRepository) ListStagingItems(ctx context.Context, filter StagingFilter) ([]StagingItem, error) {
	var (
		where []string
		args  []any
	)

	if filter.UploadID != "" {
		where = append(where, "upload_id = ?")
		args = append(args, filter.UploadID)
	}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + stagingColumns + ` FROM toilets_bulk`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	query += " ORDER BY created_at, upload_id, row_index"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.Limit, max(filter.Offset, 0))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []StagingItem

	for rows.Next() {
		item, err := scanStagingItem(rows)
		if err != nil {
			return nil, err
		}

		items = append(items, *item)
	}

	return items, rows.Err()
}

func (r *sqlRepository) GetStagingItem(ctx context.Context, id string) (*StagingItem, error) {
	item, err := scanStagingItem(r.db.QueryRowContext(ctx,
		`SELECT `+stagingColumns+` FROM toilets_bulk WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("staging item %s: %w", id, ErrNotFound)
	}

	return item, err
}

// execOne runs a single-row statement, mapping zero affected rows to
// ErrNotFound.
func (r *sqlRepository) execOne(ctx context.Context, what, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}

	return nil
}

func (r *sqlRepository) UpdateStagingStatus(ctx context.Context, id string, status StagingStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid staging status %q", status)
	}

	return r.execOne(ctx, "staging item "+id,
		`UPDATE toilets_bulk SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), r.now(), id)
}

func (r *sqlRepository) UpdateStagingContent(ctx context.Context, item *StagingItem) error {
	logs, err := json.Marshal(nonNil(item.Logs))
	if err != nil {
		return err
	}

	item.UpdatedAt = r.now()

	return r.execOne(ctx, "staging item "+item.ID, `
		UPDATE toilets_bulk
		SET name = ?, address = ?, floor = ?, lat = ?, lng = ?, type = ?,
		    male_stalls = ?, female_stalls = ?, opening_hours = ?, memo = ?,
		    reason = ?, logs = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		item.Name, item.Address, item.Floor, item.Lat, item.Lng, item.Type,
		item.MaleStalls, item.FemaleStalls, item.OpeningHours, item.Memo,
		item.Reason, string(logs), string(item.Status), item.UpdatedAt, item.ID)
}

func (r *sqlRepository) DeleteStagingItem(ctx context.Context, id string) error {
	return r.execOne(ctx, "staging item "+id, `DELETE FROM toilets_bulk WHERE id = ?`, id)
}

func (r *sqlRepository) CleanUpStaging(ctx context.Context, uploadID string) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM toilets_bulk WHERE upload_id = ? AND status = ?`, uploadID, string(StatusDone))
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()

	return int(n), err
}
