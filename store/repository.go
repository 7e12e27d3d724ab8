// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/uber/h3-go/v4"
)

// h3Resolutions are the cell sizes indexed for every record: roughly 5km²,
// 0.7km² and 0.1km² hexagons.
var h3Resolutions = []int{7, 8, 9}

func (r *Record) computeH3() error {
	if !r.Point().Valid() {
		r.H3Res7, r.H3Res8, r.H3Res9 = 0, 0, 0

		return nil
	}

	latLng := h3.NewLatLng(r.Lat, r.Lng)
	for _, res := range h3Resolutions {
		cell, err := h3.LatLngToCell(latLng, res)
		if err != nil {
			return fmt.Errorf("error converting to h3 cell at res %d: %w", res, err)
		}

		switch res {
		case 7:
			r.H3Res7 = int64(cell)
		case 8:
			r.H3Res8 = int64(cell)
		case 9:
			r.H3Res9 = int64(cell)
		}
	}

	return nil
}

// StagingFilter narrows ListStagingItems. Zero values match everything.
type StagingFilter struct {
	UploadID string
	Status   StagingStatus
	Limit    int
	Offset   int
}

// Repository handles persistence of records, staging items and batches.
type Repository interface {
	// CreateSchema creates the tables if missing.
	CreateSchema(ctx context.Context) error

	// BulkInsertRecords inserts or updates records by id in one transaction.
	BulkInsertRecords(ctx context.Context, records []Record) (inserted, updated int, err error)
	// BulkDeleteRecords deletes records by id. Unknown ids are ignored.
	BulkDeleteRecords(ctx context.Context, ids []string) (int, error)
	GetRecord(ctx context.Context, id string) (*Record, error)
	CountRecords(ctx context.Context) (int, error)
	// RecordsNear returns records sharing the H3 cell of p at resolution res.
	RecordsNear(ctx context.Context, p spatial.Point, res int) ([]Record, error)

	PersistStagingItems(ctx context.Context, items []StagingItem) error
	ListStagingItems(ctx context.Context, filter StagingFilter) ([]StagingItem, error)
	GetStagingItem(ctx context.Context, id string) (*StagingItem, error)
	UpdateStagingStatus(ctx context.Context, id string, status StagingStatus) error
	UpdateStagingContent(ctx context.Context, item *StagingItem) error
	DeleteStagingItem(ctx context.Context, id string) error
	// CleanUpStaging removes the items of an upload that were already handled.
	CleanUpStaging(ctx context.Context, uploadID string) (int, error)

	PersistBatchMetadata(ctx context.Context, batch *UploadBatch) error
	GetBatch(ctx context.Context, id string) (*UploadBatch, error)
	ListBatches(ctx context.Context, limit int) ([]UploadBatch, error)
	MarkBatchVoided(ctx context.Context, id string) error

	// DB returns the underlying database connection
	DB() *sql.DB
}

type sqlRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a repository on a DuckDB connection.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db, now: time.Now}
}

// Open opens (or creates) the DuckDB file at path and ensures the schema.
// An empty path opens an in-memory database.
func Open(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	repo := NewRepository(db)
	if err := repo.CreateSchema(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return repo, nil
}

// DB returns the underlying database connection for advanced queries.
func (r *sqlRepository) DB() *sql.DB {
	return r.db
}

func (r *sqlRepository) CreateSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS toilets (
			id VARCHAR PRIMARY KEY,
			type VARCHAR NOT NULL,
			name VARCHAR NOT NULL,
			address VARCHAR NOT NULL,
			floor INTEGER NOT NULL DEFAULT 1,
			male_stalls INTEGER NOT NULL DEFAULT 0,
			female_stalls INTEGER NOT NULL DEFAULT 0,
			opening_hours VARCHAR NOT NULL DEFAULT '',
			memo VARCHAR NOT NULL DEFAULT '',
			lat DOUBLE NOT NULL,
			lng DOUBLE NOT NULL,
			region VARCHAR NOT NULL DEFAULT '',
			upload_id VARCHAR NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			h3_res7 BIGINT,
			h3_res8 BIGINT,
			h3_res9 BIGINT
		);

		CREATE TABLE IF NOT EXISTS toilets_bulk (
			id VARCHAR PRIMARY KEY,
			upload_id VARCHAR NOT NULL,
			row_index INTEGER NOT NULL,
			name VARCHAR NOT NULL,
			address VARCHAR NOT NULL,
			floor INTEGER NOT NULL,
			lat DOUBLE NOT NULL,
			lng DOUBLE NOT NULL,
			type VARCHAR NOT NULL,
			male_stalls INTEGER NOT NULL,
			female_stalls INTEGER NOT NULL,
			opening_hours VARCHAR NOT NULL,
			memo VARCHAR NOT NULL,
			name_raw VARCHAR NOT NULL,
			address_raw VARCHAR NOT NULL,
			lat_raw DOUBLE NOT NULL,
			lng_raw DOUBLE NOT NULL,
			action VARCHAR NOT NULL,
			reason VARCHAR NOT NULL,
			logs VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS upload_history (
			id VARCHAR PRIMARY KEY,
			file_name VARCHAR NOT NULL,
			region VARCHAR NOT NULL,
			uploaded_at TIMESTAMP NOT NULL,
			total_count INTEGER NOT NULL,
			success_count INTEGER NOT NULL,
			review_count INTEGER NOT NULL,
			reject_count INTEGER NOT NULL,
			duplicate_count INTEGER NOT NULL,
			fixed_count INTEGER NOT NULL,
			uploaded_ids VARCHAR NOT NULL,
			logs VARCHAR NOT NULL,
			status VARCHAR NOT NULL,
			outcome VARCHAR NOT NULL
		);
	`)

	return err
}

// rollback aborts tx, reporting the rollback failure in preference to err.
func rollback(tx *sql.Tx, err error) error {
	if rErr := tx.Rollback(); rErr != nil {
		return rErr
	}

	return err
}

func (r *sqlRepository) BulkInsertRecords(ctx context.Context, records []Record) (int, int, error) {
	if len(records) == 0 {
		return 0, 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}

	exists, err := tx.PrepareContext(ctx, `SELECT created_at FROM toilets WHERE id = ?`)
	if err != nil {
		return 0, 0, rollback(tx, err)
	}
	defer exists.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO toilets(
			id, type, name, address, floor, male_stalls, female_stalls,
			opening_hours, memo, lat, lng, region, upload_id,
			created_at, updated_at, h3_res7, h3_res8, h3_res9
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, 0, rollback(tx, err)
	}
	defer insert.Close()

	update, err := tx.PrepareContext(ctx, `
		UPDATE toilets
		SET type = ?, name = ?, address = ?, floor = ?, male_stalls = ?, female_stalls = ?,
		    opening_hours = ?, memo = ?, lat = ?, lng = ?, region = ?, upload_id = ?,
		    updated_at = ?, h3_res7 = ?, h3_res8 = ?, h3_res9 = ?
		WHERE id = ?
	`)
	if err != nil {
		return 0, 0, rollback(tx, err)
	}
	defer update.Close()

	now := r.now()
	inserted, updated := 0, 0

	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			return 0, 0, rollback(tx, fmt.Errorf("record %d has no id", i))
		}

		if err = rec.computeH3(); err != nil {
			return 0, 0, rollback(tx, err)
		}

		var createdAt time.Time

		err = exists.QueryRowContext(ctx, rec.ID).Scan(&createdAt)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			rec.CreatedAt, rec.UpdatedAt = now, now
			_, err = insert.ExecContext(ctx,
				rec.ID, rec.Type, rec.Name, rec.Address, rec.Floor, rec.MaleStalls, rec.FemaleStalls,
				rec.OpeningHours, rec.Memo, rec.Lat, rec.Lng, rec.Region, rec.UploadID,
				rec.CreatedAt, rec.UpdatedAt, rec.H3Res7, rec.H3Res8, rec.H3Res9,
			)
			inserted++
		case err == nil:
			rec.CreatedAt, rec.UpdatedAt = createdAt, now
			_, err = update.ExecContext(ctx,
				rec.Type, rec.Name, rec.Address, rec.Floor, rec.MaleStalls, rec.FemaleStalls,
				rec.OpeningHours, rec.Memo, rec.Lat, rec.Lng, rec.Region, rec.UploadID,
				rec.UpdatedAt, rec.H3Res7, rec.H3Res8, rec.H3Res9, rec.ID,
			)
			updated++
		}

		if err != nil {
			return 0, 0, rollback(tx, fmt.Errorf("saving record %s: %w", rec.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	return inserted, updated, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (r *sqlRepository) BulkDeleteRecords(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM toilets WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting records: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(n), nil
}

const recordColumns = `id, type, name, address, floor, male_stalls, female_stalls, opening_hours, memo,
	lat, lng, region, upload_id, created_at, updated_at, h3_res7, h3_res8, h3_res9`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var (
		rec                    Record
		h3Res7, h3Res8, h3Res9 sql.NullInt64
	)

	err := row.Scan(
		&rec.ID, &rec.Type, &rec.Name, &rec.Address, &rec.Floor, &rec.MaleStalls, &rec.FemaleStalls,
		&rec.OpeningHours, &rec.Memo, &rec.Lat, &rec.Lng, &rec.Region, &rec.UploadID,
		&rec.CreatedAt, &rec.UpdatedAt, &h3Res7, &h3Res8, &h3Res9,
	)
	if err != nil {
		return nil, err
	}

	rec.H3Res7, rec.H3Res8, rec.H3Res9 = h3Res7.Int64, h3Res8.Int64, h3Res9.Int64

	return &rec, nil
}

func (r *sqlRepository) GetRecord(ctx context.Context, id string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM toilets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}

	return rec, err
}

func (r *sqlRepository) CountRecords(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM toilets`).Scan(&n)

	return n, err
}

func (r *sqlRepository) RecordsNear(ctx context.Context, p spatial.Point, res int) ([]Record, error) {
	var column string

	switch res {
	case 7, 8, 9:
		column = fmt.Sprintf("h3_res%d", res)
	default:
		return nil, fmt.Errorf("unsupported h3 resolution %d", res)
	}

	cell, err := h3.LatLngToCell(h3.NewLatLng(p.Lat, p.Lng), res)
	if err != nil {
		return nil, fmt.Errorf("error converting to h3 cell at res %d: %w", res, err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM toilets WHERE `+column+` = ? ORDER BY id`, int64(cell))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, *rec)
	}

	return records, rows.Err()
}
