// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/Qseek-Jung/ToiletShare-sub001/geocode"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRepo(t *testing.T) store.Repository {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	repo := store.NewRepository(db)
	if err := repo.CreateSchema(context.Background()); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return repo
}

func seedStaging(t *testing.T, repo store.Repository) {
	t.Helper()

	items := []store.StagingItem{
		{
			ID: "s1", UploadID: "b1", RowIndex: 4, Name: "시청별관", Address: "서울특별시 중구 덕수궁길 15",
			Floor: 2, Lat: 37.5650, Lng: 126.9750, Type: "공중화장실", Action: "review",
			Reason: "거리 차이(100m) 발생 (50~150m) -> 검수 필요", MaleStalls: 1, FemaleStalls: 2,
		},
		{
			ID: "s2", UploadID: "b1", RowIndex: 7, Name: "무명", Address: "무명", Action: "reject",
			Reason: "주소 불명 및 좌표 없음", Status: store.StatusRejected, Type: "공중화장실",
		},
		{
			ID: "s3", UploadID: "b2", RowIndex: 0, Name: "광장", Address: "서울특별시 중구 세종대로 110",
			Lat: 37.5663, Lng: 126.9779, Action: "review", Type: "개방화장실",
		},
	}

	require.NoError(t, repo.PersistStagingItems(context.Background(), items))
}

func TestApprove(t *testing.T) {
	repo := setupTestRepo(t)
	seedStaging(t, repo)

	svc := NewService(repo)
	ctx := context.Background()

	rec, err := svc.Approve(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "t_bulk_s1", rec.ID)

	got, err := repo.GetRecord(ctx, "t_bulk_s1")
	require.NoError(t, err)
	assert.Equal(t, "시청별관", got.Name)
	assert.Equal(t, 2, got.Floor)
	assert.Equal(t, 2, got.FemaleStalls)
	assert.Contains(t, got.Memo, "검수 필요")

	item, err := repo.GetStagingItem(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusDone, item.Status)

	n, err := repo.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Approve(ctx, "s1")
	assert.ErrorIs(t, err, ErrInvalidTransition, "an item is published once")

	_, err = svc.Approve(ctx, "s2")
	assert.ErrorIs(t, err, ErrInvalidTransition, "an item without a coordinate cannot be published")

	_, err = svc.Approve(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReject(t *testing.T) {
	repo := setupTestRepo(t)
	seedStaging(t, repo)

	svc := NewService(repo)
	ctx := context.Background()

	require.NoError(t, svc.Reject(ctx, "s3"))
	require.NoError(t, svc.Reject(ctx, "s3"))

	item, err := repo.GetStagingItem(ctx, "s3")
	require.NoError(t, err)
	assert.Equal(t, store.StatusRejected, item.Status)

	_, err = svc.Approve(ctx, "s3")
	require.NoError(t, err, "a rejected item may still be approved")
	assert.ErrorIs(t, svc.Reject(ctx, "s3"), ErrInvalidTransition)
}

func ptr[T any](v T) *T { return &v }

func TestEdit(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		patch   Patch
		wantErr error
		check   func(t *testing.T, item *store.StagingItem)
	}{
		{
			name:  "rejected goes back to review",
			id:    "s2",
			patch: Patch{Address: ptr(" 서울특별시 중구 세종대로 110 "), Lat: ptr(37.5663), Lng: ptr(126.9779)},
			check: func(t *testing.T, item *store.StagingItem) {
				assert.Equal(t, store.StatusReviewNeeded, item.Status)
				assert.Equal(t, "서울특별시 중구 세종대로 110", item.Address)
				assert.Equal(t, 37.5663, item.Lat)
			},
		},
		{
			name:  "partial coordinate",
			id:    "s1",
			patch: Patch{Lat: ptr(37.5651), Floor: ptr(-1), Type: ptr("개방화장실")},
			check: func(t *testing.T, item *store.StagingItem) {
				assert.Equal(t, 37.5651, item.Lat)
				assert.Equal(t, 126.9750, item.Lng)
				assert.Equal(t, -1, item.Floor)
				assert.Equal(t, "개방화장실", item.Type)
				assert.Equal(t, store.StatusReviewNeeded, item.Status)
			},
		},
		{name: "outside korea", id: "s1", patch: Patch{Lat: ptr(35.0), Lng: ptr(139.0)}, wantErr: ErrInvalidPatch},
		{name: "empty name", id: "s1", patch: Patch{Name: ptr("  ")}, wantErr: ErrInvalidPatch},
		{name: "floor zero", id: "s1", patch: Patch{Floor: ptr(0)}, wantErr: ErrInvalidPatch},
		{name: "nothing", id: "s1", patch: Patch{}, wantErr: ErrInvalidPatch},
		{name: "missing", id: "nope", patch: Patch{Name: ptr("x")}, wantErr: store.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := setupTestRepo(t)
			seedStaging(t, repo)

			svc := NewService(repo)

			item, err := svc.Edit(context.Background(), tt.id, tt.patch)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			tt.check(t, item)

			stored, err := repo.GetStagingItem(context.Background(), tt.id)
			require.NoError(t, err)
			tt.check(t, stored)
			assert.Equal(t, "검수자 수정", stored.Logs[len(stored.Logs)-1].Message)
		})
	}
}

func TestGeocode(t *testing.T) {
	repo := setupTestRepo(t)
	seedStaging(t, repo)

	provider := &geocode.StaticProvider{
		Addresses: map[string]*geocode.Result{
			"서울특별시 중구 덕수궁길 15": {Lat: 37.5658, Lng: 126.9751, AddressType: geocode.AddressRoad},
		},
	}

	svc := NewService(repo, WithProvider(provider))
	ctx := context.Background()

	item, err := svc.Geocode(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 37.5658, item.Lat)
	assert.Equal(t, 126.9751, item.Lng)

	_, err = svc.Geocode(ctx, "s2")
	assert.ErrorIs(t, err, ErrInvalidPatch)

	_, err = NewService(repo).Geocode(ctx, "s1")
	assert.Error(t, err)
}

func TestListDefaultsToOpenItems(t *testing.T) {
	repo := setupTestRepo(t)
	seedStaging(t, repo)

	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Approve(ctx, "s3")
	require.NoError(t, err)

	ids := func(items []store.StagingItem) []string {
		var out []string
		for _, it := range items {
			out = append(out, it.ID)
		}

		return out
	}

	open, err := svc.List(ctx, store.StagingFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids(open))

	limited, err := svc.List(ctx, store.StagingFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids(limited))

	byUpload, err := svc.List(ctx, store.StagingFilter{UploadID: "b2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s3"}, ids(byUpload), "an upload filter shows handled items too")

	n, err := svc.CleanUp(ctx, "b2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, svc.Delete(ctx, "s1"))
	assert.ErrorIs(t, svc.Delete(ctx, "s1"), store.ErrNotFound)
}

func seedBatch(t *testing.T, repo store.Repository, id string, records int) []string {
	t.Helper()

	ctx := context.Background()

	var recs []store.Record
	for i := range records {
		recs = append(recs, store.Record{
			ID: fmt.Sprintf("t_%s_%d", id, i), Type: "공중화장실", Name: fmt.Sprintf("화장실 %d", i),
			Address: "서울특별시 중구", Floor: 1, Lat: 37.56 + float64(i)*1e-4, Lng: 126.97, UploadID: id,
		})
	}

	_, _, err := repo.BulkInsertRecords(ctx, recs)
	require.NoError(t, err)

	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}

	require.NoError(t, repo.PersistBatchMetadata(ctx, &store.UploadBatch{
		ID: id, FileName: id + ".csv", Region: "Seoul", TotalCount: records, SuccessCount: records,
		UploadedRecordIDs: ids, Status: store.BatchCompleted, Outcome: "all_accepted",
	}))

	return ids
}

func TestRollback(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	seedBatch(t, repo, "b1", 120)
	seedBatch(t, repo, "b2", 3)

	svc := NewService(repo)

	var calls [][2]int

	require.NoError(t, svc.Rollback(ctx, "b1", func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}))
	assert.Equal(t, [][2]int{{50, 120}, {100, 120}, {120, 120}}, calls)

	n, err := repo.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "other batches are untouched")

	batch, err := repo.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, store.BatchVoided, batch.Status)
	assert.Len(t, batch.UploadedRecordIDs, 120, "history is kept")

	calls = nil
	require.NoError(t, svc.Rollback(ctx, "b1", func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}), "rolling back twice is harmless")
	assert.Empty(t, calls)

	assert.ErrorIs(t, svc.Rollback(ctx, "missing", nil), store.ErrNotFound)
}

// flakyRepo fails the first delete, as a dropped connection would.
type flakyRepo struct {
	store.Repository
	failed bool
}

func (f *flakyRepo) BulkDeleteRecords(ctx context.Context, ids []string) (int, error) {
	if !f.failed {
		f.failed = true

		return 0, errors.New("connection reset")
	}

	return f.Repository.BulkDeleteRecords(ctx, ids)
}

func TestRollbackResumesAfterFailure(t *testing.T) {
	base := setupTestRepo(t)
	ctx := context.Background()

	seedBatch(t, base, "b1", 10)

	repo := &flakyRepo{Repository: base}
	svc := NewService(repo)

	require.Error(t, svc.Rollback(ctx, "b1", nil))

	batch, err := base.GetBatch(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, store.BatchCompleted, batch.Status, "a failed rollback does not void the batch")

	require.NoError(t, svc.Rollback(ctx, "b1", nil))

	n, err := base.CountRecords(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
