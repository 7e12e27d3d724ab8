// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServerTest(t *testing.T) (*gin.Engine, store.Repository) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	repo := setupTestRepo(t)
	seedStaging(t, repo)
	seedBatch(t, repo, "b1", 3)

	router := gin.New()
	NewServer(NewService(repo), repo, nil).Routes(router)

	return router, repo
}

func do(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func TestStagingAPI(t *testing.T) {
	router, repo := setupServerTest(t)

	w := do(t, router, http.MethodGet, "/api/staging?upload_id=b1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var items []store.StagingItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Len(t, items, 2)

	w = do(t, router, http.MethodGet, "/api/staging?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/staging/s1/approve", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rec store.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "t_bulk_s1", rec.ID)

	w = do(t, router, http.MethodPost, "/api/staging/s1/approve", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, router, http.MethodPost, "/api/staging/s3/reject", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPatch, "/api/staging/s2", map[string]any{"lat": 37.5663, "lng": 126.9779})
	require.Equal(t, http.StatusOK, w.Code)

	var edited store.StagingItem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &edited))
	assert.Equal(t, store.StatusReviewNeeded, edited.Status)

	w = do(t, router, http.MethodPatch, "/api/staging/s2", map[string]any{"lat": 10.0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPatch, "/api/staging/s2", "not an object")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPost, "/api/staging/s2/geocode", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code, "no provider configured")

	w = do(t, router, http.MethodDelete, "/api/staging/s2", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/api/staging/s2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	_, err := repo.GetRecord(t.Context(), "t_bulk_s1")
	require.NoError(t, err)
}

func TestBatchAPI(t *testing.T) {
	router, repo := setupServerTest(t)

	w := do(t, router, http.MethodGet, "/api/batches", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var batches []store.UploadBatch
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batches))
	require.Len(t, batches, 1)
	assert.Equal(t, "b1", batches[0].ID)

	w = do(t, router, http.MethodGet, "/api/batches/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	for range 2 {
		w = do(t, router, http.MethodPost, "/api/batches/b1/rollback", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var batch store.UploadBatch
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
		assert.Equal(t, store.BatchVoided, batch.Status)
	}

	n, err := repo.CountRecords(t.Context())
	require.NoError(t, err)
	assert.Zero(t, n)

	w = do(t, router, http.MethodPost, "/api/batches/b1/cleanup", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":0}`, w.Body.String())
}

func TestRecordsNearAPI(t *testing.T) {
	router, _ := setupServerTest(t)

	w := do(t, router, http.MethodGet, "/api/records/near?lat=37.56&lng=126.97&res=9", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var records []store.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.NotEmpty(t, records)
	assert.Equal(t, "t_b1_0", records[0].ID)

	w = do(t, router, http.MethodGet, "/api/records/near?lat=0&lng=0&res=9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, router, http.MethodGet, "/api/records/near?lat=37.56&lng=126.97&res=3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodGet, "/api/records/near?lng=126.97", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
