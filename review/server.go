// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package review

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server exposes the review service as a JSON API.
type Server struct {
	svc    *Service
	repo   store.Repository
	logger *zap.Logger
}

func NewServer(svc *Service, repo store.Repository, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{svc: svc, repo: repo, logger: logger}
}

// Routes registers the API on r.
func (s *Server) Routes(r gin.IRouter) {
	api := r.Group("/api")

	api.GET("/batches", s.listBatches)
	api.GET("/batches/:id", s.getBatch)
	api.POST("/batches/:id/rollback", s.rollbackBatch)
	api.POST("/batches/:id/cleanup", s.cleanUpBatch)

	api.GET("/staging", s.listStaging)
	api.GET("/staging/:id", s.getStaging)
	api.POST("/staging/:id/approve", s.approve)
	api.POST("/staging/:id/reject", s.reject)
	api.POST("/staging/:id/geocode", s.geocode)
	api.PATCH("/staging/:id", s.edit)
	api.DELETE("/staging/:id", s.deleteStaging)

	api.GET("/records/near", s.recordsNear)
}

// Run serves the API on addr until it fails.
func (s *Server) Run(addr string) error {
	r := gin.Default()
	s.Routes(r)

	s.logger.Info("review server listening", zap.String("addr", addr))

	return r.Run(addr)
}

// fail writes err with the status its kind calls for.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidPatch):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) listBatches(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})

		return
	}

	batches, err := s.repo.ListBatches(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)

		return
	}

	// The operation logs are only served with a single batch.
	for i := range batches {
		batches[i].Logs = nil
	}

	c.JSON(http.StatusOK, batches)
}

func (s *Server) getBatch(c *gin.Context) {
	batch, err := s.repo.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, batch)
}

func (s *Server) rollbackBatch(c *gin.Context) {
	id := c.Param("id")
	if err := s.svc.Rollback(c.Request.Context(), id, nil); err != nil {
		s.fail(c, err)

		return
	}

	batch, err := s.repo.GetBatch(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, batch)
}

func (s *Server) cleanUpBatch(c *gin.Context) {
	n, err := s.svc.CleanUp(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (s *Server) listStaging(c *gin.Context) {
	filter := store.StagingFilter{
		UploadID: c.Query("upload_id"),
		Status:   store.StagingStatus(c.Query("status")),
	}

	if filter.Status != "" && !filter.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + string(filter.Status)})

		return
	}

	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})

			return
		}

		filter.Limit = n
	}

	items, err := s.svc.List(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)

		return
	}

	if items == nil {
		items = []store.StagingItem{}
	}

	c.JSON(http.StatusOK, items)
}

func (s *Server) getStaging(c *gin.Context) {
	item, err := s.repo.GetStagingItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) approve(c *gin.Context) {
	rec, err := s.svc.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, rec)
}

func (s *Server) reject(c *gin.Context) {
	if err := s.svc.Reject(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) geocode(c *gin.Context) {
	item, err := s.svc.Geocode(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) edit(c *gin.Context) {
	var p Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	item, err := s.svc.Edit(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		s.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, item)
}

func (s *Server) deleteStaging(c *gin.Context) {
	if err := s.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) recordsNear(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)

	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng query parameters are required"})

		return
	}

	res, err := strconv.Atoi(c.DefaultQuery("res", "8"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "res must be a number"})

		return
	}

	records, err := s.repo.RecordsNear(c.Request.Context(), spatial.Point{Lat: lat, Lng: lng}, res)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	if records == nil {
		records = []store.Record{}
	}

	c.JSON(http.StatusOK, records)
}
