// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

// Package review handles what happens to a batch after the pipeline: the
// reviewer's decisions on staging items and the rollback of whole uploads.
package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Qseek-Jung/ToiletShare-sub001/geocode"
	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"go.uber.org/zap"
)

// RollbackChunkSize is the number of records deleted per statement.
const RollbackChunkSize = 50

// DefaultListLimit caps the open-items listing.
const DefaultListLimit = 500

// ErrInvalidTransition is returned for a decision the item's status does not
// allow, such as approving an item twice.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrInvalidPatch is returned when an edit carries unusable values.
var ErrInvalidPatch = errors.New("invalid patch")

// Patch is a partial edit of a staging item. Nil fields are left unchanged.
type Patch struct {
	Name    *string  `json:"name,omitempty"`
	Address *string  `json:"address,omitempty"`
	Floor   *int     `json:"floor,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Type    *string  `json:"type,omitempty"`
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Address == nil && p.Floor == nil && p.Lat == nil && p.Lng == nil && p.Type == nil
}

// Service applies review decisions to the store.
type Service struct {
	repo     store.Repository
	provider geocode.Provider
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithProvider enables Geocode.
func WithProvider(p geocode.Provider) Option {
	return func(s *Service) { s.provider = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service on repo.
func NewService(repo store.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// RecordID is the live record id an approved staging item is written to.
// Approving the same item again overwrites the same record.
func RecordID(stagingID string) string {
	return "t_bulk_" + stagingID
}

// List returns staging items. Without an upload or status filter it returns
// the open items (review needed first, then rejected), at most
// DefaultListLimit of them.
func (s *Service) List(ctx context.Context, filter store.StagingFilter) ([]store.StagingItem, error) {
	if filter.UploadID != "" || filter.Status != "" {
		return s.repo.ListStagingItems(ctx, filter)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var items []store.StagingItem

	for _, status := range []store.StagingStatus{store.StatusReviewNeeded, store.StatusRejected} {
		if len(items) >= limit {
			break
		}

		part, err := s.repo.ListStagingItems(ctx, store.StagingFilter{Status: status, Limit: limit - len(items)})
		if err != nil {
			return nil, err
		}

		items = append(items, part...)
	}

	return items, nil
}

func (s *Service) open(ctx context.Context, id string) (*store.StagingItem, error) {
	item, err := s.repo.GetStagingItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if item.Status == store.StatusDone {
		return nil, fmt.Errorf("staging item %s is already done: %w", id, ErrInvalidTransition)
	}

	return item, nil
}

// Approve publishes a staging item as a live record and marks it done.
func (s *Service) Approve(ctx context.Context, id string) (*store.Record, error) {
	item, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}

	p := spatial.Point{Lat: item.Lat, Lng: item.Lng}
	if !p.Valid() {
		return nil, fmt.Errorf("staging item %s has no coordinate, edit it first: %w", id, ErrInvalidTransition)
	}

	floor := item.Floor
	if floor == 0 {
		floor = 1
	}

	rec := store.Record{
		ID:           RecordID(item.ID),
		Type:         item.Type,
		Name:         item.Name,
		Address:      item.Address,
		Floor:        floor,
		MaleStalls:   item.MaleStalls,
		FemaleStalls: item.FemaleStalls,
		OpeningHours: item.OpeningHours,
		Memo:         strings.TrimSpace(item.Memo + " 검수 승인 (사유: " + item.Reason + ")"),
		Lat:          item.Lat,
		Lng:          item.Lng,
		UploadID:     item.UploadID,
	}

	if _, _, err := s.repo.BulkInsertRecords(ctx, []store.Record{rec}); err != nil {
		return nil, fmt.Errorf("publishing staging item %s: %w", id, err)
	}

	if err := s.repo.UpdateStagingStatus(ctx, id, store.StatusDone); err != nil {
		return nil, err
	}

	s.logger.Info("staging item approved", zap.String("id", id), zap.String("record", rec.ID))

	return &rec, nil
}

// Reject marks a staging item as rejected. Rejecting a rejected item is a
// no-op.
func (s *Service) Reject(ctx context.Context, id string) error {
	item, err := s.open(ctx, id)
	if err != nil {
		return err
	}

	if item.Status == store.StatusRejected {
		return nil
	}

	if err := s.repo.UpdateStagingStatus(ctx, id, store.StatusRejected); err != nil {
		return err
	}

	s.logger.Info("staging item rejected", zap.String("id", id))

	return nil
}

// Edit applies p to a staging item. A rejected item goes back to review.
func (s *Service) Edit(ctx context.Context, id string, p Patch) (*store.StagingItem, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: nothing to change", ErrInvalidPatch)
	}

	item, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidPatch)
		}

		item.Name = name
	}

	if p.Address != nil {
		item.Address = strings.TrimSpace(*p.Address)
	}

	if p.Floor != nil {
		if *p.Floor == 0 {
			return nil, fmt.Errorf("%w: floor 0 does not exist", ErrInvalidPatch)
		}

		item.Floor = *p.Floor
	}

	if p.Type != nil {
		item.Type = strings.TrimSpace(*p.Type)
	}

	if p.Lat != nil || p.Lng != nil {
		pt := spatial.Point{Lat: item.Lat, Lng: item.Lng}
		if p.Lat != nil {
			pt.Lat = *p.Lat
		}

		if p.Lng != nil {
			pt.Lng = *p.Lng
		}

		if !spatial.KoreaBounds.Contains(pt) {
			return nil, fmt.Errorf("%w: coordinate %s is outside Korea", ErrInvalidPatch, pt)
		}

		item.Lat, item.Lng = pt.Lat, pt.Lng
	}

	if item.Status == store.StatusRejected {
		item.Status = store.StatusReviewNeeded
	}

	item.Logs = append(item.Logs, store.LogEntry{Message: "검수자 수정", Severity: store.SeverityInfo})

	if err := s.repo.UpdateStagingContent(ctx, item); err != nil {
		return nil, err
	}

	return item, nil
}

// Geocode looks the item's address up and stores the coordinate found. It
// returns the updated item, or ErrInvalidPatch when the address resolves to
// nothing precise.
func (s *Service) Geocode(ctx context.Context, id string) (*store.StagingItem, error) {
	if s.provider == nil {
		return nil, errors.New("no geocoding provider configured")
	}

	item, err := s.open(ctx, id)
	if err != nil {
		return nil, err
	}

	resolver, err := geocode.NewResolver(s.provider, geocode.ResolverOptions{Logger: s.logger})
	if err != nil {
		return nil, err
	}

	res := resolver.GeocodeAddress(ctx, item.Address)
	if !res.Precise() {
		return nil, fmt.Errorf("%w: address %q could not be located", ErrInvalidPatch, item.Address)
	}

	lat, lng := res.Lat, res.Lng

	return s.Edit(ctx, id, Patch{Lat: &lat, Lng: &lng})
}

// Delete removes a staging item.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteStagingItem(ctx, id)
}

// CleanUp removes the handled items of an upload.
func (s *Service) CleanUp(ctx context.Context, uploadID string) (int, error) {
	return s.repo.CleanUpStaging(ctx, uploadID)
}

// Rollback deletes the records an upload published and marks the upload
// voided. progress, if set, is called after every chunk. Rolling back a
// voided batch does nothing.
func (s *Service) Rollback(ctx context.Context, batchID string, progress func(done, total int)) error {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	if batch.Status == store.BatchVoided {
		s.logger.Info("batch already voided", zap.String("batch", batchID))

		return nil
	}

	ids := batch.UploadedRecordIDs
	total := len(ids)
	deleted := 0

	for start := 0; start < total; start += RollbackChunkSize {
		end := min(start+RollbackChunkSize, total)

		n, err := s.repo.BulkDeleteRecords(ctx, ids[start:end])
		if err != nil {
			return fmt.Errorf("rolling back batch %s at record %d: %w", batchID, start, err)
		}

		deleted += n

		if progress != nil {
			progress(end, total)
		}
	}

	if err := s.repo.MarkBatchVoided(ctx, batchID); err != nil {
		return err
	}

	s.logger.Info("batch rolled back",
		zap.String("batch", batchID),
		zap.Int("listed", total),
		zap.Int("deleted", deleted))

	return nil
}
