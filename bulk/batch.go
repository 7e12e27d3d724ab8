// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package bulk

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Qseek-Jung/ToiletShare-sub001/geocode"
	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"github.com/Qseek-Jung/ToiletShare-sub001/utils/textutils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChunkSize is the number of rows per write to the store.
const ChunkSize = 50

// DefaultType is used when the input has no facility type.
const DefaultType = "공중화장실"

// FastPathMode controls the shortcut for files that already carry vetted
// coordinates.
type FastPathMode string

const (
	// FastPathAuto takes the shortcut for files with the accepted-records
	// export header.
	FastPathAuto FastPathMode = "auto"
	FastPathOn   FastPathMode = "on"
	FastPathOff  FastPathMode = "off"
)

// ParseFastPathMode parses "auto", "on" or "off". Empty means auto.
func ParseFastPathMode(s string) (FastPathMode, error) {
	switch m := FastPathMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return FastPathAuto, nil
	case FastPathAuto, FastPathOn, FastPathOff:
		return m, nil
	default:
		return "", fmt.Errorf("invalid fast path mode %q (want auto, on or off)", s)
	}
}

// Store is the persistence a batch writes to.
type Store interface {
	BulkInsertRecords(ctx context.Context, records []store.Record) (inserted, updated int, err error)
	PersistStagingItems(ctx context.Context, items []store.StagingItem) error
	PersistBatchMetadata(ctx context.Context, batch *store.UploadBatch) error
}

// Options configures a BatchRun.
type Options struct {
	// Provider is required unless the fast path is taken.
	Provider geocode.Provider
	// LandChecker defaults to a BoundsLandChecker on the national box.
	LandChecker LandChecker
	// Store receives the results. Nil means dry run.
	Store Store
	// Regions defaults to spatial.DefaultRegions().
	Regions    spatial.RegionTable
	RegionKey  string
	Thresholds Thresholds
	// Delay is the minimum spacing between provider calls. Zero disables
	// throttling.
	Delay    time.Duration
	Sink     ProgressSink
	Logger   *zap.Logger
	FileName string
	FastPath FastPathMode
	// BatchID defaults to a random UUID.
	BatchID string
	// Now defaults to time.Now.
	Now func() time.Time
}

// BatchRun processes one file. Pause, Resume and Stop may be called from any
// goroutine while Run is in progress; they take effect between rows.
type BatchRun struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	paused   bool
	resume   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewBatchRun creates a run with opts.
func NewBatchRun(opts Options) *BatchRun {
	if opts.Regions == nil {
		opts.Regions = spatial.DefaultRegions()
	}

	if opts.RegionKey == "" {
		opts.RegionKey = spatial.NationalKey
	}

	if opts.LandChecker == nil {
		opts.LandChecker = BoundsLandChecker{Bounds: spatial.KoreaBounds}
	}

	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}

	if opts.FastPath == "" {
		opts.FastPath = FastPathAuto
	}

	if opts.BatchID == "" {
		opts.BatchID = uuid.NewString()
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BatchRun{
		opts:   opts,
		logger: logger.With(zap.String("batch", opts.BatchID)),
		stopCh: make(chan struct{}),
	}
}

// ID returns the batch id.
func (b *BatchRun) ID() string {
	return b.opts.BatchID
}

// Pause stops the run before the next row. The row in flight completes.
func (b *BatchRun) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.paused {
		b.paused = true
		b.resume = make(chan struct{})
	}
}

// Resume continues a paused run.
func (b *BatchRun) Resume() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		b.paused = false
		close(b.resume)
	}
}

// Paused reports whether a pause is in effect.
func (b *BatchRun) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.paused
}

// Stop abandons the remaining rows. What was processed is still saved.
func (b *BatchRun) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

func (b *BatchRun) stopped(ctx context.Context) bool {
	select {
	case <-b.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// checkpoint blocks while paused and reports whether the run may continue.
func (r *runState) checkpoint(ctx context.Context) bool {
	b := r.batch

	for {
		if b.stopped(ctx) {
			return false
		}

		b.mu.Lock()
		paused, resume := b.paused, b.resume
		b.mu.Unlock()

		if !paused {
			return true
		}

		r.logf(store.SeverityWarning, -1, "작업 일시정지됨")

		select {
		case <-resume:
			r.logf(store.SeverityInfo, -1, "작업 재개됨")
		case <-b.stopCh:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

type seenRow struct {
	index   int
	name    string
	address string
}

// runState is everything one Run call owns.
type runState struct {
	batch    *BatchRun
	opts     *Options
	region   spatial.Region
	cols     Columns
	resolver *geocode.Resolver
	fast     bool
	total    int
	seen     map[string]seenRow
	summary  *Summary
}

func (r *runState) logf(severity store.Severity, row int, format string, args ...any) {
	r.summary.Logs = append(r.summary.Logs, store.OpLog{
		Time:     r.opts.Now(),
		Severity: severity,
		Row:      row,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Run processes rows, which exclude the header, and persists the result.
// Run may be called once per BatchRun.
//
// On a persistence failure the summary is returned together with a
// *SaveError. A stop or a canceled ctx ends the run early with outcome
// aborted; the processed rows are still saved.
func (b *BatchRun) Run(ctx context.Context, header []string, rows [][]string) (*Summary, error) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()

		return nil, errors.New("batch run already started")
	}

	b.started = true
	b.mu.Unlock()

	region, err := b.opts.Regions.Lookup(b.opts.RegionKey)
	if err != nil {
		return nil, err
	}

	th := b.opts.Thresholds.withDefaults()
	if err := th.Validate(); err != nil {
		return nil, err
	}

	b.opts.Thresholds = th

	fast := b.opts.FastPath == FastPathOn || (b.opts.FastPath == FastPathAuto && IsExportHeader(header))

	r := &runState{
		batch:  b,
		opts:   &b.opts,
		region: region,
		cols:   DetectColumns(header),
		fast:   fast,
		total:  len(rows),
		seen:   make(map[string]seenRow),
		summary: &Summary{
			FastPath: fast,
			Batch: &store.UploadBatch{
				ID:         b.opts.BatchID,
				FileName:   b.opts.FileName,
				Region:     region.Key,
				UploadedAt: b.opts.Now(),
				TotalCount: len(rows),
			},
		},
	}
	r.summary.Columns = r.cols
	r.summary.Stats.Total = len(rows)

	if !fast {
		if b.opts.Provider == nil {
			return nil, errors.New("no geocoding provider configured")
		}

		r.resolver, err = geocode.NewResolver(newThrottledProvider(b.opts.Provider, b.opts.Delay), geocode.ResolverOptions{
			CacheSize: len(rows)*3 + 64,
			Logger:    b.logger,
		})
		if err != nil {
			return nil, err
		}
	}

	r.logf(store.SeverityInfo, -1, "컬럼 매핑: %s", r.cols)
	r.logf(store.SeverityInfo, -1, "작업 시작: %d 건 / 지역: %s", len(rows), region.Name)

	if fast {
		r.logf(store.SeverityInfo, -1, "검증된 좌표 파일로 판단되어 빠른 경로로 처리합니다")
	}

	b.logger.Info("batch started",
		zap.String("file", b.opts.FileName),
		zap.String("region", region.Key),
		zap.Int("rows", len(rows)),
		zap.Bool("fast_path", fast))

	aborted := false

	for i, row := range rows {
		if !r.checkpoint(ctx) {
			aborted = true

			r.logf(store.SeverityWarning, -1, "작업 중단됨: %d/%d 건 처리", i, len(rows))

			break
		}

		out, abandoned := r.safeProcess(ctx, i, row)
		if abandoned {
			aborted = true

			r.logf(store.SeverityWarning, -1, "작업 중단됨: %d/%d 건 처리", i, len(rows))

			break
		}

		out.Index = i
		r.summary.Stats.add(&out)
		out.Stats = r.summary.Stats
		r.summary.Results = append(r.summary.Results, out)

		b.opts.Sink.OnRowProcessed(i, out)
	}

	if r.resolver != nil {
		r.summary.GeocodeStats = r.resolver.Stats()
		r.logf(store.SeverityInfo, -1, "📊 API 호출 통계: 지오코딩 %d 회, 캐시 재사용 %d 회",
			r.summary.GeocodeStats.ProviderCalls, r.summary.GeocodeStats.CacheHits)
	}

	s := r.summary.Stats
	r.logf(store.SeverityInfo, -1, "작업 완료! 성공: %d, 검수: %d, 실패: %d, 중복 제거: %d",
		s.Success, s.Review, s.Reject, s.Duplicate)

	saveErr := r.persist(ctx, aborted)

	b.logger.Info("batch finished",
		zap.String("outcome", string(r.summary.Outcome)),
		zap.Int("success", s.Success),
		zap.Int("review", s.Review),
		zap.Int("reject", s.Reject),
		zap.Int("duplicate", s.Duplicate),
		zap.Int("fixed", s.Fixed))

	if saveErr != nil {
		return r.summary, saveErr
	}

	return r.summary, nil
}

// safeProcess turns a panic or error in one row into a rejection. A row cut
// short by cancellation is abandoned instead: it is neither counted nor routed.
func (r *runState) safeProcess(ctx context.Context, i int, row []string) (out RowOutcome, abandoned bool) {
	defer func() {
		if p := recover(); p != nil {
			r.batch.logger.Error("row processing panicked", zap.Int("row", i), zap.Any("panic", p))
			out, abandoned = r.rowError(i, row, fmt.Errorf("%v", p)), false
		}
	}()

	out, err := r.process(ctx, i, row)
	if err != nil {
		if ctx.Err() != nil {
			r.batch.logger.Info("row abandoned", zap.Int("row", i), zap.Error(err))

			return RowOutcome{}, true
		}

		r.batch.logger.Warn("row processing failed", zap.Int("row", i), zap.Error(err))

		return r.rowError(i, row, err), false
	}

	return out, false
}

func (r *runState) rowError(i int, row []string, err error) RowOutcome {
	reason := "처리 중 오류: " + err.Error()
	name := cell(row, r.cols.Name)

	res := &ValidationResult{
		Name:    name,
		Address: firstNonEmpty(cell(row, r.cols.Road), cell(row, r.cols.Jibun)),
		Floor:   defaultFloor,
		Action:  ActionReject,
		Reason:  reason,
	}
	res.log(store.SeverityError, "%s", reason)

	r.route(i, row, ParsedRow{Name: name, Address: res.Address, NameRaw: name, AddressRaw: res.Address}, spatial.Point{}, res)

	return RowOutcome{Status: RowRejected, Result: res, DuplicateOf: -1}
}

func (r *runState) prefix(i int, name string) string {
	return fmt.Sprintf("[%d/%d] %s", i+1, r.total, name)
}

// flushRowLogs copies a row's decision trace into the operation log.
func (r *runState) flushRowLogs(i int, name string, logs []store.LogEntry) {
	p := r.prefix(i, name)
	for _, l := range logs {
		r.logf(l.Severity, i, "%s: %s", p, l.Message)
	}
}

func (r *runState) process(ctx context.Context, i int, row []string) (RowOutcome, error) {
	out := RowOutcome{DuplicateOf: -1}

	nameRaw := strings.Trim(cell(row, r.cols.Name), `"`)
	if nameRaw == "" {
		out.Status = RowSkipped

		return out, nil
	}

	addressRaw := firstNonEmpty(cell(row, r.cols.Road), cell(row, r.cols.Jibun))

	var parsed ParsedRow
	if r.fast {
		parsed = ParsedRow{
			Name:       textutils.CollapseSpaces(nameRaw),
			Address:    textutils.CollapseSpaces(addressRaw),
			Floor:      parseFloor(cell(row, r.cols.Floor)),
			NameRaw:    nameRaw,
			AddressRaw: addressRaw,
		}
	} else {
		parsed = ParseRow(nameRaw, addressRaw)
		if parsed.Floor == defaultFloor && r.cols.Floor >= 0 {
			parsed.Floor = parseFloor(cell(row, r.cols.Floor))
		}
	}

	key := CleanName(parsed.Name) + "|" + parsed.Address
	if orig, ok := r.seen[key]; ok {
		p := r.prefix(i, nameRaw)
		r.logf(store.SeverityWarning, i, "%s: [중복] 중복 데이터로 감지되어 건너뜁니다", p)
		r.logf(store.SeverityWarning, i, "▶ 현재건: %s | %s", nameRaw, parsed.Address)
		r.logf(store.SeverityWarning, i, "▶ 원본건: #%d %s | %s", orig.index+1, orig.name, orig.address)

		out.Status = RowDuplicate
		out.DuplicateOf = orig.index

		return out, nil
	}

	r.seen[key] = seenRow{index: i, name: nameRaw, address: parsed.Address}

	raw := spatial.Point{
		Lat: textutils.ParseCoord(cell(row, r.cols.Lat)),
		Lng: textutils.ParseCoord(cell(row, r.cols.Lng)),
	}

	var res ValidationResult
	if r.fast {
		res = r.classifyFast(parsed, raw)
	} else {
		res = r.classify(ctx, parsed, raw)
	}

	if ctx.Err() != nil {
		return out, ctx.Err()
	}

	r.flushRowLogs(i, nameRaw, res.Logs)
	r.route(i, row, parsed, raw, &res)

	out.Result = &res

	switch res.Action {
	case ActionImmediate:
		out.Status = RowAccepted
	case ActionReview:
		out.Status = RowReview
	default:
		out.Status = RowRejected
	}

	return out, nil
}

func parseFloor(s string) int {
	s = strings.TrimSuffix(strings.TrimSpace(s), "층")
	if n, err := strconv.Atoi(strings.ReplaceAll(s, " ", "")); err == nil && n != 0 {
		return n
	}

	return defaultFloor
}

func (r *runState) classifyFast(parsed ParsedRow, raw spatial.Point) ValidationResult {
	res := ValidationResult{Name: parsed.Name, Address: parsed.Address, Floor: parsed.Floor}

	if raw.Valid() {
		res.decide(ActionImmediate, raw, store.SeveritySuccess, "검증된 좌표 (빠른 경로)")
	} else {
		res.decide(ActionReject, spatial.Point{}, store.SeverityError, "좌표 없음 (빠른 경로)")
	}

	return res
}

func (r *runState) classify(ctx context.Context, parsed ParsedRow, raw spatial.Point) ValidationResult {
	box := r.region.Bounds()

	if raw.Valid() && !box.Contains(raw) {
		parsed.Logs = appendLog(parsed.Logs, store.SeverityWarning,
			"입력 좌표(%s)가 지역(%s) 범위를 벗어남 -> 무시", raw, r.region.Name)
		raw = spatial.Point{}
	}

	geo := r.resolver.GeocodeAddress(ctx, parsed.Address)

	switch {
	case geo.Precise():
		parsed.Logs = appendLog(parsed.Logs, store.SeverityInfo,
			"주소 검색 성공[%s]: %s", geo.AddressType, geo.FormattedAddress)
	case !r.resolver.Available():
		parsed.Logs = appendLog(parsed.Logs, store.SeverityWarning, "지오코딩 서비스 사용 불가 -> 주소 검색 생략")
	default:
		parsed.Logs = appendLog(parsed.Logs, store.SeverityInfo, "주소 검색 실패: %s", parsed.Address)
	}

	onLand := false

	if !geo.Precise() && raw.Valid() && spatial.KoreaBounds.Contains(raw) {
		ok, err := r.opts.LandChecker.IsOnLand(ctx, raw)
		if err != nil {
			r.batch.logger.Warn("land check failed", zap.Stringer("point", raw), zap.Error(err))
			parsed.Logs = appendLog(parsed.Logs, store.SeverityWarning, "육지 판별 실패: %v", err)
		}

		onLand = ok && err == nil
	}

	res := Classify(parsed, raw.Lat, raw.Lng, geo, onLand, r.opts.Thresholds)

	if res.Action == ActionImmediate && !geo.Precise() {
		if addr := r.resolver.ReverseGeocode(ctx, res.Lat, res.Lng); addr != "" {
			res.Address = enrich(geocode.CleanAddress(addr), CleanName(parsed.Name))
			res.log(store.SeveritySuccess, "기존 좌표 기반 주소 획득 성공: %s", res.Address)
		}
	}

	r.revalidateRegion(ctx, parsed, &res)

	return res
}

// revalidateRegion tries to pull a coordinate outside the selected region
// back in with a region-prefixed search. The action is left unchanged.
func (r *runState) revalidateRegion(ctx context.Context, parsed ParsedRow, res *ValidationResult) {
	p := res.Point()
	box := r.region.Bounds()

	if res.Action == ActionReject || !p.Valid() || r.region.IsNational() || box.Contains(p) {
		return
	}

	res.log(store.SeverityWarning, "좌표가 %s 범위를 벗어남(%s)", r.region.Name, p)

	query := r.region.Prefix(parsed.Address)
	res.log(store.SeverityInfo, "주소 기반 좌표 재검색 시도(%s)", query)

	retry := r.resolver.GeocodeAddress(ctx, query)
	if !retry.Precise() || !box.Contains(retry.Point()) {
		res.log(store.SeverityWarning, "주소 기반 좌표 복구 실패")

		return
	}

	res.Lat, res.Lng = retry.Lat, retry.Lng
	res.Fixed = true
	res.log(store.SeveritySuccess, "주소 기반 좌표 복구 성공: %s", retry.Point())
}

func enrich(address, cleanedName string) string {
	if cleanedName == "" || strings.Contains(address, cleanedName) {
		return address
	}

	if address == "" {
		return cleanedName
	}

	return address + " " + cleanedName
}

// route sends a decided row to its destination.
func (r *runState) route(i int, row []string, parsed ParsedRow, raw spatial.Point, res *ValidationResult) {
	now := r.opts.Now()

	if res.Action == ActionImmediate {
		r.summary.Accepted = append(r.summary.Accepted, store.Record{
			ID:           fmt.Sprintf("t_%s_%d", r.opts.BatchID, i),
			Type:         firstNonEmpty(strings.Trim(cell(row, r.cols.Type), `"`), DefaultType),
			Name:         res.Name,
			Address:      res.Address,
			Floor:        res.Floor,
			MaleStalls:   textutils.ParseCount(cell(row, r.cols.Male)),
			FemaleStalls: textutils.ParseCount(cell(row, r.cols.Female)),
			OpeningHours: cell(row, r.cols.Hours),
			Memo:         cell(row, r.cols.Memo),
			Lat:          res.Lat,
			Lng:          res.Lng,
			Region:       r.region.Name,
			UploadID:     r.opts.BatchID,
		})

		return
	}

	status := store.StatusReviewNeeded
	if res.Action == ActionReject {
		status = store.StatusRejected
		r.summary.Failed = append(r.summary.Failed, FailedRow{
			Index:  i,
			Cells:  append([]string(nil), row...),
			Reason: res.Reason,
		})
	}

	r.summary.Staged = append(r.summary.Staged, store.StagingItem{
		ID:           uuid.NewString(),
		UploadID:     r.opts.BatchID,
		RowIndex:     i,
		Name:         res.Name,
		Address:      res.Address,
		Floor:        res.Floor,
		Lat:          res.Lat,
		Lng:          res.Lng,
		Type:         firstNonEmpty(strings.Trim(cell(row, r.cols.Type), `"`), DefaultType),
		MaleStalls:   textutils.ParseCount(cell(row, r.cols.Male)),
		FemaleStalls: textutils.ParseCount(cell(row, r.cols.Female)),
		OpeningHours: cell(row, r.cols.Hours),
		Memo:         cell(row, r.cols.Memo),
		NameRaw:      parsed.NameRaw,
		AddressRaw:   parsed.AddressRaw,
		LatRaw:       raw.Lat,
		LngRaw:       raw.Lng,
		Action:       string(res.Action),
		Reason:       res.Reason,
		Logs:         res.Logs,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

// persist writes records, staging items and the batch metadata, in that
// order and in chunks. It always sets the summary outcome.
func (r *runState) persist(ctx context.Context, aborted bool) error {
	batch := r.summary.Batch
	s := r.summary.Stats

	batch.SuccessCount = s.Success
	batch.ReviewCount = s.Review
	batch.RejectCount = s.Reject
	batch.DuplicateCount = s.Duplicate
	batch.FixedCount = s.Fixed
	batch.Status = store.BatchCompleted

	if aborted {
		batch.Status = store.BatchAborted
	}

	finish := func(saveFailed bool) {
		r.summary.Outcome = decideOutcome(aborted, saveFailed, s)
		batch.Outcome = string(r.summary.Outcome)
		batch.Logs = r.summary.Logs
	}

	st := r.opts.Store
	if st == nil {
		r.logf(store.SeverityInfo, -1, "저장 생략 (dry run)")
		finish(false)

		return nil
	}

	// The results must reach the store even if the run was canceled.
	ctx = context.WithoutCancel(ctx)

	saveErr := r.saveRows(ctx, st)
	if saveErr == nil {
		finish(false)

		if err := st.PersistBatchMetadata(ctx, batch); err != nil {
			saveErr = &SaveError{Stage: "metadata", Err: err}
		} else {
			return nil
		}
	}

	batch.Status = store.BatchSaveFailed
	r.logf(store.SeverityError, -1, "저장 실패: %v", saveErr)
	finish(true)
	r.batch.logger.Error("batch save failed", zap.Error(saveErr))

	if saveErr.Stage != "metadata" {
		if err := st.PersistBatchMetadata(ctx, batch); err != nil {
			r.batch.logger.Error("could not record failed batch", zap.Error(err))
		}
	}

	return saveErr
}

func (r *runState) saveRows(ctx context.Context, st Store) *SaveError {
	batch := r.summary.Batch
	accepted := r.summary.Accepted

	for start := 0; start < len(accepted); start += ChunkSize {
		chunk := accepted[start:min(start+ChunkSize, len(accepted))]

		if _, _, err := st.BulkInsertRecords(ctx, chunk); err != nil {
			return &SaveError{Stage: "records", Err: err}
		}

		for _, rec := range chunk {
			batch.UploadedRecordIDs = append(batch.UploadedRecordIDs, rec.ID)
		}
	}

	staged := r.summary.Staged

	for start := 0; start < len(staged); start += ChunkSize {
		if err := st.PersistStagingItems(ctx, staged[start:min(start+ChunkSize, len(staged))]); err != nil {
			return &SaveError{Stage: "staging", Err: err}
		}
	}

	if n := len(accepted) + len(staged); n > 0 {
		r.logf(store.SeveritySuccess, -1, "저장 완료: 등록 %d 건, 검수 대기 %d 건", len(accepted), len(staged))
	}

	return nil
}
