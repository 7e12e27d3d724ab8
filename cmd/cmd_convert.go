// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Qseek-Jung/ToiletShare-sub001/bulk"
	"github.com/Qseek-Jung/ToiletShare-sub001/csvfile"
	"github.com/Qseek-Jung/ToiletShare-sub001/geocode"
	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type convertOptions struct {
	Region     string
	Encoding   string
	OutDir     string
	DryRun     bool
	FastPath   string
	Provider   string
	ReplayFile string
	XLSX       bool
	GeoJSON    bool
	TraceHTTP  bool
}

var convertOpts = &convertOptions{}

var convertCmd = &cobra.Command{
	Use:   "convert <file.csv>",
	Short: "CSV 파일을 검증하여 등록, 검수 대기, 등록 불가로 분류합니다",
	Long: `
convert는 파일의 각 행을 주소 검색 결과와 대조하여 분류하고, 결과를 데이터베이스에
저장한 뒤 등록 파일, 오류 파일, 작업 로그를 출력 디렉터리에 씁니다.

실행 중 SIGUSR1은 일시정지, SIGUSR2는 재개, Ctrl-C는 중단입니다. 중단 시점까지
처리된 행은 저장됩니다.

종료 코드: 0 전체 등록, 10 검수 대기 있음, 11 등록 불가 있음, 20 중단, 30 저장 실패.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConvert(cmd.Context(), args[0], convertOpts)
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)

	f := convertCmd.Flags()
	f.StringVar(&convertOpts.Region, "region", spatial.NationalKey, "대상 지역 (키 또는 이름, 예: Seoul, 서울)")
	f.StringVar(&convertOpts.Encoding, "encoding", string(csvfile.Auto), "입력 인코딩 (auto, utf-8, euc-kr)")
	f.StringVar(&convertOpts.OutDir, "out-dir", "", "결과 파일 디렉터리 (기본: 입력 파일과 같은 곳)")
	f.BoolVar(&convertOpts.DryRun, "dry-run", false, "데이터베이스에 저장하지 않습니다")
	f.StringVar(&convertOpts.FastPath, "fast-path", string(bulk.FastPathAuto), "검증된 좌표 파일 빠른 처리 (auto, on, off)")
	f.StringVar(&convertOpts.Provider, "provider", "auto", "지오코딩 서비스 (auto, kakao, google, replay)")
	f.StringVar(&convertOpts.ReplayFile, "replay-file", "", "replay 지오코딩 응답 파일 (JSON)")
	f.BoolVar(&convertOpts.XLSX, "xlsx", false, "등록 데이터를 XLSX로도 씁니다")
	f.BoolVar(&convertOpts.GeoJSON, "geojson", false, "등록 데이터를 GeoJSON으로도 씁니다")
	f.BoolVar(&convertOpts.TraceHTTP, "trace-http", false, "HTTP 요청과 응답을 표준 에러로 출력합니다")
	f.Duration("delay", bulk.DefaultDelay, "지오코딩 호출 간 최소 간격")
	f.String("land-mask", "", "육지 판별용 GeoJSON 폴리곤 파일")
	f.String("land-rpc-url", "", "육지 판별 RPC 서버 주소")

	for key, flag := range map[string]string{
		"geocode.delay": "delay",
		"land.mask":     "land-mask",
		"land.rpc_url":  "land-rpc-url",
	} {
		if err := viper.BindPFlag(key, f.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func traceWriter(enabled bool) io.Writer {
	if enabled {
		return os.Stderr
	}

	return nil
}

// googleKey returns the configured Maps key, falling back to the key of the
// project found through Application Default Credentials.
func googleKey(ctx context.Context) (string, error) {
	if key := viper.GetString("google.api_key"); key != "" {
		return key, nil
	}

	logger.Info("GOOGLE_MAPS_API_KEY is not set, looking the key up through ADC")

	return geocode.GoogleKeyFromADC(ctx, geocode.ADCKeyOptions{
		ProjectID:   viper.GetString("google.project_id"),
		DisplayName: viper.GetString("google.key_name"),
	})
}

func newProvider(ctx context.Context, name, replayFile string, trace bool) (geocode.Provider, error) {
	timeout := viper.GetDuration("geocode.timeout")
	kakaoKey := viper.GetString("kakao.api_key")

	var gKey string

	if name == "auto" {
		switch {
		case replayFile != "":
			name = "replay"
		case kakaoKey != "":
			name = "kakao"
		default:
			key, err := googleKey(ctx)
			if err != nil {
				return nil, fmt.Errorf("no geocoding key configured: set KAKAO_REST_API_KEY or GOOGLE_MAPS_API_KEY (%w)", err)
			}

			name, gKey = "google", key
		}
	}

	switch name {
	case "kakao":
		if kakaoKey == "" {
			return nil, errors.New("KAKAO_REST_API_KEY is not set")
		}

		fmt.Println("📍 Geocoding: Kakao Local")

		return geocode.NewKakaoProvider(geocode.KakaoOptions{
			APIKey:  kakaoKey,
			Timeout: timeout,
			Trace:   traceWriter(trace),
		}), nil
	case "google":
		if gKey == "" {
			key, err := googleKey(ctx)
			if err != nil {
				return nil, fmt.Errorf("GOOGLE_MAPS_API_KEY is not set and the ADC lookup failed: %w", err)
			}

			gKey = key
		}

		fmt.Println("📍 Geocoding: Google Maps")

		return geocode.NewGoogleProvider(geocode.GoogleOptions{
			APIKey:  gKey,
			Timeout: timeout,
			Trace:   traceWriter(trace),
		}), nil
	case "replay":
		if replayFile == "" {
			return nil, errors.New("--replay-file is required with --provider replay")
		}

		fmt.Println("📍 Geocoding: replay " + replayFile)

		return geocode.LoadStaticProvider(replayFile)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func newLandChecker(trace bool) (bulk.LandChecker, error) {
	if url := viper.GetString("land.rpc_url"); url != "" {
		return bulk.NewRPCLandChecker(bulk.RPCOptions{
			BaseURL: url,
			APIKey:  viper.GetString("land.rpc_key"),
			Timeout: viper.GetDuration("geocode.timeout"),
			Trace:   traceWriter(trace),
		}), nil
	}

	if path := viper.GetString("land.mask"); path != "" {
		return bulk.LoadMaskLandChecker(path)
	}

	logger.Warn("no land checker configured, any coordinate inside the national box counts as land")

	return bulk.BoundsLandChecker{Bounds: spatial.KoreaBounds}, nil
}

// consoleSink reports progress on a bar when stderr is a terminal and in the
// log otherwise.
type consoleSink struct {
	bar   *progressbar.ProgressBar
	total int
}

func newConsoleSink(total int) *consoleSink {
	s := &consoleSink{total: total}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		s.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("변환 중"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	return s
}

func (s *consoleSink) OnRowProcessed(i int, out bulk.RowOutcome) {
	st := out.Stats

	if s.bar == nil {
		if (i+1)%100 == 0 || i+1 == s.total {
			logger.Info("progress",
				zap.Int("processed", st.Processed),
				zap.Int("total", s.total),
				zap.Int("success", st.Success),
				zap.Int("review", st.Review),
				zap.Int("reject", st.Reject))
		}

		return
	}

	s.bar.Describe(fmt.Sprintf("성공 %d · 검수 %d · 실패 %d", st.Success, st.Review, st.Reject))

	if err := s.bar.Add(1); err != nil {
		logger.Debug("updating progress bar", zap.Error(err))
	}
}

func (s *consoleSink) finish() {
	if s.bar != nil {
		_ = s.bar.Finish()
	}
}

// watchSignals maps SIGINT and SIGTERM to Stop, SIGUSR1 to Pause and SIGUSR2
// to Resume until the returned function is called.
func watchSignals(run *bulk.BatchRun) func() {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})

	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	go func() {
		for {
			select {
			case sig := <-sigs:
				switch sig {
				case syscall.SIGUSR1:
					fmt.Fprintln(os.Stderr, "\n⏸  일시정지 (SIGUSR2로 재개)")
					run.Pause()
				case syscall.SIGUSR2:
					fmt.Fprintln(os.Stderr, "\n▶  재개")
					run.Resume()
				default:
					fmt.Fprintln(os.Stderr, "\n⏹  중단 요청됨, 처리된 행을 저장합니다")
					run.Stop()
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func runConvert(ctx context.Context, path string, opts *convertOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	enc, err := csvfile.ParseEncoding(opts.Encoding)
	if err != nil {
		return err
	}

	fastPath, err := bulk.ParseFastPathMode(opts.FastPath)
	if err != nil {
		return err
	}

	regions, err := loadRegions()
	if err != nil {
		return err
	}

	region, err := regions.Lookup(opts.Region)
	if err != nil {
		return err
	}

	thresholds, err := loadThresholds()
	if err != nil {
		return err
	}

	header, rows, err := csvfile.ReadFile(path, enc)
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		return fmt.Errorf("%s has no data rows", path)
	}

	var provider geocode.Provider
	if fastPath != bulk.FastPathOn && !(fastPath == bulk.FastPathAuto && bulk.IsExportHeader(header)) {
		if provider, err = newProvider(ctx, opts.Provider, opts.ReplayFile, opts.TraceHTTP); err != nil {
			return err
		}
	}

	land, err := newLandChecker(opts.TraceHTTP)
	if err != nil {
		return err
	}

	var st bulk.Store

	if !opts.DryRun {
		repo, err := store.Open(ctx, viper.GetString("db"))
		if err != nil {
			return err
		}
		defer repo.DB().Close()

		st = repo
	}

	sink := newConsoleSink(len(rows))
	started := time.Now()

	run := bulk.NewBatchRun(bulk.Options{
		Provider:    provider,
		LandChecker: land,
		Store:       st,
		Regions:     regions,
		RegionKey:   region.Key,
		Thresholds:  thresholds,
		Delay:       viper.GetDuration("geocode.delay"),
		Sink:        sink,
		Logger:      logger,
		FileName:    filepath.Base(path),
		FastPath:    fastPath,
	})

	fmt.Printf("🚽 %s: %d 행, 지역 %s, 배치 %s\n", filepath.Base(path), len(rows), region.Name, run.ID())

	stopWatching := watchSignals(run)
	summary, runErr := run.Run(ctx, header, rows)
	stopWatching()
	sink.finish()

	var saveErr *bulk.SaveError
	if runErr != nil && !errors.As(runErr, &saveErr) {
		return runErr
	}

	if err := writeExports(summary, header, opts, path, region.Key, started); err != nil {
		return err
	}

	printSummary(summary, time.Since(started))

	if saveErr != nil {
		fmt.Printf("❌ 저장 실패 (%s): %v\n", saveErr.Stage, saveErr.Err)
	}

	if code := summary.Outcome.ExitCode(); code != 0 {
		return &exitError{code: code}
	}

	return nil
}

func writeExports(summary *bulk.Summary, header []string, opts *convertOptions, input, regionKey string, started time.Time) error {
	dir := opts.OutDir
	if dir == "" {
		dir = filepath.Dir(input)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	stamp := started.UnixMilli()
	name := func(prefix, ext string) string {
		return filepath.Join(dir, fmt.Sprintf("%s_%s_%d.%s", prefix, regionKey, stamp, ext))
	}

	exports := []struct {
		path    string
		enabled bool
		write   func(io.Writer) error
	}{
		{name("Cleaned", "csv"), true, func(w io.Writer) error { return bulk.WriteAccepted(w, summary.Accepted) }},
		{name("Errors", "csv"), len(summary.Failed) > 0, func(w io.Writer) error { return bulk.WriteFailed(w, header, summary.Failed) }},
		{name("Log", "csv"), true, func(w io.Writer) error { return bulk.WriteLog(w, summary.Logs) }},
		{name("Cleaned", "xlsx"), opts.XLSX, func(w io.Writer) error { return bulk.WriteAcceptedXLSX(w, summary.Accepted) }},
		{name("Cleaned", "geojson"), opts.GeoJSON, func(w io.Writer) error { return bulk.WriteAcceptedGeoJSON(w, summary.Accepted) }},
	}

	for _, e := range exports {
		if !e.enabled {
			continue
		}

		if err := writeFile(e.path, e.write); err != nil {
			return err
		}

		fmt.Println("💾 " + e.path)
	}

	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	if err := write(f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

func printSummary(s *bulk.Summary, elapsed time.Duration) {
	st := s.Stats

	fmt.Printf("✅ 즉시 등록   %6d\n", st.Success)
	fmt.Printf("🔍 검수 대기   %6d\n", st.Review)
	fmt.Printf("❌ 등록 불가   %6d\n", st.Reject)
	fmt.Printf("♻️  중복 제거   %6d\n", st.Duplicate)
	fmt.Printf("🛠  좌표 보정   %6d\n", st.Fixed)

	if st.Skipped > 0 {
		fmt.Printf("⏭  이름 없음   %6d\n", st.Skipped)
	}

	if !s.FastPath {
		g := s.GeocodeStats
		fmt.Printf("📊 지오코딩 %d 회, 캐시 %d 회, 실패 %d 회\n", g.ProviderCalls, g.CacheHits, g.Failures)

		if g.Unavailable {
			fmt.Println("⚠️  지오코딩 서비스를 사용할 수 없어 일부 행은 원본 좌표만으로 판정되었습니다")
		}
	}

	fmt.Printf("⏱  %s, 결과: %s (종료 코드 %d)\n", elapsed.Round(time.Millisecond), s.Outcome, s.Outcome.ExitCode())
}
