// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Qseek-Jung/ToiletShare-sub001/bulk"
	"github.com/Qseek-Jung/ToiletShare-sub001/geocode"
	"github.com/Qseek-Jung/ToiletShare-sub001/spatial"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

var rootCmd = &cobra.Command{
	Use:   "toiletshare",
	Short: "공중화장실 대량 등록 데이터 정제 도구",
	Long: `
toiletshare는 공공데이터 포털 등에서 받은 공중화장실 CSV 파일의 주소와 좌표를
지오코딩 결과와 대조하여 즉시 등록, 검수 대기, 등록 불가로 분류하고 그 결과를
로컬 데이터베이스에 저장합니다.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		return initLogger()
	},
}

var (
	Version = "dev"

	cfgFile string
	logger  = zap.NewNop()
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	_ = logger.Sync()

	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}

	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "설정 파일 (기본: ./toiletshare.yaml, ~/.config/toiletshare/toiletshare.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "로그 레벨 (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("db", "toiletshare.duckdb", "DuckDB 데이터베이스 파일")

	for key, flag := range map[string]string{"log_level": "log-level", "db": "db"} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

func initConfig() error {
	viper.SetEnvPrefix("TOILETSHARE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv("kakao.api_key", "TOILETSHARE_KAKAO_API_KEY", "KAKAO_REST_API_KEY"); err != nil {
		return err
	}

	if err := viper.BindEnv("google.api_key", "TOILETSHARE_GOOGLE_API_KEY", "GOOGLE_MAPS_API_KEY"); err != nil {
		return err
	}

	viper.SetDefault("geocode.delay", bulk.DefaultDelay)
	viper.SetDefault("geocode.timeout", "10s")
	viper.SetDefault("serve.addr", "localhost:8080")
	viper.SetDefault("google.key_name", geocode.DefaultKeyDisplayName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("toiletshare")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "toiletshare"))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	return nil
}

func initLogger() error {
	level, err := zapcore.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var config zap.Config
	if isatty.IsTerminal(os.Stderr.Fd()) {
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
	} else {
		config = zap.NewProductionConfig()
	}

	config.Level = zap.NewAtomicLevelAt(level)

	l, err := config.Build()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	logger = l

	return nil
}

// loadRegions returns the region table, replaced by the "regions" key of the
// config file when present.
func loadRegions() (spatial.RegionTable, error) {
	raw := viper.Get("regions")
	if raw == nil {
		return spatial.DefaultRegions(), nil
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encoding configured regions: %w", err)
	}

	return spatial.ParseRegions(data)
}

// loadThresholds reads the "thresholds" key over the defaults.
func loadThresholds() (bulk.Thresholds, error) {
	th := bulk.DefaultThresholds()
	if err := viper.UnmarshalKey("thresholds", &th); err != nil {
		return th, fmt.Errorf("decoding thresholds: %w", err)
	}

	return th, th.Validate()
}
