// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/Qseek-Jung/ToiletShare-sub001/review"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "검수 대기 항목 관리",
}

// withService opens the database and runs fn with a review service on it.
func withService(cmd *cobra.Command, fn func(svc *review.Service, repo store.Repository) error, opts ...review.Option) error {
	repo, err := openRepo(cmd.Context())
	if err != nil {
		return err
	}
	defer repo.DB().Close()

	opts = append(opts, review.WithLogger(logger))

	return fn(review.NewService(repo, opts...), repo)
}

var (
	reviewUpload     string
	reviewStatus     string
	reviewLimit      int
	reviewProvider   string
	reviewReplayFile string
)

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "검수 항목을 보여줍니다 (기본: 미처리 항목)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status := store.StagingStatus(reviewStatus)
		if status != "" && !status.Valid() {
			return fmt.Errorf("unknown status %q", reviewStatus)
		}

		return withService(cmd, func(svc *review.Service, _ store.Repository) error {
			items, err := svc.List(cmd.Context(), store.StagingFilter{UploadID: reviewUpload, Status: status, Limit: reviewLimit})
			if err != nil {
				return err
			}

			for _, it := range items {
				fmt.Printf("%s  %-13s  %s | %s | %.6f,%.6f\n", it.ID, it.Status, it.Name, it.Address, it.Lat, it.Lng)
				fmt.Printf("    └ %s\n", it.Reason)
			}

			fmt.Printf("%d 건\n", len(items))

			return nil
		})
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <id>...",
	Short: "항목을 정식 등록합니다",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *review.Service, _ store.Repository) error {
			for _, id := range args {
				rec, err := svc.Approve(cmd.Context(), id)
				if err != nil {
					return err
				}

				fmt.Printf("✅ %s → %s\n", id, rec.ID)
			}

			return nil
		})
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <id>...",
	Short: "항목을 거절 처리합니다",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *review.Service, _ store.Repository) error {
			for _, id := range args {
				if err := svc.Reject(cmd.Context(), id); err != nil {
					return err
				}

				fmt.Printf("❌ %s\n", id)
			}

			return nil
		})
	},
}

var reviewDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "항목을 완전히 삭제합니다",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *review.Service, _ store.Repository) error {
			for _, id := range args {
				if err := svc.Delete(cmd.Context(), id); err != nil {
					return err
				}

				fmt.Printf("🗑  %s\n", id)
			}

			return nil
		})
	},
}

var reviewEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "항목의 이름, 주소, 층, 좌표, 구분을 수정합니다",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p review.Patch

		f := cmd.Flags()

		if f.Changed("name") {
			v, _ := f.GetString("name")
			p.Name = &v
		}

		if f.Changed("address") {
			v, _ := f.GetString("address")
			p.Address = &v
		}

		if f.Changed("type") {
			v, _ := f.GetString("type")
			p.Type = &v
		}

		if f.Changed("floor") {
			v, _ := f.GetInt("floor")
			p.Floor = &v
		}

		if f.Changed("lat") {
			v, _ := f.GetFloat64("lat")
			p.Lat = &v
		}

		if f.Changed("lng") {
			v, _ := f.GetFloat64("lng")
			p.Lng = &v
		}

		return withService(cmd, func(svc *review.Service, _ store.Repository) error {
			item, err := svc.Edit(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}

			fmt.Printf("✏️  %s: %s | %s | %d층 | %.6f,%.6f (%s)\n",
				item.ID, item.Name, item.Address, item.Floor, item.Lat, item.Lng, item.Status)

			return nil
		})
	},
}

var reviewGeocodeCmd = &cobra.Command{
	Use:   "geocode <id>",
	Short: "항목의 주소로 좌표를 다시 찾습니다",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, err := newProvider(cmd.Context(), reviewProvider, reviewReplayFile, false)
		if err != nil {
			return err
		}

		return withService(cmd, func(svc *review.Service, _ store.Repository) error {
			item, err := svc.Geocode(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("📍 %s: %.6f,%.6f\n", item.ID, item.Lat, item.Lng)

			return nil
		}, review.WithProvider(provider))
	},
}

var reviewCleanupCmd = &cobra.Command{
	Use:   "cleanup <upload-id>",
	Short: "업로드의 처리 완료 항목을 정리합니다",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *review.Service, _ store.Repository) error {
			n, err := svc.CleanUp(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("🧹 %d 건 정리\n", n)

			return nil
		})
	},
}

var reviewServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "검수 API 서버를 실행합니다",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var opts []review.Option

		// The server runs without a geocoder; only the geocode endpoint needs one.
		if p, err := newProvider(cmd.Context(), reviewProvider, reviewReplayFile, false); err == nil {
			opts = append(opts, review.WithProvider(p))
		} else {
			logger.Warn("review server runs without geocoding", zap.Error(err))
		}

		return withService(cmd, func(svc *review.Service, repo store.Repository) error {
			addr := viper.GetString("serve.addr")
			fmt.Printf("🌐 http://%s/api/staging\n", strings.TrimPrefix(addr, "http://"))

			return review.NewServer(svc, repo, logger).Run(addr)
		}, opts...)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewListCmd, reviewApproveCmd, reviewRejectCmd, reviewDeleteCmd,
		reviewEditCmd, reviewGeocodeCmd, reviewCleanupCmd, reviewServeCmd)

	reviewCmd.PersistentFlags().StringVar(&reviewProvider, "provider", "auto", "지오코딩 서비스 (auto, kakao, google, replay)")
	reviewCmd.PersistentFlags().StringVar(&reviewReplayFile, "replay-file", "", "replay 지오코딩 응답 파일 (JSON)")

	reviewListCmd.Flags().StringVar(&reviewUpload, "upload", "", "업로드(배치) ID")
	reviewListCmd.Flags().StringVar(&reviewStatus, "status", "", "상태 (review_needed, rejected, done)")
	reviewListCmd.Flags().IntVar(&reviewLimit, "limit", 0, "최대 개수")

	reviewEditCmd.Flags().String("name", "", "이름")
	reviewEditCmd.Flags().String("address", "", "주소")
	reviewEditCmd.Flags().String("type", "", "구분")
	reviewEditCmd.Flags().Int("floor", 1, "층 (지하는 음수)")
	reviewEditCmd.Flags().Float64("lat", 0, "위도")
	reviewEditCmd.Flags().Float64("lng", 0, "경도")

	reviewServeCmd.Flags().String("addr", "localhost:8080", "수신 주소")

	if err := viper.BindPFlag("serve.addr", reviewServeCmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
}
