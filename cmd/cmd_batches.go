// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Qseek-Jung/ToiletShare-sub001/review"
	"github.com/Qseek-Jung/ToiletShare-sub001/store"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func openRepo(ctx context.Context) (store.Repository, error) {
	return store.Open(ctx, viper.GetString("db"))
}

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "업로드 이력 관리",
}

var batchesLimit int

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "업로드 이력을 최근 순으로 보여줍니다",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		repo, err := openRepo(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.DB().Close()

		batches, err := repo.ListBatches(cmd.Context(), batchesLimit)
		if err != nil {
			return err
		}

		a, b, c, d := strings.Repeat("─", 36), strings.Repeat("─", 19), strings.Repeat("─", 24), strings.Repeat("─", 38)
		fmt.Printf("╭─%s─┬─%s─┬─%s─┬─%s─╮\n", a, b, c, d)
		fmt.Printf("│ %-36s │ %-19s │ %-24s │ %-38s │\n", "ID", "일시", "파일", "등록/검수/실패/중복 · 상태")
		fmt.Printf("├─%s─┼─%s─┼─%s─┼─%s─┤\n", a, b, c, d)

		for _, bt := range batches {
			counts := fmt.Sprintf("%d/%d/%d/%d · %s", bt.SuccessCount, bt.ReviewCount, bt.RejectCount, bt.DuplicateCount, bt.Status)
			fmt.Printf("│ %-36s │ %-19s │ %-24s │ %-38s │\n",
				bt.ID, bt.UploadedAt.Local().Format("2006-01-02 15:04:05"), truncate(bt.FileName, 24), counts)
		}

		fmt.Printf("╰─%s─┴─%s─┴─%s─┴─%s─╯\n", a, b, c, d)

		return nil
	},
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}

var batchesShowLogs bool

var batchesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "업로드 한 건의 상세와 작업 로그를 보여줍니다",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepo(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.DB().Close()

		bt, err := repo.GetBatch(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("배치      %s\n", bt.ID)
		fmt.Printf("파일      %s\n", bt.FileName)
		fmt.Printf("지역      %s\n", bt.Region)
		fmt.Printf("일시      %s\n", bt.UploadedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("상태      %s (%s)\n", bt.Status, bt.Outcome)
		fmt.Printf("전체      %d\n", bt.TotalCount)
		fmt.Printf("등록      %d (좌표 보정 %d)\n", bt.SuccessCount, bt.FixedCount)
		fmt.Printf("검수/실패 %d/%d\n", bt.ReviewCount, bt.RejectCount)
		fmt.Printf("중복      %d\n", bt.DuplicateCount)
		fmt.Printf("레코드    %d 건\n", len(bt.UploadedRecordIDs))

		if batchesShowLogs {
			fmt.Println()

			for _, l := range bt.Logs {
				fmt.Printf("%s [%s] %s\n", l.Time.Local().Format("15:04:05"), l.Severity, l.Message)
			}
		}

		return nil
	},
}

var batchesRollbackCmd = &cobra.Command{
	Use:   "rollback <id>",
	Short: "업로드로 등록된 레코드를 모두 삭제하고 이력을 무효 처리합니다",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepo(cmd.Context())
		if err != nil {
			return err
		}
		defer repo.DB().Close()

		var progress func(done, total int)

		if isatty.IsTerminal(os.Stderr.Fd()) {
			var bar *progressbar.ProgressBar

			progress = func(done, total int) {
				if bar == nil {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetDescription("Rolling back "+args[0]),
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionShowCount(),
						progressbar.OptionClearOnFinish(),
					)
				}

				_ = bar.Set(done)
			}
		}

		svc := review.NewService(repo, review.WithLogger(logger))
		if err := svc.Rollback(cmd.Context(), args[0], progress); err != nil {
			return err
		}

		fmt.Printf("🗑  배치 %s 롤백 완료\n", args[0])

		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchesCmd)
	batchesCmd.AddCommand(batchesListCmd, batchesShowCmd, batchesRollbackCmd)

	batchesListCmd.Flags().IntVar(&batchesLimit, "limit", 20, "최대 개수 (0은 전체)")
	batchesShowCmd.Flags().BoolVar(&batchesShowLogs, "logs", false, "작업 로그 출력")
}
