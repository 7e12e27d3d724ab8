// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "지원 지역과 좌표 범위를 보여줍니다",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		regions, err := loadRegions()
		if err != nil {
			return err
		}

		a, b, c := strings.Repeat("─", 10), strings.Repeat("─", 16), strings.Repeat("─", 36)
		fmt.Printf("╭─%s─┬─%s─┬─%s─╮\n", a, b, c)
		fmt.Printf("│ %-10s │ %-16s │ %-36s │\n", "키", "이름", "위도 / 경도")
		fmt.Printf("├─%s─┼─%s─┼─%s─┤\n", a, b, c)

		for _, k := range regions.Keys() {
			r := regions[k]
			fmt.Printf("│ %-10s │ %-16s │ %6.2f–%6.2f / %7.2f–%7.2f      │\n",
				r.Key, r.Name, r.MinLat, r.MaxLat, r.MinLng, r.MaxLng)
		}

		fmt.Printf("╰─%s─┴─%s─┴─%s─╯\n", a, b, c)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(regionsCmd)
}
