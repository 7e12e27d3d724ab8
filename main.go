// Copyright 2025 The ToiletShare Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/Qseek-Jung/ToiletShare-sub001/cmd"
)

var Version = "development"

func main() {
	cmd.Execute(Version)
}
