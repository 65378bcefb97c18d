// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/salva/fastdbfs/internal/cliapp"
)

// version is set at build time via ldflags.
var version = "0.1.0-dev"

func main() {
	if err := cliapp.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
