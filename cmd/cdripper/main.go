// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	deps := &Dependencies{}
	cmd := NewRootCmd(deps)
	err := cmd.Execute()
	deps.Close()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
