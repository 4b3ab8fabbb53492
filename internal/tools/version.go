// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package tools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const probeTimeout = 5 * time.Second

var reVersion = regexp.MustCompile(`([0-9]+\.[0-9]+(?:\.[0-9]+)?)`)

// ToolVersion is the detected version of one external program
type ToolVersion struct {
	Name    string
	Binary  string
	Version string
	Banner  string
	Err     string
}

// Versions of the ripper and the encoder
type Versions struct {
	Ripper  ToolVersion
	Encoder ToolVersion
}

// ProbeAll probes both binaries.
func ProbeAll(ripper, encoder string) Versions {
	return Versions{
		Ripper:  Probe(ripper),
		Encoder: Probe(encoder),
	}
}

// Probe runs "<binary> --version". cdparanoia prints its banner on stderr, so
// both streams are read.
func Probe(binary string) ToolVersion {
	v := ToolVersion{Name: filepath.Base(binary), Binary: binary}

	path, err := exec.LookPath(binary)
	if err != nil {
		v.Err = err.Error()
		return v
	}
	v.Binary = path

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "--version")
	cmd.Env = []string{}
	out, err := cmd.CombinedOutput()
	if len(bytes.TrimSpace(out)) == 0 {
		if err == nil {
			err = fmt.Errorf("no version output")
		}
		v.Err = err.Error()
		return v
	}

	v.Banner, v.Version = parseVersion(out)
	return v
}

// parseVersion returns the first non-empty line and the first version number in it.
func parseVersion(data []byte) (banner, version string) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		banner = line
		break
	}
	if m := reVersion.FindStringSubmatch(banner); m != nil {
		version = m[1]
	}
	return banner, version
}
