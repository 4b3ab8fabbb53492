// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具
//
// Package disc talks to the optical drive: it reads the disc fingerprint
// through an external command, serialises access to a drive between processes
// and waits for a disc to be inserted.

package disc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ZSC714725/cdripper/internal/logger"
)

var (
	// ErrNoDisc means the id command gave no output, usually because the drive is empty.
	ErrNoDisc = errors.New("no disc in drive")
	// ErrDriveBusy means another process holds the drive lock.
	ErrDriveBusy = errors.New("drive is in use")
)

const defaultReadTimeout = 30 * time.Second

// CommandReader reads the disc id by running "<Binary> <device>" and taking
// the first word of its output. cd-discid prints the freedb id first.
type CommandReader struct {
	Binary  string
	Timeout time.Duration
	Logger  logger.Logger
}

// NewCommandReader creates a CommandReader for binary.
func NewCommandReader(binary string, log logger.Logger) *CommandReader {
	return &CommandReader{Binary: binary, Logger: log}
}

func (r *CommandReader) ReadDiscID(ctx context.Context, device string) (string, error) {
	if len(r.Binary) == 0 {
		return "", fmt.Errorf("no disc id command configured")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var args []string
	if device != "" {
		args = append(args, device)
	}
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s %s: %w: %s", r.Binary, device, err, msg)
		}
		return "", fmt.Errorf("%s %s: %w", r.Binary, device, err)
	}

	id := parseDiscID(out)
	if id == "" {
		return "", ErrNoDisc
	}
	logger.OrNop(r.Logger).Debug("disc id of %s: %s", device, id)
	return id, nil
}

func parseDiscID(out []byte) string {
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
