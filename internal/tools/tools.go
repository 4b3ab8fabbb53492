// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package tools

import (
	"errors"
	"fmt"
	"os/exec"
	"sync"

	"github.com/ZSC714725/cdripper/internal/tools/parse"
)

// ErrBlockedOption is returned when a configured option is not allowed.
var ErrBlockedOption = errors.New("option not allowed")

// Toolchain resolves the ripper and encoder binaries and validates their options.
type Toolchain interface {
	Ripper() string
	Encoder() string
	ValidateRipperOptions(opts string) error
	ValidateEncoderOptions(opts string) error
	NewRipParser() parse.Parser
	NewEncodeParser() parse.Parser
	Versions() Versions
	ReloadVersions() error
}

// Config for the toolchain
type Config struct {
	Ripper           string
	Encoder          string
	MaxLogLines      int
	RipperValidator  Validator
	EncoderValidator Validator
}

type toolchain struct {
	ripper       string
	encoder      string
	ripperCheck  Validator
	encoderCheck Validator
	logLines     int
	versions     Versions
	versionsLock sync.RWMutex
}

// New resolves both binaries through $PATH and probes their versions.
func New(config Config) (Toolchain, error) {
	ripper, err := exec.LookPath(config.Ripper)
	if err != nil {
		return nil, fmt.Errorf("invalid ripper binary: %w", err)
	}
	encoder, err := exec.LookPath(config.Encoder)
	if err != nil {
		return nil, fmt.Errorf("invalid encoder binary: %w", err)
	}

	t := &toolchain{
		ripper:   ripper,
		encoder:  encoder,
		logLines: config.MaxLogLines,
	}
	if t.logLines <= 0 {
		t.logLines = 100
	}

	t.ripperCheck = config.RipperValidator
	if t.ripperCheck == nil {
		t.ripperCheck = NewRipperValidator()
	}
	t.encoderCheck = config.EncoderValidator
	if t.encoderCheck == nil {
		t.encoderCheck = NewEncoderValidator()
	}

	t.versions = ProbeAll(t.ripper, t.encoder)
	return t, nil
}

func (t *toolchain) Ripper() string  { return t.ripper }
func (t *toolchain) Encoder() string { return t.encoder }

func (t *toolchain) ValidateRipperOptions(opts string) error {
	return ValidateOptions(t.ripperCheck, opts)
}

func (t *toolchain) ValidateEncoderOptions(opts string) error {
	return ValidateOptions(t.encoderCheck, opts)
}

func (t *toolchain) NewRipParser() parse.Parser {
	return parse.New(parse.Config{LogLines: t.logLines, Kind: parse.KindRipper})
}

func (t *toolchain) NewEncodeParser() parse.Parser {
	return parse.New(parse.Config{LogLines: t.logLines, Kind: parse.KindEncoder})
}

func (t *toolchain) Versions() Versions {
	t.versionsLock.RLock()
	defer t.versionsLock.RUnlock()
	return t.versions
}

func (t *toolchain) ReloadVersions() error {
	v := ProbeAll(t.ripper, t.encoder)
	if v.Ripper.Err != "" && v.Encoder.Err != "" {
		return fmt.Errorf("reload versions: %s; %s", v.Ripper.Err, v.Encoder.Err)
	}
	t.versionsLock.Lock()
	t.versions = v
	t.versionsLock.Unlock()
	return nil
}
