// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package rip

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ZSC714725/cdripper/internal/logger"
	"github.com/ZSC714725/cdripper/internal/process"
	"github.com/ZSC714725/cdripper/internal/tools/parse"
	"github.com/ZSC714725/cdripper/internal/ui"
)

// ErrAlreadyRunning is returned by Start while a rip is in progress.
var ErrAlreadyRunning = errors.New("rip already running")

// Listener is told how a rip ended. A killed rip reports nothing.
type Listener interface {
	RipSucceeded()
	RipFailed(err error)
}

// Config for a Stage
type Config struct {
	Launcher process.Launcher
	// Binary of the ripper, e.g. "cdparanoia".
	Binary   string
	Surface  ui.Surface
	Listener Listener
	Logger   logger.Logger
	// Post runs a callback on the owner's coordination goroutine. nil runs it in place.
	Post func(func())
	// Parser receives the ripper output for progress tracking. Optional.
	Parser parse.Parser
}

// Stage runs the ripper, at most one process at a time.
// Apart from Progress, its methods must be called from the goroutine Post delivers to.
type Stage struct {
	launcher process.Launcher
	binary   string
	surface  ui.Surface
	listener Listener
	logger   logger.Logger
	post     func(func())
	parser   parse.Parser

	handle   process.Handle
	running  bool
	crashErr error
}

// New creates a Stage.
func New(config Config) *Stage {
	s := &Stage{
		launcher: config.Launcher,
		binary:   config.Binary,
		surface:  ui.OrNop(config.Surface),
		listener: config.Listener,
		logger:   logger.OrNop(config.Logger),
		post:     config.Post,
		parser:   config.Parser,
	}
	if s.binary == "" {
		s.binary = "cdparanoia"
	}
	if s.post == nil {
		s.post = func(fn func()) { fn() }
	}
	if s.parser == nil {
		s.parser = parse.New(parse.Config{Kind: parse.KindRipper})
	}
	return s
}

// Args builds the ripper argv: the device selection, unless options already
// pick one, followed by the whitespace-split options.
func Args(device, options string) []string {
	fields := strings.Fields(options)
	if device == "" || selectsDevice(fields) {
		return fields
	}
	return append([]string{"-d", device}, fields...)
}

func selectsDevice(fields []string) bool {
	for _, f := range fields {
		switch {
		case f == "-d", strings.HasPrefix(f, "--force-cdrom-device"):
			return true
		case strings.HasPrefix(f, "-d") && !strings.HasPrefix(f, "--"):
			return true
		}
	}
	return false
}

// Start launches the ripper in workdir. On a spawn failure the error is
// returned and the Listener is told through RipFailed as well.
func (s *Stage) Start(device, options, workdir string) error {
	if s.running {
		s.logger.Debug("rip start ignored: %s", ErrAlreadyRunning)
		return ErrAlreadyRunning
	}

	cmd := process.Command{
		Binary: s.binary,
		Args:   Args(device, options),
		Dir:    workdir,
	}
	s.logger.Info("starting rip: %s (in %s)", cmd, workdir)

	obs := process.Funcs{
		Started:  s.onStarted,
		Output:   s.onOutput,
		Finished: s.onFinished,
		Error:    s.onError,
	}

	s.running = true
	s.crashErr = nil
	s.parser.ResetLog()
	h, err := s.launcher.Start(cmd, process.Serialize(s.post, obs))
	if err != nil {
		s.running = false
		return fmt.Errorf("start ripper: %w", err)
	}
	s.handle = h
	return nil
}

// Running reports whether a ripper process is outstanding.
func (s *Stage) Running() bool { return s.running }

// Handle returns the current ripper handle, nil before Start.
func (s *Stage) Handle() process.Handle { return s.handle }

// Progress returns the parsed ripper progress.
func (s *Stage) Progress() parse.Progress { return s.parser.Progress() }

// Kill force-terminates the ripper, if one is running.
func (s *Stage) Kill() error {
	if s.handle == nil {
		return nil
	}
	return s.handle.Kill()
}

func (s *Stage) onStarted() {
	s.logger.Debug("rip started")
	s.surface.AppendRipOutput("Ripping CD...\n")
	s.surface.SetFinishedEnabled(false)
}

func (s *Stage) onOutput(chunk string) {
	s.surface.AppendRipOutput(chunk)
	s.parser.Feed(chunk)
}

func (s *Stage) onError(kind process.ErrorKind, err error) {
	msg := fmt.Sprintf("Ripping/Encoding failed: %v", err)
	s.logger.Error("rip %s: %v", kind, err)

	switch kind {
	case process.SpawnFailure:
		s.running = false
		s.surface.AppendRipOutput(msg + "\n")
		if s.listener != nil {
			s.listener.RipFailed(err)
		}
	case process.Crashed:
		s.crashErr = err
		s.surface.AppendRipOutput(msg + "\n")
	default:
		s.surface.AppendRipOutput(msg + "\n")
	}
}

func (s *Stage) onFinished(status process.ExitStatus) {
	s.running = false
	s.logger.Debug("rip finished: %s", status)

	switch status {
	case process.ExitNormal:
		s.surface.AppendRipOutput("CD ripping complete!\n")
		if s.listener != nil {
			s.listener.RipSucceeded()
		}
	case process.ExitCrashed:
		err := s.crashErr
		if err == nil {
			err = errors.New("ripper crashed")
		}
		if s.listener != nil {
			s.listener.RipFailed(err)
		}
	}
}
