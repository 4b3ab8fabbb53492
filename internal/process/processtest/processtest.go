// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具
//
// Package processtest provides a scriptable process.Launcher for tests.

package processtest

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZSC714725/cdripper/internal/process"
)

// Launcher records every started command. Nothing runs: the test drives each
// Handle's callbacks explicitly.
type Launcher struct {
	// StartErr, when set, is consulted for every command; a non-nil error is
	// reported as a spawn failure.
	StartErr func(cmd process.Command) error

	lock    sync.Mutex
	handles []*Handle
	failed  []process.Command
	started chan *Handle
	seq     atomic.Int64
}

// NewLauncher creates a Launcher.
func NewLauncher() *Launcher {
	return &Launcher{started: make(chan *Handle, 256)}
}

func (l *Launcher) Start(cmd process.Command, obs process.Observer) (process.Handle, error) {
	if l.StartErr != nil {
		if err := l.StartErr(cmd); err != nil {
			l.lock.Lock()
			l.failed = append(l.failed, cmd)
			l.lock.Unlock()
			obs.OnError(process.SpawnFailure, err)
			return nil, err
		}
	}

	h := &Handle{
		id:   fmt.Sprintf("fake-%d", l.seq.Add(1)),
		cmd:  cmd,
		obs:  obs,
		done: make(chan struct{}),
	}
	l.lock.Lock()
	l.handles = append(l.handles, h)
	l.lock.Unlock()
	l.started <- h
	return h, nil
}

// Handles returns every successfully started handle, in start order.
func (l *Launcher) Handles() []*Handle {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]*Handle(nil), l.handles...)
}

// Failed returns the commands whose spawn failed.
func (l *Launcher) Failed() []process.Command {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]process.Command(nil), l.failed...)
}

// Next waits for the next started handle.
func (l *Launcher) Next(timeout time.Duration) (*Handle, error) {
	select {
	case h := <-l.started:
		return h, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no process started within %s", timeout)
	}
}

// Handle is a fake process.Handle.
type Handle struct {
	id   string
	cmd  process.Command
	obs  process.Observer
	done chan struct{}

	once   sync.Once
	killed atomic.Bool
	exit   atomic.Int32
}

func (h *Handle) ID() string               { return h.id }
func (h *Handle) Command() process.Command { return h.cmd }
func (h *Handle) Done() <-chan struct{}    { return h.done }

func (h *Handle) Status() process.Status {
	state := "running"
	select {
	case <-h.done:
		state = process.ExitStatus(h.exit.Load()).String()
	default:
	}
	return process.Status{ID: h.id, State: state, Exit: process.ExitStatus(h.exit.Load())}
}

// Kill marks the handle killed and delivers OnFinished(ExitKilled) from another
// goroutine, like a real reaper would.
func (h *Handle) Kill() error {
	h.killed.Store(true)
	go h.Exit(process.ExitKilled)
	return nil
}

// Killed reports whether Kill was called.
func (h *Handle) Killed() bool { return h.killed.Load() }

// Started delivers OnStarted.
func (h *Handle) Started() { h.obs.OnStarted() }

// Output delivers OnOutput.
func (h *Handle) Output(chunk string) { h.obs.OnOutput(chunk) }

// Exit delivers the terminal callbacks once: OnError(Crashed) for a crash,
// then OnFinished. Later calls are ignored.
func (h *Handle) Exit(status process.ExitStatus) {
	h.once.Do(func() {
		h.exit.Store(int32(status))
		if status == process.ExitCrashed {
			h.obs.OnError(process.Crashed, fmt.Errorf("%s: exit code 1", h.cmd.Binary))
		}
		h.obs.OnFinished(status)
		close(h.done)
	})
}
