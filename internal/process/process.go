// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具
//
// Package process supervises a single external program per handle: it spawns
// it with merged stdout/stderr, streams the output to an Observer, reports how
// it ended and can force-terminate it.

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/ZSC714725/cdripper/internal/logger"
)

// Command is one external program invocation.
type Command struct {
	Binary string
	Args   []string
	Dir    string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// ExitStatus is how a process ended.
type ExitStatus int

const (
	ExitNormal ExitStatus = iota
	ExitCrashed
	ExitKilled
)

func (s ExitStatus) String() string {
	switch s {
	case ExitNormal:
		return "normal"
	case ExitCrashed:
		return "crashed"
	case ExitKilled:
		return "killed"
	}
	return fmt.Sprintf("ExitStatus(%d)", int(s))
}

// ErrorKind classifies errors reported through Observer.OnError.
type ErrorKind int

const (
	SpawnFailure ErrorKind = iota
	Crashed
	ReadFailure
)

func (k ErrorKind) String() string {
	switch k {
	case SpawnFailure:
		return "spawn failure"
	case Crashed:
		return "crashed"
	case ReadFailure:
		return "read failure"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Observer receives the events of one process. Callbacks for a handle are
// delivered in order: OnStarted, OnOutput*, [OnError(Crashed)], OnFinished.
// A spawn failure delivers only OnError(SpawnFailure).
type Observer interface {
	OnStarted()
	OnOutput(chunk string)
	OnFinished(status ExitStatus)
	OnError(kind ErrorKind, err error)
}

// Handle is a started process.
type Handle interface {
	ID() string
	Command() Command
	// Kill force-terminates the process group. Killing an exited process is a no-op.
	Kill() error
	Status() Status
	// Done is closed once OnFinished has been delivered.
	Done() <-chan struct{}
}

// Launcher starts processes.
type Launcher interface {
	Start(cmd Command, obs Observer) (Handle, error)
}

// Status of a process
type Status struct {
	ID       string
	State    string
	Exit     ExitStatus
	ExitCode int
	PID      int
	Duration time.Duration
	Time     time.Time
	CPU      float64
	Memory   uint64
	Output   string
}

type stateType string

const (
	stateStarting stateType = "starting"
	stateRunning  stateType = "running"
	stateFinished stateType = "finished"
	stateFailed   stateType = "failed"
	stateKilled   stateType = "killed"
)

func (s stateType) String() string { return string(s) }

func (s stateType) IsRunning() bool {
	return s == stateStarting || s == stateRunning
}

const (
	readChunkSize = 4096
	maxOutputTail = 64 * 1024
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Logger logger.Logger
	// NewSampler returns the resource sampler for each handle. Defaults to gopsutil.
	NewSampler func() Sampler
}

// Runner is the Launcher backed by real OS processes.
type Runner struct {
	logger     logger.Logger
	newSampler func() Sampler
}

// NewRunner creates a Runner.
func NewRunner(config RunnerConfig) *Runner {
	r := &Runner{
		logger:     logger.OrNop(config.Logger),
		newSampler: config.NewSampler,
	}
	if r.newSampler == nil {
		r.newSampler = NewSysSampler
	}
	return r
}

type process struct {
	id       string
	command  Command
	cmd      *exec.Cmd
	output   *os.File
	observer Observer
	logger   logger.Logger
	sampler  Sampler
	killed   atomic.Bool
	done     chan struct{}

	state struct {
		state    stateType
		time     time.Time
		exit     ExitStatus
		exitCode int
		lock     sync.Mutex
	}
	tail struct {
		buf  []byte
		lock sync.Mutex
	}
}

// Start spawns cmd. On spawn failure obs.OnError(SpawnFailure) is delivered
// synchronously and the error is returned.
func (r *Runner) Start(cmd Command, obs Observer) (Handle, error) {
	if len(cmd.Binary) == 0 {
		err := fmt.Errorf("no valid binary given")
		obs.OnError(SpawnFailure, err)
		return nil, err
	}

	p := &process{
		id:       uuid.NewString(),
		command:  cmd,
		observer: obs,
		logger:   r.logger,
		sampler:  r.newSampler(),
		done:     make(chan struct{}),
	}
	p.initState(stateStarting)

	if err := p.start(); err != nil {
		p.setState(stateFailed)
		p.logger.Error("spawn %s: %v", cmd, err)
		obs.OnError(SpawnFailure, err)
		close(p.done)
		return nil, err
	}
	return p, nil
}

func (p *process) start() error {
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create output pipe: %w", err)
	}

	p.cmd = exec.Command(p.command.Binary, p.command.Args...)
	p.cmd.Dir = p.command.Dir
	p.cmd.Stdout = pw
	p.cmd.Stderr = pw
	p.cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := p.cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return err
	}
	// the child holds its own copy of the write end
	pw.Close()
	p.output = pr

	p.setState(stateRunning)
	if err := p.sampler.Start(p.cmd.Process.Pid); err != nil {
		p.logger.Debug("sampler for pid %d: %v", p.cmd.Process.Pid, err)
	}
	p.logger.Debug("started %s (pid %d) in %s", p.command, p.cmd.Process.Pid, p.command.Dir)

	go p.reaper()
	return nil
}

func (p *process) initState(state stateType) {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()
	p.state.state = state
	p.state.time = time.Now()
}

func (p *process) setState(state stateType) error {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()

	failed := false
	switch p.state.state {
	case stateStarting:
		if state == stateRunning || state == stateFailed {
			p.state.state = state
		} else {
			failed = true
		}
	case stateRunning:
		switch state {
		case stateFinished, stateFailed, stateKilled:
			p.state.state = state
		default:
			failed = true
		}
	case stateFinished, stateFailed, stateKilled:
		failed = true
	default:
		return fmt.Errorf("unhandled state: %s", p.state.state)
	}

	if failed {
		return fmt.Errorf("can't change from %s to %s", p.state.state, state)
	}
	p.state.time = time.Now()
	return nil
}

func (p *process) getState() stateType {
	p.state.lock.Lock()
	defer p.state.lock.Unlock()
	return p.state.state
}

func (p *process) ID() string { return p.id }

func (p *process) Command() Command { return p.command }

func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) Status() Status {
	cpu, memory := p.sampler.Current()

	p.state.lock.Lock()
	s := Status{
		ID:       p.id,
		State:    p.state.state.String(),
		Exit:     p.state.exit,
		ExitCode: p.state.exitCode,
		Duration: time.Since(p.state.time),
		Time:     p.state.time,
		CPU:      cpu,
		Memory:   memory,
	}
	p.state.lock.Unlock()

	if p.cmd != nil && p.cmd.Process != nil {
		s.PID = p.cmd.Process.Pid
	}
	p.tail.lock.Lock()
	s.Output = string(p.tail.buf)
	p.tail.lock.Unlock()
	return s
}

func (p *process) Kill() error {
	if !p.getState().IsRunning() {
		return nil
	}
	if p.killed.Swap(true) {
		return nil
	}
	pid := p.cmd.Process.Pid
	err := unix.Kill(-pid, unix.SIGKILL)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		err = p.cmd.Process.Kill()
	} else {
		err = nil
	}
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}
	p.logger.Debug("killed %s (pid %d)", p.command, pid)
	return nil
}

// reaper delivers all observer callbacks for the process, in order.
func (p *process) reaper() {
	defer close(p.done)

	p.observer.OnStarted()
	p.reader()
	p.waiter()
}

func (p *process) reader() {
	defer p.output.Close()

	buf := make([]byte, readChunkSize)
	var carry []byte
	for {
		n, err := p.output.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			var complete []byte
			complete, carry = splitUTF8(data)
			carry = append([]byte(nil), carry...)
			if len(complete) > 0 {
				p.appendTail(complete)
				p.observer.OnOutput(strings.ToValidUTF8(string(complete), "\uFFFD"))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				p.observer.OnError(ReadFailure, err)
			}
			break
		}
	}
	if len(carry) > 0 {
		p.appendTail(carry)
		p.observer.OnOutput(strings.ToValidUTF8(string(carry), "\uFFFD"))
	}
}

func (p *process) waiter() {
	err := p.cmd.Wait()
	p.sampler.Stop()

	exit := ExitNormal
	code := 0
	switch {
	case p.killed.Load() && killedBySignal(err):
		exit = ExitKilled
		code = -1
	case err != nil:
		exit = ExitCrashed
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	p.state.lock.Lock()
	p.state.exit = exit
	p.state.exitCode = code
	p.state.lock.Unlock()

	switch exit {
	case ExitNormal:
		p.setState(stateFinished)
	case ExitKilled:
		p.setState(stateKilled)
	default:
		p.setState(stateFailed)
	}
	p.logger.Debug("%s exited: %s (code %d)", p.command, exit, code)

	if exit == ExitCrashed {
		if err == nil {
			err = fmt.Errorf("exit code %d", code)
		}
		p.observer.OnError(Crashed, err)
	}
	p.observer.OnFinished(exit)
}

// killedBySignal reports whether err is the wait result of a SIGKILL. A
// process that exited on its own before our signal landed is not killed.
func killedBySignal(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled() && ws.Signal() == syscall.SIGKILL
}

func (p *process) appendTail(b []byte) {
	p.tail.lock.Lock()
	defer p.tail.lock.Unlock()
	p.tail.buf = append(p.tail.buf, b...)
	if over := len(p.tail.buf) - maxOutputTail; over > 0 {
		p.tail.buf = append([]byte(nil), p.tail.buf[over:]...)
	}
}

// splitUTF8 splits b before a trailing, incomplete UTF-8 sequence.
func splitUTF8(b []byte) (complete, rest []byte) {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i], b[i:]
		}
		break
	}
	return b, nil
}
