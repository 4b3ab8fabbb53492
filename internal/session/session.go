// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具
//
// Package session coordinates one rip of one disc: it reads the disc
// fingerprint, runs the ripper, fans out one encoder per track and commits the
// encoded files to the album all at once.
//
// All session state is owned by a single coordination goroutine (the one
// running Run). Process callbacks are posted to it through a mailbox.

package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/cdripper/internal/encode"
	"github.com/ZSC714725/cdripper/internal/logger"
	"github.com/ZSC714725/cdripper/internal/metadata"
	"github.com/ZSC714725/cdripper/internal/process"
	"github.com/ZSC714725/cdripper/internal/rip"
	"github.com/ZSC714725/cdripper/internal/tools/parse"
	"github.com/ZSC714725/cdripper/internal/ui"
)

// State of a session
type State string

const (
	StateIdle      State = "idle"
	StateRipping   State = "ripping"
	StateEncoding  State = "encoding"
	StateDone      State = "done"
	StateAborted   State = "aborted"
	StateCancelled State = "cancelled"
	StateError     State = "error"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateAborted, StateCancelled, StateError:
		return true
	}
	return false
}

// Active reports whether Cancel would move the session to cancelled.
func (s State) Active() bool {
	return s == StateIdle || s == StateRipping || s == StateEncoding
}

func (s State) label() string {
	switch s {
	case StateRipping:
		return "Ripping"
	case StateEncoding:
		return "Encoding"
	case StateDone:
		return "Done"
	case StateAborted:
		return "Aborted"
	case StateCancelled:
		return "Cancelled"
	case StateError:
		return "Error"
	}
	return "Idle"
}

// LockFunc takes the exclusive lock of a drive and returns its release function.
type LockFunc func(ctx context.Context, device string) (release func() error, err error)

// Record is what a finished session leaves behind.
type Record struct {
	ID       string
	DiscID   string
	Device   string
	State    State
	Expected int
	Produced int
	Error    string
	Started  time.Time
	Finished time.Time
}

// Recorder keeps Records of finished sessions.
type Recorder interface {
	Record(ctx context.Context, r Record) error
}

const defaultKillWait = 2 * time.Second

// Config for a Session
type Config struct {
	// ID of the session. Generated when empty.
	ID     string
	Album  metadata.Album
	Opener metadata.Opener
	Disc   metadata.DiscReader

	Launcher       process.Launcher
	RipperBinary   string
	EncoderBinary  string
	RipperOptions  string
	EncoderOptions string
	// LookupDevice is a comma separated device list; the first entry is used.
	LookupDevice string
	// WorkRoot is where working directories are created. Empty means os.TempDir.
	WorkRoot string

	Surface  ui.Surface
	Logger   logger.Logger
	Lock     LockFunc
	Recorder Recorder

	NewRipParser    func() parse.Parser
	NewEncodeParser func() parse.Parser
	// KillWait bounds how long Cancel waits for killed processes to exit.
	KillWait time.Duration
}

// Device returns the first entry of a comma separated device list.
func Device(lookup string) string {
	first, _, _ := strings.Cut(lookup, ",")
	return strings.TrimSpace(first)
}

// Snapshot is a copy of the externally visible session state.
type Snapshot struct {
	ID        string         `json:"id"`
	State     State          `json:"state"`
	Device    string         `json:"device"`
	DiscID    string         `json:"disc_id"`
	Workdir   string         `json:"workdir"`
	Error     string         `json:"error,omitempty"`
	Expected  int            `json:"expected"`
	Produced  int            `json:"produced"`
	Committed []string       `json:"committed,omitempty"`
	Rip       parse.Progress `json:"rip"`
	Jobs      []encode.Job   `json:"jobs"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Session rips one disc into one album. It is single use.
type Session struct {
	config   Config
	id       string
	logger   logger.Logger
	surface  ui.Surface
	box      *mailbox
	rip      *rip.Stage
	encode   *encode.Stage
	killWait time.Duration

	// owned by the coordination goroutine
	release func() error
	result  *encode.Result

	stop     context.CancelFunc
	stopCtx  context.Context
	finished chan struct{}

	mu        sync.RWMutex
	state     State
	started   bool
	running   bool
	closed    bool
	device    string
	discID    string
	workdir   string
	committed []string
	err       error
	jobs      []encode.Job
	createdAt time.Time
	updatedAt time.Time
}

// New creates an idle Session.
func New(config Config) (*Session, error) {
	if config.Album == nil {
		return nil, ErrNoAlbum
	}
	if config.Launcher == nil {
		return nil, fmt.Errorf("no process launcher")
	}
	if len(config.ID) == 0 {
		config.ID = shortuuid.New()
	}

	now := time.Now()
	s := &Session{
		config:    config,
		id:        config.ID,
		logger:    logger.WithPrefix(logger.OrNop(config.Logger), config.ID),
		surface:   ui.OrNop(config.Surface),
		box:       newMailbox(),
		killWait:  config.KillWait,
		finished:  make(chan struct{}),
		state:     StateIdle,
		device:    Device(config.LookupDevice),
		createdAt: now,
		updatedAt: now,
	}
	if s.killWait <= 0 {
		s.killWait = defaultKillWait
	}
	s.stopCtx, s.stop = context.WithCancel(context.Background())

	var ripParser parse.Parser
	if config.NewRipParser != nil {
		ripParser = config.NewRipParser()
	}
	s.rip = rip.New(rip.Config{
		Launcher: config.Launcher,
		Binary:   config.RipperBinary,
		Surface:  s.surface,
		Listener: ripListener{s},
		Logger:   s.logger,
		Post:     s.box.post,
		Parser:   ripParser,
	})
	s.encode = encode.New(encode.Config{
		Launcher:   config.Launcher,
		Binary:     config.EncoderBinary,
		Surface:    s.surface,
		Logger:     s.logger,
		Post:       s.box.post,
		Opener:     config.Opener,
		Album:      config.Album,
		OnComplete: s.encodeComplete,
		NewParser:  config.NewEncodeParser,
	})
	return s, nil
}

// ID of the session
func (s *Session) ID() string { return s.id }

// State of the session
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Done is closed when the session has reached a terminal state.
func (s *Session) Done() <-chan struct{} { return s.finished }

// Snapshot returns a copy of the session state. Safe from any goroutine.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Device:    s.device,
		DiscID:    s.discID,
		Workdir:   s.workdir,
		Jobs:      append([]encode.Job(nil), s.jobs...),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if s.err != nil {
		snap.Error = s.err.Error()
	}
	committed := s.committed
	s.mu.RUnlock()

	snap.Rip = s.rip.Progress()
	snap.Expected = len(snap.Jobs)
	for _, j := range snap.Jobs {
		if j.Produced {
			snap.Produced++
		}
	}
	if snap.State == StateDone {
		snap.Committed = append([]string(nil), committed...)
	}
	return snap
}

// Run starts the session and coordinates it until it reaches a terminal
// state. It returns nil when the files were committed.
func (s *Session) Run(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	return s.run(ctx)
}

// begin marks the session started. It fails on a session that ran before.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || s.closed {
		return ErrFinished
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.running = true
	return nil
}

func (s *Session) run(ctx context.Context) error {
	defer s.finish()

	if ctx == nil {
		ctx = context.Background()
	}
	setupCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCtx.Done():
			cancel()
		case <-setupCtx.Done():
		}
	}()

	s.transition(StateRipping)
	if err := s.setup(setupCtx); err != nil {
		if s.stopCtx.Err() != nil || ctx.Err() != nil {
			s.cancelActive()
		} else {
			s.fail(err)
		}
		return s.exitError()
	}

	for !s.State().Terminal() {
		select {
		case <-s.box.notify:
			for _, fn := range s.box.drain() {
				fn()
			}
			s.refresh()
		case <-ctx.Done():
			s.logger.Info("context done: %v", ctx.Err())
			s.cancelActive()
		}
	}
	return s.exitError()
}

// setup takes the drive, reads the disc and starts the ripper.
func (s *Session) setup(ctx context.Context) error {
	if s.config.Lock != nil && s.device != "" {
		release, err := s.config.Lock(ctx, s.device)
		if err != nil {
			return fmt.Errorf("lock %s: %w", s.device, err)
		}
		s.release = release
	}

	if s.config.Disc != nil {
		discID, err := s.config.Disc.ReadDiscID(ctx, s.device)
		if err != nil {
			return fmt.Errorf("read disc id from %s: %w", s.device, err)
		}
		s.mu.Lock()
		s.discID = discID
		s.mu.Unlock()
		s.logger.Info("disc id %s on %s", discID, s.device)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir, err := s.newWorkdir()
	if err != nil {
		return err
	}
	s.logger.Debug("using work dir %s", dir)

	if err := s.rip.Start(s.device, s.config.RipperOptions, dir); err != nil {
		// RipFailed is already on its way through the mailbox
		s.logger.Error("%v", err)
	}
	return nil
}

// exitError is what Run returns for the terminal state.
func (s *Session) exitError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case StateDone:
		return nil
	case StateCancelled:
		return ErrCancelled
	case StateAborted:
		if s.err != nil {
			return fmt.Errorf("%w: %v", ErrAborted, s.err)
		}
		return ErrAborted
	default:
		if s.err != nil {
			return s.err
		}
		return fmt.Errorf("session ended in state %s", s.state)
	}
}

// finish runs once the coordination loop is over.
func (s *Session) finish() {
	s.refresh()
	s.releaseLock()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.record()
	close(s.finished)
}

func (s *Session) releaseLock() {
	if s.release == nil {
		return
	}
	if err := s.release(); err != nil {
		s.logger.Error("release %s: %v", s.device, err)
	}
	s.release = nil
}

func (s *Session) record() {
	if s.config.Recorder == nil {
		return
	}
	snap := s.Snapshot()
	r := Record{
		ID:       s.id,
		DiscID:   snap.DiscID,
		Device:   snap.Device,
		State:    snap.State,
		Expected: snap.Expected,
		Produced: snap.Produced,
		Error:    snap.Error,
		Started:  snap.CreatedAt,
		Finished: time.Now(),
	}
	if s.result != nil {
		r.Expected = s.result.Expected
		r.Produced = len(s.result.Produced)
	}
	if err := s.config.Recorder.Record(context.Background(), r); err != nil {
		s.logger.Error("record history: %v", err)
	}
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("state %s -> %s", from, to)
	status := to.label()
	if to == StateError {
		if err := s.Err(); err != nil {
			status = fmt.Sprintf("Error: %v", err)
		}
	}
	s.surface.SetStatus(status)
}

// Err is the error that ended the session, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.setErr(err)
	s.surface.AppendRipOutput(fmt.Sprintf("Ripping/Encoding failed: %v\n", err))
	s.transition(StateError)
}

// refresh copies the encoder states for Snapshot.
func (s *Session) refresh() {
	jobs := s.encode.Jobs()
	s.mu.Lock()
	s.jobs = jobs
	s.mu.Unlock()
}

func (s *Session) newWorkdir() (string, error) {
	dir, err := os.MkdirTemp(s.config.WorkRoot, "cdripper-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	s.mu.Lock()
	s.workdir = dir
	s.mu.Unlock()
	return dir, nil
}

func (s *Session) currentWorkdir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workdir
}

// removeWorkdir deletes the working directory. Failures are only logged.
func (s *Session) removeWorkdir() {
	s.mu.Lock()
	dir := s.workdir
	s.workdir = ""
	s.mu.Unlock()
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Error("failed to remove work dir %s: %v", dir, err)
		return
	}
	s.logger.Debug("removed work dir %s", dir)
}

type ripListener struct{ s *Session }

func (l ripListener) RipSucceeded() {
	s := l.s
	if s.State() != StateRipping {
		return
	}
	s.transition(StateEncoding)
	s.mu.RLock()
	discID, dir := s.discID, s.workdir
	s.mu.RUnlock()
	if err := s.encode.Start(s.config.Album.Tracks(), s.config.EncoderOptions, dir, discID); err != nil {
		s.logger.Error("start encoding: %v", err)
	}
}

func (l ripListener) RipFailed(err error) {
	s := l.s
	if s.State() != StateRipping {
		return
	}
	// the working directory stays for diagnostics
	s.setErr(fmt.Errorf("%w: %v", ErrRipFailed, err))
	s.transition(StateError)
}

func (s *Session) encodeComplete(r encode.Result) {
	if s.State() != StateEncoding {
		return
	}
	s.result = &r
	s.refresh()

	if r.Committed {
		if r.Err != nil {
			s.logger.Error("committed with error: %v", r.Err)
		}
		// the committed directory now belongs to the metadata layer
		s.mu.Lock()
		s.workdir = ""
		s.committed = r.Paths
		s.mu.Unlock()
		s.transition(StateDone)
		s.surface.SetFinishedEnabled(true)
	} else {
		s.setErr(r.Err)
		s.removeWorkdir()
		s.transition(StateAborted)
	}

	if _, err := s.newWorkdir(); err != nil {
		s.logger.Error("%v", err)
	}
}

// Cancel stops the session. An active session has every process killed, its
// working directory removed and ends cancelled; Cancel returns once that is
// done. On a finished session only the cleanup happens.
func (s *Session) Cancel() {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()

	if running {
		s.stop()
		s.box.post(s.cancelActive)
		<-s.finished
		return
	}

	s.mu.Lock()
	state := s.state
	if state == StateIdle {
		// never ran: no coordination goroutine, no processes
		s.state = StateCancelled
		s.updatedAt = time.Now()
		s.started = true
	}
	s.mu.Unlock()

	s.removeWorkdir()
	if state == StateIdle {
		s.logger.Info("state %s -> %s", state, StateCancelled)
		s.surface.SetStatus(StateCancelled.label())
		s.record()
		close(s.finished)
	}
}

// cancelActive runs on the coordination goroutine.
func (s *Session) cancelActive() {
	if !s.State().Active() {
		s.removeWorkdir()
		return
	}

	var handles []process.Handle
	if s.rip.Running() {
		if h := s.rip.Handle(); h != nil {
			handles = append(handles, h)
		}
	}
	handles = append(handles, s.encode.Outstanding()...)

	if err := s.rip.Kill(); err != nil {
		s.logger.Error("kill ripper: %v", err)
	}
	if err := s.encode.Kill(); err != nil {
		s.logger.Error("kill encoders: %v", err)
	}
	s.logger.Info("cancelling, killed %d processes", len(handles))

	deadline := time.NewTimer(s.killWait)
	defer deadline.Stop()
wait:
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-deadline.C:
			s.logger.Error("processes still running after %s", s.killWait)
			break wait
		}
	}

	s.removeWorkdir()
	s.setErr(ErrCancelled)
	s.transition(StateCancelled)
}

// Close ends the session: an active session is cancelled first, the working
// directory is removed unless the session failed, and the drive is released.
// The mailbox is closed so late process callbacks are dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	running := s.running
	s.mu.Unlock()

	if running {
		s.Cancel()
	}
	if s.State() != StateError {
		s.removeWorkdir()
	}
	s.box.close()
	return nil
}

// Album the session rips into
func (s *Session) Album() metadata.Album { return s.config.Album }

// Tracks lists the album tracks that are known under the session's disc.
func (s *Session) Tracks() []metadata.Track {
	s.mu.RLock()
	discID := s.discID
	s.mu.RUnlock()
	return metadata.EligibleTracks(s.config.Album.Tracks(), discID)
}
