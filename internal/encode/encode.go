// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package encode

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ZSC714725/cdripper/internal/logger"
	"github.com/ZSC714725/cdripper/internal/metadata"
	"github.com/ZSC714725/cdripper/internal/process"
	"github.com/ZSC714725/cdripper/internal/tools/parse"
	"github.com/ZSC714725/cdripper/internal/ui"
)

var (
	// ErrAlreadyRunning is returned by Start while a batch is outstanding.
	ErrAlreadyRunning = errors.New("encode batch already running")
	// ErrNoTracks means no track of the album is on the disc.
	ErrNoTracks = errors.New("no track matches the disc")
	// ErrIncomplete means fewer files were produced than expected.
	ErrIncomplete = errors.New("not every track was encoded")
)

// Pair is an encoded file and the track it belongs to.
type Pair struct {
	Output string
	Track  metadata.Track
}

// Result of a batch, reported once all its encoders have finished.
type Result struct {
	DiscID   string
	Expected int
	// Produced holds the pairs whose encoder exited normally, in track order.
	Produced  []Pair
	Committed bool
	// Paths of the committed files as the album reports them after its reload.
	Paths []string
	// Err is why the batch was aborted, or a reload error after a commit.
	Err error
}

// Job is the state of one track's encoder.
type Job struct {
	Ordinal  int     `json:"ordinal"`
	Title    string  `json:"title"`
	Input    string  `json:"input"`
	Output   string  `json:"output"`
	State    string  `json:"state"`
	Percent  float64 `json:"percent"`
	Produced bool    `json:"produced"`
}

// Config for a Stage
type Config struct {
	Launcher process.Launcher
	// Binary of the encoder, e.g. "flac".
	Binary  string
	Surface ui.Surface
	Logger  logger.Logger
	// Post runs a callback on the owner's coordination goroutine. nil runs it in place.
	Post   func(func())
	Opener metadata.Opener
	Album  metadata.Album
	// OnComplete is called exactly once per batch.
	OnComplete func(Result)
	// NewParser returns a progress parser per encoder. Optional.
	NewParser func() parse.Parser
}

type job struct {
	track    metadata.Track
	input    string
	output   string
	handle   process.Handle
	parser   parse.Parser
	spawned  bool
	finished bool
	produced bool
}

// Stage runs one encoder per eligible track and commits the results all at once.
// Apart from construction, its methods must be called from the goroutine Post delivers to.
type Stage struct {
	launcher   process.Launcher
	binary     string
	surface    ui.Surface
	logger     logger.Logger
	post       func(func())
	opener     metadata.Opener
	album      metadata.Album
	onComplete func(Result)
	newParser  func() parse.Parser

	discID      string
	jobs        []*job
	outstanding int
	expected    int
	launching   bool
	active      bool
	completed   bool
}

// New creates a Stage.
func New(config Config) *Stage {
	s := &Stage{
		launcher:   config.Launcher,
		binary:     config.Binary,
		surface:    ui.OrNop(config.Surface),
		logger:     logger.OrNop(config.Logger),
		post:       config.Post,
		opener:     config.Opener,
		album:      config.Album,
		onComplete: config.OnComplete,
		newParser:  config.NewParser,
	}
	if s.binary == "" {
		s.binary = "flac"
	}
	if s.post == nil {
		s.post = func(fn func()) { fn() }
	}
	if s.newParser == nil {
		s.newParser = func() parse.Parser {
			return parse.New(parse.Config{LogLines: 20, Kind: parse.KindEncoder})
		}
	}
	return s
}

// Args builds the encoder argv for one track.
func Args(options, output, input string) []string {
	return append(strings.Fields(options), "-o", output, input)
}

// Start launches an encoder for every track known under discID. Tracks from
// other discs are skipped. If nothing could be launched the batch completes
// before Start returns.
func (s *Stage) Start(tracks []metadata.Track, options, workdir, discID string) error {
	if s.active {
		return ErrAlreadyRunning
	}

	s.discID = discID
	s.jobs = nil
	s.outstanding = 0
	s.expected = 0
	s.completed = false
	s.active = true

	s.surface.AppendEncodeOutput("Encoding CD...\n")

	s.launching = true
	for _, track := range tracks {
		if !track.HasDiscID(discID) {
			s.logger.Debug("discid %s not found in %v", discID, track.DiscIDs())
			s.surface.AppendEncodeOutput(fmt.Sprintf("Skipping track %s %q: not on this disc\n", PadOrdinal(track.Ordinal()), track.Title()))
			continue
		}
		s.expected++

		j := &job{
			track:  track,
			input:  filepath.Join(workdir, InputName(track.Ordinal())),
			output: filepath.Join(workdir, OutputName(track.Ordinal(), track.Title())),
			parser: s.newParser(),
		}
		s.jobs = append(s.jobs, j)
		s.launch(j, options, workdir)
	}
	s.launching = false

	s.logger.Info("encoding %d of %d tracks (%d running)", s.expected, len(tracks), s.outstanding)
	if s.outstanding == 0 {
		s.complete()
	}
	return nil
}

func (s *Stage) launch(j *job, options, workdir string) {
	cmd := process.Command{
		Binary: s.binary,
		Args:   Args(options, j.output, j.input),
		Dir:    workdir,
	}
	obs := process.Funcs{
		Output:   func(chunk string) { s.onOutput(j, chunk) },
		Finished: func(status process.ExitStatus) { s.onFinished(j, status) },
		Error:    func(kind process.ErrorKind, err error) { s.onError(j, kind, err) },
	}

	// counted before the launch so an early exit can't bring the counter to zero mid-loop
	s.outstanding++
	h, err := s.launcher.Start(cmd, process.Serialize(s.post, obs))
	if err != nil {
		s.outstanding--
		s.logger.Error("encode %s: %v", filepath.Base(j.output), err)
		return
	}
	j.handle = h
	j.spawned = true
	s.logger.Debug("encoding %q: %s", j.track.Title(), cmd)
}

func (s *Stage) onOutput(j *job, chunk string) {
	s.surface.AppendEncodeOutput(chunk)
	j.parser.Feed(chunk)
}

func (s *Stage) onError(j *job, kind process.ErrorKind, err error) {
	s.logger.Error("encoder for track %d: %s: %v", j.track.Ordinal(), kind, err)
	s.surface.AppendEncodeOutput(fmt.Sprintf("Ripping/Encoding failed: %v\n", err))
}

func (s *Stage) onFinished(j *job, status process.ExitStatus) {
	if j.finished || s.completed {
		return
	}
	j.finished = true
	j.produced = status == process.ExitNormal
	s.outstanding--
	s.logger.Debug("encoder for track %d finished: %s (%d outstanding)", j.track.Ordinal(), status, s.outstanding)

	if s.outstanding == 0 && !s.launching {
		s.complete()
	}
}

// complete commits or aborts the batch. It runs once per batch.
func (s *Stage) complete() {
	if s.completed {
		return
	}
	s.completed = true
	s.active = false

	r := Result{DiscID: s.discID, Expected: s.expected}
	for _, j := range s.jobs {
		if j.produced {
			r.Produced = append(r.Produced, Pair{Output: j.output, Track: j.track})
		}
	}

	switch {
	case r.Expected == 0:
		r.Err = ErrNoTracks
	case len(r.Produced) != r.Expected:
		r.Err = fmt.Errorf("%w: %d of %d", ErrIncomplete, len(r.Produced), r.Expected)
	default:
		r.Paths, r.Err = s.commit(r.Produced)
		r.Committed = r.Err == nil || !errors.Is(r.Err, errOpen)
	}

	if r.Committed {
		s.logger.Info("encoding successful: %d files committed", len(r.Produced))
		s.surface.AppendEncodeOutput("Encoding successful!\n")
	} else {
		s.logger.Debug("Ripping/encoding was aborted: %v", r.Err)
		s.surface.AppendEncodeOutput("Ripping/encoding was aborted.\n")
	}

	if s.onComplete != nil {
		s.onComplete(r)
	}
}

var errOpen = errors.New("open encoded file")

// commit opens every produced file before attaching any of them, so a file
// that can't be opened leaves the album untouched.
func (s *Stage) commit(pairs []Pair) ([]string, error) {
	if s.opener == nil {
		return nil, fmt.Errorf("%w: no opener", errOpen)
	}

	files := make([]metadata.File, 0, len(pairs))
	for _, p := range pairs {
		f, err := s.opener(p.Output)
		if err != nil {
			return nil, fmt.Errorf("%w %s: %v", errOpen, p.Output, err)
		}
		files = append(files, f)
	}

	for i, p := range pairs {
		p.Track.AddFile(files[i])
		if err := files[i].Load(); err != nil {
			s.logger.Error("load %s: %v", files[i].Path(), err)
		}
	}

	var reloadErr error
	if s.album != nil {
		if err := s.album.Reload(); err != nil {
			s.logger.Error("reload album: %v", err)
			reloadErr = fmt.Errorf("reload album: %w", err)
		}
	}

	// the reload may have moved the files
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path()
	}
	return paths, reloadErr
}

// Kill force-terminates every outstanding encoder. A killed batch never completes.
func (s *Stage) Kill() error {
	handles := s.Outstanding()
	if s.active {
		s.completed = true
		s.active = false
	}

	var errs []error
	for _, h := range handles {
		if err := h.Kill(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Outstanding returns the handles of encoders that have not finished yet.
func (s *Stage) Outstanding() []process.Handle {
	var out []process.Handle
	for _, j := range s.jobs {
		if j.spawned && !j.finished {
			out = append(out, j.handle)
		}
	}
	return out
}

// Active reports whether a batch is running.
func (s *Stage) Active() bool { return s.active }

// Jobs reports the encoders of the current batch, in track order.
func (s *Stage) Jobs() []Job {
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		state := "running"
		switch {
		case !j.spawned:
			state = "failed"
		case j.finished && j.produced:
			state = "done"
		case j.finished:
			state = "failed"
		}
		out = append(out, Job{
			Ordinal:  j.track.Ordinal(),
			Title:    j.track.Title(),
			Input:    j.input,
			Output:   j.output,
			State:    state,
			Percent:  j.parser.Progress().Percent,
			Produced: j.produced,
		})
	}
	return out
}
