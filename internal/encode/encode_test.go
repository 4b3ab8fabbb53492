// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package encode

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ZSC714725/cdripper/internal/metadata/metadatatest"
	"github.com/ZSC714725/cdripper/internal/process"
	"github.com/ZSC714725/cdripper/internal/process/processtest"
	"github.com/ZSC714725/cdripper/internal/ui"
)

const disc = "disc-A"

type fixture struct {
	stage    *Stage
	launcher *processtest.Launcher
	album    *metadatatest.Album
	opener   *metadatatest.Opener
	panes    *ui.Panes
	results  []Result
	workdir  string
}

func newFixture(t *testing.T, tracks ...*metadatatest.Track) *fixture {
	t.Helper()
	f := &fixture{
		launcher: processtest.NewLauncher(),
		album:    metadatatest.NewAlbum(tracks...),
		opener:   &metadatatest.Opener{},
		panes:    ui.NewPanes(0),
		workdir:  t.TempDir(),
	}
	f.stage = New(Config{
		Launcher:   f.launcher,
		Binary:     "flac",
		Surface:    f.panes,
		Opener:     f.opener.Open,
		Album:      f.album,
		OnComplete: func(r Result) { f.results = append(f.results, r) },
	})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.stage.Start(f.album.Tracks(), "--verify --replay-gain", f.workdir, disc); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func matching(n int) []*metadatatest.Track {
	tracks := make([]*metadatatest.Track, n)
	for i := range tracks {
		tracks[i] = metadatatest.NewTrack(i+1, fmt.Sprintf("Song %d", i+1), disc)
	}
	return tracks
}

func TestNaming(t *testing.T) {
	if got := InputName(3); got != "track03.cdda.wav" {
		t.Errorf("InputName(3) = %q", got)
	}
	if got := OutputName(3, "Foo/Bar"); got != "03 FooBar.flac" {
		t.Errorf("OutputName(3, Foo/Bar) = %q", got)
	}
	if got := PadOrdinal(123); got != "123" {
		t.Errorf("PadOrdinal(123) = %q", got)
	}

	tests := map[string]string{
		`a:b*c?d"e<f>g|h\i`: "abcdefghi",
		"  ..hidden.. ":      "hidden",
		"tab\there":          "tabhere",
		"Cafe\u0301":         "Caf\u00e9",
		"01 AC/DC - T.N.T..": "01 ACDC - T.N.T",
		"ノルウェイの森":            "ノルウェイの森",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEncoderCommandLine(t *testing.T) {
	f := newFixture(t, metadatatest.NewTrack(3, "Foo/Bar", disc))
	f.start(t)

	h := f.launcher.Handles()[0]
	want := []string{
		"--verify", "--replay-gain",
		"-o", filepath.Join(f.workdir, "03 FooBar.flac"),
		filepath.Join(f.workdir, "track03.cdda.wav"),
	}
	if got := h.Command().Args; !reflect.DeepEqual(got, want) {
		t.Errorf("args = %q, want %q", got, want)
	}
	if h.Command().Binary != "flac" || h.Command().Dir != f.workdir {
		t.Errorf("command = %+v", h.Command())
	}
}

func TestCommitAllInAnyOrder(t *testing.T) {
	f := newFixture(t, matching(4)...)
	f.start(t)

	handles := f.launcher.Handles()
	if len(handles) != 4 {
		t.Fatalf("launched %d encoders, want 4", len(handles))
	}
	for _, i := range []int{2, 0, 3, 1} {
		handles[i].Exit(process.ExitNormal)
	}

	if len(f.results) != 1 {
		t.Fatalf("completed %d times, want 1", len(f.results))
	}
	r := f.results[0]
	if !r.Committed || r.Err != nil || r.Expected != 4 || len(r.Produced) != 4 {
		t.Fatalf("result = %+v", r)
	}
	for i, p := range r.Produced {
		if p.Track.Ordinal() != i+1 {
			t.Errorf("produced[%d] is track %d, want track order", i, p.Track.Ordinal())
		}
	}
	if len(r.Paths) != 4 || r.Paths[0] != r.Produced[0].Output {
		t.Errorf("paths = %v", r.Paths)
	}
	if n := len(f.album.Committed()); n != 4 {
		t.Errorf("committed %d files, want 4", n)
	}
	for _, file := range f.album.Committed() {
		if !file.(*metadatatest.File).Loaded() {
			t.Errorf("%s not loaded", file.Path())
		}
	}
	if f.album.Reloads() != 1 {
		t.Errorf("reloads = %d, want 1", f.album.Reloads())
	}
	if !strings.Contains(f.panes.State().Encode, "Encoding successful!") {
		t.Errorf("encode pane = %q", f.panes.State().Encode)
	}
}

func TestNonMatchingTracksExcluded(t *testing.T) {
	f := newFixture(t,
		metadatatest.NewTrack(1, "One", disc),
		metadatatest.NewTrack(2, "Two", "disc-B"),
		metadatatest.NewTrack(3, "Three", "disc-B", disc),
	)
	f.start(t)

	handles := f.launcher.Handles()
	if len(handles) != 2 {
		t.Fatalf("launched %d encoders, want 2", len(handles))
	}
	for _, h := range handles {
		h.Exit(process.ExitNormal)
	}

	r := f.results[0]
	if !r.Committed || r.Expected != 2 {
		t.Fatalf("result = %+v", r)
	}
	var got []int
	for _, p := range r.Produced {
		got = append(got, p.Track.Ordinal())
	}
	if !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("committed tracks = %v, want [1 3]", got)
	}
	if len(f.album.List[1].Files()) != 0 {
		t.Error("track from another disc got a file")
	}
	if !strings.Contains(f.panes.State().Encode, `Skipping track 02 "Two"`) {
		t.Errorf("encode pane = %q", f.panes.State().Encode)
	}
}

func TestCrashAbortsWithoutCommit(t *testing.T) {
	f := newFixture(t, matching(3)...)
	f.start(t)

	handles := f.launcher.Handles()
	handles[0].Exit(process.ExitNormal)
	handles[1].Exit(process.ExitCrashed)
	handles[2].Exit(process.ExitNormal)

	if len(f.results) != 1 {
		t.Fatalf("completed %d times", len(f.results))
	}
	r := f.results[0]
	if r.Committed || !errors.Is(r.Err, ErrIncomplete) || len(r.Produced) != 2 {
		t.Errorf("result = %+v", r)
	}
	if n := len(f.album.Committed()); n != 0 {
		t.Errorf("committed %d files, want 0", n)
	}
	if len(f.opener.Opened()) != 0 || f.album.Reloads() != 0 {
		t.Error("aborted batch touched the metadata layer")
	}
	if !strings.Contains(f.panes.State().Encode, "Ripping/encoding was aborted.") {
		t.Errorf("encode pane = %q", f.panes.State().Encode)
	}
}

func TestReverseCompletionCommitsOnce(t *testing.T) {
	f := newFixture(t, matching(12)...)
	f.start(t)

	handles := f.launcher.Handles()
	for i := len(handles) - 1; i >= 0; i-- {
		if len(f.results) != 0 {
			t.Fatalf("completed with %d encoders outstanding", i+1)
		}
		handles[i].Exit(process.ExitNormal)
	}
	// a duplicate report must not complete the batch again
	handles[0].Exit(process.ExitNormal)

	if len(f.results) != 1 || !f.results[0].Committed {
		t.Fatalf("results = %+v", f.results)
	}
	if n := len(f.album.Committed()); n != 12 {
		t.Errorf("committed %d files, want 12", n)
	}
	if f.album.Reloads() != 1 {
		t.Errorf("reloads = %d", f.album.Reloads())
	}
}

func TestSpawnFailureLeavesTrackAbsent(t *testing.T) {
	f := newFixture(t, matching(3)...)
	f.launcher.StartErr = func(cmd process.Command) error {
		if strings.HasSuffix(cmd.Args[len(cmd.Args)-1], "track02.cdda.wav") {
			return errors.New("exec: flac: not found")
		}
		return nil
	}
	f.start(t)

	handles := f.launcher.Handles()
	if len(handles) != 2 || len(f.launcher.Failed()) != 1 {
		t.Fatalf("started %d, failed %d", len(handles), len(f.launcher.Failed()))
	}
	for _, h := range handles {
		h.Exit(process.ExitNormal)
	}

	r := f.results[0]
	if r.Committed || r.Expected != 3 || len(r.Produced) != 2 {
		t.Errorf("result = %+v", r)
	}
	if !strings.Contains(f.panes.State().Encode, "not found") {
		t.Errorf("encode pane = %q", f.panes.State().Encode)
	}
}

func TestEverySpawnFailsCompletesImmediately(t *testing.T) {
	f := newFixture(t, matching(2)...)
	f.launcher.StartErr = func(process.Command) error { return errors.New("no flac") }
	f.start(t)

	if len(f.results) != 1 || f.results[0].Committed {
		t.Fatalf("results = %+v", f.results)
	}
	if f.stage.Active() {
		t.Error("stage still active")
	}
}

func TestNoEligibleTracks(t *testing.T) {
	f := newFixture(t, metadatatest.NewTrack(1, "One", "disc-B"))
	f.start(t)

	if len(f.results) != 1 {
		t.Fatalf("results = %+v", f.results)
	}
	if r := f.results[0]; r.Committed || !errors.Is(r.Err, ErrNoTracks) {
		t.Errorf("result = %+v", r)
	}
	if len(f.launcher.Handles()) != 0 {
		t.Error("launched an encoder for a track from another disc")
	}
}

func TestOpenFailureCommitsNothing(t *testing.T) {
	f := newFixture(t, matching(2)...)
	f.opener.Fail = map[string]bool{filepath.Join(f.workdir, "02 Song 2.flac"): true}
	f.start(t)
	for _, h := range f.launcher.Handles() {
		h.Exit(process.ExitNormal)
	}

	r := f.results[0]
	if r.Committed || r.Err == nil {
		t.Errorf("result = %+v", r)
	}
	if n := len(f.album.Committed()); n != 0 {
		t.Errorf("committed %d files, want 0", n)
	}
}

func TestKillOutstanding(t *testing.T) {
	f := newFixture(t, matching(3)...)
	f.start(t)

	handles := f.launcher.Handles()
	handles[0].Exit(process.ExitNormal)
	if n := len(f.stage.Outstanding()); n != 2 {
		t.Fatalf("outstanding = %d, want 2", n)
	}
	if err := f.stage.Kill(); err != nil {
		t.Fatal(err)
	}
	for _, h := range handles[1:] {
		<-h.Done()
		if !h.Killed() {
			t.Errorf("%s not killed", h.ID())
		}
	}
	if handles[0].Killed() {
		t.Error("finished encoder was killed")
	}
	if len(f.results) != 0 {
		t.Errorf("killed batch completed: %+v", f.results)
	}
	if f.stage.Active() {
		t.Error("stage still active after kill")
	}
}

func TestAlreadyRunning(t *testing.T) {
	f := newFixture(t, matching(1)...)
	f.start(t)
	if err := f.stage.Start(f.album.Tracks(), "", f.workdir, disc); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v", err)
	}
}

func TestJobs(t *testing.T) {
	f := newFixture(t, matching(2)...)
	f.start(t)

	handles := f.launcher.Handles()
	handles[0].Output("01 Song 1.flac: 55% complete, ratio=0.600\r")
	handles[1].Exit(process.ExitCrashed)

	jobs := f.stage.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("jobs = %+v", jobs)
	}
	if jobs[0].State != "running" || jobs[0].Percent != 55 {
		t.Errorf("job 1 = %+v", jobs[0])
	}
	if jobs[1].State != "failed" || jobs[1].Produced {
		t.Errorf("job 2 = %+v", jobs[1])
	}
}
