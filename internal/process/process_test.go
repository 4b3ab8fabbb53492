// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package process

import (
	"bytes"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu       sync.Mutex
	events   []string
	output   strings.Builder
	errs     []ErrorKind
	finished chan ExitStatus
}

func newRecorder() *recorder {
	return &recorder{finished: make(chan ExitStatus, 1)}
}

func (r *recorder) OnStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "started")
}

func (r *recorder) OnOutput(chunk string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 || r.events[len(r.events)-1] != "output" {
		r.events = append(r.events, "output")
	}
	r.output.WriteString(chunk)
}

func (r *recorder) OnFinished(status ExitStatus) {
	r.mu.Lock()
	r.events = append(r.events, "finished")
	r.mu.Unlock()
	r.finished <- status
}

func (r *recorder) OnError(kind ErrorKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "error")
	r.errs = append(r.errs, kind)
}

func (r *recorder) wait(t *testing.T) ExitStatus {
	t.Helper()
	select {
	case s := <-r.finished:
		return s
	case <-time.After(10 * time.Second):
		t.Fatal("process did not finish")
		return 0
	}
}

func (r *recorder) snapshot() ([]string, string, []ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), r.output.String(), append([]ErrorKind(nil), r.errs...)
}

func newTestRunner() *Runner {
	return NewRunner(RunnerConfig{NewSampler: NewNullSampler})
}

func TestRunnerMergesOutputAndFinishesNormally(t *testing.T) {
	rec := newRecorder()
	h, err := newTestRunner().Start(Command{
		Binary: "/bin/sh",
		Args:   []string{"-c", "echo to-stdout; echo to-stderr 1>&2"},
		Dir:    t.TempDir(),
	}, rec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := rec.wait(t); got != ExitNormal {
		t.Fatalf("exit = %v, want %v", got, ExitNormal)
	}
	<-h.Done()

	events, output, errs := rec.snapshot()
	if events[0] != "started" || events[len(events)-1] != "finished" {
		t.Errorf("events = %v, want started ... finished", events)
	}
	if !strings.Contains(output, "to-stdout") || !strings.Contains(output, "to-stderr") {
		t.Errorf("output = %q, want both streams", output)
	}
	if len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
	st := h.Status()
	if st.State != "finished" || st.Exit != ExitNormal || st.ExitCode != 0 {
		t.Errorf("status = %+v", st)
	}
	if !strings.Contains(st.Output, "to-stdout") {
		t.Errorf("captured output = %q", st.Output)
	}
}

func TestRunnerUsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	rec := newRecorder()
	if _, err := newTestRunner().Start(Command{Binary: "/bin/sh", Args: []string{"-c", "pwd"}, Dir: dir}, rec); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rec.wait(t)

	_, output, _ := rec.snapshot()
	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(output))
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}
}

func TestRunnerNonZeroExitIsCrash(t *testing.T) {
	rec := newRecorder()
	h, err := newTestRunner().Start(Command{Binary: "/bin/sh", Args: []string{"-c", "exit 3"}, Dir: t.TempDir()}, rec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := rec.wait(t); got != ExitCrashed {
		t.Fatalf("exit = %v, want %v", got, ExitCrashed)
	}
	<-h.Done()

	events, _, errs := rec.snapshot()
	if len(errs) != 1 || errs[0] != Crashed {
		t.Errorf("errors = %v, want [crashed]", errs)
	}
	if events[len(events)-2] != "error" {
		t.Errorf("events = %v, want error before finished", events)
	}
	if st := h.Status(); st.ExitCode != 3 || st.State != "failed" {
		t.Errorf("status = %+v, want exit code 3 / failed", st)
	}
}

func TestRunnerSpawnFailure(t *testing.T) {
	rec := newRecorder()
	h, err := newTestRunner().Start(Command{Binary: "/nonexistent/cdparanoia", Dir: t.TempDir()}, rec)
	if err == nil {
		t.Fatal("expected spawn error")
	}
	if h != nil {
		t.Errorf("handle = %v, want nil", h)
	}
	events, _, errs := rec.snapshot()
	if len(errs) != 1 || errs[0] != SpawnFailure {
		t.Errorf("errors = %v, want [spawn failure]", errs)
	}
	for _, e := range events {
		if e == "finished" || e == "started" {
			t.Errorf("unexpected event %q after spawn failure", e)
		}
	}
}

func TestRunnerEmptyBinary(t *testing.T) {
	rec := newRecorder()
	if _, err := newTestRunner().Start(Command{}, rec); err == nil {
		t.Fatal("expected error for empty binary")
	}
	if _, _, errs := rec.snapshot(); len(errs) != 1 || errs[0] != SpawnFailure {
		t.Errorf("errors = %v", errs)
	}
}

func TestRunnerKill(t *testing.T) {
	rec := newRecorder()
	h, err := newTestRunner().Start(Command{Binary: "/bin/sh", Args: []string{"-c", "sleep 30"}, Dir: t.TempDir()}, rec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.Kill(); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if err := h.Kill(); err != nil {
		t.Fatalf("second Kill: %v", err)
	}
	if got := rec.wait(t); got != ExitKilled {
		t.Fatalf("exit = %v, want %v", got, ExitKilled)
	}
	<-h.Done()
	if err := h.Kill(); err != nil {
		t.Errorf("Kill after exit: %v", err)
	}
	if st := h.Status(); st.State != "killed" {
		t.Errorf("state = %q, want killed", st.State)
	}
}

func TestRunnerKillAfterNormalExit(t *testing.T) {
	rec := newRecorder()
	h, err := newTestRunner().Start(Command{Binary: "/bin/sh", Args: []string{"-c", "sleep 0.3; exit 0"}, Dir: t.TempDir()}, rec)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	// a Kill whose signal never reached the process
	h.(*process).killed.Store(true)

	if got := rec.wait(t); got != ExitNormal {
		t.Fatalf("exit = %v, want %v", got, ExitNormal)
	}
	<-h.Done()
	if st := h.Status(); st.State != "finished" {
		t.Errorf("state = %q, want finished", st.State)
	}
}

func TestKilledBySignal(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   bool
	}{
		{"sigkill", "kill -9 $$", true},
		{"sigterm", "kill -15 $$", false},
		{"exit code", "exit 3", false},
		{"success", "exit 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exec.Command("/bin/sh", "-c", tt.script).Run()
			if got := killedBySignal(err); got != tt.want {
				t.Errorf("killedBySignal(%v) = %v, want %v", err, got, tt.want)
			}
		})
	}
}

func TestSplitUTF8(t *testing.T) {
	euro := []byte("€") // 3 bytes
	tests := []struct {
		name         string
		in           []byte
		wantComplete []byte
		wantRest     []byte
	}{
		{"ascii", []byte("abc"), []byte("abc"), nil},
		{"complete rune", append([]byte("a"), euro...), append([]byte("a"), euro...), nil},
		{"split after one byte", append([]byte("a"), euro[:1]...), []byte("a"), euro[:1]},
		{"split after two bytes", append([]byte("a"), euro[:2]...), []byte("a"), euro[:2]},
		{"invalid byte passes", []byte{'a', 0xff}, []byte{'a', 0xff}, nil},
		{"empty", nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			complete, rest := splitUTF8(tt.in)
			if !bytes.Equal(complete, tt.wantComplete) || !bytes.Equal(rest, tt.wantRest) {
				t.Errorf("splitUTF8(%v) = %v, %v; want %v, %v", tt.in, complete, rest, tt.wantComplete, tt.wantRest)
			}
		})
	}
}

func TestSerializePreservesOrder(t *testing.T) {
	var queue []func()
	post := func(fn func()) { queue = append(queue, fn) }

	var got []string
	obs := Serialize(post, Funcs{
		Started:  func() { got = append(got, "started") },
		Output:   func(chunk string) { got = append(got, "output:"+chunk) },
		Error:    func(kind ErrorKind, err error) { got = append(got, "error:"+kind.String()) },
		Finished: func(status ExitStatus) { got = append(got, "finished:"+status.String()) },
	})

	obs.OnStarted()
	obs.OnOutput("x")
	obs.OnError(Crashed, errors.New("boom"))
	obs.OnFinished(ExitCrashed)

	if len(got) != 0 {
		t.Fatalf("callbacks ran before being posted: %v", got)
	}
	for _, fn := range queue {
		fn()
	}
	want := []string{"started", "output:x", "error:crashed", "finished:crashed"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
}
