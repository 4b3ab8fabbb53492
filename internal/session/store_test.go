// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ZSC714725/cdripper/internal/metadata"
	"github.com/ZSC714725/cdripper/internal/metadata/metadatatest"
	"github.com/ZSC714725/cdripper/internal/process"
	"github.com/ZSC714725/cdripper/internal/process/processtest"
	"github.com/ZSC714725/cdripper/internal/tools"
)

func newTestStore(t *testing.T) (Store, *processtest.Launcher) {
	t.Helper()
	launcher := processtest.NewLauncher()
	return NewStore(StoreConfig{
		Defaults: Config{
			Opener: (&metadatatest.Opener{}).Open,
			Disc: metadata.DiscReaderFunc(func(context.Context, string) (string, error) {
				return disc, nil
			}),
			Launcher:       launcher,
			RipperOptions:  "--batch 1:-",
			EncoderOptions: "--verify",
			LookupDevice:   "/dev/cdrom",
			WorkRoot:       t.TempDir(),
		},
		ValidateRipperOptions: func(opts string) error {
			return tools.ValidateOptions(tools.NewRipperValidator(), opts)
		},
		ValidateEncoderOptions: func(opts string) error {
			return tools.ValidateOptions(tools.NewEncoderValidator(), opts)
		},
	}), launcher
}

func TestStoreAddGetList(t *testing.T) {
	st, _ := newTestStore(t)

	a, err := st.Add(metadatatest.NewAlbum(tracks(2)...), Options{Reference: "shelf-1"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if a.ID() == "" || a.State() != StateIdle {
		t.Errorf("entry = %s %s", a.ID(), a.State())
	}
	b, err := st.Add(metadatatest.NewAlbum(tracks(1)...), Options{ID: "fixed"})
	if err != nil {
		t.Fatal(err)
	}
	if b.ID() != "fixed" {
		t.Errorf("id = %q", b.ID())
	}
	if _, err := st.Add(metadatatest.NewAlbum(), Options{ID: "fixed"}); !errors.Is(err, ErrSessionExists) {
		t.Errorf("duplicate Add = %v", err)
	}

	if got, err := st.Get(a.ID()); err != nil || got != a {
		t.Errorf("Get = %v, %v", got, err)
	}
	if _, err := st.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v", err)
	}
	if n := len(st.List("")); n != 2 {
		t.Errorf("List = %d entries", n)
	}
	if l := st.List("shelf-1"); len(l) != 1 || l[0] != a {
		t.Errorf("List(shelf-1) = %v", l)
	}
}

func TestStoreRejectsOptions(t *testing.T) {
	st, _ := newTestStore(t)
	album := metadatatest.NewAlbum(tracks(1)...)

	if _, err := st.Add(album, Options{EncoderOptions: "--verify -o x.flac"}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("encoder -o accepted: %v", err)
	}
	if _, err := st.Add(album, Options{RipperOptions: "--batch --stdout"}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("ripper --stdout accepted: %v", err)
	}
	if _, err := st.Add(nil, Options{}); !errors.Is(err, ErrNoAlbum) {
		t.Errorf("nil album = %v", err)
	}
}

func TestStoreStartCancelDelete(t *testing.T) {
	st, launcher := newTestStore(t)
	e, err := st.Add(metadatatest.NewAlbum(tracks(1)...), Options{EncoderOptions: "-8"})
	if err != nil {
		t.Fatal(err)
	}

	if err := st.Start(e.ID()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := st.Start(e.ID()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v", err)
	}

	r, err := launcher.Next(timeout)
	if err != nil {
		t.Fatal(err)
	}
	r.Started()
	r.Output("outputting to track01.cdda.wav\n")
	r.Exit(process.ExitNormal)

	enc, err := launcher.Next(timeout)
	if err != nil {
		t.Fatal(err)
	}
	if enc.Command().Args[0] != "-8" {
		t.Errorf("encoder options not applied: %v", enc.Command().Args)
	}

	if err := st.Cancel(e.ID()); err != nil {
		t.Fatal(err)
	}
	if e.State() != StateCancelled || !enc.Killed() {
		t.Errorf("state = %s killed = %v", e.State(), enc.Killed())
	}
	if p := e.Panes.State(); !strings.Contains(p.Rip, "CD ripping complete!") || p.Status != "Cancelled" {
		t.Errorf("panes = %+v", p)
	}

	if err := st.Delete(e.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Get(e.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v", err)
	}
	if err := st.Delete(e.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v", err)
	}
}
