// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具
//
// Package metadatatest provides in-memory metadata collaborators for tests.

package metadatatest

import (
	"fmt"
	"sync"

	"github.com/ZSC714725/cdripper/internal/metadata"
)

// Track is an in-memory metadata.Track.
type Track struct {
	N     int
	Name  string
	Discs []string

	lock  sync.Mutex
	files []metadata.File
}

// NewTrack creates a Track known under the given disc ids.
func NewTrack(n int, title string, discIDs ...string) *Track {
	return &Track{N: n, Name: title, Discs: discIDs}
}

func (t *Track) Ordinal() int      { return t.N }
func (t *Track) Title() string     { return t.Name }
func (t *Track) DiscIDs() []string { return t.Discs }

func (t *Track) HasDiscID(id string) bool {
	for _, d := range t.Discs {
		if d == id {
			return true
		}
	}
	return false
}

func (t *Track) AddFile(f metadata.File) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.files = append(t.files, f)
}

// Files returns the attached files.
func (t *Track) Files() []metadata.File {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]metadata.File(nil), t.files...)
}

// Album is an in-memory metadata.Album.
type Album struct {
	List      []*Track
	ReloadErr error

	lock    sync.Mutex
	reloads int
}

// NewAlbum creates an Album of the given tracks.
func NewAlbum(tracks ...*Track) *Album {
	return &Album{List: tracks}
}

func (a *Album) Tracks() []metadata.Track {
	out := make([]metadata.Track, len(a.List))
	for i, t := range a.List {
		out[i] = t
	}
	return out
}

func (a *Album) Reload() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.reloads++
	return a.ReloadErr
}

// Reloads returns how often Reload was called.
func (a *Album) Reloads() int {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.reloads
}

// Committed returns every file attached to any track of the album.
func (a *Album) Committed() []metadata.File {
	var out []metadata.File
	for _, t := range a.List {
		out = append(out, t.Files()...)
	}
	return out
}

// File is an in-memory metadata.File.
type File struct {
	P      string
	loaded bool
}

func (f *File) Path() string { return f.P }

func (f *File) Load() error {
	f.loaded = true
	return nil
}

// Loaded reports whether Load was called.
func (f *File) Loaded() bool { return f.loaded }

// Opener records every path it opens. Paths listed in Fail return an error.
type Opener struct {
	Fail map[string]bool

	lock   sync.Mutex
	opened []string
}

// Open implements metadata.Opener.
func (o *Opener) Open(path string) (metadata.File, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if o.Fail[path] {
		return nil, fmt.Errorf("cannot open %s", path)
	}
	o.opened = append(o.opened, path)
	return &File{P: path}, nil
}

// Opened returns the opened paths, in order.
func (o *Opener) Opened() []string {
	o.lock.Lock()
	defer o.lock.Unlock()
	return append([]string(nil), o.opened...)
}
