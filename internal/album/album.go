// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具
//
// Package album is a small file based metadata layer: an album is described by
// a YAML manifest, encoded files are FLAC and a reload moves committed files
// into the music library.

package album

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ZSC714725/cdripper/internal/encode"
	"github.com/ZSC714725/cdripper/internal/logger"
	"github.com/ZSC714725/cdripper/internal/metadata"
)

// ErrNoTracks is returned for a manifest without tracks.
var ErrNoTracks = errors.New("album has no tracks")

// Manifest is the YAML description of an album.
//
//	artist: Miles Davis
//	title: Kind of Blue
//	disc_ids: [tVu0Zw5XSd6Eh1ym8h.xp5KDHsc-]
//	tracks:
//	  - number: 1
//	    title: So What
type Manifest struct {
	Artist  string          `yaml:"artist" json:"artist"`
	Title   string          `yaml:"title" json:"title"`
	DiscIDs []string        `yaml:"disc_ids" json:"disc_ids"`
	Tracks  []ManifestTrack `yaml:"tracks" json:"tracks"`
}

// ManifestTrack is one track of a Manifest. DiscIDs default to the album's.
type ManifestTrack struct {
	Number  int      `yaml:"number" json:"number"`
	Title   string   `yaml:"title" json:"title"`
	DiscIDs []string `yaml:"disc_ids,omitempty" json:"disc_ids,omitempty"`
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode album manifest: %w", err)
	}
	if len(m.Tracks) == 0 {
		return Manifest{}, ErrNoTracks
	}
	for i, t := range m.Tracks {
		if t.Number <= 0 {
			return Manifest{}, fmt.Errorf("track %d: invalid number %d", i+1, t.Number)
		}
	}
	return m, nil
}

// LoadManifest reads a manifest file.
func LoadManifest(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()
	return ParseManifest(f)
}

// Config for an Album
type Config struct {
	// LibraryDir receives committed files on Reload. Empty leaves them where they are.
	LibraryDir string
	Logger     logger.Logger
}

// Album implements metadata.Album.
type Album struct {
	manifest Manifest
	library  string
	logger   logger.Logger
	tracks   []*Track
}

// New creates an Album from a manifest.
func New(m Manifest, config Config) *Album {
	a := &Album{
		manifest: m,
		library:  config.LibraryDir,
		logger:   logger.OrNop(config.Logger),
	}
	for _, mt := range m.Tracks {
		ids := mt.DiscIDs
		if len(ids) == 0 {
			ids = m.DiscIDs
		}
		a.tracks = append(a.tracks, &Track{
			number:  mt.Number,
			title:   mt.Title,
			discIDs: append([]string(nil), ids...),
		})
	}
	sort.SliceStable(a.tracks, func(i, j int) bool { return a.tracks[i].number < a.tracks[j].number })
	return a
}

// Manifest returns the album description.
func (a *Album) Manifest() Manifest { return a.manifest }

func (a *Album) Tracks() []metadata.Track {
	out := make([]metadata.Track, len(a.tracks))
	for i, t := range a.tracks {
		out[i] = t
	}
	return out
}

// Dir is where Reload puts the files: <library>/<artist>/<title>.
func (a *Album) Dir() string {
	if a.library == "" {
		return ""
	}
	artist := encode.SanitizeFilename(a.manifest.Artist)
	if artist == "" {
		artist = "Unknown Artist"
	}
	title := encode.SanitizeFilename(a.manifest.Title)
	if title == "" {
		title = "Unknown Album"
	}
	return filepath.Join(a.library, artist, title)
}

// Reload moves every attached FLAC file into the library directory.
func (a *Album) Reload() error {
	dir := a.Dir()
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	var errs []error
	for _, t := range a.tracks {
		for _, f := range t.Files() {
			ff, ok := f.(*File)
			if !ok {
				continue
			}
			src := ff.Path()
			dst := filepath.Join(dir, filepath.Base(src))
			if src == dst {
				continue
			}
			if err := moveFile(src, dst); err != nil {
				errs = append(errs, err)
				continue
			}
			ff.setPath(dst)
			a.logger.Info("moved %s to %s", filepath.Base(src), dir)
		}
	}
	return errors.Join(errs...)
}

// moveFile renames src to dst, copying when they are on different file systems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

// Track implements metadata.Track.
type Track struct {
	number  int
	title   string
	discIDs []string

	lock  sync.Mutex
	files []metadata.File
}

func (t *Track) Ordinal() int      { return t.number }
func (t *Track) Title() string     { return t.title }
func (t *Track) DiscIDs() []string { return append([]string(nil), t.discIDs...) }

func (t *Track) HasDiscID(discID string) bool {
	discID = strings.TrimSpace(discID)
	for _, id := range t.discIDs {
		if id == discID {
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

// Files returns the files attached to the track.
func (t *Track) Files() []metadata.File {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]metadata.File(nil), t.files...)
}
