// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具
//
// Package metadata defines what the rip/encode core needs from the music
// metadata layer. The core never builds tracks or albums itself; it reads
// them, and hands produced files back exactly once per track.

package metadata

import "context"

// Track is one entry of an album's track listing.
type Track interface {
	// Ordinal is the 1-based position on the disc.
	Ordinal() int
	Title() string
	// HasDiscID reports whether discID is one of the fingerprints this track is known under.
	HasDiscID(discID string) bool
	DiscIDs() []string
	// AddFile attaches a produced file to the track.
	AddFile(f File)
}

// Album is the collection a session rips into.
type Album interface {
	Tracks() []Track
	// Reload refreshes the album after files have been attached.
	Reload() error
}

// File is an audio file known to the metadata layer.
type File interface {
	Path() string
	// Load reads the file's metadata.
	Load() error
}

// Opener turns a path on disk into a File.
type Opener func(path string) (File, error)

// DiscReader reads the fingerprint of the disc in a drive.
type DiscReader interface {
	ReadDiscID(ctx context.Context, device string) (string, error)
}

// DiscReaderFunc adapts a function to DiscReader.
type DiscReaderFunc func(ctx context.Context, device string) (string, error)

func (f DiscReaderFunc) ReadDiscID(ctx context.Context, device string) (string, error) {
	return f(ctx, device)
}

// EligibleTracks returns the tracks known under discID, in album order.
func EligibleTracks(tracks []Track, discID string) []Track {
	var out []Track
	for _, t := range tracks {
		if t.HasDiscID(discID) {
			out = append(out, t)
		}
	}
	return out
}
