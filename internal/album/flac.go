// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package album

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mewkiz/flac"

	"github.com/ZSC714725/cdripper/internal/metadata"
)

// ErrNotFLAC is returned for files that do not start with a FLAC stream header.
var ErrNotFLAC = errors.New("not a FLAC file")

// StreamInfo is the audio format of a FLAC file.
type StreamInfo struct {
	SampleRate    uint32        `json:"sample_rate"`
	Channels      uint8         `json:"channels"`
	BitsPerSample uint8         `json:"bits_per_sample"`
	TotalSamples  uint64        `json:"total_samples"`
	Duration      time.Duration `json:"duration"`
}

// File is an encoded FLAC file.
type File struct {
	lock   sync.RWMutex
	path   string
	info   StreamInfo
	loaded bool
}

// OpenFLAC is a metadata.Opener: it checks the stream header and returns the
// file unloaded.
func OpenFLAC(path string) (metadata.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if _, err := ReadStreamInfo(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{path: path}, nil
}

func (f *File) Path() string {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.path
}

func (f *File) setPath(path string) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.path = path
}

// Info returns the stream info read by Load.
func (f *File) Info() StreamInfo {
	f.lock.RLock()
	defer f.lock.RUnlock()
	return f.info
}

// Load parses every metadata block of the file and keeps its stream info.
func (f *File) Load() error {
	path := f.Path()
	stream, err := flac.ParseFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer stream.Close()

	info, err := streamInfo(stream)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	f.lock.Lock()
	f.info = info
	f.loaded = true
	f.lock.Unlock()
	return nil
}

// ReadStreamInfo reads the stream header and the STREAMINFO block from r.
// Audio frames are not decoded.
func ReadStreamInfo(r io.Reader) (StreamInfo, error) {
	stream, err := flac.New(r)
	if err != nil {
		return StreamInfo{}, fmt.Errorf("%w: %v", ErrNotFLAC, err)
	}
	return streamInfo(stream)
}

func streamInfo(stream *flac.Stream) (StreamInfo, error) {
	si := stream.Info
	if si == nil || si.SampleRate == 0 {
		return StreamInfo{}, fmt.Errorf("%w: no usable STREAMINFO", ErrNotFLAC)
	}
	return StreamInfo{
		SampleRate:    si.SampleRate,
		Channels:      si.NChannels,
		BitsPerSample: si.BitsPerSample,
		TotalSamples:  si.NSamples,
		Duration:      time.Duration(si.NSamples) * time.Second / time.Duration(si.SampleRate),
	}, nil
}
