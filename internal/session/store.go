// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lithammer/shortuuid/v4"

	"github.com/ZSC714725/cdripper/internal/logger"
	"github.com/ZSC714725/cdripper/internal/metadata"
	"github.com/ZSC714725/cdripper/internal/ui"
)

// Options for a new session. Empty tool options fall back to the store defaults.
type Options struct {
	ID             string `json:"id"`
	Reference      string `json:"reference"`
	RipperOptions  string `json:"ripper_options"`
	EncoderOptions string `json:"encoder_options"`
	Autostart      bool   `json:"autostart"`
}

// Entry is a session kept by the Store together with its buffered panes.
type Entry struct {
	*Session
	Reference string
	Panes     *ui.Panes
}

// Store manages sessions in memory
type Store interface {
	Add(album metadata.Album, options Options) (*Entry, error)
	Get(id string) (*Entry, error)
	List(reference string) []*Entry
	Start(id string) error
	Cancel(id string) error
	Delete(id string) error
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Defaults is copied into every session; Album, ID and options are set per session.
	Defaults Config
	// ValidateRipperOptions and ValidateEncoderOptions reject unsupported tool options.
	ValidateRipperOptions  func(opts string) error
	ValidateEncoderOptions func(opts string) error
	Logger                 logger.Logger
}

type store struct {
	config   StoreConfig
	logger   logger.Logger
	sessions map[string]*Entry
	mu       sync.RWMutex
}

// NewStore creates a session store
func NewStore(config StoreConfig) Store {
	return &store{
		config:   config,
		logger:   logger.OrNop(config.Logger),
		sessions: make(map[string]*Entry),
	}
}

func (s *store) Add(album metadata.Album, options Options) (*Entry, error) {
	if album == nil {
		return nil, ErrNoAlbum
	}

	config := s.config.Defaults
	config.Album = album
	if len(options.RipperOptions) != 0 {
		config.RipperOptions = options.RipperOptions
	}
	if len(options.EncoderOptions) != 0 {
		config.EncoderOptions = options.EncoderOptions
	}

	if v := s.config.ValidateRipperOptions; v != nil {
		if err := v(config.RipperOptions); err != nil {
			return nil, fmt.Errorf("%w: ripper: %v", ErrInvalidOptions, err)
		}
	}
	if v := s.config.ValidateEncoderOptions; v != nil {
		if err := v(config.EncoderOptions); err != nil {
			return nil, fmt.Errorf("%w: encoder: %v", ErrInvalidOptions, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(options.ID) == 0 {
		options.ID = shortuuid.New()
	}
	if _, exists := s.sessions[options.ID]; exists {
		return nil, ErrSessionExists
	}

	panes := ui.NewPanes(0)
	config.ID = options.ID
	config.Surface = ui.Multi(config.Surface, panes)
	if config.Logger == nil {
		config.Logger = s.logger
	}

	sess, err := New(config)
	if err != nil {
		return nil, err
	}

	e := &Entry{Session: sess, Reference: options.Reference, Panes: panes}
	s.sessions[options.ID] = e
	s.logger.Info("session %s added", options.ID)

	if options.Autostart {
		if err := s.start(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (s *store) Get(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// List returns the sessions, oldest first, optionally filtered by reference.
func (s *store) List(reference string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for _, e := range s.sessions {
		if len(reference) > 0 && e.Reference != reference {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Snapshot().CreatedAt.Before(out[j].Snapshot().CreatedAt)
	})
	return out
}

func (s *store) Start(id string) error {
	e, err := s.Get(id)
	if err != nil {
		return err
	}
	return s.start(e)
}

func (s *store) start(e *Entry) error {
	if err := e.begin(); err != nil {
		return err
	}
	go func() {
		if err := e.run(context.Background()); err != nil {
			s.logger.Info("session %s ended: %v", e.ID(), err)
			return
		}
		s.logger.Info("session %s done", e.ID())
	}()
	return nil
}

func (s *store) Cancel(id string) error {
	e, err := s.Get(id)
	if err != nil {
		return err
	}
	e.Cancel()
	return nil
}

func (s *store) Delete(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	e.Cancel()
	return e.Close()
}
