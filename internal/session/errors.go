// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package session

import "errors"

var (
	ErrNotFound       = errors.New("session not found")
	ErrSessionExists  = errors.New("session already exists")
	ErrInvalidOptions = errors.New("invalid tool options")
	ErrNoAlbum        = errors.New("no album given")
	ErrAlreadyStarted = errors.New("session already started")
	ErrFinished       = errors.New("session already finished")
	ErrCancelled      = errors.New("session cancelled")
	ErrAborted        = errors.New("ripping/encoding was aborted")
	ErrRipFailed      = errors.New("ripping failed")
)
