// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package api

import (
	"github.com/ZSC714725/cdripper/internal/encode"
	"github.com/ZSC714725/cdripper/internal/tools/parse"
)

// SessionRequest for Add. Exactly one of ManifestPath and Manifest names the album.
type SessionRequest struct {
	ID             string `json:"id"`
	Reference      string `json:"reference"`
	ManifestPath   string `json:"manifest_path"`
	Manifest       string `json:"manifest"`
	RipperOptions  string `json:"ripper_options"`
	EncoderOptions string `json:"encoder_options"`
	Autostart      bool   `json:"autostart"`
}

// Session represents a session in API response
type Session struct {
	ID        string        `json:"id"`
	Reference string        `json:"reference"`
	Album     *Album        `json:"album,omitempty"`
	State     *SessionState `json:"state,omitempty"`
	Panes     *Panes        `json:"panes,omitempty"`
}

// Album the session rips into
type Album struct {
	Artist string  `json:"artist"`
	Title  string  `json:"title"`
	Dir    string  `json:"dir,omitempty"`
	Tracks []Track `json:"tracks"`
}

// Track of an album
type Track struct {
	Number  int      `json:"number"`
	Title   string   `json:"title"`
	DiscIDs []string `json:"disc_ids"`
}

// SessionState for API
type SessionState struct {
	State     string         `json:"exec"`
	Device    string         `json:"device"`
	DiscID    string         `json:"disc_id"`
	Workdir   string         `json:"workdir"`
	Error     string         `json:"error,omitempty"`
	Expected  int            `json:"expected"`
	Produced  int            `json:"produced"`
	Committed []string       `json:"committed"`
	Rip       parse.Progress `json:"rip"`
	Jobs      []encode.Job   `json:"jobs"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}

// Panes are the buffered UI panes of a session
type Panes struct {
	Rip      string `json:"rip"`
	Encode   string `json:"encode"`
	Status   string `json:"status"`
	Finished bool   `json:"finished"`
}

// CommandRequest for start/cancel
type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// ToolVersion of one external program
type ToolVersion struct {
	Name    string `json:"name"`
	Binary  string `json:"binary"`
	Version string `json:"version"`
	Banner  string `json:"banner,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolsResponse for API
type ToolsResponse struct {
	Ripper  ToolVersion `json:"ripper"`
	Encoder ToolVersion `json:"encoder"`
}

// HistoryRecord is one finished session
type HistoryRecord struct {
	ID         string `json:"id"`
	DiscID     string `json:"disc_id"`
	Device     string `json:"device"`
	State      string `json:"state"`
	Expected   int    `json:"expected"`
	Produced   int    `json:"produced"`
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
