// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/cdripper/internal/album"
	"github.com/ZSC714725/cdripper/internal/logger"
	"github.com/ZSC714725/cdripper/internal/session"
	"github.com/ZSC714725/cdripper/internal/tools"
)

// Versioner reports the versions of the external programs.
type Versioner interface {
	Versions() tools.Versions
	ReloadVersions() error
}

// History lists finished sessions.
type History interface {
	List(ctx context.Context, limit int) ([]session.Record, error)
}

// Config for a Handler. Tools and History may be nil.
type Config struct {
	Store   session.Store
	Tools   Versioner
	History History
	// Album configures albums created from manifests.
	Album  album.Config
	Logger logger.Logger
}

// Handler holds dependencies
type Handler struct {
	config Config
	logger logger.Logger
}

// NewHandler creates API handler
func NewHandler(config Config) *Handler {
	return &Handler{config: config, logger: logger.OrNop(config.Logger)}
}

// Register adds the API routes to r.
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	{
		v1.GET("/tools", h.Tools)
		v1.POST("/tools/reload", h.ReloadTools)
		v1.GET("/history", h.History)

		v1.GET("/session", h.ListSessions)
		v1.POST("/session", h.AddSession)
		v1.GET("/session/:id", h.GetSession)
		v1.DELETE("/session/:id", h.DeleteSession)
		v1.GET("/session/:id/state", h.GetState)
		v1.GET("/session/:id/panes", h.GetPanes)
		v1.PUT("/session/:id/command", h.Command)
	}
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// AddSession POST /api/v1/session
func (h *Handler) AddSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	m, err := h.manifest(&req)
	if err != nil {
		errResp(c, http.StatusBadRequest, "Invalid album", err.Error())
		return
	}

	e, err := h.config.Store.Add(album.New(m, h.config.Album), session.Options{
		ID:             req.ID,
		Reference:      req.Reference,
		RipperOptions:  req.RipperOptions,
		EncoderOptions: req.EncoderOptions,
		Autostart:      req.Autostart,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionExists):
			errResp(c, http.StatusConflict, "Session exists", err.Error())
		case errors.Is(err, session.ErrInvalidOptions):
			errResp(c, http.StatusBadRequest, "Invalid options", err.Error())
		default:
			errResp(c, http.StatusBadRequest, "Invalid config", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, entryToSession(e, ""))
}

func (h *Handler) manifest(req *SessionRequest) (album.Manifest, error) {
	hasPath, hasInline := len(req.ManifestPath) != 0, len(strings.TrimSpace(req.Manifest)) != 0
	switch {
	case hasPath && hasInline:
		return album.Manifest{}, errors.New("give either manifest_path or manifest, not both")
	case hasPath:
		return album.LoadManifest(req.ManifestPath)
	case hasInline:
		return album.ParseManifest(strings.NewReader(req.Manifest))
	}
	return album.Manifest{}, errors.New("manifest_path or manifest is required")
}

// ListSessions GET /api/v1/session
func (h *Handler) ListSessions(c *gin.Context) {
	filter := c.DefaultQuery("filter", "")
	reference := c.DefaultQuery("reference", "")

	entries := h.config.Store.List(reference)
	out := make([]Session, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToSession(e, filter))
	}
	c.JSON(http.StatusOK, out)
}

// GetSession GET /api/v1/session/:id
func (h *Handler) GetSession(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, entryToSession(e, c.DefaultQuery("filter", "")))
}

// DeleteSession DELETE /api/v1/session/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.config.Store.Delete(c.Param("id")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown session ID", err.Error())
			return
		}
		errResp(c, http.StatusInternalServerError, "Delete failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, "OK")
}

// GetState GET /api/v1/session/:id/state
func (h *Handler) GetState(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snapshotToState(e.Snapshot()))
}

// GetPanes GET /api/v1/session/:id/panes
func (h *Handler) GetPanes(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, panesToAPI(e))
}

// Command PUT /api/v1/session/:id/command
func (h *Handler) Command(c *gin.Context) {
	id := c.Param("id")

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	var err error
	switch req.Command {
	case "start":
		err = h.config.Store.Start(id)
	case "cancel":
		err = h.config.Store.Cancel(id)
	default:
		errResp(c, http.StatusBadRequest, "Unknown command", "Known: start, cancel")
		return
	}

	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			errResp(c, http.StatusNotFound, "Unknown session ID", err.Error())
			return
		}
		errResp(c, http.StatusConflict, "Command failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, "OK")
}

// Tools GET /api/v1/tools
func (h *Handler) Tools(c *gin.Context) {
	if h.config.Tools == nil {
		errResp(c, http.StatusServiceUnavailable, "Tools unavailable", "")
		return
	}
	c.JSON(http.StatusOK, toolsToAPI(h.config.Tools.Versions()))
}

// ReloadTools POST /api/v1/tools/reload
func (h *Handler) ReloadTools(c *gin.Context) {
	if h.config.Tools == nil {
		errResp(c, http.StatusServiceUnavailable, "Tools unavailable", "")
		return
	}
	if err := h.config.Tools.ReloadVersions(); err != nil {
		errResp(c, http.StatusInternalServerError, "Reload failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, toolsToAPI(h.config.Tools.Versions()))
}

// History GET /api/v1/history
func (h *Handler) History(c *gin.Context) {
	if h.config.History == nil {
		errResp(c, http.StatusServiceUnavailable, "History unavailable", "")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		errResp(c, http.StatusBadRequest, "Invalid limit", c.Query("limit"))
		return
	}

	records, err := h.config.History.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list history: %v", err)
		errResp(c, http.StatusInternalServerError, "History failed", err.Error())
		return
	}
	out := make([]HistoryRecord, 0, len(records))
	for _, r := range records {
		out = append(out, HistoryRecord{
			ID:         r.ID,
			DiscID:     r.DiscID,
			Device:     r.Device,
			State:      string(r.State),
			Expected:   r.Expected,
			Produced:   r.Produced,
			Error:      r.Error,
			StartedAt:  r.Started.Unix(),
			FinishedAt: r.Finished.Unix(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) entry(c *gin.Context) (*session.Entry, bool) {
	e, err := h.config.Store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown session ID", err.Error())
		return nil, false
	}
	return e, true
}

func entryToSession(e *session.Entry, filter string) Session {
	s := Session{ID: e.ID(), Reference: e.Reference}

	includeAll := filter == ""
	if includeAll || strings.Contains(filter, "album") {
		s.Album = albumToAPI(e.Session)
	}
	if includeAll || strings.Contains(filter, "state") {
		state := snapshotToState(e.Snapshot())
		s.State = &state
	}
	if includeAll || strings.Contains(filter, "panes") {
		panes := panesToAPI(e)
		s.Panes = &panes
	}
	return s
}

func albumToAPI(sess *session.Session) *Album {
	out := &Album{Tracks: []Track{}}
	if a, ok := sess.Album().(*album.Album); ok {
		m := a.Manifest()
		out.Artist, out.Title, out.Dir = m.Artist, m.Title, a.Dir()
	}
	for _, t := range sess.Album().Tracks() {
		out.Tracks = append(out.Tracks, Track{Number: t.Ordinal(), Title: t.Title(), DiscIDs: t.DiscIDs()})
	}
	return out
}

func snapshotToState(snap session.Snapshot) SessionState {
	state := SessionState{
		State:     string(snap.State),
		Device:    snap.Device,
		DiscID:    snap.DiscID,
		Workdir:   snap.Workdir,
		Error:     snap.Error,
		Expected:  snap.Expected,
		Produced:  snap.Produced,
		Committed: snap.Committed,
		Rip:       snap.Rip,
		Jobs:      snap.Jobs,
		CreatedAt: snap.CreatedAt.Unix(),
		UpdatedAt: snap.UpdatedAt.Unix(),
	}
	if state.Committed == nil {
		state.Committed = []string{}
	}
	return state
}

func panesToAPI(e *session.Entry) Panes {
	p := e.Panes.State()
	return Panes{Rip: p.Rip, Encode: p.Encode, Status: p.Status, Finished: p.Finished}
}
