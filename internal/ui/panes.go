// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package ui

import (
	"sync"
)

const defaultPaneBytes = 64 * 1024

// PaneState is a copy of the buffered panes.
type PaneState struct {
	Rip      string `json:"rip"`
	Encode   string `json:"encode"`
	Status   string `json:"status"`
	Finished bool   `json:"finished"`
}

// Panes keeps the most recent pane text in memory so it can be served later.
// It is safe for concurrent use.
type Panes struct {
	max int

	lock     sync.RWMutex
	rip      []byte
	encode   []byte
	status   string
	finished bool
}

// NewPanes creates Panes keeping at most maxBytes per pane. 0 means 64KiB.
func NewPanes(maxBytes int) *Panes {
	if maxBytes <= 0 {
		maxBytes = defaultPaneBytes
	}
	return &Panes{max: maxBytes}
}

func (p *Panes) AppendRipOutput(s string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.rip = p.appendTail(p.rip, s)
}

func (p *Panes) AppendEncodeOutput(s string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.encode = p.appendTail(p.encode, s)
}

func (p *Panes) SetStatus(s string) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.status = s
}

func (p *Panes) SetFinishedEnabled(enabled bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.finished = enabled
}

// State returns a copy of the panes.
func (p *Panes) State() PaneState {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return PaneState{
		Rip:      string(p.rip),
		Encode:   string(p.encode),
		Status:   p.status,
		Finished: p.finished,
	}
}

func (p *Panes) appendTail(buf []byte, s string) []byte {
	buf = append(buf, s...)
	if over := len(buf) - p.max; over > 0 {
		// don't cut a multi-byte rune in half
		for over < len(buf) && buf[over]&0xC0 == 0x80 {
			over++
		}
		buf = append([]byte(nil), buf[over:]...)
	}
	return buf
}
