// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package session

import "sync"

// mailbox is an unbounded FIFO of callbacks for the coordination goroutine.
// post never blocks, so a process reaper can't stall on a busy coordinator.
type mailbox struct {
	lock   sync.Mutex
	queue  []func()
	closed bool
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (m *mailbox) post(fn func()) {
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		return
	}
	m.queue = append(m.queue, fn)
	m.lock.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []func() {
	m.lock.Lock()
	defer m.lock.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

// close drops everything queued and ignores later posts.
func (m *mailbox) close() {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed = true
	m.queue = nil
}
