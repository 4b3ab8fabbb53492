// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package ui

// Surface is what a session shows to the user: two output panes, a status
// label and the control that lets the user close a finished session.
// Methods are called from the session's coordination goroutine only.
type Surface interface {
	AppendRipOutput(text string)
	AppendEncodeOutput(text string)
	SetStatus(text string)
	SetFinishedEnabled(enabled bool)
}

// Multi fans every call out to all surfaces, in order.
func Multi(surfaces ...Surface) Surface {
	var list []Surface
	for _, s := range surfaces {
		if s != nil {
			list = append(list, s)
		}
	}
	return multi(list)
}

type multi []Surface

func (m multi) AppendRipOutput(text string) {
	for _, s := range m {
		s.AppendRipOutput(text)
	}
}

func (m multi) AppendEncodeOutput(text string) {
	for _, s := range m {
		s.AppendEncodeOutput(text)
	}
}

func (m multi) SetStatus(text string) {
	for _, s := range m {
		s.SetStatus(text)
	}
}

func (m multi) SetFinishedEnabled(enabled bool) {
	for _, s := range m {
		s.SetFinishedEnabled(enabled)
	}
}

type nop struct{}

// Nop returns a Surface that discards everything.
func Nop() Surface { return nop{} }

func (nop) AppendRipOutput(string)    {}
func (nop) AppendEncodeOutput(string) {}
func (nop) SetStatus(string)          {}
func (nop) SetFinishedEnabled(bool)   {}

// OrNop returns s, or Nop if s is nil.
func OrNop(s Surface) Surface {
	if s == nil {
		return Nop()
	}
	return s
}
