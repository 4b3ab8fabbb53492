// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package process

// Serialize returns an Observer that hands every callback to post instead of
// running it on the caller's goroutine. post must preserve order.
func Serialize(post func(func()), obs Observer) Observer {
	return &serialized{post: post, obs: obs}
}

type serialized struct {
	post func(func())
	obs  Observer
}

func (s *serialized) OnStarted() {
	s.post(s.obs.OnStarted)
}

func (s *serialized) OnOutput(chunk string) {
	s.post(func() { s.obs.OnOutput(chunk) })
}

func (s *serialized) OnFinished(status ExitStatus) {
	s.post(func() { s.obs.OnFinished(status) })
}

func (s *serialized) OnError(kind ErrorKind, err error) {
	s.post(func() { s.obs.OnError(kind, err) })
}

// Funcs adapts plain functions to an Observer. Nil fields are skipped.
type Funcs struct {
	Started  func()
	Output   func(chunk string)
	Finished func(status ExitStatus)
	Error    func(kind ErrorKind, err error)
}

func (f Funcs) OnStarted() {
	if f.Started != nil {
		f.Started()
	}
}

func (f Funcs) OnOutput(chunk string) {
	if f.Output != nil {
		f.Output(chunk)
	}
}

func (f Funcs) OnFinished(status ExitStatus) {
	if f.Finished != nil {
		f.Finished(status)
	}
}

func (f Funcs) OnError(kind ErrorKind, err error) {
	if f.Error != nil {
		f.Error(kind, err)
	}
}
