// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package process

import (
	"sync"

	gopsutilprocess "github.com/shirou/gopsutil/v3/process"
)

// Sampler reports resource usage of a running process. It never limits anything.
type Sampler interface {
	Start(pid int) error
	Stop()
	Current() (cpu float64, memory uint64)
}

// sysSampler 使用 gopsutil 采集进程 CPU 和内存
type sysSampler struct {
	mu   sync.RWMutex
	proc *gopsutilprocess.Process
}

// NewSysSampler 创建基于系统调用的采样器
func NewSysSampler() Sampler {
	return &sysSampler{}
}

func (s *sysSampler) Start(pid int) error {
	proc, err := gopsutilprocess.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()
	return nil
}

func (s *sysSampler) Stop() {
	s.mu.Lock()
	s.proc = nil
	s.mu.Unlock()
}

func (s *sysSampler) Current() (cpu float64, memory uint64) {
	s.mu.RLock()
	proc := s.proc
	s.mu.RUnlock()
	if proc == nil {
		return 0, 0
	}
	if pct, err := proc.CPUPercent(); err == nil {
		cpu = pct
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		memory = mem.RSS
	}
	return cpu, memory
}

type nullSampler struct{}

// NewNullSampler returns a sampler that always reports zero usage.
func NewNullSampler() Sampler {
	return nullSampler{}
}

func (nullSampler) Start(pid int) error         { return nil }
func (nullSampler) Stop()                       {}
func (nullSampler) Current() (float64, uint64) { return 0, 0 }
