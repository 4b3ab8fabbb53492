// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package parse

import (
	"container/ring"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Kind selects which tool's output the parser understands
type Kind int

const (
	KindRipper Kind = iota
	KindEncoder
)

// Progress holds progress info parsed from ripper or encoder output
type Progress struct {
	Track   int     `json:"track"`
	Tracks  int     `json:"tracks_done"`
	Percent float64 `json:"percent"`
	Ratio   float64 `json:"ratio"`
	Done    bool    `json:"done"`
}

// Line is a timestamped log line
type Line struct {
	Timestamp time.Time
	Data      string
}

// Parser consumes raw process output chunks
type Parser interface {
	// Feed splits a chunk into lines; a trailing partial line is kept for the next chunk.
	Feed(chunk string)
	Parse(line string)
	Progress() Progress
	Log() []Line
	ResetLog()
}

// Config for the parser
type Config struct {
	LogLines int
	Kind     Kind
}

type parser struct {
	kind Kind
	re   struct {
		outputting *regexp.Regexp
		ripDone    *regexp.Regexp
		percent    *regexp.Regexp
		ratio      *regexp.Regexp
		wrote      *regexp.Regexp
	}

	partial  string
	log      *ring.Ring
	logLines int

	progress Progress
	lock     sync.RWMutex
}

// New creates a Parser
func New(config Config) Parser {
	p := &parser{
		kind:     config.Kind,
		logLines: config.LogLines,
	}
	if p.logLines <= 0 {
		p.logLines = 100
	}
	p.re.outputting = regexp.MustCompile(`outputting to track([0-9]+)\.cdda\.wav`)
	p.re.ripDone = regexp.MustCompile(`^Done\.?$`)
	p.re.percent = regexp.MustCompile(`([0-9]{1,3})% complete`)
	p.re.ratio = regexp.MustCompile(`ratio=\s*([0-9\.]+)`)
	p.re.wrote = regexp.MustCompile(`(Verify OK, wrote|wrote [0-9]+ bytes)`)

	p.log = ring.New(p.logLines)
	return p
}

func (p *parser) Feed(chunk string) {
	p.lock.Lock()
	data := p.partial + chunk
	p.lock.Unlock()

	start := 0
	var lines []string
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}

	p.lock.Lock()
	p.partial = data[start:]
	p.lock.Unlock()

	for _, line := range lines {
		p.Parse(line)
	}
}

func (p *parser) Parse(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.log.Value = Line{Timestamp: time.Now(), Data: line}
	p.log = p.log.Next()

	switch p.kind {
	case KindRipper:
		if m := p.re.outputting.FindStringSubmatch(line); m != nil {
			if x, err := strconv.Atoi(m[1]); err == nil {
				if p.progress.Track != 0 {
					p.progress.Tracks++
				}
				p.progress.Track = x
			}
		}
		if p.re.ripDone.MatchString(line) && p.progress.Track != 0 {
			p.progress.Tracks++
			p.progress.Done = true
		}
	case KindEncoder:
		if m := p.re.percent.FindStringSubmatch(line); m != nil {
			if x, err := strconv.ParseFloat(m[1], 64); err == nil {
				p.progress.Percent = x
			}
		}
		if m := p.re.ratio.FindStringSubmatch(line); m != nil {
			if x, err := strconv.ParseFloat(m[1], 64); err == nil {
				p.progress.Ratio = x
			}
		}
		if p.re.wrote.MatchString(line) {
			p.progress.Percent = 100
			p.progress.Done = true
		}
	}
}

func (p *parser) Progress() Progress {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.progress
}

func (p *parser) ResetLog() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.log = ring.New(p.logLines)
	p.partial = ""
}

func (p *parser) Log() []Line {
	var out []Line
	p.lock.RLock()
	p.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(Line))
		}
	})
	p.lock.RUnlock()
	return out
}
