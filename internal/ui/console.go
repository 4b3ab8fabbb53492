// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// Console renders a Surface as prefixed lines on a terminal.
//
//	rip | outputting to track01.cdda.wav
//	enc | 01 Intro.flac: 42% complete, ratio=0.612
//	==> Encoding
type Console struct {
	out      io.Writer
	colorize bool

	lock    sync.Mutex
	partial map[string]string
}

// NewConsole creates a Console writing to out. Colors are used only when out is a terminal.
func NewConsole(out io.Writer) *Console {
	return &Console{
		out:      out,
		colorize: ShouldColorize(out),
		partial:  map[string]string{},
	}
}

// ShouldColorize reports whether w is a terminal.
func ShouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

var (
	ripColors    = text.Colors{text.FgCyan}
	encodeColors = text.Colors{text.FgMagenta}
	statusColors = text.Colors{text.FgGreen, text.Bold}
)

func (c *Console) AppendRipOutput(s string) {
	c.pane("rip", ripColors, s)
}

func (c *Console) AppendEncodeOutput(s string) {
	c.pane("enc", encodeColors, s)
}

func (c *Console) SetStatus(s string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	fmt.Fprintln(c.out, c.paint(statusColors, "==> "+s))
}

func (c *Console) SetFinishedEnabled(enabled bool) {
	if !enabled {
		return
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.flushLocked()
	fmt.Fprintln(c.out, c.paint(statusColors, "==> finished"))
}

// Flush writes out any buffered partial lines.
func (c *Console) Flush() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.flushLocked()
}

func (c *Console) flushLocked() {
	for _, name := range []string{"rip", "enc"} {
		if rest := c.partial[name]; rest != "" {
			colors := ripColors
			if name == "enc" {
				colors = encodeColors
			}
			fmt.Fprintln(c.out, c.paint(colors, name+" | ")+rest)
			c.partial[name] = ""
		}
	}
}

// pane prints complete lines of s, keeping a trailing partial line until the
// next call. Carriage returns (progress redraws) end a line as well.
func (c *Console) pane(name string, colors text.Colors, s string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	data := c.partial[name] + strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(data, "\n")
	c.partial[name] = lines[len(lines)-1]
	for _, line := range lines[:len(lines)-1] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fmt.Fprintln(c.out, c.paint(colors, name+" | ")+line)
	}
}

func (c *Console) paint(colors text.Colors, s string) string {
	if !c.colorize {
		return s
	}
	return colors.Sprint(s)
}
