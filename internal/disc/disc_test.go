// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package disc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

func script(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "discid")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandReader(t *testing.T) {
	r := NewCommandReader(script(t, `echo "a70a3a0c 12 150 17580 33727 $1"`), nil)
	id, err := r.ReadDiscID(context.Background(), "/dev/sr0")
	if err != nil {
		t.Fatal(err)
	}
	if id != "a70a3a0c" {
		t.Errorf("id = %q", id)
	}
}

func TestCommandReaderEmptyOutput(t *testing.T) {
	r := NewCommandReader(script(t, "true"), nil)
	if _, err := r.ReadDiscID(context.Background(), "/dev/sr0"); !errors.Is(err, ErrNoDisc) {
		t.Errorf("err = %v, want ErrNoDisc", err)
	}
}

func TestCommandReaderFailure(t *testing.T) {
	r := NewCommandReader(script(t, `echo "No medium found" >&2; exit 1`), nil)
	_, err := r.ReadDiscID(context.Background(), "/dev/sr0")
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "No medium found"; !strings.Contains(err.Error(), want) {
		t.Errorf("err = %v, want it to mention %q", err, want)
	}

	if _, err := (&CommandReader{}).ReadDiscID(context.Background(), "/dev/sr0"); err == nil {
		t.Error("expected error without a command")
	}
}

func TestLocker(t *testing.T) {
	l := NewLocker(t.TempDir())
	if got := filepath.Base(l.Path("/dev/sr0")); got != "cdripper-dev-sr0.lock" {
		t.Errorf("lock file = %q", got)
	}

	release, err := l.Acquire(context.Background(), "/dev/sr0")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Acquire(context.Background(), "/dev/sr0"); !errors.Is(err, ErrDriveBusy) {
		t.Errorf("second Acquire = %v, want ErrDriveBusy", err)
	}
	other, err := l.Acquire(context.Background(), "/dev/sr1")
	if err != nil {
		t.Errorf("other drive: %v", err)
	} else {
		other()
	}

	if err := release(); err != nil {
		t.Fatal(err)
	}
	again, err := l.Acquire(context.Background(), "/dev/sr0")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Acquire(ctx, "/dev/sr0"); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire with cancelled context = %v", err)
	}
}

func TestDeviceName(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"devname", map[string]string{"DEVNAME": "/dev/sr0"}, "/dev/sr0"},
		{"bare devname", map[string]string{"DEVNAME": "sr1"}, "/dev/sr1"},
		{"devpath", map[string]string{"DEVPATH": "/devices/pci0000:00/0000:00:1f.2/ata2/host1/target1:0:0/1:0:0:0/block/sr0"}, "/dev/sr0"},
		{"nothing", map[string]string{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deviceName(netlink.UEvent{Env: tt.env}); got != tt.want {
				t.Errorf("deviceName = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSymlinkedDevice(t *testing.T) {
	dir := t.TempDir()
	node := filepath.Join(dir, "sr0")
	if err := os.WriteFile(node, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "cdrom")
	if err := os.Symlink("sr0", link); err != nil {
		t.Fatal(err)
	}
	resolved := ResolveDevice(link)

	if got := ResolveDevice(filepath.Join(dir, "missing")); got != filepath.Join(dir, "missing") {
		t.Errorf("ResolveDevice(missing) = %q", got)
	}
	if !matchesDevice(netlink.UEvent{Env: map[string]string{"DEVNAME": node}}, resolved) {
		t.Errorf("event for %s does not match configured %s", node, link)
	}
	if matchesDevice(netlink.UEvent{Env: map[string]string{"DEVNAME": filepath.Join(dir, "sr1")}}, resolved) {
		t.Error("event for another drive matched")
	}

	l := NewLocker(t.TempDir())
	if l.Path(link) != l.Path(node) {
		t.Errorf("lock files differ: %s vs %s", l.Path(link), l.Path(node))
	}
	release, err := l.Acquire(context.Background(), link)
	if err != nil {
		t.Fatal(err)
	}
	defer release()
	if _, err := l.Acquire(context.Background(), node); !errors.Is(err, ErrDriveBusy) {
		t.Errorf("Acquire through the device node = %v, want ErrDriveBusy", err)
	}
}
