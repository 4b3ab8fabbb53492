// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// CDRipper - CD 抓轨与 FLAC 编码编排工具

package disc

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pilebones/go-udev/netlink"

	"github.com/ZSC714725/cdripper/internal/logger"
)

// WaitForMedia blocks until udev reports a disc in device, or ctx is done.
func WaitForMedia(ctx context.Context, device string, log logger.Logger) error {
	log = logger.OrNop(log)

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return fmt.Errorf("connect to udev netlink: %w", err)
	}
	defer conn.Close()

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(queue, errs, mediaMatcher())
	defer close(quit)

	want := ResolveDevice(device)
	log.Info("waiting for a disc in %s", want)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-queue:
			if !matchesDevice(ev, want) {
				log.Debug("ignoring %s event for %q", ev.Action, deviceName(ev))
				continue
			}
			log.Info("disc inserted in %s", device)
			return nil
		case err := <-errs:
			log.Error("udev monitor: %v", err)
		}
	}
}

// mediaMatcher matches block devices that are optical drives with media in them.
func mediaMatcher() netlink.Matcher {
	action := "change|add"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM":      "block",
			"ID_CDROM":       "1",
			"ID_CDROM_MEDIA": "1",
		},
	})
	return rules
}

// ResolveDevice follows symlinks such as /dev/cdrom to the device node.
// A path that cannot be resolved is returned as given.
func ResolveDevice(device string) string {
	if device == "" {
		return ""
	}
	resolved, err := filepath.EvalSymlinks(device)
	if err != nil {
		return device
	}
	return resolved
}

// matchesDevice reports whether ev is about the resolved device node want.
func matchesDevice(ev netlink.UEvent, want string) bool {
	name := deviceName(ev)
	return name != "" && ResolveDevice(name) == want
}

// deviceName returns the /dev path of the event's device.
func deviceName(ev netlink.UEvent) string {
	if name := ev.Env["DEVNAME"]; name != "" {
		if !strings.HasPrefix(name, "/") {
			name = "/dev/" + name
		}
		return name
	}
	devpath := ev.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(strings.TrimRight(devpath, "/"), "/")
	return "/dev/" + parts[len(parts)-1]
}
