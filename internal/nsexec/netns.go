// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package nsexec

import (
	"fmt"
	"strings"

	"github.com/vishvananda/netlink"
)

// isolateNetworkEnv marks a helper running in its own network namespace. It
// is removed from the environment before the guest is executed.
const isolateNetworkEnv = "QGUARD_NSINIT_NETNS"

// takeIsolateNetwork removes the isolation marker from env and reports if it
// was present.
func takeIsolateNetwork(env []string) ([]string, bool) {
	filtered := make([]string, 0, len(env))
	found := false

	for _, entry := range env {
		if key, _, _ := strings.Cut(entry, "="); key == isolateNetworkEnv {
			found = true
			continue
		}

		filtered = append(filtered, entry)
	}

	return filtered, found
}

// setupLoopback brings up the loopback interface of the current network
// namespace. A fresh namespace has only "lo" and it is down.
func setupLoopback() error {
	lo, err := netlink.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("find loopback: %w", err)
	}

	if err := netlink.LinkSetUp(lo); err != nil {
		return fmt.Errorf("set loopback up: %w", err)
	}

	return nil
}
