// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package nsexec

import (
	"fmt"
	"os"
	"testing"
)

// TestMain lets the test binary serve as helper for launches with real user
// namespaces.
func TestMain(m *testing.M) {
	if IsHelper() {
		err := RunHelper()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}
