// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package nsexec_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/aibor/qguard/internal/nsexec"
)

type launchResult struct {
	pid     int
	output  string
	members string
}

// launch runs the guest in a real user namespace with the test binary as
// helper. The cgroup is a plain directory, so no privileges are needed
// besides unprivileged user namespaces.
func launch(t *testing.T, isolateNetwork bool, guest ...string) launchResult {
	t.Helper()

	if _, err := exec.LookPath(guest[0]); err != nil {
		t.Skipf("%s not available: %v", guest[0], err)
	}

	executable, err := os.Executable()
	require.NoError(t, err)

	cgroupRoot := t.TempDir()
	cgroupDir := filepath.Join(cgroupRoot, "qguard.slice", "vm.scope")
	createFiles(t, cgroupDir, "cgroup.procs")

	var output bytes.Buffer

	launcher := &nsexec.Launcher{
		CgroupRoot:     cgroupRoot,
		UID:            os.Getuid(),
		GID:            os.Getgid(),
		Executable:     executable,
		Output:         &output,
		IsolateNetwork: isolateNetwork,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	proc, err := launcher.Launch(ctx, "qguard.slice/vm.scope", guest)
	for _, errno := range []unix.Errno{unix.EPERM, unix.EACCES, unix.EINVAL, unix.ENOSPC} {
		if errors.Is(err, errno) {
			t.Skipf("user namespaces not available: %v", err)
		}
	}

	require.NoError(t, err)

	members, err := os.ReadFile(filepath.Join(cgroupDir, "cgroup.procs"))
	require.NoError(t, err)

	require.NoError(t, proc.Wait(), output.String())

	return launchResult{
		pid:     proc.PID(),
		output:  output.String(),
		members: strings.TrimSpace(string(members)),
	}
}

func TestLaunch_UserNamespace(t *testing.T) {
	result := launch(t, false, "id", "-u")

	assert.Equal(t, "0\n", result.output, "guest runs as root in the namespace")
	assert.Equal(t, strconv.Itoa(result.pid), result.members)
}

func TestLaunch_IsolateNetwork(t *testing.T) {
	result := launch(t, true, "ip", "-o", "link", "show", "dev", "lo")

	assert.Contains(t, result.output, "lo:")
	assert.Contains(t, result.output, ",UP", "loopback is up")
	assert.Equal(t, strconv.Itoa(result.pid), result.members)
}
