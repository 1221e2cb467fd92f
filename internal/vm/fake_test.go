// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vm_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"slices"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aibor/qguard/internal/proctree"
	"github.com/aibor/qguard/internal/qmp"
	"github.com/aibor/qguard/internal/vm"
)

var errFake = errors.New("fake failure")

type signal struct {
	pid int
	sig os.Signal
}

// fakeHost simulates the cgroup of a single guest with launcher, QMP
// dialer and signal delivery.
type fakeHost struct {
	mu sync.Mutex

	trees   []*proctree.Tree
	exited  map[int]chan struct{}
	nextPID int

	launches [][]string
	signals  []signal
	dials    []string
	sessions []*fakeSession
	delays   []time.Duration

	// Processes ignore SIGTERM.
	lingering bool
	// Launched processes show up under a different pid in the cgroup.
	foreignRoot bool
	// Launch fails.
	launchErr error
	// Reply to "cont" with an error.
	contErr *qmp.CommandError
	// Sessions never answer "query-status".
	unresponsive bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		exited:  make(map[int]chan struct{}),
		nextPID: 1000,
	}
}

func (h *fakeHost) options() []vm.Option {
	return []vm.Option{
		vm.WithTreeSource(h),
		vm.WithLauncher(h),
		vm.WithDialer(h),
		vm.WithSignaler(h),
		vm.WithSleeper(h.sleep),
	}
}

// addGuest adds a process tree not launched by the controller.
func (h *fakeHost) addGuest(pids ...int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, pid := range pids {
		h.trees = append(h.trees, &proctree.Tree{
			PID:      pid,
			Children: []*proctree.Tree{{PID: pid + 1}},
		})
	}
}

// vanish removes all processes without signaling.
func (h *fakeHost) vanish() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, tree := range h.trees {
		h.exit(tree.PID)
	}

	h.trees = nil
}

func (h *fakeHost) Build(string) ([]*proctree.Tree, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return slices.Clone(h.trees), nil
}

func (h *fakeHost) Launch(_ context.Context, _ string, argv []string) (vm.Process, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.launchErr != nil {
		return nil, h.launchErr
	}

	pid := h.nextPID
	h.nextPID += 10
	h.launches = append(h.launches, argv)

	rootPID := pid
	if h.foreignRoot {
		rootPID = pid + 5
	}

	h.trees = append(h.trees, &proctree.Tree{PID: rootPID})
	exited := make(chan struct{})
	h.exited[rootPID] = exited

	return &fakeProcess{host: h, pid: pid, rootPID: rootPID, exited: exited}, nil
}

func (h *fakeHost) Dial(_ context.Context, path string) (vm.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dials = append(h.dials, path)
	session := &fakeSession{
		events:  make(chan qmp.Event, 1),
		contErr:      h.contErr,
		unresponsive: h.unresponsive,
		status:       "prelaunch",
	}
	h.sessions = append(h.sessions, session)

	return session, nil
}

func (h *fakeHost) Signal(pid int, sig unix.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.signals = append(h.signals, signal{pid, sig})

	if h.lingering {
		return nil
	}

	h.remove(pid)

	return nil
}

func (h *fakeHost) sleep(_ context.Context, d time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.delays = append(h.delays, d)

	return nil
}

func (h *fakeHost) remove(pid int) {
	h.trees = slices.DeleteFunc(h.trees, func(tree *proctree.Tree) bool {
		return tree.PID == pid
	})
	h.exit(pid)
}

func (h *fakeHost) exit(pid int) {
	if exited, exists := h.exited[pid]; exists {
		close(exited)
		delete(h.exited, pid)
	}
}

// shutdown lets all launched processes exit.
func (h *fakeHost) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for pid := range h.exited {
		h.exit(pid)
	}
}

func (h *fakeHost) lastSession() *fakeSession {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.sessions) == 0 {
		return nil
	}

	return h.sessions[len(h.sessions)-1]
}

type fakeProcess struct {
	host    *fakeHost
	pid     int
	rootPID int
	exited  chan struct{}
}

func (p *fakeProcess) PID() int {
	return p.pid
}

func (p *fakeProcess) Signal(sig os.Signal) error {
	p.host.mu.Lock()
	defer p.host.mu.Unlock()

	p.host.signals = append(p.host.signals, signal{p.pid, sig})
	p.host.remove(p.rootPID)

	return nil
}

func (p *fakeProcess) Wait() error {
	<-p.exited
	return nil
}

// fakeSession answers the commands used by the controller.
type fakeSession struct {
	mu       sync.Mutex
	commands []string
	events   chan qmp.Event
	status   string
	closed   bool
	contErr  *qmp.CommandError

	unresponsive bool
}

func (s *fakeSession) Execute(ctx context.Context, cmd qmp.Command) (qmp.Reply, error) {
	if s.unresponsive && cmd.Name == qmp.QueryStatus.Name {
		<-ctx.Done()
		return qmp.Reply{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return qmp.Reply{}, qmp.ErrSessionClosed
	}

	s.commands = append(s.commands, cmd.Name)

	switch cmd.Name {
	case qmp.Cont.Name:
		if s.contErr != nil {
			return qmp.Reply{Error: s.contErr}, nil
		}

		s.status = "running"

		return qmp.Reply{Return: json.RawMessage(`{}`)}, nil
	case qmp.QueryStatus.Name:
		ret, err := json.Marshal(qmp.StatusInfo{
			Running: s.status == "running",
			Status:  s.status,
		})
		if err != nil {
			return qmp.Reply{}, err
		}

		return qmp.Reply{Return: ret}, nil
	default:
		return qmp.Reply{Error: &qmp.CommandError{
			Class:       "CommandNotFound",
			Description: "The command " + cmd.Name + " has not been found",
		}}, nil
	}
}

func (s *fakeSession) Events() <-chan qmp.Event {
	return s.events
}

func (s *fakeSession) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}

	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *fakeSession) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.commands)
}
