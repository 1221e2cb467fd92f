// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	slogctx "github.com/veqryn/slog-context"
	"golang.org/x/sys/unix"

	"github.com/aibor/qguard/internal/config"
	"github.com/aibor/qguard/internal/initramfs"
	"github.com/aibor/qguard/internal/nsexec"
	"github.com/aibor/qguard/internal/proctree"
	"github.com/aibor/qguard/internal/qemu"
	"github.com/aibor/qguard/internal/qmp"
)

// Config is the per guest configuration of a [Controller].
type Config struct {
	// Mount point of the cgroup2 hierarchy.
	CgroupRoot string

	// Name of the guest's cgroup relative to CgroupRoot. It must exist.
	Cgroup string

	// Guest is launched on a fresh start.
	Guest qemu.Guest

	// Archive is written to Guest.Initramfs before a fresh launch, if set.
	Archive *initramfs.Archive

	// Output receives QEMU's stdout and stderr.
	Output io.Writer

	// IsolateNetwork launches the guest in a new network namespace.
	IsolateNetwork bool

	// Fixed waits of the lifecycle.
	Delays config.Delays
}

// Option customizes the collaborators of a [Controller].
type Option func(*Controller)

// WithTreeSource sets the [TreeSource]. Defaults to reading the host's cgroup
// and proc file systems.
func WithTreeSource(trees TreeSource) Option {
	return func(c *Controller) { c.trees = trees }
}

// WithLauncher sets the [Launcher]. Defaults to [nsexec.Launcher] mapping the
// current user to root in the guest's user namespace.
func WithLauncher(launcher Launcher) Option {
	return func(c *Controller) { c.launcher = launcher }
}

// WithDialer sets the [Dialer]. Defaults to [qmp.Dial].
func WithDialer(dialer Dialer) Option {
	return func(c *Controller) { c.dialer = dialer }
}

// WithSignaler sets the [Signaler]. Defaults to kill(2).
func WithSignaler(signaler Signaler) Option {
	return func(c *Controller) { c.signaler = signaler }
}

// WithSleeper sets the [Sleeper] used for the fixed waits.
func WithSleeper(sleeper Sleeper) Option {
	return func(c *Controller) { c.sleep = sleeper }
}

// Status is the re-derived state of the guest.
type Status struct {
	// Root of the guest's process tree. Nil if no guest process exists.
	Root *proctree.Tree

	// Running is the believed state of the controller.
	Running bool

	// Attached is true if a QMP session is attached.
	Attached bool
}

// Controller supervises a single guest. All methods are safe for concurrent
// use; lifecycle transitions are serialized.
type Controller struct {
	id  string
	cfg Config

	trees    TreeSource
	launcher Launcher
	dialer   Dialer
	signaler Signaler
	sleep    Sleeper

	mu      sync.Mutex
	running bool
	session Session
	reapers sync.WaitGroup
}

// New creates a [Controller] for the guest with the given id.
func New(id string, cfg Config, opts ...Option) *Controller {
	launcher := &nsexec.Launcher{
		CgroupRoot:     cfg.CgroupRoot,
		UID:            os.Getuid(),
		GID:            os.Getgid(),
		Output:         cfg.Output,
		IsolateNetwork: cfg.IsolateNetwork,
	}

	c := &Controller{
		id:       id,
		cfg:      cfg,
		trees:    proctree.NewHostBuilder(cfg.CgroupRoot),
		launcher: nsLauncher{launcher},
		dialer:   qmpDialer{},
		signaler: killSignaler{},
		sleep:    sleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ID returns the guest id.
func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) logContext(ctx context.Context) context.Context {
	return slogctx.Append(ctx, slog.String("vm", c.id))
}

// Running returns the believed state. Use [Controller.Status] for the state
// derived from the process tree.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// Start attaches to the guest and returns its event stream.
//
// If the guest's process tree exists, a session is attached to the running
// guest. Otherwise the guest is launched fresh, paused before executing any
// guest code, and resumed once the session is attached. It fails with
// [ErrAlreadyRunning] if the controller already marked the guest running.
func (c *Controller) Start(ctx context.Context) (<-chan qmp.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.start(c.logContext(ctx))
}

func (c *Controller) start(ctx context.Context) (<-chan qmp.Event, error) {
	if c.running {
		return nil, ErrAlreadyRunning
	}

	root, err := c.root()
	if err != nil {
		return nil, err
	}

	if root != nil {
		return c.reattach(ctx, root)
	}

	return c.launch(ctx)
}

// Attach attaches a session to the running guest and returns its event
// stream. Unlike [Controller.Start], it never launches a guest and fails with
// [ErrNotRunning] if none exists.
func (c *Controller) Attach(ctx context.Context) (<-chan qmp.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx = c.logContext(ctx)

	if c.running {
		return nil, ErrAlreadyRunning
	}

	root, err := c.root()
	if err != nil {
		return nil, err
	}

	if root == nil {
		return nil, ErrNotRunning
	}

	return c.reattach(ctx, root)
}

func (c *Controller) reattach(ctx context.Context, root *proctree.Tree) (<-chan qmp.Event, error) {
	if c.session != nil {
		return nil, &InvariantViolationError{
			Err:  ErrSessionAttached,
			PIDs: root.PIDs(),
		}
	}

	slog.InfoContext(ctx, "Reattach to running guest", slog.Int("pid", root.PID))

	session, err := c.dialer.Dial(ctx, c.cfg.Guest.QMPSocket)
	if err != nil {
		return nil, fmt.Errorf("attach session: %w", err)
	}

	c.session = session
	c.running = true

	return session.Events(), nil
}

func (c *Controller) launch(ctx context.Context) (<-chan qmp.Event, error) {
	argv, err := c.cfg.Guest.Command()
	if err != nil {
		return nil, fmt.Errorf("compose guest command: %w", err)
	}

	if c.cfg.Archive != nil {
		if err := c.cfg.Archive.WriteFile(c.cfg.Guest.Initramfs); err != nil {
			return nil, fmt.Errorf("write initramfs: %w", err)
		}
	}

	// A stale socket from a previous guest must not be mistaken for the new
	// one.
	err = os.Remove(c.cfg.Guest.QMPSocket)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	slog.InfoContext(ctx, "Launch guest", slog.Any("argv", argv))

	process, err := c.launcher.Launch(ctx, c.cfg.Cgroup, argv)
	if err != nil {
		return nil, fmt.Errorf("launch guest: %w", err)
	}

	ctx = slogctx.Append(ctx, slog.Int("pid", process.PID()))

	c.reapers.Add(1)

	go func() {
		defer c.reapers.Done()

		err := process.Wait()
		slog.InfoContext(ctx, "Guest process exited", slog.Any("error", err))
	}()

	events, err := c.attachLaunched(ctx, process.PID())
	if err != nil {
		if killErr := process.Signal(unix.SIGKILL); killErr != nil {
			slog.WarnContext(ctx, "Kill guest after failed start", slog.Any("error", killErr))
		}

		return nil, err
	}

	c.running = true

	return events, nil
}

// attachLaunched waits for the socket, verifies the launched process is the
// single tree root, attaches a session and resumes the guest.
func (c *Controller) attachLaunched(ctx context.Context, pid int) (<-chan qmp.Event, error) {
	if err := c.sleep(ctx, c.cfg.Delays.Socket); err != nil {
		return nil, fmt.Errorf("wait for socket: %w", err)
	}

	root, err := c.root()
	if err != nil {
		return nil, err
	}

	if root == nil || root.PID != pid {
		var pids []int
		if root != nil {
			pids = root.PIDs()
		}

		return nil, &InvariantViolationError{
			Err:  fmt.Errorf("%w: launched %d", ErrPIDMismatch, pid),
			PIDs: pids,
		}
	}

	session, err := c.dialer.Dial(ctx, c.cfg.Guest.QMPSocket)
	if err != nil {
		return nil, fmt.Errorf("attach session: %w", err)
	}

	reply, err := session.Execute(ctx, qmp.Cont)
	if err == nil {
		err = reply.Err()
	}

	if err != nil {
		if shutdownErr := session.Shutdown(); shutdownErr != nil {
			slog.WarnContext(ctx, "Shutdown session", slog.Any("error", shutdownErr))
		}

		return nil, fmt.Errorf("resume guest: %w", err)
	}

	slog.InfoContext(ctx, "Guest resumed")

	c.session = session

	return session.Events(), nil
}

// Stop terminates the guest.
//
// After a short drain wait, the process tree is re-derived. If it exists, the
// session is detached and the tree's root receives SIGTERM, followed by a
// fixed wait for it to exit. Without a process tree, Stop only releases a
// stale session and succeeds.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stop(c.logContext(ctx))
}

func (c *Controller) stop(ctx context.Context) error {
	if err := c.sleep(ctx, c.cfg.Delays.Drain); err != nil {
		return fmt.Errorf("drain: %w", err)
	}

	root, err := c.root()
	if err != nil {
		return err
	}

	if root == nil {
		if c.session != nil {
			slog.InfoContext(ctx, "Release session of vanished guest")
			c.detach(ctx)
		}

		c.running = false

		return nil
	}

	if c.session != nil {
		c.logStatus(ctx)
		c.detach(ctx)
	}

	slog.InfoContext(ctx, "Terminate guest", slog.Int("pid", root.PID))

	if err := c.signaler.Signal(root.PID, unix.SIGTERM); err != nil {
		return fmt.Errorf("terminate guest: %w", err)
	}

	if err := c.sleep(ctx, c.cfg.Delays.Kill); err != nil {
		return fmt.Errorf("wait for exit: %w", err)
	}

	c.running = false

	return nil
}

// statusQueryTimeout bounds the informational status query before a stop, so
// an unresponsive guest is still terminated.
const statusQueryTimeout = time.Second

// logStatus logs the guest's run state before it is stopped.
func (c *Controller) logStatus(ctx context.Context) {
	var status qmp.StatusInfo

	queryCtx, cancel := context.WithTimeout(ctx, statusQueryTimeout)
	defer cancel()

	reply, err := c.session.Execute(queryCtx, qmp.QueryStatus)
	if err == nil {
		err = reply.Decode(&status)
	}

	if err != nil {
		slog.WarnContext(ctx, "Query guest status", slog.Any("error", err))
		return
	}

	slog.InfoContext(ctx, "Guest status before stop",
		slog.String("status", status.Status),
		slog.Bool("running", status.Running),
	)
}

// Restart stops the guest and starts it again. It fails with a
// [RaceConditionError] and does not launch if any process remains in the
// guest's cgroup after stopping.
func (c *Controller) Restart(ctx context.Context) (<-chan qmp.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx = c.logContext(ctx)

	if err := c.stop(ctx); err != nil {
		return nil, err
	}

	roots, err := c.trees.Build(c.cfg.Cgroup)
	if err != nil {
		return nil, fmt.Errorf("derive process tree: %w", err)
	}

	if len(roots) > 0 {
		var pids []int
		for _, root := range roots {
			pids = append(pids, root.PIDs()...)
		}

		return nil, &RaceConditionError{PIDs: pids}
	}

	return c.start(ctx)
}

// QMP sends the command to the attached session. It fails with
// [ErrNoSession] if no session is attached.
func (c *Controller) QMP(ctx context.Context, cmd qmp.Command) (qmp.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return qmp.Reply{}, ErrNoSession
	}

	reply, err := c.session.Execute(c.logContext(ctx), cmd)
	if err != nil {
		return qmp.Reply{}, fmt.Errorf("%s: %w", cmd.Name, err)
	}

	return reply, nil
}

// Detach releases the session and leaves the guest running. A subsequent
// [Controller.Start] reattaches.
func (c *Controller) Detach(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx = c.logContext(ctx)

	if c.session != nil {
		slog.InfoContext(ctx, "Detach from guest")
		c.detach(ctx)
	}

	c.running = false
}

func (c *Controller) detach(ctx context.Context) {
	if err := c.session.Shutdown(); err != nil {
		slog.WarnContext(ctx, "Shutdown session", slog.Any("error", err))
	}

	c.session = nil
}

// Status re-derives the guest's process tree.
func (c *Controller) Status(_ context.Context) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	root, err := c.root()
	if err != nil {
		return Status{}, err
	}

	return Status{
		Root:     root,
		Running:  c.running,
		Attached: c.session != nil,
	}, nil
}

// Wait waits until all launched processes exited and were reaped.
func (c *Controller) Wait() {
	c.reapers.Wait()
}

// root derives the process tree and returns its single root, or nil if there
// is no tree. More than one root is an [InvariantViolationError].
func (c *Controller) root() (*proctree.Tree, error) {
	roots, err := c.trees.Build(c.cfg.Cgroup)
	if err != nil {
		return nil, fmt.Errorf("derive process tree: %w", err)
	}

	switch len(roots) {
	case 0:
		return nil, nil //nolint:nilnil
	case 1:
		return roots[0], nil
	default:
		pids := make([]int, 0, len(roots))
		for _, root := range roots {
			pids = append(pids, root.PID)
		}

		return nil, &InvariantViolationError{Err: ErrMultipleRoots, PIDs: pids}
	}
}
