// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aibor/qguard/internal/proctree"
	"github.com/aibor/qguard/internal/qmp"
	"github.com/aibor/qguard/internal/vm"
)

func start(ctx context.Context, controller *vm.Controller, output io.Writer, stopOnExit bool) error {
	events, err := controller.Start(ctx)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}

	return supervise(ctx, controller, events, output, stopOnExit)
}

func restart(ctx context.Context, controller *vm.Controller, output io.Writer, stopOnExit bool) error {
	events, err := controller.Restart(ctx)
	if err != nil {
		return fmt.Errorf("restart: %w", err)
	}

	return supervise(ctx, controller, events, output, stopOnExit)
}

// supervise prints events as JSON lines until the event stream ends or ctx is
// done. On cancellation, the guest is stopped or left running, depending on
// stopOnExit.
func supervise(
	ctx context.Context,
	controller *vm.Controller,
	events <-chan qmp.Event,
	output io.Writer,
	stopOnExit bool,
) error {
	encoder := json.NewEncoder(output)

	for {
		select {
		case event, ok := <-events:
			if !ok {
				slog.InfoContext(ctx, "Event stream ended")
				controller.Detach(context.WithoutCancel(ctx))

				return nil
			}

			if err := encoder.Encode(event); err != nil {
				return fmt.Errorf("write event: %w", err)
			}
		case <-ctx.Done():
			cleanupCtx := context.WithoutCancel(ctx)

			if stopOnExit {
				return controller.Stop(cleanupCtx)
			}

			controller.Detach(cleanupCtx)

			return nil
		}
	}
}

func status(ctx context.Context, controller *vm.Controller, output io.Writer) error {
	st, err := controller.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	if st.Root == nil {
		fmt.Fprintf(output, "%s: not running\n", controller.ID())
		return nil
	}

	fmt.Fprintf(output, "%s: running\n", controller.ID())
	printTree(output, st.Root, 1)

	return nil
}

func printTree(output io.Writer, tree *proctree.Tree, depth int) {
	fmt.Fprintf(output, "%s%d\n", strings.Repeat("  ", depth), tree.PID)

	for _, child := range tree.Children {
		printTree(output, child, depth+1)
	}
}

// sendQMP attaches to the running guest, sends a single command and prints
// the indented return value.
func sendQMP(ctx context.Context, controller *vm.Controller, output io.Writer, args []string) error {
	cmd := qmp.Command{Name: args[0]}
	if len(args) > 1 {
		cmd.Arguments = json.RawMessage(args[1])
	}

	events, err := controller.Attach(ctx)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}

	defer controller.Detach(context.WithoutCancel(ctx))

	// Events are not of interest, but must not block replies.
	go func() {
		for range events {
		}
	}()

	reply, err := controller.QMP(ctx, cmd)
	if err != nil {
		return err
	}

	if err := reply.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrQMPCommandFailed, err)
	}

	if len(reply.Return) == 0 {
		return nil
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, reply.Return, "", "  "); err != nil {
		return fmt.Errorf("format reply: %w", err)
	}

	buf.WriteByte('\n')

	_, err = buf.WriteTo(output)

	return err //nolint:wrapcheck
}
