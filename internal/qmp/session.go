// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"
)

// eventBuffer is the number of events buffered between reader and
// dispatcher. Events are only dropped by the consumer, never by the session.
const eventBuffer = 64

// envelope is a serialized command together with its reply slot.
type envelope struct {
	id      string
	payload []byte
	reply   chan<- Reply
}

// Session is an established QMP connection.
//
// All methods are safe for concurrent use. The [Session.Events] channel must
// be drained, otherwise replies stall behind undelivered events.
type Session struct {
	conn     net.Conn
	commands chan envelope
	events   chan Event

	done   <-chan struct{}
	cause  func() error
	cancel context.CancelFunc
	group  *errgroup.Group

	shutdownOnce sync.Once
	shutdownErr  error
}

// Dial connects to the QMP unix socket at path and starts a [Session] on it.
func Dial(ctx context.Context, path string) (*Session, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("dial qmp socket: %w", err)
	}

	return NewSession(ctx, conn), nil
}

// NewSession starts a [Session] on the given connection. The session takes
// ownership of conn and closes it on [Session.Shutdown].
//
// The session lives until [Session.Shutdown] is called or the connection
// fails. Cancellation of ctx does not end it, only its values are kept.
func NewSession(ctx context.Context, conn net.Conn) *Session {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, groupCtx := errgroup.WithContext(ctx)

	replies := make(chan []byte)
	events := make(chan []byte, eventBuffer)

	session := &Session{
		conn:     conn,
		commands: make(chan envelope),
		events:   make(chan Event, eventBuffer),
		done:     groupCtx.Done(),
		cause:    func() error { return context.Cause(groupCtx) },
		cancel:   cancel,
		group:    group,
	}

	group.Go(func() error {
		return session.read(groupCtx, replies, events)
	})
	group.Go(func() error {
		return session.write(groupCtx, replies)
	})
	group.Go(func() error {
		return session.dispatch(groupCtx, events)
	})
	// Unblock pending socket I/O once the session ends for any reason.
	group.Go(func() error {
		<-groupCtx.Done()
		_ = conn.SetDeadline(time.Now())

		return nil
	})

	return session
}

// Events returns the channel of events received from the server. It is closed
// once the session ended.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done returns a channel that is closed once the session ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Execute sends the command and waits for its reply. An error reply from the
// server is returned as [Reply] with [Reply.Err] set, not as error.
//
// The wait can be bounded by ctx. If the session ends before the reply is
// received, an error wrapping [ErrSessionClosed] is returned.
func (s *Session) Execute(ctx context.Context, cmd Command) (Reply, error) {
	id := xid.New().String()

	payload, err := json.Marshal(request{
		Execute:   cmd.Name,
		Arguments: cmd.Arguments,
		ID:        id,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("encode command %s: %w", cmd.Name, err)
	}

	replySlot := make(chan Reply, 1)
	env := envelope{
		id:      id,
		payload: append(payload, '\n'),
		reply:   replySlot,
	}

	select {
	case s.commands <- env:
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-s.done:
		return Reply{}, s.closedError()
	}

	select {
	case reply := <-replySlot:
		return reply, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-s.done:
		return Reply{}, s.closedError()
	}
}

// Shutdown ends the session and closes the connection. It waits for all
// session goroutines to return, so no socket I/O happens after it returned.
// It returns the error the session failed with, if any. Subsequent calls
// return the same result.
func (s *Session) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.cancel()

		err := s.group.Wait()
		if errors.Is(err, context.Canceled) {
			err = nil
		}

		if closeErr := s.conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close connection: %w", closeErr))
		}

		s.shutdownErr = err
	})

	return s.shutdownErr
}

func (s *Session) closedError() error {
	cause := s.cause()
	if cause == nil || errors.Is(cause, context.Canceled) {
		return ErrSessionClosed
	}

	return fmt.Errorf("%w: %w", ErrSessionClosed, cause)
}

// read consumes the greeting and capabilities acknowledgement and then routes
// every line either to the writer or to the event dispatcher.
func (s *Session) read(
	ctx context.Context,
	replies chan<- []byte,
	events chan<- []byte,
) error {
	defer close(replies)
	defer close(events)

	lines := bufio.NewReader(s.conn)

	if err := negotiate(lines); err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("negotiate: %w", err)
	}

	slog.DebugContext(ctx, "QMP session negotiated")

	for {
		line, err := lines.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("read: %w", err)
		}

		kind, err := classify(line)
		if err != nil {
			slog.WarnContext(ctx, "Drop malformed QMP message", slog.Any("error", err))
			continue
		}

		var target chan<- []byte

		switch kind {
		case kindReply:
			target = replies
		case kindEvent:
			target = events
		default:
			slog.WarnContext(ctx, "Drop unexpected QMP message",
				slog.String("kind", kind.String()),
				slog.String("line", string(line)),
			)

			continue
		}

		select {
		case target <- line:
		case <-ctx.Done():
			return nil
		}
	}
}

// negotiate discards the greeting and the reply to the capabilities command.
func negotiate(lines *bufio.Reader) error {
	greeting, err := lines.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}

	if kind, err := classify(greeting); err != nil {
		return err
	} else if kind != kindGreeting {
		return fmt.Errorf("%w: expected greeting, got %s", ErrProtocolDesync, kind)
	}

	ack, err := lines.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read capabilities reply: %w", err)
	}

	var reply Reply
	if err := json.Unmarshal(ack, &reply); err != nil {
		return fmt.Errorf("decode capabilities reply: %w", err)
	}

	if err := reply.Err(); err != nil {
		return fmt.Errorf("capabilities: %w", err)
	}

	if reply.Return == nil {
		return fmt.Errorf("%w: expected capabilities reply", ErrProtocolDesync)
	}

	return nil
}

// write sends the capabilities command and then one command after another,
// each only after the reply to the previous one was received.
func (s *Session) write(ctx context.Context, replies <-chan []byte) error {
	capabilities, err := json.Marshal(request{Execute: Capabilities.Name})
	if err != nil {
		return fmt.Errorf("encode capabilities: %w", err)
	}

	if _, err := s.conn.Write(append(capabilities, '\n')); err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("write capabilities: %w", err)
	}

	for {
		var env envelope

		select {
		case env = <-s.commands:
		case <-ctx.Done():
			return nil
		}

		if _, err := s.conn.Write(env.payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			// The reply slot is left unfilled. The caller's context bounds
			// its wait.
			slog.ErrorContext(ctx, "Drop QMP command",
				slog.String("id", env.id),
				slog.Any("error", err),
			)

			continue
		}

		var line []byte

		select {
		case l, ok := <-replies:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}

				return fmt.Errorf("%w: reply stream ended", ErrProtocolDesync)
			}

			line = l
		case <-ctx.Done():
			return nil
		}

		var reply Reply
		if err := json.Unmarshal(line, &reply); err != nil {
			return fmt.Errorf("%w: decode reply: %w", ErrProtocolDesync, err)
		}

		if reply.ID != env.id {
			return fmt.Errorf("%w: reply id %q does not match command id %q",
				ErrProtocolDesync, reply.ID, env.id)
		}

		env.reply <- reply
	}
}

// dispatch decodes event lines and publishes them on the events channel.
func (s *Session) dispatch(ctx context.Context, lines <-chan []byte) error {
	defer close(s.events)

	for {
		var line []byte

		select {
		case l, ok := <-lines:
			if !ok {
				return nil
			}

			line = l
		case <-ctx.Done():
			return nil
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			slog.WarnContext(ctx, "Drop malformed QMP event", slog.Any("error", err))
			continue
		}

		slog.DebugContext(ctx, "QMP event", slog.String("event", event.Name))

		select {
		case s.events <- event:
		case <-ctx.Done():
			return nil
		}
	}
}
