// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const greeting = `{"QMP": {"version": {"qemu": {"micro": 0, "minor": 2, "major": 9}}, "capabilities": ["oob"]}}`

type request struct {
	Execute   string          `json:"execute"`
	Arguments json.RawMessage `json:"arguments"`
	ID        string          `json:"id"`
}

// fakeServer is the server side of a QMP connection.
type fakeServer struct {
	t     *testing.T
	conn  net.Conn
	lines *bufio.Reader
}

func newFakeServer(t *testing.T) (*fakeServer, net.Conn) {
	t.Helper()

	client, server := net.Pipe()

	return serve(t, server), client
}

func serve(t *testing.T, conn net.Conn) *fakeServer {
	t.Helper()

	t.Cleanup(func() { _ = conn.Close() })

	return &fakeServer{
		t:     t,
		conn:  conn,
		lines: bufio.NewReader(conn),
	}
}

func (s *fakeServer) send(line string) {
	s.t.Helper()

	_, err := s.conn.Write([]byte(line + "\n"))
	require.NoError(s.t, err)
}

func (s *fakeServer) receive() request {
	s.t.Helper()

	line, err := s.lines.ReadBytes('\n')
	require.NoError(s.t, err)

	var req request
	require.NoError(s.t, json.Unmarshal(line, &req))

	return req
}

// expect reads the next request and asserts its command name.
func (s *fakeServer) expect(name string) request {
	s.t.Helper()

	req := s.receive()
	require.Equal(s.t, name, req.Execute)

	return req
}

// greet runs the server side of the capabilities negotiation.
func (s *fakeServer) greet() {
	s.t.Helper()

	s.send(greeting)

	req := s.expect("qmp_capabilities")
	require.Empty(s.t, req.ID)

	s.send(`{"return": {}}`)
}

func (s *fakeServer) reply(id, ret string) {
	s.t.Helper()

	s.send(`{"return": ` + ret + `, "id": "` + id + `"}`)
}

// assertIdle asserts the client does not send anything within a short time.
func (s *fakeServer) assertIdle() {
	s.t.Helper()

	require.NoError(s.t, s.conn.SetReadDeadline(time.Now().Add(50*time.Millisecond)))

	_, err := s.lines.Peek(1)
	require.ErrorIs(s.t, err, os.ErrDeadlineExceeded)

	require.NoError(s.t, s.conn.SetReadDeadline(time.Time{}))
}

// poisonConn records any read or write after it has been poisoned.
type poisonConn struct {
	net.Conn
	poisoned atomic.Bool
	touched  atomic.Int32
}

func (c *poisonConn) Read(b []byte) (int, error) {
	if c.poisoned.Load() {
		c.touched.Add(1)
	}

	return c.Conn.Read(b)
}

func (c *poisonConn) Write(b []byte) (int, error) {
	if c.poisoned.Load() {
		c.touched.Add(1)
	}

	return c.Conn.Write(b)
}

var errWriteFailed = errors.New("write failed")

// failingConn fails the first write containing the given command name.
type failingConn struct {
	net.Conn
	command string
	failed  atomic.Bool
}

func (c *failingConn) Write(b []byte) (int, error) {
	if bytes.Contains(b, []byte(`"`+c.command+`"`)) && c.failed.CompareAndSwap(false, true) {
		return 0, errWriteFailed
	}

	return c.Conn.Write(b)
}
