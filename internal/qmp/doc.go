// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qmp implements a client session for the QEMU Machine Protocol.
//
// QMP is a line based JSON protocol spoken over a unix socket. After
// connecting, the server sends a greeting and expects the capabilities
// negotiation command. Afterwards the client sends commands, each answered by
// exactly one reply, while the server may send asynchronous events at any
// time.
//
// A [Session] runs three goroutines sharing one cancellation signal: a reader
// classifying incoming lines into replies and events, a writer sending one
// command at a time and waiting for its reply, and an event dispatcher
// decoding events for [Session.Events]. Only a single command is in flight at
// any time.
package qmp
