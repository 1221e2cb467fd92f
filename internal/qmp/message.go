// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qmp

import (
	"encoding/json"
	"fmt"
	"time"
)

type messageKind int

const (
	kindUnknown messageKind = iota
	kindGreeting
	kindReply
	kindEvent
)

func (k messageKind) String() string {
	switch k {
	case kindGreeting:
		return "greeting"
	case kindReply:
		return "reply"
	case kindEvent:
		return "event"
	default:
		return "unknown"
	}
}

// tags holds the fields that determine the kind of a message.
type tags struct {
	QMP    *json.RawMessage `json:"QMP"`
	Return *json.RawMessage `json:"return"`
	Error  *json.RawMessage `json:"error"`
	Event  *string          `json:"event"`
}

// classify decodes the tag fields of a message line.
func classify(line []byte) (messageKind, error) {
	var t tags

	if err := json.Unmarshal(line, &t); err != nil {
		return kindUnknown, fmt.Errorf("decode message: %w", err)
	}

	switch {
	case t.Event != nil:
		return kindEvent, nil
	case t.Return != nil, t.Error != nil:
		return kindReply, nil
	case t.QMP != nil:
		return kindGreeting, nil
	default:
		return kindUnknown, nil
	}
}

// Reply is the answer to a single [Command].
type Reply struct {
	Return json.RawMessage `json:"return,omitempty"`
	Error  *CommandError   `json:"error,omitempty"`
	ID     string          `json:"id,omitempty"`
}

// Err returns the [CommandError] if the server answered with an error.
func (r Reply) Err() error {
	if r.Error != nil {
		return r.Error
	}

	return nil
}

// Decode decodes the return value into v. It returns the [CommandError] if the
// server answered with an error.
func (r Reply) Decode(v any) error {
	if err := r.Err(); err != nil {
		return err
	}

	if err := json.Unmarshal(r.Return, v); err != nil {
		return fmt.Errorf("decode return: %w", err)
	}

	return nil
}

// Timestamp is the time an [Event] was emitted.
type Timestamp struct {
	Seconds      int64 `json:"seconds"`
	Microseconds int64 `json:"microseconds"`
}

// Time returns the timestamp as [time.Time].
func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, t.Microseconds*int64(time.Microsecond))
}

// Event is an asynchronous notification sent by the server.
type Event struct {
	Name      string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp Timestamp       `json:"timestamp"`
}
