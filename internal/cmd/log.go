// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	slogctx "github.com/veqryn/slog-context"
)

// newLogHandler returns a human readable handler that adds attributes
// stored in the context by [slogctx.Append].
func newLogHandler(writer io.Writer, debug bool) slog.Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(writer, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		AddSource:  debug,
	})

	return slogctx.NewHandler(handler, nil)
}

func setupLogging(writer io.Writer, debug bool) {
	slog.SetDefault(slog.New(newLogHandler(writer, debug)))
}
