// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package errutil bridges structured oops errors into slog records.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code, and context.
// For standard errors, it logs the error string.
func LogError(logger *slog.Logger, msg string, err error) {
	log(logger, slog.LevelError, msg, err)
}

// LogWarn is LogError at warning level, for failures the host absorbs.
func LogWarn(logger *slog.Logger, msg string, err error) {
	log(logger, slog.LevelWarn, msg, err)
}

func log(logger *slog.Logger, level slog.Level, msg string, err error) {
	logFn := logger.Error
	if level == slog.LevelWarn {
		logFn = logger.Warn
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs := []any{
			"error", oopsErr.Error(),
		}
		if code := oopsErr.Code(); code != "" {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
		logFn(msg, attrs...)
	} else {
		logFn(msg, "error", err)
	}
}
