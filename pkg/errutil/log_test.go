// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package errutil_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"

	"github.com/plugmesh/plugmesh/pkg/errutil"
)

func newBufLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func TestLogError_PlainError(t *testing.T) {
	logger, buf := newBufLogger()

	errutil.LogError(logger, "something failed", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "something failed")
	assert.Contains(t, out, "boom")
	assert.NotContains(t, out, `"code"`)
}

func TestLogError_OopsErrorIncludesCodeAndContext(t *testing.T) {
	logger, buf := newBufLogger()
	err := oops.Code("IO_ERROR").With("artifact", "a.plugin").Errorf("open failed")

	errutil.LogError(logger, "load failed", err)

	out := buf.String()
	assert.Contains(t, out, "load failed")
	assert.Contains(t, out, "IO_ERROR")
	assert.Contains(t, out, "a.plugin")
}

func TestLogWarn_UsesWarnLevel(t *testing.T) {
	logger, buf := newBufLogger()

	errutil.LogWarn(logger, "absorbed failure", errors.New("meh"))

	assert.Contains(t, buf.String(), `"WARN"`)
}
