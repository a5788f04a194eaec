// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugmesh/plugmesh/internal/config"
)

func TestNewRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make([]string, 0, 2)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "console")
	assert.Contains(t, names, "web")
}

func newHostFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestRunConsole_QuitsOnQ(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plugins")
	flags := newHostFlags(t,
		"--plugins-directory", dir,
		"--metrics-addr", "",
	)

	done := make(chan error, 1)
	go func() {
		done <- runConsole(context.Background(), flags, strings.NewReader("q\n"))
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("console host did not quit on 'q'")
	}
}

func TestRunConsole_QuitIsCaseInsensitive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plugins")
	flags := newHostFlags(t,
		"--plugins-directory", dir,
		"--metrics-addr", "",
	)

	done := make(chan error, 1)
	go func() {
		done <- runConsole(context.Background(), flags, strings.NewReader("hello\nQ\n"))
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("console host did not quit on 'Q'")
	}
}

func TestRunConsole_ShutdownOnContextCancel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plugins")
	flags := newHostFlags(t,
		"--plugins-directory", dir,
		"--metrics-addr", "",
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runConsole(ctx, flags, &blockingReader{})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("console host did not shut down on context cancel")
	}
}

// blockingReader never yields input, standing in for an idle stdin.
type blockingReader struct{}

func (*blockingReader) Read([]byte) (int, error) {
	select {}
}
