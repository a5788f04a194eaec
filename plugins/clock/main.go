// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

// Package main implements the clock example plugin for the console host: a
// lifecycle feature that ticks in the background until disposed.
//
// Build an artifact for the console host:
//
//	go build -o plugins-dir/clock.plugin ./plugins/clock
package main

import (
	"log"
	"time"

	"github.com/plugmesh/plugmesh/pkg/sdk"
)

type clockFeature struct {
	ticker *time.Ticker
	done   chan struct{}
}

func (*clockFeature) Name() string    { return "clock" }
func (*clockFeature) Version() string { return "1.0.0" }

func (c *clockFeature) Start() error {
	c.ticker = time.NewTicker(30 * time.Second)
	c.done = make(chan struct{})
	go func() {
		for {
			select {
			case t := <-c.ticker.C:
				log.Printf("clock: %s", t.UTC().Format(time.RFC3339))
			case <-c.done:
				return
			}
		}
	}()
	return nil
}

// Dispose stops the ticker and the background goroutine.
func (c *clockFeature) Dispose() error {
	if c.ticker != nil {
		c.ticker.Stop()
	}
	if c.done != nil {
		close(c.done)
	}
	return nil
}

func main() {
	sdk.ServeFeature(&clockFeature{})
}
