// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugmesh Authors

//go:build integration

package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

var _ = Describe("plugin directory lifecycle", func() {
	var (
		dir     string
		adapter *fakeAdapter
		factory *fakeFactory
		mgr     *Manager
	)

	newManager := func(mutate func(*Config)) *Manager {
		cfg := Config{
			Dir:           dir,
			Pattern:       "*.plugin",
			Adapter:       adapter,
			EnableHotSwap: true,
			GracePeriod:   time.Hour,
			DebounceDelay: 20 * time.Millisecond,
			Factory:       factory,
		}
		if mutate != nil {
			mutate(&cfg)
		}
		m, err := NewManager(cfg)
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	writeArtifact := func(name string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte("#!/bin/true\n"), 0o700)).To(Succeed())
		return path
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		adapter = &fakeAdapter{}
		factory = newFakeFactory()
	})

	AfterEach(func() {
		if mgr != nil {
			mgr.Dispose()
			mgr = nil
		}
	})

	Describe("cold start with two artifacts", func() {
		It("loads both and reports them", func() {
			writeArtifact("a.plugin")
			writeArtifact("b.plugin")

			mgr = newManager(nil)
			Expect(mgr.Start(context.Background())).To(Succeed())

			Eventually(func() (map[string]string, error) {
				return mgr.LoadedPlugins()
			}, 3*time.Second, 20*time.Millisecond).Should(HaveLen(2))
		})
	})

	Describe("artifact replacement", func() {
		It("hot-swaps without disposing the old instance before the grace period", func() {
			path := writeArtifact("a.plugin")
			mgr = newManager(nil)
			Expect(mgr.Start(context.Background())).To(Succeed())

			Eventually(adapter.instanceCount, 3*time.Second, 20*time.Millisecond).Should(Equal(1))

			Expect(os.WriteFile(path, []byte("#!/bin/true\n# v2\n"), 0o700)).To(Succeed())

			Eventually(adapter.instanceCount, 3*time.Second, 20*time.Millisecond).Should(Equal(2))
			Expect(adapter.instance(0).disposed.Load()).To(BeFalse())
			Expect(mgr.PendingDisposals()).To(Equal(1))
		})
	})

	Describe("a bad artifact", func() {
		It("is skipped while the host keeps serving the others", func() {
			adapter.instErr = errors.New("no compatible type")
			writeArtifact("bad.plugin")

			mgr = newManager(nil)
			Expect(mgr.Start(context.Background())).To(Succeed())

			Consistently(func() (map[string]string, error) {
				return mgr.LoadedPlugins()
			}, 500*time.Millisecond, 50*time.Millisecond).Should(BeEmpty())

			// The failed domain was torn down.
			Eventually(func() bool {
				c := factory.client(filepath.Join(dir, "bad.plugin"))
				return c != nil && c.killed.Load()
			}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())
		})
	})

	Describe("event bursts", func() {
		It("coalesce into a single load", func() {
			path := writeArtifact("a.plugin")
			mgr = newManager(nil)
			Expect(mgr.Start(context.Background())).To(Succeed())

			for i := 0; i < 50; i++ {
				mgr.scheduleReload(path)
			}

			Eventually(func() int32 { return adapter.loadCount.Load() },
				3*time.Second, 20*time.Millisecond).Should(BeNumerically(">=", 1))
			Consistently(func() int32 { return adapter.loadCount.Load() },
				300*time.Millisecond, 50*time.Millisecond).Should(Equal(int32(1)))
		})
	})

	Describe("clean shutdown", func() {
		It("disposes every instance and rejects further queries", func() {
			writeArtifact("a.plugin")
			writeArtifact("b.plugin")

			mgr = newManager(nil)
			Expect(mgr.Start(context.Background())).To(Succeed())
			Eventually(adapter.instanceCount, 3*time.Second, 20*time.Millisecond).Should(Equal(2))

			mgr.Dispose()

			Expect(adapter.instance(0).disposed.Load()).To(BeTrue())
			Expect(adapter.instance(1).disposed.Load()).To(BeTrue())

			_, err := mgr.LoadedPlugins()
			Expect(err).To(MatchError(ErrAlreadyDisposed))
		})
	})

	Describe("deletion", func() {
		It("unloads immediately", func() {
			path := writeArtifact("a.plugin")
			mgr = newManager(nil)
			Expect(mgr.Start(context.Background())).To(Succeed())
			Eventually(adapter.instanceCount, 3*time.Second, 20*time.Millisecond).Should(Equal(1))

			Expect(os.Remove(path)).To(Succeed())

			Eventually(func() bool {
				return adapter.instance(0).disposed.Load()
			}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

			Eventually(func() (map[string]string, error) {
				return mgr.LoadedPlugins()
			}, 3*time.Second, 20*time.Millisecond).Should(BeEmpty())
		})
	})
})
