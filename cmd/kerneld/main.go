/*
Copyright 2026 The Scarlett Kernel Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command kerneld is the boot entrypoint: it reads a boot manifest,
// brings up the declared block devices, mounts the declared
// filesystems, and serves /healthz, /metrics, and an admin console
// websocket the way cmd/pk-mount's RunDaemon wires up its own
// healthz/metrics server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/sync/errgroup"

	"github.com/scarlett-os/kernel/pkg/admin"
	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/buildinfo"
	"github.com/scarlett-os/kernel/pkg/config"
	"github.com/scarlett-os/kernel/pkg/metrics"
	"github.com/scarlett-os/kernel/pkg/security/policy"
	"github.com/scarlett-os/kernel/pkg/security/rbac"
	"github.com/scarlett-os/kernel/pkg/vfs"
	_ "github.com/scarlett-os/kernel/pkg/vfs/ext4"
	_ "github.com/scarlett-os/kernel/pkg/vfs/fat32"
	_ "github.com/scarlett-os/kernel/pkg/vfs/sfs"
)

var (
	manifest = flag.String("config", "", "path to the boot manifest (TOML)")
)

func main() {
	flag.Parse()
	log.Printf("kerneld %s", buildinfo.Summary())
	if *manifest == "" {
		log.Fatal("-config is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	boot, err := config.Load(*manifest)
	if err != nil {
		log.Fatalf("loading boot manifest: %v", err)
	}

	reg := &blockdev.Registry{}
	reg.Init()
	if err := boot.Build(ctx, reg); err != nil {
		log.Fatalf("bringing up block devices: %v", err)
	}
	blockdev.Default = reg
	log.Printf("block devices online: %v", reg.Names())

	roles := rbac.New()
	if boot.RBACSeed != "" {
		if err := policy.SeedRBAC(roles, boot.RBACSeed); err != nil {
			log.Fatalf("seeding RBAC policy from %s: %v", boot.RBACSeed, err)
		}
		log.Printf("RBAC policy seeded from %s", boot.RBACSeed)
	}

	kv := vfs.New(stdioConsole{}, roles)
	for _, m := range boot.Mounts {
		if err := kv.MountNamed(m.Device, m.Path, m.Filesystem); err != nil {
			log.Fatalf("mounting %q at %q: %v", m.Filesystem, m.Path, err)
		}
		log.Printf("mounted %s (%s) at %s", m.Device, m.Filesystem, m.Path)
	}

	reg2 := metrics.New()
	hub := admin.NewHub()

	var ready atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, buildinfo.Summary())
	})
	metricsPath := boot.Admin.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	mux.Handle(metricsPath, reg2.Handler())
	mux.Handle("/ws", hub)

	bindAddr := boot.Admin.BindAddress
	if bindAddr == "" {
		bindAddr = "127.0.0.1:9100"
	}
	server := &http.Server{
		Addr:              bindAddr,
		Handler:           mux,
		IdleTimeout:       120 * time.Second,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	if err := http2.ConfigureServer(server, &http2.Server{}); err != nil {
		log.Fatalf("configuring HTTP/2: %v", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Printf("admin console listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin console failed: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Printf("shutting down admin console")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	for _, l := range boot.Listeners {
		log.Printf("listener %q declared on port %d (bring-up left to the owning service)", l.Name, l.Port)
	}

	ready.Store(true)
	log.Printf("kerneld boot complete")

	if err := eg.Wait(); err != nil {
		log.Fatalf("kerneld: %v", err)
	}
}

type stdioConsole struct{}

func (stdioConsole) WriteOut(p []byte) (int, error) { return fmt.Print(string(p)) }
func (stdioConsole) ReadIn(p []byte) (int, error)   { return 0, nil }
