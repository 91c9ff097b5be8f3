//go:build linux || darwin
// +build linux darwin

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

// Command kmount bridges a kernel boot manifest's VFS mount table onto
// a host directory over FUSE, the way cmd/pk-mount bridges a Perkeep
// filesystem tree onto one.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/config"
	"github.com/scarlett-os/kernel/pkg/security/authz"
	"github.com/scarlett-os/kernel/pkg/security/policy"
	"github.com/scarlett-os/kernel/pkg/security/rbac"
	"github.com/scarlett-os/kernel/pkg/vfs"
	_ "github.com/scarlett-os/kernel/pkg/vfs/ext4"
	_ "github.com/scarlett-os/kernel/pkg/vfs/fat32"
	_ "github.com/scarlett-os/kernel/pkg/vfs/sfs"
	"github.com/scarlett-os/kernel/pkg/vfsfuse"
)

var (
	manifest = flag.String("config", "", "path to the boot manifest (TOML)")
	asUID    = flag.Uint("uid", uint(os.Getuid()), "uid presented to the authorization chokepoint for every operation through this mount")
	asGID    = flag.Uint("gid", uint(os.Getgid()), "gid presented to the authorization chokepoint for every operation through this mount")
)

func usage() {
	fmt.Fprint(os.Stderr, "usage: kmount -config boot.toml <host-mount-point>\n")
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if *manifest == "" || flag.NArg() != 1 {
		usage()
	}
	mountPoint := flag.Arg(0)

	boot, err := config.Load(*manifest)
	if err != nil {
		log.Fatalf("loading boot manifest: %v", err)
	}

	reg := &blockdev.Registry{}
	reg.Init()
	if err := boot.Build(context.Background(), reg); err != nil {
		log.Fatalf("building devices: %v", err)
	}
	blockdev.Default = reg

	roles := rbac.New()
	if boot.RBACSeed != "" {
		if err := policy.SeedRBAC(roles, boot.RBACSeed); err != nil {
			log.Fatalf("seeding RBAC policy from %s: %v", boot.RBACSeed, err)
		}
	}

	console := stdioConsole{}
	kv := vfs.New(console, roles)
	for _, m := range boot.Mounts {
		if err := kv.MountNamed(m.Device, m.Path, m.Filesystem); err != nil {
			log.Fatalf("mounting %q at %q: %v", m.Filesystem, m.Path, err)
		}
	}

	conn, err := fuse.Mount(mountPoint, fuse.VolumeName(filepath.Base(mountPoint)))
	if err != nil {
		log.Fatalf("fuse.Mount: %v", err)
	}
	defer conn.Close()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	proc := authz.Process{UID: uint32(*asUID), GID: uint32(*asGID)}
	doneServe := make(chan error, 1)
	go func() {
		doneServe <- fusefs.Serve(conn, &vfsfuse.FS{VFS: kv, DefaultProc: proc})
	}()

	select {
	case err := <-doneServe:
		log.Printf("fusefs.Serve returned: %v", err)
	case sig := <-sigc:
		log.Printf("signal %s received, unmounting", sig)
	}

	if err := fuse.Unmount(mountPoint); err != nil {
		log.Printf("unmount: %v", err)
	}
}

// stdioConsole backs vfs.VFS's standard streams with the host process's
// own stdio, the natural choice for a bridge process with no console
// of its own.
type stdioConsole struct{}

func (stdioConsole) WriteOut(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioConsole) ReadIn(p []byte) (int, error)   { return os.Stdin.Read(p) }
