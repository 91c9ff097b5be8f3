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

package vfs

import (
	"fmt"
	"sync"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

// Constructor builds an unmounted Filesystem instance for a driver
// name ("fat32", "ext4", "sfs", ...). Drivers register one at init.
type Constructor func() Filesystem

var (
	driversMu sync.Mutex
	drivers   = make(map[string]Constructor)
)

// RegisterDriver registers a filesystem driver constructor under name.
// It is an error to register the same name twice, the same contract
// pkg/blobserver.RegisterStorageConstructor enforces for storage types.
func RegisterDriver(name string, ctor Constructor) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, ok := drivers[name]; ok {
		panic("vfs: driver already registered for name: " + name)
	}
	drivers[name] = ctor
}

// MountNamed looks up fsName in the driver registry, constructs a
// filesystem instance, and mounts it at mountPoint. This is the Go
// equivalent of the source's mount(device_name, mountpoint, fs_name):
// the driver resolves deviceName itself, against blockdev.Default, and
// stores its own state in Mount; MountNamed only wires the resulting
// Filesystem into v's mount table.
func (v *VFS) MountNamed(deviceName, mountPoint, fsName string) error {
	driversMu.Lock()
	ctor, ok := drivers[fsName]
	driversMu.Unlock()
	if !ok {
		return errkind.New("vfs.MountNamed", errkind.NotSupported, fmt.Errorf("no filesystem driver registered for %q", fsName))
	}
	fs := ctor()
	if err := fs.Mount(deviceName, mountPoint); err != nil {
		return err
	}
	return v.Mount(mountPoint, fs)
}
