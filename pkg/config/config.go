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

// Package config is the boot manifest: a single TOML document
// describing which block devices exist, what gets mounted where with
// which filesystem driver, which TCP ports the kernel listens on, and
// where the admin console binds. cmd/kerneld loads one of these at
// startup instead of wiring devices and mounts in Go code.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

// DeviceSpec names one block device to bring up during boot. Kind
// selects which blockdev constructor to call; only the fields that
// kind uses need be set. ATA and AHCI devices are not expressible here
// — they are discovered from real or simulated hardware at boot, not
// declared in the manifest, so they are registered by cmd/kerneld
// directly rather than through config.
type DeviceSpec struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"` // "mem", "file", "s3", "gcs"

	// "mem"
	BlockSize  uint32 `toml:"block_size"`
	BlockCount uint64 `toml:"block_count"`

	// "file"
	Path   string `toml:"path"`
	Create bool   `toml:"create"`

	// "s3"
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`
	Region string `toml:"region"`
}

// MountSpec mounts one device's filesystem at a path in the VFS tree.
type MountSpec struct {
	Device     string `toml:"device"`
	Path       string `toml:"path"`
	Filesystem string `toml:"filesystem"` // "fat32", "ext4", "sfs"
}

// ListenerSpec opens one TCP listener at boot (e.g. the SFTP bridge,
// an application-level service).
type ListenerSpec struct {
	Name string `toml:"name"`
	Port uint16 `toml:"port"`
}

// Admin configures the admin console's HTTP+websocket listener.
type Admin struct {
	BindAddress string `toml:"bind_address"`
	MetricsPath string `toml:"metrics_path"`
}

// Boot is the full boot manifest, the TOML-typed equivalent of the
// teacher's jsonconfig-driven low-level server config.
type Boot struct {
	Devices   []DeviceSpec   `toml:"device"`
	Mounts    []MountSpec    `toml:"mount"`
	Listeners []ListenerSpec `toml:"listener"`
	Admin     Admin          `toml:"admin"`

	// RBACSeed, if set, names a JSON document (see pkg/security/policy)
	// declaring the roles and user->role assignments to create at boot.
	// Kept as a separate file rather than a TOML table because role
	// permission lists nest more naturally as JSON.
	RBACSeed string `toml:"rbac_seed"`
}

// Load decodes a boot manifest from path, validating that every mount
// references a device declared in the same document — the
// validation a jsonconfig-style decode also performs as it resolves
// each key.
func Load(path string) (*Boot, error) {
	var b Boot
	if _, err := toml.DecodeFile(path, &b); err != nil {
		return nil, errkind.New("config.Load", errkind.InvalidArg, fmt.Errorf("decoding %s: %w", path, err))
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks cross-references the TOML decoder itself can't: every
// mount's Device must name a device declared in Devices, and every
// DeviceSpec's Kind must be one this package knows how to construct.
func (b *Boot) Validate() error {
	names := make(map[string]bool, len(b.Devices))
	for _, d := range b.Devices {
		if d.Name == "" {
			return errkind.New("config.Validate", errkind.InvalidArg, fmt.Errorf("device entry missing a name"))
		}
		switch d.Kind {
		case "mem", "file", "s3", "gcs":
		default:
			return errkind.New("config.Validate", errkind.InvalidArg, fmt.Errorf("device %q has unknown kind %q", d.Name, d.Kind))
		}
		if names[d.Name] {
			return errkind.New("config.Validate", errkind.AlreadyExists, fmt.Errorf("device %q declared twice", d.Name))
		}
		names[d.Name] = true
	}
	for _, m := range b.Mounts {
		if !names[m.Device] {
			return errkind.New("config.Validate", errkind.DeviceNotFound, fmt.Errorf("mount at %q references undeclared device %q", m.Path, m.Device))
		}
		switch m.Filesystem {
		case "fat32", "ext4", "sfs":
		default:
			return errkind.New("config.Validate", errkind.InvalidArg, fmt.Errorf("mount at %q has unknown filesystem %q", m.Path, m.Filesystem))
		}
	}
	return nil
}
