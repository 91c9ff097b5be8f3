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

package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/config"
)

const sampleManifest = `
[[device]]
name = "sda0"
kind = "mem"
block_size = 512
block_count = 2048

[[mount]]
device = "sda0"
path = "/"
filesystem = "fat32"

[[listener]]
name = "sftp"
port = 2222

[admin]
bind_address = "127.0.0.1:9100"
metrics_path = "/metrics"

rbac_seed = "/etc/kernel/rbac-seed.json"
`

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "boot.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesSampleManifest(t *testing.T) {
	path := writeManifest(t, sampleManifest)
	boot, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(boot.Devices) != 1 || boot.Devices[0].Name != "sda0" {
		t.Fatalf("unexpected devices: %+v", boot.Devices)
	}
	if len(boot.Mounts) != 1 || boot.Mounts[0].Filesystem != "fat32" {
		t.Fatalf("unexpected mounts: %+v", boot.Mounts)
	}
	if boot.Admin.BindAddress != "127.0.0.1:9100" {
		t.Fatalf("admin bind address = %q", boot.Admin.BindAddress)
	}
	if boot.RBACSeed != "/etc/kernel/rbac-seed.json" {
		t.Fatalf("rbac seed path = %q", boot.RBACSeed)
	}
}

func TestLoadRejectsMountWithUndeclaredDevice(t *testing.T) {
	path := writeManifest(t, `
[[mount]]
device = "nope"
path = "/"
filesystem = "fat32"
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load should reject a mount referencing an undeclared device")
	}
}

func TestLoadRejectsDuplicateDeviceNames(t *testing.T) {
	path := writeManifest(t, `
[[device]]
name = "sda0"
kind = "mem"
block_size = 512
block_count = 16

[[device]]
name = "sda0"
kind = "mem"
block_size = 512
block_count = 16
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load should reject two devices with the same name")
	}
}

func TestLoadRejectsUnknownDeviceKind(t *testing.T) {
	path := writeManifest(t, `
[[device]]
name = "sda0"
kind = "floppy"
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load should reject an unknown device kind")
	}
}

func TestBuildRegistersMemDevice(t *testing.T) {
	path := writeManifest(t, sampleManifest)
	boot, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	reg := &blockdev.Registry{}
	reg.Init()
	if err := boot.Build(context.Background(), reg); err != nil {
		t.Fatalf("Build: %v", err)
	}
	dev, err := reg.Get("sda0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if dev.BlockCount() != 2048 {
		t.Fatalf("block count = %d, want 2048", dev.BlockCount())
	}
}
