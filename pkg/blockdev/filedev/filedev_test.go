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

package filedev_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/scarlett-os/kernel/pkg/blockdev/filedev"
)

func TestOpenCreateReadWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	dev, err := filedev.Open("hda", path, 512, 512*16, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	if dev.BlockCount() != 16 {
		t.Fatalf("BlockCount = %d, want 16", dev.BlockCount())
	}
	want := bytes.Repeat([]byte{0x42}, 512)
	if err := dev.WriteBlock(3, want); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 512)
	if err := dev.ReadBlock(3, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("read after write mismatch")
	}
}

func TestReopenPreservesContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	dev, err := filedev.Open("hda", path, 512, 512*4, true)
	if err != nil {
		t.Fatal(err)
	}
	want := bytes.Repeat([]byte{0x7E}, 512)
	if err := dev.WriteBlock(1, want); err != nil {
		t.Fatal(err)
	}
	dev.Close()

	dev2, err := filedev.Open("hda", path, 512, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	defer dev2.Close()
	got := make([]byte, 512)
	if err := dev2.ReadBlock(1, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("contents did not survive reopen")
	}
}
