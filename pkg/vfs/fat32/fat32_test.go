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

package fat32_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/blockdev/memdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/vfs"
	"github.com/scarlett-os/kernel/pkg/vfs/fat32"
)

const (
	testBytesPerSector    = 512
	testSectorsPerCluster = 1
	testReservedSectors   = 32
	testNumFATs           = 2
	testFATSize           = 1
	testDataClusters      = 20
	testRootCluster       = 2
)

// formatFAT32 writes a minimal, valid FAT32 boot sector, two FAT
// copies with cluster 2 (the root directory) marked end-of-chain, and
// a zeroed root directory cluster, onto a freshly allocated memdev.
func formatFAT32(t *testing.T) *memdev.Device {
	t.Helper()
	dataStart := testReservedSectors + testNumFATs*testFATSize
	totalSectors := dataStart + testDataClusters*testSectorsPerCluster

	dev := memdev.New("testdisk", testBytesPerSector, uint64(totalSectors))

	boot := make([]byte, testBytesPerSector)
	binary.LittleEndian.PutUint16(boot[11:13], testBytesPerSector)
	boot[13] = testSectorsPerCluster
	binary.LittleEndian.PutUint16(boot[14:16], testReservedSectors)
	boot[16] = testNumFATs
	binary.LittleEndian.PutUint32(boot[32:36], uint32(totalSectors))
	binary.LittleEndian.PutUint32(boot[36:40], testFATSize)
	binary.LittleEndian.PutUint32(boot[44:48], testRootCluster)
	copy(boot[82:90], []byte("FAT32   "))
	binary.LittleEndian.PutUint16(boot[510:512], 0xAA55)
	if err := dev.WriteBlock(0, boot); err != nil {
		t.Fatalf("write boot sector: %v", err)
	}

	fatSector := make([]byte, testBytesPerSector)
	binary.LittleEndian.PutUint32(fatSector[testRootCluster*4:testRootCluster*4+4], 0x0FFF_FFFF)
	for i := 0; i < testNumFATs; i++ {
		sec := uint64(testReservedSectors + i*testFATSize)
		if err := dev.WriteBlock(sec, fatSector); err != nil {
			t.Fatalf("write FAT copy %d: %v", i, err)
		}
	}

	zero := make([]byte, testBytesPerSector)
	if err := dev.WriteBlock(uint64(dataStart), zero); err != nil {
		t.Fatalf("zero root dir cluster: %v", err)
	}

	return dev
}

func mountedFS(t *testing.T) *fat32.FS {
	t.Helper()
	reg := &blockdev.Registry{}
	reg.Init()
	dev := formatFAT32(t)
	if err := reg.Register(dev); err != nil {
		t.Fatalf("register: %v", err)
	}
	blockdev.Default = reg
	fs := fat32.New()
	if err := fs.Mount("testdisk", "/"); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return fs
}

func TestMountRootDirIsEmpty(t *testing.T) {
	fs := mountedFS(t)
	dh, err := fs.OpenDir("")
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	_, err = fs.ReadDir(dh)
	if !errkind.Is(err, errkind.EndOfFile) {
		t.Fatalf("ReadDir on empty root = %v, want EndOfFile", err)
	}
}

func TestCreateWriteReadBack(t *testing.T) {
	fs := mountedFS(t)
	fh, err := fs.Open("/hello.txt", vfs.Read|vfs.Write|vfs.Create)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := []byte("hello, fat32 world")
	if n, err := fs.WriteAt(fh, want, 0); err != nil || n != len(want) {
		t.Fatalf("WriteAt = %d, %v", n, err)
	}
	got := make([]byte, len(want))
	n, err := fs.ReadAt(fh, got, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got[:n], want) {
		t.Fatalf("read back %q, want %q", got[:n], want)
	}

	info, err := fs.Stat("/hello.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != int64(len(want)) {
		t.Fatalf("Stat size = %d, want %d", info.Size, len(want))
	}
}

func TestWriteSpanningMultipleClusters(t *testing.T) {
	fs := mountedFS(t)
	fh, err := fs.Open("/big.bin", vfs.Read|vfs.Write|vfs.Create)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data := bytes.Repeat([]byte{0xAB}, testBytesPerSector*testSectorsPerCluster*3+17)
	if n, err := fs.WriteAt(fh, data, 0); err != nil || n != len(data) {
		t.Fatalf("WriteAt = %d, %v", n, err)
	}
	got := make([]byte, len(data))
	n, err := fs.ReadAt(fh, got, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got[:n], data) {
		t.Fatal("multi-cluster read back mismatch")
	}
}

func TestOpenWithoutCreateOnMissingIsNotFound(t *testing.T) {
	fs := mountedFS(t)
	_, err := fs.Open("/nope.txt", vfs.Read)
	if !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("Open = %v, want NotFound", err)
	}
}

func TestMkdirAndListing(t *testing.T) {
	fs := mountedFS(t)
	if err := fs.Mkdir("/sub", 0); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	fh, err := fs.Open("/sub/inner.txt", vfs.Read|vfs.Write|vfs.Create)
	if err != nil {
		t.Fatalf("Open inside subdir: %v", err)
	}
	if _, err := fs.WriteAt(fh, []byte("nested"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	dh, err := fs.OpenDir("/sub")
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	var names []string
	for {
		e, err := fs.ReadDir(dh)
		if errkind.Is(err, errkind.EndOfFile) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, e.Name)
	}
	found := false
	for _, n := range names {
		if n == "INNER.TXT" {
			found = true
		}
	}
	if !found {
		t.Fatalf("listing %v does not include INNER.TXT", names)
	}
}

func TestMkdirOnExistingNameIsAlreadyExists(t *testing.T) {
	fs := mountedFS(t)
	if err := fs.Mkdir("/sub", 0); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	err := fs.Mkdir("/sub", 0)
	if !errkind.Is(err, errkind.AlreadyExists) {
		t.Fatalf("second Mkdir = %v, want AlreadyExists", err)
	}
}

func TestUnlinkRemovesFile(t *testing.T) {
	fs := mountedFS(t)
	if _, err := fs.Open("/a.txt", vfs.Read|vfs.Write|vfs.Create); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := fs.Unlink("/a.txt"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	if _, err := fs.Open("/a.txt", vfs.Read); !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("Open after Unlink = %v, want NotFound", err)
	}
}

func TestRmdirRefusesNonEmptyDirectory(t *testing.T) {
	fs := mountedFS(t)
	if err := fs.Mkdir("/sub", 0); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if _, err := fs.Open("/sub/f.txt", vfs.Read|vfs.Write|vfs.Create); err != nil {
		t.Fatalf("Open: %v", err)
	}
	err := fs.Rmdir("/sub")
	if !errkind.Is(err, errkind.NotEmpty) {
		t.Fatalf("Rmdir on non-empty dir = %v, want NotEmpty", err)
	}
}

func TestRenameMovesEntry(t *testing.T) {
	fs := mountedFS(t)
	fh, err := fs.Open("/old.txt", vfs.Read|vfs.Write|vfs.Create)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := fs.WriteAt(fh, []byte("x"), 0); err != nil {
		t.Fatal(err)
	}
	if err := fs.Rename("/old.txt", "/new.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := fs.Open("/old.txt", vfs.Read); !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("old path still resolves: %v", err)
	}
	info, err := fs.Stat("/new.txt")
	if err != nil {
		t.Fatalf("Stat new path: %v", err)
	}
	if info.Size != 1 {
		t.Fatalf("Stat size = %d, want 1", info.Size)
	}
}

func TestTruncOnOpenResetsSize(t *testing.T) {
	fs := mountedFS(t)
	fh, err := fs.Open("/t.txt", vfs.Read|vfs.Write|vfs.Create)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fs.WriteAt(fh, []byte("some content"), 0); err != nil {
		t.Fatal(err)
	}
	fs.Close(fh)

	fh2, err := fs.Open("/t.txt", vfs.Read|vfs.Write|vfs.Trunc)
	if err != nil {
		t.Fatalf("reopen with Trunc: %v", err)
	}
	info, err := fs.Stat("/t.txt")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != 0 {
		t.Fatalf("size after Trunc = %d, want 0", info.Size)
	}
	fs.Close(fh2)
}
