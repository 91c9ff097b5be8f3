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

// Package filedev backs a blockdev.Device with a single host file (a
// disk image), the practical device behind FAT32/ext4/SFS mounts in
// cmd/kerneld (the FS driver tests use the in-memory memdev). Adapted from
// pkg/blobserver/localdisk, whose New(root) opens and validates a
// directory the way this package opens and validates a fixed-size file.
package filedev

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

// Logger receives diagnostics for I/O errors, mirroring the stdlib
// *log.Logger fields used across the teacher's storage backends.
var Logger = log.Default()

// Device is a blockdev.Device backed by one host file, addressed at
// fixed blockSize*blockNum offsets.
type Device struct {
	name      string
	blockSize uint32
	mu        sync.Mutex
	f         *os.File
	size      int64
}

// Open opens (or, with create, creates and truncates to sizeBytes) the
// file at path as a block device named name. sizeBytes must be a
// multiple of blockSize.
func Open(name, path string, blockSize uint32, sizeBytes int64, create bool) (*Device, error) {
	flag := os.O_RDWR
	if create {
		flag |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return nil, errkind.New("filedev.Open", errkind.DeviceNotFound, err)
	}
	if create {
		if err := f.Truncate(sizeBytes); err != nil {
			f.Close()
			return nil, errkind.New("filedev.Open", errkind.IoError, err)
		}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errkind.New("filedev.Open", errkind.IoError, err)
	}
	size := fi.Size()
	if !create && size%int64(blockSize) != 0 {
		f.Close()
		return nil, errkind.New("filedev.Open", errkind.InvalidArg, fmt.Errorf("file size %d is not a multiple of block size %d", size, blockSize))
	}
	return &Device{name: name, blockSize: blockSize, f: f, size: size}, nil
}

func (d *Device) Close() error { return d.f.Close() }

func (d *Device) Name() string       { return d.name }
func (d *Device) BlockSize() uint32  { return d.blockSize }
func (d *Device) BlockCount() uint64 { return uint64(d.size) / uint64(d.blockSize) }

func (d *Device) ReadBlock(blockNum uint64, buf []byte) error {
	return d.ReadBlocks(blockNum, buf[:d.blockSize])
}

func (d *Device) WriteBlock(blockNum uint64, buf []byte) error {
	return d.WriteBlocks(blockNum, buf[:d.blockSize])
}

func (d *Device) ReadBlocks(startBlock uint64, buf []byte) error {
	n := uint64(len(buf)) / uint64(d.blockSize)
	if err := blockdev.CheckBounds(d, startBlock, n); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	off := int64(startBlock) * int64(d.blockSize)
	if _, err := d.f.ReadAt(buf, off); err != nil {
		Logger.Printf("filedev %q: read at block %d failed: %v", d.name, startBlock, err)
		return errkind.New("filedev.ReadBlocks", errkind.IoError, err)
	}
	return nil
}

func (d *Device) WriteBlocks(startBlock uint64, buf []byte) error {
	n := uint64(len(buf)) / uint64(d.blockSize)
	if err := blockdev.CheckBounds(d, startBlock, n); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	off := int64(startBlock) * int64(d.blockSize)
	if _, err := d.f.WriteAt(buf, off); err != nil {
		Logger.Printf("filedev %q: write at block %d failed: %v", d.name, startBlock, err)
		return errkind.New("filedev.WriteBlocks", errkind.IoError, err)
	}
	return nil
}

var _ blockdev.Device = (*Device)(nil)
