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

// Package memdev is an in-memory blockdev.Device, the device every
// filesystem driver's tests format and mount against instead of a real
// disk. Adapted from pkg/blobserver/memory, which is the teacher's own
// in-memory stand-in for a real blob storage backend.
package memdev

import (
	"sync"

	"github.com/scarlett-os/kernel/pkg/blockdev"
)

// Device is a fixed-size, block-addressable slab of memory.
type Device struct {
	name      string
	blockSize uint32
	mu        sync.RWMutex
	data      []byte
}

// New allocates a zero-filled in-memory device of blockCount blocks of
// blockSize bytes each.
func New(name string, blockSize uint32, blockCount uint64) *Device {
	return &Device{
		name:      name,
		blockSize: blockSize,
		data:      make([]byte, blockSize*uint32(blockCount)),
	}
}

func (d *Device) Name() string       { return d.name }
func (d *Device) BlockSize() uint32  { return d.blockSize }
func (d *Device) BlockCount() uint64 { return uint64(len(d.data)) / uint64(d.blockSize) }

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
	d.mu.RLock()
	defer d.mu.RUnlock()
	off := startBlock * uint64(d.blockSize)
	copy(buf, d.data[off:off+uint64(len(buf))])
	return nil
}

func (d *Device) WriteBlocks(startBlock uint64, buf []byte) error {
	n := uint64(len(buf)) / uint64(d.blockSize)
	if err := blockdev.CheckBounds(d, startBlock, n); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	off := startBlock * uint64(d.blockSize)
	copy(d.data[off:off+uint64(len(buf))], buf)
	return nil
}

var _ blockdev.Device = (*Device)(nil)
