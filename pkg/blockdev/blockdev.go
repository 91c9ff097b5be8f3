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

// Package blockdev is the L1 layer of the kernel: a registry of named,
// block-addressable storage devices, and the generic read/write helpers
// every filesystem driver is built on top of. Concrete devices (ATA,
// AHCI, host-file-backed, S3- or GCS-object-backed) each register
// themselves here exactly once, at driver init, and are never removed.
package blockdev

import (
	"fmt"
	"sync"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

// Device is a named, fixed-block-size, block-addressable storage
// device. Implementations provide single-block read/write; ReadBlocks
// and WriteBlocks have a default multi-block implementation (Generic)
// that callers can embed when they have nothing faster to offer.
type Device interface {
	Name() string
	BlockSize() uint32
	BlockCount() uint64

	ReadBlock(blockNum uint64, buf []byte) error
	WriteBlock(blockNum uint64, buf []byte) error

	// ReadBlocks/WriteBlocks may be the same as repeatedly calling
	// ReadBlock/WriteBlock (see Generic), or a driver-specific faster
	// path (e.g. AHCI's single DMA command for many sectors).
	ReadBlocks(startBlock uint64, buf []byte) error
	WriteBlocks(startBlock uint64, buf []byte) error
}

// Registry is a named-device directory. The zero Registry is usable;
// Default is the process-wide singleton every driver registers into at
// boot, mirroring how the kernel's other global state (the fd table,
// the capability counter, the socket list) is a single owned object
// rather than ambient globals.
type Registry struct {
	mu      sync.Mutex
	devices map[string]Device
}

// Default is the process-wide block device registry, initialized once
// during boot by Init.
var Default = &Registry{}

// Init (re-)initializes a registry to empty. Call once during boot,
// before any driver registers a device.
func (r *Registry) Init() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[string]Device)
}

// Register adds dev under its own Name(). It is an error to register
// two devices under the same name; the registry never auto-renames.
func (r *Registry) Register(dev Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.devices == nil {
		r.devices = make(map[string]Device)
	}
	name := dev.Name()
	if _, exists := r.devices[name]; exists {
		return errkind.New("blockdev.Register", errkind.AlreadyExists, fmt.Errorf("device %q already registered", name))
	}
	if dev.BlockSize() == 0 || dev.BlockCount() == 0 {
		return errkind.New("blockdev.Register", errkind.InvalidArg, fmt.Errorf("device %q has zero block size or block count", name))
	}
	r.devices[name] = dev
	return nil
}

// Get looks up a device by name. Lookup is a single map access under
// the registry's lock, in the teacher's own registry style
// (pkg/blobserver's constructor registry is likewise a single map under
// one lock).
func (r *Registry) Get(name string) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devices[name]
	if !ok {
		return nil, errkind.New("blockdev.Get", errkind.DeviceNotFound, fmt.Errorf("device %q not registered", name))
	}
	return dev, nil
}

// Names returns every registered device name, for diagnostics (e.g. the
// admin console's device list).
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.devices))
	for n := range r.devices {
		names = append(names, n)
	}
	return names
}

// Generic implements multi-block ReadBlocks/WriteBlocks by repeatedly
// calling a single-block op. Drivers that only provide read-one/write-one
// embed Generic and get ReadBlocks/WriteBlocks for free. Any partial
// progress on failure is not rolled back: the caller sees the error and
// the device is left holding whichever blocks already completed.
type Generic struct {
	BlockSz    uint32
	BlockCnt   uint64
	ReadBlockFn  func(blockNum uint64, buf []byte) error
	WriteBlockFn func(blockNum uint64, buf []byte) error
}

func (g *Generic) BlockSize() uint32  { return g.BlockSz }
func (g *Generic) BlockCount() uint64 { return g.BlockCnt }

func (g *Generic) ReadBlock(blockNum uint64, buf []byte) error {
	return g.ReadBlockFn(blockNum, buf)
}

func (g *Generic) WriteBlock(blockNum uint64, buf []byte) error {
	return g.WriteBlockFn(blockNum, buf)
}

func (g *Generic) ReadBlocks(startBlock uint64, buf []byte) error {
	n := uint64(len(buf)) / uint64(g.BlockSz)
	for i := uint64(0); i < n; i++ {
		off := i * uint64(g.BlockSz)
		if err := g.ReadBlockFn(startBlock+i, buf[off:off+uint64(g.BlockSz)]); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generic) WriteBlocks(startBlock uint64, buf []byte) error {
	n := uint64(len(buf)) / uint64(g.BlockSz)
	for i := uint64(0); i < n; i++ {
		off := i * uint64(g.BlockSz)
		if err := g.WriteBlockFn(startBlock+i, buf[off:off+uint64(g.BlockSz)]); err != nil {
			return err
		}
	}
	return nil
}

// CheckBounds validates block_num < block_count, the invariant every
// Device implementation must enforce before touching backing storage.
func CheckBounds(dev Device, blockNum uint64, nblocks uint64) error {
	if nblocks == 0 {
		return errkind.New("blockdev.CheckBounds", errkind.InvalidArg, nil)
	}
	if blockNum+nblocks > dev.BlockCount() {
		return errkind.New("blockdev.CheckBounds", errkind.IoError, fmt.Errorf("block range [%d,%d) exceeds device %q's %d blocks", blockNum, blockNum+nblocks, dev.Name(), dev.BlockCount()))
	}
	return nil
}
