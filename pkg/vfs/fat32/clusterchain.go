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

package fat32

import (
	"encoding/binary"
	"fmt"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

const (
	fatEntryMask    = 0x0FFF_FFFF
	endOfChainValue = 0x0FFF_FFFF
	endOfChainMin   = 0x0FFF_FFF8
	freeCluster     = 0
	firstDataCluster = 2
)

// entrySectorAndOffset locates the FAT sector and the byte offset
// within it that holds cluster c's 32-bit entry.
func (fs *FS) entrySectorAndOffset(c uint32) (sector uint32, offset uint32) {
	fatOffset := c * 4
	sector = fs.sb.fatStart + fatOffset/uint32(fs.sb.bytesPerSector)
	offset = fatOffset % uint32(fs.sb.bytesPerSector)
	return
}

// nextCluster reads cluster c's successor. Callers hold fs.mu.
func (fs *FS) nextCluster(c uint32) (uint32, error) {
	sector, offset := fs.entrySectorAndOffset(c)
	if err := fs.cache.load(sector); err != nil {
		return 0, err
	}
	raw := binary.LittleEndian.Uint32(fs.cache.data[offset : offset+4])
	return raw & fatEntryMask, nil
}

// isEndOfChain reports whether a next-cluster value denotes
// end-of-chain (>= 0x0FFF_FFF8).
func isEndOfChain(v uint32) bool { return v >= endOfChainMin }

// setNextCluster read-modify-writes cluster c's entry to next,
// preserving the reserved upper 4 bits, then flushes to every FAT
// copy. Callers hold fs.mu.
func (fs *FS) setNextCluster(c uint32, next uint32) error {
	sector, offset := fs.entrySectorAndOffset(c)
	if err := fs.cache.load(sector); err != nil {
		return err
	}
	old := binary.LittleEndian.Uint32(fs.cache.data[offset : offset+4])
	updated := (old &^ fatEntryMask) | (next & fatEntryMask)
	binary.LittleEndian.PutUint32(fs.cache.data[offset:offset+4], updated)
	return fs.cache.flush(fs.sb.fatStart, fs.sb.fatSize, fs.sb.numFATs, sector)
}

// allocCluster scans from cluster 2 for a free (zero) entry, marks it
// end-of-chain, and returns its number. Returns errkind.DiskFull if
// none is free.
func (fs *FS) allocCluster() (uint32, error) {
	last := firstDataCluster + fs.sb.totalClusters
	for c := uint32(firstDataCluster); c < last; c++ {
		sector, offset := fs.entrySectorAndOffset(c)
		if err := fs.cache.load(sector); err != nil {
			return 0, err
		}
		v := binary.LittleEndian.Uint32(fs.cache.data[offset:offset+4]) & fatEntryMask
		if v == freeCluster {
			if err := fs.setNextCluster(c, endOfChainValue); err != nil {
				return 0, err
			}
			return c, nil
		}
	}
	return 0, errkind.New("fat32.allocCluster", errkind.DiskFull, fmt.Errorf("no free cluster"))
}

// freeClusterChain walks the chain starting at c, marking each link
// free, stopping at end-of-chain.
func (fs *FS) freeClusterChain(c uint32) error {
	for !isEndOfChain(c) && c != freeCluster {
		next, err := fs.nextCluster(c)
		if err != nil {
			return err
		}
		if err := fs.setNextCluster(c, freeCluster); err != nil {
			return err
		}
		c = next
	}
	return nil
}

// clusterToSector returns the first absolute sector of cluster c's
// data region.
func (fs *FS) clusterToSector(c uint32) uint64 {
	return uint64(fs.sb.dataStart) + uint64(c-firstDataCluster)*uint64(fs.sb.sectorsPerCluster)
}
