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

// Package ext4 implements a read-only vfs.Filesystem over a classic
// ext2/ext4-layout volume: superblock and group descriptor parsing,
// inode decoding, linked-list directory entries, and direct-plus-
// singly-indirect block mapping. Write, mkdir, unlink and rename all
// return errkind.NotSupported.
package ext4

import (
	"encoding/binary"
	"fmt"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

const (
	superblockOffset = 1024
	superblockSize   = 1024
	ext4Magic        = 0xEF53
	rootInode        = 2

	modeTypeMask = 0xF000
	modeDirType  = 0x4000
)

// superblock is the subset of the on-disk ext4 superblock this
// read-only driver needs.
type superblock struct {
	blocksCount    uint32
	firstDataBlock uint32
	blockSize      uint32
	inodesPerGroup uint32
	blocksPerGroup uint32
	inodeSize      uint16
	firstIno       uint32
}

// readSuperblock reads the 1024-byte superblock at its fixed offset
// and validates the 0xEF53 magic.
func readSuperblock(dev blockdev.Device) (*superblock, error) {
	buf, err := readAt(dev, superblockOffset, superblockSize)
	if err != nil {
		return nil, err
	}
	magic := binary.LittleEndian.Uint16(buf[56:58])
	if magic != ext4Magic {
		return nil, errkind.New("ext4.readSuperblock", errkind.InvalidFs, fmt.Errorf("bad magic 0x%04x, want 0x%04x", magic, ext4Magic))
	}

	logBlockSize := binary.LittleEndian.Uint32(buf[24:28])
	sb := &superblock{
		blocksCount:    binary.LittleEndian.Uint32(buf[4:8]),
		firstDataBlock: binary.LittleEndian.Uint32(buf[20:24]),
		blockSize:      1024 << logBlockSize,
		inodesPerGroup: binary.LittleEndian.Uint32(buf[40:44]),
		blocksPerGroup: binary.LittleEndian.Uint32(buf[32:36]),
		inodeSize:      binary.LittleEndian.Uint16(buf[88:90]),
		firstIno:       binary.LittleEndian.Uint32(buf[84:88]),
	}
	if sb.inodeSize == 0 {
		sb.inodeSize = 128
	}
	if sb.blocksPerGroup == 0 {
		return nil, errkind.New("ext4.readSuperblock", errkind.InvalidFs, fmt.Errorf("zero blocks_per_group"))
	}
	return sb, nil
}

// readAt reads a byte range [off, off+n) from dev, which is addressed
// in fixed-size blockdev blocks, not ext4 blocks.
func readAt(dev blockdev.Device, off uint64, n uint32) ([]byte, error) {
	bs := uint64(dev.BlockSize())
	startBlock := off / bs
	endBlock := (off + uint64(n) + bs - 1) / bs
	raw := make([]byte, (endBlock-startBlock)*bs)
	for i := uint64(0); i < endBlock-startBlock; i++ {
		if err := dev.ReadBlock(startBlock+i, raw[i*bs:(i+1)*bs]); err != nil {
			return nil, err
		}
	}
	start := off - startBlock*bs
	return raw[start : start+uint64(n)], nil
}
