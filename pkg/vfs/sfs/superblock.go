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

// Package sfs implements the Scarlett File System: a from-scratch
// teaching filesystem with an explicit superblock, a one-block inode
// bitmap, a one-block data bitmap, a flat inode table, and 12-direct-
// block-only inodes (no indirect blocks — max file size is
// 12*block_size). Like pkg/vfs/fat32, and unlike the read-only
// pkg/vfs/ext4, SFS supports full read/write/mkdir/unlink/rename;
// unlike either, a create also makes any missing intermediate
// directories of a multi-component path.
package sfs

import (
	"encoding/binary"
	"fmt"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

const (
	sfsMagic  = 0x5346_5321
	blockSize = 4096

	inodeBitmapBlock = 1
	blockBitmapBlock = 2
	inodeTableBlock  = 3
	rootInode        = 1

	inodeRecordSize = 80
	numDirectBlocks = 12

	typeFile = 0
	typeDir  = 1
)

// superblock is the on-disk SFS superblock.
type superblock struct {
	blocksCount    uint32 // data blocks only
	inodesCount    uint32
	freeBlocks     uint32
	freeInodes     uint32
	dataBlockStart uint32
}

// readSuperblock reads and validates the superblock stored in block 0.
func readSuperblock(dev blockdev.Device) (*superblock, error) {
	buf, err := readBlock(dev, 0)
	if err != nil {
		return nil, err
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != sfsMagic {
		return nil, errkind.New("sfs.readSuperblock", errkind.InvalidFs, fmt.Errorf("bad magic 0x%08x, want 0x%08x", magic, sfsMagic))
	}
	return &superblock{
		blocksCount:    binary.LittleEndian.Uint32(buf[8:12]),
		inodesCount:    binary.LittleEndian.Uint32(buf[12:16]),
		freeBlocks:     binary.LittleEndian.Uint32(buf[16:20]),
		freeInodes:     binary.LittleEndian.Uint32(buf[20:24]),
		dataBlockStart: binary.LittleEndian.Uint32(buf[36:40]),
	}, nil
}

func (sb *superblock) writeTo(dev blockdev.Device) error {
	buf := make([]byte, blockSize)
	binary.LittleEndian.PutUint32(buf[0:4], sfsMagic)
	binary.LittleEndian.PutUint32(buf[4:8], blockSize)
	binary.LittleEndian.PutUint32(buf[8:12], sb.blocksCount)
	binary.LittleEndian.PutUint32(buf[12:16], sb.inodesCount)
	binary.LittleEndian.PutUint32(buf[16:20], sb.freeBlocks)
	binary.LittleEndian.PutUint32(buf[20:24], sb.freeInodes)
	binary.LittleEndian.PutUint32(buf[24:28], inodeBitmapBlock)
	binary.LittleEndian.PutUint32(buf[28:32], blockBitmapBlock)
	binary.LittleEndian.PutUint32(buf[32:36], inodeTableBlock)
	binary.LittleEndian.PutUint32(buf[36:40], sb.dataBlockStart)
	binary.LittleEndian.PutUint32(buf[40:44], rootInode)
	return writeBlock(dev, 0, buf)
}

func inodeTableBlocks(inodesCount uint32) uint32 {
	total := inodesCount * inodeRecordSize
	return (total + blockSize - 1) / blockSize
}

// Format lays out a fresh SFS volume on dev per the source's format
// algorithm: a superblock, zeroed bitmaps with inode 1 pre-marked
// used, and a root directory inode at the start of the inode table.
func Format(dev blockdev.Device) error {
	totalBytes := dev.BlockCount() * uint64(dev.BlockSize())
	totalBlocks := uint32(totalBytes / blockSize)
	inodesCount := totalBlocks / 4
	tableBlocks := inodeTableBlocks(inodesCount)
	dataStart := 3 + tableBlocks
	if totalBlocks <= dataStart {
		return errkind.New("sfs.Format", errkind.InvalidArg, fmt.Errorf("device too small for an SFS volume"))
	}

	sb := &superblock{
		blocksCount:    totalBlocks - dataStart,
		inodesCount:    inodesCount,
		freeBlocks:     totalBlocks - dataStart,
		freeInodes:     inodesCount - 1,
		dataBlockStart: dataStart,
	}
	if err := sb.writeTo(dev); err != nil {
		return err
	}

	zero := make([]byte, blockSize)
	if err := writeBlock(dev, inodeBitmapBlock, zero); err != nil {
		return err
	}
	if err := writeBlock(dev, blockBitmapBlock, zero); err != nil {
		return err
	}
	if err := setBit(dev, inodeBitmapBlock, 0); err != nil {
		return err
	}

	root := &inode{typ: typeDir, mode: 0o755, size: 0}
	return writeInode(dev, rootInode, root)
}

// readBlock reads the blockSize-byte SFS block at index blk.
func readBlock(dev blockdev.Device, blk uint32) ([]byte, error) {
	return readRange(dev, uint64(blk)*blockSize, blockSize)
}

func writeBlock(dev blockdev.Device, blk uint32, data []byte) error {
	return writeRange(dev, uint64(blk)*blockSize, data)
}

func readRange(dev blockdev.Device, off uint64, n uint32) ([]byte, error) {
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

func writeRange(dev blockdev.Device, off uint64, data []byte) error {
	bs := uint64(dev.BlockSize())
	startBlock := off / bs
	endBlock := (off + uint64(len(data)) + bs - 1) / bs
	raw := make([]byte, (endBlock-startBlock)*bs)
	for i := uint64(0); i < endBlock-startBlock; i++ {
		if err := dev.ReadBlock(startBlock+i, raw[i*bs:(i+1)*bs]); err != nil {
			return err
		}
	}
	start := off - startBlock*bs
	copy(raw[start:start+uint64(len(data))], data)
	for i := uint64(0); i < endBlock-startBlock; i++ {
		if err := dev.WriteBlock(startBlock+i, raw[i*bs:(i+1)*bs]); err != nil {
			return err
		}
	}
	return nil
}
