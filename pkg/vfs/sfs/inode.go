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

package sfs

import (
	"encoding/binary"
	"fmt"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

// inode is the on-disk SFS inode record: a type tag, POSIX mode bits,
// a byte size, exactly 12 direct block pointers (no indirection — max
// file size is numDirectBlocks*blockSize), ownership and timestamps.
type inode struct {
	typ    uint32
	mode   uint32
	size   uint32
	blocks [numDirectBlocks]uint32
	uid    uint32
	gid    uint32
	atime  uint32
	mtime  uint32
	ctime  uint32
}

func (in *inode) isDir() bool { return in.typ == typeDir }

func decodeInode(buf []byte) *inode {
	in := &inode{
		typ:   binary.LittleEndian.Uint32(buf[0:4]),
		mode:  binary.LittleEndian.Uint32(buf[4:8]),
		size:  binary.LittleEndian.Uint32(buf[8:12]),
		uid:   binary.LittleEndian.Uint32(buf[60:64]),
		gid:   binary.LittleEndian.Uint32(buf[64:68]),
		atime: binary.LittleEndian.Uint32(buf[68:72]),
		mtime: binary.LittleEndian.Uint32(buf[72:76]),
		ctime: binary.LittleEndian.Uint32(buf[76:80]),
	}
	for i := 0; i < numDirectBlocks; i++ {
		in.blocks[i] = binary.LittleEndian.Uint32(buf[12+i*4 : 16+i*4])
	}
	return in
}

func encodeInode(in *inode) []byte {
	buf := make([]byte, inodeRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], in.typ)
	binary.LittleEndian.PutUint32(buf[4:8], in.mode)
	binary.LittleEndian.PutUint32(buf[8:12], in.size)
	for i := 0; i < numDirectBlocks; i++ {
		binary.LittleEndian.PutUint32(buf[12+i*4:16+i*4], in.blocks[i])
	}
	binary.LittleEndian.PutUint32(buf[60:64], in.uid)
	binary.LittleEndian.PutUint32(buf[64:68], in.gid)
	binary.LittleEndian.PutUint32(buf[68:72], in.atime)
	binary.LittleEndian.PutUint32(buf[72:76], in.mtime)
	binary.LittleEndian.PutUint32(buf[76:80], in.ctime)
	return buf
}

// inodeOffset returns the byte offset of inode ino (1-indexed) within
// the flat inode table.
func inodeOffset(ino uint32) uint64 {
	return uint64(inodeTableBlock)*blockSize + uint64(ino-1)*inodeRecordSize
}

func readInode(dev blockdev.Device, ino uint32) (*inode, error) {
	if ino == 0 {
		return nil, errkind.New("sfs.readInode", errkind.InvalidArg, fmt.Errorf("inode 0 is reserved"))
	}
	buf, err := readRange(dev, inodeOffset(ino), inodeRecordSize)
	if err != nil {
		return nil, err
	}
	return decodeInode(buf), nil
}

func writeInode(dev blockdev.Device, ino uint32, in *inode) error {
	return writeRange(dev, inodeOffset(ino), encodeInode(in))
}

// bitmap bit i lives at byte i/8, bit i%8 (LSB first).

func getBit(dev blockdev.Device, bitmapBlock uint32, i uint32) (bool, error) {
	buf, err := readRange(dev, uint64(bitmapBlock)*blockSize+uint64(i/8), 1)
	if err != nil {
		return false, err
	}
	return buf[0]&(1<<(i%8)) != 0, nil
}

func setBit(dev blockdev.Device, bitmapBlock uint32, i uint32) error {
	buf, err := readRange(dev, uint64(bitmapBlock)*blockSize+uint64(i/8), 1)
	if err != nil {
		return err
	}
	buf[0] |= 1 << (i % 8)
	return writeRange(dev, uint64(bitmapBlock)*blockSize+uint64(i/8), buf)
}

func clearBit(dev blockdev.Device, bitmapBlock uint32, i uint32) error {
	buf, err := readRange(dev, uint64(bitmapBlock)*blockSize+uint64(i/8), 1)
	if err != nil {
		return err
	}
	buf[0] &^= 1 << (i % 8)
	return writeRange(dev, uint64(bitmapBlock)*blockSize+uint64(i/8), buf)
}

// allocInode scans the inode bitmap from bit 0 for the first clear
// bit, claims it, decrements sb.freeInodes and persists the
// superblock, and returns the 1-indexed inode number.
func allocInode(dev blockdev.Device, sb *superblock) (uint32, error) {
	for i := uint32(0); i < sb.inodesCount; i++ {
		free, err := getBit(dev, inodeBitmapBlock, i)
		if err != nil {
			return 0, err
		}
		if !free {
			if err := setBit(dev, inodeBitmapBlock, i); err != nil {
				return 0, err
			}
			sb.freeInodes--
			if err := sb.writeTo(dev); err != nil {
				return 0, err
			}
			return i + 1, nil
		}
	}
	return 0, errkind.New("sfs.allocInode", errkind.DiskFull, fmt.Errorf("no free inodes"))
}

func freeInodeBit(dev blockdev.Device, sb *superblock, ino uint32) error {
	if err := clearBit(dev, inodeBitmapBlock, ino-1); err != nil {
		return err
	}
	sb.freeInodes++
	return sb.writeTo(dev)
}

// allocBlock scans the block bitmap from bit 0 for the first clear
// bit, decrements sb.freeBlocks and persists the superblock, and
// returns the absolute SFS block number (data_block_start + bit
// index).
func allocBlock(dev blockdev.Device, sb *superblock) (uint32, error) {
	for i := uint32(0); i < sb.blocksCount; i++ {
		used, err := getBit(dev, blockBitmapBlock, i)
		if err != nil {
			return 0, err
		}
		if !used {
			if err := setBit(dev, blockBitmapBlock, i); err != nil {
				return 0, err
			}
			sb.freeBlocks--
			if err := sb.writeTo(dev); err != nil {
				return 0, err
			}
			return sb.dataBlockStart + i, nil
		}
	}
	return 0, errkind.New("sfs.allocBlock", errkind.DiskFull, fmt.Errorf("no free data blocks"))
}

func freeBlock(dev blockdev.Device, sb *superblock, blk uint32) error {
	if err := clearBit(dev, blockBitmapBlock, blk-sb.dataBlockStart); err != nil {
		return err
	}
	sb.freeBlocks++
	return sb.writeTo(dev)
}
