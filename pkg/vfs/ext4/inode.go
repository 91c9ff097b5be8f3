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

package ext4

import (
	"encoding/binary"
	"fmt"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

const (
	groupDescSize = 32
	numDirect     = 12 // i_block[0..11]
	indirectIdx   = 12 // i_block[12]: singly-indirect pointer block
)

// inode is the decoded subset of an on-disk ext4 inode this driver
// understands: direct blocks plus one level of indirection. Double and
// triple indirect blocks, and the extents feature, are out of scope —
// every file this driver reads fits in numDirect + blockSize/4 blocks.
type inode struct {
	mode     uint16
	uid      uint32
	gid      uint32
	sizeLo   uint32
	sizeHigh uint32
	atime    uint32
	ctime    uint32
	mtime    uint32
	block    [15]uint32
}

func (i *inode) isDir() bool  { return uint32(i.mode)&modeTypeMask == modeDirType }
func (i *inode) size() uint64 { return uint64(i.sizeHigh)<<32 | uint64(i.sizeLo) }

// groupOf returns the block group index and the inode's 0-based index
// within that group's inode table, for inode number ino (1-indexed).
func (sb *superblock) groupOf(ino uint32) (group uint32, indexInGroup uint32) {
	group = (ino - 1) / sb.inodesPerGroup
	indexInGroup = (ino - 1) % sb.inodesPerGroup
	return
}

// readGroupDesc reads group g's descriptor. The descriptor table
// starts in the block immediately after the superblock's block.
func (fs *FS) readGroupDesc(g uint32) (inodeTableBlock uint32, err error) {
	gdtBlock := fs.sb.firstDataBlock + 1
	off := uint64(gdtBlock)*uint64(fs.sb.blockSize) + uint64(g)*groupDescSize
	buf, err := readAt(fs.dev, off, groupDescSize)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[8:12]), nil
}

// readInode decodes inode number ino (1-indexed) from its group's
// inode table.
func (fs *FS) readInode(ino uint32) (*inode, error) {
	group, idx := fs.sb.groupOf(ino)
	tableBlock, err := fs.readGroupDesc(group)
	if err != nil {
		return nil, err
	}
	off := uint64(tableBlock)*uint64(fs.sb.blockSize) + uint64(idx)*uint64(fs.sb.inodeSize)
	buf, err := readAt(fs.dev, off, 128)
	if err != nil {
		return nil, err
	}

	in := &inode{
		mode:   binary.LittleEndian.Uint16(buf[0:2]),
		sizeLo: binary.LittleEndian.Uint32(buf[4:8]),
		atime:  binary.LittleEndian.Uint32(buf[8:12]),
		ctime:  binary.LittleEndian.Uint32(buf[12:16]),
		mtime:  binary.LittleEndian.Uint32(buf[16:20]),
	}
	uidLo := binary.LittleEndian.Uint16(buf[2:4])
	gidLo := binary.LittleEndian.Uint16(buf[24:26])
	for b := 0; b < 15; b++ {
		in.block[b] = binary.LittleEndian.Uint32(buf[40+b*4 : 44+b*4])
	}
	if fs.sb.inodeSize > 128 {
		ext, err := readAt(fs.dev, off, uint32(fs.sb.inodeSize))
		if err != nil {
			return nil, err
		}
		in.sizeHigh = binary.LittleEndian.Uint32(ext[108:112])
		uidHigh := binary.LittleEndian.Uint16(ext[120:122])
		gidHigh := binary.LittleEndian.Uint16(ext[122:124])
		in.uid = uint32(uidLo) | uint32(uidHigh)<<16
		in.gid = uint32(gidLo) | uint32(gidHigh)<<16
	} else {
		in.uid = uint32(uidLo)
		in.gid = uint32(gidLo)
	}
	return in, nil
}

// blockAt returns the ext4-block number holding byte index*blockSize
// of in's data, resolving through the singly-indirect pointer when
// index is beyond the 12 direct pointers.
func (fs *FS) blockAt(in *inode, index uint32) (uint32, error) {
	if index < numDirect {
		return in.block[index], nil
	}
	index -= numDirect
	entriesPerBlock := fs.sb.blockSize / 4
	if index >= entriesPerBlock {
		return 0, errkind.New("ext4.blockAt", errkind.NotSupported, fmt.Errorf("double/triple indirect blocks are not supported"))
	}
	indirectBlock := in.block[indirectIdx]
	if indirectBlock == 0 {
		return 0, nil
	}
	off := uint64(indirectBlock)*uint64(fs.sb.blockSize) + uint64(index)*4
	buf, err := readAt(fs.dev, off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}
