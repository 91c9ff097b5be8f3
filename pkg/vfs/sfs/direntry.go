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

// A directory entry is a fixed 64-byte record: a 4-byte inode number,
// a 59-byte name field, and a 1-byte used flag. 59 bytes of name
// matches the on-disk field width the root-only CREATE path used.
const (
	dirEntrySize = 64
	dirNameLen   = 59
)

type dirSlot struct {
	blockIdx uint32 // direct block index within the directory inode
	offset   uint32 // byte offset within that block
	ino      uint32
	name     string
	used     bool
}

func encodeDirEntry(ino uint32, name string) ([]byte, error) {
	if len(name) > dirNameLen {
		return nil, errkind.New("sfs.encodeDirEntry", errkind.InvalidArg, fmt.Errorf("name %q exceeds %d bytes", name, dirNameLen))
	}
	buf := make([]byte, dirEntrySize)
	binary.LittleEndian.PutUint32(buf[0:4], ino)
	copy(buf[4:4+dirNameLen], name)
	buf[4+dirNameLen] = 1
	return buf, nil
}

func decodeDirEntry(buf []byte) dirSlot {
	ino := binary.LittleEndian.Uint32(buf[0:4])
	used := buf[4+dirNameLen] != 0
	raw := buf[4 : 4+dirNameLen]
	end := 0
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	return dirSlot{ino: ino, name: string(raw[:end]), used: used}
}

// blockForIndex returns the absolute data block backing direct index
// idx of in, allocating and zeroing a fresh block when alloc is true
// and the slot is empty. The caller persists in after allocation.
func blockForIndex(dev blockdev.Device, sb *superblock, in *inode, idx uint32, alloc bool) (uint32, error) {
	if idx >= numDirectBlocks {
		return 0, errkind.New("sfs.blockForIndex", errkind.NotSupported, fmt.Errorf("index %d exceeds %d direct blocks", idx, numDirectBlocks))
	}
	if in.blocks[idx] != 0 {
		return in.blocks[idx], nil
	}
	if !alloc {
		return 0, nil
	}
	blk, err := allocBlock(dev, sb)
	if err != nil {
		return 0, err
	}
	if err := writeBlock(dev, blk, make([]byte, blockSize)); err != nil {
		return 0, err
	}
	in.blocks[idx] = blk
	return blk, nil
}

const entriesPerBlock = blockSize / dirEntrySize

// listDirEntries returns every used slot across the blocks a
// directory inode currently occupies.
func listDirEntries(dev blockdev.Device, in *inode) ([]dirSlot, error) {
	var out []dirSlot
	for idx := uint32(0); idx < numDirectBlocks; idx++ {
		if in.blocks[idx] == 0 {
			continue
		}
		buf, err := readBlock(dev, in.blocks[idx])
		if err != nil {
			return nil, err
		}
		for e := 0; e < entriesPerBlock; e++ {
			off := e * dirEntrySize
			slot := decodeDirEntry(buf[off : off+dirEntrySize])
			if !slot.used {
				continue
			}
			slot.blockIdx = idx
			slot.offset = uint32(off)
			out = append(out, slot)
		}
	}
	return out, nil
}

func findInDir(dev blockdev.Device, in *inode, name string) (uint32, error) {
	entries, err := listDirEntries(dev, in)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.name == name {
			return e.ino, nil
		}
	}
	return 0, errkind.New("sfs.findInDir", errkind.NotFound, fmt.Errorf("%q not found", name))
}

// addDirEntry claims the first free slot across the directory's
// existing blocks, allocating a new block when none has room. It
// updates in.blocks/in.size in place; the caller persists in.
func addDirEntry(dev blockdev.Device, sb *superblock, in *inode, name string, ino uint32) error {
	if _, err := findInDir(dev, in, name); err == nil {
		return errkind.New("sfs.addDirEntry", errkind.AlreadyExists, fmt.Errorf("%q already exists", name))
	}

	rec, err := encodeDirEntry(ino, name)
	if err != nil {
		return err
	}

	for idx := uint32(0); idx < numDirectBlocks; idx++ {
		if in.blocks[idx] == 0 {
			continue
		}
		buf, err := readBlock(dev, in.blocks[idx])
		if err != nil {
			return err
		}
		for e := 0; e < entriesPerBlock; e++ {
			off := e * dirEntrySize
			if decodeDirEntry(buf[off : off+dirEntrySize]).used {
				continue
			}
			copy(buf[off:off+dirEntrySize], rec)
			if err := writeBlock(dev, in.blocks[idx], buf); err != nil {
				return err
			}
			growSize(in, idx)
			return nil
		}
	}

	for idx := uint32(0); idx < numDirectBlocks; idx++ {
		if in.blocks[idx] != 0 {
			continue
		}
		blk, err := blockForIndex(dev, sb, in, idx, true)
		if err != nil {
			return err
		}
		buf, err := readBlock(dev, blk)
		if err != nil {
			return err
		}
		copy(buf[0:dirEntrySize], rec)
		if err := writeBlock(dev, blk, buf); err != nil {
			return err
		}
		growSize(in, idx)
		return nil
	}
	return errkind.New("sfs.addDirEntry", errkind.DiskFull, fmt.Errorf("directory has no room for another entry"))
}

func growSize(in *inode, idx uint32) {
	want := (idx + 1) * blockSize
	if want > in.size {
		in.size = want
	}
}

func removeDirEntry(dev blockdev.Device, in *inode, name string) error {
	entries, err := listDirEntries(dev, in)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.name != name {
			continue
		}
		buf, err := readBlock(dev, in.blocks[e.blockIdx])
		if err != nil {
			return err
		}
		clear := make([]byte, dirEntrySize)
		copy(buf[e.offset:e.offset+dirEntrySize], clear)
		return writeBlock(dev, in.blocks[e.blockIdx], buf)
	}
	return errkind.New("sfs.removeDirEntry", errkind.NotFound, fmt.Errorf("%q not found", name))
}

func dirIsEmpty(dev blockdev.Device, in *inode) (bool, error) {
	entries, err := listDirEntries(dev, in)
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
