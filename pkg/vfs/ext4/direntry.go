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

const dirEntryHeaderSize = 8

const (
	fileTypeUnknown = 0
	fileTypeRegular = 1
	fileTypeDir     = 2
)

// linkedDirEntry is one classic ext2-style directory entry: a 4-byte
// inode number, a 2-byte record length spanning any padding to the
// next entry, a 1-byte name length, a 1-byte file type, and the name
// itself.
type linkedDirEntry struct {
	ino     uint32
	recLen  uint16
	name    string
	isDir   bool
}

// readDirBlock decodes every entry in one ext4-block-sized directory
// block, skipping unused slots (ino == 0).
func (fs *FS) readDirBlock(block uint32) ([]linkedDirEntry, error) {
	buf, err := readAt(fs.dev, uint64(block)*uint64(fs.sb.blockSize), fs.sb.blockSize)
	if err != nil {
		return nil, err
	}
	var entries []linkedDirEntry
	off := uint32(0)
	for off+dirEntryHeaderSize <= fs.sb.blockSize {
		ino := binary.LittleEndian.Uint32(buf[off : off+4])
		recLen := binary.LittleEndian.Uint16(buf[off+4 : off+6])
		nameLen := buf[off+6]
		fileType := buf[off+7]
		if recLen == 0 {
			break
		}
		if ino != 0 {
			name := string(buf[off+8 : off+8+uint32(nameLen)])
			entries = append(entries, linkedDirEntry{ino: ino, recLen: recLen, name: name, isDir: fileType == fileTypeDir})
		}
		off += uint32(recLen)
	}
	return entries, nil
}

// listDir returns every entry across every data block of the
// directory at inode dirIno.
func (fs *FS) listDir(dirIno uint32) ([]linkedDirEntry, error) {
	in, err := fs.readInode(dirIno)
	if err != nil {
		return nil, err
	}
	if !in.isDir() {
		return nil, errkind.New("ext4.listDir", errkind.NotADirectory, fmt.Errorf("inode %d is not a directory", dirIno))
	}
	numBlocks := (in.size() + uint64(fs.sb.blockSize) - 1) / uint64(fs.sb.blockSize)
	var all []linkedDirEntry
	for i := uint32(0); uint64(i) < numBlocks; i++ {
		blk, err := fs.blockAt(in, i)
		if err != nil {
			return nil, err
		}
		if blk == 0 {
			continue
		}
		entries, err := fs.readDirBlock(blk)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	return all, nil
}

// findInDir resolves name directly under dirIno.
func (fs *FS) findInDir(dirIno uint32, name string) (uint32, error) {
	entries, err := fs.listDir(dirIno)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.name == name {
			return e.ino, nil
		}
	}
	return 0, errkind.New("ext4.findInDir", errkind.NotFound, fmt.Errorf("%q not found", name))
}
