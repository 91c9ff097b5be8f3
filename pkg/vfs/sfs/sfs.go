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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/vfs"
)

// FS is a vfs.Filesystem backed by an SFS volume. One FS serves
// exactly one mount point; fs.mu serialises every call.
type FS struct {
	mu  sync.Mutex
	dev blockdev.Device
	sb  *superblock
}

// New returns an unmounted SFS filesystem instance.
func New() *FS { return &FS{} }

func init() {
	vfs.RegisterDriver("sfs", func() vfs.Filesystem { return New() })
}

func (fs *FS) Name() string { return "sfs" }

func (fs *FS) Mount(deviceName, mountPoint string) error {
	dev, err := blockdev.Default.Get(deviceName)
	if err != nil {
		return err
	}
	sb, err := readSuperblock(dev)
	if err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.dev = dev
	fs.sb = sb
	return nil
}

func (fs *FS) Unmount() error { return nil }

type fileHandle struct {
	ino  uint32
	node *inode
}

type dirHandle struct {
	entries []vfs.DirEntry
	idx     int
}

// resolveDir walks relPath's parent components from the root,
// creating any missing intermediate directory the same way a deep
// CREATE is expected to behave, unlike the root-only original. It
// returns the parent inode number, its live decoded inode, and the
// final path component's name.
func (fs *FS) resolveDir(relPath string, createMissing bool) (parentIno uint32, parent *inode, name string, err error) {
	clean := strings.Trim(relPath, "/")
	if clean == "" {
		root, err := readInode(fs.dev, rootInode)
		if err != nil {
			return 0, nil, "", err
		}
		return rootInode, root, "", nil
	}
	parts := strings.Split(clean, "/")
	ino := uint32(rootInode)
	node, err := readInode(fs.dev, ino)
	if err != nil {
		return 0, nil, "", err
	}
	for _, part := range parts[:len(parts)-1] {
		next, err := findInDir(fs.dev, node, part)
		if errkind.Is(err, errkind.NotFound) {
			if !createMissing {
				return 0, nil, "", err
			}
			next, err = fs.createDir(ino, node, part)
			if err != nil {
				return 0, nil, "", err
			}
		} else if err != nil {
			return 0, nil, "", err
		}
		child, err := readInode(fs.dev, next)
		if err != nil {
			return 0, nil, "", err
		}
		if !child.isDir() {
			return 0, nil, "", errkind.New("sfs.resolveDir", errkind.NotADirectory, fmt.Errorf("%q is not a directory", part))
		}
		ino, node = next, child
	}
	return ino, node, parts[len(parts)-1], nil
}

// createDir allocates a new, empty directory inode, links it into
// parent under name, and persists both inodes.
func (fs *FS) createDir(parentIno uint32, parent *inode, name string) (uint32, error) {
	childIno, err := allocInode(fs.dev, fs.sb)
	if err != nil {
		return 0, err
	}
	child := &inode{typ: typeDir, mode: 0o755}
	if err := writeInode(fs.dev, childIno, child); err != nil {
		return 0, err
	}
	if err := addDirEntry(fs.dev, fs.sb, parent, name, childIno); err != nil {
		return 0, err
	}
	if err := writeInode(fs.dev, parentIno, parent); err != nil {
		return 0, err
	}
	return childIno, nil
}

func (fs *FS) resolve(relPath string) (uint32, error) {
	parentIno, parent, name, err := fs.resolveDir(relPath, false)
	if err != nil {
		return 0, err
	}
	if name == "" {
		return parentIno, nil
	}
	return findInDir(fs.dev, parent, name)
}

func (fs *FS) Open(relPath string, flags vfs.OpenFlag) (vfs.FileHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentIno, parent, name, err := fs.resolveDir(relPath, flags&vfs.Create != 0)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errkind.New("sfs.Open", errkind.IsADirectory, fmt.Errorf("%q is the volume root", relPath))
	}

	ino, err := findInDir(fs.dev, parent, name)
	if errkind.Is(err, errkind.NotFound) {
		if flags&vfs.Create == 0 {
			return nil, err
		}
		newIno, err := allocInode(fs.dev, fs.sb)
		if err != nil {
			return nil, err
		}
		node := &inode{typ: typeFile, mode: 0o644}
		if err := writeInode(fs.dev, newIno, node); err != nil {
			return nil, err
		}
		if err := addDirEntry(fs.dev, fs.sb, parent, name, newIno); err != nil {
			return nil, err
		}
		if err := writeInode(fs.dev, parentIno, parent); err != nil {
			return nil, err
		}
		return &fileHandle{ino: newIno, node: node}, nil
	}
	if err != nil {
		return nil, err
	}

	node, err := readInode(fs.dev, ino)
	if err != nil {
		return nil, err
	}
	if node.isDir() {
		return nil, errkind.New("sfs.Open", errkind.IsADirectory, fmt.Errorf("%q is a directory", relPath))
	}
	if flags&vfs.Trunc != 0 {
		for i, blk := range node.blocks {
			if blk == 0 {
				continue
			}
			if err := freeBlock(fs.dev, fs.sb, blk); err != nil {
				return nil, err
			}
			node.blocks[i] = 0
		}
		node.size = 0
		if err := writeInode(fs.dev, ino, node); err != nil {
			return nil, err
		}
	}
	return &fileHandle{ino: ino, node: node}, nil
}

func (fs *FS) Close(fh vfs.FileHandle) error { return nil }

func (fs *FS) ReadAt(fh vfs.FileHandle, buf []byte, offset int64) (int, error) {
	h := fh.(*fileHandle)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if offset < 0 || uint64(offset) >= uint64(h.node.size) {
		return 0, nil
	}
	end := uint64(offset) + uint64(len(buf))
	if end > uint64(h.node.size) {
		end = uint64(h.node.size)
	}
	toRead := int(end - uint64(offset))

	total := 0
	pos := uint64(offset)
	for total < toRead {
		idx := uint32(pos / blockSize)
		within := uint32(pos % blockSize)
		blk, err := blockForIndex(fs.dev, fs.sb, h.node, idx, false)
		if err != nil {
			return total, err
		}
		n := int(blockSize - within)
		if total+n > toRead {
			n = toRead - total
		}
		if blk == 0 {
			for i := 0; i < n; i++ {
				buf[total+i] = 0
			}
		} else {
			full, err := readBlock(fs.dev, blk)
			if err != nil {
				return total, err
			}
			copy(buf[total:total+n], full[within:])
		}
		total += n
		pos += uint64(n)
	}
	return total, nil
}

func (fs *FS) WriteAt(fh vfs.FileHandle, buf []byte, offset int64) (int, error) {
	h := fh.(*fileHandle)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if offset < 0 {
		return 0, errkind.New("sfs.WriteAt", errkind.InvalidArg, fmt.Errorf("negative offset"))
	}
	if uint64(offset)+uint64(len(buf)) > uint64(numDirectBlocks)*blockSize {
		return 0, errkind.New("sfs.WriteAt", errkind.NotSupported, fmt.Errorf("write exceeds the %d-direct-block file size limit", numDirectBlocks))
	}

	total := 0
	pos := uint64(offset)
	for total < len(buf) {
		idx := uint32(pos / blockSize)
		within := uint32(pos % blockSize)
		blk, err := blockForIndex(fs.dev, fs.sb, h.node, idx, true)
		if err != nil {
			return total, err
		}
		full, err := readBlock(fs.dev, blk)
		if err != nil {
			return total, err
		}
		n := copy(full[within:], buf[total:])
		if err := writeBlock(fs.dev, blk, full); err != nil {
			return total, err
		}
		total += n
		pos += uint64(n)
	}

	if newSize := uint32(uint64(offset) + uint64(total)); newSize > h.node.size {
		h.node.size = newSize
	}
	if err := writeInode(fs.dev, h.ino, h.node); err != nil {
		return total, err
	}
	return total, nil
}

func (fs *FS) Stat(relPath string) (vfs.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(relPath)
	if err != nil {
		return vfs.FileInfo{}, err
	}
	node, err := readInode(fs.dev, ino)
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return vfs.FileInfo{
		Ino:   uint64(ino),
		Size:  int64(node.size),
		Mode:  node.mode,
		Uid:   node.uid,
		Gid:   node.gid,
		IsDir: node.isDir(),
		Atime: time.Unix(int64(node.atime), 0),
		Mtime: time.Unix(int64(node.mtime), 0),
		Ctime: time.Unix(int64(node.ctime), 0),
	}, nil
}

func (fs *FS) Mkdir(relPath string, mode uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentIno, parent, name, err := fs.resolveDir(relPath, true)
	if err != nil {
		return err
	}
	if name == "" {
		return errkind.New("sfs.Mkdir", errkind.AlreadyExists, fmt.Errorf("the volume root always exists"))
	}
	if _, err := findInDir(fs.dev, parent, name); err == nil {
		return errkind.New("sfs.Mkdir", errkind.AlreadyExists, fmt.Errorf("%q already exists", relPath))
	}

	childIno, err := allocInode(fs.dev, fs.sb)
	if err != nil {
		return err
	}
	child := &inode{typ: typeDir, mode: mode}
	if err := writeInode(fs.dev, childIno, child); err != nil {
		return err
	}
	if err := addDirEntry(fs.dev, fs.sb, parent, name, childIno); err != nil {
		return err
	}
	return writeInode(fs.dev, parentIno, parent)
}

func (fs *FS) Rmdir(relPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentIno, parent, name, err := fs.resolveDir(relPath, false)
	if err != nil {
		return err
	}
	if name == "" {
		return errkind.New("sfs.Rmdir", errkind.PermissionDenied, fmt.Errorf("cannot remove the volume root"))
	}
	ino, err := findInDir(fs.dev, parent, name)
	if err != nil {
		return err
	}
	node, err := readInode(fs.dev, ino)
	if err != nil {
		return err
	}
	if !node.isDir() {
		return errkind.New("sfs.Rmdir", errkind.NotADirectory, fmt.Errorf("%q is not a directory", relPath))
	}
	empty, err := dirIsEmpty(fs.dev, node)
	if err != nil {
		return err
	}
	if !empty {
		return errkind.New("sfs.Rmdir", errkind.NotEmpty, fmt.Errorf("%q is not empty", relPath))
	}
	for _, blk := range node.blocks {
		if blk != 0 {
			if err := freeBlock(fs.dev, fs.sb, blk); err != nil {
				return err
			}
		}
	}
	if err := freeInodeBit(fs.dev, fs.sb, ino); err != nil {
		return err
	}
	if err := removeDirEntry(fs.dev, parent, name); err != nil {
		return err
	}
	return writeInode(fs.dev, parentIno, parent)
}

func (fs *FS) Unlink(relPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentIno, parent, name, err := fs.resolveDir(relPath, false)
	if err != nil {
		return err
	}
	ino, err := findInDir(fs.dev, parent, name)
	if err != nil {
		return err
	}
	node, err := readInode(fs.dev, ino)
	if err != nil {
		return err
	}
	if node.isDir() {
		return errkind.New("sfs.Unlink", errkind.IsADirectory, fmt.Errorf("%q is a directory", relPath))
	}
	for _, blk := range node.blocks {
		if blk != 0 {
			if err := freeBlock(fs.dev, fs.sb, blk); err != nil {
				return err
			}
		}
	}
	if err := freeInodeBit(fs.dev, fs.sb, ino); err != nil {
		return err
	}
	if err := removeDirEntry(fs.dev, parent, name); err != nil {
		return err
	}
	return writeInode(fs.dev, parentIno, parent)
}

func (fs *FS) Rename(oldRelPath, newRelPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldParentIno, oldParent, oldName, err := fs.resolveDir(oldRelPath, false)
	if err != nil {
		return err
	}
	ino, err := findInDir(fs.dev, oldParent, oldName)
	if err != nil {
		return err
	}

	newParentIno, newParent, newName, err := fs.resolveDir(newRelPath, true)
	if err != nil {
		return err
	}
	if _, err := findInDir(fs.dev, newParent, newName); err == nil {
		return errkind.New("sfs.Rename", errkind.AlreadyExists, fmt.Errorf("%q already exists", newRelPath))
	}

	if err := addDirEntry(fs.dev, fs.sb, newParent, newName, ino); err != nil {
		return err
	}
	if err := writeInode(fs.dev, newParentIno, newParent); err != nil {
		return err
	}
	if err := removeDirEntry(fs.dev, oldParent, oldName); err != nil {
		return err
	}
	return writeInode(fs.dev, oldParentIno, oldParent)
}

func (fs *FS) OpenDir(relPath string) (vfs.DirHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(relPath)
	if err != nil {
		return nil, err
	}
	node, err := readInode(fs.dev, ino)
	if err != nil {
		return nil, err
	}
	if !node.isDir() {
		return nil, errkind.New("sfs.OpenDir", errkind.NotADirectory, fmt.Errorf("%q is not a directory", relPath))
	}
	slots, err := listDirEntries(fs.dev, node)
	if err != nil {
		return nil, err
	}
	var entries []vfs.DirEntry
	for _, s := range slots {
		child, err := readInode(fs.dev, s.ino)
		if err != nil {
			return nil, err
		}
		typ := vfs.EntryFile
		if child.isDir() {
			typ = vfs.EntryDirectory
		}
		entries = append(entries, vfs.DirEntry{Ino: uint64(s.ino), Name: s.name, Type: typ})
	}
	return &dirHandle{entries: entries}, nil
}

func (fs *FS) ReadDir(dh vfs.DirHandle) (vfs.DirEntry, error) {
	h := dh.(*dirHandle)
	if h.idx >= len(h.entries) {
		return vfs.DirEntry{}, errkind.New("sfs.ReadDir", errkind.EndOfFile, nil)
	}
	e := h.entries[h.idx]
	h.idx++
	return e, nil
}

func (fs *FS) CloseDir(dh vfs.DirHandle) error { return nil }

var _ vfs.Filesystem = (*FS)(nil)
