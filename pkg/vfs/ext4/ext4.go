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
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/vfs"
)

// FS is a read-only vfs.Filesystem backed by an ext4-layout volume.
type FS struct {
	mu  sync.Mutex
	dev blockdev.Device
	sb  *superblock
}

func New() *FS { return &FS{} }

func init() {
	vfs.RegisterDriver("ext4", func() vfs.Filesystem { return New() })
}

func (fs *FS) Name() string { return "ext4" }

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

// fileHandle pins the inode number and its decoded metadata, read
// once at Open.
type fileHandle struct {
	ino  uint32
	node *inode
}

type dirHandle struct {
	entries []vfs.DirEntry
	idx     int
}

// resolve walks relPath from the root inode, component by component.
func (fs *FS) resolve(relPath string) (uint32, error) {
	clean := strings.Trim(relPath, "/")
	ino := uint32(rootInode)
	if clean == "" {
		return ino, nil
	}
	for _, part := range strings.Split(clean, "/") {
		next, err := fs.findInDir(ino, part)
		if err != nil {
			return 0, err
		}
		ino = next
	}
	return ino, nil
}

func (fs *FS) Open(relPath string, flags vfs.OpenFlag) (vfs.FileHandle, error) {
	if flags&(vfs.Create|vfs.Write|vfs.Trunc) != 0 {
		return nil, errkind.New("ext4.Open", errkind.NotSupported, fmt.Errorf("ext4 is read-only"))
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(relPath)
	if err != nil {
		return nil, err
	}
	in, err := fs.readInode(ino)
	if err != nil {
		return nil, err
	}
	if in.isDir() {
		return nil, errkind.New("ext4.Open", errkind.IsADirectory, fmt.Errorf("%q is a directory", relPath))
	}
	return &fileHandle{ino: ino, node: in}, nil
}

func (fs *FS) Close(fh vfs.FileHandle) error { return nil }

// ReadAt honours offset and the buffer length, returning a short read
// at end of file, per the read_file contract.
func (fs *FS) ReadAt(fh vfs.FileHandle, buf []byte, offset int64) (int, error) {
	h := fh.(*fileHandle)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	size := h.node.size()
	if offset < 0 || uint64(offset) >= size {
		return 0, nil
	}
	end := uint64(offset) + uint64(len(buf))
	if end > size {
		end = size
	}
	toRead := int(end - uint64(offset))

	total := 0
	pos := uint64(offset)
	for total < toRead {
		blockIndex := uint32(pos / uint64(fs.sb.blockSize))
		withinBlock := uint32(pos % uint64(fs.sb.blockSize))
		blk, err := fs.blockAt(h.node, blockIndex)
		if err != nil {
			return total, err
		}
		if blk == 0 {
			// A hole: unallocated blocks inside a sparse file read as
			// zero without touching the device.
			n := int(fs.sb.blockSize - withinBlock)
			if total+n > toRead {
				n = toRead - total
			}
			for i := 0; i < n; i++ {
				buf[total+i] = 0
			}
			total += n
			pos += uint64(n)
			continue
		}
		full, err := readAt(fs.dev, uint64(blk)*uint64(fs.sb.blockSize), fs.sb.blockSize)
		if err != nil {
			return total, err
		}
		n := copy(buf[total:toRead], full[withinBlock:])
		total += n
		pos += uint64(n)
	}
	return total, nil
}

func (fs *FS) WriteAt(fh vfs.FileHandle, buf []byte, offset int64) (int, error) {
	return 0, errkind.New("ext4.WriteAt", errkind.NotSupported, fmt.Errorf("ext4 is read-only"))
}

func (fs *FS) Stat(relPath string) (vfs.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(relPath)
	if err != nil {
		return vfs.FileInfo{}, err
	}
	in, err := fs.readInode(ino)
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return vfs.FileInfo{
		Ino:   uint64(ino),
		Size:  int64(in.size()),
		Mode:  uint32(in.mode) & 0x0FFF,
		Uid:   in.uid,
		Gid:   in.gid,
		IsDir: in.isDir(),
		Atime: time.Unix(int64(in.atime), 0),
		Mtime: time.Unix(int64(in.mtime), 0),
		Ctime: time.Unix(int64(in.ctime), 0),
	}, nil
}

func (fs *FS) Mkdir(relPath string, mode uint32) error {
	return errkind.New("ext4.Mkdir", errkind.NotSupported, fmt.Errorf("ext4 is read-only"))
}

func (fs *FS) Rmdir(relPath string) error {
	return errkind.New("ext4.Rmdir", errkind.NotSupported, fmt.Errorf("ext4 is read-only"))
}

func (fs *FS) Unlink(relPath string) error {
	return errkind.New("ext4.Unlink", errkind.NotSupported, fmt.Errorf("ext4 is read-only"))
}

func (fs *FS) Rename(oldRelPath, newRelPath string) error {
	return errkind.New("ext4.Rename", errkind.NotSupported, fmt.Errorf("ext4 is read-only"))
}

func (fs *FS) OpenDir(relPath string) (vfs.DirHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ino, err := fs.resolve(relPath)
	if err != nil {
		return nil, err
	}
	raw, err := fs.listDir(ino)
	if err != nil {
		return nil, err
	}
	var entries []vfs.DirEntry
	for _, e := range raw {
		if e.name == "." || e.name == ".." {
			continue
		}
		typ := vfs.EntryFile
		if e.isDir {
			typ = vfs.EntryDirectory
		}
		entries = append(entries, vfs.DirEntry{Ino: uint64(e.ino), Name: e.name, Type: typ})
	}
	return &dirHandle{entries: entries}, nil
}

func (fs *FS) ReadDir(dh vfs.DirHandle) (vfs.DirEntry, error) {
	h := dh.(*dirHandle)
	if h.idx >= len(h.entries) {
		return vfs.DirEntry{}, errkind.New("ext4.ReadDir", errkind.EndOfFile, nil)
	}
	e := h.entries[h.idx]
	h.idx++
	return e, nil
}

func (fs *FS) CloseDir(dh vfs.DirHandle) error { return nil }

var _ vfs.Filesystem = (*FS)(nil)
