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
	"fmt"
	"strings"
	"sync"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/vfs"
)

// FS is a vfs.Filesystem backed by a FAT32 volume on a blockdev.Device.
// One FS serves exactly one mount point; fs.mu serialises every call,
// matching the single-lock-per-object style the rest of this tree uses
// for comparable shared state.
type FS struct {
	mu  sync.Mutex
	dev blockdev.Device
	sb  *superblock

	cache *fatCache
}

// New returns an unmounted FAT32 filesystem instance. Drivers register
// a constructor wrapping New with vfs.RegisterDriver at init.
func New() *FS { return &FS{} }

func init() {
	vfs.RegisterDriver("fat32", func() vfs.Filesystem { return New() })
}

func (fs *FS) Name() string { return "fat32" }

// Mount resolves deviceName against blockdev.Default, reads and
// validates the superblock, and readies the FAT cache. mountPoint is
// unused here; the VFS, not the driver, records mount-table entries.
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
	fs.cache = newFATCache(dev, sb.bytesPerSector)
	return nil
}

func (fs *FS) Unmount() error { return nil }

// fileHandle is the state Open hands back for a single open file: the
// directory it lives in, its entry's on-disk location (for metadata
// writeback), and a live copy of its first cluster and size (mutated
// in place as WriteAt grows the file).
type fileHandle struct {
	parentCluster uint32
	entryLoc      dirLocation
	firstCluster  uint32
	size          uint32
}

type dirHandle struct {
	entries []vfs.DirEntry
	idx     int
}

// splitPath splits an absolute relPath into its parent directory's
// cluster and the final path component's name. "" and "/" both name
// the volume root.
func (fs *FS) splitPath(relPath string) (parentCluster uint32, name string, err error) {
	clean := strings.Trim(relPath, "/")
	if clean == "" {
		return fs.sb.rootCluster, "", nil
	}
	parts := strings.Split(clean, "/")
	cluster := fs.sb.rootCluster
	for _, part := range parts[:len(parts)-1] {
		entry, _, err := fs.findEntry(cluster, part)
		if err != nil {
			return 0, "", err
		}
		if !entry.isDirectory() {
			return 0, "", errkind.New("fat32.splitPath", errkind.NotADirectory, fmt.Errorf("%q is not a directory", part))
		}
		cluster = entry.firstCluster()
	}
	return cluster, parts[len(parts)-1], nil
}

func (fs *FS) Open(relPath string, flags vfs.OpenFlag) (vfs.FileHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentCluster, name, err := fs.splitPath(relPath)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errkind.New("fat32.Open", errkind.IsADirectory, fmt.Errorf("%q is the volume root", relPath))
	}

	entry, loc, err := fs.findEntry(parentCluster, name)
	if errkind.Is(err, errkind.NotFound) {
		if flags&vfs.Create == 0 {
			return nil, err
		}
		loc, err = fs.findFreeSlot(parentCluster)
		if err != nil {
			return nil, err
		}
		rawName, err := formatShortName(name)
		if err != nil {
			return nil, err
		}
		var e rawDirEntry
		copy(e.data[0:11], rawName[:])
		e.data[11] = attrArchive
		if err := fs.writeEntry(&e, loc); err != nil {
			return nil, err
		}
		return &fileHandle{parentCluster: parentCluster, entryLoc: loc}, nil
	}
	if err != nil {
		return nil, err
	}
	if entry.isDirectory() {
		return nil, errkind.New("fat32.Open", errkind.IsADirectory, fmt.Errorf("%q is a directory", relPath))
	}

	h := &fileHandle{parentCluster: parentCluster, entryLoc: loc, firstCluster: entry.firstCluster(), size: entry.fileSize()}
	if flags&vfs.Trunc != 0 {
		if err := fs.freeClusterChain(h.firstCluster); err != nil {
			return nil, err
		}
		h.firstCluster = 0
		h.size = 0
		if err := fs.persistMeta(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (fs *FS) Close(fh vfs.FileHandle) error { return nil }

// clusterAtIndex returns the index'th cluster (0-based) of the chain
// starting at first. When grow is true, it extends the chain (and
// allocates a first cluster if first==0) as needed; the caller is
// responsible for persisting any returned newFirst that differs from
// the cluster it passed in.
func (fs *FS) clusterAtIndex(first uint32, index int, grow bool) (cluster uint32, newFirst uint32, err error) {
	if first == 0 {
		if !grow {
			return 0, 0, errkind.New("fat32.clusterAtIndex", errkind.EndOfFile, nil)
		}
		c, err := fs.allocCluster()
		if err != nil {
			return 0, 0, err
		}
		first = c
	}
	c := first
	for i := 0; i < index; i++ {
		next, err := fs.nextCluster(c)
		if err != nil {
			return 0, first, err
		}
		if isEndOfChain(next) {
			if !grow {
				return 0, first, errkind.New("fat32.clusterAtIndex", errkind.EndOfFile, nil)
			}
			nc, err := fs.allocCluster()
			if err != nil {
				return 0, first, err
			}
			if err := fs.setNextCluster(c, nc); err != nil {
				return 0, first, err
			}
			next = nc
		}
		c = next
	}
	return c, first, nil
}

func (fs *FS) ReadAt(fh vfs.FileHandle, buf []byte, offset int64) (int, error) {
	h := fh.(*fileHandle)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if offset >= int64(h.size) {
		return 0, nil
	}
	end := offset + int64(len(buf))
	if end > int64(h.size) {
		end = int64(h.size)
	}
	toRead := int(end - offset)

	total := 0
	pos := offset
	sectorBuf := make([]byte, fs.sb.bytesPerSector)
	for total < toRead {
		clusterIndex := int(pos / int64(fs.sb.bytesPerCluster))
		withinCluster := uint32(pos % int64(fs.sb.bytesPerCluster))
		cluster, _, err := fs.clusterAtIndex(h.firstCluster, clusterIndex, false)
		if err != nil {
			return total, err
		}
		sectorIdx := withinCluster / uint32(fs.sb.bytesPerSector)
		byteInSector := withinCluster % uint32(fs.sb.bytesPerSector)
		sector := fs.clusterToSector(cluster) + uint64(sectorIdx)
		if err := fs.dev.ReadBlock(sector, sectorBuf); err != nil {
			return total, err
		}
		n := copy(buf[total:toRead], sectorBuf[byteInSector:])
		total += n
		pos += int64(n)
	}
	return total, nil
}

func (fs *FS) WriteAt(fh vfs.FileHandle, buf []byte, offset int64) (int, error) {
	h := fh.(*fileHandle)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	total := 0
	pos := offset
	sectorBuf := make([]byte, fs.sb.bytesPerSector)
	for total < len(buf) {
		clusterIndex := int(pos / int64(fs.sb.bytesPerCluster))
		withinCluster := uint32(pos % int64(fs.sb.bytesPerCluster))
		cluster, newFirst, err := fs.clusterAtIndex(h.firstCluster, clusterIndex, true)
		if err != nil {
			return total, err
		}
		h.firstCluster = newFirst
		sectorIdx := withinCluster / uint32(fs.sb.bytesPerSector)
		byteInSector := withinCluster % uint32(fs.sb.bytesPerSector)
		sector := fs.clusterToSector(cluster) + uint64(sectorIdx)
		if err := fs.dev.ReadBlock(sector, sectorBuf); err != nil {
			return total, err
		}
		n := copy(sectorBuf[byteInSector:], buf[total:])
		if err := fs.dev.WriteBlock(sector, sectorBuf); err != nil {
			return total, err
		}
		total += n
		pos += int64(n)
	}

	if newSize := uint32(offset) + uint32(total); newSize > h.size {
		h.size = newSize
	}
	if err := fs.persistMeta(h); err != nil {
		return total, err
	}
	return total, nil
}

// persistMeta writes h's current first-cluster and size back to its
// directory entry.
func (fs *FS) persistMeta(h *fileHandle) error {
	buf := make([]byte, fs.sb.bytesPerSector)
	if err := fs.dev.ReadBlock(uint64(h.entryLoc.sector), buf); err != nil {
		return err
	}
	var e rawDirEntry
	copy(e.data[:], buf[h.entryLoc.offset:h.entryLoc.offset+dirEntrySize])
	e.setFirstCluster(h.firstCluster)
	e.setFileSize(h.size)
	return fs.writeEntry(&e, h.entryLoc)
}

func (fs *FS) Stat(relPath string) (vfs.FileInfo, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentCluster, name, err := fs.splitPath(relPath)
	if err != nil {
		return vfs.FileInfo{}, err
	}
	if name == "" {
		return vfs.FileInfo{Ino: uint64(fs.sb.rootCluster), IsDir: true, Mode: 0o755}, nil
	}
	entry, _, err := fs.findEntry(parentCluster, name)
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return vfs.FileInfo{
		Ino:   uint64(entry.firstCluster()),
		Size:  int64(entry.fileSize()),
		IsDir: entry.isDirectory(),
		Mode:  0o644,
	}, nil
}

func (fs *FS) Mkdir(relPath string, mode uint32) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentCluster, name, err := fs.splitPath(relPath)
	if err != nil {
		return err
	}
	if name == "" {
		return errkind.New("fat32.Mkdir", errkind.AlreadyExists, fmt.Errorf("the volume root always exists"))
	}
	if _, _, err := fs.findEntry(parentCluster, name); err == nil {
		return errkind.New("fat32.Mkdir", errkind.AlreadyExists, fmt.Errorf("%q already exists", relPath))
	}

	newCluster, err := fs.allocCluster()
	if err != nil {
		return err
	}
	if err := fs.zeroCluster(newCluster); err != nil {
		return err
	}
	if err := fs.writeDotEntries(newCluster, parentCluster); err != nil {
		return err
	}

	loc, err := fs.findFreeSlot(parentCluster)
	if err != nil {
		return err
	}
	rawName, err := formatShortName(name)
	if err != nil {
		return err
	}
	var e rawDirEntry
	copy(e.data[0:11], rawName[:])
	e.data[11] = attrDir
	e.setFirstCluster(newCluster)
	return fs.writeEntry(&e, loc)
}

// writeDotEntries seeds a freshly allocated directory cluster with "."
// (self) and ".." (parent) entries, the only contents an empty
// directory has.
func (fs *FS) writeDotEntries(selfCluster, parentCluster uint32) error {
	buf := make([]byte, fs.sb.bytesPerSector)
	if err := fs.dev.ReadBlock(fs.clusterToSector(selfCluster), buf); err != nil {
		return err
	}

	var dot rawDirEntry
	copy(dot.data[0:11], padShortName("."))
	dot.data[11] = attrDir
	dot.setFirstCluster(selfCluster)
	copy(buf[0:dirEntrySize], dot.data[:])

	var dotdot rawDirEntry
	copy(dotdot.data[0:11], padShortName(".."))
	dotdot.data[11] = attrDir
	dotdot.setFirstCluster(parentCluster)
	copy(buf[dirEntrySize:2*dirEntrySize], dotdot.data[:])

	return fs.dev.WriteBlock(fs.clusterToSector(selfCluster), buf)
}

func (fs *FS) Rmdir(relPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentCluster, name, err := fs.splitPath(relPath)
	if err != nil {
		return err
	}
	if name == "" {
		return errkind.New("fat32.Rmdir", errkind.PermissionDenied, fmt.Errorf("cannot remove the volume root"))
	}
	entry, loc, err := fs.findEntry(parentCluster, name)
	if err != nil {
		return err
	}
	if !entry.isDirectory() {
		return errkind.New("fat32.Rmdir", errkind.NotADirectory, fmt.Errorf("%q is not a directory", relPath))
	}
	if empty, err := fs.dirIsEmpty(entry.firstCluster()); err != nil {
		return err
	} else if !empty {
		return errkind.New("fat32.Rmdir", errkind.NotEmpty, fmt.Errorf("%q is not empty", relPath))
	}
	if err := fs.freeClusterChain(entry.firstCluster()); err != nil {
		return err
	}
	entry.data[0] = dirFreeMarker
	return fs.writeEntry(entry, loc)
}

// dirIsEmpty reports whether dirCluster holds only "." and "..".
func (fs *FS) dirIsEmpty(dirCluster uint32) (bool, error) {
	count := 0
	err := fs.forEachEntry(dirCluster, func(e *rawDirEntry, loc dirLocation) (bool, error) {
		if e.isFree() || e.isLongName() {
			return false, nil
		}
		name := e.shortName()
		if name != "." && name != ".." {
			count++
		}
		return false, nil
	})
	return count == 0, err
}

func (fs *FS) Unlink(relPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentCluster, name, err := fs.splitPath(relPath)
	if err != nil {
		return err
	}
	entry, loc, err := fs.findEntry(parentCluster, name)
	if err != nil {
		return err
	}
	if entry.isDirectory() {
		return errkind.New("fat32.Unlink", errkind.IsADirectory, fmt.Errorf("%q is a directory", relPath))
	}
	if err := fs.freeClusterChain(entry.firstCluster()); err != nil {
		return err
	}
	entry.data[0] = dirFreeMarker
	return fs.writeEntry(entry, loc)
}

func (fs *FS) Rename(oldRelPath, newRelPath string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldParent, oldName, err := fs.splitPath(oldRelPath)
	if err != nil {
		return err
	}
	entry, oldLoc, err := fs.findEntry(oldParent, oldName)
	if err != nil {
		return err
	}
	newParent, newName, err := fs.splitPath(newRelPath)
	if err != nil {
		return err
	}
	if _, _, err := fs.findEntry(newParent, newName); err == nil {
		return errkind.New("fat32.Rename", errkind.AlreadyExists, fmt.Errorf("%q already exists", newRelPath))
	}

	newLoc, err := fs.findFreeSlot(newParent)
	if err != nil {
		return err
	}
	rawName, err := formatShortName(newName)
	if err != nil {
		return err
	}
	moved := *entry
	copy(moved.data[0:11], rawName[:])
	if err := fs.writeEntry(&moved, newLoc); err != nil {
		return err
	}
	entry.data[0] = dirFreeMarker
	return fs.writeEntry(entry, oldLoc)
}

func (fs *FS) OpenDir(relPath string) (vfs.DirHandle, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentCluster, name, err := fs.splitPath(relPath)
	if err != nil {
		return nil, err
	}
	dirCluster := parentCluster
	if name != "" {
		entry, _, err := fs.findEntry(parentCluster, name)
		if err != nil {
			return nil, err
		}
		if !entry.isDirectory() {
			return nil, errkind.New("fat32.OpenDir", errkind.NotADirectory, fmt.Errorf("%q is not a directory", relPath))
		}
		dirCluster = entry.firstCluster()
	}

	var entries []vfs.DirEntry
	err = fs.forEachEntry(dirCluster, func(e *rawDirEntry, loc dirLocation) (bool, error) {
		if e.isFree() || e.isLongName() {
			return false, nil
		}
		typ := vfs.EntryFile
		if e.isDirectory() {
			typ = vfs.EntryDirectory
		}
		entries = append(entries, vfs.DirEntry{Ino: uint64(e.firstCluster()), Name: e.shortName(), Type: typ})
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return &dirHandle{entries: entries}, nil
}

func (fs *FS) ReadDir(dh vfs.DirHandle) (vfs.DirEntry, error) {
	h := dh.(*dirHandle)
	if h.idx >= len(h.entries) {
		return vfs.DirEntry{}, errkind.New("fat32.ReadDir", errkind.EndOfFile, nil)
	}
	e := h.entries[h.idx]
	h.idx++
	return e, nil
}

func (fs *FS) CloseDir(dh vfs.DirHandle) error { return nil }

var _ vfs.Filesystem = (*FS)(nil)
