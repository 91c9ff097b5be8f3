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

// Package vfs is the L4 layer of the kernel: a mount-point table, a
// process-wide file-descriptor table, a longest-prefix path resolver,
// and the open/read/write/seek/close/mkdir/readdir/stat/unlink/rename
// entry points every caller (the authorization chokepoint included)
// goes through instead of talking to a Filesystem directly.
package vfs

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/security/authz"
	"github.com/scarlett-os/kernel/pkg/security/rbac"
)

// OpenFlag is the enumerated bitset open() accepts.
type OpenFlag uint32

const (
	Read OpenFlag = 1 << iota
	Write
	Create
	Trunc
	Append
)

// EntryType distinguishes a directory entry's kind.
type EntryType int

const (
	EntryFile EntryType = iota
	EntryDirectory
)

// DirEntry is one entry returned by ReadDir.
type DirEntry struct {
	Ino  uint64
	Name string
	Type EntryType
}

// FileInfo is the result of Stat.
type FileInfo struct {
	Ino   uint64
	Size  int64
	Mode  uint32
	Uid   uint32
	Gid   uint32
	IsDir bool
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// FileHandle and DirHandle are driver-opaque state a Filesystem hands
// back from Open/OpenDir and gets back on every subsequent call; the
// VFS never interprets them.
type FileHandle interface{}
type DirHandle interface{}

// Filesystem is the vtable every FS driver implements. The VFS, not the
// driver, owns each open file's position; ReadAt/WriteAt take an
// explicit offset instead of each driver re-implementing seek/tell
// bookkeeping on top of its own file handle. Drivers that don't support
// an operation (ext4's write path, for instance) return
// errkind.NotSupported.
type Filesystem interface {
	Name() string
	Mount(deviceName, mountPoint string) error
	Unmount() error

	Open(relPath string, flags OpenFlag) (FileHandle, error)
	Close(fh FileHandle) error
	ReadAt(fh FileHandle, buf []byte, offset int64) (int, error)
	WriteAt(fh FileHandle, buf []byte, offset int64) (int, error)

	Stat(relPath string) (FileInfo, error)
	Mkdir(relPath string, mode uint32) error
	Rmdir(relPath string) error
	Unlink(relPath string) error
	Rename(oldRelPath, newRelPath string) error

	OpenDir(relPath string) (DirHandle, error)
	ReadDir(dh DirHandle) (DirEntry, error) // errkind.EndOfFile when exhausted
	CloseDir(dh DirHandle) error
}

// Console is the serial-console backing for standard streams 0/1/2.
type Console interface {
	WriteOut(p []byte) (int, error)
	// ReadIn returns errkind.EndOfFile until input is available, per
	// the standard-streams contract.
	ReadIn(p []byte) (int, error)
}

const fdTableSize = 256
const firstUserFd = 3

type fdSlot struct {
	used     bool
	fs       Filesystem // nil for standard streams
	file     FileHandle
	dir      DirHandle
	isDir    bool
	position int64
	flags    OpenFlag
	res      authz.Resource // snapshot taken at open/opendir time, reused by later calls on the fd
	rel      string         // path within fs, used to find end of file for Append and SeekEnd
}

type mountEntry struct {
	path string
	fs   Filesystem
}

// VFS is the process-wide virtual filesystem: one mount table, one fd
// table, guarded by a single mutex. The source has no explicit lock
// here; this is the SMP-correctness gap the spec calls out, closed the
// way the teacher closes comparable gaps elsewhere in its tree — one
// mutex per object, held for the duration of each public operation.
//
// Every file and directory operation that takes a Process runs it
// through the authorization chokepoint (pkg/security/authz) before
// touching the owning Filesystem: uid 0, then capability, then ACL,
// then POSIX mode bits, then roles, in that order. Tell and the
// mount-table operations (Mount, Unmount, MountNamed) take no Process
// and perform no check. roles may be nil, in which case the
// RBAC rung always declines and the chain falls through to denial.
type VFS struct {
	mu      sync.Mutex
	mounts  []mountEntry
	fds     [fdTableSize]fdSlot
	console Console
	roles   *rbac.Store
}

// New creates a VFS with standard streams 0/1/2 wired to console.
// roles backs the RBAC rung of every authorization check; pass nil to
// run with capability/ACL/mode checks only.
func New(console Console, roles *rbac.Store) *VFS {
	v := &VFS{console: console, roles: roles}
	for i := 0; i < firstUserFd; i++ {
		v.fds[i] = fdSlot{used: true}
	}
	return v
}

// authorize runs proc through the authorization chokepoint for op on
// res. Authorize itself is context-free today; the ctx parameter is
// threaded through so a future deadline- or trace-carrying check has
// somewhere to live without another signature change.
func (v *VFS) authorize(proc authz.Process, op authz.Op, res authz.Resource) error {
	return authz.Authorize(context.Background(), proc, op, res, v.roles)
}

func resourceOf(info FileInfo) authz.Resource {
	return authz.Resource{Mode: info.Mode, UID: info.Uid, GID: info.Gid}
}

// parentOf returns rel's parent directory, used to authorize
// operations (Mkdir, Unlink, Rmdir, Rename) that act on a directory
// entry rather than on the resource the entry names.
func parentOf(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return "/"
	}
	return dir
}

// Mount records fs as serving mountPoint. fs must already have had its
// Mount hook called (by the caller, typically via a driver registry
// keyed by fs_name) so it has resolved deviceName and populated its own
// state. Mount does not itself look up a driver by name; that
// indirection lives in the driver registry, analogous to how
// pkg/blobserver's registry separates "construct a Storage of this
// type" from "the Storage is now part of this server's handler set".
func (v *VFS) Mount(mountPoint string, fs Filesystem) error {
	if !strings.HasPrefix(mountPoint, "/") {
		return errkind.New("vfs.Mount", errkind.InvalidArg, fmt.Errorf("mount point %q is not absolute", mountPoint))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.mounts {
		if m.path == mountPoint {
			return errkind.New("vfs.Mount", errkind.AlreadyExists, fmt.Errorf("mount point %q already in use", mountPoint))
		}
	}
	v.mounts = append(v.mounts, mountEntry{path: mountPoint, fs: fs})
	return nil
}

// Unmount calls fs.Unmount and removes mountPoint's entry.
func (v *VFS) Unmount(mountPoint string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, m := range v.mounts {
		if m.path == mountPoint {
			if err := m.fs.Unmount(); err != nil {
				return err
			}
			v.mounts = append(v.mounts[:i], v.mounts[i+1:]...)
			return nil
		}
	}
	return errkind.New("vfs.Unmount", errkind.NotFound, fmt.Errorf("mount point %q not mounted", mountPoint))
}

// resolve finds the longest mount-point prefix of path and returns the
// matching filesystem plus the remainder, normalised to start with "/".
// Must be called with v.mu held.
func (v *VFS) resolve(path string) (Filesystem, string, error) {
	if !strings.HasPrefix(path, "/") {
		return nil, "", errkind.New("vfs.resolve", errkind.InvalidArg, fmt.Errorf("path %q is not absolute", path))
	}
	var best *mountEntry
	for i := range v.mounts {
		m := &v.mounts[i]
		if !pathHasPrefix(path, m.path) {
			continue
		}
		if best == nil || len(m.path) > len(best.path) {
			best = m
		}
	}
	if best == nil {
		return nil, "", errkind.New("vfs.resolve", errkind.NotFound, fmt.Errorf("no filesystem mounted for %q", path))
	}
	rel := strings.TrimPrefix(path, best.path)
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return best.fs, rel, nil
}

// pathHasPrefix reports whether mountPoint is a path-component prefix
// of path: "/" is a prefix of everything; "/mnt" is a prefix of
// "/mnt/a" but not of "/mnta".
func pathHasPrefix(path, mountPoint string) bool {
	if mountPoint == "/" {
		return true
	}
	if !strings.HasPrefix(path, mountPoint) {
		return false
	}
	rest := path[len(mountPoint):]
	return rest == "" || strings.HasPrefix(rest, "/")
}

// allocFd finds the first unused slot at index >= firstUserFd. Must be
// called with v.mu held.
func (v *VFS) allocFd() (int, error) {
	for i := firstUserFd; i < fdTableSize; i++ {
		if !v.fds[i].used {
			return i, nil
		}
	}
	return -1, errkind.New("vfs.allocFd", errkind.OutOfMemory, fmt.Errorf("file descriptor table exhausted"))
}

// Open resolves path, authorizes the call against the resource (or,
// for a Create of a not-yet-existing path, against the parent
// directory), dispatches to the owning filesystem, and returns a
// fresh fd on success.
func (v *VFS) Open(proc authz.Process, p string, flags OpenFlag) (int, error) {
	v.mu.Lock()
	fs, rel, err := v.resolve(p)
	if err != nil {
		v.mu.Unlock()
		return -1, err
	}
	v.mu.Unlock()

	op := authz.OpRead
	if flags&Write != 0 {
		op = authz.OpWrite
	}
	res := authz.Resource{}
	if info, statErr := fs.Stat(rel); statErr == nil {
		res = resourceOf(info)
	} else if flags&Create != 0 {
		if pinfo, perr := fs.Stat(parentOf(rel)); perr == nil {
			res = resourceOf(pinfo)
		}
	} else {
		return -1, statErr
	}
	if err := v.authorize(proc, op, res); err != nil {
		return -1, err
	}

	fh, err := fs.Open(rel, flags)
	if err != nil {
		return -1, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	fd, err := v.allocFd()
	if err != nil {
		fs.Close(fh)
		return -1, err
	}
	v.fds[fd] = fdSlot{used: true, fs: fs, file: fh, flags: flags, res: res, rel: rel}
	return fd, nil
}

func (v *VFS) lookup(fd int) (*fdSlot, error) {
	if fd < 0 || fd >= fdTableSize || !v.fds[fd].used {
		return nil, errkind.New("vfs.lookup", errkind.InvalidArg, fmt.Errorf("fd %d not open", fd))
	}
	return &v.fds[fd], nil
}

// Read requires fd was opened with Read, calls the owning filesystem,
// advances position by the byte count read, and returns that count.
// A read at or past end of file returns 0 bytes, not EndOfFile — that
// kind is reserved for directory enumeration.
func (v *VFS) Read(proc authz.Process, fd int, buf []byte) (int, error) {
	v.mu.Lock()
	slot, err := v.lookup(fd)
	if err != nil {
		v.mu.Unlock()
		return 0, err
	}
	if fd < firstUserFd {
		console := v.console
		v.mu.Unlock()
		return console.ReadIn(buf)
	}
	if slot.flags&Read == 0 {
		v.mu.Unlock()
		return 0, errkind.New("vfs.Read", errkind.PermissionDenied, fmt.Errorf("fd %d not opened for read", fd))
	}
	fs, fh, pos, res := slot.fs, slot.file, slot.position, slot.res
	v.mu.Unlock()

	if err := v.authorize(proc, authz.OpRead, res); err != nil {
		return 0, err
	}

	n, err := fs.ReadAt(fh, buf, pos)
	if err != nil {
		return n, err
	}
	v.mu.Lock()
	v.fds[fd].position += int64(n)
	v.mu.Unlock()
	return n, nil
}

// Write requires fd was opened with Write, calls the owning filesystem
// at the current position (or at end-of-file for Append), advances
// position, and returns the byte count written.
func (v *VFS) Write(proc authz.Process, fd int, buf []byte) (int, error) {
	v.mu.Lock()
	slot, err := v.lookup(fd)
	if err != nil {
		v.mu.Unlock()
		return 0, err
	}
	if fd < firstUserFd {
		console := v.console
		v.mu.Unlock()
		return console.WriteOut(buf)
	}
	if slot.flags&Write == 0 {
		v.mu.Unlock()
		return 0, errkind.New("vfs.Write", errkind.PermissionDenied, fmt.Errorf("fd %d not opened for write", fd))
	}
	fs, fh, pos, flags, res, rel := slot.fs, slot.file, slot.position, slot.flags, slot.res, slot.rel
	v.mu.Unlock()

	if err := v.authorize(proc, authz.OpWrite, res); err != nil {
		return 0, err
	}

	if flags&Append != 0 {
		info, err := fs.Stat(rel)
		if err == nil {
			pos = info.Size
		}
	}

	n, err := fs.WriteAt(fh, buf, pos)
	if err != nil {
		return n, err
	}
	v.mu.Lock()
	v.fds[fd].position = pos + int64(n)
	v.mu.Unlock()
	return n, nil
}

// Whence selects seek's reference point.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Seek updates fd's position. Seeking past end of file is allowed;
// it is not an error until something tries to read there.
func (v *VFS) Seek(proc authz.Process, fd int, offset int64, whence Whence) (int64, error) {
	v.mu.Lock()
	slot, err := v.lookup(fd)
	if err != nil {
		v.mu.Unlock()
		return 0, err
	}
	if fd < firstUserFd {
		v.mu.Unlock()
		return 0, errkind.New("vfs.Seek", errkind.NotSupported, fmt.Errorf("fd %d is a standard stream", fd))
	}
	fs, curPos, res, rel := slot.fs, slot.position, slot.res, slot.rel
	v.mu.Unlock()

	if err := v.authorize(proc, authz.OpRead, res); err != nil {
		return 0, err
	}

	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = curPos
	case SeekEnd:
		info, statErr := fs.Stat(rel)
		if statErr != nil {
			return 0, statErr
		}
		base = info.Size
	default:
		return 0, errkind.New("vfs.Seek", errkind.InvalidArg, fmt.Errorf("unknown whence %d", whence))
	}
	newPos := base + offset
	if newPos < 0 {
		return 0, errkind.New("vfs.Seek", errkind.InvalidArg, fmt.Errorf("resulting position %d is negative", newPos))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	slot, err = v.lookup(fd)
	if err != nil {
		return 0, err
	}
	slot.position = newPos
	return newPos, nil
}

// Tell returns fd's current position.
func (v *VFS) Tell(fd int) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	slot, err := v.lookup(fd)
	if err != nil {
		return 0, err
	}
	return slot.position, nil
}

// Close releases fd, calling the owning filesystem's Close hook.
func (v *VFS) Close(proc authz.Process, fd int) error {
	v.mu.Lock()
	slot, err := v.lookup(fd)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	if fd < firstUserFd {
		v.mu.Unlock()
		return errkind.New("vfs.Close", errkind.NotSupported, fmt.Errorf("fd %d is a standard stream", fd))
	}
	fs, fh, res := slot.fs, slot.file, slot.res
	v.mu.Unlock()

	if err := v.authorize(proc, authz.OpRead, res); err != nil {
		return err
	}

	v.mu.Lock()
	v.fds[fd] = fdSlot{}
	v.mu.Unlock()
	return fs.Close(fh)
}

func (v *VFS) withResolved(path string) (Filesystem, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolve(path)
}

// authorizeParent authorizes op against the POSIX mode/owner bits of
// rel's parent directory on fs, since creating, removing, or renaming
// a directory entry is a write to the directory, not to the entry.
func (v *VFS) authorizeParent(proc authz.Process, fs Filesystem, rel string, op authz.Op) error {
	res := authz.Resource{}
	if info, err := fs.Stat(parentOf(rel)); err == nil {
		res = resourceOf(info)
	}
	return v.authorize(proc, op, res)
}

func (v *VFS) Mkdir(proc authz.Process, p string, mode uint32) error {
	fs, rel, err := v.withResolved(p)
	if err != nil {
		return err
	}
	if err := v.authorizeParent(proc, fs, rel, authz.OpWrite); err != nil {
		return err
	}
	return fs.Mkdir(rel, mode)
}

func (v *VFS) Rmdir(proc authz.Process, p string) error {
	fs, rel, err := v.withResolved(p)
	if err != nil {
		return err
	}
	if err := v.authorizeParent(proc, fs, rel, authz.OpWrite); err != nil {
		return err
	}
	return fs.Rmdir(rel)
}

func (v *VFS) Stat(proc authz.Process, p string) (FileInfo, error) {
	fs, rel, err := v.withResolved(p)
	if err != nil {
		return FileInfo{}, err
	}
	info, err := fs.Stat(rel)
	if err != nil {
		return FileInfo{}, err
	}
	if err := v.authorize(proc, authz.OpRead, resourceOf(info)); err != nil {
		return FileInfo{}, err
	}
	return info, nil
}

func (v *VFS) Unlink(proc authz.Process, p string) error {
	fs, rel, err := v.withResolved(p)
	if err != nil {
		return err
	}
	if err := v.authorizeParent(proc, fs, rel, authz.OpWrite); err != nil {
		return err
	}
	return fs.Unlink(rel)
}

// Rename requires both paths resolve to the same filesystem; the spec
// scopes cross-filesystem rename out (no multi-mount path resolution).
func (v *VFS) Rename(proc authz.Process, oldPath, newPath string) error {
	v.mu.Lock()
	oldFs, oldRel, err := v.resolve(oldPath)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	newFs, newRel, err := v.resolve(newPath)
	v.mu.Unlock()
	if err != nil {
		return err
	}
	if oldFs != newFs {
		return errkind.New("vfs.Rename", errkind.NotSupported, fmt.Errorf("rename across mount points is not supported"))
	}
	if err := v.authorizeParent(proc, oldFs, oldRel, authz.OpWrite); err != nil {
		return err
	}
	if err := v.authorizeParent(proc, oldFs, newRel, authz.OpWrite); err != nil {
		return err
	}
	return oldFs.Rename(oldRel, newRel)
}

// OpenDir resolves path, authorizes the read, and returns a directory fd.
func (v *VFS) OpenDir(proc authz.Process, p string) (int, error) {
	fs, rel, err := v.withResolved(p)
	if err != nil {
		return -1, err
	}
	res := authz.Resource{}
	if info, statErr := fs.Stat(rel); statErr == nil {
		res = resourceOf(info)
	}
	if err := v.authorize(proc, authz.OpRead, res); err != nil {
		return -1, err
	}
	dh, err := fs.OpenDir(rel)
	if err != nil {
		return -1, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	fd, err := v.allocFd()
	if err != nil {
		fs.CloseDir(dh)
		return -1, err
	}
	v.fds[fd] = fdSlot{used: true, fs: fs, dir: dh, isDir: true, res: res}
	return fd, nil
}

// ReadDir returns the next entry, or errkind.EndOfFile when exhausted.
func (v *VFS) ReadDir(proc authz.Process, fd int) (DirEntry, error) {
	v.mu.Lock()
	slot, err := v.lookup(fd)
	if err != nil {
		v.mu.Unlock()
		return DirEntry{}, err
	}
	if !slot.isDir {
		v.mu.Unlock()
		return DirEntry{}, errkind.New("vfs.ReadDir", errkind.InvalidArg, fmt.Errorf("fd %d is not a directory", fd))
	}
	fs, dh, res := slot.fs, slot.dir, slot.res
	v.mu.Unlock()

	if err := v.authorize(proc, authz.OpRead, res); err != nil {
		return DirEntry{}, err
	}
	return fs.ReadDir(dh)
}

// CloseDir releases a directory fd opened by OpenDir.
func (v *VFS) CloseDir(proc authz.Process, fd int) error {
	v.mu.Lock()
	slot, err := v.lookup(fd)
	if err != nil {
		v.mu.Unlock()
		return err
	}
	if !slot.isDir {
		v.mu.Unlock()
		return errkind.New("vfs.CloseDir", errkind.InvalidArg, fmt.Errorf("fd %d is not a directory", fd))
	}
	fs, dh, res := slot.fs, slot.dir, slot.res
	v.mu.Unlock()

	if err := v.authorize(proc, authz.OpRead, res); err != nil {
		return err
	}

	v.mu.Lock()
	v.fds[fd] = fdSlot{}
	v.mu.Unlock()
	return fs.CloseDir(dh)
}
