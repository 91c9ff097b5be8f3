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

package vfs_test

import (
	"bytes"
	"testing"

	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/security/authz"
	"github.com/scarlett-os/kernel/pkg/vfs"
)

// root is the identity used by tests that aren't themselves exercising
// authorization: uid 0 bypasses every rung of the chokepoint.
var root = authz.Process{UID: 0}

// fakeFS is a minimal in-memory Filesystem: one flat namespace of
// byte-slice files plus the root directory, enough to exercise the
// VFS's fd table, path resolver, and dispatch without a real driver.
type fakeFS struct {
	files map[string][]byte
}

type fakeFileHandle struct{ path string }
type fakeDirHandle struct {
	names []string
	idx   int
}

func newFakeFS() *fakeFS { return &fakeFS{files: make(map[string][]byte)} }

func (f *fakeFS) Name() string                                { return "fake" }
func (f *fakeFS) Mount(deviceName, mountPoint string) error    { return nil }
func (f *fakeFS) Unmount() error                               { return nil }

func (f *fakeFS) Open(relPath string, flags vfs.OpenFlag) (vfs.FileHandle, error) {
	_, exists := f.files[relPath]
	if !exists {
		if flags&vfs.Create == 0 {
			return nil, errkind.New("fakeFS.Open", errkind.NotFound, nil)
		}
		f.files[relPath] = nil
	} else if flags&vfs.Trunc != 0 {
		f.files[relPath] = nil
	}
	return &fakeFileHandle{path: relPath}, nil
}

func (f *fakeFS) Close(fh vfs.FileHandle) error { return nil }

func (f *fakeFS) ReadAt(fh vfs.FileHandle, buf []byte, offset int64) (int, error) {
	h := fh.(*fakeFileHandle)
	data := f.files[h.path]
	if offset >= int64(len(data)) {
		return 0, nil
	}
	n := copy(buf, data[offset:])
	return n, nil
}

func (f *fakeFS) WriteAt(fh vfs.FileHandle, buf []byte, offset int64) (int, error) {
	h := fh.(*fakeFileHandle)
	data := f.files[h.path]
	end := offset + int64(len(buf))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[offset:], buf)
	f.files[h.path] = data
	return len(buf), nil
}

func (f *fakeFS) Stat(relPath string) (vfs.FileInfo, error) {
	data, ok := f.files[relPath]
	if !ok {
		return vfs.FileInfo{}, errkind.New("fakeFS.Stat", errkind.NotFound, nil)
	}
	return vfs.FileInfo{Size: int64(len(data)), Mode: 0o600, Uid: 1000}, nil
}

func (f *fakeFS) Mkdir(relPath string, mode uint32) error { return errkind.New("fakeFS.Mkdir", errkind.NotSupported, nil) }
func (f *fakeFS) Rmdir(relPath string) error               { return errkind.New("fakeFS.Rmdir", errkind.NotSupported, nil) }

func (f *fakeFS) Unlink(relPath string) error {
	if _, ok := f.files[relPath]; !ok {
		return errkind.New("fakeFS.Unlink", errkind.NotFound, nil)
	}
	delete(f.files, relPath)
	return nil
}

func (f *fakeFS) Rename(oldPath, newPath string) error {
	data, ok := f.files[oldPath]
	if !ok {
		return errkind.New("fakeFS.Rename", errkind.NotFound, nil)
	}
	f.files[newPath] = data
	delete(f.files, oldPath)
	return nil
}

func (f *fakeFS) OpenDir(relPath string) (vfs.DirHandle, error) {
	var names []string
	for name := range f.files {
		names = append(names, name)
	}
	return &fakeDirHandle{names: names}, nil
}

func (f *fakeFS) ReadDir(dh vfs.DirHandle) (vfs.DirEntry, error) {
	h := dh.(*fakeDirHandle)
	if h.idx >= len(h.names) {
		return vfs.DirEntry{}, errkind.New("fakeFS.ReadDir", errkind.EndOfFile, nil)
	}
	name := h.names[h.idx]
	h.idx++
	return vfs.DirEntry{Name: name, Type: vfs.EntryFile}, nil
}

func (f *fakeFS) CloseDir(dh vfs.DirHandle) error { return nil }

type fakeConsole struct{}

func (fakeConsole) WriteOut(p []byte) (int, error) { return len(p), nil }
func (fakeConsole) ReadIn(p []byte) (int, error) {
	return 0, errkind.New("fakeConsole.ReadIn", errkind.EndOfFile, nil)
}

var _ vfs.Filesystem = (*fakeFS)(nil)
var _ vfs.Console = fakeConsole{}

func newMountedVFS(t *testing.T) (*vfs.VFS, *fakeFS) {
	t.Helper()
	v := vfs.New(fakeConsole{}, nil)
	fs := newFakeFS()
	if err := v.Mount("/", fs); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return v, fs
}

func TestStandardStreamsArePreOpened(t *testing.T) {
	v, _ := newMountedVFS(t)
	if n, err := v.Write(root, 1, []byte("hello")); err != nil || n != 5 {
		t.Fatalf("Write(stdout) = %d, %v", n, err)
	}
	_, err := v.Read(root, 0, make([]byte, 4))
	if !errkind.Is(err, errkind.EndOfFile) {
		t.Fatalf("Read(stdin) = %v, want EndOfFile", err)
	}
}

func TestOpenCreateReadWrite(t *testing.T) {
	v, _ := newMountedVFS(t)
	fd, err := v.Open(root, "/greeting.txt", vfs.Read|vfs.Write|vfs.Create)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if fd < 3 {
		t.Fatalf("fd = %d, want >= 3", fd)
	}
	if _, err := v.Write(root, fd, []byte("hello world")); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Seek(root, fd, 0, vfs.SeekSet); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 11)
	n, err := v.Read(root, fd, buf)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf[:n], []byte("hello world")) {
		t.Fatalf("read back %q", buf[:n])
	}
	if err := v.Close(root, fd); err != nil {
		t.Fatal(err)
	}
}

func TestOpenWithoutCreateOnMissingPathIsNotFound(t *testing.T) {
	v, _ := newMountedVFS(t)
	_, err := v.Open(root, "/nope.txt", vfs.Read)
	if !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("Open = %v, want NotFound", err)
	}
}

func TestFdAllocationReusesClosedSlot(t *testing.T) {
	v, _ := newMountedVFS(t)
	fd1, err := v.Open(root, "/a.txt", vfs.Read|vfs.Create)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Close(root, fd1); err != nil {
		t.Fatal(err)
	}
	fd2, err := v.Open(root, "/b.txt", vfs.Read|vfs.Create)
	if err != nil {
		t.Fatal(err)
	}
	if fd2 != fd1 {
		t.Fatalf("fd2 = %d, want reused %d", fd2, fd1)
	}
}

func TestReadPastEndReturnsZeroBytesNotError(t *testing.T) {
	v, _ := newMountedVFS(t)
	fd, err := v.Open(root, "/empty.txt", vfs.Read|vfs.Create)
	if err != nil {
		t.Fatal(err)
	}
	n, err := v.Read(root, fd, make([]byte, 10))
	if err != nil {
		t.Fatalf("Read past EOF returned error: %v", err)
	}
	if n != 0 {
		t.Fatalf("Read past EOF = %d bytes, want 0", n)
	}
}

func TestDirectoryEnumerationEndsWithEndOfFile(t *testing.T) {
	v, fs := newMountedVFS(t)
	fs.files["one"] = []byte("1")
	dfd, err := v.OpenDir(root, "/")
	if err != nil {
		t.Fatal(err)
	}
	seen := 0
	for {
		_, err := v.ReadDir(root, dfd)
		if errkind.Is(err, errkind.EndOfFile) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		seen++
	}
	if seen != 1 {
		t.Fatalf("saw %d entries, want 1", seen)
	}
	if err := v.CloseDir(root, dfd); err != nil {
		t.Fatal(err)
	}
}

func TestLongestPrefixMountWins(t *testing.T) {
	v := vfs.New(fakeConsole{}, nil)
	rootFs := newFakeFS()
	sub := newFakeFS()
	if err := v.Mount("/", rootFs); err != nil {
		t.Fatal(err)
	}
	if err := v.Mount("/mnt", sub); err != nil {
		t.Fatal(err)
	}
	fd, err := v.Open(root, "/mnt/file.txt", vfs.Read|vfs.Create|vfs.Write)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sub.files["/file.txt"]; !ok {
		t.Fatal("expected file created under the /mnt filesystem, not root")
	}
	v.Close(root, fd)
}

func TestOpenDeniedToUnprivilegedUidByMode(t *testing.T) {
	v, fs := newMountedVFS(t)
	fs.files["/secret.txt"] = []byte("shh")

	other := authz.Process{UID: 2000}
	if _, err := v.Open(other, "/secret.txt", vfs.Read); !errkind.Is(err, errkind.PermissionDenied) {
		t.Fatalf("Open by uid 2000 on a uid-1000 0600 file = %v, want PermissionDenied", err)
	}
}

func TestOpenGrantedToOwningUidByMode(t *testing.T) {
	v, fs := newMountedVFS(t)
	fs.files["/secret.txt"] = []byte("shh")

	owner := authz.Process{UID: 1000}
	fd, err := v.Open(owner, "/secret.txt", vfs.Read)
	if err != nil {
		t.Fatalf("Open by owning uid: %v", err)
	}
	v.Close(owner, fd)
}

func TestFdTableExhaustion(t *testing.T) {
	v, _ := newMountedVFS(t)
	var fds []int
	for i := 0; i < 253; i++ {
		fd, err := v.Open(root, "/f", vfs.Read|vfs.Create|vfs.Write)
		if err != nil {
			t.Fatalf("Open #%d: %v", i, err)
		}
		fds = append(fds, fd)
	}
	_, err := v.Open(root, "/g", vfs.Read|vfs.Create)
	if !errkind.Is(err, errkind.OutOfMemory) {
		t.Fatalf("Open on exhausted table = %v, want OutOfMemory", err)
	}
	for _, fd := range fds {
		v.Close(root, fd)
	}
}
