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

//go:build linux || darwin
// +build linux darwin

// Package vfsfuse exposes a vfs.VFS mount table as a bazil.org/fuse
// filesystem, the FUSE-side counterpart of cmd/kmount. Every node is
// path-addressed rather than cached by inode, since vfs.VFS itself is
// path-addressed (Open/Stat/ReadDir all take a path, not an inode
// number) — the simplification the teacher's own CamliFileSystem makes
// for its flatter blob-addressed namespace, generalized here to an
// ordinary hierarchical path space.
package vfsfuse

import (
	"context"
	"log"
	"os"
	"syscall"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"

	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/security/authz"
	"github.com/scarlett-os/kernel/pkg/vfs"
)

// Logger receives FUSE-layer diagnostics.
var Logger = log.Default()

// FS adapts a *vfs.VFS to fusefs.FS. DefaultProc authorizes the
// callbacks bazil.org/fuse doesn't hand a per-request Header to
// (Attr, Lookup, ReadDirAll). Mkdir, Remove, Rename, Create and Open
// build their Process from the kernel-reported Uid/Gid on the request;
// Read, Write and Release reuse the Process of the Open or Create that
// produced the handle.
type FS struct {
	VFS         *vfs.VFS
	DefaultProc authz.Process
}

func procOf(h fuse.Header) authz.Process {
	return authz.Process{UID: h.Uid, GID: h.Gid}
}

var _ fusefs.FS = (*FS)(nil)

func (f *FS) Root() (fusefs.Node, error) {
	return &Node{fs: f, path: "/"}, nil
}

// Node is one path in the VFS tree, looked up fresh on every call
// rather than cached — vfs.VFS already owns the authoritative state,
// and this kernel's mount tables are small enough that re-Stat-ing on
// each FUSE callback is cheap.
type Node struct {
	fs   *FS
	path string
}

var (
	_ fusefs.Node               = (*Node)(nil)
	_ fusefs.NodeStringLookuper = (*Node)(nil)
	_ fusefs.HandleReadDirAller = (*Node)(nil)
	_ fusefs.NodeMkdirer        = (*Node)(nil)
	_ fusefs.NodeRemover        = (*Node)(nil)
	_ fusefs.NodeRenamer        = (*Node)(nil)
	_ fusefs.NodeCreater        = (*Node)(nil)
	_ fusefs.HandleReader       = (*Node)(nil)
	_ fusefs.HandleWriter       = (*Node)(nil)
	_ fusefs.HandleReleaser     = (*Node)(nil)
)

func errno(err error) error {
	if err == nil {
		return nil
	}
	switch errkind.Of(err) {
	case errkind.NotFound, errkind.FileNotFound, errkind.DeviceNotFound:
		return fuse.ENOENT
	case errkind.IsADirectory:
		return fuse.Errno(syscall.EISDIR)
	case errkind.NotADirectory:
		return fuse.Errno(syscall.ENOTDIR)
	case errkind.AlreadyExists:
		return fuse.EEXIST
	case errkind.PermissionDenied:
		return fuse.EPERM
	case errkind.ReadOnly:
		return fuse.Errno(syscall.EROFS)
	case errkind.NotSupported:
		return fuse.ENOSYS
	default:
		Logger.Printf("vfsfuse: %v", err)
		return fuse.EIO
	}
}

func (n *Node) Attr(ctx context.Context, a *fuse.Attr) error {
	info, err := n.fs.VFS.Stat(n.fs.DefaultProc, n.path)
	if err != nil {
		return errno(err)
	}
	a.Inode = info.Ino
	a.Size = uint64(info.Size)
	a.Mode = os.FileMode(info.Mode & 0o777)
	if info.IsDir {
		a.Mode |= os.ModeDir
	}
	a.Uid = info.Uid
	a.Gid = info.Gid
	a.Atime = info.Atime
	a.Mtime = info.Mtime
	a.Ctime = info.Ctime
	return nil
}

func (n *Node) child(name string) *Node {
	if n.path == "/" {
		return &Node{fs: n.fs, path: "/" + name}
	}
	return &Node{fs: n.fs, path: n.path + "/" + name}
}

func (n *Node) Lookup(ctx context.Context, name string) (fusefs.Node, error) {
	child := n.child(name)
	if _, err := n.fs.VFS.Stat(n.fs.DefaultProc, child.path); err != nil {
		return nil, errno(err)
	}
	return child, nil
}

func (n *Node) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	proc := n.fs.DefaultProc
	fd, err := n.fs.VFS.OpenDir(proc, n.path)
	if err != nil {
		return nil, errno(err)
	}
	defer n.fs.VFS.CloseDir(proc, fd)

	var out []fuse.Dirent
	for {
		ent, err := n.fs.VFS.ReadDir(proc, fd)
		if err != nil {
			if errkind.Of(err) == errkind.EndOfFile {
				break
			}
			return nil, errno(err)
		}
		typ := fuse.DT_File
		if ent.Type == vfs.EntryDirectory {
			typ = fuse.DT_Dir
		}
		out = append(out, fuse.Dirent{Inode: ent.Ino, Name: ent.Name, Type: typ})
	}
	return out, nil
}

func (n *Node) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	child := n.child(req.Name)
	if err := n.fs.VFS.Mkdir(procOf(req.Header), child.path, uint32(req.Mode.Perm())); err != nil {
		return nil, errno(err)
	}
	return child, nil
}

func (n *Node) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	child := n.child(req.Name)
	proc := procOf(req.Header)
	var err error
	if req.Dir {
		err = n.fs.VFS.Rmdir(proc, child.path)
	} else {
		err = n.fs.VFS.Unlink(proc, child.path)
	}
	return errno(err)
}

func (n *Node) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	dst, ok := newDir.(*Node)
	if !ok {
		return fuse.EIO
	}
	oldPath := n.child(req.OldName).path
	newPath := dst.child(req.NewName).path
	return errno(n.fs.VFS.Rename(procOf(req.Header), oldPath, newPath))
}

// handle is the open-file state behind a Node: vfs.VFS's fd plus the
// identity that opened it, tracked per-open rather than per-Node since
// the same path can be opened concurrently by more than one caller.
type handle struct {
	vfsys *vfs.VFS
	fd    int
	proc  authz.Process
}

func (n *Node) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fusefs.Node, fusefs.Handle, error) {
	child := n.child(req.Name)
	proc := procOf(req.Header)
	fd, err := n.fs.VFS.Open(proc, child.path, vfs.Read|vfs.Write|vfs.Create)
	if err != nil {
		return nil, nil, errno(err)
	}
	return child, &handle{vfsys: n.fs.VFS, fd: fd, proc: proc}, nil
}

func (n *Node) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fusefs.Handle, error) {
	flags := vfs.Read
	if req.Flags.IsWriteOnly() || req.Flags.IsReadWrite() {
		flags |= vfs.Write
	}
	proc := procOf(req.Header)
	fd, err := n.fs.VFS.Open(proc, n.path, flags)
	if err != nil {
		return nil, errno(err)
	}
	return &handle{vfsys: n.fs.VFS, fd: fd, proc: proc}, nil
}

func (h *handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	buf := make([]byte, req.Size)
	n, err := h.vfsys.Seek(h.proc, h.fd, req.Offset, vfs.SeekSet)
	if err != nil {
		return errno(err)
	}
	_ = n
	read, err := h.vfsys.Read(h.proc, h.fd, buf)
	if err != nil {
		return errno(err)
	}
	resp.Data = buf[:read]
	return nil
}

func (h *handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	if _, err := h.vfsys.Seek(h.proc, h.fd, req.Offset, vfs.SeekSet); err != nil {
		return errno(err)
	}
	written, err := h.vfsys.Write(h.proc, h.fd, req.Data)
	if err != nil {
		return errno(err)
	}
	resp.Size = written
	return nil
}

func (h *handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return errno(h.vfsys.Close(h.proc, h.fd))
}
