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

// Package vfssftp fronts a vfs.VFS mount table with an SFTP server
// built on pkg/sftp's request-handler API — the server side of the
// same protocol the teacher's pkg/blobserver/sftp speaks as a client.
package vfssftp

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/sftp"

	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/security/authz"
	"github.com/scarlett-os/kernel/pkg/vfs"
)

// Handlers builds an sftp.Handlers backed by v, authorizing every call
// as proc — the identity the SSH session authenticated as. pkg/sftp's
// request-handler API carries no per-request identity of its own, so
// one handler instance serves exactly one already-authenticated
// session.
func Handlers(v *vfs.VFS, proc authz.Process) sftp.Handlers {
	h := &handler{vfsys: v, proc: proc}
	return sftp.Handlers{
		FileGet:  h,
		FilePut:  h,
		FileCmd:  h,
		FileList: h,
	}
}

type handler struct {
	vfsys *vfs.VFS
	proc  authz.Process
}

func toSftpErr(err error) error {
	if err == nil {
		return nil
	}
	switch errkind.Of(err) {
	case errkind.NotFound, errkind.FileNotFound, errkind.DeviceNotFound, errkind.EndOfFile:
		return os.ErrNotExist
	case errkind.AlreadyExists:
		return os.ErrExist
	case errkind.PermissionDenied:
		return os.ErrPermission
	default:
		return err
	}
}

func (h *handler) Fileread(r *sftp.Request) (io.ReaderAt, error) {
	fd, err := h.vfsys.Open(h.proc, r.Filepath, vfs.Read)
	if err != nil {
		return nil, toSftpErr(err)
	}
	return &fdReaderWriter{vfsys: h.vfsys, fd: fd, proc: h.proc}, nil
}

func (h *handler) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	flags := vfs.Write | vfs.Create
	if r.Pflags().Append {
		flags |= vfs.Append
	} else {
		flags |= vfs.Trunc
	}
	fd, err := h.vfsys.Open(h.proc, r.Filepath, flags)
	if err != nil {
		return nil, toSftpErr(err)
	}
	return &fdReaderWriter{vfsys: h.vfsys, fd: fd, proc: h.proc}, nil
}

// fdReaderWriter adapts vfs.VFS's position-based fd ops to the
// offset-based io.ReaderAt/io.WriterAt pkg/sftp wants, serializing the
// seek-then-read(write) pair with a mutex since the two steps aren't
// otherwise atomic against concurrent use of the same fd.
type fdReaderWriter struct {
	mu    sync.Mutex
	vfsys *vfs.VFS
	fd    int
	proc  authz.Process
}

func (f *fdReaderWriter) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.vfsys.Seek(f.proc, f.fd, off, vfs.SeekSet); err != nil {
		return 0, toSftpErr(err)
	}
	n, err := f.vfsys.Read(f.proc, f.fd, p)
	if err != nil {
		return n, toSftpErr(err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (f *fdReaderWriter) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.vfsys.Seek(f.proc, f.fd, off, vfs.SeekSet); err != nil {
		return 0, toSftpErr(err)
	}
	n, err := f.vfsys.Write(f.proc, f.fd, p)
	return n, toSftpErr(err)
}

func (h *handler) Filecmd(r *sftp.Request) error {
	switch r.Method {
	case "Rename":
		return toSftpErr(h.vfsys.Rename(h.proc, r.Filepath, r.Target))
	case "Rmdir":
		return toSftpErr(h.vfsys.Rmdir(h.proc, r.Filepath))
	case "Mkdir":
		return toSftpErr(h.vfsys.Mkdir(h.proc, r.Filepath, 0o755))
	case "Remove":
		return toSftpErr(h.vfsys.Unlink(h.proc, r.Filepath))
	case "Setstat":
		return nil // permission/time bits aren't settable through vfs.VFS
	default:
		return toSftpErr(errkind.New("vfssftp.Filecmd", errkind.NotSupported, fmt.Errorf("unsupported method %q", r.Method)))
	}
}

func (h *handler) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	switch r.Method {
	case "List":
		fd, err := h.vfsys.OpenDir(h.proc, r.Filepath)
		if err != nil {
			return nil, toSftpErr(err)
		}
		defer h.vfsys.CloseDir(h.proc, fd)
		var infos []os.FileInfo
		for {
			ent, err := h.vfsys.ReadDir(h.proc, fd)
			if err != nil {
				if errkind.Of(err) == errkind.EndOfFile {
					break
				}
				return nil, toSftpErr(err)
			}
			childPath := joinPath(r.Filepath, ent.Name)
			fi, err := h.vfsys.Stat(h.proc, childPath)
			if err != nil {
				continue
			}
			infos = append(infos, fileInfo{name: ent.Name, info: fi})
		}
		return listerAt(infos), nil
	case "Stat", "Readlink":
		fi, err := h.vfsys.Stat(h.proc, r.Filepath)
		if err != nil {
			return nil, toSftpErr(err)
		}
		return listerAt([]os.FileInfo{fileInfo{name: baseName(r.Filepath), info: fi}}), nil
	default:
		return nil, toSftpErr(errkind.New("vfssftp.Filelist", errkind.NotSupported, fmt.Errorf("unsupported method %q", r.Method)))
	}
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

type fileInfo struct {
	name string
	info vfs.FileInfo
}

func (f fileInfo) Name() string       { return f.name }
func (f fileInfo) Size() int64        { return f.info.Size }
func (f fileInfo) Mode() os.FileMode {
	m := os.FileMode(f.info.Mode & 0o777)
	if f.info.IsDir {
		m |= os.ModeDir
	}
	return m
}
func (f fileInfo) ModTime() time.Time { return f.info.Mtime }
func (f fileInfo) IsDir() bool        { return f.info.IsDir }
func (f fileInfo) Sys() interface{}   { return nil }

type listerAt []os.FileInfo

func (l listerAt) ListAt(out []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(out, l[offset:])
	if n < len(out) {
		return n, io.EOF
	}
	return n, nil
}
