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

package ext4_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/blockdev/memdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/vfs"
	"github.com/scarlett-os/kernel/pkg/vfs/ext4"
)

// A tiny, hand-assembled ext4 image: 1024-byte filesystem blocks over
// a 512-byte-sector memdev (two sectors per filesystem block).
const (
	fsBlockSize    = 1024
	devSectorSize  = 512
	sectorsPerFS   = fsBlockSize / devSectorSize
	inodesPerGroup = 16
	inodeSize      = 256

	sbBlock        = 1
	gdtBlock       = 2
	blockBitmapBlk = 3
	inodeBitmapBlk = 4
	inodeTableBlk  = 5
	inodeTableLen  = 4 // ceil(16*256/1024)
	dataStartBlk   = inodeTableBlk + inodeTableLen

	inoRoot  = 2
	inoHello = 12
	inoSub   = 13
	inoInner = 14
)

type imageBuilder struct {
	t   *testing.T
	dev *memdev.Device
}

func (b *imageBuilder) writeBytes(off uint64, data []byte) {
	b.t.Helper()
	sector := off / devSectorSize
	within := off % devSectorSize
	for len(data) > 0 {
		buf := make([]byte, devSectorSize)
		if err := b.dev.ReadBlock(sector, buf); err != nil {
			b.t.Fatalf("read sector %d: %v", sector, err)
		}
		n := copy(buf[within:], data)
		if err := b.dev.WriteBlock(sector, buf); err != nil {
			b.t.Fatalf("write sector %d: %v", sector, err)
		}
		data = data[n:]
		sector++
		within = 0
	}
}

func (b *imageBuilder) writeFSBlock(fsBlock uint32, data []byte) {
	b.writeBytes(uint64(fsBlock)*fsBlockSize, data)
}

func groupIndex(ino uint32) uint32 { return (ino - 1) % inodesPerGroup }

func (b *imageBuilder) writeInode(ino uint32, mode uint16, uid, gid uint32, size uint32, blocks []uint32) {
	buf := make([]byte, inodeSize)
	binary.LittleEndian.PutUint16(buf[0:2], mode)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(uid))
	binary.LittleEndian.PutUint32(buf[4:8], size)
	binary.LittleEndian.PutUint16(buf[24:26], uint16(gid))
	for i, blk := range blocks {
		binary.LittleEndian.PutUint32(buf[40+i*4:44+i*4], blk)
	}
	binary.LittleEndian.PutUint16(buf[120:122], uint16(uid>>16))
	binary.LittleEndian.PutUint16(buf[122:124], uint16(gid>>16))

	off := uint64(inodeTableBlk)*fsBlockSize + uint64(groupIndex(ino))*inodeSize
	b.writeBytes(off, buf)
}

type dirSpec struct {
	ino      uint32
	name     string
	fileType byte
}

func (b *imageBuilder) writeDirBlock(fsBlock uint32, entries []dirSpec) {
	buf := make([]byte, fsBlockSize)
	off := 0
	for i, e := range entries {
		recLen := 8 + len(e.name)
		recLen = (recLen + 3) &^ 3
		if i == len(entries)-1 {
			recLen = fsBlockSize - off
		}
		binary.LittleEndian.PutUint32(buf[off:off+4], e.ino)
		binary.LittleEndian.PutUint16(buf[off+4:off+6], uint16(recLen))
		buf[off+6] = byte(len(e.name))
		buf[off+7] = e.fileType
		copy(buf[off+8:off+8+len(e.name)], e.name)
		off += recLen
	}
	b.writeFSBlock(fsBlock, buf)
}

func buildImage(t *testing.T) *memdev.Device {
	t.Helper()
	totalFSBlocks := dataStartBlk + 8
	dev := memdev.New("rootfs", devSectorSize, uint64(totalFSBlocks*sectorsPerFS))
	b := &imageBuilder{t: t, dev: dev}

	sb := make([]byte, fsBlockSize)
	binary.LittleEndian.PutUint32(sb[4:8], uint32(totalFSBlocks))
	binary.LittleEndian.PutUint32(sb[20:24], 1) // first_data_block
	binary.LittleEndian.PutUint32(sb[24:28], 0) // log_block_size -> 1024
	binary.LittleEndian.PutUint32(sb[32:36], 8192)
	binary.LittleEndian.PutUint32(sb[40:44], inodesPerGroup)
	binary.LittleEndian.PutUint16(sb[56:58], 0xEF53)
	binary.LittleEndian.PutUint32(sb[84:88], 11)
	binary.LittleEndian.PutUint16(sb[88:90], inodeSize)
	b.writeFSBlock(sbBlock, sb)

	gdt := make([]byte, fsBlockSize)
	binary.LittleEndian.PutUint32(gdt[0:4], blockBitmapBlk)
	binary.LittleEndian.PutUint32(gdt[4:8], inodeBitmapBlk)
	binary.LittleEndian.PutUint32(gdt[8:12], inodeTableBlk)
	b.writeFSBlock(gdtBlock, gdt)

	const dirMode = 0x4000 | 0o755
	const fileMode = 0x8000 | 0o644

	helloData := []byte("hello, ext4 world!")
	innerData := []byte("nested file contents")

	b.writeDirBlock(dataStartBlk, []dirSpec{
		{ino: inoRoot, name: ".", fileType: 2},
		{ino: inoRoot, name: "..", fileType: 2},
		{ino: inoHello, name: "hello.txt", fileType: 1},
		{ino: inoSub, name: "sub", fileType: 2},
	})
	b.writeFSBlock(dataStartBlk+1, append(helloData, make([]byte, fsBlockSize-len(helloData))...))
	b.writeDirBlock(dataStartBlk+2, []dirSpec{
		{ino: inoSub, name: ".", fileType: 2},
		{ino: inoRoot, name: "..", fileType: 2},
		{ino: inoInner, name: "inner.txt", fileType: 1},
	})
	b.writeFSBlock(dataStartBlk+3, append(innerData, make([]byte, fsBlockSize-len(innerData))...))

	b.writeInode(inoRoot, dirMode, 0, 0, fsBlockSize, []uint32{dataStartBlk})
	b.writeInode(inoHello, fileMode, 1000, 1000, uint32(len(helloData)), []uint32{dataStartBlk + 1})
	b.writeInode(inoSub, dirMode, 0, 0, fsBlockSize, []uint32{dataStartBlk + 2})
	b.writeInode(inoInner, fileMode, 1000, 1000, uint32(len(innerData)), []uint32{dataStartBlk + 3})

	return dev
}

func mountedFS(t *testing.T) *ext4.FS {
	t.Helper()
	reg := &blockdev.Registry{}
	reg.Init()
	dev := buildImage(t)
	if err := reg.Register(dev); err != nil {
		t.Fatalf("register: %v", err)
	}
	blockdev.Default = reg
	fs := ext4.New()
	if err := fs.Mount("rootfs", "/"); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return fs
}

func TestStatRoot(t *testing.T) {
	fs := mountedFS(t)
	info, err := fs.Stat("")
	if err != nil {
		t.Fatalf("Stat root: %v", err)
	}
	if !info.IsDir {
		t.Fatal("root is not reported as a directory")
	}
	if info.Mode != 0o755 {
		t.Fatalf("root mode = %o, want 0755", info.Mode)
	}
}

func TestReadFileAtRoot(t *testing.T) {
	fs := mountedFS(t)
	fh, err := fs.Open("/hello.txt", vfs.Read)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 64)
	n, err := fs.ReadAt(fh, buf, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	want := "hello, ext4 world!"
	if !bytes.Equal(buf[:n], []byte(want)) {
		t.Fatalf("read %q, want %q", buf[:n], want)
	}
}

func TestReadFileInSubdirectory(t *testing.T) {
	fs := mountedFS(t)
	fh, err := fs.Open("/sub/inner.txt", vfs.Read)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 64)
	n, err := fs.ReadAt(fh, buf, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("nested file contents")) {
		t.Fatalf("read %q", buf[:n])
	}
}

func TestShortReadAtEndOfFile(t *testing.T) {
	fs := mountedFS(t)
	fh, err := fs.Open("/hello.txt", vfs.Read)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	buf := make([]byte, 10)
	n, err := fs.ReadAt(fh, buf, 15)
	if err != nil {
		t.Fatalf("ReadAt near EOF: %v", err)
	}
	if n != 3 {
		t.Fatalf("short read = %d bytes, want 3", n)
	}
}

func TestStatUidGidFromHighAndLow(t *testing.T) {
	fs := mountedFS(t)
	info, err := fs.Stat("/hello.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Uid != 1000 || info.Gid != 1000 {
		t.Fatalf("Uid/Gid = %d/%d, want 1000/1000", info.Uid, info.Gid)
	}
	if info.Size != int64(len("hello, ext4 world!")) {
		t.Fatalf("Size = %d", info.Size)
	}
}

func TestOpenMissingPathIsNotFound(t *testing.T) {
	fs := mountedFS(t)
	_, err := fs.Open("/nope.txt", vfs.Read)
	if !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("Open = %v, want NotFound", err)
	}
}

func TestWriteIsNotSupported(t *testing.T) {
	fs := mountedFS(t)
	_, err := fs.Open("/hello.txt", vfs.Read|vfs.Write)
	if !errkind.Is(err, errkind.NotSupported) {
		t.Fatalf("Open with Write = %v, want NotSupported", err)
	}
}

func TestReadDirSkipsDotEntries(t *testing.T) {
	fs := mountedFS(t)
	dh, err := fs.OpenDir("/")
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	var names []string
	for {
		e, err := fs.ReadDir(dh)
		if errkind.Is(err, errkind.EndOfFile) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, e.Name)
	}
	for _, n := range names {
		if n == "." || n == ".." {
			t.Fatalf("listing %v should not include dot entries", names)
		}
	}
	if len(names) != 2 {
		t.Fatalf("listing %v, want 2 entries", names)
	}
}

func TestMkdirUnlinkRenameAreNotSupported(t *testing.T) {
	fs := mountedFS(t)
	if err := fs.Mkdir("/new", 0); !errkind.Is(err, errkind.NotSupported) {
		t.Fatalf("Mkdir = %v, want NotSupported", err)
	}
	if err := fs.Unlink("/hello.txt"); !errkind.Is(err, errkind.NotSupported) {
		t.Fatalf("Unlink = %v, want NotSupported", err)
	}
	if err := fs.Rename("/hello.txt", "/moved.txt"); !errkind.Is(err, errkind.NotSupported) {
		t.Fatalf("Rename = %v, want NotSupported", err)
	}
}
