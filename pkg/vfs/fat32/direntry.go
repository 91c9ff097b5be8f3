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
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/scarlett-os/kernel/pkg/errkind"
)

const (
	dirEntrySize = 32

	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	attrDir      = 0x10
	attrArchive  = 0x20
	attrLongName = attrReadOnly | attrHidden | attrSystem | attrVolumeID

	dirFreeMarker = 0xE5
	dirEndMarker  = 0x00
)

// rawDirEntry is one 32-byte 8.3 directory entry, decoded in place.
type rawDirEntry struct {
	data [dirEntrySize]byte
}

func (e *rawDirEntry) firstByte() byte  { return e.data[0] }
func (e *rawDirEntry) attr() byte       { return e.data[11] }
func (e *rawDirEntry) isLongName() bool { return e.attr() == attrLongName }
func (e *rawDirEntry) isFree() bool {
	return e.firstByte() == dirEndMarker || e.firstByte() == dirFreeMarker
}
func (e *rawDirEntry) isEnd() bool { return e.firstByte() == dirEndMarker }

func (e *rawDirEntry) shortName() string { return parseShortName(e.data[0:11]) }

func (e *rawDirEntry) firstCluster() uint32 {
	hi := binary.LittleEndian.Uint16(e.data[20:22])
	lo := binary.LittleEndian.Uint16(e.data[26:28])
	return uint32(hi)<<16 | uint32(lo)
}

func (e *rawDirEntry) setFirstCluster(c uint32) {
	binary.LittleEndian.PutUint16(e.data[20:22], uint16(c>>16))
	binary.LittleEndian.PutUint16(e.data[26:28], uint16(c&0xFFFF))
}

func (e *rawDirEntry) fileSize() uint32 { return binary.LittleEndian.Uint32(e.data[28:32]) }
func (e *rawDirEntry) setFileSize(n uint32) {
	binary.LittleEndian.PutUint32(e.data[28:32], n)
}

func (e *rawDirEntry) isDirectory() bool { return e.attr()&attrDir != 0 }

// formatShortName uppercases name and lays it out as 8 name bytes plus
// 3 extension bytes, space-padded, per the 8.3 convention. It rejects
// names that don't fit (long-name entries are out of scope: this
// driver writes and matches 8.3 names only).
func formatShortName(name string) ([11]byte, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}
	base, ext, _ := strings.Cut(name, ".")
	base = strings.ToUpper(base)
	ext = strings.ToUpper(ext)
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 {
		return out, errkind.New("fat32.formatShortName", errkind.InvalidArg, fmt.Errorf("name %q does not fit 8.3 format", name))
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out, nil
}

// padShortName right-pads name with spaces to 11 bytes, for the "."
// and ".." entries, which aren't valid 8.3 names under formatShortName.
func padShortName(name string) []byte {
	out := make([]byte, 11)
	for i := range out {
		out[i] = ' '
	}
	copy(out, name)
	return out
}

// parseShortName reverses formatShortName: trims trailing spaces from
// the base and extension and reinserts the dot if an extension exists.
func parseShortName(raw []byte) string {
	base := strings.TrimRight(string(raw[0:8]), " ")
	ext := strings.TrimRight(string(raw[8:11]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// dirLocation is a directory entry's address: the absolute sector
// holding it and the byte offset of the entry within that sector.
type dirLocation struct {
	sector uint32
	offset uint32
}

// forEachEntry walks every 32-byte slot across dirCluster's cluster
// chain, invoking fn with the decoded entry and its location. fn
// returns stop=true to end the walk early. Long-name entries are
// yielded like any other slot; callers skip them via isLongName.
func (fs *FS) forEachEntry(dirCluster uint32, fn func(e *rawDirEntry, loc dirLocation) (stop bool, err error)) error {
	c := dirCluster
	sectorBuf := make([]byte, fs.sb.bytesPerSector)
	for !isEndOfChain(c) && c != freeCluster {
		startSector := fs.clusterToSector(c)
		for s := uint32(0); s < uint32(fs.sb.sectorsPerCluster); s++ {
			sector := startSector + uint64(s)
			if err := fs.dev.ReadBlock(sector, sectorBuf); err != nil {
				return err
			}
			for off := uint32(0); off+dirEntrySize <= uint32(len(sectorBuf)); off += dirEntrySize {
				var e rawDirEntry
				copy(e.data[:], sectorBuf[off:off+dirEntrySize])
				if e.isEnd() {
					return nil
				}
				stop, err := fn(&e, dirLocation{sector: uint32(sector), offset: off})
				if err != nil {
					return err
				}
				if stop {
					return nil
				}
			}
		}
		next, err := fs.nextCluster(c)
		if err != nil {
			return err
		}
		c = next
	}
	return nil
}

// findEntry looks up name (case-insensitively, via 8.3 canonicalisation)
// directly under dirCluster.
func (fs *FS) findEntry(dirCluster uint32, name string) (*rawDirEntry, dirLocation, error) {
	wantRaw, err := formatShortName(name)
	if err != nil {
		return nil, dirLocation{}, err
	}
	want := parseShortName(wantRaw[:])

	var found *rawDirEntry
	var foundLoc dirLocation
	err = fs.forEachEntry(dirCluster, func(e *rawDirEntry, loc dirLocation) (bool, error) {
		if e.isFree() || e.isLongName() {
			return false, nil
		}
		if e.shortName() == want {
			cp := *e
			found = &cp
			foundLoc = loc
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return nil, dirLocation{}, err
	}
	if found == nil {
		return nil, dirLocation{}, errkind.New("fat32.findEntry", errkind.NotFound, fmt.Errorf("%q not found", name))
	}
	return found, foundLoc, nil
}

// findFreeSlot returns the location of the first 0x00 or 0xE5 entry
// under dirCluster, extending the directory's cluster chain by one
// zeroed cluster if every existing slot is occupied. Unlike
// forEachEntry, this walk must yield the 0x00 terminator slot itself
// (as the free slot to claim) rather than stopping silently before it.
func (fs *FS) findFreeSlot(dirCluster uint32) (dirLocation, error) {
	loc, ok, err := fs.scanForFreeSlot(dirCluster)
	if err != nil {
		return dirLocation{}, err
	}
	if ok {
		return loc, nil
	}

	last := lastClusterOf(fs, dirCluster)
	newCluster, err := fs.allocCluster()
	if err != nil {
		return dirLocation{}, err
	}
	if err := fs.setNextCluster(last, newCluster); err != nil {
		return dirLocation{}, err
	}
	if err := fs.zeroCluster(newCluster); err != nil {
		return dirLocation{}, err
	}
	return dirLocation{sector: uint32(fs.clusterToSector(newCluster)), offset: 0}, nil
}

// scanForFreeSlot walks dirCluster's chain sector by sector looking
// for a 0xE5 (deleted) or 0x00 (terminator) entry, returning as soon
// as it finds one. Unlike forEachEntry, finding the terminator is a
// success, not the end of the walk: it's the slot this directory will
// grow into next.
func (fs *FS) scanForFreeSlot(dirCluster uint32) (dirLocation, bool, error) {
	c := dirCluster
	sectorBuf := make([]byte, fs.sb.bytesPerSector)
	for !isEndOfChain(c) && c != freeCluster {
		startSector := fs.clusterToSector(c)
		for s := uint32(0); s < uint32(fs.sb.sectorsPerCluster); s++ {
			sector := startSector + uint64(s)
			if err := fs.dev.ReadBlock(sector, sectorBuf); err != nil {
				return dirLocation{}, false, err
			}
			for off := uint32(0); off+dirEntrySize <= uint32(len(sectorBuf)); off += dirEntrySize {
				if sectorBuf[off] == dirFreeMarker || sectorBuf[off] == dirEndMarker {
					return dirLocation{sector: uint32(sector), offset: off}, true, nil
				}
			}
		}
		next, err := fs.nextCluster(c)
		if err != nil {
			return dirLocation{}, false, err
		}
		c = next
	}
	return dirLocation{}, false, nil
}

func lastClusterOf(fs *FS, c uint32) uint32 {
	for {
		next, err := fs.nextCluster(c)
		if err != nil || isEndOfChain(next) {
			return c
		}
		c = next
	}
}

// zeroCluster overwrites every sector of cluster c with zero bytes.
func (fs *FS) zeroCluster(c uint32) error {
	zero := make([]byte, fs.sb.bytesPerSector)
	start := fs.clusterToSector(c)
	for s := uint32(0); s < uint32(fs.sb.sectorsPerCluster); s++ {
		if err := fs.dev.WriteBlock(start+uint64(s), zero); err != nil {
			return err
		}
	}
	return nil
}

// writeEntry writes e back to its recorded location.
func (fs *FS) writeEntry(e *rawDirEntry, loc dirLocation) error {
	buf := make([]byte, fs.sb.bytesPerSector)
	if err := fs.dev.ReadBlock(uint64(loc.sector), buf); err != nil {
		return err
	}
	copy(buf[loc.offset:loc.offset+dirEntrySize], e.data[:])
	return fs.dev.WriteBlock(uint64(loc.sector), buf)
}
