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

// Package fat32 implements a FAT32 vfs.Filesystem over a blockdev.Device:
// superblock parsing, a single-sector FAT cache, cluster-chain
// allocation, and 8.3 directory entries with long-name skip.
package fat32

import (
	"encoding/binary"
	"fmt"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

const bootSectorSize = 512

// superblock is the subset of the BIOS Parameter Block this driver
// needs, plus the values readSuperblock derives from it once at mount.
type superblock struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	totalSectors32    uint32
	sectorsPerFAT32   uint32
	rootCluster       uint32

	fatStart       uint32
	fatSize        uint32
	dataStart      uint32
	bytesPerCluster uint32
	totalClusters   uint32
}

// readSuperblock reads sector 0 and validates the 0xAA55 signature at
// offset 510 and "FAT32" in the FS-type field (offset 82, 8 bytes).
func readSuperblock(dev blockdev.Device) (*superblock, error) {
	buf := make([]byte, bootSectorSize)
	if err := dev.ReadBlock(0, buf); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint16(buf[510:512]) != 0xAA55 {
		return nil, errkind.New("fat32.readSuperblock", errkind.InvalidFs, fmt.Errorf("missing 0xAA55 boot signature"))
	}
	fsType := string(buf[82:90])
	if fsType[:5] != "FAT32" {
		return nil, errkind.New("fat32.readSuperblock", errkind.InvalidFs, fmt.Errorf("FS type field is %q, not FAT32", fsType))
	}

	sb := &superblock{
		bytesPerSector:    binary.LittleEndian.Uint16(buf[11:13]),
		sectorsPerCluster: buf[13],
		reservedSectors:   binary.LittleEndian.Uint16(buf[14:16]),
		numFATs:           buf[16],
		totalSectors32:    binary.LittleEndian.Uint32(buf[32:36]),
		sectorsPerFAT32:   binary.LittleEndian.Uint32(buf[36:40]),
		rootCluster:       binary.LittleEndian.Uint32(buf[44:48]),
	}
	if sb.bytesPerSector == 0 || sb.sectorsPerCluster == 0 || sb.numFATs == 0 {
		return nil, errkind.New("fat32.readSuperblock", errkind.InvalidFs, fmt.Errorf("zero field in BIOS parameter block"))
	}

	sb.fatStart = uint32(sb.reservedSectors)
	sb.fatSize = sb.sectorsPerFAT32
	sb.dataStart = sb.fatStart + uint32(sb.numFATs)*sb.fatSize
	sb.bytesPerCluster = uint32(sb.sectorsPerCluster) * uint32(sb.bytesPerSector)
	if sb.totalSectors32 > sb.dataStart {
		sb.totalClusters = (sb.totalSectors32 - sb.dataStart) / uint32(sb.sectorsPerCluster)
	}
	return sb, nil
}
