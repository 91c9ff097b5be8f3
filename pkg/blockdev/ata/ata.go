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

// Package ata drives an ATA/IDE channel in PIO mode: identify, and
// LBA28/LBA48 sector read/write over the legacy port-I/O register set.
// New returns a blockdev.Device per drive for the caller to register,
// the same way every other backend under pkg/blockdev does.
//
// The register accesses go through the PortIO interface rather than
// direct x86 IN/OUT instructions, since those require ring-0 or
// ioperm(2)/iopl(2) privileges this process does not run with; this
// package ships no PortIO implementation for real hardware. Tests drive a fakePortIO that models
// the register protocol in memory.
package ata

import (
	"fmt"
	"log"
	"strings"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

var Logger = log.Default()

// PortIO abstracts x86 port-mapped I/O, the primitive every ATA
// register access is built on.
type PortIO interface {
	In8(port uint16) uint8
	Out8(port uint16, v uint8)
	In16(port uint16) uint16
	Out16(port uint16, v uint16)
}

// Ports names one channel's register block. The legacy primary/secondary
// assignments are 0x1F0/0x3F6 and 0x170/0x376.
type Ports struct {
	Data        uint16
	Error       uint16
	SectorCount uint16
	LBALow      uint16
	LBAMid      uint16
	LBAHigh     uint16
	DriveSelect uint16
	Command     uint16 // command on write, status on read
	AltStatus   uint16
}

// Primary and Secondary are the standard legacy ISA port assignments.
var (
	Primary = Ports{
		Data: 0x1F0, Error: 0x1F1, SectorCount: 0x1F2,
		LBALow: 0x1F3, LBAMid: 0x1F4, LBAHigh: 0x1F5,
		DriveSelect: 0x1F6, Command: 0x1F7, AltStatus: 0x3F6,
	}
	Secondary = Ports{
		Data: 0x170, Error: 0x171, SectorCount: 0x172,
		LBALow: 0x173, LBAMid: 0x174, LBAHigh: 0x175,
		DriveSelect: 0x176, Command: 0x177, AltStatus: 0x376,
	}
)

const (
	statusBSY = 1 << 7
	statusDRQ = 1 << 3
	statusERR = 1 << 0

	cmdIdentify       = 0xEC
	cmdReadSectors    = 0x20
	cmdWriteSectors   = 0x30
	cmdReadSectorsExt = 0x24
	cmdWriteSectorsExt = 0x34
	cmdFlushCache     = 0xE7
	cmdFlushCacheExt  = 0xEA

	maxWaitReadyIters = 100000

	// Drive select high nibble: master (0xE0) or slave (0xF0), LBA bit set.
	driveMasterLBA = 0xE0
	driveSlaveLBA  = 0xF0

	lba28Max = 0x0FFF_FFFF
)

// Device is a blockdev.Device for one ATA drive (master or slave) on a
// channel.
type Device struct {
	name  string
	io    PortIO
	ports Ports
	slave bool

	model      string
	lba28Count uint64
	lba48Count uint64
	lba48      bool
}

// New identifies the drive at ports (master if !slave, else slave) and,
// on success, returns a ready-to-register Device. It does not register
// the device into any blockdev.Registry; callers do that explicitly so
// boot code controls ordering and naming ("hda", "hdb", ...).
func New(name string, io PortIO, ports Ports, slave bool) (*Device, error) {
	d := &Device{name: name, io: io, ports: ports, slave: slave}
	if err := d.identify(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) Name() string      { return d.name }
func (d *Device) BlockSize() uint32 { return 512 }

func (d *Device) BlockCount() uint64 {
	if d.lba48 {
		return d.lba48Count
	}
	return d.lba28Count
}

// Model returns the right-trimmed model string IDENTIFY reported.
func (d *Device) Model() string { return d.model }

func (d *Device) selectDrive() uint8 {
	if d.slave {
		return driveSlaveLBA
	}
	return driveMasterLBA
}

// waitReady polls status&BSY==0 for up to maxWaitReadyIters iterations.
// When checkError is set and the device signals ERR once ready, the
// error register is logged and IoError is returned.
func (d *Device) waitReady(checkError bool) error {
	var status uint8
	for i := 0; i < maxWaitReadyIters; i++ {
		status = d.io.In8(d.ports.Command)
		if status&statusBSY == 0 {
			if checkError && status&statusERR != 0 {
				errReg := d.io.In8(d.ports.Error)
				Logger.Printf("ata %q: device error, error register=0x%02x", d.name, errReg)
				return errkind.New("ata.waitReady", errkind.IoError, fmt.Errorf("error register 0x%02x", errReg))
			}
			return nil
		}
	}
	return errkind.New("ata.waitReady", errkind.Timeout, fmt.Errorf("status register stuck busy after %d polls", maxWaitReadyIters))
}

// identify issues IDENTIFY DEVICE (0xEC), reads the 256-word response,
// and extracts model, LBA28 and LBA48 sector counts, and LBA48 support.
func (d *Device) identify() error {
	d.io.Out8(d.ports.DriveSelect, d.selectDrive())
	d.io.Out8(d.ports.SectorCount, 0)
	d.io.Out8(d.ports.LBALow, 0)
	d.io.Out8(d.ports.LBAMid, 0)
	d.io.Out8(d.ports.LBAHigh, 0)
	d.io.Out8(d.ports.Command, cmdIdentify)

	status := d.io.In8(d.ports.Command)
	if status == 0 {
		return errkind.New("ata.identify", errkind.DeviceNotFound, fmt.Errorf("no device on %s", d.name))
	}
	if err := d.waitReady(true); err != nil {
		return err
	}

	words := make([]uint16, 256)
	for i := range words {
		words[i] = d.io.In16(d.ports.Data)
	}

	d.model = extractModel(words[27:47])
	d.lba28Count = uint64(words[60]) | uint64(words[61])<<16
	d.lba48Count = uint64(words[100]) | uint64(words[101])<<16 |
		uint64(words[102])<<32 | uint64(words[103])<<48
	d.lba48 = words[83]&(1<<10) != 0
	return nil
}

// extractModel byte-swaps each word (ATA strings are word-swapped ASCII
// pairs) and right-trims spaces.
func extractModel(words []uint16) string {
	var b strings.Builder
	for _, w := range words {
		b.WriteByte(byte(w >> 8))
		b.WriteByte(byte(w))
	}
	return strings.TrimRight(b.String(), " \x00")
}

// ReadBlock reads one 512-byte sector at blockNum.
func (d *Device) ReadBlock(blockNum uint64, buf []byte) error {
	return d.ReadBlocks(blockNum, buf[:512])
}

// WriteBlock writes one 512-byte sector at blockNum.
func (d *Device) WriteBlock(blockNum uint64, buf []byte) error {
	return d.WriteBlocks(blockNum, buf[:512])
}

const maxSectorsPerChunk = 256

// ReadBlocks reads len(buf)/512 consecutive sectors starting at
// startBlock, splitting the request into chunks of at most 256 sectors.
func (d *Device) ReadBlocks(startBlock uint64, buf []byte) error {
	n := uint64(len(buf)) / 512
	if err := blockdev.CheckBounds(d, startBlock, n); err != nil {
		return err
	}
	for done := uint64(0); done < n; {
		chunk := n - done
		if chunk > maxSectorsPerChunk {
			chunk = maxSectorsPerChunk
		}
		off := done * 512
		if err := d.rwChunk(startBlock+done, buf[off:off+chunk*512], false); err != nil {
			return err
		}
		done += chunk
	}
	return nil
}

// WriteBlocks writes len(buf)/512 consecutive sectors starting at
// startBlock, splitting into chunks of at most 256 sectors and flushing
// the write cache after each sector.
func (d *Device) WriteBlocks(startBlock uint64, buf []byte) error {
	n := uint64(len(buf)) / 512
	if err := blockdev.CheckBounds(d, startBlock, n); err != nil {
		return err
	}
	for done := uint64(0); done < n; {
		chunk := n - done
		if chunk > maxSectorsPerChunk {
			chunk = maxSectorsPerChunk
		}
		off := done * 512
		if err := d.rwChunk(startBlock+done, buf[off:off+chunk*512], true); err != nil {
			return err
		}
		done += chunk
	}
	return nil
}

// rwChunk issues a single READ/WRITE SECTORS (EXT) command for up to
// 256 sectors starting at lba, choosing LBA28 when lba fits and the
// drive supports it, else LBA48.
func (d *Device) rwChunk(lba uint64, buf []byte, write bool) error {
	sectors := uint16(len(buf) / 512)
	if sectors == 0 {
		sectors = maxSectorsPerChunk // 0 in the count register means 256
	}
	useLBA48 := lba > lba28Max || !d.canLBA28()

	if err := d.waitReady(false); err != nil {
		return err
	}
	d.io.Out8(d.ports.DriveSelect, d.selectDrive())

	if useLBA48 {
		if !d.lba48 {
			return errkind.New("ata.rwChunk", errkind.InvalidArg, fmt.Errorf("lba %d exceeds LBA28 range and device has no LBA48 support", lba))
		}
		d.io.Out8(d.ports.SectorCount, byte(sectors>>8))
		d.io.Out8(d.ports.LBALow, byte(lba>>24))
		d.io.Out8(d.ports.LBAMid, byte(lba>>32))
		d.io.Out8(d.ports.LBAHigh, byte(lba>>40))
		d.io.Out8(d.ports.SectorCount, byte(sectors))
		d.io.Out8(d.ports.LBALow, byte(lba))
		d.io.Out8(d.ports.LBAMid, byte(lba>>8))
		d.io.Out8(d.ports.LBAHigh, byte(lba>>16))
		if write {
			d.io.Out8(d.ports.Command, cmdWriteSectorsExt)
		} else {
			d.io.Out8(d.ports.Command, cmdReadSectorsExt)
		}
	} else {
		d.io.Out8(d.ports.SectorCount, byte(sectors))
		d.io.Out8(d.ports.LBALow, byte(lba))
		d.io.Out8(d.ports.LBAMid, byte(lba>>8))
		d.io.Out8(d.ports.LBAHigh, byte(lba>>16))
		if write {
			d.io.Out8(d.ports.Command, cmdWriteSectors)
		} else {
			d.io.Out8(d.ports.Command, cmdReadSectors)
		}
	}

	n := int(sectors)
	for s := 0; s < n; s++ {
		if err := d.waitReady(true); err != nil {
			return err
		}
		off := s * 512
		word := buf[off : off+512]
		if write {
			for i := 0; i < 512; i += 2 {
				d.io.Out16(d.ports.Data, uint16(word[i])|uint16(word[i+1])<<8)
			}
			cmd := uint8(cmdFlushCache)
			if useLBA48 {
				cmd = cmdFlushCacheExt
			}
			d.io.Out8(d.ports.Command, cmd)
			if err := d.waitReady(true); err != nil {
				return err
			}
		} else {
			for i := 0; i < 512; i += 2 {
				v := d.io.In16(d.ports.Data)
				word[i] = byte(v)
				word[i+1] = byte(v >> 8)
			}
		}
	}
	return nil
}

func (d *Device) canLBA28() bool { return d.lba28Count > 0 }

var _ blockdev.Device = (*Device)(nil)
