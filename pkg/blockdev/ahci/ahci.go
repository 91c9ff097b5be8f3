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

// Package ahci drives a SATA AHCI controller: PCI enumeration, MMIO BAR
// decode, and per-port command-list/FIS/PRDT DMA transfers. OpenPort
// returns one blockdev.Device per port for the caller to register, the
// same way pkg/blockdev/ata returns one per drive.
//
// This package treats the PCI bus, the physical/virtual memory manager,
// and the MMIO register window as external collaborators, consumed
// through the PCIDirectory, PhysMapper, and MMIO interfaces respectively
// — exactly the "read-only device directory" and "alloc_pages/map_page/
// virt_to_phys" boundary the rest of this kernel treats them as. A real
// boot-time build backs MMIO with an mmap'd BAR (golang.org/x/sys/unix's
// Mmap over /dev/mem or a PCI resource file); tests back it with plain
// memory.
package ahci

import (
	"fmt"
	"log"
	"unsafe"

	"github.com/scarlett-os/kernel/pkg/blockdev"
	"github.com/scarlett-os/kernel/pkg/errkind"
)

var Logger = log.Default()

const (
	pciClassMassStorage = 0x01
	pciSubclassSATA     = 0x06
	pciProgIfAHCI       = 0x01
)

// PCIFunction is one enumerated PCI function, as reported by the bus's
// read-only device directory.
type PCIFunction struct {
	Class, Subclass, ProgIF uint8
	// BARs holds the function's base address registers; BAR entries
	// that are I/O-space (not memory-mapped) are zero here, the same
	// convention the real PCI config space uses for "not memory".
	BARs [6]uint64
}

// PCIDirectory enumerates PCI functions. The real bus enumerator is out
// of this module's scope; this is the read-only view it exposes.
type PCIDirectory interface {
	Functions() []PCIFunction
}

// PhysMapper resolves a virtual (heap) address to the physical address
// the controller's DMA engine needs, i.e. virt_to_phys.
type PhysMapper interface {
	VirtToPhys(virt uintptr) (phys uint64, err error)
}

// MMIO is a memory-mapped register window: little-endian 32-bit reads
// and writes at byte offsets from the window's base.
type MMIO interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, v uint32)
}

// HBA register offsets (host bus adapter / generic host control).
const (
	regGHC = 0x04 // AHCI_GHC
	regCAP = 0x00
	ghcAHCIEnable = 1 << 31

	portRegionBase = 0x100
	portRegionSize = 0x80

	// Per-port register offsets, relative to the port's own base.
	portCLB  = 0x00
	portCLBU = 0x04
	portFB   = 0x08
	portFBU  = 0x0C
	portCI   = 0x38
	portCMD  = 0x18
	portTFD  = 0x20

	portCmdST  = 1 << 0
	portCmdFRE = 1 << 4
	portCmdFR  = 1 << 14 // FIS-receive engine running
	portCmdCR  = 1 << 15 // command-list engine running

	maxCIPollIters   = 1_000_000
	maxStopPollIters = 10_000
)

// ATA commands issued via the Register FIS.
const (
	ataCmdReadDMAExt  = 0x25
	ataCmdWriteDMAExt = 0x35
)

// Controller owns one AHCI HBA's MMIO window and exposes its ports.
type Controller struct {
	mmio  MMIO
	phys  PhysMapper
	alloc Allocator
	ports int
}

// Allocator allocates and frees fixed-size, physically addressable DMA
// buffers (the command list, FIS-receive area, and command table), i.e.
// alloc_pages.
type Allocator interface {
	Alloc(size int) (virt uintptr, buf []byte, err error)
	Free(virt uintptr)
}

// NewController finds the first PCI function with class/subclass/progif
// 0x01/0x06/0x01, maps its first valid memory BAR, enables AHCI mode if
// not already enabled, and returns a Controller with CAP.NP+1 ports.
func NewController(dir PCIDirectory, openMMIO func(bar uint64) (MMIO, error), phys PhysMapper, alloc Allocator) (*Controller, error) {
	var fn *PCIFunction
	for _, f := range dir.Functions() {
		if f.Class == pciClassMassStorage && f.Subclass == pciSubclassSATA && f.ProgIF == pciProgIfAHCI {
			fcopy := f
			fn = &fcopy
			break
		}
	}
	if fn == nil {
		return nil, errkind.New("ahci.NewController", errkind.DeviceNotFound, fmt.Errorf("no AHCI controller on PCI bus"))
	}
	var bar uint64
	for _, b := range fn.BARs {
		if b != 0 {
			bar = b
			break
		}
	}
	if bar == 0 {
		return nil, errkind.New("ahci.NewController", errkind.MappingFailed, fmt.Errorf("AHCI controller has no valid memory BAR"))
	}
	mmio, err := openMMIO(bar)
	if err != nil {
		return nil, errkind.New("ahci.NewController", errkind.MappingFailed, err)
	}
	ghc := mmio.Read32(regGHC)
	if ghc&ghcAHCIEnable == 0 {
		mmio.Write32(regGHC, ghc|ghcAHCIEnable)
	}
	capReg := mmio.Read32(regCAP)
	numPorts := int(capReg&0x1F) + 1
	return &Controller{mmio: mmio, phys: phys, alloc: alloc, ports: numPorts}, nil
}

// NumPorts returns CAP.NP + 1.
func (c *Controller) NumPorts() int { return c.ports }

func (c *Controller) portBase(port int) uint32 {
	return portRegionBase + uint32(port)*portRegionSize
}

// OpenPort sets up port's command list, FIS-receive area, and command
// table, and returns a blockdev.Device for it. sectorCount is the
// drive's reported capacity (AHCI itself has no IDENTIFY shortcut here;
// the caller supplies it, e.g. from a prior ATA IDENTIFY over the same
// link, or a fixed configuration).
func (c *Controller) OpenPort(name string, port int, sectorCount uint64) (*Device, error) {
	if port < 0 || port >= c.ports {
		return nil, errkind.New("ahci.OpenPort", errkind.InvalidArg, fmt.Errorf("port %d out of range [0,%d)", port, c.ports))
	}
	clVirt, clBuf, err := c.alloc.Alloc(1024)
	if err != nil {
		return nil, errkind.New("ahci.OpenPort", errkind.MappingFailed, err)
	}
	clPhys, err := c.phys.VirtToPhys(clVirt)
	if err != nil {
		c.alloc.Free(clVirt)
		return nil, errkind.New("ahci.OpenPort", errkind.MappingFailed, err)
	}
	fbVirt, _, err := c.alloc.Alloc(256)
	if err != nil {
		c.alloc.Free(clVirt)
		return nil, errkind.New("ahci.OpenPort", errkind.MappingFailed, err)
	}
	fbPhys, err := c.phys.VirtToPhys(fbVirt)
	if err != nil {
		c.alloc.Free(clVirt)
		c.alloc.Free(fbVirt)
		return nil, errkind.New("ahci.OpenPort", errkind.MappingFailed, err)
	}
	// One command table sized for a single PRDT entry: 0x80 header +
	// one 16-byte PRDT entry.
	ctVirt, ctBuf, err := c.alloc.Alloc(0x80 + 16)
	if err != nil {
		c.alloc.Free(clVirt)
		c.alloc.Free(fbVirt)
		return nil, errkind.New("ahci.OpenPort", errkind.MappingFailed, err)
	}
	ctPhys, err := c.phys.VirtToPhys(ctVirt)
	if err != nil {
		c.alloc.Free(clVirt)
		c.alloc.Free(fbVirt)
		c.alloc.Free(ctVirt)
		return nil, errkind.New("ahci.OpenPort", errkind.MappingFailed, err)
	}

	base := c.portBase(port)
	c.mmio.Write32(base+portCLB, uint32(clPhys))
	c.mmio.Write32(base+portCLBU, uint32(clPhys>>32))
	c.mmio.Write32(base+portFB, uint32(fbPhys))
	c.mmio.Write32(base+portFBU, uint32(fbPhys>>32))

	// First command-list slot's command header points at the command table.
	putLE32(clBuf[8:12], uint32(ctPhys))
	putLE32(clBuf[12:16], uint32(ctPhys>>32))

	cmd := c.mmio.Read32(base + portCMD)
	c.mmio.Write32(base+portCMD, cmd|portCmdFRE|portCmdST)

	return &Device{
		name:        name,
		ctrl:        c,
		port:        port,
		base:        base,
		clBuf:       clBuf,
		ctBuf:       ctBuf,
		sectorCount: sectorCount,
		clVirt:      clVirt,
		fbVirt:      fbVirt,
		ctVirt:      ctVirt,
	}, nil
}

// stopCommandEngine clears PxCMD.ST and PxCMD.FRE and polls until the
// controller reports PxCMD.CR and PxCMD.FR both clear — the teardown
// AHCI requires before the command list or FIS-receive area can be
// touched again, whether at unmount or after rw hits an error the
// engine needs to recover from.
func (d *Device) stopCommandEngine() error {
	cmd := d.ctrl.mmio.Read32(d.base + portCMD)
	d.ctrl.mmio.Write32(d.base+portCMD, cmd&^(portCmdST|portCmdFRE))
	for i := 0; i < maxStopPollIters; i++ {
		if d.ctrl.mmio.Read32(d.base+portCMD)&(portCmdCR|portCmdFR) == 0 {
			return nil
		}
	}
	return errkind.New("ahci.stopCommandEngine", errkind.Timeout, fmt.Errorf("PxCMD.CR/FR did not clear after %d polls", maxStopPollIters))
}

// startCommandEngine re-enables PxCMD.FRE and PxCMD.ST, the same
// sequence OpenPort uses, so the port accepts commands again after
// stopCommandEngine tore it down.
func (d *Device) startCommandEngine() {
	cmd := d.ctrl.mmio.Read32(d.base + portCMD)
	d.ctrl.mmio.Write32(d.base+portCMD, cmd|portCmdFRE|portCmdST)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Device is a blockdev.Device for one AHCI port.
type Device struct {
	name        string
	ctrl        *Controller
	port        int
	base        uint32
	clBuf, ctBuf []byte
	sectorCount uint64
	clVirt, fbVirt, ctVirt uintptr
}

func (d *Device) Name() string       { return d.name }
func (d *Device) BlockSize() uint32  { return 512 }
func (d *Device) BlockCount() uint64 { return d.sectorCount }

// Close stops the port's command engine — clearing PxCMD.ST/FRE and
// waiting for PxCMD.CR/FR to drop, so the DMA buffers below are no
// longer live when they're freed — then frees them. Every exit path
// from OpenPort that fails partway already frees what it allocated;
// Close frees the buffers for a port that opened successfully.
func (d *Device) Close() {
	if err := d.stopCommandEngine(); err != nil {
		Logger.Printf("ahci port %d: teardown on close: %v", d.port, err)
	}
	d.ctrl.alloc.Free(d.clVirt)
	d.ctrl.alloc.Free(d.fbVirt)
	d.ctrl.alloc.Free(d.ctVirt)
}

func (d *Device) ReadBlock(blockNum uint64, buf []byte) error {
	return d.rw(blockNum, buf[:512], false)
}

func (d *Device) WriteBlock(blockNum uint64, buf []byte) error {
	return d.rw(blockNum, buf[:512], true)
}

func (d *Device) ReadBlocks(startBlock uint64, buf []byte) error {
	return d.rw(startBlock, buf, false)
}

func (d *Device) WriteBlocks(startBlock uint64, buf []byte) error {
	return d.rw(startBlock, buf, true)
}

// rw performs one DMA transfer of len(buf)/512 sectors starting at lba:
// build a Register H2D FIS in the command table, fill its single PRDT
// entry with buf's physical address, issue PxCI bit 0, and poll for
// completion.
func (d *Device) rw(lba uint64, buf []byte, write bool) error {
	n := uint64(len(buf)) / 512
	if err := blockdev.CheckBounds(d, lba, n); err != nil {
		return err
	}
	bufPhys, err := d.ctrl.phys.VirtToPhys(bufVirtAddr(buf))
	if err != nil {
		return errkind.New("ahci.rw", errkind.MappingFailed, err)
	}

	// Command table: 0x00 Register H2D FIS, 0x80 PRDT entry 0.
	fis := d.ctBuf[0:0x80]
	for i := range fis {
		fis[i] = 0
	}
	fis[0] = 0x27 // Register FIS - Host to Device
	fis[1] = 1 << 7 // "C" bit: this is a command
	if write {
		fis[2] = ataCmdWriteDMAExt
	} else {
		fis[2] = ataCmdReadDMAExt
	}
	fis[4] = byte(lba)
	fis[5] = byte(lba >> 8)
	fis[6] = byte(lba >> 16)
	fis[7] = 0x40 // device: LBA mode
	fis[8] = byte(lba >> 24)
	fis[9] = byte(lba >> 32)
	fis[10] = byte(lba >> 40)
	fis[12] = byte(n)
	fis[13] = byte(n >> 8)

	prdt := d.ctBuf[0x80 : 0x80+16]
	putLE32(prdt[0:4], uint32(bufPhys))
	putLE32(prdt[4:8], uint32(bufPhys>>32))
	putLE32(prdt[12:16], uint32(len(buf)-1)) // byte count - 1, per PRDT field semantics

	// Command header: word 0 sets FIS length (in DWORDs) and the write bit.
	cfl := uint32(5) // Register FIS is 5 DWORDs
	header := uint32(cfl)
	if write {
		header |= 1 << 6
	}
	header |= 1 << 16 // PRDT entry count = 1
	putLE32(d.clBuf[0:4], header)

	d.ctrl.mmio.Write32(d.base+portCI, 1)

	for i := 0; i < maxCIPollIters; i++ {
		ci := d.ctrl.mmio.Read32(d.base + portCI)
		if ci&1 == 0 {
			tfd := d.ctrl.mmio.Read32(d.base + portTFD)
			if tfd&1 != 0 {
				Logger.Printf("ahci port %d: task file error, TFD=0x%08x", d.port, tfd)
				d.recoverCommandEngine("task file error")
				return errkind.New("ahci.rw", errkind.IoError, fmt.Errorf("TFD error bit set: 0x%08x", tfd))
			}
			return nil
		}
	}
	d.recoverCommandEngine("PxCI timeout")
	return errkind.New("ahci.rw", errkind.Timeout, fmt.Errorf("PxCI did not clear after %d polls", maxCIPollIters))
}

// recoverCommandEngine tears the port's command engine down and back
// up after rw hits an error, so a task-file error or a wedged PxCI bit
// on one transfer doesn't leave the port permanently unable to accept
// the next one. A failed teardown is logged, not propagated: the
// caller already has the rw error it needs to report.
func (d *Device) recoverCommandEngine(reason string) {
	if err := d.stopCommandEngine(); err != nil {
		Logger.Printf("ahci port %d: teardown after %s: %v", d.port, reason, err)
		return
	}
	d.startCommandEngine()
}

// bufVirtAddr returns buf's backing array address, the "virtual
// address" rw hands to PhysMapper.VirtToPhys, mirroring how the real
// kernel passes a heap pointer to virt_to_phys.
func bufVirtAddr(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

var _ blockdev.Device = (*Device)(nil)
