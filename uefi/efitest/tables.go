// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/usbarmory/go-uefi/uefi"
)

// EFI Table Header Signatures
const (
	SystemTableSignature     = 0x5453595320494249 // TSYS IBI
	BootServicesSignature    = 0x56524553544f4f42 // VRESTOOB
	RuntimeServicesSignature = 0x56524553544e5552 // VRESTNUR
)

// EFI table sizes
const (
	headerSize          = 0x18
	systemTableSize     = 0x78
	bootServicesSize    = 0x178
	runtimeServicesSize = 0x88
	crcOffset           = 0x10
)

// EFI System Table field offsets
const (
	firmwareVendor       = 0x18
	firmwareRevision     = 0x20
	consoleInHandle      = 0x28
	conIn                = 0x30
	consoleOutHandle     = 0x38
	conOut               = 0x40
	standardErrorHandle  = 0x48
	stdErr               = 0x50
	runtimeServices      = 0x58
	bootServices         = 0x60
	numberOfTableEntries = 0x68
	configurationTable   = 0x70
)

// Vendor is the simulated firmware vendor string.
const Vendor = "go-uefi simulated firmware"

// Table identifies a simulated EFI table.
type Table int

const (
	SystemTable Table = iota
	BootServicesTable
	RuntimeServicesTable
)

type configTable struct {
	guid uefi.GUID
	addr uint64
}

func (f *Firmware) tableAddress(t Table) uint64 {
	switch t {
	case SystemTable:
		return f.systemTable
	case BootServicesTable:
		return f.bootTable
	case RuntimeServicesTable:
		return f.runtimeTable
	default:
		panic("efitest: invalid table")
	}
}

// TableAddress returns the address of a simulated EFI table.
func (f *Firmware) TableAddress(t Table) uint64 {
	f.Lock()
	defer f.Unlock()

	return f.tableAddress(t)
}

func (f *Firmware) header(addr uint64, signature uint64, size int) {
	r := f.region(addr, size)

	binary.LittleEndian.PutUint64(r.buf[0x00:], signature)
	binary.LittleEndian.PutUint32(r.buf[0x08:], f.revision)
	binary.LittleEndian.PutUint32(r.buf[0x0c:], uint32(size))
}

// checksum updates the header CRC32 of the table at addr, computed over its
// declared size with the CRC32 field zeroed.
func (f *Firmware) checksum(addr uint64) {
	r := f.region(addr, headerSize)
	size := binary.LittleEndian.Uint32(r.buf[0x0c:])

	if int(size) > len(r.buf) {
		size = uint32(len(r.buf))
	}

	binary.LittleEndian.PutUint32(r.buf[crcOffset:], 0)
	binary.LittleEndian.PutUint32(r.buf[crcOffset:], crc32.ChecksumIEEE(r.buf[:size]))
}

// slot stores the function pointer of a service at the argument table
// offset.
func (f *Firmware) slot(addr uint64, offset uint64, s Service) {
	r := f.region(addr+offset, 8)
	binary.LittleEndian.PutUint64(r.buf[addr+offset-r.base:], f.function(s))
}

func (f *Firmware) putTableField(offset uint64, v uint64) {
	r := f.region(f.systemTable, systemTableSize)
	binary.LittleEndian.PutUint64(r.buf[offset:], v)
}

func (f *Firmware) buildTables() {
	f.systemTable, _ = f.place(systemTableSize)
	f.bootTable, _ = f.place(bootServicesSize)
	f.runtimeTable, _ = f.place(runtimeServicesSize)

	f.header(f.systemTable, SystemTableSignature, systemTableSize)
	f.header(f.bootTable, BootServicesSignature, bootServicesSize)
	f.header(f.runtimeTable, RuntimeServicesSignature, runtimeServicesSize)

	vendor, buf := f.place(len(Vendor)*2 + 2)
	copy(buf, encodeString(Vendor))

	f.putTableField(firmwareVendor, vendor)
	f.putTableField(firmwareRevision, 0x00010000)
	f.putTableField(bootServices, f.bootTable)
	f.putTableField(runtimeServices, f.runtimeTable)

	f.bootServices()
	f.runtimeServices()

	f.checksum(f.bootTable)
	f.checksum(f.runtimeTable)
}

// updateSystemTable rewrites the configuration table array and the EFI
// System Table checksum.
func (f *Firmware) updateSystemTable() {
	var addr uint64

	if n := len(f.config); n > 0 {
		var buf []byte

		addr, buf = f.place(n * 24)

		for i, t := range f.config {
			copy(buf[i*24:], t.guid[:])
			binary.LittleEndian.PutUint64(buf[i*24+16:], t.addr)
		}
	}

	f.putTableField(numberOfTableEntries, uint64(len(f.config)))
	f.putTableField(configurationTable, addr)

	f.checksum(f.systemTable)
}

// AddConfigurationTable installs an EFI Configuration Table, returning the
// vendor table address.
func (f *Firmware) AddConfigurationTable(guid uefi.GUID, data []byte) (addr uint64) {
	f.Lock()
	defer f.Unlock()

	addr, buf := f.place(len(data))
	copy(buf, data)

	f.config = append(f.config, configTable{guid: guid, addr: addr})
	f.updateSystemTable()

	return
}

// PatchHeader modifies the header of a simulated EFI table, the table
// checksum is recomputed when checksum is true.
func (f *Firmware) PatchHeader(t Table, fn func(hdr *uefi.TableHeader), checksum bool) {
	f.Lock()
	defer f.Unlock()

	addr := f.tableAddress(t)
	r := f.region(addr, headerSize)
	hdr := &uefi.TableHeader{}

	if _, err := binary.Decode(r.buf, binary.LittleEndian, hdr); err != nil {
		panic(err)
	}

	fn(hdr)

	if _, err := binary.Encode(r.buf, binary.LittleEndian, hdr); err != nil {
		panic(err)
	}

	if checksum {
		f.checksum(addr)
	}
}
