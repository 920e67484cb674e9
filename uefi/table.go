// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// EFI Table Header Signatures
const (
	systemTableSignature     = 0x5453595320494249 // TSYS IBI
	bootServicesSignature    = 0x56524553544f4f42 // VRESTOOB
	runtimeServicesSignature = 0x56524553544e5552 // VRESTNUR
)

// EFI table sizes for the UEFI 2.x layout
const (
	tableHeaderSize          = 0x18
	systemTableSize          = 0x78
	bootServicesTableSize    = 0x178
	runtimeServicesTableSize = 0x88

	// upper bound for firmware declared table sizes
	maxTableSize = 0x10000

	// CRC32 field offset within the table header
	crcOffset = 0x10
)

// EFI table revisions
const (
	EFI_1_10_SYSTEM_TABLE_REVISION  = 1<<16 | 10
	EFI_2_00_SYSTEM_TABLE_REVISION  = 2<<16 | 0
	EFI_2_10_SYSTEM_TABLE_REVISION  = 2<<16 | 10
	EFI_2_70_SYSTEM_TABLE_REVISION  = 2<<16 | 70
	EFI_2_100_SYSTEM_TABLE_REVISION = 2<<16 | 100
)

// TableHeader represents the data structure that precedes all of the standard
// EFI table types.
type TableHeader struct {
	Signature  uint64
	Revision   uint32
	HeaderSize uint32
	CRC32      uint32
	Reserved   uint32
}

// SystemTable represents the EFI System Table, containing pointers to the
// runtime and boot services tables.
type SystemTable struct {
	Header               TableHeader
	FirmwareVendor       uint64
	FirmwareRevision     uint32
	_                    uint32
	ConsoleInHandle      uint64
	ConIn                uint64
	ConsoleOutHandle     uint64
	ConOut               uint64
	StandardErrorHandle  uint64
	StdErr               uint64
	RuntimeServices      uint64
	BootServices         uint64
	NumberOfTableEntries uint64
	ConfigurationTable   uint64
}

// ConsoleIn returns the handle of the active console input device.
func (d *SystemTable) ConsoleIn() Handle {
	return newHandle(d.ConsoleInHandle)
}

// ConsoleOut returns the handle of the active console output device.
func (d *SystemTable) ConsoleOut() Handle {
	return newHandle(d.ConsoleOutHandle)
}

// RevisionString returns the EFI table revision in major.minor format.
func RevisionString(rev uint32) string {
	major := rev >> 16
	minor := rev & 0xffff

	if minor%10 == 0 {
		return fmt.Sprintf("%d.%d", major, minor/10)
	}

	return fmt.Sprintf("%d.%d.%d", major, minor/10, minor%10)
}

func corrupt(format string, a ...any) error {
	return fmt.Errorf("%w, %s", ErrCorruptTable, fmt.Sprintf(format, a...))
}

// loadTable validates the EFI table at addr and returns its header along with
// the table bytes the validation was performed on.
//
// The table is valid when its signature matches, its declared size is at
// least minSize, its CRC32 (computed over the declared size with the CRC32
// field zeroed) matches and its revision is at least minRevision.
func loadTable(fw Firmware, addr uint64, signature uint64, minSize int, minRevision uint32) (hdr TableHeader, buf []byte, err error) {
	if addr == 0 {
		return hdr, nil, corrupt("null table pointer")
	}

	buf = make([]byte, tableHeaderSize)

	if err = fw.ReadMemory(addr, buf); err != nil {
		return hdr, nil, corrupt("cannot read header at %#x (%v)", addr, err)
	}

	if err = unmarshalBinary(buf, &hdr); err != nil {
		return hdr, nil, corrupt("cannot decode header (%v)", err)
	}

	if int(hdr.HeaderSize) < minSize || hdr.HeaderSize > maxTableSize {
		return hdr, nil, corrupt("invalid size %d", hdr.HeaderSize)
	}

	buf = make([]byte, hdr.HeaderSize)

	if err = fw.ReadMemory(addr, buf); err != nil {
		return hdr, nil, corrupt("cannot read table at %#x (%v)", addr, err)
	}

	// all checks apply to the single snapshot in buf
	if err = unmarshalBinary(buf, &hdr); err != nil {
		return hdr, nil, corrupt("cannot decode header (%v)", err)
	}

	if hdr.Signature != signature {
		return hdr, nil, corrupt("invalid signature %#x", hdr.Signature)
	}

	if int(hdr.HeaderSize) != len(buf) {
		return hdr, nil, corrupt("size changed to %d while reading", hdr.HeaderSize)
	}

	binary.LittleEndian.PutUint32(buf[crcOffset:], 0)

	if crc := crc32.ChecksumIEEE(buf); crc != hdr.CRC32 {
		return hdr, nil, corrupt("invalid checksum %#x, expected %#x", hdr.CRC32, crc)
	}

	binary.LittleEndian.PutUint32(buf[crcOffset:], hdr.CRC32)

	if hdr.Revision < minRevision {
		return hdr, nil, corrupt("unsupported revision %s", RevisionString(hdr.Revision))
	}

	return
}

// LoadSystemTable validates and returns the EFI System Table at addr. Any
// validation failure is reported as a CorruptData error, no table field is
// trusted before validation. The table is never modified.
func LoadSystemTable(fw Firmware, addr uint64, minRevision uint32) (t *SystemTable, err error) {
	_, buf, err := loadTable(fw, addr, systemTableSignature, systemTableSize, minRevision)

	if err != nil {
		return
	}

	t = &SystemTable{}

	if err = unmarshalBinary(buf, t); err != nil {
		return nil, corrupt("cannot decode system table (%v)", err)
	}

	return
}
