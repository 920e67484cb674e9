// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/u-root/u-root/pkg/boot/bzimage"
)

const (
	// EFI Boot Services offset for GetMemoryMap
	getMemoryMap = 0x38
	// initial memory map buffer entries
	mapEntries = 64
	// extra entries to account for map growth between calls
	mapSlack = 8
)

// Advanced Configuration and Power Interface Specification (ACPI)
// Version 6.0 - Table 15-312 Address Range Types12
const AddressRangePersistentMemory = 7

// PageSize represents the EFI page size in bytes
const PageSize = 4096 // 4 KiB

// EFI memory attributes
const (
	EFI_MEMORY_UC      = 0x0000000000000001
	EFI_MEMORY_WC      = 0x0000000000000002
	EFI_MEMORY_WT      = 0x0000000000000004
	EFI_MEMORY_WB      = 0x0000000000000008
	EFI_MEMORY_UCE     = 0x0000000000000010
	EFI_MEMORY_WP      = 0x0000000000001000
	EFI_MEMORY_RP      = 0x0000000000002000
	EFI_MEMORY_XP      = 0x0000000000004000
	EFI_MEMORY_NV      = 0x0000000000008000
	EFI_MEMORY_RO      = 0x0000000000020000
	EFI_MEMORY_RUNTIME = 0x8000000000000000
)

// MemoryDescriptor represents an EFI Memory Descriptor
type MemoryDescriptor struct {
	Type          uint32
	_             uint32
	PhysicalStart uint64
	VirtualStart  uint64
	NumberOfPages uint64
	Attribute     uint64
}

// PhysicalEnd returns the descriptor physical end address.
func (d *MemoryDescriptor) PhysicalEnd() uint64 {
	return d.PhysicalStart + d.NumberOfPages*PageSize
}

// Size returns the descriptor size.
func (d *MemoryDescriptor) Size() int {
	return int(d.NumberOfPages * PageSize)
}

// Runtime reports whether the descriptor memory must be preserved, and mapped,
// for runtime services use after ExitBootServices().
func (d *MemoryDescriptor) Runtime() bool {
	return d.Attribute&EFI_MEMORY_RUNTIME != 0
}

// E820 converts an EFI Memory Map entry to an x86 E820 one suitable for use
// after exiting EFI Boot Services.
func (d *MemoryDescriptor) E820() (bzimage.E820Entry, error) {
	e := bzimage.E820Entry{
		Addr: d.PhysicalStart,
		Size: d.NumberOfPages * PageSize,
	}

	// Unified Extensible Firmware Interface (UEFI) Specification
	// Version 2.10 - Table 7.10: Memory Type Usage after ExitBootServices()
	switch d.Type {
	case EfiLoaderCode, EfiLoaderData, EfiBootServicesCode, EfiBootServicesData, EfiConventionalMemory:
		e.MemType = bzimage.RAM
	case EfiPersistentMemory:
		e.MemType = AddressRangePersistentMemory
	case EfiACPIReclaimMemory:
		e.MemType = bzimage.ACPI
	case EfiACPIMemoryNVS:
		e.MemType = bzimage.NVS
	default:
		e.MemType = bzimage.Reserved
	}

	return e, nil
}

// MemoryMap represents an EFI Memory Map
type MemoryMap struct {
	MapSize           uint64
	Descriptors       []*MemoryDescriptor
	MapKey            uint64
	DescriptorSize    uint64
	DescriptorVersion uint32

	buf []byte
}

// Address returns the EFI Memory Map pointer.
func (m *MemoryMap) Address() uint64 {
	return ptrval(&m.buf[0])
}

// E820 converts the EFI Memory Map to an x86 E820 map, merging adjacent
// entries of the same type.
func (m *MemoryMap) E820() (e820 []bzimage.E820Entry, err error) {
	for _, desc := range m.Descriptors {
		e, err := desc.E820()

		if err != nil {
			return nil, err
		}

		if n := len(e820); n > 0 {
			last := &e820[n-1]

			if last.MemType == e.MemType && last.Addr+last.Size == e.Addr {
				last.Size += e.Size
				continue
			}
		}

		e820 = append(e820, e)
	}

	return
}

// GetMemoryMap calls EFI_BOOT_SERVICES.GetMemoryMap(), the map is always
// queried from firmware and its MapKey reflects the current memory map
// generation.
func (s *BootServices) GetMemoryMap() (m *MemoryMap, err error) {
	d := &MemoryDescriptor{}
	n := binary.Size(d)
	size := uint64(n * mapEntries)

	for {
		m = &MemoryMap{
			MapSize: size,
			buf:     make([]byte, size),
		}

		err = s.lc.boot("GetMemoryMap", s.base+getMemoryMap,
			[]uint64{
				ptrval(&m.MapSize),
				ptrval(&m.buf[0]),
				ptrval(&m.MapKey),
				ptrval(&m.DescriptorSize),
				ptrval(&m.DescriptorVersion),
			},
		)

		if !errors.Is(err, BufferTooSmall) {
			break
		}

		// the required size is returned in MapSize
		size = m.MapSize + max(m.DescriptorSize, uint64(n))*mapSlack
	}

	if err != nil {
		return nil, err
	}

	if m.DescriptorSize < uint64(n) {
		return nil, fmt.Errorf("GetMemoryMap, invalid descriptor size %d", m.DescriptorSize)
	}

	for i := uint64(0); i+m.DescriptorSize <= m.MapSize; i += m.DescriptorSize {
		if err = unmarshalBinary(m.buf[i:i+uint64(n)], d); err != nil {
			return nil, err
		}

		m.Descriptors = append(m.Descriptors, d)
		d = &MemoryDescriptor{}
	}

	return
}
