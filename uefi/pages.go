// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

// EFI Boot Service offsets
const (
	allocatePages = 0x28
	freePages     = 0x30
	allocatePool  = 0x40
	freePool      = 0x48
)

// EFI_ALLOCATE_TYPE
const (
	AllocateAnyPages = iota
	AllocateMaxAddress
	AllocateAddress
	MaxAllocateType
)

// EFI_MEMORY_TYPE
const (
	EfiReservedMemoryType = iota
	EfiLoaderCode
	EfiLoaderData
	EfiBootServicesCode
	EfiBootServicesData
	EfiRuntimeServicesCode
	EfiRuntimeServicesData
	EfiConventionalMemory
	EfiUnusableMemory
	EfiACPIReclaimMemory
	EfiACPIMemoryNVS
	EfiMemoryMappedIO
	EfiMemoryMappedIOPortSpace
	EfiPalCode
	EfiPersistentMemory
	EfiUnacceptedMemoryType
	EfiMaxMemoryType
)

// pages returns the number of pages required to hold size bytes.
func pages(size int) uint64 {
	return (uint64(size) + PageSize - 1) / PageSize
}

// AllocatePages calls EFI_BOOT_SERVICES.AllocatePages(), the physical
// address argument is only used with AllocateMaxAddress and AllocateAddress
// allocation types.
func (s *BootServices) AllocatePages(allocateType int, memoryType int, size int, physicalAddress uint64) (addr uint64, err error) {
	addr = physicalAddress

	err = s.lc.boot("AllocatePages", s.base+allocatePages,
		[]uint64{
			uint64(allocateType),
			uint64(memoryType),
			pages(size),
			ptrval(&addr),
		},
	)

	return
}

// FreePages calls EFI_BOOT_SERVICES.FreePages().
func (s *BootServices) FreePages(physicalAddress uint64, size int) error {
	return s.lc.boot("FreePages", s.base+freePages,
		[]uint64{
			physicalAddress,
			pages(size),
		},
	)
}

// AllocatePool calls EFI_BOOT_SERVICES.AllocatePool().
func (s *BootServices) AllocatePool(memoryType int, size int) (addr uint64, err error) {
	err = s.lc.boot("AllocatePool", s.base+allocatePool,
		[]uint64{
			uint64(memoryType),
			uint64(size),
			ptrval(&addr),
		},
	)

	return
}

// FreePool calls EFI_BOOT_SERVICES.FreePool().
func (s *BootServices) FreePool(addr uint64) error {
	return s.lc.boot("FreePool", s.base+freePool,
		[]uint64{
			addr,
		},
	)
}
