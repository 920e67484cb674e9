// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"encoding/binary"
	"slices"
	"time"

	"github.com/usbarmory/go-uefi/uefi"
)

// EFI Boot Services offsets
const (
	allocatePages         = 0x28
	freePages             = 0x30
	getMemoryMap          = 0x38
	allocatePool          = 0x40
	freePool              = 0x48
	handleProtocol        = 0x98
	exit                  = 0xd8
	exitBootServices      = 0xe8
	getNextMonotonicCount = 0xf0
	stall                 = 0xf8
	setWatchdogTimer      = 0x100
	locateHandleBuffer    = 0x138
	locateProtocol        = 0x140
)

// first OEM reserved EFI_MEMORY_TYPE value
const oemMemoryType = 0x70000000

type allocation struct {
	region

	pages      int
	memoryType int
}

func (a *allocation) end() uint64 {
	return a.base + uint64(a.pages)*uefi.PageSize
}

func (f *Firmware) bootServices() {
	for offset, s := range map[uint64]Service{
		allocatePages:         f.boot("AllocatePages", f.allocatePagesService),
		freePages:             f.boot("FreePages", f.freePagesService),
		getMemoryMap:          f.boot("GetMemoryMap", f.getMemoryMap),
		allocatePool:          f.boot("AllocatePool", f.allocatePoolService),
		freePool:              f.boot("FreePool", f.freePoolService),
		handleProtocol:        f.boot("HandleProtocol", f.handleProtocol),
		exit:                  f.boot("Exit", f.exit),
		exitBootServices:      f.boot("ExitBootServices", f.exitBootServices),
		getNextMonotonicCount: f.boot("GetNextMonotonicCount", f.getNextMonotonicCount),
		stall:                 f.boot("Stall", f.stall),
		setWatchdogTimer:      f.boot("SetWatchdogTimer", f.setWatchdogTimer),
		locateHandleBuffer:    f.boot("LocateHandleBuffer", f.locateHandleBuffer),
		locateProtocol:        f.boot("LocateProtocol", f.locateProtocol),
	} {
		f.slot(f.bootTable, offset, s)
	}
}

func validMemoryType(t uint64) bool {
	switch {
	case t == uefi.EfiConventionalMemory, t == uefi.EfiPersistentMemory, t == uefi.EfiUnacceptedMemoryType:
		return false
	case t >= uefi.EfiMaxMemoryType && t < oemMemoryType:
		return false
	case t > 0xffffffff:
		return false
	}

	return true
}

// gaps returns the free conventional memory ranges.
func (f *Firmware) gaps() (g [][2]uint64) {
	start := uint64(RAMBase)

	for _, a := range f.sortedAllocations() {
		if a.base > start {
			g = append(g, [2]uint64{start, a.base})
		}

		start = max(start, a.end())
	}

	if end := uint64(RAMBase + RAMSize); end > start {
		g = append(g, [2]uint64{start, end})
	}

	return
}

// allocate reserves pages of simulated memory, top-down for AllocateAnyPages
// and AllocateMaxAddress requests.
func (f *Firmware) allocate(allocateType uint64, memoryType uint64, pages uint64, addr uint64) (a *allocation, status uint64) {
	if !validMemoryType(memoryType) || allocateType >= uefi.MaxAllocateType {
		return nil, errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	if pages == 0 || pages > RAMSize/uefi.PageSize {
		return nil, errorStatus(uefi.EFI_OUT_OF_RESOURCES)
	}

	size := pages * uefi.PageSize
	base := uint64(0)
	found := false

	switch allocateType {
	case uefi.AllocateAddress:
		if addr%uefi.PageSize != 0 {
			return nil, errorStatus(uefi.EFI_INVALID_PARAMETER)
		}

		for _, g := range f.gaps() {
			if addr >= g[0] && addr+size <= g[1] {
				base = addr
				found = true
				break
			}
		}

		if !found {
			return nil, errorStatus(uefi.EFI_NOT_FOUND)
		}
	default:
		g := f.gaps()

		for i := len(g) - 1; i >= 0 && !found; i-- {
			top := g[i][1]

			if allocateType == uefi.AllocateMaxAddress && addr < top {
				top = (addr + 1) &^ (uefi.PageSize - 1)
			}

			if top >= g[i][0]+size {
				base = top - size
				found = true
			}
		}

		if !found {
			return nil, errorStatus(uefi.EFI_OUT_OF_RESOURCES)
		}
	}

	a = &allocation{
		region: region{
			base: base,
			buf:  make([]byte, size),
		},
		pages:      int(pages),
		memoryType: int(memoryType),
	}

	f.allocations = append(f.allocations, a)
	f.mapKey++

	return
}

func (f *Firmware) release(a *allocation) {
	f.allocations = slices.DeleteFunc(f.allocations, func(e *allocation) bool {
		return e == a
	})

	f.mapKey++
}

// EFI_BOOT_SERVICES.AllocatePages(Type, MemoryType, Pages, *Memory)
func (f *Firmware) allocatePagesService(args []uint64) uint64 {
	if args[3] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	a, status := f.allocate(args[0], args[1], args[2], getUint64(args[3]))

	if status != 0 {
		return status
	}

	putUint64(args[3], a.base)

	return 0
}

// EFI_BOOT_SERVICES.FreePages(Memory, Pages)
func (f *Firmware) freePagesService(args []uint64) uint64 {
	addr, pages := args[0], int(args[1])

	if addr%uefi.PageSize != 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	for _, a := range f.allocations {
		if a.base != addr || a.pages != pages {
			continue
		}

		if _, ok := f.pool[addr]; ok {
			break
		}

		f.release(a)

		return 0
	}

	return errorStatus(uefi.EFI_NOT_FOUND)
}

// EFI_BOOT_SERVICES.AllocatePool(PoolType, Size, **Buffer)
func (f *Firmware) allocatePoolService(args []uint64) uint64 {
	if args[2] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	addr, status := f.allocatePool(args[0], args[1])

	if status != 0 {
		return status
	}

	putUint64(args[2], addr)

	return 0
}

func (f *Firmware) allocatePool(memoryType uint64, size uint64) (addr uint64, status uint64) {
	pages := max(1, (size+uefi.PageSize-1)/uefi.PageSize)
	a, status := f.allocate(uefi.AllocateAnyPages, memoryType, pages, 0)

	if status != 0 {
		return
	}

	f.pool[a.base] = a

	return a.base, 0
}

// EFI_BOOT_SERVICES.FreePool(*Buffer)
func (f *Firmware) freePoolService(args []uint64) uint64 {
	a, ok := f.pool[args[0]]

	if !ok {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	delete(f.pool, args[0])
	f.release(a)

	return 0
}

func (f *Firmware) memoryMap() (d []uefi.MemoryDescriptor) {
	d = append(d, uefi.MemoryDescriptor{
		Type:          uefi.EfiBootServicesCode,
		PhysicalStart: CodeBase,
		NumberOfPages: 16,
		Attribute:     uefi.EFI_MEMORY_WB,
	}, uefi.MemoryDescriptor{
		Type:          uefi.EfiRuntimeServicesData,
		PhysicalStart: ROMBase,
		NumberOfPages: ROMSize / uefi.PageSize,
		Attribute:     uefi.EFI_MEMORY_WB | uefi.EFI_MEMORY_RUNTIME,
	})

	start := uint64(RAMBase)

	conventional := func(end uint64) {
		if end > start {
			d = append(d, uefi.MemoryDescriptor{
				Type:          uefi.EfiConventionalMemory,
				PhysicalStart: start,
				NumberOfPages: (end - start) / uefi.PageSize,
				Attribute:     uefi.EFI_MEMORY_WB,
			})
		}
	}

	for _, a := range f.sortedAllocations() {
		conventional(a.base)

		attr := uint64(uefi.EFI_MEMORY_WB)

		if a.memoryType == uefi.EfiRuntimeServicesCode || a.memoryType == uefi.EfiRuntimeServicesData {
			attr |= uefi.EFI_MEMORY_RUNTIME
		}

		d = append(d, uefi.MemoryDescriptor{
			Type:          uint32(a.memoryType),
			PhysicalStart: a.base,
			NumberOfPages: uint64(a.pages),
			Attribute:     attr,
		})

		start = a.end()
	}

	conventional(RAMBase + RAMSize)

	d = append(d, uefi.MemoryDescriptor{
		Type:          uefi.EfiMemoryMappedIO,
		PhysicalStart: MMIOBase,
		NumberOfPages: MMIOSize / uefi.PageSize,
		Attribute:     uefi.EFI_MEMORY_UC | uefi.EFI_MEMORY_RUNTIME,
	})

	return
}

// EFI_BOOT_SERVICES.GetMemoryMap(*MemoryMapSize, *MemoryMap, *MapKey,
// *DescriptorSize, *DescriptorVersion)
func (f *Firmware) getMemoryMap(args []uint64) uint64 {
	if args[0] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	d := f.memoryMap()
	size := getUint64(args[0])
	need := uint64(len(d) * DescriptorSize)

	putUint64(args[0], need)

	if args[3] != 0 {
		putUint64(args[3], DescriptorSize)
	}

	if size < need {
		return errorStatus(uefi.EFI_BUFFER_TOO_SMALL)
	}

	if args[1] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	buf := goBytes(args[1], int(need))
	clear(buf)

	for i := range d {
		if _, err := binary.Encode(buf[i*DescriptorSize:], binary.LittleEndian, &d[i]); err != nil {
			return errorStatus(uefi.EFI_DEVICE_ERROR)
		}
	}

	if args[2] != 0 {
		putUint64(args[2], f.mapKey)
	}

	if args[4] != 0 {
		putUint32(args[4], 1)
	}

	return 0
}

// MapKey returns the current memory map key.
func (f *Firmware) MapKey() uint64 {
	f.Lock()
	defer f.Unlock()

	return f.mapKey
}

// Allocations returns the number of live page and pool allocations,
// excluding the loaded image.
func (f *Firmware) Allocations() (pages int, pool int) {
	f.Lock()
	defer f.Unlock()

	return len(f.allocations) - len(f.pool) - 1, len(f.pool)
}

// EFI_BOOT_SERVICES.Exit(ImageHandle, ExitStatus, ExitDataSize, *ExitData)
func (f *Firmware) exit(args []uint64) uint64 {
	if args[0] != f.imageHandle {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	f.exitCode = int(args[1])

	return 0
}

// ExitCode returns the exit status passed to EFI_BOOT_SERVICES.Exit().
func (f *Firmware) ExitCode() int {
	f.Lock()
	defer f.Unlock()

	return f.exitCode
}

// EFI_BOOT_SERVICES.ExitBootServices(ImageHandle, MapKey)
func (f *Firmware) exitBootServices(args []uint64) uint64 {
	if args[0] != f.imageHandle {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	if status := f.exitStatus; status != 0 {
		f.exitStatus = 0
		return status
	}

	// an event notification changed the memory map
	if f.staleExits > 0 {
		f.staleExits--
		f.mapKey++
	}

	if args[1] != f.mapKey {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	f.exited = true

	return 0
}

// StaleExits simulates memory map changes, as performed by event
// notifications, at the next n EFI_BOOT_SERVICES.ExitBootServices() calls.
func (f *Firmware) StaleExits(n int) {
	f.Lock()
	defer f.Unlock()

	f.staleExits = n
}

// FailExit forces the next EFI_BOOT_SERVICES.ExitBootServices() call to fail
// with the argument status.
func (f *Firmware) FailExit(status uefi.Status) {
	f.Lock()
	defer f.Unlock()

	f.exitStatus = uint64(status)
}

// Exited reports whether boot services have been exited.
func (f *Firmware) Exited() bool {
	f.Lock()
	defer f.Unlock()

	return f.exited
}

// EFI_BOOT_SERVICES.GetNextMonotonicCount(*Count)
func (f *Firmware) getNextMonotonicCount(args []uint64) uint64 {
	if args[0] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	f.monotonic++
	putUint64(args[0], f.monotonic)

	return 0
}

// EFI_BOOT_SERVICES.Stall(Microseconds)
func (f *Firmware) stall(args []uint64) uint64 {
	f.stalled += time.Duration(args[0]) * time.Microsecond
	return 0
}

// Stalled returns the overall EFI_BOOT_SERVICES.Stall() duration.
func (f *Firmware) Stalled() time.Duration {
	f.Lock()
	defer f.Unlock()

	return f.stalled
}

// EFI_BOOT_SERVICES.SetWatchdogTimer(Timeout, WatchdogCode, DataSize,
// *WatchdogData)
func (f *Firmware) setWatchdogTimer(args []uint64) uint64 {
	if args[1] <= 0xffff {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	f.watchdog = int(args[0])

	return 0
}

// Watchdog returns the watchdog timeout in seconds, zero when disabled.
func (f *Firmware) Watchdog() int {
	f.Lock()
	defer f.Unlock()

	return f.watchdog
}
