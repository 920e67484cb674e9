// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package efitest implements a simulated Unified Extensible Firmware Interface
// (UEFI) firmware, serving the [uefi.Firmware] interface in process for host
// testing.
//
// The simulated firmware exposes a validated EFI System Table, Boot Services
// and Runtime Services tables, console, graphics and loaded image protocols,
// a page/pool allocator over a simulated memory map, a variable store and a
// real-time clock.
//
// Firmware structures live in a synthetic address space which is accessed
// through ReadMemory, pointer arguments passed to services are expected to
// reference Go memory, as the native calling convention does.
package efitest

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"
	"unsafe"

	"github.com/usbarmory/go-uefi/uefi"
)

// Simulated address space
const (
	// function pointer values
	CodeBase = 0x6000_0000

	// firmware structures (tables, protocol interfaces, strings)
	ROMBase = 0x7000_0000
	ROMSize = 0x0010_0000

	// conventional memory served by the page allocator
	RAMBase = 0x8000_0000
	RAMSize = 0x0400_0000

	// memory mapped I/O window reported in the memory map
	MMIOBase = 0xfec0_0000
	MMIOSize = uefi.PageSize

	// loaded image size, allocated at RAMBase
	ImageSize = 16 * uefi.PageSize
)

// DescriptorSize is the memory map descriptor stride, larger than
// MemoryDescriptor as reported by common firmware implementations.
const DescriptorSize = 48

// maximum number of arguments passed to a service
const maxArgs = 16

// maximum string length read from Go memory
const maxString = 4096

// Service represents a simulated firmware function, receiving the call
// arguments and returning an EFI_STATUS.
type Service func(args []uint64) uint64

type region struct {
	base uint64
	buf  []byte
}

func (r *region) contains(addr uint64, n int) bool {
	return addr >= r.base && addr+uint64(n) <= r.base+uint64(len(r.buf))
}

// Firmware represents a simulated UEFI firmware instance.
type Firmware struct {
	sync.Mutex

	// memory
	regions []*region
	romNext uint64

	// function pointer values to services
	services map[uint64]Service
	codeNext uint64

	// tables
	systemTable  uint64
	bootTable    uint64
	runtimeTable uint64
	revision     uint32
	config       []configTable

	// boot state
	imageHandle uint64
	handles     []uint64
	protocols   map[uint64]map[uefi.GUID]uint64
	allocations []*allocation
	pool        map[uint64]*allocation
	mapKey      uint64
	exited      bool
	staleExits  int
	exitStatus  uint64
	exitCode    int
	monotonic   uint64
	watchdog    int
	stalled     time.Duration
	violations  []string

	// console
	console *console

	// graphics
	blts int

	// runtime state
	variables []*variable
	clock     time.Time
	high      uint32
	resets    []int
}

// New returns a simulated firmware, with boot services active.
func New() (f *Firmware) {
	f = &Firmware{
		romNext:   ROMBase,
		codeNext:  CodeBase,
		services:  make(map[uint64]Service),
		protocols: make(map[uint64]map[uefi.GUID]uint64),
		pool:      make(map[uint64]*allocation),
		mapKey:    1,
		revision:  uefi.EFI_2_70_SYSTEM_TABLE_REVISION,
		clock:     time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}

	f.Lock()
	defer f.Unlock()

	f.imageHandle = f.newHandle()

	// loaded image
	f.allocations = append(f.allocations, &allocation{
		region: region{
			base: RAMBase,
			buf:  make([]byte, ImageSize),
		},
		pages:      ImageSize / uefi.PageSize,
		memoryType: uefi.EfiLoaderCode,
	})

	f.buildTables()
	f.installConsole()
	f.installLoadedImage()
	f.installGraphics()
	f.updateSystemTable()

	return
}

// ImageHandle returns the entry point image handle.
func (f *Firmware) ImageHandle() uint64 {
	return f.imageHandle
}

// SystemTable returns the entry point EFI System Table pointer.
func (f *Firmware) SystemTable() uint64 {
	return f.systemTable
}

// CallService invokes the simulated service whose pointer is stored at fn.
func (f *Firmware) CallService(fn uint64, args []uint64) (status uint64) {
	f.Lock()
	defer f.Unlock()

	var ptr [8]byte

	if err := f.read(fn, ptr[:]); err != nil {
		f.violation("invalid function pointer slot %#x", fn)
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	service, ok := f.services[binary.LittleEndian.Uint64(ptr[:])]

	if !ok {
		f.violation("unimplemented service at slot %#x", fn)
		return errorStatus(uefi.EFI_UNSUPPORTED)
	}

	a := make([]uint64, max(len(args), maxArgs))
	copy(a, args)

	return service(a)
}

// ReadMemory copies simulated firmware memory at addr into buf.
func (f *Firmware) ReadMemory(addr uint64, buf []byte) error {
	f.Lock()
	defer f.Unlock()

	return f.read(addr, buf)
}

// WriteMemory copies buf to simulated firmware memory at addr.
func (f *Firmware) WriteMemory(addr uint64, buf []byte) error {
	f.Lock()
	defer f.Unlock()

	r := f.region(addr, len(buf))

	if r == nil {
		return fmt.Errorf("invalid address %#x", addr)
	}

	copy(r.buf[addr-r.base:], buf)

	return nil
}

// Violations returns the services invoked against the firmware contract,
// such as boot services after ExitBootServices().
func (f *Firmware) Violations() []string {
	f.Lock()
	defer f.Unlock()

	return append([]string(nil), f.violations...)
}

func (f *Firmware) violation(format string, a ...any) {
	f.violations = append(f.violations, fmt.Sprintf(format, a...))
}

func (f *Firmware) region(addr uint64, n int) *region {
	for _, r := range f.regions {
		if r.contains(addr, n) {
			return r
		}
	}

	for _, a := range f.allocations {
		if a.contains(addr, n) {
			return &a.region
		}
	}

	return nil
}

func (f *Firmware) read(addr uint64, buf []byte) error {
	r := f.region(addr, len(buf))

	if r == nil {
		return fmt.Errorf("invalid address %#x", addr)
	}

	copy(buf, r.buf[addr-r.base:])

	return nil
}

// place reserves n bytes of simulated firmware memory.
func (f *Firmware) place(n int) (addr uint64, buf []byte) {
	addr = f.romNext
	buf = make([]byte, n)

	f.regions = append(f.regions, &region{base: addr, buf: buf})
	f.romNext += (uint64(n) + 15) &^ 15

	if f.romNext > ROMBase+ROMSize {
		panic("efitest: firmware memory exhausted")
	}

	return
}

// placeData encodes data in simulated firmware memory.
func (f *Firmware) placeData(data any) (addr uint64, buf []byte) {
	b, err := binary.Append(nil, binary.LittleEndian, data)

	if err != nil {
		panic(err)
	}

	addr, buf = f.place(len(b))
	copy(buf, b)

	return
}

// function returns a new function pointer value for the argument service.
func (f *Firmware) function(s Service) (ptr uint64) {
	ptr = f.codeNext
	f.codeNext += 0x10
	f.services[ptr] = s
	return
}

// boot wraps a boot service to reject its use after ExitBootServices().
func (f *Firmware) boot(name string, s Service) Service {
	return func(args []uint64) uint64 {
		if f.exited {
			f.violation("%s after ExitBootServices", name)
			return errorStatus(uefi.EFI_UNSUPPORTED)
		}

		return s(args)
	}
}

func (f *Firmware) sortedAllocations() []*allocation {
	a := append([]*allocation(nil), f.allocations...)

	sort.Slice(a, func(i, j int) bool {
		return a[i].base < a[j].base
	})

	return a
}

func errorStatus(code uint64) uint64 {
	return uint64(uefi.ErrorStatus(code))
}

// goBytes returns a view of n bytes of Go memory at addr, as passed by
// reference to a service.
func goBytes(addr uint64, n int) []byte {
	if addr == 0 || n <= 0 {
		return nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n)
}

// Buffer returns a view of n bytes of caller memory referenced by a service
// pointer argument, for use by services installed with InstallProtocol.
func Buffer(addr uint64, n int) []byte {
	return goBytes(addr, n)
}

func putUint64(addr uint64, v uint64) {
	binary.LittleEndian.PutUint64(goBytes(addr, 8), v)
}

func putUint32(addr uint64, v uint32) {
	binary.LittleEndian.PutUint32(goBytes(addr, 4), v)
}

func getUint64(addr uint64) uint64 {
	return binary.LittleEndian.Uint64(goBytes(addr, 8))
}

func getGUID(addr uint64) (g uefi.GUID) {
	copy(g[:], goBytes(addr, len(g)))
	return
}

// getString reads a null terminated UCS-2 string from Go memory.
func getString(addr uint64) (buf []byte) {
	for i := uint64(0); i < maxString; i += 2 {
		c := goBytes(addr+i, 2)

		if c[0] == 0 && c[1] == 0 {
			break
		}

		buf = append(buf, c...)
	}

	return
}
