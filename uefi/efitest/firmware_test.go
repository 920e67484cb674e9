// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/usbarmory/go-uefi/uefi"
)

func TestTables(t *testing.T) {
	f := New()

	st, err := uefi.LoadSystemTable(f, f.SystemTable(), uefi.EFI_2_70_SYSTEM_TABLE_REVISION)

	if err != nil {
		t.Fatal(err)
	}

	if st.BootServices != f.bootTable || st.RuntimeServices != f.runtimeTable {
		t.Fatalf("unexpected services tables %#x %#x", st.BootServices, st.RuntimeServices)
	}

	if st.ConIn != f.console.in || st.ConOut != f.console.out || st.StdErr != f.console.out {
		t.Fatal("unexpected console protocols")
	}
}

func TestMemory(t *testing.T) {
	f := New()

	buf := make([]byte, 8)

	if err := f.ReadMemory(ROMBase+ROMSize, buf); err == nil {
		t.Fatal("expected error")
	}

	addr, _ := f.place(16)

	if err := f.WriteMemory(addr, []byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatal(err)
	}

	if err := f.ReadMemory(addr, buf); err != nil {
		t.Fatal(err)
	}

	if binary.LittleEndian.Uint64(buf) != 0x0807060504030201 {
		t.Fatalf("unexpected memory %x", buf)
	}

	// region boundaries are enforced
	if err := f.ReadMemory(addr+8, make([]byte, 16)); err == nil {
		t.Fatal("expected error")
	}
}

func TestCallService(t *testing.T) {
	f := New()

	status := uefi.Status(f.CallService(ROMBase+ROMSize, nil))

	if !status.IsError() || len(f.Violations()) != 1 {
		t.Fatalf("unexpected status %v", status)
	}

	var count uint64

	status = uefi.Status(f.CallService(f.bootTable+getNextMonotonicCount, []uint64{uint64(uintptrOf(&count))}))

	if status != uefi.EFI_SUCCESS || count != 1 {
		t.Fatalf("unexpected result %v %d", status, count)
	}
}

func TestBootServicesAfterExit(t *testing.T) {
	f := New()

	var key uint64
	var size uint64

	f.CallService(f.bootTable+getMemoryMap, []uint64{uint64(uintptrOf(&size)), 0, 0, 0, 0})

	if size == 0 {
		t.Fatal("empty memory map")
	}

	key = f.MapKey()

	if status := f.CallService(f.bootTable+exitBootServices, []uint64{f.imageHandle, key}); status != 0 {
		t.Fatalf("unexpected status %#x", status)
	}

	if !f.Exited() {
		t.Fatal("boot services not exited")
	}

	if _, err := uefi.LoadSystemTable(f, f.TableAddress(RuntimeServicesTable), 0); err == nil {
		t.Fatal("expected error")
	}

	status := uefi.Status(f.CallService(f.bootTable+stall, []uint64{1}))

	if status.Code() != uefi.EFI_UNSUPPORTED || len(f.Violations()) != 1 {
		t.Fatalf("unexpected status %v (%v)", status, f.Violations())
	}

	// runtime services remain available
	var high uint64

	if status = uefi.Status(f.CallService(f.runtimeTable+getNextHighMonotonicCount, []uint64{uint64(uintptrOf(&high))})); status != 0 {
		t.Fatalf("unexpected status %v", status)
	}
}

func TestAllocator(t *testing.T) {
	f := New()

	a, status := f.allocate(uefi.AllocateAnyPages, uefi.EfiLoaderData, 2, 0)

	if status != 0 {
		t.Fatalf("unexpected status %#x", status)
	}

	if a.end() != RAMBase+RAMSize {
		t.Fatalf("unexpected allocation %#x", a.base)
	}

	b, status := f.allocate(uefi.AllocateMaxAddress, uefi.EfiLoaderData, 1, RAMBase+0x10fff)

	if status != 0 {
		t.Fatalf("unexpected status %#x", status)
	}

	if b.base != RAMBase+0x10000 {
		t.Fatalf("unexpected allocation %#x", b.base)
	}

	if _, status = f.allocate(uefi.AllocateAddress, uefi.EfiLoaderData, 1, RAMBase); status != errorStatus(uefi.EFI_NOT_FOUND) {
		t.Fatalf("unexpected status %#x", status)
	}

	if _, status = f.allocate(uefi.AllocateAnyPages, uefi.EfiConventionalMemory, 1, 0); status != errorStatus(uefi.EFI_INVALID_PARAMETER) {
		t.Fatalf("unexpected status %#x", status)
	}

	key := f.mapKey
	f.release(a)

	if f.mapKey == key {
		t.Fatal("map key unchanged")
	}
}

// pinned keeps service arguments on the heap
var pinned []*uint64

func uintptrOf(p *uint64) uintptr {
	pinned = append(pinned, p)
	return uintptr(unsafe.Pointer(p))
}
