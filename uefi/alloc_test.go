// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/efitest"
)

func findDescriptor(t *testing.T, s *uefi.Services, addr uint64) *uefi.MemoryDescriptor {
	t.Helper()

	m, err := s.Boot.GetMemoryMap()

	if err != nil {
		t.Fatal(err)
	}

	for _, d := range m.Descriptors {
		if d.PhysicalStart == addr {
			return d
		}
	}

	return nil
}

func TestAllocatePages(t *testing.T) {
	fw, s := newServices(t)
	a := s.Allocator()

	r, err := a.Allocate(4*uefi.PageSize, uefi.PageSize, uefi.EfiLoaderData)

	if err != nil {
		t.Fatal(err)
	}

	if r.Address%uefi.PageSize != 0 {
		t.Fatalf("unaligned region %s", r)
	}

	if r.Pages != 4 || r.End()-r.Address != 4*uefi.PageSize {
		t.Fatalf("unexpected region %s", r)
	}

	d := findDescriptor(t, s, r.Address)

	if d == nil || d.Type != uefi.EfiLoaderData || d.NumberOfPages != 4 {
		t.Fatalf("region %s not reflected in memory map (%+v)", r, d)
	}

	if err = a.Deallocate(r); err != nil {
		t.Fatal(err)
	}

	if !r.Released() {
		t.Fatal("region not released")
	}

	err = a.Deallocate(r)
	assertKind(t, err, uefi.InvalidParameter)

	if pages, pool := fw.Allocations(); pages != 0 || pool != 0 {
		t.Fatalf("leaked allocations (pages:%d pool:%d)", pages, pool)
	}
}

func TestAllocatePool(t *testing.T) {
	fw, s := newServices(t)
	a := s.Allocator()

	r, err := a.Allocate(100, 8, uefi.EfiBootServicesData)

	if err != nil {
		t.Fatal(err)
	}

	if r.Pages != 0 || r.Size != 100 || r.Address%8 != 0 {
		t.Fatalf("unexpected pool region %s", r)
	}

	if _, pool := fw.Allocations(); pool != 1 {
		t.Fatalf("unexpected pool allocations %d", pool)
	}

	if err = a.Deallocate(r); err != nil {
		t.Fatal(err)
	}

	if _, pool := fw.Allocations(); pool != 0 {
		t.Fatalf("unexpected pool allocations %d", pool)
	}
}

func TestAllocateAligned(t *testing.T) {
	fw, s := newServices(t)
	a := s.Allocator()

	align := 16 * uefi.PageSize

	// force a misaligned top of memory
	if _, err := s.Boot.AllocatePages(uefi.AllocateAnyPages, uefi.EfiLoaderData, uefi.PageSize, 0); err != nil {
		t.Fatal(err)
	}

	r, err := a.Allocate(uefi.PageSize, align, uefi.EfiLoaderData)

	if err != nil {
		t.Fatal(err)
	}

	if r.Address%uint64(align) != 0 {
		t.Fatalf("unaligned region %s", r)
	}

	if r.Address < efitest.RAMBase || r.End() > efitest.RAMBase+efitest.RAMSize {
		t.Fatalf("region %s out of memory", r)
	}

	if err = a.Deallocate(r); err != nil {
		t.Fatal(err)
	}

	if pages, _ := fw.Allocations(); pages != 1 {
		t.Fatalf("unexpected page allocations %d", pages)
	}
}

func TestAllocateInvalid(t *testing.T) {
	_, s := newServices(t)
	a := s.Allocator()

	_, err := a.Allocate(0, uefi.PageSize, uefi.EfiLoaderData)
	assertKind(t, err, uefi.InvalidParameter)

	_, err = a.Allocate(uefi.PageSize, 3, uefi.EfiLoaderData)
	assertKind(t, err, uefi.InvalidParameter)

	// rejected by firmware
	_, err = a.Allocate(uefi.PageSize, uefi.PageSize, uefi.EfiConventionalMemory)
	assertKind(t, err, uefi.InvalidParameter)

	_, err = a.Allocate(2*efitest.RAMSize, uefi.PageSize, uefi.EfiLoaderData)
	assertKind(t, err, uefi.OutOfResources)

	err = a.Deallocate(nil)
	assertKind(t, err, uefi.InvalidParameter)
}

func TestAllocateAt(t *testing.T) {
	_, s := newServices(t)
	a := s.Allocator()

	addr := uint64(efitest.RAMBase + 0x100000)

	r, err := a.AllocateAt(addr, 2*uefi.PageSize, uefi.EfiLoaderData)

	if err != nil {
		t.Fatal(err)
	}

	if r.Address != addr || r.Pages != 2 {
		t.Fatalf("unexpected region %s", r)
	}

	_, err = a.AllocateAt(addr+uefi.PageSize, uefi.PageSize, uefi.EfiLoaderData)
	assertKind(t, err, uefi.NotFound)

	_, err = a.AllocateAt(addr+1, uefi.PageSize, uefi.EfiLoaderData)
	assertKind(t, err, uefi.InvalidParameter)

	// loaded image
	_, err = a.AllocateAt(efitest.RAMBase, uefi.PageSize, uefi.EfiLoaderData)
	assertKind(t, err, uefi.NotFound)

	if err = a.Deallocate(r); err != nil {
		t.Fatal(err)
	}

	if r, err = a.AllocateAt(addr+uefi.PageSize, uefi.PageSize, uefi.EfiLoaderData); err != nil {
		t.Fatal(err)
	}
}

func TestFreeUnknown(t *testing.T) {
	_, s := newServices(t)

	err := s.Boot.FreePages(efitest.RAMBase+0x200000, uefi.PageSize)
	assertKind(t, err, uefi.NotFound)

	err = s.Boot.FreePool(efitest.RAMBase + 0x200000)
	assertKind(t, err, uefi.InvalidParameter)
}

func TestAllocateAfterExit(t *testing.T) {
	fw, s := newServices(t)
	a := s.Allocator()

	frozen, err := a.Allocate(uefi.PageSize, uefi.PageSize, uefi.EfiLoaderData)

	if err != nil {
		t.Fatal(err)
	}

	persistent, err := a.AllocatePersistent(uefi.PageSize, uefi.PageSize, uefi.EfiRuntimeServicesData)

	if err != nil {
		t.Fatal(err)
	}

	if !persistent.Persistent || frozen.Persistent {
		t.Fatal("unexpected persistence flags")
	}

	exitBootServices(t, s)

	_, err = a.Allocate(uefi.PageSize, uefi.PageSize, uefi.EfiLoaderData)
	assertKind(t, err, uefi.Unsupported)

	_, err = a.AllocateAt(efitest.RAMBase+0x100000, uefi.PageSize, uefi.EfiLoaderData)
	assertKind(t, err, uefi.Unsupported)

	_, err = a.Allocate(16, 8, uefi.EfiLoaderData)
	assertKind(t, err, uefi.Unsupported)

	// arguments are not validated after exit
	_, err = a.Allocate(0, 8, uefi.EfiLoaderData)
	assertKind(t, err, uefi.Unsupported)

	_, err = a.Allocate(uefi.PageSize, 3, uefi.EfiLoaderData)
	assertKind(t, err, uefi.Unsupported)

	_, err = a.AllocateAt(0x1001, uefi.PageSize, uefi.EfiLoaderData)
	assertKind(t, err, uefi.Unsupported)

	_, err = a.AllocatePersistent(-1, uefi.PageSize, uefi.EfiRuntimeServicesData)
	assertKind(t, err, uefi.Unsupported)

	err = a.Deallocate(frozen)
	assertKind(t, err, uefi.Unsupported)

	if frozen.Released() {
		t.Fatal("frozen region released")
	}

	if err = a.Deallocate(persistent); err != nil {
		t.Fatal(err)
	}

	if !persistent.Released() {
		t.Fatal("persistent region not released")
	}

	err = a.Deallocate(persistent)
	assertKind(t, err, uefi.InvalidParameter)

	if v := fw.Violations(); len(v) != 0 {
		t.Fatalf("firmware contract violations: %v", v)
	}
}

func TestAllocatorUninitialized(t *testing.T) {
	a := (&uefi.Services{}).Allocator()

	_, err := a.Allocate(uefi.PageSize, uefi.PageSize, uefi.EfiLoaderData)
	assertKind(t, err, uefi.NotStarted)

	_, err = a.AllocateAt(efitest.RAMBase, uefi.PageSize, uefi.EfiLoaderData)
	assertKind(t, err, uefi.NotStarted)

	err = a.Deallocate(&uefi.Region{})
	assertKind(t, err, uefi.NotStarted)
}
