// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/go-logr/logr"
)

// poolAlign is the alignment guaranteed by EFI_BOOT_SERVICES.AllocatePool().
const poolAlign = 8

// Region represents a memory region obtained through an Allocator.
type Region struct {
	// Address is the aligned region start address.
	Address uint64
	// Size is the requested region size in bytes.
	Size int
	// Pages is the number of pages backing the region, zero for pool
	// allocations.
	Pages int
	// Type is the region EFI_MEMORY_TYPE.
	Type int
	// Persistent reports whether the region was allocated as runtime
	// persistent.
	Persistent bool

	mu sync.Mutex

	// firmware allocation start
	base     uint64
	pool     bool
	released bool
}

// End returns the region end address.
func (r *Region) End() uint64 {
	return r.Address + uint64(r.Size)
}

// Released reports whether the region has been deallocated.
func (r *Region) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.released
}

func (r *Region) String() string {
	return fmt.Sprintf("%#08x-%#08x (type:%d pages:%d)", r.Address, r.End(), r.Type, r.Pages)
}

// allocStrategy represents the allocation backend active in a lifecycle
// phase, arguments are validated by the backend so that requests made after
// boot services are exited always fail with Unsupported.
type allocStrategy interface {
	allocate(size int, align int, memoryType int) (*Region, error)
	allocateAt(addr uint64, size int, memoryType int) (*Region, error)
	free(r *Region) error
}

// Allocator bridges memory allocation requests to the firmware pool and page
// allocators during the boot phase. Once boot services are exited new
// allocations fail with Unsupported and existing regions are frozen, except
// those allocated as runtime persistent which can still be released.
//
// The Allocator never caches the firmware memory map, which remains the
// single source of truth for memory ownership.
type Allocator struct {
	boot *BootServices
}

// Allocator returns the allocator bridge for the services instance.
func (s *Services) Allocator() *Allocator {
	return &Allocator{
		boot: s.Boot,
	}
}

func (a *Allocator) strategy(op string) (allocStrategy, error) {
	if a.boot == nil {
		return nil, newError(op+", EFI Boot Services unavailable", NotStarted)
	}

	if a.boot.lc.current() == Boot {
		return (*bootAllocator)(a.boot), nil
	}

	return &runtimeAllocator{log: a.boot.log}, nil
}

func checkAllocation(size int, align int) error {
	if size <= 0 {
		return newError(fmt.Sprintf("Allocate, invalid size %d", size), InvalidParameter)
	}

	if align <= 0 || bits.OnesCount(uint(align)) != 1 {
		return newError(fmt.Sprintf("Allocate, invalid alignment %d", align), InvalidParameter)
	}

	return nil
}

// Allocate allocates size bytes, aligned to align (a power of two), of the
// argument EFI_MEMORY_TYPE. Small allocations with pool alignment are served
// from the pool allocator, all others by the page allocator.
func (a *Allocator) Allocate(size int, align int, memoryType int) (r *Region, err error) {
	s, err := a.strategy("Allocate")

	if err != nil {
		return
	}

	return s.allocate(size, align, memoryType)
}

// AllocateAt allocates size bytes of the argument EFI_MEMORY_TYPE at a fixed
// page aligned address, the firmware rejects addresses which are not free.
func (a *Allocator) AllocateAt(addr uint64, size int, memoryType int) (r *Region, err error) {
	s, err := a.strategy("Allocate")

	if err != nil {
		return
	}

	return s.allocateAt(addr, size, memoryType)
}

// AllocatePersistent is like Allocate but marks the region as runtime
// persistent, allowing its release after boot services are exited. The
// memory type should be one that firmware preserves at runtime (e.g.
// EfiRuntimeServicesData).
func (a *Allocator) AllocatePersistent(size int, align int, memoryType int) (r *Region, err error) {
	if r, err = a.Allocate(size, align, memoryType); err != nil {
		return
	}

	r.Persistent = true

	return
}

// Deallocate releases a region, deallocating an already released region
// fails with InvalidParameter.
func (a *Allocator) Deallocate(r *Region) (err error) {
	s, err := a.strategy("Deallocate")

	if err != nil {
		return
	}

	if r == nil {
		return newError("Deallocate, invalid region", InvalidParameter)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.released {
		return newError(fmt.Sprintf("Deallocate, region %#x already released", r.Address), InvalidParameter)
	}

	if err = s.free(r); err != nil {
		return
	}

	r.released = true

	return
}

// bootAllocator forwards requests to boot services.
type bootAllocator BootServices

func (b *bootAllocator) allocate(size int, align int, memoryType int) (r *Region, err error) {
	s := (*BootServices)(b)

	if err = checkAllocation(size, align); err != nil {
		return
	}

	r = &Region{
		Size: size,
		Type: memoryType,
	}

	if align <= poolAlign && size < PageSize {
		if r.base, err = s.AllocatePool(memoryType, size); err != nil {
			return nil, err
		}

		r.Address = r.base
		r.pool = true

		return
	}

	n := int(pages(size))

	// over-allocate to satisfy alignments larger than a page
	if align > PageSize {
		n += int(pages(align - PageSize))
	}

	if r.base, err = s.AllocatePages(AllocateAnyPages, memoryType, n*PageSize, 0); err != nil {
		return nil, err
	}

	r.Pages = n
	r.Address = (r.base + uint64(align) - 1) &^ (uint64(align) - 1)

	return
}

func (b *bootAllocator) allocateAt(addr uint64, size int, memoryType int) (r *Region, err error) {
	s := (*BootServices)(b)

	if err = checkAllocation(size, PageSize); err != nil {
		return
	}

	if addr%PageSize != 0 {
		return nil, newError(fmt.Sprintf("Allocate, unaligned address %#x", addr), InvalidParameter)
	}

	r = &Region{
		Size:  size,
		Type:  memoryType,
		Pages: int(pages(size)),
	}

	if r.base, err = s.AllocatePages(AllocateAddress, memoryType, size, addr); err != nil {
		return nil, err
	}

	r.Address = r.base

	return
}

func (b *bootAllocator) free(r *Region) error {
	s := (*BootServices)(b)

	if r.pool {
		return s.FreePool(r.base)
	}

	return s.FreePages(r.base, r.Pages*PageSize)
}

// runtimeAllocator serves requests after boot services are exited.
type runtimeAllocator struct {
	log logr.Logger
}

func (*runtimeAllocator) allocate(_ int, _ int, _ int) (*Region, error) {
	return nil, fmt.Errorf("Allocate, %w", ErrBootServicesExited)
}

func (*runtimeAllocator) allocateAt(_ uint64, _ int, _ int) (*Region, error) {
	return nil, fmt.Errorf("Allocate, %w", ErrBootServicesExited)
}

func (a *runtimeAllocator) free(r *Region) error {
	if !r.Persistent {
		return fmt.Errorf("Deallocate, region %#x is frozen, %w", r.Address, ErrBootServicesExited)
	}

	a.log.V(1).Info("releasing persistent region", "region", r.String())

	return nil
}
