// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
)

// regions allocated with the alloc command, indexed by address
var (
	mu      sync.Mutex
	regions = make(map[uint64]*uefi.Region)
)

func init() {
	shell.Add(shell.Cmd{
		Name: "memmap",
		Help: "EFI_BOOT_SERVICES.GetMemoryMap()",
		Fn:   memmapCmd,
	})

	shell.Add(shell.Cmd{
		Name: "e820",
		Help: "EFI Memory Map as E820 map",
		Fn:   e820Cmd,
	})

	shell.Add(shell.Cmd{
		Name:    "alloc",
		Args:    2,
		Pattern: regexp.MustCompile(`^alloc (\d+)(?: ([[:xdigit:]]+))?$`),
		Syntax:  "<size> (hex address)?",
		Help:    "allocate EfiLoaderData pages",
		Fn:      allocCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "free",
		Args:    1,
		Pattern: regexp.MustCompile(`^free( [[:xdigit:]]+)?$`),
		Syntax:  "(hex address)?",
		Help:    "free allocated pages (list allocations)",
		Fn:      freeCmd,
	})
}

func memmapCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	b, err := bootServices()

	if err != nil {
		return
	}

	memoryMap, err := b.GetMemoryMap()

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "Type Start            End              Pages            Attributes\n")

	for _, desc := range memoryMap.Descriptors {
		fmt.Fprintf(&buf, "%02d   %016x %016x %016x %016x\n",
			desc.Type, desc.PhysicalStart, desc.PhysicalEnd()-1, desc.NumberOfPages, desc.Attribute)
	}

	fmt.Fprintf(&buf, "Map Key: %d", memoryMap.MapKey)

	return buf.String(), nil
}

func e820Cmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	b, err := bootServices()

	if err != nil {
		return
	}

	memoryMap, err := b.GetMemoryMap()

	if err != nil {
		return
	}

	e820, err := memoryMap.E820()

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "Start            End              Type\n")

	for _, e := range e820 {
		fmt.Fprintf(&buf, "%016x %016x %v\n", e.Addr, e.Addr+e.Size-1, e.MemType)
	}

	return buf.String(), nil
}

func allocCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var r *uefi.Region

	s, err := services()

	if err != nil {
		return
	}

	size, err := strconv.ParseUint(arg[0], 10, 32)

	if err != nil {
		return "", fmt.Errorf("invalid size, %v", err)
	}

	if len(arg[1]) == 0 {
		r, err = s.Allocator().Allocate(int(size), uefi.PageSize, uefi.EfiLoaderData)
	} else {
		var addr uint64

		if addr, err = strconv.ParseUint(arg[1], 16, 64); err != nil {
			return "", fmt.Errorf("invalid address, %v", err)
		}

		log.Printf("allocating memory range %#08x - %#08x", addr, addr+size)
		r, err = s.Allocator().AllocateAt(addr, int(size), uefi.EfiLoaderData)
	}

	if err != nil {
		return
	}

	mu.Lock()
	regions[r.Address] = r
	mu.Unlock()

	return r.String(), nil
}

func freeCmd(_ *shell.Interface, arg []string) (res string, err error) {
	mu.Lock()
	defer mu.Unlock()

	if len(arg[0]) == 0 {
		var list []string

		for _, r := range regions {
			list = append(list, r.String())
		}

		sort.Strings(list)

		var buf bytes.Buffer

		for _, r := range list {
			fmt.Fprintln(&buf, r)
		}

		return buf.String(), nil
	}

	s, err := services()

	if err != nil {
		return
	}

	addr, err := strconv.ParseUint(arg[0][1:], 16, 64)

	if err != nil {
		return "", fmt.Errorf("invalid address, %v", err)
	}

	r, ok := regions[addr]

	if !ok {
		return "", fmt.Errorf("no allocation at %#x", addr)
	}

	if err = s.Allocator().Deallocate(r); err != nil {
		return
	}

	delete(regions, addr)

	return
}
