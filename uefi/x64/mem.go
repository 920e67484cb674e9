// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	"runtime"
	_ "unsafe"

	"github.com/usbarmory/go-uefi/uefi"
)

//go:linkname _unused runtime.ramStart
var _unused uint64 = 0x00100000 // overridden in x64.s

//go:linkname RamSize runtime.ramSize
var RamSize uint64 = 0x2c000000 // 704MB

// Heap represents the runtime heap allocation within UEFI memory.
var Heap *uefi.Region

func allocateHeap() {
	image, err := UEFI.Boot.LoadedImage(UEFI.ImageHandle())

	if err != nil {
		print("WARNING: could not locate loaded image, ", err.Error(), "\n")
		return
	}

	ramStart, ramEnd := runtime.MemRegion()

	// the runtime heap follows the image allocation
	heapStart := (image.ImageBase + image.ImageSize + uefi.PageSize - 1) &^ (uefi.PageSize - 1)

	if heapStart < ramStart || heapStart >= ramEnd {
		print("WARNING: could not find heap offset\n")
		return
	}

	if Heap, err = UEFI.Allocator().AllocateAt(heapStart, int(ramEnd-heapStart), uefi.EfiLoaderData); err != nil {
		print("WARNING: could not allocate heap, ", err.Error(), "\n")
	}
}
