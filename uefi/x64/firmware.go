// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	"errors"

	"github.com/usbarmory/tamago/dma"
)

// Microsoft x64 calling convention register arguments
const registerArgs = 4

// maximum number of arguments copied to the stack by callService
const maxArgs = 16

// Firmware is the native UEFI firmware interface.
var Firmware = &firmware{}

type firmware struct{}

// defined in efi_amd64.s
func callService(fn uint64, n int, args []uint64) (status uint64)

// CallService invokes the EFI service whose function pointer is stored at
// address fn with the Microsoft x64 calling convention.
func (*firmware) CallService(fn uint64, args []uint64) (status uint64) {
	if len(args) > maxArgs {
		panic("internal error, too many EFI service arguments")
	}

	a := make([]uint64, max(len(args), registerArgs))
	copy(a, args)

	return callService(fn, len(a), a)
}

// ReadMemory copies firmware memory, identity mapped under UEFI, at addr into
// buf.
func (*firmware) ReadMemory(addr uint64, buf []byte) (err error) {
	if addr == 0 {
		return errors.New("invalid address")
	}

	if len(buf) == 0 {
		return
	}

	r, err := dma.NewRegion(uint(addr), len(buf), true)

	if err != nil {
		return
	}

	ptr, b := r.Reserve(len(buf), 0)
	defer r.Release(ptr)

	copy(buf, b)

	return
}
