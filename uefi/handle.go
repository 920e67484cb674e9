// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"fmt"
)

// Handle represents an EFI_HANDLE, an opaque firmware assigned identifier.
//
// Handles are only obtained from firmware (entry point arguments, EFI System
// Table fields and handle enumeration), the zero value is the null handle.
type Handle struct {
	h uint64
}

func newHandle(h uint64) Handle {
	return Handle{h: h}
}

// IsNull reports whether the handle is the null handle.
func (h Handle) IsNull() bool {
	return h.h == 0
}

// Address returns the raw handle value.
func (h Handle) Address() uint64 {
	return h.h
}

func (h Handle) String() string {
	return fmt.Sprintf("%#x", h.h)
}
