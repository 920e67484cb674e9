// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package uefi implements a driver for the Unified Extensible Firmware
// Interface (UEFI) following the specifications at:
//
//	https://uefi.org/specs/UEFI/2.10/
//
// The package tracks the boot/runtime lifecycle of the firmware services: all
// boot services, protocol references and page/pool allocations are tied to
// the boot phase and are rejected once EFI_BOOT_SERVICES.ExitBootServices()
// succeeds, while runtime services remain available.
//
// Firmware access happens exclusively through the [Firmware] interface, the
// native implementation (`GOOS=tamago` as supported by the TamaGo framework
// for bare metal Go, see https://github.com/usbarmory/tamago) is provided by
// the x64 package while the efitest package provides a simulated firmware.
package uefi

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
	"unsafe"

	"github.com/go-logr/logr"
)

// DefaultExitRetries is the default number of ExitBootServices() attempts
// performed by [Services.ExitBootServices] on a stale memory map key.
const DefaultExitRetries = 3

const maxVendorSize = 256

// Firmware represents the platform calling convention towards EFI services
// and the memory view of firmware owned structures.
type Firmware interface {
	// CallService invokes the function pointer stored at address fn,
	// passing args with the platform EFI calling convention, and returns
	// the EFI_STATUS.
	CallService(fn uint64, args []uint64) (status uint64)
	// ReadMemory copies len(buf) bytes of firmware memory at addr into
	// buf.
	ReadMemory(addr uint64, buf []byte) error
}

// never set, forces ptrval arguments to the heap
var (
	alwaysFalse bool
	escapeSink  any
)

// This function helps preparing CallService arguments, allowing a single call
// for all EFI services.
//
// Obtaining a pointer in this fashion is typically unsafe and tamago/dma
// package would be best to handle this. However, as arguments are prepared
// right before invoking Go assembly, it is considered safe as it is identical
// as having *uint64 as CallService prototype. Callers must keep input-only
// pointees alive until the service returns.
//
// Pointees escape to the heap as a goroutine stack might be moved while a
// Firmware implementation written in Go serves the call.
func ptrval(ptr any) uint64 {
	var p unsafe.Pointer

	if alwaysFalse {
		escapeSink = ptr
	}

	switch v := ptr.(type) {
	case *uint64:
		p = unsafe.Pointer(v)
	case *uint32:
		p = unsafe.Pointer(v)
	case *uint16:
		p = unsafe.Pointer(v)
	case *byte:
		p = unsafe.Pointer(v)
	case *GUID:
		p = unsafe.Pointer(v)
	case *InputKey:
		p = unsafe.Pointer(v)
	case *KeyData:
		p = unsafe.Pointer(v)
	case *BootServiceCapability:
		p = unsafe.Pointer(v)
	default:
		panic("internal error, invalid ptrval")
	}

	return uint64(uintptr(p))
}

// BootServices represents an EFI Boot Services instance, valid only during
// the boot phase.
type BootServices struct {
	// Header is the validated EFI Boot Services Table header.
	Header TableHeader

	base        uint64
	imageHandle Handle
	rt          *RuntimeServices
	lc          *lifecycle
	log         logr.Logger
}

// RuntimeServices represents an EFI Runtime Services instance.
type RuntimeServices struct {
	// Header is the validated EFI Runtime Services Table header.
	Header TableHeader

	base uint64
	lc   *lifecycle
}

// Services represents the UEFI services instance.
type Services struct {
	// EFI System Table instance
	SystemTable *SystemTable

	// UEFI services
	Console *Console
	Boot    *BootServices
	Runtime *RuntimeServices

	// MinRevision is the minimum EFI table revision accepted by Init,
	// EFI_2_00_SYSTEM_TABLE_REVISION is used when zero.
	MinRevision uint32

	// ExitRetries is the number of ExitBootServices() attempts on a stale
	// memory map key, DefaultExitRetries is used when zero.
	ExitRetries int

	// Log receives lifecycle events, the zero value discards them.
	Log logr.Logger

	fw          Firmware
	lc          *lifecycle
	imageHandle Handle
	systemTable uint64
}

// Init initializes an UEFI services instance using the argument firmware and
// entry point pointers. The EFI System Table, Boot Services and Runtime
// Services tables are validated before any of their services is used, any
// failure is fatal and reported as CorruptData.
func (s *Services) Init(fw Firmware, imageHandle uint64, systemTable uint64) (err error) {
	if fw == nil {
		return errors.New("invalid firmware")
	}

	if s.MinRevision == 0 {
		s.MinRevision = EFI_2_00_SYSTEM_TABLE_REVISION
	}

	if s.ExitRetries == 0 {
		s.ExitRetries = DefaultExitRetries
	}

	s.fw = fw
	s.imageHandle = newHandle(imageHandle)
	s.systemTable = systemTable

	if s.SystemTable, err = LoadSystemTable(fw, systemTable, s.MinRevision); err != nil {
		return
	}

	boot, _, err := loadTable(fw, s.SystemTable.BootServices, bootServicesSignature, bootServicesTableSize, s.MinRevision)

	if err != nil {
		return
	}

	runtime, _, err := loadTable(fw, s.SystemTable.RuntimeServices, runtimeServicesSignature, runtimeServicesTableSize, s.MinRevision)

	if err != nil {
		return
	}

	s.lc = &lifecycle{
		fw:    fw,
		phase: Boot,
	}

	s.Console = &Console{
		ForceLine:   true,
		ReplaceTabs: 8,
		in:          s.SystemTable.ConIn,
		out:         s.SystemTable.ConOut,
		lc:          s.lc,
	}

	s.Runtime = &RuntimeServices{
		Header: runtime,
		base:   s.SystemTable.RuntimeServices,
		lc:     s.lc,
	}

	s.Boot = &BootServices{
		Header:      boot,
		base:        s.SystemTable.BootServices,
		imageHandle: s.imageHandle,
		rt:          s.Runtime,
		lc:          s.lc,
		log:         s.Log,
	}

	s.Log.V(1).Info("EFI services initialized",
		"revision", RevisionString(s.SystemTable.Header.Revision),
		"system_table", systemTable)

	return
}

// Phase returns the current lifecycle phase, Boot before Init.
func (s *Services) Phase() Phase {
	if s.lc == nil {
		return Boot
	}

	return s.lc.current()
}

// ImageHandle returns the UEFI image handle.
func (s *Services) ImageHandle() Handle {
	return s.imageHandle
}

// Address returns the EFI System Table pointer.
func (s *Services) Address() uint64 {
	return s.systemTable
}

// Firmware returns the firmware interface used by the services instance.
func (s *Services) Firmware() Firmware {
	return s.fw
}

// FirmwareVendor returns the EFI System Table firmware vendor string.
func (s *Services) FirmwareVendor() (vendor string, err error) {
	var r []uint16

	if s.SystemTable == nil {
		return "", errors.New("EFI System Table is invalid")
	}

	addr := s.SystemTable.FirmwareVendor
	b := make([]byte, 2)

	for i := 0; i < maxVendorSize; i += 2 {
		if err = s.fw.ReadMemory(addr+uint64(i), b); err != nil {
			return
		}

		c := binary.LittleEndian.Uint16(b)

		if c == 0 {
			break
		}

		r = append(r, c)
	}

	return string(utf16.Decode(r)), nil
}
