// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"encoding/binary"

	"github.com/usbarmory/go-uefi/uefi"
)

// EFI_LOCATE_SEARCH_TYPE
const (
	allHandles = 0
	byProtocol = 2
)

func (f *Firmware) newHandle() (h uint64) {
	h, _ = f.place(8)

	f.handles = append(f.handles, h)
	f.protocols[h] = make(map[uefi.GUID]uint64)

	return
}

// NewHandle returns a new handle, with no protocol installed.
func (f *Firmware) NewHandle() uint64 {
	f.Lock()
	defer f.Unlock()

	return f.newHandle()
}

func (f *Firmware) installProtocol(handle uint64, guid uefi.GUID, data any, fns map[uint64]Service) (iface uint64) {
	var buf []byte

	if data != nil {
		iface, buf = f.placeData(data)
	} else {
		var size uint64

		for offset := range fns {
			size = max(size, offset+8)
		}

		iface, buf = f.place(int(size))
	}

	for offset, s := range fns {
		binary.LittleEndian.PutUint64(buf[offset:], f.function(f.boot(guid.Name(), s)))
	}

	f.protocols[handle][guid] = iface

	return
}

// InstallProtocol installs a protocol interface on the argument handle. The
// interface structure is encoded from data, when not nil, and its function
// members are set to the services of fns, indexed by their offset.
//
// Protocol services are boot services, they are rejected after
// ExitBootServices().
func (f *Firmware) InstallProtocol(handle uint64, guid uefi.GUID, data any, fns map[uint64]Service) (iface uint64) {
	f.Lock()
	defer f.Unlock()

	if _, ok := f.protocols[handle]; !ok {
		panic("efitest: invalid handle")
	}

	return f.installProtocol(handle, guid, data, fns)
}

// UninstallProtocol removes a protocol interface from the argument handle.
func (f *Firmware) UninstallProtocol(handle uint64, guid uefi.GUID) {
	f.Lock()
	defer f.Unlock()

	delete(f.protocols[handle], guid)
}

// EFI_BOOT_SERVICES.HandleProtocol(Handle, *Protocol, **Interface)
func (f *Firmware) handleProtocol(args []uint64) uint64 {
	p, ok := f.protocols[args[0]]

	if !ok || args[1] == 0 || args[2] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	iface, ok := p[getGUID(args[1])]

	if !ok {
		return errorStatus(uefi.EFI_UNSUPPORTED)
	}

	putUint64(args[2], iface)

	return 0
}

// EFI_BOOT_SERVICES.LocateHandleBuffer(SearchType, *Protocol, *SearchKey,
// *NoHandles, **Buffer)
func (f *Firmware) locateHandleBuffer(args []uint64) uint64 {
	var handles []uint64

	if args[3] == 0 || args[4] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	switch args[0] {
	case allHandles:
		handles = append(handles, f.handles...)
	case byProtocol:
		if args[1] == 0 {
			return errorStatus(uefi.EFI_INVALID_PARAMETER)
		}

		guid := getGUID(args[1])

		for _, h := range f.handles {
			if _, ok := f.protocols[h][guid]; ok {
				handles = append(handles, h)
			}
		}
	default:
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	if len(handles) == 0 {
		return errorStatus(uefi.EFI_NOT_FOUND)
	}

	addr, status := f.allocatePool(uefi.EfiBootServicesData, uint64(len(handles)*8))

	if status != 0 {
		return status
	}

	r := f.region(addr, len(handles)*8)

	for i, h := range handles {
		binary.LittleEndian.PutUint64(r.buf[addr-r.base+uint64(i*8):], h)
	}

	putUint64(args[3], uint64(len(handles)))
	putUint64(args[4], addr)

	return 0
}

// EFI_BOOT_SERVICES.LocateProtocol(*Protocol, *Registration, **Interface)
func (f *Firmware) locateProtocol(args []uint64) uint64 {
	if args[0] == 0 || args[2] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	guid := getGUID(args[0])

	for _, h := range f.handles {
		if iface, ok := f.protocols[h][guid]; ok {
			putUint64(args[2], iface)
			return 0
		}
	}

	return errorStatus(uefi.EFI_NOT_FOUND)
}
