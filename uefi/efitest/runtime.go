// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"bytes"
	"encoding/binary"
	"slices"
	"time"

	"github.com/usbarmory/go-uefi/uefi"
)

// EFI Runtime Services offsets
const (
	getTime                   = 0x18
	setTime                   = 0x20
	getVariable               = 0x48
	getNextVariableName       = 0x50
	setVariable               = 0x58
	getNextHighMonotonicCount = 0x60
	resetSystem               = 0x68
)

const timeSize = 16

type variable struct {
	name string
	guid uefi.GUID
	attr uint32
	data []byte
}

func (f *Firmware) runtimeServices() {
	for offset, s := range map[uint64]Service{
		getTime:                   f.getTime,
		setTime:                   f.setTime,
		getVariable:               f.getVariable,
		getNextVariableName:       f.getNextVariableName,
		setVariable:               f.setVariable,
		getNextHighMonotonicCount: f.getNextHighMonotonicCount,
		resetSystem:               f.resetSystem,
	} {
		f.slot(f.runtimeTable, offset, s)
	}
}

// EFI_RUNTIME_SERVICES.GetTime(*Time, *Capabilities)
func (f *Firmware) getTime(args []uint64) uint64 {
	if args[0] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	if _, err := binary.Encode(goBytes(args[0], timeSize), binary.LittleEndian, uefi.NewTime(f.clock)); err != nil {
		return errorStatus(uefi.EFI_DEVICE_ERROR)
	}

	return 0
}

// EFI_RUNTIME_SERVICES.SetTime(*Time)
func (f *Firmware) setTime(args []uint64) uint64 {
	t := &uefi.Time{}

	if args[0] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	if _, err := binary.Decode(goBytes(args[0], timeSize), binary.LittleEndian, t); err != nil {
		return errorStatus(uefi.EFI_DEVICE_ERROR)
	}

	if t.Year < 1900 || t.Month < 1 || t.Month > 12 || t.Day < 1 || t.Day > 31 ||
		t.Hour > 23 || t.Minute > 59 || t.Second > 59 || t.Nanosecond > 999999999 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	f.clock = t.Time()

	return 0
}

// Clock returns the real-time clock value.
func (f *Firmware) Clock() time.Time {
	f.Lock()
	defer f.Unlock()

	return f.clock
}

// SetClock sets the real-time clock value.
func (f *Firmware) SetClock(t time.Time) {
	f.Lock()
	defer f.Unlock()

	f.clock = t
}

// visible returns the variables accessible in the current phase.
func (f *Firmware) visible() (vars []*variable) {
	for _, v := range f.variables {
		if f.exited && v.attr&uefi.EFI_VARIABLE_RUNTIME_ACCESS == 0 {
			continue
		}

		vars = append(vars, v)
	}

	return
}

func (f *Firmware) lookup(name string, guid uefi.GUID) (int, *variable) {
	for i, v := range f.visible() {
		if v.name == name && v.guid == guid {
			return i, v
		}
	}

	return -1, nil
}

// EFI_RUNTIME_SERVICES.GetVariable(*VariableName, *VendorGuid, *Attributes,
// *DataSize, *Data)
func (f *Firmware) getVariable(args []uint64) uint64 {
	if args[0] == 0 || args[1] == 0 || args[3] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	_, v := f.lookup(decodeString(getString(args[0])), getGUID(args[1]))

	if v == nil {
		return errorStatus(uefi.EFI_NOT_FOUND)
	}

	if args[2] != 0 {
		putUint32(args[2], v.attr)
	}

	size := getUint64(args[3])
	putUint64(args[3], uint64(len(v.data)))

	if size < uint64(len(v.data)) {
		return errorStatus(uefi.EFI_BUFFER_TOO_SMALL)
	}

	if len(v.data) == 0 {
		return 0
	}

	if args[4] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	copy(goBytes(args[4], len(v.data)), v.data)

	return 0
}

// EFI_RUNTIME_SERVICES.GetNextVariableName(*VariableNameSize,
// *VariableName, *VendorGuid)
func (f *Firmware) getNextVariableName(args []uint64) uint64 {
	if args[0] == 0 || args[1] == 0 || args[2] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	vars := f.visible()
	name := decodeString(getString(args[1]))
	next := 0

	if len(name) > 0 {
		i, _ := f.lookup(name, getGUID(args[2]))

		if i < 0 {
			return errorStatus(uefi.EFI_INVALID_PARAMETER)
		}

		next = i + 1
	}

	if next >= len(vars) {
		return errorStatus(uefi.EFI_NOT_FOUND)
	}

	v := vars[next]
	buf := encodeString(v.name)

	size := getUint64(args[0])
	putUint64(args[0], uint64(len(buf)))

	if size < uint64(len(buf)) {
		return errorStatus(uefi.EFI_BUFFER_TOO_SMALL)
	}

	copy(goBytes(args[1], len(buf)), buf)
	copy(goBytes(args[2], len(v.guid)), v.guid[:])

	return 0
}

// EFI_RUNTIME_SERVICES.SetVariable(*VariableName, *VendorGuid, Attributes,
// DataSize, *Data)
func (f *Firmware) setVariable(args []uint64) uint64 {
	if args[0] == 0 || args[1] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	name := decodeString(getString(args[0]))
	guid := getGUID(args[1])
	attr := uint32(args[2])
	size := int(args[3])

	if len(name) == 0 || (size > 0 && args[4] == 0) {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	_, v := f.lookup(name, guid)

	// deletion
	if (size == 0 && attr&uefi.EFI_VARIABLE_APPEND_WRITE == 0) || attr == 0 {
		if v == nil {
			return errorStatus(uefi.EFI_NOT_FOUND)
		}

		f.variables = slices.DeleteFunc(f.variables, func(e *variable) bool {
			return e == v
		})

		return 0
	}

	if attr&uefi.EFI_VARIABLE_RUNTIME_ACCESS != 0 && attr&uefi.EFI_VARIABLE_BOOTSERVICE_ACCESS == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	if f.exited && attr&uefi.EFI_VARIABLE_RUNTIME_ACCESS == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	data := bytes.Clone(goBytes(args[4], size))

	switch {
	case v == nil:
		f.variables = append(f.variables, &variable{
			name: name,
			guid: guid,
			attr: attr &^ uefi.EFI_VARIABLE_APPEND_WRITE,
			data: data,
		})
	case v.attr != attr&^uefi.EFI_VARIABLE_APPEND_WRITE:
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	case attr&uefi.EFI_VARIABLE_APPEND_WRITE != 0:
		v.data = append(v.data, data...)
	default:
		v.data = data
	}

	return 0
}

// Variable returns a variable from the store.
func (f *Firmware) Variable(name string, guid uefi.GUID) (data []byte, attr uint32, ok bool) {
	f.Lock()
	defer f.Unlock()

	for _, v := range f.variables {
		if v.name == name && v.guid == guid {
			return bytes.Clone(v.data), v.attr, true
		}
	}

	return
}

// PutVariable adds a variable to the store, replacing any existing one.
func (f *Firmware) PutVariable(name string, guid uefi.GUID, attr uint32, data []byte) {
	f.Lock()
	defer f.Unlock()

	f.variables = slices.DeleteFunc(f.variables, func(v *variable) bool {
		return v.name == name && v.guid == guid
	})

	f.variables = append(f.variables, &variable{
		name: name,
		guid: guid,
		attr: attr,
		data: bytes.Clone(data),
	})
}

// EFI_RUNTIME_SERVICES.GetNextHighMonotonicCount(*HighCount)
func (f *Firmware) getNextHighMonotonicCount(args []uint64) uint64 {
	if args[0] == 0 {
		return errorStatus(uefi.EFI_INVALID_PARAMETER)
	}

	f.high++
	putUint32(args[0], f.high)

	return 0
}

// EFI_RUNTIME_SERVICES.ResetSystem(ResetType, ResetStatus, DataSize,
// *ResetData)
func (f *Firmware) resetSystem(args []uint64) uint64 {
	f.resets = append(f.resets, int(args[0]))
	return 0
}

// Resets returns the reset types requested through
// EFI_RUNTIME_SERVICES.ResetSystem().
func (f *Firmware) Resets() []int {
	f.Lock()
	defer f.Unlock()

	return append([]int(nil), f.resets...)
}
