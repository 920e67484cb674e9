// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"runtime"
)

// EFI Runtime Services offset for Variable Services
// See: https://uefi.org/specs/UEFI/2.11/08_Services_Runtime_Services.html#variable-services
const (
	getVariable         = 0x48
	getNextVariableName = 0x50
	setVariable         = 0x58

	// initial variable name buffer size
	variableNameSize = 1024
)

// EFI variable attributes
const (
	EFI_VARIABLE_NON_VOLATILE                          = 0x01
	EFI_VARIABLE_BOOTSERVICE_ACCESS                    = 0x02
	EFI_VARIABLE_RUNTIME_ACCESS                        = 0x04
	EFI_VARIABLE_HARDWARE_ERROR_RECORD                 = 0x08
	EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS            = 0x10
	EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS = 0x20
	EFI_VARIABLE_APPEND_WRITE                          = 0x40
	EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS         = 0x80
)

// VariableAttributes represents the attributes of a UEFI variable.
// See: https://uefi.org/specs/UEFI/2.11/08_Services_Runtime_Services.html#getvariable
type VariableAttributes struct {
	NonVolatile              bool
	BootServiceAccess        bool
	RuntimeServiceAccess     bool
	HardwareErrorRecord      bool
	AuthWriteAccess          bool
	TimeBasedAuthWriteAccess bool
	AppendWrite              bool
	EnhancedAuthAccess       bool
}

// ParseVariableAttributes converts a raw attribute mask.
func ParseVariableAttributes(attributes uint32) (attr VariableAttributes) {
	attr.NonVolatile = attributes&EFI_VARIABLE_NON_VOLATILE != 0
	attr.BootServiceAccess = attributes&EFI_VARIABLE_BOOTSERVICE_ACCESS != 0
	attr.RuntimeServiceAccess = attributes&EFI_VARIABLE_RUNTIME_ACCESS != 0
	attr.HardwareErrorRecord = attributes&EFI_VARIABLE_HARDWARE_ERROR_RECORD != 0
	attr.AuthWriteAccess = attributes&EFI_VARIABLE_AUTHENTICATED_WRITE_ACCESS != 0
	attr.TimeBasedAuthWriteAccess = attributes&EFI_VARIABLE_TIME_BASED_AUTHENTICATED_WRITE_ACCESS != 0
	attr.AppendWrite = attributes&EFI_VARIABLE_APPEND_WRITE != 0
	attr.EnhancedAuthAccess = attributes&EFI_VARIABLE_ENHANCED_AUTHENTICATED_ACCESS != 0
	return
}

// Mask returns the raw attribute mask.
func (attr VariableAttributes) Mask() (attributes uint32) {
	for bit, set := range []bool{
		attr.NonVolatile,
		attr.BootServiceAccess,
		attr.RuntimeServiceAccess,
		attr.HardwareErrorRecord,
		attr.AuthWriteAccess,
		attr.TimeBasedAuthWriteAccess,
		attr.AppendWrite,
		attr.EnhancedAuthAccess,
	} {
		if set {
			attributes |= 1 << bit
		}
	}

	return
}

// Variable represents a UEFI variable identifier.
type Variable struct {
	Name string
	GUID GUID
}

// GetVariable calls EFI_RUNTIME_SERVICES.GetVariable().
// See: https://uefi.org/specs/UEFI/2.11/08_Services_Runtime_Services.html#getvariable
func (s *RuntimeServices) GetVariable(name string, guid GUID, withData bool) (attr VariableAttributes, dataSize uint64, data []byte, err error) {
	var attributes uint32

	n := toUTF16(name)

	// The first call retrieves the attributes and size of data
	err = s.lc.runtime("GetVariable", s.base+getVariable,
		[]uint64{
			ptrval(&n[0]),
			ptrval(&guid),
			ptrval(&attributes),
			ptrval(&dataSize),
			0,
		},
	)

	if err != nil && !errors.Is(err, BufferTooSmall) {
		return VariableAttributes{}, 0, nil, err
	}

	attr = ParseVariableAttributes(attributes)

	if !withData || dataSize == 0 {
		return attr, dataSize, nil, nil
	}

	// The second call retrieves the data
	data = make([]byte, dataSize)

	err = s.lc.runtime("GetVariable", s.base+getVariable,
		[]uint64{
			ptrval(&n[0]),
			ptrval(&guid),
			0,
			ptrval(&dataSize),
			ptrval(&data[0]),
		},
	)
	runtime.KeepAlive(n)

	if err != nil {
		return attr, 0, nil, err
	}

	return attr, dataSize, data[:dataSize], nil
}

// SetVariable calls EFI_RUNTIME_SERVICES.SetVariable(), empty data deletes
// the variable.
func (s *RuntimeServices) SetVariable(name string, guid GUID, attr VariableAttributes, data []byte) (err error) {
	var p uint64

	n := toUTF16(name)

	if len(data) > 0 {
		p = ptrval(&data[0])
	}

	err = s.lc.runtime("SetVariable", s.base+setVariable,
		[]uint64{
			ptrval(&n[0]),
			ptrval(&guid),
			uint64(attr.Mask()),
			uint64(len(data)),
			p,
		},
	)
	runtime.KeepAlive(n)
	runtime.KeepAlive(data)

	return
}

// GetNextVariableName calls EFI_RUNTIME_SERVICES.GetNextVariableName(), the
// end of the variable list is reported as NotFound.
// See: https://uefi.org/specs/UEFI/2.11/08_Services_Runtime_Services.html#getnextvariablename
func (s *RuntimeServices) GetNextVariableName(name *string, guid *GUID) (err error) {
	last := toUTF16(*name)
	size := uint64(max(variableNameSize, len(last)))

	for {
		buf := make([]byte, size)
		copy(buf, last)

		err = s.lc.runtime("GetNextVariableName", s.base+getNextVariableName,
			[]uint64{
				ptrval(&size),
				ptrval(&buf[0]),
				ptrval(guid),
			},
		)

		switch {
		case err == nil:
			*name = fromUTF16(buf)
			return
		case errors.Is(err, BufferTooSmall) && size > uint64(len(buf)):
			// the required size is returned in size
			continue
		default:
			return
		}
	}
}

// Variables returns all variable identifiers, enumerated with
// GetNextVariableName.
func (s *RuntimeServices) Variables() (vars []Variable, err error) {
	var name string
	var guid GUID

	for {
		if err = s.GetNextVariableName(&name, &guid); err != nil {
			break
		}

		vars = append(vars, Variable{Name: name, GUID: guid})
	}

	if errors.Is(err, NotFound) {
		err = nil
	}

	return
}
