// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	maxDepth = 16

	nodeHeaderSize = 4
)

// EFI Device Path node types
const (
	HardwareDevicePath  = 0x01
	ACPIDevicePath      = 0x02
	MessagingDevicePath = 0x03
	MediaDevicePath     = 0x04
	BBSDevicePath       = 0x05
	EndDevicePath       = 0x7f

	// Media Device Path sub-types
	HardDriveSubType = 0x01
	FilePathSubType  = 0x04

	// End Device Path sub-type
	EndEntireSubType = 0xff
)

// DevicePathNode represents an EFI Generic Device Path Node structure.
type DevicePathNode struct {
	Type    uint8
	SubType uint8
	Length  uint16
}

// DevicePathEntry represents an EFI Device Path Protocol node and its data.
type DevicePathEntry struct {
	DevicePathNode
	Data []byte
}

func (d *DevicePathEntry) String() string {
	if d.Type == MediaDevicePath && d.SubType == FilePathSubType {
		return fromUTF16(d.Data)
	}

	return fmt.Sprintf("Path(%d,%d,%x)", d.Type, d.SubType, d.Data)
}

// DevicePath represents an EFI Device Path, excluding its end node.
type DevicePath []*DevicePathEntry

// NewFilePath returns a Media File Path device path for the argument path
// name.
func NewFilePath(name string) DevicePath {
	pathName := toUTF16(name)

	return DevicePath{
		&DevicePathEntry{
			DevicePathNode: DevicePathNode{
				Type:    MediaDevicePath,
				SubType: FilePathSubType,
				Length:  uint16(nodeHeaderSize + len(pathName)),
			},
			Data: pathName,
		},
	}
}

// Bytes converts the device path to its firmware format, including the end
// node.
func (p DevicePath) Bytes() (buf []byte) {
	end := DevicePathNode{
		Type:    EndDevicePath,
		SubType: EndEntireSubType,
		Length:  nodeHeaderSize,
	}

	for _, d := range p {
		buf = binary.LittleEndian.AppendUint16(append(buf, d.Type, d.SubType), d.Length)
		buf = append(buf, d.Data...)
	}

	return binary.LittleEndian.AppendUint16(append(buf, end.Type, end.SubType), end.Length)
}

func (p DevicePath) String() string {
	var s []string

	for _, d := range p {
		s = append(s, d.String())
	}

	return strings.Join(s, "/")
}

// DevicePathAt parses the EFI Device Path at addr.
//
// While we could use UEFI functions to perform the same, we prefer to keep
// control on this parsing given that UEFI firmware does not handle
// gracefully invalid pointers (e.g. DoS condition).
func (s *BootServices) DevicePathAt(addr uint64) (p DevicePath, err error) {
	for i := 0; i <= maxDepth; i++ {
		if i == maxDepth {
			return nil, newError("DevicePath, nodes limit exceeded", BadBufferSize)
		}

		d := &DevicePathEntry{}

		if err = s.lc.bootRead("DevicePath", &d.DevicePathNode, addr); err != nil {
			return nil, err
		}

		if d.Type == EndDevicePath && d.SubType == EndEntireSubType {
			break
		}

		if d.Length < nodeHeaderSize || d.Length > 0xff {
			return nil, newError(fmt.Sprintf("DevicePath, invalid node length %d", d.Length), BadBufferSize)
		}

		d.Data = make([]byte, d.Length-nodeHeaderSize)

		if len(d.Data) > 0 {
			if err = s.lc.bootRead("DevicePath", d.Data, addr+nodeHeaderSize); err != nil {
				return nil, err
			}
		}

		p = append(p, d)
		addr += uint64(d.Length)
	}

	return
}
