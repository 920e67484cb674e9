// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

func marshalBinary(data any) (buf []byte, err error) {
	b := new(bytes.Buffer)
	err = binary.Write(b, binary.LittleEndian, data)
	return b.Bytes(), err
}

func unmarshalBinary(buf []byte, data any) (err error) {
	_, err = binary.Decode(buf, binary.LittleEndian, data)
	return
}

func decode(fw Firmware, data any, addr uint64) (err error) {
	if addr == 0 {
		return errors.New("invalid address")
	}

	n := binary.Size(data)

	if n <= 0 {
		return errors.New("invalid data type")
	}

	buf := make([]byte, n)

	if err = fw.ReadMemory(addr, buf); err != nil {
		return
	}

	return unmarshalBinary(buf, data)
}

// toUTF16 converts a string to a null terminated UTF-16 little-endian buffer.
func toUTF16(s string) []byte {
	r := utf16.Encode([]rune(s))
	buf := make([]byte, 0, (len(r)+1)*2)

	for _, c := range r {
		buf = binary.LittleEndian.AppendUint16(buf, c)
	}

	return append(buf, 0x00, 0x00)
}

// fromUTF16 converts a null terminated UTF-16 little-endian buffer to a
// string.
func fromUTF16(buf []byte) string {
	var r []uint16

	for i := 0; i+1 < len(buf); i += 2 {
		c := binary.LittleEndian.Uint16(buf[i:])

		if c == 0 {
			break
		}

		r = append(r, c)
	}

	return string(utf16.Decode(r))
}
