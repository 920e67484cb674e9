// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"encoding/binary"

	"github.com/usbarmory/go-uefi/uefi"
)

// EFI TCG Protocol offsets
const statusCheck = 0x00

// InstallTCG installs an EFI TCG Protocol instance reporting the argument
// capability and an event log holding events, it returns the event log
// address (zero for empty logs).
func (f *Firmware) InstallTCG(capability uefi.BootServiceCapability, events ...uefi.PCREvent) (log uint64) {
	var buf []byte
	var last int

	f.Lock()
	defer f.Unlock()

	for _, e := range events {
		last = len(buf)

		buf = binary.LittleEndian.AppendUint32(buf, e.PCRIndex)
		buf = binary.LittleEndian.AppendUint32(buf, e.EventType)
		buf = append(buf, e.Digest[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(e.Data)))
		buf = append(buf, e.Data...)
	}

	var lastEntry uint64

	if len(buf) > 0 {
		var mem []byte

		log, mem = f.place(len(buf))
		copy(mem, buf)

		lastEntry = log + uint64(last)
	}

	c, err := binary.Append(nil, binary.LittleEndian, &capability)

	if err != nil {
		panic(err)
	}

	f.installProtocol(f.newHandle(), uefi.EFI_TCG_PROTOCOL_GUID, [5]uint64{},
		map[uint64]Service{
			statusCheck: func(args []uint64) uint64 {
				for _, ptr := range args[1:5] {
					if ptr == 0 {
						return errorStatus(uefi.EFI_INVALID_PARAMETER)
					}
				}

				copy(goBytes(args[1], len(c)), c)
				putUint32(args[2], 0)
				putUint64(args[3], log)
				putUint64(args[4], lastEntry)

				return 0
			},
		},
	)

	return
}
