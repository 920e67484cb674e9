// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package x64

import (
	_ "unsafe"

	"github.com/usbarmory/go-uefi/uefi"
)

// Standard output is served by the EFI console during the boot phase and by
// the serial port before UEFI.Init() or after ExitBootServices().
//
//go:linkname printk runtime.printk
func printk(c byte) {
	console := UEFI.Console

	if console == nil || UEFI.Phase() != uefi.Boot {
		UART0.Tx(c)
		return
	}

	if err := console.Output([]byte{c}); err != nil {
		UART0.Tx(c)
		return
	}

	if c == 0x0a && console.ForceLine { // LF
		console.Output([]byte{0x0d}) // CR
	}
}
