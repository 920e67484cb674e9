// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/usbarmory/go-uefi/cmd"
	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/x64"
)

// set at build time with -ldflags -X
var (
	Build    string
	Revision string
)

func init() {
	log.SetFlags(0)

	cmd.UEFI = x64.UEFI
	cmd.Banner = fmt.Sprintf("go-uefi • %s/%s (%s) • UEFI %s",
		runtime.GOOS, runtime.GOARCH, runtime.Version(), Revision)
}

func main() {
	logFile, _ := os.OpenFile("/runtime.log", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	log.SetOutput(io.MultiWriter(os.Stdout, logFile))

	log.Printf("%s (build %s)", cmd.Banner, Build)

	if x64.UEFI.Phase() != uefi.Boot || x64.UEFI.Console == nil {
		log.Printf("EFI console unavailable")
		runtime.Exit(1)
	}

	iface := &shell.Interface{
		Banner:     cmd.Banner,
		Log:        logFile,
		ReadWriter: x64.UEFI.Console,
	}

	iface.Start()

	if x64.UEFI.Phase() == uefi.Boot {
		log.Printf("exiting to firmware")
		x64.UEFI.Boot.Exit(0)
	}

	runtime.Exit(0)
}
