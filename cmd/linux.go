// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && amd64

package cmd

import (
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/u-root/u-root/pkg/boot/bzimage"

	"github.com/usbarmory/armory-boot/exec"
	"github.com/usbarmory/tamago/dma"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
)

// kernel loading region
const (
	memoryStart = 0x80000000
	memorySize  = 0x10000000
)

// CommandLine represents the Linux kernel boot parameters
var CommandLine = "console=ttyS0,115200,8n1\x00"

// remove trailing space below to embed
//
// go:embed bzImage
var bzImage []byte

func init() {
	shell.Add(shell.Cmd{
		Name:    "linux",
		Args:    1,
		Pattern: regexp.MustCompile(`^linux(.*)`),
		Syntax:  "(path)?",
		Help:    "boot Linux kernel bzImage",
		Fn:      linuxCmd,
	})
}

func buildMemoryMap(b *uefi.BootServices) (m []bzimage.E820Entry, err error) {
	memoryMap, err := b.GetMemoryMap()

	if err != nil {
		return
	}

	return memoryMap.E820()
}

func cleanup() {
	log.Printf("exiting EFI boot services")

	if _, err := UEFI.ExitBootServices(); err != nil {
		log.Printf("could not exit EFI boot services, %v\n", err)
	}
}

func linuxCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var r *uefi.Region
	var mem *dma.Region
	var mmap []bzimage.E820Entry

	path := strings.TrimSpace(arg[0])

	if len(path) != 0 {
		if bzImage, err = os.ReadFile(path); err != nil {
			return
		}
	}

	if len(bzImage) == 0 {
		return "", errors.New("missing kernel image")
	}

	b, err := bootServices()

	if err != nil {
		return
	}

	// reserve memory for kernel loading

	log.Printf("allocating memory range %#08x - %#08x", memoryStart, memoryStart+memorySize)

	if r, err = UEFI.Allocator().AllocateAt(memoryStart, memorySize, uefi.EfiLoaderData); err != nil {
		return "", fmt.Errorf("could not allocate kernel memory, %v", err)
	}

	// free allocated pages in case of error
	defer UEFI.Allocator().Deallocate(r)

	if mem, err = dma.NewRegion(uint(r.Address), r.Size, false); err != nil {
		return
	}

	mem.Reserve(r.Size, 0)

	// build E820 memory map

	if mmap, err = buildMemoryMap(b); err != nil {
		return
	}

	image := &exec.LinuxImage{
		Memory:  mmap,
		Region:  mem,
		Kernel:  bzImage,
		CmdLine: CommandLine,
	}

	// load kernel

	log.Printf("loading kernel@%0.8x", mem.Start())

	if err = image.Load(); err != nil {
		return "", fmt.Errorf("could not load kernel, %v", err)
	}

	// boot kernel

	log.Printf("starting kernel@%0.8x", image.Entry())

	// does not return on success
	return "", image.Boot(cleanup)
}
