// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
)

const guidPattern = `\{?[[:xdigit:]]{8}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{4}-[[:xdigit:]]{12}\}?`

func init() {
	shell.Add(shell.Cmd{
		Name: "uefi",
		Help: "UEFI information",
		Fn:   uefiCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "protocol",
		Args:    1,
		Pattern: regexp.MustCompile(`^protocol (` + guidPattern + `)$`),
		Syntax:  "<registry format GUID>",
		Help:    "EFI_BOOT_SERVICES.LocateProtocol()",
		Fn:      locateCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "handles",
		Args:    1,
		Pattern: regexp.MustCompile(`^handles (` + guidPattern + `)$`),
		Syntax:  "<registry format GUID>",
		Help:    "EFI_BOOT_SERVICES.LocateHandleBuffer()",
		Fn:      handlesCmd,
	})

	shell.Add(shell.Cmd{
		Name: "image",
		Help: "EFI Loaded Image Protocol information",
		Fn:   imageCmd,
	})

	shell.Add(shell.Cmd{
		Name: "config",
		Help: "EFI Configuration Tables",
		Fn:   configCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "reset",
		Args:    1,
		Pattern: regexp.MustCompile(`^reset(?: (cold|warm))?$`),
		Help:    "EFI_RUNTIME_SERVICES.ResetSystem()",
		Syntax:  "(cold|warm)?",
		Fn:      resetCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "halt, shutdown",
		Args:    1,
		Pattern: regexp.MustCompile(`^(halt|shutdown)$`),
		Help:    "shutdown system",
		Fn:      shutdownCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "watchdog",
		Args:    1,
		Pattern: regexp.MustCompile(`^watchdog (\d+)$`),
		Syntax:  "<seconds>",
		Help:    "EFI_BOOT_SERVICES.SetWatchdogTimer() (0 disables)",
		Fn:      watchdogCmd,
	})

	shell.Add(shell.Cmd{
		Name: "key",
		Help: "EFI_SIMPLE_TEXT_INPUT_EX_PROTOCOL.ReadKeyStrokeEx()",
		Fn:   keyCmd,
	})

	shell.Add(shell.Cmd{
		Name: "ebs",
		Help: "EFI_BOOT_SERVICES.ExitBootServices()",
		Fn:   exitBootServicesCmd,
	})
}

func uefiCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	s, err := services()

	if err != nil {
		return
	}

	t := s.SystemTable
	vendor, _ := s.FirmwareVendor()

	fmt.Fprintf(&buf, "Firmware Vendor ....: %s\n", vendor)
	fmt.Fprintf(&buf, "Firmware Revision ..: %#x\n", t.FirmwareRevision)
	fmt.Fprintf(&buf, "UEFI Revision ......: %s\n", uefi.RevisionString(t.Header.Revision))
	fmt.Fprintf(&buf, "Phase ..............: %s\n", s.Phase())
	fmt.Fprintf(&buf, "Image Handle .......: %s\n", s.ImageHandle())
	fmt.Fprintf(&buf, "System Table .......: %#x\n", s.Address())
	fmt.Fprintf(&buf, "Runtime Services ...: %#x\n", t.RuntimeServices)
	fmt.Fprintf(&buf, "Boot Services ......: %#x\n", t.BootServices)

	if s.Phase() == uefi.Boot {
		if gop, err := s.Boot.GetGraphicsOutput(); err == nil {
			if pm, err := gop.GetMode(); err == nil {
				if m, err := gop.GetInfo(pm); err == nil {
					fmt.Fprintf(&buf, "Frame Buffer .......: %dx%d @ %#x\n",
						m.HorizontalResolution, m.VerticalResolution,
						pm.FrameBufferBase)
				}
			}
		}
	}

	fmt.Fprintf(&buf, "Configuration Tables: %#x\n", t.ConfigurationTable)

	if c, err := s.ConfigurationTables(); err == nil {
		for _, t := range c {
			fmt.Fprintf(&buf, "  %s (%#x)\n", t.GUID, t.VendorTable)
		}
	}

	return buf.String(), nil
}

func locateCmd(_ *shell.Interface, arg []string) (res string, err error) {
	b, err := bootServices()

	if err != nil {
		return
	}

	addr, err := b.LocateProtocolString(arg[0])

	if err != nil {
		return
	}

	return fmt.Sprintf("%s: %#08x", arg[0], addr), nil
}

func handlesCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	b, err := bootServices()

	if err != nil {
		return
	}

	guid, err := uefi.ParseGUID(arg[0])

	if err != nil {
		return
	}

	handles, err := b.LocateHandles(guid)

	if err != nil {
		return
	}

	for _, h := range handles {
		addr, err := b.HandleProtocol(h, guid)

		if err != nil {
			fmt.Fprintf(&buf, "%s: %v\n", h, err)
			continue
		}

		fmt.Fprintf(&buf, "%s: %#08x\n", h, addr)
	}

	return buf.String(), nil
}

func imageCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	b, err := bootServices()

	if err != nil {
		return
	}

	image, err := b.LoadedImage(UEFI.ImageHandle())

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "Image Base .........: %#x\n", image.ImageBase)
	fmt.Fprintf(&buf, "Image Size .........: %#x\n", image.ImageSize)
	fmt.Fprintf(&buf, "Device Handle ......: %s\n", image.Device())

	if path, err := image.Path(); err == nil {
		fmt.Fprintf(&buf, "File Path ..........: %s\n", path)
	}

	if opts, err := image.Options(); err == nil && len(opts) > 0 {
		fmt.Fprintf(&buf, "Load Options .......: %s\n", opts)
	}

	return buf.String(), nil
}

func configCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	s, err := services()

	if err != nil {
		return
	}

	c, err := s.ConfigurationTables()

	if err != nil {
		return
	}

	for _, t := range c {
		fmt.Fprintf(&buf, "%s %#016x %s\n", t.GUID, t.VendorTable, t.GUID.Name())
	}

	return buf.String(), nil
}

func resetCmd(_ *shell.Interface, arg []string) (_ string, err error) {
	var resetType int

	s, err := services()

	if err != nil {
		return
	}

	switch arg[0] {
	case "cold":
		resetType = uefi.EfiResetCold
	case "warm", "":
		resetType = uefi.EfiResetWarm
	case "shutdown":
		resetType = uefi.EfiResetShutdown
	}

	log.Printf("performing system reset type %d", resetType)
	err = s.Runtime.ResetSystem(resetType)

	return
}

func shutdownCmd(_ *shell.Interface, _ []string) (_ string, err error) {
	return resetCmd(nil, []string{"shutdown"})
}

func watchdogCmd(_ *shell.Interface, arg []string) (_ string, err error) {
	b, err := bootServices()

	if err != nil {
		return
	}

	sec, err := strconv.Atoi(arg[0])

	if err != nil {
		return "", fmt.Errorf("invalid timeout, %v", err)
	}

	return "", b.SetWatchdogTimer(sec)
}

func keyCmd(_ *shell.Interface, _ []string) (res string, err error) {
	s, err := services()

	if err != nil {
		return
	}

	in, err := s.GetInputEx()

	if err != nil {
		return
	}

	k, err := in.ReadKeyStroke()

	if errors.Is(err, uefi.NotReady) {
		return "no keystroke pending", nil
	}

	if err != nil {
		return
	}

	return fmt.Sprintf("scan:%#04x char:%q shift:%#x toggle:%#x",
		k.Key.ScanCode, rune(k.Key.UnicodeChar), k.KeyState.Shift(), k.KeyState.Toggle()), nil
}

func exitBootServicesCmd(_ *shell.Interface, _ []string) (res string, err error) {
	s, err := services()

	if err != nil {
		return
	}

	log.Printf("exiting EFI boot services")

	if _, err = s.ExitBootServices(); err != nil {
		return
	}

	return fmt.Sprintf("phase: %s", s.Phase()), nil
}
