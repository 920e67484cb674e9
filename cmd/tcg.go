// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
)

var eventTypes = map[uint32]string{
	uefi.EV_POST_CODE:                     "EV_POST_CODE",
	uefi.EV_NO_ACTION:                     "EV_NO_ACTION",
	uefi.EV_SEPARATOR:                     "EV_SEPARATOR",
	uefi.EV_ACTION:                        "EV_ACTION",
	uefi.EV_S_CRTM_CONTENTS:               "EV_S_CRTM_CONTENTS",
	uefi.EV_S_CRTM_VERSION:                "EV_S_CRTM_VERSION",
	uefi.EV_EFI_VARIABLE_DRIVER_CONFIG:    "EV_EFI_VARIABLE_DRIVER_CONFIG",
	uefi.EV_EFI_VARIABLE_BOOT:             "EV_EFI_VARIABLE_BOOT",
	uefi.EV_EFI_BOOT_SERVICES_APPLICATION: "EV_EFI_BOOT_SERVICES_APPLICATION",
	uefi.EV_EFI_ACTION:                    "EV_EFI_ACTION",
	uefi.EV_EFI_PLATFORM_FIRMWARE_BLOB:    "EV_EFI_PLATFORM_FIRMWARE_BLOB",
}

func init() {
	shell.Add(shell.Cmd{
		Name:    "tcg",
		Args:    1,
		Pattern: regexp.MustCompile(`^tcg(?: (\d+))?$`),
		Syntax:  "(pcr)?",
		Help:    "TPM 1.2 status and event log, optionally filtered by PCR",
		Fn:      tcgCmd,
	})
}

func eventType(t uint32) string {
	if name, ok := eventTypes[t]; ok {
		return name
	}

	return fmt.Sprintf("%#08x", t)
}

func tcgCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	pcr := -1

	b, err := bootServices()

	if err != nil {
		return
	}

	if len(arg[0]) > 0 {
		if pcr, err = strconv.Atoi(arg[0]); err != nil {
			return "", fmt.Errorf("invalid PCR index, %v", err)
		}
	}

	tcg, err := b.GetTCG()

	if err != nil {
		return
	}

	st, err := tcg.StatusCheck()

	if err != nil {
		return
	}

	c := st.Capability

	fmt.Fprintf(&buf, "Protocol Version ...: %s\n", c.ProtocolSpecVersion)
	fmt.Fprintf(&buf, "Hash Algorithms ....: %#x\n", c.HashAlgorithmBitmap)
	fmt.Fprintf(&buf, "TPM Present ........: %v\n", c.TPMPresent())
	fmt.Fprintf(&buf, "TPM Deactivated ....: %v\n", c.TPMDeactivated())

	n := 0

	for e := range st.EventLog.All() {
		if pcr >= 0 && int(e.PCRIndex) != pcr {
			continue
		}

		fmt.Fprintf(&buf, "%02d %x %s (%d bytes)\n", e.PCRIndex, e.Digest, eventType(e.EventType), len(e.Data))
		n++
	}

	if err = st.EventLog.Err(); err != nil {
		return
	}

	fmt.Fprintf(&buf, "Events: %d", n)

	return buf.String(), nil
}
