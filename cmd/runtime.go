// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
)

func init() {
	shell.Add(shell.Cmd{
		Name:    "time",
		Args:    1,
		Pattern: regexp.MustCompile(`^time(.*)`),
		Syntax:  "(time in RFC3339 format)?",
		Help:    "show/change EFI real-time clock",
		Fn:      timeCmd,
	})

	shell.Add(shell.Cmd{
		Name: "vars",
		Help: "list EFI variables",
		Fn:   varsCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "var",
		Args:    2,
		Pattern: regexp.MustCompile(`^var (` + guidPattern + `) (\S+)$`),
		Syntax:  "<registry format GUID> <name>",
		Help:    "EFI_RUNTIME_SERVICES.GetVariable()",
		Fn:      varCmd,
	})
}

func timeCmd(_ *shell.Interface, arg []string) (res string, err error) {
	s, err := services()

	if err != nil {
		return
	}

	if len(arg[0]) > 1 {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(arg[0]))

		if err != nil {
			return "", err
		}

		if err = s.Runtime.SetTime(uefi.NewTime(t)); err != nil {
			return "", err
		}
	}

	t, err := s.Runtime.GetTime()

	if err != nil {
		return
	}

	return t.Time().Format(time.RFC3339), nil
}

func varsCmd(_ *shell.Interface, _ []string) (res string, err error) {
	var buf bytes.Buffer

	s, err := services()

	if err != nil {
		return
	}

	vars, err := s.Runtime.Variables()

	if err != nil {
		return
	}

	sort.Slice(vars, func(i, j int) bool {
		if vars[i].GUID != vars[j].GUID {
			return vars[i].GUID.String() < vars[j].GUID.String()
		}

		return vars[i].Name < vars[j].Name
	})

	for _, v := range vars {
		fmt.Fprintf(&buf, "%s %s\n", v.GUID, v.Name)
	}

	return buf.String(), nil
}

func varCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var buf bytes.Buffer

	s, err := services()

	if err != nil {
		return
	}

	guid, err := uefi.ParseGUID(arg[0])

	if err != nil {
		return
	}

	attr, size, data, err := s.Runtime.GetVariable(arg[1], guid, true)

	if err != nil {
		return
	}

	fmt.Fprintf(&buf, "Attributes .........: %#x\n", attr.Mask())
	fmt.Fprintf(&buf, "Size ...............: %d\n", size)

	if len(data) > 0 {
		buf.WriteString(hex.Dump(data))
	}

	return buf.String(), nil
}
