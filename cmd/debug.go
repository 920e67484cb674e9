// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && net && debug

package cmd

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"regexp"
	"sync"

	"github.com/arl/statsviz"

	"github.com/usbarmory/go-uefi/shell"
)

var register sync.Once

func init() {
	shell.Add(shell.Cmd{
		Name:    "http",
		Args:    1,
		Pattern: regexp.MustCompile(`^http (\d+)$`),
		Syntax:  "<port>",
		Help:    "start pprof/statsviz HTTP server (requires `net`)",
		Fn:      httpCmd,
	})
}

func httpCmd(_ *shell.Interface, arg []string) (res string, err error) {
	register.Do(func() {
		err = statsviz.RegisterDefault()
	})

	if err != nil {
		return
	}

	go func() {
		if err := http.ListenAndServe(":"+arg[0], nil); err != nil {
			log.Printf("http server error, %v", err)
		}
	}()

	return fmt.Sprintf("runtime statistics at http://<ip>:%s/debug/statsviz", arg[0]), nil
}
