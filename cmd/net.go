// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago && net

package cmd

import (
	"fmt"
	"log"
	"net"
	"regexp"
	"strconv"

	"github.com/usbarmory/go-net"

	// TLS root certificates for Go runtime clients
	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/usbarmory/go-uefi/shell"
	"github.com/usbarmory/go-uefi/uefi"
)

// Resolver represents the default name server
var Resolver = "8.8.8.8:53"

func init() {
	shell.Add(shell.Cmd{
		Name:    "net",
		Args:    3,
		Pattern: regexp.MustCompile(`^net (\S+) (\S+)(?: (\d+))?$`),
		Syntax:  "<ip> <gateway> (interface index)?",
		Help:    "start UEFI networking",
		Fn:      netCmd,
	})

	shell.Add(shell.Cmd{
		Name:    "dns",
		Args:    1,
		Pattern: regexp.MustCompile(`^dns (.*)`),
		Syntax:  "<host>",
		Help:    "resolve domain",
		Fn:      dnsCmd,
	})

	net.SetDefaultNS([]string{Resolver})
}

// network returns the Simple Network Protocol instance at the argument index
// among all network interfaces.
func network(b *uefi.BootServices, index int) (nic *uefi.SimpleNetwork, err error) {
	nics, err := b.Networks()

	if err != nil {
		return
	}

	i := 0

	for _, ref := range nics.All() {
		if i == index {
			return uefi.NewSimpleNetwork(ref), nil
		}

		i++
	}

	if err = nics.Err(); err != nil {
		return
	}

	return nil, fmt.Errorf("invalid interface index %d (%d found)", index, i)
}

func netCmd(_ *shell.Interface, arg []string) (res string, err error) {
	var index int

	b, err := bootServices()

	if err != nil {
		return
	}

	if len(arg[2]) > 0 {
		if index, err = strconv.Atoi(arg[2]); err != nil {
			return "", fmt.Errorf("invalid index, %v", err)
		}
	}

	nic, err := network(b, index)

	if err != nil {
		return "", fmt.Errorf("could not locate network protocol, %v", err)
	}

	if err = nic.Start(); err != nil {
		return "", fmt.Errorf("could not start interface, %v", err)
	}

	if err = nic.Initialize(); err != nil {
		return "", fmt.Errorf("could not initialize interface, %v", err)
	}

	iface := gnet.Interface{}

	if err := iface.Init(nic, arg[0], "", arg[1]); err != nil {
		return "", fmt.Errorf("could not initialize networking, %v", err)
	}

	iface.EnableICMP()
	go iface.NIC.Start()

	// hook interface into Go runtime
	net.SocketFunc = iface.Socket

	log.Printf("network initialized (%s)", arg[0])

	return "network initialized", nil
}

func dnsCmd(_ *shell.Interface, arg []string) (res string, err error) {
	cname, err := net.LookupHost(arg[0])

	if err != nil {
		return "", fmt.Errorf("query error: %v", err)
	}

	return fmt.Sprintf("%+v", cname), nil
}
