// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cmd implements the shell commands of the go-uefi application,
// exercising EFI Boot and Runtime Services through a [uefi.Services]
// instance.
package cmd

import (
	"errors"

	"github.com/usbarmory/go-uefi/uefi"
)

// UEFI represents the services instance used by commands.
var UEFI *uefi.Services

// Banner represents the shell welcome message.
var Banner string

func services() (*uefi.Services, error) {
	if UEFI == nil || UEFI.SystemTable == nil {
		return nil, errors.New("EFI services unavailable")
	}

	return UEFI, nil
}

func bootServices() (*uefi.BootServices, error) {
	s, err := services()

	if err != nil {
		return nil, err
	}

	if s.Phase() != uefi.Boot {
		return nil, uefi.ErrBootServicesExited
	}

	return s.Boot, nil
}
