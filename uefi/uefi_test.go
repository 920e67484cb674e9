// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"testing"

	"github.com/go-logr/logr/testr"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/efitest"
)

func initServices(t *testing.T, fw *efitest.Firmware) *uefi.Services {
	t.Helper()

	s := &uefi.Services{
		Log: testr.New(t),
	}

	if err := s.Init(fw, fw.ImageHandle(), fw.SystemTable()); err != nil {
		t.Fatal(err)
	}

	return s
}

func newServices(t *testing.T) (*efitest.Firmware, *uefi.Services) {
	t.Helper()

	fw := efitest.New()

	return fw, initServices(t, fw)
}

func exitBootServices(t *testing.T, s *uefi.Services) *uefi.RuntimeServices {
	t.Helper()

	rt, err := s.ExitBootServices()

	if err != nil {
		t.Fatal(err)
	}

	return rt
}

func assertKind(t *testing.T, err error, kind uefi.Kind) {
	t.Helper()

	if !errors.Is(err, kind) {
		t.Fatalf("expected %v error, got %v", kind, err)
	}
}

func TestInit(t *testing.T) {
	fw, s := newServices(t)

	if s.Phase() != uefi.Boot {
		t.Fatalf("unexpected phase %v", s.Phase())
	}

	if s.ImageHandle().Address() != fw.ImageHandle() {
		t.Fatalf("unexpected image handle %v", s.ImageHandle())
	}

	if s.Address() != fw.SystemTable() {
		t.Fatalf("unexpected system table %#x", s.Address())
	}

	if s.ExitRetries != uefi.DefaultExitRetries {
		t.Fatalf("unexpected exit retries %d", s.ExitRetries)
	}

	if rev := uefi.RevisionString(s.SystemTable.Header.Revision); rev != "2.7" {
		t.Fatalf("unexpected revision %s", rev)
	}

	vendor, err := s.FirmwareVendor()

	if err != nil {
		t.Fatal(err)
	}

	if vendor != efitest.Vendor {
		t.Fatalf("unexpected vendor %q", vendor)
	}

	if s.SystemTable.ConsoleOut().IsNull() || s.SystemTable.ConsoleIn().IsNull() {
		t.Fatal("null console handles")
	}
}

func TestInitInvalidFirmware(t *testing.T) {
	s := &uefi.Services{}

	if err := s.Init(nil, 0, 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestRevisionString(t *testing.T) {
	for rev, s := range map[uint32]string{
		uefi.EFI_1_10_SYSTEM_TABLE_REVISION:  "1.1",
		uefi.EFI_2_00_SYSTEM_TABLE_REVISION:  "2.0",
		uefi.EFI_2_10_SYSTEM_TABLE_REVISION:  "2.1",
		uefi.EFI_2_70_SYSTEM_TABLE_REVISION:  "2.7",
		uefi.EFI_2_100_SYSTEM_TABLE_REVISION: "2.10",
		2<<16 | 31:                           "2.3.1",
	} {
		if got := uefi.RevisionString(rev); got != s {
			t.Errorf("revision %#x, got %s, expected %s", rev, got, s)
		}
	}
}
