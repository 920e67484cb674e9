// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/efitest"
)

func assertCorrupt(t *testing.T, fw *efitest.Firmware, s *uefi.Services) {
	t.Helper()

	err := s.Init(fw, fw.ImageHandle(), fw.SystemTable())

	if !errors.Is(err, uefi.CorruptData) || !errors.Is(err, uefi.ErrCorruptTable) {
		t.Fatalf("expected corrupt data error, got %v", err)
	}

	if fw.Exited() || len(fw.Violations()) != 0 {
		t.Fatalf("firmware services invoked on corrupt tables (%v)", fw.Violations())
	}
}

func TestTableCorruption(t *testing.T) {
	for _, table := range []efitest.Table{
		efitest.SystemTable,
		efitest.BootServicesTable,
		efitest.RuntimeServicesTable,
	} {
		for name, patch := range map[string]struct {
			fn       func(*uefi.TableHeader)
			checksum bool
		}{
			"checksum": {
				fn:       func(h *uefi.TableHeader) { h.CRC32 ^= 0xffffffff },
				checksum: false,
			},
			"signature": {
				fn:       func(h *uefi.TableHeader) { h.Signature ^= 1 },
				checksum: true,
			},
			"size": {
				fn:       func(h *uefi.TableHeader) { h.HeaderSize = 0x18 },
				checksum: true,
			},
			"oversize": {
				fn:       func(h *uefi.TableHeader) { h.HeaderSize = 0x100000 },
				checksum: false,
			},
			"revision": {
				fn:       func(h *uefi.TableHeader) { h.Revision = uefi.EFI_1_10_SYSTEM_TABLE_REVISION },
				checksum: true,
			},
		} {
			t.Run(name, func(t *testing.T) {
				fw := efitest.New()
				fw.PatchHeader(table, patch.fn, patch.checksum)
				assertCorrupt(t, fw, &uefi.Services{})
			})
		}
	}
}

func TestTableTampering(t *testing.T) {
	fw := efitest.New()

	// overwrite the AllocatePages function pointer
	if err := fw.WriteMemory(fw.TableAddress(efitest.BootServicesTable)+0x28, make([]byte, 8)); err != nil {
		t.Fatal(err)
	}

	assertCorrupt(t, fw, &uefi.Services{})
}

func TestTableNull(t *testing.T) {
	fw := efitest.New()
	s := &uefi.Services{}

	err := s.Init(fw, fw.ImageHandle(), 0)

	if !errors.Is(err, uefi.CorruptData) {
		t.Fatalf("expected corrupt data error, got %v", err)
	}
}

func TestTableMinRevision(t *testing.T) {
	fw := efitest.New()

	assertCorrupt(t, fw, &uefi.Services{
		MinRevision: uefi.EFI_2_100_SYSTEM_TABLE_REVISION,
	})
}

func TestTableRevision(t *testing.T) {
	fw := efitest.New()

	// newer tables are accepted as long as they are consistent
	fw.PatchHeader(efitest.SystemTable, func(h *uefi.TableHeader) {
		h.Revision = uefi.EFI_2_100_SYSTEM_TABLE_REVISION
	}, true)

	s := &uefi.Services{}

	if err := s.Init(fw, fw.ImageHandle(), fw.SystemTable()); err != nil {
		t.Fatal(err)
	}

	if s.SystemTable.Header.Revision != uefi.EFI_2_100_SYSTEM_TABLE_REVISION {
		t.Fatalf("unexpected revision %#x", s.SystemTable.Header.Revision)
	}
}

func TestLoadSystemTable(t *testing.T) {
	fw := efitest.New()

	st, err := uefi.LoadSystemTable(fw, fw.SystemTable(), uefi.EFI_2_00_SYSTEM_TABLE_REVISION)

	if err != nil {
		t.Fatal(err)
	}

	if st.BootServices != fw.TableAddress(efitest.BootServicesTable) {
		t.Fatalf("unexpected boot services pointer %#x", st.BootServices)
	}

	if st.RuntimeServices != fw.TableAddress(efitest.RuntimeServicesTable) {
		t.Fatalf("unexpected runtime services pointer %#x", st.RuntimeServices)
	}

	if _, err = uefi.LoadSystemTable(fw, fw.TableAddress(efitest.BootServicesTable), 0); !errors.Is(err, uefi.CorruptData) {
		t.Fatalf("expected corrupt data error, got %v", err)
	}
}

// mutatingFirmware alters the system table BootServices pointer once the
// table has been read twice.
type mutatingFirmware struct {
	*efitest.Firmware

	reads int
}

func (f *mutatingFirmware) ReadMemory(addr uint64, buf []byte) (err error) {
	if err = f.Firmware.ReadMemory(addr, buf); err != nil {
		return
	}

	if addr != f.SystemTable() {
		return
	}

	if f.reads++; f.reads == 2 {
		err = f.WriteMemory(addr+96, make([]byte, 8))
	}

	return
}

func TestLoadSystemTableSnapshot(t *testing.T) {
	fw := &mutatingFirmware{Firmware: efitest.New()}

	st, err := uefi.LoadSystemTable(fw, fw.SystemTable(), uefi.EFI_2_00_SYSTEM_TABLE_REVISION)

	if err != nil {
		t.Fatal(err)
	}

	if fw.reads != 2 {
		t.Fatalf("unexpected system table reads %d", fw.reads)
	}

	if st.BootServices != fw.TableAddress(efitest.BootServicesTable) {
		t.Fatalf("decoded fields differ from validated table (%#x)", st.BootServices)
	}
}
