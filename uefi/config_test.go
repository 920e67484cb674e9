// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"encoding/binary"
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/efitest"
)

func snpBlob(version uint16) []byte {
	buf := make([]byte, 40)

	binary.LittleEndian.PutUint32(buf[0:], 0x45444d41)
	binary.LittleEndian.PutUint16(buf[4:], version)
	binary.LittleEndian.PutUint64(buf[8:], 0x1000)
	binary.LittleEndian.PutUint32(buf[16:], 0x1000)
	binary.LittleEndian.PutUint64(buf[24:], 0x2000)
	binary.LittleEndian.PutUint32(buf[32:], 0x1000)

	return buf
}

func TestConfigurationTables(t *testing.T) {
	fw := efitest.New()

	acpi := fw.AddConfigurationTable(uefi.EFI_ACPI_20_TABLE_GUID, []byte("RSD PTR "))
	smbios := fw.AddConfigurationTable(uefi.SMBIOS3_TABLE_GUID, []byte("_SM3_"))

	s := initServices(t, fw)

	c, err := s.ConfigurationTables()

	if err != nil {
		t.Fatal(err)
	}

	if len(c) != 2 || c[0].VendorTable != acpi || c[1].VendorTable != smbios {
		t.Fatalf("unexpected configuration tables %+v", c)
	}

	ct, err := s.LocateConfiguration(uefi.SMBIOS3_TABLE_GUID)

	if err != nil {
		t.Fatal(err)
	}

	if ct.VendorTable != smbios {
		t.Fatalf("unexpected vendor table %#x", ct.VendorTable)
	}

	_, err = s.LocateConfiguration(uefi.SMBIOS_TABLE_GUID)
	assertKind(t, err, uefi.NotFound)

	// the EFI System Table outlives boot services
	exitBootServices(t, s)

	if _, err = s.LocateConfiguration(uefi.EFI_ACPI_20_TABLE_GUID); err != nil {
		t.Fatal(err)
	}
}

func TestConfigurationTablesEmpty(t *testing.T) {
	_, s := newServices(t)

	c, err := s.ConfigurationTables()

	if err != nil || len(c) != 0 {
		t.Fatalf("unexpected configuration tables (%v, %v)", c, err)
	}

	_, err = s.LocateConfiguration(uefi.EFI_ACPI_20_TABLE_GUID)
	assertKind(t, err, uefi.NotFound)
}

func TestSNPConfiguration(t *testing.T) {
	fw := efitest.New()
	fw.AddConfigurationTable(uefi.EFI_SEV_SNP_CC_BLOB_GUID, snpBlob(2))

	s := initServices(t, fw)

	snp, err := s.GetSNPConfiguration()

	if err != nil {
		t.Fatal(err)
	}

	if snp.SecretsPagePhysicalAddress != 0x1000 || snp.CPUIDPagePhysicalAddress != 0x2000 || snp.CPUIDPageSize != 0x1000 {
		t.Fatalf("unexpected SNP configuration %+v", snp)
	}
}

func TestSNPConfigurationInvalid(t *testing.T) {
	fw := efitest.New()
	fw.AddConfigurationTable(uefi.EFI_SEV_SNP_CC_BLOB_GUID, snpBlob(1))

	s := initServices(t, fw)

	_, err := s.GetSNPConfiguration()
	assertKind(t, err, uefi.CorruptData)

	_, s = newServices(t)

	_, err = s.GetSNPConfiguration()
	assertKind(t, err, uefi.NotFound)
}
