// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

const snpSignature = 0x45444d41

// SNPConfigurationTable represents an EFI SNP Confidential Computing Blob
// Configuration Table (AMD SEV-ES Guest-Hypervisor Communication Block
// Standardization).
type SNPConfigurationTable struct {
	Header                     uint32
	Version                    uint16
	_                          uint16
	SecretsPagePhysicalAddress uint64
	SecretsPageSize            uint32
	_                          uint32
	CPUIDPagePhysicalAddress   uint64
	CPUIDPageSize              uint32
	_                          uint32
}

// GetSNPConfiguration returns the EFI SNP Confidential Computing Blob
// Configuration Table, an invalid blob is reported as CorruptData.
func (s *Services) GetSNPConfiguration() (snp *SNPConfigurationTable, err error) {
	var t *ConfigurationTable

	if t, err = s.LocateConfiguration(EFI_SEV_SNP_CC_BLOB_GUID); err != nil {
		return
	}

	snp = &SNPConfigurationTable{}

	if err = decode(s.fw, snp, t.VendorTable); err != nil {
		return nil, err
	}

	if snp.Header != snpSignature || snp.Version < 2 {
		return snp, corrupt("invalid SNP configuration table (header:%#x version:%d)", snp.Header, snp.Version)
	}

	return
}
