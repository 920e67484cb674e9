// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// maximum number of configuration table entries accepted from firmware
const maxConfigurationTables = 1024

// ConfigurationTable represents an EFI Configuration Table entry.
type ConfigurationTable struct {
	GUID        GUID
	VendorTable uint64
}

// ConfigurationTables returns the EFI Configuration Table entries referenced
// by the EFI System Table.
//
// The EFI System Table persists after EFI_BOOT_SERVICES.ExitBootServices()
// therefore configuration tables remain readable in both phases.
func (s *Services) ConfigurationTables() (c []*ConfigurationTable, err error) {
	if s.SystemTable == nil {
		return nil, errors.New("EFI System Table is invalid")
	}

	d := s.SystemTable

	if d.NumberOfTableEntries == 0 {
		return
	}

	if d.ConfigurationTable == 0 || d.NumberOfTableEntries > maxConfigurationTables {
		return nil, corrupt("invalid configuration table (entries:%d address:%#x)", d.NumberOfTableEntries, d.ConfigurationTable)
	}

	entrySize := binary.Size(&ConfigurationTable{})
	buf := make([]byte, entrySize*int(d.NumberOfTableEntries))

	if err = s.fw.ReadMemory(d.ConfigurationTable, buf); err != nil {
		return
	}

	for i := 0; i < len(buf); i += entrySize {
		t := &ConfigurationTable{}

		if err = unmarshalBinary(buf[i:i+entrySize], t); err != nil {
			return
		}

		c = append(c, t)
	}

	return
}

// LocateConfiguration locates an EFI Configuration Table, absent tables are
// reported as NotFound.
func (s *Services) LocateConfiguration(guid GUID) (t *ConfigurationTable, err error) {
	var c []*ConfigurationTable

	if c, err = s.ConfigurationTables(); err != nil {
		return
	}

	for _, t := range c {
		if t.GUID == guid {
			return t, nil
		}
	}

	return nil, newError(fmt.Sprintf("LocateConfiguration, %s", guid.Name()), NotFound)
}
