// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

// Protocol GUIDs
var (
	EFI_LOADED_IMAGE_PROTOCOL_GUID         = MustParseGUID("5b1b31a1-9562-11d2-8e3f-00a0c969723b")
	EFI_DEVICE_PATH_PROTOCOL_GUID          = MustParseGUID("09576e91-6d3f-11d2-8e39-00a0c969723b")
	EFI_SIMPLE_TEXT_INPUT_PROTOCOL_GUID    = MustParseGUID("387477c1-69c7-11d2-8e39-00a0c969723b")
	EFI_SIMPLE_TEXT_INPUT_EX_PROTOCOL_GUID = MustParseGUID("dd9e7534-7762-4698-8c14-f58517a625aa")
	EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL_GUID   = MustParseGUID("387477c2-69c7-11d2-8e39-00a0c969723b")
	EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID      = MustParseGUID("9042a9de-23dc-4a38-96fb-7aded080516a")
	EFI_BLOCK_IO_PROTOCOL_GUID             = MustParseGUID("964e5b21-6459-11d2-8e39-00a0c969723b")
	EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_GUID   = MustParseGUID("964e5b22-6459-11d2-8e39-00a0c969723b")
	EFI_SIMPLE_NETWORK_PROTOCOL_GUID       = MustParseGUID("a19832b9-ac25-11d3-9a2d-0090273fc14d")
	EFI_TCG_PROTOCOL_GUID                  = MustParseGUID("f541796d-a62e-4954-a775-9584f61b9cdd")
)

// Configuration Table GUIDs
var (
	EFI_ACPI_TABLE_GUID      = MustParseGUID("eb9d2d30-2d88-11d3-9a16-0090273fc14d")
	EFI_ACPI_20_TABLE_GUID   = MustParseGUID("8868e871-e4f1-11d3-bc22-0080c73c8881")
	SMBIOS_TABLE_GUID        = MustParseGUID("eb9d2d31-2d88-11d3-9a16-0090273fc14d")
	SMBIOS3_TABLE_GUID       = MustParseGUID("f2fd1544-9794-4a2c-992e-e5bbcf20e394")
	EFI_SEV_SNP_CC_BLOB_GUID = MustParseGUID("067b1f5f-cf26-44c5-8554-93d777912d42")
)

// Variable GUIDs
var (
	EFI_GLOBAL_VARIABLE_GUID = MustParseGUID("8be4df61-93ca-11d2-aa0d-00e098032b8c")
)

var guidNames = map[GUID]string{
	EFI_LOADED_IMAGE_PROTOCOL_GUID:         "EFI_LOADED_IMAGE_PROTOCOL",
	EFI_DEVICE_PATH_PROTOCOL_GUID:          "EFI_DEVICE_PATH_PROTOCOL",
	EFI_SIMPLE_TEXT_INPUT_PROTOCOL_GUID:    "EFI_SIMPLE_TEXT_INPUT_PROTOCOL",
	EFI_SIMPLE_TEXT_INPUT_EX_PROTOCOL_GUID: "EFI_SIMPLE_TEXT_INPUT_EX_PROTOCOL",
	EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL_GUID:   "EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL",
	EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID:      "EFI_GRAPHICS_OUTPUT_PROTOCOL",
	EFI_BLOCK_IO_PROTOCOL_GUID:             "EFI_BLOCK_IO_PROTOCOL",
	EFI_SIMPLE_FILE_SYSTEM_PROTOCOL_GUID:   "EFI_SIMPLE_FILE_SYSTEM_PROTOCOL",
	EFI_SIMPLE_NETWORK_PROTOCOL_GUID:       "EFI_SIMPLE_NETWORK_PROTOCOL",
	EFI_TCG_PROTOCOL_GUID:                  "EFI_TCG_PROTOCOL",
	EFI_ACPI_TABLE_GUID:                    "ACPI_TABLE",
	EFI_ACPI_20_TABLE_GUID:                 "ACPI_20_TABLE",
	SMBIOS_TABLE_GUID:                      "SMBIOS_TABLE",
	SMBIOS3_TABLE_GUID:                     "SMBIOS3_TABLE",
	EFI_SEV_SNP_CC_BLOB_GUID:               "SEV_SNP_CC_BLOB",
	EFI_GLOBAL_VARIABLE_GUID:               "EFI_GLOBAL_VARIABLE",
}
