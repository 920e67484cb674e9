// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
)

const globalVariable = "8be4df61-93ca-11d2-aa0d-00e098032b8c"

func TestParseGUID(t *testing.T) {
	g, err := uefi.ParseGUID(globalVariable)

	if err != nil {
		t.Fatal(err)
	}

	if g != uefi.EFI_GLOBAL_VARIABLE_GUID {
		t.Fatalf("unexpected GUID %v", g)
	}

	// native byte order
	if g[0] != 0x61 || g[3] != 0x8b || g[4] != 0xca || g[6] != 0xd2 || g[8] != 0xaa {
		t.Fatalf("unexpected GUID encoding %x", g[:])
	}

	if g.String() != globalVariable {
		t.Fatalf("unexpected GUID string %s", g)
	}

	b, err := uefi.ParseGUID("{" + globalVariable + "}")

	if err != nil {
		t.Fatal(err)
	}

	if b != g {
		t.Fatalf("unexpected GUID %v", b)
	}
}

func TestParseInvalidGUID(t *testing.T) {
	for _, s := range []string{
		"",
		"8be4df61-93ca-11d2-aa0d",
		"8be4df6193ca11d2aa0d00e098032b8c",
		"zbe4df61-93ca-11d2-aa0d-00e098032b8c",
		"8be4df61-93ca-11d2-aa0d-00e098032b8c0",
	} {
		_, err := uefi.ParseGUID(s)
		assertKind(t, err, uefi.InvalidParameter)
	}
}

func TestMakeGUID(t *testing.T) {
	g := uefi.MakeGUID(0x8be4df61, 0x93ca, 0x11d2, 0xaa0d, [6]byte{0x00, 0xe0, 0x98, 0x03, 0x2b, 0x8c})

	if g != uefi.EFI_GLOBAL_VARIABLE_GUID {
		t.Fatalf("unexpected GUID %v", g)
	}

	if uefi.NewGUID(g) != g {
		t.Fatal("unexpected native GUID conversion")
	}
}

func TestGUIDName(t *testing.T) {
	if n := uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID.Name(); n != "EFI_GRAPHICS_OUTPUT_PROTOCOL" {
		t.Fatalf("unexpected name %s", n)
	}

	g := uefi.MustParseGUID("00112233-4455-6677-8899-aabbccddeeff")

	if n := g.Name(); n != "00112233-4455-6677-8899-aabbccddeeff" {
		t.Fatalf("unexpected name %s", n)
	}

	if g.IsZero() || !(uefi.GUID{}).IsZero() {
		t.Fatal("unexpected zero GUID detection")
	}
}
