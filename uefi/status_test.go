// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
)

func TestFromStatus(t *testing.T) {
	w, err := uefi.FromStatus(uefi.EFI_SUCCESS)

	if w != 0 || err != nil {
		t.Fatalf("unexpected success classification (%v, %v)", w, err)
	}

	w, err = uefi.FromStatus(uefi.EFI_WARN_STALE_DATA)

	if err != nil {
		t.Fatal(err)
	}

	if w != uefi.EFI_WARN_STALE_DATA || w.String() != "stale data" {
		t.Fatalf("unexpected warning %v", w)
	}

	for code, kind := range map[uint64]uefi.Kind{
		uefi.EFI_INVALID_PARAMETER:    uefi.InvalidParameter,
		uefi.EFI_UNSUPPORTED:          uefi.Unsupported,
		uefi.EFI_BUFFER_TOO_SMALL:     uefi.BufferTooSmall,
		uefi.EFI_NOT_READY:            uefi.NotReady,
		uefi.EFI_DEVICE_ERROR:         uefi.DeviceError,
		uefi.EFI_OUT_OF_RESOURCES:     uefi.OutOfResources,
		uefi.EFI_NOT_FOUND:            uefi.NotFound,
		uefi.EFI_ACCESS_DENIED:        uefi.AccessDenied,
		uefi.EFI_TIMEOUT:              uefi.Timeout,
		uefi.EFI_ALREADY_STARTED:      uefi.AlreadyExists,
		uefi.EFI_INCOMPATIBLE_VERSION: uefi.IncompatibleVersion,
		uefi.EFI_SECURITY_VIOLATION:   uefi.SecurityViolation,
		uefi.EFI_END_OF_FILE:          uefi.EndOfFile,
		uefi.EFI_HTTP_ERROR:           uefi.HTTPError,
	} {
		status := uefi.ErrorStatus(code)

		if _, err = uefi.FromStatus(status); !errors.Is(err, kind) {
			t.Errorf("status %#x, got %v, expected %v", uint64(status), err, kind)
		}

		var e *uefi.Error

		if !errors.As(err, &e) || e.Status != status {
			t.Errorf("status %#x not preserved (%v)", uint64(status), err)
		}
	}
}

func TestFromStatusUnknown(t *testing.T) {
	status := uefi.ErrorStatus(0x1234)

	_, err := uefi.FromStatus(status)

	if uefi.KindOf(err) != uefi.Unknown {
		t.Fatalf("expected unknown kind, got %v", err)
	}

	var e *uefi.Error

	if !errors.As(err, &e) || e.Status != status {
		t.Fatalf("raw status not preserved (%v)", err)
	}
}

func TestStatus32(t *testing.T) {
	if s := uefi.Status32(0x8000000e); s != uefi.ErrorStatus(uefi.EFI_NOT_FOUND) {
		t.Fatalf("unexpected status %#x", uint64(s))
	}

	if s := uefi.Status32(uefi.EFI_WARN_UNKNOWN_GLYPH); !s.IsWarning() || s.IsError() {
		t.Fatalf("unexpected status %#x", uint64(s))
	}
}

func TestKindOf(t *testing.T) {
	if k := uefi.KindOf(nil); k != uefi.Unknown {
		t.Fatalf("unexpected kind %v", k)
	}

	if k := uefi.KindOf(errors.New("foreign")); k != uefi.Unknown {
		t.Fatalf("unexpected kind %v", k)
	}

	_, err := uefi.FromStatus(uefi.ErrorStatus(uefi.EFI_NOT_FOUND))
	err = fmt.Errorf("lookup, %w", err)

	if k := uefi.KindOf(err); k != uefi.NotFound {
		t.Fatalf("unexpected kind %v", k)
	}

	if k := uefi.KindOf(uefi.ErrBootServicesExited); k != uefi.Unsupported {
		t.Fatalf("unexpected kind %v", k)
	}

	if k := uefi.KindOf(uefi.ErrCorruptTable); k != uefi.CorruptData {
		t.Fatalf("unexpected kind %v", k)
	}
}

func TestErrorString(t *testing.T) {
	_, err := uefi.FromStatus(uefi.ErrorStatus(uefi.EFI_NOT_FOUND))
	err.(*uefi.Error).Op = "LocateProtocol"

	if s := err.Error(); s != "LocateProtocol: not found (EFI_STATUS 0x800000000000000e)" {
		t.Fatalf("unexpected error string %q", s)
	}

	if s := uefi.ErrBootServicesExited.Error(); s != "boot services exited: unsupported" {
		t.Fatalf("unexpected error string %q", s)
	}
}
