// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"encoding/binary"
	"errors"
	"runtime"
	"strings"
	"testing"
	"unsafe"

	"github.com/go-logr/logr/funcr"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/efitest"
)

var testProtocolGUID = uefi.MustParseGUID("c0ffee00-1234-5678-9abc-def012345678")

type testProtocol struct {
	Revision uint64
	Get      uint64
}

const testGet = 0x08

// installTestProtocol installs a protocol whose Get member stores value at
// its pointer argument.
func installTestProtocol(fw *efitest.Firmware, value uint64) (handle uint64) {
	handle = fw.NewHandle()

	fw.InstallProtocol(handle, testProtocolGUID, &testProtocol{Revision: 1},
		map[uint64]efitest.Service{
			testGet: func(args []uint64) uint64 {
				if args[1] == 0 {
					return uint64(uefi.ErrorStatus(uefi.EFI_INVALID_PARAMETER))
				}

				binary.LittleEndian.PutUint64(efitest.Buffer(args[1], 8), value)

				return uefi.EFI_SUCCESS
			},
		},
	)

	return
}

func callGet(t *testing.T, ref *uefi.ProtocolRef[testProtocol]) (uint64, error) {
	t.Helper()

	v := new(uint64)
	err := ref.Call(testGet, addressOf(v))
	runtime.KeepAlive(v)

	return *v, err
}

func TestLocateProtocol(t *testing.T) {
	fw, s := newServices(t)
	h := installTestProtocol(fw, 42)

	addr, err := s.Boot.LocateProtocol(testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	if addr == 0 {
		t.Fatal("null protocol interface")
	}

	handleAddr, err := s.Boot.HandleProtocol(uefi.Handle{}, testProtocolGUID)
	assertKind(t, err, uefi.InvalidParameter)

	if handleAddr != 0 {
		t.Fatal("unexpected interface for null handle")
	}

	ref, err := uefi.Locate[testProtocol](s.Boot, handleOf(t, s, h), testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	if a, _ := ref.Address(); a != addr {
		t.Fatalf("interface mismatch %#x != %#x", a, addr)
	}
}

func TestLocateProtocolNotFound(t *testing.T) {
	_, s := newServices(t)

	_, err := s.Boot.LocateProtocol(testProtocolGUID)
	assertKind(t, err, uefi.NotFound)

	if errors.Is(err, uefi.ErrBootServicesExited) {
		t.Fatal("unexpected lifecycle error")
	}

	_, err = uefi.LocateFirst[testProtocol](s.Boot, testProtocolGUID)
	assertKind(t, err, uefi.NotFound)

	// protocols absent from a handle are not reported as Unsupported
	_, err = uefi.Locate[testProtocol](s.Boot, s.ImageHandle(), testProtocolGUID)
	assertKind(t, err, uefi.NotFound)

	if errors.Is(err, uefi.Unsupported) {
		t.Fatalf("unexpected unsupported error, %v", err)
	}
}

func TestLocateProtocolInvalid(t *testing.T) {
	_, s := newServices(t)

	_, err := s.Boot.LocateProtocol(uefi.GUID{})
	assertKind(t, err, uefi.InvalidParameter)

	_, err = s.Boot.LocateHandles(uefi.GUID{})
	assertKind(t, err, uefi.InvalidParameter)

	_, err = s.Boot.LocateProtocolString("invalid")
	assertKind(t, err, uefi.InvalidParameter)

	// protocol layouts must have a fixed size
	_, err = uefi.LocateFirst[struct{ Data []byte }](s.Boot, uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID)
	assertKind(t, err, uefi.InvalidParameter)
}

func TestProtocolRef(t *testing.T) {
	fw, s := newServices(t)
	installTestProtocol(fw, 0xcafe)

	ref, err := uefi.LocateFirst[testProtocol](s.Boot, testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	if ref.GUID() != testProtocolGUID || ref.Phase() != uefi.Boot || !ref.Valid() {
		t.Fatal("unexpected protocol reference state")
	}

	p, err := ref.Interface()

	if err != nil {
		t.Fatal(err)
	}

	if p.Revision != 1 || p.Get == 0 {
		t.Fatalf("unexpected interface %+v", p)
	}

	v, err := callGet(t, ref)

	if err != nil {
		t.Fatal(err)
	}

	if v != 0xcafe {
		t.Fatalf("unexpected value %#x", v)
	}

	// firmware errors are classified
	err = ref.Call(testGet, 0)
	assertKind(t, err, uefi.InvalidParameter)
}

func TestLocateHandles(t *testing.T) {
	fw, s := newServices(t)

	installTestProtocol(fw, 1)
	installTestProtocol(fw, 2)

	handles, err := s.Boot.LocateHandles(testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	if len(handles) != 2 {
		t.Fatalf("unexpected handles %v", handles)
	}

	// the firmware handle buffer is released
	if _, pool := fw.Allocations(); pool != 0 {
		t.Fatalf("leaked %d pool allocations", pool)
	}

	_, err = s.Boot.LocateHandles(uefi.EFI_SIMPLE_NETWORK_PROTOCOL_GUID)
	assertKind(t, err, uefi.NotFound)
}

// poolLeakFirmware fails every EFI_BOOT_SERVICES.FreePool() call.
type poolLeakFirmware struct {
	*efitest.Firmware

	frees int
}

func (f *poolLeakFirmware) CallService(fn uint64, args []uint64) uint64 {
	if fn == f.TableAddress(efitest.BootServicesTable)+0x48 {
		f.frees++
		return uint64(uefi.ErrorStatus(uefi.EFI_INVALID_PARAMETER))
	}

	return f.Firmware.CallService(fn, args)
}

func TestLocateHandlesFreeError(t *testing.T) {
	var logged []string

	fw := &poolLeakFirmware{Firmware: efitest.New()}
	installTestProtocol(fw.Firmware, 1)

	s := &uefi.Services{
		Log: funcr.New(func(_, args string) {
			logged = append(logged, args)
		}, funcr.Options{}),
	}

	if err := s.Init(fw, fw.ImageHandle(), fw.SystemTable()); err != nil {
		t.Fatal(err)
	}

	// a buffer release failure does not discard the located handles
	handles, err := s.Boot.LocateHandles(testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	if len(handles) != 1 || fw.frees != 1 {
		t.Fatalf("unexpected handles %v (frees:%d)", handles, fw.frees)
	}

	if !strings.Contains(strings.Join(logged, "\n"), "could not release handle buffer") {
		t.Fatalf("buffer release failure not logged\n%s", strings.Join(logged, "\n"))
	}
}

func TestLocateAll(t *testing.T) {
	fw, s := newServices(t)

	installTestProtocol(fw, 1)
	removed := installTestProtocol(fw, 2)
	installTestProtocol(fw, 3)

	p, err := uefi.LocateAll[testProtocol](s.Boot, testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	if p.Len() != 3 {
		t.Fatalf("unexpected snapshot length %d", p.Len())
	}

	// uninstalled after the snapshot
	fw.UninstallProtocol(removed, testProtocolGUID)

	var values []uint64

	for p.Next() {
		if p.Handle().Address() == removed {
			t.Fatal("uninstalled protocol enumerated")
		}

		v, err := callGet(t, p.Ref())

		if err != nil {
			t.Fatal(err)
		}

		values = append(values, v)
	}

	if err = p.Err(); err != nil {
		t.Fatal(err)
	}

	if len(values) != 2 || values[0] != 1 || values[1] != 3 {
		t.Fatalf("unexpected enumeration %v", values)
	}

	// single use
	if p.Next() || p.Len() != 0 || p.Ref() != nil {
		t.Fatal("enumeration restarted")
	}
}

func TestLocateAllIterator(t *testing.T) {
	fw, s := newServices(t)

	for i := range 4 {
		installTestProtocol(fw, uint64(i))
	}

	p, err := uefi.LocateAll[testProtocol](s.Boot, testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	n := 0

	for h, ref := range p.All() {
		if h.IsNull() || ref.Handle() != h {
			t.Fatalf("unexpected handle %v", h)
		}

		if n++; n == 2 {
			break
		}
	}

	if n != 2 || p.Len() != 2 {
		t.Fatalf("unexpected iteration state (%d, %d)", n, p.Len())
	}
}

func TestLocateAllEmpty(t *testing.T) {
	_, s := newServices(t)

	p, err := uefi.LocateAll[testProtocol](s.Boot, testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	if p.Len() != 0 || p.Next() {
		t.Fatal("unexpected enumeration entries")
	}
}

func TestProtocolRefAfterExit(t *testing.T) {
	fw, s := newServices(t)
	installTestProtocol(fw, 1)

	ref, err := uefi.LocateFirst[testProtocol](s.Boot, testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	p, err := uefi.LocateAll[testProtocol](s.Boot, testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	exitBootServices(t, s)

	if ref.Valid() {
		t.Fatal("protocol reference still valid")
	}

	_, err = ref.Address()
	assertKind(t, err, uefi.Unsupported)

	_, err = ref.Interface()
	assertKind(t, err, uefi.Unsupported)

	_, err = callGet(t, ref)

	if !errors.Is(err, uefi.ErrBootServicesExited) {
		t.Fatalf("expected boot services exited error, got %v", err)
	}

	if p.Next() {
		t.Fatal("enumeration advanced after exit")
	}

	assertKind(t, p.Err(), uefi.Unsupported)

	if v := fw.Violations(); len(v) != 0 {
		t.Fatalf("firmware contract violations: %v", v)
	}
}

// pinned keeps service arguments on the heap
var pinned []*uint64

func addressOf(p *uint64) uint64 {
	pinned = append(pinned, p)
	return uint64(uintptr(unsafe.Pointer(p)))
}

// handleOf returns the Handle instance for a simulated handle value.
func handleOf(t *testing.T, s *uefi.Services, h uint64) uefi.Handle {
	t.Helper()

	handles, err := s.Boot.LocateHandles(testProtocolGUID)

	if err != nil {
		t.Fatal(err)
	}

	for _, handle := range handles {
		if handle.Address() == h {
			return handle
		}
	}

	t.Fatalf("handle %#x not found", h)

	return uefi.Handle{}
}
