// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi_test

import (
	"bytes"
	"testing"

	"github.com/usbarmory/go-uefi/uefi"
	"github.com/usbarmory/go-uefi/uefi/efitest"
)

func TestLoadedImage(t *testing.T) {
	fw, s := newServices(t)

	image, err := s.Boot.LoadedImage(s.ImageHandle())

	if err != nil {
		t.Fatal(err)
	}

	if image.ImageBase != efitest.RAMBase || image.ImageSize != efitest.ImageSize {
		t.Fatalf("unexpected image %#x-%#x", image.ImageBase, image.ImageBase+image.ImageSize)
	}

	if image.SystemTable != fw.SystemTable() {
		t.Fatalf("unexpected system table %#x", image.SystemTable)
	}

	opts, err := image.Options()

	if err != nil {
		t.Fatal(err)
	}

	if opts != efitest.LoadOptions {
		t.Fatalf("unexpected load options %q", opts)
	}

	path, err := image.Path()

	if err != nil {
		t.Fatal(err)
	}

	if path.String() != efitest.ImagePath {
		t.Fatalf("unexpected image path %q", path)
	}

	addr, err := s.Boot.HandleProtocol(image.Device(), uefi.EFI_DEVICE_PATH_PROTOCOL_GUID)

	if err != nil {
		t.Fatal(err)
	}

	device, err := s.Boot.DevicePathAt(addr)

	if err != nil {
		t.Fatal(err)
	}

	if len(device) != 1 || device[0].Type != uefi.ACPIDevicePath || len(device[0].Data) != 8 {
		t.Fatalf("unexpected device path %s", device)
	}
}

func TestLoadedImageNotFound(t *testing.T) {
	fw, s := newServices(t)

	h := installTestProtocol(fw, 0)

	_, err := s.Boot.LoadedImage(handleOf(t, s, h))
	assertKind(t, err, uefi.NotFound)
}

func TestLoadedImageRevision(t *testing.T) {
	fw, s := newServices(t)

	h := installTestProtocol(fw, 0)

	fw.InstallProtocol(h, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID, &uefi.LoadedImageProtocol{
		Revision: 0x2000,
	}, nil)

	_, err := s.Boot.LoadedImage(handleOf(t, s, h))
	assertKind(t, err, uefi.IncompatibleVersion)
}

func TestDevicePath(t *testing.T) {
	fw, s := newServices(t)

	p := uefi.NewFilePath(`\EFI\Linux\vmlinuz`)
	p = append(uefi.DevicePath{
		&uefi.DevicePathEntry{
			DevicePathNode: uefi.DevicePathNode{
				Type:    uefi.MediaDevicePath,
				SubType: uefi.HardDriveSubType,
				Length:  8,
			},
			Data: []byte{1, 2, 3, 4},
		},
	}, p...)

	buf := p.Bytes()

	// end node
	if !bytes.HasSuffix(buf, []byte{0x7f, 0xff, 0x04, 0x00}) {
		t.Fatalf("missing end node %x", buf)
	}

	addr := fw.AddConfigurationTable(testProtocolGUID, buf)

	d, err := s.Boot.DevicePathAt(addr)

	if err != nil {
		t.Fatal(err)
	}

	if len(d) != 2 || !bytes.Equal(d[0].Data, []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected device path %s", d)
	}

	if str := d.String(); str != `Path(4,1,01020304)/\EFI\Linux\vmlinuz` {
		t.Fatalf("unexpected device path string %q", str)
	}
}

func TestDevicePathInvalid(t *testing.T) {
	fw, s := newServices(t)

	// invalid node length
	addr := fw.AddConfigurationTable(testProtocolGUID, []byte{0x04, 0x04, 0x02, 0x00, 0x7f, 0xff, 0x04, 0x00})

	_, err := s.Boot.DevicePathAt(addr)
	assertKind(t, err, uefi.BadBufferSize)

	// unterminated path
	var p uefi.DevicePath

	for range 32 {
		p = append(p, &uefi.DevicePathEntry{
			DevicePathNode: uefi.DevicePathNode{
				Type:    uefi.HardwareDevicePath,
				SubType: 0x01,
				Length:  4,
			},
		})
	}

	addr = fw.AddConfigurationTable(testProtocolGUID, p.Bytes())

	_, err = s.Boot.DevicePathAt(addr)
	assertKind(t, err, uefi.BadBufferSize)
}
