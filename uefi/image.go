// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"fmt"
)

const (
	EFI_LOADED_IMAGE_PROTOCOL_REVISION = 0x00001000

	// upper bound for image load options
	maxLoadOptionsSize = 4096
)

// LoadedImageProtocol represents the EFI_LOADED_IMAGE_PROTOCOL interface
// layout.
type LoadedImageProtocol struct {
	Revision        uint32
	_               uint32
	ParentHandle    uint64
	SystemTable     uint64
	DeviceHandle    uint64
	FilePath        uint64
	_               uint64
	LoadOptionsSize uint32
	_               uint32
	LoadOptions     uint64
	ImageBase       uint64
	ImageSize       uint64
	ImageCodeType   uint32
	ImageDataType   uint32
	Unload          uint64
}

// LoadedImage represents the EFI Loaded Image Protocol instance of an image.
type LoadedImage struct {
	LoadedImageProtocol

	ref *ProtocolRef[LoadedImageProtocol]
}

// LoadedImage returns the EFI Loaded Image Protocol instance installed on the
// argument image handle.
func (s *BootServices) LoadedImage(imageHandle Handle) (image *LoadedImage, err error) {
	ref, err := Locate[LoadedImageProtocol](s, imageHandle, EFI_LOADED_IMAGE_PROTOCOL_GUID)

	if err != nil {
		return
	}

	p, err := ref.Interface()

	if err != nil {
		return
	}

	if p.Revision != EFI_LOADED_IMAGE_PROTOCOL_REVISION {
		return nil, newError(fmt.Sprintf("LoadedImage, invalid protocol revision %#x", p.Revision), IncompatibleVersion)
	}

	return &LoadedImage{
		LoadedImageProtocol: *p,
		ref:                 ref,
	}, nil
}

// Device returns the handle of the device the image was loaded from.
func (image *LoadedImage) Device() Handle {
	return newHandle(image.DeviceHandle)
}

// Options returns the image load options as a string.
func (image *LoadedImage) Options() (opts string, err error) {
	if image.LoadOptions == 0 || image.LoadOptionsSize == 0 {
		return
	}

	buf := make([]byte, min(image.LoadOptionsSize, maxLoadOptionsSize))

	if err = image.ref.boot.lc.bootRead("LoadedImage", buf, image.LoadOptions); err != nil {
		return
	}

	return fromUTF16(buf), nil
}

// Path returns the image file path, relative to its device.
func (image *LoadedImage) Path() (path DevicePath, err error) {
	return image.ref.boot.DevicePathAt(image.FilePath)
}
