// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"runtime"
)

// EFI Graphics Output Protocol offsets
const (
	blt = 0x10
)

type BltOperation int

// EFI_GRAPHICS_OUTPUT_BLT_OPERATION
const (
	EfiBltVideoFill = iota
	EfiBltVideoToBltBuffer
	EfiBltBufferToVideo
	EfiBltVideoToVideo
	EfiGraphicsOutputBltOperationMax
)

// ModeInformation represents an EFI Graphics Output Mode Information instance.
type ModeInformation struct {
	Version              uint32
	HorizontalResolution uint32
	VerticalResolution   uint32
	PixelFormat          uint32
	RedMask              uint32
	GreenMask            uint32
	BlueMask             uint32
	ReservedMask         uint32
	PixelsPerScanLine    uint32
}

// ProtocolMode represents an EFI Graphics Output Protocol Mode instance.
type ProtocolMode struct {
	MaxMode         uint32
	Mode            uint32
	Info            uint64
	SizeOfInfo      uint64
	FrameBufferBase uint64
	FrameBufferSize uint64
}

// GraphicsOutputProtocol represents the EFI_GRAPHICS_OUTPUT_PROTOCOL
// interface layout.
type GraphicsOutputProtocol struct {
	QueryMode uint64
	SetMode   uint64
	Blt       uint64
	Mode      uint64
}

// GraphicsOutput represents an EFI Graphics Output Protocol instance.
type GraphicsOutput struct {
	ref *ProtocolRef[GraphicsOutputProtocol]
}

// GetGraphicsOutput locates and returns the EFI Graphics Output Protocol
// instance.
func (s *BootServices) GetGraphicsOutput() (gop *GraphicsOutput, err error) {
	ref, err := LocateFirst[GraphicsOutputProtocol](s, EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID)

	if err != nil {
		return
	}

	return &GraphicsOutput{ref: ref}, nil
}

// GetMode returns the EFI Graphics Output Mode instance.
func (gop *GraphicsOutput) GetMode() (pm *ProtocolMode, err error) {
	p, err := gop.ref.Interface()

	if err != nil {
		return
	}

	pm = &ProtocolMode{}
	err = gop.ref.boot.lc.bootRead("GraphicsOutput", pm, p.Mode)

	return
}

// GetInfo returns the EFI Graphics Output Mode information instance.
func (gop *GraphicsOutput) GetInfo(pm *ProtocolMode) (m *ModeInformation, err error) {
	m = &ModeInformation{}
	err = gop.ref.boot.lc.bootRead("GraphicsOutput", m, pm.Info)
	return
}

// Blt calls EFI_GRAPHICS_OUTPUT_PROTOCOL.Blt().
func (gop *GraphicsOutput) Blt(buf []byte, op BltOperation, srcX, srcY, dstX, dstY, width, height, delta uint64) (err error) {
	var p uint64

	if len(buf) > 0 {
		p = ptrval(&buf[0])
	}

	err = gop.ref.Call(blt,
		p,
		uint64(op),
		srcX,
		srcY,
		dstX,
		dstY,
		width,
		height,
		delta,
	)
	runtime.KeepAlive(buf)

	return
}
