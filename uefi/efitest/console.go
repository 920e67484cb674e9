// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package efitest

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/usbarmory/go-uefi/uefi"
)

// EFI Simple Text Input/Output Protocol offsets
const (
	readKeyStroke = 0x08
	outputString  = 0x08
	clearScreen   = 0x30
)

// EFI Simple Text Input Ex Protocol offsets
const (
	resetEx         = 0x00
	readKeyStrokeEx = 0x08
	setState        = 0x18
)

// EFI Graphics Output Protocol offsets
const blt = 0x10

// Simulated loaded image properties
const (
	ImagePath   = `\EFI\BOOT\BOOTX64.EFI`
	LoadOptions = "console=ttyS0,115200"
)

// Simulated graphics output mode
const (
	HorizontalResolution = 800
	VerticalResolution   = 600
	FrameBufferBase      = 0xc000_0000
)

type console struct {
	in   uint64
	inEx uint64
	out  uint64

	output []rune
	keys   []uefi.KeyData
	toggle uint8
	resets int
	clears int
}

func (c *console) pop() (k uefi.KeyData, ok bool) {
	if len(c.keys) == 0 {
		return
	}

	k = c.keys[0]
	c.keys = c.keys[1:]

	return k, true
}

// encodeString converts a string to a null terminated UTF-16 little-endian
// buffer.
func encodeString(s string) (buf []byte) {
	for _, c := range utf16.Encode([]rune(s)) {
		buf = binary.LittleEndian.AppendUint16(buf, c)
	}

	return append(buf, 0x00, 0x00)
}

func decodeString(buf []byte) string {
	r := make([]uint16, 0, len(buf)/2)

	for i := 0; i+1 < len(buf); i += 2 {
		r = append(r, binary.LittleEndian.Uint16(buf[i:]))
	}

	return string(utf16.Decode(r))
}

func (f *Firmware) installConsole() {
	c := &console{}
	f.console = c

	inHandle := f.newHandle()
	outHandle := f.newHandle()

	c.in = f.installProtocol(inHandle, uefi.EFI_SIMPLE_TEXT_INPUT_PROTOCOL_GUID, [3]uint64{},
		map[uint64]Service{
			readKeyStroke: func(args []uint64) uint64 {
				if args[0] != c.in || args[1] == 0 {
					return errorStatus(uefi.EFI_INVALID_PARAMETER)
				}

				k, ok := c.pop()

				if !ok {
					return errorStatus(uefi.EFI_NOT_READY)
				}

				buf := goBytes(args[1], 4)
				binary.LittleEndian.PutUint16(buf[0:], k.Key.ScanCode)
				binary.LittleEndian.PutUint16(buf[2:], k.Key.UnicodeChar)

				return 0
			},
		},
	)

	c.inEx = f.installProtocol(inHandle, uefi.EFI_SIMPLE_TEXT_INPUT_EX_PROTOCOL_GUID, [6]uint64{},
		map[uint64]Service{
			resetEx: func(args []uint64) uint64 {
				if args[0] != c.inEx {
					return errorStatus(uefi.EFI_INVALID_PARAMETER)
				}

				c.keys = nil
				c.resets++

				return 0
			},
			readKeyStrokeEx: func(args []uint64) uint64 {
				if args[0] != c.inEx || args[1] == 0 {
					return errorStatus(uefi.EFI_INVALID_PARAMETER)
				}

				k, ok := c.pop()

				if !ok {
					return errorStatus(uefi.EFI_NOT_READY)
				}

				buf := goBytes(args[1], 12)
				binary.LittleEndian.PutUint16(buf[0:], k.Key.ScanCode)
				binary.LittleEndian.PutUint16(buf[2:], k.Key.UnicodeChar)
				binary.LittleEndian.PutUint32(buf[4:], k.KeyState.KeyShiftState)
				buf[8] = k.KeyState.KeyToggleState

				return 0
			},
			setState: func(args []uint64) uint64 {
				if args[0] != c.inEx || args[1] == 0 {
					return errorStatus(uefi.EFI_INVALID_PARAMETER)
				}

				state := goBytes(args[1], 1)[0]

				if state&uefi.EFI_TOGGLE_STATE_VALID == 0 {
					return errorStatus(uefi.EFI_UNSUPPORTED)
				}

				c.toggle = state

				return 0
			},
		},
	)

	c.out = f.installProtocol(outHandle, uefi.EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL_GUID, [10]uint64{},
		map[uint64]Service{
			outputString: func(args []uint64) uint64 {
				if args[0] != c.out || args[1] == 0 {
					return errorStatus(uefi.EFI_INVALID_PARAMETER)
				}

				c.output = append(c.output, []rune(decodeString(getString(args[1])))...)

				return 0
			},
			clearScreen: func(args []uint64) uint64 {
				if args[0] != c.out {
					return errorStatus(uefi.EFI_INVALID_PARAMETER)
				}

				c.clears++

				return 0
			},
		},
	)

	f.putTableField(consoleInHandle, inHandle)
	f.putTableField(conIn, c.in)
	f.putTableField(consoleOutHandle, outHandle)
	f.putTableField(conOut, c.out)
	f.putTableField(standardErrorHandle, outHandle)
	f.putTableField(stdErr, c.out)
}

// ConsoleOutput returns the text written to the console output.
func (f *Firmware) ConsoleOutput() string {
	f.Lock()
	defer f.Unlock()

	return string(f.console.output)
}

// ClearScreens returns the number of console screen clears.
func (f *Firmware) ClearScreens() int {
	f.Lock()
	defer f.Unlock()

	return f.console.clears
}

// TypeKeys queues keystrokes on the console input.
func (f *Firmware) TypeKeys(s string) {
	f.Lock()
	defer f.Unlock()

	for _, c := range utf16.Encode([]rune(s)) {
		f.console.keys = append(f.console.keys, uefi.KeyData{Key: uefi.InputKey{UnicodeChar: c}})
	}
}

// PressKeys queues raw keystrokes, along with their shift and toggle state,
// on the console input.
func (f *Firmware) PressKeys(keys ...uefi.KeyData) {
	f.Lock()
	defer f.Unlock()

	f.console.keys = append(f.console.keys, keys...)
}

// ToggleState returns the keyboard toggle state last set through the console
// input.
func (f *Firmware) ToggleState() uint8 {
	f.Lock()
	defer f.Unlock()

	return f.console.toggle
}

// InputResets returns the number of console input resets.
func (f *Firmware) InputResets() int {
	f.Lock()
	defer f.Unlock()

	return f.console.resets
}

func (f *Firmware) installLoadedImage() {
	deviceHandle := f.newHandle()

	devicePath := uefi.DevicePath{
		&uefi.DevicePathEntry{
			DevicePathNode: uefi.DevicePathNode{
				Type:    uefi.ACPIDevicePath,
				SubType: 0x01,
				Length:  12,
			},
			Data: []byte{0xd0, 0x41, 0x03, 0x0a, 0x00, 0x00, 0x00, 0x00},
		},
	}

	f.installProtocol(deviceHandle, uefi.EFI_DEVICE_PATH_PROTOCOL_GUID, devicePath.Bytes(), nil)

	filePath, _ := f.placeData(uefi.NewFilePath(ImagePath).Bytes())
	options, _ := f.placeData(encodeString(LoadOptions))

	f.installProtocol(f.imageHandle, uefi.EFI_LOADED_IMAGE_PROTOCOL_GUID,
		&uefi.LoadedImageProtocol{
			Revision:        uefi.EFI_LOADED_IMAGE_PROTOCOL_REVISION,
			SystemTable:     f.systemTable,
			DeviceHandle:    deviceHandle,
			FilePath:        filePath,
			LoadOptionsSize: uint32(len(encodeString(LoadOptions))),
			LoadOptions:     options,
			ImageBase:       RAMBase,
			ImageSize:       ImageSize,
			ImageCodeType:   uefi.EfiLoaderCode,
			ImageDataType:   uefi.EfiLoaderData,
		},
		nil,
	)
}

func (f *Firmware) installGraphics() {
	info, _ := f.placeData(&uefi.ModeInformation{
		HorizontalResolution: HorizontalResolution,
		VerticalResolution:   VerticalResolution,
		PixelFormat:          1,
		PixelsPerScanLine:    HorizontalResolution,
	})

	mode, _ := f.placeData(&uefi.ProtocolMode{
		MaxMode:         1,
		Info:            info,
		SizeOfInfo:      36,
		FrameBufferBase: FrameBufferBase,
		FrameBufferSize: HorizontalResolution * VerticalResolution * 4,
	})

	f.installProtocol(f.newHandle(), uefi.EFI_GRAPHICS_OUTPUT_PROTOCOL_GUID,
		&uefi.GraphicsOutputProtocol{
			Mode: mode,
		},
		map[uint64]Service{
			blt: func(args []uint64) uint64 {
				if args[2] >= uefi.EfiGraphicsOutputBltOperationMax {
					return errorStatus(uefi.EFI_INVALID_PARAMETER)
				}

				f.blts++

				return 0
			},
		},
	)
}

// Blts returns the number of EFI_GRAPHICS_OUTPUT_PROTOCOL.Blt() calls.
func (f *Firmware) Blts() int {
	f.Lock()
	defer f.Unlock()

	return f.blts
}
