// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"runtime"
)

// EFI Simple Text Input Ex Protocol offsets
const (
	resetEx         = 0x00
	readKeyStrokeEx = 0x08
	setState        = 0x18
)

// EFI_KEY_STATE shift states
const (
	EFI_RIGHT_SHIFT_PRESSED   = 0x00000001
	EFI_LEFT_SHIFT_PRESSED    = 0x00000002
	EFI_RIGHT_CONTROL_PRESSED = 0x00000004
	EFI_LEFT_CONTROL_PRESSED  = 0x00000008
	EFI_RIGHT_ALT_PRESSED     = 0x00000010
	EFI_LEFT_ALT_PRESSED      = 0x00000020
	EFI_RIGHT_LOGO_PRESSED    = 0x00000040
	EFI_LEFT_LOGO_PRESSED     = 0x00000080
	EFI_MENU_KEY_PRESSED      = 0x00000100
	EFI_SYS_REQ_PRESSED       = 0x00000200
	EFI_SHIFT_STATE_VALID     = 0x80000000
)

// EFI_KEY_TOGGLE_STATE
const (
	EFI_SCROLL_LOCK_ACTIVE = 0x01
	EFI_NUM_LOCK_ACTIVE    = 0x02
	EFI_CAPS_LOCK_ACTIVE   = 0x04
	EFI_KEY_STATE_EXPOSED  = 0x40
	EFI_TOGGLE_STATE_VALID = 0x80
)

// KeyState represents an EFI Key State descriptor.
type KeyState struct {
	KeyShiftState  uint32
	KeyToggleState uint8
	_              [3]byte
}

// Shift returns the shift state, zero when the firmware does not report it.
func (k KeyState) Shift() uint32 {
	if k.KeyShiftState&EFI_SHIFT_STATE_VALID == 0 {
		return 0
	}

	return k.KeyShiftState &^ EFI_SHIFT_STATE_VALID
}

// Toggle returns the toggle state, zero when the firmware does not report
// it.
func (k KeyState) Toggle() uint8 {
	if k.KeyToggleState&EFI_TOGGLE_STATE_VALID == 0 {
		return 0
	}

	return k.KeyToggleState &^ EFI_TOGGLE_STATE_VALID
}

// KeyData represents an EFI Key Data descriptor.
type KeyData struct {
	Key      InputKey
	KeyState KeyState
}

// SimpleTextInputExProtocol represents the EFI_SIMPLE_TEXT_INPUT_EX_PROTOCOL
// interface layout.
type SimpleTextInputExProtocol struct {
	Reset               uint64
	ReadKeyStrokeEx     uint64
	WaitForKeyEx        uint64
	SetState            uint64
	RegisterKeyNotify   uint64
	UnregisterKeyNotify uint64
}

// InputEx represents an EFI Simple Text Input Ex Protocol instance, which
// reports keystrokes along with the keyboard shift and toggle state.
type InputEx struct {
	ref *ProtocolRef[SimpleTextInputExProtocol]
}

// GetInputEx returns the EFI Simple Text Input Ex Protocol instance of the
// active console input device.
func (s *Services) GetInputEx() (in *InputEx, err error) {
	if s.Boot == nil || s.SystemTable == nil {
		return nil, newError("GetInputEx, EFI Boot Services unavailable", NotStarted)
	}

	ref, err := Locate[SimpleTextInputExProtocol](s.Boot, s.SystemTable.ConsoleIn(), EFI_SIMPLE_TEXT_INPUT_EX_PROTOCOL_GUID)

	if err != nil {
		return
	}

	return &InputEx{ref: ref}, nil
}

// Reset calls EFI_SIMPLE_TEXT_INPUT_EX_PROTOCOL.Reset().
func (in *InputEx) Reset(extended bool) (err error) {
	var ext uint64

	if extended {
		ext = 1
	}

	return in.ref.Call(resetEx, ext)
}

// ReadKeyStroke calls EFI_SIMPLE_TEXT_INPUT_EX_PROTOCOL.ReadKeyStrokeEx(), a
// missing keystroke is reported as NotReady.
func (in *InputEx) ReadKeyStroke() (k *KeyData, err error) {
	k = &KeyData{}

	err = in.ref.Call(readKeyStrokeEx, ptrval(k))
	runtime.KeepAlive(k)

	if err != nil {
		return nil, err
	}

	return
}

// SetState calls EFI_SIMPLE_TEXT_INPUT_EX_PROTOCOL.SetState() to set the
// keyboard toggle state (e.g. EFI_CAPS_LOCK_ACTIVE), the valid flag is
// added to the argument state.
func (in *InputEx) SetState(toggle uint8) (err error) {
	state := toggle | EFI_TOGGLE_STATE_VALID

	err = in.ref.Call(setState, ptrval(&state))
	runtime.KeepAlive(&state)

	return
}
