// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"sync"
	"unicode/utf16"
	"unicode/utf8"
)

// EFI Simple Text Input/Output Protocol offsets
const (
	readKeyStroke = 0x08
	outputString  = 0x08
	clearScreen   = 0x30
)

// InputKey represents an EFI Input Key descriptor.
type InputKey struct {
	ScanCode    uint16
	UnicodeChar uint16
}

// Console implements the [io.ReadWriter] interface over EFI Simple Text
// Input/Output protocol, the console is only available during the boot phase.
type Console struct {
	// ForceLine controls whether line feeds (LF) should be supplemented
	// with a carriage return (CR).
	ForceLine bool

	// ReplaceTabs controls whether Console I/O output should have Tab
	// characters replaced with a number of spaces.
	ReplaceTabs int

	in  uint64
	out uint64
	lc  *lifecycle

	mu      sync.Mutex
	pending []byte
	high    uint16
}

// Input calls EFI_SIMPLE_TEXT_INPUT_PROTOCOL.ReadKeyStroke(), a missing
// keystroke is reported as NotReady.
func (c *Console) Input(k *InputKey) (err error) {
	if c.in == 0 {
		return newError("ReadKeyStroke", NotReady)
	}

	return c.lc.boot("ReadKeyStroke", c.in+readKeyStroke,
		[]uint64{
			c.in,
			ptrval(k),
		},
	)
}

// Output calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.OutputString() with a UTF-16
// little-endian buffer.
func (c *Console) Output(p []byte) (err error) {
	if len(p) == 0 || c.out == 0 {
		return
	}

	if len(p) < 2 || p[len(p)-2] != 0x00 || p[len(p)-1] != 0x00 {
		p = append(p, 0x00, 0x00)
	}

	return c.lc.boot("OutputString", c.out+outputString,
		[]uint64{
			c.out,
			ptrval(&p[0]),
		},
	)
}

// ClearScreen calls EFI_SIMPLE_TEXT_OUTPUT_PROTOCOL.ClearScreen().
func (c *Console) ClearScreen() (err error) {
	if c.out == 0 {
		return
	}

	return c.lc.boot("ClearScreen", c.out+clearScreen,
		[]uint64{
			c.out,
		},
	)
}

// Read available data to buffer from console, keystrokes are converted to
// UTF-8. Read returns as soon as no keystroke is pending, encoded characters
// which do not fit p are returned by the next Read.
func (c *Console) Read(p []byte) (n int, err error) {
	var buf [utf8.UTFMax]byte

	c.mu.Lock()
	defer c.mu.Unlock()

	for n < len(p) {
		if len(c.pending) > 0 {
			i := copy(p[n:], c.pending)
			c.pending = c.pending[i:]
			n += i
			continue
		}

		k := &InputKey{}

		switch err = c.Input(k); {
		case err == nil:
		case errors.Is(err, NotReady):
			return n, nil
		default:
			return
		}

		r, ok := c.decode(k.UnicodeChar)

		if !ok {
			continue
		}

		i := utf8.EncodeRune(buf[:], r)
		c.pending = append(c.pending, buf[:i]...)
	}

	return
}

// decode pairs UTF-16 surrogates across keystrokes, unpaired surrogates are
// converted to the Unicode replacement character.
func (c *Console) decode(u uint16) (r rune, ok bool) {
	high := c.high
	c.high = 0

	switch {
	case u == 0:
		if high != 0 {
			return utf8.RuneError, true
		}
		return 0, false
	case utf16.IsSurrogate(rune(u)) && u < 0xdc00:
		c.high = u
		if high != 0 {
			return utf8.RuneError, true
		}
		return 0, false
	case utf16.IsSurrogate(rune(u)):
		if high == 0 {
			return utf8.RuneError, true
		}
		return utf16.DecodeRune(rune(high), rune(u)), true
	case high != 0:
		// the unpaired high surrogate is replaced ahead of u
		c.pending = utf8.AppendRune(c.pending, utf8.RuneError)
		return rune(u), true
	default:
		return rune(u), true
	}
}

// Write data from buffer to console.
func (c *Console) Write(p []byte) (n int, err error) {
	var s []byte

	if len(p) == 0 {
		return
	}

	// We receive an UTF-8 string but we can output only UTF-16 ones.
	for _, r := range utf16.Encode([]rune(string(p))) {
		if r == 0x09 && c.ReplaceTabs > 0 { // Tab
			for i := 0; i < c.ReplaceTabs; i++ {
				s = append(s, 0x20, 0x00) // Space
			}
			continue
		}

		s = append(s, byte(r&0xff), byte(r>>8))

		if r == 0x0a && c.ForceLine { // LF
			s = append(s, 0x0d, 0x00) // CR
		}
	}

	if err = c.Output(s); err != nil {
		return
	}

	return len(p), nil
}
