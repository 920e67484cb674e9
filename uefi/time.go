// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"time"
)

// EFI Runtime Services offsets
const (
	getTime                   = 0x18
	setTime                   = 0x20
	getNextHighMonotonicCount = 0x60
)

// EFI_UNSPECIFIED_TIMEZONE
const unspecifiedTimezone = 0x07ff

// Time represents an EFI_TIME instance.
type Time struct {
	Year       uint16
	Month      uint8
	Day        uint8
	Hour       uint8
	Minute     uint8
	Second     uint8
	_          uint8
	Nanosecond uint32
	TimeZone   int16
	Daylight   uint8
	_          uint8
}

// NewTime converts a Go time to an EFI_TIME instance, preserving its zone
// offset.
func NewTime(t time.Time) *Time {
	_, offset := t.Zone()

	return &Time{
		Year:       uint16(t.Year()),
		Month:      uint8(t.Month()),
		Day:        uint8(t.Day()),
		Hour:       uint8(t.Hour()),
		Minute:     uint8(t.Minute()),
		Second:     uint8(t.Second()),
		Nanosecond: uint32(t.Nanosecond()),
		TimeZone:   int16(-offset / 60),
	}
}

// Time converts the EFI_TIME instance to a Go time, an unspecified time zone
// is interpreted as UTC.
func (t *Time) Time() time.Time {
	loc := time.UTC

	// Localtime = UTC - TimeZone
	if t.TimeZone != unspecifiedTimezone && t.TimeZone != 0 {
		loc = time.FixedZone("", -int(t.TimeZone)*60)
	}

	return time.Date(int(t.Year), time.Month(t.Month), int(t.Day),
		int(t.Hour), int(t.Minute), int(t.Second), int(t.Nanosecond), loc)
}

// GetTime calls EFI_RUNTIME_SERVICES.GetTime().
func (s *RuntimeServices) GetTime() (t *Time, err error) {
	buf := make([]byte, 16)

	if err = s.lc.runtime("GetTime", s.base+getTime,
		[]uint64{
			ptrval(&buf[0]),
			0,
		},
	); err != nil {
		return
	}

	t = &Time{}
	err = unmarshalBinary(buf, t)

	return
}

// SetTime calls EFI_RUNTIME_SERVICES.SetTime().
func (s *RuntimeServices) SetTime(t *Time) (err error) {
	buf, err := marshalBinary(t)

	if err != nil {
		return
	}

	return s.lc.runtime("SetTime", s.base+setTime,
		[]uint64{
			ptrval(&buf[0]),
		},
	)
}

// GetNextHighMonotonicCount calls
// EFI_RUNTIME_SERVICES.GetNextHighMonotonicCount().
func (s *RuntimeServices) GetNextHighMonotonicCount() (count uint32, err error) {
	err = s.lc.runtime("GetNextHighMonotonicCount", s.base+getNextHighMonotonicCount,
		[]uint64{
			ptrval(&count),
		},
	)

	return
}
