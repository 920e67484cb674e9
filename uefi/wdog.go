// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"time"
)

// EFI Boot Services offsets
const (
	getNextMonotonicCount = 0xf0
	stall                 = 0xf8
	setWatchdogTimer      = 0x100

	watchdogCode = 0xba3e5e7a1
)

// SetWatchdogTimer calls EFI_BOOT_SERVICES.SetWatchdogTimer(), a zero
// timeout disables the watchdog.
func (s *BootServices) SetWatchdogTimer(sec int) (err error) {
	return s.lc.boot("SetWatchdogTimer", s.base+setWatchdogTimer,
		[]uint64{
			uint64(sec),
			watchdogCode,
			0,
			0,
		},
	)
}

// Stall calls EFI_BOOT_SERVICES.Stall().
func (s *BootServices) Stall(d time.Duration) (err error) {
	return s.lc.boot("Stall", s.base+stall,
		[]uint64{
			uint64(d.Microseconds()),
		},
	)
}

// GetNextMonotonicCount calls EFI_BOOT_SERVICES.GetNextMonotonicCount().
func (s *BootServices) GetNextMonotonicCount() (count uint64, err error) {
	err = s.lc.boot("GetNextMonotonicCount", s.base+getNextMonotonicCount,
		[]uint64{
			ptrval(&count),
		},
	)

	return
}
