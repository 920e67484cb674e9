// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"fmt"
	"sync"
)

// Phase represents the firmware services lifecycle phase.
type Phase int

const (
	// Boot is the initial phase, all boot and runtime services are
	// available.
	Boot Phase = iota
	// Runtime is the terminal phase entered after
	// EFI_BOOT_SERVICES.ExitBootServices(), only runtime services are
	// available.
	Runtime
)

func (p Phase) String() string {
	switch p {
	case Boot:
		return "boot"
	case Runtime:
		return "runtime"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// lifecycle is the single holder of the active phase, every firmware service
// invocation is serialized through it.
type lifecycle struct {
	sync.Mutex

	fw    Firmware
	phase Phase
}

func (l *lifecycle) current() Phase {
	l.Lock()
	defer l.Unlock()

	return l.phase
}

// check fails with ErrBootServicesExited once the boot phase has ended, boot
// only operations call it ahead of any argument validation.
func (l *lifecycle) check(op string) error {
	if l.current() != Boot {
		return fmt.Errorf("%s, %w", op, ErrBootServicesExited)
	}

	return nil
}

// boot invokes a boot service, failing without reaching firmware once the
// boot phase has ended.
func (l *lifecycle) boot(op string, fn uint64, args []uint64) (err error) {
	l.Lock()
	defer l.Unlock()

	if l.phase != Boot {
		return fmt.Errorf("%s, %w", op, ErrBootServicesExited)
	}

	return parseStatus(op, l.fw.CallService(fn, args))
}

// runtime invokes a runtime service.
func (l *lifecycle) runtime(op string, fn uint64, args []uint64) (err error) {
	l.Lock()
	defer l.Unlock()

	return parseStatus(op, l.fw.CallService(fn, args))
}

// bootRead reads firmware memory owned by boot services.
func (l *lifecycle) bootRead(op string, data any, addr uint64) (err error) {
	l.Lock()
	defer l.Unlock()

	if l.phase != Boot {
		return fmt.Errorf("%s, %w", op, ErrBootServicesExited)
	}

	return decode(l.fw, data, addr)
}

// exit performs the one-way transition to the runtime phase, the transition
// happens only if the argument service call succeeds.
func (l *lifecycle) exit(op string, fn uint64, args []uint64) (err error) {
	l.Lock()
	defer l.Unlock()

	if l.phase != Boot {
		return fmt.Errorf("%s, %w", op, ErrBootServicesExited)
	}

	if err = parseStatus(op, l.fw.CallService(fn, args)); err != nil {
		return
	}

	l.phase = Runtime

	return
}
