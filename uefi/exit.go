// Copyright (c) WithSecure Corporation
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
)

// EFI Boot Services offsets
const (
	exit             = 0xd8
	exitBootServices = 0xe8
)

// Exit calls EFI_BOOT_SERVICES.Exit(), returning control to the image
// caller.
func (s *BootServices) Exit(code int) (err error) {
	return s.lc.boot("Exit", s.base+exit,
		[]uint64{
			s.imageHandle.h,
			uint64(code),
			0,
			0,
		},
	)
}

// ExitBootServices calls EFI_BOOT_SERVICES.ExitBootServices() with the map key
// of the latest memory map query.
//
// On success the lifecycle enters the Runtime phase: every boot service,
// protocol reference and allocator page/pool path is rejected with
// Unsupported from then on, only the returned runtime services remain.
//
// A stale map key, due to memory map changes after the map key was obtained,
// is reported with an error matching both ErrStaleMapKey and
// InvalidParameter, the caller should query the memory map again and retry.
// Any other failure matches ErrExitFailed and must be treated as fatal.
func (s *BootServices) ExitBootServices(mapKey uint64) (rt *RuntimeServices, err error) {
	err = s.lc.exit("ExitBootServices", s.base+exitBootServices,
		[]uint64{
			s.imageHandle.h,
			mapKey,
		},
	)

	switch {
	case err == nil:
	case errors.Is(err, ErrBootServicesExited):
		return
	case errors.Is(err, InvalidParameter):
		return nil, fmt.Errorf("%w, %w", ErrStaleMapKey, err)
	default:
		return nil, fmt.Errorf("%w, %w", ErrExitFailed, err)
	}

	s.log.Info("exited EFI boot services", "map_key", mapKey)

	return s.rt, nil
}

// ExitBootServices exits EFI Boot Services, querying the memory map and
// retrying on stale map keys up to ExitRetries times.
func (s *Services) ExitBootServices() (rt *RuntimeServices, err error) {
	var m *MemoryMap

	if s.Boot == nil {
		return nil, errors.New("EFI Boot Services unavailable")
	}

	for i := 0; i < s.ExitRetries; i++ {
		if m, err = s.Boot.GetMemoryMap(); err != nil {
			return
		}

		if _, err = s.Boot.ExitBootServices(m.MapKey); !errors.Is(err, ErrStaleMapKey) {
			break
		}

		s.Log.Info("stale memory map key, retrying", "attempt", i+1, "map_key", m.MapKey)
	}

	if err != nil {
		return
	}

	return s.Runtime, nil
}
