// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"fmt"
	"iter"
	"runtime"
)

// EFI TCG Protocol offsets
const (
	statusCheck = 0x00
)

// TCG_ALGORITHM_ID
const TCG_ALG_SHA = 0x01

// TCG event types
const (
	EV_POST_CODE                     = 0x00000001
	EV_NO_ACTION                     = 0x00000003
	EV_SEPARATOR                     = 0x00000004
	EV_ACTION                        = 0x00000005
	EV_S_CRTM_CONTENTS               = 0x00000007
	EV_S_CRTM_VERSION                = 0x00000008
	EV_EFI_VARIABLE_DRIVER_CONFIG    = 0x80000001
	EV_EFI_VARIABLE_BOOT             = 0x80000002
	EV_EFI_BOOT_SERVICES_APPLICATION = 0x80000003
	EV_EFI_ACTION                    = 0x80000007
	EV_EFI_PLATFORM_FIRMWARE_BLOB    = 0x80000008
)

const (
	// TCG_PCR_EVENT size without event data
	pcrEventHeaderSize = 32
	// upper bound for a single event data size
	maxEventSize = 1 << 20
)

// TCGVersion represents a TCG_VERSION descriptor.
type TCGVersion struct {
	Major    uint8
	Minor    uint8
	RevMajor uint8
	RevMinor uint8
}

func (v TCGVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// BootServiceCapability represents a TCG_EFI_BOOT_SERVICE_CAPABILITY
// descriptor.
type BootServiceCapability struct {
	Size                uint8
	StructureVersion    TCGVersion
	ProtocolSpecVersion TCGVersion
	HashAlgorithmBitmap uint8
	TPMPresentFlag      uint8
	TPMDeactivatedFlag  uint8
}

// TPMPresent reports whether a TPM device is present.
func (c *BootServiceCapability) TPMPresent() bool {
	return c.TPMPresentFlag != 0
}

// TPMDeactivated reports whether the TPM device is deactivated.
func (c *BootServiceCapability) TPMDeactivated() bool {
	return c.TPMDeactivatedFlag != 0
}

// TCGProtocol represents the EFI_TCG_PROTOCOL interface layout.
type TCGProtocol struct {
	StatusCheck        uint64
	HashAll            uint64
	LogEvent           uint64
	PassThroughToTPM   uint64
	HashLogExtendEvent uint64
}

// PCREvent represents a TCG_PCR_EVENT entry of the TPM event log.
type PCREvent struct {
	PCRIndex  uint32
	EventType uint32
	// Digest is the SHA-1 digest extended into the PCR, it is not
	// necessarily computed over Data.
	Digest [20]byte
	Data   []byte
}

// TCG represents an EFI TCG Protocol instance for TPM 1.1 and 1.2 devices.
type TCG struct {
	ref *ProtocolRef[TCGProtocol]
}

// TCGStatus represents the information returned by
// EFI_TCG_PROTOCOL.StatusCheck().
type TCGStatus struct {
	Capability   BootServiceCapability
	FeatureFlags uint32
	EventLog     *EventLog
}

// GetTCG locates and returns the EFI TCG Protocol instance.
func (s *BootServices) GetTCG() (t *TCG, err error) {
	ref, err := LocateFirst[TCGProtocol](s, EFI_TCG_PROTOCOL_GUID)

	if err != nil {
		return
	}

	return &TCG{ref: ref}, nil
}

// StatusCheck calls EFI_TCG_PROTOCOL.StatusCheck() to return the TPM
// capabilities and its event log.
func (t *TCG) StatusCheck() (st *TCGStatus, err error) {
	var location uint64
	var last uint64

	st = &TCGStatus{}

	err = t.ref.Call(statusCheck,
		ptrval(&st.Capability),
		ptrval(&st.FeatureFlags),
		ptrval(&location),
		ptrval(&last),
	)
	runtime.KeepAlive(st)

	if err != nil {
		return nil, err
	}

	st.EventLog = &EventLog{
		lc:   t.ref.boot.lc,
		next: location,
		last: last,
	}

	return
}

// EventLog represents the TPM event log, entries are read lazily from
// firmware memory as the log advances. The log is single use and readable
// only during the boot phase, a fresh view requires a new StatusCheck call.
type EventLog struct {
	lc *lifecycle

	next uint64
	last uint64

	event *PCREvent
	err   error
}

// Truncated reports whether entries are missing as they exceeded the space
// allocated for the log, this is never reported by TCG 1.2 firmware.
func (l *EventLog) Truncated() bool {
	return false
}

// Next reads the next log entry, returning false when the log is exhausted
// or an error occurred.
func (l *EventLog) Next() bool {
	l.event = nil

	// firmware reports empty logs with null pointers
	if l.err != nil || l.next == 0 || l.last == 0 {
		return false
	}

	if l.next > l.last {
		l.err = newError(fmt.Sprintf("EventLog, entry %#x past last entry %#x", l.next, l.last), CorruptData)
		return false
	}

	e, size, err := l.read(l.next)

	if err != nil {
		l.err = err
		return false
	}

	if l.next == l.last {
		l.next = 0
	} else {
		l.next += size
	}

	l.event = e

	return true
}

func (l *EventLog) read(addr uint64) (e *PCREvent, size uint64, err error) {
	buf := make([]byte, pcrEventHeaderSize)

	if err = l.lc.bootRead("EventLog", buf, addr); err != nil {
		return
	}

	e = &PCREvent{
		PCRIndex:  binary.LittleEndian.Uint32(buf[0:]),
		EventType: binary.LittleEndian.Uint32(buf[4:]),
	}

	copy(e.Digest[:], buf[8:28])
	n := binary.LittleEndian.Uint32(buf[28:])

	if n > maxEventSize {
		return nil, 0, newError(fmt.Sprintf("EventLog, invalid event size %d at %#x", n, addr), CorruptData)
	}

	if n > 0 {
		e.Data = make([]byte, n)

		if err = l.lc.bootRead("EventLog", e.Data, addr+pcrEventHeaderSize); err != nil {
			return nil, 0, err
		}
	}

	return e, pcrEventHeaderSize + uint64(n), nil
}

// Event returns the entry read by the last Next call.
func (l *EventLog) Event() *PCREvent {
	return l.event
}

// Err returns the first error encountered by Next.
func (l *EventLog) Err() error {
	return l.err
}

// All returns an iterator over the remaining log entries, errors are
// reported by Err once iteration ends.
func (l *EventLog) All() iter.Seq[*PCREvent] {
	return func(yield func(*PCREvent) bool) {
		for l.Next() {
			if !yield(l.event) {
				return
			}
		}
	}
}
