// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"fmt"
)

// Status represents a raw EFI_STATUS value.
type Status uint64

// errorBit is the EFI_STATUS high bit, set for error codes.
const errorBit = 1 << 63

// EFI_STATUS success and error codes
// https://uefi.org/specs/UEFI/2.10/Apx_D_Status_Codes.html
const (
	EFI_SUCCESS = 0

	EFI_LOAD_ERROR = iota
	EFI_INVALID_PARAMETER
	EFI_UNSUPPORTED
	EFI_BAD_BUFFER_SIZE
	EFI_BUFFER_TOO_SMALL
	EFI_NOT_READY
	EFI_DEVICE_ERROR
	EFI_WRITE_PROTECTED
	EFI_OUT_OF_RESOURCES
	EFI_VOLUME_CORRUPTED
	EFI_VOLUME_FULL
	EFI_NO_MEDIA
	EFI_MEDIA_CHANGED
	EFI_NOT_FOUND
	EFI_ACCESS_DENIED
	EFI_NO_RESPONSE
	EFI_NO_MAPPING
	EFI_TIMEOUT
	EFI_NOT_STARTED
	EFI_ALREADY_STARTED
	EFI_ABORTED
	EFI_ICMP_ERROR
	EFI_TFTP_ERROR
	EFI_PROTOCOL_ERROR
	EFI_INCOMPATIBLE_VERSION
	EFI_SECURITY_VIOLATION
	EFI_CRC_ERROR
	EFI_END_OF_MEDIA
	_
	_
	EFI_END_OF_FILE
	EFI_INVALID_LANGUAGE
	EFI_COMPROMISED_DATA
	EFI_IP_ADDRESS_CONFLICT
	EFI_HTTP_ERROR
)

// EFI_STATUS warning codes
const (
	EFI_WARN_UNKNOWN_GLYPH = iota + 1
	EFI_WARN_DELETE_FAILURE
	EFI_WARN_WRITE_FAILURE
	EFI_WARN_BUFFER_TOO_SMALL
	EFI_WARN_STALE_DATA
	EFI_WARN_FILE_SYSTEM
	EFI_WARN_RESET_REQUIRED
)

// Status32 widens a 32-bit EFI_STATUS, as returned by IA32 firmware, moving
// its error bit to the 64-bit position.
func Status32(status uint32) Status {
	s := Status(status &^ (1 << 31))

	if status&(1<<31) != 0 {
		s |= errorBit
	}

	return s
}

// ErrorStatus returns a status with the error bit set for the argument EFI error
// code.
func ErrorStatus(code uint64) Status {
	return Status(code | errorBit)
}

// IsError reports whether the status has its error bit set.
func (s Status) IsError() bool {
	return s&errorBit != 0
}

// IsWarning reports whether the status is a non-zero warning.
func (s Status) IsWarning() bool {
	return s != EFI_SUCCESS && !s.IsError()
}

// Code returns the status code without its error bit.
func (s Status) Code() uint64 {
	return uint64(s &^ errorBit)
}

func (s Status) String() string {
	switch {
	case s == EFI_SUCCESS:
		return "EFI_SUCCESS"
	case s.IsError():
		return fmt.Sprintf("EFI_STATUS error %#x (%s)", uint64(s), kindOf(s))
	default:
		return fmt.Sprintf("EFI_STATUS warning %#x (%s)", uint64(s), Warning(s))
	}
}

// Kind represents the class of an EFI error. Kind values implement error so
// that they can be matched with [errors.Is].
type Kind int

// EFI error kinds
const (
	Unknown Kind = iota
	LoadError
	InvalidParameter
	Unsupported
	BadBufferSize
	BufferTooSmall
	NotReady
	DeviceError
	WriteProtected
	OutOfResources
	VolumeCorrupted
	VolumeFull
	NoMedia
	MediaChanged
	NotFound
	AccessDenied
	NoResponse
	NoMapping
	Timeout
	NotStarted
	AlreadyStarted
	Aborted
	ICMPError
	TFTPError
	ProtocolError
	IncompatibleVersion
	SecurityViolation
	CRCError
	EndOfMedia
	EndOfFile
	InvalidLanguage
	CompromisedData
	IPAddressConflict
	HTTPError
	// CorruptData is reported on firmware table validation failures.
	CorruptData
)

// AlreadyExists is reported by firmware with the same code as AlreadyStarted.
const AlreadyExists = AlreadyStarted

var kindNames = map[Kind]string{
	Unknown:             "unknown error",
	LoadError:           "load error",
	InvalidParameter:    "invalid parameter",
	Unsupported:         "unsupported",
	BadBufferSize:       "bad buffer size",
	BufferTooSmall:      "buffer too small",
	NotReady:            "not ready",
	DeviceError:         "device error",
	WriteProtected:      "write protected",
	OutOfResources:      "out of resources",
	VolumeCorrupted:     "volume corrupted",
	VolumeFull:          "volume full",
	NoMedia:             "no media",
	MediaChanged:        "media changed",
	NotFound:            "not found",
	AccessDenied:        "access denied",
	NoResponse:          "no response",
	NoMapping:           "no mapping",
	Timeout:             "timeout",
	NotStarted:          "not started",
	AlreadyStarted:      "already started",
	Aborted:             "aborted",
	ICMPError:           "ICMP error",
	TFTPError:           "TFTP error",
	ProtocolError:       "protocol error",
	IncompatibleVersion: "incompatible version",
	SecurityViolation:   "security violation",
	CRCError:            "CRC error",
	EndOfMedia:          "end of media",
	EndOfFile:           "end of file",
	InvalidLanguage:     "invalid language",
	CompromisedData:     "compromised data",
	IPAddressConflict:   "IP address conflict",
	HTTPError:           "HTTP error",
	CorruptData:         "corrupt data",
}

var codeKinds = map[uint64]Kind{
	EFI_LOAD_ERROR:           LoadError,
	EFI_INVALID_PARAMETER:    InvalidParameter,
	EFI_UNSUPPORTED:          Unsupported,
	EFI_BAD_BUFFER_SIZE:      BadBufferSize,
	EFI_BUFFER_TOO_SMALL:     BufferTooSmall,
	EFI_NOT_READY:            NotReady,
	EFI_DEVICE_ERROR:         DeviceError,
	EFI_WRITE_PROTECTED:      WriteProtected,
	EFI_OUT_OF_RESOURCES:     OutOfResources,
	EFI_VOLUME_CORRUPTED:     VolumeCorrupted,
	EFI_VOLUME_FULL:          VolumeFull,
	EFI_NO_MEDIA:             NoMedia,
	EFI_MEDIA_CHANGED:        MediaChanged,
	EFI_NOT_FOUND:            NotFound,
	EFI_ACCESS_DENIED:        AccessDenied,
	EFI_NO_RESPONSE:          NoResponse,
	EFI_NO_MAPPING:           NoMapping,
	EFI_TIMEOUT:              Timeout,
	EFI_NOT_STARTED:          NotStarted,
	EFI_ALREADY_STARTED:      AlreadyStarted,
	EFI_ABORTED:              Aborted,
	EFI_ICMP_ERROR:           ICMPError,
	EFI_TFTP_ERROR:           TFTPError,
	EFI_PROTOCOL_ERROR:       ProtocolError,
	EFI_INCOMPATIBLE_VERSION: IncompatibleVersion,
	EFI_SECURITY_VIOLATION:   SecurityViolation,
	EFI_CRC_ERROR:            CRCError,
	EFI_END_OF_MEDIA:         EndOfMedia,
	EFI_END_OF_FILE:          EndOfFile,
	EFI_INVALID_LANGUAGE:     InvalidLanguage,
	EFI_COMPROMISED_DATA:     CompromisedData,
	EFI_IP_ADDRESS_CONFLICT:  IPAddressConflict,
	EFI_HTTP_ERROR:           HTTPError,
}

func (k Kind) Error() string {
	if s, ok := kindNames[k]; ok {
		return s
	}

	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) String() string {
	return k.Error()
}

func kindOf(s Status) Kind {
	if k, ok := codeKinds[s.Code()]; ok {
		return k
	}

	return Unknown
}

// Warning represents an EFI warning status, returned by services which
// completed with auxiliary information.
type Warning Status

var warningNames = map[Warning]string{
	EFI_WARN_UNKNOWN_GLYPH:    "unknown glyph",
	EFI_WARN_DELETE_FAILURE:   "delete failure",
	EFI_WARN_WRITE_FAILURE:    "write failure",
	EFI_WARN_BUFFER_TOO_SMALL: "buffer too small",
	EFI_WARN_STALE_DATA:       "stale data",
	EFI_WARN_FILE_SYSTEM:      "file system",
	EFI_WARN_RESET_REQUIRED:   "reset required",
}

func (w Warning) String() string {
	if s, ok := warningNames[w]; ok {
		return s
	}

	return fmt.Sprintf("warning %#x", uint64(w))
}

// Error represents an EFI service failure.
type Error struct {
	// Kind is the error class.
	Kind Kind
	// Status is the raw EFI_STATUS, zero for errors raised by this
	// package rather than by firmware.
	Status Status
	// Op is the name of the failed operation.
	Op string
}

func (e *Error) Error() string {
	var s string

	if e.Op != "" {
		s = e.Op + ": "
	}

	if e.Status == 0 {
		return s + e.Kind.Error()
	}

	return fmt.Sprintf("%s%s (EFI_STATUS %#x)", s, e.Kind, uint64(e.Status))
}

// Unwrap returns the error Kind, allowing errors.Is(err, NotFound).
func (e *Error) Unwrap() error {
	return e.Kind
}

// KindOf returns the Kind of an error returned by this package, nil errors
// and foreign errors are reported as Unknown.
func KindOf(err error) Kind {
	var e *Error

	if errors.As(err, &e) {
		return e.Kind
	}

	var k Kind

	if errors.As(err, &k) {
		return k
	}

	return Unknown
}

// FromStatus classifies a raw EFI_STATUS as success (0, nil), warning
// (w, nil) or error. Error codes which are not recognized are reported with
// the Unknown kind and the raw code preserved.
func FromStatus(status Status) (w Warning, err error) {
	switch {
	case status == EFI_SUCCESS:
		return
	case status.IsError():
		return 0, &Error{
			Kind:   kindOf(status),
			Status: status,
		}
	default:
		return Warning(status), nil
	}
}

func parseStatus(op string, status uint64) (err error) {
	if _, err = FromStatus(Status(status)); err != nil {
		err.(*Error).Op = op
	}

	return
}

func newError(op string, kind Kind) error {
	return &Error{
		Kind: kind,
		Op:   op,
	}
}

var (
	// ErrBootServicesExited is returned by any boot-only operation invoked
	// after EFI_BOOT_SERVICES.ExitBootServices() completed.
	ErrBootServicesExited = &Error{Kind: Unsupported, Op: "boot services exited"}

	// ErrStaleMapKey is returned when EFI_BOOT_SERVICES.ExitBootServices()
	// rejects the memory map key, the memory map must be queried again
	// before retrying.
	ErrStaleMapKey = errors.New("stale memory map key")

	// ErrExitFailed is returned when EFI_BOOT_SERVICES.ExitBootServices()
	// fails for reasons other than a stale memory map key, the system
	// cannot be trusted afterwards.
	ErrExitFailed = errors.New("exit boot services failed")

	// ErrCorruptTable is returned by the table loader when a firmware
	// table fails validation.
	ErrCorruptTable = &Error{Kind: CorruptData, Op: "invalid EFI table"}
)
