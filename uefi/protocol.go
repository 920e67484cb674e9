// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"runtime"
)

// EFI Boot Services offsets
const (
	handleProtocol     = 0x098
	locateHandleBuffer = 0x138
	locateProtocol     = 0x140
)

// EFI_LOCATE_SEARCH_TYPE
const (
	AllHandles = iota
	ByRegisterNotify
	ByProtocol
)

func checkGUID(op string, guid GUID) error {
	if guid.IsZero() {
		return newError(op+", null GUID", InvalidParameter)
	}

	return nil
}

// HandleProtocol calls EFI_BOOT_SERVICES.HandleProtocol().
//
// A protocol which is not installed on the handle is reported as NotFound,
// Unsupported is reserved to calls made after the boot phase.
func (s *BootServices) HandleProtocol(handle Handle, guid GUID) (addr uint64, err error) {
	if err = s.lc.check("HandleProtocol"); err != nil {
		return
	}

	if handle.IsNull() {
		return 0, newError("HandleProtocol, null handle", InvalidParameter)
	}

	if err = checkGUID("HandleProtocol", guid); err != nil {
		return
	}

	err = s.lc.boot("HandleProtocol", s.base+handleProtocol,
		[]uint64{
			handle.h,
			ptrval(&guid),
			ptrval(&addr),
		},
	)
	runtime.KeepAlive(&guid)

	var e *Error

	// the firmware reports protocols absent from a handle as EFI_UNSUPPORTED
	if errors.As(err, &e) && e.Status != 0 && e.Kind == Unsupported {
		e.Kind = NotFound
	}

	return
}

// LocateProtocol calls EFI_BOOT_SERVICES.LocateProtocol().
func (s *BootServices) LocateProtocol(guid GUID) (addr uint64, err error) {
	if err = s.lc.check("LocateProtocol"); err != nil {
		return
	}

	if err = checkGUID("LocateProtocol", guid); err != nil {
		return
	}

	err = s.lc.boot("LocateProtocol", s.base+locateProtocol,
		[]uint64{
			ptrval(&guid),
			0,
			ptrval(&addr),
		},
	)
	runtime.KeepAlive(&guid)

	return
}

// LocateProtocolString calls EFI_BOOT_SERVICES.LocateProtocol() with a
// registry format GUID.
func (s *BootServices) LocateProtocolString(g string) (addr uint64, err error) {
	guid, err := ParseGUID(g)

	if err != nil {
		return
	}

	return s.LocateProtocol(guid)
}

// LocateHandles calls EFI_BOOT_SERVICES.LocateHandleBuffer() to return a
// snapshot of all handles supporting a protocol. The firmware allocated
// buffer is released before returning.
func (s *BootServices) LocateHandles(guid GUID) (handles []Handle, err error) {
	var n uint64
	var buf uint64

	if err = s.lc.check("LocateHandleBuffer"); err != nil {
		return
	}

	if err = checkGUID("LocateHandleBuffer", guid); err != nil {
		return
	}

	err = s.lc.boot("LocateHandleBuffer", s.base+locateHandleBuffer,
		[]uint64{
			ByProtocol,
			ptrval(&guid),
			0,
			ptrval(&n),
			ptrval(&buf),
		},
	)
	runtime.KeepAlive(&guid)

	if err != nil {
		return
	}

	if buf == 0 {
		return nil, newError("LocateHandleBuffer", NotFound)
	}

	defer func() {
		if err := s.FreePool(buf); err != nil {
			s.log.Error(err, "could not release handle buffer", "address", buf)
		}
	}()

	if n == 0 {
		return nil, newError("LocateHandleBuffer", NotFound)
	}

	b := make([]byte, n*8)

	if err = s.lc.bootRead("LocateHandleBuffer", b, buf); err != nil {
		return
	}

	for i := uint64(0); i < n; i++ {
		handles = append(handles, newHandle(binary.LittleEndian.Uint64(b[i*8:])))
	}

	return
}

// ProtocolRef represents a reference to a protocol interface of layout T,
// obtained from firmware for a (Handle, GUID) pair during the boot phase.
//
// The GUID is the only layout contract: the firmware interface is assumed to
// match T and this cannot be verified. A reference is unusable, with all its
// methods returning Unsupported, once boot services are exited.
type ProtocolRef[T any] struct {
	boot   *BootServices
	handle Handle
	guid   GUID
	addr   uint64
}

// Locate returns a reference to the protocol interface identified by guid on
// the argument handle, absent protocols are reported as NotFound.
func Locate[T any](b *BootServices, handle Handle, guid GUID) (ref *ProtocolRef[T], err error) {
	if err = b.lc.check("Locate"); err != nil {
		return
	}

	if err = checkLayout[T]("Locate"); err != nil {
		return
	}

	addr, err := b.HandleProtocol(handle, guid)

	if err != nil {
		return
	}

	return &ProtocolRef[T]{
		boot:   b,
		handle: handle,
		guid:   guid,
		addr:   addr,
	}, nil
}

// LocateFirst returns a reference to the first protocol interface identified
// by guid, regardless of its handle.
func LocateFirst[T any](b *BootServices, guid GUID) (ref *ProtocolRef[T], err error) {
	if err = b.lc.check("LocateFirst"); err != nil {
		return
	}

	if err = checkLayout[T]("LocateFirst"); err != nil {
		return
	}

	addr, err := b.LocateProtocol(guid)

	if err != nil {
		return
	}

	return &ProtocolRef[T]{
		boot: b,
		guid: guid,
		addr: addr,
	}, nil
}

func checkLayout[T any](op string) error {
	var v T

	if binary.Size(&v) <= 0 {
		return newError(fmt.Sprintf("%s, %T has no fixed layout", op, v), InvalidParameter)
	}

	return nil
}

// Handle returns the handle the reference was obtained for, the null handle
// for references obtained with LocateFirst.
func (r *ProtocolRef[T]) Handle() Handle {
	return r.handle
}

// GUID returns the protocol GUID.
func (r *ProtocolRef[T]) GUID() GUID {
	return r.guid
}

// Phase returns the lifecycle phase during which the reference was
// obtained.
func (r *ProtocolRef[T]) Phase() Phase {
	return Boot
}

// Valid reports whether the reference can still be used.
func (r *ProtocolRef[T]) Valid() bool {
	return r.boot.lc.current() == Boot
}

// Address returns the protocol interface pointer.
func (r *ProtocolRef[T]) Address() (addr uint64, err error) {
	if !r.Valid() {
		return 0, fmt.Errorf("%s, %w", r.guid.Name(), ErrBootServicesExited)
	}

	return r.addr, nil
}

// Interface returns a copy of the protocol interface structure, read from
// firmware memory.
func (r *ProtocolRef[T]) Interface() (v *T, err error) {
	v = new(T)

	if err = r.boot.lc.bootRead(r.guid.Name(), v, r.addr); err != nil {
		return nil, err
	}

	return
}

// Call invokes the protocol member function stored at offset within the
// interface structure, passing the interface pointer (This) followed by args.
func (r *ProtocolRef[T]) Call(offset uint64, args ...uint64) (err error) {
	return r.boot.lc.boot(r.guid.Name(), r.addr+offset, append([]uint64{r.addr}, args...))
}

// Protocols represents a snapshot enumeration of the protocol interfaces
// identified by a GUID, interfaces are bound lazily as the enumeration
// advances. The enumeration is single use and cannot be restarted, a fresh
// snapshot requires a new LocateAll call.
type Protocols[T any] struct {
	boot    *BootServices
	guid    GUID
	handles []Handle

	ref *ProtocolRef[T]
	err error
}

// LocateAll returns an enumeration of all protocol interfaces identified by
// guid, taking a snapshot of the handles supporting it.
func LocateAll[T any](b *BootServices, guid GUID) (p *Protocols[T], err error) {
	if err = b.lc.check("LocateAll"); err != nil {
		return
	}

	if err = checkLayout[T]("LocateAll"); err != nil {
		return
	}

	handles, err := b.LocateHandles(guid)

	if errors.Is(err, NotFound) {
		err = nil
	}

	if err != nil {
		return
	}

	b.log.V(1).Info("protocol enumeration", "guid", guid.Name(), "handles", len(handles))

	return &Protocols[T]{
		boot:    b,
		guid:    guid,
		handles: handles,
	}, nil
}

// Len returns the number of handles left in the enumeration.
func (p *Protocols[T]) Len() int {
	return len(p.handles)
}

// Next binds the protocol interface of the next handle, returning false when
// the enumeration is exhausted or an error occurred. Handles whose protocol
// was uninstalled after the snapshot are skipped.
func (p *Protocols[T]) Next() bool {
	for p.err == nil && len(p.handles) > 0 {
		h := p.handles[0]
		p.handles = p.handles[1:]

		ref, err := Locate[T](p.boot, h, p.guid)

		switch {
		case err == nil:
			p.ref = ref
			return true
		case errors.Is(err, NotFound):
			continue
		default:
			p.err = err
		}
	}

	p.ref = nil
	p.handles = nil

	return false
}

// Handle returns the handle bound by the last Next call.
func (p *Protocols[T]) Handle() (h Handle) {
	if p.ref != nil {
		h = p.ref.handle
	}

	return
}

// Ref returns the reference bound by the last Next call.
func (p *Protocols[T]) Ref() *ProtocolRef[T] {
	return p.ref
}

// Err returns the first error encountered by Next.
func (p *Protocols[T]) Err() error {
	return p.err
}

// All returns an iterator over the remaining (Handle, ProtocolRef) pairs,
// errors are reported by Err once iteration ends.
func (p *Protocols[T]) All() iter.Seq2[Handle, *ProtocolRef[T]] {
	return func(yield func(Handle, *ProtocolRef[T]) bool) {
		for p.Next() {
			if !yield(p.ref.handle, p.ref) {
				return
			}
		}
	}
}
