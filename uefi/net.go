// Copyright (c) The go-uefi authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package uefi

import (
	"errors"
	"runtime"
)

const (
	EFI_SIMPLE_NETWORK_PROTOCOL_REVISION = 0x00010000

	EFI_SIMPLE_NETWORK_TRANSMIT_INTERRUPT = 0x02

	// maximum number of GetStatus() polls after a transmission
	maxTransmitPolls = 1 << 16
)

// EFI Simple Network Protocol offsets
const (
	start      = 0x08
	stop       = 0x10
	initialize = 0x18
	getStatus  = 0x58
	transmit   = 0x60
	receive    = 0x68
)

// SimpleNetworkProtocol represents the EFI_SIMPLE_NETWORK_PROTOCOL interface
// layout.
type SimpleNetworkProtocol struct {
	Revision       uint64
	Start          uint64
	Stop           uint64
	Initialize     uint64
	Reset          uint64
	Shutdown       uint64
	ReceiveFilters uint64
	StationAddress uint64
	Statistics     uint64
	MCastIPtoMAC   uint64
	NvData         uint64
	GetStatus      uint64
	Transmit       uint64
	Receive        uint64
	WaitForPacket  uint64
	Mode           uint64
}

// SimpleNetwork represents an EFI Simple Network Protocol instance.
type SimpleNetwork struct {
	ref *ProtocolRef[SimpleNetworkProtocol]
}

// GetNetwork locates and returns the EFI Simple Network Protocol instance.
func (s *BootServices) GetNetwork() (sn *SimpleNetwork, err error) {
	ref, err := LocateFirst[SimpleNetworkProtocol](s, EFI_SIMPLE_NETWORK_PROTOCOL_GUID)

	if err != nil {
		return
	}

	return &SimpleNetwork{ref: ref}, nil
}

// Networks returns an enumeration of all EFI Simple Network Protocol
// instances.
func (s *BootServices) Networks() (*Protocols[SimpleNetworkProtocol], error) {
	return LocateAll[SimpleNetworkProtocol](s, EFI_SIMPLE_NETWORK_PROTOCOL_GUID)
}

// NewSimpleNetwork returns a Simple Network instance for the argument
// protocol reference.
func NewSimpleNetwork(ref *ProtocolRef[SimpleNetworkProtocol]) *SimpleNetwork {
	return &SimpleNetwork{ref: ref}
}

// Start calls EFI_SIMPLE_NETWORK.Start()
func (sn *SimpleNetwork) Start() (err error) {
	return sn.ref.Call(start)
}

// Stop calls EFI_SIMPLE_NETWORK.Stop()
func (sn *SimpleNetwork) Stop() (err error) {
	return sn.ref.Call(stop)
}

// Initialize calls EFI_SIMPLE_NETWORK.Initialize()
func (sn *SimpleNetwork) Initialize() (err error) {
	return sn.ref.Call(initialize, 0, 0)
}

// GetStatus calls EFI_SIMPLE_NETWORK.GetStatus()
func (sn *SimpleNetwork) GetStatus() (interruptStatus uint32, txBuf uint64, err error) {
	err = sn.ref.Call(getStatus,
		ptrval(&interruptStatus),
		ptrval(&txBuf),
	)

	return
}

// Transmit calls EFI_SIMPLE_NETWORK.Transmit(), the function waits for
// EFI_SIMPLE_NETWORK.GetStatus() to report a transmit interrupt before
// returning.
func (sn *SimpleNetwork) Transmit(buf []byte) (err error) {
	var interruptStatus uint32

	if err = sn.ref.boot.lc.check("Transmit"); err != nil {
		return
	}

	if len(buf) == 0 {
		return newError("Transmit, empty buffer", InvalidParameter)
	}

	err = sn.ref.Call(transmit,
		0,
		uint64(len(buf)),
		ptrval(&buf[0]),
		0,
		0,
		0,
	)
	runtime.KeepAlive(buf)

	if err != nil {
		return
	}

	for i := 0; i < maxTransmitPolls; i++ {
		if interruptStatus, _, err = sn.GetStatus(); err != nil {
			return
		}

		if interruptStatus&EFI_SIMPLE_NETWORK_TRANSMIT_INTERRUPT != 0 {
			return
		}
	}

	return newError("Transmit", Timeout)
}

// Receive calls EFI_SIMPLE_NETWORK.Receive(), a missing packet is reported as
// zero bytes read.
func (sn *SimpleNetwork) Receive(buf []byte) (n int, err error) {
	size := uint64(len(buf))

	if size == 0 {
		return
	}

	err = sn.ref.Call(receive,
		0,
		ptrval(&size),
		ptrval(&buf[0]),
		0,
		0,
		0,
	)

	switch {
	case errors.Is(err, NotReady):
		return 0, nil
	case err != nil:
		return 0, err
	}

	return int(size), nil
}
