/*
Copyright 2026 The Scarlett Kernel Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ethernet

import (
	"context"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Handler processes one frame's payload for a registered EtherType.
type Handler func(src net.HardwareAddr, payload []byte)

// Stack is the Ethernet dispatch table bound to one Device: one
// spinlock-equivalent mutex guards the handler table, matching §5's
// "one lock per subsystem" model for the Ethernet handler table.
type Stack struct {
	mu       sync.Mutex
	dev      Device
	handlers map[layers.EthernetType]Handler
}

// NewStack binds a dispatch table to dev.
func NewStack(dev Device) *Stack {
	return &Stack{dev: dev, handlers: make(map[layers.EthernetType]Handler)}
}

// RegisterHandler installs the handler for an EtherType, replacing any
// previous registration.
func (s *Stack) RegisterHandler(et layers.EthernetType, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[et] = h
}

func (s *Stack) handlerFor(et layers.EthernetType) (Handler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[et]
	return h, ok
}

// LocalAddr is this stack's own hardware address.
func (s *Stack) LocalAddr() net.HardwareAddr { return s.dev.HardwareAddr() }

// SendFrame serializes an Ethernet header around payload and transmits
// it through the device.
func (s *Stack) SendFrame(dst net.HardwareAddr, et layers.EthernetType, payload []byte) error {
	eth := &layers.Ethernet{
		SrcMAC:       s.dev.HardwareAddr(),
		DstMAC:       dst,
		EthernetType: et,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(payload)); err != nil {
		return err
	}
	return s.dev.Send(buf.Bytes())
}

// Run drains frames from the device until ctx is done, dispatching
// each to its registered EtherType handler. Unregistered types are
// silently dropped, the way a NIC driver ignores protocols it wasn't
// told to handle.
func (s *Stack) Run(ctx context.Context) error {
	for {
		frame, err := s.dev.Recv(ctx)
		if err != nil {
			return err
		}
		pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
		ethLayer := pkt.Layer(layers.LayerTypeEthernet)
		if ethLayer == nil {
			continue
		}
		eth, ok := ethLayer.(*layers.Ethernet)
		if !ok {
			continue
		}
		h, ok := s.handlerFor(eth.EthernetType)
		if !ok {
			continue
		}
		h(eth.SrcMAC, eth.LayerPayload())
	}
}
