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
	"fmt"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// UDPHandler receives one UDP datagram's payload.
type UDPHandler func(srcIP net.IP, srcPort, dstPort uint16, payload []byte)

// TCPHandler receives one raw TCP segment (header + payload), leaving
// decoding to pkg/net/tcp so this package never imports it.
type TCPHandler func(srcIP, dstIP net.IP, segment []byte)

// Neighbor resolves an IPv4 address to a hardware address. A real
// implementation would be ARP; this kernel's scope is a single
// directly-attached link, so the caller supplies the mapping (often
// just the other end of a loopback pair).
type Neighbor interface {
	Resolve(ip net.IP) (net.HardwareAddr, error)
}

// StaticNeighbor is a one-entry Neighbor table, sufficient for a
// point-to-point link.
type StaticNeighbor struct {
	IP  net.IP
	MAC net.HardwareAddr
}

func (n StaticNeighbor) Resolve(ip net.IP) (net.HardwareAddr, error) {
	if ip.Equal(n.IP) {
		return n.MAC, nil
	}
	return nil, fmt.Errorf("ethernet: no route to %s", ip)
}

// IPStack layers IPv4 + UDP dispatch over an Ethernet Stack.
type IPStack struct {
	eth      *Stack
	localIP  net.IP
	neighbor Neighbor

	mu          sync.Mutex
	udpHandlers map[uint16]UDPHandler
	tcpIngress  TCPHandler
}

// NewIPStack registers itself as the Ethernet stack's IPv4 handler.
func NewIPStack(eth *Stack, localIP net.IP, neighbor Neighbor) *IPStack {
	ip := &IPStack{eth: eth, localIP: localIP, neighbor: neighbor, udpHandlers: make(map[uint16]UDPHandler)}
	eth.RegisterHandler(layers.EthernetTypeIPv4, ip.handleFrame)
	return ip
}

// SetTCPIngress installs the callback pkg/net/tcp uses to receive raw
// segments; there is exactly one per IPStack.
func (ip *IPStack) SetTCPIngress(h TCPHandler) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.tcpIngress = h
}

// RegisterUDPHandler binds h to receive datagrams addressed to port.
func (ip *IPStack) RegisterUDPHandler(port uint16, h UDPHandler) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	ip.udpHandlers[port] = h
}

func (ip *IPStack) handleFrame(_ net.HardwareAddr, payload []byte) {
	var v4 layers.IPv4
	if err := v4.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return
	}
	switch v4.Protocol {
	case layers.IPProtocolUDP:
		var udp layers.UDP
		if err := udp.DecodeFromBytes(v4.LayerPayload(), gopacket.NilDecodeFeedback); err != nil {
			return
		}
		ip.mu.Lock()
		h, ok := ip.udpHandlers[uint16(udp.DstPort)]
		ip.mu.Unlock()
		if ok {
			h(v4.SrcIP, uint16(udp.SrcPort), uint16(udp.DstPort), udp.LayerPayload())
		}
	case layers.IPProtocolTCP:
		ip.mu.Lock()
		h := ip.tcpIngress
		ip.mu.Unlock()
		if h != nil {
			h(v4.SrcIP, v4.DstIP, v4.LayerPayload())
		}
	}
}

// LocalIP is this stack's own IPv4 address.
func (ip *IPStack) LocalIP() net.IP { return ip.localIP }

func (ip *IPStack) send(dstIP net.IP, proto layers.IPProtocol, payload gopacket.SerializableLayer, raw []byte) error {
	mac, err := ip.neighbor.Resolve(dstIP)
	if err != nil {
		return err
	}
	v4 := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    ip.localIP,
		DstIP:    dstIP,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	var err2 error
	if payload != nil {
		err2 = gopacket.SerializeLayers(buf, opts, v4, payload, gopacket.Payload(raw))
	} else {
		err2 = gopacket.SerializeLayers(buf, opts, v4, gopacket.Payload(raw))
	}
	if err2 != nil {
		return err2
	}
	return ip.eth.SendFrame(mac, layers.EthernetTypeIPv4, buf.Bytes())
}

// SendUDP transmits one UDP datagram.
func (ip *IPStack) SendUDP(dstIP net.IP, srcPort, dstPort uint16, payload []byte) error {
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	udp.SetNetworkLayerForChecksum(&layers.IPv4{SrcIP: ip.localIP, DstIP: dstIP, Protocol: layers.IPProtocolUDP})
	return ip.send(dstIP, layers.IPProtocolUDP, udp, payload)
}

// SendTCP transmits a pre-built raw TCP segment (pkg/net/tcp owns
// segment construction so it can carry sequence/ack/flags state this
// package knows nothing about).
func (ip *IPStack) SendTCP(dstIP net.IP, segment []byte) error {
	return ip.send(dstIP, layers.IPProtocolTCP, nil, segment)
}
