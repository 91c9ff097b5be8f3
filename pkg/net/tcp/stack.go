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

package tcp

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"golang.org/x/time/rate"

	"github.com/scarlett-os/kernel/pkg/net/ethernet"
)

// Stack is the TCP layer bound to one IPStack: one spinlock-equivalent
// mutex guards the connection and listener tables, matching §5's
// per-subsystem lock model. A rate.Limiter throttles how fast Dial
// admits new outbound connection attempts; inbound SYNs are not
// throttled.
type Stack struct {
	ip      *ethernet.IPStack
	limiter *rate.Limiter

	mu            sync.Mutex
	conns         map[fourTuple]*Connection
	listeners     map[uint16]*Listener
	pendingAccept map[fourTuple]*Listener
}

// NewStack wires itself as ip's TCP ingress handler. ratePerSec/burst
// bound Dial's new-connection admission; pass a large burst and rate.Inf-like
// values to effectively disable throttling.
func NewStack(ip *ethernet.IPStack, ratePerSec rate.Limit, burst int) *Stack {
	s := &Stack{
		ip:            ip,
		limiter:       rate.NewLimiter(ratePerSec, burst),
		conns:         make(map[fourTuple]*Connection),
		listeners:     make(map[uint16]*Listener),
		pendingAccept: make(map[fourTuple]*Listener),
	}
	ip.SetTCPIngress(s.handleSegment)
	return s
}

// Listener accepts completed inbound connections on one bound port.
type Listener struct {
	stack   *Stack
	port    uint16
	backlog chan *Connection
}

// Accept pops the next completed connection, blocking until one
// arrives or ctx is done.
func (l *Listener) Accept(ctx context.Context) (*Connection, error) {
	select {
	case c := <-l.backlog:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unbinds the listener's port, after which inbound SYNs for it
// are dropped rather than queued. Closing an already-closed Listener
// returns errNoListener.
func (l *Listener) Close() error {
	l.stack.mu.Lock()
	defer l.stack.mu.Unlock()
	if cur, ok := l.stack.listeners[l.port]; !ok || cur != l {
		return errNoListener
	}
	delete(l.stack.listeners, l.port)
	return nil
}

// Listen binds port and marks it as accepting connections in the
// listener table.
func (s *Stack) Listen(port uint16, backlog int) (*Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.listeners[port]; exists {
		return nil, errPortInUse
	}
	l := &Listener{stack: s, port: port, backlog: make(chan *Connection, backlog)}
	s.listeners[port] = l
	return l, nil
}

func (s *Stack) forget(t fourTuple) {
	s.mu.Lock()
	delete(s.conns, t)
	s.mu.Unlock()
}

func isn() uint32 {
	var b [4]byte
	rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Dial performs a real three-way handshake: it sends a SYN, transitions
// to SynSent, and blocks until the peer's SYN-ACK arrives (sending the
// final ACK and moving to Established) or ctx is done.
func (s *Stack) Dial(ctx context.Context, localPort uint16, remoteIP net.IP, remotePort uint16) (*Connection, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	c := &Connection{
		stack:         s,
		LocalIP:       s.ip.LocalIP(),
		RemoteIP:      remoteIP,
		LocalPort:     localPort,
		RemotePort:    remotePort,
		state:         SynSent,
		sndNxt:        isn(),
		window:        uint16(defaultRecvBufSize),
		recv:          newRecvBuf(defaultRecvBufSize),
		handshakeDone: make(chan struct{}),
	}

	s.mu.Lock()
	s.conns[c.tuple()] = c
	s.mu.Unlock()

	if err := s.sendSegment(c, c.sndNxt, 0, FlagSYN, nil); err != nil {
		s.forget(c.tuple())
		return nil, err
	}
	c.mu.Lock()
	c.sndNxt++
	c.mu.Unlock()

	select {
	case <-c.handshakeDone:
		if c.State() != Established {
			s.forget(c.tuple())
			return nil, errHandshakeFail
		}
		return c, nil
	case <-ctx.Done():
		s.forget(c.tuple())
		return nil, ctx.Err()
	}
}

// sendSegment builds and transmits one TCP segment carrying seq/ack/
// flags/payload.
func (s *Stack) sendSegment(c *Connection, seq, ack uint32, flags Flags, payload []byte) error {
	tcpLayer := &layers.TCP{
		SrcPort: layers.TCPPort(c.LocalPort),
		DstPort: layers.TCPPort(c.RemotePort),
		Seq:     seq,
		Ack:     ack,
		Window:  c.window,
		DataOffset: 5,
		FIN: flags.Has(FlagFIN),
		SYN: flags.Has(FlagSYN),
		RST: flags.Has(FlagRST),
		PSH: flags.Has(FlagPSH),
		ACK: flags.Has(FlagACK),
		URG: flags.Has(FlagURG),
	}
	tcpLayer.SetNetworkLayerForChecksum(&layers.IPv4{SrcIP: c.LocalIP, DstIP: c.RemoteIP, Protocol: layers.IPProtocolTCP})

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, tcpLayer, gopacket.Payload(payload)); err != nil {
		return err
	}
	return s.ip.SendTCP(c.RemoteIP, buf.Bytes())
}

// handleSegment is the IPStack TCP ingress callback: it decodes the
// raw segment and drives the connection (or listener) state machine.
func (s *Stack) handleSegment(srcIP, dstIP net.IP, raw []byte) {
	var seg layers.TCP
	if err := seg.DecodeFromBytes(raw, gopacket.NilDecodeFeedback); err != nil {
		return
	}
	localPort := uint16(seg.DstPort)
	remotePort := uint16(seg.SrcPort)
	t := tuple(dstIP, localPort, srcIP, remotePort)

	s.mu.Lock()
	c, found := s.conns[t]
	s.mu.Unlock()

	if !found {
		if seg.SYN && !seg.ACK {
			s.acceptIncomingSyn(srcIP, dstIP, localPort, remotePort, seg.Seq)
		}
		return
	}

	switch c.State() {
	case SynSent:
		if seg.SYN && seg.ACK {
			c.mu.Lock()
			c.rcvNxt = seg.Seq + 1
			ack := c.rcvNxt
			seq := c.sndNxt
			c.state = Established
			c.mu.Unlock()
			s.sendSegment(c, seq, ack, FlagACK, nil)
			close(c.handshakeDone)
		}
	case SynReceived:
		if seg.ACK {
			c.setState(Established)
			s.completeAccept(c)
		}
	case Established, CloseWait:
		s.deliverEstablished(c, &seg)
	case FinWait1:
		if seg.FIN && seg.ACK {
			c.setState(TimeWait)
			s.forget(c.tuple())
		} else if seg.ACK {
			c.setState(FinWait2)
		} else if seg.FIN {
			c.setState(Closing)
		}
	case FinWait2:
		if seg.FIN {
			c.setState(TimeWait)
			c.mu.Lock()
			ack := seg.Seq + 1
			seq := c.sndNxt
			c.mu.Unlock()
			s.sendSegment(c, seq, ack, FlagACK, nil)
			s.forget(c.tuple())
		}
	case Closing:
		if seg.ACK {
			c.setState(TimeWait)
			s.forget(c.tuple())
		}
	case LastAck:
		if seg.ACK {
			c.setState(Closed)
			s.forget(c.tuple())
		}
	}
}

func (s *Stack) deliverEstablished(c *Connection, seg *layers.TCP) {
	payload := seg.LayerPayload()
	if len(payload) > 0 {
		c.recv.Write(payload)
		c.mu.Lock()
		c.rcvNxt = seg.Seq + uint32(len(payload))
		ack := c.rcvNxt
		seq := c.sndNxt
		c.mu.Unlock()
		s.sendSegment(c, seq, ack, FlagACK, nil)
	}
	if seg.FIN {
		c.mu.Lock()
		c.rcvNxt = seg.Seq + 1
		ack := c.rcvNxt
		seq := c.sndNxt
		c.state = CloseWait
		c.mu.Unlock()
		s.sendSegment(c, seq, ack, FlagACK, nil)
	}
}

// acceptIncomingSyn handles a SYN with no matching connection: if a
// listener is bound to the destination port, allocate a SynReceived
// connection and reply with SYN-ACK; otherwise the segment is dropped
// (a faithful implementation would send RST).
func (s *Stack) acceptIncomingSyn(srcIP, dstIP net.IP, localPort, remotePort uint16, peerSeq uint32) {
	s.mu.Lock()
	l, ok := s.listeners[localPort]
	s.mu.Unlock()
	if !ok {
		return
	}

	c := &Connection{
		stack:      s,
		LocalIP:    dstIP,
		RemoteIP:   srcIP,
		LocalPort:  localPort,
		RemotePort: remotePort,
		state:      SynReceived,
		sndNxt:     isn(),
		rcvNxt:     peerSeq + 1,
		window:     uint16(defaultRecvBufSize),
		recv:       newRecvBuf(defaultRecvBufSize),
	}
	s.mu.Lock()
	s.conns[c.tuple()] = c
	s.pendingAccept[c.tuple()] = l
	s.mu.Unlock()

	s.sendSegment(c, c.sndNxt, c.rcvNxt, FlagSYN|FlagACK, nil)
	c.mu.Lock()
	c.sndNxt++
	c.mu.Unlock()
}

func (s *Stack) completeAccept(c *Connection) {
	s.mu.Lock()
	l, ok := s.pendingAccept[c.tuple()]
	if ok {
		delete(s.pendingAccept, c.tuple())
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case l.backlog <- c:
	default:
	}
}
