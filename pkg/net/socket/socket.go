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

package socket

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/scarlett-os/kernel/pkg/errkind"
	"github.com/scarlett-os/kernel/pkg/net/ethernet"
	"github.com/scarlett-os/kernel/pkg/net/tcp"
)

// firstFD matches the documented "fd allocation starts at 3".
const firstFD = 3

type datagram struct {
	srcIP   net.IP
	srcPort uint16
	payload []byte
}

// Socket is one entry in the process-wide socket list.
type Socket struct {
	fd   int
	typ  Type
	opts map[int]int

	localIP    net.IP
	localPort  uint16
	remoteIP   net.IP
	remotePort uint16
	bound      bool
	connected  bool

	conn     *tcp.Connection // Stream
	listener *tcp.Listener   // Stream, listening

	recvQueue chan datagram // Dgram
}

// Table is the process-wide socket list: a linked structure in the
// documented design, a map here since Go gives O(1) fd lookup for
// free without losing the "process-wide list" semantics.
type Table struct {
	mu        sync.Mutex
	sockets   map[int]*Socket
	nextFD    int
	tcpStack  *tcp.Stack
	ipStack   *ethernet.IPStack
	udpByPort map[uint16]*Socket
}

// NewTable binds a socket table to the given TCP and IP stacks.
func NewTable(tcpStack *tcp.Stack, ipStack *ethernet.IPStack) *Table {
	return &Table{
		sockets:   make(map[int]*Socket),
		nextFD:    firstFD,
		tcpStack:  tcpStack,
		ipStack:   ipStack,
		udpByPort: make(map[uint16]*Socket),
	}
}

// Socket allocates a new socket of the given type (AF_INET implied —
// this stack speaks only IPv4) and returns its fd.
func (t *Table) Socket(typ Type) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.nextFD
	t.nextFD++
	t.sockets[fd] = &Socket{fd: fd, typ: typ, opts: make(map[int]int)}
	return fd, nil
}

func (t *Table) get(fd int) (*Socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sockets[fd]
	if !ok {
		return nil, errkind.New("socket.get", errkind.NotFound, fmt.Errorf("no such socket fd %d", fd))
	}
	return s, nil
}

// Bind assigns the local address.
func (t *Table) Bind(fd int, addr SockAddrIn) error {
	s, err := t.get(fd)
	if err != nil {
		return err
	}
	s.localIP = addr.IP()
	s.localPort = addr.Port
	s.bound = true
	if s.typ == Dgram {
		s.recvQueue = make(chan datagram, 64)
		t.mu.Lock()
		t.udpByPort[s.localPort] = s
		t.mu.Unlock()
		t.ipStack.RegisterUDPHandler(s.localPort, func(srcIP net.IP, srcPort, dstPort uint16, payload []byte) {
			if dstPort != s.localPort {
				return
			}
			select {
			case s.recvQueue <- datagram{srcIP: srcIP, srcPort: srcPort, payload: payload}:
			default:
			}
		})
	}
	return nil
}

// Listen marks the bound port as accepting connections.
func (t *Table) Listen(fd int, backlog int) error {
	s, err := t.get(fd)
	if err != nil {
		return err
	}
	if s.typ != Stream {
		return errkind.New("socket.Listen", errkind.InvalidArg, fmt.Errorf("Listen is only valid for Stream sockets"))
	}
	l, err := t.tcpStack.Listen(s.localPort, backlog)
	if err != nil {
		return errkind.New("socket.Listen", errkind.AlreadyExists, err)
	}
	s.listener = l
	return nil
}

// Connect performs the Stream handshake (blocking, real three-way)
// or, for Dgram sockets, simply records the peer to send/recv against.
func (t *Table) Connect(ctx context.Context, fd int, addr SockAddrIn) error {
	s, err := t.get(fd)
	if err != nil {
		return err
	}
	switch s.typ {
	case Stream:
		conn, err := t.tcpStack.Dial(ctx, s.localPort, addr.IP(), addr.Port)
		if err != nil {
			return err
		}
		s.conn = conn
		s.remoteIP = addr.IP()
		s.remotePort = addr.Port
		s.connected = true
		return nil
	case Dgram:
		s.remoteIP = addr.IP()
		s.remotePort = addr.Port
		s.connected = true
		return nil
	default:
		return errkind.New("socket.Connect", errkind.NotSupported, fmt.Errorf("connect not supported for Raw sockets"))
	}
}

// Accept pops the next completed connection from the listener's
// queue, allocating a new socket with its 4-tuple, or returns
// NotFound (the "returns -1" non-blocking case) when ctx expires
// immediately with nothing ready.
func (t *Table) Accept(ctx context.Context, fd int) (int, error) {
	s, err := t.get(fd)
	if err != nil {
		return -1, err
	}
	if s.listener == nil {
		return -1, errkind.New("socket.Accept", errkind.InvalidArg, fmt.Errorf("fd %d is not listening", fd))
	}
	conn, err := s.listener.Accept(ctx)
	if err != nil {
		return -1, errkind.New("socket.Accept", errkind.NotFound, err)
	}
	newFD, _ := t.Socket(Stream)
	accepted, _ := t.get(newFD)
	accepted.conn = conn
	accepted.localIP = conn.LocalIP
	accepted.localPort = conn.LocalPort
	accepted.remoteIP = conn.RemoteIP
	accepted.remotePort = conn.RemotePort
	accepted.connected = true
	return newFD, nil
}

// Send requires connected||bound, per the documented precondition.
func (t *Table) Send(fd int, buf []byte) (int, error) {
	s, err := t.get(fd)
	if err != nil {
		return 0, err
	}
	if !s.connected && !s.bound {
		return 0, errkind.New("socket.Send", errkind.InvalidArg, fmt.Errorf("fd %d is neither connected nor bound", fd))
	}
	switch s.typ {
	case Stream:
		if s.conn == nil {
			return 0, errkind.New("socket.Send", errkind.InvalidArg, fmt.Errorf("fd %d has no attached connection", fd))
		}
		return s.conn.Send(buf)
	case Dgram:
		if !s.connected {
			return 0, errkind.New("socket.Send", errkind.InvalidArg, fmt.Errorf("fd %d has no destination", fd))
		}
		if err := t.ipStack.SendUDP(s.remoteIP, s.localPort, s.remotePort, buf); err != nil {
			return 0, err
		}
		return len(buf), nil
	default:
		return 0, errkind.New("socket.Send", errkind.NotSupported, fmt.Errorf("send not supported for Raw sockets"))
	}
}

// Recv reads from the attached connection (Stream) or the next
// arrived datagram (Dgram), filtering Dgram arrivals by dest_port ==
// local_port as documented.
func (t *Table) Recv(ctx context.Context, fd int, buf []byte) (int, error) {
	s, err := t.get(fd)
	if err != nil {
		return 0, err
	}
	switch s.typ {
	case Stream:
		if s.conn == nil {
			return 0, errkind.New("socket.Recv", errkind.InvalidArg, fmt.Errorf("fd %d has no attached connection", fd))
		}
		return s.conn.Receive(buf), nil
	case Dgram:
		if s.recvQueue == nil {
			return 0, errkind.New("socket.Recv", errkind.InvalidArg, fmt.Errorf("fd %d is not bound", fd))
		}
		select {
		case d := <-s.recvQueue:
			return copy(buf, d.payload), nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	default:
		return 0, errkind.New("socket.Recv", errkind.NotSupported, fmt.Errorf("recv not supported for Raw sockets"))
	}
}

// Close removes the socket from the global list and, for Stream,
// drives the connection toward TimeWait via tcp_close.
func (t *Table) Close(fd int) error {
	s, err := t.get(fd)
	if err != nil {
		return err
	}
	t.mu.Lock()
	delete(t.sockets, fd)
	if s.typ == Dgram && s.bound {
		delete(t.udpByPort, s.localPort)
	}
	t.mu.Unlock()

	if s.typ == Stream && s.conn != nil {
		return s.conn.Close()
	}
	if s.typ == Stream && s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

// SetSockOpt stores a (level, name) -> value pair; only SOL_SOCKET's
// documented names are recognized.
func (t *Table) SetSockOpt(fd, level, name, value int) error {
	s, err := t.get(fd)
	if err != nil {
		return err
	}
	if level != SolSocket || (name != SoReuseAddr && name != SoKeepAlive) {
		return errkind.New("socket.SetSockOpt", errkind.InvalidArg, fmt.Errorf("unsupported level/name %d/%d", level, name))
	}
	s.opts[name] = value
	return nil
}

// GetSockOpt returns a previously set option's value, defaulting to 0.
func (t *Table) GetSockOpt(fd, level, name int) (int, error) {
	s, err := t.get(fd)
	if err != nil {
		return 0, err
	}
	if level != SolSocket {
		return 0, errkind.New("socket.GetSockOpt", errkind.InvalidArg, fmt.Errorf("unsupported level %d", level))
	}
	return s.opts[name], nil
}
