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
	"net"
	"sync"
)

// fourTuple identifies a connection the way the connection record
// does: local and remote ip/port.
type fourTuple struct {
	localIP    string
	localPort  uint16
	remoteIP   string
	remotePort uint16
}

func tuple(localIP net.IP, localPort uint16, remoteIP net.IP, remotePort uint16) fourTuple {
	return fourTuple{localIP: localIP.String(), localPort: localPort, remoteIP: remoteIP.String(), remotePort: remotePort}
}

// Connection is one TCP connection record.
type Connection struct {
	stack *Stack

	LocalIP    net.IP
	RemoteIP   net.IP
	LocalPort  uint16
	RemotePort uint16

	mu      sync.Mutex
	state   State
	sndNxt  uint32
	rcvNxt  uint32
	window  uint16
	recv    *recvBuf
	handshakeDone chan struct{}
}

// State returns the connection's current RFC 793 state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) tuple() fourTuple {
	return tuple(c.LocalIP, c.LocalPort, c.RemoteIP, c.RemotePort)
}

// Send writes p as TCP payload, requiring the connection be
// Established or CloseWait (send requires connected, per the socket
// send precondition).
func (c *Connection) Send(p []byte) (int, error) {
	c.mu.Lock()
	if c.state != Established && c.state != CloseWait {
		c.mu.Unlock()
		return 0, errNotConnected
	}
	seq := c.sndNxt
	ack := c.rcvNxt
	c.sndNxt += uint32(len(p))
	c.mu.Unlock()

	if err := c.stack.sendSegment(c, seq, ack, FlagACK|FlagPSH, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Receive reads up to len(p) buffered bytes, blocking until data
// arrives.
func (c *Connection) Receive(p []byte) int {
	return c.recv.Read(p)
}

// Close sends a FIN and moves the connection toward TimeWait/Closed;
// the connection stays registered with the stack so the peer's
// closing ACK/FIN still reaches handleSegment and completes the
// teardown (see Stack.handleSegment). That applies from Established or
// CloseWait; in any other state Close sends nothing, closes the receive
// buffer and unregisters the connection at once.
func (c *Connection) Close() error {
	c.mu.Lock()
	state := c.state
	seq := c.sndNxt
	ack := c.rcvNxt
	c.sndNxt++
	switch state {
	case Established:
		c.state = FinWait1
	case CloseWait:
		c.state = LastAck
	default:
		c.mu.Unlock()
		c.recv.Close()
		c.stack.forget(c.tuple())
		return nil
	}
	c.mu.Unlock()
	return c.stack.sendSegment(c, seq, ack, FlagFIN|FlagACK, nil)
}
