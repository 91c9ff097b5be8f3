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

// Package socket is the process-wide socket ABI: socket/bind/listen/
// connect/accept/send/recv/close/setsockopt/getsockopt over a
// process-wide fd table, dispatching Stream sockets to pkg/net/tcp and
// Dgram sockets to pkg/net/ethernet's UDP layer.
package socket

import (
	"encoding/binary"
	"net"
)

// AF_INET's wire layout, 16 bytes: family, port (network order), addr
// (network order), 8 bytes of padding.
type SockAddrIn struct {
	Family uint16
	Port   uint16
	Addr   [4]byte
	Zero   [8]byte
}

// Encode renders the 16-byte wire form.
func (a SockAddrIn) Encode() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint16(buf[0:2], a.Family)
	binary.BigEndian.PutUint16(buf[2:4], a.Port)
	copy(buf[4:8], a.Addr[:])
	return buf
}

// DecodeSockAddrIn parses the 16-byte wire form.
func DecodeSockAddrIn(buf []byte) SockAddrIn {
	var a SockAddrIn
	if len(buf) < 16 {
		return a
	}
	a.Family = binary.LittleEndian.Uint16(buf[0:2])
	a.Port = binary.BigEndian.Uint16(buf[2:4])
	copy(a.Addr[:], buf[4:8])
	return a
}

func (a SockAddrIn) IP() net.IP { return net.IPv4(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3]) }

func NewSockAddrIn(ip net.IP, port uint16) SockAddrIn {
	var a SockAddrIn
	a.Family = AFInet
	a.Port = port
	v4 := ip.To4()
	copy(a.Addr[:], v4)
	return a
}

// AF_INET per the documented socket ABI.
const AFInet = 2

// Type enumerates the documented socket types.
type Type int

const (
	Stream Type = 1
	Dgram  Type = 2
	Raw    Type = 3
)

// Sockopt level/name constants per the documented getsockopt/setsockopt
// name space.
const (
	SolSocket    = 1
	SoReuseAddr  = 2
	SoKeepAlive  = 9
)
