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

package ethernet_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/scarlett-os/kernel/pkg/net/ethernet"
)

func macPair(t *testing.T) (net.HardwareAddr, net.HardwareAddr) {
	t.Helper()
	a, err := net.ParseMAC("02:00:00:00:00:01")
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}
	b, err := net.ParseMAC("02:00:00:00:00:02")
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}
	return a, b
}

func buildPair(t *testing.T) (*ethernet.IPStack, *ethernet.IPStack) {
	t.Helper()
	macA, macB := macPair(t)
	devA, devB := ethernet.NewLoopbackPair(macA, macB)
	ipA := net.IPv4(10, 0, 0, 1)
	ipB := net.IPv4(10, 0, 0, 2)

	stackA := ethernet.NewStack(devA)
	stackB := ethernet.NewStack(devB)

	ipStackA := ethernet.NewIPStack(stackA, ipA, ethernet.StaticNeighbor{IP: ipB, MAC: macB})
	ipStackB := ethernet.NewIPStack(stackB, ipB, ethernet.StaticNeighbor{IP: ipA, MAC: macA})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go stackA.Run(ctx)
	go stackB.Run(ctx)

	return ipStackA, ipStackB
}

func TestUDPRoundTripOverLoopback(t *testing.T) {
	ipA, ipB := buildPair(t)

	received := make(chan string, 1)
	ipB.RegisterUDPHandler(9000, func(srcIP net.IP, srcPort, dstPort uint16, payload []byte) {
		received <- string(payload)
	})

	if err := ipA.SendUDP(ipB.LocalIP(), 8000, 9000, []byte("hello")); err != nil {
		t.Fatalf("SendUDP: %v", err)
	}

	select {
	case msg := <-received:
		if msg != "hello" {
			t.Fatalf("received %q, want %q", msg, "hello")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for UDP datagram")
	}
}

func TestUnregisteredPortDropsSilently(t *testing.T) {
	ipA, ipB := buildPair(t)
	if err := ipA.SendUDP(ipB.LocalIP(), 8000, 9999, []byte("nobody home")); err != nil {
		t.Fatalf("SendUDP: %v", err)
	}
	// No handler registered on 9999; nothing to assert beyond "no panic".
	time.Sleep(10 * time.Millisecond)
}
