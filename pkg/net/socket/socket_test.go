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

package socket_test

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/scarlett-os/kernel/pkg/net/ethernet"
	"github.com/scarlett-os/kernel/pkg/net/socket"
	"github.com/scarlett-os/kernel/pkg/net/tcp"
)

func buildTables(t *testing.T) (*socket.Table, *socket.Table, net.IP, net.IP) {
	t.Helper()
	macA, _ := net.ParseMAC("02:00:00:00:00:11")
	macB, _ := net.ParseMAC("02:00:00:00:00:12")
	devA, devB := ethernet.NewLoopbackPair(macA, macB)
	ipA := net.IPv4(10, 0, 1, 1)
	ipB := net.IPv4(10, 0, 1, 2)

	ethA := ethernet.NewStack(devA)
	ethB := ethernet.NewStack(devB)
	ipStackA := ethernet.NewIPStack(ethA, ipA, ethernet.StaticNeighbor{IP: ipB, MAC: macB})
	ipStackB := ethernet.NewIPStack(ethB, ipB, ethernet.StaticNeighbor{IP: ipA, MAC: macA})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ethA.Run(ctx)
	go ethB.Run(ctx)

	tcpA := tcp.NewStack(ipStackA, rate.Limit(1000), 100)
	tcpB := tcp.NewStack(ipStackB, rate.Limit(1000), 100)

	tableA := socket.NewTable(tcpA, ipStackA)
	tableB := socket.NewTable(tcpB, ipStackB)
	return tableA, tableB, ipA, ipB
}

func TestFDAllocationStartsAtThreeAndIncreases(t *testing.T) {
	tableA, _, _, _ := buildTables(t)
	fd1, err := tableA.Socket(socket.Stream)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if fd1 != 3 {
		t.Fatalf("first fd = %d, want 3", fd1)
	}
	fd2, _ := tableA.Socket(socket.Dgram)
	if fd2 <= fd1 {
		t.Fatalf("second fd %d should be greater than first fd %d", fd2, fd1)
	}
}

func TestStreamSocketRoundTrip(t *testing.T) {
	client, server, _, serverIP := buildTables(t)

	serverFD, err := server.Socket(socket.Stream)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := server.Bind(serverFD, socket.NewSockAddrIn(serverIP, 6000)); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := server.Listen(serverFD, 4); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	acceptedFD := make(chan int, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		fd, err := server.Accept(ctx, serverFD)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		acceptedFD <- fd
	}()

	clientFD, err := client.Socket(socket.Stream)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := client.Bind(clientFD, socket.NewSockAddrIn(net.IPv4(10, 0, 1, 1), 7000)); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Connect(ctx, clientFD, socket.NewSockAddrIn(serverIP, 6000)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var acceptedOnServer int
	select {
	case acceptedOnServer = <-acceptedFD:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Accept")
	}

	if _, err := client.Send(clientFD, []byte("hi there")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	buf := make([]byte, 32)
	n, err := server.Recv(context.Background(), acceptedOnServer, buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "hi there" {
		t.Fatalf("received %q, want %q", buf[:n], "hi there")
	}

	if err := client.Close(clientFD); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDgramSocketRoundTrip(t *testing.T) {
	client, server, _, serverIP := buildTables(t)

	serverFD, err := server.Socket(socket.Dgram)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := server.Bind(serverFD, socket.NewSockAddrIn(serverIP, 6100)); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	clientFD, err := client.Socket(socket.Dgram)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := client.Bind(clientFD, socket.NewSockAddrIn(net.IPv4(10, 0, 1, 1), 7100)); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Connect(ctx, clientFD, socket.NewSockAddrIn(serverIP, 6100)); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if _, err := client.Send(clientFD, []byte("datagram")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	recvCtx, recvCancel := context.WithTimeout(context.Background(), time.Second)
	defer recvCancel()
	buf := make([]byte, 32)
	n, err := server.Recv(recvCtx, serverFD, buf)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(buf[:n]) != "datagram" {
		t.Fatalf("received %q, want %q", buf[:n], "datagram")
	}
}

func TestSendRequiresConnectedOrBound(t *testing.T) {
	client, _, _, _ := buildTables(t)
	fd, err := client.Socket(socket.Stream)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if _, err := client.Send(fd, []byte("x")); err == nil {
		t.Fatal("Send on a socket that is neither connected nor bound should fail")
	}
}

func TestSetAndGetSockOptRoundTrip(t *testing.T) {
	client, _, _, _ := buildTables(t)
	fd, err := client.Socket(socket.Stream)
	if err != nil {
		t.Fatalf("Socket: %v", err)
	}
	if err := client.SetSockOpt(fd, socket.SolSocket, socket.SoReuseAddr, 1); err != nil {
		t.Fatalf("SetSockOpt: %v", err)
	}
	v, err := client.GetSockOpt(fd, socket.SolSocket, socket.SoReuseAddr)
	if err != nil {
		t.Fatalf("GetSockOpt: %v", err)
	}
	if v != 1 {
		t.Fatalf("SO_REUSEADDR = %d, want 1", v)
	}

	if err := client.SetSockOpt(fd, socket.SolSocket, socket.SoKeepAlive, 1); err != nil {
		t.Fatalf("SetSockOpt: %v", err)
	}
	v, err = client.GetSockOpt(fd, socket.SolSocket, socket.SoKeepAlive)
	if err != nil {
		t.Fatalf("GetSockOpt: %v", err)
	}
	if v != 1 {
		t.Fatalf("SO_KEEPALIVE = %d, want 1", v)
	}
}

func TestUnknownFDReturnsError(t *testing.T) {
	client, _, _, _ := buildTables(t)
	if _, err := client.Send(999, []byte("x")); err == nil {
		t.Fatal("Send on an unknown fd should fail")
	}
}
