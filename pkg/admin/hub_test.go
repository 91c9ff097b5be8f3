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

package admin_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scarlett-os/kernel/pkg/admin"
)

func TestBroadcastReachesConnectedClient(t *testing.T) {
	h := admin.NewHub()
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.Close()

	// Give the hub a moment to register the new connection before
	// broadcasting, since registration happens on its own goroutine.
	time.Sleep(20 * time.Millisecond)
	h.Broadcast(admin.Event{Kind: "tcp_state", Data: map[string]int{"established": 2}})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var ev admin.Event
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.Kind != "tcp_state" {
		t.Fatalf("Kind = %q, want tcp_state", ev.Kind)
	}
}
