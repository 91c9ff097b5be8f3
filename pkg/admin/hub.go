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

// Package admin is cmd/kerneld's admin console push channel: a
// websocket hub that fans out block-device and TCP connection-state
// events to every connected client, adapted from the teacher's search
// result push channel to a one-way event stream instead of a
// subscribe/unsubscribe query protocol.
package admin

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10
)

// Event is one admin-console notification, tagged by kind so the
// client-side JS can dispatch on it without a second round trip.
type Event struct {
	Kind string      `json:"kind"` // "blockdev_op", "tcp_state", ...
	Data interface{} `json:"data"`
}

// Hub fans Broadcast()s out to every connected websocket client.
type Hub struct {
	upgrader   websocket.Upgrader
	register   chan *conn
	unregister chan *conn
	broadcast  chan []byte
	conns      map[*conn]bool
}

// NewHub starts the hub's run loop and returns it ready to accept
// ServeHTTP upgrades and Broadcast calls.
func NewHub() *Hub {
	h := &Hub{
		register:   make(chan *conn),
		unregister: make(chan *conn),
		broadcast:  make(chan []byte, 64),
		conns:      make(map[*conn]bool),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.conns[c] = true
		case c := <-h.unregister:
			if h.conns[c] {
				delete(h.conns, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.conns {
				select {
				case c.send <- msg:
				default:
					delete(h.conns, c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast encodes ev as JSON and queues it for every connected client.
func (h *Hub) Broadcast(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Printf("admin: marshal event: %v", err)
		return
	}
	h.broadcast <- b
}

// ServeHTTP upgrades the request to a websocket and registers the
// resulting connection with the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("admin: upgrade: %v", err)
		return
	}
	c := &conn{ws: ws, send: make(chan []byte, 32)}
	h.register <- c
	go c.writePump()
	c.readPump(h)
}

type conn struct {
	ws   *websocket.Conn
	send chan []byte
}

// readPump only drains and discards inbound frames (pings, client
// close) — the admin console is a one-way event stream, not a request
// protocol.
func (c *conn) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *conn) write(mt int, payload []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(mt, payload)
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
