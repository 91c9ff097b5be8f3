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

// Package audit is an append-only log of authorization decisions, kept
// as sorted key/value pairs — a monotonic, zero-padded sequence number
// for a key and a JSON-encoded Entry for a value — so any KeyValue
// implementation (memory, on-disk, or a SQL table) can back it
// interchangeably.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound matches sorted.KeyValue's sentinel: the key has no value.
var ErrNotFound = errors.New("audit: key not found")

// KeyValue is the narrow sorted-enumerable interface every audit
// backend implements. It deliberately mirrors pkg/sorted's KeyValue
// shape (Get/Set/Delete/Find/Close) rather than importing it, so a
// backend needs only a handful of methods instead of the whole index
// storage surface.
type KeyValue interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error

	// Find returns an iterator over keys >= start, in key order.
	Find(start string) Iterator

	Close() error
}

// Iterator walks a KeyValue's entries in key order.
type Iterator interface {
	Next() bool
	Key() string
	Value() string
	Close() error
}

// Entry is one recorded authorization decision.
type Entry struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	UID      uint32    `json:"uid"`
	GID      uint32    `json:"gid"`
	Op       string    `json:"op"`
	Resource string    `json:"resource"`
	Allowed  bool      `json:"allowed"`
	Reason   string    `json:"reason,omitempty"`
}

// seqKey formats seq as a fixed-width, lexicographically-ordered key.
func seqKey(seq uint64) string {
	return fmt.Sprintf("%020d", seq)
}

// Log is an audit trail backed by one KeyValue store.
type Log struct {
	mu  sync.Mutex
	kv  KeyValue
	seq uint64
}

// New wraps kv as an audit Log. The sequence counter resumes from the
// highest key already present, so reopening a persisted backend does
// not collide with or overwrite prior entries.
func New(kv KeyValue) (*Log, error) {
	l := &Log{kv: kv}
	it := kv.Find("")
	defer it.Close()
	for it.Next() {
		var seq uint64
		if _, err := fmt.Sscanf(it.Key(), "%020d", &seq); err == nil && seq >= l.seq {
			l.seq = seq + 1
		}
	}
	return l, nil
}

// Record appends e to the log, assigning it the next sequence number
// and timestamp if unset.
func (l *Log) Record(e Entry) error {
	l.mu.Lock()
	e.Seq = l.seq
	l.seq++
	l.mu.Unlock()

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	buf, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return l.kv.Set(seqKey(e.Seq), string(buf))
}

// All returns every recorded entry in sequence order.
func (l *Log) All() ([]Entry, error) {
	it := l.kv.Find("")
	defer it.Close()

	var out []Entry
	for it.Next() {
		var e Entry
		if err := json.Unmarshal([]byte(it.Value()), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Recent returns the last n recorded entries, oldest first.
func (l *Log) Recent(n int) ([]Entry, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}

// Close closes the underlying backend.
func (l *Log) Close() error { return l.kv.Close() }
