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

// Package leveldbkv is an audit.KeyValue backed by a single on-disk
// github.com/syndtr/goleveldb database file.
package leveldbkv

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/scarlett-os/kernel/pkg/audit"
)

// KeyValue wraps an open leveldb database file.
type KeyValue struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the leveldb file at path.
func Open(path string) (*KeyValue, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &KeyValue{db: db}, nil
}

func (kv *KeyValue) Get(key string) (string, error) {
	v, err := kv.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return "", audit.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (kv *KeyValue) Set(key, value string) error {
	return kv.db.Put([]byte(key), []byte(value), nil)
}

func (kv *KeyValue) Delete(key string) error {
	return kv.db.Delete([]byte(key), nil)
}

func (kv *KeyValue) Find(start string) audit.Iterator {
	var rng *util.Range
	if start != "" {
		rng = &util.Range{Start: []byte(start)}
	}
	return &iter{it: kv.db.NewIterator(rng, nil)}
}

func (kv *KeyValue) Close() error { return kv.db.Close() }

type iter struct {
	it iterator.Iterator
}

func (i *iter) Next() bool     { return i.it.Next() }
func (i *iter) Key() string    { return string(i.it.Key()) }
func (i *iter) Value() string  { return string(i.it.Value()) }
func (i *iter) Close() error   { i.it.Release(); return nil }
