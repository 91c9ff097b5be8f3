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

// Package chanworker runs a bounded pool of goroutines over a stream
// of submitted items, the shape pkg/config's device bring-up uses to
// build several block devices (file, S3, GCS) concurrently at boot
// without each device's Open/New call blocking the next one.
package chanworker

import (
	"container/list"
	"sync"
)

// pool buffers submitted items in a FIFO queue and hands them to a
// fixed number of worker goroutines, so a slow submitter never blocks
// on a busy worker set and a burst of submissions never drops work.
type pool struct {
	submitc chan interface{}

	idlec    chan bool
	dispatch chan interface{}
	process  func(item interface{}, ok bool)
	pending  *list.List
}

// queueDepth is the buffer size of the submit and dispatch channels.
// With nWorkers > 0, fanIn drains the submit channel into an unbounded
// pending list, so a send blocks only while fanIn is busy.
const queueDepth = 16

// NewPool starts nWorkers goroutines running process on items sent on
// the returned channel. process may block; the returned channel has a
// buffer of queueDepth items.
// If nWorkers is negative, a fresh goroutine running process is
// started for every item sent on the returned channel.
// When the returned channel is closed, process is called with
// (nil, false) once every in-flight call has completed.
// If nWorkers is zero, NewPool panics.
func NewPool(nWorkers int, process func(item interface{}, ok bool)) chan<- interface{} {
	if nWorkers == 0 {
		panic("chanworker.NewPool: nWorkers must not be 0")
	}
	submitc := make(chan interface{}, queueDepth)
	if nWorkers < 0 {
		go func() {
			var wg sync.WaitGroup
			for item := range submitc {
				wg.Add(1)
				go func(item interface{}) {
					process(item, true)
					wg.Done()
				}(item)
			}
			wg.Wait()
			process(nil, false)
		}()
		return submitc
	}
	p := &pool{
		submitc:  submitc,
		dispatch: make(chan interface{}, queueDepth),
		idlec:    make(chan bool), // signaled once per worker as it drains out
		process:  process,
		pending:  list.New(),
	}
	go p.fanIn()
	for i := 0; i < nWorkers; i++ {
		go p.drain()
	}
	go func() {
		for i := 0; i < nWorkers; i++ {
			<-p.idlec
		}
		process(nil, false) // final sentinel once every worker has exited
	}()
	return submitc
}

// fanIn moves items from submitc into the unbounded pending queue and
// from there onto dispatch, so a burst of Submit calls never blocks on
// dispatch's bounded capacity.
func (p *pool) fanIn() {
	inc := p.submitc
	for inc != nil || p.pending.Len() > 0 {
		outc := p.dispatch
		var front interface{}
		if e := p.pending.Front(); e != nil {
			front = e.Value
		} else {
			outc = nil
		}
		select {
		case outc <- front:
			p.pending.Remove(p.pending.Front())
		case item, ok := <-inc:
			if !ok {
				inc = nil
				continue
			}
			p.pending.PushBack(item)
		}
	}
	close(p.dispatch)
}

// drain runs process on every item dispatch yields, then signals
// idlec once dispatch closes.
func (p *pool) drain() {
	for {
		item, ok := <-p.dispatch
		if !ok {
			p.idlec <- true
			return
		}
		p.process(item, true)
	}
}
