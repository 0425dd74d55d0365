// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dispatch

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Handler is invoked by the Dispatcher with the Dispatcher's source and an item's payload.
type Handler[S any] func(source S, payload any)

type entry[S any] struct {
	payload any
	handler Handler[S]
}

// Dispatcher invokes Handlers in the order of their Dispatch calls on a single goroutine.
//
// A payload is referenced by its queue entry until its Handler has returned. Thus, a payload referring to shared
// state, e.g., a signal index cache, keeps this state alive even if it was replaced in the meantime.
type Dispatcher[S any] struct {
	source S
	queue  *Queue[entry[S]]

	running *atomic.Bool

	stopMutex sync.Mutex
	stopAck   chan struct{}
}

// NewDispatcher for a source. The Dispatcher must be started by Start.
func NewDispatcher[S any](source S) *Dispatcher[S] {
	stopAck := make(chan struct{})
	close(stopAck)

	return &Dispatcher[S]{
		source: source,
		queue:  NewQueue[entry[S]](),

		running: atomic.NewBool(false),
		stopAck: stopAck,
	}
}

func (d *Dispatcher[S]) log() *log.Entry {
	return log.WithField("dispatcher", fmt.Sprintf("%v", d.source))
}

// Start the consuming goroutine. A released Dispatcher is reset first.
func (d *Dispatcher[S]) Start() {
	if !d.running.CompareAndSwap(false, true) {
		return
	}

	d.queue.Reset()

	d.stopMutex.Lock()
	d.stopAck = make(chan struct{})
	stopAck := d.stopAck
	d.stopMutex.Unlock()

	go d.handle(stopAck)
}

func (d *Dispatcher[S]) handle(stopAck chan struct{}) {
	defer close(stopAck)

	for {
		e, ok := d.queue.Pop()
		if !ok {
			d.log().Debug("Dispatcher was released")
			return
		}

		d.invoke(e)
	}
}

func (d *Dispatcher[S]) invoke(e entry[S]) {
	defer func() {
		if r := recover(); r != nil {
			d.log().WithField("panic", r).Error("Callback panicked")
		}
	}()

	e.handler(d.source, e.payload)
}

// Dispatch queues a Handler with its payload. False is returned if the Dispatcher was released.
func (d *Dispatcher[S]) Dispatch(payload any, handler Handler[S]) bool {
	if handler == nil {
		return false
	}
	return d.queue.Push(entry[S]{payload: payload, handler: handler})
}

// Pending is the amount of queued Handlers.
func (d *Dispatcher[S]) Pending() int {
	return d.queue.Len()
}

// Release the Dispatcher. Already queued Handlers are still executed, new ones are rejected.
func (d *Dispatcher[S]) Release() {
	d.queue.Release()
}

// Wait until the consuming goroutine has returned after Release.
func (d *Dispatcher[S]) Wait() {
	d.stopMutex.Lock()
	stopAck := d.stopAck
	d.stopMutex.Unlock()

	<-stopAck
	d.running.Store(false)
}
