// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package dispatch serializes the callbacks of a subscriber onto one goroutine.
package dispatch

import "sync"

// Queue is an unbounded FIFO for multiple producers and one blocking consumer.
//
// After Release, no more items are accepted and Pop reports the end once the remaining items were consumed. Reset
// clears the Queue and makes it usable again.
type Queue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	data     []T
	released bool
}

// NewQueue creates an empty Queue.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. False is returned for a released Queue.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.released {
		return false
	}

	q.data = append(q.data, item)
	q.cond.Signal()
	return true
}

// Pop blocks until an item is available. The second return value is false if the Queue was released and is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.data) == 0 && !q.released {
		q.cond.Wait()
	}

	if len(q.data) == 0 {
		return
	}

	item = q.data[0]
	var zero T
	q.data[0] = zero
	q.data = q.data[1:]

	ok = true
	return
}

// Release wakes all waiting consumers and rejects further items.
func (q *Queue[T]) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.released = true
	q.cond.Broadcast()
}

// Reset drops all items and accepts new ones again.
func (q *Queue[T]) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.data = nil
	q.released = false
}

// Len of the Queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.data)
}
