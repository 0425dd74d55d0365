// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dispatch

import (
	"sync"
	"testing"
	"time"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()

	for i := 0; i < 100; i++ {
		if !q.Push(i) {
			t.Fatalf("push %d failed", i)
		}
	}

	for i := 0; i < 100; i++ {
		if item, ok := q.Pop(); !ok || item != i {
			t.Fatalf("pop %d returned %d, %t", i, item, ok)
		}
	}
}

func TestQueueBlockingPop(t *testing.T) {
	q := NewQueue[string]()
	result := make(chan string)

	go func() {
		item, _ := q.Pop()
		result <- item
	}()

	select {
	case <-result:
		t.Fatal("Pop returned on an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push("hello")

	select {
	case item := <-result:
		if item != "hello" {
			t.Fatalf("item is %q", item)
		}
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timeout")
	}
}

func TestQueueReleaseAndReset(t *testing.T) {
	q := NewQueue[int]()
	q.Push(1)

	done := make(chan struct{})
	q.Release()

	go func() {
		defer close(done)

		if item, ok := q.Pop(); !ok || item != 1 {
			t.Errorf("remaining item is %d, %t", item, ok)
		}
		if _, ok := q.Pop(); ok {
			t.Error("Pop succeeded on a released, empty queue")
		}
	}()

	select {
	case <-done:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("timeout")
	}

	if q.Push(2) {
		t.Fatal("released queue accepted an item")
	}

	q.Reset()
	if !q.Push(3) || q.Len() != 1 {
		t.Fatal("reset queue does not accept items")
	}
}

func TestDispatcherOrder(t *testing.T) {
	const producers, items = 8, 250

	d := NewDispatcher("test")
	d.Start()

	var mutex sync.Mutex
	last := make(map[int]int)
	var count int

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()

			for i := 0; i < items; i++ {
				d.Dispatch([2]int{p, i}, func(source string, payload any) {
					if source != "test" {
						t.Errorf("source is %q", source)
					}

					pi := payload.([2]int)

					mutex.Lock()
					defer mutex.Unlock()

					if prev, ok := last[pi[0]]; ok && prev+1 != pi[1] {
						t.Errorf("producer %d: item %d after %d", pi[0], pi[1], prev)
					}
					last[pi[0]] = pi[1]
					count++
				})
			}
		}(p)
	}
	wg.Wait()

	d.Release()
	d.Wait()

	if count != producers*items {
		t.Fatalf("dispatched %d of %d items", count, producers*items)
	}
	if d.Dispatch(nil, func(string, any) {}) {
		t.Fatal("released dispatcher accepted an item")
	}
}

func TestDispatcherRestart(t *testing.T) {
	d := NewDispatcher(1)

	for round := 0; round < 3; round++ {
		d.Start()

		called := make(chan struct{})
		d.Dispatch(nil, func(int, any) {
			close(called)
		})

		select {
		case <-called:
		case <-time.After(250 * time.Millisecond):
			t.Fatalf("round %d: timeout", round)
		}

		d.Release()
		d.Wait()
	}
}

func TestDispatcherPanic(t *testing.T) {
	d := NewDispatcher(0)
	d.Start()

	d.Dispatch(nil, func(int, any) { panic("oops") })

	called := make(chan struct{})
	d.Dispatch(nil, func(int, any) { close(called) })

	select {
	case <-called:
	case <-time.After(250 * time.Millisecond):
		t.Fatal("dispatcher did not survive a panic")
	}

	d.Release()
	d.Wait()
}
