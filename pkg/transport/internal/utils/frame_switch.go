// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package utils contains the I/O helpers of a subscriber's command channel.
package utils

import (
	"bufio"
	"errors"
	"io"
	"sync"

	"go.uber.org/atomic"

	"github.com/sttp/cppapi-sub001/pkg/transport/internal/msgs"
)

// ErrFinished is returned by FrameSwitch.Send after the FrameSwitch has finished.
var ErrFinished = errors.New("FrameSwitch has already finished")

// FrameSwitch exchanges frames on a command channel. Incoming msgs.ResponseFrames are passed to a handler and
// outgoing msgs.CommandFrames are written asynchronously.
//
// The handler is called from the reading goroutine, one frame after another. The next frame is not read before the
// handler has returned. Thus, a handler must not block on the FrameSwitch's shutdown.
//
// If the underlying connection is closeable, it should be closed after Close to unblock the reading goroutine.
type FrameSwitch struct {
	in  io.Reader
	out io.Writer

	handler       func(*msgs.ResponseFrame)
	maxPacketSize func() uint32

	outChan  chan *msgs.CommandFrame
	errChan  chan error
	closeSyn chan struct{}

	finished *atomic.Bool
	wg       sync.WaitGroup
}

// NewFrameSwitch starts exchanging frames between an io.Reader and io.Writer.
//
// The maxPacketSize function is queried before each read. Each declared length above its result is reported as an
// error wrapping msgs.ErrPacketTooLarge, without reading the frame's body.
func NewFrameSwitch(in io.Reader, out io.Writer, handler func(*msgs.ResponseFrame), maxPacketSize func() uint32) (fs *FrameSwitch) {
	fs = &FrameSwitch{
		in:  in,
		out: out,

		handler:       handler,
		maxPacketSize: maxPacketSize,

		outChan:  make(chan *msgs.CommandFrame, 32),
		errChan:  make(chan error, 1),
		closeSyn: make(chan struct{}),

		finished: atomic.NewBool(false),
	}

	fs.wg.Add(2)
	go fs.handleIn()
	go fs.handleOut()

	return
}

func (fs *FrameSwitch) sendErr(err error) {
	if fs.finished.CompareAndSwap(false, true) {
		fs.errChan <- err
		close(fs.closeSyn)
	}
}

func (fs *FrameSwitch) handleIn() {
	defer fs.wg.Done()

	in := bufio.NewReader(fs.in)

	for {
		if fs.finished.Load() {
			return
		}

		frame, err := msgs.ReadResponse(in, fs.maxPacketSize())
		if err != nil {
			fs.sendErr(err)
			return
		}

		if fs.finished.Load() {
			return
		}
		fs.handler(frame)
	}
}

func (fs *FrameSwitch) handleOut() {
	defer fs.wg.Done()

	out := bufio.NewWriter(fs.out)

	for {
		select {
		case <-fs.closeSyn:
			return

		case frame := <-fs.outChan:
			if err := frame.Marshal(out); err != nil {
				fs.sendErr(err)
				return
			}
			if err := out.Flush(); err != nil {
				fs.sendErr(err)
				return
			}
		}
	}
}

// Send queues a msgs.CommandFrame to be written.
func (fs *FrameSwitch) Send(frame *msgs.CommandFrame) error {
	if fs.finished.Load() {
		return ErrFinished
	}

	select {
	case fs.outChan <- frame:
		return nil
	case <-fs.closeSyn:
		return ErrFinished
	}
}

// Errors returns the channel for the one error which might terminate the FrameSwitch.
func (fs *FrameSwitch) Errors() <-chan error {
	return fs.errChan
}

// Close the FrameSwitch. An error might be returned if the internal state is already finished.
func (fs *FrameSwitch) Close() (err error) {
	if fs.finished.CompareAndSwap(false, true) {
		close(fs.closeSyn)
	} else {
		err = ErrFinished
	}

	return
}

// Wait until both goroutines have returned. The reading goroutine requires its io.Reader to be closed or drained.
func (fs *FrameSwitch) Wait() {
	fs.wg.Wait()
}
