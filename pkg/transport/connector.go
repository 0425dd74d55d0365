// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// ConnectStatus is the outcome of a Connector's connection sequence.
type ConnectStatus int

const (
	// ConnectSuccess means the publisher accepted the operational modes.
	ConnectSuccess ConnectStatus = iota

	// ConnectFailed means all attempts failed.
	ConnectFailed

	// ConnectCanceled means the sequence was stopped by Cancel, Disconnect, or its context.
	ConnectCanceled

	// ConnectRefused means the publisher rejected the operational modes. No further attempts are made.
	ConnectRefused
)

func (cs ConnectStatus) String() string {
	switch cs {
	case ConnectSuccess:
		return "success"
	case ConnectFailed:
		return "failed"
	case ConnectCanceled:
		return "canceled"
	case ConnectRefused:
		return "refused"
	default:
		return "unknown"
	}
}

// ReconnectFunc is called once after an automatic reconnect sequence ended, with the status of its last attempt.
// The outcome of each failed attempt is only reported through the Subscriber's error message callback.
type ReconnectFunc func(s *Subscriber, status ConnectStatus)

// Connector establishes a Subscriber's connection with retries and an exponential back-off.
//
// The back-off starts at the RetryInterval and doubles after each failed attempt up to the MaxRetryInterval. There
// is no delay after the last attempt. A Connector is canceled by Cancel, which also happens on a Subscriber's
// Disconnect; ResetConnection makes it usable again.
type Connector struct {
	maxRetries              int
	retryInterval           time.Duration
	maxRetryInterval        time.Duration
	operationalModesTimeout time.Duration

	mutex    sync.Mutex
	hostname string
	port     uint16

	canceled  *atomic.Bool
	cancelSyn chan struct{}

	// active counts the running connection sequences.
	active *atomic.Int32

	reconnectCallback ReconnectFunc
}

func newConnector(conf Config) *Connector {
	return &Connector{
		maxRetries:              conf.MaxRetries,
		retryInterval:           conf.RetryInterval,
		maxRetryInterval:        conf.MaxRetryInterval,
		operationalModesTimeout: conf.OperationalModesTimeout,

		canceled:  atomic.NewBool(false),
		cancelSyn: make(chan struct{}),

		active: atomic.NewInt32(0),
	}
}

// SetTarget sets the publisher's address.
func (c *Connector) SetTarget(hostname string, port uint16) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.hostname, c.port = hostname, port
}

// Target returns the publisher's address.
func (c *Connector) Target() (hostname string, port uint16) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.hostname, c.port
}

// SetReconnectCallback registers the function called after each automatic reconnect sequence.
func (c *Connector) SetReconnectCallback(f ReconnectFunc) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.reconnectCallback = f
}

// Cancel all pending and future attempts until ResetConnection.
func (c *Connector) Cancel() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.canceled.CompareAndSwap(false, true) {
		close(c.cancelSyn)
	}
}

// IsCanceled checks if Cancel was called since the last ResetConnection.
func (c *Connector) IsCanceled() bool {
	return c.canceled.Load()
}

// ResetConnection revokes a former Cancel.
func (c *Connector) ResetConnection() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.canceled.CompareAndSwap(true, false) {
		c.cancelSyn = make(chan struct{})
	}
}

func (c *Connector) cancelChan() <-chan struct{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.cancelSyn
}

// Connect the Subscriber to the Target. Each attempt is successful after the publisher accepted the operational
// modes.
func (c *Connector) Connect(ctx context.Context, s *Subscriber) ConnectStatus {
	return c.connect(ctx, s)
}

// reconnect after a lost connection and report the outcome to the reconnect callback. Nothing happens while another
// connection sequence is running, e.g., if an attempt's connection was lost.
func (c *Connector) reconnect(s *Subscriber) {
	if c.active.Load() > 0 {
		return
	}

	s.dispatchStatusMessage("Connection lost, attempting to reconnect")

	status := c.connect(context.Background(), s)

	s.log().WithField("status", status).Info("Reconnect sequence finished")

	c.mutex.Lock()
	f := c.reconnectCallback
	c.mutex.Unlock()

	if f != nil {
		f(s, status)
	}
}

func (c *Connector) connect(ctx context.Context, s *Subscriber) ConnectStatus {
	c.active.Inc()
	defer c.active.Dec()

	hostname, port := c.Target()
	address := net.JoinHostPort(hostname, strconv.Itoa(int(port)))

	attempts := c.maxRetries
	if attempts == 0 {
		attempts = 1
	}
	delay := c.retryInterval

	for attempt := 1; attempts < 0 || attempt <= attempts; attempt++ {
		if c.IsCanceled() || ctx.Err() != nil {
			return ConnectCanceled
		}

		err := s.connect(ctx, hostname, port)
		if err == nil {
			err = s.WaitForOperationalModesResponse(c.operationalModesTimeout)
			if err != nil && !errors.Is(err, ErrConnectionRefused) {
				<-s.disconnect(reasonAttemptFailed)
			}
		}

		switch {
		case err == nil:
			s.log().WithField("attempt", attempt).Info("Connector established the connection")
			return ConnectSuccess

		case errors.Is(err, ErrConnectionRefused):
			return ConnectRefused

		case errors.Is(err, ErrAlreadyConnected), errors.Is(err, ErrListening), errors.Is(err, ErrInvalidVersion):
			s.dispatchErrorMessage(fmt.Sprintf("Connector cannot connect to %s: %v", address, err))
			return ConnectFailed
		}

		s.log().WithError(err).WithField("attempt", attempt).Info("Connection attempt failed")
		s.dispatchErrorMessage(fmt.Sprintf("Connection attempt %d to %s failed: %v", attempt, address, err))

		if attempts > 0 && attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ConnectCanceled
		case <-c.cancelChan():
			timer.Stop()
			return ConnectCanceled
		case <-timer.C:
		}

		if delay *= 2; delay > c.maxRetryInterval {
			delay = c.maxRetryInterval
		}
	}

	return ConnectFailed
}
