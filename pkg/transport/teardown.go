// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/looplab/fsm"

	"github.com/sttp/cppapi-sub001/pkg/transport/internal/utils"
)

// disconnectReason tells the teardown what happens afterwards.
type disconnectReason int

const (
	// reasonUser is a Disconnect call; the listener is closed and no reconnect happens.
	reasonUser disconnectReason = iota

	// reasonSocketError is a lost connection, which might be reconnected.
	reasonSocketError

	// reasonProtocolError is a peer not speaking this protocol.
	reasonProtocolError

	// reasonRefused is a publisher which rejected the operational modes.
	reasonRefused

	// reasonAttemptFailed is a Connector's attempt which was not answered in time.
	reasonAttemptFailed
)

func (reason disconnectReason) String() string {
	switch reason {
	case reasonUser:
		return "user"
	case reasonSocketError:
		return "socket error"
	case reasonProtocolError:
		return "protocol error"
	case reasonRefused:
		return "refused"
	case reasonAttemptFailed:
		return "attempt failed"
	default:
		return "unknown"
	}
}

const (
	stateIdle           = "idle"
	stateDraining       = "draining"
	stateSocketsClosing = "sockets_closing"
	stateThreadsJoining = "threads_joining"
	stateCallbackFiring = "callback_firing"

	eventDrain        = "drain"
	eventCloseSockets = "close_sockets"
	eventJoin         = "join"
	eventFire         = "fire"
	eventFinish       = "finish"
)

// teardownEvents in the order of a teardown's run.
var teardownEvents = []string{eventDrain, eventCloseSockets, eventJoin, eventFire, eventFinish}

// teardown orders the disconnect of a Subscriber as a state machine:
//
//	idle -> draining -> sockets_closing -> threads_joining -> callback_firing -> idle
//
// Draining stops new operations, closes the listener for a user's disconnect and releases the dispatcher. Then, all
// sockets are closed and all goroutines are joined, including the dispatcher's. Only afterwards, the dispatcher is
// started again and the connection terminated callback is started.
type teardown struct {
	s       *Subscriber
	machine *fsm.FSM

	reason        disconnectReason
	hadConnection bool
	fs            *utils.FrameSwitch
}

func newTeardown(s *Subscriber) *teardown {
	t := &teardown{s: s}

	t.machine = fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventDrain, Src: []string{stateIdle}, Dst: stateDraining},
			{Name: eventCloseSockets, Src: []string{stateDraining}, Dst: stateSocketsClosing},
			{Name: eventJoin, Src: []string{stateSocketsClosing}, Dst: stateThreadsJoining},
			{Name: eventFire, Src: []string{stateThreadsJoining}, Dst: stateCallbackFiring},
			{Name: eventFinish, Src: []string{stateCallbackFiring}, Dst: stateIdle},
		},
		fsm.Callbacks{
			"enter_" + stateDraining:       t.onDraining,
			"enter_" + stateSocketsClosing: t.onSocketsClosing,
			"enter_" + stateThreadsJoining: t.onThreadsJoining,
			"enter_" + stateCallbackFiring: t.onCallbackFiring,
		})

	return t
}

// run a whole teardown. The Subscriber's connectMutex must be held.
func (t *teardown) run(reason disconnectReason) {
	t.reason = reason
	t.machine.SetState(stateIdle)

	t.s.log().WithField("reason", reason).Debug("Starting teardown")

	for _, event := range teardownEvents {
		if err := t.machine.Event(context.Background(), event); err != nil {
			t.s.log().WithError(err).WithField("event", event).Error("Teardown event failed")
		}
	}
}

func (t *teardown) onDraining(_ context.Context, _ *fsm.Event) {
	s := t.s

	s.connMutex.Lock()
	t.hadConnection = s.conn != nil
	t.fs = s.fs
	s.connected.Store(false)
	s.validated.Store(false)
	s.subscribed.Store(false)
	s.connMutex.Unlock()

	if t.reason == reasonUser && s.listener != nil {
		s.listener.close()
		s.listener = nil
		s.listening.Store(false)
	}

	s.closeOperationalModes()
	s.dispatcher.Release()
}

func (t *teardown) onSocketsClosing(_ context.Context, _ *fsm.Event) {
	s := t.s
	var errs *multierror.Error

	s.connMutex.Lock()
	if s.stopSyn != nil {
		close(s.stopSyn)
		s.stopSyn = nil
	}
	if s.fs != nil {
		if err := s.fs.Close(); err != nil && !errors.Is(err, utils.ErrFinished) {
			errs = multierror.Append(errs, err)
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if s.udp != nil {
		if err := s.udp.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		s.udp = nil
	}
	s.connMutex.Unlock()

	if err := errs.ErrorOrNil(); err != nil {
		s.log().WithError(err).Debug("Errors occurred while closing sockets")
	}
}

func (t *teardown) onThreadsJoining(_ context.Context, _ *fsm.Event) {
	s := t.s

	if t.fs != nil {
		t.fs.Wait()
		t.fs = nil
	}
	s.workers.Wait()
	s.dispatcher.Wait()

	s.connMutex.Lock()
	s.fs = nil
	s.conn = nil
	s.connMutex.Unlock()
}

func (t *teardown) onCallbackFiring(_ context.Context, _ *fsm.Event) {
	s := t.s

	// Messages between connections, e.g., of the Connector, need a running dispatcher.
	s.dispatcher.Start()

	if !t.hadConnection {
		return
	}

	s.disconnected.Store(true)
	s.log().WithField("reason", t.reason).Info("Connection terminated")

	go s.connectionTerminated(t.reason)
}

// isConnectionClosed checks if an error reports the regular end of a connection.
func isConnectionClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED)
}
