// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"sync"

	"github.com/google/uuid"
)

// MuxAgent mimics an ApplicationAgent to be used as a multiplexer for different ApplicationAgents.
//
// A MeasurementsMessage is reduced to the Measurements each child is interested in; children without matching
// Measurements are skipped. All other Messages are passed to the children interested in one of their signals.
//
// Unlike other ApplicationAgents, the MuxAgent does not close its MessageSender, because its children might still be
// sending. Done is closed after a ShutdownMessage was handled instead.
type MuxAgent struct {
	sync.Mutex

	receiver chan Message
	sender   chan Message
	closeSyn chan struct{}

	children []ApplicationAgent
}

// NewMuxAgent creates a new MuxAgent used to multiplex different ApplicationAgents.
func NewMuxAgent() (mux *MuxAgent) {
	mux = &MuxAgent{
		receiver: make(chan Message),
		sender:   make(chan Message),
		closeSyn: make(chan struct{}),
	}

	go mux.handle()

	return
}

func (mux *MuxAgent) handle() {
	defer close(mux.closeSyn)

	for msg := range mux.receiver {
		mux.Lock()
		for _, child := range mux.children {
			switch msg := msg.(type) {
			case MeasurementsMessage:
				if filtered := msg.filter(child.Signals()); len(filtered.Measurements) > 0 {
					child.MessageReceiver() <- filtered
				}

			default:
				if signals := msg.Signals(); signals == nil || AppAgentContainsSignal(child, signals) {
					child.MessageReceiver() <- msg
				}
			}
		}
		mux.Unlock()

		if _, isShutdown := msg.(ShutdownMessage); isShutdown {
			return
		}
	}
}

// Register a new ApplicationAgent for this multiplexer.
// If this ApplicationAgent closes its channel or broadcasts a ShutdownMessage, it will be unregistered.
func (mux *MuxAgent) Register(agent ApplicationAgent) {
	mux.Lock()
	defer mux.Unlock()

	mux.children = append(mux.children, agent)
	go mux.handleChild(agent)
}

func (mux *MuxAgent) handleChild(agent ApplicationAgent) {
	for msg := range agent.MessageSender() {
		if _, isShutdown := msg.(ShutdownMessage); isShutdown {
			break
		}

		select {
		case mux.sender <- msg:
		case <-mux.closeSyn:
		}
	}

	mux.unregister(agent)
}

// unregister a previously registered ApplicationAgent.
// This will also automatically shutdown this ApplicationAgent.
func (mux *MuxAgent) unregister(agent ApplicationAgent) {
	mux.Lock()
	defer mux.Unlock()

	for i, child := range mux.children {
		if child == agent {
			close(agent.MessageReceiver())
			mux.children = append(mux.children[:i], mux.children[i+1:]...)
			break
		}
	}
}

// Children is the amount of registered ApplicationAgents.
func (mux *MuxAgent) Children() int {
	mux.Lock()
	defer mux.Unlock()

	return len(mux.children)
}

// Signals of all children. A single child interested in all signals results in nil.
func (mux *MuxAgent) Signals() (signals []uuid.UUID) {
	mux.Lock()
	defer mux.Unlock()

	signals = []uuid.UUID{}
	for _, child := range mux.children {
		childSignals := child.Signals()
		if childSignals == nil {
			return nil
		}
		signals = append(signals, childSignals...)
	}
	return
}

// Done is closed after the MuxAgent handled a ShutdownMessage.
func (mux *MuxAgent) Done() <-chan struct{} {
	return mux.closeSyn
}

func (mux *MuxAgent) MessageReceiver() chan Message {
	return mux.receiver
}

func (mux *MuxAgent) MessageSender() chan Message {
	return mux.sender
}
