// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import "github.com/google/uuid"

// ApplicationAgent is an interface to describe application agents, which can both receive and transmit Messages.
// Each implementation must provide the following methods to communicate its signals of interest. Furthermore two
// channels must be available, one for receiving and one for sending Messages.
//
// On closing down, an ApplicationAgent MUST close its MessageSender channel and MUST leave the MessageReceiver
// open. The supervising code MUST close the MessageReceiver of its subjects.
type ApplicationAgent interface {
	// Signals returns the signal IDs this ApplicationAgent is interested in; nil requests all signals.
	Signals() []uuid.UUID

	// MessageReceiver is a channel on which the ApplicationAgent must listen for incoming Messages.
	MessageReceiver() chan Message

	// MessageSender is a channel to which the ApplicationAgent can send outgoing Messages.
	MessageSender() chan Message
}

// signalSet of some signal IDs; nil for nil signals, i.e., all of them.
func signalSet(signals []uuid.UUID) map[uuid.UUID]struct{} {
	if signals == nil {
		return nil
	}

	set := make(map[uuid.UUID]struct{}, len(signals))
	for _, signal := range signals {
		set[signal] = struct{}{}
	}
	return set
}

// bagContainsSignal checks if some bag/array/slice of signals contains another collection of signals. A nil bag
// contains every signal.
func bagContainsSignal(bag []uuid.UUID, signals []uuid.UUID) bool {
	if bag == nil {
		return true
	}

	matches := signalSet(signals)
	for _, signal := range bag {
		if _, ok := matches[signal]; ok {
			return true
		}
	}
	return false
}

// AppAgentContainsSignal checks if an ApplicationAgent is interested in at least one of the signals.
func AppAgentContainsSignal(app ApplicationAgent, signals []uuid.UUID) bool {
	return bagContainsSignal(app.Signals(), signals)
}

// AppAgentHasSignal checks if an ApplicationAgent is interested in this signal.
func AppAgentHasSignal(app ApplicationAgent, signal uuid.UUID) bool {
	return AppAgentContainsSignal(app, []uuid.UUID{signal})
}
