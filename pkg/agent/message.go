// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"github.com/google/uuid"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

// Message is a generic interface to specify an information exchange between an ApplicationAgent and the Bridge.
// The following types named *Message are implementations of this interface.
type Message interface {
	// Signals returns a list of signals this message is about.
	// However, if this message is not restricted to some specific signals, nil must be returned.
	Signals() []uuid.UUID
}

// MeasurementsMessage carries a batch of received Measurements to the ApplicationAgents.
type MeasurementsMessage struct {
	Measurements []sttp.Measurement
}

// Signals of all carried Measurements.
func (mm MeasurementsMessage) Signals() []uuid.UUID {
	signals := make([]uuid.UUID, len(mm.Measurements))
	for i, m := range mm.Measurements {
		signals[i] = m.SignalID
	}
	return signals
}

// filter the Measurements for some signals; nil signals keep all Measurements.
func (mm MeasurementsMessage) filter(signals []uuid.UUID) MeasurementsMessage {
	set := signalSet(signals)
	if set == nil {
		return mm
	}

	var filtered []sttp.Measurement
	for _, m := range mm.Measurements {
		if _, ok := set[m.SignalID]; ok {
			filtered = append(filtered, m)
		}
	}
	return MeasurementsMessage{Measurements: filtered}
}

// NoticeMessage forwards a status or error message of the subscriber.
type NoticeMessage struct {
	Text    string
	IsError bool
}

// Signals are not available for a NoticeMessage.
func (nm NoticeMessage) Signals() []uuid.UUID {
	return nil
}

// MetadataRequestMessage is sent from an ApplicationAgent to request the publisher's metadata.
type MetadataRequestMessage struct {
	FilterExpression string
}

// Signals are not available for a MetadataRequestMessage.
func (mrm MetadataRequestMessage) Signals() []uuid.UUID {
	return nil
}

// MetadataMessage is the publisher's metadata document, sent to all ApplicationAgents.
type MetadataMessage struct {
	Metadata []byte
}

// Signals are not available for a MetadataMessage.
func (mm MetadataMessage) Signals() []uuid.UUID {
	return nil
}

// ShutdownMessage indicates the closing down of an ApplicationAgent.
// If the Message is received from an ApplicationAgent, it must close itself down.
// If the Message is sent from an ApplicationAgent, it is closing down itself.
type ShutdownMessage struct{}

// Signals are not available for a ShutdownMessage.
func (sm ShutdownMessage) Signals() []uuid.UUID {
	return nil
}
