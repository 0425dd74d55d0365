// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"sync"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

type (
	// MessageFunc receives status, error, processing complete, or notification messages.
	MessageFunc func(s *Subscriber, message string)

	// DataStartTimeFunc receives the timestamp of the first measurement of a subscription.
	DataStartTimeFunc func(s *Subscriber, startTime sttp.Ticks)

	// MetadataFunc receives the publisher's metadata document, already decompressed.
	MetadataFunc func(s *Subscriber, metadata []byte)

	// SubscriptionUpdatedFunc receives a new signal index cache.
	SubscriptionUpdatedFunc func(s *Subscriber, cache *sttp.SignalIndexCache)

	// NewMeasurementsFunc receives the measurements of one data packet. The slice is owned by the callee.
	NewMeasurementsFunc func(s *Subscriber, measurements []sttp.Measurement)

	// EventFunc is invoked for an event without payload.
	EventFunc func(s *Subscriber)
)

// callbackSet are the registered functions of a Subscriber. Each kind has at most one registered function; a later
// registration replaces the former one.
type callbackSet struct {
	statusMessage         MessageFunc
	errorMessage          MessageFunc
	dataStartTime         DataStartTimeFunc
	metadata              MetadataFunc
	subscriptionUpdated   SubscriptionUpdatedFunc
	newMeasurements       NewMeasurementsFunc
	configurationChanged  EventFunc
	processingComplete    MessageFunc
	notification          MessageFunc
	connectionEstablished EventFunc
	connectionTerminated  EventFunc
}

type callbacks struct {
	mutex sync.RWMutex
	set   callbackSet
}

func (cbs *callbacks) get() callbackSet {
	cbs.mutex.RLock()
	defer cbs.mutex.RUnlock()

	return cbs.set
}

func (cbs *callbacks) update(f func(c *callbackSet)) {
	cbs.mutex.Lock()
	defer cbs.mutex.Unlock()

	f(&cbs.set)
}

// SetStatusMessageCallback registers the receiver of informational messages.
func (s *Subscriber) SetStatusMessageCallback(f MessageFunc) {
	s.callbacks.update(func(c *callbackSet) { c.statusMessage = f })
}

// SetErrorMessageCallback registers the receiver of all asynchronous errors.
func (s *Subscriber) SetErrorMessageCallback(f MessageFunc) {
	s.callbacks.update(func(c *callbackSet) { c.errorMessage = f })
}

func (s *Subscriber) SetDataStartTimeCallback(f DataStartTimeFunc) {
	s.callbacks.update(func(c *callbackSet) { c.dataStartTime = f })
}

func (s *Subscriber) SetMetadataCallback(f MetadataFunc) {
	s.callbacks.update(func(c *callbackSet) { c.metadata = f })
}

func (s *Subscriber) SetSubscriptionUpdatedCallback(f SubscriptionUpdatedFunc) {
	s.callbacks.update(func(c *callbackSet) { c.subscriptionUpdated = f })
}

func (s *Subscriber) SetNewMeasurementsCallback(f NewMeasurementsFunc) {
	s.callbacks.update(func(c *callbackSet) { c.newMeasurements = f })
}

func (s *Subscriber) SetConfigurationChangedCallback(f EventFunc) {
	s.callbacks.update(func(c *callbackSet) { c.configurationChanged = f })
}

// SetProcessingCompleteCallback registers the receiver of the end of a temporal subscription.
func (s *Subscriber) SetProcessingCompleteCallback(f MessageFunc) {
	s.callbacks.update(func(c *callbackSet) { c.processingComplete = f })
}

func (s *Subscriber) SetNotificationCallback(f MessageFunc) {
	s.callbacks.update(func(c *callbackSet) { c.notification = f })
}

func (s *Subscriber) SetConnectionEstablishedCallback(f EventFunc) {
	s.callbacks.update(func(c *callbackSet) { c.connectionEstablished = f })
}

// SetConnectionTerminatedCallback registers a function called after a connection was torn down.
//
// Unlike all other callbacks, this one is invoked on its own goroutine. Thus, it may block, e.g., by calling Connect.
func (s *Subscriber) SetConnectionTerminatedCallback(f EventFunc) {
	s.callbacks.update(func(c *callbackSet) { c.connectionTerminated = f })
}

func (s *Subscriber) dispatchStatusMessage(message string) {
	s.log().Debug(message)

	s.dispatcher.Dispatch(message, func(s *Subscriber, payload any) {
		if f := s.callbacks.get().statusMessage; f != nil {
			f(s, payload.(string))
		}
	})
}

func (s *Subscriber) dispatchErrorMessage(message string) {
	s.log().Warn(message)

	s.dispatcher.Dispatch(message, func(s *Subscriber, payload any) {
		if f := s.callbacks.get().errorMessage; f != nil {
			f(s, payload.(string))
		}
	})
}

func (s *Subscriber) dispatchDataStartTime(startTime sttp.Ticks) {
	s.dispatcher.Dispatch(startTime, func(s *Subscriber, payload any) {
		if f := s.callbacks.get().dataStartTime; f != nil {
			f(s, payload.(sttp.Ticks))
		}
	})
}

func (s *Subscriber) dispatchMetadata(metadata []byte) {
	s.dispatcher.Dispatch(metadata, func(s *Subscriber, payload any) {
		if f := s.callbacks.get().metadata; f != nil {
			f(s, payload.([]byte))
		}
	})
}

func (s *Subscriber) dispatchSubscriptionUpdated(cache *sttp.SignalIndexCache) {
	s.dispatcher.Dispatch(cache, func(s *Subscriber, payload any) {
		if f := s.callbacks.get().subscriptionUpdated; f != nil {
			f(s, payload.(*sttp.SignalIndexCache))
		}
	})
}

func (s *Subscriber) dispatchNewMeasurements(measurements []sttp.Measurement) {
	s.dispatcher.Dispatch(measurements, func(s *Subscriber, payload any) {
		if f := s.callbacks.get().newMeasurements; f != nil {
			f(s, payload.([]sttp.Measurement))
		}
	})
}

func (s *Subscriber) dispatchConfigurationChanged() {
	s.dispatcher.Dispatch(nil, func(s *Subscriber, _ any) {
		if f := s.callbacks.get().configurationChanged; f != nil {
			f(s)
		}
	})
}

func (s *Subscriber) dispatchProcessingComplete(message string) {
	s.dispatcher.Dispatch(message, func(s *Subscriber, payload any) {
		if f := s.callbacks.get().processingComplete; f != nil {
			f(s, payload.(string))
		}
	})
}

func (s *Subscriber) dispatchNotification(message string) {
	s.dispatcher.Dispatch(message, func(s *Subscriber, payload any) {
		if f := s.callbacks.get().notification; f != nil {
			f(s, payload.(string))
		}
	})
}

func (s *Subscriber) dispatchConnectionEstablished() {
	s.dispatcher.Dispatch(nil, func(s *Subscriber, _ any) {
		if f := s.callbacks.get().connectionEstablished; f != nil {
			f(s)
		}
	})
}
