// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

// Archive persists received Measurements, e.g., a storage.Store.
type Archive interface {
	PushAll(measurements []sttp.Measurement) error
	DeleteExpired()
}

// ArchiveAgent is an ApplicationAgent writing all received Measurements into an Archive. Expired Measurements are
// removed periodically.
type ArchiveAgent struct {
	archive  Archive
	interval time.Duration

	receiver chan Message
	sender   chan Message
}

// NewArchiveAgent for an Archive, which is cleaned up every interval. A non-positive interval disables the cleanup.
func NewArchiveAgent(archive Archive, interval time.Duration) (aa *ArchiveAgent) {
	aa = &ArchiveAgent{
		archive:  archive,
		interval: interval,

		receiver: make(chan Message),
		sender:   make(chan Message),
	}

	go aa.handle()

	return
}

func (aa *ArchiveAgent) handle() {
	defer close(aa.sender)

	var cleanup <-chan time.Time
	if aa.interval > 0 {
		ticker := time.NewTicker(aa.interval)
		defer ticker.Stop()

		cleanup = ticker.C
	}

	for {
		select {
		case msg, ok := <-aa.receiver:
			if !ok {
				return
			}

			switch msg := msg.(type) {
			case MeasurementsMessage:
				// PushAll logs its failures.
				_ = aa.archive.PushAll(msg.Measurements)

			case ShutdownMessage:
				log.Debug("ArchiveAgent received a shutdown")
				return
			}

		case <-cleanup:
			aa.archive.DeleteExpired()
		}
	}
}

// Signals is nil, all Measurements are archived.
func (aa *ArchiveAgent) Signals() []uuid.UUID {
	return nil
}

func (aa *ArchiveAgent) MessageReceiver() chan Message {
	return aa.receiver
}

func (aa *ArchiveAgent) MessageSender() chan Message {
	return aa.sender
}
