// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"fmt"
	"time"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

// Config of a Subscriber and its Connector.
//
// Zero durations and a zero ProtocolVersion are replaced by the values of DefaultConfig within NewSubscriber.
type Config struct {
	// ProtocolVersion to be negotiated, between sttp.MinProtocolVersion and sttp.MaxProtocolVersion.
	ProtocolVersion uint8

	CompressPayloadData      bool
	CompressMetadata         bool
	CompressSignalIndexCache bool

	// MaxRetries is the amount of connection attempts of a Connector; -1 retries forever. Zero is treated as a
	// single attempt.
	MaxRetries int

	// RetryInterval is the first back-off delay, doubled after each failed attempt up to MaxRetryInterval.
	RetryInterval    time.Duration
	MaxRetryInterval time.Duration

	// AutoReconnect starts the Connector after a lost connection.
	AutoReconnect bool

	// OperationalModesTimeout bounds the Connector's wait for the publisher's DefineOperationalModes response.
	OperationalModesTimeout time.Duration

	DialTimeout time.Duration

	// OutOfSequenceReportInterval rate-limits the warning about dropped TSSC packets.
	OutOfSequenceReportInterval time.Duration
}

// DefaultConfig returns a Config for the highest protocol version with compression enabled.
func DefaultConfig() Config {
	return Config{
		ProtocolVersion: sttp.MaxProtocolVersion,

		CompressPayloadData:      true,
		CompressMetadata:         true,
		CompressSignalIndexCache: true,

		MaxRetries:       -1,
		RetryInterval:    time.Second,
		MaxRetryInterval: 30 * time.Second,
		AutoReconnect:    true,

		OperationalModesTimeout:     5 * time.Second,
		DialTimeout:                 2 * time.Second,
		OutOfSequenceReportInterval: 2 * time.Second,
	}
}

func (conf Config) withDefaults() Config {
	def := DefaultConfig()

	if conf.ProtocolVersion == 0 {
		conf.ProtocolVersion = def.ProtocolVersion
	}
	if conf.RetryInterval <= 0 {
		conf.RetryInterval = def.RetryInterval
	}
	if conf.MaxRetryInterval <= 0 {
		conf.MaxRetryInterval = def.MaxRetryInterval
	}
	if conf.MaxRetryInterval < conf.RetryInterval {
		conf.MaxRetryInterval = conf.RetryInterval
	}
	if conf.OperationalModesTimeout <= 0 {
		conf.OperationalModesTimeout = def.OperationalModesTimeout
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = def.DialTimeout
	}
	if conf.OutOfSequenceReportInterval <= 0 {
		conf.OutOfSequenceReportInterval = def.OutOfSequenceReportInterval
	}

	return conf
}

func (conf Config) checkVersion() error {
	if conf.ProtocolVersion < sttp.MinProtocolVersion || conf.ProtocolVersion > sttp.MaxProtocolVersion {
		return fmt.Errorf("%w: %d is not within [%d, %d]",
			ErrInvalidVersion, conf.ProtocolVersion, sttp.MinProtocolVersion, sttp.MaxProtocolVersion)
	}
	return nil
}
