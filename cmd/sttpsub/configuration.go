// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
	"github.com/sttp/cppapi-sub001/pkg/transport"
)

const defaultPublisherPort = 7165

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Logging      logConf
	Subscriber   subscriberConf
	Subscription sttp.SubscriptionInfo
	Reconnect    reconnectConf
	Store        storeConf
	Agent        agentConf
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string
	ReportCaller bool `toml:"report-caller"`
	Format       string
}

// subscriberConf describes the Subscriber-configuration block. With listen, the publisher initiates the connection
// to the local port.
type subscriberConf struct {
	Hostname string
	Port     uint16
	Listen   bool

	ProtocolVersion          uint8 `toml:"protocol-version"`
	CompressPayloadData      bool  `toml:"compress-payload-data"`
	CompressMetadata         bool  `toml:"compress-metadata"`
	CompressSignalIndexCache bool  `toml:"compress-signal-index-cache"`

	OperationalModesTimeout string `toml:"operational-modes-timeout"`
	DialTimeout             string `toml:"dial-timeout"`
}

// reconnectConf describes the Reconnect-configuration block.
type reconnectConf struct {
	AutoReconnect    bool   `toml:"auto-reconnect"`
	MaxRetries       int    `toml:"max-retries"`
	RetryInterval    string `toml:"retry-interval"`
	MaxRetryInterval string `toml:"max-retry-interval"`
}

// storeConf describes the Store-configuration block. An empty path disables the archive.
type storeConf struct {
	Path      string
	Retention string
	Cleanup   string
}

// agentConf describes the Agent-configuration block. An empty listen address disables the HTTP server.
type agentConf struct {
	Listen  string
	Metrics bool
}

// config is the evaluated tomlConfig.
type config struct {
	logging logConf

	transport transport.Config
	hostname  string
	port      uint16
	listen    bool

	subscription sttp.SubscriptionInfo

	storePath      string
	storeRetention time.Duration
	storeCleanup   time.Duration

	agentListen string
	metrics     bool
}

func defaultTomlConfig() tomlConfig {
	tc := transport.DefaultConfig()

	return tomlConfig{
		Logging: logConf{Level: "info", Format: "text"},
		Subscriber: subscriberConf{
			Hostname: "localhost",
			Port:     defaultPublisherPort,

			ProtocolVersion:          tc.ProtocolVersion,
			CompressPayloadData:      tc.CompressPayloadData,
			CompressMetadata:         tc.CompressMetadata,
			CompressSignalIndexCache: tc.CompressSignalIndexCache,

			OperationalModesTimeout: tc.OperationalModesTimeout.String(),
			DialTimeout:             tc.DialTimeout.String(),
		},
		Subscription: sttp.DefaultSubscriptionInfo(),
		Reconnect: reconnectConf{
			AutoReconnect:    tc.AutoReconnect,
			MaxRetries:       tc.MaxRetries,
			RetryInterval:    tc.RetryInterval.String(),
			MaxRetryInterval: tc.MaxRetryInterval.String(),
		},
		Store: storeConf{
			Retention: "24h",
			Cleanup:   "10m",
		},
	}
}

// parseDurations evaluates named duration strings; an empty string keeps the zero value.
func parseDurations(durations map[string]*time.Duration, values map[string]string) error {
	for key, value := range values {
		if value == "" {
			continue
		}

		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		} else if d < 0 {
			return fmt.Errorf("%s: negative duration %v", key, d)
		}
		*durations[key] = d
	}
	return nil
}

// parseConfig reads the TOML configuration; missing values are taken from the defaults.
func parseConfig(filename string) (conf config, err error) {
	tc := defaultTomlConfig()

	md, err := toml.DecodeFile(filename, &tc)
	if err != nil {
		return
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		log.WithField("keys", strings.Join(keys, ", ")).Warn("Configuration contains unknown keys")
	}

	conf = config{
		logging: tc.Logging,

		transport: transport.DefaultConfig(),
		hostname:  tc.Subscriber.Hostname,
		port:      tc.Subscriber.Port,
		listen:    tc.Subscriber.Listen,

		subscription: tc.Subscription,

		storePath: tc.Store.Path,

		agentListen: tc.Agent.Listen,
		metrics:     tc.Agent.Metrics,
	}

	conf.transport.ProtocolVersion = tc.Subscriber.ProtocolVersion
	conf.transport.CompressPayloadData = tc.Subscriber.CompressPayloadData
	conf.transport.CompressMetadata = tc.Subscriber.CompressMetadata
	conf.transport.CompressSignalIndexCache = tc.Subscriber.CompressSignalIndexCache
	conf.transport.MaxRetries = tc.Reconnect.MaxRetries
	conf.transport.AutoReconnect = tc.Reconnect.AutoReconnect

	err = parseDurations(
		map[string]*time.Duration{
			"subscriber.operational-modes-timeout": &conf.transport.OperationalModesTimeout,
			"subscriber.dial-timeout":              &conf.transport.DialTimeout,
			"reconnect.retry-interval":             &conf.transport.RetryInterval,
			"reconnect.max-retry-interval":         &conf.transport.MaxRetryInterval,
			"store.retention":                      &conf.storeRetention,
			"store.cleanup":                        &conf.storeCleanup,
		},
		map[string]string{
			"subscriber.operational-modes-timeout": tc.Subscriber.OperationalModesTimeout,
			"subscriber.dial-timeout":              tc.Subscriber.DialTimeout,
			"reconnect.retry-interval":             tc.Reconnect.RetryInterval,
			"reconnect.max-retry-interval":         tc.Reconnect.MaxRetryInterval,
			"store.retention":                      tc.Store.Retention,
			"store.cleanup":                        tc.Store.Cleanup,
		})
	if err != nil {
		return
	}

	if v := conf.transport.ProtocolVersion; v < sttp.MinProtocolVersion || v > sttp.MaxProtocolVersion {
		err = fmt.Errorf("subscriber.protocol-version %d is not within [%d, %d]",
			v, sttp.MinProtocolVersion, sttp.MaxProtocolVersion)
		return
	}

	if conf.port == 0 && !conf.listen {
		err = fmt.Errorf("subscriber.port is missing")
		return
	}

	conf.subscription.StartTime = timeConstraint(conf.subscription.StartTime)
	conf.subscription.StopTime = timeConstraint(conf.subscription.StopTime)

	if subErr := conf.subscription.Validate(); subErr != nil {
		err = fmt.Errorf("subscription: %w", subErr)
		return
	}

	return
}

// timeConstraint converts a RFC 3339 timestamp into the publisher's format. Other values, e.g., relative ones as
// "*-5M", are passed on unchanged.
func timeConstraint(value string) string {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return sttp.FormatTimeConstraint(t)
	}
	return value
}

// setupLogging configures logrus based on the Logging-configuration block.
func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}
