// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sttp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	// Source and Version are reported as assembly information to the publisher.
	Source  = "STTP Go Subscriber"
	Version = "1.0.0"

	// UpdatedOn is the release date of Version.
	UpdatedOn = "2026-10-01"
)

// SubscriptionInfo describes the data a subscriber requests from a publisher.
//
// A SubscriptionInfo is copied into the subscriber by Subscribe; later changes require another Subscribe.
type SubscriptionInfo struct {
	// FilterExpression selects the signals, e.g., "FILTER ActiveMeasurements WHERE SignalType = 'FREQ'".
	FilterExpression string `toml:"filter-expression"`

	// Throttled subscriptions are down-sampled to PublishInterval seconds.
	Throttled       bool    `toml:"throttled"`
	PublishInterval float64 `toml:"publish-interval"`

	// UdpDataChannel requests the data packets on a UDP socket bound to DataChannelLocalPort.
	UdpDataChannel       bool   `toml:"udp-data-channel"`
	DataChannelLocalPort uint16 `toml:"data-channel-local-port"`

	IncludeTime                  bool    `toml:"include-time"`
	EnableTimeReasonabilityCheck bool    `toml:"enable-time-reasonability-check"`
	LagTime                      float64 `toml:"lag-time"`
	LeadTime                     float64 `toml:"lead-time"`
	UseLocalClockAsRealTime      bool    `toml:"use-local-clock-as-real-time"`
	UseMillisecondResolution     bool    `toml:"use-millisecond-resolution"`
	RequestNaNValueFilter        bool    `toml:"request-nan-value-filter"`

	// StartTime and StopTime request a temporal subscription, i.e., a historical playback.
	StartTime            string `toml:"start-time"`
	StopTime             string `toml:"stop-time"`
	ConstraintParameters string `toml:"constraint-parameters"`

	// ProcessingInterval of a temporal subscription in milliseconds; -1 is the publisher's default, 0 is as fast as
	// possible.
	ProcessingInterval int32 `toml:"processing-interval"`

	// ExtraConnectionStringParameters are appended verbatim to the connection string.
	ExtraConnectionStringParameters string `toml:"extra-connection-string-parameters"`
}

// DefaultSubscriptionInfo returns a real-time subscription without a filter expression.
func DefaultSubscriptionInfo() SubscriptionInfo {
	return SubscriptionInfo{
		PublishInterval:      1.0,
		DataChannelLocalPort: 9500,
		IncludeTime:          true,
		LagTime:              10.0,
		LeadTime:             5.0,
		ProcessingInterval:   -1,
	}
}

// IsTemporal checks if this SubscriptionInfo requests a historical playback.
func (info SubscriptionInfo) IsTemporal() bool {
	return info.StartTime != "" || info.StopTime != ""
}

// balancedBraces checks if each '{' has a matching '}'.
func balancedBraces(s string) bool {
	depth := 0
	for _, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// Validate this SubscriptionInfo before it is sent to the publisher.
func (info SubscriptionInfo) Validate() error {
	var errs error

	if !balancedBraces(info.FilterExpression) {
		errs = multierror.Append(errs, fmt.Errorf("filter expression %q has unbalanced braces", info.FilterExpression))
	}
	if !balancedBraces(info.ConstraintParameters) {
		errs = multierror.Append(errs, errors.New("constraint parameters have unbalanced braces"))
	}
	if info.ExtraConnectionStringParameters != "" {
		if _, err := ParseConnectionString(info.ExtraConnectionStringParameters); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("extra connection string parameters: %w", err))
		}
	}
	if info.Throttled && info.PublishInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("throttled subscription has a non-positive publish interval %v", info.PublishInterval))
	}
	if info.LagTime < 0 || info.LeadTime < 0 {
		errs = multierror.Append(errs, fmt.Errorf("lag time %v and lead time %v must not be negative", info.LagTime, info.LeadTime))
	}
	if info.UdpDataChannel && info.DataChannelLocalPort == 0 {
		errs = multierror.Append(errs, errors.New("UDP data channel requires a local port"))
	}
	if info.StopTime != "" && info.StartTime == "" {
		errs = multierror.Append(errs, errors.New("temporal subscription has a stop time but no start time"))
	}
	if info.ProcessingInterval < -1 {
		errs = multierror.Append(errs, fmt.Errorf("processing interval %d is less than -1", info.ProcessingInterval))
	}

	return errs
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ConnectionString serializes this SubscriptionInfo into the semicolon delimited key-value format of the Subscribe
// command.
func (info SubscriptionInfo) ConnectionString() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "throttled=%t", info.Throttled)
	fmt.Fprintf(&sb, ";publishInterval=%s", formatFloat(info.PublishInterval))
	fmt.Fprintf(&sb, ";includeTime=%t", info.IncludeTime)
	fmt.Fprintf(&sb, ";enableTimeReasonabilityCheck=%t", info.EnableTimeReasonabilityCheck)
	fmt.Fprintf(&sb, ";lagTime=%s", formatFloat(info.LagTime))
	fmt.Fprintf(&sb, ";leadTime=%s", formatFloat(info.LeadTime))
	fmt.Fprintf(&sb, ";useLocalClockAsRealTime=%t", info.UseLocalClockAsRealTime)
	fmt.Fprintf(&sb, ";processingInterval=%d", info.ProcessingInterval)
	fmt.Fprintf(&sb, ";useMillisecondResolution=%t", info.UseMillisecondResolution)
	fmt.Fprintf(&sb, ";requestNaNValueFilter=%t", info.RequestNaNValueFilter)
	fmt.Fprintf(&sb, ";assemblyInfo={source=%s;version=%s;updatedOn=%s}", Source, Version, UpdatedOn)

	if info.FilterExpression != "" {
		fmt.Fprintf(&sb, ";filterExpression={%s}", info.FilterExpression)
	}
	if info.UdpDataChannel {
		fmt.Fprintf(&sb, ";dataChannel={localport=%d}", info.DataChannelLocalPort)
	}
	if info.StartTime != "" {
		fmt.Fprintf(&sb, ";startTimeConstraint=%s", info.StartTime)
	}
	if info.StopTime != "" {
		fmt.Fprintf(&sb, ";stopTimeConstraint=%s", info.StopTime)
	}
	if info.ConstraintParameters != "" {
		fmt.Fprintf(&sb, ";timeConstraintParameters=%s", info.ConstraintParameters)
	}
	if info.ExtraConnectionStringParameters != "" {
		fmt.Fprintf(&sb, ";%s", info.ExtraConnectionStringParameters)
	}

	return sb.String()
}

// ParseConnectionString splits a connection string into its keys and values. Keys are lowercased and values keep
// their braces stripped once, e.g., "filterExpression={A;B}" results in "filterexpression" mapped to "A;B".
func ParseConnectionString(s string) (map[string]string, error) {
	params := make(map[string]string)

	depth, start := 0, 0
	flush := func(end int) error {
		part := strings.TrimSpace(s[start:end])
		start = end + 1
		if part == "" {
			return nil
		}

		key, value, found := strings.Cut(part, "=")
		if !found {
			return fmt.Errorf("connection string part %q has no value", part)
		}

		value = strings.TrimSpace(value)
		if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
			value = value[1 : len(value)-1]
		}
		params[strings.ToLower(strings.TrimSpace(key))] = value
		return nil
	}

	for i, c := range s {
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unexpected '}' at position %d", i)
			}
		case ';':
			if depth == 0 {
				if err := flush(i); err != nil {
					return nil, err
				}
			}
		}
	}
	if depth != 0 {
		return nil, errors.New("connection string has unbalanced braces")
	}
	if err := flush(len(s)); err != nil {
		return nil, err
	}

	return params, nil
}

// FormatTimeConstraint formats a time.Time for StartTime or StopTime.
func FormatTimeConstraint(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000")
}
