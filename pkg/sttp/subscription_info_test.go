// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sttp

import (
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
)

func TestSubscriptionInfoConnectionString(t *testing.T) {
	info := DefaultSubscriptionInfo()
	info.FilterExpression = "FILTER ActiveMeasurements WHERE SignalType='FREQ'; PPA:1"
	info.UdpDataChannel = true
	info.DataChannelLocalPort = 9600
	info.StartTime = "*-5M"
	info.StopTime = "*"
	info.ExtraConnectionStringParameters = "custom=value"

	params, err := ParseConnectionString(info.ConnectionString())
	if err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"throttled":           "false",
		"includetime":         "true",
		"lagtime":             "10",
		"leadtime":            "5",
		"processinginterval":  "-1",
		"filterexpression":    info.FilterExpression,
		"datachannel":         "localport=9600",
		"starttimeconstraint": "*-5M",
		"stoptimeconstraint":  "*",
		"custom":              "value",
		"assemblyinfo":        "source=" + Source + ";version=" + Version + ";updatedOn=" + UpdatedOn,
	}

	for key, expected := range tests {
		if value, ok := params[key]; !ok {
			t.Fatalf("key %s is missing", key)
		} else if value != expected {
			t.Fatalf("key %s is %q, expected %q", key, value, expected)
		}
	}
}

func TestSubscriptionInfoOptionalParts(t *testing.T) {
	params, err := ParseConnectionString(DefaultSubscriptionInfo().ConnectionString())
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"filterexpression", "datachannel", "starttimeconstraint", "stoptimeconstraint"} {
		if _, ok := params[key]; ok {
			t.Fatalf("default connection string contains %s", key)
		}
	}
}

func TestSubscriptionInfoValidate(t *testing.T) {
	if err := DefaultSubscriptionInfo().Validate(); err != nil {
		t.Fatal(err)
	}

	info := DefaultSubscriptionInfo()
	info.FilterExpression = "FILTER ActiveMeasurements WHERE {"
	if err := info.Validate(); err == nil {
		t.Fatal("unbalanced filter expression was accepted")
	}

	info.LagTime = -1
	info.StopTime = "*"
	info.ProcessingInterval = -2
	err := info.Validate()
	if merr, ok := err.(*multierror.Error); !ok {
		t.Fatalf("error is %T", err)
	} else if len(merr.Errors) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(merr.Errors), merr)
	}
}

func TestSubscriptionInfoValidateExtraParameters(t *testing.T) {
	tests := []struct {
		extra string
		valid bool
	}{
		{"", true},
		{"custom=value", true},
		{"a=1; b={x;y}", true},
		{"novalue", false},
		{"a={b", false},
		{"a=1;b", false},
	}

	for _, test := range tests {
		info := DefaultSubscriptionInfo()
		info.ExtraConnectionStringParameters = test.extra

		if err := info.Validate(); (err == nil) != test.valid {
			t.Fatalf("extra parameters %q: expected valid=%t, got %v", test.extra, test.valid, err)
		}
	}
}

func TestSubscriptionInfoTemporal(t *testing.T) {
	info := DefaultSubscriptionInfo()
	if info.IsTemporal() {
		t.Fatal("default subscription is temporal")
	}

	info.StartTime = FormatTimeConstraint(time.Date(2026, 10, 18, 14, 0, 0, 250_000_000, time.FixedZone("CEST", 2*60*60)))
	if info.StartTime != "2026-10-18 12:00:00.250" {
		t.Fatalf("unexpected time constraint %q", info.StartTime)
	}
	if !info.IsTemporal() {
		t.Fatal("subscription with a start time is not temporal")
	}
}

func TestParseConnectionStringErrors(t *testing.T) {
	tests := []string{
		"a={b",
		"a=b}",
		"novalue",
	}

	for _, test := range tests {
		if _, err := ParseConnectionString(test); err == nil {
			t.Fatalf("%q was parsed", test)
		}
	}
}
