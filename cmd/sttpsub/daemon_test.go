// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const daemonConfig = `
[subscriber]
listen = true
port = 0

[subscription]
filter-expression = "%s"

[store]
path = "%s"

[agent]
listen = "127.0.0.1:0"
metrics = true
`

func TestDaemonReload(t *testing.T) {
	filename := writeConfig(t, "")
	storeDir := filepath.Join(filepath.Dir(filename), "store")

	if err := os.WriteFile(filename, []byte(fmt.Sprintf(daemonConfig, "FILTER A", storeDir)), 0600); err != nil {
		t.Fatal(err)
	}

	conf, err := parseConfig(filename)
	if err != nil {
		t.Fatal(err)
	}

	d, err := newDaemon(filename, conf)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.start(); err != nil {
		t.Fatal(err)
	}

	if !d.subscriber.IsListening() {
		t.Fatal("subscriber is not listening")
	}

	// Metrics are served by the bridge
	resp, err := http.Get(fmt.Sprintf("http://%s/metrics", d.bridge.Addr()))
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	} else if !strings.Contains(string(body), `sttp_subscriber_state{state="listening"} 1`) {
		t.Fatalf("metrics lack the listening state:\n%s", body)
	}

	// A changed subscription is picked up
	if err := os.WriteFile(filename, []byte(fmt.Sprintf(daemonConfig, "FILTER B", storeDir)), 0600); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.subscriptionInfo().FilterExpression != "FILTER B" {
		if time.Now().After(deadline) {
			t.Fatalf("subscription was not reloaded: %v", d.subscriptionInfo())
		}
		time.Sleep(50 * time.Millisecond)
	}

	if err := d.close(); err != nil {
		t.Fatal(err)
	}

	deadline = time.Now().Add(2 * time.Second)
	for d.subscriber.IsListening() {
		if time.Now().After(deadline) {
			t.Fatal("subscriber is still listening after close")
		}
		time.Sleep(50 * time.Millisecond)
	}
}
