// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// sttpsub subscribes to a STTP publisher, archives the received measurements and serves them to WebSocket and REST
// clients.
package main

import (
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
)

// waitSigint blocks the current thread until a SIGINT appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signalAck := make(chan struct{})

	signal.Notify(signalSyn, os.Interrupt)

	go func() {
		<-signalSyn
		close(signalAck)
	}()

	<-signalAck
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s configuration.toml", os.Args[0])
	}

	conf, err := parseConfig(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to parse config")
	}

	setupLogging(conf.logging)

	d, err := newDaemon(os.Args[1], conf)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to create subscriber")
	}

	if err := d.start(); err != nil {
		_ = d.close()
		log.WithFields(log.Fields{
			"error": err,
		}).Fatal("Failed to start subscriber")
	}

	waitSigint()
	log.Info("Shutting down..")

	if err := d.close(); err != nil {
		log.WithError(err).Warn("Shutting down errored")
	}
}
