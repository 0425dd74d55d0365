// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sttp/cppapi-sub001/pkg/agent"
	"github.com/sttp/cppapi-sub001/pkg/observability"
	"github.com/sttp/cppapi-sub001/pkg/storage"
	"github.com/sttp/cppapi-sub001/pkg/sttp"
	"github.com/sttp/cppapi-sub001/pkg/transport"
)

// daemon connects a Subscriber to its archive, bridge and metrics.
type daemon struct {
	configFile string
	conf       config

	subscriber *transport.Subscriber
	store      *storage.Store
	bridge     *agent.Bridge
	events     *observability.Events
	registry   *prometheus.Registry
	watcher    *fsnotify.Watcher

	infoMutex sync.Mutex
	info      sttp.SubscriptionInfo

	ctx      context.Context
	cancel   context.CancelFunc
	watchSyn chan struct{}
}

func newDaemon(configFile string, conf config) (d *daemon, err error) {
	d = &daemon{
		configFile: configFile,
		conf:       conf,

		subscriber: transport.NewSubscriber(conf.transport),
		events:     observability.NewEvents(),
		registry:   prometheus.NewRegistry(),

		info: conf.subscription,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	var history agent.History
	if conf.storePath != "" {
		if d.store, err = storage.NewStore(conf.storePath, conf.storeRetention); err != nil {
			return nil, err
		}
		history = d.store
	}

	d.bridge = agent.NewBridge(d.subscriber, history)
	if d.store != nil {
		d.bridge.Register(agent.NewArchiveAgent(d.store, conf.storeCleanup))
	}

	if err = observability.Register(d.registry, d.subscriber, d.events); err != nil {
		d.close()
		return nil, err
	}
	if conf.metrics {
		d.bridge.Router().Handle("/metrics", observability.Handler(d.registry))
	}

	d.registerCallbacks()
	return d, nil
}

func (d *daemon) logger() *log.Entry {
	return log.WithField("subscriber", d.subscriber.String())
}

func (d *daemon) registerCallbacks() {
	s := d.subscriber

	s.SetStatusMessageCallback(func(s *transport.Subscriber, message string) {
		d.logger().Info(message)
		d.events.StatusMessage(s, message)
		_ = d.bridge.Notice(message, false)
	})
	s.SetErrorMessageCallback(func(s *transport.Subscriber, message string) {
		d.logger().Warn(message)
		d.events.ErrorMessage(s, message)
		_ = d.bridge.Notice(message, true)
	})
	s.SetNewMeasurementsCallback(func(_ *transport.Subscriber, measurements []sttp.Measurement) {
		d.events.Measurements(len(measurements))
		_ = d.bridge.Publish(measurements)
	})
	s.SetMetadataCallback(func(_ *transport.Subscriber, metadata []byte) {
		_ = d.bridge.Metadata(metadata)
	})
	s.SetDataStartTimeCallback(func(_ *transport.Subscriber, startTime sttp.Ticks) {
		d.logger().WithField("start", startTime).Info("Received data start time")
	})
	s.SetSubscriptionUpdatedCallback(func(_ *transport.Subscriber, cache *sttp.SignalIndexCache) {
		d.logger().WithField("signals", cache.Count()).Info("Subscription was updated")
	})
	s.SetConfigurationChangedCallback(func(s *transport.Subscriber) {
		d.logger().Info("Publisher configuration changed, requesting metadata")
		if err := s.RefreshMetadata(""); err != nil {
			d.logger().WithError(err).Warn("Failed to request metadata")
		}
	})
	s.SetProcessingCompleteCallback(func(_ *transport.Subscriber, message string) {
		d.logger().WithField("message", message).Info("Temporal subscription completed")
		_ = d.bridge.Notice(message, false)
	})
	s.SetNotificationCallback(func(_ *transport.Subscriber, message string) {
		d.logger().WithField("notification", message).Info("Received notification")
		_ = d.bridge.Notice(message, false)
	})
	s.SetConnectionEstablishedCallback(func(_ *transport.Subscriber) {
		go d.subscribe()
	})
	s.SetConnectionTerminatedCallback(func(s *transport.Subscriber) {
		d.logger().Info("Connection terminated")
		d.events.ConnectionTerminated(s)
	})
	s.Connector().SetReconnectCallback(func(s *transport.Subscriber, status transport.ConnectStatus) {
		d.logger().WithField("status", status).Info("Reconnect finished")
		d.events.Reconnect(s, status)
	})
}

func (d *daemon) subscriptionInfo() sttp.SubscriptionInfo {
	d.infoMutex.Lock()
	defer d.infoMutex.Unlock()

	return d.info
}

// subscribe with the current SubscriptionInfo after the publisher accepted the operational modes.
func (d *daemon) subscribe() {
	if err := d.subscriber.WaitForOperationalModesResponse(d.conf.transport.OperationalModesTimeout); err != nil {
		d.logger().WithError(err).Debug("No subscription without accepted operational modes")
		return
	}

	info := d.subscriptionInfo()
	if info.IsTemporal() {
		d.logger().WithFields(log.Fields{
			"start": info.StartTime,
			"stop":  info.StopTime,
		}).Info("Requesting temporal subscription")
	}

	if err := d.subscriber.Subscribe(info); err != nil {
		d.logger().WithError(err).Warn("Failed to subscribe")
	}
}

// start serving, connecting and watching the configuration file.
func (d *daemon) start() error {
	if d.conf.agentListen != "" {
		if err := d.bridge.ListenAndServe(d.conf.agentListen); err != nil {
			return err
		}
	}

	if d.conf.listen {
		if err := d.subscriber.Listen(d.conf.port); err != nil {
			return err
		}
	} else {
		d.subscriber.Connector().SetTarget(d.conf.hostname, d.conf.port)

		go func() {
			status := d.subscriber.Connector().Connect(d.ctx, d.subscriber)
			d.logger().WithField("status", status).Info("Connector finished")
		}()
	}

	return d.watch()
}

// watch the configuration file's directory, as editors often replace the file.
func (d *daemon) watch() (err error) {
	if d.watcher, err = fsnotify.NewWatcher(); err != nil {
		return
	}
	if err = d.watcher.Add(filepath.Dir(d.configFile)); err != nil {
		_ = d.watcher.Close()
		d.watcher = nil
		return
	}

	d.watchSyn = make(chan struct{})
	go d.handleWatcher()
	return
}

func (d *daemon) handleWatcher() {
	defer close(d.watchSyn)

	for {
		select {
		case e, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(e.Name) != filepath.Clean(d.configFile) || e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				log.WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			if err := d.reload(); err != nil {
				log.WithError(err).Warn("Failed to reload configuration")
			}

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}

			log.WithError(err).Error("fsnotify errored")
		}
	}
}

// reload the logging and subscription sections. A changed subscription is re-subscribed on an accepted connection.
func (d *daemon) reload() error {
	conf, err := parseConfig(d.configFile)
	if err != nil {
		return err
	}

	setupLogging(conf.logging)

	d.infoMutex.Lock()
	changed := d.info != conf.subscription
	d.info = conf.subscription
	d.infoMutex.Unlock()

	if !changed {
		log.Debug("Subscription is unchanged after reload")
		return nil
	}

	log.WithField("filter", conf.subscription.FilterExpression).Info("Subscription changed")

	if !d.subscriber.IsValidated() {
		return nil
	}
	if err := d.subscriber.Subscribe(conf.subscription); err != nil {
		return fmt.Errorf("re-subscribing failed: %w", err)
	}
	return nil
}

// close everything down. Each failure is collected.
func (d *daemon) close() error {
	var errs *multierror.Error

	d.cancel()

	if d.watcher != nil {
		errs = multierror.Append(errs, d.watcher.Close())
		<-d.watchSyn
	}

	d.subscriber.Disconnect()

	if err := d.bridge.Close(); err != nil && !errors.Is(err, agent.ErrBridgeClosed) {
		errs = multierror.Append(errs, err)
	}

	if d.store != nil {
		errs = multierror.Append(errs, d.store.Close())
	}

	return errs.ErrorOrNil()
}
