// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage archives received measurements in a badgerhold database.
package storage

import (
	"errors"
	"os"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

const dirBadger string = "db"

// DefaultRetention is used for a non-positive retention.
const DefaultRetention = 24 * time.Hour

// Store implements an archive for Measurements, queryable by signal and time range.
type Store struct {
	bh *badgerhold.Store

	badgerDir string
	retention time.Duration
}

// NewStore creates a new Store or opens an existing Store from the given path. Measurements are kept for the
// retention, see DeleteExpired.
func NewStore(dir string, retention time.Duration) (s *Store, err error) {
	badgerDir := path.Join(dir, dirBadger)

	if retention <= 0 {
		retention = DefaultRetention
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	if dirErr := os.MkdirAll(badgerDir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		s = &Store{
			bh: bh,

			badgerDir: badgerDir,
			retention: retention,
		}
	}
	return
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

// Push a received Measurement to the Store. A known value of a signal at the same timestamp is kept.
func (s *Store) Push(m sttp.Measurement) error {
	mi := newMeasurementItem(m, s.retention)

	if _, err := s.QueryId(m.SignalID, m.Timestamp); err == nil {
		log.WithField("measurement", mi.Id).Debug("Measurement is known, ignoring push")
		return nil
	} else if !errors.Is(err, badgerhold.ErrNotFound) {
		return err
	}

	return s.bh.Insert(mi.Id, mi)
}

// PushAll Measurements, e.g., a received batch. All failures are collected.
func (s *Store) PushAll(measurements []sttp.Measurement) error {
	var errs *multierror.Error
	for _, m := range measurements {
		if err := s.Push(m); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		log.WithError(err).WithField("measurements", len(measurements)).Warn("Store failed to archive measurements")
		return err
	}
	return nil
}

// Delete a signal's MeasurementItem at some timestamp.
func (s *Store) Delete(signalID uuid.UUID, ticks sttp.Ticks) error {
	if mi, err := s.QueryId(signalID, ticks); err == nil {
		log.WithField("measurement", mi.Id).Debug("Store deletes MeasurementItem")

		return s.bh.Delete(mi.Id, MeasurementItem{})
	}

	return nil
}

// DeleteExpired removes all MeasurementItems older than the retention.
func (s *Store) DeleteExpired() {
	var mis []MeasurementItem
	if err := s.bh.Find(&mis, badgerhold.Where("Expires").Lt(time.Now())); err != nil {
		log.WithError(err).Warn("Failed to get expired measurements")
		return
	}

	for _, mi := range mis {
		if err := s.bh.Delete(mi.Id, MeasurementItem{}); err != nil {
			log.WithError(err).WithField("measurement", mi.Id).Warn("Failed to delete expired measurement")
		}
	}

	if len(mis) > 0 {
		log.WithField("measurements", len(mis)).Info("Deleted expired measurements")
	}
}

// QueryId fetches the MeasurementItem of a signal at some timestamp.
func (s *Store) QueryId(signalID uuid.UUID, ticks sttp.Ticks) (mi MeasurementItem, err error) {
	err = s.bh.Get(itemId(signalID, ticks), &mi)
	return
}

// QuerySignal fetches the MeasurementItems of a signal within [from, to), ordered by their timestamp.
func (s *Store) QuerySignal(signalID uuid.UUID, from, to time.Time) (mis []MeasurementItem, err error) {
	query := badgerhold.Where("SignalID").Eq(signalID.String()).
		And("Timestamp").Ge(from).
		And("Timestamp").Lt(to)

	if err = s.bh.Find(&mis, query); err != nil {
		return
	}

	sort.Slice(mis, func(i, j int) bool { return mis[i].Ticks < mis[j].Ticks })
	return
}

// KnowsMeasurement checks if a signal's value at some timestamp is archived.
func (s *Store) KnowsMeasurement(signalID uuid.UUID, ticks sttp.Ticks) bool {
	_, err := s.QueryId(signalID, ticks)
	return !errors.Is(err, badgerhold.ErrNotFound)
}
