// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sttp/cppapi-sub001/pkg/storage"
	"github.com/sttp/cppapi-sub001/pkg/sttp"
	"github.com/sttp/cppapi-sub001/pkg/transport"
)

// defaultHistory is queried for a /history request without a from parameter.
const defaultHistory = time.Hour

// StatusSource reports the subscriber's state, e.g., a transport.Subscriber.
type StatusSource interface {
	Statistics() transport.Statistics
}

// History looks up archived Measurements, e.g., a storage.Store.
type History interface {
	QuerySignal(signalID uuid.UUID, from, to time.Time) ([]storage.MeasurementItem, error)
}

// RestAgent is a RESTful ApplicationAgent, serving the subscriber's status and the latest value of each signal.
// Archived Measurements are available if a History is present.
type RestAgent struct {
	router  *mux.Router
	status  StatusSource
	history History

	latestMutex sync.RWMutex
	latest      map[uuid.UUID]sttp.Measurement

	receiver chan Message
	sender   chan Message
}

// NewRestAgent creates a new RESTful ApplicationAgent, serving on the router. The history might be nil.
func NewRestAgent(router *mux.Router, status StatusSource, history History) (ra *RestAgent) {
	ra = &RestAgent{
		router:  router,
		status:  status,
		history: history,

		latest: make(map[uuid.UUID]sttp.Measurement),

		receiver: make(chan Message),
		sender:   make(chan Message),
	}

	ra.router.HandleFunc("/status", ra.handleStatus).Methods(http.MethodGet)
	ra.router.HandleFunc("/latest", ra.handleLatest).Methods(http.MethodGet)
	if history != nil {
		ra.router.HandleFunc("/history", ra.handleHistory).Methods(http.MethodGet)
	}

	go ra.handle()

	return ra
}

func (ra *RestAgent) handle() {
	defer close(ra.sender)

	for msg := range ra.receiver {
		switch msg := msg.(type) {
		case MeasurementsMessage:
			ra.update(msg.Measurements)

		case ShutdownMessage:
			log.Debug("RestAgent received a shutdown")
			return
		}
	}
}

// update the latest Measurements; an older value of a signal is ignored.
func (ra *RestAgent) update(measurements []sttp.Measurement) {
	ra.latestMutex.Lock()
	defer ra.latestMutex.Unlock()

	for _, m := range measurements {
		if known, ok := ra.latest[m.SignalID]; !ok || known.Timestamp <= m.Timestamp {
			ra.latest[m.SignalID] = m
		}
	}
}

// ServeHTTP is a http.Handler to be bound to a HTTP endpoint, e.g., /rest.
func (ra *RestAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ra.router.ServeHTTP(w, r)
}

// writeJson encodes a response, using the status code for a non-empty error message.
func writeJson(w http.ResponseWriter, response interface{}, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	if errMsg != "" {
		w.WriteHeader(http.StatusBadRequest)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Warn("Failed to write REST response")
	}
}

// handleStatus processes /status GET requests.
func (ra *RestAgent) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJson(w, newRestStatusResponse(ra.status.Statistics()), "")
}

// parseSignals from the optional, repeatable signal query parameter.
func parseSignals(r *http.Request) ([]uuid.UUID, error) {
	values := r.URL.Query()["signal"]
	if len(values) == 0 {
		return nil, nil
	}

	signals := make([]uuid.UUID, len(values))
	for i, value := range values {
		signal, err := uuid.Parse(value)
		if err != nil {
			return nil, fmt.Errorf("invalid signal %q: %w", value, err)
		}
		signals[i] = signal
	}
	return signals, nil
}

// handleLatest processes /latest GET requests.
func (ra *RestAgent) handleLatest(w http.ResponseWriter, r *http.Request) {
	var latestResponse RestLatestResponse

	signals, err := parseSignals(r)
	if err != nil {
		latestResponse.Error = err.Error()
		writeJson(w, latestResponse, latestResponse.Error)
		return
	}

	set := signalSet(signals)

	ra.latestMutex.RLock()
	latestResponse.Measurements = make([]RestMeasurement, 0, len(ra.latest))
	for signal, m := range ra.latest {
		if _, ok := set[signal]; set == nil || ok {
			latestResponse.Measurements = append(latestResponse.Measurements, newRestMeasurement(m))
		}
	}
	ra.latestMutex.RUnlock()

	sort.Slice(latestResponse.Measurements, func(i, j int) bool {
		return latestResponse.Measurements[i].SignalID < latestResponse.Measurements[j].SignalID
	})

	writeJson(w, latestResponse, "")
}

// parseTime from a RFC 3339 query parameter, falling back to the default.
func parseTime(r *http.Request, key string, fallback time.Time) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback, nil
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, nil
}

// parseHistoryRequest extracts exactly one signal and its time range.
func parseHistoryRequest(r *http.Request) (signal uuid.UUID, from, to time.Time, err error) {
	signals, err := parseSignals(r)
	if err != nil {
		return
	} else if len(signals) != 1 {
		err = fmt.Errorf("expected one signal, got %d", len(signals))
		return
	}
	signal = signals[0]

	if to, err = parseTime(r, "to", time.Now()); err != nil {
		return
	}
	if from, err = parseTime(r, "from", to.Add(-defaultHistory)); err != nil {
		return
	}

	if !from.Before(to) {
		err = fmt.Errorf("empty time range [%v, %v)", from, to)
	}
	return
}

// handleHistory processes /history GET requests.
func (ra *RestAgent) handleHistory(w http.ResponseWriter, r *http.Request) {
	var historyResponse RestHistoryResponse

	signal, from, to, err := parseHistoryRequest(r)
	if err != nil {
		historyResponse.Error = err.Error()
		writeJson(w, historyResponse, historyResponse.Error)
		return
	}

	mis, err := ra.history.QuerySignal(signal, from, to)
	if err != nil {
		log.WithError(err).WithField("signal", signal).Warn("Querying REST history errored")

		historyResponse.Error = err.Error()
		writeJson(w, historyResponse, historyResponse.Error)
		return
	}

	historyResponse.Measurements = make([]RestMeasurement, 0, len(mis))
	for _, mi := range mis {
		if m, err := mi.Measurement(); err != nil {
			log.WithError(err).WithField("measurement", mi.Id).Warn("Restoring archived measurement errored")
		} else {
			historyResponse.Measurements = append(historyResponse.Measurements, newRestMeasurement(m))
		}
	}

	writeJson(w, historyResponse, "")
}

// Signals is nil, the latest value of all signals is kept.
func (ra *RestAgent) Signals() []uuid.UUID {
	return nil
}

func (ra *RestAgent) MessageReceiver() chan Message {
	return ra.receiver
}

func (ra *RestAgent) MessageSender() chan Message {
	return ra.sender
}
