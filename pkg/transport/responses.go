// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sttp/cppapi-sub001/pkg/endian"
	"github.com/sttp/cppapi-sub001/pkg/sttp"
	"github.com/sttp/cppapi-sub001/pkg/sttp/tssc"
	"github.com/sttp/cppapi-sub001/pkg/transport/internal/msgs"
)

// handleResponse is the FrameSwitch's handler for the command channel.
func (s *Subscriber) handleResponse(frame *msgs.ResponseFrame) {
	if s.disconnecting.Load() {
		return
	}

	s.commandChannelBytes.Add(uint64(frame.Len()))

	if !s.validated.Load() && !allowedBeforeValidation(frame) {
		s.protocolError(fmt.Sprintf(
			"Possible invalid protocol detected from publisher: %v before operational modes were accepted", frame))
		return
	}

	s.processResponse(frame)
}

// allowedBeforeValidation checks if a frame may be received before the operational modes were accepted.
func allowedBeforeValidation(frame *msgs.ResponseFrame) bool {
	switch frame.Response {
	case sttp.NoOp:
		return true
	case sttp.Succeeded, sttp.Failed:
		return frame.Command == sttp.DefineOperationalModes
	default:
		return false
	}
}

// processResponse handles a frame from the command or the data channel.
func (s *Subscriber) processResponse(frame *msgs.ResponseFrame) {
	s.log().WithField("frame", frame).Debug("Received response")

	switch frame.Response {
	case sttp.Succeeded:
		s.handleSucceeded(frame.Command, frame.Payload)

	case sttp.Failed:
		s.handleFailed(frame.Command, frame.Payload)

	case sttp.DataPacket:
		s.handleDataPacket(frame.Payload)

	case sttp.DataStartTime:
		r := endian.NewReader(frame.Payload)
		if startTime, err := r.Uint64(); err != nil {
			s.dispatchErrorMessage(fmt.Sprintf("Malformed data start time: %v", err))
		} else {
			s.dispatchDataStartTime(sttp.Ticks(startTime))
		}

	case sttp.ProcessingComplete:
		s.dispatchStatusMessage("Temporal subscription finished processing")
		s.dispatchProcessingComplete(string(frame.Payload))

	case sttp.UpdateSignalIndexCache:
		s.handleUpdateSignalIndexCache(frame.Payload)

	case sttp.UpdateBaseTimes:
		s.handleUpdateBaseTimes(frame.Payload)

	case sttp.UpdateCipherKeys:
		s.dispatchErrorMessage("Received cipher keys, but encrypted data channels are not supported")

	case sttp.ConfigurationChanged:
		s.dispatchStatusMessage("Received notification from publisher that configuration has changed")
		s.dispatchConfigurationChanged()

	case sttp.Notify:
		s.handleNotify(frame.Payload)

	case sttp.BufferBlock:
		s.dispatchErrorMessage("Received buffer block, which is not supported; unsubscribing")
		if err := s.Unsubscribe(); err != nil {
			s.dispatchErrorMessage(fmt.Sprintf("Failed to unsubscribe: %v", err))
		}

	case sttp.NoOp:

	default:
		if frame.Response.IsUserResponse() {
			s.dispatchStatusMessage(fmt.Sprintf("Received %v for %v with %d bytes",
				frame.Response, frame.Command, len(frame.Payload)))
		} else {
			s.dispatchErrorMessage(fmt.Sprintf("Received unknown response code %v for %v", frame.Response, frame.Command))
		}
	}
}

func (s *Subscriber) handleSucceeded(command sttp.ServerCommand, payload []byte) {
	switch command {
	case sttp.DefineOperationalModes:
		s.validated.Store(true)
		s.closeOperationalModes()
		s.log().Info("Publisher accepted the operational modes")
		s.dispatchStatusMessage(fmt.Sprintf("Success code received in response to server command %v: %s",
			command, payload))

	case sttp.Subscribe:
		s.subscribed.Store(true)
		s.dispatchStatusMessage(fmt.Sprintf("Success code received in response to server command %v: %s",
			command, payload))

	case sttp.MetadataRefresh:
		s.handleMetadata(payload)

	default:
		s.dispatchStatusMessage(fmt.Sprintf("Success code received in response to server command %v: %s",
			command, payload))
	}
}

func (s *Subscriber) handleFailed(command sttp.ServerCommand, payload []byte) {
	message := fmt.Sprintf("Failure code received in response to server command %v: %s", command, payload)

	switch command {
	case sttp.DefineOperationalModes:
		s.connectionRefused.Store(true)
		s.closeOperationalModes()
		s.log().Warn("Publisher refused the operational modes")
		s.dispatchErrorMessage(message)
		s.disconnect(reasonRefused)

	case sttp.Subscribe:
		s.subscribed.Store(false)
		s.closeDataChannel()
		s.dispatchErrorMessage(message)

	default:
		s.dispatchErrorMessage(message)
	}
}

func (s *Subscriber) handleDataPacket(payload []byte) {
	r := endian.NewReader(payload)

	flagsByte, err := r.Uint8()
	if err != nil {
		s.dispatchErrorMessage(fmt.Sprintf("Malformed data packet: %v", err))
		return
	}
	flags := sttp.DataPacketFlags(flagsByte)

	count, err := r.Uint32()
	if err != nil {
		s.dispatchErrorMessage(fmt.Sprintf("Malformed data packet: %v", err))
		return
	}

	if flags&sttp.DataPacketCipherIndex != 0 {
		s.dispatchErrorMessage("Received an encrypted data packet, which is not supported")
		return
	}

	cache := s.signalIndexCache(flags&sttp.DataPacketCacheIndex != 0)

	var measurements []sttp.Measurement
	if flags&sttp.DataPacketCompressed != 0 {
		measurements, err = s.decodeTsscPacket(cache, r.Remaining())
		if err != nil {
			if errors.Is(err, tssc.ErrVersion) {
				s.protocolError(fmt.Sprintf("Possible invalid protocol detected from publisher: %v", err))
			} else {
				s.dispatchErrorMessage(fmt.Sprintf("Failed to decompress data packet: %v", err))
				s.disconnect(reasonSocketError)
			}
			return
		}
	} else {
		measurements, err = s.decodeCompactPacket(cache, r, count)
	}

	if len(measurements) > 0 {
		s.measurementsReceived.Add(uint64(len(measurements)))
		s.dispatchNewMeasurements(measurements)
	}
	if err != nil {
		s.dispatchErrorMessage(fmt.Sprintf("Failed to parse compact measurement %d of %d: %v",
			len(measurements)+1, count, err))
	}
}

// decodeCompactPacket reads compact records until the end of the packet or the first malformed record.
func (s *Subscriber) decodeCompactPacket(cache *sttp.SignalIndexCache, r *endian.Reader, count uint32) ([]sttp.Measurement, error) {
	info := s.SubscriptionInfo()
	codec := sttp.NewCompactCodec(cache, info.IncludeTime, info.UseMillisecondResolution)

	s.cacheMutex.Lock()
	codec.BaseTimeOffsets = s.baseTimes
	codec.TimeIndex = s.timeIndex
	s.cacheMutex.Unlock()

	// A record has at least nine bytes; the declared count is not trusted for the allocation.
	capacity := int(count)
	if limit := r.Len()/9 + 1; capacity > limit {
		capacity = limit
	}

	measurements := make([]sttp.Measurement, 0, capacity)
	for {
		m, ok, err := codec.TryParseMeasurement(r)
		if err != nil {
			return measurements, err
		}
		if !ok {
			return measurements, nil
		}
		measurements = append(measurements, m)
	}
}

// decodeTsscPacket decompresses a TSSC packet. Packets dropped because of their sequence number result in no
// measurements and no error.
func (s *Subscriber) decodeTsscPacket(cache *sttp.SignalIndexCache, packet []byte) ([]sttp.Measurement, error) {
	points, warning, err := s.tssc.decode(packet, time.Now())
	if warning != "" {
		s.dispatchErrorMessage(warning)
	}
	if err != nil {
		return nil, err
	}

	measurements := make([]sttp.Measurement, len(points))
	for i, p := range points {
		signalID, source, id, _ := cache.GetMeasurementKey(p.ID)
		measurements[i] = sttp.Measurement{
			SignalID:  signalID,
			Source:    source,
			ID:        id,
			Timestamp: sttp.Ticks(p.Timestamp),
			Flags:     sttp.StateFlags(p.Quality),
			Value:     float64(p.Value),
		}
	}
	return measurements, nil
}

func (s *Subscriber) handleUpdateSignalIndexCache(payload []byte) {
	modes := s.OperationalModes()

	cacheIndex := 0
	if modes.Version() > 1 {
		if len(payload) < 1 {
			s.dispatchErrorMessage("Received a signal index cache update without cache index")
			return
		}
		cacheIndex = int(payload[0] & 1)
		payload = payload[1:]
	}

	if modes.Has(sttp.CompressSignalIndexCache | sttp.OperationalModes(sttp.CompressionGZip)) {
		var err error
		if payload, err = gunzip(payload); err != nil {
			s.dispatchErrorMessage(fmt.Sprintf("Failed to decompress signal index cache: %v", err))
			return
		}
	}

	cache := sttp.NewSignalIndexCache()
	subscriberID, err := cache.Decode(payload)
	if err != nil {
		s.dispatchErrorMessage(fmt.Sprintf("Failed to parse signal index cache: %v", err))
		return
	}

	s.cacheMutex.Lock()
	s.caches[cacheIndex] = cache
	s.subscriberID = subscriberID
	s.cacheMutex.Unlock()

	s.log().WithFields(log.Fields{
		"cache index": cacheIndex,
		"signals":     cache.Count(),
	}).Info("Received signal index cache")

	if modes.Version() > 1 {
		if err := s.SendServerCommand(sttp.ConfirmUpdateSignalIndexCache, nil); err != nil {
			s.dispatchErrorMessage(fmt.Sprintf("Failed to confirm signal index cache: %v", err))
		}
	}

	s.dispatchSubscriptionUpdated(cache)
}

func (s *Subscriber) handleUpdateBaseTimes(payload []byte) {
	r := endian.NewReader(payload)

	timeIndex, err := r.Int32()
	var base0, base1 int64
	if err == nil {
		base0, err = r.Int64()
	}
	if err == nil {
		base1, err = r.Int64()
	}
	if err != nil {
		s.dispatchErrorMessage(fmt.Sprintf("Malformed base time update: %v", err))
		return
	}

	s.cacheMutex.Lock()
	s.timeIndex = int(timeIndex & 1)
	s.baseTimes = [2]sttp.Ticks{sttp.Ticks(base0), sttp.Ticks(base1)}
	s.cacheMutex.Unlock()

	s.log().WithField("time index", timeIndex).Debug("Received base times")
}

func (s *Subscriber) handleNotify(payload []byte) {
	if len(payload) < 4 {
		s.dispatchErrorMessage("Received a notification without hash")
		return
	}

	hash, message := payload[:4], string(payload[4:])

	s.dispatchStatusMessage(fmt.Sprintf("NOTIFICATION: %s", message))
	s.dispatchNotification(message)

	if err := s.SendServerCommand(sttp.ConfirmNotification, hash); err != nil {
		s.dispatchErrorMessage(fmt.Sprintf("Failed to confirm notification: %v", err))
	}
}
