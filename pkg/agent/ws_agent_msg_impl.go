// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"
	"github.com/google/uuid"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

// wamStatus acknowledges a client's request; an empty errorMsg reports success.
type wamStatus struct {
	errorMsg string
}

func newStatusMessage(err error) *wamStatus {
	if err == nil {
		return &wamStatus{}
	}
	return &wamStatus{errorMsg: err.Error()}
}

func (_ *wamStatus) typeCode() wamCode {
	return wamStatusCode
}

func (ws *wamStatus) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(ws.errorMsg, w)
}

func (ws *wamStatus) UnmarshalCbor(r io.Reader) (err error) {
	ws.errorMsg, err = cboring.ReadTextString(r)
	return
}

// wamRegister restricts a client to some signals; no signals request all of them.
type wamRegister struct {
	signals []string
}

func newRegisterMessage(signals ...string) *wamRegister {
	return &wamRegister{signals: signals}
}

func (_ *wamRegister) typeCode() wamCode {
	return wamRegisterCode
}

func (wr *wamRegister) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(wr.signals)), w); err != nil {
		return err
	}

	for _, signal := range wr.signals {
		if err := cboring.WriteTextString(signal, w); err != nil {
			return err
		}
	}
	return nil
}

func (wr *wamRegister) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}

	wr.signals = make([]string, n)
	for i := range wr.signals {
		if wr.signals[i], err = cboring.ReadTextString(r); err != nil {
			return err
		}
	}
	return nil
}

// signalIDs parses the registered signals.
func (wr *wamRegister) signalIDs() ([]uuid.UUID, error) {
	if len(wr.signals) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(wr.signals))
	for i, signal := range wr.signals {
		id, err := uuid.Parse(signal)
		if err != nil {
			return nil, fmt.Errorf("invalid signal ID %q: %w", signal, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// wamMeasurements is a batch of Measurements, each as an array of six elements.
type wamMeasurements struct {
	measurements []sttp.Measurement
}

func newMeasurementsMessage(measurements []sttp.Measurement) *wamMeasurements {
	return &wamMeasurements{measurements: measurements}
}

func (_ *wamMeasurements) typeCode() wamCode {
	return wamMeasurementsCode
}

func (wm *wamMeasurements) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(wm.measurements)), w); err != nil {
		return err
	}

	for _, m := range wm.measurements {
		if err := cboring.WriteArrayLength(6, w); err != nil {
			return err
		}
		if err := cboring.WriteByteString(m.SignalID[:], w); err != nil {
			return err
		}
		if err := cboring.WriteTextString(m.Source, w); err != nil {
			return err
		}
		for _, field := range []uint64{m.ID, uint64(m.Timestamp), uint64(m.Flags)} {
			if err := cboring.WriteUInt(field, w); err != nil {
				return err
			}
		}
		if err := cboring.WriteFloat64(m.Value, w); err != nil {
			return err
		}
	}
	return nil
}

func (wm *wamMeasurements) UnmarshalCbor(r io.Reader) error {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}

	wm.measurements = make([]sttp.Measurement, n)
	for i := range wm.measurements {
		m := &wm.measurements[i]

		if l, err := cboring.ReadArrayLength(r); err != nil {
			return err
		} else if l != 6 {
			return fmt.Errorf("expected measurement array of six elements, got %d", l)
		}

		if signalID, err := cboring.ReadByteString(r); err != nil {
			return err
		} else if m.SignalID, err = uuid.FromBytes(signalID); err != nil {
			return err
		}

		if m.Source, err = cboring.ReadTextString(r); err != nil {
			return err
		}

		var fields [3]uint64
		for j := range fields {
			if fields[j], err = cboring.ReadUInt(r); err != nil {
				return err
			}
		}
		m.ID, m.Timestamp, m.Flags = fields[0], sttp.Ticks(fields[1]), sttp.StateFlags(fields[2])

		if m.Value, err = cboring.ReadFloat64(r); err != nil {
			return err
		}
	}
	return nil
}

// wamMetadataRequest asks for the publisher's metadata.
type wamMetadataRequest struct {
	filterExpression string
}

func newMetadataRequestMessage(filterExpression string) *wamMetadataRequest {
	return &wamMetadataRequest{filterExpression: filterExpression}
}

func (_ *wamMetadataRequest) typeCode() wamCode {
	return wamMetadataRequestCode
}

func (wmr *wamMetadataRequest) MarshalCbor(w io.Writer) error {
	return cboring.WriteTextString(wmr.filterExpression, w)
}

func (wmr *wamMetadataRequest) UnmarshalCbor(r io.Reader) (err error) {
	wmr.filterExpression, err = cboring.ReadTextString(r)
	return
}

// wamMetadata is the publisher's metadata document.
type wamMetadata struct {
	metadata []byte
}

func newMetadataMessage(metadata []byte) *wamMetadata {
	return &wamMetadata{metadata: metadata}
}

func (_ *wamMetadata) typeCode() wamCode {
	return wamMetadataCode
}

func (wm *wamMetadata) MarshalCbor(w io.Writer) error {
	return cboring.WriteByteString(wm.metadata, w)
}

func (wm *wamMetadata) UnmarshalCbor(r io.Reader) (err error) {
	wm.metadata, err = cboring.ReadByteString(r)
	return
}

// wamNotice forwards a status or error message of the subscriber.
type wamNotice struct {
	text    string
	isError bool
}

func newNoticeMessage(text string, isError bool) *wamNotice {
	return &wamNotice{text: text, isError: isError}
}

func (_ *wamNotice) typeCode() wamCode {
	return wamNoticeCode
}

func (wn *wamNotice) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(wn.text, w); err != nil {
		return err
	}
	return cboring.WriteBoolean(wn.isError, w)
}

func (wn *wamNotice) UnmarshalCbor(r io.Reader) (err error) {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("expected notice array of two elements, got %d", n)
	}

	if wn.text, err = cboring.ReadTextString(r); err != nil {
		return
	}
	wn.isError, err = cboring.ReadBoolean(r)
	return
}
