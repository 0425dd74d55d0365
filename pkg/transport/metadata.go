// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package transport

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"time"

	"github.com/sttp/cppapi-sub001/pkg/endian"
	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

// gunzip a metadata document or signal index cache.
func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	return io.ReadAll(zr)
}

// RefreshMetadata requests the publisher's metadata, optionally restricted by filter expressions. The document is
// delivered to the metadata callback.
func (s *Subscriber) RefreshMetadata(filterExpression string) error {
	var payload []byte
	if filterExpression != "" {
		endian.WriteBigEndianBytes(&payload, uint32(len(filterExpression)))
		payload = append(payload, filterExpression...)
	}

	s.metadataRequested.Store(time.Now().UnixNano())
	return s.SendServerCommand(sttp.MetadataRefresh, payload)
}

func (s *Subscriber) handleMetadata(payload []byte) {
	metadata := payload
	if s.OperationalModes().Has(sttp.CompressMetadata) {
		var err error
		if metadata, err = gunzip(payload); err != nil {
			s.dispatchErrorMessage(fmt.Sprintf("Failed to decompress received metadata: %v", err))
			return
		}
	}

	elapsed := time.Duration(0)
	if requested := s.metadataRequested.Load(); requested > 0 {
		elapsed = time.Since(time.Unix(0, requested)).Round(time.Millisecond)
	}

	s.dispatchStatusMessage(fmt.Sprintf("Received %d bytes of metadata in %v", len(metadata), elapsed))
	s.dispatchMetadata(metadata)
}
