// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package msgs

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/sttp/cppapi-sub001/pkg/sttp"
)

func TestCommandFrame(t *testing.T) {
	tests := []struct {
		command sttp.ServerCommand
		payload []byte
	}{
		{sttp.Unsubscribe, nil},
		{sttp.DefineOperationalModes, []byte{0x00, 0x00, 0x02, 0x03}},
		{sttp.Subscribe, bytes.Repeat([]byte{0xAB}, 1024)},
		{sttp.UserCommand00 + 3, bytes.Repeat([]byte{0x01}, 65536)},
	}

	for _, test := range tests {
		var buf bytes.Buffer
		cf := NewCommandFrame(test.command, test.payload)

		if err := cf.Marshal(&buf); err != nil {
			t.Fatal(err)
		}
		if buf.Len() != len(test.payload)+5 || buf.Len() != cf.Len() {
			t.Fatalf("%v: frame has %d bytes for a payload of %d bytes", test.command, buf.Len(), len(test.payload))
		}

		data := buf.Bytes()
		if data[0] != 0 || int(data[1])<<16|int(data[2])<<8|int(data[3]) != len(test.payload)+1 {
			t.Fatalf("%v: length field is %x", test.command, data[:4])
		}

		decoded, err := ReadCommand(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if decoded.Command != test.command || !bytes.Equal(decoded.Payload, test.payload) {
			t.Fatalf("decoded %v, expected %v", decoded, cf)
		}
	}
}

func TestResponseFrame(t *testing.T) {
	rf := NewResponseFrame(sttp.Succeeded, sttp.DefineOperationalModes, []byte("accepted"))

	var buf bytes.Buffer
	if err := rf.Marshal(&buf); err != nil {
		t.Fatal(err)
	}

	expected := append([]byte{0x00, 0x00, 0x00, 0x0A, 0x80, 0x06}, "accepted"...)
	if !bytes.Equal(buf.Bytes(), expected) {
		t.Fatalf("frame is %x, expected %x", buf.Bytes(), expected)
	}

	decoded, err := ReadResponse(&buf, sttp.MaxInitialPacketSize)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Response != rf.Response || decoded.Command != rf.Command || !bytes.Equal(decoded.Payload, rf.Payload) {
		t.Fatalf("decoded %v, expected %v", decoded, rf)
	}
}

// countingReader counts the bytes read from it.
type countingReader struct {
	r io.Reader
	n int
}

func (cr *countingReader) Read(p []byte) (n int, err error) {
	n, err = cr.r.Read(p)
	cr.n += n
	return
}

func TestReadResponseTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x00, 0x4E, 0x20})
	buf.Write(bytes.Repeat([]byte{0xFF}, 20000))

	cr := &countingReader{r: &buf}
	if _, err := ReadResponse(cr, sttp.MaxInitialPacketSize); !errors.Is(err, ErrPacketTooLarge) {
		t.Fatalf("expected ErrPacketTooLarge, got %v", err)
	}
	if cr.n != sttp.PayloadHeaderSize {
		t.Fatalf("read %d bytes, expected only the length field", cr.n)
	}
}

func TestReadResponseShort(t *testing.T) {
	tests := [][]byte{
		{},
		{0x00, 0x00},
		{0x00, 0x00, 0x00, 0x01, 0x80},
		{0x00, 0x00, 0x00, 0x08, 0x80, 0x06, 0x01},
	}

	for i, test := range tests {
		if _, err := ReadResponse(bytes.NewReader(test), 0); err == nil {
			t.Fatalf("test %d: short frame was parsed", i)
		}
	}
}

func TestDatagram(t *testing.T) {
	rf := NewResponseFrame(sttp.DataPacket, sttp.Subscribe, []byte{0x02, 0x00, 0x00, 0x00, 0x00})

	decoded, err := ParseDatagram(rf.MarshalDatagram())
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Response != rf.Response || decoded.Command != rf.Command || !bytes.Equal(decoded.Payload, rf.Payload) {
		t.Fatalf("decoded %v, expected %v", decoded, rf)
	}

	if _, err := ParseDatagram([]byte{0x82}); err == nil {
		t.Fatal("datagram without header was parsed")
	}
}
