// SPDX-FileCopyrightText: 2026 STTP Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"testing"

	"github.com/google/uuid"
)

func TestBagContainsSignal(t *testing.T) {
	s1, s2, s3 := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		bag     []uuid.UUID
		signals []uuid.UUID
		valid   bool
	}{
		{nil, []uuid.UUID{s1}, true},
		{nil, nil, true},
		{[]uuid.UUID{}, []uuid.UUID{s1}, false},
		{[]uuid.UUID{s1}, []uuid.UUID{s1}, true},
		{[]uuid.UUID{s1, s2}, []uuid.UUID{s3, s2}, true},
		{[]uuid.UUID{s1, s2}, []uuid.UUID{s3}, false},
		{[]uuid.UUID{s1}, nil, false},
	}

	for _, test := range tests {
		if valid := bagContainsSignal(test.bag, test.signals); valid != test.valid {
			t.Fatalf("bagContainsSignal(%v, %v) = %t, expected %t", test.bag, test.signals, valid, test.valid)
		}
	}
}

func TestMeasurementsMessageFilter(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	msg := MeasurementsMessage{createMeasurements(s1, s2, s1)}

	if filtered := msg.filter(nil); len(filtered.Measurements) != 3 {
		t.Fatalf("nil filter dropped measurements: %v", filtered)
	}

	if filtered := msg.filter([]uuid.UUID{s1}); len(filtered.Measurements) != 2 {
		t.Fatalf("expected two measurements of %v, got %v", s1, filtered)
	} else {
		for _, m := range filtered.Measurements {
			if m.SignalID != s1 {
				t.Fatalf("filter kept %v", m)
			}
		}
	}

	if filtered := msg.filter([]uuid.UUID{uuid.New()}); len(filtered.Measurements) != 0 {
		t.Fatalf("unknown signal kept measurements: %v", filtered)
	}

	mock := newMockAgent([]uuid.UUID{s2})
	if !AppAgentHasSignal(mock, s2) || AppAgentHasSignal(mock, s1) {
		t.Fatal("AppAgentHasSignal mismatches the mock's signals")
	}
	mock.MessageReceiver() <- ShutdownMessage{}
}
