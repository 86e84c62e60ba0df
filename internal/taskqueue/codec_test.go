package taskqueue

import (
	"encoding/gob"
	"testing"
	"time"
)

// custom struct used as a payload in tests
type testPayload struct {
	A string
	B int
}

func init() {
	// Register concrete types that may flow through the interface Payload.
	gob.Register(map[string]any{})
	gob.Register(testPayload{})
}

func TestEncodeDecodeItem_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	later := now.Add(5 * time.Minute)

	cases := []struct {
		name string
		it   Item
	}{
		{
			name: "activity with nil payload",
			it:   Item{ID: "1", Type: ItemRunActivity, InstanceID: "i-1", TaskID: 1, Name: "charge-card", EnqueuedAt: now},
		},
		{
			name: "timer with due time",
			it:   Item{ID: "2", Type: ItemFireTimer, InstanceID: "i-1", TaskID: 2, EnqueuedAt: now, NotBefore: later},
		},
		{
			name: "entity op with struct payload",
			it:   Item{ID: "3", Type: ItemEntityBatch, EntityID: "counter@a", Name: "add", RequestID: "r-1", Payload: testPayload{A: "x", B: 7}, Attempts: 2},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			data, err := EncodeItem(tc.it)
			if err != nil {
				t.Fatalf("EncodeItem: %v", err)
			}
			got, err := DecodeItem(data)
			if err != nil {
				t.Fatalf("DecodeItem: %v", err)
			}

			if got.ID != tc.it.ID || got.Type != tc.it.Type || got.TaskID != tc.it.TaskID {
				t.Fatalf("identity fields did not round-trip: %+v", got)
			}
			if got.EntityID != tc.it.EntityID || got.Name != tc.it.Name || got.RequestID != tc.it.RequestID {
				t.Fatalf("routing fields did not round-trip: %+v", got)
			}
			if got.Attempts != tc.it.Attempts {
				t.Fatalf("attempts did not round-trip: %+v", got)
			}
			if !got.EnqueuedAt.Equal(tc.it.EnqueuedAt) || !got.NotBefore.Equal(tc.it.NotBefore) {
				t.Fatalf("timestamps did not round-trip: %+v", got)
			}
			if tc.it.Payload != nil && got.Payload != tc.it.Payload {
				t.Fatalf("payload did not round-trip: %+v", got.Payload)
			}
		})
	}
}
