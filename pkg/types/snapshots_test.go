package types

import (
	"testing"
	"time"
)

func TestStatusHistoryAppendAndLatest(t *testing.T) {
	var h StatusHistory
	if _, ok := h.Latest(); ok {
		t.Fatal("expected empty history to have no latest entry")
	}

	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	h = h.Append("PENDING", now, nil, "created")
	h = h.Append("PAID", now.Add(time.Hour), nil, "")

	latest, ok := h.Latest()
	if !ok || latest.Status != "PAID" {
		t.Fatalf("expected PAID latest, got %+v", latest)
	}
	if len(h) != 2 || h[0].Note != "created" {
		t.Fatalf("unexpected history %+v", h)
	}
}

func TestStatusHistoryValueEncodesJSON(t *testing.T) {
	var empty StatusHistory
	v, err := empty.Value()
	if err != nil || v != "[]" {
		t.Fatalf("expected empty array, got %v (%v)", v, err)
	}

	h := empty.Append("PAID", time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), nil, "confirmed")
	v, err = h.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != `[{"status":"PAID","at":"2025-03-12T00:00:00Z","note":"confirmed"}]` {
		t.Fatalf("unexpected json %v", v)
	}
}
