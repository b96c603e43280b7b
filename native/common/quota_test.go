package common

import (
	"errors"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerWindow: 3}
	prev := QuotaUsage{Window: 1}

	next, err := CheckQuota(q, 1, prev, 3, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Requests != 3 {
		t.Fatalf("unexpected request count: %d", next.Requests)
	}

	denied, err := CheckQuota(q, 1, next, 1, 0)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error after window rollover: %v", err)
	}
	if rollover.Window != 2 || rollover.Requests != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaVolume(t *testing.T) {
	q := Quota{MaxVolumePerWindow: 1000, WindowSeconds: 60}
	window := q.WindowAt(125)
	if window != 2 {
		t.Fatalf("unexpected window index %d", window)
	}

	next, err := CheckQuota(q, window, QuotaUsage{Window: window}, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := CheckQuota(q, window, next, 0, 1); !errors.Is(err, ErrQuotaVolumeExceeded) {
		t.Fatalf("expected ErrQuotaVolumeExceeded, got %v", err)
	}
	rollover, err := CheckQuota(q, window+1, next, 0, 500)
	if err != nil {
		t.Fatalf("unexpected error after rollover: %v", err)
	}
	if rollover.Volume != 500 {
		t.Fatalf("unexpected volume after rollover: %d", rollover.Volume)
	}
}
