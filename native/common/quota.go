package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota: request limit exceeded")
	ErrQuotaVolumeExceeded   = errors.New("quota: volume cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota: counter overflow")
)

// QuotaUsage tracks how much of a quota window an account has consumed.
type QuotaUsage struct {
	Requests uint32
	Volume   uint64
	Window   uint64
}

// Quota bounds how often an account may mutate protocol state and how much
// synthetic volume it may mint within one window. Zero disables a limit.
type Quota struct {
	MaxRequestsPerWindow uint32
	MaxVolumePerWindow   uint64
	WindowSeconds        uint32
}

// WindowAt maps a unix timestamp onto the quota window index.
func (q Quota) WindowAt(unix uint64) uint64 {
	if q.WindowSeconds == 0 {
		return 0
	}
	return unix / uint64(q.WindowSeconds)
}

// CheckQuota verifies whether the additional requests and volume fit within
// the quota. On success the returned usage carries the updated counters; on
// failure prev is returned unchanged.
func CheckQuota(q Quota, window uint64, prev QuotaUsage, addRequests uint32, addVolume uint64) (QuotaUsage, error) {
	next := prev
	if prev.Window != window {
		next = QuotaUsage{Window: window}
	}

	if addRequests > 0 {
		if next.Requests > math.MaxUint32-addRequests {
			return prev, ErrQuotaCounterOverflow
		}
		next.Requests += addRequests
	}
	if q.MaxRequestsPerWindow > 0 && next.Requests > q.MaxRequestsPerWindow {
		return prev, ErrQuotaRequestsExceeded
	}

	if addVolume > 0 {
		if next.Volume > math.MaxUint64-addVolume {
			return prev, ErrQuotaCounterOverflow
		}
		next.Volume += addVolume
	}
	if q.MaxVolumePerWindow > 0 && next.Volume > q.MaxVolumePerWindow {
		return prev, ErrQuotaVolumeExceeded
	}

	return next, nil
}
