package state

import (
	"errors"
	"fmt"
	"math"
)

// StateVersion identifies the expected on-disk schema layout. Increment it
// whenever a persisted record changes shape.
const StateVersion uint32 = 1

var (
	stateVersionKey = []byte("state/version")
	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// SetStateVersion records the provided schema version.
func (j *Journal) SetStateVersion(version uint32) error {
	return j.KVPut(stateVersionKey, uint64(version))
}

// StateVersion returns the stored schema version and whether it was present.
func (j *Journal) StateVersion() (uint32, bool, error) {
	var stored uint64
	ok, err := j.KVGet(stateVersionKey, &stored)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureStateVersion stamps an empty database with the current version and
// rejects databases written by an incompatible binary.
func EnsureStateVersion(m *Manager) error {
	if m == nil {
		return fmt.Errorf("state: manager must not be nil")
	}
	j := m.Begin()
	version, ok, err := j.StateVersion()
	if err != nil {
		j.Discard()
		return err
	}
	if !ok {
		if err := j.SetStateVersion(StateVersion); err != nil {
			j.Discard()
			return err
		}
		return j.Commit()
	}
	j.Discard()
	if version != StateVersion {
		return fmt.Errorf("%w: on-disk=%d expected=%d", ErrStateVersionMismatch, version, StateVersion)
	}
	return nil
}
