package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"rwalend/storage"
)

var (
	heightKey = []byte("chain/height")

	// ErrJournalClosed is returned when a committed or discarded journal is reused.
	ErrJournalClosed = errors.New("state: journal closed")
)

// Manager owns the backing database and hands out journals. Only one journal
// may commit at a time; callers serialize operations above the manager.
type Manager struct {
	db storage.Database
	mu sync.Mutex
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a write-buffering view over the database.
func (m *Manager) Begin() *Journal {
	return &Journal{
		db:      m.db,
		lock:    &m.mu,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Height returns the committed ledger height.
func (m *Manager) Height() (uint64, error) {
	j := m.Begin()
	defer j.Discard()
	return j.Height()
}

func kvKey(key []byte) []byte {
	hashed := crypto.Keccak256(key)
	out := make([]byte, 0, len(hashed)+3)
	out = append(out, "kv/"...)
	return append(out, hashed...)
}

// Journal buffers state writes in memory until Commit flushes them as one
// storage batch. Reads observe the journal's own pending writes first.
type Journal struct {
	db      storage.Database
	lock    *sync.Mutex
	writes  map[string][]byte
	deletes map[string]struct{}
	closed  bool
}

// KVPut stores the RLP encoding of value under key.
func (j *Journal) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if j.closed {
		return ErrJournalClosed
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	hashed := string(kvKey(key))
	delete(j.deletes, hashed)
	j.writes[hashed] = encoded
	return nil
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether a value existed.
func (j *Journal) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	if j.closed {
		return false, ErrJournalClosed
	}
	data, ok, err := j.raw(string(kvKey(key)))
	if err != nil || !ok {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (j *Journal) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if j.closed {
		return ErrJournalClosed
	}
	hashed := string(kvKey(key))
	delete(j.writes, hashed)
	j.deletes[hashed] = struct{}{}
	return nil
}

// KVHas reports whether a value exists under key.
func (j *Journal) KVHas(key []byte) (bool, error) {
	if j.closed {
		return false, ErrJournalClosed
	}
	_, ok, err := j.raw(string(kvKey(key)))
	return ok, err
}

func (j *Journal) raw(hashed string) ([]byte, bool, error) {
	if _, deleted := j.deletes[hashed]; deleted {
		return nil, false, nil
	}
	if data, ok := j.writes[hashed]; ok {
		return data, true, nil
	}
	data, err := j.db.Get([]byte(hashed))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Height returns the ledger height as seen by this journal.
func (j *Journal) Height() (uint64, error) {
	var height uint64
	if _, err := j.KVGet(heightKey, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// AdvanceHeight bumps the ledger height by one and returns the new value.
func (j *Journal) AdvanceHeight() (uint64, error) {
	height, err := j.Height()
	if err != nil {
		return 0, err
	}
	height++
	if err := j.KVPut(heightKey, height); err != nil {
		return 0, err
	}
	return height, nil
}

// Pending reports how many keys the journal would touch on commit.
func (j *Journal) Pending() int {
	return len(j.writes) + len(j.deletes)
}

// Commit writes every buffered change in a single batch and closes the journal.
func (j *Journal) Commit() error {
	if j.closed {
		return ErrJournalClosed
	}
	j.closed = true
	if len(j.writes) == 0 && len(j.deletes) == 0 {
		return nil
	}
	j.lock.Lock()
	defer j.lock.Unlock()
	batch := j.db.NewBatch()
	for key, value := range j.writes {
		batch.Put([]byte(key), value)
	}
	for key := range j.deletes {
		batch.Delete([]byte(key))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Discard drops all buffered changes.
func (j *Journal) Discard() {
	j.closed = true
	j.writes = nil
	j.deletes = nil
}
