package auth

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key layout:
//
//	seen/<account>|<timestamp>|<nonce>          -> observed unix nanos (8 bytes)
//	byTime/<observed nanos, 8 bytes><reference> -> empty
//
// byTime keys sort by observation time, so recovery and pruning are range scans.
var (
	seenPrefix   = []byte("seen/")
	byTimePrefix = []byte("byTime/")
)

// nonceRef identifies one signed request.
type nonceRef struct {
	account   string
	timestamp string
	nonce     string
}

func refFromRecord(record NonceRecord) (nonceRef, error) {
	ref := nonceRef{
		account:   strings.TrimSpace(record.Account),
		timestamp: strings.TrimSpace(record.Timestamp),
		nonce:     strings.TrimSpace(record.Nonce),
	}
	if ref.account == "" || ref.timestamp == "" || ref.nonce == "" {
		return nonceRef{}, errors.New("auth: nonce record incomplete")
	}
	return ref, nil
}

func (r nonceRef) encode() []byte {
	return []byte(r.account + "|" + r.timestamp + "|" + r.nonce)
}

func decodeRef(raw []byte) (nonceRef, bool) {
	parts := strings.SplitN(string(raw), "|", 3)
	if len(parts) != 3 {
		return nonceRef{}, false
	}
	return nonceRef{account: parts[0], timestamp: parts[1], nonce: parts[2]}, true
}

func seenKey(ref nonceRef) []byte {
	return append(append([]byte(nil), seenPrefix...), ref.encode()...)
}

func byTimeKey(observed uint64, ref []byte) []byte {
	key := make([]byte, 0, len(byTimePrefix)+8+len(ref))
	key = append(key, byTimePrefix...)
	key = binary.BigEndian.AppendUint64(key, observed)
	return append(key, ref...)
}

func splitByTimeKey(key []byte) (uint64, []byte, bool) {
	rest := key[len(byTimePrefix):]
	if len(rest) < 8 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint64(rest[:8]), rest[8:], true
}

func unixNanos(t time.Time) uint64 {
	if n := t.UnixNano(); n > 0 {
		return uint64(n)
	}
	return 0
}

// LevelDBNoncePersistence keeps signature nonces in LevelDB so replays are
// rejected across daemon restarts.
type LevelDBNoncePersistence struct {
	db *leveldb.DB
}

// NewLevelDBNoncePersistence opens (or creates) the nonce database at path.
func NewLevelDBNoncePersistence(path string) (*LevelDBNoncePersistence, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb nonce persistence path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb nonce path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb nonce store: %w", err)
	}
	return &LevelDBNoncePersistence{db: db}, nil
}

func (p *LevelDBNoncePersistence) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *LevelDBNoncePersistence) ready() error {
	if p == nil || p.db == nil {
		return errors.New("auth: leveldb nonce persistence not configured")
	}
	return nil
}

// EnsureNonce stores record and reports whether the same account, timestamp
// and nonce were already present. A repeat sighting moves the entry forward
// in the time index so it survives the next prune.
func (p *LevelDBNoncePersistence) EnsureNonce(ctx context.Context, record NonceRecord) (bool, error) {
	if err := p.ready(); err != nil {
		return false, err
	}
	ref, err := refFromRecord(record)
	if err != nil {
		return false, err
	}
	observed := record.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}
	at := unixNanos(observed)
	key := seenKey(ref)

	prev, err := p.db.Get(key, nil)
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return false, fmt.Errorf("load nonce: %w", err)
	}
	existed := err == nil && len(prev) == 8
	batch := new(leveldb.Batch)
	if existed {
		before := binary.BigEndian.Uint64(prev)
		if at <= before {
			return true, nil
		}
		batch.Delete(byTimeKey(before, ref.encode()))
	}
	batch.Put(key, binary.BigEndian.AppendUint64(nil, at))
	batch.Put(byTimeKey(at, ref.encode()), nil)
	if err := p.db.Write(batch, nil); err != nil {
		return false, fmt.Errorf("record nonce: %w", err)
	}
	return existed, nil
}

// RecentNonces returns the nonces observed at or after cutoff, oldest first.
func (p *LevelDBNoncePersistence) RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	span := util.BytesPrefix(byTimePrefix)
	iter := p.db.NewIterator(&util.Range{Start: byTimeKey(unixNanos(cutoff), nil), Limit: span.Limit}, nil)
	defer iter.Release()

	var records []NonceRecord
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		at, raw, ok := splitByTimeKey(iter.Key())
		if !ok {
			continue
		}
		ref, ok := decodeRef(raw)
		if !ok {
			continue
		}
		records = append(records, NonceRecord{
			Account:    ref.account,
			Timestamp:  ref.timestamp,
			Nonce:      ref.nonce,
			ObservedAt: time.Unix(0, int64(at)).UTC(),
		})
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate observed nonces: %w", err)
	}
	return records, nil
}

// PruneNonces deletes entries observed before cutoff.
func (p *LevelDBNoncePersistence) PruneNonces(ctx context.Context, cutoff time.Time) error {
	if err := p.ready(); err != nil {
		return err
	}
	iter := p.db.NewIterator(&util.Range{Start: byTimePrefix, Limit: byTimeKey(unixNanos(cutoff), nil)}, nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, raw, ok := splitByTimeKey(iter.Key())
		if !ok {
			continue
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
		batch.Delete(append(append([]byte(nil), seenPrefix...), raw...))
	}
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterate observed nonces: %w", err)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := p.db.Write(batch, nil); err != nil {
		return fmt.Errorf("prune nonces: %w", err)
	}
	return nil
}
