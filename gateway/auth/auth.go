package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"rwalend/crypto"
)

const (
	// HeaderAccount names the account the caller claims to act for.
	HeaderAccount = "X-Account"
	// HeaderTimestamp is the unix timestamp (seconds) used when signing the request.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce provides replay protection when combined with the timestamp.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the hex-encoded recoverable secp256k1 signature.
	HeaderSignature = "X-Signature"
	// MaxBodyForSignature is the maximum body size we will hash when authenticating.
	MaxBodyForSignature int = 1 << 20 // 1 MiB

	maxAllowedTimestampSkew  = 2 * time.Minute
	defaultTimestampSkew     = maxAllowedTimestampSkew
	maxNonceWindow           = 10 * time.Minute
	defaultNonceWindow       = maxNonceWindow
	defaultNonceCapacity     = 4096
	maxNonceCapacity         = 65536
	persistencePruneInterval = time.Minute
)

var (
	ErrMissingHeader   = errors.New("auth: missing signature header")
	ErrAccountMismatch = errors.New("auth: signature does not match account")
	ErrNonceReused     = errors.New("auth: nonce already used")
	ErrStaleTimestamp  = errors.New("auth: timestamp outside allowed skew")
)

// Principal is the account proven by a request signature.
type Principal struct {
	Account crypto.Address
}

// NonceRecord captures persisted nonce usage metadata.
type NonceRecord struct {
	Account    string
	Timestamp  string
	Nonce      string
	ObservedAt time.Time
}

// NoncePersistence provides durable storage for account nonce usage.
type NoncePersistence interface {
	EnsureNonce(ctx context.Context, record NonceRecord) (bool, error)
	RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error)
	PruneNonces(ctx context.Context, cutoff time.Time) error
}

// Authenticator recovers the signing account of a request and rejects
// replays within the nonce window.
type Authenticator struct {
	allowedTimestampSkew time.Duration
	nonceTTL             time.Duration
	nonceCapacity        int
	nowFn                func() time.Time

	nonceMu sync.Mutex
	nonces  map[string]*replayWindow

	persistMu   sync.Mutex
	persistence NoncePersistence
	lastPruned  time.Time
}

func NewAuthenticator(skew time.Duration, nonceTTL time.Duration, nonceCapacity int, nowFn func() time.Time, persistence NoncePersistence) *Authenticator {
	if nowFn == nil {
		nowFn = time.Now
	}
	if skew <= 0 {
		skew = defaultTimestampSkew
	}
	if skew > maxAllowedTimestampSkew {
		skew = maxAllowedTimestampSkew
	}
	if nonceTTL <= 0 {
		nonceTTL = defaultNonceWindow
	}
	if nonceTTL > maxNonceWindow {
		nonceTTL = maxNonceWindow
	}
	if nonceCapacity <= 0 {
		nonceCapacity = defaultNonceCapacity
	}
	if nonceCapacity > maxNonceCapacity {
		nonceCapacity = maxNonceCapacity
	}
	return &Authenticator{
		allowedTimestampSkew: skew,
		nonceTTL:             nonceTTL,
		nonceCapacity:        nonceCapacity,
		nowFn:                nowFn,
		nonces:               make(map[string]*replayWindow),
		persistence:          persistence,
	}
}

// Authenticate validates headers and signature, returning the caller principal.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxBodyForSignature {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxBodyForSignature)
	}
	accountHeader := strings.TrimSpace(r.Header.Get(HeaderAccount))
	timestampHeader := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	providedSig := strings.TrimSpace(r.Header.Get(HeaderSignature))
	switch {
	case accountHeader == "":
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderAccount)
	case timestampHeader == "":
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderTimestamp)
	case nonce == "":
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderNonce)
	case providedSig == "":
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderSignature)
	}
	account, err := crypto.DecodeAddress(accountHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid account: %w", err)
	}
	ts, err := parseUnixTimestamp(timestampHeader)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	now := a.nowFn().UTC()
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > a.allowedTimestampSkew {
		return nil, fmt.Errorf("%w of %s", ErrStaleTimestamp, a.allowedTimestampSkew)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(providedSig, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	digest := crypto.RequestDigest(r.Method, CanonicalRequestPath(r), timestampHeader, nonce, body)
	signer, err := crypto.RecoverAddress(digest, sig)
	if err != nil {
		return nil, err
	}
	if !signer.Equal(account) {
		return nil, ErrAccountMismatch
	}
	duplicate, err := a.registerNonce(r.Context(), account.String(), timestampHeader, nonce, now)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, ErrNonceReused
	}
	return &Principal{Account: account}, nil
}

// HydrateNonces warms the in-memory cache with persisted nonce usage records.
func (a *Authenticator) HydrateNonces(ctx context.Context, cutoff time.Time) error {
	if a == nil || a.persistence == nil {
		return nil
	}
	records, err := a.persistence.RecentNonces(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("load persistent nonces: %w", err)
	}
	for _, rec := range records {
		if strings.TrimSpace(rec.Account) == "" || strings.TrimSpace(rec.Timestamp) == "" || strings.TrimSpace(rec.Nonce) == "" {
			continue
		}
		observed := rec.ObservedAt
		if observed.IsZero() {
			observed = cutoff
		}
		a.window(rec.Account).record(rec.Timestamp+"|"+rec.Nonce, observed)
	}
	return nil
}

func (a *Authenticator) registerNonce(ctx context.Context, account, timestamp, nonce string, now time.Time) (bool, error) {
	cache := a.window(account)
	composite := timestamp + "|" + nonce
	if cache.contains(composite, now) {
		return true, nil
	}
	if a.persistence != nil {
		if err := a.prunePersistent(ctx, now); err != nil {
			return false, err
		}
		existed, err := a.persistence.EnsureNonce(ctx, NonceRecord{
			Account:    account,
			Timestamp:  timestamp,
			Nonce:      nonce,
			ObservedAt: now,
		})
		if err != nil {
			return false, fmt.Errorf("persist nonce: %w", err)
		}
		if existed {
			cache.record(composite, now)
			return true, nil
		}
	}
	return cache.observe(composite, now), nil
}

func (a *Authenticator) prunePersistent(ctx context.Context, now time.Time) error {
	a.persistMu.Lock()
	defer a.persistMu.Unlock()
	if a.lastPruned.IsZero() || now.Sub(a.lastPruned) >= persistencePruneInterval {
		if err := a.persistence.PruneNonces(ctx, now.Add(-a.nonceTTL)); err != nil {
			return fmt.Errorf("prune persistent nonces: %w", err)
		}
		a.lastPruned = now
	}
	return nil
}

func (a *Authenticator) window(account string) *replayWindow {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	cache, ok := a.nonces[account]
	if ok {
		return cache
	}
	cache = newReplayWindow(a.nonceTTL, a.nonceCapacity)
	a.nonces[account] = cache
	return cache
}

// SignedHeaders produces the headers that authenticate a request as key's
// account.
func SignedHeaders(key *crypto.PrivateKey, method, path string, body []byte, at time.Time, nonce string) (map[string]string, error) {
	if key == nil {
		return nil, errors.New("auth: signing key required")
	}
	timestamp := strconv.FormatInt(at.Unix(), 10)
	sig, err := crypto.Sign(key, crypto.RequestDigest(method, path, timestamp, nonce, body))
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderAccount:   key.PubKey().Address().String(),
		HeaderTimestamp: timestamp,
		HeaderNonce:     nonce,
		HeaderSignature: hex.EncodeToString(sig),
	}, nil
}

// CanonicalRequestPath normalises URL paths and query ordering for signing.
func CanonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		path += "?" + CanonicalQuery(r.URL.RawQuery)
	}
	return path
}

// CanonicalQuery sorts query parameters so clients and server hash the same string.
func CanonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

func parseUnixTimestamp(v string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

// replayWindow remembers nonces for ttl, holding at most capacity live
// entries. Insertions arrive in time order, so expiry and eviction both pop
// from the front of the queue. Queue entries whose stamp no longer matches
// seen belong to a nonce that was refreshed later and are skipped.
type replayWindow struct {
	ttl      time.Duration
	capacity int

	mu    sync.Mutex
	seen  map[string]time.Time
	queue []stampedNonce
}

type stampedNonce struct {
	key string
	at  time.Time
}

func newReplayWindow(ttl time.Duration, capacity int) *replayWindow {
	return &replayWindow{ttl: ttl, capacity: capacity, seen: make(map[string]time.Time)}
}

// observe reports whether key is a replay and remembers it otherwise.
func (w *replayWindow) observe(key string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expire(now)
	if _, dup := w.seen[key]; dup {
		return true
	}
	w.push(key, now)
	return false
}

func (w *replayWindow) contains(key string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expire(now)
	_, ok := w.seen[key]
	return ok
}

func (w *replayWindow) record(key string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expire(at)
	w.push(key, at)
}

func (w *replayWindow) push(key string, at time.Time) {
	if _, refresh := w.seen[key]; !refresh {
		for w.capacity > 0 && len(w.seen) >= w.capacity && w.pop() {
		}
	}
	w.seen[key] = at
	w.queue = append(w.queue, stampedNonce{key: key, at: at})
}

func (w *replayWindow) expire(now time.Time) {
	cutoff := now.Add(-w.ttl)
	for len(w.queue) > 0 && w.queue[0].at.Before(cutoff) {
		w.pop()
	}
}

// pop drops the oldest queue entry, reporting false once the queue is empty.
func (w *replayWindow) pop() bool {
	if len(w.queue) == 0 {
		return false
	}
	head := w.queue[0]
	w.queue[0] = stampedNonce{}
	w.queue = w.queue[1:]
	if at, ok := w.seen[head.key]; ok && at.Equal(head.at) {
		delete(w.seen, head.key)
	}
	return true
}
