package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestLevelDBNoncePersistenceAuthenticatorRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nonces")
	backend, err := NewLevelDBNoncePersistence(path)
	if err != nil {
		t.Fatalf("open persistence: %v", err)
	}
	var initial *LevelDBNoncePersistence = backend
	t.Cleanup(func() {
		if initial != nil {
			_ = initial.Close()
		}
	})
	now := time.Unix(1_717_787_717, 0).UTC()
	payload := []byte(`{"amount":"100000000"}`)
	key := newSigner(t)
	target := "https://example.test/v1/pool/stake"
	nonce := "nonce-restart"

	auth := NewAuthenticator(time.Minute, 5*time.Minute, 32, func() time.Time { return now }, backend)
	cutoff := now.Add(-5 * time.Minute)
	if err := auth.HydrateNonces(context.Background(), cutoff); err != nil {
		t.Fatalf("hydrate nonces: %v", err)
	}
	if _, err := auth.Authenticate(signedRequest(t, key, target, payload, now, nonce), payload); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if err := backend.Close(); err != nil {
		t.Fatalf("close persistence: %v", err)
	}
	initial = nil

	reopened, err := NewLevelDBNoncePersistence(path)
	if err != nil {
		t.Fatalf("reopen persistence: %v", err)
	}
	defer reopened.Close()

	authRestart := NewAuthenticator(time.Minute, 5*time.Minute, 32, func() time.Time { return now }, reopened)
	if err := authRestart.HydrateNonces(context.Background(), cutoff); err != nil {
		t.Fatalf("hydrate restart: %v", err)
	}
	if _, err := authRestart.Authenticate(signedRequest(t, key, target, payload, now, nonce), payload); !errors.Is(err, ErrNonceReused) {
		t.Fatalf("expected nonce replay after restart, got %v", err)
	}

	authCold := NewAuthenticator(time.Minute, 5*time.Minute, 32, func() time.Time { return now }, reopened)
	if _, err := authCold.Authenticate(signedRequest(t, key, target, payload, now, nonce), payload); !errors.Is(err, ErrNonceReused) {
		t.Fatalf("expected persistence to reject nonce, got %v", err)
	}

	other := newSigner(t)
	if _, err := authCold.Authenticate(signedRequest(t, other, target, payload, now, nonce), payload); err != nil {
		t.Fatalf("nonces are scoped per account: %v", err)
	}
}

func TestLevelDBNoncePersistencePrunesByObservation(t *testing.T) {
	backend, err := NewLevelDBNoncePersistence(filepath.Join(t.TempDir(), "nonces"))
	if err != nil {
		t.Fatalf("open persistence: %v", err)
	}
	defer backend.Close()
	ctx := context.Background()
	base := time.Unix(1_717_787_717, 0).UTC()

	for i, nonce := range []string{"a", "b", "c"} {
		rec := NonceRecord{Account: "acct", Timestamp: "1717787717", Nonce: nonce, ObservedAt: base.Add(time.Duration(i) * time.Minute)}
		existed, err := backend.EnsureNonce(ctx, rec)
		if err != nil || existed {
			t.Fatalf("ensure %s: existed=%v err=%v", nonce, existed, err)
		}
	}
	// Seeing "a" again later moves it past the prune cutoff.
	existed, err := backend.EnsureNonce(ctx, NonceRecord{Account: "acct", Timestamp: "1717787717", Nonce: "a", ObservedAt: base.Add(5 * time.Minute)})
	if err != nil || !existed {
		t.Fatalf("expected repeat sighting, existed=%v err=%v", existed, err)
	}

	if err := backend.PruneNonces(ctx, base.Add(90*time.Second)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	recent, err := backend.RecentNonces(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Nonce != "c" || recent[1].Nonce != "a" {
		t.Fatalf("unexpected survivors: %+v", recent)
	}
	if !recent[1].ObservedAt.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("unexpected observation time: %v", recent[1].ObservedAt)
	}

	if _, err := backend.EnsureNonce(ctx, NonceRecord{Account: "acct", Nonce: "x"}); err == nil {
		t.Fatal("expected incomplete record to be rejected")
	}
}
