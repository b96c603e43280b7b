package oracle

import (
	"errors"
	"math/big"
	"testing"

	rwaerrors "rwalend/core/errors"
	"rwalend/crypto"
	"rwalend/native/common"
)

type onlyAdmin struct{ admin crypto.Address }

func (o onlyAdmin) RequireAuth(addr crypto.Address) error {
	if addr.Equal(o.admin) {
		return nil
	}
	return rwaerrors.ErrUnauthorized
}

func newFeed(t *testing.T) (*Feed, crypto.Address) {
	t.Helper()
	admin := crypto.NewAddress(crypto.AccountPrefix, make([]byte, 20))
	feed, err := NewFeed(FeedConfig{Admin: admin, Base: "usd", Decimals: 14, Resolution: 300, Assets: []string{"xlm"}})
	if err != nil {
		t.Fatalf("new feed: %v", err)
	}
	return feed, admin
}

func TestFeedPriceSeries(t *testing.T) {
	feed, _ := newFeed(t)
	if _, err := feed.LastPrice("XLM"); !errors.Is(err, ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice, got %v", err)
	}
	for _, obs := range []struct {
		ts    uint64
		price int64
	}{{300, 10}, {900, 30}, {600, 20}} {
		if err := feed.SetAssetPrice(common.AllowAll{}, "xlm", big.NewInt(obs.price), obs.ts); err != nil {
			t.Fatalf("set price: %v", err)
		}
	}
	last, err := feed.LastPrice("xlm")
	if err != nil {
		t.Fatalf("last price: %v", err)
	}
	if last.Timestamp != 900 || last.Price.Int64() != 30 {
		t.Fatalf("unexpected last price: %+v", last)
	}
	if feed.LastTimestamp() != 600 {
		t.Fatalf("last timestamp tracks the latest write, got %d", feed.LastTimestamp())
	}
	series, err := feed.Prices("xlm", 2)
	if err != nil {
		t.Fatalf("prices: %v", err)
	}
	if len(series) != 2 || series[0].Timestamp != 900 || series[1].Timestamp != 600 {
		t.Fatalf("expected newest first, got %+v", series)
	}
	at, ok, err := feed.PriceAt("xlm", 300)
	if err != nil || !ok || at.Price.Int64() != 10 {
		t.Fatalf("unexpected price at 300: %+v %v %v", at, ok, err)
	}
	if _, ok, _ := feed.PriceAt("xlm", 301); ok {
		t.Fatalf("expected no observation at 301")
	}
	if dec, _ := feed.Decimals(); dec != 14 || feed.Base() != "USD" || feed.Resolution() != 300 {
		t.Fatalf("unexpected feed metadata")
	}
}

func TestFeedAdminChecks(t *testing.T) {
	feed, admin := newFeed(t)
	stranger := onlyAdmin{admin: crypto.NewAddress(crypto.AccountPrefix, append(make([]byte, 19), 1))}
	if err := feed.AddAssets(stranger, []string{"usdc"}); !errors.Is(err, rwaerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	auth := onlyAdmin{admin: admin}
	if err := feed.AddAssets(auth, []string{"usdc", "XLM"}); !errors.Is(err, ErrAssetAlreadyExists) {
		t.Fatalf("expected AssetAlreadyExists, got %v", err)
	}
	if len(feed.Assets()) != 1 {
		t.Fatalf("failed add must not register any asset: %v", feed.Assets())
	}
	if err := feed.AddAssets(auth, []string{"usdc"}); err != nil {
		t.Fatalf("add assets: %v", err)
	}
	if err := feed.SetAssetPrice(auth, "btc", big.NewInt(1), 1); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected AssetNotFound, got %v", err)
	}
}

func TestRegistryResolve(t *testing.T) {
	feed, _ := newFeed(t)
	reg := NewRegistry()
	if err := reg.Register("reflector", feed); err != nil {
		t.Fatalf("register: %v", err)
	}
	got, err := reg.Resolve(" reflector ")
	if err != nil || got != feed {
		t.Fatalf("unexpected resolve result: %v %v", got, err)
	}
	if _, err := reg.Resolve("missing"); !errors.Is(err, ErrUnknownOracle) {
		t.Fatalf("expected ErrUnknownOracle, got %v", err)
	}
}
