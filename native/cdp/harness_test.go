package cdp

import (
	"math/big"
	"testing"

	rwaerrors "rwalend/core/errors"
	"rwalend/core/events"
	"rwalend/core/state"
	"rwalend/crypto"
	"rwalend/native/bank"
	"rwalend/native/common"
	"rwalend/native/oracle"
	"rwalend/native/token"
	"rwalend/storage"
)

const genesisTime = uint64(1_700_000_000)

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

type testEnv struct {
	t          *testing.T
	engine     *Engine
	token      *token.Ledger
	native     *bank.Ledger
	collateral *oracle.Feed
	asset      *oracle.Feed
	events     *events.Buffer
	admin      crypto.Address
	module     crypto.Address
	priceTime  uint64
}

// newTestEnv wires an engine to an in-memory journal with XLM priced at 0.1
// USD and the pegged asset at 1 USD, both quoted with 14 decimals.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	journal := state.NewManager(storage.NewMemDB()).Begin()
	admin := makeAddress(0xAA)
	module := crypto.ModuleAddress("rwalend")

	tok := token.NewLedger()
	tok.SetState(journal)
	tok.SetAuthorizer(common.AllowAll{})
	if err := tok.Initialize(admin, token.DefaultMetadata()); err != nil {
		t.Fatalf("token init: %v", err)
	}
	native := bank.NewLedger("xlm")
	native.SetState(journal)
	native.SetAuthorizer(common.AllowAll{})

	collFeed, err := oracle.NewFeed(oracle.FeedConfig{Admin: admin, Base: "USD", Decimals: 14, Resolution: 300, Assets: []string{"XLM"}})
	if err != nil {
		t.Fatalf("collateral feed: %v", err)
	}
	assetFeed, err := oracle.NewFeed(oracle.FeedConfig{Admin: admin, Base: "USD", Decimals: 14, Resolution: 300, Assets: []string{"USD"}})
	if err != nil {
		t.Fatalf("asset feed: %v", err)
	}
	registry := oracle.NewRegistry()
	if err := registry.Register("collateral", collFeed); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := registry.Register("asset", assetFeed); err != nil {
		t.Fatalf("register: %v", err)
	}

	buf := &events.Buffer{}
	engine := NewEngine(module)
	engine.SetState(journal)
	engine.SetToken(tok)
	engine.SetNative(native)
	engine.SetOracles(registry)
	engine.SetAuthorizer(common.AllowAll{})
	engine.SetEmitter(buf)
	engine.SetBlockTime(genesisTime)

	params := DefaultParams()
	params.Admin = admin
	if _, err := engine.Initialize(params); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	env := &testEnv{
		t:          t,
		engine:     engine,
		token:      tok,
		native:     native,
		collateral: collFeed,
		asset:      assetFeed,
		events:     buf,
		admin:      admin,
		module:     module,
	}
	env.setCollateralPrice(10_000_000_000_000)
	env.setAssetPrice(100_000_000_000_000)
	return env
}

func (env *testEnv) nextPriceTime() uint64 {
	env.priceTime += 300
	return env.priceTime
}

func (env *testEnv) setCollateralPrice(price int64) {
	env.t.Helper()
	if err := env.collateral.SetAssetPrice(common.AllowAll{}, "XLM", big.NewInt(price), env.nextPriceTime()); err != nil {
		env.t.Fatalf("set collateral price: %v", err)
	}
}

func (env *testEnv) setAssetPrice(price int64) {
	env.t.Helper()
	if err := env.asset.SetAssetPrice(common.AllowAll{}, "USD", big.NewInt(price), env.nextPriceTime()); err != nil {
		env.t.Fatalf("set asset price: %v", err)
	}
}

func (env *testEnv) fund(addr crypto.Address, amount int64) {
	env.t.Helper()
	if err := env.native.Credit(addr, big.NewInt(amount)); err != nil {
		env.t.Fatalf("credit: %v", err)
	}
}

func (env *testEnv) open(lender crypto.Address, collateral, debt int64) Position {
	env.t.Helper()
	pos, err := env.engine.OpenCDP(lender, big.NewInt(collateral), big.NewInt(debt))
	if err != nil {
		env.t.Fatalf("open cdp: %v", err)
	}
	return pos
}

func (env *testEnv) nativeBalance(addr crypto.Address) int64 {
	env.t.Helper()
	bal, err := env.native.Balance(addr)
	if err != nil {
		env.t.Fatalf("native balance: %v", err)
	}
	return bal.Int64()
}

func (env *testEnv) tokenBalance(addr crypto.Address) int64 {
	env.t.Helper()
	bal, err := env.token.Balance(addr)
	if err != nil {
		env.t.Fatalf("token balance: %v", err)
	}
	return bal.Int64()
}

func (env *testEnv) protocol() *ProtocolState {
	env.t.Helper()
	st, err := env.engine.Protocol()
	if err != nil {
		env.t.Fatalf("protocol: %v", err)
	}
	return st
}

type denyAll struct{}

func (denyAll) RequireAuth(crypto.Address) error { return rwaerrors.ErrUnauthorized }
