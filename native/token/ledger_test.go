package token

import (
	"errors"
	"math/big"
	"testing"

	rwaerrors "rwalend/core/errors"
	"rwalend/core/events"
	"rwalend/core/state"
	"rwalend/crypto"
	"rwalend/native/common"
	"rwalend/storage"
)

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, 20)
	for i := range raw {
		raw[i] = b
	}
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

type principals map[string]bool

func (p principals) RequireAuth(addr crypto.Address) error {
	if p[string(addr.Bytes())] {
		return nil
	}
	return rwaerrors.ErrUnauthorized
}

type captured struct {
	types []string
}

func (c *captured) Emit(e events.Event) { c.types = append(c.types, e.EventType()) }

func newTestLedger(t *testing.T, admin crypto.Address) (*Ledger, *captured) {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	ledger := NewLedger()
	ledger.SetState(mgr.Begin())
	ledger.SetAuthorizer(common.AllowAll{})
	rec := &captured{}
	ledger.SetEmitter(rec)
	if err := ledger.Initialize(admin, DefaultMetadata()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return ledger, rec
}

func mustBalance(t *testing.T, l *Ledger, addr crypto.Address) int64 {
	t.Helper()
	bal, err := l.Balance(addr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestMintTransferBurn(t *testing.T) {
	alice, bob := makeAddress(1), makeAddress(2)
	ledger, rec := newTestLedger(t, makeAddress(9))

	if err := ledger.Mint(alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := mustBalance(t, ledger, alice); got != 600 {
		t.Fatalf("unexpected alice balance: %d", got)
	}
	if got := mustBalance(t, ledger, bob); got != 400 {
		t.Fatalf("unexpected bob balance: %d", got)
	}
	if err := ledger.Burn(bob, big.NewInt(500)); !errors.Is(err, rwaerrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Burn(bob, big.NewInt(400)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := mustBalance(t, ledger, bob); got != 0 {
		t.Fatalf("unexpected bob balance after burn: %d", got)
	}
	if len(rec.types) != 2 || rec.types[0] != events.TypeTokenMinted || rec.types[1] != events.TypeTokenBurned {
		t.Fatalf("unexpected events: %v", rec.types)
	}
}

func TestTransferRejectsSelfAndZero(t *testing.T) {
	alice := makeAddress(1)
	ledger, _ := newTestLedger(t, makeAddress(9))
	if err := ledger.Mint(alice, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(alice, alice, big.NewInt(10)); !errors.Is(err, rwaerrors.ErrCannotTransferToSelf) {
		t.Fatalf("expected CannotTransferToSelf, got %v", err)
	}
	if err := ledger.Transfer(alice, makeAddress(2), big.NewInt(0)); !errors.Is(err, rwaerrors.ErrValueNotPositive) {
		t.Fatalf("expected ValueNotPositive, got %v", err)
	}
	if got := mustBalance(t, ledger, alice); got != 50 {
		t.Fatalf("balance changed after rejected transfer: %d", got)
	}
}

func TestAllowanceLifecycle(t *testing.T) {
	owner, spender, sink := makeAddress(1), makeAddress(2), makeAddress(3)
	ledger, _ := newTestLedger(t, makeAddress(9))
	ledger.SetBlockHeight(10)

	if err := ledger.Approve(owner, spender, big.NewInt(100), 5); !errors.Is(err, rwaerrors.ErrInvalidLedgerSequence) {
		t.Fatalf("expected InvalidLedgerSequence, got %v", err)
	}
	if err := ledger.Approve(owner, spender, big.NewInt(100), 20); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.Mint(owner, big.NewInt(80)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.TransferFrom(spender, owner, sink, big.NewInt(90)); !errors.Is(err, rwaerrors.ErrInsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	if err := ledger.TransferFrom(spender, owner, sink, big.NewInt(60)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	allowance, err := ledger.Allowance(owner, spender)
	if err != nil || allowance.Int64() != 40 {
		t.Fatalf("unexpected allowance %v err %v", allowance, err)
	}
	if err := ledger.TransferFrom(spender, owner, sink, big.NewInt(41)); !errors.Is(err, rwaerrors.ErrInsufficientAllowance) {
		t.Fatalf("expected InsufficientAllowance, got %v", err)
	}

	if err := ledger.DecreaseAllowance(owner, spender, big.NewInt(50)); !errors.Is(err, rwaerrors.ErrValueNotPositive) {
		t.Fatalf("expected ValueNotPositive on underflow, got %v", err)
	}
	if err := ledger.IncreaseAllowance(owner, spender, big.NewInt(10)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	ledger.SetBlockHeight(10 + AllowanceExtension)
	allowance, _ = ledger.Allowance(owner, spender)
	if allowance.Int64() != 50 {
		t.Fatalf("allowance should be live at the extended expiry: %s", allowance)
	}
	ledger.SetBlockHeight(11 + AllowanceExtension)
	allowance, _ = ledger.Allowance(owner, spender)
	if allowance.Sign() != 0 {
		t.Fatalf("expired allowance should read as zero: %s", allowance)
	}
}

func TestBurnFromConsumesAllowance(t *testing.T) {
	owner, spender := makeAddress(1), makeAddress(2)
	ledger, _ := newTestLedger(t, makeAddress(9))
	if err := ledger.Mint(owner, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Approve(owner, spender, big.NewInt(30), 100); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.BurnFrom(spender, owner, big.NewInt(30)); err != nil {
		t.Fatalf("burn from: %v", err)
	}
	if got := mustBalance(t, ledger, owner); got != 70 {
		t.Fatalf("unexpected balance: %d", got)
	}
	if err := ledger.BurnFrom(spender, owner, big.NewInt(1)); !errors.Is(err, rwaerrors.ErrInsufficientAllowance) {
		t.Fatalf("expected InsufficientAllowance, got %v", err)
	}
}

func TestAdminOperations(t *testing.T) {
	admin, holder := makeAddress(9), makeAddress(1)
	ledger, _ := newTestLedger(t, admin)
	ledger.SetAuthorizer(principals{string(holder.Bytes()): true})

	if err := ledger.SetAuthorized(holder, true); !errors.Is(err, rwaerrors.ErrUnauthorized) {
		t.Fatalf("expected non-admin to be rejected, got %v", err)
	}
	ledger.SetAuthorizer(principals{string(admin.Bytes()): true})
	ok, err := ledger.Authorized(holder)
	if err != nil || ok {
		t.Fatalf("authorization should default to false: %v %v", ok, err)
	}
	if err := ledger.SetAuthorized(holder, true); err != nil {
		t.Fatalf("set authorized: %v", err)
	}
	if ok, _ := ledger.Authorized(holder); !ok {
		t.Fatalf("expected holder to be authorized")
	}

	if err := ledger.Mint(holder, big.NewInt(20)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Clawback(holder, big.NewInt(25)); !errors.Is(err, rwaerrors.ErrArithmetic) {
		t.Fatalf("expected arithmetic error, got %v", err)
	}
	if err := ledger.Clawback(holder, big.NewInt(15)); err != nil {
		t.Fatalf("clawback: %v", err)
	}
	if got := mustBalance(t, ledger, holder); got != 5 {
		t.Fatalf("unexpected balance after clawback: %d", got)
	}
}

func TestMetadataDefaults(t *testing.T) {
	ledger, _ := newTestLedger(t, makeAddress(9))
	meta, err := ledger.Metadata()
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Symbol != "xUSD" || meta.Decimals != 7 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if err := ledger.Initialize(makeAddress(8), Metadata{Name: "other", Symbol: "OTH"}); err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	meta, _ = ledger.Metadata()
	if meta.Symbol != "xUSD" {
		t.Fatalf("metadata must not be replaced once set: %+v", meta)
	}
}
