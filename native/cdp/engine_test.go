package cdp

import (
	"errors"
	"math/big"
	"testing"

	rwaerrors "rwalend/core/errors"
	"rwalend/core/events"
	"rwalend/crypto"
	"rwalend/native/common"
)

func TestOpenCDPMintsDebtAndLocksCollateral(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 2_000_000_000)

	pos := env.open(alice, 1_700_000_000, 100_000_000)
	if pos.Status != StatusOpen || pos.CollateralizationRatio != 17_000 {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if pos.LastInterestTime != genesisTime {
		t.Fatalf("expected accrual clock at open time, got %d", pos.LastInterestTime)
	}
	if got := env.tokenBalance(alice); got != 100_000_000 {
		t.Fatalf("unexpected synthetic balance: %d", got)
	}
	if got := env.nativeBalance(alice); got != 300_000_000 {
		t.Fatalf("unexpected native balance: %d", got)
	}
	if got := env.nativeBalance(env.module); got != 1_700_000_000 {
		t.Fatalf("unexpected module balance: %d", got)
	}

	var updated int
	for _, evt := range env.events.Events() {
		if evt.EventType() == events.TypeCDPUpdated {
			updated++
		}
	}
	if updated != 1 {
		t.Fatalf("expected one position event, got %d", updated)
	}
}

func TestOpenCDPRejections(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 5_000_000_000)

	if _, err := env.engine.OpenCDP(alice, big.NewInt(1_000_000_000), big.NewInt(100_000_000)); !errors.Is(err, rwaerrors.ErrInsufficientCollateralization) {
		t.Fatalf("expected ErrInsufficientCollateralization, got %v", err)
	}
	if _, err := env.engine.OpenCDP(alice, big.NewInt(-1), big.NewInt(0)); !errors.Is(err, rwaerrors.ErrValueNotPositive) {
		t.Fatalf("expected ErrValueNotPositive, got %v", err)
	}

	env.open(alice, 1_700_000_000, 100_000_000)
	if _, err := env.engine.OpenCDP(alice, big.NewInt(1_700_000_000), big.NewInt(100_000_000)); !errors.Is(err, rwaerrors.ErrCDPAlreadyExists) {
		t.Fatalf("expected ErrCDPAlreadyExists, got %v", err)
	}
	if got := env.nativeBalance(alice); got != 3_300_000_000 {
		t.Fatalf("duplicate open moved collateral: %d", got)
	}
	if got := env.tokenBalance(alice); got != 100_000_000 {
		t.Fatalf("duplicate open minted debt: %d", got)
	}

	if _, err := env.engine.CDP(makeAddress(9)); !errors.Is(err, rwaerrors.ErrCDPNotFound) {
		t.Fatalf("expected ErrCDPNotFound, got %v", err)
	}
}

func TestMinCollateralRatioChangeMarksInsolvency(t *testing.T) {
	env := newTestEnv(t)
	alice, carol := makeAddress(1), makeAddress(3)
	env.fund(alice, 2_000_000_000)
	env.fund(carol, 2_000_000_000)
	env.open(alice, 1_700_000_000, 100_000_000)
	env.open(carol, 1_300_000_000, 100_000_000)

	if _, err := env.engine.SetMinCollateralRatio(15_000); err != nil {
		t.Fatalf("set mcr: %v", err)
	}
	pos, err := env.engine.CDP(alice)
	if err != nil || pos.Status != StatusOpen {
		t.Fatalf("expected alice open, got %+v %v", pos, err)
	}
	pos, err = env.engine.CDP(carol)
	if err != nil || pos.Status != StatusInsolvent || pos.CollateralizationRatio != 13_000 {
		t.Fatalf("expected carol insolvent at 13000, got %+v %v", pos, err)
	}

	if _, err := env.engine.FreezeCDP(alice); !errors.Is(err, rwaerrors.ErrCDPNotInsolvent) {
		t.Fatalf("expected ErrCDPNotInsolvent, got %v", err)
	}
	frozen, err := env.engine.FreezeCDP(carol)
	if err != nil || frozen.Status != StatusFrozen {
		t.Fatalf("freeze: %+v %v", frozen, err)
	}
	if _, err := env.engine.AddCollateral(carol, big.NewInt(1)); !errors.Is(err, rwaerrors.ErrCDPNotOpenOrInsolvent) {
		t.Fatalf("expected ErrCDPNotOpenOrInsolvent, got %v", err)
	}
	if _, err := env.engine.RepayDebt(carol, big.NewInt(1)); !errors.Is(err, rwaerrors.ErrCDPNotOpenOrInsolventForRepay) {
		t.Fatalf("expected ErrCDPNotOpenOrInsolventForRepay, got %v", err)
	}
}

func TestCollateralAdjustments(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 3_000_000_000)
	env.open(alice, 1_700_000_000, 100_000_000)

	pos, err := env.engine.AddCollateral(alice, big.NewInt(300_000_000))
	if err != nil || pos.Collateral.Int64() != 2_000_000_000 || pos.CollateralizationRatio != 20_000 {
		t.Fatalf("add collateral: %+v %v", pos, err)
	}
	if _, err := env.engine.WithdrawCollateral(alice, big.NewInt(2_000_000_001)); !errors.Is(err, rwaerrors.ErrInsufficientCollateral) {
		t.Fatalf("expected ErrInsufficientCollateral, got %v", err)
	}
	if _, err := env.engine.WithdrawCollateral(alice, big.NewInt(1_000_000_000)); !errors.Is(err, rwaerrors.ErrInvalidWithdrawal) {
		t.Fatalf("expected ErrInvalidWithdrawal, got %v", err)
	}
	pos, err = env.engine.WithdrawCollateral(alice, big.NewInt(800_000_000))
	if err != nil || pos.Collateral.Int64() != 1_200_000_000 || pos.CollateralizationRatio != 12_000 {
		t.Fatalf("withdraw collateral: %+v %v", pos, err)
	}
	if got := env.nativeBalance(alice); got != 1_800_000_000 {
		t.Fatalf("unexpected native balance after withdrawal: %d", got)
	}
}

func TestBorrowRWA(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 2_000_000_000)
	env.open(alice, 1_700_000_000, 100_000_000)

	pos, err := env.engine.BorrowRWA(alice, big.NewInt(50_000_000))
	if err != nil || pos.Debt.Int64() != 150_000_000 || pos.CollateralizationRatio != 11_333 {
		t.Fatalf("borrow: %+v %v", pos, err)
	}
	if got := env.tokenBalance(alice); got != 150_000_000 {
		t.Fatalf("unexpected synthetic balance: %d", got)
	}
	if _, err := env.engine.BorrowRWA(alice, big.NewInt(10_000_000)); !errors.Is(err, rwaerrors.ErrInsufficientCollateralization) {
		t.Fatalf("expected ErrInsufficientCollateralization, got %v", err)
	}
}

func TestInterestAccruesOnTouch(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 2_000_000_000)
	env.open(alice, 1_700_000_000, 100_000_000)

	env.engine.SetBlockTime(genesisTime + SecondsPerYear)
	pos, err := env.engine.CDP(alice)
	if err != nil {
		t.Fatalf("cdp: %v", err)
	}
	if pos.Interest.Amount.Int64() != 11_000_000 {
		t.Fatalf("expected 11000000 interest after a year, got %s", pos.Interest.Amount)
	}
	if pos.CollateralizationRatio != 16_890 {
		t.Fatalf("interest must reduce the ratio, got %d", pos.CollateralizationRatio)
	}

	detail, err := env.engine.AccruedInterest(alice)
	if err != nil {
		t.Fatalf("accrued interest: %v", err)
	}
	if detail.Amount.Int64() != 11_000_000 || detail.AmountInCollateral.Int64() != 110_000_000 {
		t.Fatalf("unexpected interest detail: %+v", detail)
	}
	if detail.ApprovalAmount.Cmp(detail.AmountInCollateral) <= 0 {
		t.Fatalf("approval amount must cover the approval window: %+v", detail)
	}
	if detail.LastInterestTime != genesisTime+SecondsPerYear {
		t.Fatalf("unexpected accrual timestamp: %d", detail.LastInterestTime)
	}
}

func TestRepayDebtSettlesInterestFirst(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 1_900_000_000)
	env.open(alice, 1_700_000_000, 100_000_000)
	env.engine.SetBlockTime(genesisTime + SecondsPerYear)

	if _, err := env.engine.RepayDebt(alice, big.NewInt(50_000_000)); !errors.Is(err, rwaerrors.ErrInsufficientApprovedXLMForInterestRepayment) {
		t.Fatalf("expected ErrInsufficientApprovedXLMForInterestRepayment, got %v", err)
	}
	if got := env.nativeBalance(alice); got != 200_000_000 {
		t.Fatalf("failed repayment moved collateral: %d", got)
	}

	if err := env.native.Approve(alice, env.module, big.NewInt(110_000_000), 100); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.engine.RepayDebt(alice, big.NewInt(100_000_001)); !errors.Is(err, rwaerrors.ErrRepaymentExceedsDebt) {
		t.Fatalf("expected ErrRepaymentExceedsDebt, got %v", err)
	}
}

func TestRepayDebt(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 1_900_000_000)
	env.open(alice, 1_700_000_000, 100_000_000)
	env.engine.SetBlockTime(genesisTime + SecondsPerYear)
	if err := env.native.Approve(alice, env.module, big.NewInt(110_000_000), 100); err != nil {
		t.Fatalf("approve: %v", err)
	}

	pos, err := env.engine.RepayDebt(alice, big.NewInt(50_000_000))
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if pos.Debt.Int64() != 50_000_000 || pos.Interest.Amount.Sign() != 0 {
		t.Fatalf("unexpected position after repay: %+v", pos)
	}
	if pos.Interest.Paid.Int64() != 110_000_000 {
		t.Fatalf("expected 110000000 paid in collateral, got %s", pos.Interest.Paid)
	}
	if pos.CollateralizationRatio != 34_000 {
		t.Fatalf("unexpected ratio after repay: %d", pos.CollateralizationRatio)
	}
	if got := env.nativeBalance(alice); got != 90_000_000 {
		t.Fatalf("unexpected native balance: %d", got)
	}
	if got := env.tokenBalance(alice); got != 50_000_000 {
		t.Fatalf("unexpected synthetic balance: %d", got)
	}
	total, err := env.engine.TotalInterestCollected()
	if err != nil || total.Int64() != 110_000_000 {
		t.Fatalf("unexpected interest collected: %v %v", total, err)
	}
	if collected, err := env.engine.InterestRecord(0); err != nil || collected.Int64() != 110_000_000 {
		t.Fatalf("unexpected epoch interest: %v %v", collected, err)
	}

	stored, err := env.engine.CDP(alice)
	if err != nil || stored.Interest.Amount.Sign() != 0 || stored.LastInterestTime != genesisTime+SecondsPerYear {
		t.Fatalf("repay must persist the settled interest: %+v %v", stored, err)
	}
}

func TestRepayDebtRequiresNativeForInterest(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 1_750_000_000)
	env.open(alice, 1_700_000_000, 100_000_000)
	env.engine.SetBlockTime(genesisTime + SecondsPerYear)
	if err := env.native.Approve(alice, env.module, big.NewInt(110_000_000), 100); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.engine.RepayDebt(alice, big.NewInt(1)); !errors.Is(err, rwaerrors.ErrInsufficientXLMForInterest) {
		t.Fatalf("expected ErrInsufficientXLMForInterest, got %v", err)
	}
	if got := env.nativeBalance(alice); got != 50_000_000 {
		t.Fatalf("failed repayment moved collateral: %d", got)
	}
	if got := env.tokenBalance(alice); got != 100_000_000 {
		t.Fatalf("failed repayment burned synthetic: %d", got)
	}
}

func TestRepayAllClosesEmptyPosition(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 1_000_000_000)
	env.open(alice, 0, 0)
	pos, err := env.engine.RepayDebt(alice, big.NewInt(0))
	if err != nil || pos.Status != StatusClosed {
		t.Fatalf("expected closed position, got %+v %v", pos, err)
	}
	if _, err := env.engine.CDP(alice); !errors.Is(err, rwaerrors.ErrCDPNotFound) {
		t.Fatalf("closed position must be removed, got %v", err)
	}
}

func TestPayInterest(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 1_900_000_000)
	env.open(alice, 1_700_000_000, 100_000_000)
	env.engine.SetBlockTime(genesisTime + SecondsPerYear)

	if _, err := env.engine.PayInterest(alice, big.NewInt(0)); !errors.Is(err, rwaerrors.ErrValueNotPositive) {
		t.Fatalf("expected ErrValueNotPositive, got %v", err)
	}
	if _, err := env.engine.PayInterest(alice, big.NewInt(20_000_000)); !errors.Is(err, rwaerrors.ErrPaymentExceedsInterestDue) {
		t.Fatalf("expected ErrPaymentExceedsInterestDue, got %v", err)
	}
	pos, err := env.engine.PayInterest(alice, big.NewInt(6_000_000))
	if err != nil {
		t.Fatalf("pay interest: %v", err)
	}
	if pos.Interest.Amount.Int64() != 5_000_000 || pos.Interest.Paid.Int64() != 60_000_000 {
		t.Fatalf("unexpected interest after payment: %+v", pos.Interest)
	}
	if got := env.nativeBalance(alice); got != 140_000_000 {
		t.Fatalf("unexpected native balance: %d", got)
	}
	if pos.Debt.Int64() != 100_000_000 {
		t.Fatalf("interest payment must not touch principal: %s", pos.Debt)
	}
}

func TestCloseCDP(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := makeAddress(1), makeAddress(2)
	env.fund(alice, 2_000_000_000)
	env.fund(bob, 1_000_000_000)
	env.open(alice, 1_700_000_000, 100_000_000)
	env.open(bob, 1_000_000_000, 0)

	if err := env.engine.CloseCDP(alice); !errors.Is(err, rwaerrors.ErrOutstandingDebt) {
		t.Fatalf("expected ErrOutstandingDebt, got %v", err)
	}
	if err := env.engine.CloseCDP(bob); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := env.nativeBalance(bob); got != 1_000_000_000 {
		t.Fatalf("collateral not returned: %d", got)
	}
	if err := env.engine.CloseCDP(bob); !errors.Is(err, rwaerrors.ErrCDPNotFound) {
		t.Fatalf("expected ErrCDPNotFound, got %v", err)
	}
}

func TestMergeCDPs(t *testing.T) {
	env := newTestEnv(t)
	alice, bob, carol := makeAddress(1), makeAddress(2), makeAddress(3)
	env.fund(alice, 2_000_000_000)
	env.fund(bob, 20_000_000_000)
	env.fund(carol, 2_000_000_000)
	env.open(alice, 1_700_000_000, 100_000_000)
	env.open(bob, 10_000_000_000, 100_000_000)
	env.open(carol, 1_600_000_000, 100_000_000)

	env.setCollateralPrice(6_000_000_000_000)
	if _, err := env.engine.FreezeCDP(alice); err != nil {
		t.Fatalf("freeze alice: %v", err)
	}
	if _, err := env.engine.FreezeCDP(carol); err != nil {
		t.Fatalf("freeze carol: %v", err)
	}

	if _, err := env.engine.MergeCDPs(nil); !errors.Is(err, rwaerrors.ErrInvalidMerge) {
		t.Fatalf("expected ErrInvalidMerge for empty list, got %v", err)
	}
	if _, err := env.engine.MergeCDPs([]crypto.Address{alice, alice}); !errors.Is(err, rwaerrors.ErrInvalidMerge) {
		t.Fatalf("expected ErrInvalidMerge for duplicates, got %v", err)
	}
	if _, err := env.engine.MergeCDPs([]crypto.Address{alice, bob}); !errors.Is(err, rwaerrors.ErrInvalidMerge) {
		t.Fatalf("expected ErrInvalidMerge for open position, got %v", err)
	}

	merged, err := env.engine.MergeCDPs([]crypto.Address{alice, carol})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Collateral.Int64() != 3_300_000_000 || merged.Debt.Int64() != 200_000_000 || merged.Status != StatusFrozen {
		t.Fatalf("unexpected merged record: %+v", merged)
	}
	if _, err := env.engine.CDP(carol); !errors.Is(err, rwaerrors.ErrCDPNotFound) {
		t.Fatalf("merged-away position must be removed, got %v", err)
	}
	pos, err := env.engine.CDP(alice)
	if err != nil || pos.Debt.Int64() != 200_000_000 || pos.Status != StatusFrozen {
		t.Fatalf("unexpected surviving position: %+v %v", pos, err)
	}
}

func TestPausedModuleRejectsMutations(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 2_000_000_000)

	if err := env.engine.SetPaused("nope", true); err == nil {
		t.Fatalf("expected error for unknown module")
	}
	if err := env.engine.SetPaused(common.ModuleCDP, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !env.protocol().IsPaused(common.ModuleCDP) {
		t.Fatalf("expected cdp paused")
	}
	if _, err := env.engine.OpenCDP(alice, big.NewInt(1_700_000_000), big.NewInt(100_000_000)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, err := env.engine.SetInterestRate(900); err != nil {
		t.Fatalf("admin calls must ignore pause: %v", err)
	}
	if err := env.engine.SetPaused(common.ModuleCDP, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	env.open(alice, 1_700_000_000, 100_000_000)
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t)
	alice := makeAddress(1)
	env.fund(alice, 2_000_000_000)
	env.engine.SetAuthorizer(denyAll{})

	if _, err := env.engine.OpenCDP(alice, big.NewInt(1_700_000_000), big.NewInt(100_000_000)); !errors.Is(err, rwaerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.engine.SetInterestRate(900); !errors.Is(err, rwaerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for admin call, got %v", err)
	}
	if rate, err := env.engine.InterestRate(); err != nil || rate != DefaultInterestRate {
		t.Fatalf("rate must be unchanged: %d %v", rate, err)
	}
}

func TestAdminSettings(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.Initialize(DefaultParams()); err == nil {
		t.Fatalf("expected second initialisation to fail")
	}
	if rate, err := env.engine.SetInterestRate(500); err != nil || rate != 500 {
		t.Fatalf("set rate: %d %v", rate, err)
	}
	if err := env.engine.SetCollateralOracle("  "); err == nil {
		t.Fatalf("expected empty oracle reference to fail")
	}
	if err := env.engine.SetPeggedAsset("eur"); err != nil {
		t.Fatalf("set pegged asset: %v", err)
	}
	if got := env.protocol().PeggedAsset; got != "EUR" {
		t.Fatalf("unexpected pegged asset: %s", got)
	}
	hash := [32]byte{1, 2, 3}
	if err := env.engine.Upgrade(hash); err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if env.protocol().CodeHash != hash {
		t.Fatalf("code hash not recorded")
	}
	if env.engine.Version() != Version {
		t.Fatalf("unexpected version %s", env.engine.Version())
	}
}
