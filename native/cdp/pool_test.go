package cdp

import (
	"errors"
	"math/big"
	"testing"

	rwaerrors "rwalend/core/errors"
	"rwalend/native/common"
)

func TestStakeWithdrawAndUnstake(t *testing.T) {
	env := newTestEnv(t)
	alice, bob, carol := makeAddress(1), makeAddress(2), makeAddress(3)
	env.fund(alice, 10_200_000_000)
	env.fund(bob, 14_100_000_000)
	env.open(alice, 10_000_000_000, 500_000_000)
	env.open(bob, 14_000_000_000, 700_000_000)

	if _, err := env.engine.Stake(alice, big.NewInt(500_000_000)); err != nil {
		t.Fatalf("stake alice: %v", err)
	}
	if _, err := env.engine.Stake(bob, big.NewInt(700_000_000)); err != nil {
		t.Fatalf("stake bob: %v", err)
	}
	if _, err := env.engine.Stake(bob, big.NewInt(1)); !errors.Is(err, rwaerrors.ErrStakeAlreadyExists) {
		t.Fatalf("expected ErrStakeAlreadyExists, got %v", err)
	}
	if total, _ := env.engine.TotalRWA(); total.Int64() != 1_200_000_000 {
		t.Fatalf("unexpected pool total: %s", total)
	}
	if fees := env.protocol().FeesCollected; fees.Int64() != 140_000_000 {
		t.Fatalf("unexpected fees: %s", fees)
	}

	if err := env.engine.Withdraw(alice, big.NewInt(200_000_000)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if dep, err := env.engine.StakerDeposit(alice); err != nil || dep.Int64() != 300_000_000 {
		t.Fatalf("unexpected deposit after withdraw: %v %v", dep, err)
	}
	if got := env.tokenBalance(alice); got != 200_000_000 {
		t.Fatalf("unexpected synthetic balance: %d", got)
	}
	if err := env.engine.Withdraw(alice, big.NewInt(300_000_001)); !errors.Is(err, rwaerrors.ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
	if err := env.engine.Withdraw(alice, big.NewInt(-1)); !errors.Is(err, rwaerrors.ErrValueNotPositive) {
		t.Fatalf("expected ErrValueNotPositive, got %v", err)
	}

	nativeBefore := env.nativeBalance(bob)
	if err := env.engine.Unstake(bob); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if fees := env.protocol().FeesCollected; fees.Int64() != 120_000_000 {
		t.Fatalf("unstake must refund the unstake return, fees %s", fees)
	}
	if got := env.nativeBalance(bob); got != nativeBefore+20_000_000 {
		t.Fatalf("unexpected native refund: %d", got)
	}
	if got := env.tokenBalance(bob); got != 700_000_000 {
		t.Fatalf("unexpected synthetic balance after unstake: %d", got)
	}
	if _, err := env.engine.Position(bob); !errors.Is(err, rwaerrors.ErrStakeDoesntExist) {
		t.Fatalf("expected ErrStakeDoesntExist, got %v", err)
	}
	if total, _ := env.engine.TotalRWA(); total.Int64() != 300_000_000 {
		t.Fatalf("unexpected pool total after unstake: %s", total)
	}

	pos, err := env.engine.Deposit(alice, big.NewInt(100_000_000))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if pos.Deposit.Int64() != 400_000_000 || pos.Epoch != 0 {
		t.Fatalf("unexpected position after deposit: %+v", pos)
	}
	if fees := env.protocol().FeesCollected; fees.Int64() != 130_000_000 {
		t.Fatalf("deposit fee not collected: %s", fees)
	}
	if _, err := env.engine.Deposit(carol, big.NewInt(0)); !errors.Is(err, rwaerrors.ErrStakeDoesntExist) {
		t.Fatalf("expected ErrStakeDoesntExist, got %v", err)
	}
	if _, err := env.engine.Stake(carol, big.NewInt(1)); !errors.Is(err, rwaerrors.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestPendingRewardsBlockPositionChanges(t *testing.T) {
	env, alice, bob := liquidationSetup(t, 40_000_000)
	if _, err := env.engine.FreezeCDP(alice); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := env.engine.Liquidate(alice); err != nil {
		t.Fatalf("liquidate: %v", err)
	}

	if err := env.engine.Withdraw(bob, big.NewInt(0)); !errors.Is(err, rwaerrors.ErrClaimRewardsFirst) {
		t.Fatalf("expected ErrClaimRewardsFirst on withdraw, got %v", err)
	}
	if _, err := env.engine.Deposit(bob, big.NewInt(1)); !errors.Is(err, rwaerrors.ErrClaimRewardsFirst) {
		t.Fatalf("expected ErrClaimRewardsFirst on deposit, got %v", err)
	}
	if err := env.engine.Unstake(bob); !errors.Is(err, rwaerrors.ErrClaimRewardsFirst) {
		t.Fatalf("expected ErrClaimRewardsFirst on unstake, got %v", err)
	}

	reward, err := env.engine.ClaimRewards(bob)
	if err != nil || reward.Int64() != 680_000_000 {
		t.Fatalf("claim: %v %v", reward, err)
	}
	again, err := env.engine.ClaimRewards(bob)
	if err != nil || again.Sign() != 0 {
		t.Fatalf("second claim must be empty: %v %v", again, err)
	}
	if err := env.engine.Unstake(bob); err != nil {
		t.Fatalf("unstake after claim: %v", err)
	}
}

func TestPoolPauseBlocksStakingAndLiquidation(t *testing.T) {
	env, alice, bob := liquidationSetup(t, 40_000_000)
	if _, err := env.engine.FreezeCDP(alice); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if err := env.engine.SetPaused(common.ModulePool, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := env.engine.Liquidate(alice); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused for liquidation, got %v", err)
	}
	if _, err := env.engine.ClaimRewards(bob); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused for claim, got %v", err)
	}
	if assets, err := env.engine.AvailableAssets(bob); err != nil || assets.RWA.Int64() != 40_000_000 {
		t.Fatalf("views must work while paused: %+v %v", assets, err)
	}
}

func TestUpdateConstantsTracksProductAndSum(t *testing.T) {
	env := newTestEnv(t)
	st := env.protocol()
	st.TotalRWA = big.NewInt(1_000_000_000)

	if err := env.engine.updateConstants(st, big.NewInt(250_000_000), big.NewInt(5_000_000_000)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if st.Product.Int64() != 750_000_000 {
		t.Fatalf("unexpected product: %s", st.Product)
	}
	if st.Compounded.Int64() != 5_000_000_000 {
		t.Fatalf("unexpected sum: %s", st.Compounded)
	}
	if st.Epoch != 0 {
		t.Fatalf("partial debit must stay in the epoch, got %d", st.Epoch)
	}

	pos := StakerPosition{Deposit: big.NewInt(400_000_000), ProductSnapshot: new(big.Int).Set(InitialProduct), CompoundedSnapshot: new(big.Int), Epoch: 0}
	current, err := currentDeposit(st, pos)
	if err != nil || current.Int64() != 300_000_000 {
		t.Fatalf("unexpected current deposit: %v %v", current, err)
	}
	reward, err := env.engine.rewards(st, pos)
	if err != nil || reward.Int64() != 2_000_000_000 {
		t.Fatalf("unexpected rewards: %v %v", reward, err)
	}

	st.TotalRWA = big.NewInt(0)
	if err := env.engine.updateConstants(st, big.NewInt(0), big.NewInt(0)); err != nil {
		t.Fatalf("update on empty pool: %v", err)
	}
	if st.Epoch != 1 || st.Product.Cmp(InitialProduct) != 0 || st.Compounded.Sign() != 0 {
		t.Fatalf("empty pool must start a new epoch: %+v", st)
	}
	if gone, err := currentDeposit(st, pos); err != nil || gone.Sign() != 0 {
		t.Fatalf("stale epoch deposit must read as zero: %v %v", gone, err)
	}
	if archived, err := env.engine.rewards(st, pos); err != nil || archived.Int64() != 2_000_000_000 {
		t.Fatalf("stale epoch rewards must use the archived sum: %v %v", archived, err)
	}
}

func TestRoundedDrainStartsNewEpoch(t *testing.T) {
	env := newTestEnv(t)
	alice, bob, carol := makeAddress(1), makeAddress(2), makeAddress(3)
	env.fund(alice, 34_000_000_000)
	env.fund(bob, 100_100_000_000)
	env.fund(carol, 20_070_000_000)
	env.open(alice, 34_000_000_000, 1_999_999_999)
	env.open(bob, 100_000_000_000, 2_000_000_000)
	if _, err := env.engine.Stake(bob, big.NewInt(2_000_000_000)); err != nil {
		t.Fatalf("stake bob: %v", err)
	}

	env.setCollateralPrice(6_000_000_000_000)
	if _, err := env.engine.FreezeCDP(alice); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	res, err := env.engine.Liquidate(alice)
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if res.Status != StatusClosed || res.LiquidatedDebt.Int64() != 1_999_999_999 {
		t.Fatalf("unexpected result: %+v", res)
	}

	// One unit of stake is left, which rounds P to zero.
	consts, err := env.engine.Constants()
	if err != nil {
		t.Fatalf("constants: %v", err)
	}
	if consts.Epoch != 1 || consts.Product.Cmp(InitialProduct) != 0 || consts.TotalRWA.Sign() != 0 {
		t.Fatalf("pool must restart in a new epoch: %+v", consts)
	}
	if got := env.tokenBalance(env.module); got != 0 {
		t.Fatalf("stranded stake must be burned, module holds %d", got)
	}
	assets, err := env.engine.AvailableAssets(bob)
	if err != nil || assets.RWA.Sign() != 0 || assets.Rewards.Int64() != 34_000_000_000 {
		t.Fatalf("unexpected assets for drained staker: %+v %v", assets, err)
	}

	env.open(carol, 20_000_000_000, 500_000_000)
	if _, err := env.engine.Stake(carol, big.NewInt(500_000_000)); err != nil {
		t.Fatalf("stake carol: %v", err)
	}
	if dep, err := env.engine.StakerDeposit(carol); err != nil || dep.Int64() != 500_000_000 {
		t.Fatalf("new stake must be fully withdrawable, deposit %v %v", dep, err)
	}
	if total, _ := env.engine.TotalRWA(); total.Int64() != 500_000_000 {
		t.Fatalf("unexpected pool total: %s", total)
	}
	if err := env.engine.Withdraw(carol, big.NewInt(500_000_000)); err != nil {
		t.Fatalf("withdraw carol: %v", err)
	}
	if got := env.tokenBalance(carol); got != 500_000_000 {
		t.Fatalf("stake must be returned to carol, holds %d", got)
	}
}

func TestUpdateConstantsRollsOverBelowMinProduct(t *testing.T) {
	env := newTestEnv(t)
	st := env.protocol()
	st.TotalRWA = big.NewInt(1_000_000_000)

	if err := env.engine.updateConstants(st, big.NewInt(999_999_999), big.NewInt(0)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if st.Epoch != 1 || st.Product.Cmp(InitialProduct) != 0 {
		t.Fatalf("P below the minimum must start a new epoch: %+v", st)
	}

	st.TotalRWA = big.NewInt(1_000_000_000)
	if err := env.engine.updateConstants(st, big.NewInt(999_999_000), big.NewInt(0)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if st.Epoch != 1 || st.Product.Cmp(MinProduct) != 0 {
		t.Fatalf("P at the minimum stays in the epoch: %+v", st)
	}
}
