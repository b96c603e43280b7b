package cdp

import (
	"math/big"

	rwaerrors "rwalend/core/errors"
	"rwalend/core/events"
	"rwalend/crypto"
	"rwalend/native/common"
)

// updateConstants folds a pool debit of debt, paid for with earned
// collateral, into the product and sum accumulators:
//
//	P' = P * (T - debt) / T
//	S' = S + earned * P / T
//
// A debit that empties the pool, any debit against an empty pool, and a
// debit that leaves P below MinProduct start a new epoch.
func (e *Engine) updateConstants(st *ProtocolState, debt, earned *big.Int) error {
	total := st.TotalRWA
	if total.Sign() == 0 {
		return e.incrementEpoch(st)
	}
	remaining := new(big.Int).Sub(total, debt)
	product, err := common.CheckedMul(st.Product, remaining)
	if err != nil {
		return err
	}
	gain, err := common.CheckedMul(earned, st.Product)
	if err != nil {
		return err
	}
	compounded, err := common.CheckedAdd(st.Compounded, new(big.Int).Quo(gain, total))
	if err != nil {
		return err
	}
	st.Product = product.Quo(product, total)
	st.Compounded = compounded
	if total.Cmp(debt) <= 0 || st.Product.Cmp(MinProduct) < 0 {
		return e.incrementEpoch(st)
	}
	return nil
}

// incrementEpoch archives S for the closing epoch and resets the constants.
func (e *Engine) incrementEpoch(st *ProtocolState) error {
	if err := e.archiveCompounded(st.Epoch, st.Compounded); err != nil {
		return err
	}
	st.Epoch++
	st.Product = new(big.Int).Set(InitialProduct)
	st.Compounded = new(big.Int)
	return nil
}

// currentDeposit is the part of pos the pool still holds. Deposits from an
// earlier epoch were fully consumed by the liquidation that closed it.
func currentDeposit(st *ProtocolState, pos StakerPosition) (*big.Int, error) {
	if pos.Epoch != st.Epoch || pos.ProductSnapshot.Sign() == 0 {
		return new(big.Int), nil
	}
	return proportion(pos.Deposit, st.Product, pos.ProductSnapshot)
}

// rewards is the collateral pos has earned since its snapshot.
func (e *Engine) rewards(st *ProtocolState, pos StakerPosition) (*big.Int, error) {
	if pos.ProductSnapshot.Sign() == 0 {
		return new(big.Int), nil
	}
	sum := st.Compounded
	if pos.Epoch != st.Epoch {
		archived, err := e.archivedCompounded(pos.Epoch)
		if err != nil {
			return nil, err
		}
		sum = archived
	}
	return proportion(pos.Deposit, new(big.Int).Sub(sum, pos.CompoundedSnapshot), pos.ProductSnapshot)
}

func snapshot(st *ProtocolState, deposit *big.Int) StakerPosition {
	return StakerPosition{
		Deposit:            deposit,
		ProductSnapshot:    new(big.Int).Set(st.Product),
		CompoundedSnapshot: new(big.Int).Set(st.Compounded),
		Epoch:              st.Epoch,
	}
}

func (e *Engine) emitStaker(staker crypto.Address, pos StakerPosition, claimed *big.Int) {
	e.emitter.Emit(events.PoolPosition{
		Staker:         staker,
		Deposit:        common.Copy(pos.Deposit),
		Product:        common.Copy(pos.ProductSnapshot),
		Compounded:     common.Copy(pos.CompoundedSnapshot),
		Epoch:          pos.Epoch,
		RewardsClaimed: common.Copy(claimed),
		Height:         e.height,
		Timestamp:      e.now,
	})
}

func (e *Engine) loadStaker(addr crypto.Address) (StakerPosition, error) {
	pos, ok, err := e.getStaker(addr)
	if err != nil {
		return StakerPosition{}, err
	}
	if !ok {
		return StakerPosition{}, rwaerrors.ErrStakeDoesntExist
	}
	return pos, nil
}

func (e *Engine) requireSyntheticBalance(addr crypto.Address, amount *big.Int) error {
	balance, err := e.token.Balance(addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return rwaerrors.ErrInsufficientBalance
	}
	return nil
}

func (e *Engine) chargeFee(st *ProtocolState, from crypto.Address, fee *big.Int) error {
	if err := e.native.Transfer(from, e.module, fee); err != nil {
		return collateralTransferErr(err)
	}
	collected, err := common.CheckedAdd(st.FeesCollected, fee)
	if err != nil {
		return err
	}
	st.FeesCollected = collected
	return nil
}

// Stake opens a stability pool position of amount for from.
func (e *Engine) Stake(from crypto.Address, amount *big.Int) (StakerPosition, error) {
	st, err := e.begin(common.ModulePool)
	if err != nil {
		return StakerPosition{}, err
	}
	if err := e.requireAuth(from); err != nil {
		return StakerPosition{}, err
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return StakerPosition{}, err
	}
	if _, exists, err := e.getStaker(from); err != nil {
		return StakerPosition{}, err
	} else if exists {
		return StakerPosition{}, rwaerrors.ErrStakeAlreadyExists
	}
	if err := e.requireSyntheticBalance(from, amount); err != nil {
		return StakerPosition{}, err
	}
	if err := e.chargeFee(st, from, st.StakeFee); err != nil {
		return StakerPosition{}, err
	}
	pos := snapshot(st, common.Copy(amount))
	if err := e.token.TransferInternal(from, e.module, amount); err != nil {
		return StakerPosition{}, err
	}
	if st.TotalRWA, err = common.CheckedAdd(st.TotalRWA, amount); err != nil {
		return StakerPosition{}, err
	}
	if err := e.putStaker(from, pos); err != nil {
		return StakerPosition{}, err
	}
	if err := e.storeProtocol(st); err != nil {
		return StakerPosition{}, err
	}
	e.emitStaker(from, pos, nil)
	return pos, nil
}

// Deposit tops up an existing position. Pending rewards must be claimed
// first so the re-snapshot does not forfeit them.
func (e *Engine) Deposit(from crypto.Address, amount *big.Int) (StakerPosition, error) {
	st, err := e.begin(common.ModulePool)
	if err != nil {
		return StakerPosition{}, err
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return StakerPosition{}, err
	}
	if err := e.requireAuth(from); err != nil {
		return StakerPosition{}, err
	}
	if err := e.requireSyntheticBalance(from, amount); err != nil {
		return StakerPosition{}, err
	}
	pos, err := e.loadStaker(from)
	if err != nil {
		return StakerPosition{}, err
	}
	current, err := currentDeposit(st, pos)
	if err != nil {
		return StakerPosition{}, err
	}
	reward, err := e.rewards(st, pos)
	if err != nil {
		return StakerPosition{}, err
	}
	if reward.Sign() > 0 {
		return StakerPosition{}, rwaerrors.ErrClaimRewardsFirst
	}
	if err := e.chargeFee(st, from, st.DepositFee); err != nil {
		return StakerPosition{}, err
	}
	deposit, err := common.CheckedAdd(current, amount)
	if err != nil {
		return StakerPosition{}, err
	}
	next := snapshot(st, deposit)
	if err := e.token.TransferInternal(from, e.module, amount); err != nil {
		return StakerPosition{}, err
	}
	if st.TotalRWA, err = common.CheckedAdd(st.TotalRWA, amount); err != nil {
		return StakerPosition{}, err
	}
	if err := e.putStaker(from, next); err != nil {
		return StakerPosition{}, err
	}
	if err := e.storeProtocol(st); err != nil {
		return StakerPosition{}, err
	}
	e.emitStaker(from, next, nil)
	return next, nil
}

// Withdraw returns amount of the synthetic asset from to's position.
func (e *Engine) Withdraw(to crypto.Address, amount *big.Int) error {
	if err := common.RequireNonNegative(amount); err != nil {
		return err
	}
	return e.withdraw(to, amount, false)
}

// Unstake withdraws the whole position and refunds the unstake return.
func (e *Engine) Unstake(staker crypto.Address) error {
	return e.withdraw(staker, nil, true)
}

func (e *Engine) withdraw(to crypto.Address, amount *big.Int, full bool) error {
	st, err := e.begin(common.ModulePool)
	if err != nil {
		return err
	}
	if err := e.requireAuth(to); err != nil {
		return err
	}
	pos, err := e.loadStaker(to)
	if err != nil {
		return err
	}
	reward, err := e.rewards(st, pos)
	if err != nil {
		return err
	}
	if reward.Sign() > 0 {
		return rwaerrors.ErrClaimRewardsFirst
	}
	owed, err := currentDeposit(st, pos)
	if err != nil {
		return err
	}
	if full {
		amount = owed
	}
	if owed.Cmp(amount) < 0 {
		return rwaerrors.ErrInsufficientStake
	}

	if owed.Cmp(amount) == 0 {
		if err := e.native.Transfer(e.module, to, st.UnstakeReturn); err != nil {
			return collateralTransferErr(err)
		}
		if st.FeesCollected, err = common.CheckedSub(st.FeesCollected, st.UnstakeReturn); err != nil {
			return err
		}
		if err := e.token.TransferInternal(e.module, to, amount); err != nil {
			return err
		}
		if err := e.deleteStaker(to); err != nil {
			return err
		}
		e.emitStaker(to, snapshot(st, new(big.Int)), nil)
	} else {
		next := snapshot(st, new(big.Int).Sub(owed, amount))
		if err := e.token.TransferInternal(e.module, to, amount); err != nil {
			return err
		}
		if err := e.putStaker(to, next); err != nil {
			return err
		}
		e.emitStaker(to, next, nil)
	}
	st.TotalRWA = floorZero(new(big.Int).Sub(st.TotalRWA, amount))
	return e.storeProtocol(st)
}

// ClaimRewards pays out to's accumulated collateral and re-snapshots the
// position against the live constants.
func (e *Engine) ClaimRewards(to crypto.Address) (*big.Int, error) {
	st, err := e.begin(common.ModulePool)
	if err != nil {
		return nil, err
	}
	if err := e.requireAuth(to); err != nil {
		return nil, err
	}
	pos, err := e.loadStaker(to)
	if err != nil {
		return nil, err
	}
	reward, err := e.rewards(st, pos)
	if err != nil {
		return nil, err
	}
	current, err := currentDeposit(st, pos)
	if err != nil {
		return nil, err
	}
	if reward.Sign() > 0 {
		if err := e.native.Transfer(e.module, to, reward); err != nil {
			return nil, collateralTransferErr(err)
		}
	}
	st.TotalCollateral = floorZero(new(big.Int).Sub(st.TotalCollateral, reward))
	next := snapshot(st, current)
	if err := e.putStaker(to, next); err != nil {
		return nil, err
	}
	if err := e.storeProtocol(st); err != nil {
		return nil, err
	}
	e.emitStaker(to, next, reward)
	return reward, nil
}

// StakerDeposit returns the current value of addr's deposit.
func (e *Engine) StakerDeposit(addr crypto.Address) (*big.Int, error) {
	st, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	pos, err := e.loadStaker(addr)
	if err != nil {
		return nil, err
	}
	return currentDeposit(st, pos)
}

// AvailableAssets reports the withdrawable stake and claimable rewards.
func (e *Engine) AvailableAssets(staker crypto.Address) (AvailableAssets, error) {
	st, err := e.loadProtocol()
	if err != nil {
		return AvailableAssets{}, err
	}
	pos, err := e.loadStaker(staker)
	if err != nil {
		return AvailableAssets{}, err
	}
	current, err := currentDeposit(st, pos)
	if err != nil {
		return AvailableAssets{}, err
	}
	reward, err := e.rewards(st, pos)
	if err != nil {
		return AvailableAssets{}, err
	}
	return AvailableAssets{RWA: current, Rewards: reward}, nil
}

// Position returns the stored snapshot of staker's position.
func (e *Engine) Position(staker crypto.Address) (StakerPosition, error) {
	if e == nil || e.state == nil {
		return StakerPosition{}, errNilState
	}
	return e.loadStaker(staker)
}

// Constants returns the live pool accumulators.
func (e *Engine) Constants() (Constants, error) {
	st, err := e.loadProtocol()
	if err != nil {
		return Constants{}, err
	}
	return Constants{
		Compounded: st.Compounded,
		Product:    st.Product,
		Epoch:      st.Epoch,
		TotalRWA:   st.TotalRWA,
	}, nil
}

// TotalRWA returns the synthetic asset held by the pool.
func (e *Engine) TotalRWA() (*big.Int, error) {
	st, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	return st.TotalRWA, nil
}

// TotalCollateral returns the collateral the pool holds for stakers.
func (e *Engine) TotalCollateral() (*big.Int, error) {
	st, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	return st.TotalCollateral, nil
}

func floorZero(v *big.Int) *big.Int {
	if v.Sign() < 0 {
		return v.SetInt64(0)
	}
	return v
}
