package cdp

import (
	"errors"
	"fmt"
	"math/big"

	rwaerrors "rwalend/core/errors"
	"rwalend/core/events"
	"rwalend/crypto"
	"rwalend/native/bank"
	"rwalend/native/common"
	"rwalend/native/oracle"
)

var (
	errNilState           = errors.New("cdp engine: state not configured")
	errNilLedger          = errors.New("cdp engine: ledgers not configured")
	errNilOracles         = errors.New("cdp engine: oracle resolver not configured")
	errNilModule          = errors.New("cdp engine: module address not configured")
	errAlreadyInitialised = errors.New("cdp engine: protocol already initialised")
)

// syntheticLedger is the slice of the token ledger the engine drives. The
// engine authorizes principals itself and uses the unauthenticated variants.
type syntheticLedger interface {
	Balance(addr crypto.Address) (*big.Int, error)
	Mint(to crypto.Address, amount *big.Int) error
	BurnInternal(from crypto.Address, amount *big.Int) error
	TransferInternal(from, to crypto.Address, amount *big.Int) error
}

// nativeLedger moves collateral. Transfers out of the module account are
// authorized by the module address.
type nativeLedger interface {
	Balance(addr crypto.Address) (*big.Int, error)
	Transfer(from, to crypto.Address, amount *big.Int) error
	TransferFrom(spender, from, to crypto.Address, amount *big.Int) error
}

// Engine executes CDP, liquidation and stability pool transitions against a
// single journaled state. It is built per call and is not safe for concurrent
// use.
type Engine struct {
	state   kvStore
	token   syntheticLedger
	native  nativeLedger
	oracles oracle.Resolver
	auth    common.Authorizer
	emitter events.Emitter
	module  crypto.Address
	now     uint64
	height  uint64
}

// NewEngine constructs an engine whose pooled funds live at module.
func NewEngine(module crypto.Address) *Engine {
	return &Engine{module: module, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the journaled key/value state.
func (e *Engine) SetState(state kvStore) {
	if e == nil {
		return
	}
	e.state = state
}

func (e *Engine) SetToken(ledger syntheticLedger) {
	if e == nil {
		return
	}
	e.token = ledger
}

func (e *Engine) SetNative(ledger nativeLedger) {
	if e == nil {
		return
	}
	e.native = ledger
}

func (e *Engine) SetOracles(resolver oracle.Resolver) {
	if e == nil {
		return
	}
	e.oracles = resolver
}

func (e *Engine) SetAuthorizer(auth common.Authorizer) {
	if e == nil {
		return
	}
	e.auth = auth
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetBlockTime records the unix time used for interest accrual.
func (e *Engine) SetBlockTime(now uint64) {
	if e == nil {
		return
	}
	e.now = now
}

// SetBlockHeight records the ledger height stamped on emitted events.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.height = height
}

// ModuleAddress returns the account holding pooled collateral and stake.
func (e *Engine) ModuleAddress() crypto.Address { return e.module }

// Initialize writes the genesis protocol state.
func (e *Engine) Initialize(p Params) (*ProtocolState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.loadProtocol(); err == nil {
		return nil, errAlreadyInitialised
	} else if !errors.Is(err, errNotInitialized) {
		return nil, err
	}
	st := NewProtocolState(p)
	if err := e.storeProtocol(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Protocol returns the stored protocol state.
func (e *Engine) Protocol() (*ProtocolState, error) {
	return e.loadProtocol()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.token == nil || e.native == nil {
		return errNilLedger
	}
	if e.oracles == nil {
		return errNilOracles
	}
	if e.module.IsZero() {
		return errNilModule
	}
	return nil
}

// begin loads the protocol state for a mutating call on module.
func (e *Engine) begin(module string) (*ProtocolState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	st, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	if err := common.Guard(st, module); err != nil {
		return nil, err
	}
	return st, nil
}

func (e *Engine) requireAuth(addr crypto.Address) error {
	if e.auth == nil {
		return rwaerrors.ErrUnauthorized
	}
	return e.auth.RequireAuth(addr)
}

// prices fetches the latest collateral and pegged asset prices together with
// the feed decimals.
func (e *Engine) prices(st *ProtocolState) (Prices, error) {
	collFeed, err := e.oracles.Resolve(st.CollateralOracle)
	if err != nil {
		return Prices{}, fmt.Errorf("%w: %v", rwaerrors.ErrOraclePriceFetchFailed, err)
	}
	assetFeed, err := e.oracles.Resolve(st.AssetOracle)
	if err != nil {
		return Prices{}, fmt.Errorf("%w: %v", rwaerrors.ErrOraclePriceFetchFailed, err)
	}
	collPrice, err := collFeed.LastPrice(st.CollateralAsset)
	if err != nil {
		return Prices{}, fmt.Errorf("%w: %s: %v", rwaerrors.ErrOraclePriceFetchFailed, st.CollateralAsset, err)
	}
	collDecimals, err := collFeed.Decimals()
	if err != nil {
		return Prices{}, fmt.Errorf("%w: %v", rwaerrors.ErrOracleDecimalsFetchFailed, err)
	}
	assetPrice, err := assetFeed.LastPrice(st.PeggedAsset)
	if err != nil {
		return Prices{}, fmt.Errorf("%w: %s: %v", rwaerrors.ErrOraclePriceFetchFailed, st.PeggedAsset, err)
	}
	assetDecimals, err := assetFeed.Decimals()
	if err != nil {
		return Prices{}, fmt.Errorf("%w: %v", rwaerrors.ErrOracleDecimalsFetchFailed, err)
	}
	return Prices{
		CollateralPrice:    collPrice.Price,
		CollateralDecimals: collDecimals,
		AssetPrice:         assetPrice.Price,
		AssetDecimals:      assetDecimals,
	}, nil
}

func (e *Engine) loadPosition(lender crypto.Address) (Record, error) {
	rec, ok, err := e.getRecord(lender)
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return Record{}, rwaerrors.ErrCDPNotFound
	}
	return rec, nil
}

func (e *Engine) savePosition(pos Position) error {
	if err := e.putRecord(pos.Lender, pos.Record()); err != nil {
		return err
	}
	e.emitPosition(pos.Lender, pos.Record(), pos.Status)
	return nil
}

func (e *Engine) emitPosition(lender crypto.Address, rec Record, status Status) {
	e.emitter.Emit(events.CDPUpdated{
		Lender:           lender,
		Collateral:       common.Copy(rec.Collateral),
		Debt:             common.Copy(rec.Debt),
		InterestAmount:   common.Copy(rec.Interest.Amount),
		InterestPaid:     common.Copy(rec.Interest.Paid),
		LastInterestTime: rec.LastInterestTime,
		Status:           status.String(),
		Height:           e.height,
		Timestamp:        e.now,
	})
}

func collateralTransferErr(err error) error {
	return fmt.Errorf("%w: %v", rwaerrors.ErrXLMTransferFailed, err)
}

func notOpenOrInsolvent(s Status) bool {
	return s == StatusClosed || s == StatusFrozen
}

// OpenCDP creates a position for lender, pulling collateral into the module
// account and minting debt to the lender.
func (e *Engine) OpenCDP(lender crypto.Address, collateral, debt *big.Int) (Position, error) {
	st, err := e.begin(common.ModuleCDP)
	if err != nil {
		return Position{}, err
	}
	if err := common.RequireNonNegative(collateral); err != nil {
		return Position{}, err
	}
	if err := common.RequireNonNegative(debt); err != nil {
		return Position{}, err
	}
	if err := e.requireAuth(lender); err != nil {
		return Position{}, err
	}
	if _, exists, err := e.getRecord(lender); err != nil {
		return Position{}, err
	} else if exists {
		return Position{}, rwaerrors.ErrCDPAlreadyExists
	}
	px, err := e.prices(st)
	if err != nil {
		return Position{}, err
	}
	rec := Record{
		Collateral:       common.Copy(collateral),
		Debt:             common.Copy(debt),
		Status:           StatusOpen,
		Interest:         zeroInterest(),
		LastInterestTime: e.now,
	}
	pos, err := Decorate(lender, rec, px, st, e.now)
	if err != nil {
		return Position{}, err
	}
	if pos.CollateralizationRatio < st.MinCollateralRatio {
		return Position{}, rwaerrors.ErrInsufficientCollateralization
	}
	if err := e.native.Transfer(lender, e.module, collateral); err != nil {
		return Position{}, collateralTransferErr(err)
	}
	if err := e.token.Mint(lender, debt); err != nil {
		return Position{}, err
	}
	if err := e.savePosition(pos); err != nil {
		return Position{}, err
	}
	return pos, nil
}

// CDP returns the priced view of lender's position.
func (e *Engine) CDP(lender crypto.Address) (Position, error) {
	if err := e.ready(); err != nil {
		return Position{}, err
	}
	st, err := e.loadProtocol()
	if err != nil {
		return Position{}, err
	}
	rec, err := e.loadPosition(lender)
	if err != nil {
		return Position{}, err
	}
	px, err := e.prices(st)
	if err != nil {
		return Position{}, err
	}
	return Decorate(lender, rec, px, st, e.now)
}

// FreezeCDP marks an insolvent position as frozen. Anyone may call it.
func (e *Engine) FreezeCDP(lender crypto.Address) (Position, error) {
	st, err := e.begin(common.ModuleCDP)
	if err != nil {
		return Position{}, err
	}
	rec, err := e.loadPosition(lender)
	if err != nil {
		return Position{}, err
	}
	px, err := e.prices(st)
	if err != nil {
		return Position{}, err
	}
	pos, err := Decorate(lender, rec, px, st, e.now)
	if err != nil {
		return Position{}, err
	}
	if pos.Status != StatusInsolvent {
		return Position{}, rwaerrors.ErrCDPNotInsolvent
	}
	pos.Status = StatusFrozen
	if err := e.savePosition(pos); err != nil {
		return Position{}, err
	}
	return pos, nil
}

// AddCollateral moves amount of collateral from lender into the position.
func (e *Engine) AddCollateral(lender crypto.Address, amount *big.Int) (Position, error) {
	st, err := e.begin(common.ModuleCDP)
	if err != nil {
		return Position{}, err
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return Position{}, err
	}
	if err := e.requireAuth(lender); err != nil {
		return Position{}, err
	}
	rec, err := e.loadPosition(lender)
	if err != nil {
		return Position{}, err
	}
	if notOpenOrInsolvent(rec.Status) {
		return Position{}, rwaerrors.ErrCDPNotOpenOrInsolvent
	}
	next, err := common.CheckedAdd(rec.Collateral, amount)
	if err != nil {
		return Position{}, err
	}
	px, err := e.prices(st)
	if err != nil {
		return Position{}, err
	}
	if err := e.native.Transfer(lender, e.module, amount); err != nil {
		return Position{}, collateralTransferErr(err)
	}
	rec.Collateral = next
	pos, err := Decorate(lender, rec, px, st, e.now)
	if err != nil {
		return Position{}, err
	}
	if err := e.savePosition(pos); err != nil {
		return Position{}, err
	}
	return pos, nil
}

// WithdrawCollateral returns amount of collateral to lender provided the
// position stays above the minimum ratio.
func (e *Engine) WithdrawCollateral(lender crypto.Address, amount *big.Int) (Position, error) {
	st, err := e.begin(common.ModuleCDP)
	if err != nil {
		return Position{}, err
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return Position{}, err
	}
	if err := e.requireAuth(lender); err != nil {
		return Position{}, err
	}
	rec, err := e.loadPosition(lender)
	if err != nil {
		return Position{}, err
	}
	if notOpenOrInsolvent(rec.Status) {
		return Position{}, rwaerrors.ErrCDPNotOpenOrInsolvent
	}
	if rec.Collateral.Cmp(amount) < 0 {
		return Position{}, rwaerrors.ErrInsufficientCollateral
	}
	next, err := common.CheckedSub(rec.Collateral, amount)
	if err != nil {
		return Position{}, err
	}
	px, err := e.prices(st)
	if err != nil {
		return Position{}, err
	}
	rec.Collateral = next
	pos, err := Decorate(lender, rec, px, st, e.now)
	if err != nil {
		return Position{}, err
	}
	if pos.CollateralizationRatio < st.MinCollateralRatio {
		return Position{}, rwaerrors.ErrInvalidWithdrawal
	}
	if err := e.native.Transfer(e.module, lender, amount); err != nil {
		return Position{}, collateralTransferErr(err)
	}
	if err := e.savePosition(pos); err != nil {
		return Position{}, err
	}
	return pos, nil
}

// BorrowRWA mints amount of additional debt against the position.
func (e *Engine) BorrowRWA(lender crypto.Address, amount *big.Int) (Position, error) {
	st, err := e.begin(common.ModuleCDP)
	if err != nil {
		return Position{}, err
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return Position{}, err
	}
	if err := e.requireAuth(lender); err != nil {
		return Position{}, err
	}
	rec, err := e.loadPosition(lender)
	if err != nil {
		return Position{}, err
	}
	if notOpenOrInsolvent(rec.Status) {
		return Position{}, rwaerrors.ErrCDPNotOpenOrInsolvent
	}
	px, err := e.prices(st)
	if err != nil {
		return Position{}, err
	}
	// Accrue against the debt as stored before the new principal applies.
	current, err := Decorate(lender, rec, px, st, e.now)
	if err != nil {
		return Position{}, err
	}
	next := current.Record()
	if next.Debt, err = common.CheckedAdd(next.Debt, amount); err != nil {
		return Position{}, err
	}
	pos, err := Decorate(lender, next, px, st, e.now)
	if err != nil {
		return Position{}, err
	}
	if pos.CollateralizationRatio < st.MinCollateralRatio {
		return Position{}, rwaerrors.ErrInsufficientCollateralization
	}
	if err := e.token.Mint(lender, amount); err != nil {
		return Position{}, err
	}
	if err := e.savePosition(pos); err != nil {
		return Position{}, err
	}
	return pos, nil
}

// RepayDebt settles all accrued interest in collateral, then burns amount of
// the synthetic asset against principal. The lender must have approved the
// module to pull the interest.
func (e *Engine) RepayDebt(lender crypto.Address, amount *big.Int) (Position, error) {
	st, err := e.begin(common.ModuleCDP)
	if err != nil {
		return Position{}, err
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return Position{}, err
	}
	if err := e.requireAuth(lender); err != nil {
		return Position{}, err
	}
	rec, err := e.loadPosition(lender)
	if err != nil {
		return Position{}, err
	}
	if notOpenOrInsolvent(rec.Status) {
		return Position{}, rwaerrors.ErrCDPNotOpenOrInsolventForRepay
	}
	px, err := e.prices(st)
	if err != nil {
		return Position{}, err
	}
	pos, err := Decorate(lender, rec, px, st, e.now)
	if err != nil {
		return Position{}, err
	}
	pos, err = e.settleInterest(st, px, pos, nil, func(xlm *big.Int) error {
		err := e.native.TransferFrom(e.module, lender, e.module, xlm)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, bank.ErrInsufficientAllowance):
			return rwaerrors.ErrInsufficientApprovedXLMForInterestRepayment
		default:
			return fmt.Errorf("%w: %v", rwaerrors.ErrXLMInvocationFailed, err)
		}
	})
	if err != nil {
		return Position{}, err
	}

	if pos.Debt.Cmp(amount) < 0 {
		return Position{}, rwaerrors.ErrRepaymentExceedsDebt
	}
	balance, err := e.token.Balance(lender)
	if err != nil {
		return Position{}, err
	}
	if balance.Cmp(amount) < 0 {
		return Position{}, rwaerrors.ErrInsufficientBalance
	}
	next := pos.Record()
	if next.Debt, err = common.CheckedSub(next.Debt, amount); err != nil {
		return Position{}, err
	}
	if err := e.token.BurnInternal(lender, amount); err != nil {
		return Position{}, err
	}
	if err := e.storeProtocol(st); err != nil {
		return Position{}, err
	}
	if next.Debt.Sign() == 0 && next.Collateral.Sign() == 0 {
		if err := e.closeRecord(lender, next); err != nil {
			return Position{}, err
		}
		pos.Debt = next.Debt
		pos.Status = StatusClosed
		return pos, nil
	}
	pos, err = Decorate(lender, next, px, st, e.now)
	if err != nil {
		return Position{}, err
	}
	if err := e.savePosition(pos); err != nil {
		return Position{}, err
	}
	return pos, nil
}

// PayInterest settles amount of the outstanding interest by transferring its
// collateral value from lender to the module.
func (e *Engine) PayInterest(lender crypto.Address, amount *big.Int) (Position, error) {
	st, err := e.begin(common.ModuleCDP)
	if err != nil {
		return Position{}, err
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return Position{}, err
	}
	if err := e.requireAuth(lender); err != nil {
		return Position{}, err
	}
	if err := common.RequirePositive(amount); err != nil {
		return Position{}, err
	}
	rec, err := e.loadPosition(lender)
	if err != nil {
		return Position{}, err
	}
	px, err := e.prices(st)
	if err != nil {
		return Position{}, err
	}
	pos, err := Decorate(lender, rec, px, st, e.now)
	if err != nil {
		return Position{}, err
	}
	pos, err = e.settleInterest(st, px, pos, amount, func(xlm *big.Int) error {
		if err := e.native.Transfer(lender, e.module, xlm); err != nil {
			return collateralTransferErr(err)
		}
		return nil
	})
	if err != nil {
		return Position{}, err
	}
	if err := e.storeProtocol(st); err != nil {
		return Position{}, err
	}
	return pos, nil
}

// settleInterest pays amount of interest (all of it when amount is nil) via
// pay, which receives the collateral value. The updated position is persisted
// and the protocol totals in st are bumped; the caller stores st.
func (e *Engine) settleInterest(st *ProtocolState, px Prices, pos Position, amount *big.Int, pay func(*big.Int) error) (Position, error) {
	toPay := pos.Interest.Amount
	if amount != nil {
		if pos.Interest.Amount.Cmp(amount) < 0 {
			return Position{}, rwaerrors.ErrPaymentExceedsInterestDue
		}
		toPay = amount
	}
	if toPay.Sign() == 0 {
		return pos, nil
	}
	xlm, err := px.ToCollateral(toPay)
	if err != nil {
		return Position{}, err
	}
	balance, err := e.native.Balance(pos.Lender)
	if err != nil {
		return Position{}, err
	}
	if balance.Cmp(xlm) < 0 {
		return Position{}, rwaerrors.ErrInsufficientXLMForInterest
	}
	if err := pay(xlm); err != nil {
		return Position{}, err
	}
	next := pos.Record()
	if next.Interest.Amount, err = common.CheckedSub(next.Interest.Amount, toPay); err != nil {
		return Position{}, err
	}
	if next.Interest.Paid, err = common.CheckedAdd(next.Interest.Paid, xlm); err != nil {
		return Position{}, err
	}
	updated, err := Decorate(pos.Lender, next, px, st, e.now)
	if err != nil {
		return Position{}, err
	}
	if err := e.savePosition(updated); err != nil {
		return Position{}, err
	}
	if err := e.recordInterest(st, xlm); err != nil {
		return Position{}, err
	}
	return updated, nil
}

func (e *Engine) recordInterest(st *ProtocolState, xlm *big.Int) error {
	total, err := common.CheckedAdd(st.InterestCollected, xlm)
	if err != nil {
		return err
	}
	st.InterestCollected = total
	return e.addEpochInterest(st.Epoch, xlm)
}

// AccruedInterest reports the interest owed now, its collateral value and the
// collateral a lender should approve to cover a repayment in the next few
// minutes.
func (e *Engine) AccruedInterest(lender crypto.Address) (InterestDetail, error) {
	if err := e.ready(); err != nil {
		return InterestDetail{}, err
	}
	st, err := e.loadProtocol()
	if err != nil {
		return InterestDetail{}, err
	}
	rec, err := e.loadPosition(lender)
	if err != nil {
		return InterestDetail{}, err
	}
	interest, last, err := accrueInterest(rec, st.InterestRateBps, e.now)
	if err != nil {
		return InterestDetail{}, err
	}
	projected, err := projectInterest(rec, st.InterestRateBps, rec.LastInterestTime, e.now+ApprovalWindowSeconds)
	if err != nil {
		return InterestDetail{}, err
	}
	px, err := e.prices(st)
	if err != nil {
		return InterestDetail{}, err
	}
	approval, err := px.ToCollateral(projected.Amount)
	if err != nil {
		return InterestDetail{}, err
	}
	inCollateral, err := px.ToCollateral(interest.Amount)
	if err != nil {
		return InterestDetail{}, err
	}
	return InterestDetail{
		Amount:             interest.Amount,
		Paid:               interest.Paid,
		AmountInCollateral: inCollateral,
		ApprovalAmount:     approval,
		LastInterestTime:   last,
	}, nil
}

// MergeCDPs folds frozen positions into the first lender's position. Anyone
// may call it.
func (e *Engine) MergeCDPs(lenders []crypto.Address) (Record, error) {
	if _, err := e.begin(common.ModuleCDP); err != nil {
		return Record{}, err
	}
	if len(lenders) < 2 {
		return Record{}, rwaerrors.ErrInvalidMerge
	}
	merged := Record{
		Collateral: new(big.Int),
		Debt:       new(big.Int),
		Status:     StatusFrozen,
		Interest:   zeroInterest(),
	}
	seen := make(map[string]struct{}, len(lenders))
	for _, lender := range lenders {
		key := string(lender.Bytes())
		if _, dup := seen[key]; dup {
			return Record{}, rwaerrors.ErrInvalidMerge
		}
		seen[key] = struct{}{}
		rec, err := e.loadPosition(lender)
		if err != nil {
			return Record{}, err
		}
		if rec.Status != StatusFrozen {
			return Record{}, rwaerrors.ErrInvalidMerge
		}
		if merged.Collateral, err = common.CheckedAdd(merged.Collateral, rec.Collateral); err != nil {
			return Record{}, err
		}
		if merged.Debt, err = common.CheckedAdd(merged.Debt, rec.Debt); err != nil {
			return Record{}, err
		}
		if merged.Interest.Amount, err = common.CheckedAdd(merged.Interest.Amount, rec.Interest.Amount); err != nil {
			return Record{}, err
		}
		if merged.Interest.Paid, err = common.CheckedAdd(merged.Interest.Paid, rec.Interest.Paid); err != nil {
			return Record{}, err
		}
	}
	merged.LastInterestTime = e.now
	for _, lender := range lenders[1:] {
		if err := e.deleteRecord(lender); err != nil {
			return Record{}, err
		}
	}
	if err := e.putRecord(lenders[0], merged); err != nil {
		return Record{}, err
	}
	e.emitPosition(lenders[0], merged, merged.Status)
	return merged, nil
}

// CloseCDP returns any remaining collateral and removes a debt-free position.
// Anyone may call it.
func (e *Engine) CloseCDP(lender crypto.Address) error {
	if _, err := e.begin(common.ModuleCDP); err != nil {
		return err
	}
	rec, err := e.loadPosition(lender)
	if err != nil {
		return err
	}
	if rec.Debt.Sign() > 0 {
		return rwaerrors.ErrOutstandingDebt
	}
	return e.closeRecord(lender, rec)
}

func (e *Engine) closeRecord(lender crypto.Address, rec Record) error {
	if rec.Collateral.Sign() > 0 {
		if err := e.native.Transfer(e.module, lender, rec.Collateral); err != nil {
			return collateralTransferErr(err)
		}
	}
	if err := e.deleteRecord(lender); err != nil {
		return err
	}
	e.emitPosition(lender, rec, StatusClosed)
	return nil
}
