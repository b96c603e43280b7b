package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	rwaerrors "rwalend/core/errors"
	nhstate "rwalend/core/state"
	"rwalend/crypto"
	"rwalend/native/common"
)

var (
	ErrInsufficientFunds     = errors.New("bank: insufficient funds")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrInvalidAmount         = errors.New("bank: amount must be positive")
	ErrExpiredAllowance      = errors.New("bank: allowance expiry is in the past")
	errNilState              = errors.New("bank: state not configured")
)

type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type allowanceRecord struct {
	Amount    *big.Int
	LiveUntil uint64
}

// Ledger tracks balances of the collateral asset. The CDP engine moves
// collateral through it and the pool pays fees and rewards from it.
type Ledger struct {
	asset       string
	state       kvStore
	auth        common.Authorizer
	blockHeight uint64
}

func NewLedger(asset string) *Ledger {
	return &Ledger{asset: strings.ToUpper(strings.TrimSpace(asset))}
}

// Asset returns the symbol of the collateral asset.
func (l *Ledger) Asset() string { return l.asset }

func (l *Ledger) SetState(state kvStore) {
	if l == nil {
		return
	}
	l.state = state
}

func (l *Ledger) SetAuthorizer(auth common.Authorizer) {
	if l == nil {
		return
	}
	l.auth = auth
}

func (l *Ledger) SetBlockHeight(height uint64) {
	if l == nil {
		return
	}
	l.blockHeight = height
}

func (l *Ledger) requireAuth(addr crypto.Address) error {
	if l.auth == nil {
		return rwaerrors.ErrUnauthorized
	}
	return l.auth.RequireAuth(addr)
}

// Balance returns the collateral held by addr.
func (l *Ledger) Balance(addr crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	if _, err := l.state.KVGet(nhstate.NativeBalanceKey(l.asset, addr.Bytes()), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

func (l *Ledger) setBalance(addr crypto.Address, amount *big.Int) error {
	key := nhstate.NativeBalanceKey(l.asset, addr.Bytes())
	if amount.Sign() == 0 {
		return l.state.KVDelete(key)
	}
	return l.state.KVPut(key, amount)
}

// Credit issues collateral to addr. It backs genesis allocations and the
// operator faucet; it never runs on a user path.
func (l *Ledger) Credit(addr crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.Balance(addr)
	if err != nil {
		return err
	}
	next, err := common.CheckedAdd(balance, amount)
	if err != nil {
		return err
	}
	return l.setBalance(addr, next)
}

// Transfer moves amount from from to to. The caller must control from.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAuth(from); err != nil {
		return err
	}
	return l.move(from, to, amount)
}

func (l *Ledger) move(from, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from.Equal(to) {
		return nil
	}
	fromBalance, err := l.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientFunds, fromBalance, amount)
	}
	if err := l.setBalance(from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	toBalance, err := l.Balance(to)
	if err != nil {
		return err
	}
	next, err := common.CheckedAdd(toBalance, amount)
	if err != nil {
		return err
	}
	return l.setBalance(to, next)
}

// Allowance returns the live allowance owner granted spender.
func (l *Ledger) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	var rec allowanceRecord
	ok, err := l.state.KVGet(nhstate.NativeAllowanceKey(l.asset, owner.Bytes(), spender.Bytes()), &rec)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Amount == nil || l.blockHeight > rec.LiveUntil {
		return new(big.Int), nil
	}
	return rec.Amount, nil
}

// Approve lets spender move up to amount of owner's collateral until liveUntil.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int, liveUntil uint64) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAuth(owner); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if liveUntil < l.blockHeight {
		return ErrExpiredAllowance
	}
	return l.state.KVPut(nhstate.NativeAllowanceKey(l.asset, owner.Bytes(), spender.Bytes()), allowanceRecord{
		Amount:    common.Copy(amount),
		LiveUntil: liveUntil,
	})
}

// TransferFrom moves owner funds on spender's authority.
func (l *Ledger) TransferFrom(spender, from, to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAuth(spender); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	key := nhstate.NativeAllowanceKey(l.asset, from.Bytes(), spender.Bytes())
	var rec allowanceRecord
	ok, err := l.state.KVGet(key, &rec)
	if err != nil {
		return err
	}
	live := new(big.Int)
	if ok && rec.Amount != nil && l.blockHeight <= rec.LiveUntil {
		live = rec.Amount
	}
	if live.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s need %s", ErrInsufficientAllowance, live, amount)
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	rec.Amount = new(big.Int).Sub(live, amount)
	return l.state.KVPut(key, rec)
}
