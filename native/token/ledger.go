package token

import (
	"errors"
	"math/big"
	"strings"

	rwaerrors "rwalend/core/errors"
	"rwalend/core/events"
	nhstate "rwalend/core/state"
	"rwalend/crypto"
	"rwalend/native/common"
)

// AllowanceExtension is how many ledgers an allowance stays live after it is
// increased or decreased.
const AllowanceExtension uint64 = 1000

var (
	errNilState    = errors.New("token: state not configured")
	errNoMetadata  = errors.New("token: ledger not initialised")
	errInvalidMeta = errors.New("token: metadata requires name and symbol")
)

// Metadata describes the synthetic token.
type Metadata struct {
	Name     string
	Symbol   string
	Decimals uint32
}

// DefaultMetadata mirrors the reference deployment of the synthetic dollar.
func DefaultMetadata() Metadata {
	return Metadata{
		Name:     "United States Dollar RWA Token",
		Symbol:   "xUSD",
		Decimals: 7,
	}
}

type allowanceRecord struct {
	Amount    *big.Int
	LiveUntil uint64
}

type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Ledger implements balances, allowances and mint/burn for the synthetic
// token on top of the journaled key/value state.
type Ledger struct {
	state       kvStore
	auth        common.Authorizer
	emitter     events.Emitter
	blockHeight uint64
}

func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

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

func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if l == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetBlockHeight records the ledger height used for allowance expiry.
func (l *Ledger) SetBlockHeight(height uint64) {
	if l == nil {
		return
	}
	l.blockHeight = height
}

// Initialize stores the admin and metadata on first use. Later calls are no-ops.
func (l *Ledger) Initialize(admin crypto.Address, meta Metadata) error {
	if l.state == nil {
		return errNilState
	}
	if strings.TrimSpace(meta.Name) == "" || strings.TrimSpace(meta.Symbol) == "" {
		return errInvalidMeta
	}
	var existing Metadata
	ok, err := l.state.KVGet(nhstate.TokenMetadataKey(), &existing)
	if err != nil || ok {
		return err
	}
	if err := l.state.KVPut(nhstate.TokenAdminKey(), admin); err != nil {
		return err
	}
	return l.state.KVPut(nhstate.TokenMetadataKey(), meta)
}

// Metadata returns the token name, symbol and decimals.
func (l *Ledger) Metadata() (Metadata, error) {
	if l.state == nil {
		return Metadata{}, errNilState
	}
	var meta Metadata
	ok, err := l.state.KVGet(nhstate.TokenMetadataKey(), &meta)
	if err != nil {
		return Metadata{}, err
	}
	if !ok {
		return Metadata{}, errNoMetadata
	}
	return meta, nil
}

// Admin returns the account allowed to run administrative token operations.
func (l *Ledger) Admin() (crypto.Address, error) {
	if l.state == nil {
		return crypto.Address{}, errNilState
	}
	var admin crypto.Address
	ok, err := l.state.KVGet(nhstate.TokenAdminKey(), &admin)
	if err != nil {
		return crypto.Address{}, err
	}
	if !ok {
		return crypto.Address{}, errNoMetadata
	}
	return admin, nil
}

func (l *Ledger) requireAuth(addr crypto.Address) error {
	if l.auth == nil {
		return rwaerrors.ErrUnauthorized
	}
	return l.auth.RequireAuth(addr)
}

func (l *Ledger) requireAdmin() error {
	admin, err := l.Admin()
	if err != nil {
		return err
	}
	return l.requireAuth(admin)
}

// Balance returns the synthetic balance of id.
func (l *Ledger) Balance(id crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	balance := new(big.Int)
	if _, err := l.state.KVGet(nhstate.TokenBalanceKey(id.Bytes()), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// SpendableBalance equals Balance; the synthetic token has no locked funds.
func (l *Ledger) SpendableBalance(id crypto.Address) (*big.Int, error) {
	return l.Balance(id)
}

func (l *Ledger) writeBalance(id crypto.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return rwaerrors.ErrArithmetic
	}
	if amount.Sign() == 0 {
		return l.state.KVDelete(nhstate.TokenBalanceKey(id.Bytes()))
	}
	return l.state.KVPut(nhstate.TokenBalanceKey(id.Bytes()), amount)
}

// Allowance returns what spender may still move from owner. Expired
// allowances read as zero.
func (l *Ledger) Allowance(owner, spender crypto.Address) (*big.Int, error) {
	if l.state == nil {
		return nil, errNilState
	}
	var rec allowanceRecord
	ok, err := l.state.KVGet(nhstate.TokenAllowanceKey(owner.Bytes(), spender.Bytes()), &rec)
	if err != nil {
		return nil, err
	}
	if !ok || rec.Amount == nil || l.blockHeight > rec.LiveUntil {
		return new(big.Int), nil
	}
	return rec.Amount, nil
}

func (l *Ledger) writeAllowance(owner, spender crypto.Address, amount *big.Int, liveUntil uint64) error {
	return l.state.KVPut(nhstate.TokenAllowanceKey(owner.Bytes(), spender.Bytes()), allowanceRecord{
		Amount:    common.Copy(amount),
		LiveUntil: liveUntil,
	})
}

// Approve replaces the allowance of spender over owner's funds.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int, liveUntil uint64) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAuth(owner); err != nil {
		return err
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return err
	}
	if liveUntil < l.blockHeight {
		return rwaerrors.ErrInvalidLedgerSequence
	}
	return l.writeAllowance(owner, spender, amount, liveUntil)
}

// IncreaseAllowance adds amount to the live allowance and extends its expiry.
func (l *Ledger) IncreaseAllowance(owner, spender crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAuth(owner); err != nil {
		return err
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return err
	}
	current, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	next, err := common.CheckedAdd(current, amount)
	if err != nil {
		return err
	}
	return l.writeAllowance(owner, spender, next, l.blockHeight+AllowanceExtension)
}

// DecreaseAllowance lowers the live allowance. Going below zero is rejected.
func (l *Ledger) DecreaseAllowance(owner, spender crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAuth(owner); err != nil {
		return err
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return err
	}
	current, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	next, err := common.CheckedSub(current, amount)
	if err != nil {
		next = new(big.Int)
	}
	if err := common.RequireNonNegative(next); err != nil {
		return err
	}
	return l.writeAllowance(owner, spender, next, l.blockHeight+AllowanceExtension)
}

func (l *Ledger) spendAllowance(owner, spender crypto.Address, amount *big.Int) error {
	current, err := l.Allowance(owner, spender)
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(current, amount)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	return l.writeAllowance(owner, spender, next, l.blockHeight+AllowanceExtension)
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAuth(from); err != nil {
		return err
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	if from.Equal(to) {
		return rwaerrors.ErrCannotTransferToSelf
	}
	return l.TransferInternal(from, to, amount)
}

// TransferFrom moves amount from from to to using spender's allowance.
func (l *Ledger) TransferFrom(spender, from, to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAuth(spender); err != nil {
		return err
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return rwaerrors.ErrInsufficientAllowance
	}
	if err := l.TransferInternal(from, to, amount); err != nil {
		return err
	}
	return l.spendAllowance(from, spender, amount)
}

// TransferInternal moves funds without authorization. It still refuses to
// overdraw the sender.
func (l *Ledger) TransferInternal(from, to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	fromBalance, err := l.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return rwaerrors.ErrInsufficientBalance
	}
	nextFrom, err := common.CheckedSub(fromBalance, amount)
	if err != nil {
		return err
	}
	if err := l.writeBalance(from, nextFrom); err != nil {
		return err
	}
	toBalance, err := l.Balance(to)
	if err != nil {
		return err
	}
	nextTo, err := common.CheckedAdd(toBalance, amount)
	if err != nil {
		return err
	}
	return l.writeBalance(to, nextTo)
}

// Burn destroys amount from from's balance.
func (l *Ledger) Burn(from crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAuth(from); err != nil {
		return err
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	return l.BurnInternal(from, amount)
}

// BurnFrom destroys amount from from's balance using spender's allowance.
func (l *Ledger) BurnFrom(spender, from crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAuth(spender); err != nil {
		return err
	}
	if err := common.RequirePositive(amount); err != nil {
		return err
	}
	allowance, err := l.Allowance(from, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return rwaerrors.ErrInsufficientAllowance
	}
	if err := l.BurnInternal(from, amount); err != nil {
		return err
	}
	return l.spendAllowance(from, spender, amount)
}

// BurnInternal destroys funds without authorization.
func (l *Ledger) BurnInternal(from crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	balance, err := l.Balance(from)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return rwaerrors.ErrInsufficientBalance
	}
	if err := l.writeBalance(from, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	l.emit(events.TokenBurned{From: from, Amount: common.Copy(amount)})
	return nil
}

// Mint credits newly issued tokens to to. Only protocol code calls it.
func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return rwaerrors.ErrValueNotPositive
	}
	balance, err := l.Balance(to)
	if err != nil {
		return err
	}
	next, err := common.CheckedAdd(balance, amount)
	if err != nil {
		return err
	}
	if err := l.writeBalance(to, next); err != nil {
		return err
	}
	l.emit(events.TokenMinted{To: to, Amount: common.Copy(amount)})
	return nil
}

// Authorized reports the admin-managed authorization flag of id.
func (l *Ledger) Authorized(id crypto.Address) (bool, error) {
	if l.state == nil {
		return false, errNilState
	}
	var flag bool
	if _, err := l.state.KVGet(nhstate.TokenAuthorizedKey(id.Bytes()), &flag); err != nil {
		return false, err
	}
	return flag, nil
}

// SetAuthorized updates the authorization flag of id.
func (l *Ledger) SetAuthorized(id crypto.Address, authorize bool) error {
	if l.state == nil {
		return errNilState
	}
	if err := l.requireAdmin(); err != nil {
		return err
	}
	return l.state.KVPut(nhstate.TokenAuthorizedKey(id.Bytes()), authorize)
}

// Clawback removes amount from from's balance on the admin's behalf.
func (l *Ledger) Clawback(from crypto.Address, amount *big.Int) error {
	if l.state == nil {
		return errNilState
	}
	if err := common.RequireNonNegative(amount); err != nil {
		return err
	}
	if err := l.requireAdmin(); err != nil {
		return err
	}
	balance, err := l.Balance(from)
	if err != nil {
		return err
	}
	next, err := common.CheckedSub(balance, amount)
	if err != nil {
		return err
	}
	return l.writeBalance(from, next)
}

func (l *Ledger) emit(evt events.Event) {
	if l.emitter == nil {
		return
	}
	meta, err := l.Metadata()
	if err == nil {
		switch e := evt.(type) {
		case events.TokenMinted:
			e.Symbol = meta.Symbol
			evt = e
		case events.TokenBurned:
			e.Symbol = meta.Symbol
			evt = e
		}
	}
	l.emitter.Emit(evt)
}
