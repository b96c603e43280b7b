package cdp

import (
	"errors"
	"math/big"

	nhstate "rwalend/core/state"
	"rwalend/crypto"
)

var errNotInitialized = errors.New("cdp: protocol not initialised")

type kvStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

func (e *Engine) loadProtocol() (*ProtocolState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	st := new(ProtocolState)
	ok, err := e.state.KVGet(nhstate.ProtocolStateKey(), st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotInitialized
	}
	st.normalize()
	return st, nil
}

func (e *Engine) storeProtocol(st *ProtocolState) error {
	return e.state.KVPut(nhstate.ProtocolStateKey(), st)
}

func (e *Engine) getRecord(lender crypto.Address) (Record, bool, error) {
	var rec Record
	ok, err := e.state.KVGet(nhstate.CDPKey(lender.Bytes()), &rec)
	if err != nil || !ok {
		return Record{}, false, err
	}
	rec.Collateral = nonNil(rec.Collateral)
	rec.Debt = nonNil(rec.Debt)
	rec.Interest.Amount = nonNil(rec.Interest.Amount)
	rec.Interest.Paid = nonNil(rec.Interest.Paid)
	return rec, true, nil
}

func (e *Engine) putRecord(lender crypto.Address, rec Record) error {
	return e.state.KVPut(nhstate.CDPKey(lender.Bytes()), rec)
}

func (e *Engine) deleteRecord(lender crypto.Address) error {
	return e.state.KVDelete(nhstate.CDPKey(lender.Bytes()))
}

func (e *Engine) getStaker(addr crypto.Address) (StakerPosition, bool, error) {
	var pos StakerPosition
	ok, err := e.state.KVGet(nhstate.StakerKey(addr.Bytes()), &pos)
	if err != nil || !ok {
		return StakerPosition{}, false, err
	}
	pos.Deposit = nonNil(pos.Deposit)
	pos.ProductSnapshot = nonNil(pos.ProductSnapshot)
	pos.CompoundedSnapshot = nonNil(pos.CompoundedSnapshot)
	return pos, true, nil
}

func (e *Engine) putStaker(addr crypto.Address, pos StakerPosition) error {
	return e.state.KVPut(nhstate.StakerKey(addr.Bytes()), pos)
}

func (e *Engine) deleteStaker(addr crypto.Address) error {
	return e.state.KVDelete(nhstate.StakerKey(addr.Bytes()))
}

// archivedCompounded returns S as it stood when epoch closed.
func (e *Engine) archivedCompounded(epoch uint64) (*big.Int, error) {
	value := new(big.Int)
	if _, err := e.state.KVGet(nhstate.EpochCompoundedKey(epoch), value); err != nil {
		return nil, err
	}
	return value, nil
}

func (e *Engine) archiveCompounded(epoch uint64, value *big.Int) error {
	return e.state.KVPut(nhstate.EpochCompoundedKey(epoch), value)
}

// InterestRecord returns the collateral collected as interest during epoch.
func (e *Engine) InterestRecord(epoch uint64) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	value := new(big.Int)
	if _, err := e.state.KVGet(nhstate.EpochInterestKey(epoch), value); err != nil {
		return nil, err
	}
	return value, nil
}

func (e *Engine) addEpochInterest(epoch uint64, amount *big.Int) error {
	current, err := e.InterestRecord(epoch)
	if err != nil {
		return err
	}
	return e.state.KVPut(nhstate.EpochInterestKey(epoch), current.Add(current, amount))
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
