package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"rwalend/core/state"
	"rwalend/crypto"
	"rwalend/native/common"
	"rwalend/storage"
)

func makeAddress(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger := NewLedger("xlm")
	ledger.SetState(state.NewManager(storage.NewMemDB()).Begin())
	ledger.SetAuthorizer(common.AllowAll{})
	return ledger
}

func TestTransferMovesFunds(t *testing.T) {
	ledger := newLedger(t)
	alice, bob := makeAddress(1), makeAddress(2)
	require.Equal(t, "XLM", ledger.Asset())
	require.NoError(t, ledger.Credit(alice, big.NewInt(100)))

	require.NoError(t, ledger.Transfer(alice, bob, big.NewInt(60)))
	err := ledger.Transfer(alice, bob, big.NewInt(41))
	require.True(t, errors.Is(err, ErrInsufficientFunds))

	bal, err := ledger.Balance(bob)
	require.NoError(t, err)
	require.Equal(t, int64(60), bal.Int64())
	bal, err = ledger.Balance(alice)
	require.NoError(t, err)
	require.Equal(t, int64(40), bal.Int64())
}

func TestTransferFromRespectsAllowance(t *testing.T) {
	ledger := newLedger(t)
	owner, spender := makeAddress(1), makeAddress(2)
	require.NoError(t, ledger.Credit(owner, big.NewInt(100)))
	ledger.SetBlockHeight(5)

	require.ErrorIs(t, ledger.Approve(owner, spender, big.NewInt(50), 4), ErrExpiredAllowance)
	require.NoError(t, ledger.Approve(owner, spender, big.NewInt(50), 6))

	require.ErrorIs(t, ledger.TransferFrom(spender, owner, spender, big.NewInt(51)), ErrInsufficientAllowance)
	require.NoError(t, ledger.TransferFrom(spender, owner, spender, big.NewInt(20)))

	remaining, err := ledger.Allowance(owner, spender)
	require.NoError(t, err)
	require.Equal(t, int64(30), remaining.Int64())

	ledger.SetBlockHeight(7)
	require.ErrorIs(t, ledger.TransferFrom(spender, owner, spender, big.NewInt(1)), ErrInsufficientAllowance)
}
