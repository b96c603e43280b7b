package audit

import (
	"context"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rwalend/core/events"
	"rwalend/crypto"
)

func setupAuditDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	return db
}

func lender(b byte) crypto.Address {
	raw := make([]byte, 20)
	raw[19] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func TestSinkPersistsEvents(t *testing.T) {
	sink, err := NewSink(setupAuditDB(t), nil)
	require.NoError(t, err)
	base := time.Unix(1_700_000_000, 0)
	tick := 0
	sink.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	alice, bob := lender(1), lender(2)
	sink.Emit(events.CDPUpdated{Lender: alice, Collateral: big.NewInt(1_700_000_000), Debt: big.NewInt(100_000_000), Status: "Open", Height: 3})
	sink.Emit(events.CDPUpdated{Lender: bob, Collateral: big.NewInt(1), Debt: big.NewInt(1), Status: "Open", Height: 4})
	sink.Emit(events.TokenMinted{Symbol: "xUSD", To: alice, Amount: big.NewInt(100_000_000)})
	sink.Emit(nil)

	ctx := context.Background()
	all, err := sink.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, events.TypeTokenMinted, all[0].Type)

	mine, err := sink.Recent(ctx, Query{Type: events.TypeCDPUpdated, Subject: alice.String()})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "3", mine[0].Height)

	attrs, err := mine[0].Decode()
	require.NoError(t, err)
	require.Equal(t, "1700000000", attrs["collateral"])
	require.Equal(t, "Open", attrs["status"])
}

func TestOpenRejectsUnknownDSN(t *testing.T) {
	_, err := Open("mysql://localhost/audit")
	require.Error(t, err)

	db, err := Open("sqlite:file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	_, err = NewSink(db, nil)
	require.NoError(t, err)
}

func TestNewSinkRequiresDB(t *testing.T) {
	_, err := NewSink(nil, nil)
	require.ErrorIs(t, err, errNilDB)
}
