package events

import (
	"math/big"

	"rwalend/core/types"
	"rwalend/crypto"
)

const (
	TypeTokenMinted = "token.minted"
	TypeTokenBurned = "token.burned"
)

type TokenMinted struct {
	Symbol string
	To     crypto.Address
	Amount *big.Int
}

func (TokenMinted) EventType() string { return TypeTokenMinted }

func (e TokenMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenMinted,
		Attributes: map[string]string{
			"symbol": normalizeAsset(e.Symbol),
			"to":     addressString(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

type TokenBurned struct {
	Symbol string
	From   crypto.Address
	Amount *big.Int
}

func (TokenBurned) EventType() string { return TypeTokenBurned }

func (e TokenBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenBurned,
		Attributes: map[string]string{
			"symbol": normalizeAsset(e.Symbol),
			"from":   addressString(e.From),
			"amount": formatAmount(e.Amount),
		},
	}
}
