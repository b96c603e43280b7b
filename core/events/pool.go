package events

import (
	"math/big"

	"rwalend/core/types"
	"rwalend/crypto"
)

const TypePoolPosition = "pool.position"

// PoolPosition describes a staker's position after a stake, deposit,
// withdrawal or claim.
type PoolPosition struct {
	Staker         crypto.Address
	Deposit        *big.Int
	Product        *big.Int
	Compounded     *big.Int
	Epoch          uint64
	RewardsClaimed *big.Int
	Height         uint64
	Timestamp      uint64
}

func (PoolPosition) EventType() string { return TypePoolPosition }

func (e PoolPosition) Event() *types.Event {
	return &types.Event{
		Type: TypePoolPosition,
		Attributes: map[string]string{
			"staker":         addressString(e.Staker),
			"deposit":        formatAmount(e.Deposit),
			"product":        formatAmount(e.Product),
			"compounded":     formatAmount(e.Compounded),
			"epoch":          uintToString(e.Epoch),
			"rewardsClaimed": formatAmount(e.RewardsClaimed),
			"height":         uintToString(e.Height),
			"timestamp":      uintToString(e.Timestamp),
		},
	}
}
