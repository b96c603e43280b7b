package rwalend

import (
	"context"
	"math/big"

	"rwalend/crypto"
	"rwalend/native/common"
	"rwalend/native/token"
)

// tokenOp runs a synthetic token mutation, honouring the token pause flag.
func (s *Service) tokenOp(ctx context.Context, op string, principal crypto.Address, fn func(*call) error) error {
	return s.execute(ctx, op, []crypto.Address{principal}, func(c *call) error {
		st, err := c.protocol()
		if err != nil {
			return err
		}
		if err := common.Guard(st, common.ModuleToken); err != nil {
			return err
		}
		return fn(c)
	})
}

func (s *Service) Transfer(ctx context.Context, from, to crypto.Address, amount *big.Int) error {
	return s.tokenOp(ctx, "token_transfer", from, func(c *call) error {
		return c.token.Transfer(from, to, amount)
	})
}

func (s *Service) TransferFrom(ctx context.Context, spender, from, to crypto.Address, amount *big.Int) error {
	return s.tokenOp(ctx, "token_transfer_from", spender, func(c *call) error {
		return c.token.TransferFrom(spender, from, to, amount)
	})
}

func (s *Service) Approve(ctx context.Context, owner, spender crypto.Address, amount *big.Int, liveUntil uint64) error {
	return s.tokenOp(ctx, "token_approve", owner, func(c *call) error {
		return c.token.Approve(owner, spender, amount, liveUntil)
	})
}

func (s *Service) IncreaseAllowance(ctx context.Context, owner, spender crypto.Address, amount *big.Int) error {
	return s.tokenOp(ctx, "token_increase_allowance", owner, func(c *call) error {
		return c.token.IncreaseAllowance(owner, spender, amount)
	})
}

func (s *Service) DecreaseAllowance(ctx context.Context, owner, spender crypto.Address, amount *big.Int) error {
	return s.tokenOp(ctx, "token_decrease_allowance", owner, func(c *call) error {
		return c.token.DecreaseAllowance(owner, spender, amount)
	})
}

func (s *Service) Burn(ctx context.Context, from crypto.Address, amount *big.Int) error {
	return s.tokenOp(ctx, "token_burn", from, func(c *call) error {
		return c.token.Burn(from, amount)
	})
}

func (s *Service) BurnFrom(ctx context.Context, spender, from crypto.Address, amount *big.Int) error {
	return s.tokenOp(ctx, "token_burn_from", spender, func(c *call) error {
		return c.token.BurnFrom(spender, from, amount)
	})
}

func (s *Service) TokenBalance(ctx context.Context, holder crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.token.Balance(holder)
		return err
	})
	return out, err
}

func (s *Service) Allowance(ctx context.Context, owner, spender crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.token.Allowance(owner, spender)
		return err
	})
	return out, err
}

func (s *Service) TokenMetadata(ctx context.Context) (token.Metadata, error) {
	var out token.Metadata
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.token.Metadata()
		return err
	})
	return out, err
}

func (s *Service) TokenAuthorized(ctx context.Context, holder crypto.Address) (bool, error) {
	var out bool
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.token.Authorized(holder)
		return err
	})
	return out, err
}

// NativeBalance returns holder's collateral balance.
func (s *Service) NativeBalance(ctx context.Context, holder crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.native.Balance(holder)
		return err
	})
	return out, err
}

// ApproveInterest lets the module pull up to amount of owner's collateral
// for interest settlement until liveUntil.
func (s *Service) ApproveInterest(ctx context.Context, owner crypto.Address, amount *big.Int, liveUntil uint64) error {
	return s.execute(ctx, "approve_interest", []crypto.Address{owner}, func(c *call) error {
		return c.native.Approve(owner, s.module, amount, liveUntil)
	})
}

// NativeTransfer moves collateral between accounts.
func (s *Service) NativeTransfer(ctx context.Context, from, to crypto.Address, amount *big.Int) error {
	return s.execute(ctx, "native_transfer", []crypto.Address{from}, func(c *call) error {
		return c.native.Transfer(from, to, amount)
	})
}
