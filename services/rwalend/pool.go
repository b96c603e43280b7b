package rwalend

import (
	"context"
	"math/big"

	"rwalend/crypto"
	"rwalend/native/cdp"
)

func (s *Service) Stake(ctx context.Context, staker crypto.Address, amount *big.Int) (cdp.StakerPosition, error) {
	var pos cdp.StakerPosition
	err := s.execute(ctx, "stake", []crypto.Address{staker}, func(c *call) error {
		var err error
		pos, err = c.engine.Stake(staker, amount)
		return err
	})
	return pos, err
}

func (s *Service) Deposit(ctx context.Context, staker crypto.Address, amount *big.Int) (cdp.StakerPosition, error) {
	var pos cdp.StakerPosition
	err := s.execute(ctx, "deposit", []crypto.Address{staker}, func(c *call) error {
		var err error
		pos, err = c.engine.Deposit(staker, amount)
		return err
	})
	return pos, err
}

func (s *Service) Withdraw(ctx context.Context, staker crypto.Address, amount *big.Int) error {
	return s.execute(ctx, "withdraw", []crypto.Address{staker}, func(c *call) error {
		return c.engine.Withdraw(staker, amount)
	})
}

func (s *Service) Unstake(ctx context.Context, staker crypto.Address) error {
	return s.execute(ctx, "unstake", []crypto.Address{staker}, func(c *call) error {
		return c.engine.Unstake(staker)
	})
}

func (s *Service) ClaimRewards(ctx context.Context, staker crypto.Address) (*big.Int, error) {
	var reward *big.Int
	err := s.execute(ctx, "claim_rewards", []crypto.Address{staker}, func(c *call) error {
		var err error
		reward, err = c.engine.ClaimRewards(staker)
		return err
	})
	return reward, err
}

func (s *Service) StakerPosition(ctx context.Context, staker crypto.Address) (cdp.StakerPosition, error) {
	var pos cdp.StakerPosition
	err := s.view(ctx, func(c *call) error {
		var err error
		pos, err = c.engine.Position(staker)
		return err
	})
	return pos, err
}

func (s *Service) StakerDeposit(ctx context.Context, staker crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.engine.StakerDeposit(staker)
		return err
	})
	return out, err
}

func (s *Service) AvailableAssets(ctx context.Context, staker crypto.Address) (cdp.AvailableAssets, error) {
	var out cdp.AvailableAssets
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.engine.AvailableAssets(staker)
		return err
	})
	return out, err
}

func (s *Service) Constants(ctx context.Context) (cdp.Constants, error) {
	var out cdp.Constants
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.engine.Constants()
		return err
	})
	return out, err
}

func (s *Service) TotalCollateral(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.engine.TotalCollateral()
		return err
	})
	return out, err
}
