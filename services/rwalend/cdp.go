package rwalend

import (
	"context"
	"math/big"

	"rwalend/crypto"
	"rwalend/native/cdp"
	"rwalend/native/common"
)

func (s *Service) OpenCDP(ctx context.Context, lender crypto.Address, collateral, debt *big.Int) (cdp.Position, error) {
	var pos cdp.Position
	err := s.execute(ctx, "open_cdp", []crypto.Address{lender}, func(c *call) error {
		if err := s.consumeQuota(c, common.ModuleCDP, lender, debt); err != nil {
			return err
		}
		var err error
		pos, err = c.engine.OpenCDP(lender, collateral, debt)
		return err
	})
	return pos, err
}

func (s *Service) CDP(ctx context.Context, lender crypto.Address) (cdp.Position, error) {
	var pos cdp.Position
	err := s.view(ctx, func(c *call) error {
		var err error
		pos, err = c.engine.CDP(lender)
		return err
	})
	return pos, err
}

// FreezeCDP may be invoked by any caller; caller only labels the call.
func (s *Service) FreezeCDP(ctx context.Context, caller, lender crypto.Address) (cdp.Position, error) {
	var pos cdp.Position
	err := s.execute(ctx, "freeze_cdp", []crypto.Address{caller}, func(c *call) error {
		var err error
		pos, err = c.engine.FreezeCDP(lender)
		return err
	})
	return pos, err
}

func (s *Service) AddCollateral(ctx context.Context, lender crypto.Address, amount *big.Int) (cdp.Position, error) {
	return s.positionOp(ctx, "add_collateral", lender, func(c *call) (cdp.Position, error) {
		return c.engine.AddCollateral(lender, amount)
	})
}

func (s *Service) WithdrawCollateral(ctx context.Context, lender crypto.Address, amount *big.Int) (cdp.Position, error) {
	return s.positionOp(ctx, "withdraw_collateral", lender, func(c *call) (cdp.Position, error) {
		return c.engine.WithdrawCollateral(lender, amount)
	})
}

func (s *Service) BorrowRWA(ctx context.Context, lender crypto.Address, amount *big.Int) (cdp.Position, error) {
	return s.positionOp(ctx, "borrow_rwa", lender, func(c *call) (cdp.Position, error) {
		if err := s.consumeQuota(c, common.ModuleCDP, lender, amount); err != nil {
			return cdp.Position{}, err
		}
		return c.engine.BorrowRWA(lender, amount)
	})
}

func (s *Service) RepayDebt(ctx context.Context, lender crypto.Address, amount *big.Int) (cdp.Position, error) {
	return s.positionOp(ctx, "repay_debt", lender, func(c *call) (cdp.Position, error) {
		return c.engine.RepayDebt(lender, amount)
	})
}

func (s *Service) PayInterest(ctx context.Context, lender crypto.Address, amount *big.Int) (cdp.Position, error) {
	return s.positionOp(ctx, "pay_interest", lender, func(c *call) (cdp.Position, error) {
		return c.engine.PayInterest(lender, amount)
	})
}

func (s *Service) positionOp(ctx context.Context, op string, lender crypto.Address, fn func(*call) (cdp.Position, error)) (cdp.Position, error) {
	var pos cdp.Position
	err := s.execute(ctx, op, []crypto.Address{lender}, func(c *call) error {
		var err error
		pos, err = fn(c)
		return err
	})
	return pos, err
}

func (s *Service) AccruedInterest(ctx context.Context, lender crypto.Address) (cdp.InterestDetail, error) {
	var detail cdp.InterestDetail
	err := s.view(ctx, func(c *call) error {
		var err error
		detail, err = c.engine.AccruedInterest(lender)
		return err
	})
	return detail, err
}

func (s *Service) MergeCDPs(ctx context.Context, caller crypto.Address, lenders []crypto.Address) (cdp.Record, error) {
	var rec cdp.Record
	err := s.execute(ctx, "merge_cdps", []crypto.Address{caller}, func(c *call) error {
		var err error
		rec, err = c.engine.MergeCDPs(lenders)
		return err
	})
	return rec, err
}

func (s *Service) CloseCDP(ctx context.Context, caller, lender crypto.Address) error {
	return s.execute(ctx, "close_cdp", []crypto.Address{caller}, func(c *call) error {
		return c.engine.CloseCDP(lender)
	})
}

func (s *Service) Liquidate(ctx context.Context, caller, lender crypto.Address) (cdp.LiquidationResult, error) {
	var res cdp.LiquidationResult
	err := s.execute(ctx, "liquidate", []crypto.Address{caller}, func(c *call) error {
		var err error
		res, err = c.engine.Liquidate(lender)
		return err
	})
	if err == nil {
		s.metrics.RecordLiquidation(res.Status.String())
	}
	return res, err
}
