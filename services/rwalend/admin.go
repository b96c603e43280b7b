package rwalend

import (
	"context"
	"math/big"

	"rwalend/crypto"
	"rwalend/native/cdp"
	"rwalend/native/common"
	"rwalend/native/oracle"
)

// priceWriter is implemented by admin-fed feeds such as oracle.Feed.
type priceWriter interface {
	SetAssetPrice(auth common.Authorizer, asset string, price *big.Int, timestamp uint64) error
	AddAssets(auth common.Authorizer, assets []string) error
}

func (s *Service) SetMinCollateralRatio(ctx context.Context, ratio uint32) (uint32, error) {
	var out uint32
	err := s.admin(ctx, "set_min_collateral_ratio", func(c *call) error {
		var err error
		out, err = c.engine.SetMinCollateralRatio(ratio)
		return err
	})
	return out, err
}

func (s *Service) SetInterestRate(ctx context.Context, rateBps uint32) (uint32, error) {
	var out uint32
	err := s.admin(ctx, "set_interest_rate", func(c *call) error {
		var err error
		out, err = c.engine.SetInterestRate(rateBps)
		return err
	})
	return out, err
}

func (s *Service) SetCollateralOracle(ctx context.Context, ref string) error {
	return s.admin(ctx, "set_collateral_oracle", func(c *call) error {
		return c.engine.SetCollateralOracle(ref)
	})
}

func (s *Service) SetAssetOracle(ctx context.Context, ref string) error {
	return s.admin(ctx, "set_asset_oracle", func(c *call) error {
		return c.engine.SetAssetOracle(ref)
	})
}

func (s *Service) SetPeggedAsset(ctx context.Context, asset string) error {
	return s.admin(ctx, "set_pegged_asset", func(c *call) error {
		return c.engine.SetPeggedAsset(asset)
	})
}

func (s *Service) SetNativeAsset(ctx context.Context, asset string) error {
	return s.admin(ctx, "set_native_asset", func(c *call) error {
		return c.engine.SetNativeAsset(asset)
	})
}

func (s *Service) SetPaused(ctx context.Context, module string, paused bool) error {
	return s.admin(ctx, "set_paused", func(c *call) error {
		return c.engine.SetPaused(module, paused)
	})
}

func (s *Service) Upgrade(ctx context.Context, codeHash [32]byte) error {
	return s.admin(ctx, "upgrade", func(c *call) error {
		return c.engine.Upgrade(codeHash)
	})
}

func (s *Service) SetTokenAuthorized(ctx context.Context, holder crypto.Address, authorized bool) error {
	return s.admin(ctx, "token_set_authorized", func(c *call) error {
		return c.token.SetAuthorized(holder, authorized)
	})
}

func (s *Service) Clawback(ctx context.Context, from crypto.Address, amount *big.Int) error {
	return s.admin(ctx, "token_clawback", func(c *call) error {
		return c.token.Clawback(from, amount)
	})
}

// Faucet credits collateral to holder. It exists for operator-run test
// deployments and is admin only.
func (s *Service) Faucet(ctx context.Context, holder crypto.Address, amount *big.Int) error {
	return s.admin(ctx, "faucet", func(c *call) error {
		return c.native.Credit(holder, amount)
	})
}

// Protocol returns the stored protocol state.
func (s *Service) Protocol(ctx context.Context) (*cdp.ProtocolState, error) {
	var out *cdp.ProtocolState
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.protocol()
		return err
	})
	return out, err
}

func (s *Service) InterestRecord(ctx context.Context, epoch uint64) (*big.Int, error) {
	var out *big.Int
	err := s.view(ctx, func(c *call) error {
		var err error
		out, err = c.engine.InterestRecord(epoch)
		return err
	})
	return out, err
}

func (s *Service) Version() string { return cdp.Version }

// SetPrice records an observation on the feed registered as ref. The
// protocol admin signs for the feed.
func (s *Service) SetPrice(ctx context.Context, ref, asset string, price *big.Int, timestamp uint64) error {
	return s.feedAdmin(ctx, ref, func(w priceWriter, auth common.Authorizer) error {
		return w.SetAssetPrice(auth, asset, price, timestamp)
	})
}

// AddOracleAssets starts tracking assets on the feed registered as ref.
func (s *Service) AddOracleAssets(ctx context.Context, ref string, assets []string) error {
	return s.feedAdmin(ctx, ref, func(w priceWriter, auth common.Authorizer) error {
		return w.AddAssets(auth, assets)
	})
}

func (s *Service) feedAdmin(ctx context.Context, ref string, fn func(priceWriter, common.Authorizer) error) error {
	st, err := s.Protocol(ctx)
	if err != nil {
		return err
	}
	feed, err := s.oracles.Resolve(ref)
	if err != nil {
		return err
	}
	writer, ok := feed.(priceWriter)
	if !ok {
		return errNotFeed
	}
	start := s.clock()
	err = fn(writer, signers{st.Admin})
	s.observe("oracle_update", []crypto.Address{st.Admin}, start, err)
	return err
}

// LastPrice returns the newest observation of asset on feed ref.
func (s *Service) LastPrice(ref, asset string) (oracle.PriceData, error) {
	feed, err := s.oracles.Resolve(ref)
	if err != nil {
		return oracle.PriceData{}, err
	}
	return feed.LastPrice(asset)
}

type priceHistory interface {
	Prices(asset string, records uint32) ([]oracle.PriceData, error)
}

// Prices returns up to records observations of asset on feed ref, newest
// first.
func (s *Service) Prices(ref, asset string, records uint32) ([]oracle.PriceData, error) {
	feed, err := s.oracles.Resolve(ref)
	if err != nil {
		return nil, err
	}
	history, ok := feed.(priceHistory)
	if !ok {
		return nil, errNotFeed
	}
	return history.Prices(asset, records)
}
