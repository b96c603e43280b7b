package cdp

import (
	"errors"
	"math/big"
	"sort"
	"strings"

	"rwalend/native/common"
)

var errEmptyReference = errors.New("cdp admin: reference must not be empty")

// adminUpdate loads the protocol state, checks the admin signed the call and
// persists st after mutate succeeds.
func (e *Engine) adminUpdate(mutate func(st *ProtocolState) error) (*ProtocolState, error) {
	st, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	if err := e.requireAuth(st.Admin); err != nil {
		return nil, err
	}
	if err := mutate(st); err != nil {
		return nil, err
	}
	if err := e.storeProtocol(st); err != nil {
		return nil, err
	}
	return st, nil
}

func trimmed(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errEmptyReference
	}
	return ref, nil
}

// SetCollateralOracle points the engine at a different collateral feed.
func (e *Engine) SetCollateralOracle(ref string) error {
	_, err := e.adminUpdate(func(st *ProtocolState) error {
		v, err := trimmed(ref)
		st.CollateralOracle = v
		return err
	})
	return err
}

// SetAssetOracle points the engine at a different pegged asset feed.
func (e *Engine) SetAssetOracle(ref string) error {
	_, err := e.adminUpdate(func(st *ProtocolState) error {
		v, err := trimmed(ref)
		st.AssetOracle = v
		return err
	})
	return err
}

// SetNativeAsset changes the ledger asset collateral moves through.
func (e *Engine) SetNativeAsset(asset string) error {
	_, err := e.adminUpdate(func(st *ProtocolState) error {
		v, err := trimmed(asset)
		st.NativeAsset = strings.ToUpper(v)
		return err
	})
	return err
}

// SetPeggedAsset changes the symbol priced on the asset feed.
func (e *Engine) SetPeggedAsset(asset string) error {
	_, err := e.adminUpdate(func(st *ProtocolState) error {
		v, err := trimmed(asset)
		st.PeggedAsset = strings.ToUpper(v)
		return err
	})
	return err
}

func (e *Engine) SetMinCollateralRatio(ratio uint32) (uint32, error) {
	_, err := e.adminUpdate(func(st *ProtocolState) error {
		st.MinCollateralRatio = ratio
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ratio, nil
}

// SetInterestRate sets the annual rate in basis points. Positions accrue at
// the new rate from their next touch.
func (e *Engine) SetInterestRate(rateBps uint32) (uint32, error) {
	_, err := e.adminUpdate(func(st *ProtocolState) error {
		st.InterestRateBps = rateBps
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rateBps, nil
}

func (e *Engine) InterestRate() (uint32, error) {
	st, err := e.loadProtocol()
	if err != nil {
		return 0, err
	}
	return st.InterestRateBps, nil
}

func (e *Engine) MinCollateralRatio() (uint32, error) {
	st, err := e.loadProtocol()
	if err != nil {
		return 0, err
	}
	return st.MinCollateralRatio, nil
}

// TotalInterestCollected is the collateral collected as interest since genesis.
func (e *Engine) TotalInterestCollected() (*big.Int, error) {
	st, err := e.loadProtocol()
	if err != nil {
		return nil, err
	}
	return st.InterestCollected, nil
}

// Upgrade records the hash of the code the deployment runs.
func (e *Engine) Upgrade(codeHash [32]byte) error {
	_, err := e.adminUpdate(func(st *ProtocolState) error {
		st.CodeHash = codeHash
		return nil
	})
	return err
}

func (e *Engine) Version() string { return Version }

// SetPaused toggles the pause flag of module.
func (e *Engine) SetPaused(module string, paused bool) error {
	module = strings.ToLower(strings.TrimSpace(module))
	switch module {
	case common.ModuleCDP, common.ModulePool, common.ModuleToken:
	default:
		return errors.New("cdp admin: unknown module " + module)
	}
	_, err := e.adminUpdate(func(st *ProtocolState) error {
		set := make(map[string]struct{}, len(st.PausedModules)+1)
		for _, m := range st.PausedModules {
			set[m] = struct{}{}
		}
		if paused {
			set[module] = struct{}{}
		} else {
			delete(set, module)
		}
		st.PausedModules = st.PausedModules[:0]
		for m := range set {
			st.PausedModules = append(st.PausedModules, m)
		}
		sort.Strings(st.PausedModules)
		return nil
	})
	return err
}
