package rwalend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	rwaerrors "rwalend/core/errors"
	"rwalend/core/events"
	"rwalend/core/state"
	"rwalend/crypto"
	"rwalend/native/bank"
	"rwalend/native/cdp"
	"rwalend/native/common"
	"rwalend/native/oracle"
	"rwalend/native/token"
	"rwalend/observability/metrics"
	"rwalend/storage"
)

// ModuleName is the name the module account is derived from.
const ModuleName = "rwalend"

var (
	errNilDatabase   = errors.New("rwalend: database required")
	errNilOracles    = errors.New("rwalend: oracle registry required")
	errNotFeed       = errors.New("rwalend: oracle does not accept price updates")
	errQuotaExceeded = errors.New("rwalend: quota exceeded")
)

// Options configure a Service. Zero values fall back to usable defaults.
type Options struct {
	Module      crypto.Address
	NativeAsset string
	Oracles     *oracle.Registry
	Emitter     events.Emitter
	Logger      *slog.Logger
	Metrics     *metrics.ProtocolMetrics
	Quota       common.Quota
	Clock       func() time.Time
}

// Service runs protocol operations one at a time, each inside its own state
// journal. Events of a call reach the emitter only after the journal commits.
type Service struct {
	mu          sync.Mutex
	state       *state.Manager
	module      crypto.Address
	nativeAsset string
	oracles     *oracle.Registry
	emitter     events.Emitter
	logger      *slog.Logger
	metrics     *metrics.ProtocolMetrics
	quota       common.Quota
	clock       func() time.Time
}

func New(db storage.Database, opts Options) (*Service, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if opts.Oracles == nil {
		return nil, errNilOracles
	}
	s := &Service{
		state:       state.NewManager(db),
		module:      opts.Module,
		nativeAsset: opts.NativeAsset,
		oracles:     opts.Oracles,
		emitter:     opts.Emitter,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		quota:       opts.Quota,
		clock:       opts.Clock,
	}
	if err := state.EnsureStateVersion(s.state); err != nil {
		return nil, err
	}
	if s.module.IsZero() {
		s.module = crypto.ModuleAddress(ModuleName)
	}
	if s.nativeAsset == "" {
		s.nativeAsset = cdp.DefaultParams().NativeAsset
	}
	if s.emitter == nil {
		s.emitter = events.NoopEmitter{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s, nil
}

// ModuleAddress returns the account holding pooled collateral and stake.
func (s *Service) ModuleAddress() crypto.Address { return s.module }

// Oracles exposes the feed registry.
func (s *Service) Oracles() *oracle.Registry { return s.oracles }

// signers authorizes exactly the listed accounts for one call.
type signers []crypto.Address

func (s signers) RequireAuth(addr crypto.Address) error {
	for _, signer := range s {
		if !signer.IsZero() && signer.Equal(addr) {
			return nil
		}
	}
	return rwaerrors.ErrUnauthorized
}

// call bundles the modules wired to one journal.
type call struct {
	journal *state.Journal
	engine  *cdp.Engine
	token   *token.Ledger
	native  *bank.Ledger
	auth    signers
	height  uint64
	now     uint64
}

func (c *call) protocol() (*cdp.ProtocolState, error) { return c.engine.Protocol() }

func (s *Service) newCall(journal *state.Journal, emitter events.Emitter, auth signers, height uint64) *call {
	now := uint64(s.clock().Unix())

	tok := token.NewLedger()
	tok.SetState(journal)
	tok.SetAuthorizer(auth)
	tok.SetEmitter(emitter)
	tok.SetBlockHeight(height)

	engine := cdp.NewEngine(s.module)
	engine.SetState(journal)
	engine.SetToken(tok)
	engine.SetOracles(s.oracles)
	engine.SetAuthorizer(auth)
	engine.SetEmitter(emitter)
	engine.SetBlockTime(now)
	engine.SetBlockHeight(height)

	asset := s.nativeAsset
	if st, err := engine.Protocol(); err == nil && st.NativeAsset != "" {
		asset = st.NativeAsset
	}
	native := bank.NewLedger(asset)
	native.SetState(journal)
	native.SetAuthorizer(auth)
	native.SetBlockHeight(height)
	engine.SetNative(native)

	return &call{journal: journal, engine: engine, token: tok, native: native, auth: auth, height: height, now: now}
}

// execute runs fn as one transaction authorized for principals and the
// module account.
func (s *Service) execute(ctx context.Context, op string, principals []crypto.Address, fn func(*call) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.clock()
	journal := s.state.Begin()
	height, err := journal.AdvanceHeight()
	if err != nil {
		journal.Discard()
		return err
	}
	buf := &events.Buffer{}
	c := s.newCall(journal, buf, append(signers{s.module}, principals...), height)

	err = fn(c)
	var st *cdp.ProtocolState
	if err == nil {
		st, _ = c.protocol()
		err = journal.Commit()
	}
	if err != nil {
		journal.Discard()
		buf.Reset()
		s.observe(op, principals, start, err)
		return err
	}
	buf.Flush(s.emitter)
	if st != nil {
		s.metrics.SetPool(st.TotalRWA, st.TotalCollateral, st.InterestCollected, st.Product, st.Epoch)
	}
	s.observe(op, principals, start, nil)
	return nil
}

// view runs fn against a read-only journal that is always discarded.
func (s *Service) view(ctx context.Context, fn func(*call) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	journal := s.state.Begin()
	defer journal.Discard()
	height, err := journal.Height()
	if err != nil {
		return err
	}
	return fn(s.newCall(journal, events.NoopEmitter{}, signers{}, height))
}

// admin runs fn authorized as the protocol admin recorded at genesis.
func (s *Service) admin(ctx context.Context, op string, fn func(*call) error) error {
	var admin crypto.Address
	if err := s.view(ctx, func(c *call) error {
		st, err := c.protocol()
		if err != nil {
			return err
		}
		admin = st.Admin
		return nil
	}); err != nil {
		return err
	}
	return s.execute(ctx, op, []crypto.Address{admin}, fn)
}

func (s *Service) observe(op string, principals []crypto.Address, start time.Time, err error) {
	elapsed := s.clock().Sub(start)
	attrs := []any{slog.String("op", op), slog.Duration("elapsed", elapsed)}
	if len(principals) > 0 {
		attrs = append(attrs, slog.String("principal", principals[0].String()))
	}
	if err == nil {
		s.metrics.ObserveCall(op, "ok", elapsed)
		s.logger.Debug("rwalend call", attrs...)
		return
	}
	result := ErrorName(err)
	s.metrics.ObserveCall(op, result, elapsed)
	attrs = append(attrs, slog.String("code", result), slog.String("error", err.Error()))
	if _, coded := rwaerrors.CodeOf(err); coded {
		s.logger.Info("rwalend call rejected", attrs...)
		return
	}
	s.logger.Warn("rwalend call failed", attrs...)
}

// ErrorName is the stable label used for err in logs and metrics.
func ErrorName(err error) string {
	if code, ok := rwaerrors.CodeOf(err); ok {
		if perr, found := rwaerrors.Lookup(code); found {
			return perr.Name
		}
	}
	switch {
	case errors.Is(err, rwaerrors.ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, common.ErrModulePaused):
		return "ModulePaused"
	case errors.Is(err, errQuotaExceeded):
		return "QuotaExceeded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	}
	return "Internal"
}

// consumeQuota charges one request and volume of synthetic issuance to
// principal's quota window for module.
func (s *Service) consumeQuota(c *call, module string, principal crypto.Address, volume *big.Int) error {
	if s.quota == (common.Quota{}) {
		return nil
	}
	var add uint64
	if volume != nil && volume.Sign() > 0 {
		if !volume.IsUint64() {
			return fmt.Errorf("%w: %v", errQuotaExceeded, common.ErrQuotaVolumeExceeded)
		}
		add = volume.Uint64()
	}
	key := state.QuotaKey(module, principal.Bytes())
	var usage common.QuotaUsage
	if _, err := c.journal.KVGet(key, &usage); err != nil {
		return err
	}
	next, err := common.CheckQuota(s.quota, s.quota.WindowAt(c.now), usage, 1, add)
	if err != nil {
		return fmt.Errorf("%w: %v", errQuotaExceeded, err)
	}
	return c.journal.KVPut(key, next)
}

// Genesis initialises the synthetic token and protocol state in one commit.
func (s *Service) Genesis(ctx context.Context, params cdp.Params, meta token.Metadata) (*cdp.ProtocolState, error) {
	var out *cdp.ProtocolState
	err := s.execute(ctx, "genesis", []crypto.Address{params.Admin}, func(c *call) error {
		if err := c.token.Initialize(params.Admin, meta); err != nil {
			return err
		}
		st, err := c.engine.Initialize(params)
		out = st
		return err
	})
	return out, err
}

// Initialized reports whether Genesis has run.
func (s *Service) Initialized(ctx context.Context) (bool, error) {
	var ok bool
	err := s.view(ctx, func(c *call) error {
		_, err := c.protocol()
		ok = err == nil
		return nil
	})
	return ok, err
}

// Height returns the committed ledger height.
func (s *Service) Height() (uint64, error) { return s.state.Height() }
