package routes

import (
	"context"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rwalend/crypto"
	"rwalend/native/cdp"
)

type stakerView struct {
	Deposit            string `json:"deposit"`
	ProductSnapshot    string `json:"productSnapshot"`
	CompoundedSnapshot string `json:"compoundedSnapshot"`
	Epoch              uint64 `json:"epoch"`
}

func newStakerView(p cdp.StakerPosition) stakerView {
	return stakerView{
		Deposit:            amountString(p.Deposit),
		ProductSnapshot:    amountString(p.ProductSnapshot),
		CompoundedSnapshot: amountString(p.CompoundedSnapshot),
		Epoch:              p.Epoch,
	}
}

func (h *handlers) mountPool(r chi.Router, signed func(http.Handler) http.Handler) {
	r.Get("/constants", h.poolConstants)
	r.Get("/collateral", h.poolCollateral)
	r.Get("/stakers/{staker}", h.stakerPosition)
	r.Get("/stakers/{staker}/deposit", h.stakerDeposit)
	r.Get("/stakers/{staker}/available", h.availableAssets)
	r.Group(func(sr chi.Router) {
		sr.Use(signed)
		sr.Post("/stake", h.stake)
		sr.Post("/deposit", h.deposit)
		sr.Post("/withdraw", h.withdraw)
		sr.Post("/unstake", h.unstake)
		sr.Post("/claim", h.claimRewards)
	})
}

func (h *handlers) poolConstants(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Constants(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{
		"compounded": amountString(c.Compounded),
		"product":    amountString(c.Product),
		"epoch":      c.Epoch,
		"totalRWA":   amountString(c.TotalRWA),
	})
}

func (h *handlers) poolCollateral(w http.ResponseWriter, r *http.Request) {
	total, err := h.svc.TotalCollateral(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"totalCollateral": amountString(total)})
}

func (h *handlers) stakerPosition(w http.ResponseWriter, r *http.Request) {
	staker, err := parseAddress("staker", chi.URLParam(r, "staker"))
	if err != nil {
		writeError(w, err)
		return
	}
	pos, err := h.svc.StakerPosition(r.Context(), staker)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, newStakerView(pos))
}

func (h *handlers) stakerDeposit(w http.ResponseWriter, r *http.Request) {
	staker, err := parseAddress("staker", chi.URLParam(r, "staker"))
	if err != nil {
		writeError(w, err)
		return
	}
	deposit, err := h.svc.StakerDeposit(r.Context(), staker)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"deposit": amountString(deposit)})
}

func (h *handlers) availableAssets(w http.ResponseWriter, r *http.Request) {
	staker, err := parseAddress("staker", chi.URLParam(r, "staker"))
	if err != nil {
		writeError(w, err)
		return
	}
	assets, err := h.svc.AvailableAssets(r.Context(), staker)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"rwa": amountString(assets.RWA), "rewards": amountString(assets.Rewards)})
}

func (h *handlers) stake(w http.ResponseWriter, r *http.Request) {
	h.stakerAmount(w, r, h.svc.Stake)
}

func (h *handlers) deposit(w http.ResponseWriter, r *http.Request) {
	h.stakerAmount(w, r, h.svc.Deposit)
}

func (h *handlers) stakerAmount(w http.ResponseWriter, r *http.Request, op func(context.Context, crypto.Address, *big.Int) (cdp.StakerPosition, error)) {
	staker, ok := principal(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	pos, err := op(r.Context(), staker, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, newStakerView(pos))
}

func (h *handlers) withdraw(w http.ResponseWriter, r *http.Request) {
	staker, ok := principal(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.Withdraw(r.Context(), staker, amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) unstake(w http.ResponseWriter, r *http.Request) {
	staker, ok := principal(w, r)
	if !ok {
		return
	}
	if err := h.svc.Unstake(r.Context(), staker); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) claimRewards(w http.ResponseWriter, r *http.Request) {
	staker, ok := principal(w, r)
	if !ok {
		return
	}
	claimed, err := h.svc.ClaimRewards(r.Context(), staker)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"claimed": amountString(claimed)})
}
