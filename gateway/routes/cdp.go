package routes

import (
	"context"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rwalend/crypto"
	"rwalend/native/cdp"
)

type interestView struct {
	Amount string `json:"amount"`
	Paid   string `json:"paid"`
}

type positionView struct {
	Lender                 string       `json:"lender"`
	Collateral             string       `json:"collateral"`
	Debt                   string       `json:"debt"`
	Status                 string       `json:"status"`
	CollateralizationRatio uint32       `json:"collateralizationRatio"`
	Interest               interestView `json:"interest"`
	LastInterestTime       uint64       `json:"lastInterestTime"`
}

func newPositionView(p cdp.Position) positionView {
	return positionView{
		Lender:                 p.Lender.String(),
		Collateral:             amountString(p.Collateral),
		Debt:                   amountString(p.Debt),
		Status:                 p.Status.String(),
		CollateralizationRatio: p.CollateralizationRatio,
		Interest:               interestView{Amount: amountString(p.Interest.Amount), Paid: amountString(p.Interest.Paid)},
		LastInterestTime:       p.LastInterestTime,
	}
}

type recordView struct {
	Collateral       string       `json:"collateral"`
	Debt             string       `json:"debt"`
	Status           string       `json:"status"`
	Interest         interestView `json:"interest"`
	LastInterestTime uint64       `json:"lastInterestTime"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type openRequest struct {
	Collateral string `json:"collateral"`
	Debt       string `json:"debt"`
}

type lenderRequest struct {
	Lender string `json:"lender"`
}

type mergeRequest struct {
	Lenders []string `json:"lenders"`
}

func (h *handlers) mountCDP(r chi.Router, signed func(http.Handler) http.Handler) {
	r.Get("/{lender}", h.getCDP)
	r.Get("/{lender}/interest", h.accruedInterest)
	r.Group(func(sr chi.Router) {
		sr.Use(signed)
		sr.Post("/open", h.openCDP)
		sr.Post("/collateral/add", h.positionAmount(h.svc.AddCollateral))
		sr.Post("/collateral/withdraw", h.positionAmount(h.svc.WithdrawCollateral))
		sr.Post("/borrow", h.positionAmount(h.svc.BorrowRWA))
		sr.Post("/repay", h.positionAmount(h.svc.RepayDebt))
		sr.Post("/interest/pay", h.positionAmount(h.svc.PayInterest))
		sr.Post("/freeze", h.freezeCDP)
		sr.Post("/liquidate", h.liquidate)
		sr.Post("/close", h.closeCDP)
		sr.Post("/merge", h.mergeCDPs)
	})
}

func (h *handlers) getCDP(w http.ResponseWriter, r *http.Request) {
	lender, err := parseAddress("lender", chi.URLParam(r, "lender"))
	if err != nil {
		writeError(w, err)
		return
	}
	pos, err := h.svc.CDP(r.Context(), lender)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, newPositionView(pos))
}

func (h *handlers) accruedInterest(w http.ResponseWriter, r *http.Request) {
	lender, err := parseAddress("lender", chi.URLParam(r, "lender"))
	if err != nil {
		writeError(w, err)
		return
	}
	detail, err := h.svc.AccruedInterest(r.Context(), lender)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{
		"amount":             amountString(detail.Amount),
		"paid":               amountString(detail.Paid),
		"amountInCollateral": amountString(detail.AmountInCollateral),
		"approvalAmount":     amountString(detail.ApprovalAmount),
		"lastInterestTime":   detail.LastInterestTime,
	})
}

func (h *handlers) openCDP(w http.ResponseWriter, r *http.Request) {
	lender, ok := principal(w, r)
	if !ok {
		return
	}
	var req openRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	collateral, err := parseAmount("collateral", req.Collateral)
	if err != nil {
		writeError(w, err)
		return
	}
	debt, err := parseAmount("debt", req.Debt)
	if err != nil {
		writeError(w, err)
		return
	}
	pos, err := h.svc.OpenCDP(r.Context(), lender, collateral, debt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPositionView(pos))
}

type positionOp func(ctx context.Context, lender crypto.Address, amount *big.Int) (cdp.Position, error)

// positionAmount adapts an amount-taking position operation on the caller's
// own CDP.
func (h *handlers) positionAmount(op positionOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lender, ok := principal(w, r)
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
		pos, err := op(r.Context(), lender, amount)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, newPositionView(pos))
	}
}

func (h *handlers) decodeLender(w http.ResponseWriter, r *http.Request) (crypto.Address, crypto.Address, bool) {
	caller, ok := principal(w, r)
	if !ok {
		return crypto.Address{}, crypto.Address{}, false
	}
	var req lenderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return crypto.Address{}, crypto.Address{}, false
	}
	lender, err := parseAddress("lender", req.Lender)
	if err != nil {
		writeError(w, err)
		return crypto.Address{}, crypto.Address{}, false
	}
	return caller, lender, true
}

func (h *handlers) freezeCDP(w http.ResponseWriter, r *http.Request) {
	caller, lender, ok := h.decodeLender(w, r)
	if !ok {
		return
	}
	pos, err := h.svc.FreezeCDP(r.Context(), caller, lender)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, newPositionView(pos))
}

func (h *handlers) liquidate(w http.ResponseWriter, r *http.Request) {
	caller, lender, ok := h.decodeLender(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Liquidate(r.Context(), caller, lender)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{
		"liquidatedDebt":       amountString(res.LiquidatedDebt),
		"liquidatedCollateral": amountString(res.LiquidatedCollateral),
		"status":               res.Status.String(),
	})
}

func (h *handlers) closeCDP(w http.ResponseWriter, r *http.Request) {
	caller, lender, ok := h.decodeLender(w, r)
	if !ok {
		return
	}
	if err := h.svc.CloseCDP(r.Context(), caller, lender); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) mergeCDPs(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal(w, r)
	if !ok {
		return
	}
	var req mergeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	lenders := make([]crypto.Address, 0, len(req.Lenders))
	for _, raw := range req.Lenders {
		addr, err := parseAddress("lenders", raw)
		if err != nil {
			writeError(w, err)
			return
		}
		lenders = append(lenders, addr)
	}
	rec, err := h.svc.MergeCDPs(r.Context(), caller, lenders)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, recordView{
		Collateral:       amountString(rec.Collateral),
		Debt:             amountString(rec.Debt),
		Status:           rec.Status.String(),
		Interest:         interestView{Amount: amountString(rec.Interest.Amount), Paid: amountString(rec.Interest.Paid)},
		LastInterestTime: rec.LastInterestTime,
	})
}
