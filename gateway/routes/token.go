package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type transferRequest struct {
	From   string `json:"from,omitempty"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type allowanceRequest struct {
	Spender   string `json:"spender"`
	Amount    string `json:"amount"`
	LiveUntil uint64 `json:"liveUntil,omitempty"`
}

type burnFromRequest struct {
	From   string `json:"from"`
	Amount string `json:"amount"`
}

type approveInterestRequest struct {
	Amount    string `json:"amount"`
	LiveUntil uint64 `json:"liveUntil"`
}

func (h *handlers) mountToken(r chi.Router, signed func(http.Handler) http.Handler) {
	r.Get("/metadata", h.tokenMetadata)
	r.Get("/balance/{holder}", h.tokenBalance)
	r.Get("/authorized/{holder}", h.tokenAuthorized)
	r.Get("/allowance/{owner}/{spender}", h.allowance)
	r.Group(func(sr chi.Router) {
		sr.Use(signed)
		sr.Post("/transfer", h.transfer)
		sr.Post("/transfer-from", h.transferFrom)
		sr.Post("/approve", h.approve)
		sr.Post("/allowance/increase", h.changeAllowance(true))
		sr.Post("/allowance/decrease", h.changeAllowance(false))
		sr.Post("/burn", h.burn)
		sr.Post("/burn-from", h.burnFrom)
	})
}

func (h *handlers) mountNative(r chi.Router, signed func(http.Handler) http.Handler) {
	r.Get("/balance/{holder}", h.nativeBalance)
	r.Group(func(sr chi.Router) {
		sr.Use(signed)
		sr.Post("/transfer", h.nativeTransfer)
		sr.Post("/approve-interest", h.approveInterest)
	})
}

func (h *handlers) tokenMetadata(w http.ResponseWriter, r *http.Request) {
	meta, err := h.svc.TokenMetadata(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"name": meta.Name, "symbol": meta.Symbol, "decimals": meta.Decimals})
}

func (h *handlers) tokenBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress("holder", chi.URLParam(r, "holder"))
	if err != nil {
		writeError(w, err)
		return
	}
	bal, err := h.svc.TokenBalance(r.Context(), holder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"balance": amountString(bal)})
}

func (h *handlers) tokenAuthorized(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress("holder", chi.URLParam(r, "holder"))
	if err != nil {
		writeError(w, err)
		return
	}
	authorized, err := h.svc.TokenAuthorized(r.Context(), holder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]bool{"authorized": authorized})
}

func (h *handlers) allowance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, err)
		return
	}
	spender, err := parseAddress("spender", chi.URLParam(r, "spender"))
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := h.svc.Allowance(r.Context(), owner, spender)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"allowance": amountString(amount)})
}

func (h *handlers) transfer(w http.ResponseWriter, r *http.Request) {
	from, ok := principal(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.Transfer(r.Context(), from, to, amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) transferFrom(w http.ResponseWriter, r *http.Request) {
	spender, ok := principal(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.TransferFrom(r.Context(), spender, from, to, amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) approve(w http.ResponseWriter, r *http.Request) {
	owner, ok := principal(w, r)
	if !ok {
		return
	}
	var req allowanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	spender, err := parseAddress("spender", req.Spender)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.Approve(r.Context(), owner, spender, amount, req.LiveUntil); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) changeAllowance(increase bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := principal(w, r)
		if !ok {
			return
		}
		var req allowanceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		spender, err := parseAddress("spender", req.Spender)
		if err != nil {
			writeError(w, err)
			return
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			writeError(w, err)
			return
		}
		if increase {
			err = h.svc.IncreaseAllowance(r.Context(), owner, spender, amount)
		} else {
			err = h.svc.DecreaseAllowance(r.Context(), owner, spender, amount)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handlers) burn(w http.ResponseWriter, r *http.Request) {
	from, ok := principal(w, r)
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
	if err := h.svc.Burn(r.Context(), from, amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) burnFrom(w http.ResponseWriter, r *http.Request) {
	spender, ok := principal(w, r)
	if !ok {
		return
	}
	var req burnFromRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	from, err := parseAddress("from", req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.BurnFrom(r.Context(), spender, from, amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) nativeBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress("holder", chi.URLParam(r, "holder"))
	if err != nil {
		writeError(w, err)
		return
	}
	bal, err := h.svc.NativeBalance(r.Context(), holder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"balance": amountString(bal)})
}

func (h *handlers) nativeTransfer(w http.ResponseWriter, r *http.Request) {
	from, ok := principal(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	to, err := parseAddress("to", req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.NativeTransfer(r.Context(), from, to, amount); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// approveInterest lets the protocol module pull native tokens for interest
// repayment.
func (h *handlers) approveInterest(w http.ResponseWriter, r *http.Request) {
	owner, ok := principal(w, r)
	if !ok {
		return
	}
	var req approveInterestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.ApproveInterest(r.Context(), owner, amount, req.LiveUntil); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
