package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rwalend/native/oracle"
)

const defaultPriceRecords = 10

type priceView struct {
	Price     string `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

func newPriceView(p oracle.PriceData) priceView {
	return priceView{Price: amountString(p.Price), Timestamp: p.Timestamp}
}

func (h *handlers) mountOracle(r chi.Router) {
	r.Get("/{ref}/{asset}", h.lastPrice)
	r.Get("/{ref}/{asset}/history", h.priceHistory)
}

func (h *handlers) lastPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.svc.LastPrice(chi.URLParam(r, "ref"), chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, newPriceView(price))
}

func (h *handlers) priceHistory(w http.ResponseWriter, r *http.Request) {
	records := uint64(defaultPriceRecords)
	if raw := r.URL.Query().Get("records"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			writeError(w, badRequest("records must be a uint32"))
			return
		}
		records = n
	}
	prices, err := h.svc.Prices(chi.URLParam(r, "ref"), chi.URLParam(r, "asset"), uint32(records))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]priceView, 0, len(prices))
	for _, p := range prices {
		out = append(out, newPriceView(p))
	}
	writeOK(w, map[string]interface{}{"prices": out})
}
