package routes

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"rwalend/native/cdp"
)

type ratioRequest struct {
	Value uint32 `json:"value"`
}

type refRequest struct {
	Ref string `json:"ref"`
}

type assetRequest struct {
	Asset string `json:"asset"`
}

type pauseRequest struct {
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type upgradeRequest struct {
	CodeHash string `json:"codeHash"`
}

type authorizeRequest struct {
	Holder     string `json:"holder"`
	Authorized bool   `json:"authorized"`
}

type holderAmountRequest struct {
	Holder string `json:"holder"`
	Amount string `json:"amount"`
}

type priceRequest struct {
	Ref       string `json:"ref"`
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

type oracleAssetsRequest struct {
	Ref    string   `json:"ref"`
	Assets []string `json:"assets"`
}

type protocolView struct {
	Admin              string   `json:"admin"`
	TotalRWA           string   `json:"totalRWA"`
	TotalCollateral    string   `json:"totalCollateral"`
	Product            string   `json:"product"`
	Compounded         string   `json:"compounded"`
	Epoch              uint64   `json:"epoch"`
	FeesCollected      string   `json:"feesCollected"`
	DepositFee         string   `json:"depositFee"`
	StakeFee           string   `json:"stakeFee"`
	UnstakeReturn      string   `json:"unstakeReturn"`
	InterestCollected  string   `json:"interestCollected"`
	MinCollateralRatio uint32   `json:"minCollateralRatio"`
	InterestRateBps    uint32   `json:"interestRateBps"`
	CollateralOracle   string   `json:"collateralOracle"`
	AssetOracle        string   `json:"assetOracle"`
	PeggedAsset        string   `json:"peggedAsset"`
	CollateralAsset    string   `json:"collateralAsset"`
	NativeAsset        string   `json:"nativeAsset"`
	CodeHash           string   `json:"codeHash"`
	PausedModules      []string `json:"pausedModules"`
}

func newProtocolView(st *cdp.ProtocolState) protocolView {
	paused := st.PausedModules
	if paused == nil {
		paused = []string{}
	}
	return protocolView{
		Admin:              st.Admin.String(),
		TotalRWA:           amountString(st.TotalRWA),
		TotalCollateral:    amountString(st.TotalCollateral),
		Product:            amountString(st.Product),
		Compounded:         amountString(st.Compounded),
		Epoch:              st.Epoch,
		FeesCollected:      amountString(st.FeesCollected),
		DepositFee:         amountString(st.DepositFee),
		StakeFee:           amountString(st.StakeFee),
		UnstakeReturn:      amountString(st.UnstakeReturn),
		InterestCollected:  amountString(st.InterestCollected),
		MinCollateralRatio: st.MinCollateralRatio,
		InterestRateBps:    st.InterestRateBps,
		CollateralOracle:   st.CollateralOracle,
		AssetOracle:        st.AssetOracle,
		PeggedAsset:        st.PeggedAsset,
		CollateralAsset:    st.CollateralAsset,
		NativeAsset:        st.NativeAsset,
		CodeHash:           hex.EncodeToString(st.CodeHash[:]),
		PausedModules:      paused,
	}
}

func (h *handlers) mountAdmin(r chi.Router) {
	r.Get("/protocol", h.protocol)
	r.Get("/interest/{epoch}", h.interestRecord)
	r.Post("/params/min-collateral-ratio", h.setMinCollateralRatio)
	r.Post("/params/interest-rate", h.setInterestRate)
	r.Post("/oracles/collateral", h.setOracleRef(true))
	r.Post("/oracles/asset", h.setOracleRef(false))
	r.Post("/assets/pegged", h.setAsset(true))
	r.Post("/assets/native", h.setAsset(false))
	r.Post("/pause", h.setPaused)
	r.Post("/upgrade", h.upgrade)
	r.Post("/token/authorize", h.setTokenAuthorized)
	r.Post("/token/clawback", h.clawback)
	r.Post("/faucet", h.faucet)
	r.Post("/oracle/price", h.setPrice)
	r.Post("/oracle/assets", h.addOracleAssets)
}

func (h *handlers) protocol(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Protocol(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, newProtocolView(st))
}

func (h *handlers) interestRecord(w http.ResponseWriter, r *http.Request) {
	epoch, err := strconv.ParseUint(chi.URLParam(r, "epoch"), 10, 64)
	if err != nil {
		writeError(w, badRequest("epoch must be an unsigned integer"))
		return
	}
	amount, err := h.svc.InterestRecord(r.Context(), epoch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"epoch": epoch, "interest": amountString(amount)})
}

func (h *handlers) setMinCollateralRatio(w http.ResponseWriter, r *http.Request) {
	var req ratioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	value, err := h.svc.SetMinCollateralRatio(r.Context(), req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]uint32{"minCollateralRatio": value})
}

func (h *handlers) setInterestRate(w http.ResponseWriter, r *http.Request) {
	var req ratioRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	value, err := h.svc.SetInterestRate(r.Context(), req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]uint32{"interestRateBps": value})
}

func (h *handlers) setOracleRef(collateral bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		ref := strings.TrimSpace(req.Ref)
		if ref == "" {
			writeError(w, badRequest("ref required"))
			return
		}
		var err error
		if collateral {
			err = h.svc.SetCollateralOracle(r.Context(), ref)
		} else {
			err = h.svc.SetAssetOracle(r.Context(), ref)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handlers) setAsset(pegged bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assetRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		asset := strings.TrimSpace(req.Asset)
		if asset == "" {
			writeError(w, badRequest("asset required"))
			return
		}
		var err error
		if pegged {
			err = h.svc.SetPeggedAsset(r.Context(), asset)
		} else {
			err = h.svc.SetNativeAsset(r.Context(), asset)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handlers) setPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.SetPaused(r.Context(), strings.TrimSpace(req.Module), req.Paused); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) upgrade(w http.ResponseWriter, r *http.Request) {
	var req upgradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.CodeHash), "0x"))
	if err != nil || len(raw) != 32 {
		writeError(w, badRequest("codeHash must be 32 hex-encoded bytes"))
		return
	}
	var hash [32]byte
	copy(hash[:], raw)
	if err := h.svc.Upgrade(r.Context(), hash); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setTokenAuthorized(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	holder, err := parseAddress("holder", req.Holder)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.SetTokenAuthorized(r.Context(), holder, req.Authorized); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) clawback(w http.ResponseWriter, r *http.Request) {
	h.holderAmount(w, r, func(req holderAmountRequest) error {
		holder, err := parseAddress("holder", req.Holder)
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		return h.svc.Clawback(r.Context(), holder, amount)
	})
}

func (h *handlers) faucet(w http.ResponseWriter, r *http.Request) {
	h.holderAmount(w, r, func(req holderAmountRequest) error {
		holder, err := parseAddress("holder", req.Holder)
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", req.Amount)
		if err != nil {
			return err
		}
		return h.svc.Faucet(r.Context(), holder, amount)
	})
}

func (h *handlers) holderAmount(w http.ResponseWriter, r *http.Request, fn func(holderAmountRequest) error) {
	var req holderAmountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := fn(req); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.SetPrice(r.Context(), req.Ref, req.Asset, price, req.Timestamp); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) addOracleAssets(w http.ResponseWriter, r *http.Request) {
	var req oracleAssetsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Assets) == 0 {
		writeError(w, badRequest("assets required"))
		return
	}
	if err := h.svc.AddOracleAssets(r.Context(), req.Ref, req.Assets); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
