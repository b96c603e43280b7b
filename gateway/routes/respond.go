package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	rwaerrors "rwalend/core/errors"
	"rwalend/crypto"
	"rwalend/gateway/middleware"
	"rwalend/native/oracle"
	"rwalend/services/rwalend"
)

const requestLimit = 1 << 20 // 1 MiB

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return badRequest("missing request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("decode request: %v", err)
	}
	return nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, badRequest("%s must be a decimal integer", field)
	}
	return v, nil
}

func parseAddress(field, raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, badRequest("%s: %v", field, err)
	}
	return addr, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, payload interface{}) {
	writeJSON(w, http.StatusOK, payload)
}

// writeError maps err to a status and the stable error name.
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errBadRequest) {
		middleware.WriteError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return
	}
	if status, name, ok := oracleStatus(err); ok {
		middleware.WriteError(w, status, name, err.Error())
		return
	}
	name := rwalend.ErrorName(err)
	middleware.WriteError(w, statusFor(err, name), name, err.Error())
}

func oracleStatus(err error) (int, string, bool) {
	switch {
	case errors.Is(err, oracle.ErrUnknownOracle):
		return http.StatusNotFound, "UnknownOracle", true
	case errors.Is(err, oracle.ErrAssetNotFound):
		return http.StatusNotFound, "AssetNotFound", true
	case errors.Is(err, oracle.ErrNoPrice):
		return http.StatusNotFound, "NoPrice", true
	case errors.Is(err, oracle.ErrAssetAlreadyExists):
		return http.StatusConflict, "AssetAlreadyExists", true
	case errors.Is(err, oracle.ErrInvalidPrice):
		return http.StatusBadRequest, "InvalidPrice", true
	}
	return 0, "", false
}

func statusFor(err error, name string) int {
	switch {
	case errors.Is(err, rwaerrors.ErrCDPNotFound), errors.Is(err, rwaerrors.ErrStakeDoesntExist):
		return http.StatusNotFound
	case errors.Is(err, rwaerrors.ErrCDPAlreadyExists), errors.Is(err, rwaerrors.ErrStakeAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, rwaerrors.ErrValueNotPositive):
		return http.StatusBadRequest
	}
	if _, coded := rwaerrors.CodeOf(err); coded {
		return http.StatusUnprocessableEntity
	}
	switch name {
	case "Unauthorized":
		return http.StatusForbidden
	case "ModulePaused":
		return http.StatusLocked
	case "QuotaExceeded":
		return http.StatusTooManyRequests
	case "Canceled":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// principal returns the signing account or writes a 401.
func principal(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	addr, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Unauthorized", "signed request required")
	}
	return addr, ok
}
