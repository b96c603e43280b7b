package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"rwalend/crypto"
	"rwalend/gateway/auth"
)

const principalKey contextKey = "rwalend.principal"

// Signatures authenticates account-signed requests and stores the recovered
// principal on the request context. The body is read once, hashed and then
// restored for the handler.
func Signatures(authenticator *auth.Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, int64(auth.MaxBodyForSignature)+1))
			if err != nil {
				WriteError(w, http.StatusBadRequest, "BadRequest", "read body")
				return
			}
			_ = r.Body.Close()
			principal, err := authenticator.Authenticate(r, body)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, auth.ErrNonceReused) {
					status = http.StatusConflict
				}
				logger.Debug("signature rejected", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
				WriteError(w, status, "Unauthorized", err.Error())
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
		})
	}
}

// PrincipalFrom returns the account proven by the request signature.
func PrincipalFrom(ctx context.Context) (crypto.Address, bool) {
	principal, ok := ctx.Value(principalKey).(*auth.Principal)
	if !ok || principal == nil {
		return crypto.Address{}, false
	}
	return principal.Account, true
}
