package common

import "rwalend/crypto"

// Authorizer proves that the current caller controls an account. Modules call
// RequireAuth before moving funds on behalf of the account.
type Authorizer interface {
	RequireAuth(addr crypto.Address) error
}

// AllowAll authorizes every account. It is used by trusted in-process callers.
type AllowAll struct{}

func (AllowAll) RequireAuth(crypto.Address) error { return nil }
