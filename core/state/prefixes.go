package state

import (
	"encoding/binary"
	"strings"
)

var (
	protocolStateKeyBytes = []byte("cdp/protocol")
	cdpPrefix             = []byte("cdp/position/")
	stakerPrefix          = []byte("pool/staker/")
	epochCompoundedFormat = []byte("pool/epoch/compounded/")
	epochInterestFormat   = []byte("cdp/epoch/interest/")
	tokenMetadataKeyBytes = []byte("token/metadata")
	tokenAdminKeyBytes    = []byte("token/admin")
	tokenBalancePrefix    = []byte("token/balance/")
	tokenAllowancePrefix  = []byte("token/allowance/")
	tokenAuthorizedPrefix = []byte("token/authorized/")
	nativeBalancePrefix   = []byte("native/balance/")
	nativeAllowancePrefix = []byte("native/allowance/")
	quotaPrefix           = []byte("quota/usage/")
)

func withSuffix(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	out := make([]byte, 0, size)
	out = append(out, prefix...)
	for i, p := range parts {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, p...)
	}
	return out
}

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

// ProtocolStateKey locates the singleton protocol state record.
func ProtocolStateKey() []byte { return append([]byte(nil), protocolStateKeyBytes...) }

// CDPKey locates the position owned by lender.
func CDPKey(lender []byte) []byte { return withSuffix(cdpPrefix, lender) }

// StakerKey locates the stability pool position of staker.
func StakerKey(staker []byte) []byte { return withSuffix(stakerPrefix, staker) }

// EpochCompoundedKey locates the archived sum constant for an epoch.
func EpochCompoundedKey(epoch uint64) []byte {
	return withSuffix(epochCompoundedFormat, uint64Bytes(epoch))
}

// EpochInterestKey locates the interest collected during an epoch.
func EpochInterestKey(epoch uint64) []byte {
	return withSuffix(epochInterestFormat, uint64Bytes(epoch))
}

// TokenMetadataKey locates the synthetic token metadata.
func TokenMetadataKey() []byte { return append([]byte(nil), tokenMetadataKeyBytes...) }

// TokenAdminKey locates the admin account of the synthetic token.
func TokenAdminKey() []byte { return append([]byte(nil), tokenAdminKeyBytes...) }

// TokenBalanceKey locates the synthetic balance of holder.
func TokenBalanceKey(holder []byte) []byte { return withSuffix(tokenBalancePrefix, holder) }

// TokenAllowanceKey locates the allowance granted by owner to spender.
func TokenAllowanceKey(owner, spender []byte) []byte {
	return withSuffix(tokenAllowancePrefix, owner, spender)
}

// TokenAuthorizedKey locates the authorization flag of holder.
func TokenAuthorizedKey(holder []byte) []byte { return withSuffix(tokenAuthorizedPrefix, holder) }

// NativeBalanceKey locates a collateral balance for the named asset.
func NativeBalanceKey(asset string, holder []byte) []byte {
	return withSuffix(nativeBalancePrefix, []byte(strings.ToUpper(asset)), holder)
}

// NativeAllowanceKey locates a collateral allowance for the named asset.
func NativeAllowanceKey(asset string, owner, spender []byte) []byte {
	return withSuffix(nativeAllowancePrefix, []byte(strings.ToUpper(asset)), owner, spender)
}

// QuotaKey returns the key of holder's quota usage for module.
func QuotaKey(module string, holder []byte) []byte {
	return withSuffix(quotaPrefix, []byte(module), holder)
}
