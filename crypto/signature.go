package crypto

import (
	"errors"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = 65

var ErrInvalidSignature = errors.New("crypto: invalid signature")

// RequestDigest hashes the canonical request fields that a caller signs to
// prove control of an account.
func RequestDigest(method, path, timestamp, nonce string, body []byte) []byte {
	bodyHash := ethcrypto.Keccak256(body)
	payload := strings.Join([]string{
		strings.ToUpper(method),
		path,
		timestamp,
		nonce,
	}, "\n")
	return ethcrypto.Keccak256([]byte(payload), []byte{'\n'}, bodyHash)
}

// Sign produces a recoverable signature over a 32-byte digest.
func Sign(key *PrivateKey, digest []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.New("crypto: nil private key")
	}
	return ethcrypto.Sign(digest, key.PrivateKey)
}

// RecoverAddress returns the account address that produced sig over digest.
func RecoverAddress(digest, sig []byte) (Address, error) {
	if len(sig) != SignatureLength || len(digest) != 32 {
		return Address{}, ErrInvalidSignature
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return Address{}, ErrInvalidSignature
	}
	return NewAddress(AccountPrefix, ethcrypto.PubkeyToAddress(*pub).Bytes()), nil
}
