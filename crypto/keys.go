package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// AddressPrefix is the human-readable part of a bech32 account address.
type AddressPrefix string

const (
	// AccountPrefix tags user controlled accounts.
	AccountPrefix AddressPrefix = "rwa"
	// ModulePrefix tags accounts owned by protocol modules.
	ModulePrefix AddressPrefix = "rwamod"
)

// AddressLength is the byte length of every account address.
const AddressLength = 20

// Address is a 20-byte account identifier with a display prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != AddressLength {
		panic("address must be 20 bytes long")
	}
	cp := make([]byte, AddressLength)
	copy(cp, b)
	return Address{prefix: prefix, bytes: cp}
}

// ModuleAddress derives the deterministic account that holds funds on behalf
// of the named module.
func ModuleAddress(name string) Address {
	digest := crypto.Keccak256([]byte("module/" + name))
	return NewAddress(ModulePrefix, digest[len(digest)-AddressLength:])
}

func (a Address) String() string {
	if a.IsZero() {
		return ""
	}
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address carries no bytes.
func (a Address) IsZero() bool {
	return len(a.bytes) == 0
}

// Equal compares the raw bytes of two addresses. Prefixes are display only.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a.bytes, other.bytes)
}

// MarshalText renders the bech32 form so addresses can key JSON maps.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses a bech32 encoded address.
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

type rlpAddress struct {
	Prefix string
	Bytes  []byte
}

// EncodeRLP implements rlp.Encoder.
func (a Address) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, rlpAddress{Prefix: string(a.prefix), Bytes: a.bytes})
}

// DecodeRLP implements rlp.Decoder.
func (a *Address) DecodeRLP(s *rlp.Stream) error {
	var raw rlpAddress
	if err := s.Decode(&raw); err != nil {
		return err
	}
	if len(raw.Bytes) == 0 {
		*a = Address{}
		return nil
	}
	if len(raw.Bytes) != AddressLength {
		return fmt.Errorf("address: invalid length %d", len(raw.Bytes))
	}
	*a = NewAddress(AddressPrefix(raw.Prefix), raw.Bytes)
	return nil
}

func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	if len(conv) != AddressLength {
		return Address{}, errors.New("address: decoded payload must be 20 bytes")
	}
	return NewAddress(AddressPrefix(prefix), conv), nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

func (k *PublicKey) Address() Address {
	addrBytes := crypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(AccountPrefix, addrBytes)
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
