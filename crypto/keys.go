package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix defines the different types of human-readable address prefixes.
type AddressPrefix string

const (
	ValidatorPrefix AddressPrefix = "val"
)

// AddressLength is the fixed size of an Address in bytes.
const AddressLength = 20

// Address represents a 20-byte validator-node address with a human-readable
// bech32 prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

func NewAddress(prefix AddressPrefix, b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long, got %d", AddressLength, len(b))
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}, nil
}

// MustNewAddress constructs an address and panics if the input is invalid.
func MustNewAddress(prefix AddressPrefix, b []byte) Address {
	addr, err := NewAddress(prefix, b)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
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
	return append([]byte(nil), a.bytes...)
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// IsZero reports whether the address has no backing bytes.
func (a Address) IsZero() bool {
	return len(a.bytes) == 0
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
	addr, err := NewAddress(AddressPrefix(prefix), conv)
	if err != nil {
		return Address{}, err
	}
	return addr, nil
}

// --- Key management ---
//
// Signatures are Ed25519 single-signer per the external-interfaces spec; BLS
// aggregation is not implemented here since the committee path tolerates
// individual-signature verification (the optional aggregate path is an
// implementation choice left to the transport layer, not the core).

type PrivateKey struct {
	seed ed25519.PrivateKey
}

type PublicKey struct {
	key ed25519.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{seed: priv}, nil
}

// Bytes returns the 64-byte Ed25519 private key encoding.
func (k *PrivateKey) Bytes() []byte {
	return append([]byte(nil), k.seed...)
}

func (k *PrivateKey) PubKey() *PublicKey {
	pub := k.seed.Public().(ed25519.PublicKey)
	return &PublicKey{key: pub}
}

// Sign produces an Ed25519 signature over msg. Ed25519 signs the message
// directly (it is already collision-resistant); callers that need a fixed-size
// digest for downstream storage should hash separately.
func (k *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.seed, msg)
}

func (k *PublicKey) Bytes() []byte {
	return append([]byte(nil), k.key...)
}

func (k *PublicKey) Verify(msg, sig []byte) bool {
	return ed25519.Verify(k.key, msg, sig)
}

func (k *PublicKey) Address() Address {
	digest := sha256.Sum256(k.key)
	return MustNewAddress(ValidatorPrefix, digest[:AddressLength])
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid ed25519 private key length: %d", len(b))
	}
	return &PrivateKey{seed: ed25519.PrivateKey(append([]byte(nil), b...))}, nil
}

func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 public key length: %d", len(b))
	}
	return &PublicKey{key: ed25519.PublicKey(append([]byte(nil), b...))}, nil
}

// Verify checks a detached signature against an expected signer address,
// in the (msgHash, sig, expectedAddr) shape the types package's transaction
// and proposal signature checks call into.
func Verify(msg []byte, sig []byte, pub *PublicKey, expected Address) bool {
	if pub == nil {
		return false
	}
	if pub.Address().String() != expected.String() {
		return false
	}
	return pub.Verify(msg, sig)
}
