package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

// PrivateKey is a secp256k1 operator key. Accounts prove ownership of the
// caller address on mutating requests by signing the request digest.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey is the verifying half of an operator key.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey creates a fresh secp256k1 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(ethcrypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromBytes restores a key from its raw 32-byte form.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := ethcrypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the raw byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return ethcrypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Sign produces a 65-byte recoverable signature over a 32-byte digest.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	return ethcrypto.Sign(digest, k.PrivateKey)
}

func (k *PublicKey) Address() Address {
	addrBytes := ethcrypto.PubkeyToAddress(*k.PublicKey).Bytes()
	return NewAddress(AccountPrefix, addrBytes)
}

// RecoverAddress returns the account address that produced a recoverable
// signature over the given digest.
func RecoverAddress(digest, sig []byte) (Address, error) {
	if len(sig) != signatureLength {
		return Address{}, fmt.Errorf("signature must be %d bytes, got %d", signatureLength, len(sig))
	}
	pubKey, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return Address{}, fmt.Errorf("invalid signature: %w", err)
	}
	return NewAddress(AccountPrefix, ethcrypto.PubkeyToAddress(*pubKey).Bytes()), nil
}
