package accounts

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p-core/crypto"
	mbase "github.com/multiformats/go-multibase"
	"github.com/subastra/auctiond/lib/auction"
)

// ErrBadSignature indicates a signature did not verify against the account key.
var ErrBadSignature = errors.New("signature verification failed")

// GenerateKey returns a fresh Ed25519 private key for a caller identity.
func GenerateKey() (crypto.PrivKey, error) {
	sk, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 key: %v", err)
	}
	return sk, nil
}

// EncodeKey returns the multibase text encoding of a private key, suitable
// for config files.
func EncodeKey(sk crypto.PrivKey) (string, error) {
	kb, err := crypto.MarshalPrivateKey(sk)
	if err != nil {
		return "", fmt.Errorf("marshaling private key: %v", err)
	}
	return mbase.Encode(mbase.Base32, kb)
}

// DecodeKey parses a multibase-encoded private key.
func DecodeKey(s string) (crypto.PrivKey, error) {
	_, kb, err := mbase.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %v", err)
	}
	sk, err := crypto.UnmarshalPrivateKey(kb)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling private key: %v", err)
	}
	return sk, nil
}

// FromPublicKey derives the ledger account id for a public key: the multibase
// base32 encoding of the marshaled key.
func FromPublicKey(pk crypto.PubKey) (auction.AccountID, error) {
	kb, err := crypto.MarshalPublicKey(pk)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %v", err)
	}
	s, err := mbase.Encode(mbase.Base32, kb)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %v", err)
	}
	return auction.AccountID(s), nil
}

// FromPrivateKey derives the ledger account id for a private key.
func FromPrivateKey(sk crypto.PrivKey) (auction.AccountID, error) {
	return FromPublicKey(sk.GetPublic())
}

// PublicKey recovers the public key embedded in an account id.
func PublicKey(account auction.AccountID) (crypto.PubKey, error) {
	_, kb, err := mbase.Decode(string(account))
	if err != nil {
		return nil, fmt.Errorf("decoding account id: %v", err)
	}
	pk, err := crypto.UnmarshalPublicKey(kb)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling account key: %v", err)
	}
	return pk, nil
}

// Sign signs payload with the caller's private key.
func Sign(sk crypto.PrivKey, payload []byte) ([]byte, error) {
	sig, err := sk.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("signing payload: %v", err)
	}
	return sig, nil
}

// Verify checks that sig over payload was produced by the key behind account.
func Verify(account auction.AccountID, payload, sig []byte) error {
	pk, err := PublicKey(account)
	if err != nil {
		return err
	}
	ok, err := pk.Verify(payload, sig)
	if err != nil {
		return fmt.Errorf("verifying signature: %v", err)
	}
	if !ok {
		return ErrBadSignature
	}
	return nil
}
