package chain

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

const (
	signatureLen = ed25519.SignatureSize
	pubkeyLen    = ed25519.PublicKeySize
	// versionPrefix marks a versioned (v0+) message.
	versionPrefix = 0x80
)

// Wallet holds the ed25519 keypair that pays for and signs every leg.
type Wallet struct {
	key    ed25519.PrivateKey
	pubkey string
}

// NewWallet creates a wallet from a 32-byte seed or a 64-byte secret key.
func NewWallet(secret []byte) (*Wallet, error) {
	var key ed25519.PrivateKey
	switch len(secret) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(secret)
	case ed25519.PrivateKeySize:
		key = ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
		if !bytes.Equal(key[ed25519.SeedSize:], secret[ed25519.SeedSize:]) {
			return nil, errors.New("chain: secret key public half does not match seed")
		}
	default:
		return nil, fmt.Errorf("chain: secret key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(secret))
	}
	pub := key.Public().(ed25519.PublicKey)
	return &Wallet{key: key, pubkey: base58.Encode(pub)}, nil
}

// PublicKey returns the base58 wallet address.
func (w *Wallet) PublicKey() string { return w.pubkey }

// SignTransaction fills the fee-payer signature slot of a serialized
// transaction returned by the swap API and returns the signed bytes. The
// input is not modified.
func (w *Wallet) SignTransaction(tx []byte) ([]byte, error) {
	n, off, err := decodeCompactU16(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: transaction has no signature slots", domain.ErrSigningFailed)
	}
	msgStart := off + n*signatureLen
	if msgStart >= len(tx) {
		return nil, fmt.Errorf("%w: transaction truncated", domain.ErrSigningFailed)
	}
	msg := tx[msgStart:]

	payer, err := feePayer(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSigningFailed, err)
	}
	if !bytes.Equal(payer, w.key.Public().(ed25519.PublicKey)) {
		return nil, fmt.Errorf("%w: fee payer %s is not wallet %s",
			domain.ErrSigningFailed, base58.Encode(payer), w.pubkey)
	}

	out := make([]byte, len(tx))
	copy(out, tx)
	copy(out[off:off+signatureLen], ed25519.Sign(w.key, msg))
	return out, nil
}

// feePayer returns the first static account key of a legacy or versioned
// message.
func feePayer(msg []byte) ([]byte, error) {
	i := 0
	if msg[0]&versionPrefix != 0 {
		i++
	}
	i += 3 // header: required sigs, readonly signed, readonly unsigned
	if i >= len(msg) {
		return nil, errors.New("message truncated")
	}
	n, off, err := decodeCompactU16(msg[i:])
	if err != nil {
		return nil, err
	}
	i += off
	if n < 1 || i+pubkeyLen > len(msg) {
		return nil, errors.New("message has no account keys")
	}
	return msg[i : i+pubkeyLen], nil
}

// decodeCompactU16 reads Solana's shortvec length prefix.
func decodeCompactU16(b []byte) (value, size int, err error) {
	for size < 3 {
		if size >= len(b) {
			return 0, 0, errors.New("compact-u16 truncated")
		}
		v := int(b[size])
		value |= (v & 0x7f) << (7 * size)
		size++
		if v&0x80 == 0 {
			return value, size, nil
		}
	}
	return 0, 0, errors.New("compact-u16 overflow")
}
