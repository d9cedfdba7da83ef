// Package crypto resolves and protects the wallet's ed25519 secret key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 2
)

// encryptedKeyJSON is the on-disk keystore format.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	PublicKey  string `json:"public_key"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig carries the information LoadKey needs to resolve the wallet key.
type KeyConfig struct {
	// RawPrivateKey is a base58 secret key (as exported by wallets), a hex
	// seed or secret key, or a JSON byte array as written by solana-keygen.
	RawPrivateKey string

	// EncryptedKeyPath is the path to a keystore produced by EncryptKey.
	EncryptedKeyPath string

	// KeyPassword decrypts the keystore at EncryptedKeyPath.
	KeyPassword string
}

// ParseSecret decodes a textual secret key into its 32-byte seed.
func ParseSecret(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("crypto: empty secret key")
	}

	var raw []byte
	switch {
	case strings.HasPrefix(s, "["):
		var arr []byte
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, fmt.Errorf("crypto: invalid keypair array: %w", err)
		}
		for _, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("crypto: keypair array value %d out of range", v)
			}
			arr = append(arr, byte(v))
		}
		raw = arr
	case isHex(strings.TrimPrefix(s, "0x")):
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return nil, fmt.Errorf("crypto: invalid hex key: %w", err)
		}
		raw = b
	default:
		b, err := base58.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("crypto: invalid base58 key: %w", err)
		}
		raw = b
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return raw, nil
	case ed25519.PrivateKeySize:
		seed := raw[:ed25519.SeedSize]
		full := ed25519.NewKeyFromSeed(seed)
		if string(full[ed25519.SeedSize:]) != string(raw[ed25519.SeedSize:]) {
			return nil, errors.New("crypto: secret key public half does not match seed")
		}
		return seed, nil
	default:
		return nil, fmt.Errorf("crypto: expected 32 or 64 byte key, got %d bytes", len(raw))
	}
}

func isHex(s string) bool {
	if len(s) != 2*ed25519.SeedSize && len(s) != 2*ed25519.PrivateKeySize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// PublicKey returns the base58 address for a seed.
func PublicKey(seed []byte) string {
	return base58.Encode(ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey))
}

// EncryptKey encrypts a 32-byte seed with PBKDF2-HMAC-SHA256 and AES-256-GCM
// and returns the keystore JSON.
func EncryptKey(seed []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto: expected 32-byte seed, got %d bytes", len(seed))
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: generating salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	pub := PublicKey(seed)
	out := encryptedKeyJSON{
		Version:    currentVersion,
		PublicKey:  pub,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, seed, []byte(pub))),
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecryptKey opens a keystore produced by EncryptKey and returns the seed.
func DecryptKey(encryptedJSON []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}

	var stored encryptedKeyJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return nil, fmt.Errorf("crypto: parsing keystore: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("crypto: unsupported keystore version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	seed, err := gcm.Open(nil, nonce, ciphertext, []byte(stored.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed (wrong password?): %w", err)
	}
	return seed, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}

// LoadKey resolves the wallet seed.
//
// Resolution order:
//  1. RawPrivateKey, if set.
//  2. EncryptedKeyPath, decrypted with KeyPassword.
func LoadKey(cfg KeyConfig) ([]byte, error) {
	if cfg.RawPrivateKey != "" {
		return ParseSecret(cfg.RawPrivateKey)
	}
	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto: reading keystore: %w", err)
		}
		return DecryptKey(data, cfg.KeyPassword)
	}
	return nil, errors.New("crypto: no private key source configured (set private_key or encrypted_key_path)")
}
