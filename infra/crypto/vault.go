package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// keySalt is mixed into key derivation so the derived key stays stable for a
// given master secret across restarts. Changing it invalidates every stored blob.
const keySalt = "paygate-credential-vault-v1"

// insecureDefaultSecret is the fallback master secret for local and test
// environments. Production deployments must set VAULT_MASTER_KEY.
const insecureDefaultSecret = "insecure-development-master-key"

// CryptoError wraps any failure during encrypt/decrypt. Decryption never
// partially succeeds: a malformed blob, a wrong key or a failed authentication
// tag all surface as a CryptoError.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Vault encrypts and decrypts tenant credential blobs with AES-256-GCM.
// Blob format: hex(iv):hex(tag):hex(ciphertext), all lowercase.
type Vault struct {
	key      []byte
	insecure bool
}

// NewVault derives a 32-byte key from the operator master secret. An empty
// secret falls back to an insecure development default; callers should check
// Insecure() and warn loudly.
func NewVault(masterSecret string) *Vault {
	insecure := masterSecret == ""
	if insecure {
		masterSecret = insecureDefaultSecret
	}
	sum := sha256.Sum256([]byte(masterSecret + ":" + keySalt))
	return &Vault{key: sum[:], insecure: insecure}
}

// Insecure reports whether the vault is running on the development default key.
func (v *Vault) Insecure() bool {
	return v.insecure
}

// Encrypt seals plaintext with a fresh random IV and returns the blob as
// hex(iv):hex(tag):hex(ciphertext).
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)

	// Seal appends the authentication tag to the ciphertext; split it back out
	// so the stored format keeps iv, tag and ciphertext as separate segments.
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext := sealed[:tagStart]
	tag := sealed[tagStart:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	), nil
}

// Decrypt opens a blob produced by Encrypt. It fails closed on any malformed
// segment or tag mismatch and never returns corrupt plaintext.
func (v *Vault) Decrypt(blob string) ([]byte, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("blob must have iv:tag:ciphertext segments")}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("invalid iv segment: %w", err)}
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("invalid tag segment: %w", err)}
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("invalid ciphertext segment: %w", err)}
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}

	if len(iv) != gcm.NonceSize() {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("invalid iv length")}
	}
	if len(tag) != gcm.Overhead() {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("invalid tag length")}
	}

	plaintext, err := gcm.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}

	return plaintext, nil
}

// EncryptJSON marshals a structured secret and encrypts it
func (v *Vault) EncryptJSON(value any) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Err: fmt.Errorf("marshal secret: %w", err)}
	}
	return v.Encrypt(plaintext)
}

// DecryptJSON decrypts a blob and unmarshals it into target
func (v *Vault) DecryptJSON(blob string, target any) error {
	plaintext, err := v.Decrypt(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, target); err != nil {
		return &CryptoError{Op: "decrypt", Err: fmt.Errorf("unmarshal secret: %w", err)}
	}
	return nil
}

// GenerateSecureToken returns length random bytes as a lowercase hex string,
// used for per-config webhook secrets.
func GenerateSecureToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", &CryptoError{Op: "token", Err: err}
	}
	return hex.EncodeToString(buf), nil
}

// HashSecret returns a one-way hex digest of value for comparison without
// storing plaintext.
func HashSecret(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// SecretEqual compares a candidate secret against an expected one in constant
// time over their digests.
func SecretEqual(candidate, expected string) bool {
	a := sha256.Sum256([]byte(candidate))
	b := sha256.Sum256([]byte(expected))
	return hmac.Equal(a[:], b[:])
}
