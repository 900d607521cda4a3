package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/user"
	"runtime"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltLen            = 16
	nonceLen           = 12
	keyLen             = 32
	defaultIterations  = 100000
	minIterations      = 1000
	maxIterations      = 10000000
	fingerprintUnknown = "unknown"
)

var (
	// ErrMalformedCiphertext reports a blob too short or not base64.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	// ErrDecrypt reports an authentication failure while opening a blob.
	ErrDecrypt = errors.New("decrypt failed")
)

// Fingerprint is a coarse description of the local environment. It is
// observable by anyone on the same machine, so keys derived from it only
// obfuscate.
type Fingerprint struct {
	Hostname string
	Username string
	OS       string
	Arch     string
}

// LocalFingerprint inspects the current process environment.
func LocalFingerprint() Fingerprint {
	fp := Fingerprint{
		Hostname: fingerprintUnknown,
		Username: fingerprintUnknown,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		fp.Hostname = host
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		fp.Username = u.Username
	}
	return fp
}

func (f Fingerprint) String() string {
	return strings.Join([]string{f.Hostname, f.Username, f.OS, f.Arch}, "|")
}

// Passphrase combines the per-install salt with the environment fingerprint.
func Passphrase(installSalt string, fp Fingerprint) string {
	return installSalt + "::" + fp.String()
}

// FieldCipher encrypts individual string fields with AES-256-GCM under a key
// derived by PBKDF2-SHA256. Each call draws a fresh salt and nonce, both
// stored in front of the ciphertext so the key can be re-derived on decrypt.
type FieldCipher struct {
	passphrase []byte
	iterations int
	random     io.Reader
}

// NewFieldCipher builds a cipher for passphrase; iterations are clamped to a sane range.
func NewFieldCipher(passphrase string, iterations int) (*FieldCipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if iterations <= 0 {
		iterations = defaultIterations
	}
	return &FieldCipher{
		passphrase: []byte(passphrase),
		iterations: clampInt(iterations, minIterations, maxIterations),
		random:     rand.Reader,
	}, nil
}

// Encrypt returns base64(salt || nonce || ciphertext+tag).
func (c *FieldCipher) Encrypt(ctx context.Context, plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("cannot encrypt empty data")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	header := make([]byte, saltLen+nonceLen)
	if _, err := io.ReadFull(c.random, header); err != nil {
		return "", fmt.Errorf("generate salt and nonce: %w", err)
	}
	salt, nonce := header[:saltLen], header[saltLen:]

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}
	sealed := gcm.Seal(header, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (c *FieldCipher) Decrypt(ctx context.Context, encoded string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(blob) < saltLen+nonceLen+16 {
		return "", ErrMalformedCiphertext
	}
	salt, nonce, sealed := blob[:saltLen], blob[saltLen:saltLen+nonceLen], blob[saltLen+nonceLen:]

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

func (c *FieldCipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.passphrase, salt, c.iterations, keyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
