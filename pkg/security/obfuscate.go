package security

import (
	"encoding/base64"
	"errors"
	"strings"
)

// DefaultObfuscationKey is compiled in; anyone with the binary can reverse
// the transform. It only keeps tracking tokens from being greppable in raw
// storage.
const DefaultObfuscationKey = "storefront:order-history:v1"

const obfuscatedPrefix = "x1:"

// ErrNotObfuscated reports a stored value that was never run through Obfuscate.
var ErrNotObfuscated = errors.New("value is not obfuscated")

// Obfuscator applies a fixed-key XOR followed by base64. It is NOT encryption.
type Obfuscator struct {
	key []byte
}

func NewObfuscator(key string) *Obfuscator {
	if key == "" {
		key = DefaultObfuscationKey
	}
	return &Obfuscator{key: []byte(key)}
}

// Obfuscate encodes plain; the empty string stays empty.
func (o *Obfuscator) Obfuscate(plain string) string {
	if plain == "" {
		return ""
	}
	return obfuscatedPrefix + base64.StdEncoding.EncodeToString(o.xor([]byte(plain)))
}

// Deobfuscate reverses Obfuscate and fails on anything it did not produce.
func (o *Obfuscator) Deobfuscate(stored string) (string, error) {
	if !strings.HasPrefix(stored, obfuscatedPrefix) {
		return "", ErrNotObfuscated
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, obfuscatedPrefix))
	if err != nil {
		return "", err
	}
	return string(o.xor(raw)), nil
}

// Reveal is Deobfuscate with the legacy fallback: values that fail to decode
// are assumed to be plaintext written before obfuscation existed. A legacy
// plaintext token that itself starts with "x1:" followed by valid base64 is
// indistinguishable from an encoded one and comes back garbled; issued
// tracking tokens never take that shape.
func (o *Obfuscator) Reveal(stored string) string {
	plain, err := o.Deobfuscate(stored)
	if err != nil {
		return stored
	}
	return plain
}

func (o *Obfuscator) xor(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ o.key[i%len(o.key)]
	}
	return out
}
