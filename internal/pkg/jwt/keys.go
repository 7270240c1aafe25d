package jwt

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"

	jose "github.com/go-jose/go-jose/v4"
)

const (
	// MinKeyBits is the smallest RSA modulus accepted for signing.
	MinKeyBits = 2048
	// Algorithm is the only signing algorithm the provider emits.
	Algorithm = "RS256"
)

var (
	ErrNoKeys       = errors.New("key set contains no keys")
	ErrNotPrivate   = errors.New("key is not an RSA private key")
	ErrMissingKeyID = errors.New("key has no kid")
)

// SigningKey is the active private key and the identifier published with
// its public half.
type SigningKey struct {
	KID     string
	Private *rsa.PrivateKey
}

// Public returns the verification half of the key.
func (k *SigningKey) Public() *rsa.PublicKey {
	return &k.Private.PublicKey
}

// KeyID derives the kid of a public key: CRC-32 over the key's JWK
// encoding, rendered like Python's hex() (0x prefix, no padding).
func KeyID(pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("nil public key")
	}
	b, err := jose.JSONWebKey{Key: pub}.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to export public key: %w", err)
	}
	return fmt.Sprintf("%#x", crc32.ChecksumIEEE(b)), nil
}

// PrivateJWK wraps a private key for export.
func PrivateJWK(key *rsa.PrivateKey, kid string) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       key,
		KeyID:     kid,
		Algorithm: Algorithm,
		Use:       "sig",
	}
}

// PublicJWK wraps the public half of a private key for export.
func PublicJWK(key *rsa.PrivateKey, kid string) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       &key.PublicKey,
		KeyID:     kid,
		Algorithm: Algorithm,
		Use:       "sig",
	}
}

// EncodeKeySet renders a JWK set the way it is written to disk.
func EncodeKeySet(keys ...jose.JSONWebKey) ([]byte, error) {
	b, err := json.MarshalIndent(jose.JSONWebKeySet{Keys: keys}, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode key set: %w", err)
	}
	return append(b, '\n'), nil
}

// DecodeKeySet parses a JWK set. A bare JWK object is accepted as a set of
// one, which is what older generators wrote.
func DecodeKeySet(data []byte) ([]jose.JSONWebKey, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse key set: %w", err)
	}

	if _, ok := probe["keys"]; ok {
		var set jose.JSONWebKeySet
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("failed to parse key set: %w", err)
		}
		if len(set.Keys) == 0 {
			return nil, ErrNoKeys
		}
		return set.Keys, nil
	}

	var key jose.JSONWebKey
	if err := key.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to parse key: %w", err)
	}
	return []jose.JSONWebKey{key}, nil
}

// SelectSigningKey picks the active key out of a decoded set. Only one key
// is ever active: the last entry wins and the others are discarded.
func SelectSigningKey(keys []jose.JSONWebKey) (*SigningKey, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	last := keys[len(keys)-1]

	priv, ok := last.Key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key %q: %w", last.KeyID, ErrNotPrivate)
	}
	if last.KeyID == "" {
		return nil, ErrMissingKeyID
	}
	if bits := priv.N.BitLen(); bits < MinKeyBits {
		return nil, fmt.Errorf("key %q is %d bits, need at least %d", last.KeyID, bits, MinKeyBits)
	}
	if err := priv.Validate(); err != nil {
		return nil, fmt.Errorf("key %q is invalid: %w", last.KeyID, err)
	}

	return &SigningKey{KID: last.KeyID, Private: priv}, nil
}

// LoadRSAPrivateKeyFromJWKS reads the private key set at path and returns
// the active signing key together with the number of keys the set held.
func LoadRSAPrivateKeyFromJWKS(path string) (*SigningKey, int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read private key set: %w", err)
	}

	keys, err := DecodeKeySet(b)
	if err != nil {
		return nil, 0, err
	}

	key, err := SelectSigningKey(keys)
	if err != nil {
		return nil, len(keys), err
	}
	return key, len(keys), nil
}

// LoadRSAPublicKeysFromJWKS reads a public key set and indexes it by kid.
func LoadRSAPublicKeysFromJWKS(path string) (map[string]*rsa.PublicKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key set: %w", err)
	}

	keys, err := DecodeKeySet(b)
	if err != nil {
		return nil, err
	}
	return PublicKeys(keys)
}

// PublicKeys indexes the RSA keys of a set by kid. Private keys contribute
// their public half.
func PublicKeys(keys []jose.JSONWebKey) (map[string]*rsa.PublicKey, error) {
	out := make(map[string]*rsa.PublicKey, len(keys))
	for _, k := range keys {
		if k.KeyID == "" {
			return nil, ErrMissingKeyID
		}
		switch key := k.Key.(type) {
		case *rsa.PublicKey:
			out[k.KeyID] = key
		case *rsa.PrivateKey:
			out[k.KeyID] = &key.PublicKey
		default:
			return nil, fmt.Errorf("key %q is %T, not RSA", k.KeyID, k.Key)
		}
	}
	return out, nil
}
