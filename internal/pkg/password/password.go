// Package password hashes and verifies credential-store passwords.
//
// New hashes are always bcrypt. Verification also understands the werkzeug
// formats ("pbkdf2:sha256:<iter>$salt$hex" and "scrypt:N:r:p$salt$hex") so
// credential files written by the previous Python tooling keep working.
package password

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// DefaultCost is the bcrypt cost used by the generator.
const DefaultCost = bcrypt.DefaultCost

// werkzeug 2.x default when the iteration count is omitted.
const werkzeugPBKDF2Iterations = 260000

var (
	ErrMismatch          = errors.New("password does not match")
	ErrUnsupportedFormat = errors.New("unsupported password hash format")
)

// Hash returns a salted bcrypt hash of plain.
func Hash(plain string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Verify checks plain against a stored hash. It returns nil on a match,
// ErrMismatch on a wrong password and another error when the stored hash
// cannot be interpreted.
func Verify(hashed, plain string) error {
	switch {
	case strings.HasPrefix(hashed, "$2"):
		err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatch
		}
		return err
	case strings.HasPrefix(hashed, "pbkdf2:"), strings.HasPrefix(hashed, "scrypt:"):
		return verifyWerkzeug(hashed, plain)
	default:
		return ErrUnsupportedFormat
	}
}

const decoyPassword = "not-a-real-password"

// Decoy is a hash shaped like a stored one. Checking an unknown user against
// it costs the same as checking a known user with a wrong password.
type Decoy struct {
	hash string
}

// NewDecoy builds a decoy with the scheme and cost of like. Unknown or
// unreadable formats fall back to bcrypt at DefaultCost.
func NewDecoy(like string) *Decoy {
	switch {
	case strings.HasPrefix(like, "$2"):
		cost, err := bcrypt.Cost([]byte(like))
		if err != nil {
			cost = DefaultCost
		}
		if h, err := Hash(decoyPassword, cost); err == nil {
			return &Decoy{hash: h}
		}
	case strings.HasPrefix(like, "pbkdf2:"), strings.HasPrefix(like, "scrypt:"):
		if method, salt, _, ok := splitWerkzeug(like); ok {
			if key, err := deriveWerkzeug(method, []byte(salt), []byte(decoyPassword)); err == nil {
				return &Decoy{hash: method + "$" + salt + "$" + hex.EncodeToString(key)}
			}
		}
	}

	h, _ := Hash(decoyPassword, DefaultCost)
	return &Decoy{hash: h}
}

// Burn runs a full verification against the decoy and discards the result.
func (d *Decoy) Burn(plain string) {
	_ = Verify(d.hash, plain)
}

func verifyWerkzeug(hashed, plain string) error {
	method, salt, digest, ok := splitWerkzeug(hashed)
	if !ok {
		return ErrUnsupportedFormat
	}
	want, err := hex.DecodeString(digest)
	if err != nil {
		return fmt.Errorf("%w: bad digest encoding", ErrUnsupportedFormat)
	}

	got, err := deriveWerkzeug(method, []byte(salt), []byte(plain))
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrMismatch
	}
	return nil
}

func splitWerkzeug(hashed string) (method, salt, digest string, ok bool) {
	parts := strings.SplitN(hashed, "$", 3)
	if len(parts) != 3 {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func deriveWerkzeug(method string, salt, plain []byte) ([]byte, error) {
	fields := strings.Split(method, ":")
	switch fields[0] {
	case "pbkdf2":
		if len(fields) < 2 || len(fields) > 3 {
			return nil, ErrUnsupportedFormat
		}
		newHash, size, err := hashByName(fields[1])
		if err != nil {
			return nil, err
		}
		iterations := werkzeugPBKDF2Iterations
		if len(fields) == 3 {
			if iterations, err = strconv.Atoi(fields[2]); err != nil || iterations <= 0 {
				return nil, fmt.Errorf("%w: bad iteration count", ErrUnsupportedFormat)
			}
		}
		return pbkdf2.Key(plain, salt, iterations, size, newHash), nil

	case "scrypt":
		if len(fields) != 4 {
			return nil, ErrUnsupportedFormat
		}
		var params [3]int
		for i, f := range fields[1:] {
			v, err := strconv.Atoi(f)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("%w: bad scrypt parameter", ErrUnsupportedFormat)
			}
			params[i] = v
		}
		key, err := scrypt.Key(plain, salt, params[0], params[1], params[2], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return key, nil
	}
	return nil, ErrUnsupportedFormat
}

func hashByName(name string) (func() hash.Hash, int, error) {
	switch name {
	case "sha1":
		return sha1.New, sha1.Size, nil
	case "sha256":
		return sha256.New, sha256.Size, nil
	case "sha512":
		return sha512.New, sha512.Size, nil
	}
	return nil, 0, fmt.Errorf("%w: hash %q", ErrUnsupportedFormat, name)
}
