// internal/domain/credential/entity.go
package credential

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Pair is a username with its plaintext password. It only exists while the
// generator runs and is never persisted.
type Pair struct {
	Username string
	Password string
}

// ParsePair splits "name:password". The password may itself contain ':'.
func ParsePair(s string) (Pair, error) {
	name, pass, ok := strings.Cut(s, ":")
	if !ok {
		return Pair{}, fmt.Errorf("malformed credential, expected name:password")
	}
	p := Pair{Username: name, Password: pass}
	if err := p.Validate(); err != nil {
		return Pair{}, err
	}
	return p, nil
}

func (p Pair) Validate() error {
	if p.Username == "" {
		return fmt.Errorf("credential has an empty username")
	}
	if p.Password == "" {
		return fmt.Errorf("credential %q has an empty password", p.Username)
	}
	return nil
}

// Table maps a case-sensitive username to its salted password hash. On disk
// it is a flat JSON object.
type Table map[string]string

// ParsePairs reads one name:password per line. Blank lines and lines
// starting with '#' are skipped.
func ParsePairs(r io.Reader) ([]Pair, error) {
	var pairs []Pair
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(strings.TrimSpace(text), "#") {
			continue
		}
		p, err := ParsePair(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pairs = append(pairs, p)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return pairs, nil
}
