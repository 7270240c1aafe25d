// internal/repository/file/credential_repo.go
package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"jwt-provider/internal/domain/credential"
)

var ErrEmptyCredentials = errors.New("credential file contains no users")

// CredentialRepository is the credential table loaded once at startup. It
// is never written after construction, so concurrent readers need no lock.
type CredentialRepository struct {
	table credential.Table
}

func NewCredentialRepository(table credential.Table) *CredentialRepository {
	cp := make(credential.Table, len(table))
	for k, v := range table {
		cp[k] = v
	}
	return &CredentialRepository{table: cp}
}

// LoadCredentials reads the credential file at path.
func LoadCredentials(path string) (*CredentialRepository, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	table, err := DecodeCredentials(b)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials %s: %w", path, err)
	}
	return &CredentialRepository{table: table}, nil
}

// DecodeCredentials parses the flat username -> hash object.
func DecodeCredentials(b []byte) (credential.Table, error) {
	var table credential.Table
	if err := json.Unmarshal(b, &table); err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, ErrEmptyCredentials
	}
	for name, hash := range table {
		if name == "" {
			return nil, fmt.Errorf("empty username")
		}
		if hash == "" {
			return nil, fmt.Errorf("user %q has an empty hash", name)
		}
	}
	return table, nil
}

// EncodeCredentials renders the table as written to disk.
func EncodeCredentials(table credential.Table) ([]byte, error) {
	b, err := json.Marshal(table)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}
	return b, nil
}

// FindPasswordHash returns the stored hash for username.
func (r *CredentialRepository) FindPasswordHash(username string) (string, bool) {
	h, ok := r.table[username]
	return h, ok
}

// Usernames lists the known users in sorted order.
func (r *CredentialRepository) Usernames() []string {
	names := make([]string, 0, len(r.table))
	for name := range r.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *CredentialRepository) Count() int {
	return len(r.table)
}
