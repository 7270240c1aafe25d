// internal/domain/credential/dto.go
package credential

// GenerateRequest is the input of one generator run.
type GenerateRequest struct {
	Pairs []Pair

	CredentialsPath string
	PrivateKeyPath  string
	PublicKeyPath   string

	KeyBits    int
	BcryptCost int
}

// GenerateResult describes what a generator run wrote.
type GenerateResult struct {
	KeyID           string
	Usernames       []string
	CredentialsPath string
	PrivateKeyPath  string
	PublicKeyPath   string
}
