package approval

import (
	"crypto/rand"
	"errors"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// TemporaryCredentialLength is the length of admin-issued temporary
// credentials. Long enough to resist guessing for the single forced-reset
// login it is expected to survive.
const TemporaryCredentialLength = 12

const credentialAlphabet = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateTemporaryCredential returns a random credential drawn from an
// unambiguous alphanumeric alphabet. The approval workflow provisions it on
// the target account; the recipient is forced through a password change on
// first login, so it is single use in spirit.
func GenerateTemporaryCredential() (string, error) {
	out := make([]byte, TemporaryCredentialLength)
	max := big.NewInt(int64(len(credentialAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate temporary credential")
		}
		out[i] = credentialAlphabet[n.Int64()]
	}
	return string(out), nil
}

// PlaceholderCredential returns the throwaway credential set at registration
// time. It is never disclosed to anyone; the account stays unusable until
// the approval workflow issues the real temporary credential.
func PlaceholderCredential() (string, error) {
	return GenerateTemporaryCredential()
}
