package auth

import (
	"errors"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyPassword = errors.New("password is empty")

// HashPassword hashes new passwords with argon2id.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// VerifyPassword compares in constant time. Hashes carried over from the
// previous bcrypt-based admin tooling are still accepted.
func VerifyPassword(hash, password string) (bool, error) {
	switch {
	case hash == "":
		return false, errors.New("password hash is empty")
	case strings.HasPrefix(hash, "$argon2id$"):
		return argon2id.ComparePasswordAndHash(password, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return err == nil, err
	default:
		return false, errors.New("unsupported password hash format")
	}
}
