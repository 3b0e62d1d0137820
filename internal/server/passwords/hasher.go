// Package passwords hashes and verifies user passwords.
//
// Two formats are supported: bcrypt ("$2a$...") and argon2id in PHC string
// format ("$argon2id$v=19$m=...,t=...,p=...$salt$hash"). Verification
// dispatches on the stored hash, so switching the configured algorithm does
// not lock out existing users.
package passwords

import (
	"errors"
	"fmt"
	"strings"
)

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

var (
	ErrEmptyPassword   = errors.New("password must not be empty")
	ErrUnknownHashType = errors.New("unknown password hash format")
)

// Hasher produces and checks password hashes.
type Hasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches hash. A mismatch is (false, nil);
	// an error means the hash itself could not be used.
	Verify(password, hash string) (bool, error)
}

// New returns a hasher that writes hashes with the named algorithm and
// verifies either format.
func New(algorithm string, bcryptCost int) (Hasher, error) {
	var primary Hasher
	switch strings.ToLower(algorithm) {
	case "", AlgorithmBcrypt:
		primary = NewBcrypt(bcryptCost)
	case AlgorithmArgon2id:
		primary = NewArgon2id(DefaultArgon2idParams)
	default:
		return nil, fmt.Errorf("unsupported password hasher %q", algorithm)
	}

	return &dispatcher{
		primary:  primary,
		bcrypt:   NewBcrypt(bcryptCost),
		argon2id: NewArgon2id(DefaultArgon2idParams),
	}, nil
}

type dispatcher struct {
	primary  Hasher
	bcrypt   Hasher
	argon2id Hasher
}

func (d *dispatcher) Hash(password string) (string, error) {
	return d.primary.Hash(password)
}

func (d *dispatcher) Verify(password, hash string) (bool, error) {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return d.argon2id.Verify(password, hash)
	case strings.HasPrefix(hash, "$2"):
		return d.bcrypt.Verify(password, hash)
	default:
		return false, ErrUnknownHashType
	}
}
