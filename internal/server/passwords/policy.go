package passwords

import (
	"errors"
	"fmt"
	"unicode"
)

const (
	// MinLength is the shortest password the strength policy accepts.
	MinLength = 8
	// MaxLength is the longest password any hasher accepts, in bytes.
	// bcrypt cannot hash more than this.
	MaxLength = 72
)

var (
	ErrPasswordTooLong  = fmt.Errorf("password must be at most %d bytes", MaxLength)
	ErrPasswordTooShort = fmt.Errorf("password must be at least %d characters", MinLength)
	ErrPasswordTooWeak  = errors.New("password must contain at least one letter and one number")
)

// CheckLength reports whether password can be hashed at all.
func CheckLength(password string) error {
	switch {
	case password == "":
		return ErrEmptyPassword
	case len(password) > MaxLength:
		return ErrPasswordTooLong
	}
	return nil
}

// CheckStrength applies the account password policy used by the public
// transports: at least MinLength characters with a letter and a digit.
func CheckStrength(password string) error {
	if err := CheckLength(password); err != nil {
		return err
	}
	if len([]rune(password)) < MinLength {
		return ErrPasswordTooShort
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return ErrPasswordTooWeak
	}
	return nil
}
