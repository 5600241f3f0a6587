package password

import (
	"unicode"

	gopassword "github.com/sethvargo/go-password/password"
	"golang.org/x/crypto/bcrypt"
)

const MinLength = 8

func Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func Compare(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}

// IsStrong requires at least 8 characters with upper, lower, digit and a symbol.
func IsStrong(plain string) bool {
	if len(plain) < MinLength {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range plain {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	return upper && lower && digit && special
}

// Unusable returns a hash of a random secret nobody knows. Placeholder accounts
// get one so they can only sign in through a magic link.
func Unusable() (string, error) {
	secret, err := gopassword.Generate(32, 8, 8, false, true)
	if err != nil {
		return "", err
	}
	return Hash(secret)
}
