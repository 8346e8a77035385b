package utils

import "golang.org/x/crypto/bcrypt"

const minPasswordLength = 8

// HashPassword returns a bcrypt hash of the given password, refusing
// inputs shorter than the staff password minimum.
func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", NewValidationError("password", "password must be at least 8 characters")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func ComparePassword(hashed string, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
