package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// HashAPIKey returns a bcrypt hash of the key using DefaultCost.
// В конфигурации хранится только хеш, сам ключ знает оператор.
func HashAPIKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckAPIKey compares a bcrypt hashed key with its possible plaintext equivalent.
func CheckAPIKey(hash string, key string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	return err == nil
}
