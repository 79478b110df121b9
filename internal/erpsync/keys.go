package erpsync

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyChecker validates ERP API keys against bcrypt hashes.
type KeyChecker struct {
	hashes [][]byte
}

// NewKeyChecker builds a checker from configured keys. Entries that already
// look like bcrypt hashes are kept; plain keys are hashed once here so no
// plaintext stays in memory after start-up.
func NewKeyChecker(keys []string) (*KeyChecker, error) {
	checker := &KeyChecker{}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if isBcrypt(key) {
			checker.hashes = append(checker.hashes, []byte(key))
			continue
		}
		hash, err := HashKey(key)
		if err != nil {
			return nil, err
		}
		checker.hashes = append(checker.hashes, []byte(hash))
	}
	return checker, nil
}

// HashKey returns the bcrypt hash to store for key.
func HashKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Valid reports whether key matches a configured hash.
func (c *KeyChecker) Valid(key string) bool {
	if c == nil || key == "" {
		return false
	}
	for _, hash := range c.hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			return true
		}
	}
	return false
}

// Empty reports whether no key is configured.
func (c *KeyChecker) Empty() bool {
	return c == nil || len(c.hashes) == 0
}

func isBcrypt(s string) bool {
	if _, err := bcrypt.Cost([]byte(s)); err != nil {
		return false
	}
	return true
}
