// Package crypto derives and checks account credentials with Argon2id.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

// SaltLen is the per-account salt size in bytes.
const SaltLen = 16

const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024 // KiB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// Credential is what users.pwd_hash and users.salt_auth store.
type Credential struct {
	Hash []byte
	Salt []byte
}

// NewCredential derives a credential for password under a fresh random salt.
func NewCredential(password string) (Credential, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return Credential{}, err
	}
	return Credential{Hash: derive(password, salt), Salt: salt}, nil
}

// Matches reports whether password derives to c.Hash under c.Salt.
func (c Credential) Matches(password string) bool {
	if len(c.Hash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(derive(password, c.Salt), c.Hash) == 1
}

var decoySalt = make([]byte, SaltLen)

// Decoy spends one derivation and returns false. Login calls it for unknown
// emails so that they cost the same as a wrong password.
func Decoy(password string) bool {
	_ = derive(password, decoySalt)
	return false
}

func derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}
