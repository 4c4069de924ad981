package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

var DefaultArgon2Params = Argon2Params{
	Time:    3,
	Memory:  64 * 1024,
	Threads: 2,
	KeyLen:  32,
	SaltLen: 16,
}

var ErrMalformedHash = errors.New("malformed password hash")

const hashFormat = "$argon2id$v=19$t=%d,m=%d,p=%d$%s$%s"

// PasswordHasher encodes passwords as self-describing argon2id strings so
// parameters can be raised without invalidating stored hashes.
type PasswordHasher struct {
	params Argon2Params
}

func NewPasswordHasher(params Argon2Params) PasswordHasher {
	return PasswordHasher{params: params}
}

func (h PasswordHasher) Hash(password string) ([]byte, error) {
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	encoded := fmt.Sprintf(hashFormat,
		h.params.Time, h.params.Memory, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
	return []byte(encoded), nil
}

func (h PasswordHasher) Verify(password string, encodedHash []byte) (bool, error) {
	params, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, computed) == 1, nil
}

func decodeHash(encodedHash []byte) (Argon2Params, []byte, []byte, error) {
	var (
		params  Argon2Params
		saltB64 string
		keyB64  string
	)

	// Sscanf's %s stops at whitespace, not '$', so split the tail by hand.
	var tail string
	if _, err := fmt.Sscanf(string(encodedHash), "$argon2id$v=19$t=%d,m=%d,p=%d$%s",
		&params.Time, &params.Memory, &params.Threads, &tail); err != nil {
		return params, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	for i := 0; i < len(tail); i++ {
		if tail[i] == '$' {
			saltB64, keyB64 = tail[:i], tail[i+1:]
			break
		}
	}
	if saltB64 == "" || keyB64 == "" {
		return params, nil, nil, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(keyB64)
	if err != nil {
		return params, nil, nil, fmt.Errorf("%w: key: %v", ErrMalformedHash, err)
	}

	params.SaltLen = uint32(len(salt))
	params.KeyLen = uint32(len(key))
	return params, salt, key, nil
}
