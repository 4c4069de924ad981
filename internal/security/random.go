package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*"
	allChars    = upperChars + lowerChars + digitChars + symbolChars
)

// RandomPassword returns a password of the given length drawn from mixed-case
// letters, digits and symbols. Every class appears at least once.
func RandomPassword(length int) (string, error) {
	classes := []string{upperChars, lowerChars, digitChars, symbolChars}
	if length < len(classes) {
		return "", fmt.Errorf("password length %d below minimum %d", length, len(classes))
	}

	out := make([]byte, 0, length)
	for _, class := range classes {
		c, err := pick(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < length {
		c, err := pick(allChars)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", fmt.Errorf("shuffle: %w", err)
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func pick(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("random index: %w", err)
	}
	return set[n.Int64()], nil
}
