package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"skyguard/internal/auth"
)

// tokenByteLength gives generated secrets 256 bits of entropy.
const tokenByteLength = 32

// GenerateSecureToken returns 32 random bytes, hex encoded.
//
// The result is 64 characters from [0-9a-f], which survives shell quoting,
// environment variables and SSM without escaping. A crypto/rand failure is
// returned rather than retried: it means the OS entropy source is broken and
// no token from this host should be trusted.
func GenerateSecureToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secure token: crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashSchedulerToken derives the SCHEDULER_TOKEN_HASH value the API
// compares machine tokens against.
//
// It must use the same function as the API's verifier. A hash computed any
// other way stores fine and then rejects every scheduler call with 401.
func HashSchedulerToken(token string) (string, error) {
	hash, err := auth.HashMachineToken(token)
	if err != nil {
		return "", fmt.Errorf("hashing scheduler token: %w", err)
	}
	return hash, nil
}
