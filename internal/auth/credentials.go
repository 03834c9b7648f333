package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Fixed argon2id parameters. These are configuration of the deployment, not
// of individual calls; changing them only affects newly written hashes
// because every stored hash carries its own parameters in the PHC string.
const (
	argonMemory      = 64 * 1024
	argonIterations  = 2
	argonParallelism = 1
	argonKeyLength   = 32
	argonSaltLength  = 16
)

func hashSecret(secret string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(secret), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		argonMemory,
		argonIterations,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// verifySecret recomputes the argon2id hash with the parameters embedded in
// the stored PHC string and compares in constant time.
func verifySecret(encoded, secret string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("unsupported credential format")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("unsupported credential format")
	}
	if version != argon2.Version {
		return false, fmt.Errorf("unsupported argon2 version %d", version)
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, fmt.Errorf("unsupported credential format")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("unsupported credential format")
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("unsupported credential format")
	}

	got := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// SetCredential validates the new secret, hashes it and replaces any prior
// credential for the user.
func (s *Service) SetCredential(ctx context.Context, userID, secret string) error {
	if _, err := ValidatePassword(secret); err != nil {
		return err
	}
	encoded, err := hashSecret(secret)
	if err != nil {
		return err
	}
	return s.credentials.Set(ctx, userID, encoded)
}

// VerifyCredential checks a secret against the stored hash. A missing
// credential and a mismatch are indistinguishable to the caller.
func (s *Service) VerifyCredential(ctx context.Context, userID, secret string) error {
	encoded, err := s.credentials.Get(ctx, userID)
	if err != nil {
		return ErrInvalidCredential
	}
	ok, err := verifySecret(encoded, secret)
	if err != nil || !ok {
		return ErrInvalidCredential
	}
	return nil
}
