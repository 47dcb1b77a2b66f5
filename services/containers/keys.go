package containers

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/btcsuite/btcutil/bech32"
)

const (
	envSigningKey   = "TAGFORGE_SIGNING_KEY"
	envAgeSecretKey = "AGE_SECRET_KEY"

	ageSeedSize = 32
)

// SigningKeyFromEnv returns the HMAC key used to sign download tokens.
//
// TAGFORGE_SIGNING_KEY (base64, at least 32 bytes decoded) takes precedence.
// Otherwise the key is the 32-byte seed of the age identity in
// AGE_SECRET_KEY, so deployments that already manage an age key need no
// second secret.
func SigningKeyFromEnv() ([]byte, error) {
	if raw := strings.TrimSpace(os.Getenv(envSigningKey)); raw != "" {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", envSigningKey, err)
		}
		if len(decoded) < 32 {
			return nil, fmt.Errorf("%s must decode to at least 32 bytes, got %d", envSigningKey, len(decoded))
		}
		return decoded, nil
	}

	secret := strings.TrimSpace(os.Getenv(envAgeSecretKey))
	if secret == "" {
		return nil, fmt.Errorf("%s or %s must be set", envSigningKey, envAgeSecretKey)
	}

	if _, err := age.ParseX25519Identity(secret); err != nil {
		return nil, fmt.Errorf("parse %s: %w", envAgeSecretKey, err)
	}

	seed, err := decodeAgeSecretKey(secret)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", envAgeSecretKey, err)
	}
	return seed, nil
}

func decodeAgeSecretKey(raw string) ([]byte, error) {
	hrp, data, err := bech32.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(hrp, "age-secret-key-") {
		return nil, fmt.Errorf("unexpected hrp %q", hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(decoded) != ageSeedSize {
		return nil, fmt.Errorf("unexpected seed length %d", len(decoded))
	}
	return decoded, nil
}
