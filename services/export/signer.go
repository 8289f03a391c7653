package export

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"filippo.io/age"
	"github.com/btcsuite/btcutil/bech32"
)

const (
	envAgeSecretKey = "AGE_SECRET_KEY"
	envAgePublicKey = "AGE_PUBLIC_KEY"

	ageSecretKeyHRP = "age-secret-key-"
)

// Signer signs and verifies bundle manifests. The Ed25519 key pair is
// derived from an age X25519 identity seed, so one AGE_SECRET_KEY both
// names the exporter (the age recipient embedded in manifests) and signs
// them. A verify-only Signer holds just the public half.
type Signer struct {
	signKey   ed25519.PrivateKey
	verifyKey ed25519.PublicKey
	recipient string
}

// NewSignerFromEnv builds a Signer from AGE_SECRET_KEY and/or
// AGE_PUBLIC_KEY. Building a bundle needs the secret key; verifying one
// needs only the base64 Ed25519 public key. When both are set they must
// agree.
func NewSignerFromEnv() (*Signer, error) {
	secret := strings.TrimSpace(os.Getenv(envAgeSecretKey))
	pub := strings.TrimSpace(os.Getenv(envAgePublicKey))
	if secret == "" && pub == "" {
		return nil, fmt.Errorf("%s or %s must be set", envAgeSecretKey, envAgePublicKey)
	}

	var signer *Signer
	if secret != "" {
		s, err := signerFromSecret(secret)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", envAgeSecretKey, err)
		}
		signer = s
	} else {
		signer = &Signer{}
	}

	if pub != "" {
		decoded, err := decodePublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", envAgePublicKey, err)
		}
		if signer.verifyKey != nil && !bytes.Equal(signer.verifyKey, decoded) {
			return nil, fmt.Errorf("%s does not match %s", envAgePublicKey, envAgeSecretKey)
		}
		signer.verifyKey = decoded
	}

	return signer, nil
}

// signerFromSecret derives the signing pair from a bech32 age identity.
func signerFromSecret(secret string) (*Signer, error) {
	seed, err := decodeAgeSeed(secret)
	if err != nil {
		return nil, err
	}

	signKey := ed25519.NewKeyFromSeed(seed)
	s := &Signer{
		signKey:   signKey,
		verifyKey: ed25519.PublicKey(signKey[ed25519.SeedSize:]),
	}

	// The recipient string identifies the exporter inside manifests. A
	// seed that is not a parseable identity still signs fine.
	if identity, err := age.ParseX25519Identity(secret); err == nil {
		if r := identity.Recipient(); r != nil {
			s.recipient = r.String()
		}
	}
	return s, nil
}

// Sign returns a base64 Ed25519 signature over the payload. Verify-only
// signers refuse.
func (s *Signer) Sign(payload []byte) (string, error) {
	if s == nil || len(s.signKey) == 0 {
		return "", errors.New("signing requires the age secret key")
	}
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.signKey, payload)), nil
}

// Verify checks the base64 signature over the payload. A manifest that
// embeds its signing public key must match the configured one; absent a
// configured key, the embedded one is trusted.
func (s *Signer) Verify(payload []byte, signature, manifestPublicKey string) error {
	if s == nil {
		return errors.New("nil signer")
	}

	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length %d", len(sig))
	}

	key, err := s.verificationKey(manifestPublicKey)
	if err != nil {
		return err
	}
	if !ed25519.Verify(key, payload, sig) {
		return errors.New("signature verification failed")
	}
	return nil
}

func (s *Signer) verificationKey(manifestPublicKey string) (ed25519.PublicKey, error) {
	if manifestPublicKey == "" {
		if s.verifyKey == nil {
			return nil, errors.New("no public key available for verification")
		}
		return s.verifyKey, nil
	}

	embedded, err := decodePublicKey(manifestPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode manifest public key: %w", err)
	}
	if s.verifyKey != nil && !bytes.Equal(s.verifyKey, embedded) {
		return nil, errors.New("manifest signed by unexpected key")
	}
	if s.verifyKey != nil {
		return s.verifyKey, nil
	}
	return embedded, nil
}

// PublicKeyBase64 returns the Ed25519 public key in base64 form, or ""
// for an empty signer.
func (s *Signer) PublicKeyBase64() string {
	if s == nil || len(s.verifyKey) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.verifyKey)
}

// Recipient returns the age recipient string when the signer holds the
// secret key, "" otherwise.
func (s *Signer) Recipient() string {
	if s == nil {
		return ""
	}
	return s.recipient
}

func decodePublicKey(encoded string) (ed25519.PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(decoded))
	}
	return ed25519.PublicKey(decoded), nil
}

// decodeAgeSeed unpacks the 32-byte seed from a bech32-encoded age
// secret key.
func decodeAgeSeed(raw string) ([]byte, error) {
	hrp, data, err := bech32.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(hrp, ageSecretKeyHRP) {
		return nil, fmt.Errorf("unexpected hrp %q", hrp)
	}
	seed, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("unexpected seed length %d", len(seed))
	}
	return seed, nil
}
