package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"zkrent/internal/domain"
)

const AlgorithmRSAPSSSHA256 = "RSA-PSS-SHA256"

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}

// Signer signs the canonical JSON form of a value with an issuer RSA key.
type Signer struct {
	key       *rsa.PrivateKey
	publicPEM string
}

func NewSigner(key *rsa.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, errors.New("signing key is required")
	}
	if key.N.BitLen() < 2048 {
		return nil, fmt.Errorf("rsa key too small: %d bits", key.N.BitLen())
	}
	pemStr, err := EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, publicPEM: pemStr}, nil
}

func (s *Signer) Algorithm() string {
	return AlgorithmRSAPSSSHA256
}

func (s *Signer) PublicKeyPEM() string {
	return s.publicPEM
}

// Sign returns the base64 signature over Canonicalize(v).
func (s *Signer) Sign(v any) (string, error) {
	payload, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verifier checks RSA-PSS signatures against PEM encoded public keys. Parsed
// keys are memoized by their PEM text.
type Verifier struct {
	keys sync.Map
}

func NewVerifier() *Verifier {
	return &Verifier{}
}

func (v *Verifier) Verify(publicKeyPEM string, payload any, signature string) error {
	pub, err := v.publicKey(publicKeyPEM)
	if err != nil {
		return err
	}
	return VerifyPSS(pub, payload, signature)
}

func (v *Verifier) publicKey(pemStr string) (*rsa.PublicKey, error) {
	if cached, ok := v.keys.Load(pemStr); ok {
		return cached.(*rsa.PublicKey), nil
	}
	pub, err := ParseRSAPublicKeyPEM([]byte(pemStr))
	if err != nil {
		return nil, err
	}
	v.keys.Store(pemStr, pub)
	return pub, nil
}

func VerifyPSS(pub *rsa.PublicKey, payload any, signature string) error {
	if pub == nil {
		return domain.ErrSignatureInvalid
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) == 0 {
		return domain.ErrSignatureInvalid
	}
	canonical, err := Canonicalize(payload)
	if err != nil {
		return err
	}
	digest := sha256.Sum256(canonical)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, pssOptions); err != nil {
		return domain.ErrSignatureInvalid
	}
	return nil
}
