package renter

import (
	"errors"
	"fmt"

	"zkrent/internal/domain"
	cryptoinfra "zkrent/internal/infra/crypto"
	"zkrent/internal/infra/zkp"
	"zkrent/internal/usecase"
)

var ErrCommitmentMismatch = errors.New("commitment does not open to the attested value")

// VerifyIssued checks an issued attestation against the issuer's published
// keys before the renter relies on it: both signatures, the issuer id and
// that the salt opens the commitment.
func VerifyIssued(issued usecase.IssueResult, info domain.IssuerKeys) error {
	signed := issued.SignedAttestation
	att := signed.Attestation
	if att.Issuer != info.Metadata.ID {
		return fmt.Errorf("attestation issuer %q, expected %q: %w", att.Issuer, info.Metadata.ID, domain.ErrSignatureInvalid)
	}
	verifier := cryptoinfra.NewVerifier()
	if err := verifier.Verify(info.SigningPublicKey, att, signed.Signature); err != nil {
		return fmt.Errorf("attestation signature: %w", err)
	}
	if err := verifier.Verify(info.SigningPublicKey, att.Presentation(), signed.PresentationSignature); err != nil {
		return fmt.Errorf("presentation signature: %w", err)
	}
	return checkCommitment(att, issued.Salt)
}

func checkCommitment(att domain.Attestation, saltStr string) error {
	salt, err := zkp.ParseSalt(saltStr)
	if err != nil {
		return err
	}
	commitment, err := zkp.Commit(att.Value, salt)
	if err != nil {
		return err
	}
	if commitment.String() != att.Commitment {
		return ErrCommitmentMismatch
	}
	return nil
}

// BuildClaim proves the attested value against threshold and packages the
// proof with the value-free presentation. The value never leaves the
// renter.
func BuildClaim(keys *zkp.CircuitKeys, issued usecase.IssueResult, threshold int64) (usecase.ClaimSubmission, error) {
	att := issued.SignedAttestation.Attestation
	if err := checkCommitment(att, issued.Salt); err != nil {
		return usecase.ClaimSubmission{}, err
	}
	if keys == nil {
		return usecase.ClaimSubmission{}, errors.New("proving keys are required")
	}
	salt, err := zkp.ParseSalt(issued.Salt)
	if err != nil {
		return usecase.ClaimSubmission{}, err
	}
	proof, signals, err := zkp.ProveThreshold(keys, att.Value, threshold, salt)
	if err != nil {
		return usecase.ClaimSubmission{}, fmt.Errorf("prove %s: %w", att.ClaimType, err)
	}
	return usecase.ClaimSubmission{
		Proof:         proof,
		PublicSignals: signals,
		Attestation:   usecase.SubmittedAttestation{Presentation: att.Presentation()},
		Signature:     issued.SignedAttestation.PresentationSignature,
	}, nil
}
