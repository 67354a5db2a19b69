package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"zkrent/internal/domain"
)

const (
	outcomeVerified = "verified"
	outcomeRejected = "rejected"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)

type ProofVerifier struct {
	Keys    KeySource
	Engine  ProofEngine
	Metrics Metrics
	Logger  zerolog.Logger
}

// ClaimVerification breaks a proof check into its parts. The proof backs the
// claim only if Valid reports true.
type ClaimVerification struct {
	PairingValid      bool
	ClaimMet          bool
	ThresholdMatches  bool
	CommitmentMatches bool
	Keys              domain.IssuerKeys
}

// Valid ignores the commitment; callers holding an attestation check
// CommitmentMatches separately.
func (v ClaimVerification) Valid() bool {
	return v.PairingValid && v.ClaimMet && v.ThresholdMatches
}

func (v ClaimVerification) Reasons() []string {
	var reasons []string
	if !v.PairingValid {
		return []string{domain.ReasonProofInvalid}
	}
	if !v.ClaimMet {
		reasons = append(reasons, domain.ReasonClaimNotMet)
	}
	if !v.ThresholdMatches {
		reasons = append(reasons, domain.ReasonThresholdMismatch)
	}
	return reasons
}

// VerifyProof runs only the cryptographic check for the circuit named by
// ref. A malformed proof is a validation error, never a false verdict.
func (v *ProofVerifier) VerifyProof(ctx context.Context, ref domain.CircuitRef, proof domain.Proof, signals domain.PublicSignals) (bool, error) {
	keys, err := v.keys(ctx, ref)
	if err != nil {
		return false, err
	}
	return v.verifyWith(keys, proof, signals)
}

// VerifyClaim checks the proof and that its public signals state the claim
// the issuer publishes: result "1" at the issuer's threshold.
func (v *ProofVerifier) VerifyClaim(ctx context.Context, ref domain.CircuitRef, proof domain.Proof, signals domain.PublicSignals) (ClaimVerification, error) {
	keys, err := v.keys(ctx, ref)
	if err != nil {
		return ClaimVerification{}, err
	}
	return v.VerifyClaimWith(keys, proof, signals)
}

// VerifyClaimWith is VerifyClaim with keys already resolved.
func (v *ProofVerifier) VerifyClaimWith(keys domain.IssuerKeys, proof domain.Proof, signals domain.PublicSignals) (ClaimVerification, error) {
	return v.VerifyClaimAt(keys, proof, signals, keys.Circuit.Threshold)
}

// VerifyClaimAt is VerifyClaimWith against a caller-chosen threshold, such as
// a property's minimum income.
func (v *ProofVerifier) VerifyClaimAt(keys domain.IssuerKeys, proof domain.Proof, signals domain.PublicSignals, threshold int64) (ClaimVerification, error) {
	ok, err := v.verifyWith(keys, proof, signals)
	if err != nil {
		return ClaimVerification{}, err
	}
	out := ClaimVerification{
		PairingValid:     ok,
		ClaimMet:         signals.Result() == "1",
		ThresholdMatches: len(signals) > 1 && signals[1] == strconv.FormatInt(threshold, 10),
		Keys:             keys,
	}
	return out, nil
}

// CommitmentSignal returns the commitment carried by a threshold proof.
func CommitmentSignal(signals domain.PublicSignals) string {
	if len(signals) < 3 {
		return ""
	}
	return signals[2]
}

func (v *ProofVerifier) keys(ctx context.Context, ref domain.CircuitRef) (domain.IssuerKeys, error) {
	if v == nil || v.Keys == nil || v.Engine == nil {
		return domain.IssuerKeys{}, errors.New("proof verifier is not configured")
	}
	keys, err := v.Keys.Get(ctx, ref)
	if err != nil {
		return domain.IssuerKeys{}, fmt.Errorf("verification key %s: %w", ref.Key(), err)
	}
	return keys, nil
}

func (v *ProofVerifier) verifyWith(keys domain.IssuerKeys, proof domain.Proof, signals domain.PublicSignals) (bool, error) {
	metrics := metricsOrNop(v.Metrics)
	circuit := keys.Circuit.Name
	if keys.Circuit.NPublic > 0 && len(signals) != keys.Circuit.NPublic {
		metrics.ObserveProof(circuit, outcomeInvalid)
		return false, domain.NewValidationError(domain.Violation{
			Field:   "publicSignals",
			Message: fmt.Sprintf("expected %d elements, got %d", keys.Circuit.NPublic, len(signals)),
		})
	}
	ok, err := v.Engine.Verify(keys.VerificationKey, proof, signals)
	switch {
	case errors.Is(err, domain.ErrValidation):
		metrics.ObserveProof(circuit, outcomeInvalid)
		return false, err
	case err != nil:
		metrics.ObserveProof(circuit, outcomeError)
		return false, fmt.Errorf("verify %s proof: %w", circuit, err)
	case ok:
		metrics.ObserveProof(circuit, outcomeVerified)
	default:
		metrics.ObserveProof(circuit, outcomeRejected)
	}
	v.Logger.Debug().Str("circuit", circuit).Bool("valid", ok).Msg("proof checked")
	return ok, nil
}
