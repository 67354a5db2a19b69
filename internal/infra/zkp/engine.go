package zkp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/witness"
	"github.com/rs/zerolog"

	"zkrent/internal/domain"
)

// Engine verifies Groth16 proofs against binary verification keys. Parsed
// keys are cached by content digest.
type Engine struct {
	logger zerolog.Logger

	mu  sync.RWMutex
	vks map[string]groth16.VerifyingKey
}

func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger, vks: make(map[string]groth16.VerifyingKey)}
}

// Verify reports whether proof is valid for signals under vkBytes.
//
// Malformed input (bad arity, non-canonical coordinates, wrong signal count)
// is a *domain.ValidationError. A well-formed proof that is off-curve, outside
// the prime-order subgroup or rejected by the pairing check is (false, nil).
func (e *Engine) Verify(vkBytes []byte, proof domain.Proof, signals domain.PublicSignals) (bool, error) {
	vk, err := e.verifyingKey(vkBytes)
	if err != nil {
		return false, err
	}

	verr := &domain.ValidationError{}
	bnProof, perr := DecodeProof(proof)
	if v, ok := domain.AsValidationError(perr); ok {
		verr.Violations = append(verr.Violations, v.Violations...)
	} else if perr != nil {
		return false, perr
	}
	elems, serr := DecodeSignals(signals, vk.NbPublicWitness())
	if v, ok := domain.AsValidationError(serr); ok {
		verr.Violations = append(verr.Violations, v.Violations...)
	} else if serr != nil {
		return false, serr
	}
	if err := verr.OrNil(); err != nil {
		return false, err
	}

	if !pointsValid(bnProof) {
		e.logger.Debug().Msg("proof points not on curve or not in subgroup")
		return false, nil
	}

	public, err := publicWitness(elems)
	if err != nil {
		return false, err
	}
	if err := groth16.Verify(bnProof, vk, public); err != nil {
		e.logger.Debug().Err(err).Msg("pairing check failed")
		return false, nil
	}
	return true, nil
}

func (e *Engine) verifyingKey(vkBytes []byte) (groth16.VerifyingKey, error) {
	if len(vkBytes) == 0 {
		return nil, fmt.Errorf("verification key is empty")
	}
	sum := sha256.Sum256(vkBytes)
	key := hex.EncodeToString(sum[:])

	e.mu.RLock()
	vk, ok := e.vks[key]
	e.mu.RUnlock()
	if ok {
		return vk, nil
	}
	vk, err := ParseVerifyingKey(vkBytes)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.vks[key] = vk
	e.mu.Unlock()
	return vk, nil
}

func pointsValid(p *groth16_bn254.Proof) bool {
	return p.Ar.IsOnCurve() && p.Ar.IsInSubGroup() &&
		p.Bs.IsOnCurve() && p.Bs.IsInSubGroup() &&
		p.Krs.IsOnCurve() && p.Krs.IsInSubGroup()
}

func publicWitness(elems []fr.Element) (witness.Witness, error) {
	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("create witness: %w", err)
	}
	values := make(chan any, len(elems))
	for _, el := range elems {
		values <- el
	}
	close(values)
	if err := w.Fill(len(elems), 0, values); err != nil {
		return nil, fmt.Errorf("fill witness: %w", err)
	}
	return w.Public()
}
