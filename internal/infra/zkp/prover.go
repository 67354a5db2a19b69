package zkp

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"

	"zkrent/internal/domain"
)

var maxValue = new(big.Int).Lsh(big.NewInt(1), ValueBits)

// ProveThreshold proves value >= threshold for the commitment
// MiMC(value, salt). The proof is produced for either outcome; Result
// carries the answer.
func ProveThreshold(keys *CircuitKeys, value, threshold int64, salt *big.Int) (domain.Proof, domain.PublicSignals, error) {
	if err := checkRange("value", value); err != nil {
		return domain.Proof{}, nil, err
	}
	if err := checkRange("threshold", threshold); err != nil {
		return domain.Proof{}, nil, err
	}
	binding, err := Commit(value, salt)
	if err != nil {
		return domain.Proof{}, nil, err
	}
	result := 0
	if value >= threshold {
		result = 1
	}
	assignment := &ThresholdCircuit{
		Result:    result,
		Threshold: threshold,
		Binding:   binding,
		Value:     value,
		Salt:      salt,
	}
	return prove(keys, assignment)
}

// ProveRentalHistory proves that at least minimum of the given monthly
// payments were on time.
func ProveRentalHistory(keys *CircuitKeys, payments []bool, minimum int) (domain.Proof, domain.PublicSignals, error) {
	if len(payments) != HistoryMonths {
		return domain.Proof{}, nil, domain.NewValidationError(domain.Violation{
			Field:   "payments",
			Message: fmt.Sprintf("expected %d months, got %d", HistoryMonths, len(payments)),
		})
	}
	if minimum < 0 || minimum > HistoryMonths {
		return domain.Proof{}, nil, domain.NewValidationError(domain.Violation{
			Field:   "minOnTimePayments",
			Message: fmt.Sprintf("must be between 0 and %d", HistoryMonths),
		})
	}
	assignment := &RentalHistoryCircuit{MinOnTime: minimum}
	onTime := 0
	for i, paid := range payments {
		if paid {
			assignment.Payments[i] = 1
			onTime++
		} else {
			assignment.Payments[i] = 0
		}
	}
	assignment.Result = 0
	if onTime >= minimum {
		assignment.Result = 1
	}
	return prove(keys, assignment)
}

func prove(keys *CircuitKeys, assignment frontend.Circuit) (domain.Proof, domain.PublicSignals, error) {
	if keys == nil || keys.CS == nil || keys.PK == nil {
		return domain.Proof{}, nil, errors.New("circuit keys are not loaded")
	}
	full, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return domain.Proof{}, nil, fmt.Errorf("build witness: %w", err)
	}
	proof, err := groth16.Prove(keys.CS, keys.PK, full)
	if err != nil {
		return domain.Proof{}, nil, fmt.Errorf("prove %s: %w", keys.Name, err)
	}
	bnProof, ok := proof.(*groth16_bn254.Proof)
	if !ok {
		return domain.Proof{}, nil, fmt.Errorf("unexpected proof type %T", proof)
	}
	public, err := full.Public()
	if err != nil {
		return domain.Proof{}, nil, fmt.Errorf("public witness: %w", err)
	}
	signals, err := exportSignals(public)
	if err != nil {
		return domain.Proof{}, nil, err
	}
	return EncodeProof(bnProof), signals, nil
}

func exportSignals(public witness.Witness) (domain.PublicSignals, error) {
	vec, ok := public.Vector().(fr.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected witness vector type %T", public.Vector())
	}
	return signalsFromElements(vec), nil
}

func checkRange(field string, v int64) error {
	if v < 0 || big.NewInt(v).Cmp(maxValue) >= 0 {
		return domain.NewValidationError(domain.Violation{
			Field:   field,
			Message: fmt.Sprintf("must be between 0 and 2^%d", ValueBits),
		})
	}
	return nil
}
