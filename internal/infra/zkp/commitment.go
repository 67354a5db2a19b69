package zkp

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// Commit computes MiMC(value, salt) over the BN254 scalar field, the same
// hash ThresholdCircuit recomputes in-circuit.
func Commit(value int64, salt *big.Int) (*big.Int, error) {
	if salt == nil {
		return nil, fmt.Errorf("salt is required")
	}
	if salt.Sign() < 0 || salt.Cmp(fr.Modulus()) >= 0 {
		return nil, fmt.Errorf("salt is not a canonical field element")
	}
	var v, s fr.Element
	v.SetBigInt(big.NewInt(value))
	s.SetBigInt(salt)

	h := mimc.NewMiMC()
	if _, err := h.Write(v.Marshal()); err != nil {
		return nil, err
	}
	if _, err := h.Write(s.Marshal()); err != nil {
		return nil, err
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out.BigInt(new(big.Int)), nil
}

func NewSalt() (*big.Int, error) {
	var e fr.Element
	if _, err := e.SetRandom(); err != nil {
		return nil, fmt.Errorf("random salt: %w", err)
	}
	return e.BigInt(new(big.Int)), nil
}

// ParseSalt reads a decimal salt as handed out by the issuer.
func ParseSalt(s string) (*big.Int, error) {
	salt, ok := new(big.Int).SetString(s, 10)
	if !ok || salt.Sign() < 0 || salt.Cmp(fr.Modulus()) >= 0 {
		return nil, fmt.Errorf("invalid salt")
	}
	return salt, nil
}
