package zkp

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	groth16_bn254 "github.com/consensys/gnark/backend/groth16/bn254"

	"zkrent/internal/domain"
)

// EncodeProof renders a BN254 Groth16 proof in the pi_a/pi_b/pi_c JSON shape.
func EncodeProof(p *groth16_bn254.Proof) domain.Proof {
	return domain.Proof{
		PiA: []string{fpString(&p.Ar.X), fpString(&p.Ar.Y)},
		PiB: [][]string{
			{fpString(&p.Bs.X.A0), fpString(&p.Bs.X.A1)},
			{fpString(&p.Bs.Y.A0), fpString(&p.Bs.Y.A1)},
		},
		PiC:      []string{fpString(&p.Krs.X), fpString(&p.Krs.Y)},
		Protocol: domain.ProtocolGroth16,
		Curve:    domain.CurveBN254,
	}
}

func fpString(e *fp.Element) string {
	return e.BigInt(new(big.Int)).String()
}

// ValidateProofShape checks protocol, curve, arity and that every
// coordinate is a canonical base field element. All violations are reported.
func ValidateProofShape(p domain.Proof) error {
	_, err := decodeProof(p)
	return err
}

// DecodeProof parses the JSON proof. Shape problems come back as a
// *domain.ValidationError; the points are not checked against the curve.
func DecodeProof(p domain.Proof) (*groth16_bn254.Proof, error) {
	return decodeProof(p)
}

func decodeProof(p domain.Proof) (*groth16_bn254.Proof, error) {
	verr := &domain.ValidationError{}
	switch strings.ToLower(p.Protocol) {
	case domain.ProtocolGroth16:
	case "":
		verr.Add("proof.protocol", "is required")
	default:
		verr.Add("proof.protocol", fmt.Sprintf("unsupported protocol %q", p.Protocol))
	}
	switch strings.ToLower(p.Curve) {
	case "", domain.CurveBN128, domain.CurveBN254:
	default:
		verr.Add("proof.curve", fmt.Sprintf("unsupported curve %q", p.Curve))
	}

	out := &groth16_bn254.Proof{}
	if len(p.PiA) != 2 {
		verr.Add("proof.pi_a", fmt.Sprintf("expected 2 elements, got %d", len(p.PiA)))
	} else {
		parseFp(verr, "proof.pi_a[0]", p.PiA[0], &out.Ar.X)
		parseFp(verr, "proof.pi_a[1]", p.PiA[1], &out.Ar.Y)
	}
	if len(p.PiB) != 2 || len(p.PiB[0]) != 2 || len(p.PiB[1]) != 2 {
		verr.Add("proof.pi_b", "expected 2x2 elements")
	} else {
		parseFp(verr, "proof.pi_b[0][0]", p.PiB[0][0], &out.Bs.X.A0)
		parseFp(verr, "proof.pi_b[0][1]", p.PiB[0][1], &out.Bs.X.A1)
		parseFp(verr, "proof.pi_b[1][0]", p.PiB[1][0], &out.Bs.Y.A0)
		parseFp(verr, "proof.pi_b[1][1]", p.PiB[1][1], &out.Bs.Y.A1)
	}
	if len(p.PiC) != 2 {
		verr.Add("proof.pi_c", fmt.Sprintf("expected 2 elements, got %d", len(p.PiC)))
	} else {
		parseFp(verr, "proof.pi_c[0]", p.PiC[0], &out.Krs.X)
		parseFp(verr, "proof.pi_c[1]", p.PiC[1], &out.Krs.Y)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseFp(verr *domain.ValidationError, field, s string, dst *fp.Element) {
	n, ok := parseCanonical(s, fp.Modulus())
	if !ok {
		verr.Add(field, "must be a decimal base field element")
		return
	}
	dst.SetBigInt(n)
}

// DecodeSignals parses public signals as scalar field elements.
func DecodeSignals(signals domain.PublicSignals, expected int) ([]fr.Element, error) {
	verr := &domain.ValidationError{}
	if len(signals) != expected {
		verr.Add("publicSignals", fmt.Sprintf("expected %d elements, got %d", expected, len(signals)))
		return nil, verr
	}
	out := make([]fr.Element, len(signals))
	for i, s := range signals {
		n, ok := parseCanonical(s, fr.Modulus())
		if !ok {
			verr.Add(fmt.Sprintf("publicSignals[%d]", i), "must be a decimal scalar field element")
			continue
		}
		out[i].SetBigInt(n)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func parseCanonical(s string, modulus *big.Int) (*big.Int, bool) {
	if s == "" || strings.TrimSpace(s) != s {
		return nil, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, false
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Cmp(modulus) >= 0 {
		return nil, false
	}
	return n, true
}

func signalsFromElements(elems fr.Vector) domain.PublicSignals {
	out := make(domain.PublicSignals, len(elems))
	for i := range elems {
		out[i] = elems[i].BigInt(new(big.Int)).String()
	}
	return out
}
