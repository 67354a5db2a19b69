package zkp

import (
	"fmt"

	"zkrent/internal/domain"
)

func ThresholdDescriptor(name string, threshold int64) domain.CircuitDescriptor {
	names := ThresholdSignalNames()
	return domain.CircuitDescriptor{
		Name:          name,
		Protocol:      domain.ProtocolGroth16,
		Curve:         domain.CurveBN128,
		NPublic:       len(names),
		PublicSignals: names,
		Threshold:     threshold,
		Comparison:    domain.ComparisonGTE,
	}
}

func RentalHistoryDescriptor(minimum int) domain.CircuitDescriptor {
	names := RentalHistorySignalNames()
	return domain.CircuitDescriptor{
		Name:          domain.CircuitRentalHistory,
		Protocol:      domain.ProtocolGroth16,
		Curve:         domain.CurveBN128,
		NPublic:       len(names),
		PublicSignals: names,
		Threshold:     int64(minimum),
		Comparison:    domain.ComparisonGTE,
	}
}

// PublishedKeys assembles what an issuer serves on /public-info for one
// circuit. The descriptor arity must match the compiled circuit.
func PublishedKeys(meta domain.IssuerMetadata, desc domain.CircuitDescriptor, keys *CircuitKeys, signingPublicKeyPEM string) (domain.IssuerKeys, error) {
	if keys == nil {
		return domain.IssuerKeys{}, fmt.Errorf("circuit %s has no keys", desc.Name)
	}
	if n := keys.VK.NbPublicWitness(); n != desc.NPublic {
		return domain.IssuerKeys{}, fmt.Errorf("circuit %s: descriptor lists %d public signals, key has %d", desc.Name, desc.NPublic, n)
	}
	vk, err := keys.VerificationKeyBytes()
	if err != nil {
		return domain.IssuerKeys{}, err
	}
	meta.Circuit = desc.Name
	meta.Threshold = desc.Threshold
	return domain.IssuerKeys{
		Metadata:         meta,
		Circuit:          desc,
		VerificationKey:  vk,
		SigningPublicKey: signingPublicKeyPEM,
	}, nil
}
