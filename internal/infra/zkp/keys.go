package zkp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/rs/zerolog"

	"zkrent/internal/domain"
)

// CircuitKeys bundles a compiled circuit with its Groth16 key pair.
type CircuitKeys struct {
	Name string
	CS   constraint.ConstraintSystem
	PK   groth16.ProvingKey
	VK   groth16.VerifyingKey
}

// ErrKeyMismatch means a proving key does not belong to the published
// verification key.
var ErrKeyMismatch = errors.New("proving key does not match verification key")

// VerificationKeyBytes returns the binary encoding served to verifiers.
func (k *CircuitKeys) VerificationKeyBytes() ([]byte, error) {
	return MarshalVerifyingKey(k.VK)
}

// ProvingKeyBytes returns the binary encoding served to provers.
func (k *CircuitKeys) ProvingKeyBytes() ([]byte, error) {
	if k == nil || k.PK == nil {
		return nil, errors.New("proving key is nil")
	}
	var buf bytes.Buffer
	if _, err := k.PK.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImportKeys rebuilds circuit keys from a served proving key and the
// published verification key. sample must be a satisfying assignment; it is
// proved under pkBytes and checked under vkBytes so a key pair from another
// setup is rejected with ErrKeyMismatch.
func ImportKeys(name string, circuit, sample frontend.Circuit, pkBytes, vkBytes []byte) (*CircuitKeys, error) {
	if name == "" {
		return nil, errors.New("circuit name is required")
	}
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	pk, err := ParseProvingKey(pkBytes)
	if err != nil {
		return nil, err
	}
	vk, err := ParseVerifyingKey(vkBytes)
	if err != nil {
		return nil, err
	}
	if vk.NbPublicWitness() != cs.GetNbPublicVariables()-1 {
		return nil, fmt.Errorf("verification key for %s does not match circuit", name)
	}
	keys := &CircuitKeys{Name: name, CS: cs, PK: pk, VK: vk}
	if err := keys.checkPair(sample); err != nil {
		return nil, err
	}
	return keys, nil
}

// ImportThresholdKeys is ImportKeys for a ThresholdCircuit.
func ImportThresholdKeys(name string, pkBytes, vkBytes []byte) (*CircuitKeys, error) {
	sample, err := thresholdSample()
	if err != nil {
		return nil, err
	}
	return ImportKeys(name, &ThresholdCircuit{}, sample, pkBytes, vkBytes)
}

// ImportRentalHistoryKeys is ImportKeys for a RentalHistoryCircuit.
func ImportRentalHistoryKeys(pkBytes, vkBytes []byte) (*CircuitKeys, error) {
	sample := &RentalHistoryCircuit{Result: 1, MinOnTime: 0}
	for i := range sample.Payments {
		sample.Payments[i] = 0
	}
	return ImportKeys(domain.CircuitRentalHistory, &RentalHistoryCircuit{}, sample, pkBytes, vkBytes)
}

func thresholdSample() (*ThresholdCircuit, error) {
	salt := big.NewInt(1)
	binding, err := Commit(0, salt)
	if err != nil {
		return nil, err
	}
	return &ThresholdCircuit{Result: 1, Threshold: 0, Binding: binding, Value: 0, Salt: salt}, nil
}

func (k *CircuitKeys) checkPair(sample frontend.Circuit) error {
	full, err := frontend.NewWitness(sample, ecc.BN254.ScalarField())
	if err != nil {
		return fmt.Errorf("build sample witness: %w", err)
	}
	proof, err := groth16.Prove(k.CS, k.PK, full)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	public, err := full.Public()
	if err != nil {
		return fmt.Errorf("public witness: %w", err)
	}
	if err := groth16.Verify(proof, k.VK, public); err != nil {
		return fmt.Errorf("%s: %w", k.Name, ErrKeyMismatch)
	}
	return nil
}

// KeyManager runs the one-time setup per circuit and keeps the result on disk
// so proving keys survive restarts. An empty dir keeps keys in memory only.
type KeyManager struct {
	dir    string
	logger zerolog.Logger

	mu   sync.Mutex
	keys map[string]*CircuitKeys
}

func NewKeyManager(dir string, logger zerolog.Logger) *KeyManager {
	return &KeyManager{
		dir:    dir,
		logger: logger,
		keys:   make(map[string]*CircuitKeys),
	}
}

func (m *KeyManager) LoadOrSetup(name string, circuit frontend.Circuit) (*CircuitKeys, error) {
	if name == "" {
		return nil, errors.New("circuit name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if keys, ok := m.keys[name]; ok {
		return keys, nil
	}

	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	keys, err := m.load(name, cs)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		pk, vk, err := groth16.Setup(cs)
		if err != nil {
			return nil, fmt.Errorf("setup %s: %w", name, err)
		}
		keys = &CircuitKeys{Name: name, CS: cs, PK: pk, VK: vk}
		if err := m.store(keys); err != nil {
			return nil, err
		}
		m.logger.Info().
			Str("circuit", name).
			Int("constraints", cs.GetNbConstraints()).
			Bool("persisted", m.dir != "").
			Msg("circuit setup completed")
	} else {
		m.logger.Info().Str("circuit", name).Msg("circuit keys loaded")
	}
	m.keys[name] = keys
	return keys, nil
}

func (m *KeyManager) paths(name string) (string, string) {
	return filepath.Join(m.dir, name+".pk"), filepath.Join(m.dir, name+".vk")
}

func (m *KeyManager) load(name string, cs constraint.ConstraintSystem) (*CircuitKeys, error) {
	if m.dir == "" {
		return nil, nil
	}
	pkPath, vkPath := m.paths(name)
	pkFile, err := os.Open(pkPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open proving key: %w", err)
	}
	defer pkFile.Close()

	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(pkFile); err != nil {
		return nil, fmt.Errorf("read proving key %s: %w", pkPath, err)
	}
	vkBytes, err := os.ReadFile(vkPath)
	if err != nil {
		return nil, fmt.Errorf("read verification key: %w", err)
	}
	vk, err := ParseVerifyingKey(vkBytes)
	if err != nil {
		return nil, err
	}
	if vk.NbPublicWitness() != cs.GetNbPublicVariables()-1 {
		return nil, fmt.Errorf("verification key for %s does not match circuit", name)
	}
	return &CircuitKeys{Name: name, CS: cs, PK: pk, VK: vk}, nil
}

func (m *KeyManager) store(keys *CircuitKeys) error {
	if m.dir == "" {
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	pkPath, vkPath := m.paths(keys.Name)
	if err := writeSecure(pkPath, keys.PK); err != nil {
		return fmt.Errorf("write proving key: %w", err)
	}
	if err := writeSecure(vkPath, keys.VK); err != nil {
		return fmt.Errorf("write verification key: %w", err)
	}
	return nil
}

// writeSecure writes through a temp file and renames it into place with
// owner-only permissions.
func writeSecure(path string, src io.WriterTo) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := src.WriteTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func MarshalVerifyingKey(vk groth16.VerifyingKey) ([]byte, error) {
	if vk == nil {
		return nil, errors.New("verification key is nil")
	}
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ParseProvingKey decodes a BN254 Groth16 proving key and rejects trailing
// or truncated input.
func ParseProvingKey(data []byte) (groth16.ProvingKey, error) {
	if len(data) == 0 {
		return nil, errors.New("proving key is empty")
	}
	pk := groth16.NewProvingKey(ecc.BN254)
	n, err := pk.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode proving key: %w", err)
	}
	if int(n) != len(data) {
		return nil, fmt.Errorf("invalid proving key length: expected %d, got %d", len(data), n)
	}
	return pk, nil
}

// ParseVerifyingKey decodes a BN254 Groth16 verifying key and rejects
// trailing or truncated input.
func ParseVerifyingKey(data []byte) (groth16.VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	n, err := vk.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode verification key: %w", err)
	}
	if int(n) != len(data) {
		return nil, fmt.Errorf("invalid verification key length: expected %d, got %d", len(data), n)
	}
	return vk, nil
}
