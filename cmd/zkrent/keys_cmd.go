package main

import (
	"fmt"

	"github.com/consensys/gnark/frontend"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zkrent/internal/domain"
	cryptoinfra "zkrent/internal/infra/crypto"
	"zkrent/internal/infra/zkp"
)

func newKeygenCmd() *cobra.Command {
	var (
		out  string
		bits int
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an issuer RSA signing key (PEM)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bits < 2048 {
				return fmt.Errorf("--bits must be at least 2048")
			}
			key, err := cryptoinfra.GenerateRSAKey(bits)
			if err != nil {
				return err
			}
			if err := cryptoinfra.WritePrivateKeyFile(out, key); err != nil {
				return err
			}
			pub, err := cryptoinfra.EncodePublicKeyPEM(&key.PublicKey)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n%s", out, pub)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "issuer.pem", "private key output path")
	cmd.Flags().IntVar(&bits, "bits", 2048, "RSA modulus size")
	return cmd
}

func newSetupCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Run the Groth16 setup for every circuit and store the keys",
		Long: "Creates <dir>/<circuit>.pk and .vk for the income, credit score and rental history " +
			"circuits. Existing keys are loaded, not replaced. Issuers and renters must share this directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := zkp.NewKeyManager(dir, zerolog.Nop())
			circuits := []struct {
				name    string
				circuit frontend.Circuit
			}{
				{domain.CircuitIncome, &zkp.ThresholdCircuit{}},
				{domain.CircuitCreditScore, &zkp.ThresholdCircuit{}},
				{domain.CircuitRentalHistory, &zkp.RentalHistoryCircuit{}},
			}
			for _, c := range circuits {
				keys, err := manager.LoadOrSetup(c.name, c.circuit)
				if err != nil {
					return fmt.Errorf("setup %s: %w", c.name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d constraints, %d public inputs\n",
					c.name, keys.CS.GetNbConstraints(), keys.VK.NbPublicWitness())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./data/circuits", "circuit key directory")
	return cmd
}
