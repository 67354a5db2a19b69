package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"zkrent/internal/domain"
	"zkrent/internal/infra/upstream"
	"zkrent/internal/infra/zkp"
	"zkrent/internal/usecase"
	"zkrent/pkg/renter"
)

type renterFlags struct {
	token   string
	timeout time.Duration
}

func (f *renterFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.token, "token", "", "bearer token")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "per-request timeout")
}

func (f *renterFlags) client() *renter.Client {
	return renter.NewClient(f.timeout, f.token)
}

func newApplyCmd() *cobra.Command {
	var (
		flags       renterFlags
		renterID    string
		employerURL string
		bankURL     string
		verifierURL string
		propertyID  string
		out         string
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Collect attestations, prove both claims locally and submit the application",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := flags.client()

			var incomeThreshold *int64
			if propertyID != "" {
				property, err := client.Property(ctx, verifierURL, propertyID)
				if err != nil {
					return explain(err)
				}
				incomeThreshold = &property.MinimumIncome
			}

			var income, credit usecase.ClaimSubmission
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() (err error) {
				income, err = prepareClaim(gctx, client, employerURL, domain.ClaimIncome, domain.CircuitIncome, renterID, incomeThreshold)
				return err
			})
			g.Go(func() (err error) {
				credit, err = prepareClaim(gctx, client, bankURL, domain.ClaimCreditScore, domain.CircuitCreditScore, renterID, nil)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}

			decision, err := client.Apply(ctx, verifierURL, usecase.ApplicationRequest{
				RenterID:    renterID,
				PropertyID:  propertyID,
				Income:      income,
				CreditScore: credit,
			})
			if err != nil {
				return explain(err)
			}
			return writeJSON(cmd.OutOrStdout(), out, decision)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&renterID, "renter", "", "renter id")
	cmd.Flags().StringVar(&employerURL, "employer", "http://localhost:3001", "employer issuer URL")
	cmd.Flags().StringVar(&bankURL, "bank", "http://localhost:3002", "bank issuer URL")
	cmd.Flags().StringVar(&verifierURL, "verifier", "http://localhost:3003", "verifier URL")
	cmd.Flags().StringVar(&propertyID, "property", "", "apply for this property, proving income at its minimum")
	cmd.Flags().StringVar(&out, "out", "", "write the decision to a file instead of stdout")
	_ = cmd.MarkFlagRequired("renter")
	return cmd
}

// prepareClaim attests, checks the attestation against the issuer's
// published keys and proves it with the issuer's proving key, at threshold
// when set and at the issuer's threshold otherwise.
func prepareClaim(ctx context.Context, client *renter.Client, issuerURL string, claim domain.ClaimType, circuit, renterID string, threshold *int64) (usecase.ClaimSubmission, error) {
	info, err := client.PublicInfo(ctx, issuerURL)
	if err != nil {
		return usecase.ClaimSubmission{}, explain(err)
	}
	if info.Circuit.Name != circuit {
		return usecase.ClaimSubmission{}, fmt.Errorf("%s publishes circuit %q, expected %q", issuerURL, info.Circuit.Name, circuit)
	}
	issued, err := client.Attest(ctx, issuerURL, claim, renterID)
	if err != nil {
		return usecase.ClaimSubmission{}, explain(err)
	}
	if err := renter.VerifyIssued(issued, info); err != nil {
		return usecase.ClaimSubmission{}, fmt.Errorf("%s attestation: %w", claim, err)
	}
	circuitKeys, err := client.IssuerCircuitKeys(ctx, issuerURL, info)
	if err != nil {
		return usecase.ClaimSubmission{}, explain(err)
	}
	at := info.Circuit.Threshold
	if threshold != nil {
		at = *threshold
	}
	return renter.BuildClaim(circuitKeys, issued, at)
}

func newStatusCmd() *cobra.Command {
	var (
		flags       renterFlags
		renterID    string
		verifierURL string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded decision for a renter",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.client().Status(cmd.Context(), verifierURL, renterID)
			if err != nil {
				return explain(err)
			}
			return writeJSON(cmd.OutOrStdout(), "", app)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&renterID, "renter", "", "renter id")
	cmd.Flags().StringVar(&verifierURL, "verifier", "http://localhost:3003", "verifier URL")
	_ = cmd.MarkFlagRequired("renter")
	return cmd
}

func newProveHistoryCmd() *cobra.Command {
	var (
		flags       renterFlags
		payments    string
		minimum     int
		verifierURL string
		out         string
	)
	cmd := &cobra.Command{
		Use:   "prove-history",
		Short: "Prove a minimum number of on-time rent payments",
		Long: "Payments are given oldest first as a string of 1 (on time) and 0 (late), one per month. " +
			"The output is the body for POST /api/proofs/verify/rental-history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			months, err := parsePayments(payments)
			if err != nil {
				return err
			}
			keys, err := flags.client().RentalHistoryKeys(cmd.Context(), verifierURL)
			if err != nil {
				return explain(err)
			}
			proof, signals, err := zkp.ProveRentalHistory(keys, months, minimum)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out, map[string]any{"proof": proof, "publicSignals": signals})
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&payments, "payments", "", fmt.Sprintf("%d digits, 1 = on time", zkp.HistoryMonths))
	cmd.Flags().IntVar(&minimum, "min", 10, "minimum on-time payments")
	cmd.Flags().StringVar(&verifierURL, "verifier", "http://localhost:3003", "verifier URL")
	cmd.Flags().StringVar(&out, "out", "", "write the proof to a file instead of stdout")
	_ = cmd.MarkFlagRequired("payments")
	return cmd
}

func parsePayments(s string) ([]bool, error) {
	s = strings.TrimSpace(s)
	if len(s) != zkp.HistoryMonths {
		return nil, fmt.Errorf("--payments needs %d digits, got %d", zkp.HistoryMonths, len(s))
	}
	out := make([]bool, len(s))
	for i, r := range s {
		switch r {
		case '1':
			out[i] = true
		case '0':
		default:
			return nil, fmt.Errorf("--payments: unexpected %q at position %d", r, i)
		}
	}
	return out, nil
}

// explain surfaces the service's error payload.
func explain(err error) error {
	var statusErr *upstream.StatusError
	if errors.As(err, &statusErr) && len(statusErr.Body) > 0 {
		return fmt.Errorf("%w\n%s", err, strings.TrimSpace(string(statusErr.Body)))
	}
	return err
}
