package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"zkrent/internal/config"
	"zkrent/internal/infra/auth/jwtauth"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		scopes  []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 bearer token from JWT_SECRET for local use",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Production() {
				return fmt.Errorf("refusing to mint tokens in production")
			}
			if ttl <= 0 {
				ttl = cfg.DevTokenTTL()
			}
			a, err := jwtauth.NewAuthenticator(cfg)
			if err != nil {
				return err
			}
			token, err := a.Mint(jwtauth.MintRequest{Subject: subject, Roles: roles, Scopes: scopes, TTL: ttl})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", "", "token subject, e.g. renter-001")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role (repeatable): landlord, tenant, issuer, zkrent_admin")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "extra scope (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default DEV_TOKEN_TTL_MINUTES)")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
