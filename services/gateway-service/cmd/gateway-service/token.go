package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/ruralhealthconnect/telecare/libs/auth"
	"github.com/ruralhealthconnect/telecare/libs/config"
	"github.com/spf13/cobra"
)

// tokenCmd mints an HS256 token against JWT_SECRET for local development.
func tokenCmd() *cobra.Command {
	var (
		sub  string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := config.RequiredString("JWT_SECRET")
			if err != nil {
				return err
			}
			if sub == "" {
				return errors.New("--sub is required")
			}
			now := time.Now()
			token, err := auth.SignHS256(auth.Claims{Sub: sub, Role: role, Iat: now.Unix(), Exp: now.Add(ttl).Unix()}, secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "user id to embed")
	cmd.Flags().StringVar(&role, "role", "patient", "patient, doctor or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
