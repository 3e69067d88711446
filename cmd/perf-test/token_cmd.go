package main

import (
	"errors"
	"fmt"
	"time"

	"history-calendar-loadtest/internal/auth"

	"github.com/spf13/cobra"
)

type tokenOptions struct {
	Subject    string
	AppVersion string
	TTL        time.Duration
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	var opts tokenOptions

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an ACCESS_TOKEN accepted by the mock server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required to sign a token")
			}

			appVersion := opts.AppVersion
			if appVersion == "" {
				appVersion = string(cfg.Version())
			}
			token, err := auth.NewAuthService(cfg.JWTSecret).GenerateToken(opts.Subject, appVersion, opts.TTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Subject, "subject", auth.DefaultSubject, "token subject")
	cmd.Flags().StringVar(&opts.AppVersion, "app-version", "", "app version claim (default APP_VERSION)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", auth.DefaultTTL, "token lifetime")
	return cmd
}
