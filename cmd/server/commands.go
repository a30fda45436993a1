package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jrsteele09/mindcraft-auth/internal/config"
	"github.com/jrsteele09/mindcraft-auth/twofactor"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mindcraft-auth",
	Short: "Mindcraft account and session service",
	Long: `Issues and rotates access/refresh token pairs for Mindcraft players,
backed by Redis, bbolt or an in-memory session store.`,
	SilenceUsage: true,
}

var (
	port           int
	sessionBackend string
	totpSecret     string
	totpAccount    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		// flags win over the environment; everything else reads config.New()
		if cmd.Flags().Changed("port") {
			if err := os.Setenv("PORT", strconv.Itoa(port)); err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("session-backend") {
			if err := os.Setenv("SESSION_BACKEND", sessionBackend); err != nil {
				return err
			}
		}
		return run(cmd.Context())
	},
}

var totpCmd = &cobra.Command{
	Use:   "totp",
	Short: "Two-factor helpers for local testing",
}

var totpSecretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a TOTP secret and its otpauth URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := config.New()
		secret, err := twofactor.NewVerifier(twofactor.WithIssuer(c.GetTOTPIssuer())).GenerateSecret(totpAccount)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "secret: %s\nurl:    %s\n", secret.Base32, secret.URL)
		return nil
	},
}

var totpCodeCmd = &cobra.Command{
	Use:   "code",
	Short: "Print the current code for a secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := twofactor.NewVerifier().Code(totpSecret)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), code)
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "port to listen on (overrides PORT)")
	serveCmd.Flags().StringVar(&sessionBackend, "session-backend", config.SessionBackendRedis,
		"session store: redis, bolt or memory (overrides SESSION_BACKEND)")

	totpSecretCmd.Flags().StringVar(&totpAccount, "account", "player@mindcraft.local", "account name shown by authenticator apps")
	totpCodeCmd.Flags().StringVar(&totpSecret, "secret", "", "base32 secret")
	_ = totpCodeCmd.MarkFlagRequired("secret")

	totpCmd.AddCommand(totpSecretCmd, totpCodeCmd)
	rootCmd.AddCommand(serveCmd, totpCmd)
}
