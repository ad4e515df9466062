package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pinmark/backend"
	"pinmark/internal/credentials"
	"pinmark/internal/options"
	"pinmark/internal/utils"
)

// newCredentialsCmd creates the 'credentials' subcommand for API token management
func newCredentialsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the Pinboard API token",
		Long:  "Store, check, and remove the Pinboard API token in the system keyring.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	credentialsCmd.AddCommand(newCredentialsSetCmd(stdout, stderr, cfg))
	credentialsCmd.AddCommand(newCredentialsGetCmd(stdout, cfg))
	credentialsCmd.AddCommand(newCredentialsDeleteCmd(stdout, cfg))

	return credentialsCmd
}

// storeToken validates token against the service unless skip is set, and
// writes it with its validity to the options store.
func storeToken(ctx context.Context, a *app, token string, skip bool) (bool, error) {
	valid := true
	var verr error
	if !skip {
		if err := a.service.ValidateToken(ctx, token); err != nil {
			valid = false
			if errors.Is(err, backend.ErrUnauthorized) {
				verr = utils.ErrAuthenticationFailed("pinboard")
			} else {
				verr = utils.ErrServiceOffline(err.Error())
			}
		}
	}

	err := a.options.Set(ctx, map[string]string{
		options.KeyAPIToken:       token,
		options.KeyAuthTokenValid: utils.FormatBool(valid),
	})
	if err != nil {
		return false, err
	}
	return valid, verr
}

// newCredentialsSetCmd creates the 'credentials set' subcommand
func newCredentialsSetCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [account]",
		Short: "Store and check an API token",
		Long:  "Prompt for a Pinboard API token (username:TOKEN), store it in the system keyring, check it against the service and make it the active token.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var account string
			if len(args) == 1 {
				account = args[0]
			}
			skip, _ := cmd.Flags().GetBool("skip-validate")

			token, err := credentials.PromptToken(stdinOf(cfg), stdout, account)
			if err != nil {
				return err
			}
			if err := credentials.ValidateTokenFormat(token); err != nil {
				return err
			}
			if account != "" && credentials.AccountFromToken(token) != account {
				return fmt.Errorf("token belongs to %q, not %q", credentials.AccountFromToken(token), account)
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := context.Background()
			if err := a.creds.Set(ctx, account, token); err != nil {
				if !errors.Is(err, credentials.ErrKeyringNotAvailable) {
					return err
				}
				_, _ = fmt.Fprintln(stderr, "Warning: system keyring not available; token kept in the options store only")
			}

			valid, err := storeToken(ctx, a, token, skip)
			if err != nil {
				return err
			}

			if jsonFlag(cmd) {
				return writeJSON(stdout, map[string]interface{}{
					"account": credentials.AccountFromToken(token),
					"valid":   valid,
					"result":  ResultActionCompleted,
				})
			}
			_, _ = fmt.Fprintf(stdout, "Token for %s stored\n", credentials.AccountFromToken(token))
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().Bool("skip-validate", false, "Mark the token valid without contacting the service")
	return cmd
}

// activeAccount returns account, or the account of the stored token
func activeAccount(ctx context.Context, a *app, account string) string {
	if account != "" {
		return account
	}
	return credentials.AccountFromToken(a.options.Get(ctx).APIToken)
}

// newCredentialsGetCmd creates the 'credentials get' subcommand
func newCredentialsGetCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "get [account]",
		Short: "Show where the API token comes from",
		Long:  "Look the token up in the keyring, then the " + credentials.EnvToken + " environment variable, and show its source.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var account string
			if len(args) == 1 {
				account = args[0]
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := context.Background()
			info, err := a.creds.Get(ctx, activeAccount(ctx, a, account))
			if err != nil {
				return err
			}

			if jsonFlag(cmd) {
				data, err := info.JSON()
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(stdout, string(data))
				return nil
			}
			if !info.Found {
				return utils.ErrCredentialsNotFound("pinboard", info.Account)
			}
			_, _ = fmt.Fprintf(stdout, "Account: %s\nSource:  %s\n", info.Account, info.Source)
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newCredentialsDeleteCmd creates the 'credentials delete' subcommand
func newCredentialsDeleteCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [account]",
		Short: "Remove the API token",
		Long:  "Remove the token from the keyring. When it is the active token it is also cleared from the options store.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var account string
			if len(args) == 1 {
				account = args[0]
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := context.Background()
			account = activeAccount(ctx, a, account)
			if account == "" {
				return utils.ErrTokenMissing()
			}

			if !cfg.NoPrompt {
				prompt := fmt.Sprintf("Remove the API token for %s?", account)
				if !utils.PromptYesNoWithReader(prompt, stdinOf(cfg), stdout) {
					_, _ = fmt.Fprintln(stdout, "Cancelled")
					return nil
				}
			}

			if err := a.creds.Delete(ctx, account); err != nil && !errors.Is(err, credentials.ErrKeyringNotAvailable) {
				return err
			}
			if credentials.AccountFromToken(a.options.Get(ctx).APIToken) == account {
				if err := a.store.Delete(ctx, options.KeyAPIToken, options.KeyAuthTokenValid); err != nil {
					return err
				}
			}

			if jsonFlag(cmd) {
				return writeJSON(stdout, map[string]string{"account": account, "result": ResultActionCompleted})
			}
			_, _ = fmt.Fprintf(stdout, "Token for %s removed\n", account)
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
