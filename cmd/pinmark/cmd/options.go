package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pinmark/internal/options"
	"pinmark/internal/utils"
)

// newOptionsCmd creates the 'options' subcommand for reading and writing stored options
func newOptionsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	optionsCmd := &cobra.Command{
		Use:   "options",
		Short: "Read and write stored options",
		Long:  "Read and write the options shared with the browser extension. Changes are picked up by a running 'pinmark serve'.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	optionsCmd.AddCommand(newOptionsGetCmd(stdout, cfg))
	optionsCmd.AddCommand(newOptionsSetCmd(stdout, cfg))
	return optionsCmd
}

// optionValue renders one option in its stored string form
func optionValue(opts options.Options, key string) string {
	switch key {
	case options.KeyAPIToken:
		return opts.APIToken
	case options.KeyAuthTokenValid:
		return utils.FormatBool(opts.AuthTokenValid)
	case options.KeyPrivateDefault:
		return utils.FormatBool(opts.PrivateDefault)
	case options.KeyReadLaterDefault:
		return utils.FormatBool(opts.ReadLaterDefault)
	case options.KeyTagSuggestions:
		return utils.FormatBool(opts.TagSuggestions)
	}
	return ""
}

// maskToken hides the secret half of a "user:TOKEN" API token
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if user, _, ok := strings.Cut(token, ":"); ok {
		return user + ":****"
	}
	return "****"
}

func newOptionsGetCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Show all options or a single option",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			showSecret, _ := cmd.Flags().GetBool("show-token")

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			opts := a.options.Get(context.Background())
			if !showSecret {
				opts.APIToken = maskToken(opts.APIToken)
			}

			if len(args) == 1 {
				key := args[0]
				if !options.IsRecognized(key) {
					return utils.ErrUnknownOption(key, options.Keys())
				}
				if jsonFlag(cmd) {
					return writeJSON(stdout, map[string]string{key: optionValue(opts, key)})
				}
				_, _ = fmt.Fprintln(stdout, optionValue(opts, key))
				return nil
			}

			if jsonFlag(cmd) {
				return writeJSON(stdout, opts)
			}
			for _, key := range options.Keys() {
				_, _ = fmt.Fprintf(stdout, "%s: %s\n", key, optionValue(opts, key))
			}
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultInfoOnly)
			}
			return nil
		},
	}
	cmd.Flags().Bool("show-token", false, "Print the API token unmasked")
	return cmd
}

func newOptionsSetCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store an option",
		Long:  "Store an option. Setting api_token marks it valid only after 'pinmark credentials set' has checked it; set auth_token_valid explicitly otherwise.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := options.ValidateValue(key, value); err != nil {
				return err
			}
			if b, ok := utils.ParseBool(value); ok && key != options.KeyAPIToken {
				value = utils.FormatBool(b)
			}

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.options.Set(context.Background(), map[string]string{key: value}); err != nil {
				return err
			}

			if jsonFlag(cmd) {
				return writeJSON(stdout, map[string]string{"result": ResultActionCompleted, "key": key})
			}
			_, _ = fmt.Fprintf(stdout, "Set %s\n", key)
			if cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultActionCompleted)
			}
			return nil
		},
	}
}
