package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"pinmark/backend/pinboard"
	"pinmark/internal/cache"
	"pinmark/internal/config"
	"pinmark/internal/credentials"
	"pinmark/internal/dispatch"
	"pinmark/internal/options"
	"pinmark/internal/shutdown"
	"pinmark/internal/storage"
	"pinmark/internal/tabstate"
	"pinmark/internal/utils"
)

// Version is set at build time
var Version = "dev"

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds application configuration
type Config struct {
	NoPrompt   bool
	Verbose    bool
	ConfigPath string // Path to config file (empty = XDG default)
	DBPath     string // Path to options database (for testing)
	BaseURL    string // Pinboard API base URL override (for testing)

	Stdin      io.Reader              // Defaults to os.Stdin
	Keyring    credentials.Keyring    // Defaults to the system keyring
	Getenv     func(string) string    // Defaults to os.Getenv
	HTTPClient *http.Client           // Used for page title fetches
	Clipboard  func() (string, error) // Defaults to the system clipboard

	shutdown *shutdown.Manager // injected by serve tests
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewPinmark(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			// Emit ERROR result code in no-prompt mode
			if cfg != nil && cfg.NoPrompt {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

func outputErrorJSON(err error, stdout io.Writer) {
	response := errorResponse{
		Error:  err.Error(),
		Code:   1,
		Result: ResultError,
	}
	jsonBytes, _ := json.Marshal(response)
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
}

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// NewPinmark creates the root command with injectable IO
func NewPinmark(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "pinmark",
		Short:   "Pinboard bookmarking core",
		Long:    "pinmark keeps a browser's bookmark icon and popup in sync with a Pinboard account.",
		Version: Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noPrompt, _ := cmd.Flags().GetBool("no-prompt"); noPrompt {
				cfg.NoPrompt = true
			}
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				cfg.Verbose = true
			}
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				cfg.ConfigPath = path
			}
			utils.SetVerboseMode(cfg.Verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("config", "", "Path to config file")

	cmd.AddCommand(newServeCmd(stdout, stderr, cfg))
	cmd.AddCommand(newOptionsCmd(stdout, stderr, cfg))
	cmd.AddCommand(newCredentialsCmd(stdout, stderr, cfg))
	cmd.AddCommand(newLookupCmd(stdout, cfg))
	cmd.AddCommand(newTagsCmd(stdout, cfg))
	cmd.AddCommand(newAddCmd(stdout, cfg))
	cmd.AddCommand(newDeleteCmd(stdout, stderr, cfg))
	cmd.AddCommand(newStatusCmd(stdout, cfg))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintf(stdout, "pinmark version %s\n", Version)
			return nil
		},
	}
}

// app is the fully wired core used by every command.
type app struct {
	conf       *config.Config
	store      *storage.SQLiteStore
	options    *options.Accessor
	service    *pinboard.Backend
	cache      *cache.Cache
	registry   *tabstate.Registry
	board      *tabstate.Board
	controller *tabstate.Controller
	dispatcher *dispatch.Dispatcher
	creds      *credentials.Manager
}

// openApp loads the config, opens the options database and wires the core.
func openApp(cfg *Config) (*app, error) {
	conf, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL != "" {
		conf.API.BaseURL = cfg.BaseURL
	}
	if conf.Logging.Verbose {
		utils.SetVerboseMode(true)
	}

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = config.ExpandPath(conf.Storage.Path)
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, utils.WrapWithSuggestion(
			fmt.Errorf("failed to open options database %s: %w", dbPath, err),
			"Check storage.path in the config file or pass a writable location",
		)
	}

	a := &app{
		conf:    conf,
		store:   store,
		options: options.NewAccessor(store),
		service: pinboard.New(pinboard.Config{BaseURL: conf.API.BaseURL, Timeout: conf.GetTimeout()}),
	}
	a.cache = cache.New(a.service, a.options)
	a.options.OnInvalidate(a.cache.Clear)
	a.options.Watch()

	a.registry = tabstate.NewRegistry()
	a.board = tabstate.NewBoard(nil)
	a.controller = tabstate.NewController(
		tabstate.Config{LatestWins: conf.IsLatestWinsEnabled()},
		a.options, a.cache, a.board, a.registry,
	)
	a.dispatcher = dispatch.New(a.options, a.cache, a.controller)

	var credOpts []credentials.ManagerOption
	if cfg.Keyring != nil {
		credOpts = append(credOpts, credentials.WithKeyring(cfg.Keyring))
	}
	if cfg.Getenv != nil {
		credOpts = append(credOpts, credentials.WithEnv(cfg.Getenv))
	}
	a.creds = credentials.NewManager(credOpts...)

	return a, nil
}

// Close releases the remote client and the database.
func (a *app) Close() error {
	_ = a.service.Close()
	return a.store.Close()
}

// handle runs one request through the dispatcher and waits for its answer.
func (a *app) handle(ctx context.Context, req dispatch.Request) (dispatch.Response, error) {
	resp, ok := a.dispatcher.Handle(ctx, req)
	if !ok {
		return nil, fmt.Errorf("no response for %s", req.Type())
	}
	return resp, nil
}

func stdinOf(cfg *Config) io.Reader {
	if cfg.Stdin != nil {
		return cfg.Stdin
	}
	return os.Stdin
}

// urlArg returns the URL argument, or the clipboard contents when it is omitted.
func urlArg(cfg *Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	read := cfg.Clipboard
	if read == nil {
		read = clipboard.ReadAll
	}
	text, err := read()
	if err != nil {
		return "", fmt.Errorf("no URL given and the clipboard could not be read: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func jsonFlag(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
