package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"pinmark/internal/credentials"
	"pinmark/internal/server"
	"pinmark/internal/shutdown"
	"pinmark/internal/utils"
	"pinmark/internal/watcher"
)

// shutdownTimeout bounds how long cleanups may take after a stop signal.
const shutdownTimeout = 10 * time.Second

// seedToken adopts a token from the environment when the options store has none.
func seedToken(ctx context.Context, a *app) {
	if a.options.Get(ctx).HasToken() {
		return
	}
	info, err := a.creds.Get(ctx, "")
	if err != nil || !info.Found {
		return
	}
	utils.Infof("using API token for %s from %s", info.Account, info.Source)
	if _, err := storeToken(ctx, a, info.Token, false); err != nil {
		utils.Warnf("API token from %s not usable: %v", info.Source, err)
	}
}

func newServeCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the background core for the browser shim",
		Long:  "Serve the message dispatcher and the tab event handlers over HTTP until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			bl, err := utils.NewBackgroundLoggerWithEnabled(a.conf.IsBackgroundLoggingEnabled())
			if err != nil {
				utils.Warnf("background log disabled: %v", err)
			}
			defer bl.Close()

			pidPath, _ := cmd.Flags().GetString("pid-file")
			if pidPath == "" {
				pidPath = server.DefaultPIDPath()
			}
			if pid, running := server.RunningPID(pidPath); running {
				return fmt.Errorf("pinmark is already serving (pid %d)", pid)
			}

			srvCfg := server.Config{
				Listen:         a.conf.Server.Listen,
				AllowedOrigins: a.conf.Server.AllowedOrigins,
				Token:          a.conf.Server.Token,
				PIDPath:        pidPath,
			}
			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				srvCfg.Listen = listen
			}

			mgr := cfg.shutdown
			if mgr == nil {
				mgr = shutdown.NewManager()
				mgr.ListenForSignals()
			}
			ctx := mgr.Context()

			seedToken(ctx, a)

			srv := server.New(srvCfg, server.Deps{
				Dispatcher: a.dispatcher,
				Tabs:       a.controller,
				Registry:   a.registry,
				Board:      a.board,
				Store:      a.store,
			})
			if err := srv.Start(); err != nil {
				return err
			}
			mgr.RegisterCleanup("server", srv.Shutdown)

			if a.conf.IsWatcherEnabled() && a.store.Path() != ":memory:" {
				w, err := watcher.New(&watcher.Config{
					Files:            []string{a.store.Path()},
					DebounceDuration: a.conf.GetDebounce(),
					OnChange: func() {
						if mgr.IsShutdown() {
							return
						}
						if err := a.store.Rescan(ctx); err != nil {
							// force a reload on the next read instead of serving a stale snapshot
							utils.Warnf("options rescan failed: %v", err)
							a.options.Invalidate()
						}
					},
				})
				if err != nil {
					utils.Warnf("options watcher disabled: %v", err)
				} else if err := w.Start(); err != nil {
					utils.Warnf("options watcher disabled: %v", err)
				} else {
					mgr.RegisterCleanup("watcher", func(context.Context) error {
						w.Stop()
						return nil
					})
				}
			}

			_, _ = fmt.Fprintf(stdout, "pinmark serving on http://%s (token source: %s)\n", srv.Addr(), tokenSource(ctx, a))
			if bl.IsEnabled() {
				_, _ = fmt.Fprintf(stdout, "logging to %s\n", bl.GetLogPath())
			}

			<-mgr.Done()

			waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := mgr.Wait(waitCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			_, _ = fmt.Fprintf(stdout, "pinmark stopped (%s)\n", mgr.Reason())
			return nil
		},
	}
	cmd.Flags().String("listen", "", "Listen address (default from config, "+server.DefaultListen+")")
	cmd.Flags().String("pid-file", "", "PID file path")
	return cmd
}

func tokenSource(ctx context.Context, a *app) string {
	opts := a.options.Get(ctx)
	switch {
	case !opts.HasToken():
		return string(credentials.SourceNone)
	case !opts.AuthTokenValid:
		return "options (invalid)"
	}
	return "options"
}
