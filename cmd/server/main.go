// Package main is the entry point of the Advent of Time server.
//
// Commands:
//
//	server serve        run the HTTP server
//	server leaderboard  print the current ranking and exit
//
// Both read the same configuration: a YAML file (--config or AOT_CONFIG),
// a .env file (--env-file), then environment overrides.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/coko7/advent-of-time/internal/config"
	"github.com/coko7/advent-of-time/internal/repository/jsonfile"
	"github.com/coko7/advent-of-time/internal/scoring"
	"github.com/coko7/advent-of-time/internal/server"
	"github.com/coko7/advent-of-time/internal/service"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{configPath: os.Getenv("AOT_CONFIG")}

	root := &cobra.Command{
		Use:          "server",
		Short:        "Advent of Time: guess when each day's photo was taken",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "YAML configuration file (env AOT_CONFIG)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(newServeCmd(opts), newLeaderboardCmd(opts))
	return root
}

// load reads the configuration and builds the logger.
func (o *rootOptions) load(logOut io.Writer) (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(o.envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Log.NewLogger(logOut)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(os.Stdout)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			if err := initSentry(cfg.Sentry); err != nil {
				// Error reporting is optional; the game runs without it.
				logger.Warn("sentry disabled", slog.String("error", err.Error()))
			}
			defer sentry.Flush(2 * time.Second)

			srv, err := server.New(cfg, logger, server.Options{})
			if err != nil {
				logger.Error("failed to create server", slog.String("error", err.Error()))
				return err
			}

			// Start blocks until SIGINT or SIGTERM.
			if err := srv.Start(); err != nil {
				logger.Error("server error", slog.String("error", err.Error()))
				return err
			}
			return nil
		},
	}
}

// initSentry configures the global Sentry client. An empty DSN leaves it
// disabled.
func initSentry(cfg config.SentryConfig) error {
	if cfg.DSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		AttachStacktrace: true,
	})
}

func newLeaderboardCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the current ranking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			users, store, err := server.OpenUserStore(cfg.Storage)
			if err != nil {
				return err
			}
			defer store.Close()

			engine, err := scoring.NewEngine(cfg.Score)
			if err != nil {
				return err
			}
			game := service.NewGameService(service.GameDeps{
				Users:    users,
				Pictures: jsonfile.NewPictureStore(cfg.Pictures.Path, cfg.Pictures.CacheTTL),
				Engine:   engine,
				Logger:   logger,
			})

			board, err := game.Leaderboard(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(board)
			}
			return printLeaderboard(cmd.OutOrStdout(), board)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printLeaderboard(w io.Writer, board *service.LeaderboardView) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "RANK\tPLAYER\tGUESSES\tSCORE\tACCURACY\n")
	for _, e := range board.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%d/%d\t%d\t%d\n", e.Rank, e.DisplayName, e.Guesses, board.TotalDays, e.Score, e.Accuracy)
	}
	return tw.Flush()
}
