// Package cli implements the hoppin command line: the HTTP server plus operator
// commands that drive the ledger directly against the configured store.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cppla/hoppin/config"
	"github.com/cppla/hoppin/ledger"
	"github.com/cppla/hoppin/store"
	"github.com/cppla/hoppin/utils"
)

const AppName = "hoppin"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// NewRootCmd builds the command tree. Without a subcommand it serves HTTP.
func NewRootCmd(version string) *cobra.Command {
	serve := NewServeCmd()
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "Hoppin gamification ledger",
		Long:          "Records place visits, badge tiers and daily check-in streaks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "path to a YAML config file (overrides CONFIG_PATH)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")

	cmd.AddCommand(
		serve,
		NewTokenCmd(),
		NewVisitCmd(),
		NewCheckInCmd(),
		NewProgressCmd(),
	)
	return cmd
}

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCmd(Version).Execute()
}

func loadConfig(cmd *cobra.Command) (config.AppConfig, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, path); err != nil {
			return config.AppConfig{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.AppConfig{}, err
	}
	if err := utils.InitLogger(cfg); err != nil {
		return config.AppConfig{}, fmt.Errorf("init logger: %w", err)
	}
	return cfg, nil
}

// session is an opened store plus a ledger on top of it.
type session struct {
	cfg    config.AppConfig
	store  *store.Store
	ledger *ledger.Ledger
}

func (s *session) Close() error {
	return s.store.Close()
}

func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg, utils.Logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	utils.Logger.Debug("store opened", zap.String("driver", st.Driver()))
	return &session{
		cfg:    cfg,
		store:  st,
		ledger: ledger.New(st, ledger.WithLogger(utils.Logger.Named("ledger"))),
	}, nil
}

func jsonMode(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
