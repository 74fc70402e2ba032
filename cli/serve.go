package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cppla/hoppin/config"
	"github.com/cppla/hoppin/routes"
	"github.com/cppla/hoppin/utils"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API on APP_PORT.

SIGTERM or SIGINT drain in-flight requests and close the store.
SIGUSR2 hands the listener to a freshly started process. The handoff is
refused with the on-disk badger store, which only one process can open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := openSession(ctx, cmd)
			if err != nil {
				return err
			}
			if s.cfg.App.JWTSecret == "" {
				_ = s.Close()
				return errors.New("JWT_SECRET must be set")
			}

			r := routes.SetupRouter(s.cfg, s.store, s.ledger)
			srv := utils.NewServer(":"+s.cfg.App.Port, r, utils.Logger)
			srv.OnShutdown(s)
			srv.RestartCheck(func() error { return restartCheck(s.cfg) })

			utils.Logger.Info("starting server",
				zap.String("port", s.cfg.App.Port),
				zap.String("store", s.store.Driver()),
			)
			if err := srv.Run(ctx); err != nil {
				return fmt.Errorf("server stopped: %w", err)
			}
			return nil
		},
	}
}

// errStoreLocked is returned by restartCheck when a second process could not
// open the store while this one still holds it.
var errStoreLocked = errors.New("on-disk badger store is locked by this process")

func restartCheck(cfg config.AppConfig) error {
	switch cfg.Store.Driver {
	case "", "badger":
		if !cfg.Store.BadgerInMemory {
			return fmt.Errorf("%w: %s", errStoreLocked, cfg.Store.BadgerDir)
		}
	}
	return nil
}
