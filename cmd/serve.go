package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"relaysync/internal/logger"
	"relaysync/internal/server"
)

var (
	serveRoot string
	serveAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the receiver that applies relayed changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		defer logger.Sync()

		if serveRoot != "" {
			cfg.Server.Root = serveRoot
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		if err := cfg.ValidateServer(); err != nil {
			return err
		}

		srv, err := server.New(cfg.Server, afero.NewOsFs())
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		logger.Log.Info("relaysync receiver ready",
			zap.String("addr", cfg.Server.Addr),
			zap.String("root", cfg.Server.Root))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Log.Info("shutting down",
				zap.String("signal", sig.String()))
		case err := <-errCh:
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveRoot, "root", "", "directory that mirrors are written under (overrides server.root)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
