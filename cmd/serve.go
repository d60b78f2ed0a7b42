package cmd

import (
	"context"
	"flexport/internal/access"
	"flexport/internal/auth"
	"flexport/internal/config"
	"flexport/internal/daemon"
	"flexport/internal/db"
	"flexport/internal/driver"
	"flexport/internal/logger"
	"flexport/internal/repository"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transfer daemon",
	RunE:  runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	defer logger.Sync()

	if err := cfg.CheckSecret(); err != nil {
		return err
	}

	repo := repository.NewSessionRepository(db.DB)
	n, err := repo.MarkInterrupted(context.Background(), "interrupted by restart")
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Log.Warn("sessions left unfinished by a previous run",
			zap.Int64("count", n))
	}

	opts := driver.Options{
		ChunkSize:   cfg.ChunkSize,
		DialTimeout: cfg.DialTimeout,
		IgnoreList:  cfg.IgnoreList,
		KnownHosts:  cfg.KnownHosts,
	}
	manager := daemon.NewTransferManager(repo,
		access.RootChecker{Root: cfg.StorageRoot},
		cfg.ProgressInterval,
		driver.NewFTPDriver(opts),
		driver.NewSFTPDriver(opts),
		driver.NewLinkDriver(opts))

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	srv := daemon.NewServer(manager, tokens, cfg.Port)
	srv.Start()

	config.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Log.Warn("ignoring invalid config change", zap.Error(err))
			return
		}
		logger.SetDebug(debug || next.Debug)
		logger.Log.Info("config reloaded",
			zap.Bool("debug", debug || next.Debug))
	})

	logger.Log.Info("flexport daemon started",
		zap.Int("port", cfg.Port),
		zap.String("db", cfg.DBPath))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Log.Info("shutting down",
			zap.String("signal", sig.String()))
	case <-srv.StopCh():
		logger.Log.Info("stop requested via API")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
