package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quillform/quillform/internal/core/db"
	"github.com/quillform/quillform/internal/engine"
	"github.com/quillform/quillform/internal/session"
)

var cleanupLoop bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup-sessions",
	Short: "Remove expired survey sessions",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().BoolVar(&cleanupLoop, "loop", false, "run periodically until interrupted")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, logger, database, err := setup()
	if err != nil {
		return err
	}
	defer database.Close()
	defer logger.Sync()

	store, err := db.NewStore(database)
	if err != nil {
		return err
	}
	ruleStore := engine.NewRuleStore(store, cfg.RuleCacheTTL)
	manager := session.NewManager(store, engine.New(ruleStore, logger), logger, cfg.SessionTimeout)

	ctx := context.Background()
	removed, err := manager.CleanupExpiredSessions(ctx)
	if err != nil {
		return err
	}
	logger.Info("cleanup run complete", zap.Int64("removed", removed))

	if !cleanupLoop {
		return nil
	}

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			removed, err := manager.CleanupExpiredSessions(ctx)
			if err != nil {
				logger.Error("cleanup run failed", zap.Error(err))
				continue
			}
			logger.Info("cleanup run complete", zap.Int64("removed", removed))
		case <-sigChan:
			logger.Info("shutting down")
			return nil
		}
	}
}
