package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shepherd/internal/config"
	"github.com/shepherd/internal/db"
	"github.com/shepherd/internal/logging"
	"github.com/shepherd/internal/notify"
	"github.com/shepherd/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg config.AppConfig

	batchSize   int
	batchDelay  time.Duration
	concurrency int
)

var rootCmd = &cobra.Command{
	Use:   "shepherd-jobs",
	Short: "Scheduled notification jobs for Shepherd",
	Long: `Runs one notification job and exits. Intended to be triggered by cron:

  0 18 * * *  shepherd-jobs streak-warnings
  0 6  * * *  shepherd-jobs daily-devotional`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("batch-size") {
			loaded.NotifyBatchSize = batchSize
		}
		if cmd.Flags().Changed("batch-delay") {
			loaded.NotifyBatchDelay = batchDelay
		}
		if cmd.Flags().Changed("concurrency") {
			loaded.NotifyConcurrent = concurrency
		}
		cfg = loaded

		if _, err := logging.Init(cfg); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return db.Init(cfg.DatabaseURL, db.NewGormLogger(logging.StdLog(), cfg.LogLevel))
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = logging.Logger.Sync()
	},
}

var streakWarningsCmd = &cobra.Command{
	Use:   "streak-warnings",
	Short: "Remind members whose streak ends unless they check in today",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := newJobService(cmd.Context())
		if err != nil {
			return err
		}
		report, err := jobs.SendStreakWarnings(cmd.Context())
		printReport(cmd, report)
		return err
	},
}

var dailyDevotionalCmd = &cobra.Command{
	Use:   "daily-devotional",
	Short: "Send today's devotional to opted-in members",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobs, err := newJobService(cmd.Context())
		if err != nil {
			return err
		}
		report, err := jobs.SendDailyDevotional(cmd.Context())
		if errors.Is(err, service.ErrNoDevotionalToday) {
			logging.Logger.Warn("no devotional published for today, nothing sent")
			return nil
		}
		printReport(cmd, report)
		return err
	},
}

var ensureAdminCmd = &cobra.Command{
	Use:   "ensure-admin",
	Short: "Create the super root admin from SUPER_ROOT_USER_NAME / SUPER_ROOT_PASSWORD",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.SuperRootUserName == "" || cfg.SuperRootPassword == "" {
			return errors.New("SUPER_ROOT_USER_NAME and SUPER_ROOT_PASSWORD are required")
		}
		created, err := db.EnsureUser(db.DB, cfg.SuperRootUserName, cfg.SuperRootPassword)
		if err != nil {
			return err
		}
		if created {
			cmd.Printf("created admin %q\n", cfg.SuperRootUserName)
		} else {
			cmd.Printf("admin %q already exists\n", cfg.SuperRootUserName)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 50, "recipients per batch")
	rootCmd.PersistentFlags().DurationVar(&batchDelay, "batch-delay", time.Second, "pause between batches")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 4, "concurrent sends within a batch")

	rootCmd.AddCommand(streakWarningsCmd, dailyDevotionalCmd, ensureAdminCmd)
}

func newJobService(ctx context.Context) (*service.NotificationJobService, error) {
	dispatcher, err := notify.NewDispatcherFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if dispatcher == nil {
		return nil, errors.New("no notification channel configured (set FCM_SERVICE_ACCOUNT or SMTP_HOST/SMTP_FROM)")
	}

	jobs := service.NewNotificationJobService(db.DB, dispatcher)
	jobs.SetLocation(cfg.Location())
	return jobs, nil
}

func printReport(cmd *cobra.Command, report notify.Report) {
	cmd.Printf("total=%d sent=%d skipped=%d failed=%d\n", report.Total, report.Sent, report.Skipped, report.Failed)
	logging.Logger.Info("job finished", zap.String("job", cmd.Name()),
		zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
