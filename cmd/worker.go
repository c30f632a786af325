package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/frahmantamala/timecard-management/internal/mail"
	"github.com/frahmantamala/timecard-management/pkg/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
}

var mailWorkerCmd = &cobra.Command{
	Use:   "mail",
	Short: "Deliver queued password reset emails",
	Long:  `Consume the mail queue and deliver each job over SMTP with a pool of workers`,
	Run: func(cmd *cobra.Command, args []string) {
		startMailWorker()
	},
}

var mailWorkers int

func startMailWorker() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	lg := logger.LoggerWrapper()

	if config.Queue.URL == "" {
		lg.Error("queue url is not configured")
		os.Exit(1)
	}

	var sender mail.Mailer = mail.NewLogMailer(lg)
	if config.Mail.SMTPHost != "" {
		sender = mail.NewSMTPMailer(config.Mail)
	} else {
		lg.Warn("smtp_host not set, queued mail will only be logged")
	}

	broker, err := mail.Dial(config.Queue.URL, config.Queue.MailQueue)
	if err != nil {
		lg.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	deliveries, err := broker.Consume(config.Queue.Prefetch)
	if err != nil {
		lg.Error("failed to start consuming", "queue", config.Queue.MailQueue, "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workers := getIntFlag(mailWorkers, config.Queue.Workers)
	lg.Info("mail worker is running. Press Ctrl+C to stop.", "queue", config.Queue.MailQueue, "workers", workers)

	mail.NewConsumer(sender, workers, lg).Run(ctx, deliveries)
	lg.Info("mail worker shutdown complete")
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	mailWorkerCmd.Flags().IntVar(&mailWorkers, "workers", 0, "Number of concurrent senders (overrides config)")
	workerCmd.AddCommand(mailWorkerCmd)
}
