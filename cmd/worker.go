package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/spf13/cobra"

	"github.com/lockwhz/ai-scan-service/internal/logger"
	"github.com/lockwhz/ai-scan-service/internal/services"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume scan jobs from the SQS queue",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	start := time.Now()
	defer logger.Trace("worker", start)

	if !cfg.EnableSQS {
		return fmt.Errorf("enable_sqs is false: nothing to consume")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{withLimiter: true})
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer a.Close()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}

	producer := &services.DefaultSQSProducer{
		Client:   sqs.NewFromConfig(awsCfg),
		QueueURL: cfg.SQSQueueURL,
	}
	jobChan := producer.Start(ctx)

	logger.Log.Infof("Worker consumindo %s com %d workers", cfg.SQSQueueURL, cfg.NumWorkers)
	consumer := &services.DefaultJobConsumer{Scanner: a.orchestrator, Acker: producer}
	consumer.Start(ctx, jobChan, cfg.NumWorkers)

	logger.Log.Info("Worker encerrado")
	return nil
}
