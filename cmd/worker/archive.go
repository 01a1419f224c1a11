package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tierpeak/apollo-middleman/internal/config"
	"github.com/tierpeak/apollo-middleman/internal/db"
	"github.com/tierpeak/apollo-middleman/internal/kafka"
	"github.com/tierpeak/apollo-middleman/internal/logger"
	"github.com/tierpeak/apollo-middleman/internal/metrics"
	"github.com/tierpeak/apollo-middleman/internal/repository"
	"github.com/tierpeak/apollo-middleman/internal/worker"
	"go.uber.org/zap"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Copy journal records from Kafka into ClickHouse",
	RunE:  runArchive,
}

func runArchive(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Encoding); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Log.Named("archive")
	defer func() { _ = log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ac := cfg.Archive
	if len(ac.Kafka.Brokers) == 0 {
		return fmt.Errorf("archive: no kafka brokers configured")
	}

	// 2) ClickHouse
	ch, err := db.NewClickHouseConnection(db.SQLOpts{
		DSN:             ac.ClickHouse.DSN,
		MaxOpenConns:    ac.ClickHouse.MaxOpenConns,
		MaxIdleConns:    ac.ClickHouse.MaxIdleConns,
		ConnMaxLifetime: ac.ClickHouse.ConnMaxLifetime,
		ConnMaxIdleTime: ac.ClickHouse.ConnMaxIdleTime,
		PingTimeout:     ac.ClickHouse.PingTimeout,
	})
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer ch.Close()

	// 3) kafka consumer
	groupID := ac.Kafka.GroupID
	if groupID == "" {
		groupID = "middleman-archive"
	}
	consumer := kafka.NewConsumerFromConfig(kafka.Config{
		Brokers:        ac.Kafka.Brokers,
		Topic:          ac.Kafka.Topic,
		GroupID:        groupID,
		MinBytes:       ac.Kafka.MinBytes,
		MaxBytes:       ac.Kafka.MaxBytes,
		CommitInterval: time.Duration(ac.Kafka.CommitInterval) * time.Millisecond,
	})
	defer consumer.Close()

	w := worker.NewArchiver(consumer, repository.NewExchangesRepository(ch, "exchanges"), log)

	// tune knobs
	if ac.BatchSize > 0 {
		w.BatchSize = ac.BatchSize
	}
	if ac.BatchWait > 0 {
		w.BatchWait = ac.BatchWait
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("archiver started",
		zap.String("topic", ac.Kafka.Topic),
		zap.String("group", groupID),
		zap.Int("batch_size", w.BatchSize),
		zap.Duration("batch_wait", w.BatchWait),
	)

	return w.Run(ctx)
}
