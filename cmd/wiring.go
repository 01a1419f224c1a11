package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tierpeak/apollo-middleman/internal/config"
	"github.com/tierpeak/apollo-middleman/internal/db"
	"github.com/tierpeak/apollo-middleman/internal/enrich"
	"github.com/tierpeak/apollo-middleman/internal/journal"
	"github.com/tierpeak/apollo-middleman/internal/kafka"
	"github.com/tierpeak/apollo-middleman/internal/logger"
	"github.com/tierpeak/apollo-middleman/internal/repository"
	"github.com/tierpeak/apollo-middleman/internal/service/enrichment"
	"github.com/tierpeak/apollo-middleman/internal/upstream"
	"go.uber.org/zap"
)

// app is the proxy plus whatever it holds open.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	svc     *enrichment.Service
	journal *journal.Journal
	closers []io.Closer
}

func loadApp() (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Encoding); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	log := logger.Log

	a := &app{cfg: cfg, log: log}

	sinks, err := a.journalSinks()
	if err != nil {
		a.close()
		return nil, err
	}
	a.journal = journal.New(log.Named("journal"), cfg.Journal.RecordTimeout, sinks...)

	tr, err := enrich.NewTransformer(enrich.Options{
		PhoneField:     cfg.Enrich.PhoneField,
		NormalizePhone: cfg.Enrich.NormalizePhone,
	}, log.Named("enrich"))
	if err != nil {
		a.close()
		return nil, err
	}

	fwd := upstream.NewHTTPForwarder(cfg.Upstream.URL, cfg.Upstream.Timeout)
	a.svc = enrichment.New(fwd, tr, a.journal, log)

	log.Info("proxy configured",
		zap.String("upstream", fwd.URL()),
		zap.String("phone_field", cfg.Enrich.PhoneField),
		zap.Bool("normalize_phone", cfg.Enrich.NormalizePhone),
		zap.Int("journal_sinks", len(sinks)),
	)
	return a, nil
}

func (a *app) journalSinks() ([]journal.Sink, error) {
	jc := a.cfg.Journal
	var sinks []journal.Sink

	if jc.Kafka.Enabled {
		p, err := kafka.NewProducer(jc.Kafka.Brokers, jc.Kafka.Topic)
		if err != nil {
			return nil, fmt.Errorf("journal kafka: %w", err)
		}
		a.closers = append(a.closers, p)
		sinks = append(sinks, journal.NewKafkaSink(p))
	}

	if jc.Redis.Enabled {
		rdb, err := db.NewRedisClient(db.RedisOpts{
			Addr:        jc.Redis.Addr,
			Password:    jc.Redis.Password,
			DB:          jc.Redis.DB,
			DialTimeout: jc.Redis.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("journal redis: %w", err)
		}
		a.closers = append(a.closers, rdb)
		sinks = append(sinks, journal.NewRedisSink(rdb, jc.Redis.Stream, jc.Redis.MaxLen))
	}

	if jc.MySQL.Enabled {
		sqlDB, err := db.NewMySQLConnection(sqlOpts(jc.MySQL.DatabaseConfig))
		if err != nil {
			return nil, fmt.Errorf("journal mysql: %w", err)
		}
		a.closers = append(a.closers, sqlDB)
		sinks = append(sinks, journal.NewSQLSink("mysql", repository.NewExchangesRepository(sqlDB, "exchanges")))
	}

	return sinks, nil
}

// shutdown drains the journal, then closes connections.
func (a *app) shutdown(ctx context.Context) {
	if a.journal != nil {
		if err := a.journal.Wait(ctx); err != nil {
			a.log.Warn("journal drain incomplete", zap.Error(err))
		}
	}
	a.close()
	_ = a.log.Sync()
}

func (a *app) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.log.Warn("close resources", zap.Error(err))
	}
}

func sqlOpts(c config.DatabaseConfig) db.SQLOpts {
	return db.SQLOpts{
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		PingTimeout:     c.PingTimeout,
	}
}
