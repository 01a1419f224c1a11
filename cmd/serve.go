package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	httpSrv "github.com/tierpeak/apollo-middleman/internal/http"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		server := httpSrv.NewServer(httpSrv.Options{
			Path:     a.cfg.HTTP.Path,
			LogLevel: a.cfg.Log.Level,
		}, a.svc, a.log)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		runErr := runUntilSignal(a.log, server, a.cfg.HTTP.Addr(), sigCh)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
		a.shutdown(ctx)

		return runErr
	},
}

type listener interface {
	Start(addr string) error
}

// runUntilSignal serves until a signal arrives or the listener fails.
// A listener failure (e.g. the port is taken) is returned so the process exits non-zero.
func runUntilSignal(log *zap.Logger, srv listener, addr string, sigCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	select {
	case sig := <-sigCh:
		log.Info("signal received, shutting down", zap.String("signal", sig.String()))
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		log.Error("http server exited", zap.Error(err))
		return fmt.Errorf("http server: %w", err)
	}
}
