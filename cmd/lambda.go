package cmd

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tierpeak/apollo-middleman/internal/faas"
	"github.com/tierpeak/apollo-middleman/internal/metrics"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run the proxy as an AWS Lambda (API Gateway HTTP API)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		h := faas.NewHandler(a.svc, a.log)
		lambda.StartWithOptions(h.Handle, lambda.WithEnableSIGTERM(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			a.shutdown(ctx)
		}))
		return nil
	},
}
