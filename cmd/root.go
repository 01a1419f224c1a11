package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tierpeak/apollo-middleman/cmd/worker"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:           "apollo-middleman",
		Short:         "Enrichment proxy for the Apollo people-match API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lambdaCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}
