package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nimbusiot/deviceclient/app"
	"github.com/nimbusiot/deviceclient/config"
	"github.com/nimbusiot/deviceclient/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "deviceclient",
	Short: "Cloud IoT device client",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// run loads configuration, builds an app.Service, connects it, and blocks
// until SIGINT/SIGTERM, then closes it. This is the long-lived entry point;
// publish is the one-shot alternative that connects, sends a single
// message, and exits.
func run(cmd *cobra.Command, args []string) error {
	log := logger.New("cmd")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()

	log.Infof("starting device client, config=%s", cfgPath)
	return svc.Run(ctx)
}
