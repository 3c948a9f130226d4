package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimbusiot/deviceclient/app"
	"github.com/nimbusiot/deviceclient/config"
	"github.com/nimbusiot/deviceclient/core/model"
)

var (
	publishState     bool
	publishTelemetry bool
	publishSubPath   string
	publishQoS       int
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Connect, submit one telemetry event or device-state payload from stdin, and exit",
	RunE:  publishOnce,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().BoolVar(&publishState, "state", false, "publish stdin as the device state")
	publishCmd.Flags().BoolVar(&publishTelemetry, "telemetry", false, "publish stdin as a telemetry event")
	publishCmd.Flags().StringVar(&publishSubPath, "sub-path", "", "telemetry sub-path, e.g. /temperature")
	publishCmd.Flags().IntVar(&publishQoS, "qos", 1, "MQTT QoS for the published message")
}

func publishOnce(cmd *cobra.Command, args []string) error {
	if publishState == publishTelemetry {
		return fmt.Errorf("publish: exactly one of --state or --telemetry is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	payload, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	svc.Client.Connect()
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for !svc.Client.IsConnected() {
		select {
		case <-connectCtx.Done():
			return fmt.Errorf("publish: timed out waiting to connect")
		case <-time.After(50 * time.Millisecond):
		}
	}

	if publishState {
		svc.Client.PublishDeviceState(payload)
		time.Sleep(200 * time.Millisecond) // let the supervisor drain the state slot before exit
		return nil
	}

	ev, err := model.NewTopicEvent("", publishSubPath, payload, byte(publishQoS))
	if err != nil {
		return fmt.Errorf("build telemetry event: %w", err)
	}
	if !svc.Client.PublishTelemetry(ev) {
		return fmt.Errorf("publish: telemetry queue rejected the event")
	}
	time.Sleep(200 * time.Millisecond)
	return nil
}
