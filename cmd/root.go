package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/eta/app"
	"github.com/kilianp07/eta/config"
	"github.com/kilianp07/eta/core/dataset"
	coremon "github.com/kilianp07/eta/core/monitoring"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/infra/logger"
	"github.com/kilianp07/eta/infra/monitoring"
)

var (
	cfgPath string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:               "eta",
	Short:             "Food delivery time exploration and prediction",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions over HTTP and MQTT",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error {
	defer coremon.Flush(2 * time.Second)
	return rootCmd.Execute()
}

// setup loads the configuration, applies the log level and installs the
// error monitor.
func setup(cmd *cobra.Command, _ []string) error {
	path := cfgPath
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	c, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = c
	if err := logger.SetLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if cfg.Sentry.DSN != "" {
		mon, err := monitoring.NewSentryMonitor(cfg.Sentry, model.ErrInvalidFeature, dataset.ErrDatasetLoad)
		if err != nil {
			return fmt.Errorf("sentry: %w", err)
		}
		coremon.Init(mon)
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer coremon.Recover()

	p, err := app.LoadPipeline(cfg)
	if err != nil {
		return fmt.Errorf("%w (run `eta train` first)", err)
	}
	svc, err := app.New(cfg, p)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
