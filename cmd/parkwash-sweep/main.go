package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/internal/app"
	"github.com/MarkoPoloResearchLab/parkwash/internal/grpcserver"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
)

const (
	flagDatabaseURL = "database-url"
	flagConsoleAddr = "console-addr"
	flagTimeout     = "timeout"
	envPrefix       = "PARKWASH"
	defaultTimeout  = 30 * time.Second
)

type runtimeConfig struct {
	DatabaseURL string
	ConsoleAddr string
	Timeout     time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "parkwash-sweep: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "parkwash-sweep",
		Short:         "Run one sweep of expired parkings and due service orders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
			if cfg.ConsoleAddr != "" {
				return sweepRemote(ctx, cmd, cfg.ConsoleAddr)
			}
			return sweepLocal(ctx, cmd, cfg.DatabaseURL)
		},
	}

	cmd.Flags().String(flagDatabaseURL, app.DefaultDatabaseURL, "PostgreSQL URL or SQLite path")
	cmd.Flags().String(flagConsoleAddr, "", "run the sweep through a parkwashd staff console instead of the database")
	cmd.Flags().Duration(flagTimeout, defaultTimeout, "sweep timeout")
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for _, flagName := range []string{flagDatabaseURL, flagConsoleAddr, flagTimeout} {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}
	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.ConsoleAddr = strings.TrimSpace(v.GetString(flagConsoleAddr))
	cfg.Timeout = v.GetDuration(flagTimeout)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.DatabaseURL == "" && cfg.ConsoleAddr == "" {
		return fmt.Errorf("%s or %s is required", flagDatabaseURL, flagConsoleAddr)
	}
	return nil
}

func sweepLocal(ctx context.Context, cmd *cobra.Command, databaseURL string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	application, err := app.New(ctx, app.Config{DatabaseURL: databaseURL}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = application.Close() }()

	report, err := application.SweepOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "expired=%d started=%d completed=%d skipped=%d failed=%d\n",
		report.Expired, report.Started, report.Completed, report.Skipped, len(report.Failures))
	return report.Err()
}

func sweepRemote(ctx context.Context, cmd *cobra.Command, consoleAddr string) error {
	conn, err := grpc.NewClient(consoleAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial staff console: %w", err)
	}
	defer func() { _ = conn.Close() }()

	response, err := grpcserver.NewStaffConsoleClient(conn).RunSweep(ctx, nil)
	if err != nil {
		return fmt.Errorf("run sweep: %w", err)
	}
	rendered, err := protojson.Marshal(response)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(rendered))
	return nil
}
