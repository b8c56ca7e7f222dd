package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MarkoPoloResearchLab/parkwash/internal/app"
	"github.com/MarkoPoloResearchLab/parkwash/internal/httpapi"
	"github.com/MarkoPoloResearchLab/parkwash/internal/notify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagDatabaseURL         = "database-url"
	flagHTTPListenAddr      = "http-listen-addr"
	flagGRPCListenAddr      = "grpc-listen-addr"
	flagAllowedOrigins      = "allowed-origins"
	flagJWTSigningKey       = "jwt-signing-key"
	flagJWTIssuer           = "jwt-issuer"
	flagJWTCookieName       = "jwt-cookie-name"
	flagStaffRole           = "staff-role"
	flagSweepInterval       = "sweep-interval"
	flagBillingBlockMinutes = "billing-block-minutes"
	flagSMTPHost            = "smtp-host"
	flagSMTPPort            = "smtp-port"
	flagSMTPUsername        = "smtp-username"
	flagSMTPPassword        = "smtp-password"
	flagMailFrom            = "mail-from"
	flagRedisURL            = "redis-url"
	flagNotifyChannel       = "notify-channel"
	flagRequestTimeout      = "request-timeout"
	envPrefix               = "PARKWASH"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "parkwashd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := app.Config{}
	cmd := &cobra.Command{
		Use:           "parkwashd",
		Short:         "Parking and car wash booking service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, &cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := cfg.HTTP.Validate(); err != nil {
				return err
			}
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			application, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()
			return application.Serve(ctx)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, app.DefaultDatabaseURL, "PostgreSQL URL or SQLite path")
	flags.String(flagHTTPListenAddr, "", "HTTP listen address")
	flags.String(flagGRPCListenAddr, app.DefaultGRPCListenAddr, "gRPC staff console listen address")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	flags.String(flagJWTSigningKey, "", "TAuth JWT signing key")
	flags.String(flagJWTIssuer, "", "expected JWT issuer")
	flags.String(flagJWTCookieName, "", "JWT cookie name")
	flags.String(flagStaffRole, "", "session role granting staff routes")
	flags.Duration(flagSweepInterval, app.DefaultSweepInterval, "interval between scheduled sweeps")
	flags.Int(flagBillingBlockMinutes, 0, "overtime billing block in minutes")
	flags.String(flagSMTPHost, "", "SMTP relay host; empty disables email notices")
	flags.Int(flagSMTPPort, 0, "SMTP relay port")
	flags.String(flagSMTPUsername, "", "SMTP username")
	flags.String(flagSMTPPassword, "", "SMTP password")
	flags.String(flagMailFrom, "", "sender address of email notices")
	flags.String(flagRedisURL, "", "redis:// URL; empty disables published notices")
	flags.String(flagNotifyChannel, notify.DefaultChannel, "Redis channel for notices")
	flags.Duration(flagRequestTimeout, 0, "per-request timeout of the HTTP API")

	cmd.AddCommand(newSeedDemoCommand(&cfg))
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *app.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Root().PersistentFlags()
	for _, flagName := range []string{
		flagDatabaseURL, flagHTTPListenAddr, flagGRPCListenAddr, flagAllowedOrigins,
		flagJWTSigningKey, flagJWTIssuer, flagJWTCookieName, flagStaffRole,
		flagSweepInterval, flagBillingBlockMinutes, flagSMTPHost, flagSMTPPort,
		flagSMTPUsername, flagSMTPPassword, flagMailFrom, flagRedisURL,
		flagNotifyChannel, flagRequestTimeout,
	} {
		if err := v.BindPFlag(flagName, flags.Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	cfg.GRPCListenAddr = strings.TrimSpace(v.GetString(flagGRPCListenAddr))
	cfg.SweepInterval = v.GetDuration(flagSweepInterval)
	cfg.BillingBlockMinutes = v.GetInt(flagBillingBlockMinutes)
	cfg.Mail = notify.MailConfig{
		Host:     v.GetString(flagSMTPHost),
		Port:     v.GetInt(flagSMTPPort),
		Username: v.GetString(flagSMTPUsername),
		Password: v.GetString(flagSMTPPassword),
		From:     v.GetString(flagMailFrom),
	}
	cfg.RedisURL = v.GetString(flagRedisURL)
	cfg.NotifyChannel = v.GetString(flagNotifyChannel)
	cfg.HTTP = httpapi.Config{
		ListenAddr:        strings.TrimSpace(v.GetString(flagHTTPListenAddr)),
		AllowedOrigins:    httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionSigningKey: v.GetString(flagJWTSigningKey),
		SessionIssuer:     strings.TrimSpace(v.GetString(flagJWTIssuer)),
		SessionCookieName: strings.TrimSpace(v.GetString(flagJWTCookieName)),
		StaffRole:         strings.TrimSpace(v.GetString(flagStaffRole)),
		RequestTimeout:    v.GetDuration(flagRequestTimeout),
	}
	return cfg.Validate()
}
