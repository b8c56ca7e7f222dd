// Package app wires the store, the wallet ledger, the booking engine and the
// notifiers into a running parkwash service.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/parkwash/internal/httpapi"
	"github.com/MarkoPoloResearchLab/parkwash/internal/notify"
	"github.com/MarkoPoloResearchLab/parkwash/internal/oplog"
	"github.com/MarkoPoloResearchLab/parkwash/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/booking"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/settlement"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/sweep"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// App holds the wired domain services.
type App struct {
	cfg      Config
	logger   *zap.Logger
	Store    *gormstore.Store
	Wallet   *wallet.Ledger
	Bookings *booking.Service
	Sweeper  *sweep.Sweeper
	closers  []func() error
}

// New opens the database, migrates the schema and wires every service.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	database, closeDatabase, err := OpenDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	application := &App{cfg: cfg, logger: logger, closers: []func() error{closeDatabase}}

	application.Store = gormstore.New(database)
	if err := application.Store.Migrate(ctx); err != nil {
		_ = application.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := application.wire(cfg); err != nil {
		_ = application.Close()
		return nil, err
	}
	return application, nil
}

func (application *App) wire(cfg Config) error {
	operations := oplog.New(application.logger)
	notifier, err := application.buildNotifier(cfg)
	if err != nil {
		return err
	}
	calculator, err := settlement.NewCalculator(cfg.BillingBlockMinutes)
	if err != nil {
		return fmt.Errorf("settlement: %w", err)
	}
	clock := func() time.Time { return time.Now().UTC() }

	ledgerOptions := []wallet.LedgerOption{wallet.WithOperationLogger(operations)}
	serviceOptions := []booking.ServiceOption{booking.WithTransitionLogger(operations), booking.WithCalculator(calculator)}
	if notifier != nil {
		ledgerOptions = append(ledgerOptions, wallet.WithNotifier(notifier, operations))
		serviceOptions = append(serviceOptions, booking.WithNotifier(notifier, operations))
	}

	application.Wallet, err = wallet.NewLedger(application.Store.Wallet(), clock, ledgerOptions...)
	if err != nil {
		return fmt.Errorf("wallet ledger init: %w", err)
	}
	application.Bookings, err = booking.NewService(application.Store.Bookings(), application.Wallet, clock, serviceOptions...)
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}
	application.Sweeper, err = sweep.New(application.Store, application.Bookings, clock)
	if err != nil {
		return fmt.Errorf("sweeper init: %w", err)
	}
	return nil
}

// buildNotifier returns nil when neither SMTP nor Redis is configured.
func (application *App) buildNotifier(cfg Config) (notice.Notifier, error) {
	var fanout notify.Fanout
	if cfg.Mail.Host != "" {
		client, err := notify.NewSMTPClient(cfg.Mail)
		if err != nil {
			return nil, err
		}
		mailer, err := notify.NewMailNotifier(client, application.Store, cfg.Mail.From)
		if err != nil {
			return nil, err
		}
		fanout = append(fanout, mailer)
	}
	if cfg.RedisURL != "" {
		client, err := notify.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		application.closers = append(application.closers, client.Close)
		publisher, err := notify.NewRedisNotifier(client, cfg.NotifyChannel)
		if err != nil {
			return nil, err
		}
		fanout = append(fanout, publisher)
	}
	if len(fanout) == 0 {
		return nil, nil
	}
	return fanout, nil
}

// Close releases the database and notifier connections.
func (application *App) Close() error {
	var closeErrors []error
	for index := len(application.closers) - 1; index >= 0; index-- {
		if err := application.closers[index](); err != nil {
			closeErrors = append(closeErrors, err)
		}
	}
	application.closers = nil
	return errors.Join(closeErrors...)
}

// SweepOnce runs one sweep and logs its outcome.
func (application *App) SweepOnce(ctx context.Context) (sweep.Report, error) {
	report, err := application.Sweeper.Run(ctx)
	if err != nil {
		application.logger.Error("sweep failed", zap.Error(err))
		return report, err
	}
	fields := []zap.Field{
		zap.Int("expired", report.Expired),
		zap.Int("started", report.Started),
		zap.Int("completed", report.Completed),
		zap.Int("skipped", report.Skipped),
	}
	if failures := report.Err(); failures != nil {
		application.logger.Warn("sweep finished with failures", append(fields, zap.Error(failures))...)
		return report, nil
	}
	application.logger.Info("sweep finished", fields...)
	return report, nil
}

// Serve runs the HTTP API, the gRPC staff console and the sweep scheduler
// until ctx is cancelled or one of them fails.
func (application *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	scheduler, err := application.startScheduler()
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := scheduler.Shutdown(); shutdownErr != nil {
			application.logger.Warn("scheduler shutdown error", zap.Error(shutdownErr))
		}
	}()

	console, err := grpcserver.NewStaffConsoleServer(application.Bookings, application.Wallet, application.Sweeper, application.logger)
	if err != nil {
		return err
	}
	deps := httpapi.Dependencies{
		Bookings: application.Bookings,
		Wallet:   application.Wallet,
		Sweeper:  application.Sweeper,
		Logger:   application.logger,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- httpapi.Run(ctx, application.cfg.HTTP, deps)
	}()
	go func() {
		errCh <- grpcserver.Serve(ctx, application.cfg.GRPCListenAddr, console, application.logger)
	}()

	var serveErrors []error
	for remaining := 2; remaining > 0; remaining-- {
		if err := <-errCh; err != nil {
			serveErrors = append(serveErrors, err)
			cancel()
		}
	}
	return errors.Join(serveErrors...)
}

func (application *App) startScheduler() (gocron.Scheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("scheduler init: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(application.cfg.SweepInterval),
		gocron.NewTask(func(ctx context.Context) {
			_, _ = application.SweepOnce(ctx)
		}),
		gocron.WithName("sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	scheduler.Start()
	application.logger.Info("sweep scheduled", zap.Duration("interval", application.cfg.SweepInterval))
	return scheduler, nil
}
