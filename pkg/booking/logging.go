package booking

import (
	"context"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/settlement"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/wallet"
)

const (
	operationStatusOK    = "ok"
	operationStatusError = "error"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// TransitionLogger records every attempted booking transition.
type TransitionLogger interface {
	LogTransition(ctx context.Context, entry TransitionLog)
}

// TransitionLog describes one attempted transition.
type TransitionLog struct {
	Kind      Kind
	BookingID uint64
	Event     Event
	From      Status
	To        Status
	Actor     wallet.UserID
	Status    string
	Error     error
}

// WithTransitionLogger wires a logger that receives callbacks for every transition.
func WithTransitionLogger(logger TransitionLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithNotifier wires the outbound notifier for booking events.
func WithNotifier(notifier notice.Notifier, failures notice.FailureLogger) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
		service.notifyFailures = failures
	}
}

// WithCalculator replaces the default checkout settlement calculator.
func WithCalculator(calculator settlement.Calculator) ServiceOption {
	return func(service *Service) {
		service.calculator = calculator
	}
}

func (service *Service) logTransition(ctx context.Context, entry TransitionLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogTransition(ctx, entry)
}
