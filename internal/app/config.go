package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/parkwash/internal/httpapi"
	"github.com/MarkoPoloResearchLab/parkwash/internal/notify"
	"github.com/MarkoPoloResearchLab/parkwash/pkg/settlement"
)

const (
	DefaultDatabaseURL    = "sqlite:///tmp/parkwash.db"
	DefaultGRPCListenAddr = ":7000"
	DefaultSweepInterval  = time.Minute
)

// Config holds the runtime configuration of parkwashd.
type Config struct {
	DatabaseURL         string
	GRPCListenAddr      string
	SweepInterval       time.Duration
	BillingBlockMinutes int
	Mail                notify.MailConfig
	RedisURL            string
	NotifyChannel       string
	HTTP                httpapi.Config
}

// Validate applies defaults and rejects inconsistent settings.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = DefaultDatabaseURL
	}
	cfg.GRPCListenAddr = strings.TrimSpace(cfg.GRPCListenAddr)
	if cfg.GRPCListenAddr == "" {
		cfg.GRPCListenAddr = DefaultGRPCListenAddr
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.BillingBlockMinutes == 0 {
		cfg.BillingBlockMinutes = settlement.DefaultBlockMinutes
	}
	if cfg.BillingBlockMinutes < 0 {
		return fmt.Errorf("billing-block-minutes must be positive")
	}
	cfg.Mail.Host = strings.TrimSpace(cfg.Mail.Host)
	cfg.Mail.From = strings.TrimSpace(cfg.Mail.From)
	if cfg.Mail.Host != "" && cfg.Mail.From == "" {
		return errors.New("mail-from is required when smtp-host is set")
	}
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.NotifyChannel = strings.TrimSpace(cfg.NotifyChannel)
	return nil
}
