package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"liquiditygauge/observability/logging"
)

// Validate checks a loaded configuration for values the engines would reject.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return err
	}
	if cfg.Logging.MaxSizeMB < 0 || cfg.Logging.MaxBackups < 0 || cfg.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	if cfg.Server.RateLimit < 0 || cfg.Server.Burst < 0 {
		return fmt.Errorf("server: rate limit must not be negative")
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.Burst == 0 {
		return fmt.Errorf("server: burst must be positive when rate limiting")
	}

	if err := requireAddress("gauge.Address", cfg.Gauge.Address, true); err != nil {
		return err
	}
	if err := requireAddress("gauge.Admin", cfg.Gauge.Admin, false); err != nil {
		return err
	}
	if cfg.Gauge.TokenlessProductionPct == 0 || cfg.Gauge.TokenlessProductionPct > 100 {
		return fmt.Errorf("gauge: TokenlessProductionPct must be within 1..100")
	}

	if err := requireAddress("distributor.Admin", cfg.Distributor.Admin, false); err != nil {
		return err
	}
	if err := requireAddress("distributor.Proxy", cfg.Distributor.Proxy, true); err != nil {
		return err
	}
	if _, err := ParseAmount(cfg.Distributor.InitialRate); err != nil {
		return fmt.Errorf("distributor.InitialRate: %w", err)
	}
	if cfg.Distributor.InitialDelaySeconds > cfg.Distributor.EpochDurationSeconds {
		return fmt.Errorf("distributor: initial delay exceeds epoch duration")
	}

	if err := requireAddress("controller.Admin", cfg.Controller.Admin, false); err != nil {
		return err
	}
	for i, t := range cfg.Controller.Types {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("controller.Types[%d]: name required", i)
		}
		if _, err := ParseAmount(t.Weight); err != nil {
			return fmt.Errorf("controller.Types[%d].Weight: %w", i, err)
		}
	}
	listed := false
	for i, g := range cfg.Controller.Gauges {
		if err := requireAddress(fmt.Sprintf("controller.Gauges[%d].Address", i), g.Address, true); err != nil {
			return err
		}
		if g.Type < 0 || g.Type >= len(cfg.Controller.Types) {
			return fmt.Errorf("controller.Gauges[%d]: unknown type %d", i, g.Type)
		}
		if _, err := ParseAmount(g.Weight); err != nil {
			return fmt.Errorf("controller.Gauges[%d].Weight: %w", i, err)
		}
		if common.HexToAddress(g.Address) == common.HexToAddress(cfg.Gauge.Address) {
			listed = true
		}
	}
	if !listed {
		return fmt.Errorf("controller: gauge %s is not registered", cfg.Gauge.Address)
	}

	if cfg.Escrow.MaxLockSeconds == 0 {
		return fmt.Errorf("escrow: MaxLockSeconds must be positive")
	}
	return nil
}

func requireAddress(field, value string, required bool) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if required {
			return fmt.Errorf("%s: address required", field)
		}
		return nil
	}
	if !common.IsHexAddress(trimmed) {
		return fmt.Errorf("%s: invalid address %q", field, value)
	}
	if required && common.HexToAddress(trimmed) == (common.Address{}) {
		return fmt.Errorf("%s: zero address", field)
	}
	return nil
}

// Address parses an already validated address field.
func Address(value string) common.Address {
	return common.HexToAddress(strings.TrimSpace(value))
}
