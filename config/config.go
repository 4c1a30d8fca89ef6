package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	defaultListenAddress   = ":8080"
	defaultServiceName     = "gaugesd"
	defaultTokenless       = 40
	defaultEpochDuration   = 86400 * 186
	defaultInitialDelay    = 86400
	defaultMaxLock         = 4 * 365 * 86400
	defaultReadTimeoutSecs = 10
)

type Config struct {
	Logging     Logging     `toml:"logging"`
	Telemetry   Telemetry   `toml:"telemetry"`
	Server      Server      `toml:"server"`
	Gauge       Gauge       `toml:"gauge"`
	Distributor Distributor `toml:"distributor"`
	Controller  Controller  `toml:"controller"`
	Escrow      Escrow      `toml:"escrow"`
	Auth        Auth        `toml:"auth"`
	Pauses      Pauses      `toml:"pauses"`
}

// Default returns a single-gauge setup with a zero emission rate.
func Default() *Config {
	cfg := &Config{
		Logging: Logging{Service: defaultServiceName, Level: "info"},
		Server: Server{
			ListenAddress:      defaultListenAddress,
			DataDir:            "./gauge-data",
			RateLimit:          10,
			Burst:              20,
			ReadTimeoutSeconds: defaultReadTimeoutSecs,
		},
		Gauge: Gauge{
			Address:                "0x00000000000000000000000000000000000000a1",
			TokenlessProductionPct: defaultTokenless,
		},
		Distributor: Distributor{
			Proxy:                "0x00000000000000000000000000000000000000d1",
			InitialRate:          "0",
			EpochDurationSeconds: defaultEpochDuration,
			InitialDelaySeconds:  defaultInitialDelay,
		},
		Controller: Controller{
			Types: []GaugeType{{Name: "liquidity", Weight: "1000000000000000000"}},
			Gauges: []GaugeWeight{{
				Address: "0x00000000000000000000000000000000000000a1",
				Weight:  "1000000000000000000",
			}},
		},
		Escrow: Escrow{MaxLockSeconds: defaultMaxLock},
	}
	return cfg
}

// Load loads the configuration from the given path. A missing file is created
// with the defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	// Seeded lists are replaced wholesale rather than merged element-wise.
	seeded := cfg.Controller
	cfg.Controller.Types, cfg.Controller.Gauges = nil, nil
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if cfg.Controller.Types == nil && cfg.Controller.Gauges == nil {
		cfg.Controller.Types, cfg.Controller.Gauges = seeded.Types, seeded.Gauges
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Logging.Service) == "" {
		cfg.Logging.Service = defaultServiceName
	}
	if strings.TrimSpace(cfg.Server.ListenAddress) == "" {
		cfg.Server.ListenAddress = defaultListenAddress
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = defaultReadTimeoutSecs
	}
	if cfg.Gauge.TokenlessProductionPct == 0 {
		cfg.Gauge.TokenlessProductionPct = defaultTokenless
	}
	if strings.TrimSpace(cfg.Distributor.InitialRate) == "" {
		cfg.Distributor.InitialRate = "0"
	}
	if cfg.Distributor.EpochDurationSeconds == 0 {
		cfg.Distributor.EpochDurationSeconds = defaultEpochDuration
	}
	if cfg.Escrow.MaxLockSeconds == 0 {
		cfg.Escrow.MaxLockSeconds = defaultMaxLock
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// ParseAmount parses a non-negative decimal integer. An empty string is zero.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", value)
	}
	return amount, nil
}
