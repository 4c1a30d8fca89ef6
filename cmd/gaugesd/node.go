package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"liquiditygauge/config"
	"liquiditygauge/gateway/middleware"
	"liquiditygauge/gateway/routes"
	"liquiditygauge/native/bank"
	nativecommon "liquiditygauge/native/common"
	"liquiditygauge/native/controller"
	"liquiditygauge/native/distributor"
	"liquiditygauge/native/gauge"
	"liquiditygauge/native/minter"
	"liquiditygauge/native/votingescrow"
	"liquiditygauge/observability/metrics"
	"liquiditygauge/storage"
)

const adminSecretEnv = "GAUGESD_ADMIN_SECRET"

var deployedAtKey = []byte("node/deployedAt")

// node bundles the engines served by the daemon.
type node struct {
	db          storage.Database
	clock       nativecommon.Clock
	logger      *slog.Logger
	pauses      *nativecommon.PauseSet
	distributor *distributor.Distributor
	controller  *controller.Controller
	escrow      *votingescrow.Escrow
	gauge       *gauge.Engine
	ledger      *bank.Ledger
	minter      *minter.Minter
	metrics     *metrics.GaugeMetrics
}

func openDatabase(dataDir string) (storage.Database, error) {
	dir := strings.TrimSpace(dataDir)
	if dir == "" {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return storage.NewLevelDB(filepath.Join(dir, "gauges"))
}

// buildNode deploys the distributor, controller, escrow, gauge and minter
// described by cfg on top of db.
func buildNode(cfg *config.Config, db storage.Database, clock nativecommon.Clock, logger *slog.Logger) (*node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	deployedAt, err := deploymentTime(cfg, db, clock, logger)
	if err != nil {
		return nil, err
	}

	n := &node{db: db, clock: clock, logger: logger, ledger: bank.NewLedger(), metrics: metrics.Gauge()}
	if err := n.ledger.Load(db); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	initialRate, err := config.ParseAmount(cfg.Distributor.InitialRate)
	if err != nil {
		return nil, fmt.Errorf("distributor rate: %w", err)
	}
	distAdmin := config.Address(cfg.Distributor.Admin)
	n.distributor, err = distributor.New(distributor.Config{
		Admin:         distAdmin,
		InitialRate:   initialRate,
		EpochDuration: cfg.Distributor.EpochDurationSeconds,
		InitialDelay:  cfg.Distributor.InitialDelaySeconds,
	}, deployedAt)
	if err != nil {
		return nil, err
	}
	n.distributor.SetLogger(logger.With(slog.String("component", "distributor")))
	if err := n.distributor.SetStore(db); err != nil {
		return nil, fmt.Errorf("load distributor: %w", err)
	}
	proxy := config.Address(cfg.Distributor.Proxy)
	if err := n.distributor.SetDistributorProxy(distAdmin, proxy); err != nil {
		return nil, fmt.Errorf("distributor proxy: %w", err)
	}

	if n.controller, err = seedController(cfg.Controller, deployedAt); err != nil {
		return nil, err
	}
	n.controller.SetLogger(logger.With(slog.String("component", "controller")))

	n.escrow = votingescrow.New(cfg.Escrow.MaxLockSeconds)
	n.escrow.SetLogger(logger.With(slog.String("component", "escrow")))
	if err := n.escrow.SetStore(db); err != nil {
		return nil, fmt.Errorf("load escrow: %w", err)
	}

	n.pauses = nativecommon.NewPauseSet()
	n.pauses.Set("gauge", cfg.Pauses.Gauge)
	n.pauses.Set("minter", cfg.Pauses.Minter)

	n.gauge, err = gauge.LoadEngine(gauge.Config{
		Address:             config.Address(cfg.Gauge.Address),
		Admin:               config.Address(cfg.Gauge.Admin),
		TokenlessProduction: cfg.Gauge.TokenlessProductionPct,
	}, n.distributor, n.controller, n.escrow, clock, gauge.NewStore(db))
	if err != nil {
		return nil, fmt.Errorf("load gauge: %w", err)
	}
	n.gauge.SetLogger(logger.With(slog.String("component", "gauge")))
	n.gauge.SetPauses(n.pauses)
	n.gauge.SetMetrics(n.metrics)

	n.minter, err = minter.New(proxy, n.controller, n.distributor, n.ledger, clock)
	if err != nil {
		return nil, err
	}
	n.minter.SetLogger(logger.With(slog.String("component", "minter")))
	n.minter.SetPauses(n.pauses)
	n.minter.SetMetrics(n.metrics)
	if err := n.minter.SetStore(db, n.ledger, n.distributor); err != nil {
		return nil, fmt.Errorf("load minter: %w", err)
	}
	if err := n.minter.AddGauge(n.gauge); err != nil {
		return nil, fmt.Errorf("register gauge with minter: %w", err)
	}

	n.observeDistributor()
	return n, nil
}

// deploymentTime returns the configured deployment time. Without one the
// first start anchors it to the clock and later starts reuse that anchor, so
// the epoch schedule and the controller survive restarts.
func deploymentTime(cfg *config.Config, db storage.Database, clock nativecommon.Clock, logger *slog.Logger) (uint64, error) {
	if cfg.Distributor.DeployedAt != 0 {
		return cfg.Distributor.DeployedAt, nil
	}
	var deployedAt uint64
	raw, err := db.Get(deployedAtKey)
	switch {
	case err == nil:
		if err := rlp.DecodeBytes(raw, &deployedAt); err != nil {
			return 0, fmt.Errorf("decode deployment time: %w", err)
		}
		return deployedAt, nil
	case !errors.Is(err, storage.ErrNotFound):
		return 0, err
	}
	deployedAt = clock.Now()
	logger.Warn("distributor deployment time not configured, anchoring to start time",
		slog.Uint64("deployedAt", deployedAt))
	encoded, err := rlp.EncodeToBytes(deployedAt)
	if err != nil {
		return 0, err
	}
	if err := db.Put(deployedAtKey, encoded); err != nil {
		return 0, fmt.Errorf("persist deployment time: %w", err)
	}
	return deployedAt, nil
}

func seedController(cfg config.Controller, now uint64) (*controller.Controller, error) {
	admin := config.Address(cfg.Admin)
	ctrl := controller.New(admin)
	typeIDs := make([]int, len(cfg.Types))
	for i, t := range cfg.Types {
		weight, err := config.ParseAmount(t.Weight)
		if err != nil {
			return nil, fmt.Errorf("controller type %s: %w", t.Name, err)
		}
		if typeIDs[i], err = ctrl.AddType(admin, t.Name, weight, now); err != nil {
			return nil, fmt.Errorf("controller type %s: %w", t.Name, err)
		}
	}
	for _, g := range cfg.Gauges {
		weight, err := config.ParseAmount(g.Weight)
		if err != nil {
			return nil, fmt.Errorf("controller gauge %s: %w", g.Address, err)
		}
		if err := ctrl.AddGauge(admin, config.Address(g.Address), typeIDs[g.Type], weight, now); err != nil {
			return nil, fmt.Errorf("controller gauge %s: %w", g.Address, err)
		}
	}
	return ctrl, nil
}

// observeDistributor advances the epoch when it has elapsed and publishes
// the emission gauges.
func (n *node) observeDistributor() {
	if _, err := n.distributor.StartEpochTimeWrite(n.clock.Now()); err != nil {
		n.logger.Warn("advance epoch", slog.Any("error", err))
	}
	n.metrics.ObserveDistributor(n.distributor.Rate(), n.distributor.TotalDistributed())
}

// adminSecret returns the configured token secret, preferring the
// environment over the config file.
func adminSecret(cfg *config.Config) string {
	if override := strings.TrimSpace(os.Getenv(adminSecretEnv)); override != "" {
		return override
	}
	return strings.TrimSpace(cfg.Auth.HMACSecret)
}

func (n *node) handler(cfg *config.Config, logger *slog.Logger) (http.Handler, error) {
	httpMetrics := metrics.HTTP()

	limits := map[string]middleware.RateLimit{}
	if cfg.Server.RateLimit > 0 {
		limit := middleware.RateLimit{RatePerSecond: cfg.Server.RateLimit, Burst: cfg.Server.Burst}
		for _, key := range []string{routes.LimitGauge, routes.LimitMinter, routes.LimitEscrow} {
			limits[key] = limit
		}
	}
	limiter := middleware.NewRateLimiter(limits, logger)
	limiter.SetMetrics(httpMetrics)

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		HMACSecret: adminSecret(cfg),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  time.Minute,
	}, logger)

	return routes.New(routes.Config{
		Gauge:         n.gauge,
		Minter:        n.minter,
		Distributor:   n.distributor,
		Escrow:        n.escrow,
		Pauses:        n.pauses,
		Clock:         n.clock,
		Admin:         config.Address(cfg.Gauge.Admin),
		Authenticator: auth,
		RateLimiter:   limiter,
		Observability: middleware.NewObservability(cfg.Logging.Service, logger, httpMetrics),
	})
}

// watchEpochs refreshes the distributor metrics until ctx is cancelled.
func (n *node) watchEpochs(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.observeDistributor()
		}
	}
}

func (n *node) Close() error {
	if n == nil || n.db == nil {
		return nil
	}
	return n.db.Close()
}
