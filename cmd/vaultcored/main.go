package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vaultcore/config"
	"vaultcore/core/events"
	"vaultcore/crypto"
	"vaultcore/native/accrual"
	nativecommon "vaultcore/native/common"
	"vaultcore/native/ledger"
	"vaultcore/native/liquidation"
	"vaultcore/observability"
	"vaultcore/observability/logging"
	"vaultcore/rpc"
	"vaultcore/state"
	"vaultcore/storage"
)

const (
	accrualModuleName     = "accrual"
	liquidationModuleName = "liquidation"
	revenueModuleName     = "revenue"
	adminModuleName       = "admin"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VAULTCORE_ENV"))
	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	if env == "" {
		env = cfg.Environment
	}

	var rotation *logging.Rotation
	if strings.TrimSpace(cfg.Log.FilePath) != "" {
		rotation = &logging.Rotation{
			Path:       cfg.Log.FilePath,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
		}
	}
	logger := logging.Setup("vaultcored", env, rotation)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	manager := state.NewManager(db)
	emitter := events.Fanout(observability.EventRecorder{}, logEmitter{logger: logger})
	switchboard := nativecommon.NewSwitchboard()

	admin := crypto.ModuleAddress(adminModuleName)
	if trimmed := strings.TrimSpace(cfg.Ledger.AdminAccount); trimmed != "" {
		decoded, err := crypto.DecodeAddress(trimmed)
		if err != nil {
			logger.Error("Invalid ledger.AdminAccount", slog.Any("error", err))
			os.Exit(1)
		}
		admin = decoded
	}
	revenue := crypto.ModuleAddress(revenueModuleName)

	ledgerEngine := ledger.NewEngine(admin)
	ledgerEngine.SetState(manager)
	ledgerEngine.SetEmitter(emitter)

	accrualEngine := accrual.NewEngine(crypto.ModuleAddress(accrualModuleName), revenue)
	accrualEngine.SetState(manager)
	accrualEngine.SetLedger(ledgerEngine)
	accrualEngine.SetEmitter(emitter)
	accrualEngine.SetPauses(switchboard)

	liquidationEngine := liquidation.NewEngine(crypto.ModuleAddress(liquidationModuleName), revenue, cfg.Liquidation.AuctionDurationSeconds)
	liquidationEngine.SetState(manager)
	liquidationEngine.SetLedger(ledgerEngine)
	liquidationEngine.SetEmitter(emitter)
	liquidationEngine.SetPauses(switchboard)

	if err := bootstrap(cfg, admin, ledgerEngine, accrualEngine, liquidationEngine); err != nil {
		logger.Error("Failed to bootstrap engines", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rpcServer := rpc.NewServer(ledgerEngine, accrualEngine, liquidationEngine, switchboard)
	if cfg.Keeper.Enabled {
		go runKeeper(ctx, logger, rpcServer, cfg)
	}
	mux := http.NewServeMux()
	mux.Handle("/", rpcServer.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting JSON-RPC server", slog.String("address", cfg.ListenAddress))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

// bootstrap applies the configured global ceiling and collateral classes. All
// steps are idempotent so restarts never trip on already-initialized classes.
func bootstrap(cfg *config.Config, admin crypto.Address, ledgerEngine *ledger.Engine, accrualEngine *accrual.Engine, liquidationEngine *liquidation.Engine) error {
	if err := ledgerEngine.Authorize(admin, accrualEngine.ModuleAddress()); err != nil {
		return fmt.Errorf("authorize accrual module: %w", err)
	}
	if err := ledgerEngine.Authorize(admin, liquidationEngine.ModuleAddress()); err != nil {
		return fmt.Errorf("authorize liquidation module: %w", err)
	}

	ceiling, err := config.ParseBig(cfg.Ledger.GlobalCeilingRad)
	if err != nil {
		return err
	}
	if ceiling != nil {
		if err := ledgerEngine.SetGlobalParam(admin, ledger.GlobalParamCeiling, ceiling); err != nil {
			return fmt.Errorf("set global ceiling: %w", err)
		}
	}

	baseRate, err := config.ParseBig(cfg.Accrual.BaseRatePerSecondRay)
	if err != nil {
		return err
	}
	if baseRate != nil {
		accrualEngine.SetBaseRate(baseRate)
	}

	for i := range cfg.Collateral {
		entry := &cfg.Collateral[i]
		symbol := strings.TrimSpace(entry.Symbol)
		if err := ledgerEngine.InitClass(admin, symbol); err != nil && !errors.Is(err, ledger.ErrClassExists) {
			return fmt.Errorf("init class %s: %w", symbol, err)
		}
		if err := applyClassParams(admin, ledgerEngine, symbol, entry); err != nil {
			return err
		}
		if err := accrualEngine.InitClass(symbol); err != nil && !errors.Is(err, accrual.ErrClassExists) {
			return fmt.Errorf("init fee class %s: %w", symbol, err)
		}
		duty, err := config.ParseBig(entry.DutyPerSecondRay)
		if err != nil {
			return fmt.Errorf("class %s duty: %w", symbol, err)
		}
		if duty != nil {
			if err := accrualEngine.SetDuty(symbol, duty); err != nil {
				return fmt.Errorf("set duty %s: %w", symbol, err)
			}
		}
		penalty, err := config.ParseBig(entry.PenaltyFactorWad)
		if err != nil {
			return fmt.Errorf("class %s penalty: %w", symbol, err)
		}
		buffer, err := config.ParseBig(entry.StartPriceBufferRay)
		if err != nil {
			return fmt.Errorf("class %s buffer: %w", symbol, err)
		}
		if penalty != nil && buffer != nil {
			if err := liquidationEngine.SetClassParams(symbol, penalty, buffer); err != nil {
				return fmt.Errorf("set liquidation params %s: %w", symbol, err)
			}
		}
	}
	return nil
}

func applyClassParams(admin crypto.Address, ledgerEngine *ledger.Engine, symbol string, entry *config.CollateralConfig) error {
	for _, field := range []struct {
		param ledger.ClassParam
		value string
	}{
		{ledger.ClassParamSpot, entry.SpotRay},
		{ledger.ClassParamLine, entry.LineRad},
		{ledger.ClassParamDust, entry.DustRad},
	} {
		parsed, err := config.ParseBig(field.value)
		if err != nil {
			return fmt.Errorf("class %s %s: %w", symbol, field.param, err)
		}
		if parsed == nil {
			continue
		}
		if err := ledgerEngine.SetClassParam(admin, symbol, field.param, parsed); err != nil {
			return fmt.Errorf("class %s %s: %w", symbol, field.param, err)
		}
	}
	return nil
}

// runKeeper folds fees onto every configured class on a fixed interval so
// idle classes still compound without external callers. Accruals go through
// the RPC server's FoldFees so they share its state lock with live traffic.
func runKeeper(ctx context.Context, logger *slog.Logger, rpcServer *rpc.Server, cfg *config.Config) {
	ticker := time.NewTicker(time.Duration(cfg.Keeper.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i := range cfg.Collateral {
				symbol := strings.TrimSpace(cfg.Collateral[i].Symbol)
				if _, err := rpcServer.FoldFees(symbol); err != nil {
					logger.Warn("Keeper accrual failed", slog.String("symbol", symbol), slog.Any("error", err))
				}
			}
		}
	}
}

// logEmitter mirrors engine events into the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if l.logger == nil {
		return
	}
	l.logger.Info("engine event", slog.String("type", evt.EventType()))
}
