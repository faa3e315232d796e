package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"flexcore/config"
	"flexcore/core/state"
	"flexcore/native/bnpl"
	"flexcore/native/collateral"
	"flexcore/native/creditscore"
	"flexcore/native/yieldsink"
	"flexcore/observability/logging"
	"flexcore/rpc"
	"flexcore/storage"
)

func main() {
	configFile := flag.String("config", "./flexcore.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("FLEXCORE_ENV"))
	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Setup(cfg.ServiceName, env)

	vault, err := cfg.Vault()
	if err != nil {
		logger.Error("invalid vault address", "err", err)
		os.Exit(1)
	}
	treasury, err := cfg.Treasury()
	if err != nil {
		logger.Error("invalid treasury address", "err", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data dir", "err", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)

	collateralEngine := collateral.NewEngine(vault, treasury, collateral.Params{
		MinDeposit:  cfg.Collateral.MinDeposit,
		MinLockDays: cfg.Collateral.MinLockDays,
		MaxLockDays: cfg.Collateral.MaxLockDays,
	})
	collateralEngine.SetState(manager)
	collateralEngine.SetBank(manager)

	scoreEngine := creditscore.NewEngine(cfg.Score.InitialScore, creditscore.Rules{
		OnTimeBonus:        cfg.Score.OnTimeBonus,
		LateRecoveredDelta: cfg.Score.LateRecoveredDelta,
		CompletionBonus:    cfg.Score.CompletionBonus,
		DefaultPenalty:     cfg.Score.DefaultPenalty,
	})
	scoreEngine.SetState(manager)

	yieldTracker := yieldsink.NewTracker()
	yieldTracker.SetState(manager)

	contractManager := bnpl.NewManager(treasury, bnpl.Params{
		AllowedInstallments: cfg.BNPL.AllowedInstallments,
		MinIntervalDays:     cfg.BNPL.MinIntervalDays,
		MaxIntervalDays:     cfg.BNPL.MaxIntervalDays,
		GraceDays:           cfg.BNPL.GraceDays,
		PenaltyBps:          cfg.BNPL.PenaltyBps,
	})
	contractManager.SetState(manager)
	contractManager.SetBank(manager)
	contractManager.SetCollateral(collateralEngine)
	contractManager.SetScores(scoreEngine)

	processor := bnpl.NewProcessor(contractManager)
	processor.SetYield(yieldTracker)

	server := rpc.NewServer(rpc.ServerConfig{
		Collateral:   collateralEngine,
		Contracts:    contractManager,
		Processor:    processor,
		Scores:       scoreEngine,
		Yield:        yieldTracker,
		DefaultAsset: cfg.Asset,
		AuthToken:    cfg.AuthToken(),
		Logger:       logger,
	})
	obs := rpc.NewObservability(cfg.ServiceName, logger)
	limiter := rpc.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	httpServer := &http.Server{
		Addr:    cfg.RPCAddress,
		Handler: server.Router(obs, limiter),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting JSON-RPC server", "addr", cfg.RPCAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("rpc server stopped", "err", err)
			os.Exit(1)
		}
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		_ = httpServer.Close()
	}
}
