package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/btcledger/internal/config"
	"github.com/tdex-network/btcledger/internal/core/application"
	"github.com/tdex-network/btcledger/internal/infrastructure/cache/inmemory"
	"github.com/tdex-network/btcledger/internal/infrastructure/chain/bitcoind"
	dbbadger "github.com/tdex-network/btcledger/internal/infrastructure/storage/db/badger"
	"github.com/tdex-network/btcledger/pkg/stats"
)

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Fatal("failed to init config")
	}

	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	network, err := config.GetNetwork()
	if err != nil {
		log.WithError(err).Fatal("invalid network")
	}

	repoManager, err := dbbadger.NewRepoManager(
		config.GetDbDir(), config.GetString(config.DBSecretKey), log.New(),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to open db")
	}

	chainClient, err := bitcoind.NewService(bitcoind.Opts{
		Host:       config.GetString(config.RPCAddrKey),
		User:       config.GetString(config.RPCUserKey),
		Password:   config.GetString(config.RPCPasswordKey),
		DisableTLS: !config.GetBool(config.RPCTLSKey),
		CacheTTL:   config.GetSeconds(config.RPCCacheTTLKey),
	})
	if err != nil {
		repoManager.Close()
		log.WithError(err).Fatal("failed to connect to node")
	}

	metrics := stats.NewMetrics()

	appConfig := &application.Config{
		RepoManager:          repoManager,
		ChainClient:          chainClient,
		ScanCache:            inmemory.NewScanCache(),
		Metrics:              metrics,
		Network:              network,
		LockWaitTimeout:      config.GetSeconds(config.LockWaitTimeoutKey),
		LockExecutionTimeout: config.GetSeconds(config.LockExecutionTimeoutKey),
		DustThreshold:        config.GetUint64(config.DustThresholdKey),
		MaxFeeRateMultiplier: config.GetFloat(config.MaxFeeRateMultiplierKey),
		FeeTargetBlocks:      config.GetUint32(config.FeeTargetBlocksKey),
		FeeRefreshInterval:   config.GetSeconds(config.FeeRefreshIntervalKey),
		PollInterval:         config.GetSeconds(config.PollIntervalKey),
		PollRateLimit:        config.GetInt(config.PollRateLimitKey),
		StartHeight:          config.GetUint32(config.StartHeightKey),
	}
	if err := appConfig.Validate(); err != nil {
		repoManager.Close()
		log.WithError(err).Fatal("invalid application config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if interval := config.GetSeconds(config.StatsIntervalKey); interval > 0 {
		stats.EnableMemoryStatistics(ctx, interval)
	}

	var metricsServer *http.Server
	if !config.GetBool(config.NoMetricsKey) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", config.GetInt(config.MetricsPortKey)),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
		log.Infof("metrics served on %s/metrics", metricsServer.Addr)
	}

	feeSvc := appConfig.FeeService()
	listener := appConfig.BlockchainListener()

	feeSvc.Start()
	listener.ObserveBlockchain()

	log.Info("ledger daemon started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan

	log.Info("shutting down")

	listener.StopObserveBlockchain()
	feeSvc.Stop()

	if metricsServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("failed to stop metrics server")
		}
		cancelShutdown()
	}

	repoManager.Close()
	log.Info("exiting")
}
