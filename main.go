package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"model-api/apiconfig"
	"model-api/chainclient"
	natsclient "model-api/internal/nats/client"
	natsserver "model-api/internal/nats/server"
	adminserver "model-api/internal/server/admin"
	"model-api/logging"
	"model-api/metrics"
	"model-api/registration"
	"model-api/scheduler"
	"model-api/secrets"
	"model-api/store"
	"model-api/submission"
	"model-api/wallet"
)

func main() {
	config, err := apiconfig.LoadDefaultConfigManager()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	if config.GetConfig().TestMode {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	secretStore, err := secrets.NewFileStore(config.GetSecretsConfig().Path, config.GetSecretsConfig().Passphrase)
	if err != nil {
		logging.Error("Failed to open secret store", logging.System, "err", err)
		return
	}

	db, err := store.Open(ctx, config.GetSqliteConfig().Path)
	if err != nil {
		logging.Error("Failed to open database", logging.System, "err", err)
		return
	}
	defer db.Close()

	chain, err := chainclient.NewClient(config.GetChainNodeConfig())
	if err != nil {
		logging.Error("Failed to create chain client", logging.Chain, "err", err)
		return
	}

	natssrv := natsserver.NewServer(config.GetNatsConfig())
	if err := natssrv.Start(); err != nil {
		logging.Error("Failed to start nats server", logging.System, "err", err)
		return
	}
	defer natssrv.Shutdown()

	nc, err := natsclient.ConnectToNats(config.GetNatsConfig().Host, config.GetNatsConfig().Port, "model-api")
	if err != nil {
		logging.Error("Failed to connect to nats", logging.System, "err", err)
		return
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		logging.Error("Failed to get JetStream context", logging.System, "err", err)
		return
	}

	treasuryCfg := config.GetTreasuryConfig()
	registrar := registration.NewService(
		chain,
		wallet.NewProvisioner(secretStore, config.GetChainNodeConfig().AddressPrefix),
		secretStore,
		db,
		registration.Treasury{
			SecretRef:       treasuryCfg.SecretRef,
			RegistrationFee: treasuryCfg.RegistrationFee,
			InitialFunding:  treasuryCfg.InitialFunding,
		},
	)

	schedulerCfg := config.GetSchedulerConfig()
	pipeline := submission.NewPipeline(
		db,
		secretStore,
		chain,
		submission.NewSolicitor(config.GetWebhookConfig().Timeout),
		schedulerCfg.DefaultGasPrice,
	)

	sched := scheduler.NewScheduler(db, js, pipeline, schedulerCfg.Interval, schedulerCfg.JobTimeout, schedulerCfg.Workers)
	if err := sched.Start(ctx); err != nil {
		logging.Error("Failed to start scheduler", logging.Scheduler, "err", err)
		return
	}

	metrics.NewCollector(db, chain, schedulerCfg.MetricsInterval).Start(ctx)

	srv := adminserver.NewServer(registrar, db, config)
	addr := ":" + strconv.Itoa(config.GetApiConfig().AdminServerPort)
	srv.Start(addr)
	logging.Info("Admin server started", logging.Server, "addr", addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logging.Info("Shutting down", logging.System, "signal", sig.String())

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Admin server shutdown failed", logging.Server, "err", err)
	}
}
