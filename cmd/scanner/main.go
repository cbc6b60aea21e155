package main

import (
	"marketscan/config"
	"marketscan/internal/publish"
	"marketscan/internal/scanner"
	"marketscan/internal/server"
	"marketscan/internal/stream"
	"marketscan/logger"
	"marketscan/pkg/alpaca"
	"marketscan/pkg/storage/postgres"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	// stream side: registry + health monitor
	registry := stream.NewRegistry(log)
	monitor := stream.NewHealthMonitor(registry, cfg.Stream.Health)

	// optional result sinks
	var sinks []scanner.ResultSink

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.InitializeAndMigrateScanRecord(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			log.Fatal("failed to connect to DB", zap.Error(err))
		}
		defer pgClient.Close()
		sinks = append(sinks, pgClient)
	}

	if cfg.NATS.Enabled {
		pub, err := publish.NewNATSPublisher(cfg.NATS, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	// snapshot fetcher; without credentials the scanner refuses to start and
	// the stream side still works
	var fetcher scanner.Fetcher
	apiKey, apiSecret := cfg.Alpaca.Credentials(cfg.Log.Environment)
	restClient, err := alpaca.NewRESTClient(cfg.Alpaca.DataBaseURL, apiKey, apiSecret, cfg.Alpaca.Timeout)
	if err != nil {
		log.Warn("snapshot fetcher unavailable", zap.Error(err))
	} else {
		fetcher = restClient
	}

	sc := scanner.New(fetcher, log, sinks...)

	// control surface
	srv := server.New(cfg, log, registry, monitor, sc)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal("control server failed", zap.Error(err))
	}
}
