package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "desalination_plant/docs"
	"desalination_plant/internal/config"
	"desalination_plant/internal/fieldio"
	"desalination_plant/internal/handlers"
	"desalination_plant/internal/logger"
	"desalination_plant/internal/publish"
	"desalination_plant/internal/repository"
	"desalination_plant/internal/repository/db"
	"desalination_plant/internal/server"
	"desalination_plant/internal/service"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

// @title        Desalination plant HMI API
// @version      1.0
// @BasePath     /
// @securityDefinitions.apikey  BearerAuth
// @in           header
// @name         Authorization
func main() {
	flags, err := config.ParseFlags(os.Args, os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	if flags.Help {
		return
	}

	cfg, err := config.Load(flags)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.LogLevel)
	cfg.Dump(log)
	if cfg.LogLevel != logger.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := openDB(cfg.DB.Path, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()
	repos := repository.NewRepository(conn)

	// field I/O: simulator or gateway-fed tag table
	tags := fieldio.NewTagTable()
	var sim *fieldio.Simulator
	var device fieldio.Device
	if cfg.Simulation.Enabled {
		sim = fieldio.NewSimulator(tags, &cfg.Plant)
		device = sim.Device()
	} else {
		device = fieldio.NewTagDevice(tags, cfg.Plant.FeedPumps.Units, cfg.Plant.HPPumps.Units)
	}

	fanout, bridge := openPublishers(cfg, log)
	services := service.NewService(repos, service.Deps{
		Plant:     &cfg.Plant,
		Device:    device,
		Publisher: fanout,
		Logger:    log,
		Scan: service.ScanOptions{
			PersistEvery:  cfg.Scan.PersistEvery,
			CommLossScans: cfg.Scan.CommLossScans,
			CommandQueue:  cfg.Scan.CommandQueue,
		},
		SigningKey: cfg.Auth.SigningKey,
	})
	if bridge != nil {
		wireMQTT(bridge, services, sim == nil, tags, log)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sim != nil {
		go sim.Run(ctx, cfg.Simulation.Tick)
		log.Infow("plant simulator started", "tick", cfg.Simulation.Tick.String())
	}
	runnerDone := make(chan struct{})
	go func() {
		services.Runner.Run(ctx, cfg.Scan.Period)
		close(runnerDone)
	}()

	h := handlers.NewHandler(services, log)
	if sim != nil {
		h.WithSimulator(sim)
	}
	srv := &server.Server{}
	if err := srv.Listen(cfg.Port, h.InitRoutes()); err != nil {
		log.Fatalw("error starting server", "err", err)
	}
	go func() {
		if err := srv.Serve(); err != nil {
			log.Fatalw("http server stopped", "err", err)
		}
	}()
	log.Infow("http server listening", "addr", srv.Addr())

	waitForShutdown(cancel, srv, runnerDone, fanout, log)
}

// openDB initializes the SQLite database.
func openDB(path string, log *logger.Logger) (*sql.DB, error) {
	if path == "" {
		log.Infow("db.path not set in config; using default file", "default", "plant.db")
		path = "plant.db"
	}
	return db.InitDB(path)
}

// openPublishers connects the enabled telemetry sinks. A sink that cannot
// be reached at startup is logged and skipped; the plant runs without it.
func openPublishers(cfg *config.Config, log *logger.Logger) (*publish.Fanout, *publish.MQTTBridge) {
	var pubs []service.Publisher
	var bridge *publish.MQTTBridge

	if cfg.MQTT.Enabled {
		client, err := publish.DialMQTT(cfg.MQTT, log)
		if err != nil {
			log.Errorw("mqtt disabled", "broker", cfg.MQTT.Broker, "err", err)
		} else {
			bridge = publish.NewMQTTBridge(client, cfg.MQTT, log)
			pubs = append(pubs, bridge)
		}
	}
	if cfg.Kafka.Enabled {
		exp, err := publish.NewKafkaExporter(cfg.Kafka, log)
		if err != nil {
			log.Errorw("kafka disabled", "err", err)
		} else {
			pubs = append(pubs, exp)
			log.Infow("kafka event export enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
		}
	}
	return publish.NewFanout(log, pubs...), bridge
}

func wireMQTT(bridge *publish.MQTTBridge, services *service.Service, feedTags bool, tags fieldio.Tags, log *logger.Logger) {
	if err := bridge.Subscribe(services.Plant); err != nil {
		log.Errorw("mqtt commands unavailable", "err", err)
	}
	if !feedTags {
		return
	}
	if err := bridge.SubscribeTags(tags); err != nil {
		log.Errorw("mqtt tag feed unavailable", "err", err)
	}
}

// waitForShutdown blocks until SIGINT/SIGTERM, then stops the scan (which
// saves the final state), the HTTP server and the publishers.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, runnerDone <-chan struct{},
	pubs service.Publisher, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	select {
	case <-runnerDone:
	case <-ctx.Done():
		log.Warnw("scan did not stop in time")
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
	if err := pubs.Close(); err != nil {
		log.Warnw("publisher close failed", "err", err)
	}
}
