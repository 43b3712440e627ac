package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"signal-engine/internal/api"
	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/matchq"
	"signal-engine/pkg/config"
	"signal-engine/pkg/db"
	"signal-engine/pkg/instance"
	"signal-engine/pkg/logger"
	"signal-engine/pkg/pricescale"
	"signal-engine/pkg/signalstore"
	"signal-engine/pkg/venue/bridgews"
)

const version = "1.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}

	logger.Setup(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		Compress:   true,
	})
	log := logger.Component("main")

	tag := instance.Tag()
	log.Infof("signal-engine %s starting (instance %s, port %s)", version, tag, cfg.Port)

	digits, err := config.LoadInstruments(cfg.InstrumentSpecPath)
	if err != nil {
		log.Fatalf("load instrument specs: %v", err)
	}
	norm := pricescale.NewNormalizer(digits, cfg.DefaultDigits)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	store, err := signalstore.Open(cfg.SignalStorePath)
	if err != nil {
		log.Fatalf("open signal store: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()

	gateway := bridgews.New(bridgews.Config{
		RESTURL:   cfg.VenueRESTURL,
		WSURL:     cfg.VenueWSURL,
		APIKey:    cfg.VenueAPIKey,
		APISecret: cfg.VenueAPISecret,
	}, norm)
	gateway.Start(ctx)
	for _, sym := range cfg.Symbols {
		if _, err := gateway.SubscribeSpot(sym); err != nil {
			log.WithError(err).Warnf("subscribe %s quotes", sym)
		}
	}

	queue := matchq.New(database)

	eng := engine.New(engine.Config{
		PendingWatchTimeout: cfg.PendingWatchTimeout,
		SweepInterval:       cfg.SweepInterval,
		PriceRetryDelay:     cfg.PriceRetryDelay,
		AmendConfirmTimeout: cfg.AmendConfirmTimeout,
		AmendAssumeSuccess:  cfg.AmendAssumeSuccess,
		CloseTolerance:      cfg.CloseTolerance,
		InstanceTag:         tag,
	}, gateway, database, bus, queue, store)
	eng.Start(ctx)

	server := api.NewServer(eng, database, queue, api.SystemMeta{
		Venue:       cfg.VenueRESTURL,
		Symbols:     cfg.Symbols,
		InstanceTag: tag,
		Version:     version,
	}, cfg.JWTSecret)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(":" + cfg.Port)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.WithError(err).Error("http server stopped")
		stop()
	}

	// Let in-flight venue submissions complete before tearing down
	// storage; aborting mid-wire would leave unknown venue state.
	done := make(chan struct{})
	go func() {
		eng.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Warn("in-flight submissions did not drain within 30s")
	}

	// Returning runs the deferred closes: the signal store must flush
	// its processed flags or restarts lose the duplicate guard.
	log.Info("signal-engine stopped")
}
