package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tao-j/helvetic/internal/ble"
	"github.com/tao-j/helvetic/internal/clock"
	"github.com/tao-j/helvetic/internal/config"
	"github.com/tao-j/helvetic/internal/db"
	"github.com/tao-j/helvetic/internal/db/migrate"
	"github.com/tao-j/helvetic/internal/httpapi"
	"github.com/tao-j/helvetic/internal/measurement"
	"github.com/tao-j/helvetic/internal/modules/scale"
	"github.com/tao-j/helvetic/internal/modules/scale/service"
	"github.com/tao-j/helvetic/internal/modules/scale/views"
	"github.com/tao-j/helvetic/internal/publish"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"storeDriver", cfg.StoreDriver,
		"storePath", cfg.StorePath,
		"sqlitePath", cfg.SQLitePath,
		"profilePath", cfg.ProfilePath,
		"bleEnabled", cfg.BLEEnabled,
		"bleAdapter", cfg.BLEAdapter,
		"rtcEnabled", cfg.RTCEnabled,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"amqpQueue", cfg.AMQPQueue,
		"apiTokens", len(cfg.APITokens),
	)

	profile, err := config.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}
	slog.Info("profile loaded",
		"device", profile.DeviceName,
		"user", profile.User.Name,
		"gender", profile.User.Gender.String(),
		"age", profile.User.Age,
		"height_mm", profile.User.Height,
	)

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	initial, err := store.Load(ctx)
	if err != nil {
		slog.Error("load stored measurement failed, starting empty", "error", err)
		initial = measurement.Record{}
	}
	current := measurement.NewCurrent(initial)
	slog.Info("measurement loaded", "weight_kg", initial.Weight, "timestamp", initial.Timestamp)

	clk, closeClock := openClock(cfg)
	defer closeClock()

	peripheral, stopBLE := startBLE(cfg, initial)
	defer stopBLE()

	fanout := ble.NewFanOut(peripheral, store, slog.Default())
	if err := fanout.Prime(initial); err != nil {
		slog.Warn("ble: seed advertisement failed", "error", err)
	}

	publisher := startPublishers(ctx, cfg, profile.DeviceName)
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Error("publisher close", "error", err)
		}
	}()

	if err := views.LoadTemplates(); err != nil {
		return err
	}

	var pinger httpapi.Pinger
	if p, ok := store.(httpapi.Pinger); ok {
		pinger = p
	}
	mux := httpapi.NewMux(pinger)
	svc := service.NewService(current, fanout, publisher, clk, profile)
	scale.RegisterFeature(mux, svc, httpapi.NewAuthenticator(cfg.APITokens))

	srv := httpapi.NewServer(cfg.HTTPAddr, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

func openStore(ctx context.Context, cfg config.Config) (measurement.Store, func(), error) {
	if cfg.StoreDriver != config.StoreSQLite {
		slog.Info("using file store", "path", cfg.StorePath)
		return measurement.NewFileStore(cfg.StorePath), func() {}, nil
	}

	conn, err := db.Open(db.Options{
		Path:   cfg.SQLitePath,
		LogSQL: cfg.SQLiteLogSQL,
		Logger: slog.Default(),
	})
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := db.Close(conn); err != nil {
			slog.Error("db close", "error", err)
		}
	}

	applied, err := migrate.Run(ctx, conn)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	slog.Info("using sqlite store", "path", cfg.SQLitePath, "migrations_applied", applied)
	return measurement.NewSQLStore(conn), closeFn, nil
}

func openClock(cfg config.Config) (*clock.Clock, func()) {
	if !cfg.RTCEnabled {
		return clock.New(nil, slog.Default()), func() {}
	}

	rtc, closer, err := clock.OpenBM8563(cfg.RTCI2CBus)
	if err != nil {
		slog.Warn("rtc unavailable, using system clock", "bus", cfg.RTCI2CBus, "error", err)
		return clock.New(nil, slog.Default()), func() {}
	}
	if running, err := rtc.IsRunning(); err == nil && !running {
		slog.Warn("rtc oscillator stopped, using system clock until it is set")
	}
	return clock.New(rtc, slog.Default()), closeQuietly(closer, "rtc bus")
}

func startBLE(cfg config.Config, initial measurement.Record) (ble.Peripheral, func()) {
	if !cfg.BLEEnabled {
		return ble.Discard, func() {}
	}

	adapter := ble.NewAdapter(ble.AdapterOptions{
		Adapter:   cfg.BLEAdapter,
		LocalName: cfg.BLELocalName,
	}, slog.Default())
	adapter.SetListener(ble.NewConnectionListener(adapter, slog.Default()))

	if err := adapter.Start(ble.Encode(initial)); err != nil {
		slog.Warn("ble unavailable, continuing without it", "error", err)
		return ble.Discard, func() {}
	}
	return adapter, func() {
		if err := adapter.Stop(); err != nil {
			slog.Warn("ble stop", "error", err)
		}
	}
}

func startPublishers(ctx context.Context, cfg config.Config, device string) *publish.Multi {
	var pubs []publish.Publisher

	if cfg.MQTTEnabled {
		m, err := publish.NewMQTT(publish.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			Port:     cfg.MQTTPort,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
			Device:   device,
		}, slog.Default())
		if err != nil {
			slog.Warn("mqtt setup failed", "error", err)
		} else {
			// Short initial wait so a missing broker does not block startup;
			// paho keeps retrying in the background.
			connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := m.Connect(connectCtx); err != nil {
				slog.Warn("mqtt connection failed (continuing, will retry)", "error", err)
			}
			cancel()
			pubs = append(pubs, m)
		}
	}

	if cfg.AMQPURL != "" {
		a := publish.NewAMQP(cfg.AMQPURL, cfg.AMQPQueue, slog.Default())
		go a.Run(ctx)
		pubs = append(pubs, a)
	}

	return publish.NewMulti(slog.Default(), pubs...)
}

func closeQuietly(c io.Closer, what string) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("close failed", "what", what, "error", err)
		}
	}
}
