package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"vintervej/internal/config"
	"vintervej/internal/coordinator"
	"vintervej/internal/db"
	"vintervej/internal/httpapi"
	"vintervej/internal/migrate"
	"vintervej/internal/modules/winter"
	"vintervej/internal/modules/winter/repository"
	"vintervej/internal/modules/winter/service"
	"vintervej/internal/mqtt"
	"vintervej/internal/vejdirektoratet"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sqlitePath", cfg.Path,
		"latitude", cfg.Latitude,
		"longitude", cfg.Longitude,
		"zoom", cfg.Zoom,
		"tileRadius", cfg.TileRadius,
		"scanInterval", cfg.ScanInterval,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
	)

	dbConn, err := db.Open(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		closeErr := db.Close(dbConn)
		if closeErr != nil {
			slog.Error("db close", "error", closeErr)
		}
	}()

	if err := migrate.Run(dbConn); err != nil {
		return err
	}

	var ok int
	err = dbConn.QueryRow(`SELECT 1`).Scan(&ok)
	if err != nil {
		return err
	}
	if ok != 1 {
		return errors.New("database connection failed")
	}
	slog.Info("database connection successful")

	client := vejdirektoratet.NewClient(cfg.FeedBaseURL, cfg.TileBaseURL, slog.Default())
	winterRepository := repository.NewRepository(dbConn)

	// MQTT is optional. Without a broker the service still polls and serves
	// the HTTP API; only the Home Assistant sensors are skipped.
	var publisher *mqtt.Publisher
	if cfg.MQTTBroker != "" {
		publisher = mqtt.NewPublisher(cfg, slog.Default())
	}

	var svc *service.Service
	if publisher != nil {
		svc = service.NewService(winterRepository, publisher, slog.Default())
	} else {
		svc = service.NewService(winterRepository, nil, slog.Default())
	}

	coord := coordinator.New(client, svc, coordinator.Options{
		Latitude:   cfg.Latitude,
		Longitude:  cfg.Longitude,
		Zoom:       cfg.Zoom,
		TileRadius: cfg.TileRadius,
		Interval:   cfg.ScanInterval,
	}, slog.Default())

	mux := httpapi.NewMux(dbConn)
	winter.RegisterFeature(mux, dbConn, coord)

	if publisher != nil {
		// Use a short timeout for initial MQTT connect so we don't block startup
		// when the broker is down; the paho client keeps retrying in the background.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err = publisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
		}
	}

	go coord.Run(ctx)

	srv := httpapi.NewServer(cfg, mux, slog.Default())

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

	if publisher != nil {
		slog.Info("mqtt disconnecting")
		publisher.Disconnect()
	}

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
