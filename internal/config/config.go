package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	Driver          string
	DSN             string
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogSQL          bool

	// Latitude and Longitude select the location whose surrounding
	// road network is monitored.
	Latitude     float64
	Longitude    float64
	Zoom         int
	TileRadius   int
	ScanInterval time.Duration

	// FeedBaseURL and TileBaseURL override the upstream endpoints.
	// Empty selects production.
	FeedBaseURL string
	TileBaseURL string

	// MQTTBroker enables Home Assistant publishing when non-empty.
	MQTTBroker          string
	MQTTPort            int
	MQTTClientID        string
	MQTTTopicPrefix     string
	MQTTDiscoveryPrefix string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	driver := strings.TrimSpace(os.Getenv("DB_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	path := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if path == "" {
		path = "dev/sqlite/vintervej.db"
	}

	maxOpenConnsStr := strings.TrimSpace(os.Getenv("DB_MAX_OPEN_CONNS"))
	if maxOpenConnsStr == "" {
		maxOpenConnsStr = "1"
	}
	maxOpenConns, err := strconv.Atoi(maxOpenConnsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_MAX_OPEN_CONNS %q: %w", maxOpenConnsStr, err)
	}

	maxIdleConnsStr := strings.TrimSpace(os.Getenv("DB_MAX_IDLE_CONNS"))
	if maxIdleConnsStr == "" {
		maxIdleConnsStr = "1"
	}
	maxIdleConns, err := strconv.Atoi(maxIdleConnsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_MAX_IDLE_CONNS %q: %w", maxIdleConnsStr, err)
	}

	connMaxLifetimeStr := strings.TrimSpace(os.Getenv("DB_CONN_MAX_LIFETIME"))
	if connMaxLifetimeStr == "" {
		connMaxLifetimeStr = "0s"
	}
	connMaxLifetime, err := time.ParseDuration(connMaxLifetimeStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME %q: %w", connMaxLifetimeStr, err)
	}

	logSQLStr := strings.TrimSpace(os.Getenv("DB_LOG_SQL"))
	if logSQLStr == "" {
		logSQLStr = "false"
	}
	logSQL, err := strconv.ParseBool(logSQLStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_LOG_SQL %q: %w", logSQLStr, err)
	}

	latitudeStr := strings.TrimSpace(os.Getenv("LATITUDE"))
	if latitudeStr == "" {
		latitudeStr = "55.6761"
	}
	latitude, err := strconv.ParseFloat(latitudeStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LATITUDE %q: %w", latitudeStr, err)
	}
	if latitude < -90 || latitude > 90 {
		return Config{}, fmt.Errorf("invalid LATITUDE %v (allowed: -90 to 90)", latitude)
	}

	longitudeStr := strings.TrimSpace(os.Getenv("LONGITUDE"))
	if longitudeStr == "" {
		longitudeStr = "12.5683"
	}
	longitude, err := strconv.ParseFloat(longitudeStr, 64)
	if err != nil {
		return Config{}, fmt.Errorf("invalid LONGITUDE %q: %w", longitudeStr, err)
	}
	if longitude < -180 || longitude > 180 {
		return Config{}, fmt.Errorf("invalid LONGITUDE %v (allowed: -180 to 180)", longitude)
	}

	zoomStr := strings.TrimSpace(os.Getenv("ZOOM"))
	if zoomStr == "" {
		zoomStr = "12"
	}
	zoom, err := strconv.Atoi(zoomStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid ZOOM %q: %w", zoomStr, err)
	}
	if zoom < 0 || zoom > 16 {
		return Config{}, fmt.Errorf("invalid ZOOM %d (allowed: 0-16)", zoom)
	}

	tileRadiusStr := strings.TrimSpace(os.Getenv("TILE_RADIUS"))
	if tileRadiusStr == "" {
		tileRadiusStr = "1"
	}
	tileRadius, err := strconv.Atoi(tileRadiusStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid TILE_RADIUS %q: %w", tileRadiusStr, err)
	}
	if tileRadius < 0 || tileRadius > 4 {
		return Config{}, fmt.Errorf("invalid TILE_RADIUS %d (allowed: 0-4)", tileRadius)
	}

	scanIntervalStr := strings.TrimSpace(os.Getenv("SCAN_INTERVAL"))
	if scanIntervalStr == "" {
		scanIntervalStr = "30m"
	}
	scanInterval, err := time.ParseDuration(scanIntervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SCAN_INTERVAL %q: %w", scanIntervalStr, err)
	}
	if scanInterval <= 0 {
		return Config{}, fmt.Errorf("invalid SCAN_INTERVAL %v (must be positive)", scanInterval)
	}

	feedBaseURL := strings.TrimSpace(os.Getenv("FEED_BASE_URL"))
	tileBaseURL := strings.TrimSpace(os.Getenv("TILE_BASE_URL"))

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}
	if mqttPort < 1 || mqttPort > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %d (allowed: 1-65535)", mqttPort)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "vintervej"
	}
	mqttTopicPrefix := strings.TrimSpace(os.Getenv("MQTT_TOPIC_PREFIX"))
	if mqttTopicPrefix == "" {
		mqttTopicPrefix = "vintervej"
	}
	mqttDiscoveryPrefix := strings.TrimSpace(os.Getenv("MQTT_DISCOVERY_PREFIX"))
	if mqttDiscoveryPrefix == "" {
		mqttDiscoveryPrefix = "homeassistant"
	}

	return Config{
		AppEnv:              appEnv,
		LogLevel:            level,
		HTTPAddr:            httpAddr,
		Driver:              driver,
		DSN:                 dsn,
		Path:                path,
		MaxOpenConns:        maxOpenConns,
		MaxIdleConns:        maxIdleConns,
		ConnMaxLifetime:     connMaxLifetime,
		LogSQL:              logSQL,
		Latitude:            latitude,
		Longitude:           longitude,
		Zoom:                zoom,
		TileRadius:          tileRadius,
		ScanInterval:        scanInterval,
		FeedBaseURL:         feedBaseURL,
		TileBaseURL:         tileBaseURL,
		MQTTBroker:          mqttBroker,
		MQTTPort:            mqttPort,
		MQTTClientID:        mqttClientID,
		MQTTTopicPrefix:     mqttTopicPrefix,
		MQTTDiscoveryPrefix: mqttDiscoveryPrefix,
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
