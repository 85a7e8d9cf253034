package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string

	StoreDriver  string
	StorePath    string
	SQLitePath   string
	SQLiteLogSQL bool

	ProfilePath string

	BLEEnabled   bool
	BLEAdapter   string
	BLELocalName string

	RTCEnabled bool
	RTCI2CBus  string

	MQTTEnabled  bool
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	// MQTTTopic may contain {device}, replaced by the profile's device name.
	MQTTTopic string

	AMQPURL   string
	AMQPQueue string

	// APITokens guard /api/v1. Empty allows every request.
	APITokens []string
}

func LoadFromEnv() (Config, error) {
	appEnv := env("APP_ENV", "dev")
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(env("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	storeDriver := strings.ToLower(env("STORE_DRIVER", StoreFile))
	switch storeDriver {
	case StoreFile, StoreSQLite:
	default:
		return Config{}, fmt.Errorf("invalid STORE_DRIVER %q (allowed: file, sqlite)", storeDriver)
	}

	cfg := Config{
		AppEnv:       appEnv,
		LogLevel:     level,
		HTTPAddr:     env("HTTP_ADDR", ":80"),
		StoreDriver:  storeDriver,
		StorePath:    env("STORE_PATH", "last_measurement.bin"),
		SQLitePath:   env("SQLITE_PATH", "helvetic.db"),
		ProfilePath:  env("PROFILE_PATH", "config.txt"),
		BLEAdapter:   env("BLE_ADAPTER", "hci0"),
		BLELocalName: env("BLE_LOCAL_NAME", "openScale"),
		RTCI2CBus:    env("RTC_I2C_BUS", ""),
		MQTTBroker:   env("MQTT_BROKER", "localhost"),
		MQTTClientID: env("MQTT_CLIENT_ID", "helvetic"),
		MQTTTopic:    env("MQTT_TOPIC", "scales/{device}/measurement"),
		AMQPURL:      env("AMQP_URL", ""),
		AMQPQueue:    env("AMQP_QUEUE", "measurements"),
		APITokens:    splitList(env("API_TOKENS", "")),
	}

	bools := []struct {
		name string
		def  string
		dst  *bool
	}{
		{"SQLITE_LOG_SQL", "false", &cfg.SQLiteLogSQL},
		{"BLE_ENABLED", "true", &cfg.BLEEnabled},
		{"RTC_ENABLED", "true", &cfg.RTCEnabled},
		{"MQTT_ENABLED", "false", &cfg.MQTTEnabled},
	}
	for _, b := range bools {
		s := env(b.name, b.def)
		v, err := strconv.ParseBool(s)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", b.name, s, err)
		}
		*b.dst = v
	}

	portStr := env("MQTT_PORT", "1883")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", portStr, err)
	}
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: out of range", portStr)
	}
	cfg.MQTTPort = port

	return cfg, nil
}

func env(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
