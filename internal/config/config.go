// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleetfusion/internal/routing"
)

// Config holds every tunable of the service and the headless simulator.
type Config struct {
	Port string

	OSRMBaseURL       string
	RouteTimeout      time.Duration
	RouteRequestDelay time.Duration
	FixGrace          time.Duration
	MoveInterval      time.Duration
	AutoExecute       bool

	RequireAuth      bool
	JWTSecret        string
	JWTExpiry        time.Duration
	OperatorUsername string
	OperatorPassword string

	MongoURI string
	MongoDB  string

	MQTTBroker      string
	MQTTTopicPrefix string
	MQTTClientID    string

	RateLimitMax    int
	RateLimitWindow time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the configuration. Unset variables take their defaults;
// malformed values are reported as errors.
func Load() (Config, error) {
	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		OSRMBaseURL:      getEnv("OSRM_BASE_URL", routing.DefaultBaseURL),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		OperatorUsername: getEnv("OPERATOR_USERNAME", "operator"),
		OperatorPassword: os.Getenv("OPERATOR_PASSWORD"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDB:          getEnv("MONGO_DB", "fleetfusion"),
		MQTTBroker:       os.Getenv("MQTT_BROKER"),
		MQTTTopicPrefix:  getEnv("MQTT_TOPIC_PREFIX", "fleetfusion"),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "fleetfusion-server"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.RouteTimeout, err = getDuration("ROUTE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RouteRequestDelay, err = getDuration("ROUTE_REQUEST_DELAY", 300*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.FixGrace, err = getDuration("FIX_GRACE", 1800*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.MoveInterval, err = getDuration("MOVE_INTERVAL", time.Second); err != nil {
		return Config{}, err
	}
	if cfg.JWTExpiry, err = getDuration("JWT_EXPIRY", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RequireAuth, err = getBool("REQUIRE_AUTH", false); err != nil {
		return Config{}, err
	}
	if cfg.AutoExecute, err = getBool("SIM_AUTO_EXECUTE", false); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitMax, err = getInt("RATE_LIMIT_MAX", 120); err != nil {
		return Config{}, err
	}
	windowSeconds, err := getInt("RATE_LIMIT_WINDOW_SECONDS", 60)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitWindow = time.Duration(windowSeconds) * time.Second

	if cfg.RequireAuth && cfg.OperatorPassword == "" {
		return Config{}, fmt.Errorf("OPERATOR_PASSWORD is required when REQUIRE_AUTH is set")
	}
	return cfg, nil
}

// SetupLogging applies LogLevel and LogFormat to the global logrus logger.
func (c Config) SetupLogging() {
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration accepts Go duration strings ("1.5s") or plain milliseconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
