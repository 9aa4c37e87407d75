package cfg

import (
	"errors"
	"flag"
	"fmt"
	"slices"
)

// Queue backends selectable with -queue-backend.
const (
	QueueBackendAuto     = "auto"
	QueueBackendMemory   = "memory"
	QueueBackendPostgres = "postgres"
	QueueBackendRedis    = "redis"
)

var queueBackends = []string{QueueBackendAuto, QueueBackendMemory, QueueBackendPostgres, QueueBackendRedis}

// Config holds the erqueue server settings. It implements the common
// cfg.Registerable and cfg.Validatable interfaces.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	SQLitePath            string
	SlowQueryMillis       int
	QueueBackend          string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisPrefix           string
	StaffToken            string
	SlackWebhookURL       string
	PusherAppID           string
	PusherKey             string
	PusherSecret          string
	PusherCluster         string
	SSEKeepAliveSeconds   int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory stores)")
	fs.StringVar(&c.SQLitePath, "sqlite-path", "", "SQLite file for the triage tree when database-url is empty (empty = in-memory)")
	fs.IntVar(&c.SlowQueryMillis, "slow-query-ms", 250, "log successful queries slower than this many milliseconds")
	fs.StringVar(&c.QueueBackend, "queue-backend", QueueBackendAuto, "queue store: auto, memory, postgres or redis (auto = postgres when database-url is set)")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "Redis address for the redis queue backend")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "Redis password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "Redis database number")
	fs.StringVar(&c.RedisPrefix, "redis-prefix", "erqueue:queue:", "key prefix for queue data in Redis")
	fs.StringVar(&c.StaffToken, "staff-token", "", "bearer token for staff-only routes (empty = no auth)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for new patient notifications")
	fs.StringVar(&c.PusherAppID, "pusher-app-id", "", "Pusher Channels app id (empty = pusher disabled)")
	fs.StringVar(&c.PusherKey, "pusher-key", "", "Pusher Channels key")
	fs.StringVar(&c.PusherSecret, "pusher-secret", "", "Pusher Channels secret")
	fs.StringVar(&c.PusherCluster, "pusher-cluster", "eu", "Pusher Channels cluster")
	fs.IntVar(&c.SSEKeepAliveSeconds, "sse-keepalive-seconds", 15, "seconds between keepalive comments on /queue/events (1..300)")
}

// ResolvedQueueBackend maps auto to a concrete backend.
func (c *Config) ResolvedQueueBackend() string {
	if c.QueueBackend != QueueBackendAuto && c.QueueBackend != "" {
		return c.QueueBackend
	}
	if c.DatabaseURL != "" {
		return QueueBackendPostgres
	}
	return QueueBackendMemory
}

// PusherEnabled reports whether any pusher credential is set.
func (c *Config) PusherEnabled() bool {
	return c.PusherAppID != "" || c.PusherKey != "" || c.PusherSecret != ""
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}
	if c.SlowQueryMillis < 0 {
		errs = append(errs, fmt.Errorf("invalid SLOW_QUERY_MS %d (must be >= 0)", c.SlowQueryMillis))
	}
	if c.SSEKeepAliveSeconds <= 0 || c.SSEKeepAliveSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SSE_KEEPALIVE_SECONDS %d (must be 1..300)", c.SSEKeepAliveSeconds))
	}

	if c.DatabaseURL != "" && c.SQLitePath != "" {
		errs = append(errs, errors.New("DATABASE_URL and SQLITE_PATH are mutually exclusive"))
	}

	// Queue backend and the settings it needs
	if !slices.Contains(queueBackends, c.QueueBackend) {
		errs = append(errs, fmt.Errorf("invalid QUEUE_BACKEND %q (must be one of %v)", c.QueueBackend, queueBackends))
	}
	switch c.QueueBackend {
	case QueueBackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for QUEUE_BACKEND postgres"))
		}
	case QueueBackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for QUEUE_BACKEND redis"))
		}
	}
	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("invalid REDIS_DB %d (must be >= 0)", c.RedisDB))
	}

	// Pusher credentials are all or nothing
	if c.PusherEnabled() && (c.PusherAppID == "" || c.PusherKey == "" || c.PusherSecret == "") {
		errs = append(errs, errors.New("PUSHER_APP_ID, PUSHER_KEY and PUSHER_SECRET must be set together"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
