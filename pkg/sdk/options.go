package credits

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type groupCap struct {
	group string
	cap   int64
}

type clientConfig struct {
	driver   string // "valkey", "redis" or "sqlite"
	addrs    []string
	password string
	path     string

	keyPrefix    string
	taskInterval time.Duration
	stopTimeout  time.Duration
	stopper      Stopper
	hooks        []func(TickReport)

	userCap           int64
	userGrantValue    int64
	userGrantInterval time.Duration
	groupCaps         []groupCap

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithValkey configures the client to connect to a Valkey instance.
func WithValkey(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "valkey"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithRedis configures the client to connect to a Redis instance.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithSQLite stores credit records in an SQLite file. ":memory:" keeps them in process.
func WithSQLite(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "sqlite"
		c.path = path
	})
}

// WithKeyPrefix sets the storage key prefix. Default: "credits:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.keyPrefix = prefix
	})
}

// WithTaskInterval sets the reconciliation period used by Start. Default: 60s.
func WithTaskInterval(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.taskInterval = d
	})
}

// WithStopTimeout bounds each asynchronous lease stop. Default: 30s.
func WithStopTimeout(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.stopTimeout = d
	})
}

// WithStopper sets the callback that stops leases on insufficient credits.
// Without it stops fail and are retried on the next tick.
func WithStopper(s Stopper) Option {
	return optionFunc(func(c *clientConfig) {
		c.stopper = s
	})
}

// WithDefaults sets the cap and grant applied to every user.
// Defaults: cap 100, 10 credits every 10 minutes.
func WithDefaults(userCap, grantValue int64, grantInterval time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.userCap = userCap
		c.userGrantValue = grantValue
		c.userGrantInterval = grantInterval
	})
}

// WithGroupCap overrides the cap for members of group. The first matching group wins.
func WithGroupCap(group string, userCap int64) Option {
	return optionFunc(func(c *clientConfig) {
		c.groupCaps = append(c.groupCaps, groupCap{group: group, cap: userCap})
	})
}

// WithTickHook registers a callback run after every tick.
func WithTickHook(fn func(TickReport)) Option {
	return optionFunc(func(c *clientConfig) {
		c.hooks = append(c.hooks, fn)
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
