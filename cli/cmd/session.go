package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"

	"github.com/percy/percy-go/cli/config"
	"github.com/percy/percy-go/client"
	"github.com/percy/percy-go/environment"
	"github.com/percy/percy-go/log"
	"github.com/percy/percy-go/metrics"
	"github.com/percy/percy-go/types"
)

// newEnvironment resolves the build context. Tests replace it.
var newEnvironment = func() *environment.Environment {
	return environment.FromOS()
}

// session is the per-invocation state shared by API commands.
type session struct {
	id      string
	started time.Time
	config  *config.Config
	env     *environment.Environment
	logger  *log.Logger
	metrics *metrics.Collector
	client  *client.Client
}

// loadDotenv loads .env files from the working directory unless disabled.
func loadDotenv() error {
	if os.Getenv("PERCY_DISABLE_DOTENV") == "true" {
		return nil
	}
	return environment.LoadDotenv(".", os.Getenv("APP_ENV"))
}

// loadConfig reads --config. The default path is optional; an explicit
// path must exist.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if c.IsSet("config") {
		return config.Load(path)
	}
	return config.LoadOptional(path)
}

// openSession loads dotenv and config, resolves the environment and
// builds an API client. mutate adjusts the client config before it is
// validated.
func openSession(c *cli.Context, mutate ...func(*client.Config)) (*session, error) {
	if err := loadDotenv(); err != nil {
		return nil, configError("dotenv: %v", err)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, configError("%v", err)
	}

	level, err := zapcore.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, configError("invalid --log-level %q", c.String("log-level"))
	}

	env := newEnvironment()
	s := &session{
		id:      uuid.NewString(),
		started: time.Now(),
		config:  cfg,
		env:     env,
	}
	s.logger = log.NewLoggerWriter(log.Session{ID: s.id, CI: env.CI()}, c.App.ErrWriter, level)
	s.metrics = metrics.NewCollector(s.id, env.CI())

	ccfg := client.Config{
		Token:          firstNonEmpty(c.String("token"), cfg.Token),
		APIURL:         firstNonEmpty(c.String("api-url"), cfg.APIURL),
		Environment:    env,
		ClientInfo:     c.App.Name + "/" + types.Version,
		Timeout:        cfg.Network.Timeout.Duration,
		RetryInterval:  cfg.Network.RetryInterval.Duration,
		Concurrency:    cfg.Upload.Concurrency,
		MaxConnections: cfg.Network.MaxConnections,
		Logger:         s.logger,
		Metrics:        s.metrics,
	}
	if cfg.Network.Retries != nil {
		ccfg.MaxAttempts = *cfg.Network.Retries + 1
	}
	for _, fn := range mutate {
		fn(&ccfg)
	}

	s.client, err = client.New(ccfg)
	if errors.Is(err, client.ErrMissingToken) {
		return nil, configError("missing Percy token: set PERCY_TOKEN, --token or token in %s", c.String("config"))
	}
	if err != nil {
		return nil, configError("%v", err)
	}
	s.env = s.client.Environment()
	return s, nil
}

// project resolves the project slug: flag, then config, then PERCY_PROJECT.
func (s *session) project(c *cli.Context) string {
	return firstNonEmpty(c.String("project"), s.config.Project, s.env.Project())
}

// Close releases the client and flushes the logger.
func (s *session) Close() {
	_ = s.client.Close()
	_ = s.logger.Sync()
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	parent := c.Context
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
