package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/entrepeneur4lyf/paycopilot/internal/alerts"
	"github.com/entrepeneur4lyf/paycopilot/internal/config"
	"github.com/entrepeneur4lyf/paycopilot/internal/events"
	"github.com/entrepeneur4lyf/paycopilot/internal/executor"
	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
	"github.com/entrepeneur4lyf/paycopilot/internal/llm/providers"
	"github.com/entrepeneur4lyf/paycopilot/internal/memory"
	"github.com/entrepeneur4lyf/paycopilot/internal/metrics"
	"github.com/entrepeneur4lyf/paycopilot/internal/notifications"
	"github.com/entrepeneur4lyf/paycopilot/internal/pipeline"
	"github.com/entrepeneur4lyf/paycopilot/internal/schema"
	"github.com/entrepeneur4lyf/paycopilot/internal/storage"
	"github.com/entrepeneur4lyf/paycopilot/internal/transactions"
)

// stores holds the chat database and everything built on it
type stores struct {
	db     *sql.DB
	chats  *storage.BestEffort
	alerts *storage.AlertStore
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	dialect := storage.Dialect(cfg.Chats.Driver)
	db, err := storage.Open(ctx, dialect, cfg.Chats.URL)
	if err != nil {
		return nil, err
	}
	turns, err := storage.NewSQLStore(db, dialect, cfg.Chats.Table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &stores{
		db:     db,
		chats:  storage.NewBestEffort(turns),
		alerts: storage.NewAlertStore(db, dialect),
	}, nil
}

func (s *stores) Close() error {
	return s.db.Close()
}

// app is the fully wired service shared by serve, ask, sql and mcp
type app struct {
	cfg    *config.Config
	schema *schema.Schema

	db     *sql.DB
	exec   *executor.Executor
	stores *stores
	redis  *redis.Client
	memory *memory.Memory

	agents   *llm.Agents
	pipeline *pipeline.Orchestrator
	reports  *transactions.Service
	notifier *notifications.Manager
	alerts   *alerts.Processor

	stageEvents *events.Broker[pipeline.StageEvent]
	alertEvents *events.Broker[alerts.Event]
	metrics     *metrics.Provider

	logger *log.Logger
}

const metricsFlushTimeout = 5 * time.Second

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a = &app{cfg: cfg, logger: log.Default().WithPrefix("app")}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.schema, err = schema.Load(cfg.Schema.File); err != nil {
		return nil, err
	}

	handler, err := providers.BuildApiHandler(llm.ApiHandlerOptions{
		Provider:  llm.ProviderType(cfg.LLM.Provider),
		APIKey:    cfg.LLM.APIKey,
		ModelID:   cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		AWSRegion: cfg.LLM.AWSRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build model client: %w", err)
	}
	a.agents = llm.NewAgents(handler, a.schema,
		llm.WithHistoryProcessor(memory.TruncateRecent),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
	)

	if a.metrics, err = metrics.NewProvider(metrics.Exporter(cfg.Metrics.Exporter),
		metrics.WithInterval(cfg.Metrics.Interval),
		metrics.WithServiceVersion(version),
	); err != nil {
		return nil, err
	}
	a.metrics.Install()
	rec := a.metrics.Recorder()

	if a.db, err = executor.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns); err != nil {
		return nil, err
	}
	a.exec = executor.New(a.db,
		executor.WithTimeout(cfg.Database.Timeout),
		executor.WithMaxRows(cfg.Database.MaxRows),
		executor.WithSchema(a.schema),
		executor.WithMetrics(rec),
	)

	if a.stores, err = openStores(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to open chat database: %w", err)
	}

	driver, err := a.memoryDriver(ctx)
	if err != nil {
		return nil, err
	}
	a.memory = memory.New(driver, a.stores.chats)

	a.stageEvents = events.NewBroker[pipeline.StageEvent]()
	a.alertEvents = events.NewBroker[alerts.Event]()

	a.pipeline = pipeline.New(a.agents, a.exec, a.memory, a.stores.chats,
		pipeline.WithEvents(a.stageEvents),
		pipeline.WithMetrics(rec),
		pipeline.WithLLMTimeout(cfg.LLM.Timeout),
		pipeline.WithRequestTimeout(cfg.Server.RequestTimeout),
		pipeline.WithSchema(a.schema),
	)
	a.reports = transactions.NewService(a.exec)

	var sender alerts.Sender
	if a.notifier, err = newNotifier(cfg); err != nil {
		return nil, err
	}
	if a.notifier != nil {
		sender = a.notifier
	}
	a.alerts = alerts.NewProcessor(a.reports, a.agents, a.stores.alerts, sender,
		alerts.WithEvents(a.alertEvents),
		alerts.WithLLMTimeout(cfg.LLM.Timeout),
	)

	a.logger.Debug("service wired",
		"provider", cfg.LLM.Provider,
		"model", a.agents.Model(),
		"chats", cfg.Chats.Driver,
		"memory", cfg.Memory.Driver,
		"metrics", cfg.Metrics.Exporter,
	)
	return a, nil
}

func (a *app) memoryDriver(ctx context.Context) (memory.Driver, error) {
	if memory.DriverType(a.cfg.Memory.Driver) != memory.DriverRedis {
		return memory.NewDriver(memory.DriverType(a.cfg.Memory.Driver))
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Memory.RedisAddr,
		Password: a.cfg.Memory.RedisPassword,
		DB:       a.cfg.Memory.RedisDB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Memory.RedisAddr, err)
	}
	return memory.NewDriver(memory.DriverRedis,
		memory.WithRedisClient(a.redis),
		memory.WithTTL(a.cfg.Memory.TTL),
	)
}

// newNotifier builds the alert channels that are configured. It returns nil
// when there are none.
func newNotifier(cfg *config.Config) (*notifications.Manager, error) {
	var channels []notifications.Notifier
	if cfg.Notify.SlackWebhookURL != "" {
		channels = append(channels, notifications.NewSlackNotifier(cfg.Notify.SlackWebhookURL, nil))
	}
	if e := cfg.Notify.Email; e.Host != "" {
		email, err := notifications.NewEmailNotifier(e.Host, e.Port, e.Username, e.Password, e.From, e.To)
		if err != nil {
			return nil, fmt.Errorf("invalid email notification settings: %w", err)
		}
		channels = append(channels, email)
	}
	if len(channels) == 0 {
		return nil, nil
	}
	return notifications.NewManager(channels), nil
}

// Close releases every connection the app opened
func (a *app) Close() error {
	var errs []error
	if a.stageEvents != nil {
		a.stageEvents.Shutdown()
	}
	if a.alertEvents != nil {
		a.alertEvents.Shutdown()
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.stores != nil {
		errs = append(errs, a.stores.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsFlushTimeout)
		defer cancel()
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
