package cli

import (
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/molecule-search/internal/application/chat"
	"github.com/turtacn/molecule-search/internal/application/document"
	appmol "github.com/turtacn/molecule-search/internal/application/molecule"
	appnb "github.com/turtacn/molecule-search/internal/application/notebook"
	"github.com/turtacn/molecule-search/internal/config"
	"github.com/turtacn/molecule-search/internal/domain/molecule"
	"github.com/turtacn/molecule-search/internal/domain/notebook"
	"github.com/turtacn/molecule-search/internal/infrastructure/database/postgres"
	"github.com/turtacn/molecule-search/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/molecule-search/internal/infrastructure/database/redis"
	"github.com/turtacn/molecule-search/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/molecule-search/internal/infrastructure/storage"
	"github.com/turtacn/molecule-search/internal/infrastructure/storage/gcs"
	"github.com/turtacn/molecule-search/internal/infrastructure/storage/minio"
	"github.com/turtacn/molecule-search/internal/infrastructure/vertex"
	httpserver "github.com/turtacn/molecule-search/internal/interfaces/http"
	"github.com/turtacn/molecule-search/internal/interfaces/http/handlers"
	"github.com/turtacn/molecule-search/internal/interfaces/http/middleware"
	"github.com/turtacn/molecule-search/pkg/errors"
)

const (
	notebookListTTL = time.Minute
	notebookItemTTL = 10 * time.Minute
	moleculeTTL     = 5 * time.Minute
	tagLockTTL      = time.Minute
	dbPoolInterval  = 15 * time.Second
)

// App holds the infrastructure and services of one server process. Optional
// components are nil when unconfigured or unreachable outside production.
type App struct {
	Config    *config.Config
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	DB        *postgres.Connection
	Redis     *redis.Client
	Cache     redis.Cache
	Store     storage.ObjectStore
	Publisher kafka.Publisher
	Vertex    *vertex.Client

	Chat      chat.Service
	Notebooks appnb.Service
	Molecules appmol.Service
	Documents document.Service

	origins *middleware.Origins
	closers []func() error
}

// NewApp connects every configured dependency. A database failure is fatal
// in production and degrades to chat-only mode elsewhere.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	a := &App{
		Config:  cfg,
		Logger:  log,
		origins: middleware.NewOrigins(cfg.Server.AllowedOrigins, true),
	}

	if err := a.initMetrics(); err != nil {
		return nil, err
	}
	if err := a.initDatabase(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.initRedis()
	if err := a.initStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initKafka(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initVertex(); err != nil {
		a.Close()
		return nil, err
	}
	a.initServices()
	return a, nil
}

func (a *App) initMetrics() error {
	if !a.Config.Metrics.Enabled {
		a.Collector = prometheus.NewNoopCollector()
		a.Metrics = prometheus.NewNoopMetrics()
		return nil
	}
	c, err := prometheus.NewMetricsCollector(prometheus.CollectorConfigFrom(a.Config.Metrics), a.Logger)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create metrics collector")
	}
	a.Collector = c
	a.Metrics = prometheus.NewAppMetrics(c)
	return nil
}

func (a *App) initDatabase(ctx context.Context) error {
	conn, err := postgres.NewConnection(postgres.ConfigFromDatabase(a.Config.Database), a.Logger.Named("postgres"))
	if err == nil {
		err = conn.Init(ctx)
		if err != nil {
			_ = conn.Close()
		}
	}
	if err != nil {
		if a.Config.IsProduction() {
			return err
		}
		a.Logger.Warn("database unavailable, serving chat only", logging.Err(err))
		return nil
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)

	if a.Config.Database.AutoMigrate {
		mg, err := postgres.NewMigratorForDSN(a.Config.Database.DSN, a.Logger.Named("migrate"))
		if err != nil {
			return err
		}
		defer mg.Close()
		if err := mg.Up(); err != nil {
			return err
		}
	}
	return nil
}

// initRedis never fails the process; the cache is an optimisation.
func (a *App) initRedis() {
	if !a.Config.Redis.Enabled {
		return
	}
	rc, err := redis.NewClient(a.Config.Redis, a.Logger.Named("redis"))
	if err != nil {
		a.Logger.Warn("redis unavailable, caching disabled", logging.Err(err))
		return
	}
	a.Redis = rc
	a.Cache = redis.NewCache(rc, a.Logger)
	a.closers = append(a.closers, rc.Close)
}

func (a *App) initStorage(ctx context.Context) error {
	if a.Config.Storage.Bucket == "" {
		a.Logger.Info("no storage bucket configured, document browser disabled")
		return nil
	}
	store, err := OpenStore(ctx, a.Config.Storage, a.Logger)
	if err != nil {
		return err
	}
	a.Store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	return nil
}

// OpenStore builds the object store selected by cfg.Backend.
func OpenStore(ctx context.Context, cfg config.StorageConfig, log logging.Logger) (storage.ObjectStore, error) {
	if cfg.Backend == config.StorageMinIO {
		s, err := minio.NewStore(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := gcs.NewStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *App) initKafka() error {
	pub, err := kafka.NewPublisher(a.Config.Kafka, a.Logger.Named("kafka"))
	if err != nil {
		return err
	}
	a.Publisher = pub
	a.closers = append(a.closers, pub.Close)
	return nil
}

func (a *App) initVertex() error {
	v := a.Config.Vertex
	tokens := vertex.NewTokenProvider(vertex.TokenConfig{
		AccessToken:   v.AccessToken,
		UseADC:        v.UseADC,
		GcloudPath:    v.GcloudPath,
		GcloudTimeout: v.GcloudTimeout,
	}, a.Logger)
	client, err := vertex.NewClient(vertex.Config{
		ProjectID:     v.ProjectID,
		Location:      v.Location,
		Collection:    v.Collection,
		EngineID:      v.EngineID,
		Endpoint:      v.Endpoint,
		LanguageCode:  v.LanguageCode,
		PageSize:      v.PageSize,
		StreamTimeout: v.StreamTimeout,
		AnswerTimeout: v.AnswerTimeout,
	}, tokens, a.Logger, vertex.WithLatencyObserver(func(ep vertex.Endpoint, d time.Duration, err error) {
		a.Metrics.RecordUpstream(string(ep), err, d)
	}))
	if err != nil {
		return err
	}
	a.Vertex = client
	return nil
}

func (a *App) initServices() {
	chatOpts := []chat.Option{
		chat.WithMetrics(a.Metrics),
		chat.WithAuditPublisher(a.Publisher, a.Config.Kafka.Topic),
	}

	if a.DB != nil {
		var (
			nbRepo  notebook.Repository = repositories.NewPostgresNotebookRepo(a.DB, a.Logger)
			molRepo molecule.Repository = repositories.NewPostgresMoleculeRepo(a.DB, a.Logger)
		)
		chatOpts = append(chatOpts, chat.WithMoleculeLookup(molRepo, nbRepo))

		nbOpts := []appnb.Option{appnb.WithMetrics(a.Metrics)}
		molOpts := []appmol.Option{appmol.WithMetrics(a.Metrics)}
		if a.Cache != nil {
			nbOpts = append(nbOpts, appnb.WithCache(a.Cache, notebookListTTL, notebookItemTTL))
			molOpts = append(molOpts, appmol.WithCache(a.Cache, moleculeTTL))
		}
		a.Notebooks = appnb.NewService(nbRepo, a.Logger, nbOpts...)
		a.Molecules = appmol.NewService(molRepo, a.Logger, molOpts...)
	}

	if a.Store != nil {
		a.Documents = document.NewService(a.Store, a.Logger, a.documentOptions()...)
	}

	a.Chat = chat.NewService(a.Vertex, a.Logger, chatOpts...)
}

func (a *App) documentOptions() []document.Option {
	opts := []document.Option{
		document.WithMetrics(a.Metrics),
		document.WithPresignTTL(a.Config.Storage.PresignTTL),
		document.WithDefaultPrefix(a.Config.Storage.Prefix),
	}
	if a.Cache != nil {
		opts = append(opts, document.WithURLCache(a.Cache))
	}
	if a.Redis != nil {
		rc := a.Redis
		opts = append(opts, document.WithJobLock(func(name string) document.Locker {
			return rc.NewMutex(name, redis.WithLockTTL(tagLockTTL), redis.WithWatchdog())
		}))
	}
	return opts
}

// HealthCheckers lists the probes of every connected dependency.
func (a *App) HealthCheckers() []handlers.HealthChecker {
	var checks []handlers.HealthChecker
	if a.DB != nil {
		checks = append(checks, handlers.CheckFunc("postgres", a.DB.HealthCheck))
	}
	if a.Redis != nil {
		checks = append(checks, handlers.CheckFunc("redis", a.Redis.Ping))
	}
	return checks
}

// Router mounts the handlers for the services that are available.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	cors := middleware.DefaultCORSConfig()
	cors.Origins = a.origins

	rc := httpserver.RouterConfig{
		HealthHandler: handlers.NewHealthHandler(Version, a.Metrics, a.Logger, a.HealthCheckers()...),
		ChatHandler:   handlers.NewChatHandler(a.Chat, a.Logger),
		CORS:          cors,
		Logging:       middleware.DefaultLoggingConfig(),
		MaxBodySize:   cfg.Server.MaxBodySize,
		Logger:        a.Logger,
		Metrics:       a.Metrics,
	}
	if cfg.Metrics.Enabled {
		rc.MetricsCollector = a.Collector
		rc.MetricsPath = cfg.Metrics.Path
	}
	if cfg.Server.RateLimit.Enabled {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.Server.RateLimit.RequestsPerSecond
		rl.Burst = cfg.Server.RateLimit.Burst
		rc.RateLimit = &rl
	}
	if a.Notebooks != nil {
		rc.NotebookHandler = handlers.NewNotebookHandler(a.Notebooks, a.Logger)
	}
	if a.Molecules != nil {
		rc.MoleculeHandler = handlers.NewMoleculeHandler(a.Molecules, a.Logger)
	}
	if a.Documents != nil {
		rc.DocumentHandler = handlers.NewDocumentHandler(a.Documents, a.Logger)
	}
	return httpserver.NewRouter(rc)
}

// Reload applies the settings that can change without a restart: the log
// level and the allowed CORS origins.
func (a *App) Reload(cfg *config.Config) {
	logging.SetLevel(cfg.Log.Level)
	a.origins.Set(cfg.Server.AllowedOrigins)
	a.Config.Log.Level = cfg.Log.Level
	a.Config.Server.AllowedOrigins = cfg.Server.AllowedOrigins
	a.Logger.Info("configuration reloaded",
		logging.String("log_level", cfg.Log.Level),
		logging.Int("allowed_origins", len(cfg.Server.AllowedOrigins)),
	)
}

// Run serves HTTP until ctx is cancelled and reports the database pool to
// metrics meanwhile.
func (a *App) Run(ctx context.Context) error {
	if a.DB != nil {
		go a.reportPool(ctx)
	}
	srv := httpserver.NewServer(a.Config.Server, a.Router(), a.Logger)
	a.Logger.Info("starting molecule search API",
		logging.String("version", Version),
		logging.String("addr", srv.Addr()),
		logging.String("environment", a.Config.Server.Environment),
		logging.Bool("database", a.DB != nil),
		logging.Bool("documents", a.Documents != nil),
	)
	return srv.Run(ctx)
}

func (a *App) reportPool(ctx context.Context) {
	t := time.NewTicker(dbPoolInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s := a.DB.DB().Stats()
			a.Metrics.RecordDBPool(s.OpenConnections, s.InUse)
		}
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("failed to close resource", logging.Err(err))
		}
	}
	a.closers = nil
}
