// Package app assembles the repositories, providers and services shared by
// the SkyGuard binaries. Each cmd picks the pieces it needs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"skyguard/internal/alerting"
	"skyguard/internal/config"
	"skyguard/internal/db"
	"skyguard/internal/delivery"
	"skyguard/internal/eligibility"
	"skyguard/internal/external"
	"skyguard/internal/ratelimit"
	"skyguard/internal/types"
)

// breakerTrips is the consecutive failure count that opens a provider
// breaker.
const breakerTrips = 5

// Stores groups the PostgreSQL repositories.
type Stores struct {
	Profiles    *db.ProfileRepository
	Preferences *db.PreferenceRepository
	Alerts      *db.AlertRepository
	Recipients  *db.RecipientRepository
	Rules       *db.WeatherRuleRepository
	TriggerLog  *db.WeatherLogRepository
	QA          *db.QARepository
	Audit       *db.AuditRepository
	RateLimits  *db.RateLimitRepository
}

// NewStores builds every repository over conn.
func NewStores(conn db.DBTX) *Stores {
	return &Stores{
		Profiles:    db.NewProfileRepository(conn),
		Preferences: db.NewPreferenceRepository(conn),
		Alerts:      db.NewAlertRepository(conn),
		Recipients:  db.NewRecipientRepository(conn),
		Rules:       db.NewWeatherRuleRepository(conn),
		TriggerLog:  db.NewWeatherLogRepository(conn),
		QA:          db.NewQARepository(conn),
		Audit:       db.NewAuditRepository(conn),
		RateLimits:  db.NewRateLimitRepository(conn),
	}
}

// LimiterFactory builds limiters on the configured backend so the send,
// API and auth-failure limits share one store.
type LimiterFactory struct {
	backend string
	stores  *Stores
	redis   *redis.Client
	clock   types.Clock
	janitor func(l *ratelimit.MemoryLimiter)
}

// NewLimiterFactory prepares the backend named in cfg. The returned closer
// releases the Redis client and is never nil.
func NewLimiterFactory(ctx context.Context, cfg config.RateLimitConfig, stores *Stores, clock types.Clock, logger *slog.Logger) (*LimiterFactory, func(), error) {
	f := &LimiterFactory{backend: cfg.Backend, stores: stores, clock: clock}
	closer := func() {}

	switch cfg.Backend {
	case "redis":
		rdb, err := ratelimit.NewRedisClient(cfg.RedisURL.Unmask())
		if err != nil {
			return nil, closer, err
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, closer, fmt.Errorf("pinging redis: %w", err)
		}
		f.redis = rdb
		closer = func() { _ = rdb.Close() }
	case "postgres":
		if stores == nil {
			return nil, closer, fmt.Errorf("postgres rate limit backend needs a database")
		}
	default:
		f.janitor = func(l *ratelimit.MemoryLimiter) {
			l.StartJanitor(ctx, cfg.SweepInterval, logger)
		}
	}
	return f, closer, nil
}

// New returns a limiter enforcing limits.
func (f *LimiterFactory) New(limits ratelimit.Limits) ratelimit.Limiter {
	switch f.backend {
	case "redis":
		return ratelimit.NewRedisLimiter(f.redis, limits, f.clock)
	case "postgres":
		return ratelimit.NewStoreLimiter(f.stores.RateLimits, limits, f.clock)
	default:
		l := ratelimit.NewMemoryLimiter(limits, f.clock)
		f.janitor(l)
		return l
	}
}

// Redis returns the shared client, or nil on other backends.
func (f *LimiterFactory) Redis() *redis.Client {
	return f.redis
}

// NewWeatherProvider builds the OpenWeather client behind a circuit breaker.
func NewWeatherProvider(cfg config.WeatherConfig, build config.BuildInfo) *external.OpenWeatherClient {
	base := external.NewBaseClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		"openweather",
		external.DefaultRetryPolicy(),
		userAgent(build),
		external.WithBreaker(external.NewBreaker("openweather", breakerTrips)),
		external.WithUpstreamCode(types.ErrCodeUpstreamWeather),
	)
	return external.NewOpenWeatherClient(base, cfg.BaseURL, cfg.APIKey.Unmask())
}

// NewPushClient builds the push gateway client, or returns nil when no
// gateway is configured.
func NewPushClient(cfg config.DeliveryConfig, build config.BuildInfo) *external.PushClient {
	if cfg.PushGatewayURL == "" {
		return nil
	}
	base := external.NewBaseClient(
		&http.Client{Timeout: cfg.Timeout},
		"push",
		external.DefaultRetryPolicy(),
		userAgent(build),
		external.WithBreaker(external.NewBreaker("push", breakerTrips)),
		external.WithUpstreamCode(types.ErrCodeUpstreamDelivery),
	)
	return external.NewPushClient(base, cfg.PushGatewayURL, cfg.PushAPIKey.Unmask())
}

// NewDispatcher returns the SQS dispatcher, or nil when no delivery queue
// is configured.
func NewDispatcher(awsCfg aws.Config, queueURL string, logger *slog.Logger) *delivery.SQSDispatcher {
	if queueURL == "" {
		return nil
	}
	return delivery.NewSQSDispatcher(sqs.NewFromConfig(awsCfg), queueURL, logger)
}

// EngineDeps are the optional collaborators of NewEngine.
type EngineDeps struct {
	Limiter    ratelimit.Limiter
	Auditor    alerting.Auditor
	Dispatcher *delivery.SQSDispatcher
	Recorder   alerting.Recorder
}

// NewEngine wires the fan-out engine over stores.
func NewEngine(stores *Stores, deps EngineDeps, clock types.Clock, logger *slog.Logger) *alerting.Engine {
	d := alerting.Deps{
		Limiter:    deps.Limiter,
		Resolver:   eligibility.NewResolver(stores.Profiles, stores.Preferences, logger),
		Alerts:     stores.Alerts,
		Recipients: stores.Recipients,
		Auditor:    deps.Auditor,
		Recorder:   deps.Recorder,
		Clock:      clock,
		Logger:     logger,
	}
	// A nil *SQSDispatcher must stay a nil interface.
	if deps.Dispatcher != nil {
		d.Dispatcher = deps.Dispatcher
	}
	return alerting.NewEngine(d)
}

func userAgent(build config.BuildInfo) string {
	v := build.Version
	if v == "" {
		v = "dev"
	}
	return "SkyGuard/" + v
}
