package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
	apperrors "botlink/pkg/errors"
	"botlink/pkg/retry"
	"botlink/pkg/tracing"
)

const configLoggerName = "robot_server"

// FetchedConfig is the outcome of Bootstrap.FetchConfig. Client is nil when
// the config came from the cache.
type FetchedConfig struct {
	Config    *domain.ConfigResponse
	Client    ports.CloudClient
	FromCache bool
}

// Bootstrap fetches the robot config before the orchestrator is built.
type Bootstrap struct {
	connector   ports.CloudConnector
	clients     ports.CloudClientBuilder
	repo        ports.ConfigRepository
	appConfig   domain.AppClientConfig
	retry       retry.Config
	callTimeout time.Duration
	logger      *zap.SugaredLogger
}

func NewBootstrap(connector ports.CloudConnector, clients ports.CloudClientBuilder, repo ports.ConfigRepository, appConfig domain.AppClientConfig, retryCfg retry.Config, callTimeout time.Duration, logger *zap.SugaredLogger) *Bootstrap {
	return &Bootstrap{
		connector:   connector,
		clients:     clients,
		repo:        repo,
		appConfig:   appConfig,
		retry:       retryCfg,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// FetchConfig retrieves the config from the cloud with backoff. A fresh
// config is cached; when every attempt fails the cached copy is used.
func (b *Bootstrap) FetchConfig(ctx context.Context) (*FetchedConfig, error) {
	cfg := b.retry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		b.logger.Warnw("config fetch failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}

	fetched, err := retry.RetryWithResult(ctx, cfg, func() (*FetchedConfig, error) {
		return b.fetchOnce(ctx)
	})
	if err == nil {
		if b.repo != nil {
			if serr := b.repo.Save(ctx, b.appConfig.RobotID, fetched.Config); serr != nil {
				b.logger.Warnw("failed to cache config", "error", serr)
			}
		}
		return fetched, nil
	}

	if b.repo == nil || ctx.Err() != nil {
		return nil, err
	}
	cached, cerr := b.repo.Load(ctx, b.appConfig.RobotID)
	if cerr != nil {
		return nil, fmt.Errorf("fetch config: %w (no cached config: %v)", err, cerr)
	}
	b.logger.Warnw("using cached config", "robot_id", b.appConfig.RobotID, "error", err)
	return &FetchedConfig{Config: cached, FromCache: true}, nil
}

func (b *Bootstrap) fetchOnce(ctx context.Context) (*FetchedConfig, error) {
	ctx, span := tracing.TraceCloud(ctx, "GetConfig")
	defer span.End()

	cctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	stream, err := b.connector.Connect(cctx)
	if err != nil {
		return nil, apperrors.NewCloudConnectError("failed to connect to cloud", err)
	}
	client, err := b.clients.Build(cctx, stream, b.appConfig)
	if err != nil {
		stream.Close()
		return nil, apperrors.NewCloudConnectError("failed to build cloud client", err)
	}

	resp, ts, err := client.GetConfig(cctx)
	if err != nil {
		client.Close()
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if resp == nil {
		client.Close()
		return nil, apperrors.NewNotFoundError("robot config")
	}
	resp.ReceivedAt = ts
	return &FetchedConfig{Config: resp, Client: client}, nil
}

// ReportConfig pushes a log entry recording that the config was applied,
// with buildErr when the robot could not be fully constructed, and then
// releases the bootstrap client.
func (b *Bootstrap) ReportConfig(ctx context.Context, f *FetchedConfig, buildErr error) error {
	if f == nil || f.Client == nil {
		return nil
	}
	defer f.Client.Close()

	if f.Config.ReceivedAt == nil {
		return nil
	}

	entry := domain.LogEntry{
		Host:       f.Config.Cloud.FQDN,
		Level:      "info",
		Time:       *f.Config.ReceivedAt,
		LoggerName: configLoggerName,
		Message:    "using cloud config",
	}
	if buildErr != nil {
		entry.Level = "error"
		entry.Message = fmt.Sprintf("robot built with errors: %v", buildErr)
	}

	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	return f.Client.PushLogs(ctx, []domain.LogEntry{entry})
}
