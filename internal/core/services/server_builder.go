package services

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
	"botlink/internal/core/robot"
	apperrors "botlink/pkg/errors"
	"botlink/pkg/validation"
)

const (
	rpcService = "_rpc"
	rpcProto   = "_tcp"
)

// HandlerFactory builds the RPC handler served over both transports.
type HandlerFactory func(shared *robot.Shared) http.Handler

// Options holds the orchestrator's timing and transport knobs.
type Options struct {
	IdleDelay          time.Duration
	ICETimeout         time.Duration
	DataChannelTimeout time.Duration
	LogUploadInterval  time.Duration
	CallTimeout        time.Duration
	ReconnectRate      float64
	ReconnectBurst     int
	FailureThreshold   int
	BreakerTimeout     time.Duration
	HTTP2              HTTP2Options
}

func DefaultOptions() Options {
	return Options{
		IdleDelay:          300 * time.Millisecond,
		ICETimeout:         10 * time.Second,
		DataChannelTimeout: 10 * time.Second,
		LogUploadInterval:  time.Second,
		CallTimeout:        15 * time.Second,
		ReconnectRate:      1,
		ReconnectBurst:     1,
		FailureThreshold:   5,
		BreakerTimeout:     30 * time.Second,
		HTTP2:              DefaultHTTP2Options(),
	}
}

// ServerBuilder accumulates collaborators for a Server. Build consumes it.
type ServerBuilder struct {
	advertiser ports.Advertiser
	connector  ports.CloudConnector
	clients    ports.CloudClientBuilder
	appConfig  domain.AppClientConfig

	engines  ports.SessionEngineFactory
	listener ports.Listener
	port     int
	handler  HandlerFactory
	logs     LogSource
	metrics  ports.MetricsRecorder
	opts     Options
	logger   *zap.SugaredLogger

	built bool
}

func NewServerBuilder(advertiser ports.Advertiser, connector ports.CloudConnector, clients ports.CloudClientBuilder, appConfig domain.AppClientConfig) *ServerBuilder {
	return &ServerBuilder{
		advertiser: advertiser,
		connector:  connector,
		clients:    clients,
		appConfig:  appConfig,
		opts:       DefaultOptions(),
		logger:     zap.NewNop().Sugar(),
	}
}

// WithWebRTC enables the signaling branch of the race.
func (b *ServerBuilder) WithWebRTC(engines ports.SessionEngineFactory) *ServerBuilder {
	b.engines = engines
	return b
}

func (b *ServerBuilder) WithHTTP2Listener(l ports.Listener, port int) *ServerBuilder {
	b.listener = l
	b.port = port
	return b
}

func (b *ServerBuilder) WithHandler(f HandlerFactory) *ServerBuilder {
	b.handler = f
	return b
}

func (b *ServerBuilder) WithLogSource(src LogSource) *ServerBuilder {
	b.logs = src
	return b
}

func (b *ServerBuilder) WithMetrics(m ports.MetricsRecorder) *ServerBuilder {
	b.metrics = m
	return b
}

func (b *ServerBuilder) WithOptions(o Options) *ServerBuilder {
	b.opts = o
	return b
}

func (b *ServerBuilder) WithLogger(l *zap.SugaredLogger) *ServerBuilder {
	if l != nil {
		b.logger = l
	}
	return b
}

// Build resolves the cloud identity from cfg, advertises the RPC endpoint
// under both the local and public names and returns the server. Any
// advertisement failure aborts the build.
func (b *ServerBuilder) Build(cfg *domain.ConfigResponse) (*Server, error) {
	if b.built {
		return nil, domain.ErrServerAlreadyBuilt
	}
	b.built = true

	if err := b.check(cfg); err != nil {
		return nil, err
	}

	identity := domain.NewCloudIdentity(cfg.Cloud)

	if err := b.advertiser.SetHostname(identity.Name); err != nil {
		return nil, apperrors.NewAdvertisementError(identity.Name, err)
	}
	for _, instance := range identity.RecordNames() {
		txt := map[string]string{"grpc": ""}
		if err := b.advertiser.AddService(instance, rpcService, rpcProto, b.port, txt); err != nil {
			b.advertiser.Shutdown()
			return nil, apperrors.NewAdvertisementError(instance, err)
		}
	}

	b.appConfig.SetRPCHost(identity.FQDN)

	b.logger.Infow("advertised rpc endpoint",
		"name", identity.Name,
		"local_fqdn", identity.LocalFQDN,
		"fqdn", identity.FQDN,
		"port", b.port,
	)

	return newServer(b, identity), nil
}

func (b *ServerBuilder) check(cfg *domain.ConfigResponse) error {
	switch {
	case cfg == nil:
		return apperrors.NewInvalidInputError("config response is required")
	case b.advertiser == nil:
		return fmt.Errorf("%w: advertiser", domain.ErrMissingCollaborator)
	case b.connector == nil || b.clients == nil:
		return fmt.Errorf("%w: cloud connector", domain.ErrMissingCollaborator)
	case b.listener == nil:
		return fmt.Errorf("%w: http2 listener", domain.ErrMissingCollaborator)
	case b.handler == nil:
		return fmt.Errorf("%w: rpc handler", domain.ErrMissingCollaborator)
	}
	if err := validation.ValidatePort(b.port); err != nil {
		return apperrors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidateFQDN(cfg.Cloud.LocalFQDN); err != nil {
		return apperrors.NewInvalidInputError(err.Error()).WithContext("field", "local_fqdn")
	}
	if err := validation.ValidateFQDN(cfg.Cloud.FQDN); err != nil {
		return apperrors.NewInvalidInputError(err.Error()).WithContext("field", "fqdn")
	}
	return nil
}
