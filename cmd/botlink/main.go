package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
	"botlink/internal/core/robot"
	"botlink/internal/core/services"
	httphandlers "botlink/internal/handlers/http"
	"botlink/internal/handlers/rpc"
	"botlink/internal/infrastructure/cloud"
	"botlink/internal/infrastructure/mdns"
	"botlink/internal/infrastructure/monitoring"
	"botlink/internal/infrastructure/network"
	repositories "botlink/internal/infrastructure/repositories"
	webrtcinfra "botlink/internal/infrastructure/webrtc"
	"botlink/pkg/config"
	"botlink/pkg/logger"
	"botlink/pkg/retry"
	"botlink/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "configs/botlink.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "botlink: %v\n", err)
		os.Exit(1)
	}

	buffer := logger.NewLogBuffer(cfg.Logging.BufferSize, logger.ParseLevel(cfg.Logging.Level))
	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format, buffer)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, buffer, log); err != nil {
		log.Errorw("botlink stopped with error", "error", err)
		zapLogger.Sync()
		os.Exit(1)
	}
	log.Info("botlink stopped")
}

func run(ctx context.Context, cfg *config.Config, buffer *logger.LogBuffer, log *zap.SugaredLogger) error {
	tp, err := tracing.Init(tracingConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("failed to flush traces", "error", err)
		}
	}()

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log.Named("repositories"))
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	defer func() {
		if err := repoFactory.Close(); err != nil {
			log.Errorw("error closing repository factory", "error", err)
		}
	}()

	tokens := services.NewTokenService(cfg.Cloud.Secret, cfg.Cloud.TokenTTL)
	connector := cloud.NewConnector(cfg.Cloud.AppAddress, cfg.Cloud.RobotID, tokens, cfg.Cloud.DialTimeout)
	clients := cloud.NewClientBuilder(log.Named("cloud"))
	appConfig := appClientConfig(cfg)

	boot := services.NewBootstrap(connector, clients, repoFactory.CreateConfigRepository(),
		appConfig, fetchRetryConfig(cfg), cfg.Cloud.CallTimeout, log.Named("bootstrap"))
	fetched, err := boot.FetchConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to get robot config: %w", err)
	}
	log.Infow("robot config loaded",
		"from_cache", fetched.FromCache,
		"components", len(fetched.Config.Components),
	)

	local := robot.NewLocalRobot(fetched.Config)
	if buildErr := local.BuildError(); buildErr != nil {
		log.Warnw("robot built with errors", "error", buildErr)
	}
	if err := boot.ReportConfig(ctx, fetched, local.BuildError()); err != nil {
		log.Warnw("failed to report config to cloud", "error", err)
	}

	listener, err := network.Listen(cfg.Server.ListenAddress, cfg.Server.Port)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	builder := services.NewServerBuilder(newAdvertiser(cfg, log), connector, clients, appConfig).
		WithHTTP2Listener(listener, listener.Port()).
		WithHandler(rpc.NewHandlerFactory(cfg, tokens, log.Named("rpc"))).
		WithLogSource(buffer).
		WithMetrics(monitoring.NewPrometheusCollector(registry)).
		WithOptions(orchestratorOptions(cfg)).
		WithLogger(log.Named("server"))
	if cfg.WebRTC.Enabled {
		builder.WithWebRTC(webrtcinfra.NewEngineFactory(webrtcConfig(cfg), log.Named("webrtc")))
	}

	server, err := builder.Build(fetched.Config)
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to build server: %w", err)
	}
	defer server.Close()

	health := monitoring.NewHealthChecker()
	health.AddServerChecks(server.Stats)
	if rc := repoFactory.RedisClient(); rc != nil {
		health.AddRedisCheck(rc, cfg.Cloud.CallTimeout)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infow("serving robot", "addr", listener.Addr().String(), "webrtc", cfg.WebRTC.Enabled)
		err := server.Serve(gctx, robot.NewShared(local))
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Monitoring.Enabled {
		router := gin.New()
		router.Use(gin.Recovery())
		httphandlers.NewStatusHandler(health, server.Stats, registry).SetupRoutes(router)

		srv := &http.Server{Addr: cfg.Monitoring.Address, Handler: router}
		g.Go(func() error {
			log.Infow("starting monitoring server", "addr", cfg.Monitoring.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Errorw("error during monitoring shutdown", "error", err)
				return srv.Close()
			}
			return nil
		})
	}

	return g.Wait()
}

func newAdvertiser(cfg *config.Config, log *zap.SugaredLogger) ports.Advertiser {
	if !cfg.MDNS.Enabled {
		return mdns.NewNoopAdvertiser(log.Named("mdns"))
	}
	return mdns.NewZeroconfAdvertiser(cfg.MDNS.Domain, net.ParseIP(cfg.MDNS.IP), log.Named("mdns"))
}

func appClientConfig(cfg *config.Config) domain.AppClientConfig {
	ac := domain.AppClientConfig{
		RobotID:    cfg.Cloud.RobotID,
		Secret:     cfg.Cloud.Secret,
		AppAddress: cfg.Cloud.AppAddress,
	}
	if ip := net.ParseIP(cfg.MDNS.IP); ip != nil {
		ac.SetIP(ip)
	}
	return ac
}

func fetchRetryConfig(cfg *config.Config) retry.Config {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = cfg.Cloud.FetchAttempts
	rc.InitialDelay = cfg.Cloud.FetchDelay
	rc.MaxDelay = cfg.Cloud.FetchMaxDelay
	return rc
}

func orchestratorOptions(cfg *config.Config) services.Options {
	o := services.DefaultOptions()
	o.IdleDelay = cfg.Orchestrator.IdleDelay
	o.ICETimeout = cfg.WebRTC.ICETimeout
	o.DataChannelTimeout = cfg.WebRTC.DataChannelTimeout
	o.LogUploadInterval = cfg.Orchestrator.LogUploadInterval
	o.CallTimeout = cfg.Cloud.CallTimeout
	o.ReconnectRate = cfg.Orchestrator.ReconnectRate
	o.ReconnectBurst = cfg.Orchestrator.ReconnectBurst
	o.FailureThreshold = cfg.Orchestrator.FailureThreshold
	o.BreakerTimeout = cfg.Orchestrator.BreakerTimeout
	o.HTTP2 = services.HTTP2Options{
		MaxConcurrentStreams: cfg.HTTP2.MaxConcurrentStreams,
		StreamWindowSize:     cfg.HTTP2.StreamWindowSize,
		MaxReadFrameSize:     cfg.HTTP2.MaxReadFrameSize,
		IdleTimeout:          cfg.HTTP2.IdleTimeout,
	}
	return o
}

func webrtcConfig(cfg *config.Config) webrtcinfra.Config {
	var wc webrtcinfra.Config
	for _, s := range cfg.WebRTC.ICEServers {
		wc.ICEServers = append(wc.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	wc.PortRange.Min = cfg.WebRTC.PortRange.Min
	wc.PortRange.Max = cfg.WebRTC.PortRange.Max
	return wc
}

func tracingConfig(cfg *config.Config) tracing.Config {
	tc := tracing.DefaultConfig()
	tc.Enabled = cfg.Tracing.Enabled
	tc.JaegerURL = cfg.Tracing.JaegerURL
	tc.Environment = cfg.Tracing.Environment
	tc.SampleRate = cfg.Tracing.SampleRate
	return tc
}
