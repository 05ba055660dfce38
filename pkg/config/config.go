package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"botlink/pkg/validation"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Server struct {
		ListenAddress   string        `yaml:"listen_address"`
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Cloud struct {
		AppAddress  string        `yaml:"app_address"`
		RobotID     string        `yaml:"robot_id"`
		Secret      string        `yaml:"secret"`
		TokenTTL    time.Duration `yaml:"token_ttl"`
		DialTimeout time.Duration `yaml:"dial_timeout"`
		CallTimeout time.Duration `yaml:"call_timeout"`
		// Bootstrap config fetch retry
		FetchAttempts int           `yaml:"fetch_attempts"`
		FetchDelay    time.Duration `yaml:"fetch_delay"`
		FetchMaxDelay time.Duration `yaml:"fetch_max_delay"`
	} `yaml:"cloud"`

	WebRTC struct {
		Enabled    bool        `yaml:"enabled"`
		ICEServers []ICEServer `yaml:"ice_servers"`
		PortRange  struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
		ICETimeout         time.Duration `yaml:"ice_timeout"`
		DataChannelTimeout time.Duration `yaml:"data_channel_timeout"`
	} `yaml:"webrtc"`

	MDNS struct {
		Enabled bool   `yaml:"enabled"`
		Domain  string `yaml:"domain"`
		IP      string `yaml:"ip"`
	} `yaml:"mdns"`

	Orchestrator struct {
		IdleDelay         time.Duration `yaml:"idle_delay"`
		ReconnectRate     float64       `yaml:"reconnect_rate"` // cloud reconnect attempts per second
		ReconnectBurst    int           `yaml:"reconnect_burst"`
		LogUploadInterval time.Duration `yaml:"log_upload_interval"`
		FailureThreshold  int           `yaml:"failure_threshold"`
		BreakerTimeout    time.Duration `yaml:"breaker_timeout"`
	} `yaml:"orchestrator"`

	HTTP2 struct {
		MaxConcurrentStreams uint32        `yaml:"max_concurrent_streams"`
		StreamWindowSize     int32         `yaml:"stream_window_size"`
		MaxReadFrameSize     uint32        `yaml:"max_read_frame_size"`
		IdleTimeout          time.Duration `yaml:"idle_timeout"`
	} `yaml:"http2"`

	RPC struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		RequireAuth       bool    `yaml:"require_auth"`
	} `yaml:"rpc"`

	Monitoring struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"monitoring"`

	Logging struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		BufferSize int    `yaml:"buffer_size"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if err := validation.ValidatePort(c.Server.Port); err != nil {
		return fmt.Errorf("server.port: %w", err)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Cloud
	if err := validation.ValidateURL(c.Cloud.AppAddress); err != nil {
		return fmt.Errorf("cloud.app_address: %w", err)
	}
	if err := validation.ValidateRobotID(c.Cloud.RobotID); err != nil {
		return fmt.Errorf("cloud.robot_id: %w", err)
	}
	if c.Cloud.Secret == "" {
		return fmt.Errorf("cloud.secret must not be empty")
	}
	if c.Cloud.TokenTTL <= 0 {
		return fmt.Errorf("cloud.token_ttl must be > 0")
	}
	if c.Cloud.DialTimeout <= 0 {
		return fmt.Errorf("cloud.dial_timeout must be > 0")
	}
	if c.Cloud.CallTimeout <= 0 {
		return fmt.Errorf("cloud.call_timeout must be > 0")
	}
	if c.Cloud.FetchAttempts < 0 {
		return fmt.Errorf("cloud.fetch_attempts must be >= 0")
	}

	// WebRTC
	if c.WebRTC.Enabled {
		if c.WebRTC.ICETimeout <= 0 {
			return fmt.Errorf("webrtc.ice_timeout must be > 0 when webrtc.enabled=true")
		}
		if c.WebRTC.DataChannelTimeout <= 0 {
			return fmt.Errorf("webrtc.data_channel_timeout must be > 0 when webrtc.enabled=true")
		}
		for _, srv := range c.WebRTC.ICEServers {
			for _, u := range srv.URLs {
				if err := validation.ValidateICEURL(u); err != nil {
					return fmt.Errorf("webrtc.ice_servers: %w", err)
				}
			}
		}
	}
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	// mDNS
	if c.MDNS.Enabled && c.MDNS.Domain == "" {
		return fmt.Errorf("mdns.domain must not be empty when mdns.enabled=true")
	}
	if c.MDNS.IP != "" {
		if err := validation.ValidateIP(c.MDNS.IP); err != nil {
			return fmt.Errorf("mdns.ip: %w", err)
		}
	}

	// Orchestrator
	if c.Orchestrator.IdleDelay < 0 {
		return fmt.Errorf("orchestrator.idle_delay must be >= 0")
	}
	if c.Orchestrator.ReconnectRate <= 0 {
		return fmt.Errorf("orchestrator.reconnect_rate must be > 0")
	}
	if c.Orchestrator.ReconnectBurst <= 0 {
		return fmt.Errorf("orchestrator.reconnect_burst must be > 0")
	}
	if c.Orchestrator.LogUploadInterval <= 0 {
		return fmt.Errorf("orchestrator.log_upload_interval must be > 0")
	}
	if c.Orchestrator.FailureThreshold <= 0 {
		return fmt.Errorf("orchestrator.failure_threshold must be > 0")
	}
	if c.Orchestrator.BreakerTimeout <= 0 {
		return fmt.Errorf("orchestrator.breaker_timeout must be > 0")
	}

	// HTTP/2
	if c.HTTP2.MaxConcurrentStreams == 0 {
		return fmt.Errorf("http2.max_concurrent_streams must be > 0")
	}
	if c.HTTP2.StreamWindowSize <= 0 {
		return fmt.Errorf("http2.stream_window_size must be > 0")
	}
	if c.HTTP2.IdleTimeout < 0 {
		return fmt.Errorf("http2.idle_timeout must be >= 0")
	}
	if c.HTTP2.MaxReadFrameSize != 0 && (c.HTTP2.MaxReadFrameSize < 16384 || c.HTTP2.MaxReadFrameSize > 1<<24-1) {
		return fmt.Errorf("http2.max_read_frame_size must be 0 or in 16384..16777215")
	}

	// RPC
	if c.RPC.RequestsPerSecond <= 0 {
		return fmt.Errorf("rpc.requests_per_second must be > 0")
	}
	if c.RPC.Burst <= 0 {
		return fmt.Errorf("rpc.burst must be > 0")
	}

	// Monitoring
	if c.Monitoring.Enabled && c.Monitoring.Address == "" {
		return fmt.Errorf("monitoring.address must not be empty when monitoring.enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}
	if c.Logging.BufferSize <= 0 {
		return fmt.Errorf("logging.buffer_size must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in 0..1")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		// No file: defaults plus environment
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults. Cloud credentials
// have no default and must come from the file or the environment.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.ListenAddress = "0.0.0.0"
	cfg.Server.Port = 12346
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Cloud.AppAddress = "wss://app.viam.com:443/robot/ws"
	cfg.Cloud.TokenTTL = time.Hour
	cfg.Cloud.DialTimeout = 10 * time.Second
	cfg.Cloud.CallTimeout = 15 * time.Second
	cfg.Cloud.FetchAttempts = 5
	cfg.Cloud.FetchDelay = 500 * time.Millisecond
	cfg.Cloud.FetchMaxDelay = 30 * time.Second

	cfg.WebRTC.Enabled = true
	cfg.WebRTC.ICEServers = []ICEServer{{URLs: []string{"stun:global.stun.twilio.com:3478"}}}
	cfg.WebRTC.ICETimeout = 10 * time.Second
	cfg.WebRTC.DataChannelTimeout = 10 * time.Second

	cfg.MDNS.Enabled = true
	cfg.MDNS.Domain = "local."

	cfg.Orchestrator.IdleDelay = 300 * time.Millisecond
	cfg.Orchestrator.ReconnectRate = 1
	cfg.Orchestrator.ReconnectBurst = 1
	cfg.Orchestrator.LogUploadInterval = time.Second
	cfg.Orchestrator.FailureThreshold = 5
	cfg.Orchestrator.BreakerTimeout = 30 * time.Second

	cfg.HTTP2.MaxConcurrentStreams = 1
	cfg.HTTP2.StreamWindowSize = 2048
	cfg.HTTP2.IdleTimeout = 30 * time.Second

	cfg.RPC.RequestsPerSecond = 50
	cfg.RPC.Burst = 100

	cfg.Monitoring.Enabled = false
	cfg.Monitoring.Address = ":9090"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.BufferSize = 150

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 2

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if id := os.Getenv("BOTLINK_ROBOT_ID"); id != "" {
		c.Cloud.RobotID = id
	}
	if secret := os.Getenv("BOTLINK_ROBOT_SECRET"); secret != "" {
		c.Cloud.Secret = secret
	}
	if addr := os.Getenv("BOTLINK_APP_ADDRESS"); addr != "" {
		c.Cloud.AppAddress = addr
	}
	if level := os.Getenv("BOTLINK_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
