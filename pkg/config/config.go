package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"vcv/pkg/circuitbreaker"
	"vcv/pkg/retry"
)

// ICEServer is a STUN/TURN server handed to the ICE gatherer.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

// Codec is one entry of the router codec list.
type Codec struct {
	Kind       string                 `yaml:"kind"`
	MimeType   string                 `yaml:"mime_type"`
	ClockRate  uint32                 `yaml:"clock_rate"`
	Channels   uint16                 `yaml:"channels,omitempty"`
	Parameters map[string]interface{} `yaml:"parameters,omitempty"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Path                string        `yaml:"path"`
		PingInterval        time.Duration `yaml:"ping_interval"`
		PongTimeout         time.Duration `yaml:"pong_timeout"`
		WriteTimeout        time.Duration `yaml:"write_timeout"`
		SendBufferSize      int           `yaml:"send_buffer_size"`
		MaxMessageSizeBytes int64         `yaml:"max_message_size_bytes"`
		MessagesPerSecond   float64       `yaml:"messages_per_second"`
		Burst               int           `yaml:"burst"`
		AllowedOrigins      []string      `yaml:"allowed_origins"`
	} `yaml:"signal"`

	Media struct {
		ListenIP                        string      `yaml:"listen_ip"`
		AnnouncedIP                     string      `yaml:"announced_ip"`
		RTCMinPort                      uint16      `yaml:"rtc_min_port"`
		RTCMaxPort                      uint16      `yaml:"rtc_max_port"`
		ICELite                         bool        `yaml:"ice_lite"`
		ICEServers                      []ICEServer `yaml:"ice_servers"`
		InitialAvailableOutgoingBitrate int         `yaml:"initial_available_outgoing_bitrate"`
		MaxIncomingBitrate              int         `yaml:"max_incoming_bitrate"`
		Codecs                          []Codec     `yaml:"codecs"`
	} `yaml:"media"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		MetricsPath       string `yaml:"metrics_path"`
	} `yaml:"monitoring"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled"`
		ServiceName    string  `yaml:"service_name"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint"`
		SampleRate     float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Redis struct {
		Enabled        bool                  `yaml:"enabled"`
		Address        string                `yaml:"address"`
		Password       string                `yaml:"password"`
		DB             int                   `yaml:"db"`
		PoolSize       int                   `yaml:"pool_size"`
		KeyPrefix      string                `yaml:"key_prefix"`
		RoomTTL        time.Duration         `yaml:"room_ttl"`
		BatchSize      int                   `yaml:"batch_size"`
		FlushInterval  time.Duration         `yaml:"flush_interval"`
		CacheTTL       time.Duration         `yaml:"cache_ttl"`
		EventQueueSize int                   `yaml:"event_queue_size"`
		Retry          retry.Config          `yaml:"retry"`
		CircuitBreaker circuitbreaker.Config `yaml:"circuit_breaker"`
	} `yaml:"redis"`

	Auth struct {
		Enabled   bool          `yaml:"enabled"`
		JWTSecret string        `yaml:"jwt_secret"`
		Issuer    string        `yaml:"issuer"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
		APIKey    string        `yaml:"api_key"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server read/write timeouts must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Signal.Path == "" {
		return fmt.Errorf("signal.path must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be greater than signal.ping_interval")
	}
	if c.Signal.SendBufferSize <= 0 {
		return fmt.Errorf("signal.send_buffer_size must be > 0")
	}
	if c.Signal.MaxMessageSizeBytes <= 0 {
		return fmt.Errorf("signal.max_message_size_bytes must be > 0")
	}
	if c.Signal.MessagesPerSecond < 0 || c.Signal.Burst < 0 {
		return fmt.Errorf("signal rate limits must be >= 0")
	}

	if net.ParseIP(c.Media.ListenIP) == nil {
		return fmt.Errorf("media.listen_ip %q is not an IP address", c.Media.ListenIP)
	}
	if c.Media.AnnouncedIP != "" && net.ParseIP(c.Media.AnnouncedIP) == nil {
		return fmt.Errorf("media.announced_ip %q is not an IP address", c.Media.AnnouncedIP)
	}
	if c.Media.RTCMinPort > 0 || c.Media.RTCMaxPort > 0 {
		if c.Media.RTCMinPort == 0 || c.Media.RTCMaxPort == 0 {
			return fmt.Errorf("media.rtc_min_port and rtc_max_port must both be set when one is set")
		}
		if c.Media.RTCMinPort >= c.Media.RTCMaxPort {
			return fmt.Errorf("media.rtc_min_port must be < rtc_max_port")
		}
	}
	if c.Media.MaxIncomingBitrate < 0 || c.Media.InitialAvailableOutgoingBitrate < 0 {
		return fmt.Errorf("media bitrates must be >= 0")
	}
	if len(c.Media.Codecs) == 0 {
		return fmt.Errorf("media.codecs must not be empty")
	}
	for i, codec := range c.Media.Codecs {
		if codec.Kind != "audio" && codec.Kind != "video" {
			return fmt.Errorf("media.codecs[%d].kind must be audio or video", i)
		}
		if codec.MimeType == "" || codec.ClockRate == 0 {
			return fmt.Errorf("media.codecs[%d] needs mime_type and clock_rate", i)
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.BatchSize <= 0 || c.Redis.FlushInterval <= 0 {
			return fmt.Errorf("redis.batch_size and redis.flush_interval must be > 0 when redis.enabled=true")
		}
		if c.Redis.CacheTTL <= 0 || c.Redis.EventQueueSize <= 0 {
			return fmt.Errorf("redis.cache_ttl and redis.event_queue_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be > 0")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// A missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultCodecs is the router codec list used when none is configured.
func DefaultCodecs() []Codec {
	return []Codec{
		{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{
			Kind: "video", MimeType: "video/VP8", ClockRate: 90000,
			Parameters: map[string]interface{}{"x-google-start-bitrate": 1000},
		},
		{
			Kind: "video", MimeType: "video/H264", ClockRate: 90000,
			Parameters: map[string]interface{}{
				"packetization-mode":      1,
				"profile-level-id":        "4d0032",
				"level-asymmetry-allowed": 1,
				"x-google-start-bitrate":  1000,
			},
		},
	}
}

func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":4000"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 20 * time.Second

	cfg.Signal.Path = "/ws"
	cfg.Signal.PingInterval = 25 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.SendBufferSize = 64
	cfg.Signal.MaxMessageSizeBytes = 64 * 1024
	cfg.Signal.MessagesPerSecond = 50
	cfg.Signal.Burst = 100
	cfg.Signal.AllowedOrigins = []string{"*"}

	cfg.Media.ListenIP = "0.0.0.0"
	cfg.Media.AnnouncedIP = "127.0.0.1"
	cfg.Media.RTCMinPort = 10000
	cfg.Media.RTCMaxPort = 10100
	cfg.Media.InitialAvailableOutgoingBitrate = 1_000_000
	cfg.Media.MaxIncomingBitrate = 1_500_000
	cfg.Media.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	cfg.Media.Codecs = DefaultCodecs()

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"

	cfg.Logging.Level = "info"

	cfg.Tracing.ServiceName = "vcv-sfu"
	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 0.1

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.KeyPrefix = "vcv:"
	cfg.Redis.RoomTTL = 2 * time.Minute
	cfg.Redis.BatchSize = 50
	cfg.Redis.FlushInterval = 250 * time.Millisecond
	cfg.Redis.CacheTTL = 2 * time.Second
	cfg.Redis.EventQueueSize = 256
	cfg.Redis.Retry = retry.DefaultConfig()
	cfg.Redis.CircuitBreaker = circuitbreaker.DefaultConfig()

	cfg.Auth.Issuer = "vcv"
	cfg.Auth.TokenTTL = time.Hour

	cfg.RateLimiting.RequestsPerSecond = 20
	cfg.RateLimiting.Burst = 40

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VCV_SERVER_ADDRESS"); v != "" {
		c.Server.Address = v
	} else if port := os.Getenv("PORT"); port != "" {
		c.Server.Address = ":" + port
	}
	if v := os.Getenv("VCV_MEDIA_LISTEN_IP"); v != "" {
		c.Media.ListenIP = v
	}
	if v := os.Getenv("VCV_MEDIA_ANNOUNCED_IP"); v != "" {
		c.Media.AnnouncedIP = v
	}
	if v := os.Getenv("VCV_REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v, err := strconv.ParseBool(os.Getenv("VCV_REDIS_ENABLED")); err == nil {
		c.Redis.Enabled = v
	}
	if v := os.Getenv("VCV_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("VCV_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("VCV_TRACING_ENDPOINT"); v != "" {
		c.Tracing.JaegerEndpoint = v
	}
}
