package config

import "time"

// FeedConfig is the root configuration for a feedd instance.
type FeedConfig struct {
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Transport TransportConfig `yaml:"transport"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	Health    HealthConfig    `yaml:"health"`
	HTTP      HTTPConfig      `yaml:"http"`
}

// EndpointsConfig names the backend the feed attaches to.
type EndpointsConfig struct {
	Primary  string `yaml:"primary"`  // ws:// or http:// (upgraded to ws://)
	Fallback string `yaml:"fallback"` // optional
	Token    string `yaml:"token"`    // optional bearer token
	Health   string `yaml:"health"`   // optional REST health URL
}

// TransportConfig holds connection manager settings.
type TransportConfig struct {
	RetryInterval    time.Duration `yaml:"retry_interval"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	PingTimeout      time.Duration `yaml:"ping_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	FrameBuffer      int           `yaml:"frame_buffer"`
}

// BufferConfig holds message log settings.
type BufferConfig struct {
	Capacity int `yaml:"capacity"`
}

// ThrottleConfig holds consumer update pacing.
type ThrottleConfig struct {
	Window time.Duration `yaml:"window"`
	Pulse  time.Duration `yaml:"pulse"`
}

// HealthConfig holds backend health poll settings.
type HealthConfig struct {
	Interval        time.Duration `yaml:"interval"`
	Timeout         time.Duration `yaml:"timeout"`
	FailureThresh   int           `yaml:"failure_threshold"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// HTTPConfig holds the local status server settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
}
