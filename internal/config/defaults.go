package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRetryInterval    = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 15 * time.Second
	DefaultPingTimeout      = 45 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultFrameBuffer      = 256
	DefaultBufferCapacity   = 100
	DefaultThrottleWindow   = 500 * time.Millisecond
	DefaultThrottlePulse    = 300 * time.Millisecond
	DefaultHealthInterval   = 30 * time.Second
	DefaultHealthTimeout    = 5 * time.Second
	DefaultFailureThresh    = 3
	DefaultBreakerCooldown  = 60 * time.Second
	DefaultHTTPPort         = 9180
)

func (c *FeedConfig) applyDefaults() {
	if c.Transport.RetryInterval == 0 {
		c.Transport.RetryInterval = DefaultRetryInterval
	}
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = DefaultPingInterval
	}
	if c.Transport.PingTimeout == 0 {
		c.Transport.PingTimeout = DefaultPingTimeout
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = DefaultWriteTimeout
	}
	if c.Transport.FrameBuffer == 0 {
		c.Transport.FrameBuffer = DefaultFrameBuffer
	}

	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = DefaultBufferCapacity
	}

	if c.Throttle.Window == 0 {
		c.Throttle.Window = DefaultThrottleWindow
	}
	if c.Throttle.Pulse == 0 {
		c.Throttle.Pulse = DefaultThrottlePulse
	}

	if c.Health.Interval == 0 {
		c.Health.Interval = DefaultHealthInterval
	}
	if c.Health.Timeout == 0 {
		c.Health.Timeout = DefaultHealthTimeout
	}
	if c.Health.FailureThresh == 0 {
		c.Health.FailureThresh = DefaultFailureThresh
	}
	if c.Health.BreakerCooldown == 0 {
		c.Health.BreakerCooldown = DefaultBreakerCooldown
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
}
