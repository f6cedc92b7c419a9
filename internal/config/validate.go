package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *FeedConfig) Validate() error {
	if c.Endpoints.Primary == "" {
		return errors.New("endpoints.primary is required")
	}

	if c.Transport.RetryInterval <= 0 {
		return errors.New("transport.retry_interval must be > 0")
	}
	if c.Transport.FrameBuffer < 1 {
		return errors.New("transport.frame_buffer must be >= 1")
	}

	if c.Buffer.Capacity < 1 {
		return errors.New("buffer.capacity must be >= 1")
	}

	if c.Throttle.Window <= 0 {
		return errors.New("throttle.window must be > 0")
	}
	if c.Throttle.Pulse <= 0 {
		return errors.New("throttle.pulse must be > 0")
	}
	if c.Throttle.Pulse > c.Throttle.Window {
		return fmt.Errorf("throttle.pulse (%s) cannot exceed throttle.window (%s)",
			c.Throttle.Pulse, c.Throttle.Window)
	}

	if c.Health.FailureThresh < 1 {
		return errors.New("health.failure_threshold must be >= 1")
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	return nil
}
