package config

import (
	"fmt"
	"strings"
)

// validate performs basic validation on the configuration.
//
// Transport selector, role and application kind are checked by the caller
// factory and the lane bootstrap.
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.CacheDir) == "" {
		return fmt.Errorf("cache_dir is required")
	}
	if strings.TrimSpace(cfg.SockDir) == "" {
		return fmt.Errorf("sock_dir is required")
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("log_format must be one of: json, text (got %q)", cfg.LogFormat)
	}

	if cfg.Master.Timeout <= 0 {
		return fmt.Errorf("master.timeout must be positive")
	}

	if cfg.Lane.PollInterval <= 0 {
		return fmt.Errorf("lane.poll_interval must be positive")
	}
	if cfg.Lane.SettleDelay < 0 {
		return fmt.Errorf("lane.settle_delay must not be negative")
	}
	if cfg.Lane.RendezvousTimeout < 0 {
		return fmt.Errorf("lane.rendezvous_timeout must not be negative (0 waits forever)")
	}
	if cfg.Lane.ProbeEnabled() && cfg.Lane.ProbeTimeout <= 0 {
		return fmt.Errorf("lane.probe_timeout must be positive when lane.probe is enabled")
	}
	if cfg.Lane.SendTimeout <= 0 {
		return fmt.Errorf("lane.send_timeout must be positive")
	}

	if cfg.Collectors.Redis.TTL < 0 {
		return fmt.Errorf("collectors.redis.ttl must not be negative")
	}
	if matches := envVarPattern.FindStringSubmatch(cfg.Collectors.Redis.Password); len(matches) > 1 {
		return fmt.Errorf("collectors.redis.password: environment variable ${%s} is not set", matches[1])
	}

	return nil
}
