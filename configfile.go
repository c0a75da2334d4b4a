package pgwire

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"
)

// PoolFileConfig holds the pool.Config fields (see internal/pool) that
// LoadPoolFileConfig reads from an INI file's [pool] section:
// max_connection_count, max_connection_age, max_session_use,
// max_query_count, connect_timeout. Missing keys keep the pool's defaults.
type PoolFileConfig struct {
	MaxConnectionCount int
	MaxConnectionAge   time.Duration
	MaxSessionUse      time.Duration
	MaxQueryCount      int
	ConnectTimeout     time.Duration
}

// LoadPoolFileConfig reads path and returns the [pool] section's values.
func LoadPoolFileConfig(path string) (PoolFileConfig, error) {
	var cfg PoolFileConfig

	file, err := ini.Load(path)
	if err != nil {
		return cfg, newError(KindProtocol, fmt.Errorf("pgwire: loading pool config %s: %w", path, err))
	}

	section := file.Section("pool")
	cfg.MaxConnectionCount = section.Key("max_connection_count").MustInt(1)
	cfg.MaxConnectionAge = section.Key("max_connection_age").MustDuration(0)
	cfg.MaxSessionUse = section.Key("max_session_use").MustDuration(0)
	cfg.MaxQueryCount = section.Key("max_query_count").MustInt(0)
	cfg.ConnectTimeout = section.Key("connect_timeout").MustDuration(0)

	return cfg, nil
}
