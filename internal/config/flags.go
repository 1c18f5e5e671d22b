// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"log-format":       "log.format",
	"log-level":        "log.level",
	"database-driver":  "database.driver",
	"database-dsn":     "database.dsn",
	"database-path":    "database.path",
	"sessions-backend": "sessions.backend",
	"redis-addr":       "sessions.redis.addr",
	"metrics-addr":     "metrics.addr",
}

// RegisterFlags adds the config override flags to fs. Their defaults are
// empty; an unset flag never overrides the file or environment.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-format", "", "log format (json or text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("database-driver", "", "credential store (postgres, sqlite, memory)")
	fs.String("database-dsn", "", "PostgreSQL connection string")
	fs.String("database-path", "", "SQLite database file")
	fs.String("sessions-backend", "", "session store (memory, redis, postgres)")
	fs.String("redis-addr", "", "redis address for the redis session store")
	fs.String("metrics-addr", "", "metrics server address")
}

func loadFlags(k *koanf.Koanf, fs *pflag.FlagSet) error {
	provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	})
	if err := k.Load(provider, nil); err != nil {
		return oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
	}
	return nil
}
