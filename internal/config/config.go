// Package config loads stagegen settings from defaults, a YAML file,
// STAGEGEN_* environment variables and command-line flags, in increasing
// order of precedence.
//
// Environment variables use a double underscore for nesting:
//
//	STAGEGEN_GENERATOR__WORKERS=4          -> generator.workers
//	STAGEGEN_DATABASE__MAX_CONNS=8         -> database.max_conns
//	STAGEGEN_GENERATOR__RESERVED__EXTRA=CREATED_AT,UPDATED_AT
package config

import (
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/koustreak/stagegen/internal/database"
	"github.com/koustreak/stagegen/internal/errs"
	"github.com/koustreak/stagegen/internal/filestore"
	"github.com/koustreak/stagegen/internal/logger"
	"github.com/koustreak/stagegen/internal/pipeline"
	"github.com/koustreak/stagegen/internal/server"
)

// EnvPrefix marks the environment variables read by Load.
const EnvPrefix = "STAGEGEN_"

// DefaultFiles are searched in the working directory when no file is given.
var DefaultFiles = []string{"stagegen.yaml", "stagegen.yml"}

// Config is the complete runtime configuration.
type Config struct {
	Log       logger.Config    `koanf:"log"`
	Generator pipeline.Options `koanf:"generator"`
	Server    server.Config    `koanf:"server"`
	Database  database.Config  `koanf:"database"`
	Store     filestore.Config `koanf:"store"`

	// File is the config file that was read, or "".
	File string `koanf:"-"`
}

// flagKeys maps command-line flag names to configuration keys. Flags not
// listed here are command arguments, not configuration.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-format":      "log.format",
	"materialization": "generator.materialization",
	"workers":         "generator.workers",
	"reserved":        "generator.reserved.extra",
	"addr":            "server.addr",
	"db-driver":       "database.driver",
	"db-dsn":          "database.dsn",
	"db-schema":       "database.schema",
	"store-endpoint":  "store.endpoint",
	"store-bucket":    "store.bucket",
}

// FlagKey returns the configuration key bound to a flag name.
func FlagKey(flag string) (string, bool) {
	key, ok := flagKeys[flag]
	return key, ok
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Log:       *logger.DefaultConfig(),
		Generator: pipeline.DefaultOptions(),
		Server:    server.DefaultConfig(),
		Database:  database.DefaultConfig(),
		Store:     filestore.DefaultConfig(),
	}
}

// defaults flattens Default into koanf keys.
func defaults() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"log.level":       d.Log.Level,
		"log.format":      d.Log.Format,
		"log.time_format": d.Log.TimeFormat,

		"generator.materialization":         d.Generator.Materialization,
		"generator.workers":                 d.Generator.Workers,
		"generator.reserved.load_date":      d.Generator.Reserved.LoadDate,
		"generator.reserved.record_source":  d.Generator.Reserved.RecordSource,
		"generator.reserved.effective_from": d.Generator.Reserved.EffectiveFrom,
		"generator.reserved.extra":          []string{},

		"server.addr":                d.Server.Addr,
		"server.max_upload_bytes":    d.Server.MaxUploadBytes,
		"server.request_timeout":     d.Server.RequestTimeout,
		"server.read_header_timeout": d.Server.ReadHeaderTimeout,
		"server.shutdown_timeout":    d.Server.ShutdownTimeout,

		"database.driver":             string(d.Database.Driver),
		"database.max_conns":          d.Database.MaxConns,
		"database.min_conns":          d.Database.MinConns,
		"database.max_conn_lifetime":  d.Database.MaxConnLifetime,
		"database.max_conn_idle_time": d.Database.MaxConnIdleTime,
		"database.connect_timeout":    d.Database.ConnectTimeout,
		"database.query_timeout":      d.Database.QueryTimeout,

		"store.provider":      string(d.Store.Provider),
		"store.endpoint":      d.Store.Endpoint,
		"store.use_ssl":       d.Store.UseSSL,
		"store.input_prefix":  d.Store.InputPrefix,
		"store.output_prefix": d.Store.OutputPrefix,
	}
}

// Load builds a Config. path names a YAML file that must exist; when empty,
// the first of DefaultFiles found in the working directory is used. flags may
// be nil; only flags that were set on the command line and appear in the
// flag key table override the other layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "load defaults", err)
	}

	used, err := findFile(path)
	if err != nil {
		return nil, err
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "read config file "+used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "load environment", err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "load flags", err)
		}
	}

	cfg := Default()
	err = k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			TagName:          "koanf",
			Result:           cfg,
		},
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "decode configuration", err)
	}
	cfg.File = used

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey turns STAGEGEN_DATABASE__MAX_CONNS into database.max_conns.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func findFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errs.Wrap(errs.ErrKindNotFound, "config file "+explicit, err)
		}
		return explicit, nil
	}
	for _, name := range DefaultFiles {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	}
	return "", nil
}

// Validate checks the sections every command needs. Database and Store are
// validated where they are opened, since most runs use neither.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "disabled", "off":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "log level %q: expected debug, info, warn, error or disabled", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return errs.Newf(errs.ErrKindInvalidInput, "log format %q: expected json or console", c.Log.Format)
	}
	if err := c.Generator.Validate(); err != nil {
		return err
	}
	return c.Server.Validate()
}
