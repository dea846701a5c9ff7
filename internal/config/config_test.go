package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/stagegen/internal/database"
	"github.com/koustreak/stagegen/internal/errs"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NotNil(t, cfg.Log.Output)
	assert.Equal(t, "view", cfg.Generator.Materialization)
	assert.Equal(t, runtime.GOMAXPROCS(0), cfg.Generator.Workers)
	assert.Equal(t, "LOAD_DATE", cfg.Generator.Reserved.LoadDate)
	assert.Empty(t, cfg.Generator.Reserved.Extra)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 60*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, "models/staging", cfg.Store.OutputPrefix)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	p := writeConfig(t, dir, "custom.yaml", `
log:
  level: debug
  format: console
generator:
  materialization: table
  workers: 2
  reserved:
    extra: [CREATED_AT]
server:
  addr: 127.0.0.1:9090
  request_timeout: 5s
database:
  driver: mysql
  dsn: user:pass@tcp(localhost:3306)/shop
  max_conns: 8
store:
  bucket: lake
`)

	cfg, err := Load(p, nil)
	require.NoError(t, err)

	assert.Equal(t, p, cfg.File)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "table", cfg.Generator.Materialization)
	assert.Equal(t, 2, cfg.Generator.Workers)
	assert.Equal(t, []string{"CREATED_AT"}, cfg.Generator.Reserved.Extra)
	assert.Equal(t, "RECORD_SOURCE", cfg.Generator.Reserved.RecordSource, "unset keys keep defaults")
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, database.DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, int32(8), cfg.Database.MaxConns)
	assert.Equal(t, "lake", cfg.Store.Bucket)
	assert.Equal(t, "raw", cfg.Store.InputPrefix)
}

func TestLoad_DiscoversFileInWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "stagegen.yml", "generator:\n  materialization: ephemeral\n")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "stagegen.yml", cfg.File)
	assert.Equal(t, "ephemeral", cfg.Generator.Materialization)
}

func TestLoad_Environment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeConfig(t, dir, "stagegen.yaml", "generator:\n  workers: 2\n")

	t.Setenv("STAGEGEN_GENERATOR__WORKERS", "3")
	t.Setenv("STAGEGEN_GENERATOR__RESERVED__EXTRA", "CREATED_AT,UPDATED_AT")
	t.Setenv("STAGEGEN_SERVER__SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("STAGEGEN_DATABASE__MAX_CONNS", "16")
	t.Setenv("STAGEGEN_STORE__USE_SSL", "true")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Generator.Workers, "environment beats file")
	assert.Equal(t, []string{"CREATED_AT", "UPDATED_AT"}, cfg.Generator.Reserved.Extra)
	assert.Equal(t, 2*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int32(16), cfg.Database.MaxConns)
	assert.True(t, cfg.Store.UseSSL)
}

func TestLoad_Flags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STAGEGEN_GENERATOR__WORKERS", "3")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("workers", 0, "")
	fs.String("materialization", "incremental", "")
	fs.StringSlice("reserved", nil, "")
	fs.String("db-dsn", "", "")
	fs.String("input-dir", "", "")
	require.NoError(t, fs.Parse([]string{
		"--workers", "5",
		"--reserved", "CREATED_AT",
		"--db-dsn", "postgres://localhost/shop",
		"--input-dir", "./raw",
	}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Generator.Workers, "flags beat environment")
	assert.Equal(t, "view", cfg.Generator.Materialization, "unset flags do not override")
	assert.Equal(t, []string{"CREATED_AT"}, cfg.Generator.Reserved.Extra)
	assert.Equal(t, "postgres://localhost/shop", cfg.Database.DSN)
}

func TestLoad_LogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "disabled", "off", "WARN"} {
		t.Run(level, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			p := writeConfig(t, dir, "stagegen.yaml", "log:\n  level: "+level+"\n")

			cfg, err := Load(p, nil)
			require.NoError(t, err)
			assert.Equal(t, level, cfg.Log.Level)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(error) bool
	}{
		{name: "malformed yaml", content: "log: [", check: errs.IsInvalidInput},
		{name: "bad log level", content: "log:\n  level: loud\n", check: errs.IsInvalidInput},
		{name: "bad log format", content: "log:\n  format: xml\n", check: errs.IsInvalidInput},
		{name: "negative workers", content: "generator:\n  workers: -1\n", check: errs.IsInvalidInput},
		{name: "bad materialization", content: "generator:\n  materialization: \"a view\"\n", check: errs.IsInvalidInput},
		{name: "duplicate reserved", content: "generator:\n  reserved:\n    extra: [LOAD_DATE]\n", check: errs.IsInvalidInput},
		{name: "zero upload limit", content: "server:\n  max_upload_bytes: 0\n", check: errs.IsInvalidInput},
		{name: "bad duration", content: "server:\n  request_timeout: soon\n", check: errs.IsInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			p := writeConfig(t, dir, "stagegen.yaml", tt.content)

			_, err := Load(p, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	t.Run("explicit file missing", func(t *testing.T) {
		t.Chdir(t.TempDir())
		_, err := Load("nope.yaml", nil)
		require.Error(t, err)
		assert.True(t, errs.IsNotFound(err))
	})
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "STAGEGEN_LOG__LEVEL", want: "log.level"},
		{in: "STAGEGEN_DATABASE__MAX_CONN_LIFETIME", want: "database.max_conn_lifetime"},
		{in: "STAGEGEN_GENERATOR__RESERVED__EXTRA", want: "generator.reserved.extra"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.in))
		})
	}
}

func TestFlagKey(t *testing.T) {
	key, ok := FlagKey("db-dsn")
	require.True(t, ok)
	assert.Equal(t, "database.dsn", key)

	_, ok = FlagKey("input-dir")
	assert.False(t, ok)
}
