package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Veraticus/ledger-must-balance/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabasePath(), cfg.Database.Path)
	assert.Equal(t, DefaultUserID, cfg.Ledger.UserID)
	assert.Equal(t, DefaultPageSize, cfg.Ledger.PageSize)
	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultGenerateSchedule, cfg.Server.GenerateSchedule)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	require.NotNil(t, cfg.Location)
	assert.Equal(t, DefaultTimezone, cfg.Location.String())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  path: $LEDGER_TEST_DIR/ledger.db
ledger:
  user_id: alice
  timezone: UTC
  page_size: 20
server:
  addr: 127.0.0.1:9000
  generate_schedule: "0 3 * * *"
logging:
  level: debug
  format: json
`), 0o600))
	t.Setenv("LEDGER_TEST_DIR", dir)

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.Database.Path)
	assert.Equal(t, "alice", cfg.Ledger.UserID)
	assert.Equal(t, 20, cfg.Ledger.PageSize)
	assert.Equal(t, "UTC", cfg.Location.String())
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		want  error
		name  string
		key   string
		value any
	}{
		{name: "blank user", key: "ledger.user_id", value: "  ", want: common.ErrMissingConfig},
		{name: "unknown timezone", key: "ledger.timezone", value: "Mars/Olympus", want: common.ErrInvalidConfig},
		{name: "zero page size", key: "ledger.page_size", value: 0, want: common.ErrInvalidConfig},
		{name: "bad schedule", key: "server.generate_schedule", value: "every tuesday", want: common.ErrInvalidConfig},
		{name: "bad level", key: "logging.level", value: "loud", want: common.ErrInvalidConfig},
		{name: "bad format", key: "logging.format", value: "xml", want: common.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("LEDGER_X", "/data")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "ledger.db"), ExpandPath("~/ledger.db"))
	assert.Equal(t, "/data/ledger.db", ExpandPath("$LEDGER_X/ledger.db"))
	assert.Equal(t, "/abs/path", ExpandPath("/abs/path"))
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "deeper")
	require.NoError(t, EnsureDir(filepath.Join(dir, "ledger.db")))
	assert.DirExists(t, dir)
	assert.NoError(t, EnsureDir(":memory:"))
}
