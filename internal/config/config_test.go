package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/snapshot"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", "/home/amira")

	s, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "/home/amira/.local/share/tally/tally.db", s.Database.Path)
	assert.Equal(t, "/home/amira/.local/share/tally/backups", s.Backups.Dir)
	assert.Equal(t, snapshot.DefaultKeepAuto, s.Backups.KeepAuto)
	assert.Equal(t, "admin", s.Actor.Role)
	assert.Equal(t, snapshot.FormatJSON, s.SnapshotFormat())
	assert.Equal(t, "console", s.Logging.Format)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `database:
  path: ` + filepath.Join(dir, "books.db") + `
backups:
  dir: ` + filepath.Join(dir, "archive") + `
  keep_auto: 9
actor:
  id: amira
  label: Amira H.
  role: clerk
logging:
  level: debug
  format: json
snapshot:
  format: yaml
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "books.db"), s.Database.Path)
	assert.Equal(t, filepath.Join(dir, "archive"), s.Backups.Dir)
	assert.Equal(t, 9, s.Backups.KeepAuto)
	assert.Equal(t, snapshot.FormatYAML, s.SnapshotFormat())
	assert.Equal(t, "DEBUG", s.LogLevel().String())

	provider, err := s.Identity()
	require.NoError(t, err)
	actor, err := provider.CurrentActor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.Actor{ID: "amira", Label: "Amira H.", Role: model.RoleClerk}, actor)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TALLY_ACTOR_ROLE", "clerk")
	t.Setenv("TALLY_BACKUPS_KEEP_AUTO", "2")

	v := viper.New()
	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "clerk", s.Actor.Role)
	assert.Equal(t, 2, s.Backups.KeepAuto)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "actor.role", value: "owner"},
		{key: "logging.level", value: "loud"},
		{key: "logging.format", value: "xml"},
		{key: "snapshot.format", value: "csv"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			require.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestKeepAutoFallsBack(t *testing.T) {
	v := viper.New()
	v.Set("backups.keep_auto", 0)
	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, snapshot.DefaultKeepAuto, s.Backups.KeepAuto)
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/amira")
	t.Setenv("LEDGER_DIR", "/srv/ledger")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, "/home/amira", ExpandPath("~"))
	assert.Equal(t, "/home/amira/books.db", ExpandPath("~/books.db"))
	assert.Equal(t, "/srv/ledger/books.db", ExpandPath("$LEDGER_DIR/books.db"))
	assert.Equal(t, "relative/books.db", ExpandPath("relative/books.db"))
}
