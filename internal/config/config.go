// Package config loads tally settings from a config file, the environment and
// command line flags.
package config

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/identity"
	"github.com/Veraticus/tally/internal/model"
	"github.com/Veraticus/tally/internal/snapshot"
)

// DefaultDatabasePath is used when database.path is not configured.
const DefaultDatabasePath = "$HOME/.local/share/tally/tally.db"

// DatabaseConfig locates the ledger database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// BackupConfig controls the backup archive.
type BackupConfig struct {
	Dir      string `mapstructure:"dir"`
	KeepAuto int    `mapstructure:"keep_auto"`
}

// ActorConfig names the person operating the ledger. An empty ID means the
// operating system user.
type ActorConfig struct {
	ID    string `mapstructure:"id"`
	Label string `mapstructure:"label"`
	Role  string `mapstructure:"role"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SnapshotConfig sets the default export encoding.
type SnapshotConfig struct {
	Format string `mapstructure:"format"`
}

// Settings is the complete application configuration.
type Settings struct {
	Database DatabaseConfig `mapstructure:"database"`
	Backups  BackupConfig   `mapstructure:"backups"`
	Actor    ActorConfig    `mapstructure:"actor"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("backups.dir", "")
	v.SetDefault("backups.keep_auto", snapshot.DefaultKeepAuto)
	v.SetDefault("actor.id", "")
	v.SetDefault("actor.label", "")
	v.SetDefault("actor.role", string(model.RoleAdmin))
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("snapshot.format", string(snapshot.FormatJSON))
}

// Load reads Settings from v, filling defaults, expanding paths and
// rejecting unknown enumeration values.
func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	s.Database.Path = ExpandPath(s.Database.Path)
	if s.Database.Path == "" {
		return nil, fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if s.Backups.Dir == "" {
		s.Backups.Dir = filepath.Join(filepath.Dir(s.Database.Path), "backups")
	}
	s.Backups.Dir = ExpandPath(s.Backups.Dir)
	if s.Backups.KeepAuto < 1 {
		s.Backups.KeepAuto = snapshot.DefaultKeepAuto
	}

	if _, err := identity.ParseRole(s.Actor.Role); err != nil {
		return nil, err
	}
	if _, err := common.ParseLevel(s.Logging.Level); err != nil {
		return nil, err
	}
	switch s.Logging.Format {
	case "console", "json":
	default:
		return nil, fmt.Errorf("%w: logging.format %q", common.ErrInvalidConfig, s.Logging.Format)
	}
	if _, err := snapshot.ParseFormat(s.Snapshot.Format); err != nil {
		return nil, err
	}

	slog.Debug("configuration loaded", "database", s.Database.Path, "backups", s.Backups.Dir)
	return &s, nil
}

// LogLevel is the parsed logging level.
func (s *Settings) LogLevel() slog.Level {
	level, _ := common.ParseLevel(s.Logging.Level)
	return level
}

// SnapshotFormat is the parsed default export format.
func (s *Settings) SnapshotFormat() snapshot.Format {
	format, _ := snapshot.ParseFormat(s.Snapshot.Format)
	return format
}

// Identity builds the identity provider for the configured actor, falling
// back to the operating system user when no actor id is set.
func (s *Settings) Identity() (*identity.Static, error) {
	role, err := identity.ParseRole(s.Actor.Role)
	if err != nil {
		return nil, err
	}
	if s.Actor.ID == "" {
		return identity.FromOS(role)
	}
	return identity.NewStatic(model.Actor{ID: s.Actor.ID, Label: s.Actor.Label, Role: role}), nil
}
