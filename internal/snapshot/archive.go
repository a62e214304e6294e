package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Archive errors.
var (
	ErrBackupNotFound = errors.New("backup not found")
	ErrBackupExists   = errors.New("backup already exists")
	ErrInvalidTag     = errors.New("invalid backup tag")
)

// DefaultKeepAuto is how many automatic backups are kept by default.
const DefaultKeepAuto = 5

// BackupMetadata describes one stored backup.
type BackupMetadata struct {
	CreatedAt   time.Time      `json:"created_at"`
	RowCounts   map[string]int `json:"row_counts"`
	ID          string         `json:"id"`
	Description string         `json:"description"`
	FileSize    int64          `json:"file_size"`
	Version     int            `json:"version"`
	IsAuto      bool           `json:"is_auto"`
}

// Archive keeps named backups in a directory, each as <tag>.json with a
// <tag>.meta.json next to it.
type Archive struct {
	now      func() time.Time
	dir      string
	keepAuto int
}

// NewArchive creates the backup directory if needed. keepAuto below one falls
// back to DefaultKeepAuto.
func NewArchive(dir string, keepAuto int) (*Archive, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create backups directory: %w", err)
	}
	if keepAuto < 1 {
		keepAuto = DefaultKeepAuto
	}
	return &Archive{dir: dir, keepAuto: keepAuto, now: time.Now}, nil
}

// Dir returns the backup directory.
func (a *Archive) Dir() string {
	return a.dir
}

func validateTag(tag string) error {
	if tag == "" || strings.ContainsAny(tag, `/\`) || strings.Contains(tag, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	return nil
}

func (a *Archive) paths(tag string) (string, string) {
	return filepath.Join(a.dir, tag+".json"), filepath.Join(a.dir, tag+".meta.json")
}

// Create stores doc under tag. An empty tag is generated from the time.
func (a *Archive) Create(ctx context.Context, tag, description string, doc *Document) (*BackupMetadata, error) {
	return a.create(ctx, tag, description, doc, false)
}

func (a *Archive) create(_ context.Context, tag, description string, doc *Document, auto bool) (*BackupMetadata, error) {
	if tag == "" {
		tag = "backup-" + a.now().UTC().Format("2006-01-02-150405")
	}
	if err := validateTag(tag); err != nil {
		return nil, err
	}

	docPath, metaPath := a.paths(tag)
	if _, err := os.Stat(docPath); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackupExists, tag)
	}

	if err := writeAtomic(docPath, func(f *os.File) error {
		return Encode(f, doc, FormatJSON)
	}); err != nil {
		return nil, fmt.Errorf("failed to write backup: %w", err)
	}

	info, err := os.Stat(docPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}

	metadata := BackupMetadata{
		ID:          tag,
		CreatedAt:   a.now().UTC(),
		Description: description,
		FileSize:    info.Size(),
		RowCounts:   doc.Count(),
		Version:     doc.Version,
		IsAuto:      auto,
	}
	if err := writeAtomic(metaPath, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(metadata)
	}); err != nil {
		if rmErr := os.Remove(docPath); rmErr != nil {
			slog.Error("failed to remove backup file after metadata save failure", "error", rmErr)
		}
		return nil, fmt.Errorf("failed to save metadata: %w", err)
	}

	slog.Info("backup created", "id", tag, "size", metadata.FileSize, "auto", auto)
	return &metadata, nil
}

// List returns every backup, newest first. Unreadable metadata is skipped.
func (a *Archive) List(_ context.Context) ([]BackupMetadata, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backups directory: %w", err)
	}

	backups := make([]BackupMetadata, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		metadata, err := loadMetadata(filepath.Join(a.dir, entry.Name()))
		if err != nil {
			slog.Debug("skipping unreadable backup metadata", "file", entry.Name(), "error", err)
			continue
		}
		backups = append(backups, *metadata)
	}

	sort.SliceStable(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].ID > backups[j].ID
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Load reads the document stored under tag.
func (a *Archive) Load(_ context.Context, tag string) (*Document, error) {
	if err := validateTag(tag); err != nil {
		return nil, err
	}
	docPath, _ := a.paths(tag)

	// #nosec G304 - tag is validated above
	f, err := os.Open(docPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, tag)
		}
		return nil, fmt.Errorf("failed to open backup: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f, FormatJSON)
}

// Delete removes a backup.
func (a *Archive) Delete(_ context.Context, tag string) error {
	if err := validateTag(tag); err != nil {
		return err
	}
	docPath, metaPath := a.paths(tag)

	if err := os.Remove(docPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrBackupNotFound, tag)
		}
		return fmt.Errorf("failed to remove backup file: %w", err)
	}
	if err := os.Remove(metaPath); err != nil {
		slog.Debug("failed to remove metadata file", "error", err, "path", metaPath)
	}
	return nil
}

// AutoBackup stores doc as an automatic backup and prunes automatic backups
// beyond the newest keepAuto.
func (a *Archive) AutoBackup(ctx context.Context, reason string, doc *Document) (*BackupMetadata, error) {
	tag := fmt.Sprintf("auto-%s-%s", reason, a.now().UTC().Format("20060102-150405.000000000"))
	metadata, err := a.create(ctx, tag, "Automatic backup before "+reason, doc, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create automatic backup: %w", err)
	}

	if err := a.pruneAuto(ctx); err != nil {
		slog.Warn("failed to clean up old automatic backups", "error", err)
	}
	return metadata, nil
}

func (a *Archive) pruneAuto(ctx context.Context) error {
	backups, err := a.List(ctx)
	if err != nil {
		return err
	}

	kept := 0
	for _, b := range backups {
		if !b.IsAuto {
			continue
		}
		kept++
		if kept > a.keepAuto {
			if err := a.Delete(ctx, b.ID); err != nil {
				slog.Debug("failed to delete old automatic backup", "error", err, "backup", b.ID)
			}
		}
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	// #nosec G304 - path is built from a validated tag
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		if rmErr := os.Remove(tmp); rmErr != nil {
			slog.Error("failed to remove temporary file after write error", "error", rmErr)
		}
		return err
	}
	if err := f.Close(); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			slog.Error("failed to remove temporary file after close error", "error", rmErr)
		}
		return err
	}
	return os.Rename(tmp, path)
}

func loadMetadata(path string) (*BackupMetadata, error) {
	// #nosec G304 - path comes from the backups directory listing
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var metadata BackupMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// SetClock overrides the time source used for tags and metadata.
func (a *Archive) SetClock(now func() time.Time) {
	a.now = now
}
