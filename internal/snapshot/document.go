// Package snapshot exports and imports the full contents of a ledger.
//
// A Document groups every record of every tracked collection, live and
// soft-deleted, as flat string maps. Decimals are written as strings and
// times as RFC 3339 with nanoseconds, so a document survives both JSON and
// YAML without loss.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/tally/internal/common"
)

// DocumentVersion is the document layout written by this package.
const DocumentVersion = 1

// Record is one stored record as field name to value.
type Record map[string]string

// Document is a full, collection-grouped copy of a ledger.
type Document struct {
	ExportedAt  time.Time           `json:"exported_at" yaml:"exported_at"`
	Collections map[string][]Record `json:"collections" yaml:"collections"`
	Version     int                 `json:"version" yaml:"version"`
}

// Count returns the number of records per collection.
func (d *Document) Count() map[string]int {
	counts := make(map[string]int, len(d.Collections))
	for name, records := range d.Collections {
		counts[name] = len(records)
	}
	return counts
}

// Format is a document encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unknown snapshot format %q", common.ErrInvalidConfig, s)
	}
}

// FormatForPath picks the format from a file extension, defaulting to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Encode writes doc to w.
func Encode(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode snapshot: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown snapshot format %q", common.ErrInvalidConfig, format)
	}
}

// Decode reads a document from r. A document that cannot be parsed is reported
// as an ImportValidationError.
func Decode(r io.Reader, format Format) (*Document, error) {
	var doc Document
	var err error
	switch format {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&doc)
	case FormatJSON, "":
		err = json.NewDecoder(r).Decode(&doc)
	default:
		return nil, fmt.Errorf("%w: unknown snapshot format %q", common.ErrInvalidConfig, format)
	}
	if err != nil {
		return nil, &common.ImportValidationError{Index: -1, Reason: fmt.Sprintf("cannot parse %s document: %v", format, err)}
	}
	return &doc, nil
}
