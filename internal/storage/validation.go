// Package storage provides the SQLite record store for the ledger.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/tally/internal/model"
)

// Validation errors.
var (
	ErrNilContext        = errors.New("context cannot be nil")
	ErrEmptyString       = errors.New("string parameter cannot be empty")
	ErrNilParameter      = errors.New("parameter cannot be nil")
	ErrInvalidRecord     = errors.New("invalid record")
	ErrInvalidVendor     = errors.New("invalid vendor")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrNotSoftDeletable  = errors.New("collection does not support soft delete")
	ErrInvalidDateRange  = errors.New("start date must be before end date")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRecordID ensures a record about to be written carries an id and a creation time.
func validateRecordID(kind, id string, createdAtZero bool) error {
	if id == "" {
		return fmt.Errorf("%w: %s missing ID", ErrInvalidRecord, kind)
	}
	if createdAtZero {
		return fmt.Errorf("%w: %s %s missing created_at", ErrInvalidRecord, kind, id)
	}
	return nil
}

// validateVendor validates a vendor.
func validateVendor(vendor *model.Vendor) error {
	if vendor == nil {
		return fmt.Errorf("%w: vendor", ErrNilParameter)
	}
	if strings.TrimSpace(vendor.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidVendor)
	}
	if strings.TrimSpace(vendor.Category) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidVendor)
	}
	return nil
}

// softDeleteTable maps a soft-deletable collection to its table.
func softDeleteTable(collection model.Collection) (string, error) {
	if !collection.IsTracked() {
		return "", fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	if !collection.SoftDeletable() {
		return "", fmt.Errorf("%w: %s", ErrNotSoftDeletable, collection)
	}
	return string(collection), nil
}
