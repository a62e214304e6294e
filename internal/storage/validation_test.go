package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Veraticus/tally/internal/model"
)

func TestValidateContext(t *testing.T) {
	tests := []struct {
		ctx     context.Context
		name    string
		wantErr bool
	}{
		{
			name:    "valid context",
			ctx:     context.Background(),
			wantErr: false,
		},
		{
			name:    "nil context",
			ctx:     nil,
			wantErr: true,
		},
		{
			name: "canceled context still valid",
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			}(),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateContext(tt.ctx)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateContext() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateString(t *testing.T) {
	tests := []struct {
		name      string
		str       string
		paramName string
		wantErr   bool
	}{
		{
			name:      "valid string",
			str:       "test",
			paramName: "param",
			wantErr:   false,
		},
		{
			name:      "empty string",
			str:       "",
			paramName: "param",
			wantErr:   true,
		},
		{
			name:      "whitespace only",
			str:       "   ",
			paramName: "param",
			wantErr:   true,
		},
		{
			name:      "string with spaces",
			str:       "  test  ",
			paramName: "param",
			wantErr:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateString(tt.str, tt.paramName)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.paramName) {
				t.Errorf("validateString() error should contain param name %s, got %v", tt.paramName, err)
			}
		})
	}
}

func TestValidateVendor(t *testing.T) {
	tests := []struct {
		vendor  *model.Vendor
		name    string
		errMsg  string
		wantErr bool
	}{
		{
			name: "valid vendor",
			vendor: &model.Vendor{
				Name:     "Test Vendor",
				Category: "Food",
			},
			wantErr: false,
		},
		{
			name:    "nil vendor",
			vendor:  nil,
			wantErr: true,
			errMsg:  "vendor",
		},
		{
			name: "missing name",
			vendor: &model.Vendor{
				Category: "Food",
			},
			wantErr: true,
			errMsg:  "missing name",
		},
		{
			name: "missing category",
			vendor: &model.Vendor{
				Name: "Test Vendor",
			},
			wantErr: true,
			errMsg:  "missing category",
		},
		{
			name: "whitespace name",
			vendor: &model.Vendor{
				Name:     "   ",
				Category: "Food",
			},
			wantErr: true,
			errMsg:  "missing name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateVendor(tt.vendor)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateVendor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("validateVendor() error should contain %s, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestValidateRecordID(t *testing.T) {
	tests := []struct {
		name          string
		id            string
		errMsg        string
		createdAtZero bool
		wantErr       bool
	}{
		{name: "valid record", id: "abc"},
		{name: "missing id", id: "", wantErr: true, errMsg: "missing ID"},
		{name: "missing created_at", id: "abc", createdAtZero: true, wantErr: true, errMsg: "missing created_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRecordID("cash transaction", tt.id, tt.createdAtZero)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateRecordID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("validateRecordID() error should contain %s, got %v", tt.errMsg, err)
			}
		})
	}
}

func TestSoftDeleteTable(t *testing.T) {
	tests := []struct {
		wantErr    error
		name       string
		collection model.Collection
		want       string
	}{
		{name: "cash", collection: model.CollectionCashTransactions, want: "cash_transactions"},
		{name: "bank", collection: model.CollectionBankTransactions, want: "bank_transactions"},
		{name: "stock", collection: model.CollectionStockTransactions, want: "stock_transactions"},
		{name: "vendors keep no deletion stamp", collection: model.CollectionVendors, wantErr: ErrNotSoftDeletable},
		{name: "unknown", collection: model.Collection("activity_log"), wantErr: ErrUnknownCollection},
		{name: "injection attempt", collection: model.Collection("cash_transactions; DROP TABLE vendors"), wantErr: ErrUnknownCollection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := softDeleteTable(tt.collection)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("softDeleteTable() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("softDeleteTable() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("softDeleteTable() = %q, want %q", got, tt.want)
			}
		})
	}
}
