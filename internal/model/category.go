package model

import "time"

// CategoryType indicates whether a category is for income, expense, or system use.
type CategoryType string

const (
	// CategoryTypeIncome represents categories for money coming in.
	CategoryTypeIncome CategoryType = "income"
	// CategoryTypeExpense represents categories for money going out.
	CategoryTypeExpense CategoryType = "expense"
	// CategoryTypeSystem represents categories managed by the ledger itself (e.g., transfers).
	CategoryTypeSystem CategoryType = "system"
)

// Valid reports whether t is a known category type.
func (t CategoryType) Valid() bool {
	switch t {
	case CategoryTypeIncome, CategoryTypeExpense, CategoryTypeSystem:
		return true
	default:
		return false
	}
}

// Names of categories seeded by the schema.
const (
	CategoryTransfer      = "Transfer"
	CategoryUncategorized = "Uncategorized"
)

// Category is one entry of the recognized category set.
type Category struct {
	CreatedAt   time.Time
	Name        string
	Description string
	Type        CategoryType
	ID          int
	IsActive    bool
}
