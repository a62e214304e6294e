package model

// Collection names a group of records held by the store.
type Collection string

// Tracked collections, in the fixed order used by snapshot import.
// Referenced collections come before the collections that reference them.
const (
	CollectionBankAccounts      Collection = "bank_accounts"
	CollectionCategories        Collection = "categories"
	CollectionVendors           Collection = "vendors"
	CollectionInitialBalance    Collection = "initial_balance"
	CollectionCashTransactions  Collection = "cash_transactions"
	CollectionBankTransactions  Collection = "bank_transactions"
	CollectionStockTransactions Collection = "stock_transactions"
)

// TrackedCollections lists every collection included in a snapshot.
func TrackedCollections() []Collection {
	return []Collection{
		CollectionBankAccounts,
		CollectionCategories,
		CollectionVendors,
		CollectionInitialBalance,
		CollectionCashTransactions,
		CollectionBankTransactions,
		CollectionStockTransactions,
	}
}

// IsTracked reports whether c is a snapshot collection.
func (c Collection) IsTracked() bool {
	for _, t := range TrackedCollections() {
		if t == c {
			return true
		}
	}
	return false
}

// SoftDeletable reports whether records in c carry a soft-delete timestamp.
func (c Collection) SoftDeletable() bool {
	switch c {
	case CollectionCashTransactions, CollectionBankTransactions, CollectionStockTransactions:
		return true
	default:
		return false
	}
}

// Scope selects which records a read returns.
type Scope int

const (
	// ScopeLive returns only records without a soft-delete timestamp.
	ScopeLive Scope = iota
	// ScopeAll returns live and soft-deleted records.
	ScopeAll
)
