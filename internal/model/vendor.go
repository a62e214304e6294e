package model

import "time"

// Vendor is a known counterparty with the category its transactions usually fall in.
type Vendor struct {
	LastUpdated time.Time
	Name        string
	Category    string
	UseCount    int
}
