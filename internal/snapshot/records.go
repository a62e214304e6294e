package snapshot

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/model"
)

// dataset is a decoded document, checked and ready to be written.
type dataset struct {
	initial    *model.InitialBalance
	accounts   []model.BankAccount
	categories []model.Category
	vendors    []model.Vendor
	cash       []model.CashTransaction
	bank       []model.BankTransaction
	stock      []model.StockTransaction
}

func (d *dataset) size(collection model.Collection) int {
	switch collection {
	case model.CollectionBankAccounts:
		return len(d.accounts)
	case model.CollectionCategories:
		return len(d.categories)
	case model.CollectionVendors:
		return len(d.vendors)
	case model.CollectionInitialBalance:
		if d.initial == nil {
			return 0
		}
		return 1 + len(d.initial.Bank)
	case model.CollectionCashTransactions:
		return len(d.cash)
	case model.CollectionBankTransactions:
		return len(d.bank)
	case model.CollectionStockTransactions:
		return len(d.stock)
	default:
		return 0
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// Encoding

func encodeDataset(d *dataset) map[string][]Record {
	out := make(map[string][]Record, len(model.TrackedCollections()))
	for _, c := range model.TrackedCollections() {
		out[string(c)] = []Record{}
	}

	for _, a := range d.accounts {
		out[string(model.CollectionBankAccounts)] = append(out[string(model.CollectionBankAccounts)], Record{
			"id":         a.ID,
			"name":       a.Name,
			"created_at": formatTime(a.CreatedAt),
		})
	}
	for _, c := range d.categories {
		out[string(model.CollectionCategories)] = append(out[string(model.CollectionCategories)], Record{
			"id":          strconv.Itoa(c.ID),
			"name":        c.Name,
			"description": c.Description,
			"type":        string(c.Type),
			"is_active":   strconv.FormatBool(c.IsActive),
			"created_at":  formatTime(c.CreatedAt),
		})
	}
	for _, v := range d.vendors {
		out[string(model.CollectionVendors)] = append(out[string(model.CollectionVendors)], Record{
			"name":         v.Name,
			"category":     v.Category,
			"use_count":    strconv.Itoa(v.UseCount),
			"last_updated": formatTime(v.LastUpdated),
		})
	}
	if d.initial != nil {
		rows := []Record{{
			"pool":    "cash",
			"amount":  d.initial.Cash.String(),
			"set_at":  formatTime(d.initial.SetAt),
			"account": "",
		}}
		ids := make([]string, 0, len(d.initial.Bank))
		for id := range d.initial.Bank {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			rows = append(rows, Record{
				"pool":    "bank",
				"amount":  d.initial.Bank[id].String(),
				"set_at":  formatTime(d.initial.SetAt),
				"account": id,
			})
		}
		out[string(model.CollectionInitialBalance)] = rows
	}
	for _, t := range d.cash {
		out[string(model.CollectionCashTransactions)] = append(out[string(model.CollectionCashTransactions)], Record{
			"id":          t.ID,
			"date":        formatTime(t.Date),
			"amount":      t.Amount.String(),
			"direction":   string(t.Direction),
			"category":    t.Category,
			"description": t.Description,
			"vendor":      t.Vendor,
			"transfer_id": t.TransferID,
			"created_at":  formatTime(t.CreatedAt),
			"deleted_at":  formatOptionalTime(t.DeletedAt),
		})
	}
	for _, t := range d.bank {
		out[string(model.CollectionBankTransactions)] = append(out[string(model.CollectionBankTransactions)], Record{
			"id":              t.ID,
			"date":            formatTime(t.Date),
			"amount":          t.Amount.String(),
			"direction":       string(t.Direction),
			"bank_account_id": t.BankAccountID,
			"category":        t.Category,
			"description":     t.Description,
			"vendor":          t.Vendor,
			"transfer_id":     t.TransferID,
			"reference":       t.Reference,
			"created_at":      formatTime(t.CreatedAt),
			"deleted_at":      formatOptionalTime(t.DeletedAt),
		})
	}
	for _, t := range d.stock {
		out[string(model.CollectionStockTransactions)] = append(out[string(model.CollectionStockTransactions)], Record{
			"id":              t.ID,
			"date":            formatTime(t.Date),
			"item":            t.Item,
			"weight":          t.Weight.String(),
			"price":           t.Price.String(),
			"kind":            string(t.Kind),
			"payment":         string(t.Payment),
			"bank_account_id": t.BankAccountID,
			"vendor":          t.Vendor,
			"created_at":      formatTime(t.CreatedAt),
			"deleted_at":      formatOptionalTime(t.DeletedAt),
		})
	}
	return out
}

// Decoding

// fieldReader reads typed fields from one record, keeping the first problem.
type fieldReader struct {
	rec        Record
	err        *common.ImportValidationError
	collection model.Collection
	index      int
}

func (r *fieldReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = &common.ImportValidationError{
			Collection: string(r.collection),
			Index:      r.index,
			Reason:     fmt.Sprintf(format, args...),
		}
	}
}

func (r *fieldReader) text(name string) string {
	return r.rec[name]
}

func (r *fieldReader) required(name string) string {
	v := r.rec[name]
	if v == "" {
		r.fail("missing %s", name)
	}
	return v
}

func (r *fieldReader) positive(name string) decimal.Decimal {
	d := r.amount(name)
	if r.err == nil && !d.IsPositive() {
		r.fail("%s must be greater than zero, got %s", name, d.String())
	}
	return d
}

func (r *fieldReader) amount(name string) decimal.Decimal {
	raw := r.required(name)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		r.fail("%s is not a decimal: %q", name, raw)
	}
	return d
}

func (r *fieldReader) time(name string) time.Time {
	raw := r.required(name)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		r.fail("%s is not an RFC 3339 time: %q", name, raw)
	}
	return t.UTC()
}

func (r *fieldReader) optionalTime(name string) *time.Time {
	if r.rec[name] == "" {
		return nil
	}
	t := r.time(name)
	return &t
}

func (r *fieldReader) integer(name string) int {
	raw := r.rec[name]
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		r.fail("%s is not a non-negative integer: %q", name, raw)
	}
	return n
}

func (r *fieldReader) boolean(name string) bool {
	raw := r.rec[name]
	if raw == "" {
		return true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail("%s is not a boolean: %q", name, raw)
	}
	return b
}

// decodeDocument checks doc completely and converts it. Nothing is written.
func decodeDocument(doc *Document) (*dataset, error) {
	if doc == nil {
		return nil, &common.ImportValidationError{Index: -1, Reason: "empty document"}
	}
	if doc.Version == 0 {
		return nil, &common.ImportValidationError{Index: -1, Reason: "missing version"}
	}
	if doc.Version > DocumentVersion {
		return nil, &common.ImportValidationError{Index: -1, Reason: fmt.Sprintf("version %d is newer than supported version %d", doc.Version, DocumentVersion)}
	}
	for name := range doc.Collections {
		if !model.Collection(name).IsTracked() {
			return nil, &common.ImportValidationError{Collection: name, Index: -1, Reason: "unknown collection"}
		}
	}
	for _, c := range model.TrackedCollections() {
		if _, ok := doc.Collections[string(c)]; !ok {
			return nil, &common.ImportValidationError{Collection: string(c), Index: -1, Reason: "collection missing from snapshot; include it with an empty list to clear it"}
		}
	}

	d := &dataset{}
	var err error
	if d.accounts, err = decodeAccounts(doc.Collections[string(model.CollectionBankAccounts)]); err != nil {
		return nil, err
	}
	if d.categories, err = decodeCategories(doc.Collections[string(model.CollectionCategories)]); err != nil {
		return nil, err
	}
	if d.vendors, err = decodeVendors(doc.Collections[string(model.CollectionVendors)]); err != nil {
		return nil, err
	}
	if d.initial, err = decodeInitial(doc.Collections[string(model.CollectionInitialBalance)]); err != nil {
		return nil, err
	}
	if d.cash, err = decodeCash(doc.Collections[string(model.CollectionCashTransactions)]); err != nil {
		return nil, err
	}
	if d.bank, err = decodeBank(doc.Collections[string(model.CollectionBankTransactions)]); err != nil {
		return nil, err
	}
	if d.stock, err = decodeStock(doc.Collections[string(model.CollectionStockTransactions)]); err != nil {
		return nil, err
	}
	if err := d.checkReferences(); err != nil {
		return nil, err
	}
	return d, nil
}

// checkReferences rejects records that point at accounts or categories the
// snapshot does not contain, and transfers whose legs do not match.
func (d *dataset) checkReferences() error {
	accounts := make(map[string]bool, len(d.accounts))
	for _, a := range d.accounts {
		accounts[a.ID] = true
	}
	categories := make(map[string]bool, len(d.categories))
	for _, c := range d.categories {
		categories[c.Name] = true
	}

	for i, v := range d.vendors {
		if !categories[v.Category] {
			return &common.ImportValidationError{Collection: string(model.CollectionVendors), Index: i, Reason: fmt.Sprintf("unknown category %q", v.Category)}
		}
	}
	if d.initial != nil {
		for id := range d.initial.Bank {
			if !accounts[id] {
				return &common.ImportValidationError{Collection: string(model.CollectionInitialBalance), Index: -1, Reason: fmt.Sprintf("unknown bank account %q", id)}
			}
		}
	}
	for i, t := range d.cash {
		if !categories[t.Category] {
			return &common.ImportValidationError{Collection: string(model.CollectionCashTransactions), Index: i, Reason: fmt.Sprintf("unknown category %q", t.Category)}
		}
	}
	for i, t := range d.bank {
		if !accounts[t.BankAccountID] {
			return &common.ImportValidationError{Collection: string(model.CollectionBankTransactions), Index: i, Reason: fmt.Sprintf("unknown bank account %q", t.BankAccountID)}
		}
		if !categories[t.Category] {
			return &common.ImportValidationError{Collection: string(model.CollectionBankTransactions), Index: i, Reason: fmt.Sprintf("unknown category %q", t.Category)}
		}
	}
	for i, t := range d.stock {
		if t.Payment == model.PayBank && !accounts[t.BankAccountID] {
			return &common.ImportValidationError{Collection: string(model.CollectionStockTransactions), Index: i, Reason: fmt.Sprintf("unknown bank account %q", t.BankAccountID)}
		}
	}
	return d.checkTransfers()
}

// transferPair collects the legs sharing one transfer id.
type transferPair struct {
	cash     []int
	bank     []int
	firstLeg model.Collection
	first    int
}

// checkTransfers requires every transfer id to link one cash leg and one bank
// leg of equal amount moving in opposite directions, both live or both
// deleted. A lone cash leg is accepted only when deleted: that is what an
// undone transfer leaves behind, and it can never be restored.
func (d *dataset) checkTransfers() error {
	pairs := make(map[string]*transferPair)
	var order []string
	get := func(id string, c model.Collection, i int) *transferPair {
		p, ok := pairs[id]
		if !ok {
			p = &transferPair{firstLeg: c, first: i}
			pairs[id] = p
			order = append(order, id)
		}
		return p
	}
	for i, t := range d.cash {
		if t.TransferID != "" {
			p := get(t.TransferID, model.CollectionCashTransactions, i)
			p.cash = append(p.cash, i)
		}
	}
	for i, t := range d.bank {
		if t.TransferID != "" {
			p := get(t.TransferID, model.CollectionBankTransactions, i)
			p.bank = append(p.bank, i)
		}
	}

	for _, id := range order {
		p := pairs[id]
		fail := func(reason string) error {
			return &common.ImportValidationError{Collection: string(p.firstLeg), Index: p.first,
				Reason: fmt.Sprintf("transfer %q %s", id, reason)}
		}

		if len(p.cash) == 1 && len(p.bank) == 0 && !d.cash[p.cash[0]].Live() {
			continue
		}
		if len(p.cash) != 1 || len(p.bank) != 1 {
			return fail(fmt.Sprintf("has %d cash and %d bank legs, want one of each", len(p.cash), len(p.bank)))
		}

		cash, bank := d.cash[p.cash[0]], d.bank[p.bank[0]]
		if !cash.Amount.Equal(bank.Amount) {
			return fail(fmt.Sprintf("legs differ in amount: cash %s, bank %s", cash.Amount.String(), bank.Amount.String()))
		}
		opposite := (cash.Direction == model.CashExpense && bank.Direction == model.BankDeposit) ||
			(cash.Direction == model.CashIncome && bank.Direction == model.BankWithdrawal)
		if !opposite {
			return fail(fmt.Sprintf("legs move the same way: cash %s, bank %s", cash.Direction, bank.Direction))
		}
		if cash.Live() != bank.Live() {
			return fail("has one live and one deleted leg")
		}
	}
	return nil
}

// uniqueKeys tracks keys within one collection.
type uniqueKeys map[string]bool

func (u uniqueKeys) claim(r *fieldReader, key string) {
	if key == "" {
		return
	}
	if u[key] {
		r.fail("duplicate key %q", key)
		return
	}
	u[key] = true
}

func decodeAccounts(records []Record) ([]model.BankAccount, error) {
	out := make([]model.BankAccount, 0, len(records))
	seen, names := uniqueKeys{}, uniqueKeys{}
	for i, rec := range records {
		r := &fieldReader{rec: rec, collection: model.CollectionBankAccounts, index: i}
		a := model.BankAccount{
			ID:        r.required("id"),
			Name:      r.required("name"),
			CreatedAt: r.time("created_at"),
		}
		seen.claim(r, a.ID)
		names.claim(r, a.Name)
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, a)
	}
	return out, nil
}

func decodeCategories(records []Record) ([]model.Category, error) {
	out := make([]model.Category, 0, len(records))
	ids, names := uniqueKeys{}, uniqueKeys{}
	for i, rec := range records {
		r := &fieldReader{rec: rec, collection: model.CollectionCategories, index: i}
		c := model.Category{
			ID:          r.integer("id"),
			Name:        r.required("name"),
			Description: r.text("description"),
			Type:        model.CategoryType(r.required("type")),
			IsActive:    r.boolean("is_active"),
			CreatedAt:   r.time("created_at"),
		}
		if r.err == nil && !c.Type.Valid() {
			r.fail("unknown category type %q", c.Type)
		}
		if c.ID > 0 {
			ids.claim(r, strconv.Itoa(c.ID))
		}
		names.claim(r, c.Name)
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeVendors(records []Record) ([]model.Vendor, error) {
	out := make([]model.Vendor, 0, len(records))
	names := uniqueKeys{}
	for i, rec := range records {
		r := &fieldReader{rec: rec, collection: model.CollectionVendors, index: i}
		v := model.Vendor{
			Name:        r.required("name"),
			Category:    r.required("category"),
			UseCount:    r.integer("use_count"),
			LastUpdated: r.time("last_updated"),
		}
		names.claim(r, v.Name)
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeInitial(records []Record) (*model.InitialBalance, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var initial *model.InitialBalance
	bank := map[string]decimal.Decimal{}
	var setAt time.Time
	for i, rec := range records {
		r := &fieldReader{rec: rec, collection: model.CollectionInitialBalance, index: i}
		pool := r.required("pool")
		amount := r.amount("amount")
		at := r.time("set_at")
		if r.err == nil && amount.IsNegative() {
			r.fail("amount cannot be negative, got %s", amount.String())
		}
		switch {
		case r.err != nil:
		case pool == "cash":
			if initial != nil {
				r.fail("more than one cash row")
				break
			}
			initial = &model.InitialBalance{Cash: amount, SetAt: at}
		case pool == "bank":
			id := r.required("account")
			if _, dup := bank[id]; dup && r.err == nil {
				r.fail("duplicate opening balance for account %q", id)
			}
			bank[id] = amount
		default:
			r.fail("unknown pool %q", pool)
		}
		if r.err != nil {
			return nil, r.err
		}
		if setAt.IsZero() || at.Before(setAt) {
			setAt = at
		}
	}
	if initial == nil {
		return nil, &common.ImportValidationError{Collection: string(model.CollectionInitialBalance), Index: -1, Reason: "bank rows without a cash row"}
	}
	initial.Bank = bank
	initial.SetAt = setAt
	return initial, nil
}

func decodeCash(records []Record) ([]model.CashTransaction, error) {
	out := make([]model.CashTransaction, 0, len(records))
	ids := uniqueKeys{}
	for i, rec := range records {
		r := &fieldReader{rec: rec, collection: model.CollectionCashTransactions, index: i}
		t := model.CashTransaction{
			ID:          r.required("id"),
			Date:        r.time("date"),
			Amount:      r.positive("amount"),
			Direction:   model.CashDirection(r.required("direction")),
			Category:    r.required("category"),
			Description: r.text("description"),
			Vendor:      r.text("vendor"),
			TransferID:  r.text("transfer_id"),
			CreatedAt:   r.time("created_at"),
			DeletedAt:   r.optionalTime("deleted_at"),
		}
		if r.err == nil && !t.Direction.Valid() {
			r.fail("unknown direction %q", t.Direction)
		}
		ids.claim(r, t.ID)
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeBank(records []Record) ([]model.BankTransaction, error) {
	out := make([]model.BankTransaction, 0, len(records))
	ids := uniqueKeys{}
	for i, rec := range records {
		r := &fieldReader{rec: rec, collection: model.CollectionBankTransactions, index: i}
		t := model.BankTransaction{
			ID:            r.required("id"),
			Date:          r.time("date"),
			Amount:        r.positive("amount"),
			Direction:     model.BankDirection(r.required("direction")),
			BankAccountID: r.required("bank_account_id"),
			Category:      r.required("category"),
			Description:   r.text("description"),
			Vendor:        r.text("vendor"),
			TransferID:    r.text("transfer_id"),
			Reference:     r.text("reference"),
			CreatedAt:     r.time("created_at"),
			DeletedAt:     r.optionalTime("deleted_at"),
		}
		if r.err == nil && !t.Direction.Valid() {
			r.fail("unknown direction %q", t.Direction)
		}
		ids.claim(r, t.ID)
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, t)
	}
	return out, nil
}

func decodeStock(records []Record) ([]model.StockTransaction, error) {
	out := make([]model.StockTransaction, 0, len(records))
	ids := uniqueKeys{}
	for i, rec := range records {
		r := &fieldReader{rec: rec, collection: model.CollectionStockTransactions, index: i}
		t := model.StockTransaction{
			ID:            r.required("id"),
			Date:          r.time("date"),
			Item:          r.required("item"),
			Weight:        r.positive("weight"),
			Price:         r.positive("price"),
			Kind:          model.StockKind(r.required("kind")),
			Payment:       model.PaymentMethod(r.required("payment")),
			BankAccountID: r.text("bank_account_id"),
			Vendor:        r.text("vendor"),
			CreatedAt:     r.time("created_at"),
			DeletedAt:     r.optionalTime("deleted_at"),
		}
		switch {
		case r.err != nil:
		case !t.Kind.Valid():
			r.fail("unknown kind %q", t.Kind)
		case !t.Payment.Valid():
			r.fail("unknown payment %q", t.Payment)
		case t.Payment == model.PayBank && t.BankAccountID == "":
			r.fail("bank payment without bank_account_id")
		case t.Payment == model.PayCash && t.BankAccountID != "":
			r.fail("cash payment with bank_account_id")
		}
		ids.claim(r, t.ID)
		if r.err != nil {
			return nil, r.err
		}
		out = append(out, t)
	}
	return out, nil
}
