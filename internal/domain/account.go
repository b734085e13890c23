package domain

import (
	"fmt"
	"sort"
)

// AccountType classifies a ledger account.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// IsValid reports whether t is one of the known account types.
func (t AccountType) IsValid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether the account's balance grows with debits.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Chart of accounts codes referenced by posting rules.
const (
	AccountCash                 = "1000"
	AccountAccountsReceivable   = "1100"
	AccountRawMaterialInventory = "1200"
	AccountWorkInProcess        = "1300"
	AccountAccountsPayable      = "2000"
	AccountOwnersEquity         = "3000"
	AccountSalesRevenue         = "4000"
	AccountCostOfGoodsSold      = "5000"
)

// Account is an entry of the chart of accounts. Accounts are reference data
// and are never mutated by postings.
type Account struct {
	Code     string
	Name     string
	Type     AccountType
	IsActive bool
}

// DefaultChartOfAccounts returns the fixed chart used by the posting rules.
func DefaultChartOfAccounts() []Account {
	return []Account{
		{Code: AccountCash, Name: "Cash", Type: AccountTypeAsset, IsActive: true},
		{Code: AccountAccountsReceivable, Name: "Accounts Receivable", Type: AccountTypeAsset, IsActive: true},
		{Code: AccountRawMaterialInventory, Name: "Raw Material Inventory", Type: AccountTypeAsset, IsActive: true},
		{Code: AccountWorkInProcess, Name: "Work in Process", Type: AccountTypeAsset, IsActive: true},
		{Code: AccountAccountsPayable, Name: "Accounts Payable", Type: AccountTypeLiability, IsActive: true},
		{Code: AccountOwnersEquity, Name: "Owner's Equity", Type: AccountTypeEquity, IsActive: true},
		{Code: AccountSalesRevenue, Name: "Sales Revenue", Type: AccountTypeRevenue, IsActive: true},
		{Code: AccountCostOfGoodsSold, Name: "Cost of Goods Sold", Type: AccountTypeExpense, IsActive: true},
	}
}

// AccountRegistry resolves account codes. It is read-only once built.
type AccountRegistry struct {
	byCode map[string]Account
	codes  []string
}

// NewAccountRegistry builds a registry, rejecting duplicate or malformed accounts.
func NewAccountRegistry(accounts []Account) (*AccountRegistry, error) {
	reg := &AccountRegistry{byCode: make(map[string]Account, len(accounts))}

	for _, a := range accounts {
		if a.Code == "" {
			return nil, fmt.Errorf("account %q: empty code", a.Name)
		}
		if !a.Type.IsValid() {
			return nil, fmt.Errorf("account %s: unknown type %q", a.Code, a.Type)
		}
		if _, dup := reg.byCode[a.Code]; dup {
			return nil, fmt.Errorf("account %s: duplicate code", a.Code)
		}
		reg.byCode[a.Code] = a
		reg.codes = append(reg.codes, a.Code)
	}

	sort.Strings(reg.codes)

	return reg, nil
}

// MustDefaultRegistry returns a registry over DefaultChartOfAccounts.
func MustDefaultRegistry() *AccountRegistry {
	reg, err := NewAccountRegistry(DefaultChartOfAccounts())
	if err != nil {
		panic(err)
	}
	return reg
}

// Resolve looks up an account by code.
func (r *AccountRegistry) Resolve(code string) (*Account, error) {
	a, ok := r.byCode[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, code)
	}
	return &a, nil
}

// List returns all accounts ordered by code.
func (r *AccountRegistry) List() []Account {
	out := make([]Account, 0, len(r.codes))
	for _, code := range r.codes {
		out = append(out, r.byCode[code])
	}
	return out
}
