package domain

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"bank-records/internal/errors"
)

// AccountType is the persisted discriminator selecting the account variant.
type AccountType int

const (
	AccountTypeCurrent AccountType = 1
	AccountTypeSavings AccountType = 2
)

func (t AccountType) String() string {
	switch t {
	case AccountTypeCurrent:
		return "current"
	case AccountTypeSavings:
		return "savings"
	default:
		return "unknown"
	}
}

func (t AccountType) Valid() bool {
	return t == AccountTypeCurrent || t == AccountTypeSavings
}

// ParseAccountType accepts the variant name or its discriminator value.
func ParseAccountType(s string) (AccountType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "current":
		return AccountTypeCurrent, nil
	case "2", "savings":
		return AccountTypeSavings, nil
	}
	return 0, errors.NewAppErrorf(errors.InvalidInput, "unknown account type %q", s)
}

// Holder carries the personal fields that are encrypted at rest.
type Holder struct {
	Name         string `json:"name"`
	AddressLine1 string `json:"address_line_1,omitempty"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	AddressLine3 string `json:"address_line_3,omitempty"`
	Town         string `json:"town"`
}

// Terms holds the variant-specific attributes. Exactly one is valid for any
// account; the other stays null rather than zero.
type Terms struct {
	OverdraftLimit decimal.NullDecimal
	InterestRate   decimal.NullDecimal
}

// Account is the contract shared by every account variant.
type Account interface {
	AccountNumber() string
	Holder() Holder
	Balance() decimal.Decimal
	Type() AccountType
	Terms() Terms

	// Lodge credits amount. Callers validate that amount is positive.
	Lodge(amount decimal.Decimal)
	// Withdraw debits amount if the variant's rule permits it and reports
	// whether it did. A rejected withdrawal leaves the balance unchanged.
	Withdraw(amount decimal.Decimal) bool
	// WithdrawalRejection is the error reported when Withdraw returns false.
	WithdrawalRejection() error

	Clone() Account
}

type account struct {
	number  string
	holder  Holder
	balance decimal.Decimal
}

func (a *account) AccountNumber() string    { return a.number }
func (a *account) Holder() Holder           { return a.holder }
func (a *account) Balance() decimal.Decimal { return a.balance }

func (a *account) Lodge(amount decimal.Decimal) {
	a.balance = a.balance.Add(amount)
}

// debit subtracts amount when the resulting balance stays at or above floor.
func (a *account) debit(amount, floor decimal.Decimal) bool {
	next := a.balance.Sub(amount)
	if next.LessThan(floor) {
		return false
	}
	a.balance = next
	return true
}

// CurrentAccount may go overdrawn down to -OverdraftLimit.
type CurrentAccount struct {
	account
	overdraftLimit decimal.Decimal
}

func NewCurrentAccount(number string, holder Holder, balance, overdraftLimit decimal.Decimal) *CurrentAccount {
	return &CurrentAccount{
		account:        account{number: number, holder: holder, balance: balance},
		overdraftLimit: overdraftLimit,
	}
}

func (c *CurrentAccount) Type() AccountType { return AccountTypeCurrent }

func (c *CurrentAccount) OverdraftLimit() decimal.Decimal { return c.overdraftLimit }

func (c *CurrentAccount) Terms() Terms {
	return Terms{OverdraftLimit: decimal.NewNullDecimal(c.overdraftLimit)}
}

func (c *CurrentAccount) Withdraw(amount decimal.Decimal) bool {
	return c.debit(amount, c.overdraftLimit.Neg())
}

func (c *CurrentAccount) WithdrawalRejection() error {
	return errors.ErrOverdraftExceeded
}

func (c *CurrentAccount) Clone() Account {
	cp := *c
	return &cp
}

// SavingsAccount never goes below a zero balance.
type SavingsAccount struct {
	account
	interestRate decimal.Decimal
}

func NewSavingsAccount(number string, holder Holder, balance, interestRate decimal.Decimal) *SavingsAccount {
	return &SavingsAccount{
		account:      account{number: number, holder: holder, balance: balance},
		interestRate: interestRate,
	}
}

func (s *SavingsAccount) Type() AccountType { return AccountTypeSavings }

func (s *SavingsAccount) InterestRate() decimal.Decimal { return s.interestRate }

func (s *SavingsAccount) Terms() Terms {
	return Terms{InterestRate: decimal.NewNullDecimal(s.interestRate)}
}

func (s *SavingsAccount) Withdraw(amount decimal.Decimal) bool {
	return s.debit(amount, decimal.Zero)
}

func (s *SavingsAccount) WithdrawalRejection() error {
	return errors.ErrInsufficientFunds
}

func (s *SavingsAccount) Clone() Account {
	cp := *s
	return &cp
}

// New builds the variant selected by t. rate is the overdraft limit for
// current accounts and the interest rate for savings accounts.
func New(t AccountType, number string, holder Holder, balance, rate decimal.Decimal) (Account, error) {
	switch t {
	case AccountTypeCurrent:
		return NewCurrentAccount(number, holder, balance, rate), nil
	case AccountTypeSavings:
		return NewSavingsAccount(number, holder, balance, rate), nil
	}
	return nil, errors.NewAppErrorf(errors.InvalidInput, "unknown account type %d", int(t))
}

// AccountRepository is the record store contract consumed by the service layer.
type AccountRepository interface {
	LoadAll(ctx context.Context) error
	Add(ctx context.Context, account Account) (string, error)
	FindByAccountNumber(accountNumber string) (Account, bool)
	Accounts() []Account
	Close(ctx context.Context, accountNumber string) (Account, error)
	Lodge(ctx context.Context, accountNumber string, amount decimal.Decimal) (decimal.Decimal, error)
	Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (decimal.Decimal, error)
}

var (
	_ Account = (*CurrentAccount)(nil)
	_ Account = (*SavingsAccount)(nil)
)
