package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"bank-records/internal/cipher"
	"bank-records/internal/domain"
	"bank-records/internal/errors"
)

// accountRow is the durable shape of an account. Personal columns hold
// ciphertext; balance and the variant columns are stored in the clear.
type accountRow struct {
	AccountNumber   string
	Name            string
	AddressLine1    sql.NullString
	AddressLine2    sql.NullString
	AddressLine3    sql.NullString
	Town            string
	Balance         float64
	AccountType     int
	OverdraftAmount sql.NullFloat64
	InterestRate    sql.NullFloat64
}

func encodeAccount(acc domain.Account, c cipher.Cipher) accountRow {
	h := acc.Holder()
	terms := acc.Terms()
	return accountRow{
		AccountNumber:   acc.AccountNumber(),
		Name:            c.Encrypt(h.Name),
		AddressLine1:    nullString(c.Encrypt(h.AddressLine1)),
		AddressLine2:    nullString(c.Encrypt(h.AddressLine2)),
		AddressLine3:    nullString(c.Encrypt(h.AddressLine3)),
		Town:            c.Encrypt(h.Town),
		Balance:         acc.Balance().InexactFloat64(),
		AccountType:     int(acc.Type()),
		OverdraftAmount: nullFloat(terms.OverdraftLimit),
		InterestRate:    nullFloat(terms.InterestRate),
	}
}

func (row accountRow) decode(c cipher.Cipher) (domain.Account, error) {
	holder := domain.Holder{
		Name:         c.Decrypt(row.Name),
		AddressLine1: c.Decrypt(row.AddressLine1.String),
		AddressLine2: c.Decrypt(row.AddressLine2.String),
		AddressLine3: c.Decrypt(row.AddressLine3.String),
		Town:         c.Decrypt(row.Town),
	}

	// A null variant column reads as zero.
	var rate float64
	switch domain.AccountType(row.AccountType) {
	case domain.AccountTypeCurrent:
		rate = row.OverdraftAmount.Float64
	case domain.AccountTypeSavings:
		rate = row.InterestRate.Float64
	}

	return domain.New(
		domain.AccountType(row.AccountType),
		row.AccountNumber,
		holder,
		decimal.NewFromFloat(row.Balance),
		decimal.NewFromFloat(rate),
	)
}

// durableCopy returns acc as LoadAll would read it back: the balance and the
// variant column take one trip through their float columns.
func durableCopy(acc domain.Account) (domain.Account, error) {
	return encodeAccount(acc, cipher.Nop{}).decode(cipher.Nop{})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(d decimal.NullDecimal) sql.NullFloat64 {
	if !d.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: d.Decimal.InexactFloat64(), Valid: true}
}

type accountRepository struct {
	db      SQLExecutor
	dialect Dialect
	cipher  cipher.Cipher
	logger  *slog.Logger
}

func newAccountRepository(db SQLExecutor, dialect Dialect, c cipher.Cipher, logger *slog.Logger) *accountRepository {
	return &accountRepository{
		db:      db,
		dialect: dialect,
		cipher:  c,
		logger:  logger,
	}
}

func (r *accountRepository) CreateTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.dialect.CreateTableSQL()); err != nil {
		r.logger.Error("Failed to create accounts table", "error", err)
		return errors.NewStorageFailure("create accounts table", err)
	}
	return nil
}

func (r *accountRepository) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	query := `
		SELECT accountNumber, name, address_line_1, address_line_2, address_line_3,
		       town, balance, accountType, overdraftAmount, interestRate
		FROM ` + accountsTable

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query accounts", "error", err)
		return nil, errors.NewStorageFailure("query accounts", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var row accountRow
		if err := rows.Scan(
			&row.AccountNumber,
			&row.Name,
			&row.AddressLine1,
			&row.AddressLine2,
			&row.AddressLine3,
			&row.Town,
			&row.Balance,
			&row.AccountType,
			&row.OverdraftAmount,
			&row.InterestRate,
		); err != nil {
			r.logger.Error("Failed to scan account row", "error", err)
			return nil, errors.NewStorageFailure("scan account row", err)
		}

		acc, err := row.decode(r.cipher)
		if err != nil {
			r.logger.Error("Failed to decode account row", "account_number", row.AccountNumber, "account_type", row.AccountType)
			return nil, errors.NewStorageFailure("decode account row", fmt.Errorf("account %s: %w", row.AccountNumber, err))
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailure("iterate account rows", err)
	}

	return accounts, nil
}

func (r *accountRepository) InsertAccount(ctx context.Context, acc domain.Account) error {
	query := r.dialect.Rebind(`
		INSERT INTO ` + accountsTable + ` (accountNumber, name, address_line_1, address_line_2, address_line_3,
			town, balance, accountType, overdraftAmount, interestRate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	row := encodeAccount(acc, r.cipher)
	_, err := r.db.ExecContext(ctx, query,
		row.AccountNumber,
		row.Name,
		row.AddressLine1,
		row.AddressLine2,
		row.AddressLine3,
		row.Town,
		row.Balance,
		row.AccountType,
		row.OverdraftAmount,
		row.InterestRate,
	)
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			r.logger.Warn("Duplicate account creation attempt", "account_number", acc.AccountNumber())
			return errors.ErrDuplicateAccount.WithDetails(acc.AccountNumber())
		}
		r.logger.Error("Failed to insert account", "account_number", acc.AccountNumber(), "error", err)
		return errors.NewStorageFailure("insert account", err)
	}

	return nil
}

func (r *accountRepository) DeleteAccount(ctx context.Context, accountNumber string) error {
	query := r.dialect.Rebind(`DELETE FROM ` + accountsTable + ` WHERE accountNumber = ?`)

	result, err := r.db.ExecContext(ctx, query, accountNumber)
	if err != nil {
		r.logger.Error("Failed to delete account", "account_number", accountNumber, "error", err)
		return errors.NewStorageFailure("delete account", err)
	}
	return r.expectOneRow(result, accountNumber)
}

func (r *accountRepository) UpdateAccountBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal) error {
	query := r.dialect.Rebind(`UPDATE ` + accountsTable + ` SET balance = ? WHERE accountNumber = ?`)

	result, err := r.db.ExecContext(ctx, query, newBalance.InexactFloat64(), accountNumber)
	if err != nil {
		r.logger.Error("Failed to update account balance", "account_number", accountNumber, "error", err)
		return errors.NewStorageFailure("update account balance", err)
	}
	return r.expectOneRow(result, accountNumber)
}

// expectOneRow turns a write that matched no row into ErrStoreInconsistent:
// the in-memory mirror holds an account the durable table does not.
func (r *accountRepository) expectOneRow(result sql.Result, accountNumber string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStorageFailure("get rows affected", err)
	}
	if rowsAffected == 0 {
		r.logger.Warn("No durable row for cached account", "account_number", accountNumber)
		return errors.ErrStoreInconsistent.WithDetails(accountNumber)
	}
	return nil
}
