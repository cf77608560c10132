package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"bank-records/internal/cipher"
	"bank-records/internal/domain"
	"bank-records/internal/errors"
)

// Store is the record store: an in-memory mirror of every account, backed by
// the durable accounts table. Reads are served from the mirror. Each mutation
// is written durably inside a transaction first and reaches the mirror only
// after commit, so the two never disagree once a call returns.
type Store struct {
	db      DB
	dialect Dialect
	cipher  cipher.Cipher
	logger  *slog.Logger

	mu       sync.Mutex
	accounts map[string]domain.Account
}

// NewStore creates a new Store instance. The mirror stays empty until LoadAll.
func NewStore(db DB, dialect Dialect, c cipher.Cipher, logger *slog.Logger) *Store {
	if c == nil {
		c = cipher.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:       db,
		dialect:  dialect,
		cipher:   c,
		logger:   logger,
		accounts: make(map[string]domain.Account),
	}
}

func (s *Store) repo(exec SQLExecutor) *accountRepository {
	return newAccountRepository(exec, s.dialect, s.cipher, s.logger)
}

// withTransaction executes fn within a database transaction
func (s *Store) withTransaction(ctx context.Context, fn func(*accountRepository) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("Failed to begin transaction", "error", err)
		return errors.NewStorageFailure("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(s.repo(&TxWrapper{Tx: tx})); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("Failed to commit transaction", "error", err)
		return errors.NewStorageFailure("commit transaction", err)
	}
	return nil
}

// LoadAll clears the mirror and repopulates it from the durable table,
// creating the table first if it does not exist yet.
func (s *Store) LoadAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts = make(map[string]domain.Account)

	repo := s.repo(s.db)
	if err := repo.CreateTable(ctx); err != nil {
		return err
	}

	accounts, err := repo.ListAccounts(ctx)
	if err != nil {
		return err
	}
	for _, acc := range accounts {
		s.accounts[acc.AccountNumber()] = acc
	}

	s.logger.Info("Accounts loaded", "count", len(s.accounts), "dialect", s.dialect.Name())
	return nil
}

// Add persists a new account and returns its account number.
func (s *Store) Add(ctx context.Context, acc domain.Account) (string, error) {
	if acc == nil || acc.AccountNumber() == "" {
		return "", errors.NewAppError(errors.InvalidInput, "account number is required")
	}
	number := acc.AccountNumber()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[number]; exists {
		s.logger.Warn("Duplicate account creation attempt", "account_number", number)
		return "", errors.ErrDuplicateAccount.WithDetails(number)
	}

	mirrored, err := durableCopy(acc)
	if err != nil {
		return "", err
	}

	err = s.withTransaction(ctx, func(repo *accountRepository) error {
		return repo.InsertAccount(ctx, mirrored)
	})
	if err != nil {
		return "", err
	}

	s.accounts[number] = mirrored
	s.logger.Info("Account created successfully", "account_number", number, "account_type", acc.Type().String())
	return number, nil
}

// FindByAccountNumber looks the account up in the mirror only. The returned
// value is a copy; mutations go through Lodge and Withdraw.
func (s *Store) FindByAccountNumber(accountNumber string) (domain.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountNumber]
	if !ok {
		return nil, false
	}
	return acc.Clone(), true
}

// Accounts returns a copy of every account ordered by account number.
func (s *Store) Accounts() []domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AccountNumber() < out[j].AccountNumber()
	})
	return out
}

// Close removes the account from the durable table and the mirror and
// returns the closed account.
func (s *Store) Close(ctx context.Context, accountNumber string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountNumber]
	if !ok {
		s.logger.Warn("Account not found", "account_number", accountNumber)
		return nil, errors.ErrAccountNotFound.WithDetails(accountNumber)
	}

	err := s.withTransaction(ctx, func(repo *accountRepository) error {
		return repo.DeleteAccount(ctx, accountNumber)
	})
	if err != nil {
		return nil, err
	}

	delete(s.accounts, accountNumber)
	s.logger.Info("Account closed", "account_number", accountNumber)
	return acc, nil
}

// Lodge credits amount to the account and returns the new balance.
func (s *Store) Lodge(ctx context.Context, accountNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.ErrInvalidAmount.WithDetails(amount.String())
	}

	return s.mutate(ctx, accountNumber, func(staged domain.Account) error {
		staged.Lodge(amount)
		return nil
	})
}

// Withdraw debits amount if the account's variant permits it and returns the
// new balance. A rejected withdrawal does not touch durable storage.
func (s *Store) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.ErrInvalidAmount.WithDetails(amount.String())
	}

	return s.mutate(ctx, accountNumber, func(staged domain.Account) error {
		if !staged.Withdraw(amount) {
			s.logger.Warn("Withdrawal rejected",
				"account_number", accountNumber,
				"account_type", staged.Type().String(),
				"amount", amount)
			return staged.WithdrawalRejection()
		}
		return nil
	})
}

// mutate applies change to a copy of the account, writes the copy's balance
// durably and only then swaps it into the mirror. The mirror holds the balance
// as the table stores it, so a reload reads back the same value.
func (s *Store) mutate(ctx context.Context, accountNumber string, change func(domain.Account) error) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[accountNumber]
	if !ok {
		s.logger.Warn("Account not found", "account_number", accountNumber)
		return decimal.Zero, errors.ErrAccountNotFound.WithDetails(accountNumber)
	}

	staged := current.Clone()
	if err := change(staged); err != nil {
		return current.Balance(), err
	}
	staged, err := durableCopy(staged)
	if err != nil {
		return current.Balance(), err
	}

	err = s.withTransaction(ctx, func(repo *accountRepository) error {
		return repo.UpdateAccountBalance(ctx, accountNumber, staged.Balance())
	})
	if err != nil {
		return current.Balance(), err
	}

	s.accounts[accountNumber] = staged
	s.logger.Info("Account balance updated", "account_number", accountNumber, "new_balance", staged.Balance())
	return staged.Balance(), nil
}

var _ domain.AccountRepository = (*Store)(nil)
