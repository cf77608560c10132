package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-records/internal/cipher"
	"bank-records/internal/domain"
	"bank-records/internal/errors"
)

var (
	testKey = []byte("A?D(G+KbPeShVmYq3t6w9z$C&F)J@NcQ")
	testIV  = []byte("HrRy2w!z%C*F-JaN")
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "bank.db"))
	require.NoError(t, err)
	require.NoError(t, sqliteDialect{}.Prepare(context.Background(), db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testCipher(t *testing.T) *cipher.AES {
	t.Helper()
	c, err := cipher.NewAES(testKey, testIV, discardLogger())
	require.NoError(t, err)
	return c
}

func newTestStore(t *testing.T, db *sql.DB) *Store {
	t.Helper()
	store := NewStore(db, sqliteDialect{}, testCipher(t), discardLogger())
	require.NoError(t, store.LoadAll(context.Background()))
	return store
}

func currentAccount(number string, balance, overdraft string) *domain.CurrentAccount {
	return domain.NewCurrentAccount(number, domain.Holder{
		Name:         "Ada Byrne",
		AddressLine1: "1 Main St",
		AddressLine2: "Ballinode",
		Town:         "Sligo",
	}, d(balance), d(overdraft))
}

func savingsAccount(number string, balance, rate string) *domain.SavingsAccount {
	return domain.NewSavingsAccount(number, domain.Holder{
		Name: "Brian Walsh",
		Town: "Galway",
	}, d(balance), d(rate))
}

func countRows(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+accountsTable).Scan(&n))
	return n
}

func durableBalance(t *testing.T, db *sql.DB, number string) float64 {
	t.Helper()
	var balance float64
	require.NoError(t, db.QueryRow(`SELECT balance FROM `+accountsTable+` WHERE accountNumber = ?`, number).Scan(&balance))
	return balance
}

func TestLoadAllCreatesTableOnFirstUse(t *testing.T) {
	db := openTestDB(t)
	store := newTestStore(t, db)

	assert.Empty(t, store.Accounts())

	var name string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, accountsTable).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, accountsTable, name)

	// Idempotent on a table that already exists.
	require.NoError(t, store.LoadAll(context.Background()))
}

func TestAddThenReloadPreservesVariants(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)

	number, err := store.Add(ctx, currentAccount("cur-1", "100", "500"))
	require.NoError(t, err)
	assert.Equal(t, "cur-1", number)

	_, err = store.Add(ctx, savingsAccount("sav-1", "250.75", "0.03"))
	require.NoError(t, err)

	reloaded := newTestStore(t, db)
	require.Len(t, reloaded.Accounts(), 2)

	acc, ok := reloaded.FindByAccountNumber("cur-1")
	require.True(t, ok)
	cur, ok := acc.(*domain.CurrentAccount)
	require.True(t, ok, "discriminator must select the current variant")
	assert.True(t, cur.OverdraftLimit().Equal(d("500")))
	assert.True(t, cur.Balance().Equal(d("100")))
	assert.False(t, cur.Terms().InterestRate.Valid)
	assert.Equal(t, "Ada Byrne", cur.Holder().Name)
	assert.Equal(t, "Ballinode", cur.Holder().AddressLine2)
	assert.Equal(t, "", cur.Holder().AddressLine3)

	acc, ok = reloaded.FindByAccountNumber("sav-1")
	require.True(t, ok)
	sav, ok := acc.(*domain.SavingsAccount)
	require.True(t, ok, "discriminator must select the savings variant")
	assert.True(t, sav.InterestRate().Equal(d("0.03")))
	assert.True(t, sav.Balance().Equal(d("250.75")))
	assert.False(t, sav.Terms().OverdraftLimit.Valid)

	var overdraft, interest sql.NullFloat64
	var accountType int
	require.NoError(t, db.QueryRow(
		`SELECT accountType, overdraftAmount, interestRate FROM `+accountsTable+` WHERE accountNumber = ?`, "sav-1",
	).Scan(&accountType, &overdraft, &interest))
	assert.Equal(t, int(domain.AccountTypeSavings), accountType)
	assert.False(t, overdraft.Valid, "the other variant's column must be NULL, not zero")
	assert.True(t, interest.Valid)
}

func TestPersonalFieldsAreEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)
	c := testCipher(t)

	_, err := store.Add(ctx, currentAccount("cur-1", "100", "50"))
	require.NoError(t, err)

	var name, town string
	var line1, line3 sql.NullString
	var balance float64
	require.NoError(t, db.QueryRow(
		`SELECT name, address_line_1, address_line_3, town, balance FROM `+accountsTable+` WHERE accountNumber = ?`, "cur-1",
	).Scan(&name, &line1, &line3, &town, &balance))

	assert.NotEqual(t, "Ada Byrne", name)
	assert.Equal(t, "Ada Byrne", c.Decrypt(name))
	assert.Equal(t, "1 Main St", c.Decrypt(line1.String))
	assert.Equal(t, "Sligo", c.Decrypt(town))
	assert.False(t, line3.Valid)
	assert.Equal(t, 100.0, balance, "balance is stored in the clear")
}

func TestLoadAllReadsLegacyCleartextRows(t *testing.T) {
	db := openTestDB(t)
	newTestStore(t, db)

	_, err := db.Exec(`INSERT INTO `+accountsTable+` (accountNumber, name, address_line_1, address_line_2, address_line_3,
		town, balance, accountType, overdraftAmount, interestRate) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		"legacy-1", "Ciara Doyle", "", nil, nil, "Dublin", 42.5, 1, nil, nil)
	require.NoError(t, err)

	c := testCipher(t)
	store := NewStore(db, sqliteDialect{}, c, discardLogger())
	require.NoError(t, store.LoadAll(context.Background()))

	acc, ok := store.FindByAccountNumber("legacy-1")
	require.True(t, ok)
	assert.Equal(t, "Ciara Doyle", acc.Holder().Name)
	assert.Equal(t, "Dublin", acc.Holder().Town)
	assert.True(t, acc.Balance().Equal(d("42.5")))
	assert.True(t, acc.(*domain.CurrentAccount).OverdraftLimit().IsZero(), "null overdraft column reads as zero")
	assert.Equal(t, uint64(2), c.Fallbacks())
}

func TestAddRejectsDuplicateAccountNumber(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)

	_, err := store.Add(ctx, currentAccount("acc-1", "100", "50"))
	require.NoError(t, err)

	_, err = store.Add(ctx, savingsAccount("acc-1", "999", "0.1"))
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateAccount), "got %v", err)

	acc, ok := store.FindByAccountNumber("acc-1")
	require.True(t, ok)
	assert.Equal(t, domain.AccountTypeCurrent, acc.Type())
	assert.True(t, acc.Balance().Equal(d("100")))
	assert.Equal(t, 1, countRows(t, db))
}

func TestAddRejectsDuplicateHeldOnlyByTable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)

	// Another writer inserted the row after our mirror was loaded.
	other := NewStore(db, sqliteDialect{}, testCipher(t), discardLogger())
	_, err := other.Add(ctx, currentAccount("acc-1", "100", "50"))
	require.NoError(t, err)

	_, err = store.Add(ctx, savingsAccount("acc-1", "5", "0.1"))
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateAccount), "got %v", err)

	_, ok := store.FindByAccountNumber("acc-1")
	assert.False(t, ok, "a failed insert must not reach the mirror")
}

func TestCloseSemantics(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)

	_, err := store.Add(ctx, currentAccount("acc-1", "100", "50"))
	require.NoError(t, err)

	_, err = store.Close(ctx, "missing")
	assert.True(t, stderrors.Is(err, errors.ErrAccountNotFound))
	assert.True(t, errors.IsRecoverable(err))
	assert.Len(t, store.Accounts(), 1)
	assert.Equal(t, 1, countRows(t, db))

	closed, err := store.Close(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Byrne", closed.Holder().Name)

	_, ok := store.FindByAccountNumber("acc-1")
	assert.False(t, ok)
	assert.Equal(t, 0, countRows(t, db))

	_, err = store.Close(ctx, "acc-1")
	assert.True(t, stderrors.Is(err, errors.ErrAccountNotFound))
}

func TestLodgeAndWithdrawPersist(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)

	_, err := store.Add(ctx, currentAccount("cur-1", "100", "50"))
	require.NoError(t, err)
	_, err = store.Add(ctx, savingsAccount("sav-1", "100", "0.02"))
	require.NoError(t, err)

	t.Run("overdraft boundary", func(t *testing.T) {
		_, err := store.Withdraw(ctx, "cur-1", d("150.01"))
		assert.True(t, stderrors.Is(err, errors.ErrOverdraftExceeded), "got %v", err)
		assert.Equal(t, 100.0, durableBalance(t, db, "cur-1"))

		balance, err := store.Withdraw(ctx, "cur-1", d("150"))
		require.NoError(t, err)
		assert.True(t, balance.Equal(d("-50")))
		assert.Equal(t, -50.0, durableBalance(t, db, "cur-1"))
	})

	t.Run("savings boundary", func(t *testing.T) {
		_, err := store.Withdraw(ctx, "sav-1", d("100.01"))
		assert.True(t, stderrors.Is(err, errors.ErrInsufficientFunds), "got %v", err)

		balance, err := store.Withdraw(ctx, "sav-1", d("100"))
		require.NoError(t, err)
		assert.True(t, balance.IsZero())
	})

	t.Run("lodge", func(t *testing.T) {
		balance, err := store.Lodge(ctx, "sav-1", d("20.50"))
		require.NoError(t, err)
		assert.True(t, balance.Equal(d("20.5")))
		assert.Equal(t, 20.5, durableBalance(t, db, "sav-1"))
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := store.Lodge(ctx, "missing", d("1"))
		assert.True(t, stderrors.Is(err, errors.ErrAccountNotFound))
		_, err = store.Withdraw(ctx, "missing", d("1"))
		assert.True(t, stderrors.Is(err, errors.ErrAccountNotFound))
	})

	reloaded := newTestStore(t, db)
	acc, ok := reloaded.FindByAccountNumber("cur-1")
	require.True(t, ok)
	assert.True(t, acc.Balance().Equal(d("-50")))
	acc, ok = reloaded.FindByAccountNumber("sav-1")
	require.True(t, ok)
	assert.True(t, acc.Balance().Equal(d("20.5")))
}

func TestHighPrecisionBalancesMatchAfterReload(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)

	_, err := store.Add(ctx, currentAccount("cur-1", "98765432109876.54321", "0.123456789012345678"))
	require.NoError(t, err)
	_, err = store.Lodge(ctx, "cur-1", d("12345678901234.56789"))
	require.NoError(t, err)
	_, err = store.Add(ctx, savingsAccount("sav-1", "0", "0.1"))
	require.NoError(t, err)
	returned, err := store.Lodge(ctx, "sav-1", d("12345678901234.56789"))
	require.NoError(t, err)

	reloaded := newTestStore(t, db)
	for _, number := range []string{"cur-1", "sav-1"} {
		mirror, ok := store.FindByAccountNumber(number)
		require.True(t, ok)
		fromTable, ok := reloaded.FindByAccountNumber(number)
		require.True(t, ok)
		assert.True(t, mirror.Balance().Equal(fromTable.Balance()),
			"%s: mirror=%s reloaded=%s", number, mirror.Balance(), fromTable.Balance())
		assert.Equal(t, mirror.Terms(), fromTable.Terms())
	}

	sav, _ := store.FindByAccountNumber("sav-1")
	assert.True(t, returned.Equal(sav.Balance()), "the returned balance is the stored one")
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, openTestDB(t))
	_, err := store.Add(ctx, savingsAccount("sav-1", "100", "0.02"))
	require.NoError(t, err)

	for _, amount := range []string{"0", "-5"} {
		_, err := store.Lodge(ctx, "sav-1", d(amount))
		assert.True(t, stderrors.Is(err, errors.ErrInvalidAmount), amount)
		_, err = store.Withdraw(ctx, "sav-1", d(amount))
		assert.True(t, stderrors.Is(err, errors.ErrInvalidAmount), amount)
	}

	acc, _ := store.FindByAccountNumber("sav-1")
	assert.True(t, acc.Balance().Equal(d("100")))
}

func TestDurableFailureLeavesMirrorUntouched(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)

	_, err := store.Add(ctx, currentAccount("cur-1", "100", "50"))
	require.NoError(t, err)

	require.NoError(t, db.Close())

	_, err = store.Lodge(ctx, "cur-1", d("10"))
	assert.True(t, stderrors.Is(err, errors.ErrStorageFailure), "got %v", err)
	assert.False(t, errors.IsRecoverable(err))

	_, err = store.Close(ctx, "cur-1")
	assert.True(t, stderrors.Is(err, errors.ErrStorageFailure), "got %v", err)

	acc, ok := store.FindByAccountNumber("cur-1")
	require.True(t, ok, "a failed close must keep the account")
	assert.True(t, acc.Balance().Equal(d("100")), "a failed write must not reach the mirror")
}

func TestMissingDurableRowReportsInconsistency(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)

	_, err := store.Add(ctx, savingsAccount("sav-1", "100", "0.02"))
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM `+accountsTable+` WHERE accountNumber = ?`, "sav-1")
	require.NoError(t, err)

	_, err = store.Lodge(ctx, "sav-1", d("5"))
	assert.True(t, stderrors.Is(err, errors.ErrStoreInconsistent), "got %v", err)

	acc, ok := store.FindByAccountNumber("sav-1")
	require.True(t, ok)
	assert.True(t, acc.Balance().Equal(d("100")))

	require.NoError(t, store.LoadAll(ctx))
	_, ok = store.FindByAccountNumber("sav-1")
	assert.False(t, ok, "reload reconciles the mirror with the table")
}

func TestFindReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, openTestDB(t))
	_, err := store.Add(ctx, savingsAccount("sav-1", "100", "0.02"))
	require.NoError(t, err)

	acc, _ := store.FindByAccountNumber("sav-1")
	acc.Lodge(d("1000"))

	again, _ := store.FindByAccountNumber("sav-1")
	assert.True(t, again.Balance().Equal(d("100")))
}

func TestConcurrentLodgesAreSerialised(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	store := newTestStore(t, db)
	_, err := store.Add(ctx, savingsAccount("sav-1", "0", "0.02"))
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Lodge(ctx, "sav-1", d("1")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	acc, _ := store.FindByAccountNumber("sav-1")
	assert.True(t, acc.Balance().Equal(decimal.NewFromInt(workers)))
	assert.Equal(t, float64(workers), durableBalance(t, db, "sav-1"))
}

func TestAccountsAreOrdered(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, openTestDB(t))
	for _, n := range []string{"c", "a", "b"} {
		_, err := store.Add(ctx, savingsAccount(n, "1", "0"))
		require.NoError(t, err)
	}

	var got []string
	for _, acc := range store.Accounts() {
		got = append(got, acc.AccountNumber())
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestProviderOpensOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	provider := NewProvider(db, sqliteDialect{}, cipher.Nop{}, discardLogger())

	first, err := provider.Store(ctx)
	require.NoError(t, err)
	second, err := provider.Store(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 0, countRows(t, db), "the table exists after first use")
}

func TestProviderRetriesAfterFailure(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "bank.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	provider := NewProvider(db, sqliteDialect{}, cipher.Nop{}, discardLogger())
	_, err = provider.Store(context.Background())
	assert.Error(t, err)
	assert.Nil(t, provider.store)
}

func TestDialects(t *testing.T) {
	pg, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", pg.Rebind("UPDATE t SET a = ? WHERE b = ?"))
	assert.NotContains(t, pg.CreateTableSQL(), "WITHOUT ROWID")

	lite, err := DialectFor("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", lite.Name())
	assert.False(t, lite.IsUniqueViolation(fmt.Errorf("other")))

	_, err = DialectFor("oracle")
	assert.Error(t, err)
}

func TestPrepareSizesThePool(t *testing.T) {
	ctx := context.Background()

	lite := openTestDB(t)
	assert.Equal(t, 1, lite.Stats().MaxOpenConnections)

	pg, err := sql.Open("postgres", "postgres://bank@127.0.0.1:1/bank?sslmode=disable")
	require.NoError(t, err)
	defer pg.Close()
	require.NoError(t, postgresDialect{}.Prepare(ctx, pg))
	assert.Equal(t, postgresMaxConns, pg.Stats().MaxOpenConnections)
	assert.Zero(t, pg.Stats().OpenConnections, "sizing the pool does not dial")
}
