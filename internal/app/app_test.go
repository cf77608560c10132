package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-records/internal/config"
	"bank-records/internal/domain"
	"bank-records/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "bank.db")
	return cfg
}

func TestNewWiresServiceEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Audit.Teller = "config-teller"

	var logs, auditLog bytes.Buffer
	a, err := New(ctx, cfg, Options{Version: "9.9.9", Teller: "jdoe", LogOutput: &logs, AuditOut: &auditLog})
	require.NoError(t, err)

	acc, err := a.Service.OpenAccount(ctx, service.OpenAccountRequest{
		Type:           domain.AccountTypeSavings,
		Holder:         domain.Holder{Name: "Ada Byrne", Town: "Sligo"},
		InitialBalance: decimal.NewFromInt(10),
		InterestRate:   decimal.RequireFromString("0.02"),
	})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.Contains(t, logs.String(), "Successfully connected to database")
	assert.NotContains(t, logs.String(), "Ada Byrne", "personal fields never reach the log")
	assert.Contains(t, auditLog.String(), `"who":"jdoe"`)
	assert.Contains(t, auditLog.String(), `"version":"9.9.9"`)

	// A second process sees the account through the durable table.
	b, err := New(ctx, cfg, Options{LogOutput: &logs, AuditOut: &auditLog})
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Service.GetAccount(ctx, acc.AccountNumber())
	require.NoError(t, err)
	assert.Equal(t, "Ada Byrne", got.Holder().Name)
	assert.Zero(t, b.Cipher.Fallbacks())
}

func TestNewWritesRotatedFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.Audit.File = filepath.Join(dir, "audit", "audit.log")
	cfg.Logging.File = filepath.Join(dir, "logs", "bank.log")

	a, err := New(ctx, cfg, Options{})
	require.NoError(t, err)
	_, err = a.Service.ListAccounts(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.Logging.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Accounts loaded")

	_, err = os.Stat(filepath.Dir(cfg.Audit.File))
	assert.NoError(t, err)
}

func TestNewRejectsBadLogLevel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logging.Level = "chatty"

	_, err := New(context.Background(), cfg, Options{})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "oracle"

	_, err := New(context.Background(), cfg, Options{LogOutput: &bytes.Buffer{}})
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), Options{LogOutput: &bytes.Buffer{}})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
