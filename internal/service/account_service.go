package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bank-records/internal/audit"
	"bank-records/internal/domain"
	"bank-records/internal/errors"
	"bank-records/internal/repository"
)

// AccountService is the teller-facing layer over the record store. It
// validates input, assigns account numbers and reports every successful
// operation to the audit sink.
type AccountService struct {
	provider  *repository.Provider
	audit     audit.Sink
	logger    *slog.Logger
	teller    string
	threshold decimal.Decimal
	newID     func() string
}

type Options struct {
	// Teller is recorded as the actor of every audit event.
	Teller string
	// AuditThreshold is the amount above which a lodgement or withdrawal
	// needs a reason.
	AuditThreshold decimal.Decimal
}

func NewAccountService(provider *repository.Provider, sink audit.Sink, logger *slog.Logger, opts Options) *AccountService {
	return &AccountService{
		provider:  provider,
		audit:     sink,
		logger:    logger,
		teller:    opts.Teller,
		threshold: opts.AuditThreshold,
		newID:     uuid.NewString,
	}
}

type OpenAccountRequest struct {
	Type           domain.AccountType
	Holder         domain.Holder
	InitialBalance decimal.Decimal
	OverdraftLimit decimal.Decimal
	InterestRate   decimal.Decimal
}

func (s *AccountService) OpenAccount(ctx context.Context, req OpenAccountRequest) (domain.Account, error) {
	if err := validateOpen(&req); err != nil {
		return nil, err
	}

	rate := req.InterestRate
	if req.Type == domain.AccountTypeCurrent {
		rate = req.OverdraftLimit
	}

	account, err := domain.New(req.Type, s.newID(), req.Holder, req.InitialBalance, rate)
	if err != nil {
		return nil, err
	}

	store, err := s.provider.Store(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Creating account", "account_number", account.AccountNumber(), "account_type", req.Type.String())
	if _, err := store.Add(ctx, account); err != nil {
		return nil, err
	}

	s.record(ctx, audit.Event{
		AccountNumber: account.AccountNumber(),
		HolderName:    req.Holder.Name,
		Action:        audit.ActionAccountCreation,
	})
	return account, nil
}

func validateOpen(req *OpenAccountRequest) error {
	req.Holder.Name = strings.TrimSpace(req.Holder.Name)
	req.Holder.Town = strings.TrimSpace(req.Holder.Town)
	req.Holder.AddressLine1 = strings.TrimSpace(req.Holder.AddressLine1)
	req.Holder.AddressLine2 = strings.TrimSpace(req.Holder.AddressLine2)
	req.Holder.AddressLine3 = strings.TrimSpace(req.Holder.AddressLine3)

	if !req.Type.Valid() {
		return errors.NewAppErrorf(errors.InvalidInput, "unknown account type %d", int(req.Type))
	}
	if req.Holder.Name == "" {
		return errors.NewAppError(errors.InvalidInput, "holder name is required")
	}
	if req.Holder.Town == "" {
		return errors.NewAppError(errors.InvalidInput, "town is required")
	}
	if req.InitialBalance.IsNegative() {
		return errors.NewAppError(errors.InvalidAmount, "initial balance must not be negative")
	}
	if req.OverdraftLimit.IsNegative() {
		return errors.NewAppError(errors.InvalidAmount, "overdraft limit must not be negative")
	}
	if req.InterestRate.IsNegative() {
		return errors.NewAppError(errors.InvalidAmount, "interest rate must not be negative")
	}
	if err := checkCents("initial balance", req.InitialBalance); err != nil {
		return err
	}
	return checkCents("overdraft limit", req.OverdraftLimit)
}

// Money is held to the cent.
const moneyPlaces = 2

func checkCents(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Round(moneyPlaces)) {
		return errors.ErrInvalidAmount.WithDetails(fmt.Sprintf("%s %s has more than %d decimal places", field, amount, moneyPlaces))
	}
	return nil
}

func (s *AccountService) CloseAccount(ctx context.Context, accountNumber string) (domain.Account, error) {
	store, err := s.provider.Store(ctx)
	if err != nil {
		return nil, err
	}

	closed, err := store.Close(ctx, accountNumber)
	if err != nil {
		return nil, err
	}

	s.record(ctx, audit.Event{
		AccountNumber: accountNumber,
		HolderName:    closed.Holder().Name,
		Action:        audit.ActionAccountClosure,
	})
	return closed, nil
}

func (s *AccountService) GetAccount(ctx context.Context, accountNumber string) (domain.Account, error) {
	store, err := s.provider.Store(ctx)
	if err != nil {
		return nil, err
	}

	account, ok := store.FindByAccountNumber(accountNumber)
	if !ok {
		return nil, errors.ErrAccountNotFound.WithDetails(accountNumber)
	}

	s.record(ctx, audit.Event{
		AccountNumber: accountNumber,
		HolderName:    account.Holder().Name,
		Action:        audit.ActionBalanceQuery,
	})
	return account, nil
}

func (s *AccountService) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	store, err := s.provider.Store(ctx)
	if err != nil {
		return nil, err
	}
	return store.Accounts(), nil
}

// Reload discards the in-memory accounts and reads them back from the
// durable table. Callers use it after a store_inconsistent error.
func (s *AccountService) Reload(ctx context.Context) error {
	store, err := s.provider.Store(ctx)
	if err != nil {
		return err
	}
	return store.LoadAll(ctx)
}

func (s *AccountService) Lodge(ctx context.Context, accountNumber string, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	return s.transact(ctx, audit.ActionLodge, accountNumber, amount, reason, (*repository.Store).Lodge)
}

func (s *AccountService) Withdraw(ctx context.Context, accountNumber string, amount decimal.Decimal, reason string) (decimal.Decimal, error) {
	return s.transact(ctx, audit.ActionWithdraw, accountNumber, amount, reason, (*repository.Store).Withdraw)
}

type balanceOp func(*repository.Store, context.Context, string, decimal.Decimal) (decimal.Decimal, error)

func (s *AccountService) transact(ctx context.Context, action, accountNumber string, amount decimal.Decimal, reason string, op balanceOp) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, errors.ErrInvalidAmount.WithDetails(amount.String())
	}
	if err := checkCents("amount", amount); err != nil {
		return decimal.Zero, err
	}
	reason = strings.TrimSpace(reason)
	if amount.GreaterThan(s.threshold) && reason == "" {
		return decimal.Zero, errors.ErrReasonRequired.WithDetails("threshold " + s.threshold.String())
	}

	store, err := s.provider.Store(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	account, ok := store.FindByAccountNumber(accountNumber)
	if !ok {
		return decimal.Zero, errors.ErrAccountNotFound.WithDetails(accountNumber)
	}

	s.logger.Info("Processing "+strings.ToLower(action), "account_number", accountNumber, "amount", amount)
	balance, err := op(store, ctx, accountNumber, amount)
	if err != nil {
		return balance, err
	}

	s.record(ctx, audit.Event{
		AccountNumber: accountNumber,
		HolderName:    account.Holder().Name,
		Action:        action,
		Amount:        amount.String(),
		Reason:        reason,
	})
	return balance, nil
}

// ReportFailure raises a security event for errors that are not routine
// negative outcomes.
func (s *AccountService) ReportFailure(ctx context.Context, err error) {
	if err == nil || errors.IsRecoverable(err) {
		return
	}
	if auditErr := s.audit.SecurityEvent(ctx, "Application Error: "+err.Error()); auditErr != nil {
		s.logger.Error("Failed to write security event", "error", auditErr)
	}
}

func (s *AccountService) record(ctx context.Context, event audit.Event) {
	event.Teller = s.teller
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Error("Failed to write audit record",
			"account_number", event.AccountNumber,
			"action", event.Action,
			"error", err)
	}
}
