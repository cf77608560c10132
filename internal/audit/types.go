package audit

import (
	"context"
	"time"
)

// Actions recorded for an account. The values match the labels tellers
// already search for in existing audit logs.
const (
	ActionAccountCreation = "Account Creation"
	ActionAccountClosure  = "Account Closure"
	ActionBalanceQuery    = "Balance Query"
	ActionLodge           = "Lodge"
	ActionWithdraw        = "Withdraw"
)

// NoReason is recorded when the caller gave no justification.
const NoReason = "N/A"

// Event answers who did what, to which account, when and why. Where and how
// are filled in by the sink.
type Event struct {
	Timestamp     time.Time `json:"when"`
	Teller        string    `json:"teller"`
	AccountNumber string    `json:"account_number"`
	HolderName    string    `json:"holder"`
	Action        string    `json:"what"`
	Amount        string    `json:"amount,omitempty"`
	Reason        string    `json:"why"`
}

// Sink receives audit records from the service layer. A banking operation
// that already succeeded is never undone because its audit record failed.
type Sink interface {
	Record(ctx context.Context, event Event) error
	SecurityEvent(ctx context.Context, message string) error
}
