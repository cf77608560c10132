package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"bank-records/internal/domain"
	"bank-records/internal/errors"
)

type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error *Error      `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type AccountResponse struct {
	AccountNumber  string        `json:"account_number"`
	AccountType    string        `json:"account_type"`
	Holder         domain.Holder `json:"holder"`
	Balance        string        `json:"balance"`
	OverdraftLimit string        `json:"overdraft_limit,omitempty"`
	InterestRate   string        `json:"interest_rate,omitempty"`
}

type BalanceResponse struct {
	AccountNumber string `json:"account_number"`
	Action        string `json:"action"`
	Amount        string `json:"amount"`
	Balance       string `json:"balance"`
}

func newAccountResponse(acc domain.Account) AccountResponse {
	resp := AccountResponse{
		AccountNumber: acc.AccountNumber(),
		AccountType:   acc.Type().String(),
		Holder:        acc.Holder(),
		Balance:       money(acc.Balance()),
	}
	terms := acc.Terms()
	if terms.OverdraftLimit.Valid {
		resp.OverdraftLimit = money(terms.OverdraftLimit.Decimal)
	}
	if terms.InterestRate.Valid {
		resp.InterestRate = terms.InterestRate.Decimal.String()
	}
	return resp
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func writeJSON(w io.Writer, data interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Response{Data: data})
}

func writeError(w io.Writer, asJSON bool, appErr *errors.AppError) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(Response{Error: &Error{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Details: appErr.Details,
		}})
	}

	line := fmt.Sprintf("error: %s: %s", appErr.Code, appErr.Message)
	if appErr.Details != "" {
		line += " (" + appErr.Details + ")"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func writeAccount(w io.Writer, acc AccountResponse) error {
	address := []string{acc.Holder.AddressLine1, acc.Holder.AddressLine2, acc.Holder.AddressLine3}
	lines := address[:0]
	for _, line := range address {
		if line != "" {
			lines = append(lines, line)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Account Number: %s\n", acc.AccountNumber)
	fmt.Fprintf(&b, "Account Type:   %s\n", acc.AccountType)
	fmt.Fprintf(&b, "Name:           %s\n", acc.Holder.Name)
	if len(lines) > 0 {
		fmt.Fprintf(&b, "Address:        %s\n", strings.Join(lines, ", "))
	}
	fmt.Fprintf(&b, "Town:           %s\n", acc.Holder.Town)
	fmt.Fprintf(&b, "Balance:        %s\n", acc.Balance)
	if acc.OverdraftLimit != "" {
		fmt.Fprintf(&b, "Overdraft:      %s\n", acc.OverdraftLimit)
	}
	if acc.InterestRate != "" {
		fmt.Fprintf(&b, "Interest Rate:  %s\n", acc.InterestRate)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
