package cli

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bank-records/internal/audit"
	"bank-records/internal/service"
)

type balanceChange func(*service.AccountService, context.Context, string, decimal.Decimal, string) (decimal.Decimal, error)

func newLodgeCommand(deps commandDeps) *cobra.Command {
	return newTransactionCommand(deps, "lodge", "Lodge money into an account", audit.ActionLodge,
		(*service.AccountService).Lodge)
}

func newWithdrawCommand(deps commandDeps) *cobra.Command {
	return newTransactionCommand(deps, "withdraw", "Withdraw money from an account", audit.ActionWithdraw,
		(*service.AccountService).Withdraw)
}

func newTransactionCommand(deps commandDeps, use, short, action string, change balanceChange) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   use + " <account-number> <amount>",
		Short: short,
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountNumber := args[0]
			amount, err := parseDecimal("amount", args[1])
			if err != nil {
				return deps.fail(err)
			}

			return withService(cmd.Context(), deps, func(ctx context.Context, svc *service.AccountService) error {
				balance, err := change(svc, ctx, accountNumber, amount, reason)
				if err != nil {
					return err
				}
				resp := BalanceResponse{
					AccountNumber: accountNumber,
					Action:        action,
					Amount:        money(amount),
					Balance:       money(balance),
				}
				if deps.globals.JSON {
					return writeJSON(deps.out, resp)
				}
				_, err = fmt.Fprintf(deps.out, "%s of %s on %s complete. New balance: %s\n",
					resp.Action, resp.Amount, resp.AccountNumber, resp.Balance)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason for the transaction (required above the audit threshold)")
	return cmd
}
