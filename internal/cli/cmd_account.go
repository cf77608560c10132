package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"bank-records/internal/domain"
	"bank-records/internal/errors"
	"bank-records/internal/service"
)

func newOpenCommand(deps commandDeps) *cobra.Command {
	var (
		accountType string
		holder      domain.Holder
		balance     string
		overdraft   string
		rate        string
	)

	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a current or savings account",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := domain.ParseAccountType(accountType)
			if err != nil {
				return deps.fail(err)
			}
			req := service.OpenAccountRequest{Type: t, Holder: holder}
			if req.InitialBalance, err = parseDecimal("balance", balance); err != nil {
				return deps.fail(err)
			}
			if req.OverdraftLimit, err = parseDecimal("overdraft", overdraft); err != nil {
				return deps.fail(err)
			}
			if req.InterestRate, err = parseDecimal("rate", rate); err != nil {
				return deps.fail(err)
			}

			return withService(cmd.Context(), deps, func(ctx context.Context, svc *service.AccountService) error {
				acc, err := svc.OpenAccount(ctx, req)
				if err != nil {
					return err
				}
				resp := newAccountResponse(acc)
				if deps.globals.JSON {
					return writeJSON(deps.out, resp)
				}
				fmt.Fprintf(deps.out, "Account opened: %s\n", resp.AccountNumber)
				return writeAccount(deps.out, resp)
			})
		},
	}

	cmd.Flags().StringVar(&accountType, "type", "current", "Account type: current or savings")
	cmd.Flags().StringVar(&holder.Name, "name", "", "Account holder name")
	cmd.Flags().StringVar(&holder.AddressLine1, "address1", "", "Address line 1")
	cmd.Flags().StringVar(&holder.AddressLine2, "address2", "", "Address line 2")
	cmd.Flags().StringVar(&holder.AddressLine3, "address3", "", "Address line 3")
	cmd.Flags().StringVar(&holder.Town, "town", "", "Town")
	cmd.Flags().StringVar(&balance, "balance", "0", "Opening balance")
	cmd.Flags().StringVar(&overdraft, "overdraft", "0", "Overdraft limit (current accounts)")
	cmd.Flags().StringVar(&rate, "rate", "0", "Interest rate (savings accounts)")
	return cmd
}

func newCloseCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "close <account-number>",
		Short: "Close an account",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), deps, func(ctx context.Context, svc *service.AccountService) error {
				acc, err := svc.CloseAccount(ctx, args[0])
				if err != nil {
					return err
				}
				if deps.globals.JSON {
					return writeJSON(deps.out, newAccountResponse(acc))
				}
				_, err = fmt.Fprintf(deps.out, "Account closed: %s\n", acc.AccountNumber())
				return err
			})
		},
	}
}

func newShowCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-number>",
		Short: "Show an account and its balance",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), deps, func(ctx context.Context, svc *service.AccountService) error {
				acc, err := svc.GetAccount(ctx, args[0])
				if err != nil {
					return err
				}
				resp := newAccountResponse(acc)
				if deps.globals.JSON {
					return writeJSON(deps.out, resp)
				}
				return writeAccount(deps.out, resp)
			})
		},
	}
}

func newListCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every account",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), deps, func(ctx context.Context, svc *service.AccountService) error {
				accounts, err := svc.ListAccounts(ctx)
				if err != nil {
					return err
				}
				resp := make([]AccountResponse, 0, len(accounts))
				for _, acc := range accounts {
					resp = append(resp, newAccountResponse(acc))
				}
				if deps.globals.JSON {
					return writeJSON(deps.out, resp)
				}
				for _, acc := range resp {
					if _, err := fmt.Fprintf(deps.out, "%s %-7s %s balance=%s\n",
						acc.AccountNumber, acc.AccountType, acc.Holder.Name, acc.Balance); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, errors.ErrInvalidAmount.WithDetails(fmt.Sprintf("%s: %q is not a number", field, raw))
	}
	return value, nil
}
