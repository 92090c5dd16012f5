package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"marketwatch/internal/ledger"
	"marketwatch/internal/model"
	"marketwatch/internal/store/sqlite"
	"marketwatch/internal/watch"

	"github.com/spf13/cobra"
)

// ledgerCmd works on the SQLite copy of the account. Mutations made here
// are overwritten by a running server on its next ledger change.
func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or edit the stored paper-trading account",
	}
	cmd.AddCommand(ledgerShowCmd())
	cmd.AddCommand(ledgerTradesCmd())
	cmd.AddCommand(ledgerResetCmd())
	cmd.AddCommand(ledgerCapitalCmd())
	return cmd
}

func withLedger(ctx context.Context, fn func(*ledger.Ledger) error) error {
	sq, err := sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer sq.Close()

	stores := []model.SnapshotStore{sq}
	led := watch.RestoreLedger(ctx, cfg.InitialCapital, stores, ledger.OnChange(watch.Persister(stores...)))
	return fn(led)
}

func ledgerShowCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the account summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(led *ledger.Ledger) error {
				var marks map[string]float64
				if live {
					marks = fetchMarks(cmd.Context(), led.Symbols())
				}
				return printJSON(led.Summarize(marks))
			})
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Mark positions at live quotes instead of average cost")
	return cmd
}

func fetchMarks(ctx context.Context, symbols []string) map[string]float64 {
	if len(symbols) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	quotes, err := newProvider(cfg).Quotes(ctx, symbols)
	if err != nil {
		slog.Warn("[ledger] live quotes unavailable, marking at cost", slog.Any("err", err))
		return nil
	}
	marks := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		if q.Price > 0 {
			marks[q.Symbol] = q.Price
		}
	}
	return marks
}

func ledgerTradesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "trades [symbol]",
		Short: "List journaled fills, oldest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := ""
			if len(args) == 1 {
				symbol = args[0]
			}
			sq, err := sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath})
			if err != nil {
				return fmt.Errorf("open sqlite: %w", err)
			}
			defer sq.Close()

			trades, err := sq.Trades(cmd.Context(), symbol, limit)
			if err != nil {
				return err
			}
			return printJSON(trades)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of trades (0 for all)")
	return cmd
}

func ledgerResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the account to its initial capital",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(led *ledger.Ledger) error {
				led.ResetAccount()
				fmt.Printf("account reset, cash %.2f\n", led.Cash())
				return nil
			})
		},
	}
}

func ledgerCapitalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capital <amount>",
		Short: "Change the initial capital, shifting cash by the difference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			return withLedger(cmd.Context(), func(led *ledger.Ledger) error {
				if err := led.SetInitialCapital(amount); err != nil {
					return err
				}
				fmt.Printf("initial capital %.2f, cash %.2f\n", led.InitialCapital(), led.Cash())
				return nil
			})
		},
	}
}
