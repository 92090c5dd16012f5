package main

import (
	"context"
	"fmt"
	"time"

	"marketwatch/internal/anomaly"
	"marketwatch/internal/feed"
	"marketwatch/internal/markethours"
	"marketwatch/internal/model"
	"marketwatch/internal/signal"
	"marketwatch/internal/store/sqlite"
	"marketwatch/internal/watch"

	"github.com/spf13/cobra"
)

type reportOutput struct {
	Report  signal.Report   `json:"report"`
	Anomaly *anomaly.Result `json:"anomaly,omitempty"`
}

func reportCmd() *cobra.Command {
	var (
		modelName   string
		days        int
		withHolding bool
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "report <symbol>",
		Short: "Fetch one quote and its series, then print the signal report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if modelName == "" {
				modelName = cfg.SignalModel
			}
			sigModel, err := signal.New(modelName)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			in, err := fetchInput(ctx, newProvider(cfg), args[0], days)
			if err != nil {
				return err
			}
			if withHolding {
				h, err := storedHolding(ctx, args[0])
				if err != nil {
					return err
				}
				in.Holding = h
			}
			return printJSON(evaluateOnce(sigModel, in, time.Now()))
		},
	}
	cmd.Flags().StringVar(&modelName, "model", "", "Signal model: t0 or force (defaults to SIGNAL_MODEL)")
	cmd.Flags().IntVar(&days, "days", 120, "Daily history length")
	cmd.Flags().BoolVar(&withHolding, "with-holding", false, "Include the paper position stored in SQLITE_PATH")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "Overall fetch timeout")
	return cmd
}

func fetchInput(ctx context.Context, src feed.Source, symbol string, days int) (signal.Input, error) {
	quotes, err := src.Quotes(ctx, []string{symbol})
	if err != nil {
		return signal.Input{}, fmt.Errorf("quote: %w", err)
	}
	if len(quotes) == 0 {
		return signal.Input{}, fmt.Errorf("no quote for %s", symbol)
	}
	series, err := feed.FetchSeries(ctx, src, symbol, days)
	if err != nil {
		return signal.Input{}, fmt.Errorf("series: %w", err)
	}
	return signal.Input{
		Quote:  quotes[0],
		Daily:  series.Daily,
		Minute: series.Minute,
	}, nil
}

func evaluateOnce(m signal.Model, in signal.Input, now time.Time) reportOutput {
	in.SessionProgress = markethours.MarketOf(in.Quote.Symbol).SessionProgress(now)
	out := reportOutput{Report: m.Evaluate(in)}
	out.Report.GeneratedAt = now
	if res, ok := anomaly.Detect(in.Quote, in.Minute); ok {
		out.Anomaly = &res
	}
	return out
}

func storedHolding(ctx context.Context, symbol string) (*model.Holding, error) {
	sq, err := sqlite.New(sqlite.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	defer sq.Close()

	led := watch.RestoreLedger(ctx, cfg.InitialCapital, []model.SnapshotStore{sq})
	return led.Holding(symbol), nil
}
