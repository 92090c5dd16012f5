package main

import (
	"fmt"
	"time"

	"marketwatch/internal/markethours"

	"github.com/spf13/cobra"
)

func hoursCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hours [symbol...]",
		Short: "Print the trading status of each symbol's market",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbols := args
			if len(symbols) == 0 {
				symbols = cfg.Symbols
			}
			now := time.Now()
			for _, s := range symbols {
				m := markethours.MarketOf(s)
				line := fmt.Sprintf("%-10s %s", s, m.StatusString(now))
				if m.IsOpen(now) {
					line += fmt.Sprintf(" (%.0f%% of session)", 100*m.SessionProgress(now))
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
