package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sujun1972/stock-analysis-go/internal/backtest"
	"github.com/sujun1972/stock-analysis-go/internal/contracts"
)

// backtestCmd runs one combination synchronously and prints the result.
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a backtest for one strategy combination",
	Long: `Simulates a selector + entry + exits combination over stored
daily bars and prints trades and performance metrics.

Example:
  go run ./cmd/quant backtest \
    --selector momentum --entry immediate --exits stop_loss,take_profit \
    --start 2023-01-01 --end 2023-12-31 --capital 1000000`,
	RunE: runBacktest,
}

var (
	btSelector string
	btEntry    string
	btExits    []string
	btFreq     string
	btStart    string
	btEnd      string
	btCapital  float64
	btCodes    []string
	btParams   string
	btJSON     bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btSelector, "selector", "", "selector strategy slug (required)")
	backtestCmd.Flags().StringVar(&btEntry, "entry", "immediate", "entry strategy slug")
	backtestCmd.Flags().StringSliceVar(&btExits, "exits", nil, "exit strategy slugs (required)")
	backtestCmd.Flags().StringVar(&btFreq, "freq", "W", "rebalance cadence: D, W or M")
	backtestCmd.Flags().StringVar(&btStart, "start", "", "start date YYYY-MM-DD (required)")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "end date YYYY-MM-DD (required)")
	backtestCmd.Flags().Float64Var(&btCapital, "capital", 0, "initial capital (default from config)")
	backtestCmd.Flags().StringSliceVar(&btCodes, "codes", nil, "restrict the universe to these codes")
	backtestCmd.Flags().StringVar(&btParams, "params", "", `per-strategy params as JSON, e.g. '{"selector":{"top_n":5}}'`)
	backtestCmd.Flags().BoolVar(&btJSON, "json", false, "print the full result as JSON")

	backtestCmd.MarkFlagRequired("selector")
	backtestCmd.MarkFlagRequired("exits")
	backtestCmd.MarkFlagRequired("start")
	backtestCmd.MarkFlagRequired("end")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	start, err := time.Parse("2006-01-02", btStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end, err := time.Parse("2006-01-02", btEnd)
	if err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

	var overrides map[string]contracts.Params
	if btParams != "" {
		if err := json.Unmarshal([]byte(btParams), &overrides); err != nil {
			return fmt.Errorf("invalid --params: %w", err)
		}
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if btCapital == 0 {
		btCapital = rt.cfg.Backtest.InitialCapital
	}

	comb := backtest.Combination{
		Selector:      backtest.StrategyRef{Name: btSelector, Params: overrides["selector"]},
		Entry:         backtest.StrategyRef{Name: btEntry, Params: overrides["entry"]},
		RebalanceFreq: contracts.RebalanceFreq(btFreq),
	}
	for _, name := range btExits {
		comb.Exits = append(comb.Exits, backtest.StrategyRef{Name: name, Params: overrides[name]})
	}

	req := &backtest.Request{
		Combination:    comb,
		StockCodes:     btCodes,
		StartDate:      start,
		EndDate:        end,
		InitialCapital: btCapital,
		Frictions:      rt.defaultFrictions(),
	}

	data, err := rt.backtestRepo.Panel(ctx, btCodes, start, end)
	if err != nil {
		return fmt.Errorf("load price panel: %w", err)
	}

	PrintDoubleSeparator()
	fmt.Println("  Backtest")
	PrintSeparator()
	PrintKeyValue("Selector", btSelector, 10)
	PrintKeyValue("Entry", btEntry, 10)
	PrintKeyValue("Exits", strings.Join(btExits, ", "), 10)
	PrintKeyValue("Period", btStart+" ~ "+btEnd, 10)
	PrintKeyValue("Capital", fmt.Sprintf("%.2f", btCapital), 10)
	PrintSeparator()

	began := time.Now()
	res, err := rt.engine.Run(ctx, req, data, nil)
	if err != nil {
		PrintError("Backtest failed")
		return err
	}

	if btJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	m := res.Metrics
	PrintKeyValue("Trades", fmt.Sprintf("%d", len(res.Trades)), 14)
	PrintKeyValue("Total return", fmt.Sprintf("%.2f%%", m.TotalReturn*100), 14)
	PrintKeyValue("Annualized", fmt.Sprintf("%.2f%%", m.AnnualizedReturn*100), 14)
	PrintKeyValue("Sharpe", fmt.Sprintf("%.2f", m.SharpeRatio), 14)
	PrintKeyValue("Sortino", fmt.Sprintf("%.2f", m.SortinoRatio), 14)
	PrintKeyValue("Max drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown*100), 14)
	PrintKeyValue("Win rate", fmt.Sprintf("%.2f%%", m.WinRate*100), 14)
	if len(res.Faults) > 0 {
		PrintWarning(fmt.Sprintf("%d strategy faults during the run", len(res.Faults)))
	}
	PrintSeparator()
	PrintSuccess(fmt.Sprintf("Completed in %.2fs", time.Since(began).Seconds()))

	return nil
}
