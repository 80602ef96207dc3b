package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/krxscan/internal/breadth"
	"github.com/wonny/krxscan/internal/market"
	"github.com/wonny/krxscan/internal/runner"
	"github.com/wonny/krxscan/internal/scan"
	"github.com/wonny/krxscan/internal/universe"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "전략 스캔 실행",
	Long: `패널을 로드하고 유니버스를 선정한 뒤 전략 스캔을 실행합니다.

결과는 시그니처 키의 디스크 캐시에 저장되며, 동일 입력 재실행은
캐시에서 바로 반환됩니다.

Example:
  go run ./cmd/krxscan scan --market KOSPI --strategy pullback_rr
  go run ./cmd/krxscan scan --market KOSDAQ --strategy vol_compression_breakout --min-rr 2.0
  go run ./cmd/krxscan scan --params params.yaml --no-cache`,
	RunE: runScan,
}

var (
	scanMarket     string
	scanStrategy   string
	scanTopN       int
	scanRankBy     string
	scanBreadth    string
	scanParamsFile string
	scanNoCache    bool
	scanMinRR      float64
	scanMA5UpDays  int
)

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanMarket, "market", "KOSPI", "market (KOSPI|KOSDAQ)")
	scanCmd.Flags().StringVar(&scanStrategy, "strategy", "pullback_rr", "strategy key")
	scanCmd.Flags().IntVar(&scanTopN, "top-n", 200, "universe size (0 = all tickers)")
	scanCmd.Flags().StringVar(&scanRankBy, "rank-by", "market_cap", "universe rank attribute (market_cap|value|volume)")
	scanCmd.Flags().StringVar(&scanBreadth, "breadth", "off", "market gate mode (close_above_ma20|ma20_above_ma60|both|off)")
	scanCmd.Flags().StringVar(&scanParamsFile, "params", "", "YAML params file (default: builtin defaults)")
	scanCmd.Flags().BoolVar(&scanNoCache, "no-cache", false, "bypass the result cache")
	scanCmd.Flags().Float64Var(&scanMinRR, "min-rr", 0, "minimum reward/risk override")
	scanCmd.Flags().IntVar(&scanMA5UpDays, "ma5-up-days", -1, "required consecutive MA5 up days override (0..5)")
}

func runScan(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	m, err := market.Parse(scanMarket)
	if err != nil {
		return err
	}

	params := scan.DefaultParams()
	if scanParamsFile != "" {
		params, err = scan.LoadParams(scanParamsFile)
		if err != nil {
			return fmt.Errorf("load params: %w", err)
		}
	}
	if scanMinRR > 0 {
		params.MinRR = scanMinRR
	}
	if scanMA5UpDays >= 0 {
		params.MA5UpDays = scanMA5UpDays
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	resp, err := a.runner().Run(ctx, runner.Request{
		Market:      m,
		TopN:        scanTopN,
		RankBy:      universe.RankBy(scanRankBy),
		Strategy:    scanStrategy,
		Params:      params,
		BreadthMode: breadth.Mode(scanBreadth),
		NoCache:     scanNoCache,
	})
	if err != nil {
		return err
	}

	printScanResult(cmd.Context(), a, resp)
	return nil
}

func printScanResult(ctx context.Context, a *app, resp *runner.Response) {
	fmt.Printf("=== %s %s @ %s ===\n", resp.Market, resp.Strategy, market.DayKey(resp.LatestDate))
	fmt.Printf("universe: top %d by %s (%d tickers)\n", resp.Universe.TopN, resp.Universe.RankBy, resp.Universe.Tickers)
	if resp.FromCache {
		fmt.Println("(cached result)")
	}
	if !resp.BreadthOK {
		fmt.Printf("\n⚠ market gate closed: %s\n", resp.BreadthNote)
		return
	}
	if len(resp.Candidates) == 0 {
		fmt.Println("\nNo candidates.")
		return
	}

	tickers := make([]string, 0, len(resp.Candidates))
	for _, c := range resp.Candidates {
		tickers = append(tickers, c.Ticker)
	}
	names := a.names.Resolve(ctx, tickers)

	fmt.Printf("\n%-8s %-20s %-9s %10s %10s %10s %6s %7s\n",
		"TICKER", "NAME", "STAGE", "ENTRY", "STOP", "TARGET", "RR", "SCORE")
	for _, c := range resp.Candidates {
		stage := string(c.Stage)
		if stage == "" {
			stage = "-"
		}
		fmt.Printf("%-8s %-20s %-9s %10.0f %10.2f %10.2f %6.2f %7.1f\n",
			c.Ticker, names[c.Ticker], stage, c.Entry, c.Stop, c.Target, c.RR, c.Score)
	}
	fmt.Printf("\n%d candidates (signature %s)\n", len(resp.Candidates), resp.Signature[:12])
}
