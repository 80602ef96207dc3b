package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/krxscan/internal/market"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "최근 스캔 이력 조회",
	Long: `SQLite에 기록된 최근 스캔 실행 이력을 출력합니다.

Example:
  go run ./cmd/krxscan history
  go run ./cmd/krxscan history --limit 50`,
	RunE: runHistory,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "max rows")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if a.recorder == nil {
		return fmt.Errorf("scan history unavailable")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runs, err := a.recorder.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No scan history.")
		return nil
	}

	fmt.Printf("%-20s %-7s %-9s %-26s %6s %5s %6s %8s\n",
		"RECORDED", "MARKET", "DATE", "STRATEGY", "CANDS", "BRK", "CACHE", "MS")
	for _, r := range runs {
		cache := ""
		if r.FromCache {
			cache = "hit"
		}
		fmt.Printf("%-20s %-7s %-9s %-26s %6d %5d %6s %8d\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Market, market.DayKey(r.ScanDate), r.Strategy,
			r.Candidates, r.Breakouts, cache, r.DurationMS)
	}
	return nil
}
