package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/krxscan/internal/market"
)

// bootstrapCmd represents the bootstrap command
var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "과거 스냅샷 백필",
	Long: `지정한 날짜 범위의 일별 스냅샷을 내려받아 패널을 구축합니다.

휴장일과 이미 받은 날짜는 건너뜁니다. 장기 백필 중 일부 실패는
경고로 기록하고 계속 진행합니다.

Example:
  go run ./cmd/krxscan bootstrap --start 20250101 --end 20250829
  go run ./cmd/krxscan bootstrap --market KOSDAQ --start 20250601 --end 20250829 --force`,
	RunE: runBootstrap,
}

var (
	bootstrapMarket string
	bootstrapStart  string
	bootstrapEnd    string
	bootstrapForce  bool
)

func init() {
	rootCmd.AddCommand(bootstrapCmd)

	bootstrapCmd.Flags().StringVar(&bootstrapMarket, "market", "", "market (KOSPI|KOSDAQ, empty = both)")
	bootstrapCmd.Flags().StringVar(&bootstrapStart, "start", "", "range start (YYYYMMDD), required")
	bootstrapCmd.Flags().StringVar(&bootstrapEnd, "end", "", "range end (YYYYMMDD, default today)")
	bootstrapCmd.Flags().BoolVar(&bootstrapForce, "force", false, "re-download existing snapshots")
	bootstrapCmd.MarkFlagRequired("start")
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	start, err := market.ParseDay(bootstrapStart)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	end := market.Day(time.Now())
	if bootstrapEnd != "" {
		end, err = market.ParseDay(bootstrapEnd)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
	}

	markets := market.All()
	if bootstrapMarket != "" {
		m, err := market.Parse(bootstrapMarket)
		if err != nil {
			return err
		}
		markets = []market.Market{m}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Hour)
	defer cancel()

	for _, m := range markets {
		fmt.Printf("=== bootstrap %s %s..%s ===\n", m, market.DayKey(start), market.DayKey(end))
		downloaded, skipped, failed, err := a.downloader.Bootstrap(ctx, m, start, end, bootstrapForce)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", m, err)
		}
		fmt.Printf("%s: %d downloaded, %d skipped, %d failed\n", m, downloaded, skipped, failed)

		p, err := a.store.Rebuild(m)
		if err != nil {
			return fmt.Errorf("build %s panel: %w", m, err)
		}
		fmt.Printf("%s: panel rebuilt (%d rows)\n", m, p.Len())
	}

	return nil
}
