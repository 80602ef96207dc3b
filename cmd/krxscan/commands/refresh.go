package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/krxscan/internal/market"
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "최신 스냅샷 다운로드 및 패널 병합",
	Long: `최근 거래일의 KRX 스냅샷을 다운로드하고 패널을 증분 병합합니다.

이미 반영된 날짜는 건너뛰므로 반복 실행은 안전합니다.

Example:
  go run ./cmd/krxscan refresh
  go run ./cmd/krxscan refresh --market KOSDAQ --force`,
	RunE: runRefresh,
}

var (
	refreshMarket string
	refreshForce  bool
)

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().StringVar(&refreshMarket, "market", "", "market (KOSPI|KOSDAQ, empty = both)")
	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "re-download existing snapshots")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	markets := market.All()
	if refreshMarket != "" {
		m, err := market.Parse(refreshMarket)
		if err != nil {
			return err
		}
		markets = []market.Market{m}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	for _, m := range markets {
		res, err := a.downloader.DownloadLatest(ctx, m, time.Now(), refreshForce)
		if err != nil {
			return fmt.Errorf("download %s: %w", m, err)
		}
		if res.Skipped {
			fmt.Printf("%s: snapshot %s already present\n", m, market.DayKey(res.Date))
		} else {
			fmt.Printf("%s: downloaded %s (%d rows)\n", m, market.DayKey(res.Date), res.Rows)
		}

		_, applied, err := a.store.Refresh(m)
		if err != nil {
			return fmt.Errorf("refresh %s panel: %w", m, err)
		}
		fmt.Printf("%s: %d snapshot(s) merged into panel\n", m, applied)
	}

	return nil
}
