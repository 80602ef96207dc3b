package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "krxscan",
	Short: "KRX 일봉 기술적 스캐너",
	Long: `krxscan - KOSPI/KOSDAQ daily-bar technical scanner

일별 스냅샷 수집, 패널 병합, 유니버스 선정, 전략 스캔까지.

Usage:
  go run ./cmd/krxscan [command]

Examples:
  go run ./cmd/krxscan refresh
  go run ./cmd/krxscan scan --market KOSPI --strategy pullback_rr
  go run ./cmd/krxscan serve`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
