package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/shouni/go-index-watch/pkg/config"
	"github.com/shouni/go-index-watch/pkg/schedule"
)

// --- フラグ変数 ---

var (
	statePath string
	runIfDue  bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "定期実行スケジュールの状態を表示・実行します",
	Long: `スケジュール状態ファイルを読み込み、現在の設定と次回の実行予定を表示します。

--run-if-due を指定すると、実行時刻に達している場合にチェックを実行し、
実行記録を状態ファイルへ書き戻します。cronやタスクスケジューラから
1分間隔で呼び出す使い方を想定しています。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := schedule.Load(statePath)
		if err != nil {
			return err
		}

		now := time.Now()
		printScheduleStatus(now, state)

		if !runIfDue {
			return nil
		}
		if !schedule.ShouldRun(now, state) {
			log.Println("実行時刻に達していないため、チェックはスキップします")
			return nil
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := runChecks(cmd.Context(), cfg.EnabledWebsites()); err != nil {
			return err
		}

		// チェックが完走した場合のみ実行記録を残す
		state.MarkRun(now)
		if err := schedule.Save(statePath, state); err != nil {
			return err
		}
		log.Printf("実行記録を保存しました: %s", statePath)
		return nil
	},
}

// printScheduleStatus は、スケジュールの現在の状態を表示します。
func printScheduleStatus(now time.Time, state *schedule.State) {
	if !state.Enabled {
		fmt.Println("スケジュール: 無効")
		return
	}

	fmt.Println("スケジュール: 有効")
	fmt.Printf("  間隔種別:   %s\n", state.IntervalType)
	if state.IntervalType == schedule.IntervalHours {
		fmt.Printf("  間隔:       %d時間\n", state.IntervalValue)
	} else {
		fmt.Printf("  実行時刻:   %s\n", state.RunTime)
	}
	if state.RunDay > 0 {
		fmt.Printf("  実行日:     %d\n", state.RunDay)
	}

	if state.LastRun != nil {
		fmt.Printf("  前回の実行: %s\n", state.LastRun.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Println("  前回の実行: なし")
	}

	if next := schedule.NextRun(now, state); !next.IsZero() {
		fmt.Printf("  次回の予定: %s\n", next.Format("2006-01-02 15:04:05"))
	}
}

func init() {
	scheduleCmd.Flags().StringVar(&statePath, "state", "scheduler_state.json", "スケジュール状態ファイルのパス")
	scheduleCmd.Flags().BoolVar(&runIfDue, "run-if-due", false, "実行時刻に達している場合にチェックを実行する")
	scheduleCmd.Flags().StringVarP(&configPath, "config", "c", "websites.json", "ウェブサイト設定ファイルのパス")
	scheduleCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "結果ファイルの出力先ディレクトリ")
	scheduleCmd.Flags().StringVar(&credentialsPath, "credentials", "credentials.json", "Search Console サービスアカウント認証情報のパス")
	scheduleCmd.Flags().BoolVar(&asXLSX, "xlsx", false, "CSVの代わりに整形済みXLSXで出力する")
}
