package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shouni/go-index-watch/pkg/cancel"
	"github.com/shouni/go-index-watch/pkg/checker"
	"github.com/shouni/go-index-watch/pkg/config"
	"github.com/shouni/go-index-watch/pkg/report"
	"github.com/shouni/go-index-watch/pkg/sitemap"
)

// --- フラグ変数 ---

var (
	configPath      string
	outputDir       string
	websiteName     string
	credentialsPath string
	asXLSX          bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "設定されたウェブサイトのインデックス状態をチェックします",
	Long: `websites.json に記述されたウェブサイトのサイトマップからページURLを収穫し、
各URLのインデックス状態を確認して、サイトごとの結果ファイルに書き出します。

チェック方式は checking_method の指定に従います。auto の場合は
Search Console → 一括チェックAPI → 検索エンジンの順に試行します。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		sites, err := selectWebsites(cfg)
		if err != nil {
			return err
		}
		if len(sites) == 0 {
			log.Println("チェック対象のウェブサイトがありません")
			return nil
		}

		return runChecks(cmd.Context(), sites)
	},
}

// selectWebsites は、フラグの指定に応じてチェック対象のサイトを決定します。
func selectWebsites(cfg *config.Config) ([]config.Website, error) {
	if websiteName == "" {
		return cfg.EnabledWebsites(), nil
	}

	site, ok := cfg.FindWebsite(websiteName)
	if !ok {
		return nil, fmt.Errorf("ウェブサイト %q は設定に存在しません", websiteName)
	}
	// 明示指定の場合は enabled フラグを無視して実行する
	return []config.Website{site}, nil
}

// runChecks は、全サイトのチェックパイプラインを実行します。
// SIGINT/SIGTERM を受けた場合は、処理中のURL単位で協調的に中断します。
func runChecks(ctx context.Context, sites []config.Website) error {
	client := GetGlobalClient()
	if client == nil {
		return fmt.Errorf("HTTPクライアントが初期化されていません。rootコマンドのPreRunを確認してください")
	}

	// 1. 協調的キャンセルの準備
	sig := cancel.New()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Println("中断シグナルを受信しました。処理中のURLを区切りとして停止します...")
		sig.Set()
	}()

	// 2. 依存性の組み立て
	harvester, err := sitemap.NewHarvester(client)
	if err != nil {
		return fmt.Errorf("Harvesterの初期化エラー: %w", err)
	}

	selector := checker.NewSelector(
		newConsoleBackend(ctx),
		func(apiKey string) checker.Backend {
			return checker.NewBulkAPIBackend(client, apiKey)
		},
		checker.NewSERPBackend(),
	)

	var writer checker.ResultWriter
	if asXLSX {
		writer = report.NewXLSXWriter(outputDir)
	} else {
		writer = report.NewCSVWriter(outputDir)
	}

	runner, err := checker.NewRunner(harvester, selector, writer)
	if err != nil {
		return fmt.Errorf("Runnerの初期化エラー: %w", err)
	}

	// 3. サイトごとの実行
	var failures int
	for _, site := range sites {
		if sig.IsSet() {
			break
		}

		log.Printf("==== %s のチェックを開始します ====", site.Name)
		reportResult, err := runner.CheckWebsite(ctx, site, sig)
		if err != nil {
			if errors.Is(err, checker.ErrNoBackend) {
				log.Printf("%v", err)
				failures++
				continue
			}
			return err
		}

		printSummary(reportResult)
		if !reportResult.Completed {
			log.Printf("[%s] チェックは中断されました（確定済みの結果のみ保存しています）", site.Name)
			break
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d件のウェブサイトがチェックできませんでした", failures)
	}
	return nil
}

// newConsoleBackend は、認証情報ファイルが存在する場合にのみ
// Search Console バックエンドを構築します。
func newConsoleBackend(ctx context.Context) *checker.ConsoleBackend {
	if _, err := os.Stat(credentialsPath); err != nil {
		log.Printf("Search Console の認証情報(%s)が見つからないため、この方式はスキップします", credentialsPath)
		return nil
	}

	source, err := checker.NewGoogleAnalyticsSource(ctx, credentialsPath)
	if err != nil {
		log.Printf("Search Console クライアントの初期化に失敗したため、この方式はスキップします: %v", err)
		return nil
	}
	return checker.NewConsoleBackend(source)
}

// printSummary は、1サイト分の実行要約を表示します。
func printSummary(r *checker.RunReport) {
	counts := r.CountByStatus()

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("--- %s: %d件のURLをチェックしました ---\n", r.WebsiteName, len(r.Results))
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, counts[k])
	}
	if r.OutputPath != "" {
		fmt.Printf("  結果ファイル: %s\n", r.OutputPath)
	}
}

func init() {
	checkCmd.Flags().StringVarP(&configPath, "config", "c", "websites.json", "ウェブサイト設定ファイルのパス")
	checkCmd.Flags().StringVarP(&outputDir, "output", "o", ".", "結果ファイルの出力先ディレクトリ")
	checkCmd.Flags().StringVarP(&websiteName, "website", "w", "", "チェック対象を1サイトに限定する（設定の name を指定）")
	checkCmd.Flags().StringVar(&credentialsPath, "credentials", "credentials.json", "Search Console サービスアカウント認証情報のパス")
	checkCmd.Flags().BoolVar(&asXLSX, "xlsx", false, "CSVの代わりに整形済みXLSXで出力する")
}
