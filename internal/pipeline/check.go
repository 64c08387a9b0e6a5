package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"

	"github.com/shouni/go-index-watch/pkg/checker"
	"github.com/shouni/go-index-watch/pkg/config"
	"github.com/shouni/go-index-watch/pkg/report"
	"github.com/shouni/go-index-watch/pkg/sitemap"
)

// RunSiteCheck は、1サイト分のインデックスチェックをデフォルト構成で実行する
// 簡易パイプラインです。ライブラリとして組み込む際の最小の入口になります。
// Search Console は使用せず、一括チェックAPI（キーがあれば）と検索エンジンで判定します。
func RunSiteCheck(configPath, siteName, outputDir string) (*checker.RunReport, error) {
	const (
		clientTimeout  = 30 * time.Second
		overallTimeout = 30 * time.Minute
	)

	// 1. 設定の読み込みと対象サイトの決定
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	site, ok := cfg.FindWebsite(siteName)
	if !ok {
		return nil, fmt.Errorf("ウェブサイト %q は設定に存在しません", siteName)
	}

	// 2. 依存性の初期化
	client := httpkit.New(clientTimeout)

	harvester, err := sitemap.NewHarvester(client)
	if err != nil {
		return nil, fmt.Errorf("Harvesterの初期化エラー: %w", err)
	}

	selector := checker.NewSelector(
		nil,
		func(apiKey string) checker.Backend {
			return checker.NewBulkAPIBackend(client, apiKey)
		},
		checker.NewSERPBackend(),
	)

	runner, err := checker.NewRunner(harvester, selector, report.NewCSVWriter(outputDir))
	if err != nil {
		return nil, fmt.Errorf("Runnerの初期化エラー: %w", err)
	}

	// 3. 全体処理のコンテキストを設定
	ctx, cancel := context.WithTimeout(context.Background(), overallTimeout)
	defer cancel()

	// 4. チェックの実行
	return runner.CheckWebsite(ctx, site, nil)
}
