package checker

import (
	"context"
	"fmt"
	"time"

	searchconsole "google.golang.org/api/searchconsole/v1"
	"google.golang.org/api/option"
)

// consoleRowLimit は、1回のレポートクエリで取得する最大行数です。
const consoleRowLimit = 25000

// googleAnalyticsSource は、Google Search Console API を使用した
// AnalyticsSource の実装です。
type googleAnalyticsSource struct {
	service *searchconsole.Service
}

// NewGoogleAnalyticsSource は、サービスアカウントの認証情報ファイルから
// Search Console API クライアントを構築します。
func NewGoogleAnalyticsSource(ctx context.Context, credentialsPath string) (AnalyticsSource, error) {
	svc, err := searchconsole.NewService(ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(searchconsole.WebmastersReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("Search Console クライアントの初期化に失敗しました: %w", err)
	}
	return &googleAnalyticsSource{service: svc}, nil
}

// ListProperties は、認証情報で閲覧可能なプロパティの一覧を返します。
func (g *googleAnalyticsSource) ListProperties(ctx context.Context) ([]string, error) {
	resp, err := g.service.Sites.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("プロパティ一覧の取得に失敗しました: %w", err)
	}

	properties := make([]string, 0, len(resp.SiteEntry))
	for _, entry := range resp.SiteEntry {
		// 権限のないプロパティは照合対象から外す
		if entry.PermissionLevel == "siteUnverifiedUser" {
			continue
		}
		properties = append(properties, entry.SiteUrl)
	}
	return properties, nil
}

// QueryPages は、指定期間に検索結果へ表出したページURLの集合を返します。
func (g *googleAnalyticsSource) QueryPages(ctx context.Context, property string, start, end time.Time) (map[string]struct{}, error) {
	req := &searchconsole.SearchAnalyticsQueryRequest{
		StartDate:  start.Format("2006-01-02"),
		EndDate:    end.Format("2006-01-02"),
		Dimensions: []string{"page"},
		RowLimit:   consoleRowLimit,
	}

	resp, err := g.service.Searchanalytics.Query(property, req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("レポートクエリに失敗しました (%s): %w", property, err)
	}

	pages := make(map[string]struct{}, len(resp.Rows))
	for _, row := range resp.Rows {
		if len(row.Keys) > 0 {
			pages[row.Keys[0]] = struct{}{}
		}
	}
	return pages, nil
}
