package checker

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/shouni/go-index-watch/pkg/cancel"
	"github.com/shouni/go-index-watch/pkg/retry"
)

// ----------------------------------------------------------------------
// Search Console データソースの抽象化 (DI)
// ----------------------------------------------------------------------

// AnalyticsSource は、Search Console のレポートデータへのアクセスを抽象化します。
// 本番では googleAnalyticsSource が、テストではモックがこれを満たします。
type AnalyticsSource interface {
	// ListProperties は、認証情報で閲覧可能なプロパティの一覧を返します。
	ListProperties(ctx context.Context) ([]string, error)
	// QueryPages は、指定期間に検索結果へ表出したページURLの集合を返します。
	QueryPages(ctx context.Context, property string, start, end time.Time) (map[string]struct{}, error)
}

// ----------------------------------------------------------------------
// 定数
// ----------------------------------------------------------------------

const (
	// ConsoleLookbackDays は、レポートデータを遡る日数です。
	// この期間に一度でも表出したページを「インデックス済み」とみなします。
	ConsoleLookbackDays = 90

	methodConsole    = "Search Console Data"
	methodConsoleAlt = "Search Console Data (alt URL)"
)

// ----------------------------------------------------------------------
// バックエンド本体
// ----------------------------------------------------------------------

// ConsoleBackend は、Search Console のレポートデータを根拠とする
// インデックス判定のバックエンドです。
type ConsoleBackend struct {
	source   AnalyticsSource
	retryCfg retry.Config
	now      func() time.Time
}

// NewConsoleBackend は、新しい ConsoleBackend を生成します。
// source が nil の場合は nil を返します（認証情報なしの構成を許容するため）。
func NewConsoleBackend(source AnalyticsSource) *ConsoleBackend {
	if source == nil {
		return nil
	}
	return &ConsoleBackend{
		source:   source,
		retryCfg: retry.DefaultConfig(),
		now:      time.Now,
	}
}

// MatchProperty は、URLのドメインに対応するプロパティを探します。
// ドメインプロパティとURLプレフィックスプロパティの両方を、双方向の
// 部分文字列一致で照合します。
func (c *ConsoleBackend) MatchProperty(ctx context.Context, siteURL string) (string, bool) {
	host := hostOf(siteURL)
	if host == "" {
		return "", false
	}

	var properties []string
	err := retry.Do(ctx, c.retryCfg, "Search Console プロパティ一覧の取得", func() error {
		var listErr error
		properties, listErr = c.source.ListProperties(ctx)
		return listErr
	}, isTransientConsoleError)
	if err != nil {
		log.Printf("Search Console プロパティ一覧の取得に失敗しました: %v", err)
		return "", false
	}

	for _, p := range properties {
		if domainsMatch(host, propertyHost(p)) {
			return p, true
		}
	}
	return "", false
}

// Bound は、特定のプロパティに束縛された Backend を返します。
func (c *ConsoleBackend) Bound(property string) Backend {
	return &boundConsole{backend: c, property: property}
}

// boundConsole は、1つのプロパティに対するチェック実行を表します。
type boundConsole struct {
	backend  *ConsoleBackend
	property string
}

func (b *boundConsole) Name() string { return "search_console" }

// Check は、直近のレポート期間に表出したページの集合と突き合わせます。
//
// 集合に含まれるURLは INDEXED、末尾スラッシュを付け外しした別表記で
// 含まれるURLも INDEXED（別URL扱い）、どちらにも含まれないURLは
// NOT_IN_SOURCE_DATA です。クエリ自体が失敗した場合は0件を返し、
// auto モードでのフォールバックに委ねます。
func (b *boundConsole) Check(ctx context.Context, urls []string, sig *cancel.Signal) ([]RawResult, bool) {
	c := b.backend
	end := c.now()
	start := end.AddDate(0, 0, -ConsoleLookbackDays)

	var pages map[string]struct{}
	err := retry.Do(ctx, c.retryCfg, "Search Console レポートの取得", func() error {
		var queryErr error
		pages, queryErr = c.source.QueryPages(ctx, b.property, start, end)
		return queryErr
	}, isTransientConsoleError)
	if err != nil {
		log.Printf("Search Console レポートの取得に失敗しました (%s): %v", b.property, err)
		return nil, true
	}

	results := make([]RawResult, 0, len(urls))
	for _, u := range urls {
		if sig.IsSet() {
			return results, false
		}

		checkedAt := c.now()
		if _, ok := pages[u]; ok {
			results = append(results, RawResult{URL: u, Status: StatusIndexed, Method: methodConsole, CheckedAt: checkedAt})
			continue
		}
		if _, ok := pages[toggleTrailingSlash(u)]; ok {
			results = append(results, RawResult{URL: u, Status: StatusIndexed, Method: methodConsoleAlt, CheckedAt: checkedAt})
			continue
		}
		results = append(results, RawResult{URL: u, Status: StatusNotInSourceData, Method: methodConsole, CheckedAt: checkedAt})
	}
	return results, true
}

// toggleTrailingSlash は、末尾スラッシュの有無を反転した表記を返します。
func toggleTrailingSlash(u string) string {
	if strings.HasSuffix(u, "/") {
		return strings.TrimSuffix(u, "/")
	}
	return u + "/"
}

// isTransientConsoleError は、Search Console API のエラーがリトライに
// 値するかを判定します。認証・権限系のエラーは永続エラーとして扱います。
func isTransientConsoleError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, fatal := range []string{"permission", "unauthorized", "forbidden", "invalid_grant", "credential"} {
		if strings.Contains(msg, fatal) {
			return false
		}
	}
	return true
}
