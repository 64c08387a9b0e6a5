package sitemap

import (
	"bytes"
	"context"
	"log"
	"strings"
	"time"

	parsesitemap "github.com/oxffaa/gopher-parse-sitemap"

	"github.com/shouni/go-index-watch/pkg/cancel"
	"github.com/shouni/go-index-watch/pkg/config"
)

// ----------------------------------------------------------------------
// 依存性の定義 (DI)
// ----------------------------------------------------------------------

// Fetcher は、URLから生のバイト配列を取得する機能のインターフェースを定義します。
// httpkit.Client がこのインターフェースを満たします。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// ----------------------------------------------------------------------
// 定数とコンストラクタ
// ----------------------------------------------------------------------

const (
	// DefaultPolitenessDelay は、サイトマップを連続取得する際の待機時間です。
	// 同一オリジンへの連打を避けるための礼儀的な間隔です。
	DefaultPolitenessDelay = 1 * time.Second
)

// Harvester は、サイトマップ（またはサイトマップインデックス、フィード）から
// ページURLの一覧を収穫します。
type Harvester struct {
	fetcher Fetcher
	delay   time.Duration
}

// Option は Harvester の設定を行うための関数型です。
type Option func(*Harvester)

// WithPolitenessDelay は、サイトマップ間の待機時間を設定します。
// テストでは 0 を指定して待機を無効化できます。
func WithPolitenessDelay(d time.Duration) Option {
	return func(h *Harvester) {
		h.delay = d
	}
}

// NewHarvester は、新しい Harvester のインスタンスを生成します。
func NewHarvester(fetcher Fetcher, options ...Option) (*Harvester, error) {
	if fetcher == nil {
		return nil, errNilFetcher
	}

	h := &Harvester{
		fetcher: fetcher,
		delay:   DefaultPolitenessDelay,
	}
	for _, opt := range options {
		opt(h)
	}
	return h, nil
}

// ----------------------------------------------------------------------
// 収穫のメインロジック
// ----------------------------------------------------------------------

// Harvest は、記述子の指定に従ってページURLの一覧を収穫順で返します。
//
// ネットワークエラーやXML解析エラーはログに記録した上で該当ソースから
// 0件として扱い、残りのソースの処理を続行します。この関数がエラーを
// 返すことはありません（ソフト失敗 = 空リスト）。
// 複数のサイトマップにまたがるURLの重複排除は意図的に行いません。
func (h *Harvester) Harvest(ctx context.Context, site config.Website, sig *cancel.Signal) []string {
	if site.SitemapURL != "" {
		return h.harvestFromIndex(ctx, site, sig)
	}
	return h.harvestFromList(ctx, site.Name, site.SitemapURLs, sig)
}

// harvestFromIndex は、サイトマップインデックスを1段階展開してから
// 各サブサイトマップのページURLを収集します。
func (h *Harvester) harvestFromIndex(ctx context.Context, site config.Website, sig *cancel.Signal) []string {
	data, err := h.fetcher.FetchBytes(ctx, site.SitemapURL)
	if err != nil {
		log.Printf("[%s] サイトマップインデックス(%s)の取得に失敗しました: %v", site.Name, site.SitemapURL, err)
		return nil
	}

	var sitemapURLs []string
	err = parsesitemap.ParseIndex(bytes.NewReader(data), func(e parsesitemap.IndexEntry) error {
		sitemapURLs = append(sitemapURLs, e.GetLocation())
		return nil
	})
	if err != nil || len(sitemapURLs) == 0 {
		// インデックスではなく通常のサイトマップが指定されているケースを許容する
		if urls := extractPageURLs(data); len(urls) > 0 {
			log.Printf("[%s] インデックスではなく単一サイトマップとして処理します (%d件)", site.Name, len(urls))
			return urls
		}
		log.Printf("[%s] サイトマップインデックス(%s)の解析に失敗しました: %v", site.Name, site.SitemapURL, err)
		return nil
	}

	// 除外パターンによるフィルタ（部分文字列一致）
	filtered := filterExcluded(sitemapURLs, site.ExcludeSitemaps)
	log.Printf("[%s] インデックス内のサイトマップ: %d件 (除外後: %d件)", site.Name, len(sitemapURLs), len(filtered))

	return h.harvestFromList(ctx, site.Name, filtered, sig)
}

// harvestFromList は、各サイトマップを順番に取得し、ページURLを連結します。
// 各取得の間には礼儀的な待機を挟みます。
func (h *Harvester) harvestFromList(ctx context.Context, siteName string, sitemapURLs []string, sig *cancel.Signal) []string {
	var all []string

	for i, sitemapURL := range sitemapURLs {
		if sig.IsSet() {
			log.Printf("[%s] キャンセルが通知されたため、収穫を中断します (処理済み: %d/%d)", siteName, i, len(sitemapURLs))
			return all
		}

		log.Printf("[%s] サイトマップを処理中: %s", siteName, sitemapURL)
		urls := h.fetchPageURLs(ctx, siteName, sitemapURL)
		all = append(all, urls...)

		// 最後の1件の後には待機しない
		if i < len(sitemapURLs)-1 && h.delay > 0 {
			if sig.IsSet() {
				return all
			}
			time.Sleep(h.delay)
		}
	}

	return all
}

// fetchPageURLs は、単一のサイトマップ（またはフィード）からページURLを抽出します。
// 失敗はログに記録し、0件として扱います。
func (h *Harvester) fetchPageURLs(ctx context.Context, siteName, sitemapURL string) []string {
	data, err := h.fetcher.FetchBytes(ctx, sitemapURL)
	if err != nil {
		log.Printf("[%s] サイトマップ(%s)の取得に失敗しました: %v", siteName, sitemapURL, err)
		return nil
	}

	if urls := extractPageURLs(data); len(urls) > 0 {
		return urls
	}

	// サイトマップとして解釈できない場合、RSS/Atomフィードとして解釈を試みる
	if urls, feedErr := extractFeedLinks(data); feedErr == nil && len(urls) > 0 {
		log.Printf("[%s] フィードとして解析しました: %s (%d件)", siteName, sitemapURL, len(urls))
		return urls
	}

	log.Printf("[%s] サイトマップ(%s)からURLを抽出できませんでした", siteName, sitemapURL)
	return nil
}

// extractPageURLs は urlset 形式のサイトマップから <loc> を収集します。
func extractPageURLs(data []byte) []string {
	var urls []string
	err := parsesitemap.Parse(bytes.NewReader(data), func(e parsesitemap.Entry) error {
		urls = append(urls, e.GetLocation())
		return nil
	})
	if err != nil {
		return nil
	}
	return urls
}

// filterExcluded は、除外パターンのいずれかを部分文字列として含むURLを取り除きます。
func filterExcluded(urls []string, excludes []string) []string {
	if len(excludes) == 0 {
		return urls
	}

	filtered := make([]string, 0, len(urls))
	for _, u := range urls {
		excluded := false
		for _, pattern := range excludes {
			if pattern != "" && strings.Contains(u, pattern) {
				excluded = true
				break
			}
		}
		if !excluded {
			filtered = append(filtered, u)
		}
	}
	return filtered
}
