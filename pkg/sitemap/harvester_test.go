package sitemap_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shouni/go-index-watch/pkg/cancel"
	"github.com/shouni/go-index-watch/pkg/config"
	"github.com/shouni/go-index-watch/pkg/sitemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ======================================================================
// モック (Mock) の定義
// ======================================================================

// MockFetcher は、URLごとに固定のレスポンスを返す sitemap.Fetcher の実装です。
type MockFetcher struct {
	responses map[string]string
	errors    map[string]error
	calls     []string
}

func (m *MockFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.calls = append(m.calls, url)
	if err, ok := m.errors[url]; ok {
		return nil, err
	}
	if body, ok := m.responses[url]; ok {
		return []byte(body), nil
	}
	return nil, fmt.Errorf("予期しないURLへのアクセス: %s", url)
}

// ======================================================================
// テスト用フィクスチャ
// ======================================================================

const indexXML = `<?xml version="1.0" encoding="UTF-8"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>https://example.com/post-sitemap.xml</loc></sitemap>
  <sitemap><loc>https://example.com/page-sitemap.xml</loc></sitemap>
  <sitemap><loc>https://example.com/author-sitemap.xml</loc></sitemap>
</sitemapindex>`

const postSitemapXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/post-1/</loc></url>
  <url><loc>https://example.com/post-2/</loc></url>
  <url><loc>https://example.com/post-3/</loc></url>
</urlset>`

const pageSitemapXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/about/</loc></url>
  <url><loc>https://example.com/contact/</loc></url>
</urlset>`

const authorSitemapXML = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/author/alice/</loc></url>
</urlset>`

const rssXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <link>https://example.com/</link>
    <item><title>A</title><link>https://example.com/feed-post-1/</link></item>
    <item><title>B</title><link>https://example.com/feed-post-2/</link></item>
  </channel>
</rss>`

func newHarvester(t *testing.T, fetcher sitemap.Fetcher) *sitemap.Harvester {
	t.Helper()
	h, err := sitemap.NewHarvester(fetcher, sitemap.WithPolitenessDelay(0))
	require.NoError(t, err)
	return h
}

// ======================================================================
// テスト関数
// ======================================================================

func TestNewHarvester(t *testing.T) {
	t.Run("nil_fetcher_is_rejected", func(t *testing.T) {
		h, err := sitemap.NewHarvester(nil)
		assert.Error(t, err)
		assert.Nil(t, h)
	})
}

func TestHarvestFromIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("expands_index_in_order", func(t *testing.T) {
		fetcher := &MockFetcher{responses: map[string]string{
			"https://example.com/sitemap_index.xml":  indexXML,
			"https://example.com/post-sitemap.xml":   postSitemapXML,
			"https://example.com/page-sitemap.xml":   pageSitemapXML,
			"https://example.com/author-sitemap.xml": authorSitemapXML,
		}}
		site := config.Website{
			Name:       "Example",
			SitemapURL: "https://example.com/sitemap_index.xml",
		}

		urls := newHarvester(t, fetcher).Harvest(ctx, site, nil)

		// インデックス順に連結され、重複排除は行われない
		assert.Equal(t, []string{
			"https://example.com/post-1/",
			"https://example.com/post-2/",
			"https://example.com/post-3/",
			"https://example.com/about/",
			"https://example.com/contact/",
			"https://example.com/author/alice/",
		}, urls)
	})

	t.Run("harvest_is_idempotent", func(t *testing.T) {
		fetcher := &MockFetcher{responses: map[string]string{
			"https://example.com/sitemap_index.xml":  indexXML,
			"https://example.com/post-sitemap.xml":   postSitemapXML,
			"https://example.com/page-sitemap.xml":   pageSitemapXML,
			"https://example.com/author-sitemap.xml": authorSitemapXML,
		}}
		site := config.Website{Name: "Example", SitemapURL: "https://example.com/sitemap_index.xml"}
		h := newHarvester(t, fetcher)

		first := h.Harvest(ctx, site, nil)
		second := h.Harvest(ctx, site, nil)
		assert.Equal(t, first, second)
	})

	t.Run("exclude_patterns_filter_sub_sitemaps", func(t *testing.T) {
		fetcher := &MockFetcher{responses: map[string]string{
			"https://example.com/sitemap_index.xml": indexXML,
			"https://example.com/post-sitemap.xml":  postSitemapXML,
			"https://example.com/page-sitemap.xml":  pageSitemapXML,
		}}
		site := config.Website{
			Name:            "Example",
			SitemapURL:      "https://example.com/sitemap_index.xml",
			ExcludeSitemaps: []string{"author-sitemap"},
		}

		urls := newHarvester(t, fetcher).Harvest(ctx, site, nil)

		assert.Len(t, urls, 5)
		// 除外されたサイトマップは一切フェッチされない
		assert.NotContains(t, fetcher.calls, "https://example.com/author-sitemap.xml")
	})

	t.Run("index_fetch_failure_yields_empty_list", func(t *testing.T) {
		fetcher := &MockFetcher{errors: map[string]error{
			"https://example.com/sitemap_index.xml": errors.New("connection refused"),
		}}
		site := config.Website{Name: "Example", SitemapURL: "https://example.com/sitemap_index.xml"}

		urls := newHarvester(t, fetcher).Harvest(ctx, site, nil)
		assert.Empty(t, urls)
	})

	t.Run("broken_sub_sitemap_does_not_abort_harvest", func(t *testing.T) {
		fetcher := &MockFetcher{
			responses: map[string]string{
				"https://example.com/sitemap_index.xml":  indexXML,
				"https://example.com/page-sitemap.xml":   pageSitemapXML,
				"https://example.com/author-sitemap.xml": authorSitemapXML,
			},
			errors: map[string]error{
				"https://example.com/post-sitemap.xml": errors.New("HTTP 503"),
			},
		}
		site := config.Website{Name: "Example", SitemapURL: "https://example.com/sitemap_index.xml"}

		urls := newHarvester(t, fetcher).Harvest(ctx, site, nil)

		// 失敗したサイトマップは0件扱いで、後続のサイトマップは処理される
		assert.Equal(t, []string{
			"https://example.com/about/",
			"https://example.com/contact/",
			"https://example.com/author/alice/",
		}, urls)
	})

	t.Run("plain_sitemap_given_as_index_is_tolerated", func(t *testing.T) {
		fetcher := &MockFetcher{responses: map[string]string{
			"https://example.com/sitemap.xml": postSitemapXML,
		}}
		site := config.Website{Name: "Example", SitemapURL: "https://example.com/sitemap.xml"}

		urls := newHarvester(t, fetcher).Harvest(ctx, site, nil)
		assert.Len(t, urls, 3)
	})
}

func TestHarvestFromExplicitList(t *testing.T) {
	ctx := context.Background()

	t.Run("direct_sitemaps_skip_index_expansion", func(t *testing.T) {
		fetcher := &MockFetcher{responses: map[string]string{
			"https://example.com/post-sitemap.xml": postSitemapXML,
			"https://example.com/page-sitemap.xml": pageSitemapXML,
		}}
		site := config.Website{
			Name: "Example",
			SitemapURLs: []string{
				"https://example.com/post-sitemap.xml",
				"https://example.com/page-sitemap.xml",
			},
		}

		urls := newHarvester(t, fetcher).Harvest(ctx, site, nil)
		assert.Len(t, urls, 5)
		assert.Equal(t, "https://example.com/post-1/", urls[0])
	})

	t.Run("feed_source_is_parsed_with_gofeed", func(t *testing.T) {
		fetcher := &MockFetcher{responses: map[string]string{
			"https://example.com/feed/": rssXML,
		}}
		site := config.Website{
			Name:        "Example",
			SitemapURLs: []string{"https://example.com/feed/"},
		}

		urls := newHarvester(t, fetcher).Harvest(ctx, site, nil)
		assert.Equal(t, []string{
			"https://example.com/feed-post-1/",
			"https://example.com/feed-post-2/",
		}, urls)
	})

	t.Run("cancellation_stops_before_next_sitemap", func(t *testing.T) {
		sig := cancel.New()
		sig.Set()

		fetcher := &MockFetcher{responses: map[string]string{
			"https://example.com/post-sitemap.xml": postSitemapXML,
		}}
		site := config.Website{
			Name:        "Example",
			SitemapURLs: []string{"https://example.com/post-sitemap.xml"},
		}

		urls := newHarvester(t, fetcher).Harvest(ctx, site, sig)

		// キャンセル済みのシグナルでは作業単位を一切開始しない
		assert.Empty(t, urls)
		assert.Empty(t, fetcher.calls)
	})
}
