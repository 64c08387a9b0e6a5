package sitemap

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mmcdole/gofeed"
)

// errNilFetcher は、Fetcher なしで Harvester を生成しようとした場合のエラーです。
var errNilFetcher = errors.New("sitemap.NewHarvester: Fetcher cannot be nil")

// ----------------------------------------------------------------------
// フィードをURLソースとして扱うためのアダプター
// ----------------------------------------------------------------------

// LinkSource は、リンクの一覧を提供できる任意の型を表します。
type LinkSource interface {
	GetLinks() []string
}

// FeedAdapter は gofeed.Feed を LinkSource に適合させるためのアダプターです。
// gofeed.Feed の具体的な構造への依存を内部に閉じ込めます。
type FeedAdapter struct {
	*gofeed.Feed
}

// NewFeedAdapter は gofeed.Feed から新しいアダプターを作成します。
func NewFeedAdapter(feed *gofeed.Feed) *FeedAdapter {
	return &FeedAdapter{Feed: feed}
}

// GetLinks は LinkSource インターフェースを満たし、gofeed.Feed からリンクを抽出します。
func (a *FeedAdapter) GetLinks() []string {
	if a.Feed == nil || len(a.Items) == 0 {
		return []string{}
	}

	urls := make([]string, 0, len(a.Items))
	for _, item := range a.Items {
		if item.Link != "" {
			urls = append(urls, item.Link)
		}
	}
	return urls
}

// extractFeedLinks は、RSS/Atomフィードのバイト列から記事リンクを抽出します。
// サイトマップとして解釈できないソースに対するフォールバックとして使用します。
func extractFeedLinks(data []byte) ([]string, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("フィードの解析に失敗しました: %w", err)
	}
	return NewFeedAdapter(parsed).GetLinks(), nil
}
