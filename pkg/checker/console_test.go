package checker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shouni/go-index-watch/pkg/cancel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ======================================================================
// モック (Mock) の定義
// ======================================================================

// MockAnalyticsSource は、固定のプロパティとページ集合を返す AnalyticsSource です。
type MockAnalyticsSource struct {
	properties []string
	pages      map[string]struct{}
	listErr    error
	queryErr   error
	queryCalls int
}

func (m *MockAnalyticsSource) ListProperties(ctx context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.properties, nil
}

func (m *MockAnalyticsSource) QueryPages(ctx context.Context, property string, start, end time.Time) (map[string]struct{}, error) {
	m.queryCalls++
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.pages, nil
}

func pageSet(urls ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set
}

// ======================================================================
// テスト関数
// ======================================================================

func TestNewConsoleBackend(t *testing.T) {
	assert.Nil(t, NewConsoleBackend(nil))
	assert.NotNil(t, NewConsoleBackend(&MockAnalyticsSource{}))
}

func TestMatchProperty(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		properties []string
		siteURL    string
		want       string
		found      bool
	}{
		{
			name:       "url_prefix_property",
			properties: []string{"https://other.example.org/", "https://example.com/"},
			siteURL:    "https://example.com/post-1/",
			want:       "https://example.com/",
			found:      true,
		},
		{
			name:       "domain_property",
			properties: []string{"sc-domain:example.com"},
			siteURL:    "https://www.example.com/post-1/",
			want:       "sc-domain:example.com",
			found:      true,
		},
		{
			name:       "subdomain_matches_domain_property",
			properties: []string{"sc-domain:example.com"},
			siteURL:    "https://blog.example.com/post-1/",
			want:       "sc-domain:example.com",
			found:      true,
		},
		{
			name:       "no_match",
			properties: []string{"sc-domain:unrelated.net"},
			siteURL:    "https://example.com/post-1/",
			found:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewConsoleBackend(&MockAnalyticsSource{properties: tt.properties})

			got, ok := backend.MatchProperty(ctx, tt.siteURL)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}

	t.Run("list_failure_means_no_match", func(t *testing.T) {
		backend := NewConsoleBackend(&MockAnalyticsSource{listErr: errors.New("permission denied")})

		_, ok := backend.MatchProperty(ctx, "https://example.com/")
		assert.False(t, ok)
	})
}

func TestConsoleCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("classifies_against_report_pages", func(t *testing.T) {
		source := &MockAnalyticsSource{
			pages: pageSet(
				"https://example.com/seen/",
				"https://example.com/no-slash", // 末尾スラッシュなしでのみ表出
			),
		}
		backend := NewConsoleBackend(source).Bound("https://example.com/")

		urls := []string{
			"https://example.com/seen/",
			"https://example.com/no-slash/",
			"https://example.com/never-seen/",
		}
		results, completed := backend.Check(ctx, urls, nil)

		require.True(t, completed)
		require.Len(t, results, 3)

		assert.Equal(t, StatusIndexed, results[0].Status)
		assert.Equal(t, "Search Console Data", results[0].Method)

		// 末尾スラッシュの別表記で表出していた場合も INDEXED 扱い
		assert.Equal(t, StatusIndexed, results[1].Status)
		assert.Equal(t, "Search Console Data (alt URL)", results[1].Method)

		// データに現れないURLは未インデックスと断定しない
		assert.Equal(t, StatusNotInSourceData, results[2].Status)

		// 各結果にURLごとの判定時刻が記録される
		for _, r := range results {
			assert.False(t, r.CheckedAt.IsZero())
		}
	})

	t.Run("query_failure_yields_empty_batch", func(t *testing.T) {
		source := &MockAnalyticsSource{queryErr: errors.New("invalid_grant: token expired")}
		backend := NewConsoleBackend(source).Bound("https://example.com/")

		results, completed := backend.Check(ctx, []string{"https://example.com/a/"}, nil)

		// 0件 + completed がフォールバックの契機になる
		assert.Empty(t, results)
		assert.True(t, completed)
		// 認証系のエラーはリトライされない
		assert.Equal(t, 1, source.queryCalls)
	})

	t.Run("cancellation_returns_partial_results", func(t *testing.T) {
		sig := cancel.New()
		sig.Set()

		source := &MockAnalyticsSource{pages: pageSet("https://example.com/a/")}
		backend := NewConsoleBackend(source).Bound("https://example.com/")

		results, completed := backend.Check(ctx, []string{"https://example.com/a/", "https://example.com/b/"}, sig)

		assert.False(t, completed)
		assert.Empty(t, results)
	})
}

func TestToggleTrailingSlash(t *testing.T) {
	assert.Equal(t, "https://example.com/a", toggleTrailingSlash("https://example.com/a/"))
	assert.Equal(t, "https://example.com/a/", toggleTrailingSlash("https://example.com/a"))
}
