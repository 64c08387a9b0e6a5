package checker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	textUtils "github.com/shouni/go-utils/text"
	"golang.org/x/time/rate"

	"github.com/shouni/go-index-watch/pkg/cancel"
)

// ----------------------------------------------------------------------
// 定数定義
// ----------------------------------------------------------------------

const (
	// DefaultSERPBaseURL は、検索エンジンの検索エンドポイントです。
	DefaultSERPBaseURL = "https://www.google.com/search"

	// serpRequestTimeout は、検索1回あたりのHTTPタイムアウトです。
	serpRequestTimeout = 10 * time.Second

	// 検索間隔の制御。ブロックを避けるため、基本間隔に加えて
	// 一定件数ごとの長い休止と、レート制限検出後の冷却時間を設けます。
	serpBaseInterval     = 2 * time.Second
	serpBatchSize        = 10
	serpBatchPause       = 5 * time.Second
	serpCooldownAfter429 = 30 * time.Second

	methodSearchEngine = "Google Search"
)

// noResultMarkers は、検索結果が0件であることを示す本文中の文言です。
var noResultMarkers = []string{
	"did not match any documents",
	"No results found",
}

// userAgents は、リクエストごとにローテーションするUA文字列のプールです。
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36",
}

// ----------------------------------------------------------------------
// バックエンド本体
// ----------------------------------------------------------------------

// HTTPDoer は http.Client の Do メソッドを抽象化します。
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SERPBackend は、検索エンジンの結果ページに対する site: 検索で
// インデックス状態を判定するバックエンドです。
//
// レスポンスのステータスコード（特に429）を直接観測する必要があるため、
// httpkit ではなく素の http.Client を使用します。
type SERPBackend struct {
	client     HTTPDoer
	baseURL    string
	limiter    *rate.Limiter
	batchPause time.Duration
	cooldown   time.Duration

	// 複数サイトのチェックで同一インスタンスを共有しても安全なように
	// アトミックにローテーションする
	uaIndex atomic.Uint64
}

// SERPOption は SERPBackend の設定を行うための関数型です。
type SERPOption func(*SERPBackend)

// WithSERPHTTPClient は、HTTPクライアントを差し替えます（テスト用）。
func WithSERPHTTPClient(client HTTPDoer) SERPOption {
	return func(s *SERPBackend) {
		s.client = client
	}
}

// WithSERPBaseURL は、検索エンドポイントを差し替えます（テスト用）。
func WithSERPBaseURL(baseURL string) SERPOption {
	return func(s *SERPBackend) {
		s.baseURL = baseURL
	}
}

// WithSERPPacing は、検索間隔の制御を調整します。テストでは待機を
// 無効化するために interval=0, batchPause=0, cooldown=0 を指定します。
func WithSERPPacing(interval, batchPause, cooldown time.Duration) SERPOption {
	return func(s *SERPBackend) {
		if interval > 0 {
			s.limiter = rate.NewLimiter(rate.Every(interval), 1)
		} else {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
		}
		s.batchPause = batchPause
		s.cooldown = cooldown
	}
}

// NewSERPBackend は、新しい SERPBackend を生成します。
func NewSERPBackend(options ...SERPOption) *SERPBackend {
	s := &SERPBackend{
		client:     &http.Client{Timeout: serpRequestTimeout},
		baseURL:    DefaultSERPBaseURL,
		limiter:    rate.NewLimiter(rate.Every(serpBaseInterval), 1),
		batchPause: serpBatchPause,
		cooldown:   serpCooldownAfter429,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *SERPBackend) Name() string { return "search_engine" }

// ----------------------------------------------------------------------
// チェック処理
// ----------------------------------------------------------------------

// Check は、各URLについて site: 検索を実行し、結果の有無で判定します。
//
// レート制限（HTTP 429）を受けたURLは RATE_LIMITED として記録し、
// 冷却時間をおいて残りのURLの処理を続行します。その他の失敗は
// ERROR として記録します（1件の失敗でバッチ全体は中断しません）。
func (s *SERPBackend) Check(ctx context.Context, urls []string, sig *cancel.Signal) ([]RawResult, bool) {
	results := make([]RawResult, 0, len(urls))

	for i, pageURL := range urls {
		if sig.IsSet() {
			log.Printf("キャンセルが通知されたため、検索エンジンチェックを中断します (処理済み: %d/%d)", i, len(urls))
			return results, false
		}

		// 一定件数ごとの長めの休止
		if i > 0 && i%serpBatchSize == 0 && s.batchPause > 0 {
			log.Printf("検索エンジンチェック: %d件処理済み、%v 休止します", i, s.batchPause)
			if !sleepUnlessCancelled(ctx, s.batchPause, sig) {
				return results, false
			}
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return results, false
		}

		status := s.checkOne(ctx, pageURL)
		results = append(results, RawResult{URL: pageURL, Status: status, Method: methodSearchEngine, CheckedAt: time.Now()})

		// レート制限を検出した場合は冷却時間を挟んでから続行する
		if status == StatusRateLimited && s.cooldown > 0 {
			log.Printf("レート制限を検出しました。%v 待機します", s.cooldown)
			if !sleepUnlessCancelled(ctx, s.cooldown, sig) {
				return results, false
			}
		}
	}

	return results, true
}

// checkOne は、1件のURLに対する site: 検索を実行し、ステータスを返します。
func (s *SERPBackend) checkOne(ctx context.Context, pageURL string) Status {
	query := url.Values{}
	query.Set("q", "site:"+pageURL)
	endpoint := s.baseURL + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ErrorStatus(err.Error())
	}
	req.Header.Set("User-Agent", s.nextUserAgent())
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return ErrorStatus(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return StatusRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return ErrorStatus(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ErrorStatus(fmt.Sprintf("read failed: %v", err))
	}

	return judgeSERPBody(body)
}

// judgeSERPBody は、検索結果ページの本文テキストから判定を下します。
func judgeSERPBody(body []byte) Status {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ErrorStatus(fmt.Sprintf("parse failed: %v", err))
	}

	text := textUtils.NormalizeText(doc.Find("body").Text())
	for _, marker := range noResultMarkers {
		if strings.Contains(text, marker) {
			return StatusNotIndexed
		}
	}
	return StatusIndexed
}

// nextUserAgent は、プールからUA文字列を順繰りに返します。
func (s *SERPBackend) nextUserAgent() string {
	n := s.uaIndex.Add(1) - 1
	return userAgents[n%uint64(len(userAgents))]
}

// sleepUnlessCancelled は、キャンセルを監視しながら待機します。
// 待機を完了した場合に true を返します。
func sleepUnlessCancelled(ctx context.Context, d time.Duration, sig *cancel.Signal) bool {
	const tick = 100 * time.Millisecond

	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if sig.IsSet() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(tick):
		}
	}
	return !sig.IsSet()
}
