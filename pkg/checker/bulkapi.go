package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"

	"github.com/shouni/go-http-kit/pkg/httpkit"

	"github.com/shouni/go-index-watch/pkg/cancel"
	"github.com/shouni/go-index-watch/pkg/retry"
)

// ----------------------------------------------------------------------
// 依存性の定義 (DI)
// ----------------------------------------------------------------------

// APIClient は、JSON APIへのアクセスに必要なHTTPクライアントの機能を定義します。
// httpkit.Client がこのインターフェースを満たします。
type APIClient interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
	PostJSONAndFetchBytes(ctx context.Context, url string, data any) ([]byte, error)
}

// ----------------------------------------------------------------------
// 定数と構造体
// ----------------------------------------------------------------------

// DefaultBulkAPIBaseURL は、一括チェックAPIのデフォルトのベースURLです。
const DefaultBulkAPIBaseURL = "https://tool.isindexed.com/api"

// BulkAPIBackend は、サードパーティの一括チェックAPIを使用するバックエンドです。
//
// 現行のAPIは単発チェックとクレジット照会のみを提供しており、バッチ全体を
// 一括で判定するエンドポイントは存在しません。そのため Check は到達性の
// 確認のみを行い、常に0件を返します。auto モードではこの0件が次の
// バックエンドへのフォールバックとして機能します。
type BulkAPIBackend struct {
	client   APIClient
	apiKey   string
	baseURL  string
	retryCfg retry.Config
}

// BulkAPIOption は BulkAPIBackend の設定を行うための関数型です。
type BulkAPIOption func(*BulkAPIBackend)

// WithBulkAPIBaseURL は、APIのベースURLを差し替えます（テスト用）。
func WithBulkAPIBaseURL(baseURL string) BulkAPIOption {
	return func(b *BulkAPIBackend) {
		b.baseURL = baseURL
	}
}

// NewBulkAPIBackend は、新しい BulkAPIBackend を生成します。
func NewBulkAPIBackend(client APIClient, apiKey string, options ...BulkAPIOption) *BulkAPIBackend {
	b := &BulkAPIBackend{
		client:   client,
		apiKey:   apiKey,
		baseURL:  DefaultBulkAPIBaseURL,
		retryCfg: retry.DefaultConfig(),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

func (b *BulkAPIBackend) Name() string { return "bulk_api" }

// ----------------------------------------------------------------------
// チェック処理
// ----------------------------------------------------------------------

// Check は、APIの到達性とクレジット残高を確認します。
// 一括チェックのエンドポイントが提供されていないため、結果は常に0件です。
func (b *BulkAPIBackend) Check(ctx context.Context, urls []string, sig *cancel.Signal) ([]RawResult, bool) {
	if b.apiKey == "" || b.client == nil {
		return nil, true
	}
	if sig.IsSet() {
		return nil, false
	}

	credits, err := b.Credits(ctx)
	if err != nil {
		log.Printf("一括チェックAPIへの接続に失敗しました: %v", err)
		return nil, true
	}

	log.Printf("一括チェックAPIに接続しました (残クレジット: %d) が、バッチ判定は未提供のため別の方式にフォールバックします", credits)
	return nil, true
}

// ----------------------------------------------------------------------
// 個別のAPI操作
// ----------------------------------------------------------------------

// creditsResponse は、クレジット照会エンドポイントのレスポンスです。
type creditsResponse struct {
	Credits int    `json:"credits"`
	Error   string `json:"error,omitempty"`
}

// Credits は、APIキーに紐づく残クレジット数を照会します。
func (b *BulkAPIBackend) Credits(ctx context.Context) (int, error) {
	endpoint := fmt.Sprintf("%s/credits?key=%s", b.baseURL, url.QueryEscape(b.apiKey))

	var data []byte
	err := retry.Do(ctx, b.retryCfg, "クレジット照会", func() error {
		var fetchErr error
		data, fetchErr = b.client.FetchBytes(ctx, endpoint)
		return fetchErr
	}, func(err error) bool {
		return !httpkit.IsNonRetryableError(err)
	})
	if err != nil {
		return 0, err
	}

	var resp creditsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("クレジット照会レスポンスの解析に失敗しました: %w", err)
	}
	if resp.Error != "" {
		return 0, fmt.Errorf("クレジット照会がエラーを返しました: %s", resp.Error)
	}
	return resp.Credits, nil
}

// singleCheckRequest は、単発チェックエンドポイントへのリクエストです。
type singleCheckRequest struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// singleCheckResponse は、単発チェックエンドポイントのレスポンスです。
type singleCheckResponse struct {
	Indexed *bool  `json:"indexed"`
	Error   string `json:"error,omitempty"`
}

// CheckSingle は、1件のURLを単発チェックエンドポイントで判定します。
// バッチ処理には組み込まれていませんが、個別の検証用に公開しています。
func (b *BulkAPIBackend) CheckSingle(ctx context.Context, pageURL string) (Status, error) {
	endpoint := b.baseURL + "/check-single"
	req := singleCheckRequest{Key: b.apiKey, URL: pageURL}

	data, err := b.client.PostJSONAndFetchBytes(ctx, endpoint, req)
	if err != nil {
		return "", fmt.Errorf("単発チェックに失敗しました: %w", err)
	}

	var resp singleCheckResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("単発チェックレスポンスの解析に失敗しました: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("単発チェックがエラーを返しました: %s", resp.Error)
	}
	if resp.Indexed == nil {
		return "", fmt.Errorf("単発チェックレスポンスに判定が含まれていません")
	}

	if *resp.Indexed {
		return StatusIndexed, nil
	}
	return StatusNotIndexed, nil
}
