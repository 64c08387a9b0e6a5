package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ----------------------------------------------------------------------
// 定数とチェック方式の定義
// ----------------------------------------------------------------------

// CheckingMethod は、ウェブサイトごとに選択されるインデックス確認方式です。
type CheckingMethod string

const (
	// MethodAuto は、信頼度の高い順にバックエンドを試すフォールバック方式です（デフォルト）。
	MethodAuto CheckingMethod = "auto"
	// MethodSearchConsole は、Search Console のレポートAPIのみを使用します。
	MethodSearchConsole CheckingMethod = "search_console"
	// MethodBulkAPI は、サードパーティの一括チェックAPIのみを使用します。
	MethodBulkAPI CheckingMethod = "bulk_api"
	// MethodSearchEngine は、検索エンジンの結果ページのスクレイピングのみを使用します。
	MethodSearchEngine CheckingMethod = "search_engine"
)

// DefaultMaxURLs は、1回のチェックで処理するURL数の上限のデフォルト値です。
const DefaultMaxURLs = 100

// ----------------------------------------------------------------------
// 設定ドキュメントの構造
// ----------------------------------------------------------------------

// Website は、チェック対象サイト1件分の記述子です。
// websites.json の "websites" 配列の1要素に対応します。
type Website struct {
	Name            string         `json:"name"`
	SitemapURL      string         `json:"sitemap_url,omitempty"`
	SitemapURLs     []string       `json:"sitemap_urls,omitempty"`
	ExcludeSitemaps []string       `json:"exclude_sitemaps,omitempty"`
	MaxURLs         int            `json:"max_urls,omitempty"`
	Enabled         bool           `json:"enabled"`
	CheckingMethod  CheckingMethod `json:"checking_method,omitempty"`
	GSCAvailable    bool           `json:"gsc_available,omitempty"`
	IndexedAPIKey   string         `json:"indexed_api_key,omitempty"`
}

// Config は websites.json 全体を表します。
type Config struct {
	Websites []Website `json:"websites"`
}

// UnmarshalJSON は、enabled キーを省略したエントリを有効として扱います。
// 明示的に "enabled": false と書かれたサイトだけが無効化されます。
func (w *Website) UnmarshalJSON(data []byte) error {
	type alias Website
	aux := alias{Enabled: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*w = Website(aux)
	return nil
}

// ----------------------------------------------------------------------
// 読み込みとバリデーション
// ----------------------------------------------------------------------

// Load は、指定パスの websites.json を読み込み、検証済みの Config を返します。
// サイトマップの指定が一切ないウェブサイトは設定エラーとして即座に失敗します
// （ネットワークに触れる前に検出すべき、数少ないハードエラーの一つです）。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイル(%s)の読み込みに失敗しました: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイル(%s)のJSON解析に失敗しました: %w", path, err)
	}

	for i := range cfg.Websites {
		if err := cfg.Websites[i].normalize(); err != nil {
			return nil, fmt.Errorf("ウェブサイト設定 [%d] が不正です: %w", i, err)
		}
	}

	return &cfg, nil
}

// normalize は、1件のウェブサイト記述子にデフォルト値を適用し、検証します。
func (w *Website) normalize() error {
	if w.Name == "" {
		return fmt.Errorf("name は必須です")
	}

	if w.SitemapURL == "" && len(w.SitemapURLs) == 0 {
		return fmt.Errorf("%s: sitemap_url または sitemap_urls のいずれかが必要です", w.Name)
	}

	if w.MaxURLs <= 0 {
		w.MaxURLs = DefaultMaxURLs
	}

	switch w.CheckingMethod {
	case "":
		w.CheckingMethod = MethodAuto
	case MethodAuto, MethodSearchConsole, MethodBulkAPI, MethodSearchEngine:
		// 有効な値
	default:
		return fmt.Errorf("%s: 未知の checking_method です: %q", w.Name, w.CheckingMethod)
	}

	return nil
}

// EnabledWebsites は、有効化されたウェブサイトのみを設定順で返します。
// 無効化されたサイトはコア呼び出しの前にここで除外されます。
func (c *Config) EnabledWebsites() []Website {
	var enabled []Website
	for _, w := range c.Websites {
		if w.Enabled {
			enabled = append(enabled, w)
		}
	}
	return enabled
}

// FindWebsite は、名前の一致するウェブサイトを返します。
func (c *Config) FindWebsite(name string) (Website, bool) {
	for _, w := range c.Websites {
		if w.Name == name {
			return w, true
		}
	}
	return Website{}, false
}
