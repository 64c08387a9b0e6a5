package checker

import (
	"context"
	"log"
	"net/url"
	"strings"

	"github.com/shouni/go-index-watch/pkg/cancel"
	"github.com/shouni/go-index-watch/pkg/config"
)

// ----------------------------------------------------------------------
// バックエンドの抽象化
// ----------------------------------------------------------------------

// Backend は、URLのバッチに対してインデックス状態を判定する単一の方式です。
//
// Check は、キャンセルにより中断された場合に completed=false を返します。
// その場合、返される結果はその時点までに確定した分のみです。
// 0件の結果と completed=true の組み合わせは「このバックエンドでは判定
// できなかった」ことを意味し、auto モードでは次のバックエンドへの
// フォールバックの唯一の契機になります。
type Backend interface {
	Name() string
	Check(ctx context.Context, urls []string, sig *cancel.Signal) ([]RawResult, bool)
}

// ----------------------------------------------------------------------
// バックエンドの選択
// ----------------------------------------------------------------------

// BulkBackendFactory は、サイトごとのAPIキーから一括チェックバックエンドを
// 生成する関数です。
type BulkBackendFactory func(apiKey string) Backend

// Selector は、ウェブサイトの設定からバックエンドの試行順序を決定します。
type Selector struct {
	console *ConsoleBackend // Search Console の認証情報がない場合は nil
	newBulk BulkBackendFactory
	serp    Backend
}

// NewSelector は、新しい Selector を生成します。console と newBulk は nil を許容します。
func NewSelector(console *ConsoleBackend, newBulk BulkBackendFactory, serp Backend) *Selector {
	return &Selector{console: console, newBulk: newBulk, serp: serp}
}

// Plan は、1ウェブサイト分のバックエンドの試行順序を返します。
//
// checking_method が明示されている場合はその方式のみを返します。
// auto の場合は信頼度の高い順（Search Console → 一括API → 検索エンジン）に
// 利用可能なものを並べます。空のプランは設定不備を意味します。
func (s *Selector) Plan(ctx context.Context, site config.Website, firstURL string) []Backend {
	switch site.CheckingMethod {
	case config.MethodSearchConsole:
		if b := s.consoleFor(ctx, site, firstURL); b != nil {
			return []Backend{b}
		}
		return nil

	case config.MethodBulkAPI:
		if s.newBulk == nil || site.IndexedAPIKey == "" {
			return nil
		}
		return []Backend{s.newBulk(site.IndexedAPIKey)}

	case config.MethodSearchEngine:
		if s.serp == nil {
			return nil
		}
		return []Backend{s.serp}
	}

	// auto: 利用可能なバックエンドを信頼度順に積む
	var plan []Backend
	if b := s.consoleFor(ctx, site, firstURL); b != nil {
		plan = append(plan, b)
	}
	if s.newBulk != nil && site.IndexedAPIKey != "" {
		plan = append(plan, s.newBulk(site.IndexedAPIKey))
	}
	if s.serp != nil {
		plan = append(plan, s.serp)
	}
	return plan
}

// consoleFor は、サイトに対応する Search Console プロパティが見つかった場合に、
// そのプロパティに束縛されたバックエンドを返します。
//
// gsc_available はあくまで設定上のヒントであり、選択を左右しません。
// 実際にプロパティが照合できるかどうかだけが判定基準です。
func (s *Selector) consoleFor(ctx context.Context, site config.Website, firstURL string) Backend {
	if s.console == nil {
		return nil
	}

	property, ok := s.console.MatchProperty(ctx, firstURL)
	if !ok {
		log.Printf("[%s] Search Console に対応するプロパティが見つかりませんでした", site.Name)
		return nil
	}

	if !site.GSCAvailable {
		log.Printf("[%s] 設定上は gsc_available=false ですが、プロパティ %s が照合できたため使用します", site.Name, property)
	} else {
		log.Printf("[%s] Search Console プロパティを使用します: %s", site.Name, property)
	}
	return s.console.Bound(property)
}

// ----------------------------------------------------------------------
// ドメインの照合
// ----------------------------------------------------------------------

// hostOf は、URLからホスト名を抽出します（www. は無視します）。
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

// domainsMatch は、2つのホスト名が双方向の部分文字列として一致するかを判定します。
// Search Console のドメインプロパティ（sc-domain:example.com）とURLプレフィックス
// プロパティの両方の表記に対応するための緩い照合です。
func domainsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// propertyHost は、Search Console のプロパティ表記からホスト名を取り出します。
func propertyHost(property string) string {
	if rest, ok := strings.CutPrefix(property, "sc-domain:"); ok {
		return strings.TrimPrefix(strings.ToLower(rest), "www.")
	}
	return hostOf(property)
}
