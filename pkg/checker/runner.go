package checker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shouni/go-index-watch/pkg/cancel"
	"github.com/shouni/go-index-watch/pkg/config"
)

// ----------------------------------------------------------------------
// 依存性の定義 (DI)
// ----------------------------------------------------------------------

// URLSource は、ウェブサイトからチェック対象のページURLを収穫します。
// sitemap.Harvester がこのインターフェースを満たします。
type URLSource interface {
	Harvest(ctx context.Context, site config.Website, sig *cancel.Signal) []string
}

// Planner は、ウェブサイトに対するバックエンドの試行順序を決定します。
type Planner interface {
	Plan(ctx context.Context, site config.Website, firstURL string) []Backend
}

// ResultWriter は、正規化済みの結果を永続化し、出力先のパスを返します。
// report.CSVWriter がこのインターフェースを満たします。
type ResultWriter interface {
	Write(siteName string, results []Result) (string, error)
}

// ----------------------------------------------------------------------
// エラー定義
// ----------------------------------------------------------------------

// ErrNoBackend は、ウェブサイトの設定からバックエンドを1つも構成できなかった
// ことを示します。checking_method と認証情報の組み合わせの不備です。
var ErrNoBackend = errors.New("利用可能なチェック方式がありません（checking_method と認証情報の設定を確認してください）")

// ----------------------------------------------------------------------
// ランナー本体
// ----------------------------------------------------------------------

// Runner は、1ウェブサイト分のチェックパイプライン全体を実行します。
// 収穫 → 方式選択 → チェック → 正規化 → 永続化の順に処理します。
type Runner struct {
	source  URLSource
	planner Planner
	writer  ResultWriter
	now     func() time.Time
}

// NewRunner は、新しい Runner のインスタンスを生成します。
func NewRunner(source URLSource, planner Planner, writer ResultWriter) (*Runner, error) {
	if source == nil {
		return nil, fmt.Errorf("checker.NewRunner: URLSource cannot be nil")
	}
	if planner == nil {
		return nil, fmt.Errorf("checker.NewRunner: Planner cannot be nil")
	}
	if writer == nil {
		return nil, fmt.Errorf("checker.NewRunner: ResultWriter cannot be nil")
	}
	return &Runner{
		source:  source,
		planner: planner,
		writer:  writer,
		now:     time.Now,
	}, nil
}

// CheckWebsite は、1ウェブサイト分のチェックを実行し、実行要約を返します。
//
// バックエンドが1件以上の結果を返した時点でそのバッチを採用します。
// 次のバックエンドへのフォールバックは、結果が0件だった場合にのみ
// 発生します。キャンセルで中断された場合は、その時点までに確定した
// 結果のみを要約に含め、Completed=false とします。
func (r *Runner) CheckWebsite(ctx context.Context, site config.Website, sig *cancel.Signal) (*RunReport, error) {
	report := &RunReport{WebsiteName: site.Name, Completed: true}

	if sig.IsSet() {
		report.Completed = false
		return report, nil
	}

	// 1. URLの収穫
	urls := r.source.Harvest(ctx, site, sig)
	if len(urls) == 0 {
		log.Printf("[%s] チェック対象のURLが収穫できませんでした", site.Name)
		return report, nil
	}

	// 2. 上限による切り詰め（収穫順を保存する）
	if len(urls) > site.MaxURLs {
		log.Printf("[%s] URL数が上限を超えたため切り詰めます: %d -> %d", site.Name, len(urls), site.MaxURLs)
		urls = urls[:site.MaxURLs]
	}

	// 3. バックエンドの選択
	plan := r.planner.Plan(ctx, site, urls[0])
	if len(plan) == 0 {
		return nil, fmt.Errorf("[%s] %w", site.Name, ErrNoBackend)
	}

	// 4. チェックの実行（0件の場合のみフォールバック）
	var raws []RawResult
	completed := true
	for _, backend := range plan {
		log.Printf("[%s] チェック方式 %q で %d件のURLを確認します", site.Name, backend.Name(), len(urls))
		raws, completed = backend.Check(ctx, urls, sig)
		if len(raws) > 0 || !completed {
			break
		}
		log.Printf("[%s] チェック方式 %q では判定できませんでした。次の方式を試します", site.Name, backend.Name())
	}
	report.Completed = completed

	if len(raws) == 0 {
		log.Printf("[%s] いずれの方式でも結果を得られませんでした", site.Name)
		return report, nil
	}

	// 5. 正規化（時刻の記録がない結果には現在時刻を補う）
	report.Results = Normalize(raws, r.now())

	// 6. 永続化（書き込み失敗はチェック結果自体を無効にしない）
	path, err := r.writer.Write(site.Name, report.Results)
	if err != nil {
		log.Printf("[%s] 結果の書き込みに失敗しました: %v", site.Name, err)
	} else {
		report.OutputPath = path
	}

	return report, nil
}
