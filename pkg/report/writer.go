// Package report は、正規化済みのチェック結果を表形式で永続化します。
// CSV を既定とし、整形済みのXLSXエクスポートも提供します。
package report

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/shouni/go-index-watch/pkg/checker"
)

// ----------------------------------------------------------------------
// 定数定義
// ----------------------------------------------------------------------

const (
	// resultFileSuffix は、結果ファイル名の共通接尾辞です。
	resultFileSuffix = "_indexation_results"

	// timestampLayout は、Check_Date 列の時刻表記です。
	timestampLayout = "2006-01-02 15:04:05"
)

// csvHeader は、結果CSVの固定ヘッダーです。列順は変更しません。
var csvHeader = []string{"URL", "Status", "Method", "Check_Date"}

// ----------------------------------------------------------------------
// ファイル名の生成
// ----------------------------------------------------------------------

// SafeFileName は、ウェブサイト名をファイル名に使える形へ変換します。
// 小文字化し、空白をアンダースコアに、"&" を "and" に置き換えます。
func SafeFileName(siteName string) string {
	name := strings.ToLower(strings.TrimSpace(siteName))
	name = strings.ReplaceAll(name, "&", "and")
	name = strings.Join(strings.Fields(name), "_")
	return name
}

// ----------------------------------------------------------------------
// CSVライター
// ----------------------------------------------------------------------

// CSVWriter は、結果をサイトごとのCSVファイルへ書き出します。
// 同名のファイルが既に存在する場合は上書きします（1サイト1ファイル）。
type CSVWriter struct {
	dir string
}

// NewCSVWriter は、出力先ディレクトリを指定して CSVWriter を生成します。
// 空文字列はカレントディレクトリを意味します。
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{dir: dir}
}

// Write は、結果をCSVへ書き出し、出力先のパスを返します。
// 結果が0件の場合はファイルを作成せず、空のパスを返します。
func (w *CSVWriter) Write(siteName string, results []checker.Result) (string, error) {
	if len(results) == 0 {
		log.Printf("[%s] 結果が0件のため、CSVは作成しません", siteName)
		return "", nil
	}

	path := filepath.Join(w.dir, SafeFileName(siteName)+resultFileSuffix+".csv")

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("結果ファイル(%s)の作成に失敗しました: %w", path, err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(csvHeader); err != nil {
		return "", fmt.Errorf("ヘッダーの書き込みに失敗しました: %w", err)
	}

	for _, r := range results {
		record := []string{
			r.URL,
			string(r.Status),
			r.Method,
			r.CheckedAt.Format(timestampLayout),
		}
		if err := cw.Write(record); err != nil {
			return "", fmt.Errorf("結果行の書き込みに失敗しました: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("CSVのフラッシュに失敗しました: %w", err)
	}

	log.Printf("[%s] %d件の結果を書き出しました: %s", siteName, len(results), path)
	return path, nil
}
