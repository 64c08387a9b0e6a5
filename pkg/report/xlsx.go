package report

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/shouni/go-index-watch/pkg/checker"
)

// xlsxSheetName は、結果シートの名前です。
const xlsxSheetName = "Results"

// XLSXWriter は、結果を整形済みのXLSXファイルへ書き出します。
// 表計算ソフトでそのまま確認したい利用者向けのエクスポートです。
type XLSXWriter struct {
	dir string
}

// NewXLSXWriter は、出力先ディレクトリを指定して XLSXWriter を生成します。
func NewXLSXWriter(dir string) *XLSXWriter {
	return &XLSXWriter{dir: dir}
}

// Write は、結果をXLSXへ書き出し、出力先のパスを返します。
// 結果が0件の場合はファイルを作成せず、空のパスを返します。
func (w *XLSXWriter) Write(siteName string, results []checker.Result) (string, error) {
	if len(results) == 0 {
		log.Printf("[%s] 結果が0件のため、XLSXは作成しません", siteName)
		return "", nil
	}

	path := filepath.Join(w.dir, SafeFileName(siteName)+resultFileSuffix+".xlsx")

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(xlsxSheetName)
	if err != nil {
		return "", fmt.Errorf("シートの作成に失敗しました: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return "", fmt.Errorf("既定シートの削除に失敗しました: %w", err)
	}

	// ヘッダー行（太字）
	for col, title := range csvHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return "", err
		}
		if err := f.SetCellValue(xlsxSheetName, cell, title); err != nil {
			return "", fmt.Errorf("ヘッダーの書き込みに失敗しました: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return "", fmt.Errorf("ヘッダースタイルの作成に失敗しました: %w", err)
	}
	if err := f.SetCellStyle(xlsxSheetName, "A1", "D1", headerStyle); err != nil {
		return "", fmt.Errorf("ヘッダースタイルの適用に失敗しました: %w", err)
	}

	// データ行
	for i, r := range results {
		row := i + 2
		values := []any{
			r.URL,
			string(r.Status),
			r.Method,
			r.CheckedAt.Format(timestampLayout),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return "", err
			}
			if err := f.SetCellValue(xlsxSheetName, cell, v); err != nil {
				return "", fmt.Errorf("結果行の書き込みに失敗しました: %w", err)
			}
		}
	}

	// URL列は長くなりがちなので広めに取る
	if err := f.SetColWidth(xlsxSheetName, "A", "A", 60); err != nil {
		return "", fmt.Errorf("列幅の設定に失敗しました: %w", err)
	}
	if err := f.SetColWidth(xlsxSheetName, "B", "D", 25); err != nil {
		return "", fmt.Errorf("列幅の設定に失敗しました: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("結果ファイル(%s)の保存に失敗しました: %w", path, err)
	}

	log.Printf("[%s] %d件の結果を書き出しました: %s", siteName, len(results), path)
	return path, nil
}
