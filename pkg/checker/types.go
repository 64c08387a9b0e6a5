// Package checker は、収穫されたページURLに対するインデックス状態の確認を行います。
// 複数のバックエンド（Search Console / 一括チェックAPI / 検索エンジン）を
// 共通のインターフェースで抽象化し、選択・フォールバック・正規化を担います。
package checker

import (
	"strings"
	"time"
)

// ----------------------------------------------------------------------
// ステータス語彙
// ----------------------------------------------------------------------

// Status は、1件のURLに対するインデックス確認の結果を表す閉じた語彙です。
// ERROR のみが ":" 区切りで詳細を伴います。
type Status string

const (
	// StatusIndexed は、URLがインデックスされていることを示します。
	StatusIndexed Status = "INDEXED"
	// StatusNotIndexed は、URLがインデックスされていないことを示します。
	StatusNotIndexed Status = "NOT_INDEXED"
	// StatusNotInSourceData は、判定材料となるデータソースにURLが現れなかった
	// ことを示します。未インデックスの断定はできません。
	StatusNotInSourceData Status = "NOT_IN_SOURCE_DATA"
	// StatusRateLimited は、レート制限によりチェックできなかったことを示します。
	StatusRateLimited Status = "RATE_LIMITED"

	// errorPrefix は ERROR ステータスの接頭辞です。
	errorPrefix = "ERROR"
)

// ErrorStatus は、詳細付きの ERROR ステータスを構築します。
func ErrorStatus(detail string) Status {
	if detail == "" {
		return Status(errorPrefix)
	}
	return Status(errorPrefix + ": " + detail)
}

// IsError は、ステータスが ERROR 系かどうかを返します。
func (s Status) IsError() bool {
	return s == errorPrefix || strings.HasPrefix(string(s), errorPrefix+":")
}

// IsValid は、ステータスが語彙に含まれるかどうかを検証します。
func (s Status) IsValid() bool {
	switch s {
	case StatusIndexed, StatusNotIndexed, StatusNotInSourceData, StatusRateLimited:
		return true
	}
	return s.IsError()
}

// ----------------------------------------------------------------------
// 結果の構造
// ----------------------------------------------------------------------

// RawResult は、バックエンドが返す1件分の生の判定結果です。
// Method はバックエンド固有の表示名で、結果の出所を人間が追跡するためのものです。
// CheckedAt は各URLを判定した時点の時刻です（長時間のバッチでも
// 個々のURLの判定時刻が保存されます）。
type RawResult struct {
	URL       string
	Status    Status
	Method    string
	CheckedAt time.Time
}

// Result は、正規化後の最終的な1件分の確認結果です。
type Result struct {
	URL       string
	Status    Status
	Method    string
	CheckedAt time.Time
}

// RunReport は、1ウェブサイト分のチェック実行の要約です。
// Completed が false の場合、キャンセルにより途中で打ち切られたことを示し、
// Results にはその時点までに確定した結果のみが含まれます。
type RunReport struct {
	WebsiteName string
	Results     []Result
	Completed   bool
	OutputPath  string
}

// CountByStatus は、結果をステータス種別ごとに集計します。
// ERROR 系は詳細を無視して1つの区分にまとめます。
func (r *RunReport) CountByStatus() map[string]int {
	counts := make(map[string]int)
	for _, res := range r.Results {
		key := string(res.Status)
		if res.Status.IsError() {
			key = errorPrefix
		}
		counts[key]++
	}
	return counts
}
