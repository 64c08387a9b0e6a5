package checker

import (
	"log"
	"time"
)

// Normalize は、バックエンドの生の結果を最終結果へ変換します。
//
// 語彙外のステータスは後段（CSV等）へ漏らさず、ここで ERROR に変換して
// ログに記録します。判定時刻はバックエンドが記録した各URLごとの時刻を
// 採用し、記録がない結果には fallback を適用します。
func Normalize(raws []RawResult, fallback time.Time) []Result {
	results := make([]Result, 0, len(raws))
	for _, raw := range raws {
		status := raw.Status
		if !status.IsValid() {
			log.Printf("語彙外のステータス %q を ERROR に変換しました (URL: %s)", raw.Status, raw.URL)
			status = ErrorStatus("invalid status")
		}

		checkedAt := raw.CheckedAt
		if checkedAt.IsZero() {
			checkedAt = fallback
		}

		results = append(results, Result{
			URL:       raw.URL,
			Status:    status,
			Method:    raw.Method,
			CheckedAt: checkedAt,
		})
	}
	return results
}
