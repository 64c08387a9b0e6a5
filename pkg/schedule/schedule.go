// Package schedule は、定期実行の判定を純粋な関数として提供します。
// 状態の入出力はJSONファイルとの境界に閉じ込め、判定ロジック自体は
// 時刻を引数に取るだけで副作用を持ちません。
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ----------------------------------------------------------------------
// 間隔種別と定数
// ----------------------------------------------------------------------

// IntervalType は、定期実行の間隔の種別です。
type IntervalType string

const (
	IntervalHours    IntervalType = "hours"
	IntervalDaily    IntervalType = "daily"
	IntervalWeekly   IntervalType = "weekly"
	IntervalBiweekly IntervalType = "biweekly"
	IntervalMonthly  IntervalType = "monthly"
)

const (
	// runTimeWindow は、指定時刻との一致を許容する幅です。
	// 判定が1分間隔で呼ばれる前提で、取りこぼしを防ぎます。
	runTimeWindow = 60 * time.Second

	// hoursBuffer は、hours 間隔の判定に許容する前倒し幅です。
	// 前回実行からの経過がわずかに不足していても実行を許可します。
	hoursBuffer = 5 * time.Minute

	// runTimeLayout は run_time フィールドの表記です。
	runTimeLayout = "15:04"
)

// ----------------------------------------------------------------------
// 状態の構造と入出力
// ----------------------------------------------------------------------

// State は、スケジューラの永続状態です。
//
// RunDay は weekly/biweekly ではISO曜日（1=月曜〜7=日曜）、
// monthly では日付（1〜31）を意味します。
type State struct {
	Enabled       bool         `json:"enabled"`
	IntervalType  IntervalType `json:"interval_type"`
	IntervalValue int          `json:"interval_value,omitempty"`
	RunTime       string       `json:"run_time,omitempty"`
	RunDay        int          `json:"run_day,omitempty"`
	LastRun       *time.Time   `json:"last_run,omitempty"`
}

// Load は、状態ファイルを読み込みます。ファイルが存在しない場合は
// 無効状態のデフォルトを返します（初回起動を正常系として扱うため）。
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &State{Enabled: false}, nil
		}
		return nil, fmt.Errorf("状態ファイル(%s)の読み込みに失敗しました: %w", path, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("状態ファイル(%s)のJSON解析に失敗しました: %w", path, err)
	}
	return &state, nil
}

// Save は、状態をJSONとして書き出します。
func Save(path string, state *State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("状態のJSON変換に失敗しました: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("状態ファイル(%s)の書き込みに失敗しました: %w", path, err)
	}
	return nil
}

// MarkRun は、実行時刻を記録します。
func (s *State) MarkRun(now time.Time) {
	t := now
	s.LastRun = &t
}

// ----------------------------------------------------------------------
// 判定ロジック（純粋関数）
// ----------------------------------------------------------------------

// ShouldRun は、与えられた時刻に実行すべきかを判定します。
// 判定は状態を変更しません。実行後の記録は呼び出し側が MarkRun で行います。
func ShouldRun(now time.Time, state *State) bool {
	if state == nil || !state.Enabled {
		return false
	}

	switch state.IntervalType {
	case IntervalHours:
		if state.IntervalValue <= 0 {
			return false
		}
		if state.LastRun == nil {
			return true
		}
		interval := time.Duration(state.IntervalValue) * time.Hour
		return now.Sub(*state.LastRun) >= interval-hoursBuffer

	case IntervalDaily:
		return matchesRunTime(now, state.RunTime) && !ranOnDay(state.LastRun, now)

	case IntervalWeekly:
		return isoWeekday(now) == state.RunDay &&
			matchesRunTime(now, state.RunTime) &&
			ranAtLeastDaysAgo(state.LastRun, now, 6)

	case IntervalBiweekly:
		return isoWeekday(now) == state.RunDay &&
			matchesRunTime(now, state.RunTime) &&
			ranAtLeastDaysAgo(state.LastRun, now, 13)

	case IntervalMonthly:
		return now.Day() == state.RunDay &&
			matchesRunTime(now, state.RunTime) &&
			!ranInMonth(state.LastRun, now)
	}

	return false
}

// NextRun は、次回の実行予定時刻を返します。判定できない状態では
// ゼロ値を返します。
func NextRun(now time.Time, state *State) time.Time {
	if state == nil || !state.Enabled {
		return time.Time{}
	}

	switch state.IntervalType {
	case IntervalHours:
		if state.IntervalValue <= 0 {
			return time.Time{}
		}
		if state.LastRun == nil {
			return now
		}
		return state.LastRun.Add(time.Duration(state.IntervalValue) * time.Hour)

	case IntervalDaily:
		next := atRunTime(now, state.RunTime)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case IntervalWeekly:
		return nextWeekday(now, state, 7)

	case IntervalBiweekly:
		if state.LastRun != nil {
			next := atRunTime(state.LastRun.AddDate(0, 0, 14), state.RunTime)
			if next.After(now) {
				return next
			}
		}
		return nextWeekday(now, state, 7)

	case IntervalMonthly:
		next := atRunTime(time.Date(now.Year(), now.Month(), state.RunDay, 0, 0, 0, 0, now.Location()), state.RunTime)
		if !next.After(now) {
			next = next.AddDate(0, 1, 0)
		}
		return next
	}

	return time.Time{}
}

// ----------------------------------------------------------------------
// 内部ヘルパー
// ----------------------------------------------------------------------

// isoWeekday は、ISO 8601の曜日番号（1=月曜〜7=日曜）を返します。
func isoWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

// matchesRunTime は、now が run_time の許容幅内にあるかを判定します。
func matchesRunTime(now time.Time, runTime string) bool {
	target := atRunTime(now, runTime)
	diff := now.Sub(target)
	return diff >= 0 && diff < runTimeWindow
}

// atRunTime は、基準日の run_time 時刻を返します。解析できない場合は
// 基準日の0時を返します。
func atRunTime(day time.Time, runTime string) time.Time {
	parsed, err := time.Parse(runTimeLayout, runTime)
	if err != nil {
		return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location())
}

// ranOnDay は、lastRun が now と同じ日かを判定します。
func ranOnDay(lastRun *time.Time, now time.Time) bool {
	if lastRun == nil {
		return false
	}
	y1, m1, d1 := lastRun.Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ranAtLeastDaysAgo は、lastRun が nil か、指定日数以上前かを判定します。
// 同じ曜日の連続トリガーによる二重実行を防ぐためのガードです。
func ranAtLeastDaysAgo(lastRun *time.Time, now time.Time, days int) bool {
	if lastRun == nil {
		return true
	}
	return now.Sub(*lastRun) >= time.Duration(days)*24*time.Hour
}

// ranInMonth は、lastRun が now と同じ月かを判定します。
func ranInMonth(lastRun *time.Time, now time.Time) bool {
	if lastRun == nil {
		return false
	}
	return lastRun.Year() == now.Year() && lastRun.Month() == now.Month()
}

// nextWeekday は、state.RunDay の曜日に一致する次の実行時刻を返します。
func nextWeekday(now time.Time, state *State, horizon int) time.Time {
	for i := 0; i <= horizon; i++ {
		day := now.AddDate(0, 0, i)
		if isoWeekday(day) != state.RunDay {
			continue
		}
		next := atRunTime(day, state.RunTime)
		if next.After(now) {
			return next
		}
	}
	return atRunTime(now.AddDate(0, 0, 7), state.RunTime)
}
