package cancel

import (
	"sync/atomic"
)

// ----------------------------------------------------------------------
// 協調的キャンセルのための共有シグナル
// ----------------------------------------------------------------------

// Signal は、長時間実行されるループに対して外部から停止を通知するための
// スレッドセーフな共有フラグです。
//
// ハーベスタおよび各バックエンドは、ネットワークアクセスやスリープといった
// 作業単位を開始する「前」にこのフラグを確認し、セットされていれば
// それまでに蓄積した部分結果を返して早期終了します。
// 実行中のHTTPリクエストやスリープを強制中断することはありません。
type Signal struct {
	flag atomic.Bool
}

// New は、新しい未設定状態の Signal を生成します。
func New() *Signal {
	return &Signal{}
}

// Set はキャンセルを通知します。複数回呼び出しても安全です。
func (s *Signal) Set() {
	s.flag.Store(true)
}

// IsSet はキャンセルが通知済みかどうかを返します。
// nil レシーバーに対しては常に false を返します（シグナルなし＝キャンセル不可）。
func (s *Signal) IsSet() bool {
	if s == nil {
		return false
	}
	return s.flag.Load()
}
