package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultMaxRetries は、最大リトライ回数のデフォルト値です。
	DefaultMaxRetries = 3

	// バックオフのカスタム設定
	InitialBackoffInterval = 500 * time.Millisecond
	MaxBackoffInterval     = 5 * time.Second
)

// Operation はリトライ可能な処理を表す関数です。成功時は nil を返します。
type Operation func() error

// ShouldRetryFunc はエラーを受け取り、そのエラーがリトライ可能かどうかを判定する関数です。
type ShouldRetryFunc func(error) bool

// Config はリトライ動作を設定するための構造体です。
type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig は推奨されるデフォルト設定を返します。
func DefaultConfig() Config {
	return Config{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: InitialBackoffInterval,
		MaxInterval:     MaxBackoffInterval,
	}
}

// newBackOffPolicy は、Config とコンテキストから backoff ポリシーを構築します。
func newBackOffPolicy(ctx context.Context, cfg Config) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval

	bo := backoff.WithMaxRetries(b, cfg.MaxRetries)
	return backoff.WithContext(bo, ctx)
}

// Do は指数バックオフとカスタムエラー判定を使用して操作をリトライします。
// shouldRetryFn が false を返したエラーは永続エラーとして扱われ、即座に中断します。
func Do(ctx context.Context, cfg Config, operationName string, op Operation, shouldRetryFn ShouldRetryFunc) error {
	bo := newBackOffPolicy(ctx, cfg)

	var lastErr error

	retryableOp := func() error {
		err := op()
		if err == nil {
			return nil // 成功
		}

		// 外部から渡された判定関数を使用
		if shouldRetryFn(err) {
			lastErr = fmt.Errorf("一時的なエラーが発生、リトライします: %w", err)
			return lastErr
		}

		lastErr = fmt.Errorf("致命的なエラーのためリトライを中止: %w", err)
		return backoff.Permanent(lastErr) // 永続エラーとしてラップし、即時終了
	}

	err := backoff.Retry(retryableOp, bo)
	if err != nil {
		// コンテキストキャンセル/タイムアウトのエラー処理
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return fmt.Errorf("%sに失敗しました: コンテキストタイムアウト/キャンセル: %w", operationName, err)
		}

		// backoff.Permanent でラップされたエラーから元のエラーを取得
		var pErr *backoff.PermanentError
		if errors.As(err, &pErr) {
			return pErr.Err
		}

		// その他のリトライ上限到達エラー
		return fmt.Errorf("%sに失敗しました: 最大リトライ回数 (%d回) に到達。最終エラー: %w", operationName, cfg.MaxRetries, lastErr)
	}
	return nil
}
