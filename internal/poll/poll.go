// Package poll 提供"轮询直到满足条件或超时"的统一等待封装。
//
// 协议层与抓取引擎中所有与异步事件流竞争的操作都通过 Until 表达：
// 每次调用指定超时、成功判定、轮询间隔，以及超时时是返回错误还是返回最后一次结果。
package poll

import (
	"context"
	"errors"
	"time"
)

// DefaultInterval 默认轮询间隔
const DefaultInterval = 100 * time.Millisecond

// ErrTimeout 硬超时错误，仅在 Options.Raise 为 true 时返回
var ErrTimeout = errors.New("poll: timed out")

// Options 单次轮询参数
type Options struct {
	// Timeout 为 0 时只执行一次
	Timeout  time.Duration
	Interval time.Duration
	// Raise 为 true 时超时返回 ErrTimeout，否则返回最后一次结果与 nil
	Raise bool
}

// Soft 构造超时返回哨兵值的参数
func Soft(timeout time.Duration) Options {
	return Options{Timeout: timeout, Interval: DefaultInterval}
}

// Truthy 对常见结果类型的默认成功判定
func Truthy[T comparable](v T) bool {
	var zero T
	return v != zero
}

// Until 反复调用 fn 直到 done 返回 true、fn 返回错误、ctx 结束或超时。
// ctx 结束时返回 context.Cause(ctx)，调用方据此区分取消原因。
func Until[T any](ctx context.Context, opts Options, fn func(context.Context) (T, error), done func(T) bool) (T, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	deadline := time.Now().Add(opts.Timeout)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, context.Cause(ctx)
		}
		v, err := fn(ctx)
		if err != nil {
			return v, err
		}
		if opts.Timeout <= 0 || done(v) {
			return v, nil
		}
		if !time.Now().Before(deadline) {
			if opts.Raise {
				return v, ErrTimeout
			}
			return v, nil
		}

		if timer == nil {
			timer = time.NewTimer(interval)
		} else {
			timer.Reset(interval)
		}
		select {
		case <-ctx.Done():
			return v, context.Cause(ctx)
		case <-timer.C:
		}
	}
}

// Sleep 可被 ctx 打断的等待
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
