package cdp

import (
	"context"
	"time"

	"github.com/mafredri/cdp/devtool"
)

// DefaultWatchInterval 标签页存活检查间隔
const DefaultWatchInterval = 500 * time.Millisecond

// targetService 浏览器 HTTP 调试端点，*devtool.DevTools 满足该接口
type targetService interface {
	List(ctx context.Context) ([]*devtool.Target, error)
	Close(ctx context.Context, t *devtool.Target) error
}

// watch 周期性查询标签页列表，本会话的标签页消失时以 ErrTabStopped 结束会话。
// 页面 V8 内存溢出时 websocket 可能仍然正常，只能通过列表发现。
func (s *Session) watch() error {
	ticker := time.NewTicker(s.opts.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(s.ctx, s.opts.WatchInterval*4)
		targets, err := s.devtools.List(ctx)
		cancel()
		if err != nil {
			if s.ctx.Err() != nil {
				return nil
			}
			s.log.Debug("查询标签页列表失败", "error", err)
			continue
		}
		if !containsTarget(targets, s.targetID) {
			s.log.Warn("标签页已消失", "target", s.targetID)
			s.cancel(ErrTabStopped)
			return nil
		}
	}
}

func containsTarget(targets []*devtool.Target, id string) bool {
	for _, t := range targets {
		if t != nil && t.ID == id {
			return true
		}
	}
	return false
}
