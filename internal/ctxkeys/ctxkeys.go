package ctxkeys

import "context"

// RunIDKey 在 context 中携带当前抓取任务 ID
type RunIDKey struct{}

// WithRunID 将任务 ID 写入 context
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey{}, id)
}

// RunID 读取任务 ID，不存在时返回空串
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RunIDKey{}).(string)
	return id
}
