package cdp

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionFailed 在超时时间内无法建立调试连接
	ErrConnectionFailed = errors.New("cdp: connection failed")
	// ErrSessionAborted 外部停止了会话
	ErrSessionAborted = errors.New("cdp: session aborted")
	// ErrTabStopped 标签页意外消失
	ErrTabStopped = errors.New("cdp: tab has been stopped")
	// ErrUnknownPattern 未通过 Configure 注册的响应模式
	ErrUnknownPattern = errors.New("cdp: response pattern not registered")
	// ErrNotConfigured 会话尚未 Configure
	ErrNotConfigured = errors.New("cdp: session not configured")
)

// NavigationError 浏览器报告的导航失败
type NavigationError struct {
	URL     string
	Message string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate %s: %s", e.URL, e.Message)
}

// MalformedPayloadError 响应体不是合法 JSON，Raw 保留原始内容用于排查
type MalformedPayloadError struct {
	RequestID string
	Raw       []byte
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload for request %s (%d bytes)", e.RequestID, len(e.Raw))
}

// IsSessionError 判断是否为会话级错误（需要结束本次抓取）
func IsSessionError(err error) bool {
	return errors.Is(err, ErrSessionAborted) || errors.Is(err, ErrTabStopped) || errors.Is(err, ErrConnectionFailed)
}
