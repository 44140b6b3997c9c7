package traffic

import (
	"encoding/json"
	"strings"
)

// FailedStatus 加载失败（无真实 HTTP 响应）时使用的合成状态码
const FailedStatus = -1

// Header 封装通用的头部操作
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Request 中立的请求模型
type Request struct {
	ID           string // 协议分配的请求ID
	URL          string
	Method       string
	Headers      Header
	ResourceType string
	// Meta 事件中除 request 外的其余字段原样保留
	Meta json.RawMessage

	response *Response
}

// Response 返回已关联的响应，尚未到达时为 nil
func (r *Request) Response() *Response { return r.response }

// Attach 关联响应，只在首次调用时生效
func (r *Request) Attach(resp *Response) bool {
	if r.response != nil || resp == nil {
		return false
	}
	r.response = resp
	return true
}

// Response 中立的响应模型
type Response struct {
	RequestID    string
	URL          string
	StatusCode   int
	StatusText   string
	MimeType     string
	ResourceType string
	Headers      Header
	Body         []byte // 延迟获取
	Meta         json.RawMessage
}

// Failed 是否为加载失败的合成响应
func (r *Response) Failed() bool { return r.StatusCode == FailedStatus }

// NewRequest 创建初始化请求对象
func NewRequest() *Request {
	return &Request{Headers: make(Header)}
}

// NewResponse 创建初始化响应对象
func NewResponse() *Response {
	return &Response{Headers: make(Header)}
}

// NewFailedResponse 创建加载失败的合成响应
func NewFailedResponse(requestID, url, errorText, blockedReason string) *Response {
	var b strings.Builder
	if errorText != "" {
		b.WriteString("error: ")
		b.WriteString(errorText)
	}
	if blockedReason != "" {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString("blocked_reason: ")
		b.WriteString(blockedReason)
	}
	res := NewResponse()
	res.RequestID = requestID
	res.URL = url
	res.StatusCode = FailedStatus
	res.StatusText = b.String()
	return res
}
