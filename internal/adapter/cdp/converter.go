package cdp

import (
	"parser2gis/internal/dom"
	"parser2gis/pkg/traffic"

	cdpdom "github.com/mafredri/cdp/protocol/dom"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ResourcePreflight CORS 预检请求的资源类型
const ResourcePreflight = "Preflight"

// ToNeutralRequest 将 Network.requestWillBeSent 事件转换为中立 Request 模型
func ToNeutralRequest(raw []byte) *traffic.Request {
	ev := gjson.ParseBytes(raw)
	req := traffic.NewRequest()
	req.ID = ev.Get("requestId").String()
	req.URL = ev.Get("request.url").String()
	req.Method = ev.Get("request.method").String()
	req.ResourceType = ev.Get("type").String()
	copyHeaders(req.Headers, ev.Get("request.headers"))
	req.Meta = stripField(raw, "request")
	return req
}

// ToNeutralResponse 将 Network.responseReceived 事件转换为中立 Response 模型
func ToNeutralResponse(raw []byte) *traffic.Response {
	ev := gjson.ParseBytes(raw)
	res := traffic.NewResponse()
	res.RequestID = ev.Get("requestId").String()
	res.ResourceType = ev.Get("type").String()
	res.URL = ev.Get("response.url").String()
	res.StatusCode = int(ev.Get("response.status").Int())
	res.StatusText = ev.Get("response.statusText").String()
	res.MimeType = ev.Get("response.mimeType").String()
	copyHeaders(res.Headers, ev.Get("response.headers"))
	res.Meta = stripField(raw, "response")
	return res
}

// Failure Network.loadingFailed 事件
type Failure struct {
	RequestID     string
	ResourceType  string
	ErrorText     string
	BlockedReason string
	Canceled      bool
}

// ToFailure 解析 Network.loadingFailed 事件
func ToFailure(raw []byte) Failure {
	ev := gjson.ParseBytes(raw)
	return Failure{
		RequestID:     ev.Get("requestId").String(),
		ResourceType:  ev.Get("type").String(),
		ErrorText:     ev.Get("errorText").String(),
		BlockedReason: ev.Get("blockedReason").String(),
		Canceled:      ev.Get("canceled").Bool(),
	}
}

// ToRawNode 将协议 DOM 节点转换为 dom.RawNode
func ToRawNode(n cdpdom.Node) dom.RawNode {
	raw := dom.RawNode{
		NodeID:        int(n.NodeID),
		BackendNodeID: int(n.BackendNodeID),
		NodeType:      n.NodeType,
		NodeName:      n.NodeName,
		LocalName:     n.LocalName,
		NodeValue:     n.NodeValue,
		Attributes:    n.Attributes,
	}
	if len(n.Children) > 0 {
		raw.Children = make([]dom.RawNode, 0, len(n.Children))
		for _, c := range n.Children {
			raw.Children = append(raw.Children, ToRawNode(c))
		}
	}
	return raw
}

func copyHeaders(dst traffic.Header, src gjson.Result) {
	src.ForEach(func(k, v gjson.Result) bool {
		dst.Set(k.String(), v.String())
		return true
	})
}

// stripField 去掉已单独解析的字段，其余字段作为 Meta 原样保留
func stripField(raw []byte, field string) []byte {
	out, err := sjson.DeleteBytes(raw, field)
	if err != nil {
		return append([]byte(nil), raw...)
	}
	return out
}
