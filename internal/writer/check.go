package writer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrUnknownDocument 文档不是目录接口的响应
	ErrUnknownDocument = errors.New("writer: unknown catalog document")
)

// ServerError 服务端在 meta.error 中返回的错误
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return "writer: server returned unknown error"
	}
	return fmt.Sprintf("writer: server returned error: %s", e.Message)
}

// Check 校验目录文档并返回第一条记录
func Check(doc json.RawMessage) (gjson.Result, error) {
	if !gjson.ValidBytes(doc) {
		return gjson.Result{}, ErrUnknownDocument
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return gjson.Result{}, ErrUnknownDocument
	}
	if e := root.Get("meta.error"); e.Exists() {
		return gjson.Result{}, &ServerError{Message: e.Get("message").String()}
	}
	if root.Get("meta.code").Int() != 200 {
		return gjson.Result{}, ErrUnknownDocument
	}
	items := root.Get("result.items")
	if !items.IsArray() {
		return gjson.Result{}, ErrUnknownDocument
	}
	first := items.Get("0")
	if !first.IsObject() {
		return gjson.Result{}, ErrUnknownDocument
	}
	return first, nil
}

// Extra 文档中的记录数超过一条
func Extra(doc json.RawMessage) bool {
	return gjson.GetBytes(doc, "result.items.#").Int() > 1
}

// ItemName 记录的展示名称
func ItemName(item gjson.Result) string {
	if name := item.Get("name_ex.primary").String(); name != "" {
		return name
	}
	if name := item.Get("name").String(); name != "" {
		return name
	}
	return "..."
}

// ItemURL 记录在站点上的地址
func ItemURL(item gjson.Result) string {
	id := item.Get("id").String()
	if id == "" {
		return ""
	}
	id, _, _ = strings.Cut(id, "_")
	return "https://2gis.com/firm/" + id
}
