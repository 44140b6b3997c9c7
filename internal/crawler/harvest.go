package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"parser2gis/internal/cdp"
	"parser2gis/internal/dom"
	"parser2gis/pkg/traffic"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// harvest 逐个点击链接并写入文档，达到记录上限时返回 true
func (e *Engine) harvest(ctx context.Context, c *crawl, links []*dom.Node, sink Sink) (bool, error) {
	for _, link := range links {
		resp, err := e.trigger(ctx, link)
		if err != nil {
			return false, err
		}
		doc, err := e.body(ctx, c, resp)
		if err != nil {
			return false, err
		}
		if doc == nil {
			c.skipped++
			c.log.Error("未获取到数据，跳过该条目")
			continue
		}
		if err := sink.Write(doc); err != nil {
			return false, fmt.Errorf("%w: %w", ErrSinkFailed, err)
		}
		c.records++
		if e.opts.MaxRecords > 0 && c.records >= e.opts.MaxRecords {
			c.log.Info("已达到该 URL 允许的最大记录数", "records", c.records)
			return true, nil
		}
	}
	return false, nil
}

// trigger 点击链接并等待数据响应，最多尝试 3 次，
// 没有响应或加载失败时重试，返回最后一次结果
func (e *Engine) trigger(ctx context.Context, link *dom.Node) (*traffic.Response, error) {
	var resp *traffic.Response
	for range clickAttempts {
		if err := e.tab.Click(ctx, link); err != nil {
			return nil, err
		}
		if e.opts.DelayBetweenClicks > 0 {
			if err := e.tab.Wait(ctx, e.opts.DelayBetweenClicks); err != nil {
				return nil, err
			}
		}
		r, err := e.tab.WaitResponse(ctx, ItemResponsePattern, e.opts.Timeouts.Response)
		if err != nil {
			return nil, err
		}
		if r != nil {
			resp = r
		}
		if r != nil && !r.Failed() {
			break
		}
	}
	return resp, nil
}

// body 获取可用的文档，记录级失败返回 nil, nil
func (e *Engine) body(ctx context.Context, c *crawl, resp *traffic.Response) (json.RawMessage, error) {
	if resp == nil {
		return nil, nil
	}
	if resp.Failed() {
		c.log.Warn("数据请求加载失败", "status", resp.StatusText)
		return nil, nil
	}
	doc, err := e.tab.FetchBody(ctx, resp, e.opts.Timeouts.Body)
	if err != nil {
		var mp *cdp.MalformedPayloadError
		if errors.As(err, &mp) {
			c.log.Error("服务器返回了不合法的 JSON 文档，跳过该条目", "payload", string(mp.Raw))
			return nil, nil
		}
		if isSessionError(err) {
			return nil, err
		}
		c.log.Err(err, "获取响应体失败")
		return nil, nil
	}
	if emptyDocument(doc) {
		return nil, nil
	}
	return doc, nil
}

// harvestState 读取企业页面内嵌的 initialState 并转换为接口文档格式
func (e *Engine) harvestState(ctx context.Context, c *crawl, sink Sink) error {
	if err := e.waitIdle(ctx, c); err != nil {
		return err
	}
	raw, err := e.tab.Evaluate(ctx, stateExpr)
	if err != nil {
		return err
	}
	var first gjson.Result
	gjson.GetBytes(raw, "data.entity.profile").ForEach(func(_, v gjson.Result) bool {
		first = v
		return false
	})
	if !first.Exists() {
		c.skipped++
		c.log.Warn("未找到企业数据")
		return nil
	}

	doc, err := stateDocument(first)
	if err != nil {
		return err
	}
	if err := sink.Write(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailed, err)
	}
	c.records++
	return nil
}

// stateDocument 构造 {"result":{"items":[data]},"meta":meta}
func stateDocument(profile gjson.Result) (json.RawMessage, error) {
	data := rawOrNull(profile.Get("data"))
	meta := rawOrNull(profile.Get("meta"))

	doc, err := sjson.SetRawBytes([]byte(`{}`), "result.items", append(append([]byte("["), data...), ']'))
	if err != nil {
		return nil, fmt.Errorf("build document: %w", err)
	}
	if doc, err = sjson.SetRawBytes(doc, "meta", meta); err != nil {
		return nil, fmt.Errorf("build document: %w", err)
	}
	return doc, nil
}

func rawOrNull(r gjson.Result) []byte {
	if !r.Exists() || r.Raw == "" {
		return []byte("null")
	}
	return []byte(r.Raw)
}

// emptyDocument 空对象、空数组、null 等视为没有数据
func emptyDocument(doc json.RawMessage) bool {
	r := gjson.ParseBytes(doc)
	switch r.Type {
	case gjson.Null:
		return true
	case gjson.False:
		return true
	case gjson.Number:
		return r.Num == 0
	case gjson.String:
		return r.Str == ""
	case gjson.JSON:
		empty := true
		r.ForEach(func(_, _ gjson.Result) bool {
			empty = false
			return false
		})
		return empty
	}
	return false
}

func isSessionError(err error) bool {
	return cdp.IsSessionError(err) || errors.Is(err, context.Canceled)
}
