// Package crawler 在单个标签页上抓取 2GIS 的搜索结果、建筑内企业列表和企业页面。
//
// 三种页面形态共用同一个主循环：导航、发现链接、点击触发数据请求、收集响应、翻页。
// 形态之间的差异由 Shape 描述。
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"parser2gis/internal/dom"
	"parser2gis/internal/logger"
	"parser2gis/internal/poll"
	"parser2gis/pkg/traffic"

	"github.com/tidwall/gjson"
)

const (
	// ItemResponsePattern 企业数据接口
	ItemResponsePattern = `https://catalog\.api\.2gis.[^/]+/.*/items/byid`
	// Referer 导航时使用的来源页
	Referer = "https://google.com"

	clickAttempts = 3
)

// xhrCounterScript 统计页面中尚未完成的 2GIS XHR 请求
const xhrCounterScript = `
(function() {
	window.openHTTPs = 0;
	var oldOpen = XMLHttpRequest.prototype.open;
	XMLHttpRequest.prototype.open = function(method, url, async, user, pass) {
		if (String(url).match(/^https?\:\/\/[^\/]*2gis\.[a-z]+/i)) {
			window.openHTTPs++;
			this.addEventListener("readystatechange", function() {
				if (this.readyState == 4) {
					window.openHTTPs--;
				}
			}, false);
		}
		return oldOpen.apply(this, arguments);
	};
})();`

const (
	idleExpression = `window.openHTTPs == 0`
	gcExpression   = `"gc" in window && window.gc()`
	stateExpr      = `window.initialState`
)

var (
	// ErrNoDocument 导航后没有得到 HTML 文档响应
	ErrNoDocument = errors.New("crawler: no document response")
	// ErrSinkFailed 文档写入失败，抓取不再继续
	ErrSinkFailed = errors.New("crawler: write document")

	pageSuffix = regexp.MustCompile(`(?i)/page/(\d+)`)
)

// Tab 抓取引擎使用的标签页操作，*cdp.Session 实现了该接口
type Tab interface {
	Configure(ctx context.Context, patterns, blocked []string) error
	AddStartScript(ctx context.Context, source string) error
	Navigate(ctx context.Context, url, referer string, timeout time.Duration) error
	Responses(ctx context.Context, timeout time.Duration) ([]*traffic.Response, error)
	WaitResponse(ctx context.Context, pattern string, timeout time.Duration) (*traffic.Response, error)
	FetchBody(ctx context.Context, resp *traffic.Response, timeout time.Duration) (json.RawMessage, error)
	Document(ctx context.Context, full bool) (*dom.Tree, error)
	Click(ctx context.Context, node *dom.Node) error
	Evaluate(ctx context.Context, expr string) (json.RawMessage, error)
	Wait(ctx context.Context, d time.Duration) error
	ClearRequests()
}

// Sink 接收抓取到的文档，格式与缓冲由实现负责
type Sink interface {
	Write(doc json.RawMessage) error
}

// SinkFunc 函数形式的 Sink
type SinkFunc func(doc json.RawMessage) error

func (f SinkFunc) Write(doc json.RawMessage) error { return f(doc) }

// State 抓取状态
type State string

const (
	StateInit       State = "init"
	StateNavigated  State = "navigated"
	StateHarvesting State = "harvesting"
	StatePaginating State = "paginating"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Stats 一次抓取的统计
type Stats struct {
	Shape   string
	State   State
	Page    int
	Records int
	Skipped int
	Visited int
}

// Engine 抓取引擎
type Engine struct {
	tab   Tab
	opts  Options
	log   logger.Logger
	stats Stats
}

// New 创建抓取引擎
func New(tab Tab, opts Options, l logger.Logger) *Engine {
	if l == nil {
		l = logger.NewNop()
	}
	opts.Timeouts = opts.Timeouts.withDefaults()
	return &Engine{tab: tab, opts: opts, log: l}
}

// Stats 最近一次 Run 的统计
func (e *Engine) Stats() Stats { return e.stats }

// crawl 单次抓取的状态
type crawl struct {
	shape   Shape
	state   State
	page    int
	walk    int
	visited map[string]struct{}
	records int
	skipped int
	log     logger.Logger
}

func (c *crawl) to(s State) {
	if c.state == s {
		return
	}
	c.log.Debug("状态切换", "from", c.state, "to", s, "page", c.page)
	c.state = s
}

// Run 抓取 url 并将文档写入 sink，返回前总是处于 Done 或 Failed 状态
func (e *Engine) Run(ctx context.Context, url string, sink Sink) (err error) {
	shape := ShapeFor(url)
	c := &crawl{
		shape:   shape,
		state:   StateInit,
		page:    1,
		visited: make(map[string]struct{}),
		log:     e.log.With("url", url, "shape", shape.Name),
	}
	defer func() {
		if err != nil {
			c.to(StateFailed)
		} else {
			c.to(StateDone)
		}
		e.stats = Stats{
			Shape:   shape.Name,
			State:   c.state,
			Page:    c.page,
			Records: c.records,
			Skipped: c.skipped,
			Visited: len(c.visited),
		}
	}()

	if err := e.setup(ctx); err != nil {
		return err
	}

	target := url
	if shape.Paginate {
		target, c.walk = splitPage(url)
		if c.walk <= 1 {
			c.walk = 0
		} else {
			c.log.Info("将从第一页逐页走到目标页", "walk", c.walk)
		}
	}

	ok, err := e.open(ctx, c, target)
	if err != nil || !ok {
		return err
	}

	if shape.Extract == ExtractInitialState {
		c.to(StateHarvesting)
		return e.harvestState(ctx, c, sink)
	}
	return e.loop(ctx, c, sink)
}

func (e *Engine) setup(ctx context.Context) error {
	if err := e.tab.Configure(ctx, []string{ItemResponsePattern}, e.opts.Blocked); err != nil {
		return fmt.Errorf("configure tab: %w", err)
	}
	if err := e.tab.AddStartScript(ctx, xhrCounterScript); err != nil {
		return fmt.Errorf("inject request counter: %w", err)
	}
	return nil
}

// open 导航并检查文档响应，返回 false 表示按配置跳过该页面
func (e *Engine) open(ctx context.Context, c *crawl, url string) (bool, error) {
	if err := e.tab.Navigate(ctx, url, Referer, e.opts.Timeouts.Navigate); err != nil {
		return false, err
	}
	c.to(StateNavigated)

	rs, err := e.tab.Responses(ctx, e.opts.Timeouts.Responses)
	if err != nil {
		return false, err
	}
	if len(rs) == 0 {
		return false, ErrNoDocument
	}
	doc := rs[0]
	if doc.MimeType != "text/html" {
		return false, fmt.Errorf("%w: status %d, mime type %q", ErrNoDocument, doc.StatusCode, doc.MimeType)
	}
	if doc.StatusCode == 404 {
		c.log.Warn(c.shape.NotFoundMessage)
		if e.opts.SkipNotFound {
			return false, nil
		}
	}
	return true, nil
}

// loop Harvesting 与 Paginating 之间的循环
func (e *Engine) loop(ctx context.Context, c *crawl, sink Sink) error {
	for {
		c.to(StateHarvesting)
		if err := e.waitIdle(ctx, c); err != nil {
			return err
		}

		links, err := e.freshLinks(ctx, c)
		if err != nil {
			return err
		}
		if c.shape.StopOnNoNewLinks && len(links) == 0 {
			c.log.Debug("没有新的链接，结束抓取")
			return nil
		}

		if c.walk == 0 {
			full, err := e.harvest(ctx, c, links, sink)
			if err != nil || full {
				return err
			}
		}

		if err := e.collectGarbage(ctx, c); err != nil {
			return err
		}
		e.tab.ClearRequests()

		if !c.shape.Paginate {
			c.page++
			continue
		}

		c.to(StatePaginating)
		more, err := e.paginate(ctx, c)
		if err != nil || !more {
			return err
		}
	}
}

// waitIdle 等待页面中的站点请求全部结束，超时只记录日志
func (e *Engine) waitIdle(ctx context.Context, c *crawl) error {
	idle, err := poll.Until(ctx, poll.Soft(e.opts.Timeouts.Idle), func(ctx context.Context) (bool, error) {
		raw, err := e.tab.Evaluate(ctx, idleExpression)
		if err != nil {
			return false, err
		}
		switch gjson.ParseBytes(raw).Type {
		case gjson.True:
			return true, nil
		case gjson.False:
			return false, nil
		}
		c.log.Debug("请求计数脚本返回了非布尔值", "value", string(raw))
		return false, nil
	}, poll.Truthy[bool])
	if err != nil {
		return err
	}
	if !idle {
		c.log.Warn("等待页面请求完成超时，继续处理")
	}
	return nil
}

// freshLinks 在当前快照中查找尚未访问的条目链接
func (e *Engine) freshLinks(ctx context.Context, c *crawl) ([]*dom.Node, error) {
	return poll.Until(ctx, poll.Soft(e.opts.Timeouts.Links), func(ctx context.Context) ([]*dom.Node, error) {
		tree, err := e.tab.Document(ctx, true)
		if err != nil {
			return nil, err
		}
		return c.unseen(tree.Search(c.shape.match)), nil
	}, func(ns []*dom.Node) bool { return len(ns) > 0 })
}

// unseen 过滤已访问的链接并记录新链接。RejectStale 的形态中只要出现已访问链接，
// 整个快照都视为旧页面。
func (c *crawl) unseen(links []*dom.Node) []*dom.Node {
	out := make([]*dom.Node, 0, len(links))
	seen := make(map[string]struct{}, len(links))
	for _, n := range links {
		href, _ := n.Attr("href")
		if _, ok := c.visited[href]; ok {
			if c.shape.RejectStale {
				return nil
			}
			continue
		}
		if _, ok := seen[href]; ok {
			continue
		}
		seen[href] = struct{}{}
		out = append(out, n)
	}
	for href := range seen {
		c.visited[href] = struct{}{}
	}
	return out
}

func (e *Engine) collectGarbage(ctx context.Context, c *crawl) error {
	if !e.opts.UseGC || e.opts.GCPagesInterval <= 0 || c.page%e.opts.GCPagesInterval != 0 {
		return nil
	}
	c.log.Debug("执行页面垃圾回收")
	if _, err := e.tab.Evaluate(ctx, gcExpression); err != nil && isSessionError(err) {
		return err
	}
	return nil
}

// splitPage 去掉 URL 中的 /page/N 并返回 N
func splitPage(url string) (string, int) {
	walk := 0
	if m := pageSuffix.FindStringSubmatch(url); m != nil {
		walk, _ = strconv.Atoi(m[1])
	}
	return pageSuffix.ReplaceAllString(url, ""), walk
}
