package cdp

import (
	"fmt"
	"regexp"
	"sync"

	adapter "parser2gis/internal/adapter/cdp"
	"parser2gis/internal/rules"
	"parser2gis/pkg/traffic"
)

type eventKind int

const (
	eventRequestSent eventKind = iota + 1
	eventResponseReceived
	eventLoadingFailed
)

// event 网络事件的统一表示，由 decodeEvent 产生并交给 tracker.dispatch
type event struct {
	kind     eventKind
	request  *traffic.Request
	response *traffic.Response
	failure  adapter.Failure
}

type patternQueue struct {
	pattern string
	re      *regexp.Regexp
	queue   *traffic.ResponseQueue
}

// tracker 请求表与按模式划分的响应队列
type tracker struct {
	mu       sync.Mutex
	requests map[string]*traffic.Request
	order    []string
	queues   []*patternQueue
	blocked  *rules.Engine
}

func newTracker() *tracker {
	return &tracker{
		requests: make(map[string]*traffic.Request),
		blocked:  rules.NewGlob(nil),
	}
}

// register 注册响应模式，模式从 URL 开头匹配
func (t *tracker) register(patterns []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range patterns {
		if t.lookup(p) != nil {
			continue
		}
		re, err := rules.Compile("^(?:" + p + ")")
		if err != nil {
			return fmt.Errorf("response pattern %q: %w", p, err)
		}
		t.queues = append(t.queues, &patternQueue{pattern: p, re: re, queue: traffic.NewResponseQueue()})
	}
	return nil
}

// block 记录已在网络层屏蔽的通配符，命中的请求不再跟踪
func (t *tracker) block(patterns []string) {
	t.blocked.Add(patterns...)
}

func (t *tracker) lookup(pattern string) *patternQueue {
	for _, q := range t.queues {
		if q.pattern == pattern {
			return q
		}
	}
	return nil
}

// dispatch 处理一次网络事件：请求表关联与队列投递互不依赖
func (t *tracker) dispatch(ev event) {
	switch ev.kind {
	case eventRequestSent:
		req := ev.request
		if req == nil || req.ResourceType == adapter.ResourcePreflight || t.blocked.Match(req.URL) {
			return
		}
		t.mu.Lock()
		if _, ok := t.requests[req.ID]; !ok {
			t.order = append(t.order, req.ID)
		}
		t.requests[req.ID] = req
		t.mu.Unlock()

	case eventResponseReceived:
		resp := ev.response
		if resp == nil || resp.ResourceType == adapter.ResourcePreflight {
			return
		}
		t.mu.Lock()
		if req, ok := t.requests[resp.RequestID]; ok {
			req.Attach(resp)
		}
		t.mu.Unlock()
		t.enqueue(resp.URL, resp)

	case eventLoadingFailed:
		f := ev.failure
		var url string
		var resp *traffic.Response
		t.mu.Lock()
		if req, ok := t.requests[f.RequestID]; ok {
			url = req.URL
			resp = traffic.NewFailedResponse(f.RequestID, url, f.ErrorText, f.BlockedReason)
			resp.ResourceType = f.ResourceType
			req.Attach(resp)
		}
		t.mu.Unlock()
		if resp != nil {
			t.enqueue(url, resp)
		}
	}
}

func (t *tracker) enqueue(url string, resp *traffic.Response) {
	t.mu.Lock()
	queues := t.queues
	t.mu.Unlock()
	for _, q := range queues {
		if q.re.MatchString(url) {
			q.queue.Push(resp)
		}
	}
}

// responses 按请求发起顺序返回已有响应的请求结果
func (t *tracker) responses() []*traffic.Response {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*traffic.Response, 0, len(t.order))
	for _, id := range t.order {
		if resp := t.requests[id].Response(); resp != nil {
			out = append(out, resp)
		}
	}
	return out
}

// pop 非阻塞取出模式队列中最早的响应
func (t *tracker) pop(pattern string) (*traffic.Response, error) {
	t.mu.Lock()
	q := t.lookup(pattern)
	t.mu.Unlock()
	if q == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPattern, pattern)
	}
	resp, _ := q.queue.Pop()
	return resp, nil
}

// reset 清空请求表，队列保持不变
func (t *tracker) reset() {
	t.mu.Lock()
	t.requests = make(map[string]*traffic.Request)
	t.order = nil
	t.mu.Unlock()
}

// release 清空请求表并释放所有队列中的响应
func (t *tracker) release() {
	t.mu.Lock()
	t.requests = make(map[string]*traffic.Request)
	t.order = nil
	for _, q := range t.queues {
		q.queue.Drain()
	}
	t.mu.Unlock()
}

func (t *tracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}
