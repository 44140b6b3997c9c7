package crawler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"parser2gis/internal/cdp"
	"parser2gis/internal/dom"
	"parser2gis/pkg/traffic"

	"github.com/tidwall/gjson"
)

type outcome int

const (
	respOK outcome = iota
	respFailed
	respNone
)

type fakeItem struct {
	href     string
	body     []byte
	outcomes []outcome
	clicks   int
}

// fakeSite 内存中的 2GIS：pages 页搜索结果，第 pages+1 页之后的链接不会出现
type fakeSite struct {
	pages   int
	window  int
	status  int
	mime    string
	noDoc   bool
	navErr  error
	state   string
	lazy    bool // 建筑内列表，清空请求表后追加加载下一批
	// idle 非空时替换请求计数脚本的返回值
	idle      json.RawMessage
	idleCalls int
	batches int

	current int
	items   map[int][]*fakeItem
	nodes   map[int]any
	pending []*traffic.Response
	bodies  map[string][]byte
	seq     int

	clickErr   error
	configured []string
	blocked    []string
	scripts    []string
	navigated  []string
	pageClicks []int
	itemClicks []string
	waits      []time.Duration
	gcCalls    int
	clears     int
}

func statHref(page, i int) string {
	token := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("page=%d;item=%d;sign", page, i)))
	return fmt.Sprintf("https://2gis.ru/moscow/firm/70000%d%02d?stat=%s", page, i, url.QueryEscape(token))
}

func itemBody(page, i int) []byte {
	return []byte(fmt.Sprintf(`{"meta":{"code":200},"result":{"items":[{"id":"70000%d%02d","name_ex":{"primary":"Item %d-%d"}}]}}`, page, i, page, i))
}

func newSearchSite(pages, perPage int) *fakeSite {
	s := &fakeSite{pages: pages, status: 200, mime: "text/html", items: make(map[int][]*fakeItem), bodies: make(map[string][]byte)}
	for p := 1; p <= pages; p++ {
		for i := 0; i < perPage; i++ {
			s.items[p] = append(s.items[p], &fakeItem{href: statHref(p, i), body: itemBody(p, i)})
		}
	}
	return s
}

func newBuildingSite(batches, perBatch int) *fakeSite {
	s := &fakeSite{pages: 1, status: 200, mime: "text/html", lazy: true, items: make(map[int][]*fakeItem), bodies: make(map[string][]byte)}
	for b := 1; b <= batches; b++ {
		for i := 0; i < perBatch; i++ {
			s.items[b] = append(s.items[b], &fakeItem{
				href: fmt.Sprintf("https://2gis.ru/moscow/firm/7%d%03d", b, i),
				body: itemBody(b, i),
			})
		}
	}
	s.batches = 1
	return s
}

func (s *fakeSite) item(page, i int) *fakeItem { return s.items[page][i] }

func (s *fakeSite) Configure(_ context.Context, patterns, blocked []string) error {
	s.configured = append(s.configured, patterns...)
	s.blocked = blocked
	return nil
}

func (s *fakeSite) AddStartScript(_ context.Context, source string) error {
	s.scripts = append(s.scripts, source)
	return nil
}

func (s *fakeSite) Navigate(_ context.Context, u, _ string, _ time.Duration) error {
	s.navigated = append(s.navigated, u)
	if s.navErr != nil {
		return s.navErr
	}
	s.current = 1
	return nil
}

func (s *fakeSite) Responses(context.Context, time.Duration) ([]*traffic.Response, error) {
	if s.noDoc {
		return nil, nil
	}
	r := traffic.NewResponse()
	r.RequestID, r.URL, r.StatusCode, r.MimeType = "doc", "https://2gis.ru/", s.status, s.mime
	return []*traffic.Response{r}, nil
}

func (s *fakeSite) WaitResponse(_ context.Context, pattern string, _ time.Duration) (*traffic.Response, error) {
	if pattern != ItemResponsePattern {
		return nil, cdp.ErrUnknownPattern
	}
	if len(s.pending) == 0 {
		return nil, nil
	}
	r := s.pending[0]
	s.pending = s.pending[1:]
	return r, nil
}

func (s *fakeSite) FetchBody(_ context.Context, resp *traffic.Response, _ time.Duration) (json.RawMessage, error) {
	b := s.bodies[resp.RequestID]
	if !gjson.ValidBytes(b) {
		return nil, &cdp.MalformedPayloadError{RequestID: resp.RequestID, Raw: b}
	}
	return b, nil
}

func (s *fakeSite) visibleItems() []*fakeItem {
	if !s.lazy {
		return s.items[s.current]
	}
	var out []*fakeItem
	for b := 1; b <= s.batches; b++ {
		out = append(out, s.items[b]...)
	}
	return out
}

func (s *fakeSite) visiblePages() []int {
	var out []int
	for n := 1; n <= s.pages; n++ {
		if n == s.current {
			continue
		}
		if s.window > 0 && (n < s.current-s.window || n > s.current+s.window) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func (s *fakeSite) Document(context.Context, bool) (*dom.Tree, error) {
	s.nodes = make(map[int]any)
	id := 10
	anchor := func(href string, target any) dom.RawNode {
		id++
		s.nodes[id] = target
		return dom.RawNode{NodeID: id, BackendNodeID: id, NodeType: 1, NodeName: "A", LocalName: "a", Attributes: []string{"href", href, "class", "link"}}
	}
	body := dom.RawNode{NodeID: 3, BackendNodeID: 3, NodeType: 1, NodeName: "BODY", LocalName: "body"}
	body.Children = append(body.Children, anchor("https://2gis.ru/moscow", nil))
	for _, it := range s.visibleItems() {
		body.Children = append(body.Children, anchor(it.href, it))
	}
	if !s.lazy {
		for _, n := range s.visiblePages() {
			body.Children = append(body.Children, anchor(fmt.Sprintf("https://2gis.ru/moscow/search/cafe/page/%d", n), n))
		}
	}
	root := dom.RawNode{NodeID: 1, BackendNodeID: 1, NodeType: 9, NodeName: "#document", Children: []dom.RawNode{
		{NodeID: 2, BackendNodeID: 2, NodeType: 1, NodeName: "HTML", LocalName: "html", Children: []dom.RawNode{body}},
	}}
	return dom.NewTree(root)
}

func (s *fakeSite) Click(_ context.Context, node *dom.Node) error {
	if s.clickErr != nil {
		return s.clickErr
	}
	switch t := s.nodes[node.BackendID].(type) {
	case int:
		s.pageClicks = append(s.pageClicks, t)
		s.current = t
	case *fakeItem:
		s.itemClicks = append(s.itemClicks, t.href)
		o := respOK
		if t.clicks < len(t.outcomes) {
			o = t.outcomes[t.clicks]
		}
		t.clicks++
		s.seq++
		id := fmt.Sprintf("req-%d", s.seq)
		u := "https://catalog.api.2gis.ru/3.0/items/byid?id=" + id
		switch o {
		case respOK:
			r := traffic.NewResponse()
			r.RequestID, r.URL, r.StatusCode, r.MimeType = id, u, 200, "application/json"
			s.bodies[id] = t.body
			s.pending = append(s.pending, r)
		case respFailed:
			s.pending = append(s.pending, traffic.NewFailedResponse(id, u, "net::ERR_FAILED", ""))
		}
	}
	return nil
}

func (s *fakeSite) Evaluate(_ context.Context, expr string) (json.RawMessage, error) {
	switch expr {
	case idleExpression:
		s.idleCalls++
		if s.idle != nil {
			return s.idle, nil
		}
		return json.RawMessage(`true`), nil
	case gcExpression:
		s.gcCalls++
		return json.RawMessage(`false`), nil
	case stateExpr:
		if s.state == "" {
			return nil, nil
		}
		return json.RawMessage(s.state), nil
	}
	return nil, nil
}

func (s *fakeSite) Wait(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func (s *fakeSite) ClearRequests() {
	s.clears++
	if s.lazy && s.batches < len(s.items) {
		s.batches++
	}
}

// memSink 记录写入的文档
type memSink struct {
	docs [][]byte
	err  error
}

func (m *memSink) Write(doc json.RawMessage) error {
	if m.err != nil {
		return m.err
	}
	m.docs = append(m.docs, append([]byte(nil), doc...))
	return nil
}

func testOptions() Options {
	return Options{
		SkipNotFound: true,
		MaxRecords:   1000,
		Blocked:      []string{"https://mc.yandex.ru/*"},
		Timeouts: Timeouts{
			Navigate:  time.Second,
			Responses: 10 * time.Millisecond,
			Idle:      10 * time.Millisecond,
			Links:     10 * time.Millisecond,
			Response:  10 * time.Millisecond,
			Body:      10 * time.Millisecond,
		},
	}
}
