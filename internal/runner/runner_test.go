package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"parser2gis/internal/cdp"
	"parser2gis/internal/config"
	"parser2gis/internal/crawler"
	"parser2gis/internal/dom"
	"parser2gis/internal/writer"
	"parser2gis/pkg/model"
	"parser2gis/pkg/traffic"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const firmState = `{"data":{"entity":{"profile":{"70000001":{"data":{"id":"70000001_x","name":"Кафе"},"meta":{"code":200}}}}}}`

type fakeTab struct {
	id           string
	configureErr error
	navErr       error
	block        bool

	once    sync.Once
	done    chan struct{}
	stopped atomic.Int32
}

func newTab(id string) *fakeTab {
	return &fakeTab{id: id, done: make(chan struct{})}
}

func (t *fakeTab) Configure(context.Context, []string, []string) error { return t.configureErr }
func (t *fakeTab) AddStartScript(context.Context, string) error       { return nil }

func (t *fakeTab) Navigate(ctx context.Context, _, _ string, _ time.Duration) error {
	if t.block {
		<-t.done
		return fmt.Errorf("navigate: %w", cdp.ErrSessionAborted)
	}
	return t.navErr
}

func (t *fakeTab) Responses(context.Context, time.Duration) ([]*traffic.Response, error) {
	resp := traffic.NewResponse()
	resp.URL = "https://2gis.ru/moscow/firm/70000001"
	resp.StatusCode = 200
	resp.MimeType = "text/html"
	return []*traffic.Response{resp}, nil
}

func (t *fakeTab) WaitResponse(context.Context, string, time.Duration) (*traffic.Response, error) {
	return nil, nil
}

func (t *fakeTab) FetchBody(context.Context, *traffic.Response, time.Duration) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (t *fakeTab) Document(context.Context, bool) (*dom.Tree, error) {
	return nil, errors.New("no document in fake tab")
}

func (t *fakeTab) Click(context.Context, *dom.Node) error { return nil }

func (t *fakeTab) Evaluate(_ context.Context, expr string) (json.RawMessage, error) {
	if strings.Contains(expr, "initialState") {
		return json.RawMessage(firmState), nil
	}
	return json.RawMessage(`true`), nil
}

func (t *fakeTab) Wait(context.Context, time.Duration) error { return nil }
func (t *fakeTab) ClearRequests()                           {}

func (t *fakeTab) Stop() {
	t.stopped.Add(1)
	t.once.Do(func() { close(t.done) })
}

func (t *fakeTab) TargetID() string { return t.id }

func firmURL(n int) string {
	return fmt.Sprintf("https://2gis.ru/moscow/firm/7000000%d", n)
}

func testTimeouts() crawler.Timeouts {
	return crawler.Timeouts{
		Navigate:  50 * time.Millisecond,
		Responses: 50 * time.Millisecond,
		Idle:      50 * time.Millisecond,
		Links:     50 * time.Millisecond,
		Response:  50 * time.Millisecond,
		Body:      50 * time.Millisecond,
	}
}

// newTestRunner 依次返回 tabs 中的标签页，元素为 error 时模拟连接失败
func newTestRunner(tabs ...any) (*Runner, *atomic.Int32) {
	r := New(config.NewConfig(), nil)
	r.timeouts = testTimeouts()
	var dials atomic.Int32
	r.dial = func(context.Context) (Tab, error) {
		i := int(dials.Add(1)) - 1
		if i >= len(tabs) {
			return nil, fmt.Errorf("%w: no more tabs", cdp.ErrConnectionFailed)
		}
		switch v := tabs[i].(type) {
		case *fakeTab:
			return v, nil
		case error:
			return nil, v
		}
		panic("unexpected tab")
	}
	return r, &dials
}

type docs struct {
	mu   sync.Mutex
	list []string
	err  error
}

func (d *docs) Write(doc json.RawMessage) error {
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.list = append(d.list, string(doc))
	return nil
}

func TestRunContinuesAfterPageErrors(t *testing.T) {
	t.Parallel()

	ok1, nav, closed, ok2 := newTab("A"), newTab("B"), newTab("C"), newTab("D")
	nav.navErr = &cdp.NavigationError{URL: firmURL(2), Message: "net::ERR_NAME_NOT_RESOLVED"}
	closed.configureErr = fmt.Errorf("enable: %w", cdp.ErrTabStopped)

	r, _ := newTestRunner(ok1, nav, closed, ok2)
	sink := &docs{}
	stats, err := r.Run(context.Background(), []string{firmURL(1), firmURL(2), firmURL(3), firmURL(4)}, sink)
	require.NoError(t, err)

	require.Len(t, stats.URLs, 4)
	got := make([]model.URLStatus, len(stats.URLs))
	for i, u := range stats.URLs {
		got[i] = u.Status
		assert.Equal(t, crawler.FirmShape.Name, u.Shape)
	}
	assert.Equal(t, []model.URLStatus{model.URLDone, model.URLFailed, model.URLTabStopped, model.URLDone}, got)
	assert.Equal(t, "页面导航失败: net::ERR_NAME_NOT_RESOLVED", stats.URLs[1].Error)
	assert.Equal(t, "浏览器标签页已关闭", stats.URLs[2].Error)
	assert.Equal(t, model.TargetID("D"), stats.URLs[3].Target)
	assert.Equal(t, 2, stats.Records())
	assert.Len(t, sink.list, 2)
	assert.Equal(t, r.ID(), stats.ID)
	assert.False(t, stats.Finished.Before(stats.Started))

	for _, tab := range []*fakeTab{ok1, nav, closed, ok2} {
		assert.Equal(t, int32(1), tab.stopped.Load(), "每个标签页只停止一次: %s", tab.id)
	}
	assert.Empty(t, r.sessions.List())
}

func TestRunStopsOnConnectionFailure(t *testing.T) {
	t.Parallel()

	r, dials := newTestRunner(newTab("A"), fmt.Errorf("%w: port 9222: refused", cdp.ErrConnectionFailed))
	stats, err := r.Run(context.Background(), []string{firmURL(1), firmURL(2), firmURL(3)}, &docs{})
	require.ErrorIs(t, err, cdp.ErrConnectionFailed)
	require.Len(t, stats.URLs, 2)
	assert.Equal(t, model.URLFailed, stats.URLs[1].Status)
	assert.Equal(t, "无法连接浏览器调试端口", stats.URLs[1].Error)
	assert.Equal(t, int32(2), dials.Load())
}

func TestRunStopsOnSinkFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	r, dials := newTestRunner(newTab("A"), newTab("B"))
	stats, err := r.Run(context.Background(), []string{firmURL(1), firmURL(2)}, &docs{err: boom})
	require.ErrorIs(t, err, boom)
	require.Len(t, stats.URLs, 1)
	assert.Equal(t, "写入结果失败", stats.URLs[0].Error)
	assert.Equal(t, int32(1), dials.Load())
}

func TestStopAbortsInFlightURL(t *testing.T) {
	defer goleak.VerifyNone(t)

	stuck := newTab("A")
	stuck.block = true
	r, dials := newTestRunner(stuck, newTab("B"))

	type result struct {
		stats model.RunStats
		err   error
	}
	out := make(chan result, 1)
	go func() {
		stats, err := r.Run(context.Background(), []string{firmURL(1), firmURL(2)}, &docs{})
		out <- result{stats, err}
	}()

	require.Eventually(t, func() bool { return len(r.sessions.List()) == 1 }, 2*time.Second, 5*time.Millisecond)
	r.Stop()

	var res result
	select {
	case res = <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop 后运行未结束")
	}
	require.ErrorIs(t, res.err, cdp.ErrSessionAborted)
	require.Len(t, res.stats.URLs, 1)
	assert.Equal(t, model.URLAborted, res.stats.URLs[0].Status)
	assert.Equal(t, "用户中止抓取", res.stats.URLs[0].Error)
	assert.Equal(t, int32(1), dials.Load())

	_, err := r.Run(context.Background(), []string{firmURL(3)}, &docs{})
	assert.ErrorIs(t, err, cdp.ErrSessionAborted, "停止后不再打开新标签页")
	assert.Equal(t, int32(1), dials.Load())
}

func TestMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err   error
		msg   string
		fatal bool
	}{
		{fmt.Errorf("x: %w", cdp.ErrTabStopped), "浏览器标签页已关闭", false},
		{cdp.ErrSessionAborted, "用户中止抓取", true},
		{context.Canceled, "用户中止抓取", true},
		{cdp.ErrConnectionFailed, "无法连接浏览器调试端口", true},
		{&cdp.NavigationError{URL: "u", Message: "boom"}, "页面导航失败: boom", false},
		{fmt.Errorf("%w: status 500", crawler.ErrNoDocument), "页面没有返回 HTML 文档", false},
		{fmt.Errorf("%w: full", crawler.ErrSinkFailed), "写入结果失败", true},
		{errors.New("other"), "抓取页面时出错", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.msg, Message(tt.err), tt.err.Error())
		assert.Equal(t, tt.fatal, Fatal(tt.err), tt.err.Error())
	}
	assert.Empty(t, Message(nil))
}

func TestOutputPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "out/result.json", outputPath("out/result.json", "json", false))
	assert.Equal(t, "out/result.json", outputPath("out/result.json", "xlsx", false))
	assert.Equal(t, "out/result.json", outputPath("out/result.json", "json", true))
	assert.Equal(t, "out/result.xlsx", outputPath("out/result.json", "xlsx", true))
	assert.Equal(t, "out/result.xlsx", outputPath("out/result", "xlsx", true))
}

func TestOpenWriter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Writer.Format = "json,xlsx,sqlite"
	cfg.Writer.Output = filepath.Join(dir, "result.json")
	cfg.Sqlite.Dsn = ":memory:"
	r := New(cfg, nil)

	w, err := r.OpenWriter()
	require.NoError(t, err)
	multi, ok := w.(writer.Multi)
	require.True(t, ok)
	require.Len(t, multi, 3)

	doc := json.RawMessage(`{"meta":{"code":200},"result":{"items":[{"id":"1","name":"Кафе"}]}}`)
	require.NoError(t, w.Write(doc))
	require.NoError(t, w.Close())
	assert.FileExists(t, filepath.Join(dir, "result.json"))
	assert.FileExists(t, filepath.Join(dir, "result.xlsx"))

	cfg.Writer.Format = "json"
	w, err = r.OpenWriter()
	require.NoError(t, err)
	_, ok = w.(*writer.JSONWriter)
	assert.True(t, ok)
	require.NoError(t, w.Close())
}
