// Package cdp 通过调试协议驱动单个浏览器标签页。
//
// Session 负责建立连接、跟踪网络请求与响应、按 URL 模式缓存响应队列、
// 执行脚本与 DOM 操作，并在后台监控标签页存活。所有可能与异步事件流竞争的
// 操作都以 poll.Until 表达，会话被停止或标签页消失时会在一个轮询间隔内返回
// ErrSessionAborted 或 ErrTabStopped。
package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	adapter "parser2gis/internal/adapter/cdp"
	"parser2gis/internal/dom"
	"parser2gis/internal/logger"
	"parser2gis/internal/poll"
	"parser2gis/pkg/traffic"

	mcdp "github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	cdpdom "github.com/mafredri/cdp/protocol/dom"
	"github.com/mafredri/cdp/protocol/emulation"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConnectTimeout = 60 * time.Second
	DefaultCallTimeout    = 30 * time.Second

	connectRetryInterval  = 500 * time.Millisecond
	connectAttemptTimeout = 5 * time.Second
	stopTimeout           = 5 * time.Second
)

const hideWebdriverScript = `
Object.defineProperty(navigator, 'webdriver', {
	get: () => undefined
})`

const clickFunction = `(function() { this.scrollIntoView({ block: "center", behavior: "instant" }); this.click(); })`

var emptyObject = json.RawMessage(`{}`)

// Options 会话参数
type Options struct {
	Logger         logger.Logger
	ConnectTimeout time.Duration
	// CallTimeout 单条协议命令的超时
	CallTimeout   time.Duration
	WatchInterval time.Duration
	PollInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.WatchInterval <= 0 {
		o.WatchInterval = DefaultWatchInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = poll.DefaultInterval
	}
	return o
}

// Session 一个标签页的调试会话
type Session struct {
	opts Options
	log  logger.Logger

	devtools targetService
	target   *devtool.Target
	targetID string
	conn     *rpcc.Conn
	client   *mcdp.Client

	tracker    *tracker
	subscribed atomic.Bool

	ctx      context.Context
	cancel   context.CancelCauseFunc
	group    errgroup.Group
	stopOnce sync.Once
}

func newSession(opts Options, svc targetService, target *devtool.Target) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancelCause(context.Background())
	s := &Session{
		opts:     opts,
		log:      opts.Logger,
		devtools: svc,
		target:   target,
		tracker:  newTracker(),
		ctx:      ctx,
		cancel:   cancel,
	}
	if target != nil {
		s.targetID = target.ID
	}
	return s
}

type dialResult struct {
	target *devtool.Target
	conn   *rpcc.Conn
}

// Connect 连接本机调试端口并打开新标签页，失败时在 ConnectTimeout 内重试
func Connect(ctx context.Context, port int, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	dt := devtool.New(fmt.Sprintf("http://127.0.0.1:%d", port))
	s := newSession(opts, dt, nil)

	var lastErr error
	res, err := poll.Until(ctx, poll.Options{Timeout: opts.ConnectTimeout, Interval: connectRetryInterval, Raise: true},
		func(ctx context.Context) (*dialResult, error) {
			actx, cancel := context.WithTimeout(ctx, connectAttemptTimeout)
			defer cancel()
			t, err := dt.Create(actx)
			if err != nil {
				lastErr = err
				return nil, nil
			}
			// 连接的生命周期跟随会话而不是本次尝试
			conn, err := rpcc.DialContext(s.ctx, t.WebSocketDebuggerURL)
			if err != nil {
				lastErr = err
				_ = dt.Close(actx, t)
				return nil, nil
			}
			return &dialResult{target: t, conn: conn}, nil
		},
		func(r *dialResult) bool { return r != nil })
	if err != nil {
		s.cancel(ErrConnectionFailed)
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionAborted, context.Cause(ctx))
		}
		return nil, fmt.Errorf("%w: port %d: %w: %v", ErrConnectionFailed, port, err, lastErr)
	}

	s.target = res.target
	s.targetID = res.target.ID
	s.conn = res.conn
	s.client = mcdp.NewClient(res.conn)
	s.log = opts.Logger.With("target", s.targetID)
	s.group.Go(s.watch)
	s.log.Info("已连接浏览器标签页", "port", port)
	return s, nil
}

// TargetID 标签页 ID
func (s *Session) TargetID() string { return s.targetID }

// Done 会话结束时关闭
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Err 会话结束原因，未结束时为 nil
func (s *Session) Err() error {
	if s.ctx.Err() == nil {
		return nil
	}
	return context.Cause(s.ctx)
}

// Configure 注册响应模式并完成标签页初始化：
// 订阅网络事件、启用各协议域、修正 UA、隐藏 webdriver 痕迹、屏蔽无用请求
func (s *Session) Configure(ctx context.Context, patterns, blocked []string) error {
	if err := s.Err(); err != nil {
		return err
	}
	if err := s.tracker.register(patterns); err != nil {
		return err
	}
	if s.client == nil {
		return ErrNotConfigured
	}
	if !s.subscribed.Swap(true) {
		if err := s.subscribe(); err != nil {
			return err
		}
	}

	cctx, done := s.scope(ctx, s.opts.CallTimeout)
	defer done()

	if err := s.client.Network.Enable(cctx, nil); err != nil {
		return s.wrap(ctx, fmt.Errorf("enable Network: %w", err))
	}
	if err := s.client.DOM.Enable(cctx, nil); err != nil {
		return s.wrap(ctx, fmt.Errorf("enable DOM: %w", err))
	}
	if err := s.client.Page.Enable(cctx); err != nil {
		return s.wrap(ctx, fmt.Errorf("enable Page: %w", err))
	}
	if err := s.client.Runtime.Enable(cctx); err != nil {
		return s.wrap(ctx, fmt.Errorf("enable Runtime: %w", err))
	}
	if err := s.client.Log.Enable(cctx); err != nil {
		return s.wrap(ctx, fmt.Errorf("enable Log: %w", err))
	}

	raw, err := s.Evaluate(ctx, "navigator.userAgent")
	if err != nil {
		return err
	}
	if ua := gjson.ParseBytes(raw).String(); ua != "" {
		fixed := strings.ReplaceAll(ua, "Headless", "")
		if err := s.client.Emulation.SetUserAgentOverride(cctx, emulation.NewSetUserAgentOverrideArgs(fixed)); err != nil {
			return s.wrap(ctx, fmt.Errorf("override user agent: %w", err))
		}
	}

	if err := s.AddStartScript(ctx, hideWebdriverScript); err != nil {
		return err
	}
	if len(blocked) > 0 && !s.AddBlockedURLs(ctx, blocked) {
		s.log.Warn("浏览器不支持屏蔽请求，跳过")
	}
	s.log.Debug("标签页初始化完成", "patterns", len(patterns), "blocked", len(blocked))
	return nil
}

// Navigate 导航到 url，不等待子资源加载
func (s *Session) Navigate(ctx context.Context, url, referer string, timeout time.Duration) error {
	if err := s.Err(); err != nil {
		return err
	}
	cctx, done := s.scope(ctx, timeout)
	defer done()

	args := page.NewNavigateArgs(url)
	if referer != "" {
		args.SetReferrer(referer)
	}
	reply, err := s.client.Page.Navigate(cctx, args)
	if err != nil {
		return s.wrap(ctx, err)
	}
	if reply.ErrorText != nil && *reply.ErrorText != "" {
		return &NavigationError{URL: url, Message: *reply.ErrorText}
	}
	return nil
}

// Responses 返回自上次 ClearRequests 以来已完成（含加载失败）的响应，按请求发起顺序。
// 在 timeout 内等待至少一个响应，超时返回空列表。
func (s *Session) Responses(ctx context.Context, timeout time.Duration) ([]*traffic.Response, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	cctx, done := s.scope(ctx, 0)
	defer done()

	out, err := poll.Until(cctx, s.soft(timeout), func(context.Context) ([]*traffic.Response, error) {
		return s.tracker.responses(), nil
	}, func(rs []*traffic.Response) bool { return len(rs) > 0 })
	if err != nil {
		return nil, s.wrap(ctx, err)
	}
	return out, nil
}

// WaitResponse 从 pattern 的队列中取出最早的响应；超时返回 nil, nil
func (s *Session) WaitResponse(ctx context.Context, pattern string, timeout time.Duration) (*traffic.Response, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	cctx, done := s.scope(ctx, 0)
	defer done()

	resp, err := poll.Until(cctx, s.soft(timeout), func(context.Context) (*traffic.Response, error) {
		return s.tracker.pop(pattern)
	}, func(r *traffic.Response) bool { return r != nil })
	if err != nil {
		return nil, s.wrap(ctx, err)
	}
	return resp, nil
}

// FetchBody 获取响应体原始字节。浏览器已丢弃响应体时返回 {}，
// 不是合法 JSON 时返回 *MalformedPayloadError。
func (s *Session) FetchBody(ctx context.Context, resp *traffic.Response, timeout time.Duration) (json.RawMessage, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	cctx, done := s.scope(ctx, 0)
	defer done()

	id := network.RequestID(resp.RequestID)
	body, err := poll.Until(cctx, s.soft(timeout), func(ctx context.Context) ([]byte, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()
		reply, err := s.client.Network.GetResponseBody(callCtx, network.NewGetResponseBodyArgs(id))
		if err != nil {
			if isProtocolError(err) {
				return nil, nil
			}
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, nil
			}
			return nil, err
		}
		return decodeBody(reply.Body, reply.Base64Encoded)
	}, func(b []byte) bool { return b != nil })
	if err != nil {
		return nil, s.wrap(ctx, err)
	}
	if len(body) == 0 {
		return emptyObject, nil
	}
	resp.Body = body
	if !gjson.ValidBytes(body) {
		return nil, &MalformedPayloadError{RequestID: resp.RequestID, Raw: body}
	}
	return body, nil
}

func decodeBody(body string, base64Encoded bool) ([]byte, error) {
	if !base64Encoded {
		return []byte(body), nil
	}
	b, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("decode base64 body: %w", err)
	}
	return b, nil
}

// Document DOM 快照，full 为 false 时只取根节点
func (s *Session) Document(ctx context.Context, full bool) (*dom.Tree, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	cctx, done := s.scope(ctx, s.opts.CallTimeout)
	defer done()

	args := cdpdom.NewGetDocumentArgs()
	if full {
		args.SetDepth(-1)
	}
	reply, err := s.client.DOM.GetDocument(cctx, args)
	if err != nil {
		return nil, s.wrap(ctx, err)
	}
	return dom.NewTree(adapter.ToRawNode(reply.Root))
}

// Click 滚动到节点并点击，不校验点击效果
func (s *Session) Click(ctx context.Context, node *dom.Node) error {
	if err := s.Err(); err != nil {
		return err
	}
	cctx, done := s.scope(ctx, s.opts.CallTimeout)
	defer done()

	reply, err := s.client.DOM.ResolveNode(cctx, cdpdom.NewResolveNodeArgs().SetBackendNodeID(cdpdom.BackendNodeID(node.BackendID)))
	if err != nil {
		return s.bestEffort(ctx, err, "解析节点失败", "backendId", node.BackendID)
	}
	if reply.Object.ObjectID == nil {
		s.log.Debug("节点没有可用的脚本对象", "backendId", node.BackendID)
		return nil
	}
	args := runtime.NewCallFunctionOnArgs(clickFunction).SetObjectID(*reply.Object.ObjectID)
	if _, err := s.client.Runtime.CallFunctionOn(cctx, args); err != nil {
		return s.bestEffort(ctx, err, "点击节点失败", "backendId", node.BackendID)
	}
	return nil
}

// Evaluate 在页面中执行表达式并按值返回结果，undefined 返回 nil
func (s *Session) Evaluate(ctx context.Context, expr string) (json.RawMessage, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	cctx, done := s.scope(ctx, s.opts.CallTimeout)
	defer done()

	reply, err := s.client.Runtime.Evaluate(cctx, runtime.NewEvaluateArgs(expr).SetReturnByValue(true))
	if err != nil {
		return nil, s.wrap(ctx, err)
	}
	if reply.ExceptionDetails != nil {
		return nil, fmt.Errorf("evaluate %q: %s", expr, reply.ExceptionDetails.Text)
	}
	return reply.Result.Value, nil
}

// AddStartScript 注册每次新文档加载前执行的脚本
func (s *Session) AddStartScript(ctx context.Context, source string) error {
	if err := s.Err(); err != nil {
		return err
	}
	cctx, done := s.scope(ctx, s.opts.CallTimeout)
	defer done()

	if _, err := s.client.Page.AddScriptToEvaluateOnNewDocument(cctx, page.NewAddScriptToEvaluateOnNewDocumentArgs(source)); err != nil {
		return s.wrap(ctx, fmt.Errorf("add start script: %w", err))
	}
	return nil
}

// AddBlockedURLs 在网络层屏蔽通配符匹配的请求，浏览器不支持时返回 false
func (s *Session) AddBlockedURLs(ctx context.Context, patterns []string) bool {
	if s.Err() != nil || s.client == nil {
		return false
	}
	cctx, done := s.scope(ctx, s.opts.CallTimeout)
	defer done()

	if err := s.client.Network.SetBlockedURLs(cctx, network.NewSetBlockedURLsArgs(patterns)); err != nil {
		s.log.Debug("屏蔽请求失败", "error", err)
		return false
	}
	s.tracker.block(patterns)
	return true
}

// ClearRequests 丢弃已跟踪的请求与响应
func (s *Session) ClearRequests() {
	s.tracker.reset()
}

// Wait 空闲等待，会话结束时提前返回
func (s *Session) Wait(ctx context.Context, d time.Duration) error {
	if err := s.Err(); err != nil {
		return err
	}
	cctx, done := s.scope(ctx, 0)
	defer done()
	if err := poll.Sleep(cctx, d); err != nil {
		return s.wrap(ctx, err)
	}
	return nil
}

// Stop 关闭标签页并释放资源，可重复调用，可在任意 goroutine 中调用
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.cancel(ErrSessionAborted)
		if s.devtools != nil && s.target != nil {
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			if err := s.devtools.Close(ctx, s.target); err != nil {
				s.log.Debug("关闭标签页失败，可能已被关闭", "error", err)
			}
			cancel()
		}
		if s.conn != nil {
			_ = s.conn.Close()
		}
		_ = s.group.Wait()
		s.tracker.release()
		s.log.Debug("会话已停止", "cause", context.Cause(s.ctx))
	})
}

// scope 派生单次调用的 context，调用方取消或会话结束都会结束它
func (s *Session) scope(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	cctx, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(s.ctx, func() { cancel(context.Cause(s.ctx)) })
	if timeout <= 0 {
		return cctx, func() {
			stop()
			cancel(nil)
		}
	}
	tctx, tcancel := context.WithTimeout(cctx, timeout)
	return tctx, func() {
		tcancel()
		stop()
		cancel(nil)
	}
}

// wrap 会话已结束时用结束原因替换传输层错误
func (s *Session) wrap(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if s.ctx.Err() != nil {
		return context.Cause(s.ctx)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrSessionAborted, context.Cause(ctx))
	}
	return err
}

func (s *Session) bestEffort(ctx context.Context, err error, msg string, kv ...any) error {
	if werr := s.wrap(ctx, err); IsSessionError(werr) {
		return werr
	}
	s.log.Warn(msg, append(kv, "error", err)...)
	return nil
}

func (s *Session) soft(timeout time.Duration) poll.Options {
	return poll.Options{Timeout: timeout, Interval: s.opts.PollInterval}
}

// isProtocolError 浏览器返回的命令错误（例如响应体已不存在）
func isProtocolError(err error) bool {
	var re *rpcc.ResponseError
	return errors.As(err, &re) || errors.As(mcdp.ErrorCause(err), &re)
}
