// Package runner 依次抓取多个 URL，每个 URL 使用一个新的浏览器标签页
package runner

import (
	"context"
	"errors"
	"time"

	"parser2gis/internal/cdp"
	"parser2gis/internal/config"
	"parser2gis/internal/crawler"
	"parser2gis/internal/logger"
	"parser2gis/internal/session"
	"parser2gis/pkg/model"

	"github.com/google/uuid"
)

// Tab 运行器驱动的标签页：抓取操作加生命周期
type Tab interface {
	crawler.Tab
	session.Stopper
}

// Dialer 打开一个新的标签页
type Dialer func(ctx context.Context) (Tab, error)

var _ Tab = (*cdp.Session)(nil)

// Runner 多 URL 抓取驱动
type Runner struct {
	cfg      *config.Config
	id       model.RunID
	log      logger.Logger
	sessions *session.Manager
	dial     Dialer
	timeouts crawler.Timeouts
}

// New 创建运行器，标签页通过 cfg.Chrome.Port 上的调试端口打开
func New(cfg *config.Config, l logger.Logger) *Runner {
	if l == nil {
		l = logger.NewNop()
	}
	id := model.RunID(uuid.NewString())
	r := &Runner{
		cfg:      cfg,
		id:       id,
		log:      l.With("run", string(id)),
		sessions: session.NewManager(l),
		timeouts: crawler.DefaultTimeouts(),
	}
	r.dial = func(ctx context.Context) (Tab, error) {
		return cdp.Connect(ctx, cfg.Chrome.Port, cdp.Options{
			Logger:         r.log,
			ConnectTimeout: cfg.ConnectTimeout(),
		})
	}
	return r
}

// ID 本次运行的 ID
func (r *Runner) ID() model.RunID { return r.id }

// Run 依次抓取 urls。标签页异常关闭或页面错误时继续下一个 URL，
// 连接失败、用户中止或写入失败时结束运行。
func (r *Runner) Run(ctx context.Context, urls []string, sink crawler.Sink) (model.RunStats, error) {
	stats := model.RunStats{ID: r.id, Started: time.Now()}
	for _, url := range urls {
		res, err := r.runURL(ctx, url, sink)
		stats.URLs = append(stats.URLs, res)
		if err != nil {
			stats.Finished = time.Now()
			return stats, err
		}
	}
	stats.Finished = time.Now()
	r.log.Info("抓取完成", "urls", len(urls), "records", stats.Records())
	return stats, nil
}

// runURL 抓取单个 URL，仅在需要结束整个运行时返回错误
func (r *Runner) runURL(ctx context.Context, url string, sink crawler.Sink) (res model.URLResult, err error) {
	res = model.URLResult{URL: url, Shape: crawler.ShapeFor(url).Name}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()
	log := r.log.With("url", url)

	if r.sessions.Closed() {
		res.Status = model.URLAborted
		return res, cdp.ErrSessionAborted
	}

	log.Info("开始抓取")
	tab, err := r.dial(ctx)
	if err != nil {
		res.Status = statusOf(err)
		res.Error = Message(err)
		log.Error(res.Error, "error", err)
		return res, err
	}
	res.Target = model.TargetID(tab.TargetID())

	id, ok := r.sessions.Register(tab)
	if !ok {
		res.Status = model.URLAborted
		res.Error = Message(cdp.ErrSessionAborted)
		return res, cdp.ErrSessionAborted
	}
	defer r.sessions.Delete(id)
	defer tab.Stop()

	opts := crawler.NewOptions(r.cfg)
	opts.Timeouts = r.timeouts
	eng := crawler.New(tab, opts, log)
	err = eng.Run(ctx, url, sink)

	st := eng.Stats()
	res.Records, res.Skipped, res.Pages = st.Records, st.Skipped, st.Page
	res.Status = statusOf(err)
	if err == nil {
		log.Info("URL 抓取完成", "records", st.Records, "skipped", st.Skipped, "pages", st.Page)
		return res, nil
	}

	res.Error = Message(err)
	if Fatal(err) {
		log.Error(res.Error, "error", err)
		return res, err
	}
	log.Warn(res.Error, "error", err)
	return res, nil
}

// Stop 中止全部正在进行的抓取
func (r *Runner) Stop() {
	r.sessions.StopAll()
}

// Fatal 错误是否应结束整个运行
func Fatal(err error) bool {
	return errors.Is(err, cdp.ErrConnectionFailed) ||
		errors.Is(err, cdp.ErrSessionAborted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, crawler.ErrSinkFailed)
}

func statusOf(err error) model.URLStatus {
	switch {
	case err == nil:
		return model.URLDone
	case errors.Is(err, cdp.ErrTabStopped):
		return model.URLTabStopped
	case errors.Is(err, cdp.ErrSessionAborted), errors.Is(err, context.Canceled):
		return model.URLAborted
	default:
		return model.URLFailed
	}
}

// Message 面向操作者的错误说明
func Message(err error) string {
	var nav *cdp.NavigationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, cdp.ErrTabStopped):
		return "浏览器标签页已关闭"
	case errors.Is(err, cdp.ErrSessionAborted), errors.Is(err, context.Canceled):
		return "用户中止抓取"
	case errors.Is(err, cdp.ErrConnectionFailed):
		return "无法连接浏览器调试端口"
	case errors.As(err, &nav):
		return "页面导航失败: " + nav.Message
	case errors.Is(err, crawler.ErrNoDocument):
		return "页面没有返回 HTML 文档"
	case errors.Is(err, crawler.ErrSinkFailed):
		return "写入结果失败"
	default:
		return "抓取页面时出错"
	}
}
