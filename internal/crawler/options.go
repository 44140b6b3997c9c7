package crawler

import (
	"time"

	"parser2gis/internal/config"
	"parser2gis/internal/rules"
)

// Timeouts 各阶段等待时间
type Timeouts struct {
	Navigate  time.Duration // 导航
	Responses time.Duration // 文档响应
	Idle      time.Duration // 等待站点请求全部完成
	Links     time.Duration // 获取新链接
	Response  time.Duration // 点击后的数据响应
	Body      time.Duration // 响应体
}

// DefaultTimeouts 默认等待时间
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Navigate:  120 * time.Second,
		Responses: 5 * time.Second,
		Idle:      120 * time.Second,
		Links:     5 * time.Second,
		Response:  30 * time.Second,
		Body:      10 * time.Second,
	}
}

// Options 抓取引擎选项
type Options struct {
	SkipNotFound       bool
	DelayBetweenClicks time.Duration
	// MaxRecords 小于等于 0 时不限制
	MaxRecords      int
	UseGC           bool
	GCPagesInterval int
	// Blocked 网络层屏蔽的 URL 通配符
	Blocked  []string
	Timeouts Timeouts
}

// NewOptions 由配置构造选项
func NewOptions(cfg *config.Config) Options {
	return Options{
		SkipNotFound:       cfg.Parser.SkipNotFound,
		DelayBetweenClicks: time.Duration(cfg.Parser.DelayBetweenClicks) * time.Millisecond,
		MaxRecords:         cfg.Parser.MaxRecords,
		UseGC:              cfg.Parser.UseGC,
		GCPagesInterval:    cfg.Parser.GCPagesInterval,
		Blocked:            rules.BlockedURLs(cfg.Chrome.DisableImages),
		Timeouts:           DefaultTimeouts(),
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Navigate <= 0 {
		t.Navigate = d.Navigate
	}
	if t.Responses <= 0 {
		t.Responses = d.Responses
	}
	if t.Idle <= 0 {
		t.Idle = d.Idle
	}
	if t.Links <= 0 {
		t.Links = d.Links
	}
	if t.Response <= 0 {
		t.Response = d.Response
	}
	if t.Body <= 0 {
		t.Body = d.Body
	}
	return t
}
