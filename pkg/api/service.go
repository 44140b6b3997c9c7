package api

import (
	"context"

	"parser2gis/internal/config"
	"parser2gis/internal/crawler"
	"parser2gis/internal/logger"
	"parser2gis/internal/runner"
	"parser2gis/internal/writer"
	"parser2gis/pkg/model"
)

// Sink 接收抓取到的目录文档
type Sink = crawler.Sink

// Service 服务接口
type Service interface {
	// Run 依次抓取 urls 并把文档写入 sink
	Run(ctx context.Context, urls []string, sink Sink) (model.RunStats, error)

	// OpenWriter 按配置打开输出端
	OpenWriter() (writer.Writer, error)

	// Stop 中止全部正在进行的抓取，可在任意 goroutine 调用
	Stop()
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) Service {
	return runner.New(cfg, l)
}
