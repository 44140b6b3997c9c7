package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"parser2gis/internal/config"
	"parser2gis/internal/logger"
	"parser2gis/internal/runner"
	"parser2gis/pkg/api"

	"github.com/spf13/cobra"
)

var (
	configPath string
	urls       []string
	output     string
	format     string
	port       int
	maxRecords int
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "parser2gis",
	Short: "通过已打开的浏览器抓取 2GIS 目录数据",
	Long: `parser2gis 连接本机浏览器的远程调试端口，依次打开每个 URL，
翻页并点击列表中的每条记录，把目录接口返回的文档写入 json、xlsx 或 sqlite。

浏览器需要预先以 --remote-debugging-port 启动。`,
	Args: cobra.ArbitraryArgs,
	RunE: run,
	// 抓取错误已经记录日志，不再打印用法
	SilenceUsage: true,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "yaml 配置文件路径")
	f.StringSliceVarP(&urls, "url", "i", nil, "要抓取的 URL，可重复，也可作为位置参数传入")
	f.StringVarP(&output, "output", "o", "", "输出文件路径")
	f.StringVarP(&format, "format", "f", "", "输出格式: json, xlsx, sqlite，可用逗号组合")
	f.IntVar(&port, "port", 0, "浏览器远程调试端口")
	f.IntVar(&maxRecords, "max-records", 0, "每个 URL 最多抓取的记录数")
	f.StringVar(&logLevel, "log-level", "", "日志级别: debug, info, warn, error")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	targets := append(append([]string{}, urls...), args...)
	if len(targets) == 0 {
		return errors.New("no urls given")
	}

	l := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writers: cfg.Log.Writer,
		File:    cfg.Log.File,
		MaxSize: cfg.Log.MaxSize,
		MaxAge:  cfg.Log.MaxAge,
		Backups: cfg.Log.Backups,
	})

	svc := api.NewService(cfg, l)
	sink, err := svc.OpenWriter()
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	unwatch := context.AfterFunc(ctx, func() {
		l.Warn("收到中断信号，正在停止")
		svc.Stop()
	})
	defer unwatch()

	stats, runErr := svc.Run(ctx, targets, sink)
	if err := sink.Close(); err != nil {
		l.Err(err, "关闭输出失败")
		if runErr == nil {
			runErr = err
		}
	}

	for _, u := range stats.URLs {
		l.Info("URL 结果", "url", u.URL, "status", string(u.Status), "records", u.Records,
			"pages", u.Pages, "duration", u.Duration.String(), "error", u.Error)
	}
	if runErr != nil {
		l.Error(runner.Message(runErr), "error", runErr)
		return runErr
	}
	l.Info("全部完成", "records", stats.Records())
	return nil
}

// loadConfig 读取配置文件并应用命令行覆盖
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Writer.Output = output
	}
	if flags.Changed("format") {
		cfg.Writer.Format = format
	}
	if flags.Changed("port") {
		cfg.Chrome.Port = port
	}
	if flags.Changed("max-records") {
		cfg.Parser.MaxRecords = maxRecords
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
