package config

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level   string   `yaml:"level"`
		Writer  []string `yaml:"writer"`
		File    string   `yaml:"file"`
		MaxSize int      `yaml:"max_size"`
		MaxAge  int      `yaml:"max_age"`
		Backups int      `yaml:"backups"`
	} `yaml:"log"`

	Chrome ChromeOptions `yaml:"chrome"`
	Parser ParserOptions `yaml:"parser"`
	Writer WriterOptions `yaml:"writer"`
}

// ChromeOptions 浏览器连接选项，浏览器进程由外部启动
type ChromeOptions struct {
	Port int `yaml:"port"`
	// DisableImages 同时屏蔽图片、字体、地图瓦片等资源
	DisableImages bool `yaml:"disable_images"`
	// ConnectTimeoutSec 建立调试连接的最长时间
	ConnectTimeoutSec int `yaml:"connect_timeout_sec"`
}

// ParserOptions 抓取引擎选项
type ParserOptions struct {
	SkipNotFound       bool `yaml:"skip_404_response"`
	DelayBetweenClicks int  `yaml:"delay_between_clicks"` // 毫秒
	MaxRecords         int  `yaml:"max_records"`
	UseGC              bool `yaml:"use_gc"`
	GCPagesInterval    int  `yaml:"gc_pages_interval"`
}

// WriterOptions 输出选项
type WriterOptions struct {
	Format  string `yaml:"format"` // json, xlsx, sqlite
	Output  string `yaml:"output"`
	Verbose bool   `yaml:"verbose"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.Sqlite.Dsn = "db.sqlite3"
	cfg.Sqlite.Prefix = "parser2gis_"
	cfg.Log.Level = "info"
	cfg.Log.Writer = []string{"console", "file"}
	cfg.Log.File = "logs/parser2gis.log"
	cfg.Log.MaxSize = 20
	cfg.Log.MaxAge = 7
	cfg.Log.Backups = 3
	cfg.Chrome = ChromeOptions{
		Port:              9222,
		DisableImages:     true,
		ConnectTimeoutSec: 60,
	}
	cfg.Parser = ParserOptions{
		SkipNotFound:    true,
		MaxRecords:      1000,
		GCPagesInterval: 10,
	}
	cfg.Writer = WriterOptions{
		Format:  "json",
		Output:  "result.json",
		Verbose: true,
	}
	return cfg
}
