package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load 读取 yaml 配置文件并覆盖默认值，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Chrome.Port <= 0 || c.Chrome.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Parser.MaxRecords <= 0 {
		return ErrInvalidMaxRecords
	}
	if c.Parser.DelayBetweenClicks < 0 {
		return ErrInvalidDelay
	}
	if c.Parser.GCPagesInterval <= 0 {
		return ErrInvalidGCInterval
	}
	formats := c.Formats()
	if len(formats) == 0 {
		return ErrInvalidFormat
	}
	for _, f := range formats {
		switch f {
		case "json", "xlsx":
			if c.Writer.Output == "" {
				return ErrNoOutput
			}
		case "sqlite":
		default:
			return ErrInvalidFormat
		}
	}
	return nil
}

// Formats 输出格式列表，writer.format 可用逗号分隔多个格式
func (c *Config) Formats() []string {
	var out []string
	for _, f := range strings.Split(c.Writer.Format, ",") {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// ConnectTimeout 返回调试连接超时时间
func (c *Config) ConnectTimeout() time.Duration {
	if c.Chrome.ConnectTimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Chrome.ConnectTimeoutSec) * time.Second
}
