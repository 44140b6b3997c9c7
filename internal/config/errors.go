package config

import "errors"

// 配置校验错误，由 Validate 返回，可通过 errors.Is 判断
var (
	ErrInvalidPort       = errors.New("invalid chrome port: must be in 1..65535")
	ErrInvalidMaxRecords = errors.New("invalid max_records: must be positive")
	ErrInvalidDelay      = errors.New("invalid delay_between_clicks: must be non-negative")
	ErrInvalidGCInterval = errors.New("invalid gc_pages_interval: must be positive")
	ErrInvalidFormat     = errors.New("invalid writer format: expected json, xlsx or sqlite")
	ErrNoOutput          = errors.New("no output path specified")
)
