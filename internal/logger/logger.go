package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 统一日志接口，参数以 key/value 形式成对传入
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	Err(err error, msg string, kv ...any)
	With(kv ...any) Logger
}

// Options 日志配置
type Options struct {
	Level   string
	Writers []string // console, file
	File    string
	MaxSize int // MB
	MaxAge  int // 天
	Backups int
}

type zlog struct {
	z zerolog.Logger
}

// New 根据配置创建基于 zerolog 的日志器
func New(opts Options) Logger {
	var ws []io.Writer
	for _, w := range opts.Writers {
		switch strings.ToLower(w) {
		case "console":
			ws = append(ws, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
		case "file":
			if opts.File == "" {
				continue
			}
			ws = append(ws, &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSize,
				MaxAge:     opts.MaxAge,
				MaxBackups: opts.Backups,
			})
		}
	}
	if len(ws) == 0 {
		return NewNop()
	}
	return newWithWriter(zerolog.MultiLevelWriter(ws...), opts.Level)
}

func newWithWriter(w io.Writer, level string) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return &zlog{z: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// NewNop 返回丢弃所有输出的日志器
func NewNop() Logger {
	return &zlog{z: zerolog.Nop()}
}

func (l *zlog) Debug(msg string, kv ...any) { l.emit(l.z.Debug(), msg, kv) }
func (l *zlog) Info(msg string, kv ...any)  { l.emit(l.z.Info(), msg, kv) }
func (l *zlog) Warn(msg string, kv ...any)  { l.emit(l.z.Warn(), msg, kv) }
func (l *zlog) Error(msg string, kv ...any) { l.emit(l.z.Error(), msg, kv) }

func (l *zlog) Err(err error, msg string, kv ...any) {
	l.emit(l.z.Error().Err(err), msg, kv)
}

func (l *zlog) With(kv ...any) Logger {
	if len(kv) == 0 {
		return l
	}
	return &zlog{z: l.z.With().Fields(normalize(kv)).Logger()}
}

func (l *zlog) emit(ev *zerolog.Event, msg string, kv []any) {
	if ev == nil {
		return
	}
	if len(kv) > 0 {
		ev = ev.Fields(normalize(kv))
	}
	ev.Msg(msg)
}

// normalize 保证键值对为偶数个，缺失的值补为 nil
func normalize(kv []any) []any {
	if len(kv)%2 == 0 {
		return kv
	}
	out := make([]any, 0, len(kv)+1)
	out = append(out, kv...)
	return append(out, nil)
}
