package writer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"parser2gis/internal/logger"
)

// Writer 文档输出端
type Writer interface {
	Write(doc json.RawMessage) error
	Close() error
}

// Multi 将同一文档写入多个输出端
type Multi []Writer

// Write 依次写入，第一个错误中止
func (m Multi) Write(doc json.RawMessage) error {
	for _, w := range m {
		if err := w.Write(doc); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭全部输出端
func (m Multi) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// accept 校验文档，不合格时记录原因并返回 false
func accept(l logger.Logger, doc json.RawMessage) bool {
	_, err := Check(doc)
	if err == nil {
		if Extra(doc) {
			l.Warn("服务端返回了多条记录，仅保留第一条")
		}
		return true
	}
	var se *ServerError
	if errors.As(err, &se) {
		l.Error("服务端返回错误", "message", se.Message)
	} else {
		l.Error("服务端返回未知文档")
	}
	return false
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}
