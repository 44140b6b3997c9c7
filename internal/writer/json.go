package writer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"parser2gis/internal/logger"

	"github.com/tidwall/gjson"
)

// JSONWriter 以 JSON 数组输出每个文档的第一条记录
type JSONWriter struct {
	out     *bufio.Writer
	closer  io.Closer
	verbose bool
	count   int
	closed  bool
	log     logger.Logger
}

// NewJSON 创建输出到文件的 JSONWriter
func NewJSON(path string, verbose bool, l logger.Logger) (*JSONWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	w := newJSONWriter(f, verbose, l)
	w.closer = f
	return w, nil
}

func newJSONWriter(w io.Writer, verbose bool, l logger.Logger) *JSONWriter {
	if l == nil {
		l = logger.NewNop()
	}
	return &JSONWriter{out: bufio.NewWriter(w), verbose: verbose, log: l}
}

// Write 写入一个目录文档，未通过校验的文档被跳过
func (w *JSONWriter) Write(doc json.RawMessage) error {
	if !accept(w.log, doc) {
		return nil
	}
	item := gjson.GetBytes(doc, "result.items.0")
	if w.verbose {
		w.log.Info("解析记录", "n", w.count+1, "name", ItemName(item))
	}

	sep := ","
	if w.count == 0 {
		sep = "["
	}
	if _, err := w.out.WriteString(sep + "\n" + item.Raw); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count 已写入的记录数
func (w *JSONWriter) Count() int { return w.count }

// Close 补齐数组结尾并关闭文件
func (w *JSONWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	tail := "\n]"
	if w.count == 0 {
		tail = "[]"
	}
	_, err := w.out.WriteString(tail)
	if ferr := w.out.Flush(); err == nil {
		err = ferr
	}
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
