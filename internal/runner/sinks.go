package runner

import (
	"path/filepath"
	"strings"

	"parser2gis/internal/storage"
	"parser2gis/internal/writer"
)

// OpenWriter 按 writer.format 打开输出端，多个格式时返回 writer.Multi
func (r *Runner) OpenWriter() (writer.Writer, error) {
	formats := r.cfg.Formats()
	var sinks writer.Multi
	for _, f := range formats {
		w, err := r.open(f, outputPath(r.cfg.Writer.Output, f, len(formats) > 1))
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, w)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

func (r *Runner) open(format, path string) (writer.Writer, error) {
	verbose := r.cfg.Writer.Verbose
	switch format {
	case "xlsx":
		return writer.NewXLSX(path, verbose, r.log)
	case "sqlite":
		return storage.Open(r.cfg.Sqlite.Dsn, r.cfg.Sqlite.Prefix, string(r.id), r.log)
	default:
		return writer.NewJSON(path, verbose, r.log)
	}
}

// outputPath 多个文件格式共用一个输出路径时按格式替换扩展名
func outputPath(output, format string, multi bool) string {
	if !multi || format == "sqlite" {
		return output
	}
	ext := filepath.Ext(output)
	if strings.EqualFold(ext, "."+format) {
		return output
	}
	return strings.TrimSuffix(output, ext) + "." + format
}
