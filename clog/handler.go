package clog

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// newHandler 构造顺序：writer -> handler options -> json/text handler
func newHandler(config *Config, opts *options, levelVar *slog.LevelVar) (slog.Handler, error) {
	w, err := resolveWriter(config, opts)
	if err != nil {
		return nil, err
	}

	handlerOpts := &slog.HandlerOptions{
		AddSource:   config.AddSource,
		Level:       levelVar,
		ReplaceAttr: replaceAttr,
	}

	if strings.ToLower(config.Format) == "json" {
		return slog.NewJSONHandler(w, handlerOpts), nil
	}
	return slog.NewTextHandler(w, handlerOpts), nil
}

func resolveWriter(config *Config, opts *options) (io.Writer, error) {
	if opts.writer != nil {
		return opts.writer, nil
	}
	switch strings.ToLower(config.Output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		return os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	}
}

// replaceAttr 统一 Level/Time/Source 的输出格式
func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.LevelKey:
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(level.String())
		}
	case slog.TimeKey:
		if a.Value.Kind() == slog.KindTime {
			a.Value = slog.StringValue(a.Value.Time().Format(timeFormat))
		}
	case slog.SourceKey:
		if src, ok := a.Value.Any().(*slog.Source); ok {
			return slog.String("caller", trimSourcePath(src.File)+":"+strconv.Itoa(src.Line))
		}
	}
	return a
}

// trimSourcePath 只保留模块内的相对路径
func trimSourcePath(file string) string {
	if idx := strings.Index(file, "chanlock/"); idx != -1 {
		return file[idx:]
	}
	return file
}
