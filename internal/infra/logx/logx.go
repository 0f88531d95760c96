package logx

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 日志文件轮转参数（单位：MB / 个 / 天）。
const (
	rotateMaxSize    = 16
	rotateMaxBackups = 5
	rotateMaxAge     = 30
)

// Options 描述进程日志。零值输出 info 级别到 stderr。
type Options struct {
	Level  string
	File   string
	Prefix string
	Out    io.Writer
}

// New 构造进程日志。File 非空时同时写入轮转文件；返回的 Closer 负责关闭文件。
func New(opts Options) (*log.Logger, io.Closer, error) {
	level := log.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		lv, err := log.ParseLevel(strings.ToLower(s))
		if err != nil {
			return nil, nil, err
		}
		level = lv
	}

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	var closer io.Closer = nopCloser{}
	if f := strings.TrimSpace(opts.File); f != "" {
		rf, err := NewRotatingFile(f)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(out, rf)
		closer = rf
	}

	l := log.NewWithOptions(out, log.Options{
		Prefix:          opts.Prefix,
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	return l, closer, nil
}

// NewRotatingFile 返回按大小轮转的日志文件；父目录不存在时创建。
func NewRotatingFile(path string) (*lumberjack.Logger, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotateMaxSize,
		MaxBackups: rotateMaxBackups,
		MaxAge:     rotateMaxAge,
	}, nil
}

// NewAudit 返回写入 path 的 JSON 行日志（每次变更一行，便于事后追查/回滚）。
func NewAudit(path string) (*log.Logger, io.Closer, error) {
	rf, err := NewRotatingFile(path)
	if err != nil {
		return nil, nil, err
	}
	l := log.NewWithOptions(rf, log.Options{
		Level:           log.InfoLevel,
		Formatter:       log.JSONFormatter,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	return l, rf, nil
}

// Discard 返回丢弃一切输出的 logger。
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard 让核心包可以安全地接受 nil logger。
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
