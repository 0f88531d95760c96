package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew_LevelFiltersAndFileSink(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "modup.log")

	l, closer, err := New(Options{Level: "WARN", File: file, Out: &buf, Prefix: "modup"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	l.Info("hidden")
	l.Warn("shown", "file", "a.jar")
	if err := closer.Close(); err != nil {
		t.Fatalf("关闭失败：%v", err)
	}

	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("warn 级别不应输出 info：%q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") || !strings.Contains(buf.String(), "a.jar") {
		t.Fatalf("期望输出 warn 日志，实际 %q", buf.String())
	}
	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("读取日志文件失败：%v", err)
	}
	if !strings.Contains(string(b), "shown") {
		t.Fatalf("文件 sink 未写入：%q", string(b))
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatalf("期望非法级别报错")
	}
}

func TestNewAudit_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "update.log")
	l, closer, err := NewAudit(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	l.Info("replaced", "old", "a-1.0.jar", "new", "a-1.1.jar")
	_ = closer.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取失败：%v", err)
	}
	var row map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &row); err != nil {
		t.Fatalf("期望 JSON 行，实际 %q：%v", string(b), err)
	}
	if row["msg"] != "replaced" || row["old"] != "a-1.0.jar" || row["new"] != "a-1.1.jar" {
		t.Fatalf("审计字段不正确：%v", row)
	}
}

func TestOrDiscard_Nil(t *testing.T) {
	OrDiscard(nil).Error("不会 panic")
}
