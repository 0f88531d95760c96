package scan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestScanArchives_JarAndDisabled(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "sodium.jar"))
	touch(t, filepath.Join(dir, "Iris.JAR"))
	touch(t, filepath.Join(dir, "jei.jar.disabled"))
	touch(t, filepath.Join(dir, "readme.txt"))
	touch(t, filepath.Join(dir, ".sodium.jar.tmp-123"))
	touch(t, filepath.Join(dir, "sub", "nested.jar"))

	got, err := ScanArchives(dir)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 3 {
		t.Fatalf("期望 3 个归档，实际 %d", len(got))
	}
	want := []struct {
		name    string
		enabled bool
	}{
		{"Iris.JAR", true},
		{"jei.jar.disabled", false},
		{"sodium.jar", true},
	}
	for i, w := range want {
		if got[i].Name != w.name || got[i].Enabled != w.enabled {
			t.Fatalf("第 %d 项期望 %s enabled=%v，实际 %s enabled=%v", i, w.name, w.enabled, got[i].Name, got[i].Enabled)
		}
		if !filepath.IsAbs(got[i].Path) {
			t.Fatalf("期望绝对路径，实际 %q", got[i].Path)
		}
	}
}

func TestScanArchives_DirNotFound(t *testing.T) {
	_, err := ScanArchives(filepath.Join(t.TempDir(), "missing"))
	var de *DirNotFoundError
	if !errors.As(err, &de) {
		t.Fatalf("期望 DirNotFoundError，实际 %T %v", err, err)
	}
}

func TestScanArchives_FileIsNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "mods")
	touch(t, f)
	_, err := ScanArchives(f)
	var de *DirNotFoundError
	if !errors.As(err, &de) {
		t.Fatalf("期望 DirNotFoundError，实际 %T %v", err, err)
	}
}

func TestScanArchives_Empty(t *testing.T) {
	got, err := ScanArchives(t.TempDir())
	if err != nil || len(got) != 0 {
		t.Fatalf("空目录期望 0 项且无错误，实际 %d %v", len(got), err)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}
}
