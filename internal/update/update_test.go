package update

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/John-Robertt/modup/internal/domain"
	"github.com/John-Robertt/modup/internal/registry/registrytest"
)

const newJar = "ferritecore-8.0.5-fabric.jar"

func write(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func sum(content string) string {
	s := sha512.Sum512([]byte(content))
	return hex.EncodeToString(s[:])
}

func available(path, url, sha string, enabled bool) domain.ModReport {
	return domain.ModReport{
		Resolution: domain.ResolutionResult{
			File: filepath.Base(path), Path: path, Enabled: enabled,
			Status: domain.ResolutionResolved, ProjectID: "uXXizFIs", Name: "FerriteCore", Version: "8.0.3",
		},
		Update: domain.UpdateDecision{
			Status: domain.UpdateAvailable, LatestVersion: "8.0.5",
			Filename: newJar, DownloadURL: url, SHA512: sha,
		},
	}
}

func TestBuildPlan_SkipsAndBackupNames(t *testing.T) {
	root := t.TempDir()
	mods := filepath.Join(root, "mods")
	backup := filepath.Join(root, "mods_backup")
	old := filepath.Join(mods, "ferritecore-8.0.3-fabric.jar")
	write(t, old, "old")
	write(t, filepath.Join(backup, "ferritecore-8.0.3-fabric.jar"), "earlier backup")

	disabled := available(filepath.Join(mods, "x.jar.disabled"), "http://h/x", "", false)
	noURL := available(filepath.Join(mods, "y.jar"), "", "", true)
	noURL.Resolution.ProjectID = "other"
	upToDate := available(filepath.Join(mods, "z.jar"), "http://h/z", "", true)
	upToDate.Update.Status = domain.UpdateUpToDate

	p, err := BuildPlan([]domain.ModReport{available(old, "http://h/f", "", true), disabled, noURL, upToDate}, backup)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(p.Steps) != 1 {
		t.Fatalf("期望 1 个 step，实际 %+v", p.Steps)
	}
	s := p.Steps[0]
	if s.NewPath != filepath.Join(mods, newJar) || s.Overwrites() {
		t.Fatalf("新路径不正确：%+v", s)
	}
	if filepath.Base(s.BackupPath) != "ferritecore-8.0.3-fabric__2.jar" {
		t.Fatalf("备份名冲突时期望追加 __2，实际 %q", s.BackupPath)
	}
	if len(p.Skipped) != 2 || p.Skipped[0].Reason != SkipDisabled || p.Skipped[1].Reason != SkipNoDownload {
		t.Fatalf("跳过列表不正确：%+v", p.Skipped)
	}
}

func TestBuildPlan_DuplicatesAndTargetExists(t *testing.T) {
	root := t.TempDir()
	mods := filepath.Join(root, "mods")
	a := filepath.Join(mods, "ferrite-a.jar")
	b := filepath.Join(mods, "ferrite-b.jar")
	p, err := BuildPlan([]domain.ModReport{available(a, "http://h/f", "", true), available(b, "http://h/f", "", true)}, filepath.Join(root, "bk"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(p.Steps) != 0 || len(p.Skipped) != 2 || p.Skipped[0].Reason != SkipDuplicate {
		t.Fatalf("同一项目的重复归档应跳过，实际 %+v", p)
	}

	write(t, filepath.Join(mods, newJar), "someone else")
	p, err = BuildPlan([]domain.ModReport{available(a, "http://h/f", "", true)}, filepath.Join(root, "bk"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(p.Steps) != 0 || p.Skipped[0].Reason != SkipTargetExists {
		t.Fatalf("目标文件已存在时应跳过，实际 %+v", p)
	}
}

func TestBuildPlan_RejectsPathInFilename(t *testing.T) {
	it := available(filepath.Join(t.TempDir(), "a.jar"), "http://h/f", "", true)
	it.Update.Filename = "../evil.jar"
	p, err := BuildPlan([]domain.ModReport{it}, t.TempDir())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(p.Steps) != 0 || p.Skipped[0].Reason != SkipNoDownload {
		t.Fatalf("带路径的文件名必须拒绝，实际 %+v", p)
	}
}

func TestAllocAndOriginalName(t *testing.T) {
	used := map[string]struct{}{"a.jar": {}, "a__2.jar": {}, "b.jar.disabled": {}}
	if got := allocName("a.jar", used); got != "a__3.jar" {
		t.Fatalf("期望 a__3.jar，实际 %q", got)
	}
	if got := allocName("b.jar.disabled", used); got != "b__2.jar.disabled" {
		t.Fatalf("期望 b__2.jar.disabled，实际 %q", got)
	}
	cases := map[string]string{
		"a__3.jar":          "a.jar",
		"b__2.jar.disabled": "b.jar.disabled",
		"my__mod.jar":       "my__mod.jar",
		"plain.jar":         "plain.jar",
		"x__.jar":           "x__.jar",
	}
	for in, want := range cases {
		if got := originalName(in); got != want {
			t.Fatalf("originalName(%q)：期望 %q，实际 %q", in, want, got)
		}
	}
}

func newServer(t *testing.T, content string) *registrytest.Server {
	t.Helper()
	srv := registrytest.New(registrytest.Fixture{Files: map[string][]byte{newJar: []byte(content)}})
	t.Cleanup(srv.Close)
	return srv
}

func TestApply_ReplaceBackupAndAudit(t *testing.T) {
	const payload = "new jar bytes"
	srv := newServer(t, payload)
	root := t.TempDir()
	mods := filepath.Join(root, "mods")
	old := filepath.Join(mods, "ferritecore-8.0.3-fabric.jar")
	write(t, old, "old jar bytes")

	p, err := BuildPlan([]domain.ModReport{available(old, srv.URL+"/files/"+newJar, sum(payload), true)}, filepath.Join(root, "mods_backup"))
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	var audit bytes.Buffer
	u := New(nil, nil, log.NewWithOptions(&audit, log.Options{Formatter: log.JSONFormatter}))
	outs := u.ApplyAll(context.Background(), p)
	if len(outs) != 1 || outs[0].Status != StatusUpdated {
		t.Fatalf("期望更新成功，实际 %+v", outs)
	}

	if b, err := os.ReadFile(filepath.Join(mods, newJar)); err != nil || string(b) != payload {
		t.Fatalf("新文件内容不正确：%q err=%v", b, err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("旧文件应被删除，Stat err=%v", err)
	}
	if b, err := os.ReadFile(p.Steps[0].BackupPath); err != nil || string(b) != "old jar bytes" {
		t.Fatalf("备份内容不正确：%q err=%v", b, err)
	}
	if !strings.Contains(audit.String(), `"updated"`) || !strings.Contains(audit.String(), newJar) {
		t.Fatalf("审计日志缺少更新记录：%s", audit.String())
	}
	entries, _ := os.ReadDir(mods)
	if len(entries) != 1 {
		t.Fatalf("mods 目录不应残留临时文件：%v", entries)
	}
}

func TestApply_ChecksumMismatchLeavesOldFile(t *testing.T) {
	srv := newServer(t, "tampered")
	root := t.TempDir()
	mods := filepath.Join(root, "mods")
	old := filepath.Join(mods, "ferritecore-8.0.3-fabric.jar")
	write(t, old, "old")

	p, _ := BuildPlan([]domain.ModReport{available(old, srv.URL+"/files/"+newJar, sum("expected"), true)}, filepath.Join(root, "bk"))
	outs := New(nil, nil, nil).ApplyAll(context.Background(), p)
	if outs[0].Status != StatusFailed || !IsChecksum(outs[0].Err) {
		t.Fatalf("期望校验失败，实际 %+v", outs[0])
	}
	if _, err := os.Stat(old); err != nil {
		t.Fatalf("校验失败时旧文件必须保留：%v", err)
	}
	entries, _ := os.ReadDir(mods)
	if len(entries) != 1 {
		t.Fatalf("校验失败不应留下新文件或临时文件：%v", entries)
	}
	if _, err := os.Stat(p.Steps[0].BackupPath); !os.IsNotExist(err) {
		t.Fatalf("替换未发生时不应移动到备份目录，Stat err=%v", err)
	}
}

func TestApply_SameFilenameBacksUpFirst(t *testing.T) {
	const payload = "same name, new bytes"
	srv := registrytest.New(registrytest.Fixture{Files: map[string][]byte{"sodium.jar": []byte(payload)}})
	t.Cleanup(srv.Close)
	root := t.TempDir()
	old := filepath.Join(root, "mods", "sodium.jar")
	write(t, old, "old")

	rep := available(old, srv.URL+"/files/sodium.jar", "", true)
	rep.Update.Filename = "sodium.jar"
	p, err := BuildPlan([]domain.ModReport{rep}, filepath.Join(root, "bk"))
	if err != nil || len(p.Steps) != 1 || !p.Steps[0].Overwrites() {
		t.Fatalf("期望一个覆盖式 Step，实际 %+v err=%v", p, err)
	}
	if err := New(nil, nil, nil).Apply(context.Background(), p.Steps[0]); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if b, _ := os.ReadFile(old); string(b) != payload {
		t.Fatalf("期望原地替换为新内容，实际 %q", b)
	}
	if b, _ := os.ReadFile(p.Steps[0].BackupPath); string(b) != "old" {
		t.Fatalf("覆盖前应先备份旧内容，实际 %q", b)
	}
}

func TestApply_DownloadHTTPError(t *testing.T) {
	srv := newServer(t, "x")
	root := t.TempDir()
	old := filepath.Join(root, "mods", "a.jar")
	write(t, old, "old")
	p, _ := BuildPlan([]domain.ModReport{available(old, srv.URL+"/files/missing.jar", "", true)}, filepath.Join(root, "bk"))

	err := New(nil, nil, nil).Apply(context.Background(), p.Steps[0])
	var de *DownloadError
	if !errors.As(err, &de) || de.StatusCode != 404 {
		t.Fatalf("期望 HTTP 404 下载错误，实际 %v", err)
	}
}

func TestRollback_RestoresBackup(t *testing.T) {
	const payload = "new"
	srv := newServer(t, payload)
	root := t.TempDir()
	mods := filepath.Join(root, "mods")
	old := filepath.Join(mods, "ferritecore-8.0.3-fabric.jar")
	write(t, old, "old")
	p, _ := BuildPlan([]domain.ModReport{available(old, srv.URL+"/files/"+newJar, "", true)}, filepath.Join(root, "bk"))
	u := New(nil, nil, nil)
	if err := u.Apply(context.Background(), p.Steps[0]); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	restored, err := u.Rollback(p.Steps[0].BackupPath, p.Steps[0].NewPath, mods)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if restored != old {
		t.Fatalf("期望恢复到 %q，实际 %q", old, restored)
	}
	if b, _ := os.ReadFile(old); string(b) != "old" {
		t.Fatalf("恢复内容不正确：%q", b)
	}
	if _, err := os.Stat(p.Steps[0].NewPath); !os.IsNotExist(err) {
		t.Fatalf("新文件应被删除，Stat err=%v", err)
	}
	if _, err := os.Stat(p.Steps[0].BackupPath); err != nil {
		t.Fatalf("备份应保留：%v", err)
	}
}
