// Package update 把 update_available 的扫描结果落地为文件替换：备份、下载校验、原子替换、审计日志。
package update

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/modup/internal/app"
	"github.com/John-Robertt/modup/internal/domain"
)

// 跳过原因。
const (
	SkipDisabled     = "disabled"
	SkipDuplicate    = "duplicate"
	SkipNoDownload   = "no_download"
	SkipTargetExists = "target_exists"
)

// Step 是一个归档的替换计划。所有路径均为绝对路径。
type Step struct {
	Name       string // 展示名
	OldPath    string
	NewPath    string
	BackupPath string
	Version    string // 本地版本
	Latest     string // 目标版本
	URL        string
	SHA512     string
}

// Overwrites 表示新旧文件同名（替换后不需要再删除旧文件）。
func (s Step) Overwrites() bool { return s.OldPath == s.NewPath }

type Skip struct {
	File   string
	Reason string
}

type Plan struct {
	Steps   []Step
	Skipped []Skip
}

// BuildPlan 从扫描结果生成确定性的替换计划（只读取备份目录现状，不做任何写入）。
//
// 规则：
// - 只处理 update_available
// - 禁用的归档（.jar.disabled）与同一项目的重复归档跳过，交给用户自己处理
// - 新文件名已被另一个文件占用时跳过，绝不覆盖
// - 备份文件名与备份目录现有文件冲突时追加 __N 后缀
func BuildPlan(items []domain.ModReport, backupDir string) (Plan, error) {
	used, err := existingNames(backupDir)
	if err != nil {
		return Plan{}, err
	}
	dups := app.DuplicateFiles(app.FindDuplicates(items))

	var p Plan
	for _, it := range items {
		r, u := it.Resolution, it.Update
		if u.Status != domain.UpdateAvailable {
			continue
		}
		switch {
		case !r.Enabled:
			p.Skipped = append(p.Skipped, Skip{File: r.File, Reason: SkipDisabled})
			continue
		case inSet(dups, r.File):
			p.Skipped = append(p.Skipped, Skip{File: r.File, Reason: SkipDuplicate})
			continue
		case strings.TrimSpace(u.DownloadURL) == "" || !safeFileName(u.Filename):
			p.Skipped = append(p.Skipped, Skip{File: r.File, Reason: SkipNoDownload})
			continue
		}

		modsDir := filepath.Dir(r.Path)
		newPath := filepath.Join(modsDir, u.Filename)
		if newPath != r.Path {
			if _, err := os.Lstat(newPath); err == nil {
				p.Skipped = append(p.Skipped, Skip{File: r.File, Reason: SkipTargetExists})
				continue
			}
		}

		backupName := allocName(r.File, used)
		used[backupName] = struct{}{}
		p.Steps = append(p.Steps, Step{
			Name:       r.Name,
			OldPath:    r.Path,
			NewPath:    newPath,
			BackupPath: filepath.Join(backupDir, backupName),
			Version:    r.Version,
			Latest:     u.LatestVersion,
			URL:        u.DownloadURL,
			SHA512:     strings.ToLower(u.SHA512),
		})
	}

	sort.Slice(p.Steps, func(i, j int) bool { return p.Steps[i].OldPath < p.Steps[j].OldPath })
	sort.Slice(p.Skipped, func(i, j int) bool { return p.Skipped[i].File < p.Skipped[j].File })
	return p, nil
}

func existingNames(dir string) (map[string]struct{}, error) {
	used := map[string]struct{}{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return used, nil
		}
		return nil, err
	}
	for _, e := range entries {
		used[e.Name()] = struct{}{}
	}
	return used, nil
}

func inSet(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}

// safeFileName 拒绝 registry 返回的带路径分隔符的文件名。
func safeFileName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

// allocName 在 name 已被占用时依次尝试 <stem>__2<ext>、<stem>__3<ext>……
// 扩展名按归档规则识别（.jar.disabled 视为一个整体）。
func allocName(name string, used map[string]struct{}) string {
	if _, ok := used[name]; !ok {
		return name
	}
	stem := domain.StemOf(name)
	ext := name[len(stem):]
	for n := 2; ; n++ {
		cand := fmt.Sprintf("%s__%d%s", stem, n, ext)
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}

// originalName 是 allocName 的逆操作：去掉备份名里的 __N 后缀。
func originalName(backupName string) string {
	stem := domain.StemOf(backupName)
	ext := backupName[len(stem):]
	i := strings.LastIndex(stem, "__")
	if i <= 0 {
		return backupName
	}
	for _, c := range stem[i+2:] {
		if c < '0' || c > '9' {
			return backupName
		}
	}
	if i+2 == len(stem) {
		return backupName
	}
	return stem[:i] + ext
}
