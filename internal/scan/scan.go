package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/modup/internal/domain"
)

// DirNotFoundError 表示扫描目录不存在或不是目录。这是唯一会中断整次扫描的错误。
type DirNotFoundError struct {
	Dir string
	Err error
}

func (e *DirNotFoundError) Error() string {
	return fmt.Sprintf("mods 目录不存在：%q", e.Dir)
}

func (e *DirNotFoundError) Unwrap() error { return e.Err }

// ScanArchives 列出 dir 下（不递归）的 .jar 与 .jar.disabled 文件。
//
// 规则（硬约束）：
// - 扩展名大小写不敏感
// - 以 '.' 开头的文件一律跳过（下载/快照的临时文件）
// - 只做 stat，不读文件内容
// - 按文件名排序输出
func ScanArchives(dir string) ([]*domain.ModArchive, error) {
	dir = filepath.Clean(dir)
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	fi, err := os.Stat(dir)
	if err != nil {
		return nil, &DirNotFoundError{Dir: dir, Err: err}
	}
	if !fi.IsDir() {
		return nil, &DirNotFoundError{Dir: dir, Err: errors.New("不是目录")}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.ModArchive, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || (!e.Type().IsRegular() && e.Type()&fs.ModeSymlink == 0) {
			continue
		}
		enabled, ok := archiveKind(name)
		if !ok {
			continue
		}

		path := filepath.Join(dir, name)
		info, err := os.Stat(path) // 跟随符号链接
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, &domain.ModArchive{
			Path:    path,
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Enabled: enabled,
		})
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func archiveKind(name string) (enabled bool, ok bool) {
	low := strings.ToLower(name)
	switch {
	case strings.HasSuffix(low, domain.ExtJarDisabled):
		return false, true
	case strings.HasSuffix(low, domain.ExtJar):
		return true, true
	default:
		return false, false
	}
}
