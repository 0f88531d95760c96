package update

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/John-Robertt/modup/internal/infra/fsx"
)

// Rollback 用备份恢复一次更新：把 backupPath 复制回 modsDir（恢复原文件名），再删除 newPath。
// 返回恢复后的路径。备份文件保留。
func (u *Updater) Rollback(backupPath, newPath, modsDir string) (string, error) {
	restored := filepath.Join(modsDir, originalName(filepath.Base(backupPath)))

	in, err := os.Open(backupPath)
	if err != nil {
		return "", fmt.Errorf("打开备份 %q 失败：%w", backupPath, err)
	}
	defer in.Close()

	overwrite := newPath != "" && filepath.Clean(newPath) == restored
	staged, err := fsx.Stage(modsDir, filepath.Base(restored))
	if err != nil {
		return "", err
	}
	defer staged.Abort()
	if _, err := io.Copy(staged, in); err != nil {
		return "", err
	}
	if err := staged.Commit(overwrite); err != nil {
		return "", fmt.Errorf("恢复 %q 失败：%w", restored, err)
	}

	if newPath != "" && !overwrite {
		if err := os.Remove(newPath); err != nil && !os.IsNotExist(err) {
			return restored, fmt.Errorf("删除新文件 %q 失败：%w", newPath, err)
		}
	}

	u.Audit.Info("rolled_back", "backup", backupPath, "restored", filepath.Base(restored), "removed", filepath.Base(newPath))
	u.Log.Info("已回滚", "restored", restored)
	return restored, nil
}
