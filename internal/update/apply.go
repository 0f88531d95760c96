package update

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/John-Robertt/modup/internal/infra/fsx"
	"github.com/John-Robertt/modup/internal/infra/logx"
)

// 结果状态。
const (
	StatusUpdated = "updated"
	StatusFailed  = "failed"
)

// DownloadError 表示下载阶段失败（网络或非 2xx）。
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("下载 %s 失败：HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("下载 %s 失败：%v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ChecksumError 表示下载内容与 registry 声明的 SHA-512 不一致。
type ChecksumError struct {
	URL  string
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("校验失败：%s 期望 sha512=%.16s…，实际 %.16s…", e.URL, e.Want, e.Got)
}

// Outcome 是单个 Step 的执行结果。
type Outcome struct {
	Step   Step
	Status string
	Err    error
}

// Updater 执行替换计划。
//
// 约束：
// - 替换顺序固定：下载到同目录临时文件 -> 校验 -> rename 到位 -> 旧文件移入备份目录
// - 任何一步失败都不会留下半写入的新文件；旧文件在 rename 成功之前不动
type Updater struct {
	HTTP  *http.Client
	Log   *log.Logger
	Audit *log.Logger
}

func New(client *http.Client, logger, audit *log.Logger) *Updater {
	if client == nil {
		client = http.DefaultClient
	}
	return &Updater{HTTP: client, Log: logx.OrDiscard(logger), Audit: logx.OrDiscard(audit)}
}

// ApplyAll 串行执行所有 Step；单个失败不影响其余。
func (u *Updater) ApplyAll(ctx context.Context, p Plan) []Outcome {
	out := make([]Outcome, 0, len(p.Steps))
	for _, s := range p.Steps {
		if err := ctx.Err(); err != nil {
			out = append(out, Outcome{Step: s, Status: StatusFailed, Err: err})
			continue
		}
		err := u.Apply(ctx, s)
		o := Outcome{Step: s, Status: StatusUpdated, Err: err}
		if err != nil {
			o.Status = StatusFailed
			u.Log.Warn("更新失败", "file", filepath.Base(s.OldPath), "err", err)
		}
		out = append(out, o)
	}
	return out
}

// Apply 执行单个替换。
//
// 新旧文件名相同时旧文件会被 rename 覆盖，只能先复制出备份；否则等新文件就位后再把旧文件移进备份目录。
func (u *Updater) Apply(ctx context.Context, s Step) error {
	if s.Overwrites() {
		if err := fsx.CopyFile(s.OldPath, s.BackupPath); err != nil {
			return fmt.Errorf("备份 %q 失败：%w", s.OldPath, err)
		}
	}

	staged, err := fsx.Stage(filepath.Dir(s.NewPath), filepath.Base(s.NewPath))
	if err != nil {
		return err
	}
	defer staged.Abort()

	if err := u.download(ctx, s, staged); err != nil {
		return err
	}
	if err := staged.Commit(s.Overwrites()); err != nil {
		return fmt.Errorf("写入 %q 失败：%w", s.NewPath, err)
	}
	if !s.Overwrites() {
		if err := moveToBackup(s.OldPath, s.BackupPath); err != nil {
			// 新文件已就位；旧文件残留会造成重复加载，必须报告。
			return fmt.Errorf("移走旧文件 %q 失败：%w", s.OldPath, err)
		}
	}

	u.Audit.Info("updated",
		"name", s.Name,
		"old", filepath.Base(s.OldPath),
		"new", filepath.Base(s.NewPath),
		"from", s.Version,
		"to", s.Latest,
		"backup", s.BackupPath,
	)
	u.Log.Info("已更新", "name", s.Name, "from", s.Version, "to", s.Latest)
	return nil
}

func (u *Updater) download(ctx context.Context, s Step, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return &DownloadError{URL: s.URL, Err: err}
	}
	resp, err := u.HTTP.Do(req)
	if err != nil {
		return &DownloadError{URL: s.URL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DownloadError{URL: s.URL, StatusCode: resp.StatusCode}
	}

	h := sha512.New()
	if _, err := io.Copy(io.MultiWriter(w, h), resp.Body); err != nil {
		return &DownloadError{URL: s.URL, Err: err}
	}
	if s.SHA512 == "" {
		return nil
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != s.SHA512 {
		return &ChecksumError{URL: s.URL, Want: s.SHA512, Got: got}
	}
	return nil
}

// moveToBackup 把旧文件移入备份目录；备份目录在另一个文件系统上时退化为复制后删除。
func moveToBackup(oldPath, backupPath string) error {
	if err := os.MkdirAll(filepath.Dir(backupPath), 0o755); err != nil {
		return err
	}
	err := fsx.MoveNoOverwrite(oldPath, backupPath)
	if !fsx.IsCrossDevice(err) {
		return err
	}
	if err := fsx.CopyFile(oldPath, backupPath); err != nil {
		return err
	}
	return os.Remove(oldPath)
}

// IsChecksum 判断 err 是否为校验失败。
func IsChecksum(err error) bool {
	var e *ChecksumError
	return errors.As(err, &e)
}
