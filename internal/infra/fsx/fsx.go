package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 EXDEV 等错误。
var renameFunc = os.Rename

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

// CrossDeviceError 表示跨盘（EXDEV）导致的 rename 失败。
// 需要跨盘时请显式使用 CopyFile，Rename 不做隐式 copy+delete。
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨盘移动失败（EXDEV）：%q -> %q：%v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice 判断 err 是否为跨盘（EXDEV）错误。
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Rename 封装 os.Rename，并把 EXDEV 显式标记为 CrossDeviceError。
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// MoveNoOverwrite 把 src 移动到 dst；dst 已存在时返回 os.ErrExist。
func MoveNoOverwrite(src, dst string) error {
	if err := ensureAbsent(dst); err != nil {
		return err
	}
	return Rename(src, dst)
}

// ensureAbsent 检查目标不存在；存在则区分“类型冲突”和“已存在”。
func ensureAbsent(dst string) error {
	fi, err := os.Lstat(dst)
	if err == nil {
		if fi.IsDir() {
			return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
		if !fi.Mode().IsRegular() {
			return &PathTypeConflictError{Path: dst, Want: "regular file", Got: fi.Mode().Type().String()}
		}
		return os.ErrExist
	}
	if !os.IsNotExist(err) {
		return err
	}
	return nil
}

// WriteFileAtomicReplace 在 dir 下原子写入并覆盖 name（快照、缓存等内部状态）。
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	s, err := Stage(dir, name)
	if err != nil {
		return err
	}
	if err := writeAll(s, data); err != nil {
		_ = s.Abort()
		return err
	}
	return s.Commit(true)
}

// Staged 是与目标文件同目录的临时文件。
//
// 约束：
// - Commit 之前目标路径上看不到任何半写入内容
// - Commit/Abort 只能生效一次；之后再调用 Abort 是 no-op，便于 defer
type Staged struct {
	f    *os.File
	dir  string
	name string
	done bool
}

// Stage 在 dir 下为 name 创建临时文件（前缀带 '.'，避免被当作归档扫描到）。
func Stage(dir, name string) (*Staged, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return nil, err
	}
	return &Staged{f: f, dir: dir, name: name}, nil
}

func (s *Staged) Write(p []byte) (int, error) { return s.f.Write(p) }

// Path 返回 Commit 后的目标路径。
func (s *Staged) Path() string { return filepath.Join(s.dir, s.name) }

// Commit 落盘并 rename 到目标路径。overwrite=false 时目标已存在返回 os.ErrExist。
func (s *Staged) Commit(overwrite bool) error {
	if s.done {
		return errors.New("fsx: staged file already finished")
	}
	s.done = true
	tmpName := s.f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := s.f.Chmod(0o644); err != nil {
		_ = s.f.Close()
		return err
	}
	if err := s.f.Sync(); err != nil {
		_ = s.f.Close()
		return err
	}
	if err := s.f.Close(); err != nil {
		return err
	}

	dst := s.Path()
	if !overwrite {
		if err := ensureAbsent(dst); err != nil {
			return err
		}
	}
	if err := Rename(tmpName, dst); err != nil {
		return err
	}
	committed = true

	// 目录 fsync：best-effort（不同平台/文件系统的语义差异很大）。
	_ = syncDirBestEffort(s.dir)
	return nil
}

// Abort 丢弃临时文件。
func (s *Staged) Abort() error {
	if s.done {
		return nil
	}
	s.done = true
	_ = s.f.Close()
	return os.Remove(s.f.Name())
}

// CopyFile 把 src 复制为 dst（不覆盖）。用于备份目录可能与源不在同一文件系统的场景。
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := ensureAbsent(dst); err != nil {
		return err
	}
	s, err := Stage(filepath.Dir(dst), filepath.Base(dst))
	if err != nil {
		return err
	}
	if _, err := io.Copy(s, in); err != nil {
		_ = s.Abort()
		return err
	}
	return s.Commit(false)
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func syncDirBestEffort(dir string) error {
	// Windows 上目录 Sync 的语义与支持情况不稳定，这里直接跳过。
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
