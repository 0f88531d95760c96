package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/modup/internal/infra/fsx"
)

// SnapshotStore 保存整表快照。实现必须允许并发调用（不同 name）。
type SnapshotStore interface {
	// ReadSnapshot 读取快照；不存在时返回 ok=false 且 err=nil。
	ReadSnapshot(ctx context.Context, name string) (data []byte, ok bool, err error)
	WriteSnapshot(ctx context.Context, name string, data []byte) error
	Close() error
}

const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"

	sqliteFileName = "modup-cache.db"
)

var ErrReadOnly = errors.New("cache: read-only")

var snapshotNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", fmt.Errorf("快照名不能为空")
	}
	// 最小约束：避免路径穿越；快照名是代码里的常量。
	if !snapshotNameRE.MatchString(name) {
		return "", fmt.Errorf("非法快照名：%q", name)
	}
	return name, nil
}

// OpenStore 按 backend 打开 dir 下的快照存储。
func OpenStore(backend, dir string, readOnly bool) (SnapshotStore, error) {
	dir = filepath.Clean(strings.TrimSpace(dir))
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendJSON:
		return NewJSONStore(dir, readOnly), nil
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dir, sqliteFileName), readOnly)
	default:
		return nil, fmt.Errorf("未知的 cache backend：%q（可选 json|sqlite）", backend)
	}
}

// JSONStore 把每张表写成 <Dir>/<name>.json。
//
// 约束：
// - ReadOnly=true 时只允许读
// - 写入走 fsx 原子替换，读者永远看不到半个快照
type JSONStore struct {
	Dir      string
	ReadOnly bool
}

func NewJSONStore(dir string, readOnly bool) *JSONStore {
	return &JSONStore{Dir: filepath.Clean(strings.TrimSpace(dir)), ReadOnly: readOnly}
}

func (s *JSONStore) path(name string) (string, error) {
	n, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, n+".json"), nil
}

func (s *JSONStore) ReadSnapshot(ctx context.Context, name string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	path, err := s.path(name)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *JSONStore) WriteSnapshot(ctx context.Context, name string, data []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(name)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), data)
}

func (s *JSONStore) Close() error { return nil }
