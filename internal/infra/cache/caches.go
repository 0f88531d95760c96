package cache

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/John-Robertt/modup/internal/domain"
)

const (
	MetadataTable   = "metadata"
	ResolutionTable = "resolution"

	DefaultResolutionTTL = 6 * time.Hour
)

// MetadataKey 以（绝对路径，修改时间）标识一次归档读取；文件一旦改动就自然失效。
func MetadataKey(path string, modTime time.Time) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path + "|" + strconv.FormatInt(modTime.UnixNano(), 10)
}

// ResolutionKey 以（名称或 id，本地版本，目标游戏版本）标识一次注册表解析。
func ResolutionKey(nameOrID, localVersion, target string) string {
	return strings.ToLower(strings.TrimSpace(nameOrID)) + "|" +
		strings.TrimSpace(localVersion) + "|" + strings.TrimSpace(target)
}

// Caches 是扫描流水线使用的两张表。
//
// 约束：Store 为 nil 时只在内存中生效（测试与 --no-cache）。
type Caches struct {
	Metadata   *Table[domain.ExtractedMetadata]
	Resolution *Table[domain.ModReport]
	Store      SnapshotStore
}

func New(store SnapshotStore, resolutionTTL time.Duration) *Caches {
	if resolutionTTL <= 0 {
		resolutionTTL = DefaultResolutionTTL
	}
	return &Caches{
		Metadata:   NewTable[domain.ExtractedMetadata](MetadataTable, 0),
		Resolution: NewTable[domain.ModReport](ResolutionTable, resolutionTTL),
		Store:      store,
	}
}

// NewMemory 返回不落盘的缓存。
func NewMemory() *Caches { return New(nil, 0) }

// Load 在扫描开始时加载两张表的快照；单表失败不影响另一张。
func (c *Caches) Load(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return errors.Join(
		c.Metadata.Load(ctx, c.Store),
		c.Resolution.Load(ctx, c.Store),
	)
}

// Persist 在扫描结束时整表写回。只读存储返回 nil。
func (c *Caches) Persist(ctx context.Context) error {
	if c == nil {
		return nil
	}
	err := errors.Join(
		c.Metadata.Persist(ctx, c.Store),
		c.Resolution.Persist(ctx, c.Store),
	)
	if err != nil && onlyReadOnly(err) {
		return nil
	}
	return err
}

func onlyReadOnly(err error) bool {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			if !errors.Is(e, ErrReadOnly) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, ErrReadOnly)
}

func (c *Caches) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
