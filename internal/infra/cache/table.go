package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// snapshotVersion 随快照结构变化递增；版本不符的快照按空表处理。
const snapshotVersion = 1

// Entry 是一条缓存记录。TTL=0 表示永不过期。
type Entry[V any] struct {
	Value     V             `json:"value"`
	WrittenAt time.Time     `json:"written_at"`
	TTL       time.Duration `json:"ttl,omitempty"`
}

// Expired 判断条目在 now 时刻是否已过期。
func (e Entry[V]) Expired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.WrittenAt) >= e.TTL
}

type snapshot[V any] struct {
	Version int                 `json:"version"`
	Entries map[string]Entry[V] `json:"entries"`
}

// Table 是一张带 TTL 的内存表，整表加载/整表持久化。
//
// 约束：
// - 每张表一把锁；表之间互不影响
// - 过期条目在读到时删除，持久化时不写出
// - 多进程并发写同一快照时后写者胜出，不做跨进程协调
type Table[V any] struct {
	name string
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]Entry[V]
}

// NewTable 创建名为 name 的表；name 同时是快照名（只允许 [a-z0-9_]）。
func NewTable[V any](name string, ttl time.Duration) *Table[V] {
	return &Table[V]{
		name:    name,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]Entry[V]),
	}
}

func (t *Table[V]) Name() string { return t.name }

func (t *Table[V]) Get(key string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if e.Expired(t.now()) {
		delete(t.entries, key)
		var zero V
		return zero, false
	}
	return e.Value, true
}

func (t *Table[V]) Put(key string, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = Entry[V]{Value: v, WrittenAt: t.now().UTC(), TTL: t.ttl}
}

func (t *Table[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Load 从 store 读取快照并并入内存表（内存中已有的 key 保留）。
// 快照不存在不是错误；快照损坏返回 *SnapshotError，内存表保持不变。
func (t *Table[V]) Load(ctx context.Context, store SnapshotStore) error {
	if store == nil {
		return nil
	}
	data, ok, err := store.ReadSnapshot(ctx, t.name)
	if err != nil {
		return &SnapshotError{Name: t.name, Op: "read", Err: err}
	}
	if !ok {
		return nil
	}

	var snap snapshot[V]
	if err := json.Unmarshal(data, &snap); err != nil {
		return &SnapshotError{Name: t.name, Op: "decode", Err: err}
	}
	if snap.Version != snapshotVersion {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for k, e := range snap.Entries {
		if e.Expired(now) {
			continue
		}
		if _, exists := t.entries[k]; !exists {
			t.entries[k] = e
		}
	}
	return nil
}

// Persist 把当前未过期的条目整表写入 store。
func (t *Table[V]) Persist(ctx context.Context, store SnapshotStore) error {
	if store == nil {
		return nil
	}

	t.mu.Lock()
	now := t.now()
	snap := snapshot[V]{Version: snapshotVersion, Entries: make(map[string]Entry[V], len(t.entries))}
	for k, e := range t.entries {
		if !e.Expired(now) {
			snap.Entries[k] = e
		}
	}
	t.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return &SnapshotError{Name: t.name, Op: "encode", Err: err}
	}
	if err := store.WriteSnapshot(ctx, t.name, data); err != nil {
		return &SnapshotError{Name: t.name, Op: "write", Err: err}
	}
	return nil
}

// SnapshotError 表示快照读写失败。缓存失败只降级为“未命中”，不影响扫描结果。
type SnapshotError struct {
	Name string
	Op   string
	Err  error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("cache 快照 %s %s 失败：%v", e.Name, e.Op, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }
