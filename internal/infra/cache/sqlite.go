package cache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // 纯 Go SQLite 驱动（CGO_ENABLED=0 可用）
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteStore 把快照存成单个 SQLite 库里的一行一表。
//
// 注意：ReadOnly 且库文件不存在时不会创建文件，所有读取都是未命中。
type SQLiteStore struct {
	db       *sql.DB
	readOnly bool
}

// OpenSQLite 打开（必要时创建）path 处的快照库。path 可为 ":memory:"。
func OpenSQLite(path string, readOnly bool) (*SQLiteStore, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) && readOnly {
			return &SQLiteStore{readOnly: true}, nil
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// 单连接：":memory:" 每个连接是独立的库；文件库也只有扫描开始/结束两次访问。
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		sqliteSchema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SQLiteStore{db: db, readOnly: readOnly}, nil
}

func (s *SQLiteStore) ReadSnapshot(ctx context.Context, name string) ([]byte, bool, error) {
	n, err := cleanName(name)
	if err != nil {
		return nil, false, err
	}
	if s.db == nil {
		return nil, false, nil
	}

	var data []byte
	err = s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE name = ?", n).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *SQLiteStore) WriteSnapshot(ctx context.Context, name string, data []byte) error {
	if s.readOnly || s.db == nil {
		return ErrReadOnly
	}
	n, err := cleanName(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		n, data, time.Now().Unix())
	return err
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
