package domain

import (
	"crypto/sha512"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	ExtJar         = ".jar"
	ExtJarDisabled = ".jar.disabled"
)

// ModArchive 是扫描得到的一个 mod 归档（.jar 或 .jar.disabled）。
//
// 约束：
// - 一次扫描内不可变；缓存身份为 (Path, ModTime)
// - 内容哈希惰性计算且只算一次（并发安全），因此必须以指针传递
type ModArchive struct {
	Path    string // 绝对路径
	Name    string // 文件名（含扩展名）
	Size    int64
	ModTime time.Time
	Enabled bool // false 表示 .jar.disabled

	hashOnce sync.Once
	hash     string
	hashErr  error
}

// Stem 返回去掉 .jar / .jar.disabled 后的文件名。
func (a *ModArchive) Stem() string {
	return StemOf(a.Name)
}

// StemOf 对任意文件名做同样的扩展名剥离（大小写不敏感）。
func StemOf(name string) string {
	low := strings.ToLower(name)
	switch {
	case strings.HasSuffix(low, ExtJarDisabled):
		return name[:len(name)-len(ExtJarDisabled)]
	case strings.HasSuffix(low, ExtJar):
		return name[:len(name)-len(ExtJar)]
	default:
		return name
	}
}

// Hash 返回归档内容的 SHA-512（小写 hex）。首次调用时流式读取文件。
func (a *ModArchive) Hash() (string, error) {
	a.hashOnce.Do(func() {
		a.hash, a.hashErr = hashFile(a.Path)
	})
	return a.hash, a.hashErr
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha512.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
