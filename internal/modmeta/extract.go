package modmeta

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/John-Robertt/modup/internal/domain"
)

const (
	EntryFabric   = "fabric.mod.json"
	EntryQuilt    = "quilt.mod.json"
	EntryForge    = "META-INF/mods.toml"
	EntryNeoForge = "META-INF/neoforge.mods.toml"
	EntryManifest = "META-INF/MANIFEST.MF"

	// 清单文件都很小；超出说明归档异常，截断读取即可。
	maxEntrySize = 1 << 20
)

// manifestParser 负责一种清单条目。parse 必须是纯函数：相同输入 => 相同输出。
type manifestParser struct {
	entry string
	parse func(raw []byte, zr *zipIndex) (domain.ExtractedMetadata, error)
}

// manifestOrder 的顺序即优先级：只解析第一个存在的条目。
var manifestOrder = []manifestParser{
	{entry: EntryFabric, parse: parseFabric},
	{entry: EntryQuilt, parse: parseQuilt},
	{entry: EntryForge, parse: parseForge},
	{entry: EntryNeoForge, parse: parseNeoForge},
}

// gameVersionRE 从依赖声明（">=1.20.1"、"[1.20,1.21)"）中取第一个 major.minor[.patch]。
var gameVersionRE = regexp.MustCompile(`\d+\.\d+(?:\.\d+)?`)

// ArchiveError 表示归档本身无法打开/读取。
type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("无法读取归档 %q：%v", e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// ManifestError 表示清单存在但内容不合法（可能已尽量挽回了部分字段）。
type ManifestError struct {
	Entry string
	Err   error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("清单 %s 无效：%v", e.Entry, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// Kind 把 Extract 返回的 error 映射为 ErrorKind；nil 返回空串。
func Kind(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}
	var ae *ArchiveError
	if errors.As(err, &ae) {
		return domain.ErrArchiveUnreadable
	}
	return domain.ErrManifestMalformed
}

// Extract 读取 path 指向的归档并解析其清单。
//
// 约束：
// - 纯读取，不写任何文件
// - 返回的 meta 永远可用：打不开 => 空 meta；没有清单 => 空 meta 且 err=nil；
//   清单损坏 => 尽量挽回的字段 + 可判定的 loader 家族
// - err 只用于解释降级原因（同时写入 meta.Issue），调用方不应因此中断流水线
func Extract(path string) (domain.ExtractedMetadata, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		e := &ArchiveError{Path: path, Err: err}
		return domain.ExtractedMetadata{Issue: domain.ErrArchiveUnreadable}, e
	}
	defer rc.Close()

	return extractFrom(newZipIndex(rc.File))
}

func extractFrom(zr *zipIndex) (domain.ExtractedMetadata, error) {
	for _, p := range manifestOrder {
		f := zr.lookup(p.entry)
		if f == nil {
			continue
		}
		raw, err := readEntry(f)
		if err != nil {
			meta := domain.ExtractedMetadata{Entry: p.entry, Issue: domain.ErrArchiveUnreadable}
			return meta, &ArchiveError{Path: p.entry, Err: err}
		}

		meta, perr := p.parse(raw, zr)
		meta.Entry = p.entry
		meta.Loaders = domain.KnownLoaders(meta.Loaders)
		if perr != nil {
			meta.Issue = domain.ErrManifestMalformed
			return meta, &ManifestError{Entry: p.entry, Err: perr}
		}
		return meta, nil
	}
	return domain.ExtractedMetadata{}, nil
}

// zipIndex 按条目名索引归档（大小写敏感，与 JVM 类加载器一致）。
type zipIndex struct {
	byName map[string]*zip.File
}

func newZipIndex(files []*zip.File) *zipIndex {
	m := make(map[string]*zip.File, len(files))
	for _, f := range files {
		name := strings.TrimPrefix(f.Name, "/")
		if _, ok := m[name]; !ok {
			m[name] = f
		}
	}
	return &zipIndex{byName: m}
}

func (z *zipIndex) lookup(name string) *zip.File {
	if z == nil {
		return nil
	}
	return z.byName[name]
}

// read 读取任意条目；不存在时返回 nil, nil。
func (z *zipIndex) read(name string) ([]byte, error) {
	f := z.lookup(name)
	if f == nil {
		return nil, nil
	}
	return readEntry(f)
}

func readEntry(f *zip.File) ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, maxEntrySize))
}

// firstGameVersion 从依赖值（字符串或字符串数组）中取第一个游戏版本号。
func firstGameVersion(v any) string {
	switch x := v.(type) {
	case string:
		return gameVersionRE.FindString(x)
	case []any:
		for _, it := range x {
			if s := firstGameVersion(it); s != "" {
				return s
			}
		}
	case []string:
		for _, it := range x {
			if s := gameVersionRE.FindString(it); s != "" {
				return s
			}
		}
	case map[string]any:
		// quilt 的 {"any": [...]} / {"all": [...]} 形态
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s := firstGameVersion(x[k]); s != "" {
				return s
			}
		}
	}
	return ""
}
