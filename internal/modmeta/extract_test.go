package modmeta

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/John-Robertt/modup/internal/domain"
)

func writeJar(t *testing.T, dir, name string, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("创建 jar 失败：%v", err)
	}
	defer f.Close()

	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)

	zw := zip.NewWriter(f)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatalf("写入条目失败：%v", err)
		}
		if _, err := w.Write([]byte(entries[n])); err != nil {
			t.Fatalf("写入条目失败：%v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("关闭 zip 失败：%v", err)
	}
	return path
}

func TestExtract_FabricDependsRange(t *testing.T) {
	path := writeJar(t, t.TempDir(), "lithium.jar", map[string]string{
		EntryFabric: `{
  "schemaVersion": 1,
  "id": "lithium",
  "name": "Lithium",
  "version": "0.11.2",
  "depends": {"fabricloader": ">=0.14", "minecraft": ">=1.20.1"}
}`,
	})

	meta, err := Extract(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if meta.GameVersion != "1.20.1" {
		t.Fatalf("期望游戏版本 1.20.1，实际 %q", meta.GameVersion)
	}
	if meta.ModID != "lithium" || meta.Name != "Lithium" || meta.Version != "0.11.2" {
		t.Fatalf("字段不正确：%+v", meta)
	}
	if len(meta.Loaders) != 1 || meta.Loaders[0] != domain.LoaderFabric || meta.Entry != EntryFabric {
		t.Fatalf("loader/entry 不正确：%+v", meta)
	}
}

func TestExtract_FabricDependsArray(t *testing.T) {
	path := writeJar(t, t.TempDir(), "a.jar", map[string]string{
		EntryFabric: `{"id":"a","version":"1.0","depends":{"minecraft":["~1.19.2","1.20.x"]}}`,
	})
	meta, err := Extract(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if meta.GameVersion != "1.19.2" {
		t.Fatalf("期望数组第一个命中 1.19.2，实际 %q", meta.GameVersion)
	}
}

func TestExtract_FabricMalformedSalvage(t *testing.T) {
	path := writeJar(t, t.TempDir(), "broken.jar", map[string]string{
		EntryFabric: "{\"id\": \"broken\", \"name\": \"Broken\", \"version\": \"2.0\",\n \"description\": \"line1\nline2\", }",
	})
	meta, err := Extract(path)
	if Kind(err) != domain.ErrManifestMalformed {
		t.Fatalf("期望 manifest_malformed，实际 err=%v", err)
	}
	if meta.Issue != domain.ErrManifestMalformed {
		t.Fatalf("meta.Issue 应同步错误类型：%+v", meta)
	}
	if meta.ModID != "broken" || meta.Version != "2.0" {
		t.Fatalf("期望挽回 id/version，实际 %+v", meta)
	}
	if len(meta.Loaders) != 1 || meta.Loaders[0] != domain.LoaderFabric {
		t.Fatalf("损坏清单仍应给出 loader：%v", meta.Loaders)
	}
}

func TestExtract_Quilt(t *testing.T) {
	path := writeJar(t, t.TempDir(), "q.jar", map[string]string{
		EntryQuilt: `{
  "schema_version": 1,
  "quilt_loader": {
    "id": "qmod",
    "version": "3.1.0",
    "metadata": {"name": "Quilt Mod"},
    "depends": ["quilt_loader", {"id": "minecraft", "versions": {"any": [">=1.20.4"]}}]
  }
}`,
	})
	meta, err := Extract(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if meta.ModID != "qmod" || meta.Name != "Quilt Mod" || meta.Version != "3.1.0" || meta.GameVersion != "1.20.4" {
		t.Fatalf("字段不正确：%+v", meta)
	}
	if meta.Loaders[0] != domain.LoaderQuilt {
		t.Fatalf("期望 quilt，实际 %v", meta.Loaders)
	}
}

const forgeTOML = `modLoader="javafml"
loaderVersion="[47,)"
license="MIT"

[[mods]]
modId="examplemod"
version="${file.jarVersion}"
displayName="Example Mod"

[[dependencies.examplemod]]
modId="forge"
mandatory=true
versionRange="[47,)"

[[dependencies.examplemod]]
modId="minecraft"
mandatory=true
versionRange="[1.20.1,1.21)"
`

func TestExtract_ForgeTablesAndJarVersion(t *testing.T) {
	path := writeJar(t, t.TempDir(), "example.jar", map[string]string{
		EntryForge:    forgeTOML,
		EntryManifest: "Manifest-Version: 1.0\r\nImplementation-Title: examplemod\r\nImplementation-Version: 4.2.\r\n 1\r\n\r\nName: x\r\n",
	})
	meta, err := Extract(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if meta.ModID != "examplemod" || meta.Name != "Example Mod" {
		t.Fatalf("期望从 [[mods]] 读到 id/name，实际 %+v", meta)
	}
	if meta.Version != "4.2.1" {
		t.Fatalf("期望占位符替换为 MANIFEST 版本 4.2.1，实际 %q", meta.Version)
	}
	if meta.GameVersion != "1.20.1" {
		t.Fatalf("期望游戏版本 1.20.1，实际 %q", meta.GameVersion)
	}
	if meta.Loaders[0] != domain.LoaderForge {
		t.Fatalf("期望 forge，实际 %v", meta.Loaders)
	}
}

func TestExtract_ForgePlaceholderWithoutManifest(t *testing.T) {
	path := writeJar(t, t.TempDir(), "example.jar", map[string]string{EntryForge: forgeTOML})
	meta, err := Extract(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if meta.Version != "" {
		t.Fatalf("占位符不是版本，期望为空，实际 %q", meta.Version)
	}
}

func TestExtract_NeoForgeMarker(t *testing.T) {
	raw := `modLoader="javafml"
[[mods]]
modId="neomod"
displayName="Neo Mod"
version="1.0.0"
[[dependencies.neomod]]
modId="neoforge"
versionRange="[21.1,)"
`
	path := writeJar(t, t.TempDir(), "neo.jar", map[string]string{EntryForge: raw})
	meta, err := Extract(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if meta.Loaders[0] != domain.LoaderNeoForge {
		t.Fatalf("原文含 neoforge 标记，期望 neoforge，实际 %v", meta.Loaders)
	}
}

func TestExtract_TopLevelKeysWin(t *testing.T) {
	raw := "modId=\"top\"\ndisplayName=\"Top\"\n[[mods]]\nmodId=\"inner\"\ndisplayName=\"Inner\"\n"
	path := writeJar(t, t.TempDir(), "top.jar", map[string]string{EntryForge: raw})
	meta, _ := Extract(path)
	if meta.ModID != "top" || meta.Name != "Top" {
		t.Fatalf("期望顶层键优先，实际 %+v", meta)
	}
}

func TestExtract_ForgeMalformedRegexFallback(t *testing.T) {
	raw := "[[mods]]\nmodId=\"legacy\"\ndisplayName=\"Legacy Mod\"\nversion=\"1.2.3\"\nthis is = = not toml\n"
	path := writeJar(t, t.TempDir(), "legacy.jar", map[string]string{EntryForge: raw})
	meta, err := Extract(path)
	if Kind(err) != domain.ErrManifestMalformed {
		t.Fatalf("期望 manifest_malformed，实际 %v", err)
	}
	if meta.ModID != "legacy" || meta.Name != "Legacy Mod" || meta.Version != "1.2.3" {
		t.Fatalf("期望正则挽回字段，实际 %+v", meta)
	}
	if meta.Loaders[0] != domain.LoaderForge {
		t.Fatalf("期望 forge，实际 %v", meta.Loaders)
	}
}

func TestExtract_PriorityFabricFirst(t *testing.T) {
	path := writeJar(t, t.TempDir(), "both.jar", map[string]string{
		EntryFabric: `{"id":"fab","version":"1.0"}`,
		EntryForge:  forgeTOML,
	})
	meta, err := Extract(path)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if meta.ModID != "fab" || meta.Entry != EntryFabric {
		t.Fatalf("期望只解析 fabric.mod.json，实际 %+v", meta)
	}
}

func TestExtract_NoManifest(t *testing.T) {
	path := writeJar(t, t.TempDir(), "plain.jar", map[string]string{"a/B.class": "x"})
	meta, err := Extract(path)
	if err != nil {
		t.Fatalf("缺少清单不是错误：%v", err)
	}
	if meta.HasIdentity() || meta.Entry != "" || len(meta.Loaders) != 0 {
		t.Fatalf("期望空 meta，实际 %+v", meta)
	}
}

func TestExtract_CorruptArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.jar")
	if err := os.WriteFile(path, []byte("definitely not a zip"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
	meta, err := Extract(path)
	if Kind(err) != domain.ErrArchiveUnreadable {
		t.Fatalf("期望 archive_unreadable，实际 %v", err)
	}
	if meta.HasIdentity() || meta.Issue != domain.ErrArchiveUnreadable {
		t.Fatalf("期望空 meta 且 Issue=archive_unreadable，实际 %+v", meta)
	}
}

func TestManifestAttr(t *testing.T) {
	raw := []byte("Manifest-Version: 1.0\nimplementation-version: 9.9\n")
	if got := manifestAttr(raw, "Implementation-Version"); got != "9.9" {
		t.Fatalf("期望大小写不敏感读取 9.9，实际 %q", got)
	}
	if got := manifestAttr(raw, "Missing"); got != "" {
		t.Fatalf("缺失属性期望空串，实际 %q", got)
	}
}

func TestExtract_ForgeKeysOutsideModsArraySalvaged(t *testing.T) {
	// 合法 TOML，但 [mods] 写成了普通表：结构化查找拿不到 id/name。
	raw := "modLoader=\"javafml\"\n[mods]\nmodId=\"oddmod\"\ndisplayName=\"Odd Mod\"\nversion=\"0.9.1\"\n"
	path := writeJar(t, t.TempDir(), "odd.jar", map[string]string{EntryForge: raw})
	meta, err := Extract(path)
	if err != nil {
		t.Fatalf("可解析的 TOML 不应报错：%v", err)
	}
	if meta.ModID != "oddmod" || meta.Name != "Odd Mod" || meta.Version != "0.9.1" {
		t.Fatalf("期望按原文补齐缺失键，实际 %+v", meta)
	}
}
