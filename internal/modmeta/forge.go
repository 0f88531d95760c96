package modmeta

import (
	"bufio"
	"bytes"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/modup/internal/domain"
)

// TOML 解析失败时的直接抽取（旧版 Forge 清单常见不合规写法）。
var (
	tomlModIDRE       = regexp.MustCompile(`modId\s*=\s*"([^"]+)"`)
	tomlDisplayNameRE = regexp.MustCompile(`displayName\s*=\s*"([^"]+)"`)
	tomlVersionRE     = regexp.MustCompile(`(?m)^\s*version\s*=\s*"([^"]+)"`)
	tomlMCRangeRE     = regexp.MustCompile(`(?s)modId\s*=\s*"minecraft".*?versionRange\s*=\s*"([^"]+)"`)
)

func parseNeoForge(raw []byte, zr *zipIndex) (domain.ExtractedMetadata, error) {
	meta, err := parseForge(raw, zr)
	// neoforge.mods.toml 这个条目名本身就是显式标记
	meta.Loaders = []domain.LoaderFamily{domain.LoaderNeoForge}
	return meta, err
}

// parseForge 解析 META-INF/mods.toml。
//
// 查找顺序：顶层 modId/displayName -> 第一个带 modId 的 [[mods]] 表。
// 注意：NeoForge 只能由原文中出现 "neoforge" 字样判定；否则一律视为 Forge。
func parseForge(raw []byte, zr *zipIndex) (domain.ExtractedMetadata, error) {
	meta := domain.ExtractedMetadata{Loaders: []domain.LoaderFamily{forgeFamily(raw)}}

	var doc map[string]any
	if err := toml.Unmarshal(raw, &doc); err != nil {
		salvageTOML(&meta, raw)
		resolveJarVersion(&meta, zr)
		return meta, err
	}

	meta.ModID = stringField(doc, "modId")
	meta.Name = stringField(doc, "displayName")
	meta.Version = strings.TrimSpace(stringField(doc, "version"))

	if meta.ModID == "" || meta.Name == "" {
		if mod := firstModTable(doc); mod != nil {
			if meta.ModID == "" {
				meta.ModID = stringField(mod, "modId")
			}
			if meta.Name == "" {
				meta.Name = stringField(mod, "displayName")
			}
			if meta.Version == "" {
				meta.Version = strings.TrimSpace(stringField(mod, "version"))
			}
		}
	}

	meta.GameVersion = minecraftRange(doc, meta.ModID)
	if meta.ModID == "" || meta.Name == "" {
		// 结构合法但键不在约定位置（例如 [mods] 写成了普通表）：按原文补齐缺失项。
		salvageTOML(&meta, raw)
	}
	resolveJarVersion(&meta, zr)
	return meta, nil
}

func forgeFamily(raw []byte) domain.LoaderFamily {
	if bytes.Contains(bytes.ToLower(raw), []byte("neoforge")) {
		return domain.LoaderNeoForge
	}
	return domain.LoaderForge
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func firstModTable(doc map[string]any) map[string]any {
	mods, _ := doc["mods"].([]any)
	for _, it := range mods {
		mod, ok := it.(map[string]any)
		if ok && stringField(mod, "modId") != "" {
			return mod
		}
	}
	return nil
}

// minecraftRange 在 [[dependencies.<id>]] 中找 modId="minecraft" 的 versionRange。
// 优先当前 mod 自己的依赖表，其次按表名排序遍历。
func minecraftRange(doc map[string]any, modID string) string {
	deps, _ := doc["dependencies"].(map[string]any)
	if len(deps) == 0 {
		return ""
	}
	keys := make([]string, 0, len(deps))
	for k := range deps {
		if k != modID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := deps[modID]; ok && modID != "" {
		keys = append([]string{modID}, keys...)
	}

	for _, k := range keys {
		list, _ := deps[k].([]any)
		for _, it := range list {
			dep, ok := it.(map[string]any)
			if !ok || stringField(dep, "modId") != "minecraft" {
				continue
			}
			if v := gameVersionRE.FindString(stringField(dep, "versionRange")); v != "" {
				return v
			}
		}
	}
	return ""
}

// salvageTOML 用正则直接抽取字段，只补齐 meta 中仍为空的项。
func salvageTOML(meta *domain.ExtractedMetadata, raw []byte) {
	s := string(raw)
	fill := func(dst *string, re *regexp.Regexp) {
		if *dst != "" {
			return
		}
		if m := re.FindStringSubmatch(s); m != nil {
			*dst = strings.TrimSpace(m[1])
		}
	}
	fill(&meta.ModID, tomlModIDRE)
	fill(&meta.Name, tomlDisplayNameRE)
	fill(&meta.Version, tomlVersionRE)
	if meta.GameVersion == "" {
		if m := tomlMCRangeRE.FindStringSubmatch(s); m != nil {
			meta.GameVersion = gameVersionRE.FindString(m[1])
		}
	}
}

// resolveJarVersion 把 ${file.jarVersion} 一类占位符替换为 MANIFEST.MF 的 Implementation-Version；
// 取不到则置空（占位符不是可比较的版本）。
func resolveJarVersion(meta *domain.ExtractedMetadata, zr *zipIndex) {
	if !strings.HasPrefix(meta.Version, "${") {
		return
	}
	meta.Version = ""
	raw, err := zr.read(EntryManifest)
	if err != nil || raw == nil {
		return
	}
	meta.Version = manifestAttr(raw, "Implementation-Version")
}

// manifestAttr 读取 JAR MANIFEST 的主段属性（支持以空格开头的续行）。
func manifestAttr(raw []byte, key string) string {
	sc := bufio.NewScanner(bytes.NewReader(raw))
	var cur string
	var val strings.Builder
	found := false
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			// 主段结束
			break
		}
		if strings.HasPrefix(line, " ") {
			if found {
				val.WriteString(line[1:])
			}
			continue
		}
		if found {
			break
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		cur = strings.TrimSpace(k)
		if strings.EqualFold(cur, key) {
			found = true
			val.WriteString(strings.TrimSpace(v))
		}
	}
	return strings.TrimSpace(val.String())
}
