package domain

import "strings"

// LoaderFamily 是 mod 面向的加载器家族。
//
// 约束：NeoForge 只能由清单里的显式标记得出，不能因为“不是 Forge”而推断。
type LoaderFamily string

const (
	LoaderFabric   LoaderFamily = "fabric"
	LoaderQuilt    LoaderFamily = "quilt"
	LoaderForge    LoaderFamily = "forge"
	LoaderNeoForge LoaderFamily = "neoforge"
	LoaderUnknown  LoaderFamily = "unknown"
)

// ParseLoader 把 registry/清单中的 loader 标签映射为 LoaderFamily。
// 不认识的标签（例如 datapack、minecraft）返回 LoaderUnknown, false。
func ParseLoader(s string) (LoaderFamily, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fabric":
		return LoaderFabric, true
	case "quilt":
		return LoaderQuilt, true
	case "forge":
		return LoaderForge, true
	case "neoforge":
		return LoaderNeoForge, true
	default:
		return LoaderUnknown, false
	}
}

// ParseLoaders 解析一组标签，丢弃不认识的项，保持首次出现顺序。
func ParseLoaders(tags []string) []LoaderFamily {
	out := make([]LoaderFamily, 0, len(tags))
	seen := make(map[LoaderFamily]struct{}, len(tags))
	for _, t := range tags {
		l, ok := ParseLoader(t)
		if !ok {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// KnownLoaders 去重并去掉 unknown/空值，保持顺序。
func KnownLoaders(xs []LoaderFamily) []LoaderFamily {
	out := make([]LoaderFamily, 0, len(xs))
	seen := make(map[LoaderFamily]struct{}, len(xs))
	for _, l := range xs {
		if l == "" || l == LoaderUnknown {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// EffectiveLoaders 返回结果里使用的 loader 集合：永远非空，无可推断时为 [unknown]。
func EffectiveLoaders(xs []LoaderFamily) []LoaderFamily {
	out := KnownLoaders(xs)
	if len(out) == 0 {
		return []LoaderFamily{LoaderUnknown}
	}
	return out
}

// LoaderTags 把 loader 集合转为 registry 查询用的小写标签（跳过 unknown）。
func LoaderTags(xs []LoaderFamily) []string {
	known := KnownLoaders(xs)
	out := make([]string, 0, len(known))
	for _, l := range known {
		out = append(out, string(l))
	}
	return out
}
