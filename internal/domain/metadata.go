package domain

import "strings"

// ExtractedMetadata 是从归档清单里读到的声明信息。空字符串表示缺失。
//
// 注意：完全为空是合法值（触发文件名回退），不是错误。
type ExtractedMetadata struct {
	ModID       string         `json:"mod_id,omitempty"`
	Name        string         `json:"name,omitempty"`
	Version     string         `json:"version,omitempty"`
	GameVersion string         `json:"game_version,omitempty"`
	Loaders     []LoaderFamily `json:"loaders,omitempty"`

	// Entry 是实际解析的清单条目（例如 fabric.mod.json）；为空表示没有找到清单。
	Entry string `json:"entry,omitempty"`
	// Issue 记录提取阶段的降级原因（archive_unreadable / manifest_malformed）。
	Issue ErrorKind `json:"issue,omitempty"`
}

// HasIdentity 表示是否拿到了 id 或名称。
func (m ExtractedMetadata) HasIdentity() bool {
	return strings.TrimSpace(m.ModID) != "" || strings.TrimSpace(m.Name) != ""
}

// Complete 表示不再需要文件名回退。
func (m ExtractedMetadata) Complete() bool {
	return m.HasIdentity() && m.Version != "" && m.GameVersion != "" && len(KnownLoaders(m.Loaders)) > 0
}

// BestEffortName 按 id -> name -> 文件名 stem 的顺序给出非空名称。
func BestEffortName(modID, name, stem string) string {
	for _, s := range []string{modID, name, stem} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return "<unknown>"
}
