package fallback

import "github.com/John-Robertt/modup/internal/domain"

// Fill 用文件名推断补齐 meta 中缺失的字段；清单里已有的字段永远优先。
// 第二个返回值表示是否有字段来自文件名。
func Fill(meta domain.ExtractedMetadata, fileName string) (domain.ExtractedMetadata, bool) {
	if meta.Complete() {
		return meta, false
	}

	g := FromFilename(fileName)
	used := false

	if !meta.HasIdentity() && g.Name != "" {
		meta.Name = g.Name
		used = true
	}
	if meta.Version == "" && g.Version != "" {
		meta.Version = g.Version
		used = true
	}
	if meta.GameVersion == "" && g.GameVersion != "" {
		meta.GameVersion = g.GameVersion
		used = true
	}
	if len(domain.KnownLoaders(meta.Loaders)) == 0 && g.Loader != "" {
		meta.Loaders = []domain.LoaderFamily{g.Loader}
		used = true
	}
	return meta, used
}
