package app

import (
	"sort"
	"strings"

	"github.com/John-Robertt/modup/internal/domain"
)

// Duplicate 是解析到同一 registry 项目的多个已启用归档。
type Duplicate struct {
	ProjectID string
	Name      string
	Files     []string
}

// FindDuplicates 按项目 id 分组已解析且启用的结果，只返回多于一个文件的组。
//
// - 组稳定排序：按名称（大小写不敏感），同名按项目 id
// - 组内 Files 按文件名字典序
func FindDuplicates(items []domain.ModReport) []Duplicate {
	index := make(map[string]int, len(items))
	groups := make([]Duplicate, 0, 8)

	for _, it := range items {
		r := it.Resolution
		if r.Status != domain.ResolutionResolved || !r.Enabled || r.ProjectID == "" {
			continue
		}
		if idx, ok := index[r.ProjectID]; ok {
			groups[idx].Files = append(groups[idx].Files, r.File)
			continue
		}
		index[r.ProjectID] = len(groups)
		groups = append(groups, Duplicate{ProjectID: r.ProjectID, Name: r.Name, Files: []string{r.File}})
	}

	out := groups[:0]
	for _, g := range groups {
		if len(g.Files) > 1 {
			sort.Strings(g.Files)
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ProjectID < out[j].ProjectID
	})
	return out
}

// DuplicateFiles 返回所有重复组里出现的文件名集合。
func DuplicateFiles(dups []Duplicate) map[string]struct{} {
	out := make(map[string]struct{})
	for _, d := range dups {
		for _, f := range d.Files {
			out[f] = struct{}{}
		}
	}
	return out
}
