package registry

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/John-Robertt/modup/internal/domain"
)

// MatchThreshold 是接受搜索候选的最低相似度。
const MatchThreshold = 0.70

// 浮点比较容差：1-3/10 这类分数不能因为舍入掉到阈值以下。
const scoreEpsilon = 1e-9

// Similarity 返回 1 - 编辑距离/较长者的字符数（大小写不敏感，按 rune 计）。
// 对称；两个空串视为完全相同。
func Similarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(n)
}

// candidateScore 取标题与 slug 中较高的相似度。
func candidateScore(query string, p domain.RegistryProject) float64 {
	return max(Similarity(query, p.Title), Similarity(query, p.Slug))
}

// BestCandidate 在搜索结果中选出最相似的项目。
//
// 规则：
// - 分数严格更高才替换，同分保持 registry 的相关度顺序
// - 例外：同分时标题与 query 完全一致（忽略大小写）的候选优先
// - 最高分低于 MatchThreshold 时 ok=false
func BestCandidate(query string, hits []domain.RegistryProject) (best domain.RegistryProject, score float64, ok bool) {
	idx := -1
	for i, h := range hits {
		s := candidateScore(query, h)
		switch {
		case idx < 0 || s > score+scoreEpsilon:
		case s >= score-scoreEpsilon && exactTitle(query, h) && !exactTitle(query, hits[idx]):
		default:
			continue
		}
		idx, score = i, s
	}
	if idx < 0 || score+scoreEpsilon < MatchThreshold {
		return domain.RegistryProject{}, score, false
	}
	return hits[idx], score, true
}

func exactTitle(query string, p domain.RegistryProject) bool {
	return strings.EqualFold(strings.TrimSpace(query), strings.TrimSpace(p.Title))
}
