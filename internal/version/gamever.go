package version

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	releaseRE  = regexp.MustCompile(`^\d+\.\d+`)
	snapshotRE = regexp.MustCompile(`^\d{2}w\d{2}`)
)

// LatestGameVersion 从一组游戏版本字符串中选出“最新”的一个。
//
// 优先级：正式版（^\d+\.\d+，按数字降序）> 快照（^\d{2}w\d{2}，按字典序降序）
// > 其余不以字母开头的字符串（尽量按数字降序）> 无（返回空串）。
func LatestGameVersion(set []string) string {
	var releases, snapshots, others []string
	for _, v := range set {
		v = strings.TrimSpace(v)
		switch {
		case v == "":
		case releaseRE.MatchString(v):
			releases = append(releases, v)
		case snapshotRE.MatchString(v):
			snapshots = append(snapshots, v)
		case !startsWithLetter(v):
			others = append(others, v)
		}
	}

	if len(releases) > 0 {
		sortNumericDesc(releases)
		return releases[0]
	}
	if len(snapshots) > 0 {
		sort.Sort(sort.Reverse(sort.StringSlice(snapshots)))
		return snapshots[0]
	}
	if len(others) > 0 {
		sortNumericDesc(others)
		return others[0]
	}
	return ""
}

// SortGameVersions 按 LatestGameVersion 的同一优先级排序（最新在前），并去重。
func SortGameVersions(set []string) []string {
	seen := make(map[string]struct{}, len(set))
	var releases, snapshots, rest []string
	for _, v := range set {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		switch {
		case releaseRE.MatchString(v):
			releases = append(releases, v)
		case snapshotRE.MatchString(v):
			snapshots = append(snapshots, v)
		default:
			rest = append(rest, v)
		}
	}
	sortNumericDesc(releases)
	sort.Sort(sort.Reverse(sort.StringSlice(snapshots)))
	sort.Strings(rest)

	out := make([]string, 0, len(seen))
	out = append(out, releases...)
	out = append(out, snapshots...)
	return append(out, rest...)
}

// sortNumericDesc 按规范化后的数字分量降序；无法比较的保持原相对顺序。
func sortNumericDesc(xs []string) {
	sort.SliceStable(xs, func(i, j int) bool {
		c, err := Compare(Normalize(xs[i]), Normalize(xs[j]))
		if err != nil {
			return false
		}
		if c == 0 {
			// 1.21 与 1.21-pre1：更长的原始串放后面
			return len(xs[i]) < len(xs[j])
		}
		return c > 0
	})
}

func startsWithLetter(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r)
	}
	return false
}
