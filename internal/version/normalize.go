package version

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparseable 表示规范化后的版本仍无法按数字比较（例如分量溢出）。
var ErrUnparseable = errors.New("version: unparseable")

// rewriteRule 是规范化的一步：命中 re 后按 apply 改写。
// 规则按顺序执行，每条最多生效一次。
type rewriteRule struct {
	name  string
	re    *regexp.Regexp
	apply func(s string, loc []int) string
}

func cutAt(s string, loc []int) string { return s[:loc[0]] }

func dropMatch(s string, loc []int) string { return s[:loc[0]] + s[loc[1]:] }

// normalizeRules 的顺序即优先级：
// 1) 去掉 loader 前缀（fabric-1.2.3）
// 2) 从第一个 “+/- 后跟游戏版本或快照号” 处截断（0.140.0+1.21.11）
// 3) 去掉前导 mc<游戏版本>- 段（mc1.20.4-0.5.4）
// 4) 去掉前导 <1.xx[.x]>- 段，但仅当后面紧跟数字（1.20.1-2.1）
var normalizeRules = []rewriteRule{
	{
		name:  "loader-prefix",
		re:    regexp.MustCompile(`(?i)^(?:neoforge|fabric|forge|quilt)-?`),
		apply: dropMatch,
	},
	{
		name:  "engine-suffix",
		re:    regexp.MustCompile(`[+-](?:\d{1,2}w\d{2,}|1\.\d{1,2})`),
		apply: cutAt,
	},
	{
		name:  "mc-prefix",
		re:    regexp.MustCompile(`(?i)^mc\d+\.\d+(?:\.\d+)?-`),
		apply: dropMatch,
	},
	{
		name: "engine-prefix",
		re:   regexp.MustCompile(`^1\.\d{1,2}(?:\.\d{1,2})?-\d`),
		apply: func(s string, loc []int) string {
			// 保留紧跟的那个数字
			return s[loc[1]-1:]
		},
	},
}

var digitRunRE = regexp.MustCompile(`\d+(?:\.\d+)*`)

// Normalize 把任意版本字符串规范化为纯数字点分形式；找不到数字时为 "0"。
//
// 例：
//   - "0.140.0+1.21.11" -> "0.140.0"
//   - "mc1.20.4-0.5.4"  -> "0.5.4"
//   - "v2.1-1.20.1"     -> "2.1"
//   - ""                -> "0"
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "0"
	}
	for _, r := range normalizeRules {
		if loc := r.re.FindStringIndex(s); loc != nil {
			s = r.apply(s, loc)
		}
	}
	m := digitRunRE.FindString(s)
	if m == "" {
		return "0"
	}
	return m
}

// Components 把规范化后的版本拆成数字分量。
func Components(canonical string) ([]int, error) {
	parts := strings.Split(canonical, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnparseable, canonical, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// Compare 比较两个规范化后的版本：a<b 返回 -1，相等 0，a>b 返回 1。
//
// 规则：
// - 字符串完全相同直接视为相等，不做数字解析
// - 按分量从左到右数字比较；缺失分量视为 0（1.2 == 1.2.0）
func Compare(a, b string) (int, error) {
	if a == b {
		return 0, nil
	}
	ca, err := Components(a)
	if err != nil {
		return 0, err
	}
	cb, err := Components(b)
	if err != nil {
		return 0, err
	}
	n := len(ca)
	if len(cb) > n {
		n = len(cb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(ca) {
			x = ca[i]
		}
		if i < len(cb) {
			y = cb[i]
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
	}
	return 0, nil
}

var majorMinorRE = regexp.MustCompile(`^\d+\.\d+`)

// MajorMinor 返回 "1.20.4" 的 "1.20"；不符合形态时原样返回。
func MajorMinor(v string) string {
	v = strings.TrimSpace(v)
	if m := majorMinorRE.FindString(v); m != "" {
		return m
	}
	return v
}
