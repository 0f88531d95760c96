package fallback

import (
	"regexp"
	"strings"

	"github.com/John-Robertt/modup/internal/domain"
)

// Guess 是仅凭文件名推断出的字段；空字符串表示没有命中。
type Guess struct {
	Name        string
	Version     string
	GameVersion string
	Loader      domain.LoaderFamily // 未命中时为空
}

// engineRule 的顺序即优先级：先命中者胜出。
// 注意：只接受 1.<两位及以上> 形态，避免把 loader 自身的版本号（fabric-0.15.0）当成游戏版本。
var engineRules = []struct {
	name string
	re   *regexp.Regexp
}{
	{"mc-prefix", regexp.MustCompile(`(?i)mc[-_]?(1\.\d{2,}(?:\.\d{1,2})?)`)},
	{"loader-prefix", regexp.MustCompile(`(?i)(?:neoforge|fabric|forge|quilt)[-_](1\.\d{2,}(?:\.\d{1,2})?)`)},
	{"separator", regexp.MustCompile(`[+_-](1\.\d{2,}(?:\.\d{1,2})?)`)},
}

// loaderRules 的顺序即优先级：quilt > fabric > neoforge > forge。
// neoforge 必须在 forge 之前，否则 "neoforge" 会被子串 "forge" 误判。
var loaderRules = []struct {
	marker string
	loader domain.LoaderFamily
}{
	{"quilt", domain.LoaderQuilt},
	{"fabric", domain.LoaderFabric},
	{"neoforge", domain.LoaderNeoForge},
	{"forge", domain.LoaderForge},
}

var (
	tokenRE       = regexp.MustCompile(`[^-_+ ]+`)
	versionLikeRE = regexp.MustCompile(`(?i)^(?:v?\d|mc\d|mc$|alpha\d*$|beta\d*$|rc\d*$|pre\d*$|snapshot$|release$|build\d*$)`)
	plainVerRE    = regexp.MustCompile(`(?i)^v?(\d+(?:\.\d+)*[0-9a-z.]*)$`)
)

// FromFilename 从文件名推断名称/版本/游戏版本/loader。该函数永不失败。
func FromFilename(fileName string) Guess {
	stem := domain.StemOf(strings.TrimSpace(fileName))
	g := Guess{
		GameVersion: engineHint(stem),
		Loader:      loaderHint(stem),
	}
	g.Name, g.Version = splitNameVersion(stem, g.GameVersion)
	return g
}

func engineHint(stem string) string {
	for _, r := range engineRules {
		if m := r.re.FindStringSubmatch(stem); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

func loaderHint(stem string) domain.LoaderFamily {
	low := strings.ToLower(stem)
	for _, r := range loaderRules {
		if strings.Contains(low, r.marker) {
			return r.loader
		}
	}
	return ""
}

// splitNameVersion 从尾部剥离 loader 名与版本形态的 token，剩余部分作为名称。
// 被剥离的 token 中，第一个不是游戏版本的纯版本号作为本地 mod 版本。
// 若全部 token 都会被剥离，则保留整个 stem 作为名称。
func splitNameVersion(stem, gameVersion string) (name, ver string) {
	locs := tokenRE.FindAllStringIndex(stem, -1)
	if len(locs) == 0 {
		return stem, ""
	}

	cut := len(locs)
	for cut > 0 {
		tok := stem[locs[cut-1][0]:locs[cut-1][1]]
		if !isLoaderToken(tok) && !versionLikeRE.MatchString(tok) {
			break
		}
		cut--
	}
	if cut == 0 {
		return stem, ""
	}

	name = strings.TrimRight(stem[:locs[cut-1][1]], "-_+ ")
	for _, loc := range locs[cut:] {
		tok := stem[loc[0]:loc[1]]
		m := plainVerRE.FindStringSubmatch(tok)
		if m == nil || m[1] == gameVersion {
			continue
		}
		ver = m[1]
		break
	}
	return name, ver
}

func isLoaderToken(tok string) bool {
	_, ok := domain.ParseLoader(tok)
	return ok
}
