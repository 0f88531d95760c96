package registry

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/John-Robertt/modup/internal/domain"
	"github.com/John-Robertt/modup/internal/infra/logx"
	"github.com/John-Robertt/modup/internal/version"
)

const (
	StageHash     = "hash"
	StageVersion  = "version"
	StageProject  = "project"
	StageSearch   = "search"
	StageVersions = "versions"
	StageCompat   = "compat"

	searchLimit = 10
)

// API 是 Resolver 依赖的 registry 读操作；*Client 实现它。
type API interface {
	Search(ctx context.Context, query string, limit int) ([]domain.RegistryProject, error)
	Project(ctx context.Context, id string) (domain.RegistryProject, error)
	ProjectVersions(ctx context.Context, projectID string, loaders, gameVersions []string) ([]domain.RegistryVersionRecord, error)
	Version(ctx context.Context, id string) (domain.RegistryVersionRecord, error)
	VersionFromHash(ctx context.Context, sha512 string) (HashMatch, error)
}

// Resolver 把本地归档映射到 registry 项目，并查找兼容版本。
//
// 约束：任何 registry 失败都只记录为 Attempt，不返回 error；调用方据此回退到本地数据。
type Resolver struct {
	api API
	log *log.Logger
}

func NewResolver(api API, logger *log.Logger) *Resolver {
	return &Resolver{api: api, log: logx.OrDiscard(logger)}
}

// Identity 是用于查找项目的本地线索。
type Identity struct {
	Archive *domain.ModArchive // 可为 nil：跳过哈希查找
	Name    string
	ModID   string
}

// Identification 是身份查找结果。Found=false 时只有 Attempts 有意义。
type Identification struct {
	Found   bool
	Project domain.RegistryProject
	// Matched 是哈希精确命中的版本（搜索命中时为 nil）。
	Matched *domain.RegistryVersionRecord
	Source  domain.Source
	Score   float64

	AllLoaders      []string
	AllGameVersions []string

	Attempts []domain.Attempt
}

// Identify 依次尝试：文件哈希 -> 名称搜索 -> mod id 搜索。
// 命中项目后再取一次完整版本列表，汇总所有 loader 与游戏版本。
func (r *Resolver) Identify(ctx context.Context, id Identity) Identification {
	var out Identification

	if id.Archive != nil {
		r.identifyByHash(ctx, id.Archive, &out)
	}
	if !out.Found {
		r.identifyBySearch(ctx, id, &out)
	}
	if !out.Found {
		return out
	}

	vs, err := r.api.ProjectVersions(ctx, out.Project.ID, nil, nil)
	if err != nil {
		out.Attempts = append(out.Attempts, failed(StageVersions, out.Project.ID, err))
		return out
	}
	loaders := make(map[string]struct{})
	var games []string
	for _, v := range vs {
		for _, l := range v.Loaders {
			loaders[strings.ToLower(l)] = struct{}{}
		}
		games = append(games, v.GameVersions...)
	}
	out.AllLoaders = sortedKeys(loaders)
	out.AllGameVersions = version.SortGameVersions(games)
	return out
}

func (r *Resolver) identifyByHash(ctx context.Context, a *domain.ModArchive, out *Identification) {
	sum, err := a.Hash()
	if err != nil {
		out.Attempts = append(out.Attempts, domain.Attempt{
			Stage:     StageHash,
			Query:     a.Name,
			ErrorKind: domain.ErrArchiveUnreadable,
			ErrorMsg:  err.Error(),
		})
		return
	}

	m, err := r.api.VersionFromHash(ctx, sum)
	if err != nil {
		out.Attempts = append(out.Attempts, failed(StageHash, shortHash(sum), err))
		return
	}
	rec := m.Record
	if rec == nil {
		v, err := r.api.Version(ctx, m.VersionID)
		if err != nil {
			out.Attempts = append(out.Attempts, failed(StageVersion, m.VersionID, err))
			return
		}
		rec = &v
	}
	if rec.ProjectID == "" {
		out.Attempts = append(out.Attempts, failed(StageVersion, rec.ID, &MalformedError{URL: "version " + rec.ID, Err: errors.New("缺少 project_id")}))
		return
	}

	out.Found = true
	out.Matched = rec
	out.Source = domain.SourceHash
	out.Score = 1
	out.Project = domain.RegistryProject{ID: rec.ProjectID}

	// 标题只用于展示；取不到不影响命中。
	p, err := r.api.Project(ctx, rec.ProjectID)
	if err != nil {
		out.Attempts = append(out.Attempts, failed(StageProject, rec.ProjectID, err))
		return
	}
	out.Project = p
	r.log.Debug("哈希命中", "file", a.Name, "project", p.ID, "version", rec.VersionNumber)
}

func (r *Resolver) identifyBySearch(ctx context.Context, id Identity, out *Identification) {
	for _, q := range searchQueries(id.Name, id.ModID) {
		hits, err := r.api.Search(ctx, q, searchLimit)
		if err != nil {
			out.Attempts = append(out.Attempts, failed(StageSearch, q, err))
			continue
		}
		best, score, ok := BestCandidate(q, hits)
		if !ok {
			out.Attempts = append(out.Attempts, domain.Attempt{
				Stage:     StageSearch,
				Query:     q,
				ErrorKind: domain.ErrNoConfidentMatch,
			})
			continue
		}
		out.Found = true
		out.Project = best
		out.Source = domain.SourceSearch
		out.Score = score
		r.log.Debug("搜索命中", "query", q, "project", best.ID, "score", score)
		return
	}
}

// Compatibility 是兼容版本查找结果。
//
// Found=false 时 Kind 说明原因：no_compatible_version（查到了但没有）或 registry 失败。
type Compatibility struct {
	Found    bool
	Version  domain.RegistryVersionRecord
	Queried  []string
	Kind     domain.ErrorKind
	Attempts []domain.Attempt
}

// FindCompatible 查找项目在 target 游戏版本与给定 loader 下的最新版本。
//
// 规则：
// - quilt 兼容 fabric 的 mod：有 quilt 没 fabric 时追加 fabric
// - 先精确查 target，空则退到 major.minor（与 target 不同时）
// - 第一个非空结果的第一项即最新版本
func (r *Resolver) FindCompatible(ctx context.Context, projectID string, loaders []domain.LoaderFamily, target string) Compatibility {
	tags := SearchLoaderTags(loaders)
	var out Compatibility
	switch {
	case strings.TrimSpace(target) == "":
		out.Kind = domain.ErrUnknownTarget
		return out
	case len(tags) == 0:
		out.Kind = domain.ErrUnknownLoader
		return out
	}
	failures := 0

	for _, gv := range compatQueries(target) {
		out.Queried = append(out.Queried, gv)
		vs, err := r.api.ProjectVersions(ctx, projectID, tags, []string{gv})
		if err != nil {
			failures++
			out.Attempts = append(out.Attempts, failed(StageCompat, gv, err))
			out.Kind = Kind(err)
			continue
		}
		if len(vs) > 0 {
			out.Found = true
			out.Version = vs[0]
			out.Kind = ""
			return out
		}
	}
	if failures == 0 {
		// 每次查询都成功返回了空列表才是确定的“不兼容”；任何一次失败都让结论未知。
		out.Kind = domain.ErrNoCompatibleVersion
	}
	return out
}

// SearchLoaderTags 返回兼容查询用的 loader 标签。
func SearchLoaderTags(loaders []domain.LoaderFamily) []string {
	tags := domain.LoaderTags(loaders)
	hasQuilt, hasFabric := false, false
	for _, t := range tags {
		switch t {
		case string(domain.LoaderQuilt):
			hasQuilt = true
		case string(domain.LoaderFabric):
			hasFabric = true
		}
	}
	if hasQuilt && !hasFabric {
		tags = append(tags, string(domain.LoaderFabric))
	}
	return tags
}

func compatQueries(target string) []string {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}
	out := []string{target}
	if mm := version.MajorMinor(target); mm != "" && mm != target {
		out = append(out, mm)
	}
	return out
}

func searchQueries(name, modID string) []string {
	var out []string
	for _, q := range []string{name, modID} {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		dup := false
		for _, x := range out {
			if strings.EqualFold(x, q) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, q)
		}
	}
	return out
}

func failed(stage, query string, err error) domain.Attempt {
	return domain.Attempt{Stage: stage, Query: query, ErrorKind: Kind(err), ErrorMsg: err.Error()}
}

func shortHash(sum string) string {
	if len(sum) > 16 {
		return sum[:16]
	}
	return sum
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
