package run

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/John-Robertt/modup/internal/domain"
	"github.com/John-Robertt/modup/internal/fallback"
	"github.com/John-Robertt/modup/internal/infra/cache"
	"github.com/John-Robertt/modup/internal/modmeta"
	"github.com/John-Robertt/modup/internal/registry"
	"github.com/John-Robertt/modup/internal/version"
)

// pipeline 是单个归档的处理流程：提取 -> 文件名回退 -> registry 身份 -> 兼容版本 -> 更新结论。
type pipeline struct {
	resolver Resolver
	caches   *cache.Caches
	log      *log.Logger
	target   string
}

func (p *pipeline) process(ctx context.Context, a *domain.ModArchive) (rep domain.ModReport) {
	defer func() {
		if v := recover(); v != nil {
			p.log.Error("归档处理 panic", "file", a.Name, "panic", v)
			rep = panicReport(a, v)
		}
	}()

	meta, extractErr := p.metadata(a)
	if meta.Issue == domain.ErrArchiveUnreadable {
		return placeholder(a, domain.ErrArchiveUnreadable, errText(extractErr))
	}

	filled, _ := fallback.Fill(meta, a.Name)
	res := archiveResult(a, filled)
	res.Status = domain.ResolutionFileOnly
	res.Source = domain.SourceFilename
	if meta.HasIdentity() {
		res.Source = domain.SourceManifest
	}
	if meta.Issue != "" {
		res.ErrorKind = meta.Issue
		res.ErrorMsg = errText(extractErr)
	}

	// 约束：key 里的目标版本必须是本行实际用于兼容查询的版本，否则不同声明版本会共用结论。
	key := cache.ResolutionKey(domain.BestEffortName(filled.ModID, filled.Name, a.Stem()), filled.Version, p.targetFor(filled.GameVersion))
	if cached, ok := p.caches.Resolution.Get(key); ok {
		// 归档事实（文件名/路径/启用状态）以本次扫描为准。
		cached.Resolution.File = a.Name
		cached.Resolution.Path = a.Path
		cached.Resolution.Enabled = a.Enabled
		p.log.Debug("解析缓存命中", "file", a.Name, "key", key)
		return cached
	}

	if p.resolver == nil {
		return domain.ModReport{
			Resolution: res,
			Update:     domain.UpdateDecision{Status: domain.UpdateIndeterminate, Reason: domain.ErrNoConfidentMatch},
		}
	}

	id := p.resolver.Identify(ctx, registry.Identity{Archive: a, Name: filled.Name, ModID: filled.ModID})
	res.Attempts = append(res.Attempts, id.Attempts...)
	if id.Found {
		mergeRegistry(&res, filled, id)
	}

	rep.Update = p.decide(ctx, &res)
	rep.Resolution = res

	if cacheable(rep) {
		p.caches.Resolution.Put(key, rep)
	}
	return rep
}

// metadata 读取清单；以（路径，修改时间）命中缓存时不打开归档。
// 注意：打不开的归档不写缓存，文件修复后下次扫描即可重新读取。
func (p *pipeline) metadata(a *domain.ModArchive) (domain.ExtractedMetadata, error) {
	key := cache.MetadataKey(a.Path, a.ModTime)
	if meta, ok := p.caches.Metadata.Get(key); ok {
		return meta, nil
	}
	meta, err := modmeta.Extract(a.Path)
	if meta.Issue != domain.ErrArchiveUnreadable {
		p.caches.Metadata.Put(key, meta)
	}
	if err != nil {
		p.log.Debug("清单提取降级", "file", a.Name, "kind", modmeta.Kind(err), "err", err)
	}
	return meta, err
}

// decide 查兼容版本并给出更新结论；兼容查询的尝试记录追加到 res。
//
// 目标游戏版本：配置值优先，否则用该归档推断出的游戏版本。
func (p *pipeline) decide(ctx context.Context, res *domain.ResolutionResult) domain.UpdateDecision {
	target := p.targetFor(res.GameVersion)

	if res.Status != domain.ResolutionResolved {
		return domain.UpdateDecision{
			Status:     domain.UpdateIndeterminate,
			TargetGame: target,
			Reason:     identifyFailure(res.Attempts),
		}
	}

	compat := p.resolver.FindCompatible(ctx, res.ProjectID, res.Loaders, target)
	res.Attempts = append(res.Attempts, compat.Attempts...)
	if !compat.Found {
		status := domain.UpdateIndeterminate
		if compat.Kind == domain.ErrNoCompatibleVersion {
			status = domain.UpdateIncompatible
		}
		return domain.UpdateDecision{Status: status, TargetGame: target, Reason: compat.Kind}
	}

	d := version.Decide(res.Version, compat.Version)
	d.TargetGame = target
	return d
}

func (p *pipeline) targetFor(gameVersion string) string {
	if p.target != "" {
		return p.target
	}
	return gameVersion
}

// mergeRegistry 把 registry 身份合并进结果。
//
// 优先级：
// - 名称：项目标题 > 清单/文件名
// - 本地版本：清单/文件名 > 哈希命中版本的版本号
// - loader：哈希命中版本 > 清单/文件名 > 项目全部版本的并集
// - 当前游戏版本：哈希命中版本的最新游戏版本 > 清单/文件名
func mergeRegistry(res *domain.ResolutionResult, filled domain.ExtractedMetadata, id registry.Identification) {
	res.Status = domain.ResolutionResolved
	res.Source = id.Source
	res.ProjectID = id.Project.ID
	res.Slug = id.Project.Slug
	if id.Project.Title != "" {
		res.Name = id.Project.Title
	}
	res.AllGameVersions = append([]string{}, id.AllGameVersions...)

	loaders := domain.KnownLoaders(filled.Loaders)
	if m := id.Matched; m != nil {
		if res.Version == "" {
			res.Version = m.VersionNumber
		}
		if ls := domain.ParseLoaders(m.Loaders); len(ls) > 0 {
			loaders = ls
		}
		if gv := version.LatestGameVersion(m.GameVersions); gv != "" {
			res.GameVersion = gv
		}
	}
	if len(loaders) == 0 {
		loaders = domain.ParseLoaders(id.AllLoaders)
	}
	res.Loaders = domain.EffectiveLoaders(loaders)
}

// identifyFailure 给未解析的结果选一个原因：有 registry 失败则报告失败，否则是“没有可信匹配”。
func identifyFailure(attempts []domain.Attempt) domain.ErrorKind {
	for _, at := range attempts {
		if at.ErrorKind.IsRegistryFailure() {
			return at.ErrorKind
		}
	}
	return domain.ErrNoConfidentMatch
}

// cacheable：registry 不可达/响应异常时的结果不写入解析缓存，避免把临时故障固化 6 小时。
func cacheable(rep domain.ModReport) bool {
	if rep.Resolution.Status == domain.ResolutionFailed {
		return false
	}
	for _, at := range rep.Resolution.Attempts {
		if at.ErrorKind.IsRegistryFailure() || at.ErrorKind == domain.ErrCanceled {
			return false
		}
	}
	return !rep.Update.Reason.IsRegistryFailure()
}

// archiveResult 用归档自身（清单 + 文件名）的信息构造结果骨架。
func archiveResult(a *domain.ModArchive, meta domain.ExtractedMetadata) domain.ResolutionResult {
	return domain.ResolutionResult{
		File:            a.Name,
		Path:            a.Path,
		Enabled:         a.Enabled,
		Name:            domain.BestEffortName(meta.ModID, meta.Name, a.Stem()),
		Version:         meta.Version,
		GameVersion:     meta.GameVersion,
		AllGameVersions: []string{},
		Loaders:         domain.EffectiveLoaders(meta.Loaders),
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
