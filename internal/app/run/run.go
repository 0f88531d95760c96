package run

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/modup/internal/domain"
	"github.com/John-Robertt/modup/internal/fallback"
	"github.com/John-Robertt/modup/internal/infra/cache"
	"github.com/John-Robertt/modup/internal/infra/logx"
	"github.com/John-Robertt/modup/internal/registry"
	"github.com/John-Robertt/modup/internal/scan"
)

const (
	DefaultConcurrency = 16
	MaxConcurrency     = 64
)

// DirNotFoundError 是 Execute 唯一返回的错误类型（扫描开始前）。
type DirNotFoundError = scan.DirNotFoundError

// Resolver 是流水线依赖的 registry 操作；*registry.Resolver 实现它。
type Resolver interface {
	Identify(ctx context.Context, id registry.Identity) registry.Identification
	FindCompatible(ctx context.Context, projectID string, loaders []domain.LoaderFamily, target string) registry.Compatibility
}

// Options 是一次扫描的输入。
type Options struct {
	Dir string
	// GameVersion 是兼容查询的目标游戏版本；为空时逐个归档使用自身推断出的版本。
	GameVersion string
	// Concurrency 范围 [1, 64]；0 使用默认值 16。
	Concurrency int
}

// Deps 是注入的协作者。Caches 为 nil 时使用仅内存缓存；Logger/Observer 可为 nil。
type Deps struct {
	Resolver Resolver
	Caches   *cache.Caches
	Logger   *log.Logger
	Observer Observer
}

// ScanDir 是只需要结果行的调用方入口（已按名称排序）。
func ScanDir(ctx context.Context, dir string, deps Deps) ([]domain.ModReport, error) {
	rr, err := Execute(ctx, Options{Dir: dir}, deps)
	if err != nil {
		return nil, err
	}
	return rr.Items, nil
}

// Execute 扫描 opts.Dir 并对每个归档跑完整流水线，返回对外稳定的 ScanReport。
//
// 约束：
// - 单个归档的任何失败（损坏、panic、取消）都降级为一行 failed 结果，不中断整批
// - 只有目录级错误（不存在/不可读）会返回 error，此时没有任何归档被处理
// - 输出顺序与完成顺序无关（Finalize 排序）
func Execute(ctx context.Context, opts Options, deps Deps) (domain.ScanReport, error) {
	started := time.Now().UTC()
	logger := logx.OrDiscard(deps.Logger)
	obs := deps.Observer
	if obs != nil {
		obs.OnStart(opts)
	}

	scanStarted := time.Now()
	archives, err := scan.ScanArchives(opts.Dir)
	if err != nil {
		return domain.ScanReport{}, err
	}
	disabled := 0
	for _, a := range archives {
		if !a.Enabled {
			disabled++
		}
	}
	if obs != nil {
		obs.OnPhaseDone("scan", map[string]any{
			"archives": len(archives),
			"disabled": disabled,
		}, time.Since(scanStarted))
	}

	rr := domain.ScanReport{
		RunID:       uuid.NewString(),
		Dir:         opts.Dir,
		GameVersion: opts.GameVersion,
		StartedAt:   started,
		Items:       make([]domain.ModReport, len(archives)),
	}
	if abs, err := filepath.Abs(opts.Dir); err == nil {
		rr.Dir = abs
	}

	caches := deps.Caches
	if caches == nil {
		caches = cache.NewMemory()
	}
	cacheStarted := time.Now()
	if err := caches.Load(ctx); err != nil {
		// 快照损坏/不可读：当作空缓存继续。
		logger.Warn("加载缓存快照失败", "err", err)
	}
	if obs != nil {
		obs.OnPhaseDone("cache", map[string]any{
			"metadata":   caches.Metadata.Len(),
			"resolution": caches.Resolution.Len(),
		}, time.Since(cacheStarted))
	}

	workers := clampConcurrency(opts.Concurrency)
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers": workers,
			"total":   len(archives),
		}, 0)
	}

	p := &pipeline{
		resolver: deps.Resolver,
		caches:   caches,
		log:      logger,
		target:   opts.GameVersion,
	}

	var (
		mu       sync.Mutex
		done     int
		canceled bool
	)
	finish := func(i int, rep domain.ModReport, dur time.Duration) {
		rr.Items[i] = rep
		mu.Lock()
		done++
		n := done
		if rep.Resolution.ErrorKind == domain.ErrCanceled {
			canceled = true
		}
		mu.Unlock()
		if obs != nil {
			obs.OnItemDone(n, len(archives), rep, dur)
		}
	}

	// 进行中的归档不受批量取消影响（只受单次请求超时约束）；未开始的直接记为 canceled。
	work := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i, a := range archives {
		g.Go(func() error {
			if ctx.Err() != nil {
				finish(i, placeholder(a, domain.ErrCanceled, "扫描已取消，未处理该归档"), 0)
				return nil
			}
			oneStarted := time.Now()
			rep := p.process(work, a)
			finish(i, rep, time.Since(oneStarted))
			return nil
		})
	}
	_ = g.Wait()

	persistStarted := time.Now()
	if err := caches.Persist(work); err != nil {
		logger.Warn("写回缓存快照失败", "err", err)
	}
	if obs != nil {
		obs.OnPhaseDone("persist", map[string]any{
			"metadata":   caches.Metadata.Len(),
			"resolution": caches.Resolution.Len(),
		}, time.Since(persistStarted))
	}

	rr.Canceled = canceled
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	logger.Debug("扫描完成", "run_id", rr.RunID, "total", rr.Summary.Total, "failed", rr.Summary.Failed)
	return rr, nil
}

func clampConcurrency(n int) int {
	if n == 0 {
		return DefaultConcurrency
	}
	return min(max(n, 1), MaxConcurrency)
}

// placeholder 构造失败行：名称/版本仅来自文件名，保证输出里仍可辨认是哪个文件。
func placeholder(a *domain.ModArchive, kind domain.ErrorKind, msg string) domain.ModReport {
	meta, _ := fallback.Fill(domain.ExtractedMetadata{}, a.Name)
	res := archiveResult(a, meta)
	res.Status = domain.ResolutionFailed
	res.Source = domain.SourceError
	res.ErrorKind = kind
	res.ErrorMsg = msg
	return domain.ModReport{
		Resolution: res,
		Update:     domain.UpdateDecision{Status: domain.UpdateIndeterminate, Reason: kind},
	}
}

func panicReport(a *domain.ModArchive, v any) domain.ModReport {
	return placeholder(a, domain.ErrInternal, fmt.Sprintf("处理归档时发生内部错误：%v", v))
}
