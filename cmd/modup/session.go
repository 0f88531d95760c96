package main

import (
	"context"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/modup/internal/app/run"
	"github.com/John-Robertt/modup/internal/config"
	"github.com/John-Robertt/modup/internal/domain"
	"github.com/John-Robertt/modup/internal/infra/cache"
	"github.com/John-Robertt/modup/internal/infra/httpx"
	"github.com/John-Robertt/modup/internal/infra/logx"
	"github.com/John-Robertt/modup/internal/registry"
)

// session 持有一次命令运行需要的全部协作者；Close 释放日志文件与缓存存储。
type session struct {
	eff  config.EffectiveConfig
	log  *log.Logger
	http *http.Client

	closers []io.Closer
}

func openSession(cmd *cobra.Command, g *globalFlags, f *scanFlags, dir string) (*session, error) {
	cli := config.CLIArgs{
		ConfigFile:  g.configFile,
		ModsDir:     dir,
		LogLevel:    g.logLevel,
		LogLevelSet: cmd.Flags().Changed("log-level"),
		NoCache:     g.noCache,
	}
	if f != nil {
		cli.GameVersion = f.gameVersion
		cli.GameVersionSet = cmd.Flags().Changed("game-version")
		cli.Concurrency = f.concurrency
		cli.ConcurrencySet = cmd.Flags().Changed("concurrency")
	}
	eff, err := config.LoadEffective(cli)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logx.New(logx.Options{
		Level:  eff.Log.Level,
		File:   eff.Log.File,
		Prefix: "modup",
		Out:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	s := &session{eff: eff, log: logger, closers: []io.Closer{closer}}

	// 总超时交给 registry 的单次调用超时；下载大文件时不设上限。
	s.http, err = httpx.NewClient(httpx.Options{
		ProxyURL:  eff.ProxyURL,
		UserAgent: eff.Registry.UserAgent,
		Timeout:   -1,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	if eff.ConfigFile != "" {
		logger.Debug("已读取配置", "file", eff.ConfigFile)
	}
	return s, nil
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
	s.closers = nil
}

func (s *session) resolver() *registry.Resolver {
	opts := []registry.Option{
		registry.WithHTTPClient(s.http),
		registry.WithBaseURL(s.eff.Registry.BaseURL),
		registry.WithTimeout(s.eff.Registry.Timeout),
		registry.WithLogger(s.log),
	}
	if s.eff.Registry.UserAgent != "" {
		opts = append(opts, registry.WithUserAgent(s.eff.Registry.UserAgent))
	}
	return registry.NewResolver(registry.New(opts...), s.log)
}

// caches 打开快照存储；打不开时退化为仅内存缓存（缓存永远不是扫描失败的原因）。
func (s *session) caches() *cache.Caches {
	if s.eff.Cache.Disabled {
		return cache.NewMemory()
	}
	store, err := cache.OpenStore(s.eff.Cache.Backend, s.eff.Cache.Dir, s.eff.Cache.ReadOnly)
	if err != nil {
		s.log.Warn("打开缓存失败，本次仅使用内存缓存", "backend", s.eff.Cache.Backend, "dir", s.eff.Cache.Dir, "err", err)
		return cache.NewMemory()
	}
	c := cache.New(store, s.eff.Cache.TTL)
	s.closers = append(s.closers, c)
	return c
}

func (s *session) scan(ctx context.Context, progress io.Writer) (domain.ScanReport, error) {
	var obs run.Observer
	if isTTY(progress) {
		obs = newProgressUI(progress, s.eff)
	}
	return run.Execute(ctx, run.Options{
		Dir:         s.eff.ModsDir,
		GameVersion: s.eff.GameVersion,
		Concurrency: s.eff.Concurrency,
	}, run.Deps{
		Resolver: s.resolver(),
		Caches:   s.caches(),
		Logger:   s.log,
		Observer: obs,
	})
}
