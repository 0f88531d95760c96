package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/modup/internal/app/run"
	"github.com/John-Robertt/modup/internal/config"
	"github.com/John-Robertt/modup/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr，不污染 stdout 的报告输出
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行（registry 慢时尤其需要）
type progressUI struct {
	w   io.Writer
	eff config.EffectiveConfig

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers  int
	total    int
	done     int
	resolved int
	fileOnly int
	failed   int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, eff config.EffectiveConfig) *progressUI {
	return &progressUI{
		w:                  w,
		eff:                eff,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(opts run.Options) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	target := opts.GameVersion
	if target == "" {
		target = "（按归档自身声明）"
	}
	cacheMode := p.eff.Cache.Backend + " " + p.eff.Cache.Dir
	switch {
	case p.eff.Cache.Disabled:
		cacheMode = "off"
	case p.eff.Cache.ReadOnly:
		cacheMode += " (read-only)"
	}

	fmt.Fprintf(p.w, "[%s] %s\n", now.Format("15:04:05"), headerStyle.Render("modup scan"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  dir: %s\n", opts.Dir)
	fmt.Fprintf(p.w, "  game_version: %s\n", target)
	fmt.Fprintf(p.w, "  concurrency: %d\n", opts.Concurrency)
	fmt.Fprintf(p.w, "  registry: %s\n", p.eff.Registry.BaseURL)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(p.eff.ProxyURL))
	fmt.Fprintf(p.w, "  cache: %s\n", cacheMode)
	if p.eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", p.eff.ConfigFile)
	}
	fmt.Fprintln(p.w)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: archives=%d disabled=%d (%s)\n",
			intField(fields, "archives"), intField(fields, "disabled"), formatShortDuration(dur),
		)
	case "cache":
		fmt.Fprintf(p.w, "缓存: metadata=%d resolution=%d (%s)\n",
			intField(fields, "metadata"), intField(fields, "resolution"), formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total")
		fmt.Fprintf(p.w, "执行: workers=%d total=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "persist":
		fmt.Fprintf(p.w, "\n写回缓存: metadata=%d resolution=%d (%s)\n",
			intField(fields, "metadata"), intField(fields, "resolution"), formatShortDuration(dur),
		)
	default:
		// 兜底：未知阶段也不要静默。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, rep domain.ModReport, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total
	res, up := rep.Resolution, rep.Update
	switch res.Status {
	case domain.ResolutionResolved:
		p.resolved++
	case domain.ResolutionFileOnly:
		p.fileOnly++
	case domain.ResolutionFailed:
		p.failed++
	}

	status := statusStyle(string(up.Status)).Render(statusLabel(rep))
	switch {
	case res.Status == domain.ResolutionFailed:
		chain := formatAttemptChain(res.Attempts, 1)
		if chain != "" {
			chain = " attempts=" + chain
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s%s (%s)\n",
			idx, total, res.File, status, res.ErrorKind, truncate(res.ErrorMsg, 160), chain, formatShortDuration(dur),
		)
	case up.Status == domain.UpdateAvailable:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s -> %s (%s)\n",
			idx, total, res.Name, status, res.Version, up.LatestVersion, formatShortDuration(dur),
		)
	default:
		note := string(res.Source)
		if up.Reason != "" {
			note = string(up.Reason)
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s (%s)\n",
			idx, total, res.Name, status, note, formatShortDuration(dur),
		)
	}
	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, p.keepaliveLineLocked())
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) keepaliveLineLocked() string {
	active := min(p.workers, p.total-p.done)
	return fmt.Sprintf("进度: done=%d/%d resolved=%d file_only=%d failed=%d active=%d elapsed=%s",
		p.done, p.total, p.resolved, p.fileOnly, p.failed, active, formatElapsed(time.Since(p.startedAt)),
	)
}

func statusLabel(rep domain.ModReport) string {
	if rep.Resolution.Status == domain.ResolutionFailed {
		return "FAIL"
	}
	switch rep.Update.Status {
	case domain.UpdateAvailable:
		return "UPDATE"
	case domain.UpdateUpToDate:
		return "OK"
	case domain.UpdateLocallyAhead:
		return "AHEAD"
	case domain.UpdateManualCheck:
		return "CHECK"
	case domain.UpdateIncompatible:
		return "INCOMPATIBLE"
	default:
		return "UNKNOWN"
	}
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatAttemptChain(attempts []domain.Attempt, max int) string {
	if len(attempts) == 0 || max == 0 {
		return ""
	}
	if max < 0 {
		max = len(attempts)
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		s := strings.TrimSpace(a.Stage)
		if q := strings.TrimSpace(a.Query); q != "" {
			s += "(" + truncate(q, 40) + ")"
		}
		if a.ErrorKind != "" {
			s += ":" + string(a.ErrorKind)
		}
		if em := strings.TrimSpace(a.ErrorMsg); em != "" {
			s += ":" + truncate(em, 80)
		}
		parts = append(parts, s)
		if len(parts) >= max {
			break
		}
	}
	return strings.Join(parts, ";")
}

func formatShortDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", max(d, 0).Seconds())
}

func formatElapsed(d time.Duration) string {
	sec := int(max(d, 0).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
