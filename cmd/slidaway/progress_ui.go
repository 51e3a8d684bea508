package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/text/message"

	"github.com/John-Robertt/slidaway/internal/app/run"
	"github.com/John-Robertt/slidaway/internal/config"
	"github.com/John-Robertt/slidaway/internal/domain"
	"github.com/John-Robertt/slidaway/internal/i18n"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长视频采样期间也会定期输出一行，显示各视频的采样进度
type progressUI struct {
	w io.Writer
	p *message.Printer
	s uiStyles

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int

	// active 记录正在处理的视频的采样进度（key 为视频名）。
	active map[string]sampleProgress

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

type sampleProgress struct {
	done  int
	total int
}

type uiStyles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	dim   lipgloss.Style
}

func newUIStyles(w io.Writer) uiStyles {
	// 颜色能力按实际输出的 writer 检测（非终端时自动降级为纯文本）。
	r := lipgloss.NewRenderer(w)
	return uiStyles{
		title: r.NewStyle().Bold(true),
		ok:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#00af5f")),
		fail:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("#d70000")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("#6e7681")),
	}
}

func newProgressUI(w io.Writer, p *message.Printer) *progressUI {
	return &progressUI{
		w:                  w,
		p:                  p,
		s:                  newUIStyles(w),
		active:             map[string]sampleProgress{},
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] %s\n", now.Format("15:04:05"), p.s.title.Render("slidaway "+version))
	fmt.Fprintln(p.w, p.p.Sprintf(i18n.MsgConfig))
	fmt.Fprintf(p.w, "  interval: %ds\n", eff.Interval)
	fmt.Fprintf(p.w, "  threshold: %s\n", formatThreshold(p.p, eff.Threshold))
	fmt.Fprintf(p.w, "  savedir: %s\n", eff.SaveDir)
	fmt.Fprintf(p.w, "  format: %s\n", eff.Format)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  probe: %s\n", onOff(eff.Probe))
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	if len(eff.ExcludeDirs) > 0 {
		fmt.Fprintf(p.w, "  exclude_dirs: %s\n", strings.Join(eff.ExcludeDirs, ", "))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintln(p.w, p.p.Sprintf(i18n.MsgPhaseScan,
			intField(fields, "inputs"), intField(fields, "videos"), formatShortDuration(dur),
		))
	case "plan":
		fmt.Fprintln(p.w, p.p.Sprintf(i18n.MsgPhasePlan,
			intField(fields, "videos"), intField(fields, "conflicts"), formatShortDuration(dur),
		))
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_videos")
		fmt.Fprintln(p.w, p.p.Sprintf(i18n.MsgStart, p.total))
		fmt.Fprintln(p.w)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnVideoStart(v domain.VideoFile, info domain.VideoInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active[v.Base] = sampleProgress{}

	line := p.p.Sprintf(i18n.MsgVideoInfo, info.Name, info.FrameCount, info.FPS)
	extra := fmt.Sprintf("step=%d", info.Step)
	if v.Size > 0 {
		extra += " size=" + humanize.IBytes(uint64(v.Size))
	}
	fmt.Fprintf(p.w, "%s %s\n", line, p.s.dim.Render(extra))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnSample(v domain.VideoFile, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[v.Base] = sampleProgress{done: done, total: total}
}

func (p *progressUI) OnVideoDone(idx, total int, res domain.VideoResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total
	delete(p.active, res.Name)

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
		note := ""
		if res.SkippedSamples > 0 {
			note = " " + p.p.Sprintf(i18n.MsgSkipped, res.SkippedSamples)
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s%s (%s)\n",
			idx, total, p.s.ok.Render("OK"),
			p.p.Sprintf(i18n.MsgVideoDone, res.OutDir, len(res.Slides)),
			note, formatShortDuration(dur),
		)
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s %s: %s (%s)\n",
			idx, total, p.s.fail.Render("FAIL"),
			p.p.Sprintf(i18n.MsgVideoFailed, res.Name, res.ErrorCode),
			truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, ok, fail, active int, activeNames []string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintln(p.w, p.p.Sprintf(i18n.MsgProgress,
		done, total, ok, fail, active, formatElapsed(elapsed), formatActive(activeNames),
	))
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	stopCh := p.stopCh
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 已完成：安全退出（OnVideoDone 会 close stopCh，但这里也做兜底）。
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total <= 0 || time.Since(p.lastPrinted) <= threshold {
					p.mu.Unlock()
					continue
				}
				done, total, ok, fail := p.done, p.total, p.ok, p.fail
				names := p.activeLocked()
				elapsed := time.Since(p.startedAt)
				p.mu.Unlock()

				// OnProgress 自己加锁。
				p.OnProgress(done, total, ok, fail, len(names), names, elapsed)
			case <-stopCh:
				return
			}
		}
	}()
}

// activeLocked 返回正在处理的视频及其采样进度（按名称排序）。
func (p *progressUI) activeLocked() []string {
	out := make([]string, 0, len(p.active))
	for name, sp := range p.active {
		out = append(out, name+" "+formatSampleProgress(sp.done, sp.total))
	}
	sort.Strings(out)
	return out
}

func formatSampleProgress(done, total int) string {
	if total <= 0 {
		return fmt.Sprintf("%d", done)
	}
	pct := done * 100 / total
	if pct > 100 {
		pct = 100
	}
	return fmt.Sprintf("%d/%d %d%%", done, total, pct)
}

func formatActive(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return " [" + truncate(strings.Join(names, "; "), 160) + "]"
}

func formatThreshold(pr *message.Printer, t int) string {
	if t < 0 {
		return pr.Sprintf(i18n.MsgKeepAll, t)
	}
	return fmt.Sprintf("%d", t)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
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

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
