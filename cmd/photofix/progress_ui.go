package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/John-Robertt/photofix/internal/app/run"
	"github.com/John-Robertt/photofix/internal/config"
	"github.com/John-Robertt/photofix/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出：阶段信息逐行打印，执行阶段用进度条。
//
// 约束：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - 失败条目单独打印一行（进度条之上），成功条目只推进进度条
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time
	bar       *progressbar.ProgressBar

	workers int
	total   int
	done    int
	updated int
	failed  int
	skipped int

	tickerInterval time.Duration
	stopCh         chan struct{}
	tickerStarted  bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:              w,
		tickerInterval: 2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不改写/不移动)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] photofix run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  input: %s\n", eff.Input)
	fmt.Fprintf(p.w, "  dest: %s\n", eff.Dest)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  sanity_floor: %s\n", eff.SanityFloor.UTC().Format("2006-01-02"))
	fmt.Fprintf(p.w, "  duplicate_check: %s\n", eff.DuplicateCheck)
	fmt.Fprintf(p.w, "  set_mtime: %s\n", onOff(eff.SetMtime))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除 .photofix/\n", formatStringListJSON(eff.ExcludeDirs))
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d sidecars=%d (%s)\n",
			intField(fields, "files"), intField(fields, "sidecars"), formatShortDuration(dur),
		)
	case "pair":
		fmt.Fprintf(p.w, "配对: pairs=%d with_sidecar=%d (%s)\n",
			intField(fields, "pairs"), intField(fields, "with_sidecar"), formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "执行: workers=%d total_items=%d\n\n", p.workers, p.total)
		if p.total > 0 {
			p.bar = progressbar.NewOptions(p.total,
				progressbar.OptionSetWriter(p.w),
				progressbar.OptionSetDescription("处理中"),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionOnCompletion(func() { fmt.Fprintln(p.w) }),
			)
			_ = p.bar.RenderBlank()
			if !p.tickerStarted {
				p.startTickerLocked()
			}
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	switch res.Outcome {
	case domain.OutcomeUpdated, domain.OutcomeMovedOnly:
		p.updated++
	case domain.OutcomeFailed:
		p.failed++
	case domain.OutcomeSkipped:
		p.skipped++
	}

	if res.Outcome == domain.OutcomeFailed {
		if p.bar != nil {
			_ = p.bar.Clear()
		}
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, res.Src, res.ErrorKind, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	}
	if p.bar != nil {
		_ = p.bar.Add(1)
	}

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, updated, failed, skipped int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.describeLocked(updated, failed, skipped, elapsed)
}

func (p *progressUI) describeLocked(updated, failed, skipped int, elapsed time.Duration) {
	desc := fmt.Sprintf("ok=%d fail=%d skip=%d %s", updated, failed, skipped, formatElapsed(elapsed))
	if p.bar != nil {
		p.bar.Describe(desc)
		return
	}
	fmt.Fprintf(p.w, "进度: %s\n", desc)
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	stop := p.stopCh

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
				p.describeLocked(p.updated, p.failed, p.skipped, time.Since(p.startedAt))
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
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

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
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
	case int64:
		return int(x)
	default:
		return 0
	}
}
